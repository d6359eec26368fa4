// Пакет keyname — формирование ключей хранения файлов.
//
// Формат ключа: {owner}/{folder/}{ms}_{filename}, где ms — монотонная
// метка времени в миллисекундах. Ключи не содержат последовательностей ".."
// и абсолютных путей.
package keyname

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// folderDisallowed — всё, что не входит в разрешённый набор символов папки.
var folderDisallowed = regexp.MustCompile(`[^A-Za-z0-9_\-/ ]+`)

// defaultFilename — имя, подставляемое при пустом исходном.
const defaultFilename = "file"

// Namer — генератор ключей хранения. Потокобезопасен.
type Namer struct {
	mu     sync.Mutex
	lastMs int64
	now    func() time.Time
}

// New создаёт Namer на системных часах.
func New() *Namer {
	return &Namer{now: time.Now}
}

// NewWithClock создаёт Namer с заданным источником времени.
// Используется в тестах.
func NewWithClock(now func() time.Time) *Namer {
	return &Namer{now: now}
}

// Derive формирует ключ хранения. Никогда не возвращает ошибку:
// некорректная папка вырождается в пустой сегмент.
func (n *Namer) Derive(ownerID int64, folder, filename string) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(ownerID, 10))
	b.WriteByte('/')

	if sub := SanitizeFolder(folder); sub != "" {
		b.WriteString(sub)
		b.WriteByte('/')
	}

	if filename == "" {
		filename = defaultFilename
	}
	leaf := strconv.FormatInt(n.nextMillis(), 10) + "_" + filename
	b.WriteString(neutralize(leaf))

	return b.String()
}

// nextMillis возвращает строго возрастающую метку времени в миллисекундах.
// Если часы не сдвинулись (или ушли назад), берётся предыдущее значение + 1.
func (n *Namer) nextMillis() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	ms := n.now().UnixMilli()
	if ms <= n.lastMs {
		ms = n.lastMs + 1
	}
	n.lastMs = ms
	return ms
}

// SanitizeFolder очищает имя папки: убирает ".." и недопустимые символы,
// обрезает пробелы и разделители по краям.
func SanitizeFolder(folder string) string {
	folder = strings.TrimSpace(folder)
	folder = replaceDots(folder)
	folder = folderDisallowed.ReplaceAllString(folder, "")
	folder = strings.Trim(folder, "/")

	// Схлопываем пустые сегменты "a//b" и пробельные сегменты
	parts := strings.Split(folder, "/")
	kept := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "/")
}

// neutralize делает имя файла безопасным листом пути:
// ".." заменяется на ".", разделители каталогов на "_".
func neutralize(leaf string) string {
	leaf = strings.NewReplacer("/", "_", "\\", "_", "\x00", "").Replace(leaf)
	return replaceDots(leaf)
}

// replaceDots заменяет ".." на "." до устойчивого состояния,
// чтобы "...." не превращалось обратно в "..".
func replaceDots(s string) string {
	for strings.Contains(s, "..") {
		s = strings.ReplaceAll(s, "..", ".")
	}
	return s
}

// RelativePath возвращает ключ без префикса владельца ("7/a/b.txt" → "a/b.txt").
func RelativePath(key string) string {
	if _, rest, ok := strings.Cut(key, "/"); ok {
		return rest
	}
	return key
}
