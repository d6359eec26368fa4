// Пакет lifecycle — конечный автомат состояний записи о файле.
//
// Жизненный цикл: (загрузка) → ready → deleted → ready.
// Других переходов нет. Видимость меняется только в состоянии ready
// и принудительно остаётся false: публичный доступ отключён политикой.
//
// Функции пакета не проверяют владельца: это задача сервисного слоя.
package lifecycle

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bigkaa/filevault/internal/domain/model"
)

// Коды ошибок перехода.
const (
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeInvalidState      = "INVALID_STATE"
)

// validTransitions — матрица допустимых переходов.
// Ключ — текущее состояние, значение — набор допустимых целевых.
var validTransitions = map[model.FileState]map[model.FileState]bool{
	model.StateReady:   {model.StateDeleted: true},
	model.StateDeleted: {model.StateReady: true},
}

// publicAccessEnabled — политика публичного доступа. Пока выключена,
// любой запрос на смену видимости оставляет файл приватным.
const publicAccessEnabled = false

// CanTransition проверяет, допустим ли переход from → to.
func CanTransition(from, to model.FileState) bool {
	transitions, ok := validTransitions[from]
	if !ok {
		return false
	}
	return transitions[to]
}

// TransitionTo переводит запись в целевое состояние.
// ready → deleted выставляет DeletedAt, deleted → ready сбрасывает его.
// UpdatedAt обновляется при успешном переходе.
func TransitionTo(rec *model.FileRecord, target model.FileState, now time.Time) error {
	if !CanTransition(rec.State, target) {
		return &TransitionError{
			Code:    CodeInvalidTransition,
			Message: fmt.Sprintf("переход %s → %s недопустим", rec.State, target),
		}
	}

	switch target {
	case model.StateDeleted:
		deletedAt := now.UTC()
		rec.DeletedAt = &deletedAt
	case model.StateReady:
		rec.DeletedAt = nil
	}
	rec.State = target
	rec.UpdatedAt = now.UTC()
	return nil
}

// SetVisibility применяет запрос на смену видимости. Допустимо только
// в состоянии ready. Возвращает true, если запись изменилась.
func SetVisibility(rec *model.FileRecord, desired bool, now time.Time) (bool, error) {
	if rec.State != model.StateReady {
		return false, &TransitionError{
			Code:    CodeInvalidState,
			Message: fmt.Sprintf("смена видимости недоступна в состоянии %s", rec.State),
		}
	}

	effective := desired && publicAccessEnabled
	if rec.IsPublic == effective {
		return false, nil
	}
	rec.IsPublic = effective
	rec.UpdatedAt = now.UTC()
	return true, nil
}

// MetaPatch — частичное изменение метаданных. nil — поле не передано.
type MetaPatch struct {
	Name *string
	Tags *[]string
}

// ErrNameTooLong — имя файла длиннее model.MaxNameLength символов.
var ErrNameTooLong = errors.New("имя файла слишком длинное")

// CheckName проверяет длину имени после обрезки пробелов.
func CheckName(name string) error {
	if n := utf8.RuneCountInString(strings.TrimSpace(name)); n > model.MaxNameLength {
		return fmt.Errorf("%w: %d символов, максимум %d", ErrNameTooLong, n, model.MaxNameLength)
	}
	return nil
}

// ValidatePatch проверяет поля изменения до применения.
func ValidatePatch(patch MetaPatch) error {
	if patch.Name != nil {
		return CheckName(*patch.Name)
	}
	return nil
}

// ApplyPatch применяет переданные поля. Пустое или пробельное имя
// игнорируется, теги заменяются целиком. Возвращает true при изменении.
func ApplyPatch(rec *model.FileRecord, patch MetaPatch, now time.Time) bool {
	changed := false

	if patch.Name != nil {
		if name := strings.TrimSpace(*patch.Name); name != "" {
			rec.Name = name
			changed = true
		}
	}

	if patch.Tags != nil {
		rec.Tags = NormalizeTags(*patch.Tags)
		changed = true
	}

	if changed {
		rec.UpdatedAt = now.UTC()
	}
	return changed
}

// NormalizeTags обрезает пробелы, убирает пустые значения и дубликаты,
// сохраняя порядок первого вхождения. Всегда возвращает не-nil срез.
func NormalizeTags(tags []string) []string {
	result := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		result = append(result, t)
	}
	return result
}

// TransitionError — ошибка перехода между состояниями.
type TransitionError struct {
	Code    string // Машиночитаемый код (INVALID_TRANSITION, INVALID_STATE)
	Message string // Человекочитаемое описание
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ParseState преобразует строку в FileState.
func ParseState(s string) (model.FileState, error) {
	st := model.FileState(s)
	if _, ok := validTransitions[st]; !ok {
		return "", fmt.Errorf("недопустимое состояние: %q, допустимые: ready, deleted", s)
	}
	return st, nil
}
