// Пакет filestore — операции с физическими файлами на диске.
// Обеспечивает потоковую запись с ограничением размера, атомарную
// публикацию через temp-файл и rename, чтение и проверку наличия блобов.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// chunkSize — размер буфера потоковой записи.
const chunkSize = 1 << 20

// ThumbSuffix — суффикс ключа превью относительно ключа исходного файла.
const ThumbSuffix = ".thumb.png"

// Ошибки файлового хранилища.
var (
	// ErrEntityTooLarge — поток превысил лимит размера.
	ErrEntityTooLarge = errors.New("превышен максимальный размер файла")
	// ErrIO — ошибка чтения входного потока или записи на диск.
	ErrIO = errors.New("ошибка ввода-вывода")
	// ErrKeyExists — по ключу уже лежит файл.
	ErrKeyExists = errors.New("ключ хранения уже занят")
	// ErrBlobNotFound — файла по ключу нет на диске.
	ErrBlobNotFound = errors.New("файл отсутствует на диске")
)

// FileStore — управление физическими файлами на диске.
type FileStore struct {
	// dataDir — корневая директория хранения файлов (FV_DATA_DIR)
	dataDir string
	// maxBytes — максимальный размер одного файла
	maxBytes int64
}

// New создаёт новый FileStore. Проверяет и создаёт директорию
// если она не существует.
func New(dataDir string, maxBytes int64) (*FileStore, error) {
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("некорректный путь директории данных %s: %w", dataDir, err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", abs, err)
	}

	return &FileStore{dataDir: abs, maxBytes: maxBytes}, nil
}

// Write записывает поток на диск по ключу и возвращает число записанных байт.
//
// Паттерн: temp файл → запись блоками → fsync → atomic rename.
// При превышении лимита чтение прекращается, temp файл удаляется,
// возвращается ErrEntityTooLarge. Любая другая ошибка (включая отмену
// контекста при обрыве соединения) также удаляет temp файл и оборачивает ErrIO.
func (fs *FileStore) Write(ctx context.Context, key string, r io.Reader) (int64, error) {
	fullPath, err := fs.resolve(key)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return 0, fmt.Errorf("%w: создание директории: %v", ErrIO, err)
	}
	if fs.Exists(key) {
		return 0, fmt.Errorf("%w: %s", ErrKeyExists, key)
	}

	tmpPath := fullPath + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return 0, fmt.Errorf("%w: создание временного файла: %v", ErrIO, err)
	}

	size, err := fs.copyLimited(ctx, f, r)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return size, err
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: fsync: %v", ErrIO, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: закрытие файла: %v", ErrIO, err)
	}

	// Атомарный rename
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: атомарное переименование: %v", ErrIO, err)
	}

	return size, nil
}

// copyLimited копирует поток блоками по chunkSize, проверяя лимит
// до записи каждого блока.
func (fs *FileStore) copyLimited(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, chunkSize)
	var size int64

	for {
		if err := ctx.Err(); err != nil {
			return size, fmt.Errorf("%w: запись прервана: %w", ErrIO, err)
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			size += int64(n)
			if fs.maxBytes > 0 && size > fs.maxBytes {
				return size, fmt.Errorf("%w: лимит %d байт", ErrEntityTooLarge, fs.maxBytes)
			}
			if _, err := dst.Write(buf[:n]); err != nil {
				return size, fmt.Errorf("%w: запись данных: %v", ErrIO, err)
			}
		}

		if readErr == io.EOF {
			return size, nil
		}
		if readErr != nil {
			return size, fmt.Errorf("%w: чтение потока: %w", ErrIO, readErr)
		}
	}
}

// WriteAtomic записывает производный файл по ключу через temp файл и rename.
// Существующий файл заменяется. Используется для превью.
func (fs *FileStore) WriteAtomic(key string, write func(w io.Writer) error) error {
	fullPath, err := fs.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return fmt.Errorf("%w: создание директории: %v", ErrIO, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), filepath.Base(fullPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: создание временного файла: %v", ErrIO, err)
	}
	tmpPath := tmp.Name()

	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: fsync: %v", ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: закрытие файла: %v", ErrIO, err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: атомарное переименование: %v", ErrIO, err)
	}
	return nil
}

// Open открывает файл по ключу для чтения.
// Вызывающий код обязан закрыть файл.
func (fs *FileStore) Open(key string) (*os.File, error) {
	fullPath, err := fs.resolve(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, key)
		}
		return nil, fmt.Errorf("%w: открытие файла %s: %v", ErrIO, key, err)
	}
	return f, nil
}

// Exists проверяет существование обычного файла по ключу.
func (fs *FileStore) Exists(key string) bool {
	fullPath, err := fs.resolve(key)
	if err != nil {
		return false
	}
	info, err := os.Stat(fullPath)
	return err == nil && info.Mode().IsRegular()
}

// Remove удаляет файл по ключу. Отсутствие файла ошибкой не считается.
func (fs *FileStore) Remove(key string) error {
	fullPath, err := fs.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: удаление файла %s: %v", ErrIO, key, err)
	}
	return nil
}

// FullPath возвращает абсолютный путь к файлу на диске.
// Ключ должен быть предварительно проверен (получен от keyname).
func (fs *FileStore) FullPath(key string) string {
	return filepath.Join(fs.dataDir, filepath.FromSlash(key))
}

// DataDir возвращает путь к директории данных.
func (fs *FileStore) DataDir() string {
	return fs.dataDir
}

// MaxBytes возвращает лимит размера файла.
func (fs *FileStore) MaxBytes() int64 {
	return fs.maxBytes
}

// ThumbKey возвращает ключ превью для ключа исходного файла.
func ThumbKey(key string) string {
	return key + ThumbSuffix
}

// resolve проверяет ключ и возвращает абсолютный путь внутри dataDir.
// Пустые, абсолютные ключи и ключи с сегментом ".." отклоняются.
func (fs *FileStore) resolve(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.HasPrefix(key, "\\") {
		return "", fmt.Errorf("%w: недопустимый ключ %q", ErrIO, key)
	}
	for _, seg := range strings.Split(filepath.ToSlash(key), "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: недопустимый ключ %q", ErrIO, key)
		}
	}

	fullPath := fs.FullPath(key)
	rel, err := filepath.Rel(fs.dataDir, fullPath)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: ключ %q вне директории данных", ErrIO, key)
	}
	return fullPath, nil
}
