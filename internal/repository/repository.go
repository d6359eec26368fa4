// Пакет repository — слой доступа к метаданным файлов и пользователям.
// Основная реализация — чистый SQL через pgx без ORM; in-memory
// реализация используется в тестах и в режиме FV_STORAGE_BACKEND=memory.
// Репозитории не проверяют владельца записи: это делает сервисный слой.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bigkaa/filevault/internal/domain/model"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — нарушение уникальности (дублирующийся ключ или email).
	ErrConflict = errors.New("конфликт уникальности")
	// ErrStale — запись изменена после чтения, Update отклонён.
	ErrStale = errors.New("запись изменена параллельно")
	// ErrInvalidValue — значение не помещается в столбец.
	ErrInvalidValue = errors.New("недопустимое значение поля")
)

// Границы пагинации.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ListParams — параметры выборки файлов владельца.
type ListParams struct {
	// OwnerID — владелец, обязательный фильтр
	OwnerID int64
	// Query — подстрока имени файла без учёта регистра (пусто — без фильтра)
	Query string
	// Tag — точное вхождение тега (пусто — без фильтра)
	Tag string
	// State — режим выборки по состоянию
	State model.StateFilter
	// Page — номер страницы, начиная с 1
	Page int
	// PageSize — размер страницы в диапазоне [1, MaxPageSize]
	PageSize int
}

// Normalize приводит параметры пагинации и состояния к допустимым значениям.
func (p ListParams) Normalize() ListParams {
	if p.Page < 1 {
		p.Page = 1
	}
	switch {
	case p.PageSize < 1:
		p.PageSize = DefaultPageSize
	case p.PageSize > MaxPageSize:
		p.PageSize = MaxPageSize
	}
	if _, ok := model.ParseStateFilter(string(p.State)); !ok || p.State == "" {
		p.State = model.FilterActive
	}
	return p
}

// Offset возвращает смещение первой записи страницы.
func (p ListParams) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// FileRecordStore — CRUD и постраничная выборка записей о файлах.
type FileRecordStore interface {
	// Create сохраняет новую запись. ErrConflict при совпадении storage_key или id.
	// Заполняет CreatedAt и UpdatedAt.
	Create(ctx context.Context, f *model.FileRecord) error
	// GetByID возвращает запись или ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.FileRecord, error)
	// List возвращает страницу записей владельца и общее число совпадений.
	// Порядок: created_at DESC, id DESC.
	List(ctx context.Context, params ListParams) ([]*model.FileRecord, int, error)
	// Update перезаписывает изменяемые поля записи, обновляет UpdatedAt
	// и увеличивает Revision. Запись, изменённая после чтения (Revision
	// не совпадает), не перезаписывается: ErrStale.
	Update(ctx context.Context, f *model.FileRecord) error
}

// UserStore — хранилище пользователей.
type UserStore interface {
	// Create сохраняет пользователя. ErrConflict при занятом email.
	// Заполняет ID и CreatedAt.
	Create(ctx context.Context, u *model.User) error
	// GetByEmail возвращает пользователя по email или ErrNotFound.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// GetByID возвращает пользователя по ID или ErrNotFound.
	GetByID(ctx context.Context, id int64) (*model.User, error)
	// Provision создаёт пользователя внешнего IdP с заданным ID без пароля.
	// Существующий пользователь с этим ID не меняется. ErrConflict, если
	// email занят другим пользователем.
	Provision(ctx context.Context, u *model.User) error
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// isInvalidText проверяет ошибку разбора значения (например, некорректный UUID).
func isInvalidText(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "22P02" // invalid_text_representation
	}
	return false
}

// isTooLong проверяет ошибку string_data_right_truncation.
func isTooLong(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "22001" // string_data_right_truncation
	}
	return false
}
