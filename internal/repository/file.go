package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/filevault/internal/domain/model"
)

// fileColumns — список столбцов таблицы files для SELECT-запросов.
const fileColumns = `id, owner_id, storage_key, name, mime, size, tags,
	is_public, state, deleted_at, created_at, updated_at, revision`

// fileRepo — реализация FileRecordStore через pgx.
type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий записей о файлах.
func NewFileRepository(db DBTX) FileRecordStore {
	return &fileRepo{db: db}
}

func (r *fileRepo) Create(ctx context.Context, f *model.FileRecord) error {
	query := `
		INSERT INTO files (id, owner_id, storage_key, name, mime, size, tags,
			is_public, state, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at, revision`

	err := r.db.QueryRow(ctx, query,
		f.ID, f.OwnerID, f.StorageKey, f.Name, f.Mime, f.Size, nonNilTags(f.Tags),
		f.IsPublic, string(f.State), f.DeletedAt,
	).Scan(&f.CreatedAt, &f.UpdatedAt, &f.Revision)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: storage_key %q", ErrConflict, f.StorageKey)
		}
		if isTooLong(err) {
			return fmt.Errorf("%w: %w", ErrInvalidValue, err)
		}
		return fmt.Errorf("ошибка создания записи о файле: %w", err)
	}
	return nil
}

// GetByID возвращает запись по UUID или ErrNotFound.
// Некорректный UUID также даёт ErrNotFound.
func (r *fileRepo) GetByID(ctx context.Context, id string) (*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM files WHERE id = $1`, fileColumns)

	f, err := scanFile(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи о файле: %w", err)
	}
	return f, nil
}

// List выполняет выборку с фильтрами и пагинацией.
// Возвращает (страница, общее количество, ошибка).
func (r *fileRepo) List(ctx context.Context, params ListParams) ([]*model.FileRecord, int, error) {
	params = params.Normalize()

	where, args := buildListWhere(params, 1)
	argNum := len(args) + 1

	dataQuery := fmt.Sprintf(
		`SELECT %s FROM files %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		fileColumns, where, argNum, argNum+1,
	)
	dataArgs := append(append([]any{}, args...), params.PageSize, params.Offset())

	rows, err := r.db.Query(ctx, dataQuery, dataArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка выборки файлов: %w", err)
	}
	defer rows.Close()

	result := make([]*model.FileRecord, 0, params.PageSize)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ошибка сканирования файла: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ошибка итерации результатов: %w", err)
	}

	// Общее количество с теми же фильтрами, без LIMIT/OFFSET
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM files %s`, where)

	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта файлов: %w", err)
	}

	return result, total, nil
}

// Update перезаписывает изменяемые поля: name, tags, is_public, state, deleted_at.
// Строка обновляется, только если её revision совпадает с f.Revision;
// иначе ErrStale (или ErrNotFound, если строки нет).
func (r *fileRepo) Update(ctx context.Context, f *model.FileRecord) error {
	query := `
		UPDATE files
		SET name = $2, tags = $3, is_public = $4, state = $5, deleted_at = $6,
			updated_at = NOW(), revision = revision + 1
		WHERE id = $1 AND revision = $7
		RETURNING updated_at, revision`

	err := r.db.QueryRow(ctx, query,
		f.ID, f.Name, nonNilTags(f.Tags), f.IsPublic, string(f.State), f.DeletedAt, f.Revision,
	).Scan(&f.UpdatedAt, &f.Revision)
	if err != nil {
		switch {
		case isInvalidText(err):
			return ErrNotFound
		case errors.Is(err, pgx.ErrNoRows):
			return r.missOrStale(ctx, f.ID)
		case isTooLong(err):
			return fmt.Errorf("%w: %w", ErrInvalidValue, err)
		}
		return fmt.Errorf("ошибка обновления записи о файле: %w", err)
	}
	return nil
}

// missOrStale различает отсутствующую строку и устаревшую версию.
func (r *fileRepo) missOrStale(ctx context.Context, id string) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM files WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("ошибка проверки записи о файле: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return fmt.Errorf("%w: файл %s", ErrStale, id)
}

// scanFile сканирует строку в FileRecord. Порядок — fileColumns.
func scanFile(row pgx.Row) (*model.FileRecord, error) {
	f := &model.FileRecord{}
	var state string
	var deletedAt *time.Time

	if err := row.Scan(
		&f.ID, &f.OwnerID, &f.StorageKey, &f.Name, &f.Mime, &f.Size, &f.Tags,
		&f.IsPublic, &state, &deletedAt, &f.CreatedAt, &f.UpdatedAt, &f.Revision,
	); err != nil {
		return nil, err
	}
	f.State = model.FileState(state)
	f.DeletedAt = deletedAt
	if f.Tags == nil {
		f.Tags = []string{}
	}
	return f, nil
}

// buildListWhere строит WHERE-условие и аргументы для выборки файлов.
// startArg — номер первого $-параметра.
func buildListWhere(params ListParams, startArg int) (whereClause string, args []any) {
	argNum := startArg

	conditions := []string{fmt.Sprintf("owner_id = $%d", argNum)}
	args = append(args, params.OwnerID)
	argNum++

	// Фильтр по состоянию (значения — из whitelist, без параметров)
	switch params.State {
	case model.FilterDeleted:
		conditions = append(conditions, "state = 'deleted'")
	case model.FilterAll:
	default:
		conditions = append(conditions, "state <> 'deleted'")
	}

	// Подстрока имени без учёта регистра, спецсимволы LIKE экранируются
	if params.Query != "" {
		conditions = append(conditions, fmt.Sprintf(`name ILIKE $%d ESCAPE '\'`, argNum))
		args = append(args, "%"+escapeLike(params.Query)+"%")
		argNum++
	}

	// Точное вхождение тега
	if params.Tag != "" {
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(tags)", argNum))
		args = append(args, params.Tag)
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

// likeEscaper экранирует спецсимволы шаблона LIKE.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// nonNilTags заменяет nil на пустой срез: столбец tags NOT NULL.
func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
