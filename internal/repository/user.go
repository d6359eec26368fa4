package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/filevault/internal/domain/model"
)

// userRepo — реализация UserStore через pgx.
type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(db DBTX) UserStore {
	return &userRepo{db: db}
}

func (r *userRepo) Create(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (email, pass_hash)
		VALUES ($1, $2)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query, u.Email, u.PasswordHash).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: email %q", ErrConflict, u.Email)
		}
		return fmt.Errorf("ошибка создания пользователя: %w", err)
	}
	return nil
}

// Provision вставляет строку с явным id. Последовательность users_id_seq
// не сдвигается: локальная регистрация при внешнем IdP отключена.
func (r *userRepo) Provision(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (id, email, pass_hash)
		VALUES ($1, $2, '')
		ON CONFLICT (id) DO NOTHING`

	if _, err := r.db.Exec(ctx, query, u.ID, u.Email); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: email %q", ErrConflict, u.Email)
		}
		return fmt.Errorf("ошибка создания пользователя IdP: %w", err)
	}
	return nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, `SELECT id, email, pass_hash, created_at FROM users WHERE email = $1`, email)
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return r.getOne(ctx, `SELECT id, email, pass_hash, created_at FROM users WHERE id = $1`, id)
}

func (r *userRepo) getOne(ctx context.Context, query string, arg any) (*model.User, error) {
	u := &model.User{}
	err := r.db.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return u, nil
}
