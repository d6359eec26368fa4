// users.go — регистрация, вход и профиль пользователя.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/bigkaa/filevault/internal/auth"
	"github.com/bigkaa/filevault/internal/domain/model"
	"github.com/bigkaa/filevault/internal/repository"
)

// provisionedCacheSize — сколько ID пользователей IdP помнить как уже созданных.
const provisionedCacheSize = 4096

// UserService — сервис учётных записей пользователей.
type UserService struct {
	users       repository.UserStore
	issuer      *auth.Issuer
	provisioned *lru.Cache[int64, struct{}]
	logger      *slog.Logger
}

// NewUserService создаёт сервис пользователей. issuer = nil отключает
// регистрацию и вход: токены выдаёт внешний IdP.
func NewUserService(users repository.UserStore, issuer *auth.Issuer, logger *slog.Logger) *UserService {
	provisioned, _ := lru.New[int64, struct{}](provisionedCacheSize)
	return &UserService{
		users:       users,
		issuer:      issuer,
		provisioned: provisioned,
		logger:      logger.With(slog.String("component", "user_service")),
	}
}

// LocalAuth сообщает, выдаёт ли сервис собственные токены.
func (s *UserService) LocalAuth() bool {
	return s.issuer != nil
}

// Register создаёт пользователя и возвращает токен доступа.
// Email приводится к нижнему регистру; занятый email даёт ErrConflict.
func (s *UserService) Register(ctx context.Context, email, password string) (string, error) {
	if !s.LocalAuth() {
		return "", ErrLocalAuthDisabled
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return "", err
	}
	if err := auth.ValidatePassword(password); err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", err
	}
	u := &model.User{Email: email, PasswordHash: hash}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return "", fmt.Errorf("%w: email %s уже зарегистрирован", ErrConflict, email)
		}
		return "", fmt.Errorf("создание пользователя: %w", err)
	}

	s.logger.Info("Пользователь зарегистрирован", slog.Int64("user_id", u.ID))
	return s.issuer.Issue(u.ID, u.Email)
}

// Login проверяет учётные данные и возвращает токен доступа.
// Неизвестный email и неверный пароль неразличимы: ErrUnauthorized.
func (s *UserService) Login(ctx context.Context, email, password string) (string, error) {
	if !s.LocalAuth() {
		return "", ErrLocalAuthDisabled
	}
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrUnauthorized
		}
		return "", fmt.Errorf("поиск пользователя: %w", err)
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		s.logger.Debug("Неверный пароль", slog.Int64("user_id", u.ID))
		return "", ErrUnauthorized
	}
	return s.issuer.Issue(u.ID, u.Email)
}

// Me возвращает пользователя по ID из токена.
func (s *UserService) Me(ctx context.Context, userID int64) (*model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	return u, nil
}

// Provision создаёт учётную запись пользователя внешнего IdP при первом
// запросе, чтобы его файлы могли ссылаться на владельца. Без email в
// токене используется служебный адрес idp-{id}@users.invalid.
func (s *UserService) Provision(ctx context.Context, p *auth.Principal) error {
	if s.provisioned.Contains(p.UserID) {
		return nil
	}

	email := strings.ToLower(strings.TrimSpace(p.Email))
	if email == "" {
		email = fmt.Sprintf("idp-%d@users.invalid", p.UserID)
	}
	if err := s.users.Provision(ctx, &model.User{ID: p.UserID, Email: email}); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("%w: email %s занят другим пользователем", ErrConflict, email)
		}
		return fmt.Errorf("создание пользователя IdP: %w", err)
	}

	s.provisioned.Add(p.UserID, struct{}{})
	s.logger.Debug("Пользователь IdP подготовлен", slog.Int64("user_id", p.UserID))
	return nil
}

// normalizeEmail проверяет адрес и приводит его к нижнему регистру.
// Допускается только голый адрес, без отображаемого имени.
func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", fmt.Errorf("%w: некорректный email", ErrValidation)
	}
	return strings.ToLower(addr.Address), nil
}
