// auth.go — JWT middleware аутентификации пользователя.
// Извлекает Bearer token, проверяет его и помещает Principal в контекст.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/filevault/internal/api/errors"
	"github.com/bigkaa/filevault/internal/auth"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

// ContextKeyPrincipal — аутентифицированный пользователь в контексте запроса.
const ContextKeyPrincipal contextKey = "principal"

// TokenVerifier — проверка токена доступа.
// Реализуется auth.Verifier (HS256 или JWKS).
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Principal, error)
}

// Provisioner — создание учётной записи пользователя при первом запросе.
// Реализуется service.UserService для токенов внешнего IdP.
type Provisioner interface {
	Provision(ctx context.Context, p *auth.Principal) error
}

// JWTAuth — middleware для JWT-аутентификации.
type JWTAuth struct {
	verifier    TokenVerifier
	provisioner Provisioner
	logger      *slog.Logger
}

// NewJWTAuth создаёт JWT middleware.
func NewJWTAuth(verifier TokenVerifier, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		verifier: verifier,
		logger:   logger.With(slog.String("component", "jwt_auth")),
	}
}

// WithProvisioner включает создание учётной записи для каждого
// прошедшего проверку пользователя до вызова обработчика.
func (j *JWTAuth) WithProvisioner(p Provisioner) *JWTAuth {
	j.provisioner = p
	return j
}

// Middleware возвращает HTTP middleware для JWT-аутентификации.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				apierrors.Unauthorized(w, "Пустой Bearer token")
				return
			}

			principal, err := j.verifier.Verify(r.Context(), tokenString)
			if err != nil {
				j.logger.Debug("JWT валидация не пройдена",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			if j.provisioner != nil {
				if err := j.provisioner.Provision(r.Context(), principal); err != nil {
					j.logger.Error("Не удалось подготовить пользователя",
						slog.Int64("user_id", principal.UserID),
						slog.String("error", err.Error()),
					)
					apierrors.InternalError(w, "Внутренняя ошибка сервера")
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// WithPrincipal помещает пользователя в контекст.
func WithPrincipal(ctx context.Context, p *auth.Principal) context.Context {
	return context.WithValue(ctx, ContextKeyPrincipal, p)
}

// PrincipalFromContext извлекает пользователя из контекста запроса.
// Возвращает nil, если запрос не прошёл JWTAuth.
func PrincipalFromContext(ctx context.Context) *auth.Principal {
	p, _ := ctx.Value(ContextKeyPrincipal).(*auth.Principal)
	return p
}
