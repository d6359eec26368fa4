// auth.go — регистрация, вход и профиль текущего пользователя.
package handlers

import (
	"errors"
	"net/http"

	apierrors "github.com/bigkaa/filevault/internal/api/errors"
	"github.com/bigkaa/filevault/internal/api/middleware"
	"github.com/bigkaa/filevault/internal/service"
)

// credentialsRequest — тело register/login.
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// tokenResponse — ответ с токеном доступа.
type tokenResponse struct {
	Token string `json:"token"`
}

// meResponse — профиль текущего пользователя.
type meResponse struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// Register — POST /api/v1/auth/register.
func (h *APIHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	token, err := h.users.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

// Login — POST /api/v1/auth/login.
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	token, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

// Me — GET /api/v1/me.
func (h *APIHandler) Me(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}
	u, err := h.users.Me(r.Context(), p.UserID)
	if err != nil {
		// Токен валиден, но пользователя нет (например, после рестарта с in-memory хранилищем)
		if errors.Is(err, service.ErrNotFound) {
			apierrors.Unauthorized(w, "Пользователь не найден")
			return
		}
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{ID: u.ID, Email: u.Email})
}
