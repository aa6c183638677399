package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/dom/learnhub-api/internal/api/middleware"
	"github.com/dom/learnhub-api/internal/api/respond"
	"github.com/dom/learnhub-api/internal/config"
	"github.com/dom/learnhub-api/internal/domain"
	"github.com/dom/learnhub-api/internal/service"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

const refreshTokenCookie = "refresh_token"

type AuthHandler struct {
	authService *service.AuthService
	cfg         *config.Config
}

func NewAuthHandler(authService *service.AuthService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{authService: authService, cfg: cfg}
}

type RegisterRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
}

func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.DisplayName, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 72)),
	)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// RefreshRequest may be empty when the refresh token travels as a cookie.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (r RefreshRequest) Validate() error { return nil }

type PasswordResetRequest struct {
	Email string `json:"email"`
}

func (r PasswordResetRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

type PasswordResetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (r PasswordResetConfirmRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(8, 72)),
	)
}

type AuthResponse struct {
	User             UserResponse `json:"user"`
	AccessToken      string       `json:"accessToken"`
	RefreshToken     string       `json:"refreshToken"`
	SessionID        string       `json:"sessionId"`
	AccessExpiresAt  time.Time    `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time    `json:"refreshExpiresAt"`
}

type UserResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
	Status      string `json:"status"`
}

type SessionResponse struct {
	ID        string     `json:"id"`
	UserAgent string     `json:"userAgent"`
	IPAddress string     `json:"ipAddress"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
	Current   bool       `json:"current"`
}

type RevokedCountResponse struct {
	RevokedSessions int `json:"revokedSessions"`
}

func toUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:          u.ID.String(),
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        string(u.Role),
		Status:      string(u.Status),
	}
}

func toSessionResponses(sessions []*domain.Session, current string) []SessionResponse {
	resp := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, SessionResponse{
			ID:        s.ID.String(),
			UserAgent: s.UserAgent,
			IPAddress: s.IPAddress,
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
			RevokedAt: s.RevokedAt,
			Current:   s.ID.String() == current,
		})
	}
	return resp
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.authService.Register(r.Context(), service.RegisterInput{
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Password:    req.Password,
	}, sessionMeta(r))
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	h.writeAuthResult(w, http.StatusCreated, result)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.authService.Login(r.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	}, sessionMeta(r))
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	h.writeAuthResult(w, http.StatusOK, result)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if r.ContentLength != 0 {
		if !decodeAndValidate(w, r, &req) {
			return
		}
	}

	token := strings.TrimSpace(req.RefreshToken)
	if token == "" {
		if cookie, err := r.Cookie(refreshTokenCookie); err == nil {
			token = cookie.Value
		}
	}
	if token == "" {
		respond.ValidationFailed(w, map[string]string{"refreshToken": "cannot be blank"})
		return
	}

	result, err := h.authService.Refresh(r.Context(), token)
	if err != nil {
		h.clearCookies(w)
		respond.Error(w, r, err)
		return
	}

	h.writeAuthResult(w, http.StatusOK, result)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respond.Fail(w, http.StatusUnauthorized, respond.CodeUnauthorized, "Authorization required")
		return
	}

	user, err := h.authService.GetUserByID(r.Context(), userID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toUserResponse(user))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		respond.Fail(w, http.StatusUnauthorized, respond.CodeUnauthorized, "Authorization required")
		return
	}

	if err := h.authService.Logout(r.Context(), identity); err != nil {
		respond.Error(w, r, err)
		return
	}

	h.clearCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		respond.Fail(w, http.StatusUnauthorized, respond.CodeUnauthorized, "Authorization required")
		return
	}

	n, err := h.authService.LogoutAll(r.Context(), identity.UserID.String(), identity.UserID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	h.clearCookies(w)
	respond.JSON(w, http.StatusOK, RevokedCountResponse{RevokedSessions: n})
}

func (h *AuthHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		respond.Fail(w, http.StatusUnauthorized, respond.CodeUnauthorized, "Authorization required")
		return
	}

	sessions, err := h.authService.ListSessions(r.Context(), identity.UserID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toSessionResponses(sessions, identity.SessionID.String()))
}

func (h *AuthHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		respond.Fail(w, http.StatusUnauthorized, respond.CodeUnauthorized, "Authorization required")
		return
	}

	sessionID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.authService.RevokeUserSession(r.Context(), identity.UserID.String(), identity.UserID, sessionID); err != nil {
		respond.Error(w, r, err)
		return
	}

	if sessionID == identity.SessionID {
		h.clearCookies(w)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.authService.RequestPasswordReset(r.Context(), req.Email); err != nil {
		respond.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (h *AuthHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetConfirmRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.authService.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		respond.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) writeAuthResult(w http.ResponseWriter, status int, result *service.AuthResult) {
	pair := result.Tokens
	h.setCookie(w, middleware.AccessTokenCookie, pair.AccessToken, "/", pair.AccessExpiresAt)
	h.setCookie(w, refreshTokenCookie, pair.RefreshToken, h.refreshCookiePath(), pair.RefreshExpiresAt)

	respond.JSON(w, status, AuthResponse{
		User:             toUserResponse(result.User),
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		SessionID:        pair.SessionID.String(),
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	})
}

func (h *AuthHandler) refreshCookiePath() string {
	return h.cfg.APIPrefix + "/auth"
}

func (h *AuthHandler) setCookie(w http.ResponseWriter, name, value, path string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearCookies(w http.ResponseWriter) {
	for name, path := range map[string]string{
		middleware.AccessTokenCookie: "/",
		refreshTokenCookie:           h.refreshCookiePath(),
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     path,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.cfg.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
