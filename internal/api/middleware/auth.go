package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/dom/learnhub-api/internal/api/respond"
	"github.com/dom/learnhub-api/internal/domain"
	"github.com/dom/learnhub-api/internal/logging"
	"github.com/dom/learnhub-api/internal/service"
	"github.com/google/uuid"
)

type contextKey string

const (
	IdentityKey contextKey = "identity"

	// AccessTokenCookie is set at login and accepted when no Authorization
	// header is present.
	AccessTokenCookie = "access_token"
)

// Authenticator resolves an access token to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*service.Identity, error)
}

// Auth rejects requests without a valid, non-revoked session and stores the
// resolved identity in the request context.
func Auth(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := logging.FromContext(r.Context())

			token, ok := extractToken(r)
			if !ok {
				logger.Warn("missing or malformed credentials")
				respond.Fail(w, http.StatusUnauthorized, respond.CodeUnauthorized, "Authorization required")
				return
			}

			identity, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				logger.Warn("authentication failed", "code", domain.CodeOf(err), "error", err)
				respond.Error(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), IdentityKey, identity)
			ctx = logging.IntoContext(ctx, logger.With("user_id", identity.UserID, "session_id", identity.SessionID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin must run after Auth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := GetIdentity(r.Context())
		if !ok || !identity.IsAdmin() {
			respond.Error(w, r, domain.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractToken(r *http.Request) (string, bool) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", false
		}
		return strings.TrimSpace(parts[1]), true
	}

	if cookie, err := r.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	return "", false
}

func GetIdentity(ctx context.Context) (*service.Identity, bool) {
	identity, ok := ctx.Value(IdentityKey).(*service.Identity)
	return identity, ok
}

func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	identity, ok := GetIdentity(ctx)
	if !ok {
		return uuid.Nil, false
	}
	return identity.UserID, true
}
