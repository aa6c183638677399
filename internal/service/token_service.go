package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dom/learnhub-api/internal/audit"
	"github.com/dom/learnhub-api/internal/config"
	"github.com/dom/learnhub-api/internal/domain"
	"github.com/dom/learnhub-api/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// SessionClaims are the claims carried by both token kinds. Subject is the
// user id and SessionID the backing session row.
type SessionClaims struct {
	SessionID string `json:"sid"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	UserID           uuid.UUID
	SessionID        uuid.UUID
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Identity is what a successfully authenticated request resolves to.
type Identity struct {
	UserID    uuid.UUID
	SessionID uuid.UUID
	Role      domain.Role
}

func (i *Identity) IsAdmin() bool {
	return i.Role == domain.RoleAdmin
}

// TokenService binds every token to a revocable session row. Tokens are never
// stored; the session row is consulted on every authentication.
type TokenService struct {
	store    repository.Store
	cfg      *config.Config
	audit    audit.Sink
	notifier SessionNotifier
	logger   *slog.Logger
	now      Clock
}

func NewTokenService(store repository.Store, cfg *config.Config, auditSink audit.Sink, notifier SessionNotifier, logger *slog.Logger, clock Clock) *TokenService {
	return &TokenService{
		store:    store,
		cfg:      cfg,
		audit:    orNopSink(auditSink),
		notifier: orNopNotifier(notifier),
		logger:   logger,
		now:      orSystemClock(clock),
	}
}

// IssueSessionTokens creates a new session for user and signs a token pair
// bound to it. The owner row is locked so a concurrent deactivation cannot
// slip between the status check and the insert.
func (s *TokenService) IssueSessionTokens(ctx context.Context, user *domain.User, meta domain.SessionMeta) (*TokenPair, error) {
	now := s.now()
	session := &domain.Session{
		ID:             uuid.New(),
		UserID:         user.ID,
		RefreshTokenID: uuid.New(),
		UserAgent:      truncate(meta.UserAgent, 512),
		IPAddress:      truncate(meta.IPAddress, 64),
		ExpiresAt:      now.Add(s.cfg.RefreshTokenTTL),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.store.Transaction(ctx, func(repos *repository.Repositories) error {
		owner, err := repos.User.GetByIDForUpdate(ctx, user.ID)
		if err != nil {
			return err
		}
		if !owner.Status.IsActive() {
			return fmt.Errorf("%w: status %s", domain.ErrUserInactive, owner.Status)
		}
		return repos.Session.Create(ctx, session)
	})
	if err != nil {
		return nil, err
	}

	return s.signPair(user.ID, session, now)
}

// RotateSessionTokens exchanges a refresh token for a new pair on the same
// session. The previous refresh token stops working the moment the swap
// commits; presenting it again revokes the whole session.
func (s *TokenService) RotateSessionTokens(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.parse(refreshToken, s.cfg.JWTRefreshSecret, tokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	userID, sessionID, err := claimIDs(claims)
	if err != nil {
		return nil, err
	}
	presentedID, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed jti", domain.ErrInvalidToken)
	}

	now := s.now()
	var (
		rotated *domain.Session
		reused  bool
	)
	err = s.store.Transaction(ctx, func(repos *repository.Repositories) error {
		session, err := repos.Session.GetWithUserForUpdate(ctx, sessionID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("%w: session %s not found", domain.ErrInvalidSession, sessionID)
			}
			return err
		}
		if session.UserID != userID {
			return fmt.Errorf("%w: subject mismatch", domain.ErrInvalidSession)
		}
		if session.IsRevoked() {
			return fmt.Errorf("%w: session %s revoked", domain.ErrInvalidSession, sessionID)
		}
		if session.IsExpired(now) {
			return fmt.Errorf("%w: session %s expired", domain.ErrTokenExpired, sessionID)
		}
		if !session.User.Status.IsActive() {
			return fmt.Errorf("%w: status %s", domain.ErrUserInactive, session.User.Status)
		}

		if session.RefreshTokenID != presentedID {
			// A superseded refresh token is being replayed. Kill the session
			// so neither holder can continue with it.
			if _, err := repos.Session.Revoke(ctx, sessionID, now); err != nil {
				return err
			}
			reused = true
			return nil
		}

		newTokenID := uuid.New()
		expiresAt := now.Add(s.cfg.RefreshTokenTTL)
		ok, err := repos.Session.RotateRefreshToken(ctx, sessionID, presentedID, newTokenID, expiresAt, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: refresh token already rotated", domain.ErrInvalidSession)
		}

		session.RefreshTokenID = newTokenID
		session.ExpiresAt = expiresAt
		rotated = session
		return nil
	})
	if err != nil {
		return nil, err
	}

	if reused {
		s.logger.WarnContext(ctx, "refresh token reuse detected, session revoked",
			"user_id", userID, "session_id", sessionID)
		s.record(ctx, audit.Event{
			ActorID:   audit.SystemActor,
			EventType: domain.AuditRefreshTokenReused,
			TargetID:  userID.String(),
			Metadata:  map[string]any{"sessionId": sessionID.String()},
		})
		s.notifier.SessionsRevoked(userID, []uuid.UUID{sessionID})
		return nil, fmt.Errorf("%w: refresh token reused", domain.ErrInvalidSession)
	}

	return s.signPair(userID, rotated, now)
}

// RevokeSession marks the session revoked. Revoking an already revoked
// session is a no-op and keeps the original revocation time.
func (s *TokenService) RevokeSession(ctx context.Context, sessionID uuid.UUID) error {
	_, err := s.revokeSession(ctx, sessionID)
	return err
}

func (s *TokenService) revokeSession(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error) {
	repos := s.store.Repos()

	session, err := repos.Session.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	changed, err := repos.Session.Revoke(ctx, sessionID, s.now())
	if err != nil {
		return nil, err
	}
	if changed {
		s.notifier.SessionsRevoked(session.UserID, []uuid.UUID{sessionID})
	}
	return session, nil
}

// RevokeAllSessions revokes every live session of the user and returns how
// many were revoked.
func (s *TokenService) RevokeAllSessions(ctx context.Context, userID uuid.UUID) (int, error) {
	ids, err := s.store.Repos().Session.RevokeAllForUser(ctx, userID, s.now())
	if err != nil {
		return 0, err
	}
	if len(ids) > 0 {
		s.notifier.SessionsRevoked(userID, ids)
	}
	return len(ids), nil
}

// Authenticate verifies an access token and the session behind it. Signature
// and expiry are checked first, then the session row and its owner are read
// from the database; nothing about session validity is cached.
func (s *TokenService) Authenticate(ctx context.Context, accessToken string) (*Identity, error) {
	claims, err := s.parse(accessToken, s.cfg.JWTSecret, tokenTypeAccess)
	if err != nil {
		return nil, err
	}
	userID, sessionID, err := claimIDs(claims)
	if err != nil {
		return nil, err
	}

	session, err := s.store.Repos().Session.GetWithUser(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: session %s not found", domain.ErrInvalidSession, sessionID)
		}
		return nil, err
	}
	if session.UserID != userID {
		return nil, fmt.Errorf("%w: subject mismatch", domain.ErrInvalidToken)
	}
	if session.IsRevoked() {
		return nil, fmt.Errorf("%w: session %s", domain.ErrSessionRevoked, sessionID)
	}
	if session.IsExpired(s.now()) {
		return nil, fmt.Errorf("%w: session %s", domain.ErrSessionExpired, sessionID)
	}
	if !session.User.Status.IsActive() {
		return nil, fmt.Errorf("%w: status %s", domain.ErrUserInactive, session.User.Status)
	}

	return &Identity{
		UserID:    userID,
		SessionID: sessionID,
		Role:      session.User.Role,
	}, nil
}

func (s *TokenService) signPair(userID uuid.UUID, session *domain.Session, now time.Time) (*TokenPair, error) {
	accessExp := now.Add(s.cfg.AccessTokenTTL)
	if accessExp.After(session.ExpiresAt) {
		accessExp = session.ExpiresAt
	}

	access, err := s.sign(SessionClaims{
		SessionID: session.ID.String(),
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExp),
		},
	}, s.cfg.JWTSecret)
	if err != nil {
		return nil, err
	}

	refresh, err := s.sign(SessionClaims{
		SessionID: session.ID.String(),
		TokenType: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.RefreshTokenID.String(),
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}, s.cfg.JWTRefreshSecret)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		UserID:           userID,
		SessionID:        session.ID,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: session.ExpiresAt,
	}, nil
}

func (s *TokenService) sign(claims SessionClaims, secret string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func (s *TokenService) parse(tokenString, secret, wantType string) (*SessionClaims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty token", domain.ErrInvalidToken)
	}

	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", domain.ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if claims.TokenType != wantType {
		return nil, fmt.Errorf("%w: expected %s token", domain.ErrInvalidToken, wantType)
	}
	return claims, nil
}

func claimIDs(claims *SessionClaims) (userID, sessionID uuid.UUID, err error) {
	userID, err = uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: malformed sub", domain.ErrInvalidToken)
	}
	sessionID, err = uuid.Parse(claims.SessionID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: malformed sid", domain.ErrInvalidToken)
	}
	return userID, sessionID, nil
}

func (s *TokenService) record(ctx context.Context, event audit.Event) {
	recordAudit(ctx, s.audit, s.logger, s.now, event)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
