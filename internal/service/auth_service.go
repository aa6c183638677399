package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dom/learnhub-api/internal/audit"
	"github.com/dom/learnhub-api/internal/config"
	"github.com/dom/learnhub-api/internal/domain"
	"github.com/dom/learnhub-api/internal/mailer"
	"github.com/dom/learnhub-api/internal/repository"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// AuthService owns the account side of sessions: credentials, logout and
// password resets. Token mechanics live in TokenService.
type AuthService struct {
	store  repository.Store
	tokens *TokenService
	cfg    *config.Config
	audit  audit.Sink
	mailer mailer.Sender
	logger *slog.Logger
	now    Clock
}

func NewAuthService(store repository.Store, tokens *TokenService, cfg *config.Config, auditSink audit.Sink, mail mailer.Sender, logger *slog.Logger, clock Clock) *AuthService {
	return &AuthService{
		store:  store,
		tokens: tokens,
		cfg:    cfg,
		audit:  orNopSink(auditSink),
		mailer: mail,
		logger: logger,
		now:    orSystemClock(clock),
	}
}

type RegisterInput struct {
	Email       string
	DisplayName string
	Password    string
}

type LoginInput struct {
	Email    string
	Password string
}

type AuthResult struct {
	User   *domain.User
	Tokens *TokenPair
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput, meta domain.SessionMeta) (*AuthResult, error) {
	repos := s.store.Repos()

	_, err := repos.User.GetByEmail(ctx, input.Email)
	if err == nil {
		return nil, domain.ErrEmailExists
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        input.Email,
		DisplayName:  strings.TrimSpace(input.DisplayName),
		PasswordHash: string(hashedPassword),
		Role:         domain.RoleUser,
		Status:       domain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := repos.User.Create(ctx, user); err != nil {
		// Lost a race with another registration for the same address.
		if _, lookupErr := repos.User.GetByEmail(ctx, input.Email); lookupErr == nil {
			return nil, domain.ErrEmailExists
		}
		return nil, err
	}

	s.record(ctx, audit.Event{
		ActorID:   user.ID.String(),
		EventType: domain.AuditUserRegistered,
		TargetID:  user.ID.String(),
	})

	pair, err := s.tokens.IssueSessionTokens(ctx, user, meta)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Tokens: pair}, nil
}

func (s *AuthService) Login(ctx context.Context, input LoginInput, meta domain.SessionMeta) (*AuthResult, error) {
	user, err := s.store.Repos().User.GetByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	if !user.Status.IsActive() {
		return nil, fmt.Errorf("%w: status %s", domain.ErrUserInactive, user.Status)
	}

	pair, err := s.tokens.IssueSessionTokens(ctx, user, meta)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Tokens: pair}, nil
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	pair, err := s.tokens.RotateSessionTokens(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.store.Repos().User.GetByID(ctx, pair.UserID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Tokens: pair}, nil
}

func (s *AuthService) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.store.Repos().User.GetByID(ctx, id)
}

// Logout revokes the caller's current session only.
func (s *AuthService) Logout(ctx context.Context, identity *Identity) error {
	if err := s.tokens.RevokeSession(ctx, identity.SessionID); err != nil {
		return err
	}
	s.record(ctx, audit.Event{
		ActorID:   identity.UserID.String(),
		EventType: domain.AuditSessionRevoked,
		TargetID:  identity.UserID.String(),
		Metadata:  map[string]any{"sessionId": identity.SessionID.String(), "reason": "logout"},
	})
	return nil
}

// LogoutAll revokes every live session of the user, the current one included.
func (s *AuthService) LogoutAll(ctx context.Context, actorID string, userID uuid.UUID) (int, error) {
	n, err := s.tokens.RevokeAllSessions(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.record(ctx, audit.Event{
		ActorID:   actorID,
		EventType: domain.AuditAllSessionsRevoked,
		TargetID:  userID.String(),
		Metadata:  map[string]any{"revokedSessions": n},
	})
	return n, nil
}

func (s *AuthService) ListSessions(ctx context.Context, userID uuid.UUID) ([]*domain.Session, error) {
	return s.store.Repos().Session.ListByUserID(ctx, userID)
}

// RevokeUserSession revokes sessionID on behalf of actorID. When ownerID is
// not uuid.Nil the session must belong to that user; sessions of other users
// are reported as not found.
func (s *AuthService) RevokeUserSession(ctx context.Context, actorID string, ownerID, sessionID uuid.UUID) error {
	session, err := s.store.Repos().Session.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if ownerID != uuid.Nil && session.UserID != ownerID {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}

	if err := s.tokens.RevokeSession(ctx, sessionID); err != nil {
		return err
	}
	s.record(ctx, audit.Event{
		ActorID:   actorID,
		EventType: domain.AuditSessionRevoked,
		TargetID:  session.UserID.String(),
		Metadata:  map[string]any{"sessionId": sessionID.String()},
	})
	return nil
}

// RequestPasswordReset emails a single-use reset token. Unknown addresses
// succeed silently so the endpoint cannot be used to probe for accounts.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.store.Repos().User.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	rawToken := uuid.NewString() + uuid.NewString()
	now := s.now()
	reset := &domain.PasswordReset{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: hashResetToken(rawToken),
		ExpiresAt: now.Add(s.cfg.PasswordResetTTL),
		CreatedAt: now,
	}
	if err := s.store.Repos().PasswordReset.Create(ctx, reset); err != nil {
		return err
	}

	link := fmt.Sprintf("%s/reset-password?token=%s", strings.TrimRight(s.cfg.PublicURL, "/"), rawToken)
	err = s.mailer.Send(ctx, mailer.Message{
		To:      user.Email,
		Subject: "Reset your password",
		Body: fmt.Sprintf("Hi %s,\n\nUse the link below to choose a new password. It expires in %s.\n\n%s\n",
			user.DisplayName, s.cfg.PasswordResetTTL, link),
	})
	if err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}

	s.record(ctx, audit.Event{
		ActorID:   user.ID.String(),
		EventType: domain.AuditPasswordResetRequest,
		TargetID:  user.ID.String(),
	})
	return nil
}

// ResetPassword consumes a reset token, sets the new password and revokes
// every session of the user, all in one transaction.
func (s *AuthService) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cfg.BcryptCost)
	if err != nil {
		return err
	}

	now := s.now()
	var (
		userID  uuid.UUID
		revoked []uuid.UUID
	)
	err = s.store.Transaction(ctx, func(repos *repository.Repositories) error {
		reset, err := repos.PasswordReset.GetByTokenHashForUpdate(ctx, hashResetToken(rawToken))
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrInvalidResetToken
			}
			return err
		}
		if reset.UsedAt != nil || !now.Before(reset.ExpiresAt) {
			return domain.ErrInvalidResetToken
		}

		if err := repos.User.UpdatePassword(ctx, reset.UserID, string(hashedPassword), now); err != nil {
			return err
		}
		if err := repos.PasswordReset.MarkUsed(ctx, reset.ID, now); err != nil {
			return err
		}
		ids, err := repos.Session.RevokeAllForUser(ctx, reset.UserID, now)
		if err != nil {
			return err
		}

		userID = reset.UserID
		revoked = ids
		return nil
	})
	if err != nil {
		return err
	}

	if len(revoked) > 0 {
		s.tokens.notifier.SessionsRevoked(userID, revoked)
	}
	s.record(ctx, audit.Event{
		ActorID:   userID.String(),
		EventType: domain.AuditPasswordResetComplete,
		TargetID:  userID.String(),
		Metadata:  map[string]any{"revokedSessions": len(revoked)},
	})
	return nil
}

func (s *AuthService) record(ctx context.Context, event audit.Event) {
	recordAudit(ctx, s.audit, s.logger, s.now, event)
}

func hashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
