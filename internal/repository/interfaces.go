package repository

import (
	"context"
	"time"

	"github.com/dom/learnhub-api/internal/domain"
	"github.com/google/uuid"
)

// Lookups that find nothing return an error wrapping domain.ErrNotFound.

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// GetByIDForUpdate reads the user under a row lock; only meaningful inside a transaction.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.User, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.UserStatus, now time.Time) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, now time.Time) error
}

type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	// GetWithUser loads the session joined with its owning user.
	GetWithUser(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	// GetWithUserForUpdate is GetWithUser holding a lock on the session row.
	GetWithUserForUpdate(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Session, error)
	ListActiveByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Session, error)
	// RotateRefreshToken swaps the refresh token id only if it still equals
	// oldTokenID and the session is not revoked. It reports whether the swap happened.
	RotateRefreshToken(ctx context.Context, id, oldTokenID, newTokenID uuid.UUID, expiresAt, now time.Time) (bool, error)
	// Revoke sets revoked_at when it is still null. It reports whether a row changed.
	Revoke(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	// RevokeAllForUser revokes every non-revoked session of the user and
	// returns the ids it revoked.
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]uuid.UUID, error)
}

type AuditLogRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
	List(ctx context.Context, filter AuditLogFilter) ([]*domain.AuditLog, error)
}

type AuditLogFilter struct {
	TargetID  string
	EventType string
	Limit     int
}

type PasswordResetRepository interface {
	Create(ctx context.Context, reset *domain.PasswordReset) error
	GetByTokenHashForUpdate(ctx context.Context, tokenHash string) (*domain.PasswordReset, error)
	MarkUsed(ctx context.Context, id uuid.UUID, now time.Time) error
}

type Repositories struct {
	User          UserRepository
	Session       SessionRepository
	AuditLog      AuditLogRepository
	PasswordReset PasswordResetRepository
}

// Store gives access to repositories bound either to the connection pool or
// to a single transaction.
type Store interface {
	Repos() *Repositories
	// Transaction runs fn with repositories bound to one transaction. The
	// transaction commits if fn returns nil and rolls back otherwise.
	Transaction(ctx context.Context, fn func(repos *Repositories) error) error
	Ping(ctx context.Context) error
}
