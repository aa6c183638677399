package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Session is one authenticated device or browser. Every access token carries
// the session id, and the row is checked on each request.
type Session struct {
	ID             uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	UserID         uuid.UUID  `json:"userId" gorm:"type:uuid;not null;index"`
	User           *User      `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	RefreshTokenID uuid.UUID  `json:"-" gorm:"type:uuid;not null;uniqueIndex"`
	UserAgent      string     `json:"userAgent"`
	IPAddress      string     `json:"ipAddress"`
	ExpiresAt      time.Time  `json:"expiresAt" gorm:"not null"`
	RevokedAt      *time.Time `json:"revokedAt,omitempty" gorm:"index"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func (Session) TableName() string { return "user_sessions" }

func (s *Session) IsRevoked() bool {
	return s.RevokedAt != nil
}

func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionMeta describes the client a session is created for.
type SessionMeta struct {
	UserAgent string
	IPAddress string
}

type AuditLog struct {
	ID        uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	ActorID   string            `json:"actorId" gorm:"index"`
	EventType string            `json:"eventType" gorm:"not null;index"`
	TargetID  string            `json:"targetId" gorm:"index"`
	Metadata  datatypes.JSONMap `json:"metadata"`
	CreatedAt time.Time         `json:"createdAt" gorm:"index"`
}

// PasswordReset is a single-use reset grant. Only the SHA-256 of the emailed
// token is stored.
type PasswordReset struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID  `json:"userId" gorm:"type:uuid;not null;index"`
	TokenHash string     `json:"-" gorm:"not null;uniqueIndex"`
	ExpiresAt time.Time  `json:"expiresAt" gorm:"not null"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

const (
	AuditUserRegistered        = "USER_REGISTERED"
	AuditUserStatusChanged     = "USER_STATUS_CHANGED"
	AuditSessionRevoked        = "SESSION_REVOKED"
	AuditAllSessionsRevoked    = "ALL_SESSIONS_REVOKED"
	AuditRefreshTokenReused    = "REFRESH_TOKEN_REUSED"
	AuditPasswordResetRequest  = "PASSWORD_RESET_REQUESTED"
	AuditPasswordResetComplete = "PASSWORD_RESET"
)
