package domain

import (
	"time"

	"github.com/google/uuid"
)

type UserStatus string

const (
	UserStatusActive   UserStatus = "ACTIVE"
	UserStatusInactive UserStatus = "INACTIVE"
	UserStatusLocked   UserStatus = "LOCKED"
	UserStatusInvited  UserStatus = "INVITED"
	UserStatusPending  UserStatus = "PENDING"
)

// IsValid reports whether s is one of the known lifecycle states.
func (s UserStatus) IsValid() bool {
	switch s {
	case UserStatusActive, UserStatusInactive, UserStatusLocked, UserStatusInvited, UserStatusPending:
		return true
	}
	return false
}

// IsActive reports whether sessions of a user in this state may authorize requests.
func (s UserStatus) IsActive() bool {
	return s == UserStatusActive
}

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

type User struct {
	ID           uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Email        string     `json:"email" gorm:"uniqueIndex;not null"`
	DisplayName  string     `json:"displayName" gorm:"not null"`
	PasswordHash string     `json:"-" gorm:"not null"`
	Role         Role       `json:"role" gorm:"type:varchar(16);not null;default:USER"`
	Status       UserStatus `json:"status" gorm:"type:varchar(16);not null;default:ACTIVE;index"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
