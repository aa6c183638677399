package postgres

import (
	"context"
	"time"

	"github.com/dom/learnhub-api/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type sessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *sessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, session *domain.Session) error {
	return r.db.WithContext(ctx).Omit("User").Create(session).Error
}

func (r *sessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	var session domain.Session
	err := r.db.WithContext(ctx).First(&session, "id = ?", id).Error
	if err != nil {
		return nil, translate(err, "session")
	}
	return &session, nil
}

// GetWithUser reads user_sessions LEFT JOIN users in a single statement so the
// session and its owner come from the same snapshot.
func (r *sessionRepository) GetWithUser(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	return r.getWithUser(r.db.WithContext(ctx), id)
}

func (r *sessionRepository) GetWithUserForUpdate(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	return r.getWithUser(r.db.WithContext(ctx).Clauses(clause.Locking{
		Strength: "UPDATE",
		Table:    clause.Table{Name: clause.CurrentTable},
	}), id)
}

func (r *sessionRepository) getWithUser(db *gorm.DB, id uuid.UUID) (*domain.Session, error) {
	var session domain.Session
	err := db.Joins("User").
		Where("user_sessions.id = ?", id).
		Take(&session).Error
	if err != nil {
		return nil, translate(err, "session")
	}
	if session.User == nil || session.User.ID == uuid.Nil {
		return nil, translate(gorm.ErrRecordNotFound, "session owner")
	}
	return &session, nil
}

func (r *sessionRepository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Session, error) {
	var sessions []*domain.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&sessions).Error
	return sessions, err
}

func (r *sessionRepository) ListActiveByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Session, error) {
	var sessions []*domain.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Order("created_at DESC").
		Find(&sessions).Error
	return sessions, err
}

func (r *sessionRepository) RotateRefreshToken(ctx context.Context, id, oldTokenID, newTokenID uuid.UUID, expiresAt, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ? AND refresh_token_id = ? AND revoked_at IS NULL", id, oldTokenID).
		Updates(map[string]interface{}{
			"refresh_token_id": newTokenID,
			"expires_at":       expiresAt,
			"updated_at":       now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *sessionRepository) Revoke(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Updates(map[string]interface{}{"revoked_at": now, "updated_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *sessionRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]uuid.UUID, error) {
	db := r.db.WithContext(ctx)

	var ids []uuid.UUID
	err := db.Model(&domain.Session{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	err = db.Model(&domain.Session{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Updates(map[string]interface{}{"revoked_at": now, "updated_at": now}).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
