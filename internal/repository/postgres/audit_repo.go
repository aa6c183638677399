package postgres

import (
	"context"

	"github.com/dom/learnhub-api/internal/domain"
	"github.com/dom/learnhub-api/internal/repository"
	"gorm.io/gorm"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

type auditLogRepository struct {
	db *gorm.DB
}

func NewAuditLogRepository(db *gorm.DB) *auditLogRepository {
	return &auditLogRepository{db: db}
}

func (r *auditLogRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *auditLogRepository) List(ctx context.Context, filter repository.AuditLogFilter) ([]*domain.AuditLog, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}

	q := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if filter.TargetID != "" {
		q = q.Where("target_id = ?", filter.TargetID)
	}
	if filter.EventType != "" {
		q = q.Where("event_type = ?", filter.EventType)
	}

	var entries []*domain.AuditLog
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
