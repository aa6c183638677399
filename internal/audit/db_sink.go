package audit

import (
	"context"
	"fmt"

	"github.com/dom/learnhub-api/internal/domain"
	"github.com/dom/learnhub-api/internal/repository"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// DBSink writes events to the audit_logs table.
type DBSink struct {
	repo repository.AuditLogRepository
}

func NewDBSink(repo repository.AuditLogRepository) *DBSink {
	return &DBSink{repo: repo}
}

func (s *DBSink) Record(ctx context.Context, event Event) error {
	entry := &domain.AuditLog{
		ID:        uuid.New(),
		ActorID:   event.ActorID,
		EventType: event.EventType,
		TargetID:  event.TargetID,
		Metadata:  datatypes.JSONMap(event.Metadata),
		CreatedAt: event.OccurredAt,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return fmt.Errorf("audit: insert %s: %w", event.EventType, err)
	}
	return nil
}
