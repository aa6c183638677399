package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dom/learnhub-api/internal/audit"
	"github.com/dom/learnhub-api/internal/domain"
	"github.com/dom/learnhub-api/internal/repository"
	"github.com/google/uuid"
)

type UserStatusService struct {
	store    repository.Store
	audit    audit.Sink
	notifier SessionNotifier
	logger   *slog.Logger
	now      Clock
}

func NewUserStatusService(store repository.Store, auditSink audit.Sink, notifier SessionNotifier, logger *slog.Logger, clock Clock) *UserStatusService {
	return &UserStatusService{
		store:    store,
		audit:    orNopSink(auditSink),
		notifier: orNopNotifier(notifier),
		logger:   logger,
		now:      orSystemClock(clock),
	}
}

type UpdateStatusInput struct {
	ActorID string
	Reason  string
}

type StatusChange struct {
	UserID          uuid.UUID
	OldStatus       domain.UserStatus
	NewStatus       domain.UserStatus
	RevokedSessions []uuid.UUID
}

// UpdateUserStatus writes the new status and, for any non-active status,
// revokes every live session of the user in the same transaction. Either
// both happen or neither does.
func (s *UserStatusService) UpdateUserStatus(ctx context.Context, userID uuid.UUID, newStatus domain.UserStatus, input UpdateStatusInput) (*StatusChange, error) {
	if !newStatus.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, newStatus)
	}

	now := s.now()
	change := &StatusChange{UserID: userID, NewStatus: newStatus}

	err := s.store.Transaction(ctx, func(repos *repository.Repositories) error {
		user, err := repos.User.GetByIDForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		change.OldStatus = user.Status

		if user.Status != newStatus {
			if err := repos.User.UpdateStatus(ctx, userID, newStatus, now); err != nil {
				return err
			}
		}

		if !newStatus.IsActive() {
			ids, err := repos.Session.RevokeAllForUser(ctx, userID, now)
			if err != nil {
				return fmt.Errorf("revoke sessions: %w", err)
			}
			change.RevokedSessions = ids
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(change.RevokedSessions) > 0 {
		s.notifier.SessionsRevoked(userID, change.RevokedSessions)
	}

	if change.OldStatus != change.NewStatus {
		s.logger.InfoContext(ctx, "user status changed",
			"user_id", userID,
			"actor_id", input.ActorID,
			"old_status", change.OldStatus,
			"new_status", change.NewStatus,
			"revoked_sessions", len(change.RevokedSessions),
		)
		metadata := map[string]any{
			"oldStatus":       string(change.OldStatus),
			"newStatus":       string(change.NewStatus),
			"revokedSessions": len(change.RevokedSessions),
		}
		if input.Reason != "" {
			metadata["reason"] = input.Reason
		}
		recordAudit(ctx, s.audit, s.logger, s.now, audit.Event{
			ActorID:    input.ActorID,
			EventType:  domain.AuditUserStatusChanged,
			TargetID:   userID.String(),
			Metadata:   metadata,
			OccurredAt: now,
		})
	}

	return change, nil
}
