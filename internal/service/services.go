package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/dom/learnhub-api/internal/audit"
	"github.com/dom/learnhub-api/internal/config"
	"github.com/dom/learnhub-api/internal/mailer"
	"github.com/dom/learnhub-api/internal/repository"
	"github.com/dom/learnhub-api/internal/storage"
	"github.com/google/uuid"
)

// Clock returns the current time. Services take one so tests can move time.
type Clock func() time.Time

// SessionNotifier is told about sessions after their revocation committed.
type SessionNotifier interface {
	SessionsRevoked(userID uuid.UUID, sessionIDs []uuid.UUID)
}

type Services struct {
	Tokens     *TokenService
	Auth       *AuthService
	UserStatus *UserStatusService
	Uploads    *UploadService
}

// Dependencies are the collaborators shared by all services. Audit, Mailer,
// Notifier, Presigner, Logger and Clock may be nil.
type Dependencies struct {
	Store     repository.Store
	Config    *config.Config
	Audit     audit.Sink
	Mailer    mailer.Sender
	Notifier  SessionNotifier
	Presigner storage.Presigner
	Logger    *slog.Logger
	Clock     Clock
}

func NewServices(deps Dependencies) *Services {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mail := deps.Mailer
	if mail == nil {
		mail = mailer.NewLogSender(deps.Config.MailFrom, logger)
	}

	tokens := NewTokenService(deps.Store, deps.Config, deps.Audit, deps.Notifier, logger, deps.Clock)
	return &Services{
		Tokens:     tokens,
		Auth:       NewAuthService(deps.Store, tokens, deps.Config, deps.Audit, mail, logger, deps.Clock),
		UserStatus: NewUserStatusService(deps.Store, deps.Audit, deps.Notifier, logger, deps.Clock),
		Uploads:    NewUploadService(deps.Presigner),
	}
}

type nopNotifier struct{}

func (nopNotifier) SessionsRevoked(uuid.UUID, []uuid.UUID) {}

func orNopNotifier(n SessionNotifier) SessionNotifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

func orNopSink(s audit.Sink) audit.Sink {
	if s == nil {
		return audit.Nop()
	}
	return s
}

func orSystemClock(c Clock) Clock {
	if c == nil {
		return time.Now
	}
	return c
}

// recordAudit writes event to sink and only logs a failure; audit problems
// never fail the operation being audited.
func recordAudit(ctx context.Context, sink audit.Sink, logger *slog.Logger, now Clock, event audit.Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now()
	}
	if err := sink.Record(context.WithoutCancel(ctx), event); err != nil {
		logger.ErrorContext(ctx, "failed to record audit event",
			"event_type", event.EventType,
			"target_id", event.TargetID,
			"error", err,
		)
	}
}
