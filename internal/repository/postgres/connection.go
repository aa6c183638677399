package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/dom/learnhub-api/internal/domain"
	"github.com/dom/learnhub-api/internal/repository"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqliteScheme = "sqlite://"

// NewConnection opens the database named by databaseURL and migrates the
// schema. postgres:// URLs use the PostgreSQL driver; sqlite://<path> opens
// an embedded SQLite file for local development.
func NewConnection(databaseURL string, logLevel logger.LogLevel) (*gorm.DB, error) {
	dialector, err := dialectorFor(databaseURL)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, err
	}

	if strings.HasPrefix(databaseURL, sqliteScheme) {
		// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

func dialectorFor(databaseURL string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return postgres.Open(databaseURL), nil
	case strings.HasPrefix(databaseURL, sqliteScheme):
		return sqlite.Open(strings.TrimPrefix(databaseURL, sqliteScheme)), nil
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme: %q", databaseURL)
	}
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.Session{},
		&domain.AuditLog{},
		&domain.PasswordReset{},
	)
}

func NewRepositories(db *gorm.DB) *repository.Repositories {
	return &repository.Repositories{
		User:          NewUserRepository(db),
		Session:       NewSessionRepository(db),
		AuditLog:      NewAuditLogRepository(db),
		PasswordReset: NewPasswordResetRepository(db),
	}
}

type store struct {
	db    *gorm.DB
	repos *repository.Repositories
}

// NewStore wraps db in a repository.Store.
func NewStore(db *gorm.DB) repository.Store {
	return &store{db: db, repos: NewRepositories(db)}
}

func (s *store) Repos() *repository.Repositories {
	return s.repos
}

func (s *store) Transaction(ctx context.Context, fn func(repos *repository.Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}

func (s *store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
