package testutil

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dom/learnhub-api/internal/api"
	"github.com/dom/learnhub-api/internal/config"
	"github.com/dom/learnhub-api/internal/logging"
	"github.com/dom/learnhub-api/internal/repository"
	repoPostgres "github.com/dom/learnhub-api/internal/repository/postgres"
	"github.com/dom/learnhub-api/internal/service"
	"github.com/dom/learnhub-api/internal/websocket"
	"github.com/glebarez/sqlite"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB is a migrated database for one test.
type TestDB struct {
	Container testcontainers.Container
	DB        *gorm.DB
	Store     repository.Store
	DSN       string
}

// NewTestDB opens a fresh embedded SQLite database in a temp directory.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := repoPostgres.Migrate(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		sqlDB.Close()
	})

	return &TestDB{
		DB:    db,
		Store: repoPostgres.NewStore(db),
		DSN:   dsn,
	}
}

// NewPostgresTestDB starts a PostgreSQL testcontainer. The test is skipped
// unless INTEGRATION_TESTS=1.
func NewPostgresTestDB(t *testing.T) *TestDB {
	t.Helper()

	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run PostgreSQL integration tests")
	}

	ctx := context.Background()

	container, err := tcPostgres.Run(ctx,
		"postgres:15-alpine",
		tcPostgres.WithDatabase("test_learnhub"),
		tcPostgres.WithUsername("test"),
		tcPostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	testDB := &TestDB{Container: container}
	t.Cleanup(func() {
		testDB.Cleanup()
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	db, err := gorm.Open(gormPostgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}

	if err := repoPostgres.Migrate(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	testDB.DB = db
	testDB.Store = repoPostgres.NewStore(db)
	testDB.DSN = dsn
	return testDB
}

// Cleanup terminates the container, if any.
func (tdb *TestDB) Cleanup() {
	if tdb.Container != nil {
		tdb.Container.Terminate(context.Background())
	}
}

// Truncate clears all tables for test isolation
func (tdb *TestDB) Truncate(t *testing.T) {
	t.Helper()

	tables := []string{
		"password_resets",
		"audit_logs",
		"user_sessions",
		"users",
	}

	for _, table := range tables {
		if err := tdb.DB.Exec(fmt.Sprintf("DELETE FROM %s", table)).Error; err != nil {
			t.Logf("warning: failed to truncate %s: %v", table, err)
		}
	}
}

// TestConfig returns a configuration suitable for testing
func TestConfig() *config.Config {
	return &config.Config{
		Port:             "0",
		Environment:      "test",
		APIPrefix:        "/api/v1",
		CORSOrigins:      []string{"*"},
		PublicURL:        "http://learnhub.test",
		JWTSecret:        "test-access-secret-key-for-testing-only",
		JWTRefreshSecret: "test-refresh-secret-key-for-testing-only",
		AccessTokenTTL:   15 * time.Minute,
		RefreshTokenTTL:  7 * 24 * time.Hour,
		BcryptCost:       bcrypt.MinCost,
		PasswordResetTTL: time.Hour,
		MailFrom:         "no-reply@learnhub.test",
		LogLevel:         "error",
		LogFormat:        "text",
		UploadURLTTL:     10 * time.Minute,
	}
}

// Env bundles services built over a test database with recording fakes.
type Env struct {
	DB       *TestDB
	Config   *config.Config
	Services *service.Services
	Audit    *RecordingAuditSink
	Mailer   *RecordingMailer
	Notifier *RecordingNotifier
	Clock    *Clock
}

// NewEnv builds services over a fresh SQLite database.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	testDB := NewTestDB(t)
	cfg := TestConfig()
	env := &Env{
		DB:       testDB,
		Config:   cfg,
		Audit:    &RecordingAuditSink{},
		Mailer:   &RecordingMailer{},
		Notifier: &RecordingNotifier{},
		Clock:    NewClock(time.Now()),
	}
	env.Services = service.NewServices(service.Dependencies{
		Store:    testDB.Store,
		Config:   cfg,
		Audit:    env.Audit,
		Mailer:   env.Mailer,
		Notifier: env.Notifier,
		Logger:   logging.Discard(),
		Clock:    env.Clock.Now,
	})
	return env
}

// TestServer holds all components for integration testing
type TestServer struct {
	Server   *httptest.Server
	DB       *TestDB
	Services *service.Services
	Hub      *websocket.Hub
	Config   *config.Config
	Audit    *RecordingAuditSink
	Mailer   *RecordingMailer
}

// NewTestServer creates a complete test server with all dependencies
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	testDB := NewTestDB(t)
	cfg := TestConfig()
	log := logging.Discard()

	hub := websocket.NewHub(log)
	go hub.Run()

	auditSink := &RecordingAuditSink{}
	mail := &RecordingMailer{}
	services := service.NewServices(service.Dependencies{
		Store:    testDB.Store,
		Config:   cfg,
		Audit:    auditSink,
		Mailer:   mail,
		Notifier: hub,
		Logger:   log,
	})
	router := api.NewRouter(services, hub, testDB.Store, cfg, log)

	server := httptest.NewServer(router)

	ts := &TestServer{
		Server:   server,
		DB:       testDB,
		Services: services,
		Hub:      hub,
		Config:   cfg,
		Audit:    auditSink,
		Mailer:   mail,
	}

	t.Cleanup(func() {
		server.Close()
		hub.Stop()
	})

	return ts
}

// BaseURL returns the test server's base URL
func (ts *TestServer) BaseURL() string {
	return ts.Server.URL
}

// APIURL returns the full API URL for a given path
func (ts *TestServer) APIURL(path string) string {
	return fmt.Sprintf("%s%s%s", ts.Server.URL, ts.Config.APIPrefix, path)
}

// WebSocketURL returns the WebSocket URL with token
func (ts *TestServer) WebSocketURL(token string) string {
	wsURL := "ws" + ts.Server.URL[4:] // Replace "http" with "ws"
	return fmt.Sprintf("%s%s/ws?token=%s", wsURL, ts.Config.APIPrefix, token)
}
