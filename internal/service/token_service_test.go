package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dom/learnhub-api/internal/domain"
	"github.com/dom/learnhub-api/internal/service"
	"github.com/dom/learnhub-api/internal/testutil"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMeta = domain.SessionMeta{UserAgent: "go-test", IPAddress: "127.0.0.1"}

// issue creates an active user and a session for it.
func issue(t *testing.T, env *testutil.Env) (*domain.User, *service.TokenPair) {
	t.Helper()

	user, _ := testutil.NewUserBuilder().Build(t, env.DB.DB)
	pair, err := env.Services.Tokens.IssueSessionTokens(context.Background(), user, testMeta)
	require.NoError(t, err)
	return user, pair
}

func getSession(t *testing.T, env *testutil.Env, id uuid.UUID) *domain.Session {
	t.Helper()

	session, err := env.DB.Store.Repos().Session.GetByID(context.Background(), id)
	require.NoError(t, err)
	return session
}

func TestTokenService_IssueAndAuthenticate(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	user, pair := issue(t, env)

	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, user.ID, pair.UserID)
	assert.Equal(t, env.Clock.Now().Add(env.Config.AccessTokenTTL), pair.AccessExpiresAt)
	assert.Equal(t, env.Clock.Now().Add(env.Config.RefreshTokenTTL), pair.RefreshExpiresAt)

	identity, err := env.Services.Tokens.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, identity.UserID)
	assert.Equal(t, pair.SessionID, identity.SessionID)
	assert.Equal(t, domain.RoleUser, identity.Role)

	session := getSession(t, env, pair.SessionID)
	assert.Equal(t, user.ID, session.UserID)
	assert.Equal(t, "go-test", session.UserAgent)
	assert.Nil(t, session.RevokedAt)
}

func TestTokenService_IssueRefusesInactiveUser(t *testing.T) {
	env := testutil.NewEnv(t)

	for _, status := range []domain.UserStatus{
		domain.UserStatusInactive,
		domain.UserStatusLocked,
		domain.UserStatusInvited,
		domain.UserStatusPending,
	} {
		t.Run(string(status), func(t *testing.T) {
			user, _ := testutil.NewUserBuilder().WithStatus(status).Build(t, env.DB.DB)

			pair, err := env.Services.Tokens.IssueSessionTokens(context.Background(), user, testMeta)
			testutil.AssertErrorCode(t, err, domain.ErrUserInactive)
			assert.Nil(t, pair)
		})
	}
}

func TestTokenService_Authenticate_Failures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, env *testutil.Env, pair *service.TokenPair) string
		want  *domain.Error
	}{
		{
			name: "garbage token",
			setup: func(t *testing.T, env *testutil.Env, pair *service.TokenPair) string {
				return "not-a-jwt"
			},
			want: domain.ErrInvalidToken,
		},
		{
			name: "empty token",
			setup: func(t *testing.T, env *testutil.Env, pair *service.TokenPair) string {
				return ""
			},
			want: domain.ErrInvalidToken,
		},
		{
			name: "tampered signature",
			setup: func(t *testing.T, env *testutil.Env, pair *service.TokenPair) string {
				parts := strings.Split(pair.AccessToken, ".")
				require.Len(t, parts, 3)
				sig := []byte(parts[2])
				if sig[0] == 'A' {
					sig[0] = 'B'
				} else {
					sig[0] = 'A'
				}
				return parts[0] + "." + parts[1] + "." + string(sig)
			},
			want: domain.ErrInvalidToken,
		},
		{
			name: "refresh token presented as access token",
			setup: func(t *testing.T, env *testutil.Env, pair *service.TokenPair) string {
				return pair.RefreshToken
			},
			want: domain.ErrInvalidToken,
		},
		{
			name: "signed with another secret",
			setup: func(t *testing.T, env *testutil.Env, pair *service.TokenPair) string {
				claims := service.SessionClaims{
					SessionID: pair.SessionID.String(),
					TokenType: "access",
					RegisteredClaims: jwt.RegisteredClaims{
						Subject:   pair.UserID.String(),
						ExpiresAt: jwt.NewNumericDate(env.Clock.Now().Add(time.Minute)),
					},
				}
				signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("some-other-secret"))
				require.NoError(t, err)
				return signed
			},
			want: domain.ErrInvalidToken,
		},
		{
			name: "access token past its expiry",
			setup: func(t *testing.T, env *testutil.Env, pair *service.TokenPair) string {
				env.Clock.Advance(env.Config.AccessTokenTTL + time.Second)
				return pair.AccessToken
			},
			want: domain.ErrTokenExpired,
		},
		{
			name: "revoked session",
			setup: func(t *testing.T, env *testutil.Env, pair *service.TokenPair) string {
				require.NoError(t, env.Services.Tokens.RevokeSession(context.Background(), pair.SessionID))
				return pair.AccessToken
			},
			want: domain.ErrSessionRevoked,
		},
		{
			name: "session past its expiry",
			setup: func(t *testing.T, env *testutil.Env, pair *service.TokenPair) string {
				err := env.DB.DB.Model(&domain.Session{}).
					Where("id = ?", pair.SessionID).
					Update("expires_at", env.Clock.Now().Add(-time.Second)).Error
				require.NoError(t, err)
				return pair.AccessToken
			},
			want: domain.ErrSessionExpired,
		},
		{
			name: "session row missing",
			setup: func(t *testing.T, env *testutil.Env, pair *service.TokenPair) string {
				require.NoError(t, env.DB.DB.Delete(&domain.Session{}, "id = ?", pair.SessionID).Error)
				return pair.AccessToken
			},
			want: domain.ErrInvalidSession,
		},
		{
			name: "owner deactivated without revocation",
			setup: func(t *testing.T, env *testutil.Env, pair *service.TokenPair) string {
				err := env.DB.DB.Model(&domain.User{}).
					Where("id = ?", pair.UserID).
					Update("status", domain.UserStatusLocked).Error
				require.NoError(t, err)
				return pair.AccessToken
			},
			want: domain.ErrUserInactive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testutil.NewEnv(t)
			_, pair := issue(t, env)

			token := tt.setup(t, env, pair)

			identity, err := env.Services.Tokens.Authenticate(context.Background(), token)
			testutil.AssertErrorCode(t, err, tt.want)
			assert.Nil(t, identity)
		})
	}
}

func TestTokenService_DeactivationRevokesAccessToken(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	user, pair := issue(t, env)
	_, err := env.Services.Tokens.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)

	_, err = env.Services.UserStatus.UpdateUserStatus(ctx, user.ID, domain.UserStatusInactive, service.UpdateStatusInput{ActorID: "admin_1"})
	require.NoError(t, err)

	_, err = env.Services.Tokens.Authenticate(ctx, pair.AccessToken)
	require.Error(t, err)
	assert.Equal(t, "SESSION_REVOKED", domain.CodeOf(err))
}

func TestTokenService_RevokeSession_Idempotent(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	user, pair := issue(t, env)
	firstRevocation := env.Clock.Now()

	require.NoError(t, env.Services.Tokens.RevokeSession(ctx, pair.SessionID))
	env.Clock.Advance(time.Hour)
	require.NoError(t, env.Services.Tokens.RevokeSession(ctx, pair.SessionID))

	session := getSession(t, env, pair.SessionID)
	require.NotNil(t, session.RevokedAt)
	assert.True(t, firstRevocation.Equal(*session.RevokedAt), "revokedAt was overwritten: %v", session.RevokedAt)

	calls := env.Notifier.Calls()
	require.Len(t, calls, 1, "only the first revocation notifies")
	assert.Equal(t, user.ID, calls[0].UserID)
	assert.Equal(t, []uuid.UUID{pair.SessionID}, calls[0].SessionIDs)

	err := env.Services.Tokens.RevokeSession(ctx, uuid.New())
	testutil.AssertErrorCode(t, err, domain.ErrNotFound)
}

func TestTokenService_RevokeAllSessions(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	user, first := issue(t, env)
	second, err := env.Services.Tokens.IssueSessionTokens(ctx, user, testMeta)
	require.NoError(t, err)

	n, err := env.Services.Tokens.RevokeAllSessions(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, pair := range []*service.TokenPair{first, second} {
		_, err := env.Services.Tokens.Authenticate(ctx, pair.AccessToken)
		testutil.AssertErrorCode(t, err, domain.ErrSessionRevoked)
	}

	n, err = env.Services.Tokens.RevokeAllSessions(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTokenService_RotateSessionTokens(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	_, pair := issue(t, env)
	before := getSession(t, env, pair.SessionID)

	env.Clock.Advance(time.Minute)
	rotated, err := env.Services.Tokens.RotateSessionTokens(ctx, pair.RefreshToken)
	require.NoError(t, err)

	assert.Equal(t, pair.SessionID, rotated.SessionID, "rotation keeps the session")
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, rotated.AccessToken)
	assert.Equal(t, env.Clock.Now().Add(env.Config.RefreshTokenTTL), rotated.RefreshExpiresAt, "session expiry slides")

	after := getSession(t, env, pair.SessionID)
	assert.NotEqual(t, before.RefreshTokenID, after.RefreshTokenID)
	assert.Nil(t, after.RevokedAt)

	for name, token := range map[string]string{"pre-rotation": pair.AccessToken, "post-rotation": rotated.AccessToken} {
		identity, err := env.Services.Tokens.Authenticate(ctx, token)
		require.NoError(t, err, name)
		assert.Equal(t, pair.SessionID, identity.SessionID, name)
	}

	env.Clock.Advance(env.Config.AccessTokenTTL)
	_, err = env.Services.Tokens.Authenticate(ctx, pair.AccessToken)
	testutil.AssertErrorCode(t, err, domain.ErrTokenExpired)
}

func TestTokenService_RotateSessionTokens_ReplayRevokesSession(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	user, pair := issue(t, env)

	rotated, err := env.Services.Tokens.RotateSessionTokens(ctx, pair.RefreshToken)
	require.NoError(t, err)

	replayed, err := env.Services.Tokens.RotateSessionTokens(ctx, pair.RefreshToken)
	testutil.AssertErrorCode(t, err, domain.ErrInvalidSession)
	assert.Nil(t, replayed)

	session := getSession(t, env, pair.SessionID)
	assert.NotNil(t, session.RevokedAt, "replay kills the session")

	_, err = env.Services.Tokens.Authenticate(ctx, rotated.AccessToken)
	testutil.AssertErrorCode(t, err, domain.ErrSessionRevoked)

	_, err = env.Services.Tokens.RotateSessionTokens(ctx, rotated.RefreshToken)
	testutil.AssertErrorCode(t, err, domain.ErrInvalidSession)

	events := env.Audit.EventsOfType(domain.AuditRefreshTokenReused)
	require.Len(t, events, 1)
	assert.Equal(t, user.ID.String(), events[0].TargetID)

	calls := env.Notifier.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, []uuid.UUID{pair.SessionID}, calls[len(calls)-1].SessionIDs)
}

func TestTokenService_RotateSessionTokens_Failures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, env *testutil.Env, pair *service.TokenPair) string
		want  *domain.Error
	}{
		{
			name: "revoked session",
			setup: func(t *testing.T, env *testutil.Env, pair *service.TokenPair) string {
				require.NoError(t, env.Services.Tokens.RevokeSession(context.Background(), pair.SessionID))
				return pair.RefreshToken
			},
			want: domain.ErrInvalidSession,
		},
		{
			name: "expired refresh token",
			setup: func(t *testing.T, env *testutil.Env, pair *service.TokenPair) string {
				env.Clock.Advance(env.Config.RefreshTokenTTL + time.Second)
				return pair.RefreshToken
			},
			want: domain.ErrTokenExpired,
		},
		{
			name: "session row missing",
			setup: func(t *testing.T, env *testutil.Env, pair *service.TokenPair) string {
				require.NoError(t, env.DB.DB.Delete(&domain.Session{}, "id = ?", pair.SessionID).Error)
				return pair.RefreshToken
			},
			want: domain.ErrInvalidSession,
		},
		{
			name: "access token presented as refresh token",
			setup: func(t *testing.T, env *testutil.Env, pair *service.TokenPair) string {
				return pair.AccessToken
			},
			want: domain.ErrInvalidToken,
		},
		{
			name: "owner no longer active",
			setup: func(t *testing.T, env *testutil.Env, pair *service.TokenPair) string {
				err := env.DB.DB.Model(&domain.User{}).
					Where("id = ?", pair.UserID).
					Update("status", domain.UserStatusInactive).Error
				require.NoError(t, err)
				return pair.RefreshToken
			},
			want: domain.ErrUserInactive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testutil.NewEnv(t)
			_, pair := issue(t, env)
			before, err := env.DB.Store.Repos().Session.ListByUserID(context.Background(), pair.UserID)
			require.NoError(t, err)

			token := tt.setup(t, env, pair)

			rotated, err := env.Services.Tokens.RotateSessionTokens(context.Background(), token)
			testutil.AssertErrorCode(t, err, tt.want)
			assert.Nil(t, rotated, "no tokens are issued on failure")

			after, err := env.DB.Store.Repos().Session.ListByUserID(context.Background(), pair.UserID)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(after), len(before), "no session is created on failure")
		})
	}
}

func TestTokenService_ConcurrentAuthenticateAndRotate(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	_, pair := issue(t, env)

	var (
		wg        sync.WaitGroup
		rotated   *service.TokenPair
		rotateErr error
		authErrs  = make([]error, 10)
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		rotated, rotateErr = env.Services.Tokens.RotateSessionTokens(ctx, pair.RefreshToken)
	}()
	for i := range authErrs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, authErrs[i] = env.Services.Tokens.Authenticate(ctx, pair.AccessToken)
		}(i)
	}
	wg.Wait()

	require.NoError(t, rotateErr)
	require.NotNil(t, rotated)
	for i, err := range authErrs {
		assert.NoError(t, err, "authenticate #%d", i)
	}

	identity, err := env.Services.Tokens.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err, "pre-rotation access token stays valid until its own expiry")
	assert.Equal(t, pair.SessionID, identity.SessionID)
}

func TestTokenService_ConcurrentRotationOnlyOneWins(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	_, pair := issue(t, env)

	const workers = 5
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Services.Tokens.RotateSessionTokens(ctx, pair.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				return
			}
			errs = append(errs, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	for _, err := range errs {
		assert.True(t, errors.Is(err, domain.ErrInvalidSession), "got %v", err)
	}
}
