package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/arvichandar/facemark-api/internal/models"
	appErrors "github.com/arvichandar/facemark-api/pkg/errors"
)

type fakeUserRepo struct {
	users  map[string]*models.User
	tokens map[string]*models.RefreshToken
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:  make(map[string]*models.User),
		tokens: make(map[string]*models.RefreshToken),
	}
}

func (f *fakeUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserRepo) UpdateLastLogin(_ context.Context, id string, ts time.Time) error {
	if u, ok := f.users[id]; ok {
		u.LastLogin = &ts
	}
	return nil
}

func (f *fakeUserRepo) CreateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	f.tokens[token.Token] = token
	return nil
}

func (f *fakeUserRepo) FindRefreshToken(_ context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := f.tokens[token]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserRepo) RevokeRefreshToken(_ context.Context, id string, revokedAt time.Time) error {
	for _, t := range f.tokens {
		if t.ID == id {
			t.Revoked = true
			t.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (f *fakeUserRepo) RevokeUserRefreshTokens(_ context.Context, userID string) error {
	for _, t := range f.tokens {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	return nil
}

func seedUser(t *testing.T, repo *fakeUserRepo, email, password string, role models.UserRole) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{
		ID:           "user-" + email,
		Email:        email,
		PasswordHash: string(hash),
		FullName:     "Test User",
		Role:         role,
		Active:       true,
	}
	repo.users[user.ID] = user
	return user
}

type fakeAuthFlags struct{ enabled bool }

func (f *fakeAuthFlags) Refresh(context.Context) *models.FeatureFlag {
	return &models.FeatureFlag{Enabled: f.enabled}
}

func newTestAuthService(repo *fakeUserRepo) (*AuthService, *time.Time) {
	svc := NewAuthService(repo, &fakeAuthFlags{enabled: true}, NewMetricsService(), nil, zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 7 * 24 * time.Hour,
		Issuer:             "facemark-api",
		LockoutMaxAttempts: 3,
		LockoutWindow:      time.Minute,
	})
	// Token validation compares exp against the wall clock, so the fake
	// clock starts at real time and only moves relative to it.
	clock := time.Now().UTC()
	svc.now = func() time.Time { return clock }
	return svc, &clock
}

func TestAuthLoginSuccess(t *testing.T) {
	repo := newFakeUserRepo()
	user := seedUser(t, repo, "admin@school.test", "s3cret-pass", models.RoleAdmin)
	svc, _ := newTestAuthService(repo)

	res, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "admin@school.test", Password: "s3cret-pass",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, user.ID, res.User.ID)
	assert.NotNil(t, repo.users[user.ID].LastLogin)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestAuthLoginStudentBlockedWhenSelfAuthDisabled(t *testing.T) {
	repo := newFakeUserRepo()
	seedUser(t, repo, "student@school.test", "s3cret-pass", models.RoleStudent)
	seedUser(t, repo, "admin@school.test", "s3cret-pass", models.RoleAdmin)
	svc, _ := newTestAuthService(repo)
	svc.flags = &fakeAuthFlags{enabled: false}

	// Correct credentials, student role: the disabled flag wins.
	res, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "student@school.test", Password: "s3cret-pass",
	})
	assert.Nil(t, res)
	assert.True(t, appErrors.Is(err, appErrors.ErrStudentAuthOff))

	// The rejection is not a credential failure, so it must not feed the
	// lockout counter.
	svc.mu.Lock()
	_, tracked := svc.lockouts["student@school.test"]
	svc.mu.Unlock()
	assert.False(t, tracked)

	// Admins bypass the flag entirely.
	_, err = svc.Login(context.Background(), models.LoginRequest{
		Email: "admin@school.test", Password: "s3cret-pass",
	})
	assert.NoError(t, err)
}

func TestAuthLoginStudentAllowedWhenSelfAuthEnabled(t *testing.T) {
	repo := newFakeUserRepo()
	seedUser(t, repo, "student@school.test", "s3cret-pass", models.RoleStudent)
	svc, _ := newTestAuthService(repo)

	res, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "student@school.test", Password: "s3cret-pass",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
}

func TestAuthLoginWrongPassword(t *testing.T) {
	repo := newFakeUserRepo()
	seedUser(t, repo, "admin@school.test", "s3cret-pass", models.RoleAdmin)
	svc, _ := newTestAuthService(repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "admin@school.test", Password: "wrong",
	})

	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestAuthLoginLockoutAfterThreeFailures(t *testing.T) {
	repo := newFakeUserRepo()
	seedUser(t, repo, "admin@school.test", "s3cret-pass", models.RoleAdmin)
	svc, clock := newTestAuthService(repo)
	bad := models.LoginRequest{Email: "admin@school.test", Password: "wrong"}

	for i := 0; i < 3; i++ {
		_, err := svc.Login(context.Background(), bad)
		assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))
	}

	// Fourth attempt is rejected without checking credentials, even with
	// the right password.
	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "admin@school.test", Password: "s3cret-pass",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrRateLimited))
	assert.Contains(t, err.Error(), "60 seconds")
	assert.Equal(t, float64(1), testutil.ToFloat64(svc.metrics.loginLockouts))

	// Halfway through the window the message reports the remaining time.
	*clock = clock.Add(30 * time.Second)
	_, err = svc.Login(context.Background(), bad)
	assert.True(t, appErrors.Is(err, appErrors.ErrRateLimited))
	assert.Contains(t, err.Error(), "30 seconds")

	// After the window expires the identity gets a clean slate.
	*clock = clock.Add(31 * time.Second)
	_, err = svc.Login(context.Background(), models.LoginRequest{
		Email: "admin@school.test", Password: "s3cret-pass",
	})
	assert.NoError(t, err)
}

func TestAuthLoginSuccessResetsFailureCount(t *testing.T) {
	repo := newFakeUserRepo()
	seedUser(t, repo, "admin@school.test", "s3cret-pass", models.RoleAdmin)
	svc, _ := newTestAuthService(repo)

	for i := 0; i < 2; i++ {
		_, err := svc.Login(context.Background(), models.LoginRequest{
			Email: "admin@school.test", Password: "wrong",
		})
		require.Error(t, err)
	}
	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "admin@school.test", Password: "s3cret-pass",
	})
	require.NoError(t, err)

	// Two more failures after a success must not trip the lockout.
	for i := 0; i < 2; i++ {
		_, err := svc.Login(context.Background(), models.LoginRequest{
			Email: "admin@school.test", Password: "wrong",
		})
		assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))
	}
}

func TestAuthLockoutIsPerIdentity(t *testing.T) {
	repo := newFakeUserRepo()
	seedUser(t, repo, "a@school.test", "pass-a", models.RoleAdmin)
	seedUser(t, repo, "b@school.test", "pass-b", models.RoleStudent)
	svc, _ := newTestAuthService(repo)

	for i := 0; i < 3; i++ {
		_, _ = svc.Login(context.Background(), models.LoginRequest{Email: "a@school.test", Password: "wrong"})
	}

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "a@school.test", Password: "pass-a"})
	assert.True(t, appErrors.Is(err, appErrors.ErrRateLimited))

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "b@school.test", Password: "pass-b"})
	assert.NoError(t, err)
}

func TestAuthLoginInactiveAccount(t *testing.T) {
	repo := newFakeUserRepo()
	user := seedUser(t, repo, "gone@school.test", "s3cret-pass", models.RoleStudent)
	user.Active = false
	svc, _ := newTestAuthService(repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "gone@school.test", Password: "s3cret-pass",
	})

	assert.True(t, appErrors.Is(err, appErrors.ErrInactiveAccount))
}

func TestAuthRefreshRotatesToken(t *testing.T) {
	repo := newFakeUserRepo()
	seedUser(t, repo, "admin@school.test", "s3cret-pass", models.RoleAdmin)
	svc, _ := newTestAuthService(repo)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "admin@school.test", Password: "s3cret-pass",
	})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)
	assert.True(t, repo.tokens[login.RefreshToken].Revoked)

	// The old token cannot be replayed.
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthRefreshExpiredToken(t *testing.T) {
	repo := newFakeUserRepo()
	seedUser(t, repo, "admin@school.test", "s3cret-pass", models.RoleAdmin)
	svc, clock := newTestAuthService(repo)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "admin@school.test", Password: "s3cret-pass",
	})
	require.NoError(t, err)

	*clock = clock.Add(8 * 24 * time.Hour)

	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthLogoutRevokesToken(t *testing.T) {
	repo := newFakeUserRepo()
	user := seedUser(t, repo, "admin@school.test", "s3cret-pass", models.RoleAdmin)
	svc, _ := newTestAuthService(repo)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "admin@school.test", Password: "s3cret-pass",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), login.RefreshToken, user.ID))
	assert.True(t, repo.tokens[login.RefreshToken].Revoked)

	err = svc.Logout(context.Background(), login.RefreshToken, "someone-else")
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}
