package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arvichandar/facemark-api/internal/models"
	appErrors "github.com/arvichandar/facemark-api/pkg/errors"
)

type fakeFlagRepo struct {
	flag      models.FeatureFlag
	getCalls  int
	getErr    error
	updateErr error
	block     chan struct{}
}

func (f *fakeFlagRepo) Get(_ context.Context) (*models.FeatureFlag, error) {
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	flag := f.flag
	return &flag, nil
}

func (f *fakeFlagRepo) Update(_ context.Context, enabled bool, actorID string) (*models.FeatureFlag, error) {
	if f.block != nil {
		<-f.block
	}
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.flag = models.FeatureFlag{Enabled: enabled, UpdatedBy: actorID, UpdatedAt: time.Now()}
	flag := f.flag
	return &flag, nil
}

func newTestFlagService(repo *fakeFlagRepo) (*FlagService, *time.Time) {
	svc := NewFlagService(repo, 30*time.Second, zap.NewNop())
	clock := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }
	return svc, &clock
}

func TestFlagServiceCachesWithinTTL(t *testing.T) {
	repo := &fakeFlagRepo{flag: models.FeatureFlag{Enabled: true}}
	svc, clock := newTestFlagService(repo)

	assert.True(t, svc.IsEnabled(context.Background()))
	*clock = clock.Add(10 * time.Second)
	assert.True(t, svc.IsEnabled(context.Background()))
	*clock = clock.Add(19 * time.Second)
	assert.True(t, svc.IsEnabled(context.Background()))

	assert.Equal(t, 1, repo.getCalls)
}

func TestFlagServiceRefetchesAfterTTL(t *testing.T) {
	repo := &fakeFlagRepo{flag: models.FeatureFlag{Enabled: true}}
	svc, clock := newTestFlagService(repo)

	assert.True(t, svc.IsEnabled(context.Background()))
	repo.flag.Enabled = false
	*clock = clock.Add(31 * time.Second)

	assert.False(t, svc.IsEnabled(context.Background()))
	assert.Equal(t, 2, repo.getCalls)
}

func TestFlagServiceFailsOpenOnFirstRead(t *testing.T) {
	repo := &fakeFlagRepo{getErr: errors.New("connection refused")}
	svc, _ := newTestFlagService(repo)

	assert.True(t, svc.IsEnabled(context.Background()))
}

func TestFlagServiceServesStaleValueWhenStoreDown(t *testing.T) {
	repo := &fakeFlagRepo{flag: models.FeatureFlag{Enabled: false}}
	svc, clock := newTestFlagService(repo)

	assert.False(t, svc.IsEnabled(context.Background()))

	repo.getErr = errors.New("connection refused")
	*clock = clock.Add(time.Minute)

	assert.False(t, svc.IsEnabled(context.Background()))
}

func TestFlagServiceRefreshBypassesTTL(t *testing.T) {
	repo := &fakeFlagRepo{flag: models.FeatureFlag{Enabled: true}}
	svc, _ := newTestFlagService(repo)

	assert.True(t, svc.IsEnabled(context.Background()))
	repo.flag.Enabled = false

	flag := svc.Refresh(context.Background())

	assert.False(t, flag.Enabled)
	assert.Equal(t, 2, repo.getCalls)
}

func TestFlagServiceSetEnabledInvalidatesCache(t *testing.T) {
	repo := &fakeFlagRepo{flag: models.FeatureFlag{Enabled: true}}
	svc, _ := newTestFlagService(repo)

	assert.True(t, svc.IsEnabled(context.Background()))

	_, err := svc.SetEnabled(context.Background(), false, "admin-1")
	require.NoError(t, err)

	assert.False(t, svc.IsEnabled(context.Background()))
	assert.Equal(t, 2, repo.getCalls)
}

func TestFlagServiceSetEnabledInvalidatesCacheOnError(t *testing.T) {
	repo := &fakeFlagRepo{flag: models.FeatureFlag{Enabled: true}}
	svc, _ := newTestFlagService(repo)

	assert.True(t, svc.IsEnabled(context.Background()))

	repo.updateErr = errors.New("write timeout")
	_, err := svc.SetEnabled(context.Background(), false, "admin-1")
	require.Error(t, err)

	// The write may or may not have landed, so the next read must go back
	// to the store instead of trusting the cache.
	repo.updateErr = nil
	repo.flag.Enabled = false
	assert.False(t, svc.IsEnabled(context.Background()))
}

func TestFlagServiceRejectsConcurrentUpdate(t *testing.T) {
	repo := &fakeFlagRepo{flag: models.FeatureFlag{Enabled: true}, block: make(chan struct{})}
	svc, _ := newTestFlagService(repo)

	done := make(chan error, 1)
	go func() {
		_, err := svc.SetEnabled(context.Background(), false, "admin-1")
		done <- err
	}()

	// Wait for the first update to take the in-flight slot.
	require.Eventually(t, func() bool {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		return svc.updating
	}, time.Second, 5*time.Millisecond)

	_, err := svc.SetEnabled(context.Background(), true, "admin-2")
	assert.True(t, appErrors.Is(err, appErrors.ErrUpdateInFlight))

	close(repo.block)
	require.NoError(t, <-done)
}
