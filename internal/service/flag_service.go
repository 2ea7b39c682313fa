package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arvichandar/facemark-api/internal/models"
	appErrors "github.com/arvichandar/facemark-api/pkg/errors"
)

// FlagRepo persists the student self-auth feature flag.
type FlagRepo interface {
	Get(ctx context.Context) (*models.FeatureFlag, error)
	Update(ctx context.Context, enabled bool, actorID string) (*models.FeatureFlag, error)
}

// FlagService caches the student self-auth flag with a short TTL so the
// gate check on every student request does not hit the database. Reads fail
// open: when the store is unreachable the last known value, or enabled, is
// served. Writes fail loud and always invalidate the cache, even on error,
// so a possibly-applied write is never masked by a stale cached value.
type FlagService struct {
	repo   FlagRepo
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	cached    *models.FeatureFlag
	fetchedAt time.Time
	updating  bool
}

func NewFlagService(repo FlagRepo, ttl time.Duration, logger *zap.Logger) *FlagService {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &FlagService{repo: repo, ttl: ttl, logger: logger, now: time.Now}
}

// IsEnabled returns the flag value, served from cache within the TTL. At
// most one store fetch happens per expiry; concurrent callers inside the
// window reuse the cached value.
func (s *FlagService) IsEnabled(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx).Enabled
}

// Refresh bypasses the TTL and re-reads the flag from the store. Used before
// security-sensitive decisions where a stale value is not acceptable.
func (s *FlagService) Refresh(ctx context.Context) *models.FeatureFlag {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchedAt = time.Time{}
	return s.loadLocked(ctx)
}

// Current returns the flag with its metadata, from cache within the TTL.
func (s *FlagService) Current(ctx context.Context) *models.FeatureFlag {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

// loadLocked serves the cached value inside the TTL window and refreshes it
// outside. Store failures fall back to the last known value, or to enabled
// when nothing was ever fetched. Callers must hold mu.
func (s *FlagService) loadLocked(ctx context.Context) *models.FeatureFlag {
	now := s.now()
	if s.cached != nil && now.Sub(s.fetchedAt) < s.ttl {
		return s.cached
	}

	flag, err := s.repo.Get(ctx)
	if err != nil {
		s.logger.Warn("flag read failed, serving last known value", zap.Error(err))
		if s.cached != nil {
			// Keep the stale value but push the window forward so a
			// flapping store is not hammered on every request.
			s.fetchedAt = now
			return s.cached
		}
		return &models.FeatureFlag{Enabled: true}
	}

	s.cached = flag
	s.fetchedAt = now
	return flag
}

// SetEnabled flips the flag. Only one update may be in flight at a time;
// a concurrent attempt fails with ErrUpdateInFlight. The cache is
// invalidated whether or not the write succeeded.
func (s *FlagService) SetEnabled(ctx context.Context, enabled bool, actorID string) (*models.FeatureFlag, error) {
	s.mu.Lock()
	if s.updating {
		s.mu.Unlock()
		return nil, appErrors.ErrUpdateInFlight
	}
	s.updating = true
	s.mu.Unlock()

	flag, err := s.repo.Update(ctx, enabled, actorID)

	s.mu.Lock()
	s.updating = false
	s.cached = nil
	s.fetchedAt = time.Time{}
	s.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("update student auth flag: %w", err)
	}

	s.logger.Info("student self-auth flag updated",
		zap.Bool("enabled", flag.Enabled), zap.String("updated_by", actorID))
	return flag, nil
}
