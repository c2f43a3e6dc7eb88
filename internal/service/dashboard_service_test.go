package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

type fakeDashboardRepo struct {
	calls    int32
	current  models.DateWindow
	failWith error
}

func (f *fakeDashboardRepo) CountUsersByRole(context.Context) (map[models.UserRole]int, error) {
	atomic.AddInt32(&f.calls, 1)
	return map[models.UserRole]int{models.RoleStudent: 6, models.RoleTeacher: 3, models.RoleAdmin: 1}, nil
}

func (f *fakeDashboardRepo) CountTeachers(_ context.Context, status models.VerificationStatus) (int, error) {
	atomic.AddInt32(&f.calls, 1)
	if status == models.VerificationPending {
		return 1, nil
	}
	return 2, nil
}

func (f *fakeDashboardRepo) CountNewUsers(_ context.Context, window models.DateWindow) (int, error) {
	atomic.AddInt32(&f.calls, 1)
	if window == f.current {
		return 3, nil
	}
	return 2, nil
}

func (f *fakeDashboardRepo) RevenueCents(_ context.Context, window models.DateWindow) (int64, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.failWith != nil {
		return 0, f.failWith
	}
	if window == f.current {
		return 15000, nil
	}
	return 10000, nil
}

func (f *fakeDashboardRepo) CountRequests(_ context.Context, window models.DateWindow) (int, error) {
	atomic.AddInt32(&f.calls, 1)
	if window == f.current {
		return 4, nil
	}
	return 0, nil
}

func (f *fakeDashboardRepo) CountRequestsByStatus(context.Context) (map[models.SessionRequestStatus]int, error) {
	atomic.AddInt32(&f.calls, 1)
	return map[models.SessionRequestStatus]int{
		models.SessionRequestAccepted: 3,
		models.SessionRequestDeclined: 1,
		models.SessionRequestPending:  2,
		models.SessionRequestExpired:  1,
	}, nil
}

func newDashboardFixture(repo *fakeDashboardRepo, cache *CacheService) *DashboardService {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	repo.current, _ = monthWindows(now)
	svc := NewDashboardService(repo, cache, DashboardServiceConfig{}, zap.NewNop())
	svc.now = func() time.Time { return now }
	return svc
}

func TestDashboardStatsAggregates(t *testing.T) {
	repo := &fakeDashboardRepo{}
	svc := newDashboardFixture(repo, nil)

	stats, cached, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 10, stats.TotalUsers)
	assert.Equal(t, 2, stats.ActiveTeachers)
	assert.Equal(t, 1, stats.PendingTeacherReviews)
	assert.EqualValues(t, 15000, stats.MonthlyRevenueCents)
	assert.Equal(t, 50.0, stats.RevenueChangePercent)
	assert.Equal(t, 50.0, stats.UserGrowthPercent)
	assert.Equal(t, 100.0, stats.RequestGrowthPercent)
	assert.Equal(t, 7, stats.TotalSessions)
	assert.Equal(t, 4, stats.AnsweredSessions)
	assert.Equal(t, 75.0, stats.SuccessRate)
}

func TestDashboardStatsUsesCache(t *testing.T) {
	repo := &fakeDashboardRepo{}
	cache := NewCacheService(&stubCacheRepo{}, nil, time.Minute, zap.NewNop(), true)
	svc := newDashboardFixture(repo, cache)
	ctx := context.Background()

	_, cached, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.False(t, cached)
	calls := atomic.LoadInt32(&repo.calls)

	stats, cached, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 10, stats.TotalUsers)
	assert.Equal(t, calls, atomic.LoadInt32(&repo.calls))

	cache.Invalidate(ctx, dashboardCachePattern)
	_, cached, err = svc.Stats(ctx)
	require.NoError(t, err)
	assert.False(t, cached)
}

func TestDashboardStatsFailure(t *testing.T) {
	repo := &fakeDashboardRepo{failWith: errors.New("db down")}
	svc := newDashboardFixture(repo, nil)

	_, _, err := svc.Stats(context.Background())
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
}

func TestMonthWindowsAndDeltas(t *testing.T) {
	current, previous := monthWindows(time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), current.From)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), current.To)
	assert.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), previous.From)

	assert.Equal(t, 0.0, changePercent(0, 0))
	assert.Equal(t, -25.0, changePercent(3, 4))
	assert.Equal(t, 33.33, ratioPercent(1, 3))
}
