package service

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

const (
	dashboardCachePattern = "dash:*"
	dashboardStatsKey     = "dash:admin:stats"
)

type dashboardRepository interface {
	CountUsersByRole(ctx context.Context) (map[models.UserRole]int, error)
	CountTeachers(ctx context.Context, status models.VerificationStatus) (int, error)
	CountNewUsers(ctx context.Context, window models.DateWindow) (int, error)
	RevenueCents(ctx context.Context, window models.DateWindow) (int64, error)
	CountRequests(ctx context.Context, window models.DateWindow) (int, error)
	CountRequestsByStatus(ctx context.Context) (map[models.SessionRequestStatus]int, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL time.Duration
}

// DashboardService composes the admin overview.
type DashboardService struct {
	repo   dashboardRepository
	cache  *CacheService
	logger *zap.Logger
	now    func() time.Time
	cfg    DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults. cache may be nil.
func NewDashboardService(repo dashboardRepository, cache *CacheService, cfg DashboardServiceConfig, logger *zap.Logger) *DashboardService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		repo:   repo,
		cache:  cache,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		cfg:    cfg,
	}
}

// Stats returns platform statistics and indicates cache utilisation.
func (s *DashboardService) Stats(ctx context.Context) (*models.DashboardStats, bool, error) {
	return readThrough(ctx, s.cache, dashboardStatsKey, s.cfg.CacheTTL, s.compose)
}

func (s *DashboardService) compose(ctx context.Context) (*models.DashboardStats, error) {
	current, previous := monthWindows(s.now())
	stats := &models.DashboardStats{GeneratedAt: s.now()}
	var byStatus map[models.SessionRequestStatus]int

	// each query writes a distinct field, so no locking is needed
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.UsersByRole, err = s.repo.CountUsersByRole(gctx)
		return err
	})
	g.Go(func() (err error) {
		stats.ActiveTeachers, err = s.repo.CountTeachers(gctx, models.VerificationApproved)
		return err
	})
	g.Go(func() (err error) {
		stats.PendingTeacherReviews, err = s.repo.CountTeachers(gctx, models.VerificationPending)
		return err
	})
	g.Go(func() (err error) {
		stats.MonthlyRevenueCents, err = s.repo.RevenueCents(gctx, current)
		return err
	})
	g.Go(func() (err error) {
		stats.PreviousRevenueCents, err = s.repo.RevenueCents(gctx, previous)
		return err
	})
	g.Go(func() (err error) {
		stats.NewUsersThisMonth, err = s.repo.CountNewUsers(gctx, current)
		return err
	})
	g.Go(func() (err error) {
		stats.NewUsersPreviousMonth, err = s.repo.CountNewUsers(gctx, previous)
		return err
	})
	g.Go(func() (err error) {
		stats.RequestsThisMonth, err = s.repo.CountRequests(gctx, current)
		return err
	})
	g.Go(func() (err error) {
		stats.RequestsPreviousMonth, err = s.repo.CountRequests(gctx, previous)
		return err
	})
	g.Go(func() (err error) {
		byStatus, err = s.repo.CountRequestsByStatus(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load dashboard statistics")
	}

	for _, count := range stats.UsersByRole {
		stats.TotalUsers += count
	}
	for _, count := range byStatus {
		stats.TotalSessions += count
	}
	stats.AcceptedSessions = byStatus[models.SessionRequestAccepted]
	stats.AnsweredSessions = stats.AcceptedSessions + byStatus[models.SessionRequestDeclined]
	stats.SuccessRate = ratioPercent(float64(stats.AcceptedSessions), float64(stats.AnsweredSessions))
	stats.RevenueChangePercent = changePercent(float64(stats.MonthlyRevenueCents), float64(stats.PreviousRevenueCents))
	stats.UserGrowthPercent = changePercent(float64(stats.NewUsersThisMonth), float64(stats.NewUsersPreviousMonth))
	stats.RequestGrowthPercent = changePercent(float64(stats.RequestsThisMonth), float64(stats.RequestsPreviousMonth))
	return stats, nil
}

// monthWindows returns the calendar month containing now and the month before it.
func monthWindows(now time.Time) (current, previous models.DateWindow) {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	current = models.DateWindow{From: start, To: start.AddDate(0, 1, 0)}
	previous = models.DateWindow{From: start.AddDate(0, -1, 0), To: start}
	return current, previous
}

// changePercent is the month-over-month delta; growth from zero counts as 100%.
func changePercent(current, previous float64) float64 {
	if previous == 0 {
		if current == 0 {
			return 0
		}
		return 100
	}
	return round2((current - previous) / previous * 100)
}

func ratioPercent(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return round2(part / whole * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
