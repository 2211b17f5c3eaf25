package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/phd-admission-api/internal/models"
)

const statsCacheKey = "analytics:admission:stats"

// AnalyticsRepository describes the persistence layer required by AnalyticsService.
type AnalyticsRepository interface {
	CountApplications(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context) ([]models.StatusCount, error)
	CountByCandidateType(ctx context.Context) ([]models.StatusCount, error)
	CountCreatedSince(ctx context.Context, since time.Time) (int, error)
}

// AnalyticsService provides read-optimised access to admission statistics with cache integration.
type AnalyticsService struct {
	repo    AnalyticsRepository
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewAnalyticsService constructs an analytics service.
func NewAnalyticsService(repo AnalyticsRepository, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsService{repo: repo, cache: cache, metrics: metrics, logger: logger, now: time.Now}
}

// Stats returns the dashboard counts. The boolean indicates whether data originated from cache.
func (s *AnalyticsService) Stats(ctx context.Context) (*models.AdmissionStats, bool, error) {
	var cached models.AdmissionStats
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, statsCacheKey, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}

	start := time.Now()
	stats, err := s.collect(ctx)
	if err != nil {
		return nil, false, err
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("analytics_stats", time.Since(start))
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, statsCacheKey, stats, 0); err != nil {
			s.logger.Warn("cache admission stats", zap.Error(err))
		}
	}
	return stats, false, nil
}

// Invalidate drops the cached stats so the next read recomputes them.
func (s *AnalyticsService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Invalidate(ctx, makeAnalyticsCacheKey("admission", "*"))
}

// SystemMetrics returns system instrumentation snapshot.
func (s *AnalyticsService) SystemMetrics() models.SystemMetrics {
	if s.metrics == nil {
		return models.SystemMetrics{}
	}
	return s.metrics.Snapshot()
}

// collect runs the independent counts concurrently; the first failure cancels the rest.
func (s *AnalyticsService) collect(ctx context.Context) (*models.AdmissionStats, error) {
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekStart := today.AddDate(0, 0, -((int(today.Weekday()) + 6) % 7))

	stats := &models.AdmissionStats{
		ByStatus:        map[models.ApplicationStatus]int{},
		ByCandidateType: map[models.CandidateType]int{},
	}
	var byStatus, byType []models.StatusCount

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		total, err := s.repo.CountApplications(ctx)
		stats.Total = total
		return err
	})
	g.Go(func() error {
		var err error
		byStatus, err = s.repo.CountByStatus(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		byType, err = s.repo.CountByCandidateType(ctx)
		return err
	})
	g.Go(func() error {
		count, err := s.repo.CountCreatedSince(ctx, today)
		stats.SubmissionsToday = count
		return err
	})
	g.Go(func() error {
		count, err := s.repo.CountCreatedSince(ctx, weekStart)
		stats.SubmissionsThisWeek = count
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("collect admission stats: %w", err)
	}

	for _, row := range byStatus {
		stats.ByStatus[models.ApplicationStatus(row.Key)] = row.Count
	}
	for _, row := range byType {
		stats.ByCandidateType[models.CandidateType(row.Key)] = row.Count
	}
	return stats, nil
}

func makeAnalyticsCacheKey(parts ...string) string {
	var builder strings.Builder
	builder.Grow(len(parts) * 16)
	builder.WriteString("analytics")
	for _, part := range parts {
		if part == "" {
			continue
		}
		builder.WriteByte(':')
		builder.WriteString(part)
	}
	return builder.String()
}
