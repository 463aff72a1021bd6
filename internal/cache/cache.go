package cache

import (
	"context"
	"time"

	"capslock/backend/internal/domain"
)

// ReportCache holds computed profit reports for a short TTL. Reports are
// rebuilt from the sheets on a miss, so a stale entry only delays a fresh
// figure, it never loses data.
type ReportCache interface {
	GetSummary(ctx context.Context, key string) (*domain.ProfitSummary, bool, error)
	SetSummary(ctx context.Context, key string, value *domain.ProfitSummary, ttl time.Duration) error
	GetSeries(ctx context.Context, key string) ([]domain.MonthBucket, bool, error)
	SetSeries(ctx context.Context, key string, value []domain.MonthBucket, ttl time.Duration) error
}

type NoopReportCache struct{}

func (NoopReportCache) GetSummary(_ context.Context, _ string) (*domain.ProfitSummary, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) SetSummary(_ context.Context, _ string, _ *domain.ProfitSummary, _ time.Duration) error {
	return nil
}

func (NoopReportCache) GetSeries(_ context.Context, _ string) ([]domain.MonthBucket, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) SetSeries(_ context.Context, _ string, _ []domain.MonthBucket, _ time.Duration) error {
	return nil
}
