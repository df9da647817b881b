package cache

import (
	"context"
	"time"

	"cicilanpos/backend/internal/domain"
)

// PlanProjectionCache holds derived plan read models. Entries are
// TTL-bounded and dropped on every plan mutation; the authoritative
// state always lives in the repository.
type PlanProjectionCache interface {
	Get(ctx context.Context, planID string) (*domain.PlanProjection, bool, error)
	Set(ctx context.Context, planID string, value *domain.PlanProjection, ttl time.Duration) error
	Invalidate(ctx context.Context, planID string) error
}

type NoopPlanProjectionCache struct{}

func (NoopPlanProjectionCache) Get(_ context.Context, _ string) (*domain.PlanProjection, bool, error) {
	return nil, false, nil
}

func (NoopPlanProjectionCache) Set(_ context.Context, _ string, _ *domain.PlanProjection, _ time.Duration) error {
	return nil
}

func (NoopPlanProjectionCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
