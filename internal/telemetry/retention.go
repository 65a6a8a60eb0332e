package telemetry

import (
	"context"
	"errors"
	"fmt"
)

// RetentionStore is the delete side of a Store.
type RetentionStore interface {
	DeleteWeatherOlderThan(ctx context.Context, days int) (int64, error)
	DeleteIndoorOlderThan(ctx context.Context, days int) (int64, error)
}

type PruneResult struct {
	Weather int64
	Indoor  int64
}

// Prune deletes rows older than days from both tables. Both deletes are
// attempted even if one of them fails.
func Prune(ctx context.Context, s RetentionStore, days int) (PruneResult, error) {
	if days <= 0 {
		return PruneResult{}, fmt.Errorf("%w: retention days must be positive, got %d", ErrInvalidConfig, days)
	}

	var (
		res        PruneResult
		wErr, iErr error
	)
	res.Weather, wErr = s.DeleteWeatherOlderThan(ctx, days)
	res.Indoor, iErr = s.DeleteIndoorOlderThan(ctx, days)
	return res, errors.Join(wErr, iErr)
}
