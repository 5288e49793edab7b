package estimator

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Observation holds the binomial data of one entity.
type Observation struct {
	Successes int
	Trials    int
}

// FitAll builds one RateEstimator per entity, sharing prior and support.
// Entities are fitted concurrently by at most workers goroutines
// (workers <= 0 means no limit). The first failure cancels the remaining
// fits and is returned annotated with the entity id.
func FitAll(ctx context.Context, observations map[string]Observation, prior, support []float64, workers int) (map[string]*RateEstimator, error) {
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}

	var mu sync.Mutex
	fitted := make(map[string]*RateEstimator, len(observations))

	for id, obs := range observations {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			re, err := NewRateEstimator(prior, support, obs.Successes, obs.Trials)
			if err != nil {
				return fmt.Errorf("fit %s: %w", id, err)
			}
			mu.Lock()
			fitted[id] = re
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return fitted, nil
}
