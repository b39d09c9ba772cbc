package yield

import (
	"context"
	"fmt"

	"suburbiq/internal/model"
	"suburbiq/internal/observability"
	"suburbiq/internal/store"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// StateAverage averages LGA-level yields per property type, to two decimals.
// A type without any finite value is nil.
func StateAverage(obs []Observation) model.StateAverage {
	values := map[string][]float64{}
	for _, o := range obs {
		if o.Value != nil {
			values[o.PropertyType] = append(values[o.PropertyType], *o.Value)
		}
	}

	var avg model.StateAverage
	for _, pt := range []string{model.PropertyHouse, model.PropertyUnit} {
		data := values[pt]
		if len(data) == 0 {
			continue
		}
		mean, err := stats.Mean(data)
		if err != nil {
			continue
		}
		rounded, err := stats.Round(mean, 2)
		if err != nil {
			continue
		}
		v := rounded
		if pt == model.PropertyHouse {
			avg.House = &v
		} else {
			avg.Unit = &v
		}
	}
	return avg
}

// AverageLoader fetches the LGA-level yields for one state and year
type AverageLoader func(ctx context.Context, state string, year int) ([]Observation, error)

// StateAverager computes state averages at most once per key. Concurrent
// misses for the same key share one computation; failures are not cached.
type StateAverager struct {
	cache   store.AverageCache
	load    AverageLoader
	group   singleflight.Group
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewStateAverager creates an averager over cache and load
func NewStateAverager(cache store.AverageCache, load AverageLoader, logger *zap.Logger, metrics *observability.Metrics) *StateAverager {
	return &StateAverager{
		cache:   cache,
		load:    load,
		logger:  logger,
		metrics: metrics,
	}
}

// Get returns the cached average for (state, year), computing it on a miss
func (a *StateAverager) Get(ctx context.Context, state string, year int) (model.StateAverage, error) {
	key := store.AverageKey(state, year)

	cached, ok, err := a.cache.Get(ctx, key)
	if err != nil {
		a.logger.Warn("average cache read failed, recomputing", zap.String("key", key), zap.Error(err))
	}
	if ok {
		a.metrics.CacheLookup(true)
		a.logger.Debug("average cache hit", zap.String("key", key))
		return cached, nil
	}
	a.metrics.CacheLookup(false)

	v, err, shared := a.group.Do(key, func() (interface{}, error) {
		obs, err := a.load(ctx, state, year)
		if err != nil {
			return model.StateAverage{}, err
		}
		avg := StateAverage(obs)
		if err := a.cache.Set(ctx, key, avg); err != nil {
			a.logger.Warn("average cache write failed", zap.String("key", key), zap.Error(err))
		}
		return avg, nil
	})
	if err != nil {
		return model.StateAverage{}, fmt.Errorf("failed to compute state average %s: %w", key, err)
	}

	a.logger.Debug("average computed", zap.String("key", key), zap.Bool("shared", shared))
	return v.(model.StateAverage), nil
}
