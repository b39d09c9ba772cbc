package service

import (
	"context"
	"errors"
	"time"

	"suburbiq/internal/config"
	"suburbiq/internal/model"
	"suburbiq/internal/observability"
	"suburbiq/internal/repository"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ResilientFetcher bounds every data-service read with a timeout, retries
// transient failures and throttles the overall read rate
type ResilientFetcher struct {
	next    repository.Fetcher
	timeout time.Duration
	retries int
	backoff time.Duration
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewResilientFetcher wraps next with the engine limits from cfg
func NewResilientFetcher(next repository.Fetcher, cfg config.EngineConfig, logger *zap.Logger, metrics *observability.Metrics) *ResilientFetcher {
	f := &ResilientFetcher{
		next:    next,
		timeout: cfg.FetchTimeout,
		retries: cfg.FetchRetries,
		backoff: 50 * time.Millisecond,
		logger:  logger,
		metrics: metrics,
	}
	if cfg.FetchRate > 0 {
		burst := cfg.FetchBurst
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(cfg.FetchRate), burst)
	}
	if f.retries < 0 {
		f.retries = 0
	}
	return f
}

// Fetch implements repository.Fetcher
func (f *ResilientFetcher) Fetch(ctx context.Context, q model.TableQuery) ([]model.Row, error) {
	var lastErr error

	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			f.metrics.Retry(q.Table)
			select {
			case <-ctx.Done():
				return nil, &repository.DataFetchError{Table: q.Table, Err: ctx.Err()}
			case <-time.After(f.backoff * time.Duration(attempt)):
			}
		}

		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, &repository.DataFetchError{Table: q.Table, Err: err}
			}
		}

		rows, err := f.attempt(ctx, q)
		if err == nil {
			return rows, nil
		}
		lastErr = err

		f.logger.Warn("data fetch failed",
			zap.String("query_id", q.ID),
			zap.String("table", q.Table),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		if ctx.Err() != nil || !transient(err) {
			break
		}
	}

	var fetchErr *repository.DataFetchError
	if errors.As(lastErr, &fetchErr) {
		return nil, lastErr
	}
	return nil, &repository.DataFetchError{Table: q.Table, Err: lastErr}
}

func (f *ResilientFetcher) attempt(ctx context.Context, q model.TableQuery) ([]model.Row, error) {
	if f.timeout <= 0 {
		return f.next.Fetch(ctx, q)
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	return f.next.Fetch(ctx, q)
}

func transient(err error) bool {
	var fetchErr *repository.DataFetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Transient()
	}
	return !errors.Is(err, context.Canceled)
}
