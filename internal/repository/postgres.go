package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"suburbiq/internal/model"
	"suburbiq/internal/observability"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Fetcher reads rows for a whitelisted table query
type Fetcher interface {
	Fetch(ctx context.Context, q model.TableQuery) ([]model.Row, error)
}

// DataFetchError wraps a backend failure for one table read
type DataFetchError struct {
	Table string
	Err   error
}

func (e *DataFetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Table, e.Err)
}

func (e *DataFetchError) Unwrap() error {
	return e.Err
}

// Transient reports whether retrying the read could succeed
func (e *DataFetchError) Transient() bool {
	return !errors.Is(e.Err, context.Canceled) && !errors.Is(e.Err, ErrRejected)
}

// Open connects to the data service database
func Open(driver, dsn string, maxConn, maxIdleConn int) (*sqlx.DB, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(maxConn)
	db.SetMaxIdleConns(maxIdleConn)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// SQLDataService executes compiled table queries against a SQL database
type SQLDataService struct {
	db       *sqlx.DB
	compiler *Compiler
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewSQLDataService creates a data service over db
func NewSQLDataService(db *sqlx.DB, compiler *Compiler, logger *zap.Logger, metrics *observability.Metrics) *SQLDataService {
	return &SQLDataService{
		db:       db,
		compiler: compiler,
		logger:   logger,
		metrics:  metrics,
	}
}

// Fetch compiles and runs q. A whitelist rejection yields an empty result
// and a logged warning; backend failures return a *DataFetchError.
func (s *SQLDataService) Fetch(ctx context.Context, q model.TableQuery) ([]model.Row, error) {
	query, args, err := s.compiler.Build(q)
	if err != nil {
		s.logger.Warn("table query rejected",
			zap.String("query_id", q.ID),
			zap.String("table", q.Table),
			zap.Error(err),
		)
		s.metrics.Fetch(q.Table, "rejected", 0)
		return []model.Row{}, nil
	}

	start := time.Now()
	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		s.metrics.Fetch(q.Table, "error", time.Since(start).Seconds())
		return nil, &DataFetchError{Table: q.Table, Err: err}
	}
	defer rows.Close()

	result := []model.Row{}
	for rows.Next() {
		row := map[string]interface{}{}
		if err := rows.MapScan(row); err != nil {
			s.metrics.Fetch(q.Table, "error", time.Since(start).Seconds())
			return nil, &DataFetchError{Table: q.Table, Err: fmt.Errorf("failed to scan row: %w", err)}
		}
		result = append(result, model.Row(row))
	}
	if err := rows.Err(); err != nil {
		s.metrics.Fetch(q.Table, "error", time.Since(start).Seconds())
		return nil, &DataFetchError{Table: q.Table, Err: err}
	}

	s.metrics.Fetch(q.Table, "ok", time.Since(start).Seconds())
	s.logger.Debug("table query",
		zap.String("query_id", q.ID),
		zap.String("table", q.Table),
		zap.Int("rows", len(result)),
		zap.Duration("took", time.Since(start)),
	)
	return result, nil
}
