package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"suburbiq/internal/model"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"
)

// NearbySource finds peer suburbs for comparison
type NearbySource interface {
	Nearby(ctx context.Context, suburb, state string, limit int) ([]string, error)
}

// CentroidNearby ranks suburbs by distance between pgvector centroids
// stored in suburb_centroids (suburb, state, centroid vector(2))
type CentroidNearby struct {
	db *sqlx.DB
}

// NewCentroidNearby creates a pgvector-backed nearby source
func NewCentroidNearby(db *sqlx.DB) *CentroidNearby {
	return &CentroidNearby{db: db}
}

// Nearby returns up to limit suburbs in the same state ordered by centroid distance
func (n *CentroidNearby) Nearby(ctx context.Context, suburb, state string, limit int) ([]string, error) {
	var centroid pgvector.Vector
	err := n.db.GetContext(ctx, &centroid,
		`SELECT centroid FROM suburb_centroids WHERE suburb = $1 AND state = $2`, suburb, state)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load centroid: %w", err)
	}

	var names []string
	err = n.db.SelectContext(ctx, &names, `
		SELECT suburb
		FROM suburb_centroids
		WHERE state = $1 AND suburb <> $2
		ORDER BY centroid <-> $3
		LIMIT $4
	`, state, suburb, centroid, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to rank nearby suburbs: %w", err)
	}
	return names, nil
}

// LGANearby treats suburbs sharing an LGA as neighbours. It runs through the
// query compiler so it works on every driver.
type LGANearby struct {
	data Fetcher
}

// NewLGANearby creates an LGA-based nearby source
func NewLGANearby(data Fetcher) *LGANearby {
	return &LGANearby{data: data}
}

// Nearby returns up to limit other suburbs in the same LGA, alphabetically
func (n *LGANearby) Nearby(ctx context.Context, suburb, state string, limit int) ([]string, error) {
	rows, err := n.data.Fetch(ctx, model.TableQuery{
		ID:      "nearby-lga:" + suburb,
		Table:   "price_table",
		Select:  []string{"lga"},
		Filters: []model.Filter{model.Eq("suburb", suburb), model.Eq("state", state), model.NotNull("lga")},
		Limit:   1,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	lga := rows[0].String("lga")

	rows, err = n.data.Fetch(ctx, model.TableQuery{
		ID:      "nearby-peers:" + lga,
		Table:   "price_table",
		Select:  []string{"suburb"},
		Filters: []model.Filter{model.Eq("lga", lga), model.Eq("state", state), model.IsNull("bedrooms")},
		OrderBy: &model.OrderBy{Col: "suburb"},
	})
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{suburb: true}
	var names []string
	for _, r := range rows {
		name := r.String("suburb")
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
		if limit > 0 && len(names) >= limit {
			break
		}
	}
	return names, nil
}

// FallbackNearby asks Primary first and uses Secondary when it errors or finds nothing
type FallbackNearby struct {
	Primary   NearbySource
	Secondary NearbySource
}

// Nearby implements NearbySource
func (f FallbackNearby) Nearby(ctx context.Context, suburb, state string, limit int) ([]string, error) {
	names, err := f.Primary.Nearby(ctx, suburb, state, limit)
	if err == nil && len(names) > 0 {
		return names, nil
	}
	if f.Secondary == nil {
		return names, err
	}
	return f.Secondary.Nearby(ctx, suburb, state, limit)
}
