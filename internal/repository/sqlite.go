package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// sqliteSchema mirrors the Postgres tables for local development and tests.
// suburb_centroids is Postgres-only (pgvector).
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS suburb_prices (
		suburb TEXT NOT NULL,
		state TEXT NOT NULL,
		lga TEXT,
		year INTEGER NOT NULL,
		property_type TEXT NOT NULL,
		bedrooms INTEGER,
		median_price REAL,
		sales_count INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS suburb_rents (
		suburb TEXT NOT NULL,
		state TEXT NOT NULL,
		lga TEXT,
		year INTEGER NOT NULL,
		property_type TEXT NOT NULL,
		bedrooms INTEGER,
		median_rent_weekly REAL,
		bond_count INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS suburb_yield_history (
		suburb TEXT NOT NULL,
		state TEXT NOT NULL,
		year INTEGER NOT NULL,
		property_type TEXT NOT NULL,
		gross_yield REAL
	)`,
	`CREATE TABLE IF NOT EXISTS lga_yield_averages (
		lga TEXT NOT NULL,
		state TEXT NOT NULL,
		year INTEGER NOT NULL,
		property_type TEXT NOT NULL,
		avg_yield REAL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_prices_suburb ON suburb_prices (suburb, state, property_type, year)`,
	`CREATE INDEX IF NOT EXISTS idx_rents_suburb ON suburb_rents (suburb, state, property_type, year)`,
}

// MigrateSQLite creates the data tables in a SQLite database if missing
func MigrateSQLite(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate sqlite schema: %w", err)
		}
	}
	return nil
}
