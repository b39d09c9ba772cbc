// Package repotest provides an in-memory SQLite data service seeded per test.
package repotest

import (
	"context"
	"testing"

	"suburbiq/internal/repository"
	"suburbiq/internal/schema"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// DB wraps an in-memory SQLite database with seeding helpers
type DB struct {
	t  *testing.T
	DB *sqlx.DB
}

// New opens a migrated in-memory SQLite database closed at test cleanup
func New(t *testing.T) *DB {
	t.Helper()

	db, err := sqlx.Connect("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// a single connection keeps every query on the same in-memory database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	if err := repository.MigrateSQLite(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return &DB{t: t, DB: db}
}

// Service returns a SQLDataService over the database
func (d *DB) Service() *repository.SQLDataService {
	return repository.NewSQLDataService(d.DB, repository.NewCompiler(schema.Default()), zap.NewNop(), nil)
}

// Price inserts one price row; bedrooms nil is a rollup
func (d *DB) Price(suburb, state, lga string, year int, propertyType string, bedrooms *int, price float64) *DB {
	d.exec(`INSERT INTO suburb_prices (suburb, state, lga, year, property_type, bedrooms, median_price, sales_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, 10)`, suburb, state, lga, year, propertyType, bedrooms, price)
	return d
}

// Rent inserts one weekly rent row; bedrooms nil is a rollup
func (d *DB) Rent(suburb, state, lga string, year int, propertyType string, bedrooms *int, rentWeekly float64) *DB {
	d.exec(`INSERT INTO suburb_rents (suburb, state, lga, year, property_type, bedrooms, median_rent_weekly, bond_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, 10)`, suburb, state, lga, year, propertyType, bedrooms, rentWeekly)
	return d
}

// YieldHistory inserts one historical gross yield
func (d *DB) YieldHistory(suburb, state string, year int, propertyType string, yield float64) *DB {
	d.exec(`INSERT INTO suburb_yield_history (suburb, state, year, property_type, gross_yield)
		VALUES (?, ?, ?, ?, ?)`, suburb, state, year, propertyType, yield)
	return d
}

// LGAYield inserts one LGA-level average yield
func (d *DB) LGAYield(lga, state string, year int, propertyType string, yield float64) *DB {
	d.exec(`INSERT INTO lga_yield_averages (lga, state, year, property_type, avg_yield)
		VALUES (?, ?, ?, ?, ?)`, lga, state, year, propertyType, yield)
	return d
}

func (d *DB) exec(query string, args ...interface{}) {
	d.t.Helper()
	if _, err := d.DB.Exec(query, args...); err != nil {
		d.t.Fatalf("seed: %v", err)
	}
}

// Beds is a pointer helper for bedroom counts
func Beds(n int) *int {
	return &n
}
