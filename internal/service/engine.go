package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"suburbiq/internal/model"
	"suburbiq/internal/repository"
	"suburbiq/internal/schema"
	"suburbiq/internal/yield"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MissingSuburbError is returned when a plan needs a suburb and has none.
// Callers surface it as a request for the suburb, not as a failure.
type MissingSuburbError struct {
	Plan model.QueryPlan
}

func (e *MissingSuburbError) Error() string {
	return "plan has no suburb"
}

// rollupLimit bounds the years of headline rows read per property type
const rollupLimit = 10

// Engine executes normalized plans against the data service
type Engine struct {
	data     repository.Fetcher
	averager *yield.StateAverager
	registry *schema.Registry
	logger   *zap.Logger
	now      func() time.Time
}

// NewEngine creates an execution engine. data should already be resilient.
func NewEngine(data repository.Fetcher, averager *yield.StateAverager, registry *schema.Registry, logger *zap.Logger) *Engine {
	return &Engine{
		data:     data,
		averager: averager,
		registry: registry,
		logger:   logger,
		now:      time.Now,
	}
}

// LoadStateAverage reads LGA-level yields for the state average cache
func LoadStateAverage(data repository.Fetcher) yield.AverageLoader {
	return func(ctx context.Context, state string, year int) ([]yield.Observation, error) {
		rows, err := data.Fetch(ctx, model.TableQuery{
			ID:      fmt.Sprintf("state-average:%s-%d", state, year),
			Table:   "lga_yield",
			Select:  []string{"year", "property_type", "avg_yield"},
			Filters: []model.Filter{model.Eq("state", state), model.Eq("year", year)},
		})
		if err != nil {
			return nil, err
		}
		return yield.Observations(rows, "avg_yield"), nil
	}
}

// execution collects one bundle's results from concurrent sub-fetches
type execution struct {
	plan     model.QueryPlan
	mu       sync.Mutex
	bundle   *model.ResultBundle
	warnings []string
	logger   *zap.Logger
}

func (x *execution) warn(field string, err error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.warnings = append(x.warnings, fmt.Sprintf("%s: %v", field, err))
	x.logger.Warn("result field degraded",
		zap.String("suburb", x.plan.Suburb),
		zap.String("field", field),
		zap.Error(err),
	)
}

// Execute runs every action in p. Only a missing suburb is an error; any
// failed sub-fetch leaves its field empty and adds a warning.
func (e *Engine) Execute(ctx context.Context, p model.QueryPlan, nearby []string) (*model.ResultBundle, error) {
	if p.Suburb == "" {
		return nil, &MissingSuburbError{Plan: p}
	}

	if len(p.PropertyTypes) == 0 {
		p.PropertyTypes = e.registry.PropertyTypes()
	}

	start := e.now()
	x := &execution{
		plan:   p,
		bundle: &model.ResultBundle{Suburb: p.Suburb, State: p.State, Plan: p},
		logger: e.logger,
	}

	// phase 1: headline price/rent, which yield, comparisons and averages depend on
	var latest model.LatestPR
	var latestYield model.ByType
	needLatest := p.Has(model.ActionPriceRentLatest) || p.Has(model.ActionYieldLatest) ||
		p.Has(model.ActionCompareNearby) || p.Has(model.ActionBedroomSnapshot)
	if needLatest {
		latest = e.latestRollup(ctx, x, p.Suburb, p.State, p.PropertyTypes, nil)
		latestYield = yield.LatestYield(latest, p.PropertyTypes)
		if p.Has(model.ActionPriceRentLatest) || p.Has(model.ActionBedroomSnapshot) {
			x.bundle.LatestPR = &latest
		}
		if p.Has(model.ActionYieldLatest) {
			x.bundle.LatestYield = &latestYield
		}
	}

	// phase 2: independent actions, all awaited, none cancelling the others
	var g errgroup.Group
	if p.Has(model.ActionYieldSeries) {
		g.Go(func() error {
			e.yieldSeries(ctx, x, latest.Year)
			return nil
		})
	}
	if p.Has(model.ActionBedroomSnapshot) {
		g.Go(func() error {
			e.bedroomSnapshots(ctx, x)
			return nil
		})
	}
	if p.Has(model.ActionCompareNearby) {
		g.Go(func() error {
			e.compareNearby(ctx, x, latest.Year, latestYield, nearby)
			return nil
		})
	}
	if latest.Year != nil && e.averager != nil {
		g.Go(func() error {
			e.capitalAverage(ctx, x, *latest.Year, latestYield)
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(x.warnings)
	x.bundle.Warnings = x.warnings
	x.bundle.Took = e.now().Sub(start).Milliseconds()
	return x.bundle, nil
}

// latestRollup fetches price and rent rollups for every type concurrently.
// year, when set, pins the read to one year.
func (e *Engine) latestRollup(ctx context.Context, x *execution, suburb, state string, types []string, year *int) model.LatestPR {
	var (
		mu     sync.Mutex
		prices []yield.Observation
		rents  []yield.Observation
		g      errgroup.Group
	)

	for _, pt := range types {
		for _, src := range []struct {
			table, col string
			into       *[]yield.Observation
		}{
			{"price_table", "median_price", &prices},
			{"rent_table", "median_rent_weekly", &rents},
		} {
			g.Go(func() error {
				filters := []model.Filter{
					model.Eq("suburb", suburb),
					model.Eq("state", state),
					model.Eq("property_type", pt),
					model.IsNull("bedrooms"),
				}
				if year != nil {
					filters = append(filters, model.Eq("year", *year))
				}
				rows, err := e.data.Fetch(ctx, model.TableQuery{
					ID:      fmt.Sprintf("rollup:%s:%s:%s", src.table, suburb, pt),
					Table:   src.table,
					Select:  []string{"year", "property_type", src.col},
					Filters: filters,
					OrderBy: &model.OrderBy{Col: "year", Desc: true},
					Limit:   rollupLimit,
				})
				if err != nil {
					x.warn(fmt.Sprintf("%s %s %s", suburb, src.table, pt), err)
					return nil
				}
				obs := yield.Observations(rows, src.col)
				mu.Lock()
				*src.into = append(*src.into, obs...)
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	return yield.LatestRollup(prices, rents, types)
}

func (e *Engine) yieldSeries(ctx context.Context, x *execution, latestYear *int) {
	p := x.plan
	lastN := p.LastN()

	filters := []model.Filter{
		model.Eq("suburb", p.Suburb),
		model.Eq("state", p.State),
		model.In("property_type", toAny(p.PropertyTypes)...),
	}
	// an explicit range only applies when it is what LastN reports
	ranged := p.Years.From != nil && p.Years.To != nil && *p.Years.To-*p.Years.From+1 == lastN
	if ranged {
		filters = append(filters, model.Between("year", *p.Years.From, *p.Years.To))
	}

	rows, err := e.data.Fetch(ctx, model.TableQuery{
		ID:      "yield-series:" + p.Suburb,
		Table:   "yield_history",
		Select:  []string{"year", "property_type", "gross_yield"},
		Filters: filters,
		OrderBy: &model.OrderBy{Col: "year", Desc: true},
	})
	if err != nil {
		x.warn("yieldSeries", err)
		return
	}
	obs := yield.Observations(rows, "gross_yield")

	fallback := e.now().Year()
	if latestYear != nil {
		fallback = *latestYear
	}
	end := yield.SeriesEndYear(obs, fallback)
	if ranged {
		end = *p.Years.To
	}

	series := yield.Series(obs, p.PropertyTypes, end, lastN)
	x.mu.Lock()
	x.bundle.YieldSeries = series
	x.mu.Unlock()
}

// bedroomSnapshots reads bedroom-level price and rent rows for every type
// concurrently, then picks one bedroom count per type
func (e *Engine) bedroomSnapshots(ctx context.Context, x *execution) {
	p := x.plan
	prices := make([][]yield.Observation, len(p.PropertyTypes))
	rents := make([][]yield.Observation, len(p.PropertyTypes))

	var g errgroup.Group
	for k, pt := range p.PropertyTypes {
		for _, src := range []struct {
			table, col, field string
			into              *[]yield.Observation
		}{
			{"price_table", "median_price", "price", &prices[k]},
			{"rent_table", "median_rent_weekly", "rent", &rents[k]},
		} {
			g.Go(func() error {
				obs, err := e.bedroomRows(ctx, src.table, src.col, p, pt)
				if err != nil {
					x.warn("bedroom "+pt+" "+src.field, err)
					return nil
				}
				*src.into = obs
				return nil
			})
		}
	}
	_ = g.Wait()

	x.mu.Lock()
	defer x.mu.Unlock()
	for k, pt := range p.PropertyTypes {
		pref := yield.BedroomPreference(p.RequestedBedrooms(), e.registry.BedroomPreference(pt))
		snap := yield.PickBedroom(prices[k], rents[k], pt, pref)
		switch pt {
		case model.PropertyHouse:
			x.bundle.BedroomHouse = snap
		case model.PropertyUnit:
			x.bundle.BedroomUnit = snap
		}
	}
}

func (e *Engine) bedroomRows(ctx context.Context, table, col string, p model.QueryPlan, pt string) ([]yield.Observation, error) {
	rows, err := e.data.Fetch(ctx, model.TableQuery{
		ID:    fmt.Sprintf("bedroom:%s:%s:%s", table, p.Suburb, pt),
		Table: table,
		Select: []string{
			"year", "property_type", "bedrooms", col,
		},
		Filters: []model.Filter{
			model.Eq("suburb", p.Suburb),
			model.Eq("state", p.State),
			model.Eq("property_type", pt),
			model.NotNull("bedrooms"),
		},
		OrderBy: &model.OrderBy{Col: "year", Desc: true},
	})
	if err != nil {
		return nil, err
	}
	return yield.Observations(rows, col), nil
}

// compareNearby reads peer yields for the primary's latest year. At most
// MaxCompareSuburbs peers are read however many are offered.
func (e *Engine) compareNearby(ctx context.Context, x *execution, year *int, primary model.ByType, nearby []string) {
	p := x.plan
	if year == nil {
		x.warn("nearbyCompare", fmt.Errorf("no latest year for %s", p.Suburb))
		return
	}

	peers := comparePeers(p, nearby)
	rows := make([]model.NearbyRow, len(peers))
	var g errgroup.Group
	for k, peer := range peers {
		g.Go(func() error {
			pr := e.latestRollup(ctx, x, peer, p.State, p.PropertyTypes, year)
			ly := yield.LatestYield(pr, p.PropertyTypes)
			rows[k] = model.NearbyRow{
				Suburb:     peer,
				House:      ly.House,
				Unit:       ly.Unit,
				HouseDelta: yield.Delta(ly.House, primary.House),
				UnitDelta:  yield.Delta(ly.Unit, primary.Unit),
			}
			return nil
		})
	}
	_ = g.Wait()

	x.mu.Lock()
	x.bundle.NearbyCompare = &model.NearbyCompare{Year: *year, Rows: rows}
	x.mu.Unlock()
}

// comparePeers lists explicit compare suburbs first, then context neighbours,
// skipping the primary and duplicates, capped at MaxCompareSuburbs
func comparePeers(p model.QueryPlan, nearby []string) []string {
	var candidates []string
	if p.Compare != nil {
		candidates = append(candidates, p.Compare.Suburbs...)
	}
	candidates = append(candidates, nearby...)

	seen := map[string]bool{strings.ToLower(p.Suburb): true}
	peers := []string{}
	for _, c := range candidates {
		key := strings.ToLower(strings.TrimSpace(c))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		peers = append(peers, strings.TrimSpace(c))
		if len(peers) == model.MaxCompareSuburbs {
			break
		}
	}
	return peers
}

func (e *Engine) capitalAverage(ctx context.Context, x *execution, year int, latestYield model.ByType) {
	avg, err := e.averager.Get(ctx, x.plan.State, year)
	if err != nil {
		x.warn("capitalAvg", err)
		return
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.bundle.CapitalAvg = &avg
	if x.plan.Has(model.ActionYieldLatest) {
		x.bundle.CapitalDelta = &model.ByType{
			House: yield.Delta(latestYield.House, avg.House),
			Unit:  yield.Delta(latestYield.Unit, avg.Unit),
		}
	}
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
