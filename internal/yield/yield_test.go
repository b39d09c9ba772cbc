package yield

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"suburbiq/internal/model"
	"suburbiq/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func f(v float64) *float64 { return &v }
func i(v int) *int         { return &v }

func TestGrossYield(t *testing.T) {
	tests := []struct {
		name  string
		price *float64
		rent  *float64
		want  *float64
	}{
		{"typical house", f(500000), f(450), f(4.7)},
		{"rounds to one decimal", f(650000), f(520), f(4.2)},
		{"zero rent", f(500000), f(0), f(0)},
		{"missing price", nil, f(450), nil},
		{"missing rent", f(500000), nil, nil},
		{"zero price", f(0), f(450), nil},
		{"negative price", f(-1), f(450), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GrossYield(tt.price, tt.rent)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestDelta(t *testing.T) {
	assert.Nil(t, Delta(nil, f(1)))
	assert.Nil(t, Delta(f(1), nil))
	assert.Equal(t, 0.6, *Delta(f(4.7), f(4.1)))
	assert.Equal(t, -1.2, *Delta(f(3.0), f(4.2)))
}

func TestLatestRollup(t *testing.T) {
	prices := []Observation{
		{Year: 2022, PropertyType: "house", Value: f(500000)},
		{Year: 2023, PropertyType: "house", Value: f(550000)},
		{Year: 2024, PropertyType: "house", Bedrooms: i(3), Value: f(600000)},
		{Year: 2022, PropertyType: "unit", Value: f(350000)},
	}
	rents := []Observation{
		{Year: 2023, PropertyType: "house", Value: f(480)},
		{Year: 2022, PropertyType: "unit", Value: f(380)},
	}

	pr := LatestRollup(prices, rents, []string{"house", "unit"})
	require.NotNil(t, pr.Year)
	assert.Equal(t, 2023, *pr.Year, "bedroom rows are not rollups")
	assert.Equal(t, 550000.0, *pr.Price.House)
	assert.Equal(t, 480.0, *pr.Rent.House)
	assert.Nil(t, pr.Price.Unit, "unit has no 2023 rollup")
	assert.Nil(t, pr.Rent.Unit)

	yields := LatestYield(pr, []string{"house", "unit"})
	assert.Equal(t, 4.5, *yields.House)
	assert.Nil(t, yields.Unit)

	empty := LatestRollup(nil, rents, []string{"house"})
	assert.Nil(t, empty.Year)
}

func TestSeriesLength(t *testing.T) {
	obs := []Observation{
		{Year: 2021, PropertyType: "house", Value: f(4.0)},
		{Year: 2023, PropertyType: "house", Value: f(4.6)},
		{Year: 2023, PropertyType: "unit", Value: f(5.1)},
	}

	tests := []struct {
		name          string
		lastN         int
		wantHouse     []*float64
		wantDirection string
	}{
		{"default window", 3, []*float64{f(4.0), nil, f(4.6)}, DirectionUp},
		{"sparse longer window", 5, []*float64{nil, nil, f(4.0), nil, f(4.6)}, DirectionUp},
		{"single year", 1, []*float64{f(4.6)}, DirectionInsufficient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			series := Series(obs, []string{"house", "unit"}, 2023, tt.lastN)
			require.Len(t, series, 2)
			for _, s := range series {
				assert.Len(t, s.Points, tt.lastN)
				assert.Equal(t, 2023, s.Points[len(s.Points)-1].Year)
			}

			house := series[0]
			assert.Equal(t, "house", house.PropertyType)
			for k, want := range tt.wantHouse {
				assert.Equal(t, want, house.Points[k].Value, "point %d", k)
			}
			assert.Equal(t, tt.wantDirection, house.Direction)
			assert.Equal(t, DirectionInsufficient, series[1].Direction)
		})
	}
}

func TestSeriesTrend(t *testing.T) {
	obs := []Observation{
		{Year: 2022, PropertyType: "unit", Value: f(5.0)},
		{Year: 2023, PropertyType: "unit", Value: f(4.4)},
		{Year: 2022, PropertyType: "house", Value: f(4.0)},
		{Year: 2023, PropertyType: "house", Value: f(4.0)},
	}
	series := Series(obs, []string{"house", "unit"}, 2023, 2)

	assert.Equal(t, DirectionFlat, series[0].Direction)
	assert.Equal(t, 0.0, *series[0].Change)
	assert.Equal(t, DirectionDown, series[1].Direction)
	assert.Equal(t, -0.6, *series[1].Change)
}

func TestSeriesEndYear(t *testing.T) {
	assert.Equal(t, 2020, SeriesEndYear(nil, 2020))
	assert.Equal(t, 2023, SeriesEndYear([]Observation{{Year: 2021}, {Year: 2023}}, 2020))
}

func TestBedroomPreference(t *testing.T) {
	assert.Equal(t, []int{4, 3, 2}, BedroomPreference(nil, []int{4, 3, 2}))
	assert.Equal(t, []int{3, 4, 2}, BedroomPreference([]int{3}, []int{4, 3, 2}))
	assert.Equal(t, []int{5, 1, 2, 3}, BedroomPreference([]int{5, 1}, []int{2, 1, 3}))
}

func TestPickBedroom(t *testing.T) {
	pref := BedroomPreference([]int{3}, []int{4, 3, 2})
	require.Equal(t, []int{3, 4, 2}, pref)

	tests := []struct {
		name     string
		prices   []Observation
		rents    []Observation
		wantBeds int
		wantNil  bool
	}{
		{
			name: "requested count present",
			prices: []Observation{
				{Year: 2023, PropertyType: "house", Bedrooms: i(3), Value: f(600000)},
				{Year: 2023, PropertyType: "house", Bedrooms: i(4), Value: f(800000)},
			},
			rents: []Observation{
				{Year: 2023, PropertyType: "house", Bedrooms: i(3), Value: f(520)},
			},
			wantBeds: 3,
		},
		{
			name: "falls through to 4",
			prices: []Observation{
				{Year: 2023, PropertyType: "house", Bedrooms: i(4), Value: f(800000)},
				{Year: 2023, PropertyType: "house", Bedrooms: i(2), Value: f(450000)},
			},
			wantBeds: 4,
		},
		{
			name: "falls through to 2",
			prices: []Observation{
				{Year: 2023, PropertyType: "house", Bedrooms: i(2), Value: f(450000)},
				{Year: 2023, PropertyType: "unit", Bedrooms: i(3), Value: f(500000)},
			},
			wantBeds: 2,
		},
		{
			name: "rollups never count",
			prices: []Observation{
				{Year: 2023, PropertyType: "house", Value: f(700000)},
			},
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := PickBedroom(tt.prices, tt.rents, "house", pref)
			if tt.wantNil {
				assert.Nil(t, snap)
				return
			}
			require.NotNil(t, snap)
			assert.Equal(t, tt.wantBeds, snap.Bedroom)
			assert.Equal(t, 2023, snap.Year)
		})
	}
}

func TestPickBedroomUsesLatestYear(t *testing.T) {
	prices := []Observation{
		{Year: 2022, PropertyType: "unit", Bedrooms: i(2), Value: f(400000)},
		{Year: 2023, PropertyType: "unit", Bedrooms: i(2), Value: f(420000)},
	}
	rents := []Observation{
		{Year: 2023, PropertyType: "unit", Bedrooms: i(2), Value: f(450)},
	}

	snap := PickBedroom(prices, rents, "unit", []int{2, 1, 3})
	require.NotNil(t, snap)
	assert.Equal(t, 2023, snap.Year)
	assert.Equal(t, 420000.0, *snap.Price)
	assert.Equal(t, 450.0, *snap.RentWeekly)
	assert.Equal(t, 5.6, *snap.ImpliedYield)
}

func TestStateAverage(t *testing.T) {
	avg := StateAverage([]Observation{
		{PropertyType: "house", Value: f(4.0)},
		{PropertyType: "house", Value: f(4.5)},
		{PropertyType: "house", Value: nil},
		{PropertyType: "unit", Value: f(5.0)},
	})
	assert.Equal(t, 4.25, *avg.House)
	assert.Equal(t, 5.0, *avg.Unit)

	assert.Equal(t, model.StateAverage{}, StateAverage(nil))
}

func TestStateAveragerCaches(t *testing.T) {
	var calls atomic.Int32
	load := func(ctx context.Context, state string, year int) ([]Observation, error) {
		calls.Add(1)
		return []Observation{{PropertyType: "house", Value: f(4.2)}}, nil
	}
	cache := store.NewMemoryAverageCache(0)
	a := NewStateAverager(cache, load, zap.NewNop(), nil)

	first, err := a.Get(context.Background(), "VIC", 2023)
	require.NoError(t, err)
	second, err := a.Get(context.Background(), "VIC", 2023)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())

	_, ok, err := cache.Get(context.Background(), store.AverageKey("VIC", 2023))
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = a.Get(context.Background(), "NSW", 2023)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestStateAveragerSharesConcurrentMisses(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	load := func(ctx context.Context, state string, year int) ([]Observation, error) {
		calls.Add(1)
		<-release
		return []Observation{{PropertyType: "unit", Value: f(5.0)}}, nil
	}
	a := NewStateAverager(store.NewMemoryAverageCache(0), load, zap.NewNop(), nil)

	var wg sync.WaitGroup
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			avg, err := a.Get(context.Background(), "QLD", 2022)
			assert.NoError(t, err)
			assert.Equal(t, 5.0, *avg.Unit)
		}()
	}

	// let the callers pile up behind the first load
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestStateAveragerDoesNotCacheFailures(t *testing.T) {
	fail := true
	load := func(ctx context.Context, state string, year int) ([]Observation, error) {
		if fail {
			return nil, errors.New("backend down")
		}
		return []Observation{{PropertyType: "house", Value: f(3.9)}}, nil
	}
	a := NewStateAverager(store.NewMemoryAverageCache(0), load, zap.NewNop(), nil)

	_, err := a.Get(context.Background(), "SA", 2023)
	require.Error(t, err)

	fail = false
	avg, err := a.Get(context.Background(), "SA", 2023)
	require.NoError(t, err)
	assert.Equal(t, 3.9, *avg.House)
}
