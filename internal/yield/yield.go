// Package yield derives rental-yield metrics from raw price and rent rows.
// Everything here except StateAverager is a pure function.
package yield

import (
	"math"

	"suburbiq/internal/model"
)

// Trend directions for a yield series
const (
	DirectionUp           = "up"
	DirectionDown         = "down"
	DirectionFlat         = "flat"
	DirectionInsufficient = "insufficient"
)

// Observation is one numeric figure for a suburb, year and property type.
// Bedrooms nil marks a rollup.
type Observation struct {
	Year         int
	PropertyType string
	Bedrooms     *int
	Value        *float64
}

// Observations converts data-service rows into observations of valueCol.
// Rows without a year are skipped.
func Observations(rows []model.Row, valueCol string) []Observation {
	out := make([]Observation, 0, len(rows))
	for _, r := range rows {
		year, ok := r.Int("year")
		if !ok {
			continue
		}
		out = append(out, Observation{
			Year:         year,
			PropertyType: r.String("property_type"),
			Bedrooms:     r.IntPtr("bedrooms"),
			Value:        finite(r.FloatPtr(valueCol)),
		})
	}
	return out
}

// Round1 rounds to one decimal place
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// GrossYield returns round1(rentWeekly*52/price*100), or nil when either
// figure is missing or price is not positive
func GrossYield(price, rentWeekly *float64) *float64 {
	if price == nil || rentWeekly == nil {
		return nil
	}
	if !(*price > 0) {
		return nil
	}
	y := Round1(*rentWeekly * 52 / *price * 100)
	return finite(&y)
}

// Delta returns round1(a-b), or nil when either side is missing
func Delta(a, b *float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	d := Round1(*a - *b)
	return finite(&d)
}

// LatestRollup picks the latest year with any rollup price among types and
// reports price and rent for that same year
func LatestRollup(prices, rents []Observation, types []string) model.LatestPR {
	var pr model.LatestPR

	latest := 0
	for _, o := range prices {
		if o.Bedrooms == nil && o.Value != nil && contains(types, o.PropertyType) && o.Year > latest {
			latest = o.Year
		}
	}
	if latest == 0 {
		return pr
	}

	year := latest
	pr.Year = &year
	for _, pt := range types {
		pr.Price.Set(pt, find(prices, pt, nil, latest))
		pr.Rent.Set(pt, find(rents, pt, nil, latest))
	}
	return pr
}

// LatestYield computes gross yields from a latest price/rent pair
func LatestYield(pr model.LatestPR, types []string) model.ByType {
	var out model.ByType
	for _, pt := range types {
		out.Set(pt, GrossYield(pr.Price.Get(pt), pr.Rent.Get(pt)))
	}
	return out
}

// SeriesEndYear returns the latest year present in obs, or fallback
func SeriesEndYear(obs []Observation, fallback int) int {
	end := 0
	for _, o := range obs {
		if o.Year > end {
			end = o.Year
		}
	}
	if end == 0 {
		return fallback
	}
	return end
}

// Series builds exactly lastN ascending points per property type ending at
// endYear. Missing years are nil points.
func Series(obs []Observation, types []string, endYear, lastN int) []model.YieldSeries {
	if lastN < 1 {
		lastN = 1
	}

	out := make([]model.YieldSeries, 0, len(types))
	for _, pt := range types {
		s := model.YieldSeries{PropertyType: pt, Points: make([]model.YieldPoint, 0, lastN)}
		for year := endYear - lastN + 1; year <= endYear; year++ {
			s.Points = append(s.Points, model.YieldPoint{Year: year, Value: findAny(obs, pt, year)})
		}
		s.Change, s.Direction = trend(s.Points)
		out = append(out, s)
	}
	return out
}

// trend compares the first and last non-nil points
func trend(points []model.YieldPoint) (*float64, string) {
	var first, last *float64
	n := 0
	for _, p := range points {
		if p.Value == nil {
			continue
		}
		if first == nil {
			first = p.Value
		}
		last = p.Value
		n++
	}
	if n < 2 {
		return nil, DirectionInsufficient
	}

	change := Delta(last, first)
	switch {
	case *change > 0:
		return change, DirectionUp
	case *change < 0:
		return change, DirectionDown
	default:
		return change, DirectionFlat
	}
}

// BedroomPreference front-loads requested bedroom counts onto the default
// order, dropping duplicates
func BedroomPreference(requested, defaults []int) []int {
	seen := map[int]bool{}
	out := make([]int, 0, len(requested)+len(defaults))
	for _, list := range [][]int{requested, defaults} {
		for _, b := range list {
			if !seen[b] {
				seen[b] = true
				out = append(out, b)
			}
		}
	}
	return out
}

// PickBedroom returns the latest-year snapshot for the first bedroom count in
// pref that has any price or rent record, or nil when none do
func PickBedroom(prices, rents []Observation, propertyType string, pref []int) *model.BedroomSnapshot {
	for _, b := range pref {
		year := latestYear(prices, propertyType, b)
		if y := latestYear(rents, propertyType, b); y > year {
			year = y
		}
		if year == 0 {
			continue
		}

		beds := b
		price := find(prices, propertyType, &beds, year)
		rent := find(rents, propertyType, &beds, year)
		return &model.BedroomSnapshot{
			Bedroom:      b,
			Year:         year,
			Price:        price,
			RentWeekly:   rent,
			ImpliedYield: GrossYield(price, rent),
		}
	}
	return nil
}

func latestYear(obs []Observation, propertyType string, bedrooms int) int {
	latest := 0
	for _, o := range obs {
		if o.PropertyType == propertyType && o.Bedrooms != nil && *o.Bedrooms == bedrooms &&
			o.Value != nil && o.Year > latest {
			latest = o.Year
		}
	}
	return latest
}

// find returns the value matching type, bedroom count (nil = rollup) and year
func find(obs []Observation, propertyType string, bedrooms *int, year int) *float64 {
	for _, o := range obs {
		if o.PropertyType != propertyType || o.Year != year || o.Value == nil {
			continue
		}
		if (bedrooms == nil) != (o.Bedrooms == nil) {
			continue
		}
		if bedrooms != nil && *bedrooms != *o.Bedrooms {
			continue
		}
		v := *o.Value
		return &v
	}
	return nil
}

// findAny ignores bedrooms, for sources that carry none
func findAny(obs []Observation, propertyType string, year int) *float64 {
	for _, o := range obs {
		if o.PropertyType == propertyType && o.Year == year && o.Value != nil {
			v := *o.Value
			return &v
		}
	}
	return nil
}

func finite(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
