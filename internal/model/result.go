package model

// ByType holds one optional figure per property type
type ByType struct {
	House *float64 `json:"house"`
	Unit  *float64 `json:"unit"`
}

// Get returns the figure for a property type
func (b ByType) Get(propertyType string) *float64 {
	switch propertyType {
	case PropertyHouse:
		return b.House
	case PropertyUnit:
		return b.Unit
	}
	return nil
}

// Set stores the figure for a property type
func (b *ByType) Set(propertyType string, v *float64) {
	switch propertyType {
	case PropertyHouse:
		b.House = v
	case PropertyUnit:
		b.Unit = v
	}
}

// LatestPR is the most recent rollup price and weekly rent
type LatestPR struct {
	Year  *int   `json:"year"`
	Price ByType `json:"price"`
	Rent  ByType `json:"rent"`
}

// YieldPoint is one year of a yield series
type YieldPoint struct {
	Year  int      `json:"year"`
	Value *float64 `json:"value"`
}

// YieldSeries is a fixed-length yield history for one property type
type YieldSeries struct {
	PropertyType string       `json:"propertyType"`
	Points       []YieldPoint `json:"points"`
	Change       *float64     `json:"change"`
	Direction    string       `json:"direction"`
}

// BedroomSnapshot is the price/rent pair for one bedroom count
type BedroomSnapshot struct {
	Bedroom      int      `json:"bedroom"`
	Year         int      `json:"year"`
	Price        *float64 `json:"price"`
	RentWeekly   *float64 `json:"rentWeekly"`
	ImpliedYield *float64 `json:"impliedYield"`
}

// NearbyRow is one peer suburb's yields for the comparison year
type NearbyRow struct {
	Suburb     string   `json:"suburb"`
	House      *float64 `json:"house"`
	Unit       *float64 `json:"unit"`
	HouseDelta *float64 `json:"houseDelta"`
	UnitDelta  *float64 `json:"unitDelta"`
}

// NearbyCompare compares peers in one year
type NearbyCompare struct {
	Year int         `json:"year"`
	Rows []NearbyRow `json:"rows"`
}

// StateAverage is a state-wide average yield per property type
type StateAverage struct {
	House *float64 `json:"house"`
	Unit  *float64 `json:"unit"`
}

// ResultBundle is the engine output consumed by the response formatter
type ResultBundle struct {
	Suburb        string           `json:"suburb"`
	State         string           `json:"state"`
	Plan          QueryPlan        `json:"plan"`
	LatestPR      *LatestPR        `json:"latestPR,omitempty"`
	LatestYield   *ByType          `json:"latestYield,omitempty"`
	YieldSeries   []YieldSeries    `json:"yieldSeries,omitempty"`
	BedroomHouse  *BedroomSnapshot `json:"bedroomHouse,omitempty"`
	BedroomUnit   *BedroomSnapshot `json:"bedroomUnit,omitempty"`
	NearbyCompare *NearbyCompare   `json:"nearbyCompare,omitempty"`
	CapitalAvg    *StateAverage    `json:"capitalAvg,omitempty"`
	CapitalDelta  *ByType          `json:"capitalDelta,omitempty"`
	Warnings      []string         `json:"warnings,omitempty"`
	Took          int64            `json:"took_ms"`
}
