package model

// Action is one data-fetch step a plan can request
type Action string

const (
	ActionYieldLatest     Action = "yield_latest"
	ActionYieldSeries     Action = "yield_series"
	ActionPriceRentLatest Action = "price_rent_latest"
	ActionBedroomSnapshot Action = "bedroom_snapshot"
	ActionCompareNearby   Action = "compare_nearby"
)

// ValidActions lists actions in execution order
var ValidActions = []Action{
	ActionPriceRentLatest,
	ActionYieldLatest,
	ActionYieldSeries,
	ActionBedroomSnapshot,
	ActionCompareNearby,
}

// IsValidAction reports whether a is a known action
func IsValidAction(a Action) bool {
	for _, v := range ValidActions {
		if v == a {
			return true
		}
	}
	return false
}

// Property types
const (
	PropertyHouse = "house"
	PropertyUnit  = "unit"
)

// Intent values set by the normalizer
const (
	IntentSuburbSearch = "suburb_search"
	AnalysisTypeSearch = "search"
	DefaultYearsLastN  = 3
	MaxYearsLastN      = 10
	MaxCompareSuburbs  = 2
)

// YearsSpec selects the year window for series
type YearsSpec struct {
	LastN *int `json:"lastN,omitempty"`
	From  *int `json:"from,omitempty"`
	To    *int `json:"to,omitempty"`
}

// CompareSpec describes peer comparisons
type CompareSpec struct {
	Nearby  bool     `json:"nearby,omitempty"`
	Suburbs []string `json:"suburbs,omitempty"`
}

// QueryPlan is a validated, defaulted data-fetch plan
type QueryPlan struct {
	Actions       []Action     `json:"actions"`
	Suburb        string       `json:"suburb,omitempty"`
	State         string       `json:"state"`
	StateDetected bool         `json:"stateDetected"`
	PropertyTypes []string     `json:"propertyTypes"`
	Bedroom       *int         `json:"bedroom,omitempty"`
	Bedrooms      []int        `json:"bedrooms,omitempty"`
	Years         YearsSpec    `json:"years"`
	Compare       *CompareSpec `json:"compare,omitempty"`
	Intent        string       `json:"intent,omitempty"`
	AnalysisType  string       `json:"analysisType,omitempty"`
}

// Has reports whether the plan requests action a
func (p QueryPlan) Has(a Action) bool {
	for _, x := range p.Actions {
		if x == a {
			return true
		}
	}
	return false
}

// LastN returns the effective series length
func (p QueryPlan) LastN() int {
	if p.Years.From != nil && p.Years.To != nil {
		n := *p.Years.To - *p.Years.From + 1
		if n >= 1 && n <= MaxYearsLastN {
			return n
		}
	}
	if p.Years.LastN != nil && *p.Years.LastN > 0 {
		return *p.Years.LastN
	}
	return DefaultYearsLastN
}

// RequestedBedrooms returns explicit bedroom counts, single bedroom first
func (p QueryPlan) RequestedBedrooms() []int {
	var out []int
	if p.Bedroom != nil {
		out = append(out, *p.Bedroom)
	}
	for _, b := range p.Bedrooms {
		if p.Bedroom == nil || b != *p.Bedroom {
			out = append(out, b)
		}
	}
	return out
}
