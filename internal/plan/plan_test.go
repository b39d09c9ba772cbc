package plan

import (
	"errors"
	"testing"

	"suburbiq/internal/model"
	"suburbiq/internal/schema"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(v int) *int { return &v }

func newNormalizer() *Normalizer {
	return NewNormalizer(schema.Default())
}

func TestDecodeLenientShapes(t *testing.T) {
	n := newNormalizer()

	raw, err := n.Decode("Sure! Here is the plan:\n```json\n" + `{
		"actions": "yield_latest, crime_stats, bedroom_snapshot",
		"suburb": "ballarat",
		"propertyType": "Apartment",
		"bedrooms": ["3", 2.5, 3, "three"],
		"years": {"lastN": "5"},
		"compare": {"nearby": "true", "suburbs": "Sebastopol"},
	}` + "\n```")
	require.NoError(t, err)

	assert.Equal(t, []model.Action{model.ActionYieldLatest, model.ActionBedroomSnapshot}, raw.Actions)
	assert.Equal(t, "ballarat", raw.Suburb)
	assert.Equal(t, []string{"unit"}, raw.PropertyTypes)
	assert.Equal(t, []int{3, 3}, raw.Bedrooms)
	assert.Equal(t, intp(5), raw.Years.LastN)
	require.NotNil(t, raw.Compare)
	assert.True(t, raw.Compare.Nearby)
	assert.Equal(t, []string{"Sebastopol"}, raw.Compare.Suburbs)
	assert.ElementsMatch(t, []string{"actions=crime_stats", "bedrooms=2.5", "bedrooms=three"}, raw.Dropped)
}

func TestDecodeFailures(t *testing.T) {
	n := newNormalizer()

	tests := []struct {
		name  string
		input string
	}{
		{"not json", "I could not understand the question"},
		{"no actions", `{"suburb": "Ballarat"}`},
		{"only unknown actions", `{"actions": ["crime_stats"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Decode(tt.input)
			require.Error(t, err)
			var pve *PlanValidationError
			assert.True(t, errors.As(err, &pve))
		})
	}
}

func TestBuildFallsBackToDefault(t *testing.T) {
	n := newNormalizer()

	p, err := n.Build("garbage", "how is Ballarat going in victoria", nil)
	require.Error(t, err)
	assert.Equal(t, DefaultActions, p.Actions)
	assert.Equal(t, "VIC", p.State)
	assert.True(t, p.StateDetected)
	assert.Empty(t, p.Suburb, "the default plan never invents a suburb")
	assert.Equal(t, model.IntentSuburbSearch, p.Intent)
	assert.Equal(t, model.AnalysisTypeSearch, p.AnalysisType)
}

func TestNormalize(t *testing.T) {
	n := newNormalizer()

	tests := []struct {
		name      string
		raw       RawPlan
		utterance string
		grounding []string
		want      model.QueryPlan
	}{
		{
			name:      "defaults applied",
			raw:       RawPlan{Actions: []model.Action{model.ActionYieldLatest}, Suburb: "Ballarat"},
			utterance: "what is the yield in Ballarat",
			want: model.QueryPlan{
				Actions:       []model.Action{model.ActionYieldLatest},
				Suburb:        "Ballarat",
				State:         "VIC",
				PropertyTypes: []string{"house", "unit"},
				Years:         model.YearsSpec{LastN: intp(3)},
			},
		},
		{
			name: "bedroom promotion and snapshot dependency",
			raw: RawPlan{
				Actions:       []model.Action{model.ActionBedroomSnapshot, model.ActionBedroomSnapshot},
				Suburb:        "geelong",
				PropertyTypes: []string{"house"},
				Bedrooms:      []int{3, 3, -1},
				Years:         model.YearsSpec{LastN: intp(40)},
			},
			utterance: "3 bedroom houses in Geelong NSW",
			want: model.QueryPlan{
				Actions:       []model.Action{model.ActionBedroomSnapshot, model.ActionPriceRentLatest},
				Suburb:        "Geelong",
				State:         "NSW",
				StateDetected: true,
				PropertyTypes: []string{"house"},
				Bedroom:       intp(3),
				Years:         model.YearsSpec{LastN: intp(10)},
			},
		},
		{
			name: "fabricated suburb dropped",
			raw: RawPlan{
				Actions: []model.Action{model.ActionYieldSeries},
				Suburb:  "Toorak",
				Intent:  "analysis",
				Years:   model.YearsSpec{From: intp(2023), To: intp(2020)},
			},
			utterance: "show me a good suburb for investing in queensland",
			want: model.QueryPlan{
				Actions:       []model.Action{model.ActionYieldSeries},
				State:         "QLD",
				StateDetected: true,
				PropertyTypes: []string{"house", "unit"},
				Years:         model.YearsSpec{From: intp(2020), To: intp(2023)},
				Intent:        model.IntentSuburbSearch,
				AnalysisType:  model.AnalysisTypeSearch,
			},
		},
		{
			name: "wide range keeps its end year",
			raw: RawPlan{
				Actions: []model.Action{model.ActionYieldSeries},
				Suburb:  "Geelong",
				Years:   model.YearsSpec{From: intp(2005), To: intp(2024)},
			},
			utterance: "geelong yields from 2005 to 2024",
			want: model.QueryPlan{
				Actions:       []model.Action{model.ActionYieldSeries},
				Suburb:        "Geelong",
				State:         "VIC",
				PropertyTypes: []string{"house", "unit"},
				Years:         model.YearsSpec{From: intp(2015), To: intp(2024)},
			},
		},
		{
			name: "suburb grounded by history and compare suburbs filtered",
			raw: RawPlan{
				Actions: []model.Action{model.ActionCompareNearby},
				Suburb:  "box hill",
				Compare: &model.CompareSpec{Suburbs: []string{"Doncaster", "Box Hill", "Nowhere", "Blackburn", "Ringwood"}},
			},
			utterance: "compare it with doncaster, blackburn and ringwood",
			grounding: []string{"tell me about Box Hill"},
			want: model.QueryPlan{
				Actions:       []model.Action{model.ActionCompareNearby},
				Suburb:        "Box Hill",
				State:         "VIC",
				PropertyTypes: []string{"house", "unit"},
				Years:         model.YearsSpec{LastN: intp(3)},
				Compare:       &model.CompareSpec{Suburbs: []string{"Doncaster", "Blackburn"}},
			},
		},
		{
			name:      "state name is not a suburb",
			raw:       RawPlan{Actions: []model.Action{model.ActionYieldLatest}, Suburb: "Tasmania"},
			utterance: "yields in Tasmania",
			want: model.QueryPlan{
				Actions:       []model.Action{model.ActionYieldLatest},
				State:         "TAS",
				StateDetected: true,
				PropertyTypes: []string{"house", "unit"},
				Years:         model.YearsSpec{LastN: intp(3)},
				Intent:        model.IntentSuburbSearch,
				AnalysisType:  model.AnalysisTypeSearch,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Normalize(tt.raw, tt.utterance, tt.grounding)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalizeNeverFabricatesSuburb(t *testing.T) {
	n := newNormalizer()
	utterances := []string{
		"",
		"what's the rental yield",
		"hillside or not",
		"tell me about Hillside",
	}

	for _, u := range utterances {
		p := n.Normalize(RawPlan{Actions: []model.Action{model.ActionYieldLatest}, Suburb: "Hill"}, u, nil)
		assert.Empty(t, p.Suburb, "utterance %q", u)
		assert.Equal(t, model.IntentSuburbSearch, p.Intent)
	}
}

func TestCanonicalSuburb(t *testing.T) {
	tests := []struct {
		name    string
		suburb  string
		sources []string
		want    string
	}{
		{"spelling from utterance", "mckinnon", []string{"what's the yield in McKinnon"}, "McKinnon"},
		{"apostrophe kept", "o'connor", []string{"rents in O'Connor ACT"}, "O'Connor"},
		{"candidate capitals kept", "McKinnon", []string{"yield in mckinnon"}, "McKinnon"},
		{"lower case titled", "box  hill", []string{"box hill yields"}, "Box Hill"},
		{"upper case titled", "BALLARAT", []string{"BALLARAT"}, "Ballarat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalSuburb(tt.suburb, tt.sources...))
		})
	}
}

func TestNormalizeKeepsMixedCaseSuburb(t *testing.T) {
	n := newNormalizer()
	raw := RawPlan{
		Actions: []model.Action{model.ActionYieldLatest},
		Suburb:  "Mckinnon",
		Compare: &model.CompareSpec{Suburbs: []string{"oconnor", "o'connor"}},
	}
	p := n.Normalize(raw, "yield in McKinnon vs O'Connor", nil)
	assert.Equal(t, "McKinnon", p.Suburb)
	require.NotNil(t, p.Compare)
	assert.Equal(t, []string{"O'Connor"}, p.Compare.Suburbs)
}

func TestDetectState(t *testing.T) {
	n := newNormalizer()

	tests := []struct {
		text      string
		wantState string
		wantOK    bool
	}{
		{"Richmond in Victoria", "VIC", true},
		{"richmond nsw", "NSW", true},
		{"Perth WA", "WA", true},
		{"wa is short for western", "", false},
		{"I want to act fast", "", false},
		{"Canberra ACT", "ACT", true},
		{"Burwood, New South Wales", "NSW", true},
		{"from queensland not victoria", "QLD", true},
		{"Darwin NT or South Australia", "NT", true},
		{"Doncaster", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := n.DetectState(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantState, got)
		})
	}
}

func TestDecodeMap(t *testing.T) {
	n := newNormalizer()

	raw, err := n.DecodeMap(map[string]any{
		"actions": []any{"yield_latest"},
		"suburb":  "Ballarat",
		"bedroom": 2,
	})
	require.NoError(t, err)
	assert.Equal(t, intp(2), raw.Bedroom)

	_, err = n.DecodeMap(map[string]any{"suburb": "Ballarat"})
	require.Error(t, err)
}
