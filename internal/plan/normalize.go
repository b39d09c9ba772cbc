package plan

import (
	"strings"
	"unicode"

	"suburbiq/internal/model"
	"suburbiq/internal/schema"
	"suburbiq/internal/utils"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultActions is the safe plan used when planner output is unusable
var DefaultActions = []model.Action{
	model.ActionYieldLatest,
	model.ActionYieldSeries,
	model.ActionPriceRentLatest,
}

// ambiguousAbbreviations are also ordinary words or names and only count in upper case
var ambiguousAbbreviations = map[string]bool{
	"WA":  true,
	"SA":  true,
	"ACT": true,
	"NT":  true,
}

// Normalizer validates and defaults planner output against the schema registry
type Normalizer struct {
	registry *schema.Registry
}

// NewNormalizer creates a normalizer over registry
func NewNormalizer(registry *schema.Registry) *Normalizer {
	return &Normalizer{registry: registry}
}

// Default returns the safe default plan for an utterance
func (n *Normalizer) Default(utterance string) model.QueryPlan {
	return n.Normalize(RawPlan{Actions: append([]model.Action{}, DefaultActions...)}, utterance, nil)
}

// Build decodes planner text and normalizes it. Undecodable text yields the
// default plan together with the *PlanValidationError that caused it.
func (n *Normalizer) Build(text, utterance string, grounding []string) (model.QueryPlan, error) {
	raw, err := n.Decode(text)
	if err != nil {
		return n.Default(utterance), err
	}
	return n.Normalize(raw, utterance, grounding), nil
}

// Normalize applies the plan rules in order. Suburbs survive only when they
// occur as whole words in utterance or one of the grounding texts.
func (n *Normalizer) Normalize(raw RawPlan, utterance string, grounding []string) model.QueryPlan {
	p := model.QueryPlan{
		Intent:       raw.Intent,
		AnalysisType: raw.AnalysisType,
	}

	// actions, de-duplicated, falling back to the defaults
	seen := map[model.Action]bool{}
	for _, a := range raw.Actions {
		if model.IsValidAction(a) && !seen[a] {
			seen[a] = true
			p.Actions = append(p.Actions, a)
		}
	}
	if len(p.Actions) == 0 {
		p.Actions = append(p.Actions, DefaultActions...)
	}

	// 1. property types
	ptSeen := map[string]bool{}
	for _, pt := range raw.PropertyTypes {
		if n.registry.IsPropertyType(pt) && !ptSeen[pt] {
			ptSeen[pt] = true
			p.PropertyTypes = append(p.PropertyTypes, pt)
		}
	}
	if len(p.PropertyTypes) == 0 {
		p.PropertyTypes = n.registry.PropertyTypes()
	}

	// 2. years
	p.Years = normalizeYears(raw.Years)

	// 3. bedrooms
	p.Bedroom = raw.Bedroom
	bedSeen := map[int]bool{}
	for _, b := range raw.Bedrooms {
		if b < 0 || bedSeen[b] {
			continue
		}
		bedSeen[b] = true
		p.Bedrooms = append(p.Bedrooms, b)
	}
	if len(p.Bedrooms) == 1 && (p.Bedroom == nil || *p.Bedroom == p.Bedrooms[0]) {
		b := p.Bedrooms[0]
		p.Bedroom = &b
		p.Bedrooms = nil
	}

	// 4. bedroom snapshots need the headline price/rent
	if p.Has(model.ActionBedroomSnapshot) && !p.Has(model.ActionPriceRentLatest) {
		p.Actions = append(p.Actions, model.ActionPriceRentLatest)
	}

	// 5. state from the raw utterance only
	if state, ok := n.DetectState(utterance); ok {
		p.State = state
		p.StateDetected = true
	} else {
		p.State = n.registry.DefaultState
	}

	// 6. suburb must be grounded in the conversation
	sources := append([]string{utterance}, grounding...)
	p.Suburb = n.groundSuburb(raw.Suburb, sources)
	if raw.Compare != nil {
		cmp := &model.CompareSpec{Nearby: raw.Compare.Nearby}
		cmpSeen := map[string]bool{strings.ToLower(p.Suburb): true}
		for _, s := range raw.Compare.Suburbs {
			name := n.groundSuburb(s, sources)
			if name == "" || cmpSeen[strings.ToLower(name)] {
				continue
			}
			cmpSeen[strings.ToLower(name)] = true
			cmp.Suburbs = append(cmp.Suburbs, name)
			if len(cmp.Suburbs) == model.MaxCompareSuburbs {
				break
			}
		}
		p.Compare = cmp
	}
	if p.Suburb == "" {
		p.Intent = model.IntentSuburbSearch
		p.AnalysisType = model.AnalysisTypeSearch
	}

	return p
}

func normalizeYears(y model.YearsSpec) model.YearsSpec {
	out := model.YearsSpec{}
	if y.From != nil && y.To != nil {
		from, to := *y.From, *y.To
		if from > to {
			from, to = to, from
		}
		// keep the most recent years of an overlong range
		if to-from+1 > model.MaxYearsLastN {
			from = to - model.MaxYearsLastN + 1
		}
		out.From, out.To = &from, &to
	}
	if y.LastN != nil {
		n := *y.LastN
		if n < 1 {
			n = 1
		}
		if n > model.MaxYearsLastN {
			n = model.MaxYearsLastN
		}
		out.LastN = &n
	}
	if out.LastN == nil && out.From == nil {
		n := model.DefaultYearsLastN
		out.LastN = &n
	}
	return out
}

// groundSuburb returns the canonical spelling of candidate when it is
// mentioned in any source, otherwise ""
func (n *Normalizer) groundSuburb(candidate string, sources []string) string {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return ""
	}
	// a bare state name is not a suburb
	if _, isState := n.registry.StateByName(candidate); isState {
		return ""
	}
	for _, src := range sources {
		if utils.ContainsWord(src, candidate) {
			return CanonicalSuburb(candidate, sources...)
		}
	}
	return ""
}

// CanonicalSuburb spells name the way the first source writing it in mixed
// case does, so "McKinnon" and "O'Connor" keep their inner capitals. Without
// such a source name is title-cased; capitals already in name are kept.
func CanonicalSuburb(name string, sources ...string) string {
	form := strings.Join(strings.Fields(name), " ")
	for _, src := range sources {
		if span, ok := utils.FindWord(src, name); ok && mixedCase(span) {
			form = strings.Join(strings.Fields(span), " ")
			break
		}
	}
	if !mixedCase(form) {
		form = strings.ToLower(form)
	}
	return cases.Title(language.English, cases.NoLower).String(form)
}

func mixedCase(s string) bool {
	var upper, lower bool
	for _, r := range s {
		upper = upper || unicode.IsUpper(r)
		lower = lower || unicode.IsLower(r)
	}
	return upper && lower
}

// DetectState scans text for an explicit state mention. Full names and
// unambiguous abbreviations match in any case; WA, SA, ACT and NT only in
// upper case. The earliest mention wins.
func (n *Normalizer) DetectState(text string) (string, bool) {
	tokens := tokenize(text)
	best, bestAt := "", -1

	for _, abbr := range n.registry.States() {
		at := indexPhrase(tokens, []string{abbr}, ambiguousAbbreviations[abbr])
		for _, full := range n.registry.StateFullNames(abbr) {
			if i := indexPhrase(tokens, strings.Fields(full), false); i >= 0 && (at < 0 || i < at) {
				at = i
			}
		}
		if at >= 0 && (bestAt < 0 || at < bestAt) {
			best, bestAt = abbr, at
		}
	}
	return best, bestAt >= 0
}

// tokenize splits text into letter/digit runs, keeping case
func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// indexPhrase returns the token index where phrase starts, or -1
func indexPhrase(tokens, phrase []string, caseSensitive bool) int {
	if len(phrase) == 0 {
		return -1
	}
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		match := true
		for j, word := range phrase {
			tok := tokens[i+j]
			if caseSensitive && tok != word || !caseSensitive && !strings.EqualFold(tok, word) {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
