package service

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"suburbiq/internal/conversation"
	"suburbiq/internal/model"
	"suburbiq/internal/plan"
	"suburbiq/internal/schema"

	"go.uber.org/zap"
)

// enabler is implemented by LLM-backed components that can be switched off
type enabler interface {
	Enabled() bool
}

func isEnabled(v any) bool {
	e, ok := v.(enabler)
	return !ok || e.Enabled()
}

var (
	prepositions = map[string]bool{"in": true, "for": true, "about": true, "at": true, "of": true, "around": true, "near": true}
	comparators  = map[string]bool{"vs": true, "versus": true, "against": true}
	// words that end a suburb name
	placeStopWords = map[string]bool{
		"the": true, "a": true, "an": true, "over": true, "last": true, "past": true, "compared": true,
		"vs": true, "versus": true, "with": true, "and": true, "or": true, "for": true, "in": true,
		"houses": true, "house": true, "units": true, "unit": true, "apartments": true, "apartment": true,
		"nearby": true, "suburbs": true, "suburb": true, "years": true, "year": true, "rent": true,
		"rents": true, "price": true, "prices": true, "yield": true, "yields": true, "bedroom": true,
		"bedrooms": true, "now": true, "this": true, "that": true, "it": true, "there": true,
		"me": true, "my": true, "is": true, "are": true, "was": true, "from": true, "to": true,
		"between": true, "since": true, "trend": true, "history": true, "please": true,
		"changed": true, "change": true, "has": true, "have": true, "had": true, "been": true,
		"do": true, "does": true, "did": true, "compare": true, "look": true, "looks": true,
		"like": true, "right": true, "currently": true, "today": true, "doing": true,
	}

	seriesPattern   = regexp.MustCompile(`\b(trend|trends|history|historical|changed|change|over the (last|past)|growth|series)\b`)
	bedroomPattern  = regexp.MustCompile(`\b(\d{1,2})\s*-?\s*(bed|beds|bedroom|bedrooms|br|bdr)\b`)
	comparePattern  = regexp.MustCompile(`\b(compare|compared|comparison|nearby|vs|versus|surrounding|neighbouring|neighboring|around it)\b`)
	nearbyPattern   = regexp.MustCompile(`\b(nearby|surrounding|neighbouring|neighboring|around it|next door)\b`)
	lastNPattern    = regexp.MustCompile(`\b(?:last|past)\s+(\d{1,2})\s+years?\b`)
	yearSpanPattern = regexp.MustCompile(`\b((?:19|20)\d{2})\s*(?:-|to|and|until)\s*((?:19|20)\d{2})\b`)
	housePattern    = regexp.MustCompile(`\b(house|houses)\b`)
	unitPattern     = regexp.MustCompile(`\b(unit|units|apartment|apartments|flat|flats)\b`)
	yieldPattern    = regexp.MustCompile(`\b(yield|yields|return|returns)\b`)
	pricePattern    = regexp.MustCompile(`\b(price|prices|rent|rents|rental|cost|costs|median)\b`)
)

// HeuristicPlanner extracts a plan with keyword rules. It stands in for the
// LLM planner when that is disabled or fails.
type HeuristicPlanner struct {
	registry *schema.Registry
}

// NewHeuristicPlanner creates a rule-based planner
func NewHeuristicPlanner(registry *schema.Registry) *HeuristicPlanner {
	return &HeuristicPlanner{registry: registry}
}

// Plan implements Planner
func (h *HeuristicPlanner) Plan(ctx context.Context, req PlanRequest) (plan.RawPlan, error) {
	text := strings.ToLower(req.Utterance)
	raw := plan.RawPlan{Intent: "yield", AnalysisType: "single"}

	if seriesPattern.MatchString(text) {
		raw.Actions = append(raw.Actions, model.ActionYieldSeries)
		raw.Intent, raw.AnalysisType = "trend", "series"
	}
	for _, m := range bedroomPattern.FindAllStringSubmatch(text, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil {
			raw.Bedrooms = append(raw.Bedrooms, n)
		}
	}
	if len(raw.Bedrooms) > 0 || strings.Contains(text, "bedroom") {
		raw.Actions = append(raw.Actions, model.ActionBedroomSnapshot)
		raw.Intent = "bedroom"
	}
	if comparePattern.MatchString(text) {
		raw.Actions = append(raw.Actions, model.ActionCompareNearby)
		raw.Compare = &model.CompareSpec{Nearby: nearbyPattern.MatchString(text)}
		raw.AnalysisType = "compare"
	}
	if yieldPattern.MatchString(text) {
		raw.Actions = append(raw.Actions, model.ActionYieldLatest)
	}
	if pricePattern.MatchString(text) {
		raw.Actions = append(raw.Actions, model.ActionPriceRentLatest)
	}
	if len(raw.Actions) == 0 {
		raw.Actions = append(raw.Actions, plan.DefaultActions...)
	}

	if housePattern.MatchString(text) {
		raw.PropertyTypes = append(raw.PropertyTypes, model.PropertyHouse)
	}
	if unitPattern.MatchString(text) {
		raw.PropertyTypes = append(raw.PropertyTypes, model.PropertyUnit)
	}

	if m := yearSpanPattern.FindStringSubmatch(text); m != nil {
		from, _ := strconv.Atoi(m[1])
		to, _ := strconv.Atoi(m[2])
		raw.Years = model.YearsSpec{From: &from, To: &to}
	} else if m := lastNPattern.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		raw.Years = model.YearsSpec{LastN: &n}
	}

	words := placeWords(req.Utterance)
	raw.Suburb = h.placeAfter(words, prepositions)
	if raw.Compare != nil {
		if peer := h.placeAfter(words, comparators); peer != "" && !strings.EqualFold(peer, raw.Suburb) {
			raw.Compare.Suburbs = []string{peer}
		}
	}
	return raw, nil
}

// placeAfter returns the first run of place words following one of markers
func (h *HeuristicPlanner) placeAfter(words []string, markers map[string]bool) string {
	for i, w := range words {
		if !markers[strings.ToLower(w)] {
			continue
		}
		var name []string
		for _, next := range words[i+1:] {
			lower := strings.ToLower(next)
			if placeStopWords[lower] || prepositions[lower] || h.isState(next) || isNumber(next) || len(name) == 3 {
				break
			}
			name = append(name, next)
		}
		if len(name) > 0 {
			return strings.Join(name, " ")
		}
	}
	return ""
}

func (h *HeuristicPlanner) isState(word string) bool {
	if _, ok := h.registry.StateByName(word); ok {
		return true
	}
	for _, s := range h.registry.States() {
		if strings.EqualFold(s, word) {
			return true
		}
	}
	return false
}

// placeWords splits an utterance into words, keeping apostrophes and hyphens
func placeWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !(r == '\'' || r == '-' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
}

func isNumber(word string) bool {
	_, err := strconv.Atoi(word)
	return err == nil
}

// FallbackPlanner uses the primary planner unless it is disabled or fails
type FallbackPlanner struct {
	primary  Planner
	fallback Planner
	logger   *zap.Logger
}

// NewFallbackPlanner chains primary and fallback
func NewFallbackPlanner(primary, fallback Planner, logger *zap.Logger) *FallbackPlanner {
	return &FallbackPlanner{primary: primary, fallback: fallback, logger: logger}
}

// Plan implements Planner
func (p *FallbackPlanner) Plan(ctx context.Context, req PlanRequest) (plan.RawPlan, error) {
	if p.primary != nil && isEnabled(p.primary) {
		raw, err := p.primary.Plan(ctx, req)
		if err == nil {
			return raw, nil
		}
		p.logger.Warn("planner failed, using fallback", zap.Error(err))
	}
	return p.fallback.Plan(ctx, req)
}

// FallbackClassifier uses the primary classifier unless it is disabled or fails
type FallbackClassifier struct {
	primary  conversation.Classifier
	fallback conversation.Classifier
	logger   *zap.Logger
}

// NewFallbackClassifier chains primary and fallback
func NewFallbackClassifier(primary, fallback conversation.Classifier, logger *zap.Logger) *FallbackClassifier {
	return &FallbackClassifier{primary: primary, fallback: fallback, logger: logger}
}

// Classify implements conversation.Classifier
func (c *FallbackClassifier) Classify(ctx context.Context, req conversation.ClassifyRequest) (model.ConversationIntent, error) {
	if c.primary != nil && isEnabled(c.primary) {
		intent, err := c.primary.Classify(ctx, req)
		if err == nil {
			return intent, nil
		}
		c.logger.Warn("classifier failed, using fallback", zap.Error(err))
	}
	return c.fallback.Classify(ctx, req)
}

// grounding collects the texts a planner suburb may be grounded in
func grounding(history []model.Message, current model.UserContext) []string {
	var out []string
	for _, m := range history {
		if m.Role == "user" && strings.TrimSpace(m.Content) != "" {
			out = append(out, m.Content)
		}
	}
	if current.Suburb != "" {
		out = append(out, current.Suburb)
	}
	return out
}

func lastAssistant(history []model.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "assistant" {
			return history[i].Content
		}
	}
	return ""
}
