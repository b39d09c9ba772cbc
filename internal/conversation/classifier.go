package conversation

import (
	"context"
	"regexp"
	"strings"

	"suburbiq/internal/model"
	"suburbiq/internal/plan"
	"suburbiq/internal/schema"
	"suburbiq/internal/utils"
)

// ClassifyRequest is the input to a conversation classifier
type ClassifyRequest struct {
	Utterance         string
	PreviousAssistant string
	Context           model.UserContext
}

// Classifier produces a ConversationIntent for one utterance
type Classifier interface {
	Classify(ctx context.Context, req ClassifyRequest) (model.ConversationIntent, error)
}

var (
	switchPattern = regexp.MustCompile(`^(?:and\s+)?(?:what|how)\s+about\s+(.+)$`)
	greetings     = []string{"hi", "hello", "hey", "g day", "good morning", "good afternoon", "good evening", "thanks", "thank you", "cheers"}
	// topics that follow "what about" without naming a place
	followUpTopics = map[string]bool{
		"units": true, "unit": true, "houses": true, "house": true, "apartments": true,
		"rent": true, "rents": true, "price": true, "prices": true, "yield": true, "yields": true,
		"the trend": true, "trend": true, "it": true, "that": true, "there": true,
		"nearby": true, "nearby suburbs": true, "bedrooms": true,
	}
	referencePattern = regexp.MustCompile(`\b(it|its|there|that suburb|this suburb|same suburb)\b`)
)

// HeuristicClassifier classifies utterances with keyword rules. It stands in
// for the LLM classifier when that is disabled or fails.
type HeuristicClassifier struct {
	registry   *schema.Registry
	normalizer *plan.Normalizer
}

// NewHeuristicClassifier creates a rule-based classifier
func NewHeuristicClassifier(registry *schema.Registry) *HeuristicClassifier {
	return &HeuristicClassifier{
		registry:   registry,
		normalizer: plan.NewNormalizer(registry),
	}
}

// Classify implements Classifier
func (h *HeuristicClassifier) Classify(ctx context.Context, req ClassifyRequest) (model.ConversationIntent, error) {
	text := utils.NormalizeText(req.Utterance)
	intent := model.ConversationIntent{Type: model.IntentNewQuestion, Confidence: 0.6}
	if state, ok := h.normalizer.DetectState(req.Utterance); ok {
		intent.StateMentioned = state
	}

	if isGreeting(text) {
		intent.Type = model.IntentGreeting
		intent.Confidence = 0.9
		return intent, nil
	}

	if req.Context.AwaitingClarification() {
		if opt, ok := MatchOption(req.Utterance, req.Context.ClarificationOptions, h.registry); ok {
			intent.Type = model.IntentClarificationResponse
			intent.Confidence = 0.9
			intent.SuburbMentioned = opt.Suburb
			return intent, nil
		}
		if len(strings.Fields(text)) <= 3 && !switchPattern.MatchString(text) {
			intent.Type = model.IntentClarificationResponse
			intent.Confidence = 0.5
			return intent, nil
		}
	}

	if m := switchPattern.FindStringSubmatch(text); m != nil {
		target := strings.TrimSpace(m[1])
		if followUpTopics[target] || (req.Context.Suburb != "" && utils.ContainsWord(target, req.Context.Suburb)) {
			intent.Type = model.IntentFollowUp
			intent.Confidence = 0.7
			return intent, nil
		}
		intent.Type = model.IntentSuburbSwitch
		intent.Confidence = 0.8
		intent.SuburbMentioned = plan.CanonicalSuburb(target, req.Utterance)
		return intent, nil
	}

	if req.Context.Suburb != "" &&
		(utils.ContainsWord(req.Utterance, req.Context.Suburb) || referencePattern.MatchString(text)) {
		intent.Type = model.IntentFollowUp
		intent.Confidence = 0.7
	}
	return intent, nil
}

func isGreeting(text string) bool {
	words := strings.Fields(text)
	if len(words) == 0 || len(words) > 4 {
		return false
	}
	for _, g := range greetings {
		if text == g || strings.HasPrefix(text, g+" ") {
			return true
		}
	}
	return false
}
