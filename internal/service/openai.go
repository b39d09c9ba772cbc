package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"suburbiq/internal/conversation"
	"suburbiq/internal/model"
	"suburbiq/internal/plan"
	"suburbiq/internal/utils"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// maxHistoryTurns bounds the conversation history sent to the planner
const maxHistoryTurns = 8

const plannerPrompt = `You are a planning assistant for Australian suburb property questions. Convert the user's latest question into a JSON data-fetch plan.

Fields:
- actions: array, any of "yield_latest", "yield_series", "price_rent_latest", "bedroom_snapshot", "compare_nearby"
- suburb: the suburb name exactly as the user wrote it; omit it if the user did not name one
- propertyTypes: array of "house" and/or "unit"; omit for both
- bedroom: a single bedroom count, or bedrooms: array of counts
- years: {"lastN": n} or {"from": yyyy, "to": yyyy}
- compare: {"nearby": true, "suburbs": [names the user mentioned]}
- intent and analysisType: short labels describing the question

Important rules:
- Respond ONLY with valid JSON
- Never guess a suburb the user has not mentioned
- Do not output a state; it is detected separately
- "trend", "history", "over the years" mean yield_series
- "N bedroom", "NBR" mean bedroom_snapshot with that bedroom count
- "compare", "nearby", "vs" mean compare_nearby

Examples:
Question: "What's the rental yield in Ballarat?"
Response: {"actions": ["yield_latest", "price_rent_latest"], "suburb": "Ballarat", "intent": "yield", "analysisType": "single"}

Question: "How have unit yields in Box Hill changed over the last 5 years?"
Response: {"actions": ["yield_series"], "suburb": "Box Hill", "propertyTypes": ["unit"], "years": {"lastN": 5}, "intent": "trend", "analysisType": "series"}

Question: "3 bedroom houses in Geelong, compared with nearby suburbs"
Response: {"actions": ["bedroom_snapshot", "compare_nearby"], "suburb": "Geelong", "propertyTypes": ["house"], "bedroom": 3, "compare": {"nearby": true}, "intent": "bedroom", "analysisType": "compare"}`

const classifierPrompt = `You classify the latest user message in a conversation about Australian suburbs.

Respond ONLY with JSON: {"type": ..., "confidence": 0..1, "shouldClearContext": bool, "suburbMentioned": string, "stateMentioned": string}

type is one of:
- "clarification_response": the user answers a pending question about which suburb/state they meant
- "suburb_switch": the user moves to a different suburb ("what about Doncaster")
- "follow_up": the user asks more about the current suburb
- "new_question": an unrelated new question
- "greeting": greetings, thanks or small talk

Set shouldClearContext only when the user explicitly starts over. stateMentioned is an abbreviation such as "VIC" or empty.`

// PlanRequest is the input to a planner
type PlanRequest struct {
	Utterance string
	History   []model.Message
	Context   model.UserContext
}

// Planner turns an utterance into an untrusted raw plan
type Planner interface {
	Plan(ctx context.Context, req PlanRequest) (plan.RawPlan, error)
}

// LLMPlanner asks the LLM for a plan and decodes it leniently
type LLMPlanner struct {
	ai         *AIClient
	normalizer *plan.Normalizer
	logger     *zap.Logger
}

// NewLLMPlanner creates an LLM-backed planner
func NewLLMPlanner(ai *AIClient, normalizer *plan.Normalizer, logger *zap.Logger) *LLMPlanner {
	return &LLMPlanner{ai: ai, normalizer: normalizer, logger: logger}
}

// Enabled reports whether the LLM is configured
func (p *LLMPlanner) Enabled() bool {
	return p.ai.IsEnabled()
}

// Plan implements Planner
func (p *LLMPlanner) Plan(ctx context.Context, req PlanRequest) (plan.RawPlan, error) {
	messages := historyMessages(req.History)
	hint := req.Utterance
	if req.Context.Suburb != "" {
		hint = fmt.Sprintf("%s\n\n(current suburb: %s)", req.Utterance, req.Context.Suburb)
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: hint})

	content, err := p.ai.CompleteJSON(ctx, p.ai.config.PlannerModel, plannerPrompt, messages)
	if err != nil {
		return plan.RawPlan{}, err
	}

	raw, err := p.normalizer.Decode(content)
	if err != nil {
		p.logger.Warn("planner output rejected", zap.String("content", content), zap.Error(err))
		return plan.RawPlan{}, err
	}
	if len(raw.Dropped) > 0 {
		p.logger.Info("planner output coerced", zap.Strings("dropped", raw.Dropped))
	}
	return raw, nil
}

// LLMClassifier asks the LLM for a conversation intent
type LLMClassifier struct {
	ai     *AIClient
	logger *zap.Logger
}

// NewLLMClassifier creates an LLM-backed classifier
func NewLLMClassifier(ai *AIClient, logger *zap.Logger) *LLMClassifier {
	return &LLMClassifier{ai: ai, logger: logger}
}

// Enabled reports whether the LLM is configured
func (c *LLMClassifier) Enabled() bool {
	return c.ai.IsEnabled()
}

// Classify implements conversation.Classifier
func (c *LLMClassifier) Classify(ctx context.Context, req conversation.ClassifyRequest) (model.ConversationIntent, error) {
	snapshot, err := json.Marshal(req.Context)
	if err != nil {
		return model.ConversationIntent{}, fmt.Errorf("failed to encode context: %w", err)
	}

	var b strings.Builder
	if req.PreviousAssistant != "" {
		fmt.Fprintf(&b, "Previous assistant message: %s\n", req.PreviousAssistant)
	}
	fmt.Fprintf(&b, "Current context: %s\n", snapshot)
	fmt.Fprintf(&b, "Latest user message: %s", req.Utterance)

	content, err := c.ai.CompleteJSON(ctx, c.ai.config.ClassifierModel, classifierPrompt,
		[]openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: b.String()}})
	if err != nil {
		return model.ConversationIntent{}, err
	}

	var intent model.ConversationIntent
	if err := utils.ParseAIJSON(content, &intent); err != nil {
		return model.ConversationIntent{}, fmt.Errorf("failed to parse classifier output: %w", err)
	}
	if err := validateIntent(&intent); err != nil {
		return model.ConversationIntent{}, fmt.Errorf("classifier output validation failed: %w", err)
	}
	return intent, nil
}

// validateIntent rejects unknown verdicts and clamps confidence into [0, 1]
func validateIntent(intent *model.ConversationIntent) error {
	if !model.IsValidIntentType(intent.Type) {
		return fmt.Errorf("invalid type %q", intent.Type)
	}
	if intent.Confidence < 0 {
		intent.Confidence = 0
	}
	if intent.Confidence > 1 {
		intent.Confidence = 1
	}
	intent.StateMentioned = strings.ToUpper(strings.TrimSpace(intent.StateMentioned))
	return nil
}

func historyMessages(history []model.Message) []openai.ChatCompletionMessage {
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	out := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}
