// Package conversation decides how each utterance relates to the pending
// conversational state and applies the resulting context changes.
package conversation

import (
	"context"
	"fmt"

	"suburbiq/internal/model"
	"suburbiq/internal/observability"
	"suburbiq/internal/schema"
	"suburbiq/internal/store"

	"go.uber.org/zap"
)

// State is the conversation state derived from the session context
type State string

const (
	StateFree                  State = "free"
	StateAwaitingClarification State = "awaiting_clarification"
)

// States lists every conversation state
var States = []State{StateFree, StateAwaitingClarification}

// Effect is the context side effect of a transition
type Effect string

const (
	EffectNone                 Effect = "none"
	EffectResolveClarification Effect = "resolve_clarification"
	EffectClearPending         Effect = "clear_pending"
)

// Transition is one row of the transition table
type Transition struct {
	Next   State
	Effect Effect
}

// transitions covers every (state, intent) pair. A failed resolution keeps
// the conversation in awaiting_clarification regardless of Next.
var transitions = map[State]map[model.IntentType]Transition{
	StateFree: {
		model.IntentClarificationResponse: {StateFree, EffectNone},
		model.IntentNewQuestion:           {StateFree, EffectNone},
		model.IntentFollowUp:              {StateFree, EffectNone},
		model.IntentGreeting:              {StateFree, EffectNone},
		model.IntentSuburbSwitch:          {StateFree, EffectClearPending},
	},
	StateAwaitingClarification: {
		model.IntentClarificationResponse: {StateFree, EffectResolveClarification},
		model.IntentNewQuestion:           {StateAwaitingClarification, EffectNone},
		model.IntentFollowUp:              {StateAwaitingClarification, EffectNone},
		model.IntentGreeting:              {StateAwaitingClarification, EffectNone},
		model.IntentSuburbSwitch:          {StateFree, EffectClearPending},
	},
}

// Lookup returns the transition for a state and intent
func Lookup(s State, intent model.IntentType) (Transition, bool) {
	t, ok := transitions[s][intent]
	return t, ok
}

// StateOf derives the conversation state from a context
func StateOf(c model.UserContext) State {
	if c.AwaitingClarification() {
		return StateAwaitingClarification
	}
	return StateFree
}

// Outcome describes what one turn did to the conversation
type Outcome struct {
	From   State
	To     State
	Effect Effect
	// Intent is the classifier verdict after confidence gating
	Intent  model.ConversationIntent
	Context model.UserContext
	// Resolved is the option committed by a clarification response
	Resolved *model.ClarificationOption
	// ResolvedTopic is the question that was waiting on the clarification
	ResolvedTopic string
	// Reprompt asks the caller to re-issue Options
	Reprompt   bool
	Options    []model.ClarificationOption
	Downgraded bool
	Cleared    bool
}

// Flow applies classifier verdicts to the session context
type Flow struct {
	store         store.ContextStore
	registry      *schema.Registry
	minConfidence float64
	logger        *zap.Logger
	metrics       *observability.Metrics
}

// NewFlow creates a conversation flow. Destructive verdicts below
// minConfidence are treated as follow-ups.
func NewFlow(contexts store.ContextStore, registry *schema.Registry, minConfidence float64, logger *zap.Logger, metrics *observability.Metrics) *Flow {
	return &Flow{
		store:         contexts,
		registry:      registry,
		minConfidence: minConfidence,
		logger:        logger,
		metrics:       metrics,
	}
}

// Gate downgrades low-confidence destructive verdicts to follow_up
func (f *Flow) Gate(intent model.ConversationIntent) (model.ConversationIntent, bool) {
	if !model.IsValidIntentType(intent.Type) {
		intent.Type = model.IntentNewQuestion
	}
	destructive := intent.Type == model.IntentSuburbSwitch || intent.ShouldClearContext
	if !destructive || intent.Confidence >= f.minConfidence {
		return intent, false
	}
	intent.Type = model.IntentFollowUp
	intent.ShouldClearContext = false
	return intent, true
}

// Apply runs one turn through the state machine and persists the result
func (f *Flow) Apply(ctx context.Context, sessionID, utterance string, intent model.ConversationIntent) (Outcome, error) {
	current, err := f.store.Get(ctx, sessionID)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to load context: %w", err)
	}

	out := Outcome{From: StateOf(current)}
	out.Intent, out.Downgraded = f.Gate(intent)
	if out.Downgraded {
		f.logger.Info("low-confidence verdict downgraded",
			zap.String("session_id", sessionID),
			zap.String("intent", string(intent.Type)),
			zap.Float64("confidence", intent.Confidence),
		)
	}

	if out.Intent.ShouldClearContext {
		if err := f.store.Reset(ctx, sessionID); err != nil {
			return Outcome{}, fmt.Errorf("failed to clear context: %w", err)
		}
		current = model.UserContext{}
		out.Cleared = true
	}

	state := StateOf(current)
	t, ok := Lookup(state, out.Intent.Type)
	if !ok {
		return Outcome{}, fmt.Errorf("no transition for %s/%s", state, out.Intent.Type)
	}
	out.Effect = t.Effect
	out.To = t.Next

	switch t.Effect {
	case EffectResolveClarification:
		opt, matched := MatchOption(utterance, current.ClarificationOptions, f.registry)
		if !matched {
			out.To = StateAwaitingClarification
			out.Reprompt = true
			out.Options = append([]model.ClarificationOption{}, current.ClarificationOptions...)
			break
		}
		out.ResolvedTopic = current.PendingTopic
		patch := model.ClearPending()
		patch.Suburb = model.StringPtr(opt.Suburb)
		patch.State = model.StringPtr(opt.State)
		patch.LGA = model.StringPtr(opt.LGA)
		current, err = f.store.Update(ctx, sessionID, patch)
		if err != nil {
			return Outcome{}, fmt.Errorf("failed to commit clarification: %w", err)
		}
		out.Resolved = &opt

	case EffectClearPending:
		current, err = f.store.Update(ctx, sessionID, model.ClearPending())
		if err != nil {
			return Outcome{}, fmt.Errorf("failed to clear pending clarification: %w", err)
		}
	}

	out.Context = current
	f.metrics.Transition(string(out.From), string(out.Intent.Type), string(out.To))
	f.logger.Debug("conversation transition",
		zap.String("session_id", sessionID),
		zap.String("from", string(out.From)),
		zap.String("intent", string(out.Intent.Type)),
		zap.String("to", string(out.To)),
		zap.String("effect", string(out.Effect)),
	)
	return out, nil
}
