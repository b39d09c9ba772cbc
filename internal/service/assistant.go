package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"suburbiq/internal/conversation"
	"suburbiq/internal/model"
	"suburbiq/internal/observability"
	"suburbiq/internal/plan"
	"suburbiq/internal/repository"
	"suburbiq/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrEmptyMessage is returned for turns without any text
var ErrEmptyMessage = errors.New("message is empty")

// Stream events emitted by HandleStream
const (
	EventClassified = "classified"
	EventPlanned    = "planned"
	EventResult     = "result"
)

// TurnEventCallback is called for streaming turn events
type TurnEventCallback func(event string, data any) error

const (
	greetingPrompt     = "G'day! Ask me about rental yields, prices or rents for any Australian suburb."
	suburbSearchPrompt = "Which suburb would you like to know about?"
)

// AssistantDeps bundles the collaborators of an Assistant
type AssistantDeps struct {
	Contexts    store.ContextStore
	Classifier  conversation.Classifier
	Flow        *conversation.Flow
	Planner     Planner
	Normalizer  *plan.Normalizer
	Directory   *repository.SuburbDirectory
	Nearby      repository.NearbySource
	Engine      *Engine
	NearbyLimit int
	Logger      *zap.Logger
	Metrics     *observability.Metrics
}

// Assistant runs one conversational turn end to end
type Assistant struct {
	AssistantDeps
}

// NewAssistant creates an assistant
func NewAssistant(deps AssistantDeps) *Assistant {
	if deps.NearbyLimit <= 0 {
		deps.NearbyLimit = model.MaxCompareSuburbs
	}
	return &Assistant{AssistantDeps: deps}
}

// Handle runs one turn
func (a *Assistant) Handle(ctx context.Context, req model.ChatRequest) (*model.TurnResponse, error) {
	return a.HandleStream(ctx, req, nil)
}

// HandleStream runs one turn and reports progress through callback
func (a *Assistant) HandleStream(ctx context.Context, req model.ChatRequest, callback TurnEventCallback) (*model.TurnResponse, error) {
	start := time.Now()
	utterance := strings.TrimSpace(req.Message)
	if utterance == "" {
		return nil, ErrEmptyMessage
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	emit := func(event string, data any) error {
		if callback == nil {
			return nil
		}
		return callback(event, data)
	}

	current, err := a.Contexts.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load context: %w", err)
	}

	intent, err := a.Classifier.Classify(ctx, conversation.ClassifyRequest{
		Utterance:         utterance,
		PreviousAssistant: lastAssistant(req.History),
		Context:           current,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to classify turn: %w", err)
	}

	out, err := a.Flow.Apply(ctx, sessionID, utterance, intent)
	if err != nil {
		return nil, err
	}
	if err := emit(EventClassified, map[string]any{"intent": out.Intent, "from": out.From, "to": out.To}); err != nil {
		return nil, err
	}

	resp := &model.TurnResponse{SessionID: sessionID, Intent: out.Intent, Context: out.Context}
	finish := func(kind string) (*model.TurnResponse, error) {
		resp.Kind = kind
		resp.Took = time.Since(start).Milliseconds()
		a.Metrics.Turn(kind)
		a.Logger.Info("turn handled",
			zap.String("session_id", sessionID),
			zap.String("kind", kind),
			zap.String("intent", string(out.Intent.Type)),
			zap.Int64("took_ms", resp.Took),
		)
		if err := emit(EventResult, resp); err != nil {
			return nil, err
		}
		return resp, nil
	}

	if out.Reprompt {
		resp.Options = out.Options
		resp.Prompt = clarificationPrompt(out.Options)
		return finish(model.KindClarification)
	}
	if out.Intent.Type == model.IntentGreeting {
		resp.Prompt = greetingPrompt
		if out.Context.AwaitingClarification() {
			resp.Options = out.Context.ClarificationOptions
			resp.Prompt = clarificationPrompt(resp.Options)
		}
		return finish(model.KindGreeting)
	}

	// a resolved clarification answers the question that was waiting on it
	topic := utterance
	if out.Resolved != nil && out.ResolvedTopic != "" {
		topic = out.ResolvedTopic
	}

	p := a.plan(ctx, topic, req.History, out)
	resp.Plan = &p
	if err := emit(EventPlanned, p); err != nil {
		return nil, err
	}

	if p.Suburb == "" {
		resp.Prompt = suburbSearchPrompt
		return finish(model.KindSuburbSearch)
	}

	lga, options := a.locate(ctx, &p, out)
	if len(options) > 0 {
		updated, err := a.Contexts.Update(ctx, sessionID, model.ContextPatch{
			ClarificationOptions: &options,
			PendingTopic:         model.StringPtr(topic),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to store clarification: %w", err)
		}
		resp.Context = updated
		resp.Options = options
		resp.Prompt = clarificationPrompt(options)
		return finish(model.KindClarification)
	}

	nearby := a.nearby(ctx, p, out.Context)
	bundle, err := a.Engine.Execute(ctx, p, nearby)
	if err != nil {
		var missing *MissingSuburbError
		if errors.As(err, &missing) {
			resp.Prompt = suburbSearchPrompt
			return finish(model.KindSuburbSearch)
		}
		return nil, err
	}

	patch := model.ContextPatch{
		Suburb:        model.StringPtr(p.Suburb),
		State:         model.StringPtr(p.State),
		LGA:           model.StringPtr(lga),
		NearbySuburbs: &nearby,
	}
	if len(p.PropertyTypes) == 1 {
		patch.PropertyType = model.StringPtr(p.PropertyTypes[0])
	}
	updated, err := a.Contexts.Update(ctx, sessionID, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to store context: %w", err)
	}
	resp.Context = updated
	resp.Result = bundle
	return finish(model.KindAnswer)
}

// plan asks the planner for a raw plan and normalises it against the turn
func (a *Assistant) plan(ctx context.Context, topic string, history []model.Message, out conversation.Outcome) model.QueryPlan {
	current := out.Context
	raw, err := a.Planner.Plan(ctx, PlanRequest{Utterance: topic, History: history, Context: current})
	if err != nil {
		a.Logger.Warn("planning failed, using default plan", zap.Error(err))
		raw = plan.RawPlan{Actions: append([]model.Action{}, plan.DefaultActions...)}
	}

	if raw.Suburb == "" {
		switch {
		case out.Intent.Type == model.IntentSuburbSwitch && out.Intent.SuburbMentioned != "":
			raw.Suburb = out.Intent.SuburbMentioned
		case out.Resolved != nil:
			raw.Suburb = out.Resolved.Suburb
		case out.Intent.Type == model.IntentFollowUp || out.Intent.Type == model.IntentClarificationResponse:
			raw.Suburb = current.Suburb
		}
	}

	p := a.Normalizer.Normalize(raw, topic, grounding(history, current))
	if out.Resolved != nil && strings.EqualFold(p.Suburb, out.Resolved.Suburb) {
		p.State = out.Resolved.State
	}
	return p
}

// locate settles the plan's state. It returns the LGA to remember, or the
// options to offer when the suburb exists in several states.
func (a *Assistant) locate(ctx context.Context, p *model.QueryPlan, out conversation.Outcome) (string, []model.ClarificationOption) {
	if out.Resolved != nil && strings.EqualFold(p.Suburb, out.Resolved.Suburb) {
		return out.Resolved.LGA, nil
	}
	current := out.Context
	sameSuburb := strings.EqualFold(p.Suburb, current.Suburb) && current.State != ""
	if sameSuburb && (!p.StateDetected || p.State == current.State) {
		p.State = current.State
		return current.LGA, nil
	}

	options, err := a.Directory.Lookup(ctx, p.Suburb)
	if err != nil {
		a.Logger.Warn("suburb directory lookup failed",
			zap.String("suburb", p.Suburb),
			zap.Error(err),
		)
		return "", nil
	}

	if p.StateDetected {
		for _, o := range options {
			if o.State == p.State {
				return o.LGA, nil
			}
		}
		return "", nil
	}

	switch repository.DistinctStates(options) {
	case 0:
		return "", nil
	case 1:
		p.State = options[0].State
		return options[0].LGA, nil
	default:
		return "", options
	}
}

// nearby returns the peer suburbs for p, reusing the stored list when the
// suburb has not changed
func (a *Assistant) nearby(ctx context.Context, p model.QueryPlan, current model.UserContext) []string {
	same := strings.EqualFold(p.Suburb, current.Suburb) && p.State == current.State
	if same && len(current.NearbySuburbs) > 0 {
		return current.NearbySuburbs
	}
	names, err := a.Nearby.Nearby(ctx, p.Suburb, p.State, a.NearbyLimit)
	if err != nil {
		a.Logger.Warn("nearby lookup failed",
			zap.String("suburb", p.Suburb),
			zap.String("state", p.State),
			zap.Error(err),
		)
		return []string{}
	}
	if names == nil {
		names = []string{}
	}
	return names
}

func clarificationPrompt(options []model.ClarificationOption) string {
	if len(options) == 0 {
		return suburbSearchPrompt
	}
	choices := make([]string, 0, len(options))
	for _, o := range options {
		if o.LGA != "" && o.LGA != o.Suburb {
			choices = append(choices, fmt.Sprintf("%s %s (%s)", o.Suburb, o.State, o.LGA))
		} else {
			choices = append(choices, fmt.Sprintf("%s %s", o.Suburb, o.State))
		}
	}
	return fmt.Sprintf("There is more than one %s. Which one did you mean: %s?", options[0].Suburb, strings.Join(choices, ", "))
}
