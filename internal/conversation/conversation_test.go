package conversation

import (
	"context"
	"testing"

	"suburbiq/internal/model"
	"suburbiq/internal/schema"
	"suburbiq/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var burwoodOptions = []model.ClarificationOption{
	{Suburb: "Burwood", State: "NSW", LGA: "Burwood"},
	{Suburb: "Burwood", State: "VIC", LGA: "Whitehorse"},
}

func newFlow(t *testing.T) (*Flow, store.ContextStore) {
	t.Helper()
	contexts := store.NewMemoryContextStore(0)
	return NewFlow(contexts, schema.Default(), 0.5, zap.NewNop(), nil), contexts
}

func awaiting(t *testing.T, contexts store.ContextStore, sessionID string) {
	t.Helper()
	options := append([]model.ClarificationOption{}, burwoodOptions...)
	_, err := contexts.Update(context.Background(), sessionID, model.ContextPatch{
		ClarificationOptions: &options,
		PendingTopic:         model.StringPtr("what is the yield in Burwood"),
	})
	require.NoError(t, err)
}

func TestTransitionTableIsExhaustive(t *testing.T) {
	for _, s := range States {
		for _, it := range model.IntentTypes {
			tr, ok := Lookup(s, it)
			assert.True(t, ok, "missing transition %s/%s", s, it)
			assert.Contains(t, States, tr.Next)
		}
	}

	tr, _ := Lookup(StateAwaitingClarification, model.IntentSuburbSwitch)
	assert.Equal(t, Transition{StateFree, EffectClearPending}, tr)
	tr, _ = Lookup(StateFree, model.IntentSuburbSwitch)
	assert.Equal(t, Transition{StateFree, EffectClearPending}, tr)
	tr, _ = Lookup(StateAwaitingClarification, model.IntentClarificationResponse)
	assert.Equal(t, EffectResolveClarification, tr.Effect)
}

func TestClarificationResolvedByStateName(t *testing.T) {
	flow, contexts := newFlow(t)
	ctx := context.Background()
	awaiting(t, contexts, "s1")

	out, err := flow.Apply(ctx, "s1", "victoria", model.ConversationIntent{
		Type:       model.IntentClarificationResponse,
		Confidence: 0.9,
	})
	require.NoError(t, err)

	assert.Equal(t, StateAwaitingClarification, out.From)
	assert.Equal(t, StateFree, out.To)
	require.NotNil(t, out.Resolved)
	assert.Equal(t, "VIC", out.Resolved.State)
	assert.Equal(t, "what is the yield in Burwood", out.ResolvedTopic)

	stored, err := contexts.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Burwood", stored.Suburb)
	assert.Equal(t, "VIC", stored.State)
	assert.Equal(t, "Whitehorse", stored.LGA)
	assert.Empty(t, stored.ClarificationOptions)
	assert.Empty(t, stored.PendingTopic)
}

func TestClarificationUnmatchedReprompts(t *testing.T) {
	flow, contexts := newFlow(t)
	ctx := context.Background()
	awaiting(t, contexts, "s1")

	out, err := flow.Apply(ctx, "s1", "the Burwood one", model.ConversationIntent{
		Type:       model.IntentClarificationResponse,
		Confidence: 0.9,
	})
	require.NoError(t, err)

	assert.Equal(t, StateAwaitingClarification, out.To)
	assert.True(t, out.Reprompt)
	assert.Equal(t, burwoodOptions, out.Options)
	assert.Nil(t, out.Resolved)

	stored, err := contexts.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, stored.ClarificationOptions, 2)
}

func TestSuburbSwitchClearsPending(t *testing.T) {
	flow, contexts := newFlow(t)
	ctx := context.Background()
	awaiting(t, contexts, "s1")

	out, err := flow.Apply(ctx, "s1", "what about Doncaster", model.ConversationIntent{
		Type:            model.IntentSuburbSwitch,
		Confidence:      0.8,
		SuburbMentioned: "Doncaster",
	})
	require.NoError(t, err)

	assert.Equal(t, StateFree, out.To)
	assert.Equal(t, EffectClearPending, out.Effect)
	assert.Empty(t, out.Context.ClarificationOptions)

	stored, err := contexts.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StateFree, StateOf(stored))
}

func TestConfidenceGate(t *testing.T) {
	tests := []struct {
		name           string
		intent         model.ConversationIntent
		wantType       model.IntentType
		wantDowngraded bool
	}{
		{"confident switch", model.ConversationIntent{Type: model.IntentSuburbSwitch, Confidence: 0.8}, model.IntentSuburbSwitch, false},
		{"weak switch", model.ConversationIntent{Type: model.IntentSuburbSwitch, Confidence: 0.3}, model.IntentFollowUp, true},
		{"weak clear", model.ConversationIntent{Type: model.IntentNewQuestion, Confidence: 0.2, ShouldClearContext: true}, model.IntentFollowUp, true},
		{"weak non-destructive", model.ConversationIntent{Type: model.IntentGreeting, Confidence: 0.1}, model.IntentGreeting, false},
		{"unknown type", model.ConversationIntent{Type: "chit_chat", Confidence: 0.9}, model.IntentNewQuestion, false},
	}

	flow, _ := newFlow(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, downgraded := flow.Gate(tt.intent)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.wantDowngraded, downgraded)
			if downgraded {
				assert.False(t, got.ShouldClearContext)
			}
		})
	}
}

func TestWeakSwitchKeepsPending(t *testing.T) {
	flow, contexts := newFlow(t)
	awaiting(t, contexts, "s1")

	out, err := flow.Apply(context.Background(), "s1", "hmm doncaster maybe", model.ConversationIntent{
		Type:       model.IntentSuburbSwitch,
		Confidence: 0.2,
	})
	require.NoError(t, err)
	assert.True(t, out.Downgraded)
	assert.Equal(t, StateAwaitingClarification, out.To)
	assert.Len(t, out.Context.ClarificationOptions, 2)
}

func TestShouldClearContextResets(t *testing.T) {
	flow, contexts := newFlow(t)
	ctx := context.Background()
	_, err := contexts.Update(ctx, "s1", model.ContextPatch{Suburb: model.StringPtr("Ballarat"), State: model.StringPtr("VIC")})
	require.NoError(t, err)

	out, err := flow.Apply(ctx, "s1", "forget that, new topic", model.ConversationIntent{
		Type:               model.IntentNewQuestion,
		Confidence:         0.9,
		ShouldClearContext: true,
	})
	require.NoError(t, err)
	assert.True(t, out.Cleared)
	assert.Empty(t, out.Context.Suburb)

	stored, err := contexts.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, stored.Suburb)
}

func TestNonDestructiveIntentsKeepContext(t *testing.T) {
	for _, it := range []model.IntentType{model.IntentNewQuestion, model.IntentFollowUp, model.IntentGreeting} {
		t.Run(string(it), func(t *testing.T) {
			flow, contexts := newFlow(t)
			awaiting(t, contexts, "s1")

			out, err := flow.Apply(context.Background(), "s1", "anything", model.ConversationIntent{Type: it, Confidence: 0.9})
			require.NoError(t, err)
			assert.Equal(t, StateAwaitingClarification, out.To)
			assert.Len(t, out.Context.ClarificationOptions, 2)
		})
	}
}

func TestMatchOption(t *testing.T) {
	reg := schema.Default()
	options := []model.ClarificationOption{
		{Suburb: "Richmond", State: "VIC", LGA: "Yarra"},
		{Suburb: "Richmond", State: "NSW", LGA: "Hawkesbury"},
		{Suburb: "Richmond", State: "QLD", LGA: "Richmond"},
	}

	tests := []struct {
		utterance string
		wantState string
		wantOK    bool
	}{
		{"victoria", "VIC", true},
		{"the NSW one", "NSW", true},
		{"Richmond in Queensland", "QLD", true},
		{"near Yarra", "VIC", true},
		{"richmond", "", false},
		{"perth", "", false},
		{"I want the first", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.utterance, func(t *testing.T) {
			got, ok := MatchOption(tt.utterance, options, reg)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantState, got.State)
			}
		})
	}
}

func TestHeuristicClassifier(t *testing.T) {
	h := NewHeuristicClassifier(schema.Default())
	pending := model.UserContext{ClarificationOptions: burwoodOptions}
	active := model.UserContext{Suburb: "Ballarat", State: "VIC"}

	tests := []struct {
		name       string
		utterance  string
		context    model.UserContext
		wantType   model.IntentType
		wantSuburb string
		wantState  string
	}{
		{"greeting", "Hi there!", model.UserContext{}, model.IntentGreeting, "", ""},
		{"clarification by state", "victoria", pending, model.IntentClarificationResponse, "Burwood", "VIC"},
		{"short unmatched clarification", "the first", pending, model.IntentClarificationResponse, "", ""},
		{"switch while pending", "what about Doncaster", pending, model.IntentSuburbSwitch, "Doncaster", ""},
		{"switch", "How about box hill?", active, model.IntentSuburbSwitch, "Box Hill", ""},
		{"switch keeps spelling", "what about McKinnon", active, model.IntentSuburbSwitch, "McKinnon", ""},
		{"follow up topic", "what about units", active, model.IntentFollowUp, "", ""},
		{"follow up reference", "how has its rent changed", active, model.IntentFollowUp, "", ""},
		{"new question", "What is the yield in Geelong", active, model.IntentNewQuestion, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.Classify(context.Background(), ClassifyRequest{Utterance: tt.utterance, Context: tt.context})
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.wantSuburb, got.SuburbMentioned)
			assert.Equal(t, tt.wantState, got.StateMentioned)
		})
	}
}
