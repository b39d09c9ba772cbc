package model

// Turn response kinds
const (
	KindAnswer        = "answer"
	KindClarification = "clarification"
	KindSuburbSearch  = "suburb_search"
	KindGreeting      = "greeting"
)

// ChatRequest is one user turn
type ChatRequest struct {
	SessionID string    `json:"session_id,omitempty" binding:"omitempty,uuid"`
	Message   string    `json:"message" binding:"required,max=32768"`
	History   []Message `json:"history,omitempty" binding:"max=100,dive"`
}

// TurnResponse is the outcome of one conversational turn
type TurnResponse struct {
	SessionID string                `json:"session_id"`
	Kind      string                `json:"kind"`
	Intent    ConversationIntent    `json:"intent"`
	Plan      *QueryPlan            `json:"plan,omitempty"`
	Result    *ResultBundle         `json:"result,omitempty"`
	Options   []ClarificationOption `json:"options,omitempty"`
	Prompt    string                `json:"prompt,omitempty"`
	Context   UserContext           `json:"context"`
	Took      int64                 `json:"took_ms"`
}

// ExecuteRequest runs a raw plan directly
type ExecuteRequest struct {
	Plan      map[string]any `json:"plan" binding:"required"`
	Utterance string         `json:"utterance" binding:"max=32768"`
	Nearby    []string       `json:"nearby,omitempty" binding:"max=20"`
}
