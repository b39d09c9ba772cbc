package model

// IntentType is the classifier's verdict for one utterance
type IntentType string

const (
	IntentClarificationResponse IntentType = "clarification_response"
	IntentNewQuestion           IntentType = "new_question"
	IntentFollowUp              IntentType = "follow_up"
	IntentGreeting              IntentType = "greeting"
	IntentSuburbSwitch          IntentType = "suburb_switch"
)

// IntentTypes lists every classifier verdict
var IntentTypes = []IntentType{
	IntentClarificationResponse,
	IntentNewQuestion,
	IntentFollowUp,
	IntentGreeting,
	IntentSuburbSwitch,
}

// IsValidIntentType reports whether t is a known verdict
func IsValidIntentType(t IntentType) bool {
	for _, v := range IntentTypes {
		if v == t {
			return true
		}
	}
	return false
}

// ConversationIntent is produced per turn by the classifier and consumed once
type ConversationIntent struct {
	Type               IntentType `json:"type"`
	Confidence         float64    `json:"confidence"`
	ShouldClearContext bool       `json:"shouldClearContext"`
	SuburbMentioned    string     `json:"suburbMentioned,omitempty"`
	StateMentioned     string     `json:"stateMentioned,omitempty"`
}

// Message is one turn of conversation history
type Message struct {
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content" binding:"max=32768"`
}
