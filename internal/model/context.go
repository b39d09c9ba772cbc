package model

// ClarificationOption is one candidate suburb offered when a name is ambiguous
type ClarificationOption struct {
	Suburb string `json:"suburb"`
	State  string `json:"state"`
	LGA    string `json:"lga,omitempty"`
}

// UserContext holds short-lived conversational state for one session
type UserContext struct {
	Suburb               string                `json:"suburb,omitempty"`
	LGA                  string                `json:"lga,omitempty"`
	State                string                `json:"state,omitempty"`
	Budget               *float64              `json:"budget,omitempty"`
	Purpose              string                `json:"purpose,omitempty"`
	PropertyType         string                `json:"property_type,omitempty"`
	ClarificationOptions []ClarificationOption `json:"clarification_options"`
	PendingTopic         string                `json:"pending_topic,omitempty"`
	NearbySuburbs        []string              `json:"nearby_suburbs"`
}

// AwaitingClarification reports whether options are pending
func (c UserContext) AwaitingClarification() bool {
	return len(c.ClarificationOptions) > 0
}

// ContextPatch is a partial update; nil fields are left untouched
type ContextPatch struct {
	Suburb               *string
	LGA                  *string
	State                *string
	Budget               *float64
	Purpose              *string
	PropertyType         *string
	ClarificationOptions *[]ClarificationOption
	PendingTopic         *string
	NearbySuburbs        *[]string
}

// Apply overlays the non-nil fields of p onto c
func (p ContextPatch) Apply(c UserContext) UserContext {
	if p.Suburb != nil {
		c.Suburb = *p.Suburb
	}
	if p.LGA != nil {
		c.LGA = *p.LGA
	}
	if p.State != nil {
		c.State = *p.State
	}
	if p.Budget != nil {
		v := *p.Budget
		c.Budget = &v
	}
	if p.Purpose != nil {
		c.Purpose = *p.Purpose
	}
	if p.PropertyType != nil {
		c.PropertyType = *p.PropertyType
	}
	if p.ClarificationOptions != nil {
		c.ClarificationOptions = append([]ClarificationOption{}, (*p.ClarificationOptions)...)
	}
	if p.PendingTopic != nil {
		c.PendingTopic = *p.PendingTopic
	}
	if p.NearbySuburbs != nil {
		c.NearbySuburbs = append([]string{}, (*p.NearbySuburbs)...)
	}
	return c
}

// ClearPending returns a patch that drops pending clarification state
func ClearPending() ContextPatch {
	empty := []ClarificationOption{}
	blank := ""
	return ContextPatch{ClarificationOptions: &empty, PendingTopic: &blank}
}

// StringPtr is a small helper for building patches
func StringPtr(s string) *string {
	return &s
}

// Clone returns a deep copy so callers never share slices with a store
func (c UserContext) Clone() UserContext {
	out := c
	if c.Budget != nil {
		v := *c.Budget
		out.Budget = &v
	}
	out.ClarificationOptions = append([]ClarificationOption{}, c.ClarificationOptions...)
	out.NearbySuburbs = append([]string{}, c.NearbySuburbs...)
	return out
}
