// Package plan turns untrusted planner output into a validated QueryPlan.
package plan

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"suburbiq/internal/model"
	"suburbiq/internal/utils"
)

// PlanValidationError reports planner output that cannot become a plan.
// Callers fall back to the safe default plan.
type PlanValidationError struct {
	Reason string
	Err    error
}

func (e *PlanValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid plan: %s: %v", e.Reason, e.Err)
	}
	return "invalid plan: " + e.Reason
}

func (e *PlanValidationError) Unwrap() error {
	return e.Err
}

// RawPlan is decoded planner output with loose shapes already coerced.
// Suburb and state are still untrusted.
type RawPlan struct {
	Actions       []model.Action
	Suburb        string
	State         string
	PropertyTypes []string
	Bedroom       *int
	Bedrooms      []int
	Years         model.YearsSpec
	Compare       *model.CompareSpec
	Intent        string
	AnalysisType  string
	// Dropped lists every value discarded while decoding, as "field=value"
	Dropped []string
}

// wirePlan accepts whatever the planner emits for each field
type wirePlan struct {
	Actions       json.RawMessage `json:"actions"`
	Action        json.RawMessage `json:"action"`
	Suburb        json.RawMessage `json:"suburb"`
	State         json.RawMessage `json:"state"`
	PropertyTypes json.RawMessage `json:"propertyTypes"`
	PropertyType  json.RawMessage `json:"propertyType"`
	Bedroom       json.RawMessage `json:"bedroom"`
	Bedrooms      json.RawMessage `json:"bedrooms"`
	Years         *struct {
		LastN json.RawMessage `json:"lastN"`
		From  json.RawMessage `json:"from"`
		To    json.RawMessage `json:"to"`
	} `json:"years"`
	Compare *struct {
		Nearby  json.RawMessage `json:"nearby"`
		Suburbs json.RawMessage `json:"suburbs"`
	} `json:"compare"`
	Intent       json.RawMessage `json:"intent"`
	AnalysisType json.RawMessage `json:"analysisType"`
}

// Decode recovers a plan object from planner text (fenced, prefixed by
// reasoning, or slightly malformed JSON). It fails when nothing decodes or
// when no known action survives.
func (n *Normalizer) Decode(text string) (RawPlan, error) {
	var w wirePlan
	if err := utils.ParseAIJSON(text, &w); err != nil {
		return RawPlan{}, &PlanValidationError{Reason: "undecodable planner output", Err: err}
	}
	return n.fromWire(w)
}

// DecodeMap decodes a plan supplied as a generic JSON object
func (n *Normalizer) DecodeMap(m map[string]any) (RawPlan, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return RawPlan{}, &PlanValidationError{Reason: "unencodable plan", Err: err}
	}
	var w wirePlan
	if err := json.Unmarshal(data, &w); err != nil {
		return RawPlan{}, &PlanValidationError{Reason: "plan is not an object", Err: err}
	}
	return n.fromWire(w)
}

func (n *Normalizer) fromWire(w wirePlan) (RawPlan, error) {
	var raw RawPlan
	drop := func(field, v string) {
		raw.Dropped = append(raw.Dropped, field+"="+v)
	}

	for _, a := range append(stringList(w.Actions), stringList(w.Action)...) {
		action := model.Action(strings.ToLower(strings.TrimSpace(a)))
		if !model.IsValidAction(action) {
			drop("actions", a)
			continue
		}
		raw.Actions = append(raw.Actions, action)
	}
	if len(raw.Actions) == 0 {
		return raw, &PlanValidationError{Reason: "no known action"}
	}

	raw.Suburb = strings.TrimSpace(firstString(w.Suburb))
	raw.State = strings.TrimSpace(firstString(w.State))
	raw.Intent = strings.TrimSpace(firstString(w.Intent))
	raw.AnalysisType = strings.TrimSpace(firstString(w.AnalysisType))

	for _, pt := range append(stringList(w.PropertyTypes), stringList(w.PropertyType)...) {
		p := strings.ToLower(strings.TrimSpace(pt))
		if p == "apartment" || p == "units" {
			p = model.PropertyUnit
		}
		if p == "houses" {
			p = model.PropertyHouse
		}
		if !n.registry.IsPropertyType(p) {
			drop("propertyTypes", pt)
			continue
		}
		raw.PropertyTypes = append(raw.PropertyTypes, p)
	}

	if b, bad := intList(w.Bedroom); len(b) > 0 {
		raw.Bedroom = &b[0]
	} else {
		for _, v := range bad {
			drop("bedroom", v)
		}
	}
	beds, bad := intList(w.Bedrooms)
	raw.Bedrooms = beds
	for _, v := range bad {
		drop("bedrooms", v)
	}

	if w.Years != nil {
		raw.Years.LastN = firstInt(w.Years.LastN)
		raw.Years.From = firstInt(w.Years.From)
		raw.Years.To = firstInt(w.Years.To)
	}

	if w.Compare != nil {
		raw.Compare = &model.CompareSpec{
			Nearby:  truthy(w.Compare.Nearby),
			Suburbs: stringList(w.Compare.Suburbs),
		}
	}

	return raw, nil
}

// stringList accepts "a", ["a","b"] or "a, b"
func stringList(data json.RawMessage) []string {
	if len(data) == 0 {
		return nil
	}
	var list []interface{}
	if err := json.Unmarshal(data, &list); err == nil {
		var out []string
		for _, v := range list {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		var out []string
		for _, part := range strings.Split(s, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return nil
}

func firstString(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil && len(list) > 0 {
		return list[0]
	}
	return ""
}

// intList accepts numbers, numeric strings or arrays of either. Values that
// are not finite integers come back in bad.
func intList(data json.RawMessage) (good []int, bad []string) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var values []interface{}
	var single interface{}
	if err := json.Unmarshal(data, &values); err != nil {
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, []string{string(data)}
		}
		values = []interface{}{single}
	}

	for _, v := range values {
		if i, ok := toInt(v); ok {
			good = append(good, i)
		} else {
			bad = append(bad, fmt.Sprint(v))
		}
	}
	return good, bad
}

func firstInt(data json.RawMessage) *int {
	good, _ := intList(data)
	if len(good) == 0 {
		return nil
	}
	return &good[0]
}

func toInt(v interface{}) (int, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

func truthy(data json.RawMessage) bool {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, _ := strconv.ParseBool(strings.TrimSpace(s))
		return parsed
	}
	return false
}
