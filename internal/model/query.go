package model

import (
	"strconv"
	"strings"
)

// Operator is a whitelisted filter operator
type Operator string

const (
	OpEq      Operator = "eq"
	OpIn      Operator = "in"
	OpBetween Operator = "between"
	OpIsNull  Operator = "is_null"
	OpNotNull Operator = "not_null"
)

// Filter is one predicate of a table query.
// between uses Values[0] and Values[1] as inclusive bounds; either may be nil.
type Filter struct {
	Col    string   `json:"col" validate:"required"`
	Op     Operator `json:"op" validate:"required,oneof=eq in between is_null not_null"`
	Value  any      `json:"value,omitempty"`
	Values []any    `json:"values,omitempty"`
}

// OrderBy sorts query results by one column
type OrderBy struct {
	Col  string `json:"col" validate:"required"`
	Desc bool   `json:"desc,omitempty"`
}

// TableQuery is a whitelisted table read
type TableQuery struct {
	ID      string   `json:"id"`
	Table   string   `json:"table" validate:"required"`
	Select  []string `json:"select" validate:"required,min=1,dive,required"`
	Filters []Filter `json:"filters,omitempty" validate:"dive"`
	OrderBy *OrderBy `json:"orderBy,omitempty"`
	Limit   int      `json:"limit,omitempty" validate:"gte=0"`
}

// Eq builds an equality filter
func Eq(col string, v any) Filter {
	return Filter{Col: col, Op: OpEq, Value: v}
}

// In builds a set-membership filter
func In(col string, vs ...any) Filter {
	return Filter{Col: col, Op: OpIn, Values: vs}
}

// Between builds an inclusive range filter; pass nil to omit a bound
func Between(col string, lo, hi any) Filter {
	return Filter{Col: col, Op: OpBetween, Values: []any{lo, hi}}
}

// IsNull builds a nullability filter
func IsNull(col string) Filter {
	return Filter{Col: col, Op: OpIsNull}
}

// NotNull builds a non-nullability filter
func NotNull(col string) Filter {
	return Filter{Col: col, Op: OpNotNull}
}

// Row is one result row keyed by column name
type Row map[string]any

// Float returns a numeric column, tolerating driver-specific types
func (r Row) Float(col string) (float64, bool) {
	switch v := r[col].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// FloatPtr returns a numeric column as a pointer, nil when absent
func (r Row) FloatPtr(col string) *float64 {
	f, ok := r.Float(col)
	if !ok {
		return nil
	}
	return &f
}

// Int returns an integer column
func (r Row) Int(col string) (int, bool) {
	f, ok := r.Float(col)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// IntPtr returns an integer column as a pointer, nil when absent
func (r Row) IntPtr(col string) *int {
	i, ok := r.Int(col)
	if !ok {
		return nil
	}
	return &i
}

// String returns a text column, empty when absent
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}
