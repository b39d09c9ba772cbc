package repository

import (
	"errors"
	"fmt"
	"strings"

	"suburbiq/internal/model"
	"suburbiq/internal/schema"

	"github.com/go-playground/validator/v10"
)

// ErrRejected marks a query that failed the whitelist
var ErrRejected = errors.New("query rejected")

// Compiler turns whitelisted TableQuery descriptors into SQL
type Compiler struct {
	registry *schema.Registry
	validate *validator.Validate
}

// NewCompiler creates a compiler bound to a schema registry
func NewCompiler(registry *schema.Registry) *Compiler {
	return &Compiler{
		registry: registry,
		validate: validator.New(),
	}
}

// Registry returns the registry the compiler validates against
func (c *Compiler) Registry() *schema.Registry {
	return c.registry
}

// Build validates q and returns SQL with '?' placeholders plus its arguments.
// Any unknown table, column or operator is rejected, never widened.
func (c *Compiler) Build(q model.TableQuery) (string, []interface{}, error) {
	if err := c.validate.Struct(q); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}

	table, ok := c.registry.Table(q.Table)
	if !ok {
		return "", nil, fmt.Errorf("%w: unknown table %q", ErrRejected, q.Table)
	}

	for _, col := range q.Select {
		if !c.registry.HasColumn(q.Table, col) {
			return "", nil, fmt.Errorf("%w: column %q not allowed on %s", ErrRejected, col, q.Table)
		}
	}

	whereClauses := []string{}
	args := []interface{}{}

	for _, f := range q.Filters {
		if !c.registry.HasColumn(q.Table, f.Col) {
			return "", nil, fmt.Errorf("%w: filter column %q not allowed on %s", ErrRejected, f.Col, q.Table)
		}
		if !c.registry.IsOperator(string(f.Op)) {
			return "", nil, fmt.Errorf("%w: operator %q not allowed", ErrRejected, f.Op)
		}

		switch f.Op {
		case model.OpEq:
			if f.Value == nil {
				return "", nil, fmt.Errorf("%w: eq on %s needs a value", ErrRejected, f.Col)
			}
			whereClauses = append(whereClauses, f.Col+" = ?")
			args = append(args, f.Value)

		case model.OpIn:
			values := f.Values
			if len(values) == 0 && f.Value != nil {
				values = []interface{}{f.Value}
			}
			if len(values) == 0 {
				return "", nil, fmt.Errorf("%w: in on %s needs values", ErrRejected, f.Col)
			}
			placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
			whereClauses = append(whereClauses, fmt.Sprintf("%s IN (%s)", f.Col, placeholders))
			args = append(args, values...)

		case model.OpBetween:
			var lo, hi interface{}
			if len(f.Values) > 0 {
				lo = f.Values[0]
			}
			if len(f.Values) > 1 {
				hi = f.Values[1]
			}
			if lo == nil && hi == nil {
				return "", nil, fmt.Errorf("%w: between on %s needs at least one bound", ErrRejected, f.Col)
			}
			if lo != nil {
				whereClauses = append(whereClauses, f.Col+" >= ?")
				args = append(args, lo)
			}
			if hi != nil {
				whereClauses = append(whereClauses, f.Col+" <= ?")
				args = append(args, hi)
			}

		case model.OpIsNull:
			whereClauses = append(whereClauses, f.Col+" IS NULL")

		case model.OpNotNull:
			whereClauses = append(whereClauses, f.Col+" IS NOT NULL")
		}
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(q.Select, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(table.Source)
	if len(whereClauses) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(whereClauses, " AND "))
	}

	if q.OrderBy != nil {
		if !c.registry.HasColumn(q.Table, q.OrderBy.Col) {
			return "", nil, fmt.Errorf("%w: order column %q not allowed on %s", ErrRejected, q.OrderBy.Col, q.Table)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(q.OrderBy.Col)
		if q.OrderBy.Desc {
			sb.WriteString(" DESC")
		} else {
			sb.WriteString(" ASC")
		}
	}

	sb.WriteString(" LIMIT ?")
	args = append(args, c.clampLimit(q.Limit))

	return sb.String(), args, nil
}

func (c *Compiler) clampLimit(limit int) int {
	if limit <= 0 || limit > c.registry.MaxLimit {
		return c.registry.MaxLimit
	}
	return limit
}
