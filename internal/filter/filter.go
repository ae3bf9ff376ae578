// Package filter translates declarative column/operator/value conditions into calls on a
// backend-specific filter builder.
package filter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnsupportedOperator = errors.New("unsupported operator")

type Operator string

const (
	OpEq    Operator = "eq"
	OpNeq   Operator = "neq"
	OpGt    Operator = "gt"
	OpGte   Operator = "gte"
	OpLt    Operator = "lt"
	OpLte   Operator = "lte"
	OpLike  Operator = "like"
	OpILike Operator = "ilike"
	OpIs    Operator = "is"
)

// Operators lists every supported operator in the order they are advertised to callers.
var Operators = []Operator{OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpLike, OpILike, OpIs}

func (o Operator) Valid() bool {
	switch o {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpLike, OpILike, OpIs:
		return true
	}
	return false
}

func ParseOperator(s string) (Operator, error) {
	op := Operator(s)
	if !op.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedOperator, s)
	}
	return op, nil
}

// UnmarshalJSON rejects operator names outside the supported set.
func (o *Operator) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("operator must be a string: %w", err)
	}
	op, err := ParseOperator(s)
	if err != nil {
		return err
	}
	*o = op
	return nil
}

// Condition is a single constraint; conditions are combined by conjunction.
type Condition struct {
	Column   string   `json:"column"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// Builder accumulates filter primitives. Implementations may defer value errors until the
// query is executed.
type Builder interface {
	Eq(column string, value any)
	Neq(column string, value any)
	Gt(column string, value any)
	Gte(column string, value any)
	Lt(column string, value any)
	Lte(column string, value any)
	Like(column string, pattern any)
	ILike(column string, pattern any)
	Is(column string, value any)
}

// Apply folds conditions onto b in order.
func Apply(b Builder, conds []Condition) error {
	for i, c := range conds {
		switch c.Operator {
		case OpEq:
			b.Eq(c.Column, c.Value)
		case OpNeq:
			b.Neq(c.Column, c.Value)
		case OpGt:
			b.Gt(c.Column, c.Value)
		case OpGte:
			b.Gte(c.Column, c.Value)
		case OpLt:
			b.Lt(c.Column, c.Value)
		case OpLte:
			b.Lte(c.Column, c.Value)
		case OpLike:
			b.Like(c.Column, c.Value)
		case OpILike:
			b.ILike(c.Column, c.Value)
		case OpIs:
			b.Is(c.Column, c.Value)
		default:
			return fmt.Errorf("%w: %q (condition %d)", ErrUnsupportedOperator, c.Operator, i)
		}
	}
	return nil
}

// Query is a filter builder bound to a single select against schema.table.
type Query interface {
	Builder
	// Execute runs the query returning at most limit rows as a JSON array.
	Execute(ctx context.Context, limit int) (json.RawMessage, error)
}

// Source starts queries against a database backend.
type Source interface {
	Select(schema, table, columns string) Query
}
