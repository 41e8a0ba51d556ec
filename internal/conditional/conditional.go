// Package conditional evaluates boolean filter expressions against a
// variable-resolution context. Channels and providers carry an optional
// expression; when it evaluates to true the candidate is excluded from
// routing.
package conditional

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type Operator string

const (
	OpEqual          Operator = "EQUALS"
	OpNotEqual       Operator = "NOT_EQUALS"
	OpGreaterThan    Operator = "GREATER_THAN"
	OpGreaterOrEqual Operator = "GREATER_OR_EQUAL"
	OpLessThan       Operator = "LESS_THAN"
	OpLessOrEqual    Operator = "LESS_OR_EQUAL"
	OpContains       Operator = "CONTAINS"
	OpIsSet          Operator = "IS_SET"
)

// Expression is a tagged union: exactly one of And, Or, Not or the
// comparison fields (Source/Operator/Value) is expected to be set.
// A zero expression evaluates to false and therefore never filters.
type Expression struct {
	And []Expression `json:"and,omitempty"`
	Or  []Expression `json:"or,omitempty"`
	Not *Expression  `json:"not,omitempty"`

	Source   string   `json:"source,omitempty"`
	Operator Operator `json:"operator,omitempty"`
	Value    any      `json:"value,omitempty"`
}

// Context resolves dotted variable paths against the message data,
// recipient profile and event payload. Read-only; safe for reuse across
// expressions.
type Context struct {
	Data    map[string]any
	Profile map[string]any
	Event   map[string]any
}

// Resolve walks a path such as "profile.address.city". The first segment
// names the section; the remaining segments descend through nested maps.
func (c *Context) Resolve(path string) (any, bool) {
	segments := strings.Split(path, ".")
	if len(segments) == 0 || segments[0] == "" {
		return nil, false
	}

	var section map[string]any
	switch segments[0] {
	case "data":
		section = c.Data
	case "profile":
		section = c.Profile
	case "event":
		section = c.Event
	default:
		// Unprefixed paths resolve against data, matching how event
		// payload variables are referenced in templates.
		return resolveIn(c.Data, segments)
	}
	return resolveIn(section, segments[1:])
}

func resolveIn(m map[string]any, segments []string) (any, bool) {
	if m == nil || len(segments) == 0 {
		return nil, false
	}
	current := any(m)
	for _, seg := range segments {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// ShouldFilter reports whether the candidate carrying expr must be
// excluded. A nil expression never filters.
func ShouldFilter(ctx *Context, expr *Expression) bool {
	if expr == nil {
		return false
	}
	return expr.Evaluate(ctx)
}

// Evaluate is pure and deterministic for a given context.
func (e *Expression) Evaluate(ctx *Context) bool {
	switch {
	case len(e.And) > 0:
		for i := range e.And {
			if !e.And[i].Evaluate(ctx) {
				return false
			}
		}
		return true
	case len(e.Or) > 0:
		for i := range e.Or {
			if e.Or[i].Evaluate(ctx) {
				return true
			}
		}
		return false
	case e.Not != nil:
		return !e.Not.Evaluate(ctx)
	case e.Source != "":
		return e.compare(ctx)
	default:
		return false
	}
}

func (e *Expression) compare(ctx *Context) bool {
	resolved, found := ctx.Resolve(e.Source)
	if e.Operator == OpIsSet {
		want := true
		if b, ok := e.Value.(bool); ok {
			want = b
		}
		return found == want
	}
	if !found {
		return false
	}

	if ln, rn, ok := bothNumeric(resolved, e.Value); ok {
		switch e.Operator {
		case OpEqual:
			return ln == rn
		case OpNotEqual:
			return ln != rn
		case OpGreaterThan:
			return ln > rn
		case OpGreaterOrEqual:
			return ln >= rn
		case OpLessThan:
			return ln < rn
		case OpLessOrEqual:
			return ln <= rn
		}
	}

	ls, rs := stringify(resolved), stringify(e.Value)
	switch e.Operator {
	case OpEqual:
		return ls == rs
	case OpNotEqual:
		return ls != rs
	case OpGreaterThan:
		return ls > rs
	case OpGreaterOrEqual:
		return ls >= rs
	case OpLessThan:
		return ls < rs
	case OpLessOrEqual:
		return ls <= rs
	case OpContains:
		return strings.Contains(ls, rs)
	}
	return false
}

func bothNumeric(l, r any) (float64, float64, bool) {
	ln, lok := toFloat(l)
	rn, rok := toFloat(r)
	return ln, rn, lok && rok
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}
