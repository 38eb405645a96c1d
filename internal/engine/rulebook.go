package engine

import (
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Rule is a caller-supplied condition/action pair. Rules arrive with each
// request and are never stored.
type Rule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Condition   string `json:"condition"` // JSON-encoded Condition
	Action      Action `json:"action"`
	Message     string `json:"message,omitempty"`
	Priority    int    `json:"priority"`
}

// Condition is the structured predicate encoded in Rule.Condition.
type Condition struct {
	Tool     string `json:"tool,omitempty"`
	Field    string `json:"field,omitempty"`
	Operator string `json:"operator,omitempty"`
	Value    any    `json:"value,omitempty"`
}

// RuleVerdict is the outcome of evaluating a rule set against one call.
type RuleVerdict struct {
	Allowed bool
	Action  Action
	Message string
	RuleID  string
}

// Rulebook evaluates stateless rule sets.
type Rulebook struct {
	logger *zap.Logger
}

// NewRulebook creates a Rulebook.
func NewRulebook(logger *zap.Logger) *Rulebook {
	return &Rulebook{logger: logger}
}

// Evaluate applies rules in ascending priority (ties keep arrival order).
// The first matching rule decides; later rules are not evaluated.
// Rules whose condition cannot be parsed are logged and skipped.
func (rb *Rulebook) Evaluate(rules []Rule, toolName string, args map[string]any) RuleVerdict {
	ordered := slices.Clone(rules)
	slices.SortStableFunc(ordered, func(a, b Rule) int {
		return cmp.Compare(a.Priority, b.Priority)
	})

	for _, rule := range ordered {
		var cond Condition
		if err := json.Unmarshal([]byte(rule.Condition), &cond); err != nil {
			rb.logger.Error("error parsing rule condition",
				zap.String("rule_id", rule.ID),
				zap.Error(err),
			)
			continue
		}

		if cond.Tool != "" && cond.Tool != toolName {
			continue
		}
		if cond.Field == "" {
			continue
		}

		values, found := lookupField(args, cond.Field)
		if !found || !anyMatch(values, cond.Operator, cond.Value) {
			continue
		}

		rb.logger.Warn("rule violation",
			zap.String("rule_id", rule.ID),
			zap.String("rule_name", rule.Name),
			zap.String("tool_name", toolName),
		)

		msg := rule.Message
		if msg == "" {
			msg = "Rule violated: " + rule.Name
		}
		return RuleVerdict{
			Allowed: rule.Action != ActionReject,
			Action:  rule.Action,
			Message: msg,
			RuleID:  rule.ID,
		}
	}

	return RuleVerdict{Allowed: true, Action: ActionAllow}
}

// lookupField resolves a field against the arguments.
//
// Dotted paths descend into objects; a path segment that lands on an array
// fans out over its elements. A bare name absent at the top level is also
// looked up one level inside array-of-object arguments, so a rule on
// "quantity" applies to invoice line items.
func lookupField(args map[string]any, field string) ([]any, bool) {
	if v, ok := args[field]; ok {
		return []any{v}, true
	}

	if strings.Contains(field, ".") {
		current := []any{args}
		for _, seg := range strings.Split(field, ".") {
			var next []any
			for _, c := range flatten(current) {
				m, ok := c.(map[string]any)
				if !ok {
					continue
				}
				if v, ok := m[seg]; ok {
					next = append(next, v)
				}
			}
			if len(next) == 0 {
				return nil, false
			}
			current = next
		}
		return flatten(current), true
	}

	var nested []any
	for _, v := range args {
		list, ok := v.([]any)
		if !ok {
			continue
		}
		for _, el := range list {
			if m, ok := el.(map[string]any); ok {
				if fv, ok := m[field]; ok {
					nested = append(nested, fv)
				}
			}
		}
	}
	return nested, len(nested) > 0
}

func flatten(values []any) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		if list, ok := v.([]any); ok {
			out = append(out, list...)
			continue
		}
		out = append(out, v)
	}
	return out
}

func anyMatch(values []any, operator string, want any) bool {
	for _, v := range values {
		if matchOperator(v, operator, want) {
			return true
		}
	}
	return false
}

func matchOperator(val any, operator string, want any) bool {
	switch operator {
	case "<":
		a, aok := toFloat(val)
		b, bok := toFloat(want)
		return aok && bok && a < b
	case ">":
		a, aok := toFloat(val)
		b, bok := toFloat(want)
		return aok && bok && a > b
	case "==":
		return strictEqual(val, want)
	case "!=":
		return !strictEqual(val, want)
	case "contains":
		return strings.Contains(stringify(val), stringify(want))
	default:
		return false
	}
}

// strictEqual compares scalars by type and value. Numbers of any Go kind
// compare by value; composite values are never equal.
func strictEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	switch av := a.(type) {
	case nil:
		return b == nil
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func stringify(v any) string {
	if v == nil {
		return "null"
	}
	if f, ok := toFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
