// Package rules evaluates business rules against step output to decide
// whether an execution continues past a step.
package rules

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/coverpath/coverpath/pkg/models"
)

// DefaultStopActions are the action markers that flip a matched rule
// into a stop decision when no configured set overrides them.
var DefaultStopActions = []string{"stop", "requires_referral"}

// Evaluator applies a rule's structured predicate to a step's output
// merged over the accumulated execution context. Evaluation is
// side-effect free; malformed rules degrade to the "always continue"
// default with a logged warning and never crash the sequencer.
type Evaluator struct {
	logger      *slog.Logger
	stopActions map[string]struct{}
}

// NewEvaluator builds an evaluator. A nil or empty stopActions list
// falls back to DefaultStopActions.
func NewEvaluator(logger *slog.Logger, stopActions []string) *Evaluator {
	if len(stopActions) == 0 {
		stopActions = DefaultStopActions
	}

	stops := make(map[string]struct{}, len(stopActions))
	for _, action := range stopActions {
		stops[action] = struct{}{}
	}

	return &Evaluator{
		logger:      logger.With("module", "rule_evaluator"),
		stopActions: stops,
	}
}

// Evaluate returns the continuation decision for one step. A nil rule
// means "always continue". A matched predicate surfaces the rule's
// actions; only a configured stop-action marker changes ShouldContinue.
func (e *Evaluator) Evaluate(rule *models.Rule, stepOutput, accumulated map[string]any) (decision models.Decision) {
	decision = models.ContinueDecision()

	if rule == nil || rule.Conditions == nil {
		return decision
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("Rule evaluation panicked, defaulting to continue", "scope_key", rule.ScopeKey, "panic", r)

			decision = models.ContinueDecision()
		}
	}()

	data := make(map[string]any, len(accumulated)+len(stepOutput))
	for k, v := range accumulated {
		data[k] = v
	}

	for k, v := range stepOutput {
		data[k] = v
	}

	result, err := evalExpr(rule.Conditions, data)
	if err != nil {
		e.logger.Warn("Malformed rule conditions, defaulting to continue", "scope_key", rule.ScopeKey, "error", err)

		return models.ContinueDecision()
	}

	if !truthy(result) {
		return decision
	}

	decision.SuggestedActions = append([]string{}, rule.Actions...)

	for _, action := range rule.Actions {
		if _, stop := e.stopActions[action]; stop {
			decision.ShouldContinue = false

			break
		}
	}

	return decision
}

// evalExpr evaluates one predicate node. A single-key map is an
// operator application; everything else is a literal.
func evalExpr(node any, data map[string]any) (any, error) {
	expr, ok := node.(map[string]any)
	if !ok {
		return node, nil
	}

	if len(expr) != 1 {
		return nil, fmt.Errorf("predicate node must contain exactly one operator, got %d keys", len(expr))
	}

	for op, arg := range expr {
		return applyOperator(op, arg, data)
	}

	return nil, nil
}

func applyOperator(op string, arg any, data map[string]any) (any, error) {
	switch op {
	case "var":
		return resolveVar(arg, data)
	case "==", "!=":
		left, right, err := binaryOperands(op, arg, data)
		if err != nil {
			return nil, err
		}

		equal := looseEqual(left, right)
		if op == "!=" {
			return !equal, nil
		}

		return equal, nil
	case ">", ">=", "<", "<=":
		left, right, err := binaryOperands(op, arg, data)
		if err != nil {
			return nil, err
		}

		return compareNumbers(op, left, right)
	case "and", "or":
		operands, ok := arg.([]any)
		if !ok {
			return nil, fmt.Errorf("%q expects a list of operands", op)
		}

		for _, operand := range operands {
			value, err := evalExpr(operand, data)
			if err != nil {
				return nil, err
			}

			if op == "and" && !truthy(value) {
				return false, nil
			}

			if op == "or" && truthy(value) {
				return true, nil
			}
		}

		return op == "and", nil
	case "!":
		operand := arg
		if list, ok := arg.([]any); ok && len(list) == 1 {
			operand = list[0]
		}

		value, err := evalExpr(operand, data)
		if err != nil {
			return nil, err
		}

		return !truthy(value), nil
	case "in":
		needle, haystack, err := binaryOperands(op, arg, data)
		if err != nil {
			return nil, err
		}

		return contains(needle, haystack)
	default:
		return nil, fmt.Errorf("unknown operator %q", op)
	}
}

func binaryOperands(op string, arg any, data map[string]any) (any, any, error) {
	operands, ok := arg.([]any)
	if !ok || len(operands) != 2 {
		return nil, nil, fmt.Errorf("%q expects exactly two operands", op)
	}

	left, err := evalExpr(operands[0], data)
	if err != nil {
		return nil, nil, err
	}

	right, err := evalExpr(operands[1], data)
	if err != nil {
		return nil, nil, err
	}

	return left, right, nil
}

// resolveVar looks up a dotted path in the merged data. The argument is
// either the path string or [path, default]; a missing path yields the
// default (nil when none is given) rather than an error.
func resolveVar(arg any, data map[string]any) (any, error) {
	path := ""

	var fallback any

	switch v := arg.(type) {
	case string:
		path = v
	case []any:
		if len(v) == 0 {
			return nil, fmt.Errorf("\"var\" expects a path")
		}

		str, ok := v[0].(string)
		if !ok {
			return nil, fmt.Errorf("\"var\" path must be a string, got %T", v[0])
		}

		path = str
		if len(v) > 1 {
			fallback = v[1]
		}
	default:
		return nil, fmt.Errorf("\"var\" expects a string path, got %T", arg)
	}

	var current any = data

	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return fallback, nil
		}

		current, ok = node[segment]
		if !ok {
			return fallback, nil
		}
	}

	return current, nil
}

func compareNumbers(op string, left, right any) (bool, error) {
	l, ok := toFloat(left)
	if !ok {
		return false, fmt.Errorf("%q expects numeric operands, got %T", op, left)
	}

	r, ok := toFloat(right)
	if !ok {
		return false, fmt.Errorf("%q expects numeric operands, got %T", op, right)
	}

	switch op {
	case ">":
		return l > r, nil
	case ">=":
		return l >= r, nil
	case "<":
		return l < r, nil
	default:
		return l <= r, nil
	}
}

func contains(needle, haystack any) (bool, error) {
	switch h := haystack.(type) {
	case []any:
		for _, item := range h {
			if looseEqual(needle, item) {
				return true, nil
			}
		}

		return false, nil
	case string:
		s, ok := needle.(string)
		if !ok {
			return false, fmt.Errorf("\"in\" over a string expects a string needle, got %T", needle)
		}

		return strings.Contains(h, s), nil
	default:
		return false, fmt.Errorf("\"in\" expects a list or string haystack, got %T", haystack)
	}
}

// looseEqual compares two JSON-like values: numbers numerically
// regardless of concrete type, booleans directly, everything else by
// string form.
func looseEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}

		return false
	}

	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			return ab == bb
		}

		return false
	}

	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// truthy mirrors JSONLogic truthiness over the JSON-like value space.
func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		if f, ok := toFloat(value); ok {
			return f != 0
		}

		return true
	}
}
