package models

// Rule is a condition/action pair applied against a step's output.
// Conditions is a JSON-like structured predicate (see pkg/rules);
// Actions are surfaced as suggested remediations when the predicate
// matches. Absence of a rule for a step means "always continue".
type Rule struct {
	ScopeKey   string   `json:"scope_key,omitempty"`
	Conditions any      `json:"conditions"`
	Actions    []string `json:"actions,omitempty"`
}

// Decision is the rule evaluator's verdict for one step.
type Decision struct {
	ShouldContinue   bool     `json:"should_continue"`
	SuggestedActions []string `json:"suggested_actions"`
}

// ContinueDecision is the default verdict when no rule applies.
func ContinueDecision() Decision {
	return Decision{ShouldContinue: true, SuggestedActions: []string{}}
}
