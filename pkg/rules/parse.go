package rules

import (
	"encoding/json"
	"fmt"

	"github.com/coverpath/coverpath/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// ruleSchema is the shape every rule document loaded from the
// configuration store must satisfy before it reaches the evaluator.
const ruleSchema = `{
	"type": "object",
	"required": ["conditions"],
	"properties": {
		"scope_key": {"type": "string"},
		"conditions": {},
		"actions": {
			"type": "array",
			"items": {"type": "string"}
		}
	}
}`

var ruleSchemaLoader = gojsonschema.NewStringLoader(ruleSchema)

// ParseRule converts a raw configuration value into a Rule, validating
// its shape first. Callers treat an error as "no rule" (the sequencer
// logs it and continues) so a bad config entry never fails a run.
func ParseRule(raw any) (*models.Rule, error) {
	if raw == nil {
		return nil, nil
	}

	if rule, ok := raw.(*models.Rule); ok {
		return rule, nil
	}

	result, err := gojsonschema.Validate(ruleSchemaLoader, gojsonschema.NewGoLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to validate rule document: %w", err)
	}

	if !result.Valid() {
		return nil, fmt.Errorf("rule document is malformed: %s", firstSchemaError(result))
	}

	payload, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rule document: %w", err)
	}

	var rule models.Rule

	err = json.Unmarshal(payload, &rule)
	if err != nil {
		return nil, fmt.Errorf("failed to decode rule document: %w", err)
	}

	return &rule, nil
}

func firstSchemaError(result *gojsonschema.Result) string {
	for _, desc := range result.Errors() {
		return desc.String()
	}

	return "unknown schema violation"
}
