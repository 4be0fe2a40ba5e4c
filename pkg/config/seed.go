package config

import (
	"context"
	"fmt"

	"github.com/coverpath/coverpath/pkg/models"
)

// SeedDemo loads the built-in demo configuration: the 8-step simulated
// underwriting pipeline plus a short 3-step scenario, with an output
// template per step and business rules on the risk-bearing steps.
// Operators can override any of these keys through a YAML settings file.
func SeedDemo(ctx context.Context, store Service) error {
	type entry struct {
		key   string
		scope string
		value any
	}

	underwriting := &models.Scenario{
		Key:         "underwriting-demo",
		Name:        "Simulated underwriting pipeline",
		Description: "Eight-step underwriting run driven by an inbound submission email",
		Persona:     "underwriter",
		Steps: []models.StepDefinition{
			{Key: "intake", Order: 1, Name: "Intake", ResponsibleActor: "intake-agent", Layer: "ingestion", Description: "Register the inbound submission", DeclaredInputs: []string{"trigger_id"}, DeclaredOutputs: []string{"submission_id"}, NominalProcessingTimeMs: 1200},
			{Key: "classify", Order: 2, Name: "Classify", ResponsibleActor: "triage-agent", Layer: "ingestion", Description: "Classify the line of business", DeclaredInputs: []string{"submission_id"}, DeclaredOutputs: []string{"line_of_business"}, NominalProcessingTimeMs: 1000},
			{Key: "extract", Order: 3, Name: "Extract", ResponsibleActor: "document-agent", Layer: "enrichment", Description: "Extract applicant and exposure data", DeclaredOutputs: []string{"applicant", "exposure"}, NominalProcessingTimeMs: 1600},
			{Key: "assess_risk", Order: 4, Name: "Assess risk", ResponsibleActor: "risk-agent", Layer: "assessment", Description: "Score the submission against appetite", DeclaredOutputs: []string{"risk_score"}, SuccessCriteria: []string{"risk_score computed"}, NominalProcessingTimeMs: 1800},
			{Key: "price", Order: 5, Name: "Price", ResponsibleActor: "pricing-agent", Layer: "assessment", Description: "Produce an indicative premium", DeclaredInputs: []string{"risk_score"}, DeclaredOutputs: []string{"premium"}, NominalProcessingTimeMs: 1400},
			{Key: "review", Order: 6, Name: "Review", ResponsibleActor: "underwriter", Layer: "decision", Description: "Underwriter review of the assembled file", NominalProcessingTimeMs: 1500},
			{Key: "decide", Order: 7, Name: "Decide", ResponsibleActor: "underwriter", Layer: "decision", Description: "Bind, decline, or refer", DeclaredOutputs: []string{"decision"}, NominalProcessingTimeMs: 1100},
			{Key: "notify", Order: 8, Name: "Notify", ResponsibleActor: "comms-agent", Layer: "delivery", Description: "Send the outcome to the broker", NominalProcessingTimeMs: 900},
		},
	}

	demo := &models.Scenario{
		Key:         "demo-scenario",
		Name:        "Short demo scenario",
		Description: "Three-step run used by dashboard walkthroughs",
		Steps: []models.StepDefinition{
			{Key: "intake", Order: 1, Name: "Intake", ResponsibleActor: "intake-agent", Layer: "ingestion", Description: "Register the inbound submission", NominalProcessingTimeMs: 1200},
			{Key: "assess", Order: 2, Name: "Assess", ResponsibleActor: "risk-agent", Layer: "assessment", Description: "Score the submission", NominalProcessingTimeMs: 1500},
			{Key: "notify", Order: 3, Name: "Notify", ResponsibleActor: "comms-agent", Layer: "delivery", Description: "Send the outcome", NominalProcessingTimeMs: 900},
		},
	}

	entries := []entry{
		{key: KeyWorkflowStrategy, value: "linear_demo"},
		{key: KeyDefaultPersona, value: "underwriter"},
		{key: KeyDefaultProcessingTimeMs, value: float64(1500)},
		{key: KeyDefaultStepDelayMs, value: float64(500)},
		{key: KeyStopActions, value: []any{"stop", "requires_referral"}},

		{key: ScenarioKey(underwriting.Key), value: underwriting},
		{key: ScenarioKey(demo.Key), value: demo},

		{key: StepTemplateKey("intake"), value: map[string]any{
			"submission_id": "sub-{{trigger_id}}",
			"channel":       "email",
			"received_for":  "{{user_id}}",
		}},
		{key: StepTemplateKey("classify"), value: map[string]any{
			"line_of_business": "commercial-property",
			"confidence":       0.92,
		}},
		{key: StepTemplateKey("extract"), value: map[string]any{
			"applicant": map[string]any{
				"name":     "Acme Logistics Ltd",
				"industry": "freight",
			},
			"exposure": map[string]any{
				"tiv":       2500000,
				"locations": 3,
			},
		}},
		{key: StepTemplateKey("assess_risk"), value: map[string]any{
			"risk_score":        640,
			"appetite":          "within",
			"scored_submission": "sub-{{trigger_id}}",
		}},
		{key: StepTemplateKey("price"), value: map[string]any{
			"premium":  18400,
			"currency": "USD",
		}},
		{key: StepTemplateKey("review"), value: map[string]any{
			"reviewed_by":       "{{user_id}}",
			"referral_required": false,
		}},
		{key: StepTemplateKey("decide"), value: map[string]any{
			"decision": "bind",
			"scenario": "{{scenario}}",
		}},
		{key: StepTemplateKey("notify"), value: map[string]any{
			"notified": true,
			"message":  "Decision for sub-{{trigger_id}} sent to broker",
		}},
		{key: StepTemplateKey("assess"), value: map[string]any{
			"risk_score": 640,
			"appetite":   "within",
		}},

		{key: StepRulesKey("assess_risk"), value: map[string]any{
			"conditions": map[string]any{
				">": []any{map[string]any{"var": "risk_score"}, 700},
			},
			"actions": []any{"requires_referral"},
		}},
		{key: StepRulesKey("review"), value: map[string]any{
			"conditions": map[string]any{
				"==": []any{map[string]any{"var": "referral_required"}, true},
			},
			"actions": []any{"requires_referral"},
		}},
	}

	for _, e := range entries {
		if err := store.SetSetting(ctx, e.key, e.scope, e.value); err != nil {
			return fmt.Errorf("failed to seed setting %s: %w", e.key, err)
		}
	}

	return nil
}
