// Package config provides the key/scope settings store the orchestrator
// reads its workflow strategy, scenarios, templates, timings, and
// business rules from.
package config

import (
	"context"
	"errors"
)

// ErrSettingNotFound indicates a setting does not exist for the given
// key in either the requested scope or the global scope.
var ErrSettingNotFound = errors.New("setting not found")

// GlobalScope is the fallback scope consulted when a persona-scoped
// lookup misses.
const GlobalScope = ""

// Service is the read/write settings contract. Values are JSON-like:
// string | float64 | bool | nil | []any | map[string]any.
type Service interface {
	GetSetting(ctx context.Context, key, scope string) (any, error)
	SetSetting(ctx context.Context, key, scope string, value any) error
}

// Dotted hierarchical keys observed by the orchestrator core.
const (
	KeyWorkflowStrategy        = "workflow.strategy"
	KeyDefaultProcessingTimeMs = "workflow.default_processing_time_ms"
	KeyDefaultStepDelayMs      = "workflow.default_step_delay_ms"
	KeyStopActions             = "workflow.rules.stop_actions"
	KeyDefaultPersona          = "workflow.default_persona"
)

func ScenarioKey(scenario string) string {
	return "workflow.scenario." + scenario
}

func ScenarioProcessingTimeKey(scenario string) string {
	return "workflow.scenario." + scenario + ".default_processing_time_ms"
}

func ScenarioStepDelayKey(scenario string) string {
	return "workflow.scenario." + scenario + ".default_step_delay_ms"
}

func StepTemplateKey(step string) string {
	return "workflow.step." + step + ".output_template"
}

func StepRulesKey(step string) string {
	return "workflow.step." + step + ".rules"
}

func StepProcessingTimeKey(step string) string {
	return "workflow.step." + step + ".processing_time_ms"
}

func StepDelayKey(step string) string {
	return "workflow.step." + step + ".step_delay_ms"
}

// IsSettingNotFound checks if an error indicates a missing setting.
func IsSettingNotFound(err error) bool {
	return errors.Is(err, ErrSettingNotFound)
}
