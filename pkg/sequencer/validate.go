package sequencer

import (
	"context"
	"fmt"

	"github.com/coverpath/coverpath/pkg/config"
	"github.com/coverpath/coverpath/pkg/models"
)

// ValidateRequiredConfig confirms every external setting the run will
// need exists before the first step executes: the workflow strategy,
// the scenario's own definition, and one output template per step.
// Missing entries are collected into one aggregate error. Missing
// business rules are tolerated (rule absence means "always continue")
// and only logged. The check is a pure function of the config store
// state: identical inputs against an unchanged store yield an identical
// missing-key list.
func (s *Sequencer) ValidateRequiredConfig(ctx context.Context, scenario *models.Scenario, persona string) error {
	required := []string{
		config.KeyWorkflowStrategy,
		config.ScenarioKey(scenario.Key),
	}

	for _, step := range scenario.Steps {
		required = append(required, config.StepTemplateKey(step.Key))
	}

	var missing []string

	for _, key := range required {
		_, err := s.config.GetSetting(ctx, key, persona)
		if err != nil {
			if config.IsSettingNotFound(err) {
				missing = append(missing, key)

				continue
			}

			return fmt.Errorf("failed to read setting %s: %w", key, err)
		}
	}

	for _, step := range scenario.Steps {
		key := config.StepRulesKey(step.Key)

		_, err := s.config.GetSetting(ctx, key, persona)
		if err != nil && config.IsSettingNotFound(err) {
			s.logger.WarnContext(ctx, "No business rule configured for step, defaulting to continue", "scenario", scenario.Key, "step", step.Key, "key", key)
		}
	}

	if len(missing) > 0 {
		return &ConfigurationMissingError{MissingKeys: missing}
	}

	return nil
}
