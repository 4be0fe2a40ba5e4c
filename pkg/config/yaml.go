package config

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SettingEntry is one row in a YAML settings file.
type SettingEntry struct {
	Key   string `yaml:"key"`
	Scope string `yaml:"scope"`
	Value any    `yaml:"value"`
}

type settingsFile struct {
	Settings []SettingEntry `yaml:"settings"`
}

// LoadFile reads a YAML settings file and writes every entry into the
// store. Later entries overwrite earlier ones with the same key/scope.
func LoadFile(ctx context.Context, path string, store Service) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator's CLI flag
	if err != nil {
		return fmt.Errorf("failed to read settings file %s: %w", path, err)
	}

	var file settingsFile

	err = yaml.Unmarshal(data, &file)
	if err != nil {
		return fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}

	for _, entry := range file.Settings {
		if entry.Key == "" {
			return fmt.Errorf("settings file %s contains an entry with an empty key", path)
		}

		err = store.SetSetting(ctx, entry.Key, entry.Scope, normalizeYAML(entry.Value))
		if err != nil {
			return fmt.Errorf("failed to store setting %s: %w", entry.Key, err)
		}
	}

	return nil
}

// normalizeYAML converts yaml.v3 decoded values into the JSON-like
// shapes (map[string]any, []any, float64) the rest of the system
// expects. yaml.v3 already produces map[string]any for mappings; only
// integer normalization is needed for numeric comparisons downstream.
func normalizeYAML(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = normalizeYAML(item)
		}

		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalizeYAML(item)
		}

		return out
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return v
	}
}
