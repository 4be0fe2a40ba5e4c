// Package models defines the core domain models for demo workflow orchestration.
package models

// StepDefinition describes one named unit of work within a scenario.
// Definitions are loaded from the configuration store and are read-only
// for the lifetime of an execution; steps run strictly in ascending Order.
type StepDefinition struct {
	Key                     string   `json:"key"                        validate:"required" yaml:"key"`
	Order                   int      `json:"order"                      validate:"min=1"    yaml:"order"`
	Name                    string   `json:"name"                       validate:"required" yaml:"name"`
	ResponsibleActor        string   `json:"responsible_actor"          yaml:"responsible_actor"`
	Layer                   string   `json:"layer"                      yaml:"layer"`
	Description             string   `json:"description"                yaml:"description"`
	DeclaredInputs          []string `json:"declared_inputs,omitempty"  yaml:"declared_inputs"`
	DeclaredOutputs         []string `json:"declared_outputs,omitempty" yaml:"declared_outputs"`
	SuccessCriteria         []string `json:"success_criteria,omitempty" yaml:"success_criteria"`
	NominalProcessingTimeMs int      `json:"nominal_processing_time_ms" yaml:"nominal_processing_time_ms"`
}

// Scenario bundles the ordered step list and default persona driving one
// kind of simulated workflow run. Step keys must be unique: accumulated
// results and templates address prior outputs by key.
type Scenario struct {
	Key         string           `json:"key"         validate:"required"                       yaml:"key"`
	Name        string           `json:"name"        validate:"required"                       yaml:"name"`
	Description string           `json:"description" yaml:"description"`
	Persona     string           `json:"persona"     yaml:"persona"`
	Steps       []StepDefinition `json:"steps"       validate:"required,min=1,unique=Key,dive" yaml:"steps"`
}
