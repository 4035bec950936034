// Package flow implements configuration-driven conversational flows: the YAML step graph,
// its validation, the handler registry and the engine that advances a user through a flow.
package flow

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Configuration error kinds. Load and Parse never return a partially validated config.
var (
	ErrConfigNotFound = errors.New("flow config file not found")
	ErrMalformedYAML  = errors.New("flow config is not valid YAML")
	ErrNotMapping     = errors.New("flow config must be a YAML mapping")
	ErrInvalidConfig  = errors.New("invalid flow config structure")
	ErrValidation     = errors.New("flow validation failed")
)

// ValidationError reports a structural problem in one flow.
type ValidationError struct {
	FlowID string
	StepID string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("validation error in flow %q, step %q: %s", e.FlowID, e.StepID, e.Reason)
	}
	return fmt.Sprintf("validation error in flow %q: %s", e.FlowID, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// PromptType controls how a step prompt is rendered to the user.
type PromptType string

const (
	PromptTypeText   PromptType = "text"
	PromptTypeList   PromptType = "list"
	PromptTypeButton PromptType = "button"
)

// UnmarshalYAML rejects prompt types outside the closed set.
func (p *PromptType) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	switch PromptType(s) {
	case PromptTypeText, PromptTypeList, PromptTypeButton:
		*p = PromptType(s)
		return nil
	}
	return fmt.Errorf("line %d: prompt_type must be one of text, list, button, got %q", node.Line, s)
}

// HandlerType distinguishes read-only handlers from ones that mutate state.
type HandlerType string

const (
	HandlerTypeQuery   HandlerType = "query"
	HandlerTypeCommand HandlerType = "command"
)

// UnmarshalYAML rejects handler types outside the closed set.
func (h *HandlerType) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	switch HandlerType(s) {
	case HandlerTypeQuery, HandlerTypeCommand:
		*h = HandlerType(s)
		return nil
	}
	return fmt.Errorf("line %d: handler_type must be one of query, command, got %q", node.Line, s)
}

// Step is one node in a flow graph.
type Step struct {
	Prompt      string      `yaml:"prompt"`
	PromptType  PromptType  `yaml:"prompt_type"`
	Next        string      `yaml:"next"`
	Handler     string      `yaml:"handler"`
	HandlerType HandlerType `yaml:"handler_type"`
}

// IsTerminal reports whether the step has no successor.
func (s Step) IsTerminal() bool {
	return s.Next == ""
}

// Config describes one named flow.
type Config struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	InitialStep string          `yaml:"initial_step"`
	Steps       map[string]Step `yaml:"steps"`
}

// FlowsConfig is the root of a flow configuration document.
type FlowsConfig struct {
	Flows map[string]Config `yaml:"flows"`
}

// FlowIDs returns the configured flow ids in sorted order.
func (c *FlowsConfig) FlowIDs() []string {
	ids := make([]string, 0, len(c.Flows))
	for id := range c.Flows {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Load reads and validates the flow configuration at path.
func Load(path string) (*FlowsConfig, error) {
	slog.Debug("flow.Load reading config", "path", path)
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read flow config %s: %w", path, err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	slog.Info("Loaded flow configuration", "path", path, "flows", len(cfg.Flows))
	return cfg, nil
}

// Parse decodes and validates a flow configuration document.
func Parse(raw []byte) (*FlowsConfig, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedYAML, err)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, ErrNotMapping
	}

	var cfg FlowsConfig
	if err := doc.Content[0].Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.Flows == nil {
		return nil, fmt.Errorf("%w: missing required key 'flows'", ErrInvalidConfig)
	}

	for _, id := range cfg.FlowIDs() {
		flow := cfg.Flows[id]
		if err := checkRequiredFields(id, &flow); err != nil {
			return nil, err
		}
		cfg.Flows[id] = flow
		if err := flow.Validate(id); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// checkRequiredFields enforces required keys and fills defaults.
func checkRequiredFields(id string, f *Config) error {
	switch {
	case f.Name == "":
		return fmt.Errorf("%w: flow %q is missing required field 'name'", ErrInvalidConfig, id)
	case f.InitialStep == "":
		return fmt.Errorf("%w: flow %q is missing required field 'initial_step'", ErrInvalidConfig, id)
	case f.Steps == nil:
		return fmt.Errorf("%w: flow %q is missing required field 'steps'", ErrInvalidConfig, id)
	}
	for stepID, step := range f.Steps {
		if step.PromptType == "" {
			step.PromptType = PromptTypeText
		}
		if step.Handler != "" && step.HandlerType == "" {
			return fmt.Errorf("%w: flow %q step %q sets handler without handler_type", ErrInvalidConfig, id, stepID)
		}
		if step.Handler == "" && step.HandlerType != "" {
			return fmt.Errorf("%w: flow %q step %q sets handler_type without handler", ErrInvalidConfig, id, stepID)
		}
		f.Steps[stepID] = step
	}
	return nil
}

// Validate checks the step graph of the flow identified by id: the initial step exists,
// every next reference resolves, and no cycle is reachable from the initial step.
func (f *Config) Validate(id string) error {
	if _, ok := f.Steps[f.InitialStep]; !ok {
		return &ValidationError{FlowID: id, Reason: fmt.Sprintf("initial step %q not found in steps", f.InitialStep)}
	}

	stepIDs := make([]string, 0, len(f.Steps))
	for stepID := range f.Steps {
		stepIDs = append(stepIDs, stepID)
	}
	slices.Sort(stepIDs)
	for _, stepID := range stepIDs {
		next := f.Steps[stepID].Next
		if next == "" {
			continue
		}
		if _, ok := f.Steps[next]; !ok {
			return &ValidationError{FlowID: id, StepID: stepID, Reason: fmt.Sprintf("references non-existent step %q", next)}
		}
	}

	return f.checkCycles(id)
}

// checkCycles walks next pointers depth-first from the initial step. Only steps on the
// current path count as a cycle; a step reached again through another branch does not.
func (f *Config) checkCycles(id string) error {
	visited := map[string]bool{}
	var path []string

	var visit func(stepID string) error
	visit = func(stepID string) error {
		if i := slices.Index(path, stepID); i >= 0 {
			cycle := append(slices.Clone(path[i:]), stepID)
			return &ValidationError{FlowID: id, StepID: stepID, Reason: "circular dependency detected: " + strings.Join(cycle, " -> ")}
		}
		if visited[stepID] {
			return nil
		}
		visited[stepID] = true
		path = append(path, stepID)
		if next := f.Steps[stepID].Next; next != "" {
			if err := visit(next); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		return nil
	}
	return visit(f.InitialStep)
}
