package flow

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const checkItemYAML = `
flows:
  check_item:
    name: Check if item is stolen
    description: Search the stolen item database
    initial_step: category
    steps:
      category:
        prompt: "What type of item?"
        prompt_type: list
        next: description
      description:
        prompt: "Describe the item"
        next: location
      location:
        prompt: "Where?"
        next: complete
      complete:
        handler: check_if_stolen
        handler_type: query
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flows.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, checkItemYAML))
	require.NoError(t, err)

	f, ok := cfg.Flows["check_item"]
	require.True(t, ok)
	assert.Equal(t, "Check if item is stolen", f.Name)
	assert.Equal(t, "category", f.InitialStep)
	assert.Len(t, f.Steps, 4)
	assert.Equal(t, PromptTypeList, f.Steps["category"].PromptType)
	assert.Equal(t, PromptTypeText, f.Steps["description"].PromptType, "prompt_type defaults to text")
	assert.Equal(t, HandlerTypeQuery, f.Steps["complete"].HandlerType)
	assert.True(t, f.Steps["complete"].IsTerminal())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestParseMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("flows: [unclosed"))
	assert.ErrorIs(t, err, ErrMalformedYAML)
}

func TestParseNonMappingDocument(t *testing.T) {
	_, err := Parse([]byte("- just\n- a list\n"))
	assert.ErrorIs(t, err, ErrNotMapping)

	_, err = Parse([]byte(""))
	assert.ErrorIs(t, err, ErrNotMapping)
}

func TestParseErrorKindsAreDistinct(t *testing.T) {
	_, notFound := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	_, malformed := Parse([]byte("flows: {"))
	_, notMapping := Parse([]byte("42"))

	assert.False(t, errors.Is(notFound, ErrMalformedYAML))
	assert.False(t, errors.Is(malformed, ErrNotMapping))
	assert.False(t, errors.Is(notMapping, ErrConfigNotFound))
}

func TestParseMissingRequiredFields(t *testing.T) {
	tests := map[string]string{
		"flows key": `other: {}`,
		"name": `
flows:
  f:
    initial_step: a
    steps:
      a: {prompt: hi}
`,
		"initial_step": `
flows:
  f:
    name: F
    steps:
      a: {prompt: hi}
`,
		"steps": `
flows:
  f:
    name: F
    initial_step: a
`,
		"handler_type": `
flows:
  f:
    name: F
    initial_step: a
    steps:
      a: {handler: h}
`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestParseRejectsUnknownEnumValues(t *testing.T) {
	_, err := Parse([]byte(`
flows:
  f:
    name: F
    initial_step: a
    steps:
      a: {prompt: hi, prompt_type: carousel}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompt_type")

	_, err = Parse([]byte(`
flows:
  f:
    name: F
    initial_step: a
    steps:
      a: {handler: h, handler_type: mutation}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler_type")
}

func TestValidateInitialStepNotFound(t *testing.T) {
	_, err := Parse([]byte(`
flows:
  f:
    name: F
    initial_step: missing
    steps:
      a: {prompt: hi}
`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "f", verr.FlowID)
	assert.Contains(t, verr.Reason, "initial step")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestValidateDanglingNext(t *testing.T) {
	_, err := Parse([]byte(`
flows:
  f:
    name: F
    initial_step: a
    steps:
      a: {prompt: hi, next: ghost}
`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "a", verr.StepID)
	assert.Contains(t, verr.Reason, "non-existent step")
}

func TestValidateSelfCycle(t *testing.T) {
	_, err := Parse([]byte(`
flows:
  f:
    name: F
    initial_step: a
    steps:
      a: {prompt: hi, next: a}
`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "circular dependency")
	assert.Contains(t, verr.Reason, "a -> a")
}

func TestValidateMutualCycle(t *testing.T) {
	_, err := Parse([]byte(`
flows:
  f:
    name: F
    initial_step: a
    steps:
      a: {prompt: one, next: b}
      b: {prompt: two, next: a}
`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "a -> b -> a")
}

func TestValidateDiamondIsLegal(t *testing.T) {
	// left and right both lead to join.
	cfg := &Config{
		Name:        "diamond",
		InitialStep: "left",
		Steps: map[string]Step{
			"left":  {Prompt: "l", Next: "join"},
			"right": {Prompt: "r", Next: "join"},
			"join":  {Prompt: "j", Next: "end"},
			"end":   {Handler: "h", HandlerType: HandlerTypeCommand},
		},
	}
	require.NoError(t, cfg.Validate("diamond"))

	_, err := Parse([]byte(`
flows:
  diamond:
    name: Diamond
    initial_step: start
    steps:
      start: {prompt: s, next: join}
      side: {prompt: x, next: join}
      join: {prompt: j, next: end}
      end: {handler: h, handler_type: command}
`))
	assert.NoError(t, err)
}

func TestCheckCyclesDistinguishesRevisitFromCycle(t *testing.T) {
	cfg := &Config{
		InitialStep: "a",
		Steps: map[string]Step{
			"a": {Next: "b"},
			"b": {Next: "c"},
			"c": {Next: "b"},
		},
	}
	err := cfg.Validate("f")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "b -> c -> b")
	assert.NotContains(t, verr.Reason, "a ->")
}
