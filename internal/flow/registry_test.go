package flow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	h := HandlerFunc(func(ctx context.Context, input map[string]string) (map[string]any, error) {
		return map[string]any{"echo": input["q"]}, nil
	})
	require.NoError(t, reg.Register("echo", h))

	got, err := reg.GetHandler("echo")
	require.NoError(t, err)
	out, err := got.Handle(context.Background(), map[string]string{"q": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out["echo"])

	_, err = reg.GetHandler("missing")
	assert.ErrorIs(t, err, ErrHandlerNotFound)
	assert.Contains(t, err.Error(), "missing")
}

func TestRegistryRejectsDuplicatesAndInvalid(t *testing.T) {
	reg := NewRegistry()
	h := HandlerFunc(func(context.Context, map[string]string) (map[string]any, error) { return nil, nil })
	require.NoError(t, reg.Register("a", h))
	assert.Error(t, reg.Register("a", h))
	assert.Error(t, reg.Register("", h))
	assert.Error(t, reg.Register("b", nil))
	assert.Equal(t, []string{"a"}, reg.Names())
}

func TestRegistryValidateConfig(t *testing.T) {
	cfg, err := Parse([]byte(checkItemYAML))
	require.NoError(t, err)

	reg := NewRegistry()
	err = reg.ValidateConfig(cfg)
	assert.ErrorIs(t, err, ErrHandlerNotFound)
	assert.Contains(t, err.Error(), `step "complete"`)

	require.NoError(t, reg.Register("check_if_stolen", HandlerFunc(func(context.Context, map[string]string) (map[string]any, error) {
		return nil, nil
	})))
	assert.NoError(t, reg.ValidateConfig(cfg))
}

func TestUserIDContext(t *testing.T) {
	_, ok := UserIDFromContext(context.Background())
	assert.False(t, ok)

	id, ok := UserIDFromContext(WithUserID(context.Background(), "+15551234567"))
	assert.True(t, ok)
	assert.Equal(t, "+15551234567", id)
}
