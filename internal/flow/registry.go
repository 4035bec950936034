package flow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrHandlerNotFound is returned by GetHandler for names that were never registered.
var ErrHandlerNotFound = errors.New("handler not found")

// Handler executes the work at the end of a flow. The input holds every answer collected
// so far, keyed by step id.
type Handler interface {
	Handle(ctx context.Context, input map[string]string) (map[string]any, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, input map[string]string) (map[string]any, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, input map[string]string) (map[string]any, error) {
	return f(ctx, input)
}

// Registry maps handler names used in flow configuration to implementations.
// It is built once at startup and read concurrently afterwards.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds h under name. Registering the same name twice is an error.
func (r *Registry) Register(name string, h Handler) error {
	if name == "" {
		return fmt.Errorf("handler name cannot be empty")
	}
	if h == nil {
		return fmt.Errorf("handler %q is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("handler %q already registered", name)
	}
	r.handlers[name] = h
	return nil
}

// GetHandler resolves name to its handler.
func (r *Registry) GetHandler(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotFound, name)
	}
	return h, nil
}

// Names returns the registered handler names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ValidateConfig checks that every handler referenced by cfg is registered.
func (r *Registry) ValidateConfig(cfg *FlowsConfig) error {
	for _, flowID := range cfg.FlowIDs() {
		steps := cfg.Flows[flowID].Steps
		stepIDs := make([]string, 0, len(steps))
		for id := range steps {
			stepIDs = append(stepIDs, id)
		}
		slices.Sort(stepIDs)
		for _, stepID := range stepIDs {
			name := steps[stepID].Handler
			if name == "" {
				continue
			}
			if _, err := r.GetHandler(name); err != nil {
				return fmt.Errorf("flow %q step %q: %w", flowID, stepID, err)
			}
		}
	}
	return nil
}

type userIDKey struct{}

// WithUserID returns a context carrying the id of the user a flow runs for.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext returns the user id set by WithUserID.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey{}).(string)
	return id, ok && id != ""
}
