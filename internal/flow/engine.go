package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/BTreeMap/IsItStolen/internal/metrics"
)

// ErrFlowNotFound is returned by StartFlow for flow ids absent from the configuration.
var ErrFlowNotFound = errors.New("flow not found")

// ErrStepNotFound is returned for flow contexts whose current step is absent from the
// configuration, e.g. after a step was renamed while users were mid-flow.
var ErrStepNotFound = errors.New("step not found")

// FlowContext is the execution state of one user progressing through one flow.
// It is stored inside the conversation context between messages.
type FlowContext struct {
	FlowID      string            `json:"flow_id"`
	UserID      string            `json:"user_id"`
	CurrentStep string            `json:"current_step"`
	Data        map[string]string `json:"data"`
	IsComplete  bool              `json:"is_complete"`
	Result      map[string]any    `json:"result"`
}

func (fc *FlowContext) clone() *FlowContext {
	next := *fc
	next.Data = make(map[string]string, len(fc.Data)+1)
	maps.Copy(next.Data, fc.Data)
	if fc.Result != nil {
		next.Result = maps.Clone(fc.Result)
	}
	return &next
}

// HandlerError reports a failure from the handler that terminates a flow.
type HandlerError struct {
	FlowID  string
	Handler string
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("flow %q handler %q failed: %v", e.FlowID, e.Handler, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// EngineOpts holds configuration for the flow engine.
type EngineOpts struct {
	Metrics metrics.Recorder
}

// EngineOption configures an Engine.
type EngineOption func(*EngineOpts)

// WithMetrics records flow starts, steps and completions into m.
func WithMetrics(m metrics.Recorder) EngineOption {
	return func(o *EngineOpts) {
		o.Metrics = m
	}
}

// Engine executes validated flow graphs.
type Engine struct {
	config   *FlowsConfig
	registry *Registry
	metrics  metrics.Recorder
}

// NewEngine creates an engine over an already validated configuration.
func NewEngine(cfg *FlowsConfig, registry *Registry, opts ...EngineOption) *Engine {
	o := EngineOpts{Metrics: metrics.NoOp{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{config: cfg, registry: registry, metrics: o.Metrics}
}

// HasFlow reports whether flowID is configured.
func (e *Engine) HasFlow(flowID string) bool {
	_, ok := e.config.Flows[flowID]
	return ok
}

// StartFlow builds a FlowContext positioned at the flow's initial step.
func (e *Engine) StartFlow(flowID, userID string) (*FlowContext, error) {
	f, ok := e.config.Flows[flowID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFlowNotFound, flowID)
	}
	e.metrics.FlowStarted(flowID)
	slog.Info("Started flow", "flow_id", flowID, "initial_step", f.InitialStep)
	return &FlowContext{
		FlowID:      flowID,
		UserID:      userID,
		CurrentStep: f.InitialStep,
		Data:        map[string]string{},
	}, nil
}

// GetPrompt returns the prompt of the current step, or "" for handler-only steps.
func (e *Engine) GetPrompt(fc *FlowContext) string {
	step, err := e.step(fc)
	if err != nil {
		return ""
	}
	return step.Prompt
}

// PromptType returns how the current step's prompt should be rendered.
func (e *Engine) PromptType(fc *FlowContext) PromptType {
	step, err := e.step(fc)
	if err != nil || step.PromptType == "" {
		return PromptTypeText
	}
	return step.PromptType
}

// ProcessInput records input for the current step and advances the flow. The returned
// context is a new value; fc is never modified.
//
// After recording, one of three things happens:
//   - the step has a next: advance, and if the entered step has a handler but no prompt,
//     run it now and complete;
//   - the step has no next but a handler: run it in place and complete;
//   - the step has neither: complete with a nil result.
//
// A handler failure is returned as a *HandlerError together with the context as it was
// when the handler ran, still incomplete.
func (e *Engine) ProcessInput(ctx context.Context, fc *FlowContext, input string) (*FlowContext, error) {
	current, err := e.step(fc)
	if err != nil {
		return nil, err
	}

	next := fc.clone()
	next.Data[next.CurrentStep] = input
	e.metrics.FlowStep(next.FlowID, next.CurrentStep)

	switch {
	case current.Next != "":
		next.CurrentStep = current.Next
		slog.Debug("Advanced flow", "flow_id", next.FlowID, "step", next.CurrentStep)

		entered := e.config.Flows[next.FlowID].Steps[next.CurrentStep]
		if entered.Handler != "" && entered.Prompt == "" {
			return e.complete(ctx, next, entered.Handler)
		}
		return next, nil

	case current.Handler != "":
		return e.complete(ctx, next, current.Handler)

	default:
		next.IsComplete = true
		next.Result = nil
		e.metrics.FlowCompleted(next.FlowID)
		slog.Info("Completed flow without handler", "flow_id", next.FlowID)
		return next, nil
	}
}

func (e *Engine) complete(ctx context.Context, fc *FlowContext, handlerName string) (*FlowContext, error) {
	result, err := e.execute(ctx, fc, handlerName)
	if err != nil {
		return fc, &HandlerError{FlowID: fc.FlowID, Handler: handlerName, Err: err}
	}
	fc.IsComplete = true
	fc.Result = result
	e.metrics.FlowCompleted(fc.FlowID)
	slog.Info("Completed flow", "flow_id", fc.FlowID, "handler", handlerName)
	return fc, nil
}

func (e *Engine) execute(ctx context.Context, fc *FlowContext, handlerName string) (map[string]any, error) {
	h, err := e.registry.GetHandler(handlerName)
	if err != nil {
		return nil, err
	}
	if _, ok := UserIDFromContext(ctx); !ok && fc.UserID != "" {
		ctx = WithUserID(ctx, fc.UserID)
	}
	result, err := h.Handle(ctx, maps.Clone(fc.Data))
	if err != nil {
		return nil, err
	}
	slog.Debug("Flow handler executed", "flow_id", fc.FlowID, "handler", handlerName)
	return result, nil
}

func (e *Engine) step(fc *FlowContext) (Step, error) {
	f, ok := e.config.Flows[fc.FlowID]
	if !ok {
		return Step{}, fmt.Errorf("%w: %s", ErrFlowNotFound, fc.FlowID)
	}
	step, ok := f.Steps[fc.CurrentStep]
	if !ok {
		return Step{}, fmt.Errorf("%w: flow %q has no step %q", ErrStepNotFound, fc.FlowID, fc.CurrentStep)
	}
	return step, nil
}
