package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/BTreeMap/IsItStolen/internal/flow"
	"github.com/BTreeMap/IsItStolen/internal/items"
	"github.com/BTreeMap/IsItStolen/internal/metrics"
	"github.com/BTreeMap/IsItStolen/internal/models"
	"github.com/BTreeMap/IsItStolen/internal/util"
	"github.com/google/uuid"
)

// Conversation data keys.
const (
	dataFlowContext = "flow_context"
	dataCategory    = "category"
	dataDescription = "description"
	dataBrandModel  = "brand_model"
	dataLocation    = "location"
)

var cancelWords = []string{"cancel", "quit", "exit", "stop"}

// ItemService is the part of the item use cases the router calls from the hard-coded
// check and report flows.
type ItemService interface {
	CheckIfStolen(ctx context.Context, q items.CheckQuery) (*items.CheckResult, error)
	ReportStolenItem(ctx context.Context, cmd items.ReportCommand) (uuid.UUID, error)
}

var _ ItemService = (*items.Service)(nil)

// RouterOpts holds configuration for Router.
type RouterOpts struct {
	Engine      *flow.Engine
	ConfigFlows bool
	Items       ItemService
	Parser      *Parser
	Metrics     metrics.Recorder
}

// RouterOption configures a Router.
type RouterOption func(*RouterOpts)

// WithFlowEngine enables configuration-driven flows.
func WithFlowEngine(e *flow.Engine) RouterOption {
	return func(o *RouterOpts) {
		o.Engine = e
	}
}

// WithConfigFlows routes check and report through the check_item and report_item flows
// instead of the hard-coded ones. Contact always uses contact_us when configured.
func WithConfigFlows(enabled bool) RouterOption {
	return func(o *RouterOpts) {
		o.ConfigFlows = enabled
	}
}

// WithItemService sets the use cases run when a hard-coded flow completes.
func WithItemService(s ItemService) RouterOption {
	return func(o *RouterOpts) {
		o.Items = s
	}
}

// WithParser overrides the free-text parser.
func WithParser(p *Parser) RouterOption {
	return func(o *RouterOpts) {
		o.Parser = p
	}
}

// WithRouterMetrics records routed messages and handler errors into m.
func WithRouterMetrics(m metrics.Recorder) RouterOption {
	return func(o *RouterOpts) {
		o.Metrics = m
	}
}

// Router turns one inbound message into a reply, advancing the sender's conversation.
// It holds no per-user state; everything lives in the context store.
type Router struct {
	sm          *StateMachine
	engine      *flow.Engine
	configFlows bool
	items       ItemService
	parser      *Parser
	metrics     metrics.Recorder
	responses   ResponseBuilder
	errHandler  ErrorHandler
}

// NewRouter creates a router over the state machine sm.
func NewRouter(sm *StateMachine, opts ...RouterOption) *Router {
	o := RouterOpts{Metrics: metrics.NoOp{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Parser == nil {
		o.Parser = NewParser()
	}
	return &Router{
		sm:          sm,
		engine:      o.Engine,
		configFlows: o.ConfigFlows,
		items:       o.Items,
		parser:      o.Parser,
		metrics:     o.Metrics,
	}
}

// RouteMessage handles text received from phone. The returned error is non-nil only
// for storage failures; the Response still carries a reply to send in that case.
func (r *Router) RouteMessage(ctx context.Context, phone, text string) (Response, error) {
	conv, err := r.sm.GetOrCreate(ctx, phone)
	if err != nil {
		slog.Error("Router failed to load conversation", "phone", util.RedactPhone(phone), "error", err)
		return Response{Reply: r.responses.Error(r.errHandler.HandleError(err)), State: models.StateIdle}, err
	}
	r.metrics.MessageRouted(string(conv.State))
	input := strings.TrimSpace(text)
	slog.Debug("Router routing message", "phone", util.RedactPhone(phone), "state", conv.State)

	if slices.Contains(cancelWords, strings.ToLower(input)) {
		done, err := r.sm.Cancel(ctx, conv)
		if err != nil {
			return r.recover(ctx, conv, err)
		}
		return Response{Reply: r.responses.Cancelled(), State: done.State}, nil
	}

	resp, err := r.dispatch(ctx, conv, input)
	if err != nil {
		return r.recover(ctx, conv, err)
	}
	return resp, nil
}

func (r *Router) dispatch(ctx context.Context, conv models.ConversationContext, input string) (Response, error) {
	switch conv.State {
	case models.StateIdle:
		return r.handleIdle(ctx, conv)
	case models.StateMainMenu:
		return r.handleMainMenu(ctx, conv, input)
	case models.StateActiveFlow:
		return r.handleActiveFlow(ctx, conv, input)
	case models.StateCheckingCategory, models.StateCheckingDescription, models.StateCheckingLocation:
		return r.handleCheck(ctx, conv, input)
	case models.StateReportingCategory, models.StateReportingDescription,
		models.StateReportingLocation, models.StateReportingDate:
		return r.handleReport(ctx, conv, input)
	}

	if _, err := models.ParseConversationState(string(conv.State)); err != nil {
		slog.Warn("Router found unknown conversation state, restarting", "phone", util.RedactPhone(conv.PhoneNumber), "error", err)
	} else {
		slog.Warn("Router found stale conversation state, restarting", "phone", util.RedactPhone(conv.PhoneNumber), "state", conv.State)
	}
	fresh, err := r.sm.Reset(ctx, conv.PhoneNumber)
	if err != nil {
		return Response{}, err
	}
	return r.handleIdle(ctx, fresh)
}

func (r *Router) handleIdle(ctx context.Context, conv models.ConversationContext) (Response, error) {
	next, err := r.sm.Transition(ctx, conv, models.StateMainMenu)
	if err != nil {
		return Response{}, err
	}
	return Response{Reply: r.responses.Welcome(), State: next.State}, nil
}

func (r *Router) handleMainMenu(ctx context.Context, conv models.ConversationContext, input string) (Response, error) {
	switch strings.ToLower(input) {
	case "1", "check", OptionCheckItem:
		if r.useConfigFlow(OptionCheckItem) {
			return r.startFlow(ctx, conv, OptionCheckItem)
		}
		next, err := r.sm.Transition(ctx, conv, models.StateCheckingCategory)
		if err != nil {
			return Response{}, err
		}
		return Response{Reply: r.responses.CheckCategoryPrompt(), State: next.State}, nil

	case "2", "report", OptionReportItem:
		if r.useConfigFlow(OptionReportItem) {
			return r.startFlow(ctx, conv, OptionReportItem)
		}
		next, err := r.sm.Transition(ctx, conv, models.StateReportingCategory)
		if err != nil {
			return Response{}, err
		}
		return Response{Reply: r.responses.ReportCategoryPrompt(), State: next.State}, nil

	case "3", "contact", OptionContactUs:
		if r.engine != nil && r.engine.HasFlow(OptionContactUs) {
			return r.startFlow(ctx, conv, OptionContactUs)
		}
		done, err := r.sm.Complete(ctx, conv)
		if err != nil {
			return Response{}, err
		}
		return Response{Reply: r.responses.Contact(), State: done.State}, nil
	}
	return Response{Reply: r.responses.MainMenuInvalid(), State: conv.State}, nil
}

func (r *Router) useConfigFlow(flowID string) bool {
	return r.configFlows && r.engine != nil && r.engine.HasFlow(flowID)
}

func (r *Router) startFlow(ctx context.Context, conv models.ConversationContext, flowID string) (Response, error) {
	fc, err := r.engine.StartFlow(flowID, conv.PhoneNumber)
	if err != nil {
		return Response{}, err
	}
	next, err := r.sm.TransitionWithData(ctx, conv, models.StateActiveFlow, map[string]any{dataFlowContext: fc})
	if err != nil {
		return Response{}, err
	}
	return Response{Reply: r.flowPrompt(fc), State: next.State}, nil
}

func (r *Router) handleActiveFlow(ctx context.Context, conv models.ConversationContext, input string) (Response, error) {
	fc, ok := decodeFlowContext(conv)
	if !ok || r.engine == nil {
		slog.Warn("Router active flow without flow context, restarting", "phone", util.RedactPhone(conv.PhoneNumber))
		fresh, err := r.sm.Reset(ctx, conv.PhoneNumber)
		if err != nil {
			return Response{}, err
		}
		return r.handleIdle(ctx, fresh)
	}

	next, err := r.engine.ProcessInput(flow.WithUserID(ctx, conv.PhoneNumber), fc, input)
	var handlerErr *flow.HandlerError
	if errors.As(err, &handlerErr) {
		slog.Error("Router flow handler failed", "phone", util.RedactPhone(conv.PhoneNumber),
			"flow_id", handlerErr.FlowID, "handler", handlerErr.Handler, "error", handlerErr.Err)
		r.metrics.HandlerError(ErrorKind(handlerErr.Err))
		done, cerr := r.sm.Complete(ctx, conv)
		if cerr != nil {
			return Response{}, cerr
		}
		return Response{Reply: r.responses.Error(r.errHandler.HandleError(handlerErr.Err)), State: done.State}, nil
	}
	if err != nil {
		return Response{}, err
	}

	if next.IsComplete {
		done, err := r.sm.Complete(ctx, conv)
		if err != nil {
			return Response{}, err
		}
		return Response{Reply: r.responses.FlowResult(next.FlowID, next.Result), State: done.State}, nil
	}

	saved, err := r.sm.UpdateData(ctx, conv, map[string]any{dataFlowContext: next})
	if err != nil {
		return Response{}, err
	}
	return Response{Reply: r.flowPrompt(next), State: saved.State}, nil
}

func (r *Router) flowPrompt(fc *flow.FlowContext) Reply {
	return r.responses.FlowPrompt(r.engine.GetPrompt(fc), r.engine.PromptType(fc))
}

// decodeFlowContext reads the embedded flow context. After a store round trip it is a
// generic JSON object, so it is re-decoded through JSON in every case.
func decodeFlowContext(conv models.ConversationContext) (*flow.FlowContext, bool) {
	raw, ok := conv.Get(dataFlowContext)
	if !ok || raw == nil {
		return nil, false
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, false
	}
	var fc flow.FlowContext
	if err := json.Unmarshal(b, &fc); err != nil || fc.FlowID == "" {
		return nil, false
	}
	if fc.Data == nil {
		fc.Data = map[string]string{}
	}
	return &fc, true
}

// recover turns a failure during dispatch into a reply. Only storage failures are
// returned to the caller.
func (r *Router) recover(ctx context.Context, conv models.ConversationContext, err error) (Response, error) {
	phone := util.RedactPhone(conv.PhoneNumber)
	r.metrics.HandlerError(ErrorKind(err))

	var (
		transition *InvalidStateTransitionError
		repoErr    *models.RepositoryError
	)
	switch {
	case errors.As(err, &transition):
		slog.Warn("Router invalid transition, resetting conversation", "phone", phone, "from", transition.From, "to", transition.To)
		if _, rerr := r.sm.Reset(ctx, conv.PhoneNumber); rerr != nil {
			return Response{Reply: r.responses.Error(r.errHandler.HandleError(rerr)), State: conv.State}, rerr
		}
		return Response{Reply: r.responses.Error(startOverText), State: models.StateIdle}, nil

	case errors.Is(err, flow.ErrFlowNotFound), errors.Is(err, flow.ErrStepNotFound),
		errors.Is(err, flow.ErrHandlerNotFound):
		slog.Error("Router flow configuration error", "phone", phone, "error", err)
		if _, rerr := r.sm.Reset(ctx, conv.PhoneNumber); rerr != nil {
			slog.Error("Router failed to reset conversation", "phone", phone, "error", rerr)
		}
		return Response{Reply: r.responses.Apology(), State: models.StateIdle}, nil

	case errors.As(err, &repoErr):
		slog.Error("Router storage failure", "phone", phone, "state", conv.State, "error", err)
		return Response{Reply: r.responses.Error(r.errHandler.HandleError(err)), State: conv.State}, fmt.Errorf("route message: %w", err)
	}

	slog.Error("Router failed to handle message", "phone", phone, "state", conv.State, "error", err)
	return Response{Reply: r.responses.Error(r.errHandler.HandleError(err)), State: conv.State}, nil
}
