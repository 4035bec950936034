package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/IsItStolen/internal/conversation"
	"github.com/BTreeMap/IsItStolen/internal/metrics"
	"github.com/BTreeMap/IsItStolen/internal/models"
	"github.com/BTreeMap/IsItStolen/internal/store"
	"github.com/BTreeMap/IsItStolen/internal/util"
)

// MessageRouter turns one inbound message into the reply to send.
type MessageRouter interface {
	RouteMessage(ctx context.Context, phone, text string) (conversation.Response, error)
}

var _ MessageRouter = (*conversation.Router)(nil)

// HandlerOpts holds the optional collaborators of a ResponseHandler.
type HandlerOpts struct {
	RateLimiter store.RateLimiter
	Dedup       store.DedupRepo
	Metrics     metrics.Recorder
}

// HandlerOption configures a ResponseHandler.
type HandlerOption func(*HandlerOpts)

// WithRateLimiter throttles inbound messages per phone number.
func WithRateLimiter(l store.RateLimiter) HandlerOption {
	return func(o *HandlerOpts) { o.RateLimiter = l }
}

// WithDedup drops redelivered messages, keyed by transport message id.
func WithDedup(d store.DedupRepo) HandlerOption {
	return func(o *HandlerOpts) { o.Dedup = d }
}

// WithHandlerMetrics sets the metrics recorder.
func WithHandlerMetrics(m metrics.Recorder) HandlerOption {
	return func(o *HandlerOpts) { o.Metrics = m }
}

// ResponseHandler reads inbound messages from a Service, routes them through the
// conversation router and sends the replies back over the same Service.
type ResponseHandler struct {
	router     MessageRouter
	msgService Service
	limiter    store.RateLimiter
	dedup      store.DedupRepo
	metrics    metrics.Recorder
	errHandler conversation.ErrorHandler
}

// NewResponseHandler creates a new ResponseHandler with the given router and messaging service.
func NewResponseHandler(router MessageRouter, msgService Service, opts ...HandlerOption) *ResponseHandler {
	o := HandlerOpts{Metrics: metrics.NoOp{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &ResponseHandler{
		router:     router,
		msgService: msgService,
		limiter:    o.RateLimiter,
		dedup:      o.Dedup,
		metrics:    o.Metrics,
	}
}

// ProcessResponse handles one inbound message: validate the sender, drop duplicates,
// apply the rate limit, route, and send the reply.
func (rh *ResponseHandler) ProcessResponse(ctx context.Context, response models.Response) error {
	from, err := rh.msgService.ValidateAndCanonicalizeRecipient(response.From)
	if err != nil {
		slog.Error("ResponseHandler ProcessResponse validation failed", "error", err)
		return fmt.Errorf("invalid sender: %w", err)
	}

	if rh.dedup != nil && response.MessageID != "" {
		first, err := rh.dedup.RecordInbound(ctx, response.MessageID, from)
		if err != nil {
			// Processing twice beats dropping a message.
			slog.Warn("ResponseHandler dedup check failed", "error", err, "message_id", response.MessageID)
		} else if !first {
			rh.metrics.DuplicateDropped()
			slog.Info("ResponseHandler dropping duplicate message", "message_id", response.MessageID, "from", util.RedactPhone(from))
			return nil
		}
	}

	if rh.limiter != nil {
		if err := rh.limiter.Allow(ctx, from); err != nil {
			var rle *models.RateLimitError
			if errors.As(err, &rle) {
				rh.metrics.RateLimited()
				slog.Warn("ResponseHandler rate limited sender", "from", util.RedactPhone(from), "retry_after", rle.RetryAfter)
				return rh.send(ctx, from, rh.errHandler.HandleError(err))
			}
			slog.Warn("ResponseHandler rate limiter unavailable", "error", err)
		}
	}

	slog.Debug("ResponseHandler processing response", "from", util.RedactPhone(from), "body_length", len(response.Body))
	result, routeErr := rh.router.RouteMessage(ctx, from, response.Body)
	if routeErr != nil {
		slog.Error("ResponseHandler routing failed", "error", routeErr, "from", util.RedactPhone(from))
	}

	if err := rh.send(ctx, from, FormatReply(result.Reply)); err != nil {
		return errors.Join(routeErr, err)
	}

	if rh.dedup != nil && response.MessageID != "" && routeErr == nil {
		if err := rh.dedup.MarkProcessed(ctx, response.MessageID); err != nil {
			slog.Warn("ResponseHandler failed to mark message processed", "error", err, "message_id", response.MessageID)
		}
	}
	if routeErr != nil {
		return fmt.Errorf("route message: %w", routeErr)
	}
	return nil
}

func (rh *ResponseHandler) send(ctx context.Context, to, body string) error {
	if body == "" {
		return nil
	}
	if err := rh.msgService.SendMessage(ctx, to, body); err != nil {
		slog.Error("ResponseHandler failed to send reply", "error", err, "to", util.RedactPhone(to))
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}

// Start begins processing responses from the messaging service.
// This should be called once to start the response processing loop.
func (rh *ResponseHandler) Start(ctx context.Context) {
	slog.Info("ResponseHandler starting response processing")

	go func() {
		defer slog.Info("ResponseHandler stopped response processing")

		for {
			select {
			case response, ok := <-rh.msgService.Responses():
				if !ok {
					slog.Debug("ResponseHandler responses channel closed")
					return
				}

				if err := rh.ProcessResponse(ctx, response); err != nil {
					slog.Error("ResponseHandler failed to process response", "error", err, "from", util.RedactPhone(response.From))
				}

			case <-ctx.Done():
				slog.Debug("ResponseHandler stopping due to context cancellation")
				return
			}
		}
	}()
}
