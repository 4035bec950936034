package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/IsItStolen/internal/api"
	"github.com/BTreeMap/IsItStolen/internal/conversation"
	"github.com/BTreeMap/IsItStolen/internal/events"
	"github.com/BTreeMap/IsItStolen/internal/flow"
	"github.com/BTreeMap/IsItStolen/internal/items"
	"github.com/BTreeMap/IsItStolen/internal/lockfile"
	"github.com/BTreeMap/IsItStolen/internal/messaging"
	"github.com/BTreeMap/IsItStolen/internal/metrics"
	"github.com/BTreeMap/IsItStolen/internal/store"
	"github.com/BTreeMap/IsItStolen/internal/twiliowhatsapp"
	"github.com/BTreeMap/IsItStolen/internal/util"
	"github.com/BTreeMap/IsItStolen/internal/whatsapp"
	"github.com/redis/go-redis/v9"
)

// sqlStore is the part of PostgresStore and SQLiteStore the service wires up.
type sqlStore interface {
	store.ItemRepository
	store.TicketRepository
	store.DedupRepo
	store.OutboxRepo
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ sqlStore = (*store.PostgresStore)(nil)
	_ sqlStore = (*store.SQLiteStore)(nil)
)

// conversationBackends holds the per-phone state used by the router and the
// response handler.
type conversationBackends struct {
	contexts store.ConversationStore
	limiter  store.RateLimiter
	dedup    store.DedupRepo
	redis    *redis.Client
}

// run wires every component and blocks until ctx is cancelled or the API server fails.
func run(ctx context.Context, flags Flags) error {
	lock, err := lockfile.Acquire(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	m := metrics.New()
	apiOpts := append(buildAPIOptions(flags), api.WithMetricsHandler(m.Handler()))

	db, err := openSQLStore(buildStoreOptions(flags))
	if err != nil {
		return err
	}
	defer db.Close()
	apiOpts = append(apiOpts, api.WithHealthCheck("database", db.Ping))

	backends, err := openConversationBackends(ctx, flags, db)
	if err != nil {
		return err
	}
	if backends.redis != nil {
		defer backends.redis.Close()
		apiOpts = append(apiOpts, api.WithHealthCheck("redis", func(ctx context.Context) error {
			return backends.redis.Ping(ctx).Err()
		}))
	}

	bus, closeBus, err := openEventBus(flags)
	if err != nil {
		return err
	}
	defer closeBus()

	itemService := items.NewService(db, db, items.WithEventBus(bus), items.WithMetrics(m))

	parser, err := buildParser(flags)
	if err != nil {
		return err
	}

	routerOpts := []conversation.RouterOption{
		conversation.WithItemService(itemService),
		conversation.WithParser(parser),
		conversation.WithRouterMetrics(m),
		conversation.WithConfigFlows(*flags.useConfigFlows),
	}
	engine, err := buildFlowEngine(flags, itemService, parser, m)
	if err != nil {
		return err
	}
	if engine != nil {
		routerOpts = append(routerOpts, conversation.WithFlowEngine(engine))
	}

	sm := conversation.NewStateMachine(backends.contexts,
		conversation.WithContextTTL(*flags.contextTTL),
		conversation.WithTransitionMetrics(m))
	router := conversation.NewRouter(sm, routerOpts...)

	msgService, disconnect, err := buildMessagingService(flags)
	if err != nil {
		return err
	}
	defer disconnect()
	if twilioService, ok := msgService.(*messaging.TwilioService); ok {
		apiOpts = append(apiOpts, api.WithTwilioWebhook(twilioService.TwilioWebhookHandler))
	}
	if err := msgService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	defer msgService.Stop()
	go logReceipts(ctx, msgService)

	// Confirmations go through the durable outbox and are delivered by the sender loop.
	events.NewNotificationService(msgService, events.WithOutbox(db)).Start(bus)
	outbox := store.NewOutboxSender(db, func(ctx context.Context, msg store.OutboxMessage) error {
		return msgService.SendMessage(ctx, msg.Phone, msg.Body)
	})
	if err := outbox.RecoverStaleMessages(ctx); err != nil {
		slog.Warn("Failed to requeue stale outbox messages", "error", err)
	}
	go outbox.Run(ctx)

	handlerOpts := []messaging.HandlerOption{
		messaging.WithRateLimiter(backends.limiter),
		messaging.WithDedup(backends.dedup),
		messaging.WithHandlerMetrics(m),
	}
	messaging.NewResponseHandler(router, msgService, handlerOpts...).Start(ctx)

	slog.Info("IsItStolen ready", "transport", *flags.transport, "config_flows", *flags.useConfigFlows, "flow_engine", engine != nil)
	return api.NewServer(apiOpts...).Start(ctx)
}

func openSQLStore(opts []store.Option) (sqlStore, error) {
	var o store.Opts
	for _, opt := range opts {
		opt(&o)
	}
	if o.DSN == "" {
		return nil, errors.New("no database configured")
	}
	if store.DetectDSNType(o.DSN) == "postgres" {
		s, err := store.NewPostgresStore(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return s, nil
	}
	s, err := store.NewSQLiteStore(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	return s, nil
}

// openConversationBackends connects to Redis, or falls back to in-memory state with
// SQL-backed dedup when no Redis URL is configured.
func openConversationBackends(ctx context.Context, flags Flags, db store.DedupRepo) (conversationBackends, error) {
	if *flags.redisURL == "" {
		slog.Warn("No Redis URL configured, conversation state is kept in memory")
		return conversationBackends{
			contexts: store.NewInMemoryConversationStore(time.Now),
			limiter:  store.NewInMemoryRateLimiter(*flags.rateLimitMax, *flags.rateLimitWindow, time.Now),
			dedup:    db,
		}, nil
	}

	redisOpts, err := redis.ParseURL(*flags.redisURL)
	if err != nil {
		return conversationBackends{}, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return conversationBackends{}, fmt.Errorf("failed to connect to redis at %s: %w", redisOpts.Addr, err)
	}
	slog.Info("Connected to Redis", "addr", redisOpts.Addr, "db", redisOpts.DB)

	return conversationBackends{
		contexts: store.NewRedisConversationStore(client),
		limiter:  store.NewRedisRateLimiter(client, *flags.rateLimitMax, *flags.rateLimitWindow),
		dedup:    store.NewRedisDedupRepo(client, store.DefaultDedupTTL),
		redis:    client,
	}, nil
}

func openEventBus(flags Flags) (events.Bus, func(), error) {
	if *flags.natsURL == "" {
		return events.NewInMemoryBus(), func() {}, nil
	}
	conn, err := events.ConnectNATS(*flags.natsURL,
		events.WithClientName("isitstolen"),
		events.WithReconnect(-1, 2*time.Second))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	closeFn := func() {
		if err := conn.Drain(); err != nil {
			slog.Warn("NATS drain failed", "error", err)
			conn.Close()
		}
	}
	return events.NewNATSBus(conn), closeFn, nil
}

func buildParser(flags Flags) (*conversation.Parser, error) {
	var opts []conversation.ParserOption
	if *flags.categoryKeywords != "" {
		keywords, err := conversation.LoadCategoryKeywords(*flags.categoryKeywords)
		if err != nil {
			return nil, err
		}
		opts = append(opts, conversation.WithCategoryKeywords(keywords))
	}
	return conversation.NewParser(opts...), nil
}

// buildFlowEngine loads the flow file and binds its handlers. A missing file is only
// an error when config flows are enabled.
func buildFlowEngine(flags Flags, svc *items.Service, parser *conversation.Parser, m *metrics.Metrics) (*flow.Engine, error) {
	cfg, err := flow.Load(*flags.flowsConfig)
	if err != nil {
		if *flags.useConfigFlows {
			return nil, err
		}
		slog.Warn("Flow configuration not loaded, using built-in conversations", "path", *flags.flowsConfig, "error", err)
		return nil, nil
	}

	reg := flow.NewRegistry()
	if err := items.RegisterFlowHandlers(reg, svc,
		items.WithBrandExtractor(parser.ExtractBrandModel),
		items.WithDateParser(parser.ParseDate)); err != nil {
		return nil, err
	}
	if err := reg.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	slog.Info("Flow configuration loaded", "path", *flags.flowsConfig, "flows", len(cfg.Flows), "handlers", reg.Names())
	return flow.NewEngine(cfg, reg, flow.WithMetrics(m)), nil
}

// buildMessagingService creates the selected transport. The returned func disconnects it.
func buildMessagingService(flags Flags) (messaging.Service, func(), error) {
	switch *flags.transport {
	case TransportWhatsApp:
		client, err := whatsapp.NewClient(buildWhatsAppOptions(flags)...)
		if err != nil {
			return nil, nil, err
		}
		return messaging.NewWhatsAppService(client), client.Disconnect, nil
	case TransportTwilio:
		client, err := twiliowhatsapp.NewClient(buildTwilioOptions(flags)...)
		if err != nil {
			return nil, nil, err
		}
		return messaging.NewTwilioService(client), func() {}, nil
	case TransportNone:
		slog.Warn("Messaging transport disabled, replies are only logged")
		return messaging.NewMockService(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown messaging transport %q", *flags.transport)
	}
}

// logReceipts drains the receipt channel so that senders never wait on it.
func logReceipts(ctx context.Context, svc messaging.Service) {
	for {
		select {
		case r, ok := <-svc.Receipts():
			if !ok {
				return
			}
			slog.Debug("Message receipt", "to", util.RedactPhone(r.To), "status", r.Status)
		case <-ctx.Done():
			return
		}
	}
}
