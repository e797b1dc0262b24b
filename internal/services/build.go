package services

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/goaltrack/internal/auth"
	"github.com/fyrsmithlabs/goaltrack/internal/channels"
	"github.com/fyrsmithlabs/goaltrack/internal/config"
	"github.com/fyrsmithlabs/goaltrack/internal/events"
	"github.com/fyrsmithlabs/goaltrack/internal/goalgen"
	"github.com/fyrsmithlabs/goaltrack/internal/llm"
	"github.com/fyrsmithlabs/goaltrack/internal/logging"
	"github.com/fyrsmithlabs/goaltrack/internal/notify"
	"github.com/fyrsmithlabs/goaltrack/internal/progress"
	"github.com/fyrsmithlabs/goaltrack/internal/secrets"
	"github.com/fyrsmithlabs/goaltrack/internal/store"
)

// Build constructs every service from cfg. A NATS connection failure is
// logged and events are dropped; any other failure closes what was opened
// and is returned.
func Build(ctx context.Context, cfg *config.Config, logger *logging.Logger) (Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	loc, err := time.LoadLocation(cfg.Notify.DefaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("loading default timezone: %w", err)
	}

	provider, err := auth.New(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("creating auth provider: %w", err)
	}

	scrubber, err := secrets.New(secrets.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("creating scrubber: %w", err)
	}

	client, err := llm.New(cfg.LLM, llm.WithLogger(logger.Named("llm")))
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}

	st, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	var (
		publisher events.Publisher = events.Nop{}
		nc        *nats.Conn
	)
	if cfg.NATS.Enabled {
		nc, publisher = connectEvents(ctx, cfg.NATS, logger)
	}

	fail := func(err error) (Registry, error) {
		if nc != nil {
			nc.Close()
		}
		_ = st.Close()
		return nil, err
	}

	progressSvc, err := progress.NewService(st,
		progress.WithPublisher(publisher),
		progress.WithLogger(logger.Named("progress")),
		progress.WithDefaultTimezone(loc),
	)
	if err != nil {
		return fail(fmt.Errorf("creating progress service: %w", err))
	}

	generator, err := goalgen.New(client,
		goalgen.WithScrubber(scrubber),
		goalgen.WithCreator(progressSvc),
		goalgen.WithLogger(logger.Named("goalgen")),
	)
	if err != nil {
		return fail(fmt.Errorf("creating goal generator: %w", err))
	}

	templates, err := notify.LoadTemplates(cfg.Notify.TemplatesPath, logger.Named("templates"))
	if err != nil {
		return fail(fmt.Errorf("loading notification templates: %w", err))
	}

	var completer notify.Completer
	if client.Enabled() {
		completer = client
	}
	metrics := notify.NewMetrics()
	messages := notify.NewGenerator(completer, templates, cfg.Notify.MaxMessageLen, logger.Named("messages"))

	dispatchOpts := []notify.DispatcherOption{
		notify.WithDispatcherPublisher(publisher),
		notify.WithDispatcherMetrics(metrics),
		notify.WithDispatcherLogger(logger.Named("dispatcher")),
		notify.WithLookahead(cfg.Notify.Lookahead.Duration()),
		notify.WithBatchSize(cfg.Notify.BatchSize),
	}
	for _, s := range Senders(cfg) {
		dispatchOpts = append(dispatchOpts, notify.WithSender(s))
	}
	dispatcher, err := notify.NewDispatcher(st, dispatchOpts...)
	if err != nil {
		return fail(fmt.Errorf("creating dispatcher: %w", err))
	}

	planner, err := notify.NewPlanner(st, messages,
		notify.WithDispatcher(dispatcher),
		notify.WithPlannerPublisher(publisher),
		notify.WithPlannerMetrics(metrics),
		notify.WithPlannerLogger(logger.Named("planner")),
		notify.WithDefaultTimezone(loc),
	)
	if err != nil {
		return fail(fmt.Errorf("creating planner: %w", err))
	}

	logger.Info(ctx, "services initialized",
		zap.String("llm_provider", client.Provider()),
		zap.Bool("events", nc != nil),
		zap.Int("channels", len(Senders(cfg))),
	)

	return NewRegistry(Options{
		Store:      st,
		Auth:       provider,
		Progress:   progressSvc,
		Generator:  generator,
		Templates:  templates,
		Planner:    planner,
		Dispatcher: dispatcher,
		Publisher:  publisher,
		NATS:       nc,
	}), nil
}

// Senders returns the delivery channels enabled in cfg, in preference
// order.
func Senders(cfg *config.Config) []channels.Sender {
	var out []channels.Sender
	if cfg.Push.Enabled {
		out = append(out, channels.NewExpoPush(cfg.Push))
	}
	if cfg.Email.Enabled {
		out = append(out, channels.NewResendEmail(cfg.Email))
	}
	if cfg.WhatsApp.Enabled {
		out = append(out, channels.NewTwilioWhatsApp(cfg.WhatsApp))
	}
	return out
}

func connectEvents(ctx context.Context, cfg config.NATSConfig, logger *logging.Logger) (*nats.Conn, events.Publisher) {
	nc, err := events.Connect(cfg.URL, "goaltrack")
	if err != nil {
		logger.Warn(ctx, "event bus unavailable, events disabled", zap.String("url", cfg.URL), zap.Error(err))
		return nil, events.Nop{}
	}
	pub, err := events.NewNATSPublisher(nc, cfg.SubjectPrefix)
	if err != nil {
		nc.Close()
		logger.Warn(ctx, "event publisher unavailable, events disabled", zap.Error(err))
		return nil, events.Nop{}
	}
	logger.Info(ctx, "connected to event bus", zap.String("url", cfg.URL))
	return nc, pub
}
