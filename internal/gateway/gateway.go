package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/serenitybot/serenity/internal/api"
	"github.com/serenitybot/serenity/internal/bus"
	"github.com/serenitybot/serenity/internal/channel"
	"github.com/serenitybot/serenity/internal/companion"
	"github.com/serenitybot/serenity/internal/config"
	"github.com/serenitybot/serenity/internal/cron"
	"github.com/serenitybot/serenity/internal/identity"
	"github.com/serenitybot/serenity/internal/letters"
	"github.com/serenitybot/serenity/internal/schedule"
	"github.com/serenitybot/serenity/internal/store"
)

const (
	jobLettersDeliver = "letters-deliver"
	jobReportsRollup  = "reports-rollup"
	taskLetters       = "letters:deliver"
	taskRollup        = "reports:rollup"

	defaultShutdownTimeout = 5 * time.Second
)

// ClientFactory creates the generative backend (allows mocking in tests).
type ClientFactory func(ctx context.Context, cfg *config.Config) (companion.Client, error)

// DefaultClientFactory picks Gemini or an agent runtime from cfg.AI.Provider.
func DefaultClientFactory(ctx context.Context, cfg *config.Config) (companion.Client, error) {
	switch cfg.AI.Provider {
	case "anthropic", "openai":
		return companion.NewAgentClient(companion.AgentOptions{
			Provider:  cfg.AI.Provider,
			APIKey:    cfg.AI.APIKey,
			BaseURL:   cfg.AI.BaseURL,
			Model:     cfg.AI.ModelName(),
			MaxTokens: cfg.AI.MaxTokens,
			Workspace: filepath.Join(config.ConfigDir(), "workspace"),
		}, nil)
	default:
		return companion.NewGeminiClient(ctx, cfg.AI.APIKey, cfg.AI.ModelName())
	}
}

// NewIdentityProvider builds the configured identity backend.
func NewIdentityProvider(cfg config.IdentityConfig, st *store.Store, logger *zap.Logger) (identity.Provider, error) {
	switch cfg.Provider {
	case "firebase":
		return identity.NewFirebaseProvider(cfg.FirebaseAPIKey, identity.WithLogger(logger))
	case "", "local":
		return identity.NewLocalProvider(st), nil
	}
	return nil, fmt.Errorf("unknown identity provider %q", cfg.Provider)
}

// Options for creating a Gateway
type Options struct {
	ClientFactory ClientFactory
	Identity      identity.Provider
	Logger        *zap.Logger
	SignalChan    chan os.Signal // for testing signal handling
}

type Gateway struct {
	cfg        *config.Config
	logger     *zap.Logger
	bus        *bus.MessageBus
	store      *store.Store
	client     companion.Client
	companion  *companion.Service
	channels   *channel.ChannelManager
	cron       *cron.Service
	letters    *letters.Deliverer
	api        *api.Server
	http       *http.Server
	addr       net.Addr
	ready      chan struct{}
	signalChan chan os.Signal

	shutdownTimeout time.Duration
	stopOnce        sync.Once
	stopErr         error
}

// New creates a Gateway with default options
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom options for testing
func NewWithOptions(cfg *config.Config, opts Options) (g *Gateway, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	g = &Gateway{
		cfg:        cfg,
		logger:     logger,
		bus:        bus.NewMessageBus(config.DefaultBufSize),
		ready:      make(chan struct{}),
		signalChan: opts.SignalChan,

		shutdownTimeout: defaultShutdownTimeout,
	}
	ctx := context.Background()

	dbPath := cfg.DBPath()
	if g.store, err = store.Open(ctx, dbPath); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err != nil {
			_ = g.closeResources()
		}
	}()

	idp := opts.Identity
	if idp == nil {
		if idp, err = NewIdentityProvider(cfg.Identity, g.store, logger.Named("identity")); err != nil {
			return nil, err
		}
	}

	factory := opts.ClientFactory
	if factory == nil {
		factory = DefaultClientFactory
	}
	if g.client, err = factory(ctx, cfg); err != nil {
		return nil, err
	}
	g.companion = companion.NewService(g.client, g.store, logger.Named("companion"))

	if g.channels, err = channel.NewChannelManager(cfg.Channels, g.bus); err != nil {
		return nil, fmt.Errorf("create channel manager: %w", err)
	}

	g.api, err = api.New(g.store, idp, g.companion, api.Options{
		AllowedOrigins:    cfg.API.AllowedOrigins,
		AuthRatePerMinute: cfg.API.AuthRatePerMinute,
		AuthBurst:         cfg.API.AuthBurst,
		ScheduleCacheSize: cfg.API.ScheduleCacheSize,
		SessionTTL:        time.Duration(cfg.Identity.SessionTTLHours) * time.Hour,
		Logger:            logger.Named("api"),
	})
	if err != nil {
		return nil, fmt.Errorf("create api: %w", err)
	}
	if webui := g.channels.WebUI(); webui != nil {
		webui.SetAuthenticator(g.api.UserFromRequest)
		h, err := webui.Handler()
		if err != nil {
			return nil, err
		}
		g.api.Mount(h)
	}
	g.http = &http.Server{
		Addr:              net.JoinHostPort(cfg.Gateway.Host, strconv.Itoa(cfg.Gateway.Port)),
		Handler:           g.api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.letters = letters.NewDeliverer(g.store, g.bus, g.channels.PushChannels(), logger.Named("letters"))

	g.cron = cron.NewService(filepath.Join(filepath.Dir(dbPath), "cron", "jobs.json"))
	g.cron.Handle(taskLetters, func(ctx context.Context, job cron.Job) (string, error) {
		n, err := g.letters.Run(ctx)
		return fmt.Sprintf("delivered %d letters", n), err
	})
	g.cron.Handle(taskRollup, func(ctx context.Context, job cron.Job) (string, error) {
		return g.rollupReports(ctx)
	})

	return g, nil
}

// rollupReports rebuilds today's report for everyone who logged a mood.
func (g *Gateway) rollupReports(ctx context.Context) (string, error) {
	today := g.store.Today()
	users, err := g.store.MoodUsersOn(ctx, today)
	if err != nil {
		return "", err
	}
	var errs []error
	for _, u := range users {
		if _, err := g.store.RefreshDailyReport(ctx, u, today); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", u, err))
		}
	}
	return fmt.Sprintf("refreshed %d reports for %s", len(users)-len(errs), today), errors.Join(errs...)
}

func (g *Gateway) ensureInternalJobs() error {
	jobs := []struct {
		name, task, expr, fallback string
	}{
		{jobLettersDeliver, taskLetters, g.cfg.Jobs.LettersDeliver, config.DefaultLettersDeliver},
		{jobReportsRollup, taskRollup, g.cfg.Jobs.ReportsRollup, config.DefaultReportsRollup},
	}
	for _, j := range jobs {
		expr := j.expr
		if expr == "" {
			expr = j.fallback
		}
		if _, err := g.cron.EnsureJob(j.name, j.task, cron.Schedule{Kind: cron.KindCron, Expr: expr}); err != nil {
			return fmt.Errorf("job %s: %w", j.name, err)
		}
	}
	return nil
}

// Addr is the bound API address once Run has started listening.
func (g *Gateway) Addr() net.Addr {
	<-g.ready
	return g.addr
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)

	if err := g.channels.StartAll(ctx); err != nil {
		_ = g.Shutdown()
		return fmt.Errorf("start channels: %w", err)
	}
	log.Printf("[gateway] channels started: %v", g.channels.EnabledChannels())

	if err := g.ensureInternalJobs(); err != nil {
		log.Printf("[gateway] ensure internal jobs warning: %v", err)
	}
	if err := g.cron.Start(ctx); err != nil {
		log.Printf("[gateway] cron start warning: %v", err)
	}

	ln, err := net.Listen("tcp", g.http.Addr)
	if err != nil {
		_ = g.Shutdown()
		return fmt.Errorf("listen %s: %w", g.http.Addr, err)
	}
	g.addr = ln.Addr()
	close(g.ready)

	serveErr := make(chan error, 1)
	go func() {
		if err := g.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	go g.processLoop(ctx)

	g.logger.Info("gateway running", zap.String("addr", g.addr.String()))

	// Use injected signal channel for testing, or create default
	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
	}

	var runErr error
	select {
	case <-sigCh:
	case <-ctx.Done():
	case runErr = <-serveErr:
	}

	log.Printf("[gateway] shutting down...")
	if err := g.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (g *Gateway) processLoop(ctx context.Context) {
	for {
		select {
		case msg := <-g.bus.Inbound:
			log.Printf("[gateway] inbound from %s/%s: %s", msg.Channel, msg.SenderID, truncate(msg.Content, 80))

			reply := g.handleInbound(ctx, msg)
			if reply == "" {
				continue
			}
			if err := g.bus.PublishOutbound(ctx, bus.OutboundMessage{
				Channel: msg.Channel,
				ChatID:  msg.ChatID,
				Content: reply,
			}); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func userIDOf(msg bus.InboundMessage) string {
	if msg.UserID != "" {
		return msg.UserID
	}
	return msg.Channel + ":" + msg.SenderID
}

const welcome = "Hi, I'm Serenity 🌿 Tell me how you're feeling, or try /clashes, /letters or /affirmation."

// handleInbound answers one channel message. Slash commands are handled
// locally; everything else goes through the companion.
func (g *Gateway) handleInbound(ctx context.Context, msg bus.InboundMessage) string {
	userID := userIDOf(msg)
	cmd, _, _ := strings.Cut(strings.TrimSpace(msg.Content), " ")

	switch strings.ToLower(cmd) {
	case "/start", "/help":
		return welcome
	case "/clashes":
		return g.clashesText(ctx, userID)
	case "/letters":
		return g.lettersText(ctx, userID)
	case "/affirmation":
		a, err := g.companion.Affirmation(ctx, userID)
		if err != nil {
			g.logger.Warn("affirmation failed", zap.String("user", userID), zap.Error(err))
			return "I couldn't find the words just now. Try again in a moment."
		}
		return a.Text + "\n\n" + a.Caption
	}

	in := companion.Input{Text: msg.Content}
	if style, ok := msg.Metadata["style"].(string); ok {
		in.Style = companion.ParseStyle(style)
	}
	for _, a := range msg.Audio {
		in.Audio = append(in.Audio, companion.Audio{Data: a.Data, MIMEType: a.MIMEType})
	}

	res, err := g.companion.Respond(ctx, userID, in)
	switch {
	case errors.Is(err, companion.ErrEmptyInput):
		return ""
	case errors.Is(err, companion.ErrAudioUnsupported):
		return "I can't listen to voice notes yet. Could you type it out for me?"
	case err != nil:
		g.logger.Error("respond failed", zap.String("user", userID), zap.Error(err))
		return "Sorry, I encountered an error processing your message."
	}

	var sb strings.Builder
	for _, s := range res.AudioSummaries {
		sb.WriteString("🎙️ " + s + "\n")
	}
	sb.WriteString(res.Reply)
	if res.Notice != "" {
		sb.WriteString("\n\n" + res.Notice)
	}
	return sb.String()
}

func (g *Gateway) clashesText(ctx context.Context, userID string) string {
	items, err := g.store.ListSchedule(ctx, userID)
	if err != nil {
		g.logger.Error("list schedule", zap.String("user", userID), zap.Error(err))
		return "I couldn't load your schedule."
	}
	violations, err := schedule.Detect(items)
	var merr *schedule.MalformedTimeError
	if errors.As(err, &merr) {
		return fmt.Sprintf("'%s' has an unreadable %s (%q). Fix it and ask again.", merr.Title, merr.Field, merr.Value)
	}
	if err != nil {
		return "I couldn't check your schedule."
	}
	if len(violations) == 0 {
		return schedule.AllClearMessage
	}
	lines := make([]string, len(violations))
	for i, v := range violations {
		lines[i] = v.Message()
	}
	return strings.Join(lines, "\n")
}

// lettersText hands over every due letter and marks them read.
func (g *Gateway) lettersText(ctx context.Context, userID string) string {
	due, err := g.store.DueLetters(ctx, userID)
	if err != nil {
		g.logger.Error("due letters", zap.String("user", userID), zap.Error(err))
		return "I couldn't open your letters."
	}
	if len(due) == 0 {
		return "No letters are waiting for you yet."
	}
	parts := make([]string, 0, len(due))
	for _, l := range due {
		parts = append(parts, letters.Format(l))
		if err := g.store.MarkLetterDelivered(ctx, userID, l.ID); err != nil {
			g.logger.Warn("mark letter delivered", zap.String("letter", l.ID), zap.Error(err))
		}
	}
	return strings.Join(parts, "\n\n")
}

// Shutdown stops serving and releases every resource. It reports the HTTP
// drain and store close failures joined; later calls return the same error.
func (g *Gateway) Shutdown() error {
	g.stopOnce.Do(func() { g.stopErr = g.shutdown() })
	return g.stopErr
}

func (g *Gateway) shutdown() error {
	var errs []error
	if g.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), g.shutdownTimeout)
		if err := g.http.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		cancel()
	}
	if g.cron != nil {
		g.cron.Stop()
	}
	if g.channels != nil {
		_ = g.channels.StopAll()
	}
	if err := g.closeResources(); err != nil {
		errs = append(errs, err)
	}
	log.Printf("[gateway] shutdown complete")
	return errors.Join(errs...)
}

func (g *Gateway) closeResources() error {
	if g.api != nil {
		g.api.Close()
	}
	if g.client != nil {
		g.client.Close()
	}
	if g.store != nil {
		if err := g.store.Close(); err != nil {
			return fmt.Errorf("close store: %w", err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
