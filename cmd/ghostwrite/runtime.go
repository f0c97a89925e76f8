package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hpungsan/ghostwrite/internal/capability"
	"github.com/hpungsan/ghostwrite/internal/config"
	"github.com/hpungsan/ghostwrite/internal/credential"
	"github.com/hpungsan/ghostwrite/internal/db"
	"github.com/hpungsan/ghostwrite/internal/grammar"
	"github.com/hpungsan/ghostwrite/internal/ledger"
	"github.com/hpungsan/ghostwrite/internal/logging"
	"github.com/hpungsan/ghostwrite/internal/mcp"
	"github.com/hpungsan/ghostwrite/internal/provider"
	"github.com/hpungsan/ghostwrite/internal/remote"
	"github.com/hpungsan/ghostwrite/internal/telemetry"
)

// runtime owns everything a command may need. Databases are opened lazily
// so that commands like prompts touch nothing on disk.
type runtime struct {
	baseDir string
	cfg     *config.Config
	logger  *slog.Logger

	closers []func() error
}

func newRuntime(baseDir string, cfg *config.Config, logOut io.Writer) *runtime {
	return &runtime{
		baseDir: baseDir,
		cfg:     cfg,
		logger:  logging.New(logOut, cfg.LogLevel),
	}
}

func newMCPRuntime(baseDir string, cfg *config.Config) (*runtime, error) {
	fl, err := logging.NewFileLogger(baseDir, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	rt := &runtime{baseDir: baseDir, cfg: cfg, logger: fl.Logger}
	rt.closers = append(rt.closers, fl.Close)
	return rt, nil
}

// close releases resources in reverse order of acquisition.
func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.logger.Warn("runtime.close_failed", "error", err)
		}
	}
	rt.closers = nil
}

func (rt *runtime) timeout() time.Duration {
	return time.Duration(rt.cfg.RequestTimeoutSeconds) * time.Second
}

// startTracing installs the OTLP exporter when configured.
func (rt *runtime) startTracing(ctx context.Context, service string) {
	shutdown, err := telemetry.Setup(ctx, service, Version)
	if err != nil {
		rt.logger.Warn("telemetry.setup_failed", "error", err)
		return
	}
	rt.closers = append(rt.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdown(ctx)
	})
}

func (rt *runtime) openLocalDB() (*sql.DB, error) {
	database, err := db.Init(rt.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	db.ConfigurePool(database, rt.cfg)
	rt.closers = append(rt.closers, database.Close)
	return database, nil
}

func (rt *runtime) openLedger() (*ledger.Service, error) {
	database, err := db.InitLedger(rt.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ledger: %w", err)
	}
	db.ConfigurePool(database, rt.cfg)
	rt.closers = append(rt.closers, database.Close)
	return ledger.NewService(database), nil
}

// providerChain builds Gemini with OpenAI as the fallback.
func (rt *runtime) providerChain() *provider.Fallback {
	client := &http.Client{Timeout: rt.timeout()}
	return &provider.Fallback{
		Primary: provider.NewGemini(provider.GeminiConfig{
			APIKey:     rt.cfg.GeminiAPIKey,
			Model:      rt.cfg.GeminiModel,
			BaseURL:    rt.cfg.GeminiBaseURL,
			HTTPClient: client,
		}),
		Secondary: provider.NewOpenAI(provider.OpenAIConfig{
			APIKey:     rt.cfg.OpenAIAPIKey,
			Model:      rt.cfg.OpenAIModel,
			BaseURL:    rt.cfg.OpenAIBaseURL,
			HTTPClient: client,
		}),
		Logger: rt.logger,
	}
}

func (rt *runtime) transformer() capability.Transformer {
	if rt.cfg.TransformMode == config.TransformLocal {
		return &capability.LocalTransformer{Chain: rt.providerChain()}
	}
	return remote.NewClient(rt.cfg.APIEndpoint, rt.timeout())
}

// surface carries the adapter-specific outputs of the manager.
type surface struct {
	indicator capability.Indicator
	notifier  capability.Notifier
}

// openManager builds and initializes the capability manager.
func (rt *runtime) openManager(ctx context.Context, s surface) (*capability.Manager, error) {
	database, err := rt.openLocalDB()
	if err != nil {
		return nil, err
	}
	if s.indicator == nil {
		s.indicator = logIndicator{logger: rt.logger}
	}
	if s.notifier == nil {
		s.notifier = logNotifier{logger: rt.logger}
	}

	m := capability.New(capability.Options{
		Credentials: credential.NewStore(database),
		Grammar: &grammar.Loader{
			RulesFile:      config.ResolvePath(rt.baseDir, rt.cfg.GrammarRulesFile),
			DisableBuiltin: rt.cfg.DisableBuiltinGrammar,
			Logger:         rt.logger,
		},
		Transformer:        rt.transformer(),
		Indicator:          s.indicator,
		Notifier:           s.notifier,
		Logger:             rt.logger,
		Tracer:             telemetry.Tracer(),
		LowCreditThreshold: rt.cfg.LowCreditThreshold,
	})
	rt.closers = append(rt.closers, func() error { m.Close(); return nil })

	m.Initialize(ctx)
	return m, nil
}

func (rt *runtime) recheckInterval() time.Duration {
	return time.Duration(rt.cfg.RecheckIntervalSeconds) * time.Second
}

// runMCP serves the MCP tools over stdio until the client disconnects.
func runMCP(ctx context.Context, rt *runtime) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if unknown := mcp.ValidateDisabledTools(rt.cfg.DisabledTools); len(unknown) > 0 {
		rt.logger.Warn("mcp.unknown_disabled_tools", "tools", unknown)
	}
	rt.startTracing(ctx, "ghostwrite-mcp")

	notifier := mcp.NewNotifier()
	m, err := rt.openManager(ctx, surface{notifier: notifier})
	if err != nil {
		return err
	}

	s := mcp.NewServer(m, rt.cfg, Version, rt.logger)
	notifier.Attach(s)
	m.Subscribe(notifier.Listener())

	go capability.NewPoller(m, rt.recheckInterval()).Run(ctx)

	rt.logger.Info("mcp.serving", "version", Version, "mode", m.State().Mode)
	return mcp.Run(s)
}

// logIndicator records badge changes. Headless surfaces have nothing to paint.
type logIndicator struct {
	logger *slog.Logger
}

func (l logIndicator) SetBadge(b capability.Badge) {
	l.logger.Debug("capability.badge", "text", b.Text, "color", b.Color)
}

// logNotifier surfaces alerts in the log.
type logNotifier struct {
	logger *slog.Logger
}

func (l logNotifier) UpgradeAvailable(credits int) {
	l.logger.Info("capability.upgrade_available", "credits", credits)
}

func (l logNotifier) LowCredits(credits int) {
	l.logger.Warn("capability.low_credits", "credits", credits)
}
