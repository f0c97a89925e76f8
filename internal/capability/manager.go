package capability

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/hpungsan/ghostwrite/internal/errors"
	"github.com/hpungsan/ghostwrite/internal/grammar"
	"github.com/hpungsan/ghostwrite/internal/logging"
	"github.com/hpungsan/ghostwrite/internal/telemetry"
)

const noCredentialMessage = "No API key configured"

// Options wires a Manager. Credentials, Grammar and Transformer are required.
type Options struct {
	Credentials CredentialStore
	Grammar     GrammarLoader
	Transformer Transformer
	Indicator   Indicator
	Notifier    Notifier
	Logger      *slog.Logger
	Tracer      trace.Tracer
	Clock       Clock

	// LowCreditThreshold enables the low-credit alert for 0 < credits <= threshold.
	LowCreditThreshold int
}

// Manager owns the capability state. All mutation goes through its methods.
type Manager struct {
	creds       CredentialStore
	loader      GrammarLoader
	transformer Transformer
	indicator   Indicator
	notifier    Notifier
	logger      *slog.Logger
	tracer      trace.Tracer
	clock       Clock
	lowCredit   int

	// opMu serializes operations that read, compare and replace the remote
	// state so their mode transitions cannot interleave.
	opMu sync.Mutex

	mu     sync.RWMutex
	state  State
	apiKey string
	engine grammar.Engine

	listenersMu sync.Mutex
	listeners   map[uint64]Listener
	nextID      uint64
	warnedAt    map[int]bool
}

// New builds a Manager in INITIALIZING mode.
func New(opts Options) *Manager {
	m := &Manager{
		creds:       opts.Credentials,
		loader:      opts.Grammar,
		transformer: opts.Transformer,
		indicator:   opts.Indicator,
		notifier:    opts.Notifier,
		logger:      opts.Logger,
		tracer:      opts.Tracer,
		clock:       opts.Clock,
		lowCredit:   opts.LowCreditThreshold,
		state:       initialState(),
		listeners:   make(map[uint64]Listener),
		warnedAt:    make(map[int]bool),
	}
	if m.indicator == nil {
		m.indicator = nopIndicator{}
	}
	if m.notifier == nil {
		m.notifier = nopNotifier{}
	}
	if m.logger == nil {
		m.logger = logging.Nop()
	}
	if m.tracer == nil {
		m.tracer = telemetry.Tracer()
	}
	if m.clock == nil {
		m.clock = systemClock{}
	}
	return m
}

// Initialize loads the credential, probes grammar and the remote service
// concurrently, derives the mode and broadcasts once. Safe to call again.
func (m *Manager) Initialize(ctx context.Context) State {
	ctx, span := m.tracer.Start(ctx, "capability.initialize")
	defer span.End()

	m.opMu.Lock()
	defer m.opMu.Unlock()

	key, err := m.creds.Load(ctx)
	if err != nil {
		m.logger.Error("capability.credential_load_failed", "error", err)
		key = ""
	}
	m.mu.Lock()
	m.apiKey = key
	m.mu.Unlock()

	var (
		wg      sync.WaitGroup
		gState  GrammarState
		rState  RemoteState
		started = m.clock.Now()
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				gState = GrammarState{Error: fmt.Sprintf("grammar probe panicked: %v", r)}
			}
		}()
		gState = m.CheckGrammarEngine(ctx)
	}()
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				rState = m.remoteFailure(RemoteError, fmt.Sprintf("remote probe panicked: %v", r), started)
			}
		}()
		rState = m.CheckRemoteService(ctx)
	}()
	wg.Wait()

	m.mu.Lock()
	m.state.Grammar = gState
	m.state.Remote = rState
	m.state.Mode = DeriveMode(gState, rState)
	snapshot := m.state
	m.mu.Unlock()

	m.logger.Info("capability.initialized",
		"mode", snapshot.Mode,
		"grammar_loaded", gState.Loaded,
		"remote_status", rState.Status,
		"credits", rState.Credits,
	)
	m.indicator.SetBadge(BadgeFor(snapshot.Mode, snapshot.Remote.Credits))
	m.notify(snapshot)
	return snapshot
}

// CheckGrammarEngine loads the grammar engine. Failures are reported in the
// returned state, never as an error.
func (m *Manager) CheckGrammarEngine(ctx context.Context) (gs GrammarState) {
	_, span := m.tracer.Start(ctx, "capability.check_grammar_engine")
	defer span.End()

	start := m.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("capability.grammar_load_panic", "panic", r)
			gs = GrammarState{Error: fmt.Sprintf("grammar engine panicked: %v", r)}
		}
	}()

	engine, err := m.loader.Load(ctx)
	if err != nil {
		m.logger.Warn("capability.grammar_unavailable", "error", err)
		return GrammarState{Error: err.Error()}
	}

	m.mu.Lock()
	m.engine = engine
	m.mu.Unlock()

	latency := m.clock.Now().Sub(start).Milliseconds()
	m.logger.Debug("capability.grammar_loaded", "engine", engine.Name(), "latency_ms", latency)
	return GrammarState{Loaded: true, LoadLatencyMs: &latency}
}

// CheckRemoteService asks the transformer for the balance. Without a
// credential no call is made. Failures are reported in the returned state.
func (m *Manager) CheckRemoteService(ctx context.Context) (rs RemoteState) {
	ctx, span := m.tracer.Start(ctx, "capability.check_remote_service")
	defer span.End()

	start := m.clock.Now()
	m.mu.RLock()
	key := m.apiKey
	m.mu.RUnlock()

	if key == "" && m.transformer.RequiresCredential() {
		return m.remoteFailure(RemoteOffline, noCredentialMessage, start)
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("capability.remote_check_panic", "panic", r)
			rs = m.remoteFailure(RemoteError, fmt.Sprintf("remote check panicked: %v", r), start)
		}
	}()

	acct, err := m.transformer.Status(ctx, key)
	if err != nil {
		status := RemoteError
		if errors.Is(err, errors.ErrNetworkOffline) {
			status = RemoteOffline
		}
		m.logger.Warn("capability.remote_check_failed", "status", status, "error", err)
		span.RecordError(err)
		return m.remoteFailure(status, errors.As(err).Message, start)
	}

	tier := Tier(acct.Tier)
	if tier == "" {
		tier = TierTrial
	}
	now := m.clock.Now()
	return RemoteState{
		Connected:      true,
		Status:         RemoteConnected,
		Credits:        max(acct.Credits, 0),
		Tier:           tier,
		CheckedAt:      now,
		CheckLatencyMs: now.Sub(start).Milliseconds(),
	}
}

func (m *Manager) remoteFailure(status RemoteStatus, msg string, start time.Time) RemoteState {
	now := m.clock.Now()
	return RemoteState{
		Status:         status,
		Tier:           TierFree,
		Error:          msg,
		CheckedAt:      now,
		CheckLatencyMs: now.Sub(start).Milliseconds(),
	}
}

// SaveCredential persists key and re-checks the service with it.
func (m *Manager) SaveCredential(ctx context.Context, key string) error {
	ctx, span := m.tracer.Start(ctx, "capability.save_credential")
	defer span.End()

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.NewInvalidRequest("API key is required")
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.creds.Save(ctx, key); err != nil {
		m.logger.Error("capability.credential_save_failed", "error", err)
		return err
	}
	m.mu.Lock()
	m.apiKey = key
	m.mu.Unlock()
	m.logger.Info("capability.credential_saved", "api_key", logging.RedactKey(key))

	remote := m.CheckRemoteService(ctx)

	m.mu.Lock()
	m.state.Remote = remote
	m.state.Mode = DeriveMode(m.state.Grammar, remote)
	snapshot := m.state
	m.mu.Unlock()

	m.indicator.SetBadge(BadgeFor(snapshot.Mode, snapshot.Remote.Credits))
	m.notify(snapshot)
	return nil
}

// RecheckRemoteService refreshes the remote state. The badge changes only
// when the mode does, the upgrade alert fires only on BASIC_ONLY to
// AI_READY, and listeners are notified exactly once per call.
func (m *Manager) RecheckRemoteService(ctx context.Context) State {
	ctx, span := m.tracer.Start(ctx, "capability.recheck_remote_service")
	defer span.End()

	m.opMu.Lock()
	defer m.opMu.Unlock()

	remote := m.CheckRemoteService(ctx)

	m.mu.Lock()
	oldMode := m.state.Mode
	m.state.Remote = remote
	m.state.Mode = DeriveMode(m.state.Grammar, remote)
	snapshot := m.state
	m.mu.Unlock()

	if oldMode != snapshot.Mode {
		m.logger.Info("capability.mode_changed", "from", oldMode, "to", snapshot.Mode)
		m.indicator.SetBadge(BadgeFor(snapshot.Mode, snapshot.Remote.Credits))
		if oldMode == ModeBasicOnly && snapshot.Mode == ModeAIReady {
			m.notifier.UpgradeAvailable(snapshot.Remote.Credits)
		}
	}
	m.notify(snapshot)
	return snapshot
}

// State returns a copy of the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Status returns the display projection of the current state.
func (m *Manager) Status() Status {
	return StatusOf(m.State())
}

// HasCredential reports whether an API key is loaded.
func (m *Manager) HasCredential() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.apiKey != ""
}
