package capability

import (
	"context"
	"sync"

	"github.com/hpungsan/ghostwrite/internal/grammar"
	"github.com/hpungsan/ghostwrite/internal/remote"
)

type fakeCreds struct {
	mu      sync.Mutex
	key     string
	saveErr error
}

func (f *fakeCreds) Load(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.key, nil
}

func (f *fakeCreds) Save(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.key = key
	return nil
}

type fakeEngine struct {
	findings []grammar.Finding
	err      error
	panics   bool
	onLint   func(text string)
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Lint(_ context.Context, text string) ([]grammar.Finding, error) {
	if e.onLint != nil {
		e.onLint(text)
	}
	if e.panics {
		panic("engine exploded")
	}
	return e.findings, e.err
}

type fakeLoader struct {
	engine grammar.Engine
	err    error
	panics bool
}

func (l *fakeLoader) Load(context.Context) (grammar.Engine, error) {
	if l.panics {
		panic("loader exploded")
	}
	if l.err != nil {
		return nil, l.err
	}
	return l.engine, nil
}

type fakeTransformer struct {
	mu             sync.Mutex
	account        *remote.Account
	statusErr      error
	out            *remote.Transformation
	transformErr   error
	statusCalls    int
	transformCalls int
	lastKey        string
}

func (f *fakeTransformer) RequiresCredential() bool { return true }

func (f *fakeTransformer) Status(_ context.Context, key string) (*remote.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	f.lastKey = key
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	acct := *f.account
	return &acct, nil
}

func (f *fakeTransformer) Transform(_ context.Context, key, text, action string) (*remote.Transformation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transformCalls++
	f.lastKey = key
	if f.transformErr != nil {
		return nil, f.transformErr
	}
	out := *f.out
	return &out, nil
}

func (f *fakeTransformer) setAccount(a *remote.Account, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.account, f.statusErr = a, err
}

func (f *fakeTransformer) calls() (status, transform int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls, f.transformCalls
}

type recordingIndicator struct {
	mu     sync.Mutex
	badges []Badge
}

func (r *recordingIndicator) SetBadge(b Badge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.badges = append(r.badges, b)
}

func (r *recordingIndicator) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.badges)
}

type recordingNotifier struct {
	mu       sync.Mutex
	upgrades []int
	low      []int
}

func (r *recordingNotifier) UpgradeAvailable(credits int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upgrades = append(r.upgrades, credits)
}

func (r *recordingNotifier) LowCredits(credits int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.low = append(r.low, credits)
}

type harness struct {
	m           *Manager
	creds       *fakeCreds
	loader      *fakeLoader
	engine      *fakeEngine
	transformer *fakeTransformer
	indicator   *recordingIndicator
	notifier    *recordingNotifier
	statuses    *[]Status
}

func newHarness(key string, credits int) *harness {
	h := &harness{
		creds:  &fakeCreds{key: key},
		engine: &fakeEngine{findings: []grammar.Finding{}},
		transformer: &fakeTransformer{
			account: &remote.Account{Tier: "trial", Credits: credits},
			out:     &remote.Transformation{Text: "done", Provider: "gemini", ShouldCheckGrammar: true},
		},
		indicator: &recordingIndicator{},
		notifier:  &recordingNotifier{},
	}
	h.loader = &fakeLoader{engine: h.engine}
	h.m = New(Options{
		Credentials:        h.creds,
		Grammar:            h.loader,
		Transformer:        h.transformer,
		Indicator:          h.indicator,
		Notifier:           h.notifier,
		LowCreditThreshold: 10,
	})
	var statuses []Status
	var mu sync.Mutex
	h.statuses = &statuses
	h.m.Subscribe(func(s Status) {
		mu.Lock()
		defer mu.Unlock()
		statuses = append(statuses, s)
	})
	return h
}

func (h *harness) broadcasts() int { return len(*h.statuses) }

func intPtr(n int) *int { return &n }
