package capability

import (
	"context"
	"sync"
	"time"
)

// DefaultRecheckInterval is how often a connected client refreshes its balance.
const DefaultRecheckInterval = 5 * time.Minute

// Poller rechecks the remote service on a timer while it is connected.
type Poller struct {
	manager  *Manager
	interval time.Duration

	running sync.Mutex
}

// NewPoller returns a poller. A non-positive interval uses the default.
func NewPoller(m *Manager, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultRecheckInterval
	}
	return &Poller{manager: m, interval: interval}
}

// Run ticks until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			go p.Tick(ctx)
		}
	}
}

// Tick performs one recheck if the service is connected. A tick that finds
// another still running is skipped. Returns whether a recheck ran.
func (p *Poller) Tick(ctx context.Context) bool {
	if !p.running.TryLock() {
		p.manager.logger.Debug("capability.poll_skipped", "reason", "in_flight")
		return false
	}
	defer p.running.Unlock()

	if !p.manager.State().Remote.Connected {
		return false
	}
	p.manager.RecheckRemoteService(ctx)
	return true
}
