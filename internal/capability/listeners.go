package capability

import "sort"

// Subscribe registers l for every broadcast and returns its unsubscribe
// function. Each call creates a new subscription, even for the same func.
func (m *Manager) Subscribe(l Listener) (unsubscribe func()) {
	m.listenersMu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.listenersMu.Unlock()

	return func() {
		m.listenersMu.Lock()
		delete(m.listeners, id)
		m.listenersMu.Unlock()
	}
}

// Close drops every listener.
func (m *Manager) Close() {
	m.listenersMu.Lock()
	m.listeners = make(map[uint64]Listener)
	m.listenersMu.Unlock()
}

// notify hands the projection of snapshot to every listener in subscription
// order. A panicking listener is logged and skipped.
func (m *Manager) notify(snapshot State) {
	status := StatusOf(snapshot)

	m.listenersMu.Lock()
	ids := make([]uint64, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, m.listeners[id])
	}
	warn := m.shouldWarnLowCredits(snapshot.Remote)
	m.listenersMu.Unlock()

	for _, l := range listeners {
		m.call(l, status)
	}
	if warn {
		m.notifier.LowCredits(snapshot.Remote.Credits)
	}
}

func (m *Manager) call(l Listener, status Status) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("capability.listener_panic", "panic", r)
		}
	}()
	l(status)
}

// shouldWarnLowCredits reports whether this balance deserves a warning.
// Each distinct balance warns once; a top-up above the threshold resets.
// Caller holds listenersMu.
func (m *Manager) shouldWarnLowCredits(r RemoteState) bool {
	if m.lowCredit <= 0 || !r.Connected {
		return false
	}
	if r.Credits > m.lowCredit {
		clear(m.warnedAt)
		return false
	}
	if r.Credits <= 0 || m.warnedAt[r.Credits] {
		return false
	}
	m.warnedAt[r.Credits] = true
	return true
}
