package mcp

import (
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/ghostwrite/internal/capability"
)

// Notification methods pushed to connected clients.
const (
	MethodCapabilityUpdate = "notifications/capability_update"
	MethodMessage          = "notifications/message"
)

// Notifier forwards capability alerts and status broadcasts to MCP clients.
// It is created before the server so it can be handed to capability.New,
// then attached once the server exists. Calls before Attach are dropped.
type Notifier struct {
	mu  sync.RWMutex
	srv *server.MCPServer
}

// NewNotifier returns an unattached notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Attach sets the server notifications go to.
func (n *Notifier) Attach(s *server.MCPServer) {
	n.mu.Lock()
	n.srv = s
	n.mu.Unlock()
}

func (n *Notifier) send(method string, params map[string]any) {
	n.mu.RLock()
	s := n.srv
	n.mu.RUnlock()
	if s == nil {
		return
	}
	s.SendNotificationToAllClients(method, params)
}

// UpgradeAvailable implements capability.Notifier.
func (n *Notifier) UpgradeAvailable(credits int) {
	n.send(MethodMessage, map[string]any{
		"level":  "info",
		"logger": "ghostwrite",
		"data":   fmt.Sprintf("AI features are now available. %d credits remaining.", credits),
	})
}

// LowCredits implements capability.Notifier.
func (n *Notifier) LowCredits(credits int) {
	n.send(MethodMessage, map[string]any{
		"level":  "warning",
		"logger": "ghostwrite",
		"data":   fmt.Sprintf("Only %d credits remaining.", credits),
	})
}

// Listener returns a capability.Listener that pushes each status to clients.
func (n *Notifier) Listener() capability.Listener {
	return func(st capability.Status) {
		n.send(MethodCapabilityUpdate, map[string]any{
			"mode":          st.Mode,
			"features":      st.Features,
			"credits":       st.Credits,
			"upgradePrompt": st.UpgradePrompt,
			"badge":         st.Badge,
		})
	}
}
