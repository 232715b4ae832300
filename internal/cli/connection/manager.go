package connection

import (
	"context"
	"sync"

	"github.com/yndnr/ledgersnap/internal/telemetry/logger"
)

// Manager dials the node on first use and shares the client between
// commands. Commands that never talk to the node never dial.
type Manager struct {
	cfg    Config
	logger logger.Logger

	mu      sync.Mutex
	current *NodeClient
}

// NewManager creates a manager for cfg.
func NewManager(cfg Config, l logger.Logger) *Manager {
	if l == nil {
		l = logger.Discard()
	}
	return &Manager{cfg: cfg, logger: l}
}

// Client returns the shared client, dialling it if needed. A failed dial
// is retried on the next call.
func (m *Manager) Client(ctx context.Context) (*NodeClient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return m.current, nil
	}
	c, err := Dial(ctx, m.cfg, m.logger)
	if err != nil {
		return nil, err
	}
	m.current = c
	return c, nil
}

// Close closes the shared client.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Close()
		m.current = nil
	}
}
