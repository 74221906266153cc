package panel

import (
	"errors"
	"sync"
)

// ErrPanelNotFound is returned for unknown panel ids.
var ErrPanelNotFound = errors.New("panel not found")

// Manager keeps the panels attached to connected hosts.
type Manager struct {
	opts Options

	mu     sync.RWMutex
	panels map[string]*Panel
}

func NewManager(opts Options) *Manager {
	return &Manager{opts: opts, panels: make(map[string]*Panel)}
}

// Create registers a new closed panel at location.
func (m *Manager) Create(location string) *Panel {
	p := New(m.opts, location)
	m.mu.Lock()
	m.panels[p.ID] = p
	m.mu.Unlock()
	return p
}

func (m *Manager) Get(id string) (*Panel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.panels[id]
	if !ok {
		return nil, ErrPanelNotFound
	}
	return p, nil
}

// Remove shuts a panel down and forgets it.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	p, ok := m.panels[id]
	delete(m.panels, id)
	m.mu.Unlock()
	if !ok {
		return ErrPanelNotFound
	}
	p.shutdown()
	return nil
}

// Len reports the number of live panels.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.panels)
}

// Shutdown removes every panel.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	panels := m.panels
	m.panels = make(map[string]*Panel)
	m.mu.Unlock()

	for _, p := range panels {
		p.shutdown()
	}
}
