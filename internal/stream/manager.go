// Package stream pushes UI events to browsers over websockets.
package stream

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// ConnManager tracks the open event streams, one per visitor tab.
type ConnManager struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewConnManager creates an empty connection manager.
func NewConnManager() *ConnManager {
	return &ConnManager{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// Register adds a connection for a visitor tab, closing any connection it
// replaces.
func (m *ConnManager) Register(visitorID, tabID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[visitorID]; !exists {
		m.active[visitorID] = make(map[string]*websocket.Conn)
	}

	if existing, exists := m.active[visitorID][tabID]; exists && existing != conn {
		// Close waits for the peer's close frame; do not hold the lock for it.
		go func() { _ = existing.Close(websocket.StatusNormalClosure, "stream replaced") }()
	}

	m.active[visitorID][tabID] = conn
	slog.Debug("Event stream registered", "visitor_id", visitorID, "tab_id", tabID)
}

// Unregister removes conn if it is still the tab's current connection.
func (m *ConnManager) Unregister(visitorID, tabID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tabs, ok := m.active[visitorID]; ok {
		if current, exists := tabs[tabID]; exists && current == conn {
			delete(tabs, tabID)
			if len(tabs) == 0 {
				delete(m.active, visitorID)
			}
			slog.Debug("Event stream unregistered", "visitor_id", visitorID, "tab_id", tabID)
		}
	}
}

// Count returns the number of open streams.
func (m *ConnManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, tabs := range m.active {
		n += len(tabs)
	}
	return n
}

// CloseAll starts closing every stream, for shutdown.
func (m *ConnManager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for visitorID, tabs := range m.active {
		for _, conn := range tabs {
			go func() { _ = conn.Close(websocket.StatusGoingAway, "server shutting down") }()
		}
		delete(m.active, visitorID)
	}
}
