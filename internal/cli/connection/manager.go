package connection

import (
	"context"
	"errors"
	"sync"
)

// ErrNoSession is returned when a call needs a res_id and none is active.
var ErrNoSession = errors.New("no active session: run 'session create' or pass --res-id")

// Manager tracks the active session of a CLI run or shell.
type Manager struct {
	mu     sync.Mutex
	client *HTTPClient
	resID  string
}

// NewManager creates a manager for the given client and namespace.
func NewManager(client *HTTPClient, resID string) *Manager {
	return &Manager{client: client, resID: resID}
}

// Client returns the HTTP client of the active session.
func (m *Manager) Client() *HTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client
}

// ResID returns the active namespace, or ErrNoSession.
func (m *Manager) ResID() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resID == "" {
		return "", ErrNoSession
	}
	return m.resID, nil
}

// Use switches to another session.
func (m *Manager) Use(resID, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resID = resID
	m.client.SetToken(token)
}

// Connect resolves the client token and makes the result the active session.
func (m *Manager) Connect(ctx context.Context) (*ResolveResult, error) {
	result, err := m.Client().Resolve(ctx)
	if err != nil {
		return nil, err
	}
	m.Use(result.ResID, result.Token)
	return result, nil
}

// IsConnected reports whether a session is active.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resID != "" && m.client.Token() != ""
}
