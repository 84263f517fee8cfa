package session

import (
	"fmt"
	"sync/atomic"

	"github.com/mark3labs/mcp-go/server"
)

// fixedIDManager hands out a single, pre-generated session id. Each
// session owns its own StreamableHTTPServer, so that server only ever has
// to recognise the one id the multiplexer routed to it.
type fixedIDManager struct {
	id         string
	terminated atomic.Bool
}

var _ server.SessionIdManager = (*fixedIDManager)(nil)

func newFixedIDManager(id string) *fixedIDManager {
	return &fixedIDManager{id: id}
}

func (m *fixedIDManager) Generate() string {
	return m.id
}

func (m *fixedIDManager) Validate(sessionID string) (bool, error) {
	if sessionID != m.id {
		return false, fmt.Errorf("unknown session id %q", sessionID)
	}
	return m.terminated.Load(), nil
}

func (m *fixedIDManager) Terminate(sessionID string) (bool, error) {
	if sessionID != m.id {
		return false, fmt.Errorf("unknown session id %q", sessionID)
	}
	m.terminated.Store(true)
	return false, nil
}
