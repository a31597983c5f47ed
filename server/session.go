package server

import (
	"sync"

	"gmaps-reviews-analyzer/models"
)

// Session holds the one dataset the user is currently working on. It is an
// explicit object owned by the Server, not ambient global state; handlers
// replace it only after an action has fully succeeded, so a failed action
// leaves the previous dataset intact.
type Session struct {
	mu    sync.Mutex
	table *models.Table
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{}
}

// Set replaces the current table.
func (s *Session) Set(t *models.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table = t
}

// Get returns the current table, or nil when no fetch has completed yet.
func (s *Session) Get() *models.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table
}
