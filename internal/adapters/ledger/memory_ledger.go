// Package ledger records which provider message ids have already been answered.
package ledger

import (
	"context"
	"sync"
)

// MemoryLedger keeps processed ids for the lifetime of the process.
type MemoryLedger struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewMemoryLedger creates an empty in-process ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{ids: make(map[string]struct{})}
}

// Contains reports whether messageID was recorded.
func (l *MemoryLedger) Contains(_ context.Context, messageID string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.ids[messageID]
	return ok, nil
}

// Add records messageID.
func (l *MemoryLedger) Add(_ context.Context, messageID string) error {
	l.mu.Lock()
	l.ids[messageID] = struct{}{}
	l.mu.Unlock()
	return nil
}

// Len returns the number of recorded ids.
func (l *MemoryLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ids)
}
