// Package revocation keeps the set of access tokens that must be rejected
// even though their signature and expiry are still valid.
package revocation

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/gso-inventory-auth/internal/utils"
)

// Registry is the token blacklist.  Entries only need to outlive the token
// itself, so every Add carries the token's natural expiry.
type Registry interface {
	Add(ctx context.Context, token string, expiresAt time.Time) error
	Contains(ctx context.Context, token string) (bool, error)
}

// Memory is a process-local Registry.  Revocations do not survive a restart
// and are not visible to other instances; use Redis when more than one
// instance serves traffic.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]time.Time // token hash -> expiry
	now     func() time.Time
}

// NewMemory returns an empty in-process registry.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]time.Time), now: time.Now}
}

// Add records token as revoked until expiresAt.  Tokens that are already
// expired are ignored since the verifier rejects them anyway.
func (m *Memory) Add(_ context.Context, token string, expiresAt time.Time) error {
	if !expiresAt.After(m.now()) {
		return nil
	}
	key := utils.HashToken(token)
	m.mu.Lock()
	if cur, ok := m.entries[key]; !ok || expiresAt.After(cur) {
		m.entries[key] = expiresAt
	}
	m.mu.Unlock()
	return nil
}

// Contains reports whether token is revoked and not yet past its expiry.
func (m *Memory) Contains(_ context.Context, token string) (bool, error) {
	key := utils.HashToken(token)
	m.mu.RLock()
	exp, ok := m.entries[key]
	m.mu.RUnlock()
	return ok && m.now().Before(exp), nil
}

// Prune drops entries whose token has expired and returns how many were
// removed.  The session reaper calls it on every tick.
func (m *Memory) Prune(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, exp := range m.entries {
		if !now.Before(exp) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
