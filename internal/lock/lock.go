// Package lock implements the Lock Manager (component B): named, fenced,
// timed-out leases over the KV Substrate. Adapted from the teacher's
// control_plane/coordination/leader.go fencing-token discipline, generalized
// from "leader election over one key" to "any named critical section" — the
// per-document indexing lock (30s TTL) and the optimizer's global lock
// (1h TTL) are both just Manager.Acquire calls with different names and TTLs.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/itskum47/mailforge/internal/kv"
)

// Manager acquires, renews, and releases named locks keyed "lock:{name}" in
// the KV Substrate, per spec §3 ("Lock record") and §4.2.
type Manager struct {
	store kv.Store
}

// NewManager builds a Manager over the given KV Substrate.
func NewManager(store kv.Store) *Manager {
	return &Manager{store: store}
}

func keyFor(name string) string {
	return "lock:" + name
}

// Acquire attempts SET name token IF-ABSENT EXPIRE ttl, per spec §4.2. On
// success it returns the fencing token the caller must present to Renew or
// Release. On contention it returns ("", false, nil) — not an error.
func (m *Manager) Acquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := m.store.SetNX(ctx, keyFor(name), token, ttl)
	if err != nil {
		return "", false, fmt.Errorf("lock: acquire %q: %w", name, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Renew extends the TTL if token still matches the current holder.
func (m *Manager) Renew(ctx context.Context, name, token string, ttl time.Duration) (bool, error) {
	cur, ok, err := m.store.Get(ctx, keyFor(name))
	if err != nil {
		return false, fmt.Errorf("lock: renew %q: %w", name, err)
	}
	if !ok || cur != token {
		return false, nil
	}
	if err := m.store.Set(ctx, keyFor(name), token, ttl); err != nil {
		return false, fmt.Errorf("lock: renew %q: %w", name, err)
	}
	return true, nil
}

// Release deletes the lock if held by token; a mismatched or absent token is
// a silent no-op, mirroring the teacher's compare-then-delete Lua script.
func (m *Manager) Release(ctx context.Context, name, token string) error {
	cur, ok, err := m.store.Get(ctx, keyFor(name))
	if err != nil {
		return fmt.Errorf("lock: release %q: %w", name, err)
	}
	if !ok || cur != token {
		return nil
	}
	return m.store.Del(ctx, keyFor(name))
}

// Owner returns the current fencing token holding the lock, or "" if free.
func (m *Manager) Owner(ctx context.Context, name string) (string, error) {
	cur, ok, err := m.store.Get(ctx, keyFor(name))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return cur, nil
}

// WithLock runs fn while holding name; it acquires, runs, and always
// releases. Returns false if the lock could not be acquired (contention),
// which callers in the optimizer treat as "skip this pass" (spec §7: lock
// contention on the optimizer's lock is not an error, just a skipped pass).
func (m *Manager) WithLock(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) (bool, error) {
	token, ok, err := m.Acquire(ctx, name, ttl)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Release(releaseCtx, name, token)
	}()
	return true, fn(ctx)
}
