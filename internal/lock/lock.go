// Package lock implements the distributed mutual-exclusion primitive the
// batch writer uses to coordinate flushes across worker processes: a Redis
// SET NX acquire with an expiry, paired with Lua scripts for a
// compare-and-delete release and a compare-and-extend renewal, so a holder
// can never clear or extend a lock it no longer owns.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned by Acquire when the lock is already held by someone else.
var ErrNotAcquired = errors.New("lock: not acquired")

const keyPrefix = "distributed_lock:"

// releaseScript deletes the key only if its value still matches the token
// presented, so a process can never release a lock it no longer owns
// (e.g. after its own lease already expired and was reacquired elsewhere).
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// extendScript bumps the TTL only if the token still matches.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`)

// Lock is a held distributed lock. The zero value is not usable; obtain one via Manager.Acquire.
type Lock struct {
	mgr   *Manager
	name  string
	key   string
	token string
}

// Name returns the logical lock name this Lock was acquired under.
func (l *Lock) Name() string { return l.name }

// Release clears the lock if this holder still owns it. Safe to call once; a second call is a no-op error.
func (l *Lock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.mgr.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("lock: release %s: %w", l.name, err)
	}
	l.mgr.forget(l.name)
	if n == 0 {
		return fmt.Errorf("lock: release %s: token mismatch, lease likely expired", l.name)
	}
	return nil
}

// Extend resets the lock's TTL to additionalSeconds from now, provided this
// holder still owns it.
func (l *Lock) Extend(ctx context.Context, additionalSeconds int) error {
	n, err := extendScript.Run(ctx, l.mgr.client, []string{l.key}, l.token, additionalSeconds*1000).Int()
	if err != nil {
		return fmt.Errorf("lock: extend %s: %w", l.name, err)
	}
	if n == 0 {
		return fmt.Errorf("lock: extend %s: token mismatch, lease likely expired", l.name)
	}
	return nil
}

// Manager owns the Redis client used for locking and tracks which lock
// names this process currently believes it holds (see ActiveLockNames).
// The startup/shutdown integrity sweep, CleanupStaleLocks, scans Redis and
// does not consult this registry.
type Manager struct {
	client *redis.Client
	active *activeSet
}

// NewManager creates a lock manager bound to client.
func NewManager(client *redis.Client) *Manager {
	return &Manager{client: client, active: newActiveSet()}
}

// Acquire attempts to take the named lock for timeout, returning
// ErrNotAcquired if another holder currently has it.
func (m *Manager) Acquire(ctx context.Context, name string, timeout time.Duration) (*Lock, error) {
	key := keyPrefix + name
	token := uuid.NewString()

	ok, err := m.client.SetNX(ctx, key, token, timeout).Result()
	if err != nil {
		return nil, fmt.Errorf("lock: acquire %s: %w", name, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}

	m.active.add(name)

	return &Lock{mgr: m, name: name, key: key, token: token}, nil
}

func (m *Manager) forget(name string) {
	m.active.remove(name)
}

// CleanupStaleLocks scans every distributed_lock:* key and removes ones
// with no expiration set (PTTL == -1). Acquire never leaves such a key, since
// it sets the value and its expiry in one command; they come only from
// writes made without an expiry. Keys with no entry (PTTL == -2) are ignored.
// Run at pipeline startup and shutdown.
func (m *Manager) CleanupStaleLocks(ctx context.Context) (int, error) {
	var cursor uint64
	removed := 0

	for {
		keys, next, err := m.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return removed, fmt.Errorf("lock: scan stale locks: %w", err)
		}

		for _, key := range keys {
			pttl, err := m.client.PTTL(ctx, key).Result()
			if err != nil {
				continue
			}
			if pttl == -1 {
				if err := m.client.Del(ctx, key).Err(); err == nil {
					removed++
				}
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return removed, nil
}

// ActiveLockNames returns the lock names this process currently holds,
// according to its own bookkeeping (not a Redis round-trip).
func (m *Manager) ActiveLockNames() []string {
	return m.active.list()
}
