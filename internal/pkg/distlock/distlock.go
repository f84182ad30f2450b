// Package distlock provides a run-level mutual-exclusion lock for dispatch.
//
// The per-subscriber idempotency markers make re-runs safe, but two
// invocations racing inside the same run window could both read "not yet
// sent" before either writes a marker. Holding a campaign-scoped lock for
// the duration of a run closes that window.
package distlock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock is the interface for a single-holder run lock. A Lock instance is
// for one acquire/release cycle from one goroutine.
type Lock interface {
	// TryAcquire attempts to take the lock without blocking.
	// Returns true if this caller now holds it.
	TryAcquire(ctx context.Context) (bool, error)
	// Release gives the lock back if this caller still owns it.
	Release(ctx context.Context) error
}

// New creates a lock using the best available backend. Redis is preferred
// for cross-host exclusion; with no Redis configured it falls back to a
// PostgreSQL advisory lock, which is session-scoped and therefore released
// automatically if the holder's connection drops.
func New(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) Lock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	return NewPGAdvisoryLock(db, key)
}

// PGAdvisoryLock implements Lock using pg_try_advisory_lock. Advisory
// locks are session-scoped, so the lock pins one connection out of the
// pool for its whole acquire/release lifetime; unlocking through the
// pooled *sql.DB could land on a different session and silently leave
// the lock held.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock derives a deterministic advisory lock ID from key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

// TryAcquire attempts the advisory lock without blocking. On success the
// underlying connection stays checked out until Release.
func (l *PGAdvisoryLock) TryAcquire(ctx context.Context) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, err
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release unlocks on the session that acquired. The connection is closed
// either way; a dropped session releases its advisory locks, so even a
// failed unlock cannot leave the lock held.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	conn := l.conn
	l.conn = nil
	var released bool
	err := conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID).Scan(&released)
	if closeErr := conn.Close(); err == nil {
		err = closeErr
	}
	return err
}
