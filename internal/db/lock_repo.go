package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"pushdispatch/internal/types"
)

// RunLockRepository implements the non-blocking run lock on top of Postgres
// session advisory locks. Advisory locks are bound to the session that took
// them, so the repository pins one pool connection for the duration of the
// lease and returns it when the lease is released.
type RunLockRepository struct {
	pool *pgxpool.Pool
}

// NewRunLockRepository creates a RunLockRepository over the given pool.
func NewRunLockRepository(pool *pgxpool.Pool) *RunLockRepository {
	return &RunLockRepository{pool: pool}
}

// TryAcquire attempts to take the advisory lock for the given key without
// blocking. When the lock is held elsewhere it returns acquired=false and no
// release function; this is not an error. On success the returned release
// function must be called exactly once, and is safe to defer.
func (r *RunLockRepository) TryAcquire(ctx context.Context, key int64) (release func(context.Context), acquired bool, err error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, false, types.NewAppError(types.ErrCodeInternalDB, "failed to acquire lock connection", err)
	}

	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&locked); err != nil {
		conn.Release()
		return nil, false, types.NewAppError(types.ErrCodeInternalDB, "failed to try advisory lock", err)
	}
	if !locked {
		conn.Release()
		return nil, false, nil
	}

	released := false
	release = func(ctx context.Context) {
		if released {
			return
		}
		released = true
		if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, key); err != nil {
			// The session still holds the lock. Returning the connection to
			// the pool would leak the lock for the connection's lifetime, so
			// destroy the session instead; the lock dies with it.
			_ = conn.Hijack().Close(context.Background())
			return
		}
		conn.Release()
	}
	return release, true, nil
}
