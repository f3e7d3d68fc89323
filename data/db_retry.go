package data

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/atomicbase/directory/tools"
)

// A directory store is read far more than it is written, but schema bootstrap,
// FTS index builds and their sync triggers still take the SQLite write lock.
// Listing queries that land during one of those see SQLITE_BUSY and are
// retried with a growing backoff instead of failing the request.
var (
	lockBackoff = []time.Duration{
		50 * time.Millisecond,
		100 * time.Millisecond,
		150 * time.Millisecond,
		200 * time.Millisecond,
		300 * time.Millisecond,
		400 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
		1000 * time.Millisecond,
	}
	maxLockRetries = 12
)

// isLockError reports whether err is SQLite refusing a lock. libSQL surfaces
// the same messages.
func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "table is locked")
}

// backoff returns the wait before retry attempt, holding at the longest step.
func backoff(attempt int) time.Duration {
	return lockBackoff[min(attempt, len(lockBackoff)-1)]
}

// withLockRetry runs fn until it succeeds, fails with something other than a
// lock error, runs out of retries or ctx ends. A cancelled context wins over
// the last lock error.
func withLockRetry[T any](ctx context.Context, query string, fn func() (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		v, err := fn()
		if err == nil || !isLockError(err) || attempt == maxLockRetries {
			return v, err
		}

		tools.Logger.Debug("store locked, retrying",
			"attempt", attempt+1,
			"query", query,
		)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff(attempt)):
		}
	}
}

// ExecContextWithRetry runs a statement, retrying while the store is locked.
func ExecContextWithRetry(ctx context.Context, exec Executor, query string, args ...any) (sql.Result, error) {
	return withLockRetry(ctx, query, func() (sql.Result, error) {
		return exec.ExecContext(ctx, query, args...)
	})
}

// QueryContextWithRetry opens a result cursor, retrying while the store is
// locked.
func QueryContextWithRetry(ctx context.Context, exec Executor, query string, args ...any) (*sql.Rows, error) {
	return withLockRetry(ctx, query, func() (*sql.Rows, error) {
		return exec.QueryContext(ctx, query, args...)
	})
}
