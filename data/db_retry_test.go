package data

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errLocked = errors.New("database is locked (5) (SQLITE_BUSY)")

func TestIsLockError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errLocked, true},
		{errors.New("database table is locked: entries"), true},
		{errors.New("no such table: entries_fts"), false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, isLockError(tt.err), "%v", tt.err)
	}
}

func TestBackoff_HoldsAtLongestStep(t *testing.T) {
	assert.Equal(t, 50*time.Millisecond, backoff(0))
	assert.Equal(t, time.Second, backoff(len(lockBackoff)-1))
	assert.Equal(t, time.Second, backoff(maxLockRetries))
}

func TestWithLockRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds after lock clears", func(t *testing.T) {
		calls := 0
		n, err := withLockRetry(ctx, "SELECT 1", func() (int, error) {
			calls++
			if calls < 3 {
				return 0, errLocked
			}
			return 7, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 7, n)
		assert.Equal(t, 3, calls)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		calls := 0
		boom := errors.New("syntax error")
		_, err := withLockRetry(ctx, "SELEC 1", func() (int, error) {
			calls++
			return 0, boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		calls := 0
		_, err := withLockRetry(cctx, "SELECT 1", func() (int, error) {
			calls++
			return 0, errLocked
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}
