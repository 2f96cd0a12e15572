package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserLock_Serializes(t *testing.T) {
	ul := NewUserLock()
	ctx := context.Background()

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := ul.WithLockContext(ctx, 42, time.Second, func() error {
				counter++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestUserLock_IndependentUsers(t *testing.T) {
	ul := NewUserLock()
	ctx := context.Background()

	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = ul.WithLockContext(ctx, 1, time.Second, func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	// A different user's lock is not affected.
	err := ul.WithLockContext(ctx, 2, 50*time.Millisecond, func() error { return nil })
	require.NoError(t, err)

	// The held user's lock times the waiter out.
	err = ul.WithLockContext(ctx, 1, 20*time.Millisecond, func() error {
		t.Error("must not run while the lock is held")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestUserLock_WithLockContext(t *testing.T) {
	ul := NewUserLock()

	err := ul.WithLockContext(context.Background(), 42, time.Second, func() error {
		return nil
	})
	require.NoError(t, err)

	// A canceled request context is surfaced, not the lock timeout.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = ul.WithLockContext(ctx, 42, time.Second, func() error {
		t.Error("must not run with a canceled context")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
