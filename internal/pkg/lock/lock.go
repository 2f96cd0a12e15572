// Package lock provides per-user locking. The session gate holds a
// user's lock across its check-pending-then-create-invoice sequence so
// two concurrent requests cannot both issue an entry-fee invoice.
package lock

import (
	"context"
	"sync"
	"time"
)

// UserLock provides a mutex per user id.
type UserLock struct {
	locks sync.Map // map[int64]*sync.Mutex
}

// NewUserLock creates a new UserLock instance.
func NewUserLock() *UserLock {
	return &UserLock{}
}

func (ul *UserLock) getLock(userID int64) *sync.Mutex {
	if v, ok := ul.locks.Load(userID); ok {
		return v.(*sync.Mutex)
	}
	v, _ := ul.locks.LoadOrStore(userID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// WithLockContext executes fn while holding the user's lock, giving up
// with ErrLockTimeout if the lock cannot be acquired within timeout.
func (ul *UserLock) WithLockContext(ctx context.Context, userID int64, timeout time.Duration, fn func() error) error {
	mu := ul.getLock(userID)

	acquired := make(chan struct{})
	go func() {
		mu.Lock()
		close(acquired)
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-acquired:
		defer mu.Unlock()
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn()
	case <-timeoutCtx.Done():
		// The waiting goroutine will eventually acquire the lock;
		// release it immediately so the owner slot is not leaked.
		go func() {
			<-acquired
			mu.Unlock()
		}()
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrLockTimeout
	}
}
