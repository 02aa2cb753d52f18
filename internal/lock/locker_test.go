package lock

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	locker := NewKeyedMutex()
	ctx := context.Background()

	const workers = 16
	var inside, maxInside int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithSlotLock(ctx, "slot:D1:2024-06-10:09:00", func(context.Context) error {
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside, "at most one holder per key at a time")
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	locker := NewKeyedMutex()
	ctx := context.Background()

	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = locker.WithSlotLock(ctx, "slot:D1:2024-06-10:09:00", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	// A different key must not queue behind the held one.
	err := locker.WithSlotLock(ctx, "slot:D2:2024-06-10:09:00", func(context.Context) error {
		return nil
	})
	require.NoError(t, err)
	close(release)
}

func TestKeyedMutexHonorsCancelledContext(t *testing.T) {
	locker := NewKeyedMutex()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := locker.WithSlotLock(ctx, "slot:D1:2024-06-10:09:00", func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
