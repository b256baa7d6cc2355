package lock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserLock_SerializesPerUser(t *testing.T) {
	ul := NewUserLock()

	const goroutines = 50
	const increments = 100

	counter := 0
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < increments; j++ {
				ul.Lock(1)
				counter++
				ul.Unlock(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, goroutines*increments, counter)
}

func TestUserLock_IndependentUsers(t *testing.T) {
	ul := NewUserLock()

	ul.Lock(1)
	defer ul.Unlock(1)

	// A different user's lock is not blocked.
	acquired := ul.TryLock(2)
	require.True(t, acquired)
	ul.Unlock(2)
}

func TestUserLock_TryLock(t *testing.T) {
	ul := NewUserLock()

	ul.Lock(1)
	assert.False(t, ul.TryLock(1))
	ul.Unlock(1)

	assert.True(t, ul.TryLock(1))
	ul.Unlock(1)
}

func TestUserLock_WithLock(t *testing.T) {
	ul := NewUserLock()

	called := false
	err := ul.WithLock(1, func() error {
		called = true
		// The lock is held inside the callback.
		assert.False(t, ul.TryLock(1))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)

	// And released afterwards.
	assert.True(t, ul.TryLock(1))
	ul.Unlock(1)
}
