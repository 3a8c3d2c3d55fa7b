package indexer

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildLock(t *testing.T) {
	var l BuildLock

	assert.False(t, l.Active("/a"))
	assert.True(t, l.TryAcquire("/a"))
	assert.True(t, l.Active("/a"))
	assert.False(t, l.TryAcquire("/a"), "second acquire of a busy root fails")
	assert.True(t, l.TryAcquire("/b"), "roots are independent")

	l.Release("/a")
	assert.False(t, l.Active("/a"))
	assert.True(t, l.TryAcquire("/a"))
}

func TestBuildLock_Concurrent(t *testing.T) {
	var (
		l       BuildLock
		wg      sync.WaitGroup
		winners atomic.Int32
	)

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryAcquire("/root") {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}
