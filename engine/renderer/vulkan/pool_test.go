package vulkan

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeCallSerialisesGroup(t *testing.T) {
	pool := NewVulkanLockPool()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.SafeCall(BufferManagement, func() error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 64, counter)
}

func TestSafeCallReturnsError(t *testing.T) {
	pool := NewVulkanLockPool()
	want := errors.New("boom")
	assert.ErrorIs(t, pool.SafeCall(PipelineManagement, func() error { return want }), want)
	// The group lock must have been released.
	require.NoError(t, pool.SafeCall(PipelineManagement, func() error { return nil }))
}

func TestSafeQueueCallNests(t *testing.T) {
	pool := NewVulkanLockPool()
	pool.SetQueueFamily(0)
	pool.SetQueueFamily(1)
	calls := 0
	err := pool.SafeQueueCall(0, func() error {
		calls++
		return pool.SafeQueueCall(1, func() error {
			calls++
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
