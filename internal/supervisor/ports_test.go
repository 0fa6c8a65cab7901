package supervisor

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPortAllocatorSequence(t *testing.T) {
	a := NewPortAllocator(20100)

	assert.Equal(t, 20100, a.Next())
	assert.Equal(t, 20101, a.Next())
	assert.Equal(t, 20102, a.Next())
}

func TestPortAllocatorNeverReuses(t *testing.T) {
	a := NewPortAllocator(DefaultPortBase)

	const n = 64
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[int]bool, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			port := a.Next()
			mu.Lock()
			assert.False(t, seen[port], "port %d handed out twice", port)
			seen[port] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
	for port := range seen {
		assert.GreaterOrEqual(t, port, DefaultPortBase)
		assert.Less(t, port, DefaultPortBase+n)
	}
}
