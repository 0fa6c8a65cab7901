package session

import (
	"bufio"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlor-project/parlor/internal/network"
	"github.com/parlor-project/parlor/internal/protocol"
)

func newTestConn(t *testing.T) (*network.Connection, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return network.NewConnection(server), client
}

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	conn, _ := newTestConn(t)

	require.NoError(t, r.Register(42, conn))

	assert.True(t, r.IsOnline(42))
	assert.Equal(t, 1, r.Count())

	id, ok := r.PlayerOf(conn)
	require.True(t, ok)
	assert.Equal(t, 42, id)

	got, ok := r.ConnOf(42)
	require.True(t, ok)
	assert.Same(t, conn, got)
}

func TestRegisterSecondSessionRejected(t *testing.T) {
	r := NewRegistry()
	first, _ := newTestConn(t)
	second, _ := newTestConn(t)

	require.NoError(t, r.Register(7, first))
	err := r.Register(7, second)
	require.ErrorIs(t, err, ErrAlreadyOnline)

	// The losing connection must not be bound to anything.
	_, ok := r.PlayerOf(second)
	assert.False(t, ok)

	// The original session is untouched.
	got, ok := r.ConnOf(7)
	require.True(t, ok)
	assert.Same(t, first, got)
}

func TestUnregisterIdempotent(t *testing.T) {
	r := NewRegistry()
	conn, _ := newTestConn(t)

	require.NoError(t, r.Register(1, conn))
	r.Unregister(conn)
	assert.False(t, r.IsOnline(1))
	assert.Equal(t, 0, r.Count())

	// Second unregister of the same connection is a no-op.
	r.Unregister(conn)
	assert.Equal(t, 0, r.Count())

	// A connection that never logged in is also a no-op.
	stranger, _ := newTestConn(t)
	r.Unregister(stranger)
	assert.Equal(t, 0, r.Count())
}

func TestReloginAfterUnregister(t *testing.T) {
	r := NewRegistry()
	first, _ := newTestConn(t)
	second, _ := newTestConn(t)

	require.NoError(t, r.Register(5, first))
	r.Unregister(first)
	require.NoError(t, r.Register(5, second))

	got, ok := r.ConnOf(5)
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestOnlinePlayers(t *testing.T) {
	r := NewRegistry()
	for _, id := range []int{1, 2, 3} {
		conn, _ := newTestConn(t)
		require.NoError(t, r.Register(id, conn))
	}
	assert.ElementsMatch(t, []int{1, 2, 3}, r.OnlinePlayers())
}

func TestConcurrentRegisterSingleWinner(t *testing.T) {
	r := NewRegistry()

	const attempts = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < attempts; i++ {
		conn, _ := newTestConn(t)
		wg.Add(1)
		go func(c *network.Connection) {
			defer wg.Done()
			if err := r.Register(99, c); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(conn)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, r.Count())
}

func TestBroadcastReachesEveryConnection(t *testing.T) {
	r := NewRegistry()

	const players = 3
	var wg sync.WaitGroup
	received := make([]protocol.Packet, players)

	for i := 0; i < players; i++ {
		conn, peer := newTestConn(t)
		require.NoError(t, r.Register(i+1, conn))

		wg.Add(1)
		go func(idx int, peer net.Conn) {
			defer wg.Done()
			p, err := protocol.ReadPacket(bufio.NewReader(peer))
			require.NoError(t, err)
			received[idx] = p
		}(i, peer)
	}

	r.Broadcast(protocol.NewKeepAlive())
	wg.Wait()

	for _, p := range received {
		assert.Equal(t, protocol.KeepAlive, p.Type)
	}
}
