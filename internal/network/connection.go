// Package network implements the TCP listeners and connection plumbing for
// the player and developer wire protocols.
package network

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/parlor-project/parlor/internal/protocol"
	"github.com/parlor-project/parlor/internal/util"
)

// Connection wraps a client TCP connection. Frames are read by exactly one
// worker goroutine for the lifetime of the connection; writes may come from
// any goroutine (responses, keepalives, room pushes) and are serialized by
// the write mutex.
type Connection struct {
	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	logger zerolog.Logger

	connectedAt  time.Time
	lastActivity time.Time

	closed bool
}

// NewConnection wraps an existing net.Conn.
func NewConnection(conn net.Conn) *Connection {
	now := time.Now()
	return &Connection{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		connectedAt:  now,
		lastActivity: now,
		logger:       util.ComponentLogger("connection").With().Str("remote", conn.RemoteAddr().String()).Logger(),
	}
}

// ReadPacket reads the next frame from the connection. Blocks until a frame
// is available, the timeout elapses, or the peer closes. Only the owning
// worker goroutine may call this.
func (c *Connection) ReadPacket(timeout time.Duration) (protocol.Packet, error) {
	if timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
	} else {
		c.conn.SetReadDeadline(time.Time{})
	}

	p, err := protocol.ReadPacket(c.reader)
	if err != nil {
		return protocol.Packet{}, err
	}

	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()

	return p, nil
}

// WritePacket sends a single frame through the connection.
func (c *Connection) WritePacket(p protocol.Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("connection is closed")
	}

	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := protocol.WritePacket(c.conn, p); err != nil {
		return fmt.Errorf("failed to write packet: %w", err)
	}

	c.lastActivity = time.Now()
	return nil
}

// Close closes the connection. Safe to call more than once.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.logger.Debug().Msg("connection closed")
	return c.conn.Close()
}

// IsClosed returns whether the connection has been closed locally.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// LastActivity returns the time of the last read/write activity.
func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// ConnectedAt returns the time the connection was established.
func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}

// RemoteAddr returns the remote address of the connection.
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// ClientSet tracks the open connections of one listener so the service can
// push out-of-band packets (keepalive heartbeats) to all of them.
type ClientSet struct {
	mu    sync.RWMutex
	conns map[*Connection]struct{}
}

// NewClientSet creates an empty ClientSet.
func NewClientSet() *ClientSet {
	return &ClientSet{conns: make(map[*Connection]struct{})}
}

// Add registers a connection.
func (s *ClientSet) Add(conn *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn] = struct{}{}
}

// Remove unregisters a connection. Removing an unknown connection is a no-op.
func (s *ClientSet) Remove(conn *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// Count returns the number of tracked connections.
func (s *ClientSet) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Broadcast sends a packet to every tracked connection. A failed write on
// one connection never aborts delivery to the rest.
func (s *ClientSet) Broadcast(p protocol.Packet) {
	s.mu.RLock()
	conns := make([]*Connection, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	for _, c := range conns {
		if err := c.WritePacket(p); err != nil {
			log.Debug().Err(err).Str("remote", c.RemoteAddr().String()).Msg("broadcast write failed")
		}
	}
}

// CloseAll closes every tracked connection and empties the set.
func (s *ClientSet) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for c := range s.conns {
		c.Close()
		delete(s.conns, c)
	}
}
