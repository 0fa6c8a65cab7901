// Package session tracks which authenticated players are online and which
// connection each one owns. A player has at most one live session at a time.
package session

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/parlor-project/parlor/internal/network"
	"github.com/parlor-project/parlor/internal/protocol"
)

// ErrAlreadyOnline is returned when an identity already has a live session.
var ErrAlreadyOnline = errors.New("account is already logged in")

// Registry is the bidirectional player <-> connection map. Both directions
// are mutated under one mutex so no reader can observe a half-updated pair.
type Registry struct {
	mu           sync.Mutex
	playerToConn map[int]*network.Connection
	connToPlayer map[*network.Connection]int
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		playerToConn: make(map[int]*network.Connection),
		connToPlayer: make(map[*network.Connection]int),
	}
}

// Register binds a player to a connection. Returns ErrAlreadyOnline without
// any mutation when the player already has a session; the check and bind are
// one atomic step.
func (r *Registry) Register(playerID int, conn *network.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, online := r.playerToConn[playerID]; online {
		return ErrAlreadyOnline
	}

	r.playerToConn[playerID] = conn
	r.connToPlayer[conn] = playerID

	log.Debug().Int("player_id", playerID).Msg("session registered")
	return nil
}

// IsOnline reports whether the player currently has a live session.
func (r *Registry) IsOnline(playerID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, online := r.playerToConn[playerID]
	return online
}

// PlayerOf returns the player bound to a connection, or false when the
// connection never logged in.
func (r *Registry) PlayerOf(conn *network.Connection) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.connToPlayer[conn]
	return id, ok
}

// ConnOf returns the live connection of a player, or false when offline.
func (r *Registry) ConnOf(playerID int) (*network.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.playerToConn[playerID]
	return conn, ok
}

// Unregister removes the session owned by a connection. Idempotent: a
// connection without a session is a no-op.
func (r *Registry) Unregister(conn *network.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	playerID, ok := r.connToPlayer[conn]
	if !ok {
		return
	}

	delete(r.connToPlayer, conn)
	delete(r.playerToConn, playerID)

	log.Debug().Int("player_id", playerID).Msg("session unregistered")
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.playerToConn)
}

// OnlinePlayers returns a snapshot of online player ids.
func (r *Registry) OnlinePlayers() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]int, 0, len(r.playerToConn))
	for id := range r.playerToConn {
		ids = append(ids, id)
	}
	return ids
}

// Broadcast sends a packet to every online player's connection. A failed
// write on one connection never aborts delivery to the rest.
func (r *Registry) Broadcast(p protocol.Packet) {
	r.mu.Lock()
	conns := make([]*network.Connection, 0, len(r.playerToConn))
	for _, c := range r.playerToConn {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		if err := c.WritePacket(p); err != nil {
			log.Debug().Err(err).Msg("session broadcast write failed")
		}
	}
}
