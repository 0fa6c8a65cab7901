// Package lobby implements the room registry and the per-room state
// machine: membership, host rules, and the hand-off to the game-process
// supervisor when a room goes live.
package lobby

import (
	"github.com/parlor-project/parlor/internal/supervisor"
)

// State is the lifecycle state of a room. Rooms move Open -> Active and are
// then removed when the last member departs; there is no reverse
// transition.
type State int

const (
	// StateOpen accepts joins; no game-server process exists yet.
	StateOpen State = iota
	// StateActive means the game-server process has been spawned.
	StateActive
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Room groups players around one game and, once started, one spawned
// game-server process. All fields are guarded by the owning registry's
// mutex; rooms never escape the registry except as snapshots.
type Room struct {
	id         int
	gameID     int
	hostID     int
	maxPlayers int
	players    []int
	state      State
	proc       *supervisor.Handle
}

// contains reports whether the player is a member.
func (r *Room) contains(playerID int) bool {
	for _, p := range r.players {
		if p == playerID {
			return true
		}
	}
	return false
}

// remove drops the player from the member list, preserving join order.
func (r *Room) remove(playerID int) {
	kept := r.players[:0]
	for _, p := range r.players {
		if p != playerID {
			kept = append(kept, p)
		}
	}
	r.players = kept
}

// Snapshot is an immutable copy of a room's state, safe to use outside the
// registry lock.
type Snapshot struct {
	RoomID     int    `json:"room_id"`
	GameID     int    `json:"game_id"`
	HostID     int    `json:"host_id"`
	MaxPlayers int    `json:"max_players"`
	Players    []int  `json:"players"`
	State      string `json:"state"`
	Port       int    `json:"server_port,omitempty"`
	PID        int    `json:"server_pid,omitempty"`
}

// snapshot copies the room under the registry lock.
func (r *Room) snapshot() Snapshot {
	s := Snapshot{
		RoomID:     r.id,
		GameID:     r.gameID,
		HostID:     r.hostID,
		MaxPlayers: r.maxPlayers,
		Players:    append([]int(nil), r.players...),
		State:      r.state.String(),
	}
	if r.proc != nil {
		s.Port = r.proc.Port
		s.PID = r.proc.PID
	}
	return s
}
