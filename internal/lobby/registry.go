package lobby

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/parlor-project/parlor/internal/events"
	"github.com/parlor-project/parlor/internal/supervisor"
)

// Validation failures surfaced to clients as {ok:false, msg} payloads.
var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomFull       = errors.New("room full")
	ErrNotHost        = errors.New("only host can start the game")
	ErrTooFewPlayers  = errors.New("need at least 2 players")
	ErrAlreadyStarted = errors.New("game already started")
)

// Spawner is the slice of the game-process supervisor the registry needs.
type Spawner interface {
	Spawn(executable string) (*supervisor.Handle, error)
	Terminate(h *supervisor.Handle)
}

// ResolveArtifact maps a game id to the game-server executable path for its
// latest published version. Supplied by the catalog collaborator.
type ResolveArtifact func(gameID int) (string, error)

// StartResult describes a successfully started room, used to build the
// per-member start pushes.
type StartResult struct {
	RoomID  int
	GameID  int
	Port    int
	HostID  int
	Members []int
}

// Registry owns every room. All operations are check-then-act sequences, so
// each runs as one atomic step under the registry mutex; two concurrent
// joins can never both observe a free slot in a nearly-full room.
type Registry struct {
	mu      sync.Mutex
	rooms   map[int]*Room
	nextID  int
	spawner Spawner
	bus     *events.EventBus
}

// NewRegistry creates an empty room registry.
func NewRegistry(spawner Spawner, bus *events.EventBus) *Registry {
	return &Registry{
		rooms:   make(map[int]*Room),
		nextID:  1,
		spawner: spawner,
		bus:     bus,
	}
}

// CreateRoom allocates a new Open room with the host as its only member.
func (r *Registry) CreateRoom(ctx context.Context, gameID, hostID, maxPlayers int) Snapshot {
	r.mu.Lock()
	room := &Room{
		id:         r.nextID,
		gameID:     gameID,
		hostID:     hostID,
		maxPlayers: maxPlayers,
		players:    []int{hostID},
		state:      StateOpen,
	}
	r.nextID++
	r.rooms[room.id] = room
	snap := room.snapshot()
	r.mu.Unlock()

	log.Info().
		Int("room_id", snap.RoomID).
		Int("game_id", gameID).
		Int("host_id", hostID).
		Msg("room created")

	r.emit(ctx, events.EventRoomCreated, events.RoomPayload{
		RoomID: snap.RoomID, GameID: gameID, HostID: hostID, Members: 1,
	})
	return snap
}

// Join adds a player to a room. Joining a room you are already in is
// idempotent and succeeds with the current membership.
func (r *Registry) Join(ctx context.Context, roomID, playerID int) (Snapshot, error) {
	r.mu.Lock()
	room, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return Snapshot{}, ErrRoomNotFound
	}

	if !room.contains(playerID) {
		if len(room.players) >= room.maxPlayers {
			r.mu.Unlock()
			return Snapshot{}, ErrRoomFull
		}
		room.players = append(room.players, playerID)
	}
	snap := room.snapshot()
	r.mu.Unlock()

	r.emit(ctx, events.EventRoomJoined, events.RoomPayload{
		RoomID: roomID, GameID: snap.GameID, HostID: snap.HostID,
		PlayerID: playerID, Members: len(snap.Players),
	})
	return snap, nil
}

// StartGame spawns the room's game-server process and flips the room to
// Active. Validation, spawn and state change happen under one lock so a
// concurrent departure cannot race the member-count check. On any failure
// the room stays Open for a client retry.
func (r *Registry) StartGame(ctx context.Context, roomID, requesterID int, resolve ResolveArtifact) (StartResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return StartResult{}, ErrRoomNotFound
	}
	if room.hostID != requesterID {
		return StartResult{}, ErrNotHost
	}
	if len(room.players) < 2 {
		return StartResult{}, ErrTooFewPlayers
	}
	if room.state == StateActive {
		return StartResult{}, ErrAlreadyStarted
	}

	executable, err := resolve(room.gameID)
	if err != nil {
		return StartResult{}, err
	}

	handle, err := r.spawner.Spawn(executable)
	if err != nil {
		return StartResult{}, err
	}

	room.proc = handle
	room.state = StateActive

	result := StartResult{
		RoomID:  room.id,
		GameID:  room.gameID,
		Port:    handle.Port,
		HostID:  room.hostID,
		Members: append([]int(nil), room.players...),
	}

	log.Info().
		Int("room_id", room.id).
		Int("pid", handle.PID).
		Int("port", handle.Port).
		Msg("game started")

	r.emit(ctx, events.EventGameStarted, events.GameStartedPayload{
		RoomID: room.id, GameID: room.gameID, Port: handle.Port, PID: handle.PID,
	})
	return result, nil
}

// RemoveMember drops a player from the room holding them, if any. When the
// last member departs, the owned game-server process is terminated and the
// room is deleted; terminate-then-delete happens exactly once. A non-host
// departure never transfers the host role.
func (r *Registry) RemoveMember(ctx context.Context, playerID int) {
	r.mu.Lock()
	var room *Room
	for _, candidate := range r.rooms {
		if candidate.contains(playerID) {
			room = candidate
			break
		}
	}
	if room == nil {
		r.mu.Unlock()
		return
	}

	room.remove(playerID)

	if len(room.players) > 0 {
		remaining := len(room.players)
		roomID := room.id
		r.mu.Unlock()
		log.Info().
			Int("room_id", roomID).
			Int("player_id", playerID).
			Int("remaining", remaining).
			Msg("player left room")
		return
	}

	delete(r.rooms, room.id)
	proc := room.proc
	room.proc = nil
	snap := room.snapshot()
	r.mu.Unlock()

	if proc != nil {
		r.spawner.Terminate(proc)
	}

	log.Info().Int("room_id", snap.RoomID).Msg("room removed")

	r.emit(ctx, events.EventRoomRemoved, events.RoomPayload{
		RoomID: snap.RoomID, GameID: snap.GameID, HostID: snap.HostID,
		PlayerID: playerID, Members: 0,
	})
}

// Get returns a snapshot of one room.
func (r *Registry) Get(roomID int) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return Snapshot{}, false
	}
	return room.snapshot(), true
}

// RoomOf returns a snapshot of the room holding the player, if any.
func (r *Registry) RoomOf(playerID int) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, room := range r.rooms {
		if room.contains(playerID) {
			return room.snapshot(), true
		}
	}
	return Snapshot{}, false
}

// Snapshots returns a copy of every room, for the status surfaces.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Snapshot, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room.snapshot())
	}
	return out
}

// Counts returns the total and Active room counts.
func (r *Registry) Counts() (total, active int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, room := range r.rooms {
		if room.state == StateActive {
			active++
		}
	}
	return len(r.rooms), active
}

// ProcessStat describes one running game-server process with live resource
// usage, for the status surfaces.
type ProcessStat struct {
	RoomID     int     `json:"room_id"`
	GameID     int     `json:"game_id"`
	PID        int     `json:"pid"`
	Port       int     `json:"port"`
	Running    bool    `json:"running"`
	UptimeSec  int64   `json:"uptime_sec"`
	CPUPercent float64 `json:"cpu_percent"`
	MemoryMB   float64 `json:"memory_mb"`
}

// ProcessStats returns resource usage for every spawned game-server process.
// Handles are collected under the lock, then queried outside it since the
// per-process probes can be slow.
func (r *Registry) ProcessStats() []ProcessStat {
	type entry struct {
		roomID, gameID int
		handle         *supervisor.Handle
	}

	r.mu.Lock()
	entries := make([]entry, 0, len(r.rooms))
	for _, room := range r.rooms {
		if room.proc != nil {
			entries = append(entries, entry{roomID: room.id, gameID: room.gameID, handle: room.proc})
		}
	}
	r.mu.Unlock()

	out := make([]ProcessStat, 0, len(entries))
	for _, e := range entries {
		stat := ProcessStat{
			RoomID:  e.roomID,
			GameID:  e.gameID,
			PID:     e.handle.PID,
			Port:    e.handle.Port,
			Running: e.handle.Running(),
		}
		stat.UptimeSec = int64(time.Since(e.handle.StartedAt()).Seconds())
		if cpu, err := e.handle.CPUPercent(); err == nil {
			stat.CPUPercent = cpu
		}
		if mem, err := e.handle.MemoryMB(); err == nil {
			stat.MemoryMB = mem
		}
		out = append(out, stat)
	}
	return out
}

func (r *Registry) emit(ctx context.Context, t events.EventType, payload any) {
	if r.bus == nil {
		return
	}
	r.bus.Emit(ctx, events.Event{Type: t, Source: "lobby", Payload: payload})
}
