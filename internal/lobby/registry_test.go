package lobby

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlor-project/parlor/internal/supervisor"
)

// fakeSpawner records spawn/terminate calls without starting processes.
type fakeSpawner struct {
	mu         sync.Mutex
	spawned    []string
	terminated []*supervisor.Handle
	spawnErr   error
	nextPort   int
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{nextPort: 20100}
}

func (f *fakeSpawner) Spawn(executable string) (*supervisor.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.spawnErr != nil {
		return nil, f.spawnErr
	}
	f.spawned = append(f.spawned, executable)
	port := f.nextPort
	f.nextPort++
	return &supervisor.Handle{PID: 1000 + port, Port: port}, nil
}

func (f *fakeSpawner) Terminate(h *supervisor.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = append(f.terminated, h)
}

func (f *fakeSpawner) terminateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.terminated)
}

func resolveOK(gameID int) (string, error) {
	return "/games/server/game_server", nil
}

func TestCreateRoom(t *testing.T) {
	r := NewRegistry(newFakeSpawner(), nil)
	ctx := context.Background()

	snap := r.CreateRoom(ctx, 3, 10, 4)

	assert.Equal(t, 1, snap.RoomID)
	assert.Equal(t, 3, snap.GameID)
	assert.Equal(t, 10, snap.HostID)
	assert.Equal(t, []int{10}, snap.Players)
	assert.Equal(t, StateOpen.String(), snap.State)

	// Room ids are never reused within a run.
	second := r.CreateRoom(ctx, 3, 11, 4)
	assert.Equal(t, 2, second.RoomID)
}

func TestJoin(t *testing.T) {
	tests := []struct {
		name       string
		maxPlayers int
		setup      func(r *Registry, ctx context.Context, roomID int)
		joiner     int
		wantErr    error
		wantCount  int
	}{
		{
			name:       "join open room",
			maxPlayers: 4,
			joiner:     20,
			wantCount:  2,
		},
		{
			name:       "duplicate join is idempotent",
			maxPlayers: 4,
			setup: func(r *Registry, ctx context.Context, roomID int) {
				_, err := r.Join(ctx, roomID, 20)
				require.NoError(t, err)
			},
			joiner:    20,
			wantCount: 2,
		},
		{
			name:       "full room rejects",
			maxPlayers: 2,
			setup: func(r *Registry, ctx context.Context, roomID int) {
				_, err := r.Join(ctx, roomID, 20)
				require.NoError(t, err)
			},
			joiner:  30,
			wantErr: ErrRoomFull,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(newFakeSpawner(), nil)
			ctx := context.Background()
			room := r.CreateRoom(ctx, 1, 10, tt.maxPlayers)
			if tt.setup != nil {
				tt.setup(r, ctx, room.RoomID)
			}

			snap, err := r.Join(ctx, room.RoomID, tt.joiner)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, snap.Players, tt.wantCount)
		})
	}
}

func TestJoinUnknownRoom(t *testing.T) {
	r := NewRegistry(newFakeSpawner(), nil)
	_, err := r.Join(context.Background(), 999, 1)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestConcurrentJoinNeverExceedsCapacity(t *testing.T) {
	r := NewRegistry(newFakeSpawner(), nil)
	ctx := context.Background()
	room := r.CreateRoom(ctx, 1, 10, 4)

	const contenders = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(playerID int) {
			defer wg.Done()
			if _, err := r.Join(ctx, room.RoomID, playerID); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}(100 + i)
	}
	wg.Wait()

	// 3 free slots beyond the host.
	assert.Equal(t, 3, admitted)

	snap, ok := r.Get(room.RoomID)
	require.True(t, ok)
	assert.Len(t, snap.Players, 4)
}

func TestStartGame(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(r *Registry, ctx context.Context, roomID int)
		requester int
		wantErr   error
	}{
		{
			name: "host starts with two players",
			setup: func(r *Registry, ctx context.Context, roomID int) {
				_, err := r.Join(ctx, roomID, 20)
				require.NoError(t, err)
			},
			requester: 10,
		},
		{
			name: "non-host cannot start",
			setup: func(r *Registry, ctx context.Context, roomID int) {
				_, err := r.Join(ctx, roomID, 20)
				require.NoError(t, err)
			},
			requester: 20,
			wantErr:   ErrNotHost,
		},
		{
			name:      "solo host cannot start",
			requester: 10,
			wantErr:   ErrTooFewPlayers,
		},
		{
			name: "second start rejected",
			setup: func(r *Registry, ctx context.Context, roomID int) {
				_, err := r.Join(ctx, roomID, 20)
				require.NoError(t, err)
				_, err = r.StartGame(ctx, roomID, 10, resolveOK)
				require.NoError(t, err)
			},
			requester: 10,
			wantErr:   ErrAlreadyStarted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(newFakeSpawner(), nil)
			ctx := context.Background()
			room := r.CreateRoom(ctx, 5, 10, 4)
			if tt.setup != nil {
				tt.setup(r, ctx, room.RoomID)
			}

			result, err := r.StartGame(ctx, room.RoomID, tt.requester, resolveOK)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, room.RoomID, result.RoomID)
			assert.Equal(t, 5, result.GameID)
			assert.NotZero(t, result.Port)
			assert.ElementsMatch(t, []int{10, 20}, result.Members)

			snap, ok := r.Get(room.RoomID)
			require.True(t, ok)
			assert.Equal(t, StateActive.String(), snap.State)
			assert.Equal(t, result.Port, snap.Port)
		})
	}
}

func TestStartGameRoomStaysOpenOnFailure(t *testing.T) {
	spawner := newFakeSpawner()
	r := NewRegistry(spawner, nil)
	ctx := context.Background()

	room := r.CreateRoom(ctx, 1, 10, 4)
	_, err := r.Join(ctx, room.RoomID, 20)
	require.NoError(t, err)

	// Artifact resolution failure
	_, err = r.StartGame(ctx, room.RoomID, 10, func(int) (string, error) {
		return "", errors.New("missing game.zip on server")
	})
	require.Error(t, err)

	snap, _ := r.Get(room.RoomID)
	assert.Equal(t, StateOpen.String(), snap.State)

	// Spawn failure
	spawner.spawnErr = errors.New("exec failed")
	_, err = r.StartGame(ctx, room.RoomID, 10, resolveOK)
	require.Error(t, err)

	snap, _ = r.Get(room.RoomID)
	assert.Equal(t, StateOpen.String(), snap.State)

	// And the room can still start once the failure clears.
	spawner.spawnErr = nil
	_, err = r.StartGame(ctx, room.RoomID, 10, resolveOK)
	require.NoError(t, err)
}

func TestRemoveMember(t *testing.T) {
	spawner := newFakeSpawner()
	r := NewRegistry(spawner, nil)
	ctx := context.Background()

	room := r.CreateRoom(ctx, 1, 10, 4)
	_, err := r.Join(ctx, room.RoomID, 20)
	require.NoError(t, err)

	// Host leaving does not transfer the host role or delete the room.
	r.RemoveMember(ctx, 10)
	snap, ok := r.Get(room.RoomID)
	require.True(t, ok)
	assert.Equal(t, 10, snap.HostID)
	assert.Equal(t, []int{20}, snap.Players)

	// Last member departing deletes the room.
	r.RemoveMember(ctx, 20)
	_, ok = r.Get(room.RoomID)
	assert.False(t, ok)
}

func TestRemoveMemberTerminatesProcessExactlyOnce(t *testing.T) {
	spawner := newFakeSpawner()
	r := NewRegistry(spawner, nil)
	ctx := context.Background()

	room := r.CreateRoom(ctx, 1, 10, 4)
	_, err := r.Join(ctx, room.RoomID, 20)
	require.NoError(t, err)
	_, err = r.StartGame(ctx, room.RoomID, 10, resolveOK)
	require.NoError(t, err)

	r.RemoveMember(ctx, 10)
	assert.Equal(t, 0, spawner.terminateCount())

	r.RemoveMember(ctx, 20)
	assert.Equal(t, 1, spawner.terminateCount())

	// A straggler remove for the same player changes nothing.
	r.RemoveMember(ctx, 20)
	assert.Equal(t, 1, spawner.terminateCount())
}

func TestRemoveMemberNotInAnyRoom(t *testing.T) {
	r := NewRegistry(newFakeSpawner(), nil)
	r.CreateRoom(context.Background(), 1, 10, 4)

	// Must not panic or touch existing rooms.
	r.RemoveMember(context.Background(), 777)

	total, active := r.Counts()
	assert.Equal(t, 1, total)
	assert.Equal(t, 0, active)
}

func TestRoomOfAndSnapshots(t *testing.T) {
	r := NewRegistry(newFakeSpawner(), nil)
	ctx := context.Background()

	first := r.CreateRoom(ctx, 1, 10, 4)
	r.CreateRoom(ctx, 2, 11, 4)

	snap, ok := r.RoomOf(10)
	require.True(t, ok)
	assert.Equal(t, first.RoomID, snap.RoomID)

	_, ok = r.RoomOf(999)
	assert.False(t, ok)

	assert.Len(t, r.Snapshots(), 2)
}

func TestCounts(t *testing.T) {
	r := NewRegistry(newFakeSpawner(), nil)
	ctx := context.Background()

	open := r.CreateRoom(ctx, 1, 10, 4)
	_ = open
	started := r.CreateRoom(ctx, 1, 20, 4)
	_, err := r.Join(ctx, started.RoomID, 21)
	require.NoError(t, err)
	_, err = r.StartGame(ctx, started.RoomID, 20, resolveOK)
	require.NoError(t, err)

	total, active := r.Counts()
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, active)
}
