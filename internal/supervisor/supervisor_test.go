package supervisor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCmd stands in for a spawned process.
type fakeCmd struct {
	killCalls int
	killErr   error
}

func (c *fakeCmd) Kill() error {
	c.killCalls++
	return c.killErr
}

func newTestSupervisor(start func(exe string, args []string) (spawnedCmd, int, error)) *Supervisor {
	s := New(DefaultPortBase)
	s.startProcess = start
	return s
}

func TestSpawnPassesPortArgument(t *testing.T) {
	var gotExe string
	var gotArgs []string
	cmd := &fakeCmd{}

	s := newTestSupervisor(func(exe string, args []string) (spawnedCmd, int, error) {
		gotExe = exe
		gotArgs = args
		return cmd, 4321, nil
	})

	h, err := s.Spawn("/games/game_1/v1/server/game_server")
	require.NoError(t, err)

	assert.Equal(t, "/games/game_1/v1/server/game_server", gotExe)
	assert.Equal(t, []string{"--port", "20100"}, gotArgs)
	assert.Equal(t, 4321, h.PID)
	assert.Equal(t, DefaultPortBase, h.Port)
	assert.True(t, h.Running())
	assert.False(t, h.StartedAt().IsZero())
}

func TestSpawnFailureAbandonsPort(t *testing.T) {
	calls := 0
	s := newTestSupervisor(func(exe string, args []string) (spawnedCmd, int, error) {
		calls++
		if calls == 1 {
			return nil, 0, errors.New("no such file or directory")
		}
		return &fakeCmd{}, 1, nil
	})

	_, err := s.Spawn("/missing/game_server")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exec failed")

	// The failed spawn consumed a port; the next one moves on.
	h, err := s.Spawn("/games/game_server")
	require.NoError(t, err)
	assert.Equal(t, DefaultPortBase+1, h.Port)
}

func TestTerminate(t *testing.T) {
	cmd := &fakeCmd{}
	s := newTestSupervisor(func(exe string, args []string) (spawnedCmd, int, error) {
		return cmd, 99, nil
	})

	h, err := s.Spawn("/games/game_server")
	require.NoError(t, err)

	s.Terminate(h)
	assert.Equal(t, 1, cmd.killCalls)
	assert.False(t, h.Running())

	// Second terminate is a no-op.
	s.Terminate(h)
	assert.Equal(t, 1, cmd.killCalls)
}

func TestTerminateNilAndDeadHandles(t *testing.T) {
	s := New(DefaultPortBase)

	// Must not panic.
	s.Terminate(nil)
	s.Terminate(&Handle{PID: 1, Port: 20100})

	// A kill failure still marks the handle as stopped.
	cmd := &fakeCmd{killErr: errors.New("process already finished")}
	s2 := newTestSupervisor(func(exe string, args []string) (spawnedCmd, int, error) {
		return cmd, 7, nil
	})
	h, err := s2.Spawn("/games/game_server")
	require.NoError(t, err)

	s2.Terminate(h)
	assert.False(t, h.Running())
}

func TestHandleStatsUnavailableWithoutProcess(t *testing.T) {
	h := &Handle{PID: 1, Port: 20100}

	_, err := h.CPUPercent()
	assert.Error(t, err)

	_, err = h.MemoryMB()
	assert.Error(t, err)
}
