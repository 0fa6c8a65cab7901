// Package supervisor manages the lifecycle of per-room game-server
// processes: port allocation, spawning, and forceful termination.
package supervisor

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/parlor-project/parlor/internal/util"
)

// Handle tracks one spawned game-server process. It is owned exclusively by
// the room it was started for.
type Handle struct {
	mu sync.Mutex

	PID  int
	Port int

	cmd       spawnedCmd
	proc      *process.Process
	startedAt time.Time
	running   bool
}

// spawnedCmd is the subset of *exec.Cmd the handle needs. Narrowing the
// surface keeps termination testable without forking real processes.
type spawnedCmd interface {
	Kill() error
}

// Running reports whether the process is still considered running. The
// supervisor does not watch for process exit, so this flips to false only
// after Terminate; a crashed game server keeps reporting true until its
// room is torn down.
func (h *Handle) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// StartedAt returns when the process was spawned.
func (h *Handle) StartedAt() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.startedAt
}

// CPUPercent returns the CPU usage of the process, for status surfaces.
func (h *Handle) CPUPercent() (float64, error) {
	h.mu.Lock()
	proc := h.proc
	h.mu.Unlock()

	if proc == nil {
		return 0, fmt.Errorf("process not available")
	}
	return proc.CPUPercent()
}

// MemoryMB returns the resident memory of the process in megabytes.
func (h *Handle) MemoryMB() (float64, error) {
	h.mu.Lock()
	proc := h.proc
	h.mu.Unlock()

	if proc == nil {
		return 0, fmt.Errorf("process not available")
	}

	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return float64(memInfo.RSS) / (1024 * 1024), nil
}

// Supervisor spawns and terminates game-server processes. One instance is
// shared by all connection workers; the port allocator serializes port
// handout internally.
type Supervisor struct {
	ports  *PortAllocator
	logger zerolog.Logger

	// startProcess launches the executable; swappable in tests.
	startProcess func(exe string, args []string) (spawnedCmd, int, error)
}

// New creates a supervisor allocating ports from the given base.
func New(portBase int) *Supervisor {
	return &Supervisor{
		ports:        NewPortAllocator(portBase),
		logger:       util.ComponentLogger("supervisor"),
		startProcess: startOSProcess,
	}
}

// Spawn allocates the next port and launches the game-server executable
// with the port as a command-line argument. On failure the allocated port
// is abandoned, not reused.
func (s *Supervisor) Spawn(executable string) (*Handle, error) {
	port := s.ports.Next()
	args := []string{"--port", strconv.Itoa(port)}

	s.logger.Info().
		Str("executable", executable).
		Int("port", port).
		Msg("starting game server process")

	cmd, pid, err := s.startProcess(executable, args)
	if err != nil {
		return nil, fmt.Errorf("exec failed for %s: %w", executable, err)
	}

	h := &Handle{
		PID:       pid,
		Port:      port,
		cmd:       cmd,
		startedAt: time.Now(),
		running:   true,
	}

	// Best effort: the gopsutil handle only feeds status surfaces.
	if proc, perr := process.NewProcess(int32(pid)); perr == nil {
		h.proc = proc
	}

	s.logger.Info().Int("pid", pid).Int("port", port).Msg("game server started")
	return h, nil
}

// Terminate sends a forceful stop signal to the process. Fire and forget:
// the kill is not verified and the child is never waited on, so an already
// dead process is simply a failed signal. Safe to call on a handle that was
// never running.
func (s *Supervisor) Terminate(h *Handle) {
	if h == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return
	}
	h.running = false

	if h.cmd == nil {
		return
	}

	if err := h.cmd.Kill(); err != nil {
		s.logger.Debug().Err(err).Int("pid", h.PID).Msg("kill signal failed")
		return
	}

	s.logger.Info().Int("pid", h.PID).Int("port", h.Port).Msg("game server process killed")
}
