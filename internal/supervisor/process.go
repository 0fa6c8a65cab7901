package supervisor

import (
	"os/exec"
)

// osCmd adapts *exec.Cmd to the spawnedCmd interface.
type osCmd struct {
	cmd *exec.Cmd
}

func (c *osCmd) Kill() error {
	if c.cmd.Process == nil {
		return nil
	}
	return c.cmd.Process.Kill()
}

// startOSProcess launches the executable detached from any request context.
// Termination is handled explicitly by Terminate, never by context
// cancellation, so a completing request cannot take a game server with it.
func startOSProcess(exe string, args []string) (spawnedCmd, int, error) {
	cmd := exec.Command(exe, args...)
	if err := cmd.Start(); err != nil {
		return nil, 0, err
	}
	return &osCmd{cmd: cmd}, cmd.Process.Pid, nil
}
