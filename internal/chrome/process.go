package chrome

import (
	"errors"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Profile removal is retried because OS file locks can briefly outlive
// process termination, particularly on Windows.
const (
	cleanupAttempts = 5
	cleanupBackoff  = 100 * time.Millisecond
)

// Process is a running browser child process together with the profile
// directory it exclusively owns.
type Process struct {
	cmd        *exec.Cmd
	port       int
	profileDir string
	log        *zap.Logger

	closeOnce sync.Once
}

// Pid returns the child process id, or 0 if it is gone.
func (p *Process) Pid() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Port returns the allocated debug port.
func (p *Process) Port() int {
	return p.port
}

// ProfileDir returns the isolated user-data directory.
func (p *Process) ProfileDir() string {
	return p.profileDir
}

// Close tears the process down: kill, wait, then remove the profile
// directory with retry. The order is fixed; removing the directory first
// would race the still-running browser writing into it. Cleanup failures are
// logged and swallowed, never propagated, so teardown cannot retroactively
// fail a caller's completed operation.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		if p.cmd != nil && p.cmd.Process != nil {
			if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				p.log.Warn("kill browser process", zap.Int("pid", p.Pid()), zap.Error(err))
			}
			_ = p.cmd.Wait()
		}
		p.removeProfileDir()
	})
	return nil
}

func (p *Process) removeProfileDir() {
	if p.profileDir == "" {
		return
	}

	var err error
	for attempt := 1; attempt <= cleanupAttempts; attempt++ {
		if err = os.RemoveAll(p.profileDir); err == nil {
			return
		}
		time.Sleep(time.Duration(attempt) * cleanupBackoff)
	}
	p.log.Warn("remove profile dir",
		zap.String("dir", p.profileDir),
		zap.Error(err))
}
