// Package daemon tracks a background `rq serve` process through a PID file.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrAlreadyRunning is returned by Acquire when a live process owns the file.
	ErrAlreadyRunning = errors.New("server already running")
	// ErrNotRunning is returned by Stop when no live process owns the file.
	ErrNotRunning = errors.New("server not running")
)

// stopPoll is how often Stop checks whether the server has exited.
const stopPoll = 100 * time.Millisecond

// PIDFile manages the PID file of a background API server.
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Acquire records pid as the owner. A file left behind by a dead process is
// replaced; one owned by a live process is not.
func (p *PIDFile) Acquire(pid int) error {
	if owner, running := p.IsRunning(); running {
		return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, owner)
	}
	return p.WritePID(pid)
}

// Release removes the file if it still names pid.
func (p *PIDFile) Release(pid int) error {
	owner, err := p.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if owner != pid {
		return nil
	}
	return p.Remove()
}

// IsRunning reports the recorded pid and whether that process is alive.
func (p *PIDFile) IsRunning() (int, bool) {
	pid, err := p.Read()
	if err != nil {
		return 0, false
	}
	return pid, alive(pid)
}

// Stop terminates the recorded server and waits up to grace for it to exit.
// A server still alive after grace is killed, and killed reports true. The
// file is released either way.
func (p *PIDFile) Stop(grace time.Duration) (pid int, killed bool, err error) {
	pid, running := p.IsRunning()
	if !running {
		return pid, false, ErrNotRunning
	}
	if err := terminate(pid); err != nil {
		return pid, false, fmt.Errorf("terminate pid %d: %w", pid, err)
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !alive(pid) {
			return pid, false, p.Release(pid)
		}
		time.Sleep(stopPoll)
	}

	if err := kill(pid); err != nil && alive(pid) {
		return pid, false, fmt.Errorf("kill pid %d: %w", pid, err)
	}
	return pid, true, p.Release(pid)
}

// WritePID writes pid to the file.
func (p *PIDFile) WritePID(pid int) error {
	return os.WriteFile(p.Path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// Read reads the PID from the file.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}
	return pid, nil
}

// Remove deletes the PID file.
func (p *PIDFile) Remove() error {
	return os.Remove(p.Path)
}
