//go:build !windows

package daemon

import (
	"errors"

	"golang.org/x/sys/unix"
)

// alive sends pid signal 0. EPERM still means the process exists.
func alive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// terminate asks the server to shut down; `rq serve` drains on SIGTERM.
func terminate(pid int) error {
	return unix.Kill(pid, unix.SIGTERM)
}

func kill(pid int) error {
	return unix.Kill(pid, unix.SIGKILL)
}
