//go:build !windows

package backend

import (
	"errors"
	"syscall"
)

// sysProcAttr puts the child in its own process group so the whole tree the
// bot spawns can be signalled at once.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// interruptGroup sends SIGINT then SIGTERM to the process group. If the group
// cannot be signalled it falls back to SIGTERM on the leader alone.
func interruptGroup(pid int) error {
	err := syscall.Kill(-pid, syscall.SIGINT)
	if err == nil {
		err = syscall.Kill(-pid, syscall.SIGTERM)
	}
	if err == nil {
		return nil
	}
	if leaderErr := syscall.Kill(pid, syscall.SIGTERM); leaderErr != nil {
		return errors.Join(err, leaderErr)
	}
	return nil
}

// killGroup sends SIGKILL to the process group, or to the leader if the group
// is gone.
func killGroup(pid int) error {
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		return syscall.Kill(pid, syscall.SIGKILL)
	}
	return nil
}
