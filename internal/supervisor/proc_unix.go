//go:build unix

package supervisor

import (
	"errors"
	"syscall"
)

// procAttr puts each child in its own process group so a stop can
// signal the whole tree, shell wrappers included.
func procAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// terminateGroup asks a child's process group to exit.
func terminateGroup(pid int) {
	syscall.Kill(-pid, syscall.SIGTERM)
}

// killGroup forcibly ends a child's process group.
func killGroup(pid int) {
	syscall.Kill(-pid, syscall.SIGKILL)
}

// processAlive is the kill-0 liveness probe. EPERM means the process
// exists but belongs to someone else; still alive.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
