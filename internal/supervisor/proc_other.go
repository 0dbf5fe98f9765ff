//go:build !unix

package supervisor

import (
	"os"
	"syscall"
)

// Process-group control needs unix signal semantics; elsewhere the
// supervisor can only manage the direct child.

func procAttr() *syscall.SysProcAttr { return nil }

func terminateGroup(pid int) {
	if p, err := os.FindProcess(pid); err == nil {
		p.Kill()
	}
}

func killGroup(pid int) {
	terminateGroup(pid)
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
