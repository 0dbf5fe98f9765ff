package supervisor

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const controlTimeout = 5 * time.Second

const controlUsage = `Commands:
  status              Show all agent statuses
  start <agent-id>    Start an agent
  stop <agent-id>     Stop an agent
  restart <agent-id>  Restart an agent
  shutdown            Shutdown entire system
`

// ControlPath is the fleet control socket under the master state dir.
func (s *Supervisor) ControlPath() string {
	return filepath.Join(s.masterDir(), "control.sock")
}

// ServeControl answers operator commands on the unix control socket
// until ctx is cancelled. A "shutdown" command acknowledges, then calls
// onShutdown to begin the cascade.
func (s *Supervisor) ServeControl(ctx context.Context, onShutdown func()) error {
	path := s.ControlPath()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale control socket: %v", err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("listen control socket: %v", err)
	}
	s.log.Infof("Control server listening on %s", path)

	go func() {
		<-ctx.Done()
		ln.Close()
		os.Remove(path)
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("accept control connection: %v", err)
			}
		}
		go s.handleControl(conn, onShutdown)
	}
}

// handleControl serves one zapctl connection: read the command (the
// client half-closes after sending), execute, write the reply.
func (s *Supervisor) handleControl(conn net.Conn, onShutdown func()) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(controlTimeout))
	data, _ := io.ReadAll(io.LimitReader(conn, 4096))
	line := strings.TrimSpace(string(data))
	if line == "" {
		return
	}

	resp := s.execControl(line, onShutdown)
	conn.SetWriteDeadline(time.Now().Add(controlTimeout))
	io.WriteString(conn, resp)
}

func (s *Supervisor) execControl(line string, onShutdown func()) string {
	parts := strings.Fields(line)
	cmd := parts[0]
	var arg string
	if len(parts) > 1 {
		arg = parts[1]
	}

	switch {
	case cmd == "status":
		return s.StatusTable() + "\n"

	case cmd == "start" && arg != "":
		if !s.has(arg) {
			return fmt.Sprintf("Unknown agent: %s\n", arg)
		}
		if err := s.Start(arg); err != nil {
			return fmt.Sprintf("Failed to start %s: %v\n", arg, err)
		}
		return fmt.Sprintf("Started %s\n", arg)

	case cmd == "stop" && arg != "":
		if !s.has(arg) {
			return fmt.Sprintf("Unknown agent: %s\n", arg)
		}
		if err := s.Stop(arg); err != nil {
			return fmt.Sprintf("Failed to stop %s: %v\n", arg, err)
		}
		return fmt.Sprintf("Stopped %s\n", arg)

	case cmd == "restart" && arg != "":
		if !s.has(arg) {
			return fmt.Sprintf("Unknown agent: %s\n", arg)
		}
		if err := s.Restart(arg); err != nil {
			return fmt.Sprintf("Failed to restart %s: %v\n", arg, err)
		}
		return fmt.Sprintf("Restarted %s\n", arg)

	case cmd == "shutdown":
		go onShutdown()
		return "Shutdown initiated\n"

	default:
		return controlUsage
	}
}
