// zapctl is the operator CLI for the fleet supervisor: it finds the
// project root, talks to the control socket, and tails agent logs.
package main

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zapempire/economy-engine/internal/config"
)

const socketTimeout = 10 * time.Second

func main() {
	root := &cobra.Command{
		Use:   "zapctl",
		Short: "Control the Zap Empire agent fleet",
		Long: "zapctl talks to the system-master control socket. Run it from\n" +
			"anywhere inside a project checkout; it finds the root by looking\n" +
			"for config/agents.json.",
		SilenceUsage: true,
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show all agent statuses",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return sendCommand("status")
			},
		},
		&cobra.Command{
			Use:   "start <agent-id>",
			Short: "Start an agent",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return sendCommand("start " + args[0])
			},
		},
		&cobra.Command{
			Use:   "stop <agent-id>",
			Short: "Stop an agent",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return sendCommand("stop " + args[0])
			},
		},
		&cobra.Command{
			Use:   "restart <agent-id>",
			Short: "Restart an agent",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return sendCommand("restart " + args[0])
			},
		},
		newShutdownCmd(),
		newLogsCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newShutdownCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "shutdown",
		Short: "Shutdown the entire system",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				fmt.Print("Shutdown the entire fleet? [y/N] ")
				line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
				if strings.ToLower(strings.TrimSpace(line)) != "y" {
					fmt.Println("Aborted")
					return nil
				}
			}
			return sendCommand("shutdown")
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newLogsCmd() *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "logs <agent-id>",
		Short: "Show an agent's stdout log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := config.FindRoot(".")
			if err != nil {
				return err
			}
			path := filepath.Join(root, "logs", args[0], "stdout.log")
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("no logs for %s (%s)", args[0], path)
			}

			tailArgs := []string{"-n", "50"}
			if follow {
				tailArgs = append(tailArgs, "-f")
			}
			tail := exec.Command("tail", append(tailArgs, path)...)
			tail.Stdout = os.Stdout
			tail.Stderr = os.Stderr
			return tail.Run()
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "follow the log")
	return cmd
}

// sendCommand writes one line to the control socket, half-closes the
// write side, and prints the supervisor's full response.
func sendCommand(line string) error {
	root, err := config.FindRoot(".")
	if err != nil {
		return err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return err
	}
	path := filepath.Join(root, cfg.DataDir, "system-master", "control.sock")

	conn, err := net.DialTimeout("unix", path, socketTimeout)
	if err != nil {
		return fmt.Errorf("is the system-master running? connect %s: %v", path, err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(socketTimeout))
	if _, err := io.WriteString(conn, line+"\n"); err != nil {
		return fmt.Errorf("send command: %v", err)
	}
	// The supervisor reads until EOF on our side before answering.
	if uc, ok := conn.(*net.UnixConn); ok {
		uc.CloseWrite()
	}

	resp, err := io.ReadAll(conn)
	if err != nil {
		return fmt.Errorf("read response: %v", err)
	}
	fmt.Print(string(resp))
	return nil
}
