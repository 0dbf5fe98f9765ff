// Package sandbox vets generated programs before they are listed or
// resold: a static screen, a syntax check, and a short restricted run
// that must exit cleanly and print something.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Source size bounds in bytes. Anything outside fails the screen.
const (
	minSourceBytes = 100
	maxSourceBytes = 50_000
)

const defaultTimeout = 5 * time.Second

// forbiddenPatterns fail a program outright before it ever runs.
var forbiddenPatterns = []string{
	"os.system", "subprocess", "socket", "http.server",
	"shutil.rmtree", "shutil.move", "os.remove", "os.unlink",
	"__import__", "eval(", "exec(",
}

// Sandbox runs candidate programs under python3 with a stripped
// environment, a scratch HOME, and a hard timeout.
type Sandbox struct {
	timeout time.Duration
	python  string
	log     *logrus.Entry
}

// New builds a sandbox. timeout bounds both the syntax check and the
// run; zero or negative means 5 seconds.
func New(timeout time.Duration, log *logrus.Entry) *Sandbox {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Sandbox{timeout: timeout, python: "python3", log: log}
}

// Available reports whether the python3 interpreter is on PATH. Without
// it every candidate fails, so callers may want to warn at startup.
func Available() bool {
	_, err := exec.LookPath("python3")
	return err == nil
}

// Test screens, compiles, and runs source. It passes only if the size
// and pattern screens clear, the syntax check succeeds, and the program
// exits zero within the timeout having printed to stdout.
func (s *Sandbox) Test(ctx context.Context, source string) bool {
	if len(source) < minSourceBytes || len(source) > maxSourceBytes {
		s.log.WithField("bytes", len(source)).Debug("Source size out of range")
		return false
	}
	for _, pattern := range forbiddenPatterns {
		if strings.Contains(source, pattern) {
			s.log.WithField("pattern", pattern).Debug("Forbidden pattern found")
			return false
		}
	}

	dir, err := os.MkdirTemp("", "sandbox-")
	if err != nil {
		s.log.WithError(err).Warn("Sandbox temp dir failed")
		return false
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "program.py")
	if err := os.WriteFile(path, []byte(source), 0o600); err != nil {
		s.log.WithError(err).Warn("Sandbox write failed")
		return false
	}

	if !s.compiles(ctx, dir, path) {
		return false
	}
	return s.runs(ctx, dir, path)
}

func (s *Sandbox) compiles(ctx context.Context, dir, path string) bool {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.python, "-m", "py_compile", path)
	cmd.Dir = dir
	cmd.Env = restrictedEnv(dir)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		s.log.WithField("stderr", truncate(stderr.String())).Debug("Syntax check failed")
		return false
	}
	return true
}

func (s *Sandbox) runs(ctx context.Context, dir, path string) bool {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.python, path)
	cmd.Dir = dir
	cmd.Env = restrictedEnv(dir)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.log.Debug("Program timed out")
		} else {
			s.log.WithFields(logrus.Fields{
				"error":  err,
				"stderr": truncate(stderr.String()),
			}).Debug("Program exited uncleanly")
		}
		return false
	}
	if stdout.Len() == 0 {
		s.log.Debug("Program produced no output")
		return false
	}
	return true
}

// restrictedEnv is the minimal environment programs run under: the host
// PATH, a scratch HOME, and a fixed locale.
func restrictedEnv(home string) []string {
	path := os.Getenv("PATH")
	if path == "" {
		path = "/usr/bin:/bin"
	}
	return []string{
		"PATH=" + path,
		"HOME=" + home,
		"LANG=en_US.UTF-8",
	}
}

func truncate(s string) string {
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
