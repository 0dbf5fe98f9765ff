// Package supervisor spawns and babysits the fleet: infrastructure
// first (relay, mint), then the user agents, each in its own process
// group with captured logs, a restart policy, and crash throttling. A
// unix control socket takes operator commands and a pids snapshot lets
// a restarted supervisor adopt children that survived it.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zapempire/economy-engine/internal/config"
)

// Child lifecycle states.
const (
	StateStopped  = "STOPPED"
	StateStarting = "STARTING"
	StateRunning  = "RUNNING"
)

// Lifecycle event types sent to the Notify hook.
const (
	EventSpawned   = "spawned"
	EventExited    = "exited"
	EventRestarted = "restarted"
	EventThrottled = "throttled"
)

const (
	monitorInterval = 2 * time.Second
	stableAfter     = 60 * time.Second

	stopTimeout = 10 * time.Second
	killTimeout = 5 * time.Second

	probeInterval = time.Second
	probeTimeout  = 60 * time.Second
	staggerDelay  = 500 * time.Millisecond

	restartWindow    = 5 * time.Minute
	restartWindowMax = 10
	backoffStart     = time.Second
	backoffCap       = 16 * time.Second

	// Exit code recorded for adopted children that vanish between
	// liveness probes; their real code was reaped by init.
	adoptedExitCode = -1
)

// Event is a fleet lifecycle transition, broadcast to API observers.
type Event struct {
	Type      string `json:"type"`
	AgentID   string `json:"agentId"`
	Name      string `json:"name"`
	PID       int    `json:"pid,omitempty"`
	ExitCode  int    `json:"exitCode"`
	Detail    string `json:"detail,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ChildStatus is one child's runtime state for the status table and API.
type ChildStatus struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	State     string `json:"state"`
	PID       int    `json:"pid,omitempty"`
	UptimeSec int64  `json:"uptimeSec"`
	Restarts  int    `json:"restarts"`
	Infra     bool   `json:"infra,omitempty"`
}

// procHandle tracks one spawned process instance; code is valid once
// done is closed.
type procHandle struct {
	cmd  *exec.Cmd
	done chan struct{}
	code int
}

// child is a manifest entry plus its runtime state. proc is nil for
// adopted children, which are liveness-polled instead of reaped.
type child struct {
	entry ManifestEntry

	state        string
	pid          int
	proc         *procHandle
	startedAt    time.Time
	restartCount int
	backoff      time.Duration
	restarts     []time.Time

	stdout, stderr *os.File
}

// Config assembles a supervisor.
type Config struct {
	Root     string // project root; children run with this cwd
	Manifest Manifest
	Settings config.Config
	Notify   func(Event) // optional lifecycle hook
	Log      *logrus.Entry
}

// Supervisor owns the fleet's process table.
type Supervisor struct {
	root     string
	settings config.Config
	notify   func(Event)
	log      *logrus.Entry

	// Timing knobs, settable in tests.
	backoff0   time.Duration
	backoffMax time.Duration
	stopWait   time.Duration
	killWait   time.Duration
	probeWait  time.Duration
	stagger    time.Duration
	restartGap time.Duration

	mu       sync.Mutex
	children map[string]*child
	order    []string
	running  bool
}

// New builds a supervisor from a loaded manifest and creates its state
// and log directories.
func New(cfg Config) (*Supervisor, error) {
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Supervisor{
		root:       cfg.Root,
		settings:   cfg.Settings,
		notify:     cfg.Notify,
		log:        cfg.Log,
		backoff0:   backoffStart,
		backoffMax: backoffCap,
		stopWait:   stopTimeout,
		killWait:   killTimeout,
		probeWait:  probeTimeout,
		stagger:    staggerDelay,
		restartGap: time.Second,
		children:   make(map[string]*child, len(cfg.Manifest.Agents)),
	}
	for _, e := range cfg.Manifest.Agents {
		s.children[e.ID] = &child{
			entry:   e,
			state:   StateStopped,
			backoff: s.backoff0,
		}
		s.order = append(s.order, e.ID)
	}

	if err := os.MkdirAll(s.masterDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create master dir: %v", err)
	}
	if err := os.MkdirAll(s.path("logs"), 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %v", err)
	}
	return s, nil
}

// path resolves a project-relative path against the root.
func (s *Supervisor) path(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(s.root, rel)
}

func (s *Supervisor) masterDir() string {
	return s.path(filepath.Join(s.settings.DataDir, "system-master"))
}

func (s *Supervisor) pidsPath() string {
	return filepath.Join(s.masterDir(), "pids.json")
}

// StartAll brings the fleet up: adopt survivors, spawn infrastructure,
// probe its ports, then spawn agents with a stagger.
func (s *Supervisor) StartAll(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.recoverPids()

	for _, id := range s.order {
		c := s.children[id]
		if c.entry.Infra && s.stateOf(id) == StateStopped {
			if err := s.spawnAs(id, EventSpawned); err != nil {
				s.log.Warnf("Spawn %s: %v", id, err)
			}
		}
	}

	probes := []struct{ label, rawURL string }{
		{"relay", s.settings.RelayURL},
		{"mint", s.settings.MintURL},
	}
	for _, p := range probes {
		addr, err := config.HostPort(p.rawURL)
		if err != nil {
			s.log.Warnf("Probe %s: %v", p.label, err)
			continue
		}
		s.log.Infof("Waiting for %s (%s)...", p.label, addr)
		if s.waitForReady(ctx, addr) {
			s.log.Infof("%s is ready", p.label)
		} else {
			s.log.Warnf("%s not responding on %s, proceeding anyway", p.label, addr)
		}
	}

	for _, id := range s.order {
		c := s.children[id]
		if c.entry.Infra || s.stateOf(id) != StateStopped {
			continue
		}
		if err := s.spawnAs(id, EventSpawned); err != nil {
			s.log.Warnf("Spawn %s: %v", id, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.stagger):
		}
	}

	s.log.Info("All agents started")
	return nil
}

// waitForReady polls a TCP address until it accepts or the probe window
// closes.
func (s *Supervisor) waitForReady(ctx context.Context, addr string) bool {
	deadline := time.Now().Add(s.probeWait)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, probeInterval)
		if err == nil {
			conn.Close()
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(probeInterval):
		}
	}
	return false
}

// Monitor polls running children, applying restart policy to exits and
// resetting backoff after stable runtime. Runs until ctx is cancelled.
func (s *Supervisor) Monitor(ctx context.Context) {
	t := time.NewTicker(monitorInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.sweep()
		}
	}
}

// sweep is one monitor pass.
func (s *Supervisor) sweep() {
	type exit struct {
		id   string
		code int
	}
	var exits []exit

	s.mu.Lock()
	for _, id := range s.order {
		c := s.children[id]
		if c.state != StateRunning {
			continue
		}
		if c.proc != nil {
			select {
			case <-c.proc.done:
				exits = append(exits, exit{id, c.proc.code})
				continue
			default:
			}
		} else if !processAlive(c.pid) {
			exits = append(exits, exit{id, adoptedExitCode})
			continue
		}
		if time.Since(c.startedAt) > stableAfter {
			c.backoff = s.backoff0
		}
	}
	s.mu.Unlock()

	for _, e := range exits {
		s.handleExit(e.id, e.code)
	}
}

// handleExit records a crash and applies the child's restart policy.
func (s *Supervisor) handleExit(id string, code int) {
	s.mu.Lock()
	c := s.children[id]
	if c == nil || c.state != StateRunning {
		s.mu.Unlock()
		return
	}
	pid := c.pid
	name := c.entry.Name
	c.state = StateStopped
	c.pid = 0
	c.proc = nil
	stdout, stderr := c.stdout, c.stderr
	c.stdout, c.stderr = nil, nil

	restart := c.entry.Restart == RestartAlways ||
		(c.entry.Restart == RestartOnFailure && code != 0)
	throttled := false
	var delay time.Duration
	if restart {
		now := time.Now()
		keep := c.restarts[:0]
		for _, ts := range c.restarts {
			if now.Sub(ts) < restartWindow {
				keep = append(keep, ts)
			}
		}
		c.restarts = keep
		if len(c.restarts) >= restartWindowMax {
			restart = false
			throttled = true
		} else {
			c.restartCount++
			delay = c.backoff
			c.backoff *= 2
			if c.backoff > s.backoffMax {
				c.backoff = s.backoffMax
			}
			c.restarts = append(c.restarts, now)
		}
	}
	count := c.restartCount
	policy := c.entry.Restart
	s.mu.Unlock()

	closeLogs(stdout, stderr)
	s.savePids()
	s.log.Warnf("%s exited with code %d", id, code)
	s.emit(Event{Type: EventExited, AgentID: id, Name: name, PID: pid, ExitCode: code})

	switch {
	case throttled:
		s.log.Errorf("%s: restart limit exceeded (%d in %s), staying stopped",
			id, restartWindowMax, restartWindow)
		s.emit(Event{Type: EventThrottled, AgentID: id, Name: name, ExitCode: code,
			Detail: fmt.Sprintf("%d restarts in %s", restartWindowMax, restartWindow)})
	case !restart:
		s.log.Infof("%s: restart policy = %s, not restarting", id, policy)
	default:
		s.log.Infof("%s: restarting in %s (restart #%d)", id, delay, count)
		time.AfterFunc(delay, func() { s.restartNow(id) })
	}
}

// restartNow runs a scheduled restart unless the supervisor has begun
// shutting down in the meantime.
func (s *Supervisor) restartNow(id string) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return
	}
	if err := s.spawnAs(id, EventRestarted); err != nil {
		s.log.Warnf("Restart %s: %v", id, err)
	}
}

// Start spawns a stopped child.
func (s *Supervisor) Start(id string) error {
	return s.spawnAs(id, EventSpawned)
}

func (s *Supervisor) spawnAs(id, event string) error {
	s.mu.Lock()
	c, ok := s.children[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown agent %q", id)
	}
	if c.state != StateStopped {
		state := c.state
		s.mu.Unlock()
		return fmt.Errorf("%s is already %s", id, state)
	}
	c.state = StateStarting
	entry := c.entry
	s.mu.Unlock()

	fail := func(err error) error {
		s.mu.Lock()
		c.state = StateStopped
		s.mu.Unlock()
		return err
	}

	logDir := s.path(filepath.Join("logs", id))
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fail(fmt.Errorf("create log dir: %v", err))
	}
	stdout, err := openLog(filepath.Join(logDir, "stdout.log"))
	if err != nil {
		return fail(err)
	}
	stderr, err := openLog(filepath.Join(logDir, "stderr.log"))
	if err != nil {
		stdout.Close()
		return fail(err)
	}
	if err := os.MkdirAll(s.path(s.settings.AgentDataDir(id)), 0o755); err != nil {
		closeLogs(stdout, stderr)
		return fail(fmt.Errorf("create data dir: %v", err))
	}

	cmd := exec.Command(entry.Command[0], entry.Command[1:]...)
	cmd.Dir = s.root
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = s.childEnv(entry)
	cmd.SysProcAttr = procAttr()
	if err := cmd.Start(); err != nil {
		closeLogs(stdout, stderr)
		return fail(fmt.Errorf("start %s: %v", id, err))
	}

	h := &procHandle{cmd: cmd, done: make(chan struct{})}
	go func() {
		h.code = exitStatus(cmd.Wait())
		close(h.done)
	}()

	s.mu.Lock()
	c.state = StateRunning
	c.pid = cmd.Process.Pid
	c.proc = h
	c.startedAt = time.Now()
	c.stdout, c.stderr = stdout, stderr
	pid := c.pid
	s.mu.Unlock()

	s.savePids()
	s.log.WithFields(logrus.Fields{
		"agent": id,
		"name":  entry.Name,
		"pid":   pid,
	}).Info("Spawned agent")
	s.emit(Event{Type: event, AgentID: id, Name: entry.Name, PID: pid})
	return nil
}

// childEnv builds the child environment on top of the supervisor's own.
func (s *Supervisor) childEnv(entry ManifestEntry) []string {
	env := os.Environ()
	env = append(env,
		"AGENT_ID="+entry.ID,
		"DATA_DIR="+s.settings.DataDir,
	)
	if idx, ok := agentIndex(entry.ID); ok {
		env = append(env, fmt.Sprintf("AGENT_INDEX=%d", idx))
	}
	if entry.TickInterval > 0 {
		env = append(env, fmt.Sprintf("TICK_INTERVAL=%d", entry.TickInterval))
	}
	return env
}

// agentIndex extracts N from a "userN" id.
func agentIndex(id string) (int, bool) {
	const prefix = "user"
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(id[len(prefix):])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Stop terminates a child's process group: SIGTERM, then SIGKILL after
// a grace period. Stopping a stopped child is a no-op.
func (s *Supervisor) Stop(id string) error {
	s.mu.Lock()
	c, ok := s.children[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown agent %q", id)
	}
	if c.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	pid := c.pid
	proc := c.proc
	stdout, stderr := c.stdout, c.stderr
	// Flip to STOPPED first so the monitor never reads the drain as a
	// crash.
	c.state = StateStopped
	c.pid = 0
	c.proc = nil
	c.stdout, c.stderr = nil, nil
	s.mu.Unlock()

	if pid > 0 {
		s.log.Infof("Stopping %s (pid %d)...", id, pid)
		terminateGroup(pid)
		if !s.awaitExit(proc, pid, s.stopWait) {
			s.log.Warnf("%s did not stop gracefully, sending SIGKILL", id)
			killGroup(pid)
			s.awaitExit(proc, pid, s.killWait)
		}
	}

	closeLogs(stdout, stderr)
	s.savePids()
	s.log.Infof("%s stopped", id)
	return nil
}

// awaitExit waits for a child to die: on the reaper channel for spawned
// children, by liveness polling for adopted ones.
func (s *Supervisor) awaitExit(proc *procHandle, pid int, wait time.Duration) bool {
	if proc != nil {
		select {
		case <-proc.done:
			return true
		case <-time.After(wait):
			return false
		}
	}
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return !processAlive(pid)
}

// Restart stops a child, waits a beat, and starts it again.
func (s *Supervisor) Restart(id string) error {
	if err := s.Stop(id); err != nil {
		return err
	}
	time.Sleep(s.restartGap)
	return s.Start(id)
}

// Shutdown stops the fleet in reverse order: agents descending, then
// infrastructure descending. Scheduled restarts are disarmed first.
func (s *Supervisor) Shutdown() {
	s.log.Info("Initiating shutdown...")
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	for _, id := range s.stopOrder() {
		if s.stateOf(id) != StateStopped {
			if err := s.Stop(id); err != nil {
				s.log.Warnf("Stop %s: %v", id, err)
			}
		}
	}
	s.log.Info("Shutdown complete")
}

// stopOrder is the reverse startup order: non-infra ids descending by
// manifest position, then infra ids descending.
func (s *Supervisor) stopOrder() []string {
	var agents, infra []string
	for _, id := range s.order {
		if s.children[id].entry.Infra {
			infra = append(infra, id)
		} else {
			agents = append(agents, id)
		}
	}
	out := make([]string, 0, len(s.order))
	for i := len(agents) - 1; i >= 0; i-- {
		out = append(out, agents[i])
	}
	for i := len(infra) - 1; i >= 0; i-- {
		out = append(out, infra[i])
	}
	return out
}

func (s *Supervisor) stateOf(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.children[id]; ok {
		return c.state
	}
	return ""
}

func (s *Supervisor) has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.children[id]
	return ok
}

// Status reports every child in manifest order.
func (s *Supervisor) Status() []ChildStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChildStatus, 0, len(s.order))
	for _, id := range s.order {
		c := s.children[id]
		st := ChildStatus{
			ID:       id,
			Name:     c.entry.Name,
			State:    c.state,
			PID:      c.pid,
			Restarts: c.restartCount,
			Infra:    c.entry.Infra,
		}
		if c.state == StateRunning && !c.startedAt.IsZero() {
			st.UptimeSec = int64(time.Since(c.startedAt).Seconds())
		}
		out = append(out, st)
	}
	return out
}

// StatusTable formats the fleet as the operator table, sorted by id.
func (s *Supervisor) StatusTable() string {
	status := s.Status()
	sort.Slice(status, func(i, j int) bool { return status[i].ID < status[j].ID })

	var b strings.Builder
	fmt.Fprintf(&b, "%-15s %-12s %-10s %-8s %-10s %s\n",
		"Agent", "Name", "State", "PID", "Uptime", "Restarts")
	b.WriteString(strings.Repeat("-", 75))
	b.WriteByte('\n')
	for _, st := range status {
		pid := "-"
		if st.PID > 0 {
			pid = strconv.Itoa(st.PID)
		}
		uptime := ""
		if st.State == StateRunning {
			mins := st.UptimeSec / 60
			uptime = fmt.Sprintf("%dh %02dm", mins/60, mins%60)
		}
		fmt.Fprintf(&b, "%-15s %-12s %-10s %-8s %-10s %d\n",
			st.ID, st.Name, st.State, pid, uptime, st.Restarts)
	}
	return strings.TrimRight(b.String(), "\n")
}

// savePids snapshots live PIDs for crash recovery.
func (s *Supervisor) savePids() {
	type savedPid struct {
		PID       int   `json:"pid"`
		StartedAt int64 `json:"started_at"`
	}
	pids := make(map[string]savedPid)
	s.mu.Lock()
	for id, c := range s.children {
		if c.pid > 0 {
			pids[id] = savedPid{PID: c.pid, StartedAt: c.startedAt.Unix()}
		}
	}
	s.mu.Unlock()

	raw, err := json.MarshalIndent(pids, "", "  ")
	if err != nil {
		s.log.Warnf("Encode pids: %v", err)
		return
	}
	path := s.pidsPath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		s.log.Warnf("Write pids: %v", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		s.log.Warnf("Replace pids file: %v", err)
	}
}

// recoverPids adopts children from a previous supervisor run that are
// still alive; dead entries will respawn in the normal phases.
func (s *Supervisor) recoverPids() {
	raw, err := os.ReadFile(s.pidsPath())
	if err != nil {
		return
	}
	var saved map[string]struct {
		PID       int   `json:"pid"`
		StartedAt int64 `json:"started_at"`
	}
	if err := json.Unmarshal(raw, &saved); err != nil {
		s.log.Warnf("Corrupt pids file, ignoring: %v", err)
		return
	}

	for id, info := range saved {
		s.mu.Lock()
		c, ok := s.children[id]
		if !ok || info.PID <= 0 || c.state != StateStopped {
			s.mu.Unlock()
			continue
		}
		if processAlive(info.PID) {
			c.state = StateRunning
			c.pid = info.PID
			c.proc = nil
			c.startedAt = time.Unix(info.StartedAt, 0)
			if info.StartedAt <= 0 {
				c.startedAt = time.Now()
			}
			s.mu.Unlock()
			s.log.Infof("Recovered %s (pid %d, still running)", id, info.PID)
			continue
		}
		s.mu.Unlock()
		s.log.Infof("Previous %s (pid %d) is dead, will respawn", id, info.PID)
	}
}

func (s *Supervisor) emit(ev Event) {
	if s.notify == nil {
		return
	}
	ev.Timestamp = time.Now().UTC().Format(time.RFC3339)
	s.notify(ev)
}

func openLog(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %v", path, err)
	}
	return f, nil
}

func closeLogs(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			f.Close()
		}
	}
}

// exitStatus maps a cmd.Wait error to an exit code. Signal deaths and
// wait failures count as failure.
func exitStatus(err error) int {
	if err == nil {
		return 0
	}
	if ee, ok := err.(*exec.ExitError); ok {
		return ee.ExitCode()
	}
	return -1
}
