package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zapempire/economy-engine/internal/config"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
}

// eventSink collects lifecycle notifications from a supervisor under test.
type eventSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *eventSink) notify(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *eventSink) count(typ string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func newTestSupervisor(t *testing.T, entries ...ManifestEntry) (*Supervisor, *eventSink) {
	t.Helper()
	sink := &eventSink{}
	s, err := New(Config{
		Root:     t.TempDir(),
		Manifest: Manifest{Agents: entries},
		Settings: config.Defaults(),
		Notify:   sink.notify,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Collapse the timing knobs so crash cycles play out in
	// milliseconds.
	s.backoff0 = time.Millisecond
	s.backoffMax = 2 * time.Millisecond
	s.stopWait = 2 * time.Second
	s.killWait = time.Second
	s.restartGap = time.Millisecond

	s.mu.Lock()
	for _, c := range s.children {
		c.backoff = s.backoff0
	}
	s.running = true
	s.mu.Unlock()
	t.Cleanup(s.Shutdown)
	return s, sink
}

func statusOf(t *testing.T, s *Supervisor, id string) ChildStatus {
	t.Helper()
	for _, st := range s.Status() {
		if st.ID == id {
			return st
		}
	}
	t.Fatalf("no status for %q", id)
	return ChildStatus{}
}

func TestRestartStormThrottles(t *testing.T) {
	requireShell(t)
	s, sink := newTestSupervisor(t, ManifestEntry{
		ID:      "crasher",
		Name:    "Crasher",
		Command: []string{"/bin/sh", "-c", "exit 3"},
		Restart: RestartOnFailure,
	})

	if err := s.Start("crasher"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		s.sweep()
		st := statusOf(t, s, "crasher")
		if st.Restarts == restartWindowMax && st.State == StateStopped {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Let any scheduled restart fire, then confirm the child stays down.
	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 10; i++ {
		s.sweep()
		time.Sleep(5 * time.Millisecond)
	}

	st := statusOf(t, s, "crasher")
	if st.State != StateStopped {
		t.Errorf("state = %s, want %s after throttling", st.State, StateStopped)
	}
	if st.Restarts != restartWindowMax {
		t.Errorf("restarts = %d, want %d", st.Restarts, restartWindowMax)
	}
	if sink.count(EventThrottled) == 0 {
		t.Error("no throttled event was emitted")
	}
}

func TestCleanExitPolicies(t *testing.T) {
	requireShell(t)
	tests := []struct {
		name        string
		policy      string
		wantRestart bool
	}{
		{"on-failure ignores clean exit", RestartOnFailure, false},
		{"never ignores any exit", RestartNever, false},
		{"always restarts clean exit", RestartAlways, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, sink := newTestSupervisor(t, ManifestEntry{
				ID:      "oneshot",
				Command: []string{"/bin/sh", "-c", "exit 0"},
				Restart: tt.policy,
			})
			if err := s.Start("oneshot"); err != nil {
				t.Fatalf("Start: %v", err)
			}

			deadline := time.Now().Add(10 * time.Second)
			for time.Now().Before(deadline) && sink.count(EventExited) == 0 {
				s.sweep()
				time.Sleep(5 * time.Millisecond)
			}
			if sink.count(EventExited) == 0 {
				t.Fatal("child never exited")
			}

			time.Sleep(50 * time.Millisecond)
			restarted := sink.count(EventRestarted) > 0
			if restarted != tt.wantRestart {
				t.Errorf("restarted = %v, want %v", restarted, tt.wantRestart)
			}
		})
	}
}

func TestStopTerminatesProcessGroup(t *testing.T) {
	requireShell(t)
	s, _ := newTestSupervisor(t, ManifestEntry{
		ID:      "sleeper",
		Command: []string{"/bin/sh", "-c", "sleep 60"},
		Restart: RestartAlways,
	})

	if err := s.Start("sleeper"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	pid := statusOf(t, s, "sleeper").PID
	if pid <= 0 {
		t.Fatalf("no pid after start: %+v", statusOf(t, s, "sleeper"))
	}

	if err := s.Stop("sleeper"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	st := statusOf(t, s, "sleeper")
	if st.State != StateStopped || st.PID != 0 {
		t.Errorf("after stop: %+v", st)
	}
	if processAlive(pid) {
		t.Errorf("pid %d still alive after stop", pid)
	}

	// Stopping a stopped child is a no-op, and the stop must not count
	// as a crash on the next monitor pass.
	if err := s.Stop("sleeper"); err != nil {
		t.Errorf("second Stop: %v", err)
	}
	s.sweep()
	if got := statusOf(t, s, "sleeper").Restarts; got != 0 {
		t.Errorf("restarts = %d after operator stop, want 0", got)
	}
}

func TestRecoverPidsAdoptsSurvivors(t *testing.T) {
	s, _ := newTestSupervisor(t,
		ManifestEntry{ID: "alive", Command: []string{"/bin/sh"}},
		ManifestEntry{ID: "dead", Command: []string{"/bin/sh"}},
	)

	// Our own pid stands in for a child that outlived the previous
	// supervisor; the dead entry points at a reaped pid.
	saved := map[string]map[string]int64{
		"alive": {"pid": int64(os.Getpid()), "started_at": time.Now().Unix() - 30},
		"dead":  {"pid": 1 << 22, "started_at": time.Now().Unix()},
	}
	raw, _ := json.Marshal(saved)
	if err := os.WriteFile(s.pidsPath(), raw, 0o644); err != nil {
		t.Fatalf("write pids: %v", err)
	}

	s.recoverPids()

	if st := statusOf(t, s, "alive"); st.State != StateRunning || st.PID != os.Getpid() {
		t.Errorf("alive = %+v, want RUNNING with pid %d", st, os.Getpid())
	}
	if st := statusOf(t, s, "dead"); st.State != StateStopped {
		t.Errorf("dead = %+v, want STOPPED", st)
	}

	// Detach the adopted entry so Shutdown does not signal the test
	// process itself.
	s.mu.Lock()
	s.children["alive"].state = StateStopped
	s.children["alive"].pid = 0
	s.mu.Unlock()
}

func TestStopOrderReversesStartup(t *testing.T) {
	s, _ := newTestSupervisor(t,
		ManifestEntry{ID: "nostr-relay", Command: []string{"x"}, Infra: true},
		ManifestEntry{ID: "cashu-mint", Command: []string{"x"}, Infra: true},
		ManifestEntry{ID: "user0", Command: []string{"x"}},
		ManifestEntry{ID: "user1", Command: []string{"x"}},
	)

	got := s.stopOrder()
	want := []string{"user1", "user0", "cashu-mint", "nostr-relay"}
	if len(got) != len(want) {
		t.Fatalf("stopOrder = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("stopOrder = %v, want %v", got, want)
		}
	}
}

func TestChildEnvCarriesAgentIdentity(t *testing.T) {
	s, _ := newTestSupervisor(t, ManifestEntry{ID: "user7", Command: []string{"x"}, TickInterval: 30})

	env := s.childEnv(s.children["user7"].entry)
	wantVars := []string{"AGENT_ID=user7", "AGENT_INDEX=7", "TICK_INTERVAL=30", "DATA_DIR=data"}
	for _, want := range wantVars {
		found := false
		for _, v := range env {
			if v == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("env missing %q", want)
		}
	}
}

func TestAgentIndex(t *testing.T) {
	tests := []struct {
		id string
		n  int
		ok bool
	}{
		{"user0", 0, true},
		{"user9", 9, true},
		{"nostr-relay", 0, false},
		{"userX", 0, false},
	}
	for _, tt := range tests {
		n, ok := agentIndex(tt.id)
		if n != tt.n || ok != tt.ok {
			t.Errorf("agentIndex(%q) = %d,%v, want %d,%v", tt.id, n, ok, tt.n, tt.ok)
		}
	}
}

func TestControlSocketRoundTrip(t *testing.T) {
	requireShell(t)
	s, _ := newTestSupervisor(t, ManifestEntry{
		ID:      "user0",
		Name:    "ぼたん",
		Command: []string{"/bin/sh", "-c", "sleep 60"},
		Restart: RestartNever,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.ServeControl(ctx, func() {})

	send := func(line string) string {
		t.Helper()
		var conn net.Conn
		var err error
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			conn, err = net.Dial("unix", s.ControlPath())
			if err == nil {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		if err != nil {
			t.Fatalf("dial control socket: %v", err)
		}
		defer conn.Close()
		fmt.Fprintln(conn, line)
		conn.(*net.UnixConn).CloseWrite()
		resp, err := io.ReadAll(conn)
		if err != nil {
			t.Fatalf("read response: %v", err)
		}
		return string(resp)
	}

	if resp := send("status"); !strings.Contains(resp, "user0") || !strings.Contains(resp, StateStopped) {
		t.Errorf("status response:\n%s", resp)
	}
	if resp := send("start user0"); !strings.Contains(resp, "Started user0") {
		t.Errorf("start response: %q", resp)
	}
	if resp := send("status"); !strings.Contains(resp, StateRunning) {
		t.Errorf("status after start:\n%s", resp)
	}
	if resp := send("stop user0"); !strings.Contains(resp, "Stopped user0") {
		t.Errorf("stop response: %q", resp)
	}
	if resp := send("start nosuch"); !strings.Contains(resp, "Unknown agent") {
		t.Errorf("unknown-agent response: %q", resp)
	}
	if resp := send("help"); !strings.Contains(resp, "Commands:") {
		t.Errorf("usage response: %q", resp)
	}
}

func TestSumTreasury(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens.jsonl")
	lines := `{"amount": 70}
{"amount": 30, "agent": "user2"}
not json
{"amount": 100}
`
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatalf("write ledger: %v", err)
	}

	total, entries, err := sumTreasury(path)
	if err != nil {
		t.Fatalf("sumTreasury: %v", err)
	}
	if total != 200 || entries != 3 {
		t.Errorf("total/entries = %d/%d, want 200/3", total, entries)
	}

	// A missing ledger is an empty treasury, not an error.
	total, entries, err = sumTreasury(filepath.Join(dir, "absent.jsonl"))
	if err != nil || total != 0 || entries != 0 {
		t.Errorf("missing file: total=%d entries=%d err=%v", total, entries, err)
	}
}
