package supervisor

import (
	"encoding/json"
	"fmt"
	"os"
)

// Restart policies a manifest entry may declare.
const (
	RestartAlways    = "always"
	RestartOnFailure = "on-failure"
	RestartNever     = "never"
)

// ManifestEntry describes one managed process. Infra entries (relay,
// mint) start in phase one and stop last.
type ManifestEntry struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Command      []string `json:"command"`
	Restart      string   `json:"restart_policy"`
	TickInterval int      `json:"tick_interval,omitempty"`
	Infra        bool     `json:"infra,omitempty"`
}

// Manifest is the ordered fleet definition from config/agents.json.
type Manifest struct {
	Agents []ManifestEntry `json:"agents"`
}

// LoadManifest reads and validates the fleet manifest. Order is
// preserved: startup walks it forward, shutdown backward.
func LoadManifest(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %v", err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest %s: %v", path, err)
	}
	if len(m.Agents) == 0 {
		return Manifest{}, fmt.Errorf("manifest %s lists no agents", path)
	}

	seen := make(map[string]bool, len(m.Agents))
	for i := range m.Agents {
		e := &m.Agents[i]
		if e.ID == "" {
			return Manifest{}, fmt.Errorf("manifest entry %d has no id", i)
		}
		if seen[e.ID] {
			return Manifest{}, fmt.Errorf("duplicate manifest id %q", e.ID)
		}
		seen[e.ID] = true
		if len(e.Command) == 0 {
			return Manifest{}, fmt.Errorf("manifest entry %q has no command", e.ID)
		}
		if e.Name == "" {
			e.Name = e.ID
		}
		switch e.Restart {
		case RestartAlways, RestartOnFailure, RestartNever:
		case "":
			e.Restart = RestartOnFailure
		default:
			return Manifest{}, fmt.Errorf("manifest entry %q: unknown restart policy %q", e.ID, e.Restart)
		}
	}
	return m, nil
}
