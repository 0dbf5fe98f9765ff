package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zapempire/economy-engine/internal/trade"
	"github.com/zapempire/economy-engine/pkg/models"
)

// Stats aggregates lifetime counters: the trade engine's settlement
// counters plus local production accounting.
type Stats struct {
	trade.Counters
	ProgramsCreated int64 `json:"programsCreated"`
	ProductionSpent int64 `json:"productionSpent"`
}

// TotalSpent is sats gone to purchases plus sats burned on production.
func (s Stats) TotalSpent() int64 {
	return s.SatsSpent + s.ProductionSpent
}

// stateFile is the snapshot the persist loop writes to state.json.
// Active trades are recorded for observability but never re-armed on
// load: by the next boot their deadlines have passed and the peers have
// swept their side.
type stateFile struct {
	AgentID       string                 `json:"agentId"`
	Name          string                 `json:"name"`
	Personality   string                 `json:"personality"`
	StartedAt     int64                  `json:"startedAt"`
	WalletBalance int64                  `json:"walletBalance"`
	TickCount     int64                  `json:"tickCount"`
	Programs      []*models.Program      `json:"programs"`
	ActiveTrades  map[string]trade.Trade `json:"activeTrades"`
	Stats         Stats                  `json:"stats"`
}

func (a *Agent) statePath() string {
	return filepath.Join(a.dataDir, "state.json")
}

func (a *Agent) statsSnapshot() Stats {
	a.mu.Lock()
	s := Stats{
		ProgramsCreated: a.programsCreated,
		ProductionSpent: a.productionSpent,
	}
	a.mu.Unlock()
	s.Counters = a.trades.Counters()
	return s
}

// saveState atomically rewrites state.json (temp file + rename).
func (a *Agent) saveState() error {
	a.mu.Lock()
	st := stateFile{
		AgentID:     a.profile.ID,
		Name:        a.profile.DisplayName,
		Personality: a.profile.Personality.Name,
		StartedAt:   a.startedAt,
		TickCount:   a.tickCount,
		Programs:    make([]*models.Program, 0, len(a.programs)),
	}
	for _, p := range a.programs {
		cp := *p
		st.Programs = append(st.Programs, &cp)
	}
	a.mu.Unlock()

	st.WalletBalance = a.wallet.Balance()
	st.ActiveTrades = a.trades.Snapshot()
	st.Stats = a.statsSnapshot()

	raw, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %v", err)
	}
	path := a.statePath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write state temp file: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace state file: %v", err)
	}
	return nil
}

// loadState restores the last snapshot. A missing file is a fresh
// start, not an error; a corrupt file is logged and discarded.
func (a *Agent) loadState() error {
	raw, err := os.ReadFile(a.statePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read state file: %v", err)
	}
	var st stateFile
	if err := json.Unmarshal(raw, &st); err != nil {
		a.log.Warnf("Corrupt state file, starting fresh: %v", err)
		return nil
	}

	a.mu.Lock()
	a.tickCount = st.TickCount
	if st.StartedAt > 0 {
		a.startedAt = st.StartedAt
	}
	a.programs = st.Programs
	a.programsCreated = st.Stats.ProgramsCreated
	a.productionSpent = st.Stats.ProductionSpent
	a.mu.Unlock()

	a.trades.SetCounters(st.Stats.Counters)
	for _, p := range st.Programs {
		if p.Listed && p.ListingEventID != "" {
			a.publisher.Track(p.ID, p.ListingEventID)
		}
	}

	a.log.Infof("Restored state: %d programs, tick %d", len(st.Programs), st.TickCount)
	return nil
}
