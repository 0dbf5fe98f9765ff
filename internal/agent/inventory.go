package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zapempire/economy-engine/pkg/models"
)

// inventory adapts the agent's program shelf and source files to the
// trade engine.
type inventory struct{ a *Agent }

// Program returns a copy of the owned program behind a listing id, so
// handlers never see fields mid-mutation.
func (inv *inventory) Program(listingID string) (*models.Program, bool) {
	a := inv.a
	a.mu.Lock()
	defer a.mu.Unlock()
	if p := a.programLocked(listingID); p != nil {
		cp := *p
		return &cp, true
	}
	return nil, false
}

func (inv *inventory) Source(prog *models.Program) (string, error) {
	return inv.a.readSource(prog.ID)
}

// SaveReceived lands a bought program: source to disk, a metadata entry
// on the shelf keyed by the seller's listing id. Bought programs are
// never auto-listed and carry no quality score.
func (inv *inventory) SaveReceived(listingID, source string) error {
	a := inv.a
	if err := os.WriteFile(a.sourcePath(listingID), []byte(source), 0o644); err != nil {
		return fmt.Errorf("write received program: %v", err)
	}

	prog := &models.Program{
		ID:          listingID,
		Name:        listingID,
		Description: clip(source, 500),
		Category:    "unknown",
		Complexity:  models.ComplexityMedium,
		CreatedAt:   time.Now().Unix(),
		Acquired:    true,
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if p := a.programLocked(listingID); p != nil {
		*p = *prog
	} else {
		a.programs = append(a.programs, prog)
	}
	return nil
}

func (a *Agent) sourcePath(id string) string {
	return filepath.Join(a.dataDir, "programs", id+".py")
}

func (a *Agent) readSource(id string) (string, error) {
	raw, err := os.ReadFile(a.sourcePath(id))
	if err != nil {
		return "", fmt.Errorf("read program source: %v", err)
	}
	return string(raw), nil
}

func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) > n {
		return string(runes[:n])
	}
	return s
}
