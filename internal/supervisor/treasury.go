package supervisor

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zapempire/economy-engine/pkg/models"
)

const treasuryInterval = 60 * time.Second

// EventPublisher sends a relay event, signing it first.
type EventPublisher interface {
	Publish(ctx context.Context, ev *models.Event) error
}

// TreasuryPublisher sums the mint's token ledger and announces the
// fleet treasury as kind-4301 telemetry once a minute. Everything is
// best-effort: a missing ledger publishes zeros, a dead relay just
// logs.
type TreasuryPublisher struct {
	path string
	pub  EventPublisher
	log  *logrus.Entry
}

// NewTreasuryPublisher builds a treasury announcer over a token ledger
// file (one {"amount": n} JSON object per line).
func NewTreasuryPublisher(path string, pub EventPublisher, log *logrus.Entry) *TreasuryPublisher {
	return &TreasuryPublisher{path: path, pub: pub, log: log}
}

// Run publishes on a fixed period until ctx is cancelled.
func (t *TreasuryPublisher) Run(ctx context.Context) {
	ticker := time.NewTicker(treasuryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.publish(ctx)
		}
	}
}

func (t *TreasuryPublisher) publish(ctx context.Context) {
	total, entries, err := sumTreasury(t.path)
	if err != nil {
		t.log.Warnf("Read treasury ledger: %v", err)
		return
	}

	content := models.TreasuryContent{
		TotalSats: total,
		Entries:   entries,
		Timestamp: time.Now().Unix(),
	}
	raw, err := models.CompactJSON(content)
	if err != nil {
		t.log.Warnf("Encode treasury: %v", err)
		return
	}
	ev := &models.Event{
		Kind:    models.KindTreasuryStatus,
		Content: raw,
		Tags:    []models.Tag{{"agent_name", "treasury"}},
	}
	if err := t.pub.Publish(ctx, ev); err != nil {
		t.log.Warnf("Publish treasury: %v", err)
		return
	}
	t.log.WithFields(logrus.Fields{
		"sats":    total,
		"entries": entries,
	}).Debug("Published treasury status")
}

// sumTreasury totals the ledger. A missing file is an empty treasury;
// malformed lines are skipped.
func sumTreasury(path string) (total int64, entries int, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var entry struct {
			Amount int64 `json:"amount"`
		}
		if json.Unmarshal(sc.Bytes(), &entry) != nil {
			continue
		}
		total += entry.Amount
		entries++
	}
	return total, entries, sc.Err()
}
