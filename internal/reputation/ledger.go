package reputation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultTrust is the score assigned to peers we have never traded with.
const DefaultTrust = 0.5

// decayKeep is the per-tick mean-reversion factor:
// trust ← decayKeep·trust + (1−decayKeep)·DefaultTrust.
const decayKeep = 0.99

// Trade outcomes recognized by Update.
const (
	OutcomeTradeSuccess    = "trade_success"
	OutcomePaymentFailed   = "payment_failed"
	OutcomeDeliveryTimeout = "delivery_timeout"
	OutcomeOfferTimeout    = "offer_timeout"
	OutcomeTradeRejected   = "trade_rejected"
)

var trustAdjustments = map[string]float64{
	OutcomeTradeSuccess:    +0.10,
	OutcomePaymentFailed:   -0.30,
	OutcomeDeliveryTimeout: -0.40,
	OutcomeOfferTimeout:    -0.05,
	OutcomeTradeRejected:   0.0,
}

// Record is the per-peer reputation entry persisted in reputation.json.
type Record struct {
	Trust              float64 `json:"trust"`
	TotalTrades        int     `json:"totalTrades"`
	SuccessfulTrades   int     `json:"successfulTrades"`
	FailedTrades       int     `json:"failedTrades"`
	LastTradeAt        int64   `json:"lastTradeAt"`
	TotalSatsExchanged int64   `json:"totalSatsExchanged"`
}

// Ledger tracks trust scores over peers, keyed by pubkey. All scores stay
// in [0,1]; unknown peers read as DefaultTrust.
type Ledger struct {
	path string
	log  *logrus.Entry

	mu      sync.RWMutex
	records map[string]*Record
}

// NewLedger creates a ledger persisting to <dataDir>/reputation.json.
func NewLedger(dataDir string, log *logrus.Entry) *Ledger {
	return &Ledger{
		path:    filepath.Join(dataDir, "reputation.json"),
		log:     log,
		records: make(map[string]*Record),
	}
}

// Load restores the ledger from disk. A missing file is a fresh start, not
// an error; a corrupt file is logged and discarded.
func (l *Ledger) Load() error {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read reputation file: %v", err)
	}

	records := make(map[string]*Record)
	if err := json.Unmarshal(raw, &records); err != nil {
		l.log.Warnf("[Reputation] Corrupt reputation file, starting fresh: %v", err)
		return nil
	}

	l.mu.Lock()
	l.records = records
	l.mu.Unlock()
	l.log.Infof("[Reputation] Loaded %d trust records", len(records))
	return nil
}

// Save atomically rewrites the reputation file (temp file + rename).
func (l *Ledger) Save() error {
	l.mu.RLock()
	raw, err := json.MarshalIndent(l.records, "", "  ")
	l.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal reputation: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %v", err)
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write reputation temp file: %v", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("replace reputation file: %v", err)
	}
	return nil
}

// Trust returns the peer's score, or DefaultTrust for unknown peers.
func (l *Ledger) Trust(pubkey string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if rec, ok := l.records[pubkey]; ok {
		return rec.Trust
	}
	return DefaultTrust
}

// Update applies the fixed adjustment for a trade outcome and bumps the
// counters. The new trust score is returned, clamped to [0,1].
func (l *Ledger) Update(pubkey, outcome string, amountSats int64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[pubkey]
	if !ok {
		rec = &Record{Trust: DefaultTrust}
		l.records[pubkey] = rec
	}

	rec.Trust = clamp01(rec.Trust + trustAdjustments[outcome])
	rec.TotalTrades++
	rec.LastTradeAt = time.Now().Unix()
	rec.TotalSatsExchanged += amountSats

	switch outcome {
	case OutcomeTradeSuccess:
		rec.SuccessfulTrades++
	case OutcomePaymentFailed, OutcomeDeliveryTimeout:
		rec.FailedTrades++
	}

	l.log.Infof("[Reputation] %s %.12s... trust=%.2f", outcome, pubkey, rec.Trust)
	return rec.Trust
}

// DecayAll mean-reverts every score toward DefaultTrust. Called once per
// tick.
func (l *Ledger) DecayAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, rec := range l.records {
		rec.Trust = rec.Trust*decayKeep + DefaultTrust*(1-decayKeep)
	}
}

// Scores returns a copy of pubkey → trust for status reporting.
func (l *Ledger) Scores() map[string]float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]float64, len(l.records))
	for pk, rec := range l.records {
		out[pk] = rec.Trust
	}
	return out
}

// Record returns a copy of the peer's full record and whether it exists.
func (l *Ledger) Record(pubkey string) (Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if rec, ok := l.records[pubkey]; ok {
		return *rec, true
	}
	return Record{}, false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
