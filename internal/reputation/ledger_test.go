package reputation

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestUpdateAdjustments(t *testing.T) {
	tests := []struct {
		name      string
		outcome   string
		wantTrust float64
	}{
		{"trade success", OutcomeTradeSuccess, 0.60},
		{"payment failed", OutcomePaymentFailed, 0.20},
		{"delivery timeout", OutcomeDeliveryTimeout, 0.10},
		{"offer timeout", OutcomeOfferTimeout, 0.45},
		{"trade rejected", OutcomeTradeRejected, 0.50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLedger(t.TempDir(), testLogger())
			got := l.Update("peer", tt.outcome, 0)
			if math.Abs(got-tt.wantTrust) > 1e-9 {
				t.Errorf("trust after %s = %.3f, want %.3f", tt.outcome, got, tt.wantTrust)
			}
		})
	}
}

func TestTrustClamping(t *testing.T) {
	l := NewLedger(t.TempDir(), testLogger())

	// Hammer the floor: three -0.40 penalties from 0.5 must stop at 0.
	for i := 0; i < 3; i++ {
		l.Update("bad", OutcomeDeliveryTimeout, 0)
	}
	if got := l.Trust("bad"); got != 0 {
		t.Errorf("trust floor = %.3f, want 0", got)
	}

	// And the ceiling: ten +0.10 bumps from 0.5 must stop at 1.
	for i := 0; i < 10; i++ {
		l.Update("good", OutcomeTradeSuccess, 100)
	}
	if got := l.Trust("good"); got != 1 {
		t.Errorf("trust ceiling = %.3f, want 1", got)
	}
}

func TestUnknownPeerDefaults(t *testing.T) {
	l := NewLedger(t.TempDir(), testLogger())
	if got := l.Trust("stranger"); got != DefaultTrust {
		t.Errorf("unknown peer trust = %.3f, want %.3f", got, DefaultTrust)
	}
	if _, ok := l.Record("stranger"); ok {
		t.Error("reading trust must not create a record")
	}
}

func TestCounters(t *testing.T) {
	l := NewLedger(t.TempDir(), testLogger())
	pk := "peer"

	l.Update(pk, OutcomeTradeSuccess, 90)
	l.Update(pk, OutcomePaymentFailed, 0)
	l.Update(pk, OutcomeDeliveryTimeout, 0)
	l.Update(pk, OutcomeOfferTimeout, 0)
	l.Update(pk, OutcomeTradeRejected, 0)

	rec, ok := l.Record(pk)
	if !ok {
		t.Fatal("record missing")
	}
	if rec.TotalTrades != 5 {
		t.Errorf("TotalTrades = %d, want 5", rec.TotalTrades)
	}
	if rec.SuccessfulTrades != 1 {
		t.Errorf("SuccessfulTrades = %d, want 1", rec.SuccessfulTrades)
	}
	// Offer timeouts and rejections do not count as failed trades.
	if rec.FailedTrades != 2 {
		t.Errorf("FailedTrades = %d, want 2", rec.FailedTrades)
	}
	if rec.TotalSatsExchanged != 90 {
		t.Errorf("TotalSatsExchanged = %d, want 90", rec.TotalSatsExchanged)
	}
	if rec.LastTradeAt == 0 {
		t.Error("LastTradeAt not stamped")
	}
}

func TestDecayMeanReversion(t *testing.T) {
	l := NewLedger(t.TempDir(), testLogger())

	// High scores drift down, low scores drift up, neutral stays put.
	for i := 0; i < 5; i++ {
		l.Update("high", OutcomeTradeSuccess, 0)
	}
	l.Update("low", OutcomeDeliveryTimeout, 0)
	l.Update("neutral", OutcomeTradeRejected, 0)

	high, low := l.Trust("high"), l.Trust("low")
	l.DecayAll()

	if got := l.Trust("high"); got >= high {
		t.Errorf("high trust did not decay: %.4f -> %.4f", high, got)
	}
	if got := l.Trust("low"); got <= low {
		t.Errorf("low trust did not revert upward: %.4f -> %.4f", low, got)
	}
	if got := l.Trust("neutral"); math.Abs(got-DefaultTrust) > 1e-9 {
		t.Errorf("neutral trust moved under decay: %.6f", got)
	}

	// One step of trust←0.99·trust+0.005 from 1.0 lands on 0.995.
	want := 1.0*0.99 + 0.5*0.01
	for i := 0; i < 10; i++ {
		l.Update("ceiling", OutcomeTradeSuccess, 0)
	}
	l.DecayAll()
	if got := l.Trust("ceiling"); math.Abs(got-want) > 1e-9 {
		t.Errorf("decay step from 1.0 = %.6f, want %.6f", got, want)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	l := NewLedger(dir, testLogger())
	l.Update("peer-a", OutcomeTradeSuccess, 90)
	l.Update("peer-b", OutcomePaymentFailed, 0)
	if err := l.Save(); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	restored := NewLedger(dir, testLogger())
	if err := restored.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got := restored.Trust("peer-a"); math.Abs(got-0.6) > 1e-9 {
		t.Errorf("restored peer-a trust = %.3f, want 0.6", got)
	}
	if got := restored.Trust("peer-b"); math.Abs(got-0.2) > 1e-9 {
		t.Errorf("restored peer-b trust = %.3f, want 0.2", got)
	}
	rec, ok := restored.Record("peer-a")
	if !ok || rec.SuccessfulTrades != 1 || rec.TotalSatsExchanged != 90 {
		t.Errorf("restored record = %+v", rec)
	}
}

func TestLoadMissingAndCorruptFiles(t *testing.T) {
	l := NewLedger(t.TempDir(), testLogger())
	if err := l.Load(); err != nil {
		t.Errorf("Load() with no file: %v", err)
	}

	dir := t.TempDir()
	l2 := NewLedger(dir, testLogger())
	l2.Update("x", OutcomeTradeSuccess, 0)
	if err := l2.Save(); err != nil {
		t.Fatal(err)
	}
	// Corrupt it.
	if err := os.WriteFile(filepath.Join(dir, "reputation.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	l3 := NewLedger(dir, testLogger())
	if err := l3.Load(); err != nil {
		t.Errorf("Load() with corrupt file should start fresh, got: %v", err)
	}
	if got := l3.Trust("x"); got != DefaultTrust {
		t.Errorf("corrupt load kept data: trust = %.3f", got)
	}
}
