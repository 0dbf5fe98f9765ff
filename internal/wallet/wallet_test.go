package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// fakeMint implements the three-endpoint mint API with double-spend
// tracking, the contract the wallet relies on.
type fakeMint struct {
	mu      sync.Mutex
	spent   map[string]bool
	counter int
	onSwap  func()
	srv     *httptest.Server
}

func newFakeMint(t *testing.T) *fakeMint {
	t.Helper()
	m := &fakeMint{spent: make(map[string]bool)}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/info", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(MintInfo{Name: "testmint", Version: "0.1"})
	})
	mux.HandleFunc("/v1/mint", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Amount int64 `json:"amount"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Amount <= 0 {
			http.Error(w, `{"error":"bad amount"}`, http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string][]Proof{"proofs": m.issue(splitAmount(req.Amount))})
	})
	mux.HandleFunc("/v1/swap", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		hook := m.onSwap
		m.mu.Unlock()
		if hook != nil {
			hook()
		}
		var req struct {
			Proofs []Proof `json:"proofs"`
			Split  []int64 `json:"split"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
			return
		}
		var in, out int64
		for _, p := range req.Proofs {
			in += p.Amount
		}
		for _, a := range req.Split {
			out += a
		}
		if in != out {
			http.Error(w, `{"error":"split does not balance"}`, http.StatusBadRequest)
			return
		}
		m.mu.Lock()
		for _, p := range req.Proofs {
			if m.spent[p.Secret] {
				m.mu.Unlock()
				http.Error(w, `{"error":"proof already spent"}`, http.StatusConflict)
				return
			}
		}
		for _, p := range req.Proofs {
			m.spent[p.Secret] = true
		}
		m.mu.Unlock()
		json.NewEncoder(w).Encode(map[string][]Proof{"proofs": m.issue(req.Split)})
	})
	m.srv = httptest.NewServer(mux)
	t.Cleanup(m.srv.Close)
	return m
}

func (m *fakeMint) issue(split []int64) []Proof {
	m.mu.Lock()
	defer m.mu.Unlock()
	proofs := make([]Proof, 0, len(split))
	for _, a := range split {
		m.counter++
		proofs = append(proofs, Proof{
			ID:     "keyset0",
			Amount: a,
			Secret: fmt.Sprintf("secret-%d", m.counter),
			C:      fmt.Sprintf("sig-%d", m.counter),
		})
	}
	return proofs
}

func testWallet(t *testing.T, m *fakeMint, agentID string) *Wallet {
	t.Helper()
	w, err := New(agentID, t.TempDir(), NewClient(Config{MintURL: m.srv.URL}), testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

func TestFundBalancePersistence(t *testing.T) {
	m := newFakeMint(t)
	dir := t.TempDir()
	ctx := context.Background()

	w, err := New("user0", dir, NewClient(Config{MintURL: m.srv.URL}), testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if w.Balance() != 0 {
		t.Fatalf("fresh balance = %d, want 0", w.Balance())
	}

	if err := w.Fund(ctx, 10000); err != nil {
		t.Fatalf("Fund: %v", err)
	}
	if w.Balance() != 10000 {
		t.Fatalf("balance = %d, want 10000", w.Balance())
	}

	// A new wallet over the same dir restores the proofs.
	w2, err := New("user0", dir, NewClient(Config{MintURL: m.srv.URL}), testLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if w2.Balance() != 10000 {
		t.Errorf("restored balance = %d, want 10000", w2.Balance())
	}
}

func TestCreateAndReceivePayment(t *testing.T) {
	m := newFakeMint(t)
	ctx := context.Background()
	sender := testWallet(t, m, "user0")
	receiver := testWallet(t, m, "user1")

	if err := sender.Fund(ctx, 1000); err != nil {
		t.Fatalf("Fund: %v", err)
	}

	token, err := sender.CreatePayment(ctx, 90)
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	if sender.Balance() != 910 {
		t.Errorf("sender balance = %d, want 910", sender.Balance())
	}

	parsed, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("DecodeToken: %v", err)
	}
	if parsed.Mint != m.srv.URL {
		t.Errorf("token mint = %q, want %q", parsed.Mint, m.srv.URL)
	}
	if got := sumProofs(parsed.Proofs); got != 90 {
		t.Errorf("token value = %d, want 90", got)
	}

	got, err := receiver.ReceivePayment(ctx, token)
	if err != nil {
		t.Fatalf("ReceivePayment: %v", err)
	}
	if got != 90 || receiver.Balance() != 90 {
		t.Errorf("received %d, balance %d; want 90, 90", got, receiver.Balance())
	}

	// Second redemption of the same token must fail and change nothing.
	if _, err := receiver.ReceivePayment(ctx, token); err == nil {
		t.Fatal("double redemption should fail")
	}
	if receiver.Balance() != 90 {
		t.Errorf("balance after failed redeem = %d, want 90", receiver.Balance())
	}
}

func TestCreatePaymentExactDenominations(t *testing.T) {
	m := newFakeMint(t)
	ctx := context.Background()
	w := testWallet(t, m, "user0")

	// 100 funds as [4 32 64]; 96 = 64+32 is covered without a swap.
	if err := w.Fund(ctx, 100); err != nil {
		t.Fatalf("Fund: %v", err)
	}
	token, err := w.CreatePayment(ctx, 96)
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	parsed, _ := DecodeToken(token)
	if len(parsed.Proofs) != 2 || sumProofs(parsed.Proofs) != 96 {
		t.Errorf("token proofs = %d worth %d, want 2 worth 96", len(parsed.Proofs), sumProofs(parsed.Proofs))
	}
	if w.Balance() != 4 {
		t.Errorf("balance = %d, want 4", w.Balance())
	}
}

func TestCreatePaymentInsufficient(t *testing.T) {
	m := newFakeMint(t)
	ctx := context.Background()
	w := testWallet(t, m, "user0")

	if err := w.Fund(ctx, 50); err != nil {
		t.Fatalf("Fund: %v", err)
	}
	if _, err := w.CreatePayment(ctx, 51); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("err = %v, want ErrInsufficientBalance", err)
	}
	if w.Balance() != 50 {
		t.Errorf("failed payment changed balance to %d", w.Balance())
	}
}

func TestDeductBurns(t *testing.T) {
	m := newFakeMint(t)
	ctx := context.Background()
	w := testWallet(t, m, "user0")

	if err := w.Fund(ctx, 1000); err != nil {
		t.Fatalf("Fund: %v", err)
	}
	if err := w.Deduct(ctx, 70); err != nil {
		t.Fatalf("Deduct: %v", err)
	}
	if w.Balance() != 930 {
		t.Errorf("balance = %d, want 930", w.Balance())
	}

	if err := w.Deduct(ctx, 0); err != nil {
		t.Errorf("Deduct(0) = %v, want nil", err)
	}
	if err := w.Deduct(ctx, 100000); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("err = %v, want ErrInsufficientBalance", err)
	}
	if w.Balance() != 930 {
		t.Errorf("failed deduct changed balance to %d", w.Balance())
	}
}

func TestReceiveDuringDeductKeepsFunds(t *testing.T) {
	m := newFakeMint(t)
	ctx := context.Background()
	dir := t.TempDir()

	receiver, err := New("user0", dir, NewClient(Config{MintURL: m.srv.URL}), testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sender := testWallet(t, m, "user1")

	// 100 funds as [4 32 64].
	if err := receiver.Fund(ctx, 100); err != nil {
		t.Fatalf("Fund receiver: %v", err)
	}
	if err := sender.Fund(ctx, 64); err != nil {
		t.Fatalf("Fund sender: %v", err)
	}
	// 64 is a single proof, so building the token needs no swap.
	token, err := sender.CreatePayment(ctx, 64)
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}

	// Hold the next swap (the deduct's swap for change) open at the
	// mint so a payment can land in the middle of it.
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	m.mu.Lock()
	m.onSwap = func() {
		first := false
		once.Do(func() { first = true })
		if first {
			close(entered)
			<-release
		}
	}
	m.mu.Unlock()

	errc := make(chan error, 1)
	go func() { errc <- receiver.Deduct(ctx, 30) }()
	<-entered

	if _, err := receiver.ReceivePayment(ctx, token); err != nil {
		t.Fatalf("ReceivePayment: %v", err)
	}
	close(release)
	if err := <-errc; err != nil {
		t.Fatalf("Deduct: %v", err)
	}

	// The payment that arrived mid-deduct must not be dropped when the
	// deduct writes its change back.
	if got := receiver.Balance(); got != 134 {
		t.Errorf("balance = %d, want 134 (100 + 64 - 30)", got)
	}

	reopened, err := New("user0", dir, NewClient(Config{MintURL: m.srv.URL}), testLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := reopened.Balance(); got != 134 {
		t.Errorf("persisted balance = %d, want 134", got)
	}
}

func TestTokenCodec(t *testing.T) {
	tok := Token{
		Mint: "http://mint:3338",
		Proofs: []Proof{
			{ID: "k0", Amount: 64, Secret: "s1", C: "c1"},
			{ID: "k0", Amount: 26, Secret: "s2", C: "c2"},
		},
	}
	enc, err := EncodeToken(tok)
	if err != nil {
		t.Fatalf("EncodeToken: %v", err)
	}
	dec, err := DecodeToken(enc)
	if err != nil {
		t.Fatalf("DecodeToken: %v", err)
	}
	if !reflect.DeepEqual(tok, dec) {
		t.Errorf("round trip mismatch: %+v vs %+v", tok, dec)
	}

	bad := []string{"", "nonsense", "cashuB!!!not-base64!!!", "wrongPrefix" + enc}
	for _, s := range bad {
		if _, err := DecodeToken(s); err == nil {
			t.Errorf("DecodeToken(%q) should fail", s)
		}
	}
}

func TestSplitAmount(t *testing.T) {
	tests := []struct {
		amount int64
		want   []int64
	}{
		{1, []int64{1}},
		{90, []int64{2, 8, 16, 64}},
		{100, []int64{4, 32, 64}},
		{1024, []int64{1024}},
		{0, nil},
	}
	for _, tt := range tests {
		if got := splitAmount(tt.amount); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitAmount(%d) = %v, want %v", tt.amount, got, tt.want)
		}
	}
}
