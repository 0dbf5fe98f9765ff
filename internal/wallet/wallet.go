package wallet

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrInsufficientBalance is returned when a payment or burn asks for more
// sats than the wallet holds.
var ErrInsufficientBalance = errors.New("insufficient balance")

const tokenPrefix = "cashuB"

// Token is the bearer payload that travels inside encrypted 4204 events.
type Token struct {
	Mint   string  `json:"mint"`
	Proofs []Proof `json:"proofs"`
}

// EncodeToken serializes a token to its transferable string form.
func EncodeToken(t Token) (string, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("encode token: %v", err)
	}
	return tokenPrefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeToken parses a transferable token string.
func DecodeToken(s string) (Token, error) {
	if !strings.HasPrefix(s, tokenPrefix) {
		return Token{}, fmt.Errorf("decode token: bad prefix")
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(s, tokenPrefix))
	if err != nil {
		return Token{}, fmt.Errorf("decode token: %v", err)
	}
	var t Token
	if err := json.Unmarshal(raw, &t); err != nil {
		return Token{}, fmt.Errorf("decode token: %v", err)
	}
	return t, nil
}

// Wallet holds one agent's bearer proofs and talks to the mint to move
// value. Proofs persist at <dataDir>/wallet/proofs.json; losing the file
// loses the money, like any bearer instrument.
type Wallet struct {
	agentID string
	mint    *Client
	path    string
	log     *logrus.Entry

	// spendMu serializes outgoing spends so two concurrent takeExact
	// calls can never select the same proofs. Incoming redeems only
	// append and take mu alone.
	spendMu sync.Mutex

	mu     sync.Mutex
	proofs []Proof
}

// New builds a wallet and restores any persisted proofs. The mint is not
// contacted; call Init for the health check.
func New(agentID, dataDir string, mint *Client, log *logrus.Entry) (*Wallet, error) {
	dir := filepath.Join(dataDir, "wallet")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create wallet dir: %v", err)
	}
	w := &Wallet{
		agentID: agentID,
		mint:    mint,
		path:    filepath.Join(dir, "proofs.json"),
		log:     log,
	}
	if err := w.load(); err != nil {
		return nil, err
	}
	return w, nil
}

// Init health-checks the mint and logs the restored balance.
func (w *Wallet) Init(ctx context.Context) error {
	info, err := w.mint.Info(ctx)
	if err != nil {
		return err
	}
	w.log.WithFields(logrus.Fields{
		"mint":    info.Name,
		"balance": w.Balance(),
	}).Info("Wallet initialized")
	return nil
}

// MintURL reports which mint backs this wallet, for 4201 accept messages.
func (w *Wallet) MintURL() string {
	return w.mint.URL()
}

// Balance is the sum of held proofs, in sats.
func (w *Wallet) Balance() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return sumProofs(w.proofs)
}

// Fund mints amount sats of fresh proofs into the wallet. Used once to
// seed the initial balance; trading never mints.
func (w *Wallet) Fund(ctx context.Context, amount int64) error {
	if amount <= 0 {
		return nil
	}
	minted, err := w.mint.Mint(ctx, amount)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.proofs = append(w.proofs, minted...)
	err = w.persistLocked()
	w.mu.Unlock()
	if err != nil {
		return err
	}
	w.log.WithField("amount", amount).Info("Funded wallet")
	return nil
}

// CreatePayment splits off proofs worth exactly amount and serializes
// them as a token for the counterparty. The spent proofs leave the local
// store immediately; they stay live at the mint until redeemed.
func (w *Wallet) CreatePayment(ctx context.Context, amount int64) (string, error) {
	send, err := w.takeExact(ctx, amount)
	if err != nil {
		return "", err
	}
	token, err := EncodeToken(Token{Mint: w.mint.URL(), Proofs: send})
	if err != nil {
		return "", err
	}
	w.log.WithField("amount", amount).Info("Created payment")
	return token, nil
}

// ReceivePayment redeems a token: the mint swaps its proofs for fresh
// ones owned by this wallet. A double-spent or malformed token errors
// without changing the balance. Returns the amount received.
func (w *Wallet) ReceivePayment(ctx context.Context, token string) (int64, error) {
	t, err := DecodeToken(token)
	if err != nil {
		return 0, err
	}
	amount := sumProofs(t.Proofs)
	if amount <= 0 {
		return 0, fmt.Errorf("receive payment: empty token")
	}

	fresh, err := w.mint.Swap(ctx, t.Proofs, splitAmount(amount))
	if err != nil {
		return 0, fmt.Errorf("receive payment: %v", err)
	}

	w.mu.Lock()
	w.proofs = append(w.proofs, fresh...)
	err = w.persistLocked()
	w.mu.Unlock()
	if err != nil {
		return 0, err
	}
	w.log.WithField("amount", amount).Info("Received payment")
	return amount, nil
}

// Deduct burns amount sats: proofs worth exactly amount are split off
// and discarded unredeemed, so the balance drops by exactly amount and
// nobody is credited. Used for production costs.
func (w *Wallet) Deduct(ctx context.Context, amount int64) error {
	if amount <= 0 {
		return nil
	}
	if _, err := w.takeExact(ctx, amount); err != nil {
		return err
	}
	w.log.WithField("amount", amount).Info("Burned sats")
	return nil
}

// takeExact removes proofs worth exactly amount from the store, swapping
// at the mint when no exact subset exists. Returns the removed proofs.
// The store is only re-read under mu when the spend is written back, so
// proofs appended by a concurrent ReceivePayment survive the swap.
func (w *Wallet) takeExact(ctx context.Context, amount int64) ([]Proof, error) {
	w.spendMu.Lock()
	defer w.spendMu.Unlock()

	w.mu.Lock()
	selected, _ := selectProofs(w.proofs, amount)
	w.mu.Unlock()

	total := sumProofs(selected)
	if total < amount {
		return nil, ErrInsufficientBalance
	}

	send := selected
	keep := []Proof(nil)
	if total > amount {
		// Swap for exact change: send denominations first, change after.
		sendSplit := splitAmount(amount)
		split := append(append([]int64{}, sendSplit...), splitAmount(total-amount)...)
		fresh, err := w.mint.Swap(ctx, selected, split)
		if err != nil {
			return nil, fmt.Errorf("swap for change: %v", err)
		}
		if len(fresh) < len(sendSplit) {
			return nil, fmt.Errorf("swap for change: short response")
		}
		send = fresh[:len(sendSplit)]
		keep = fresh[len(sendSplit):]
	}

	w.mu.Lock()
	w.proofs = append(dropProofs(w.proofs, selected), keep...)
	err := w.persistLocked()
	w.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return send, nil
}

func (w *Wallet) load() error {
	raw, err := os.ReadFile(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read proofs file: %v", err)
	}
	var proofs []Proof
	if err := json.Unmarshal(raw, &proofs); err != nil {
		w.log.Warnf("[Wallet] Corrupt proofs file, starting empty: %v", err)
		return nil
	}
	w.proofs = proofs
	return nil
}

func (w *Wallet) persistLocked() error {
	raw, err := json.MarshalIndent(w.proofs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal proofs: %v", err)
	}
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write proofs temp file: %v", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		return fmt.Errorf("replace proofs file: %v", err)
	}
	return nil
}

func sumProofs(proofs []Proof) int64 {
	var total int64
	for _, p := range proofs {
		total += p.Amount
	}
	return total
}

// dropProofs removes spent from proofs, matching by secret.
func dropProofs(proofs, spent []Proof) []Proof {
	gone := make(map[string]bool, len(spent))
	for _, p := range spent {
		gone[p.Secret] = true
	}
	out := make([]Proof, 0, len(proofs))
	for _, p := range proofs {
		if !gone[p.Secret] {
			out = append(out, p)
		}
	}
	return out
}

// selectProofs picks proofs covering amount, largest first, and returns
// the picks plus the untouched remainder. A short selection means the
// whole store could not cover amount.
func selectProofs(proofs []Proof, amount int64) (selected, rest []Proof) {
	sorted := append([]Proof(nil), proofs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Amount > sorted[j].Amount })

	var total int64
	for i, p := range sorted {
		if total >= amount {
			rest = append(rest, sorted[i:]...)
			break
		}
		selected = append(selected, p)
		total += p.Amount
	}
	return selected, rest
}

// splitAmount decomposes a value into power-of-two denominations,
// smallest first.
func splitAmount(amount int64) []int64 {
	var out []int64
	for bit := int64(1); amount > 0; bit <<= 1 {
		if amount&1 == 1 {
			out = append(out, bit)
		}
		amount >>= 1
	}
	return out
}
