package trade

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/zapempire/economy-engine/internal/reputation"
	"github.com/zapempire/economy-engine/pkg/models"
)

// Protocol windows, measured from the last state change. A trade that
// outlives its window is swept by ExpireStale with a trust penalty
// against the counterparty.
const (
	offerTimeout    = 60 * time.Second
	paymentTimeout  = 120 * time.Second
	deliveryTimeout = 120 * time.Second
)

// Concurrency bounds per side. Offers beyond the seller bound are
// ignored rather than rejected, so the buyer's trade expires on its own.
const (
	maxBuyerTrades  = 3
	maxSellerTrades = 5
)

// ErrTooManyTrades is returned by SendOffer when the buyer bound is hit.
var ErrTooManyTrades = errors.New("too many active buy trades")

// Publisher sends an event to the relay, signing it first if needed.
type Publisher interface {
	Publish(ctx context.Context, ev *models.Event) error
}

// Cipher seals and opens NIP-04 envelopes for a peer. Implemented by
// nostr.KeyPair.
type Cipher interface {
	Encrypt(plaintext, peerPubHex string) (string, error)
	Decrypt(envelope, peerPubHex string) (string, error)
}

// TrustBook scores counterparties and records outcomes against them.
// Implemented by reputation.Ledger.
type TrustBook interface {
	Trust(pubkey string) float64
	Update(pubkey, outcome string, amountSats int64) float64
}

// PaymentWallet moves ecash. CreatePayment withdraws a token worth
// amount sats; ReceivePayment redeems a token and returns its value.
type PaymentWallet interface {
	CreatePayment(ctx context.Context, amount int64) (string, error)
	ReceivePayment(ctx context.Context, token string) (int64, error)
}

// Inventory is the seller's view of owned programs plus the buyer's
// sink for delivered source. Program looks up by listing id; Source
// returns the full text to deliver.
type Inventory interface {
	Program(listingID string) (*models.Program, bool)
	Source(prog *models.Program) (string, error)
	SaveReceived(listingID, source string) error
}

// Decider prices the seller side of a negotiation.
type Decider interface {
	ShouldAcceptOffer(listedPrice, offerSats int64, buyerTrust float64) bool
	CounterOffer(listedPrice, offerSats int64) (int64, bool)
}

// Notifier receives trade milestones for the agent's chat layer. A nil
// Notifier silences them.
type Notifier interface {
	OfferAccepted(buyerPubKey, programName string, sats int64)
	OfferRejected(programName string)
	PaymentSent(sats int64)
	CompletedAsBuyer(sellerPubKey, programName string, sats int64)
	CompletedAsSeller(buyerPubKey, programName string, sats int64)
}

// Config wires an Engine to its collaborators.
type Config struct {
	AgentName string // display name, used in offer messages
	MintURL   string // advertised to buyers in accepts

	Publisher Publisher
	Cipher    Cipher
	Trust     TrustBook
	Wallet    PaymentWallet
	Inventory Inventory
	Decider   Decider
	Notifier  Notifier
	Log       *logrus.Entry
}

// Engine runs both sides of the trade protocol for one agent. Handlers
// are invoked from the relay read loop; SendOffer and ExpireStale from
// the tick loop. The mutex is never held across relay, wallet, or
// cipher calls, so every mutation after such a call re-checks that the
// sweep has not removed the trade in the meantime.
type Engine struct {
	cfg Config
	log *logrus.Entry

	mu       sync.Mutex
	trades   map[string]*Trade // offer id -> live trade
	counters Counters
}

// NewEngine builds an idle engine; it holds no goroutines of its own.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg, log: cfg.Log, trades: make(map[string]*Trade)}
}

// SendOffer opens a trade for another agent's listing at offerSats and
// returns the new offer id. The buyer-side concurrency bound applies.
func (e *Engine) SendOffer(ctx context.Context, listing *models.Listing, offerSats int64) (string, error) {
	e.mu.Lock()
	busy := e.countRoleLocked(RoleBuyer) >= maxBuyerTrades
	e.mu.Unlock()
	if busy {
		return "", ErrTooManyTrades
	}

	offerID := uuid.NewString()[:8]
	content := models.OfferContent{
		ListingID: listing.DTag,
		OfferSats: offerSats,
		Message:   fmt.Sprintf("%sがプログラムを買いたいたん！", e.cfg.AgentName),
	}
	raw, err := models.CompactJSON(content)
	if err != nil {
		return "", fmt.Errorf("encode offer content: %v", err)
	}

	ev := tradeEvent(models.KindTradeOffer, raw, listing.SellerPubKey, listing.EventID, "root", offerID)
	if err := e.cfg.Publisher.Publish(ctx, ev); err != nil {
		return "", fmt.Errorf("publish offer %s: %v", offerID, err)
	}

	now := time.Now()
	e.mu.Lock()
	e.trades[offerID] = &Trade{
		OfferID:      offerID,
		Role:         RoleBuyer,
		State:        StateOffered,
		Counterparty: listing.SellerPubKey,
		ListingID:    listing.DTag,
		AmountSats:   offerSats,
		StartedAt:    now.Unix(),
		DeadlineAt:   now.Add(offerTimeout).Unix(),
	}
	e.mu.Unlock()

	e.log.WithFields(logrus.Fields{
		"offer":   offerID,
		"listing": listing.Name,
		"sats":    offerSats,
	}).Info("Sent trade offer")
	return offerID, nil
}

// HandleEvent dispatches one trade-kind event. Events that do not match
// a live trade, or arrive on the wrong side of one, are dropped quietly;
// the relay's #p filter already scopes the stream to this agent.
func (e *Engine) HandleEvent(ctx context.Context, ev *models.Event) {
	switch ev.Kind {
	case models.KindTradeOffer:
		e.onOffer(ctx, ev)
	case models.KindTradeAccept:
		e.onAccept(ctx, ev)
	case models.KindTradeReject:
		e.onReject(ev)
	case models.KindPayment:
		e.onPayment(ctx, ev)
	case models.KindDelivery:
		e.onDelivery(ctx, ev)
	case models.KindTradeComplete:
		e.onComplete(ev)
	}
}

// onOffer is the seller receiving a kind-4200 buy offer.
func (e *Engine) onOffer(ctx context.Context, ev *models.Event) {
	offerID := ev.TagValue("offer_id")
	if offerID == "" {
		e.log.WithField("event", ev.ID).Debug("Offer without offer_id tag")
		return
	}
	var content models.OfferContent
	if err := json.Unmarshal([]byte(ev.Content), &content); err != nil {
		e.log.WithField("offer", offerID).Debug("Malformed offer content")
		return
	}
	prog, ok := e.cfg.Inventory.Program(content.ListingID)
	if !ok {
		e.log.WithFields(logrus.Fields{
			"offer":   offerID,
			"listing": content.ListingID,
		}).Debug("Offer for unknown listing")
		return
	}

	e.mu.Lock()
	busy := e.countRoleLocked(RoleSeller) >= maxSellerTrades
	e.mu.Unlock()
	if busy {
		e.log.WithField("offer", offerID).Debug("Seller trade slots full, ignoring offer")
		return
	}

	trust := e.cfg.Trust.Trust(ev.PubKey)
	if e.cfg.Decider.ShouldAcceptOffer(prog.PriceSats, content.OfferSats, trust) {
		e.acceptOffer(ctx, ev, offerID, prog, content.OfferSats)
	} else {
		e.rejectOffer(ctx, ev, offerID, prog, content.OfferSats)
	}
}

func (e *Engine) acceptOffer(ctx context.Context, ev *models.Event, offerID string, prog *models.Program, offerSats int64) {
	content := models.AcceptContent{
		ListingID:    prog.ID,
		AcceptedSats: offerSats,
		MintURL:      e.cfg.MintURL,
		Instructions: "Send Cashu token",
	}
	raw, err := models.CompactJSON(content)
	if err != nil {
		e.log.WithField("offer", offerID).Warnf("Encode accept: %v", err)
		return
	}
	reply := tradeEvent(models.KindTradeAccept, raw, ev.PubKey, ev.ID, "reply", offerID)
	if err := e.cfg.Publisher.Publish(ctx, reply); err != nil {
		e.log.WithField("offer", offerID).Warnf("Publish accept: %v", err)
		return
	}

	now := time.Now()
	e.mu.Lock()
	e.trades[offerID] = &Trade{
		OfferID:      offerID,
		Role:         RoleSeller,
		State:        StateAccepted,
		Counterparty: ev.PubKey,
		ListingID:    prog.ID,
		AmountSats:   offerSats,
		StartedAt:    now.Unix(),
		DeadlineAt:   now.Add(paymentTimeout).Unix(),
	}
	e.mu.Unlock()

	if e.cfg.Notifier != nil {
		e.cfg.Notifier.OfferAccepted(ev.PubKey, prog.Name, offerSats)
	}
	e.log.WithFields(logrus.Fields{
		"offer":   offerID,
		"program": prog.Name,
		"sats":    offerSats,
	}).Info("Accepted offer")
}

func (e *Engine) rejectOffer(ctx context.Context, ev *models.Event, offerID string, prog *models.Program, offerSats int64) {
	content := models.RejectContent{
		ListingID: prog.ID,
		Reason:    "Price too low",
	}
	if counter, ok := e.cfg.Decider.CounterOffer(prog.PriceSats, offerSats); ok {
		content.CounterOfferSats = counter
	}
	raw, err := models.CompactJSON(content)
	if err != nil {
		e.log.WithField("offer", offerID).Warnf("Encode reject: %v", err)
		return
	}
	reply := tradeEvent(models.KindTradeReject, raw, ev.PubKey, ev.ID, "reply", offerID)
	if err := e.cfg.Publisher.Publish(ctx, reply); err != nil {
		e.log.WithField("offer", offerID).Warnf("Publish reject: %v", err)
		return
	}

	if e.cfg.Notifier != nil {
		e.cfg.Notifier.OfferRejected(prog.Name)
	}
	e.log.WithFields(logrus.Fields{
		"offer":   offerID,
		"program": prog.Name,
		"sats":    offerSats,
		"counter": content.CounterOfferSats,
	}).Info("Rejected offer")
}

// onAccept is the buyer receiving a kind-4201 accept: pay or walk. An
// accept that lands after the offer deadline is ignored; the sweep
// settles the trade.
func (e *Engine) onAccept(ctx context.Context, ev *models.Event) {
	offerID := ev.TagValue("offer_id")

	e.mu.Lock()
	t, ok := e.trades[offerID]
	if !ok || t.Role != RoleBuyer || t.State != StateOffered {
		e.mu.Unlock()
		e.log.WithField("offer", offerID).Debug("Accept for no live offer")
		return
	}
	seller := t.Counterparty
	listingID := t.ListingID
	amount := t.AmountSats
	deadline := t.DeadlineAt
	e.mu.Unlock()

	if time.Now().Unix() > deadline {
		e.log.WithField("offer", offerID).Debug("Accept arrived after offer expired")
		return
	}

	var content models.AcceptContent
	if err := json.Unmarshal([]byte(ev.Content), &content); err != nil {
		e.log.WithField("offer", offerID).Debug("Malformed accept content")
		return
	}
	if content.AcceptedSats > 0 {
		amount = content.AcceptedSats
	}

	token, err := e.cfg.Wallet.CreatePayment(ctx, amount)
	if err != nil {
		e.log.WithFields(logrus.Fields{
			"offer": offerID,
			"sats":  amount,
		}).Warnf("Payment creation failed: %v", err)
		return
	}

	payload := models.PaymentPayload{
		ListingID:  listingID,
		Token:      token,
		AmountSats: amount,
		PaymentID:  uuid.NewString()[:8],
	}
	plaintext, err := models.CompactJSON(payload)
	if err != nil {
		e.log.WithField("offer", offerID).Warnf("Encode payment: %v", err)
		return
	}
	envelope, err := e.cfg.Cipher.Encrypt(plaintext, seller)
	if err != nil {
		e.log.WithField("offer", offerID).Warnf("Encrypt payment: %v", err)
		return
	}
	reply := tradeEvent(models.KindPayment, envelope, seller, ev.ID, "reply", offerID)
	if err := e.cfg.Publisher.Publish(ctx, reply); err != nil {
		e.log.WithField("offer", offerID).Warnf("Publish payment: %v", err)
		return
	}

	e.mu.Lock()
	t, ok = e.trades[offerID]
	if ok {
		t.State = StatePaid
		t.AmountSats = amount
		t.PaymentEventID = reply.ID
		t.DeadlineAt = time.Now().Add(deliveryTimeout).Unix()
	}
	e.mu.Unlock()
	if !ok {
		e.log.WithField("offer", offerID).Warn("Trade expired while paying")
		return
	}

	if e.cfg.Notifier != nil {
		e.cfg.Notifier.PaymentSent(amount)
	}
	e.log.WithFields(logrus.Fields{
		"offer": offerID,
		"sats":  amount,
	}).Info("Payment sent")
}

// onReject is the buyer receiving a kind-4202. The interaction is
// recorded with a neutral outcome so the seller's trade count grows.
func (e *Engine) onReject(ev *models.Event) {
	offerID := ev.TagValue("offer_id")

	e.mu.Lock()
	t, ok := e.trades[offerID]
	if ok {
		delete(e.trades, offerID)
	}
	e.mu.Unlock()
	if !ok {
		e.log.WithField("offer", offerID).Debug("Reject for no live offer")
		return
	}

	e.cfg.Trust.Update(ev.PubKey, reputation.OutcomeTradeRejected, 0)

	var content models.RejectContent
	_ = json.Unmarshal([]byte(ev.Content), &content)
	e.log.WithFields(logrus.Fields{
		"offer":   offerID,
		"listing": t.ListingID,
		"reason":  content.Reason,
		"counter": content.CounterOfferSats,
	}).Info("Offer rejected by seller")
}

// onPayment is the seller receiving an encrypted kind-4204 token:
// redeem it, then deliver the program source in one pass. A payment is
// only valid against an ACCEPTED sale; anything else — including a
// replay against a sale already PAID or DELIVERED — is dropped before
// the token is touched.
func (e *Engine) onPayment(ctx context.Context, ev *models.Event) {
	offerID := ev.TagValue("offer_id")

	e.mu.Lock()
	t, ok := e.trades[offerID]
	if !ok || t.Role != RoleSeller || t.State != StateAccepted {
		e.mu.Unlock()
		e.log.WithField("offer", offerID).Debug("Payment for no accepted sale")
		return
	}
	buyer := t.Counterparty
	listingID := t.ListingID
	deadline := t.DeadlineAt
	e.mu.Unlock()

	if time.Now().Unix() > deadline {
		e.log.WithField("offer", offerID).Debug("Payment arrived after sale expired")
		return
	}

	plaintext, err := e.cfg.Cipher.Decrypt(ev.Content, buyer)
	if err != nil {
		e.cfg.Trust.Update(buyer, reputation.OutcomePaymentFailed, 0)
		e.log.WithField("offer", offerID).Warnf("Undecryptable payment: %v", err)
		return
	}
	var payload models.PaymentPayload
	if err := json.Unmarshal([]byte(plaintext), &payload); err != nil {
		e.cfg.Trust.Update(buyer, reputation.OutcomePaymentFailed, 0)
		e.log.WithField("offer", offerID).Warnf("Malformed payment payload: %v", err)
		return
	}

	amount, err := e.cfg.Wallet.ReceivePayment(ctx, payload.Token)
	if err != nil {
		e.cfg.Trust.Update(buyer, reputation.OutcomePaymentFailed, 0)
		e.log.WithField("offer", offerID).Warnf("Payment redemption failed: %v", err)
		return
	}

	e.mu.Lock()
	e.counters.SatsEarned += amount
	t, ok = e.trades[offerID]
	if ok {
		t.State = StatePaid
		t.PaymentEventID = ev.ID
		t.DeadlineAt = time.Now().Add(deliveryTimeout).Unix()
	}
	e.mu.Unlock()
	if !ok {
		e.log.WithField("offer", offerID).Warn("Trade expired during payment redemption")
		return
	}
	e.log.WithFields(logrus.Fields{
		"offer": offerID,
		"sats":  amount,
	}).Info("Payment received")

	e.deliver(ctx, ev, offerID, buyer, listingID)
}

// deliver encrypts the sold program's source to the buyer and advances
// the sale to DELIVERED.
func (e *Engine) deliver(ctx context.Context, ev *models.Event, offerID, buyer, listingID string) {
	prog, ok := e.cfg.Inventory.Program(listingID)
	if !ok {
		e.log.WithFields(logrus.Fields{
			"offer":   offerID,
			"listing": listingID,
		}).Warn("No program for paid listing")
		return
	}
	source, err := e.cfg.Inventory.Source(prog)
	if err != nil {
		e.log.WithField("offer", offerID).Warnf("Load source: %v", err)
		return
	}
	sum := sha256.Sum256([]byte(source))

	payload := models.DeliveryPayload{
		ListingID: listingID,
		Language:  "python",
		Source:    source,
		SHA256:    hex.EncodeToString(sum[:]),
	}
	plaintext, err := models.CompactJSON(payload)
	if err != nil {
		e.log.WithField("offer", offerID).Warnf("Encode delivery: %v", err)
		return
	}
	envelope, err := e.cfg.Cipher.Encrypt(plaintext, buyer)
	if err != nil {
		e.log.WithField("offer", offerID).Warnf("Encrypt delivery: %v", err)
		return
	}
	reply := tradeEvent(models.KindDelivery, envelope, buyer, ev.ID, "reply", offerID)
	if err := e.cfg.Publisher.Publish(ctx, reply); err != nil {
		e.log.WithField("offer", offerID).Warnf("Publish delivery: %v", err)
		return
	}

	e.mu.Lock()
	t, ok := e.trades[offerID]
	if ok {
		t.State = StateDelivered
		t.DeliveryEventID = reply.ID
		t.DeadlineAt = time.Now().Add(deliveryTimeout).Unix()
	}
	e.mu.Unlock()
	if !ok {
		e.log.WithField("offer", offerID).Warn("Trade expired during delivery")
		return
	}

	e.log.WithFields(logrus.Fields{
		"offer":   offerID,
		"program": prog.Name,
	}).Info("Delivered program")
}

// onDelivery is the buyer receiving encrypted kind-4210 source: verify
// the digest, keep the program, confirm with a kind-4203. A delivery is
// only valid against a PAID purchase; a seller pushing source at a
// trade that was never paid for gets dropped here.
func (e *Engine) onDelivery(ctx context.Context, ev *models.Event) {
	offerID := ev.TagValue("offer_id")

	e.mu.Lock()
	t, ok := e.trades[offerID]
	if !ok || t.Role != RoleBuyer || t.State != StatePaid {
		e.mu.Unlock()
		e.log.WithField("offer", offerID).Debug("Delivery for no paid purchase")
		return
	}
	seller := t.Counterparty
	listingID := t.ListingID
	amount := t.AmountSats
	deadline := t.DeadlineAt
	e.mu.Unlock()

	if time.Now().Unix() > deadline {
		e.log.WithField("offer", offerID).Debug("Delivery arrived after purchase expired")
		return
	}

	plaintext, err := e.cfg.Cipher.Decrypt(ev.Content, seller)
	if err != nil {
		e.log.WithField("offer", offerID).Warnf("Undecryptable delivery: %v", err)
		return
	}
	var payload models.DeliveryPayload
	if err := json.Unmarshal([]byte(plaintext), &payload); err != nil {
		e.log.WithField("offer", offerID).Warnf("Malformed delivery payload: %v", err)
		return
	}

	sum := sha256.Sum256([]byte(payload.Source))
	if hex.EncodeToString(sum[:]) != payload.SHA256 {
		e.mu.Lock()
		delete(e.trades, offerID)
		e.counters.Failed++
		e.mu.Unlock()
		e.cfg.Trust.Update(seller, reputation.OutcomeDeliveryTimeout, 0)
		e.log.WithField("offer", offerID).Warn("Delivery hash mismatch, dropping trade")
		return
	}

	if err := e.cfg.Inventory.SaveReceived(listingID, payload.Source); err != nil {
		e.log.WithField("offer", offerID).Warnf("Save received program: %v", err)
		return
	}

	content := models.CompleteContent{
		ListingID:      listingID,
		Status:         "complete",
		SHA256Verified: true,
	}
	raw, err := models.CompactJSON(content)
	if err != nil {
		e.log.WithField("offer", offerID).Warnf("Encode complete: %v", err)
		return
	}
	reply := tradeEvent(models.KindTradeComplete, raw, seller, ev.ID, "reply", offerID)
	if err := e.cfg.Publisher.Publish(ctx, reply); err != nil {
		e.log.WithField("offer", offerID).Warnf("Publish complete: %v", err)
		return
	}

	e.mu.Lock()
	delete(e.trades, offerID)
	e.counters.Bought++
	e.counters.SatsSpent += amount
	e.mu.Unlock()

	e.cfg.Trust.Update(seller, reputation.OutcomeTradeSuccess, amount)
	if e.cfg.Notifier != nil {
		e.cfg.Notifier.CompletedAsBuyer(seller, listingID, amount)
	}
	e.log.WithFields(logrus.Fields{
		"offer":   offerID,
		"listing": listingID,
		"sats":    amount,
	}).Info("Purchase complete")
}

// onComplete is the seller receiving the buyer's kind-4203
// confirmation, closing the sale. Only a DELIVERED sale can complete;
// a confirmation against an unpaid or undelivered sale is dropped.
func (e *Engine) onComplete(ev *models.Event) {
	offerID := ev.TagValue("offer_id")

	e.mu.Lock()
	t, ok := e.trades[offerID]
	if !ok || t.Role != RoleSeller || t.State != StateDelivered {
		e.mu.Unlock()
		e.log.WithField("offer", offerID).Debug("Complete for no delivered sale")
		return
	}
	buyer := t.Counterparty
	listingID := t.ListingID
	amount := t.AmountSats
	delete(e.trades, offerID)
	e.counters.Sold++
	e.counters.Completed++
	e.mu.Unlock()

	e.cfg.Trust.Update(buyer, reputation.OutcomeTradeSuccess, amount)

	name := listingID
	if prog, ok := e.cfg.Inventory.Program(listingID); ok {
		name = prog.Name
	}
	if e.cfg.Notifier != nil {
		e.cfg.Notifier.CompletedAsSeller(buyer, name, amount)
	}
	e.log.WithFields(logrus.Fields{
		"offer":   offerID,
		"program": name,
		"sats":    amount,
	}).Info("Trade complete")
}

// ExpireStale sweeps trades past their deadline, penalizing the
// counterparty: a light penalty for an unanswered offer, a heavy one
// for a trade abandoned after acceptance. Returns the number dropped.
func (e *Engine) ExpireStale() int {
	type expiry struct {
		offerID string
		peer    string
		role    string
		state   string
		outcome string
	}
	now := time.Now().Unix()

	var expired []expiry
	e.mu.Lock()
	for id, t := range e.trades {
		if now <= t.DeadlineAt {
			continue
		}
		outcome := reputation.OutcomeDeliveryTimeout
		if t.State == StateOffered {
			outcome = reputation.OutcomeOfferTimeout
		}
		expired = append(expired, expiry{
			offerID: id,
			peer:    t.Counterparty,
			role:    t.Role,
			state:   t.State,
			outcome: outcome,
		})
		delete(e.trades, id)
		e.counters.Failed++
	}
	e.mu.Unlock()

	for _, x := range expired {
		e.cfg.Trust.Update(x.peer, x.outcome, 0)
		e.log.WithFields(logrus.Fields{
			"offer":   x.offerID,
			"role":    x.role,
			"state":   x.state,
			"outcome": x.outcome,
		}).Warn("Trade expired")
	}
	return len(expired)
}

// ActiveCount returns the number of live trades on both sides.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.trades)
}

// BuyerCount returns the number of live trades where this agent is the
// buyer.
func (e *Engine) BuyerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.countRoleLocked(RoleBuyer)
}

// Snapshot copies the live trades for the agent's state file.
func (e *Engine) Snapshot() map[string]Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]Trade, len(e.trades))
	for id, t := range e.trades {
		out[id] = *t
	}
	return out
}

// Restore loads trades from a state snapshot. Terminal entries are
// skipped; their outcomes were already counted.
func (e *Engine) Restore(trades map[string]Trade) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, t := range trades {
		if t.terminal() {
			continue
		}
		cp := t
		e.trades[id] = &cp
	}
}

// Counters returns a copy of the cumulative trade statistics.
func (e *Engine) Counters() Counters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counters
}

// SetCounters seeds statistics from a state snapshot.
func (e *Engine) SetCounters(c Counters) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counters = c
}

// countRoleLocked counts live trades on one side. Caller holds mu.
func (e *Engine) countRoleLocked(role string) int {
	n := 0
	for _, t := range e.trades {
		if t.Role == role && !t.terminal() {
			n++
		}
	}
	return n
}

// tradeEvent builds the common three-tag trade event: the counterparty,
// the event being answered, and the offer id correlating the whole
// exchange.
func tradeEvent(kind int, content, peer, ref, marker, offerID string) *models.Event {
	return &models.Event{
		Kind:    kind,
		Content: content,
		Tags: []models.Tag{
			{"p", peer},
			{"e", ref, "", marker},
			{"offer_id", offerID},
		},
	}
}
