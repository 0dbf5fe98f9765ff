// Package trade drives the five-state trade protocol over kinds
// 4200-4210: offers, accept/reject negotiation, encrypted ecash payment,
// encrypted source delivery, and completion, for both the buyer and
// seller roles at once. The short offer id is the sole correlator both
// parties share.
package trade

// Trade states. OFFERED through COMPLETE is the happy path; REJECTED
// covers both an explicit 4202 and any timeout.
const (
	StateOffered   = "OFFERED"
	StateAccepted  = "ACCEPTED"
	StatePaid      = "PAID"
	StateDelivered = "DELIVERED"
	StateComplete  = "COMPLETE"
	StateRejected  = "REJECTED"
)

// Sides of a trade.
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
)

// Trade is one live negotiation. Instances are created when an offer is
// sent or accepted and destroyed on COMPLETE, REJECTED, or expiry; they
// also ride along in the agent's state snapshot.
type Trade struct {
	OfferID         string `json:"offerId"`
	Role            string `json:"role"`
	State           string `json:"state"`
	Counterparty    string `json:"counterparty"`
	ListingID       string `json:"listingId"`
	AmountSats      int64  `json:"amountSats"`
	StartedAt       int64  `json:"startedAt"`
	DeadlineAt      int64  `json:"deadlineAt"`
	PaymentEventID  string `json:"paymentEventId,omitempty"`
	DeliveryEventID string `json:"deliveryEventId,omitempty"`
}

// terminal reports whether the trade no longer occupies a concurrency
// slot.
func (t *Trade) terminal() bool {
	return t.State == StateComplete || t.State == StateRejected
}

// Counters are the engine's cumulative statistics, merged into the
// agent's persisted stats block.
type Counters struct {
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	SatsEarned int64 `json:"satsEarned"`
	SatsSpent  int64 `json:"satsSpent"`
	Bought     int64 `json:"bought"`
	Sold       int64 `json:"sold"`
}
