package models

import (
	"bytes"
	"encoding/json"
)

// Wire payload schemas for the trade event kinds and telemetry. Key names
// are part of the wire protocol; both sides of every trade parse these.

// CompactJSON marshals v the way event content goes on the wire: compact,
// UTF-8 preserved, no HTML escaping.
func CompactJSON(v interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// OfferContent is the kind-4200 content.
type OfferContent struct {
	ListingID string `json:"listing_id"`
	OfferSats int64  `json:"offer_sats"`
	Message   string `json:"message,omitempty"`
}

// AcceptContent is the kind-4201 content.
type AcceptContent struct {
	ListingID    string `json:"listing_id"`
	AcceptedSats int64  `json:"accepted_sats"`
	MintURL      string `json:"cashu_mint,omitempty"`
	Instructions string `json:"payment_instructions,omitempty"`
}

// RejectContent is the kind-4202 content.
type RejectContent struct {
	ListingID        string `json:"listing_id"`
	Reason           string `json:"reason,omitempty"`
	CounterOfferSats int64  `json:"counter_offer_sats,omitempty"`
}

// PaymentPayload is the plaintext inside a kind-4204 encrypted envelope.
type PaymentPayload struct {
	ListingID  string `json:"listing_id"`
	Token      string `json:"token"`
	AmountSats int64  `json:"amount_sats"`
	PaymentID  string `json:"payment_id"`
}

// DeliveryPayload is the plaintext inside a kind-4210 encrypted envelope.
type DeliveryPayload struct {
	ListingID string `json:"listing_id"`
	Language  string `json:"language"`
	Source    string `json:"source"`
	SHA256    string `json:"sha256"`
}

// CompleteContent is the kind-4203 content.
type CompleteContent struct {
	ListingID      string `json:"listing_id"`
	Status         string `json:"status"`
	SHA256Verified bool   `json:"sha256_verified"`
}

// StatusContent is the kind-4300 per-agent telemetry content.
type StatusContent struct {
	BalanceSats     int64  `json:"balance_sats"`
	ProgramsOwned   int    `json:"programs_owned"`
	ProgramsListed  int    `json:"programs_listed"`
	ActiveTrades    int    `json:"active_trades"`
	LastAction      string `json:"last_action"`
	TickCount       int64  `json:"tick_count"`
	Timestamp       int64  `json:"ts"`
}

// TreasuryContent is the kind-4301 fleet treasury telemetry content.
type TreasuryContent struct {
	TotalSats int64 `json:"total_sats"`
	Entries   int   `json:"entries"`
	Timestamp int64 `json:"ts"`
}

// ProfileContent is the kind-0 identity metadata content.
type ProfileContent struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	About       string `json:"about,omitempty"`
	Role        string `json:"role,omitempty"`
	Personality string `json:"personality,omitempty"`
}
