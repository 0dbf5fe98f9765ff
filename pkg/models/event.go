package models

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Event kinds used on the relay. 4200-4301 live in a private namespace;
// the rest follow the public protocol numbering.
const (
	KindProfile        = 0     // identity metadata (JSON profile)
	KindChat           = 1     // public text note
	KindDelete         = 5     // deletion, references an event id
	KindTradeOffer     = 4200  // trade offer (content JSON)
	KindTradeAccept    = 4201  // trade accept (content JSON)
	KindTradeReject    = 4202  // trade reject (content JSON, optional counter)
	KindTradeComplete  = 4203  // trade completion confirmation
	KindPayment        = 4204  // encrypted ecash payment envelope
	KindDelivery       = 4210  // encrypted program delivery envelope
	KindAgentStatus    = 4300  // per-agent status telemetry
	KindTreasuryStatus = 4301  // fleet treasury telemetry
	KindZapReceipt     = 9735  // zap receipts, observed but not acted on
	KindListing        = 30078 // parameterized replaceable listing, addressed by d-tag
)

// Tag is an ordered list of short strings; the first element is the tag name.
type Tag []string

// Event is a signed message on the wire. Field names are fixed by the relay
// protocol and must not be renamed.
type Event struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"` // unix seconds
	Kind      int    `json:"kind"`
	Tags      []Tag  `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// Serialize returns the canonical id preimage: the JSON array
// [0, pubkey, created_at, kind, tags, content] encoded compactly with
// UTF-8 preserved (no HTML escaping, no insignificant whitespace).
func (e *Event) Serialize() ([]byte, error) {
	tags := e.Tags
	if tags == nil {
		tags = []Tag{}
	}
	arr := []interface{}{0, e.PubKey, e.CreatedAt, e.Kind, tags, e.Content}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(arr); err != nil {
		return nil, fmt.Errorf("serialize event: %v", err)
	}
	// Encode appends a newline that is not part of the canonical form.
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ComputeID returns the hex SHA-256 of the canonical serialization.
func (e *Event) ComputeID() (string, error) {
	ser, err := e.Serialize()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(ser)
	return hex.EncodeToString(sum[:]), nil
}

// TagValue returns the second element of the first tag named `name`,
// or "" if absent.
func (e *Event) TagValue(name string) string {
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == name {
			return t[1]
		}
	}
	return ""
}

// TagValues returns the second element of every tag named `name`.
func (e *Event) TagValues(name string) []string {
	var vals []string
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == name {
			vals = append(vals, t[1])
		}
	}
	return vals
}

// Filter selects events in a REQ subscription. Hash-prefixed keys are tag
// queries per the protocol.
type Filter struct {
	IDs     []string `json:"ids,omitempty"`
	Authors []string `json:"authors,omitempty"`
	Kinds   []int    `json:"kinds,omitempty"`
	PTags   []string `json:"#p,omitempty"`
	ETags   []string `json:"#e,omitempty"`
	DTags   []string `json:"#d,omitempty"`
	Since   int64    `json:"since,omitempty"`
	Until   int64    `json:"until,omitempty"`
	Limit   *int     `json:"limit,omitempty"` // pointer so an explicit 0 survives marshaling
}

// IntPtr is a convenience for Filter.Limit literals.
func IntPtr(v int) *int { return &v }
