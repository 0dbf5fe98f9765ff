package models

// Complexity tiers for generated programs.
const (
	ComplexitySimple  = "simple"
	ComplexityMedium  = "medium"
	ComplexityComplex = "complex"
)

// Program is a unit of tradeable inventory owned by an agent. Source text
// lives on disk under programs/<id>.py; this struct carries the metadata
// that is listed, priced, and persisted in the state snapshot.
type Program struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Description    string  `json:"description,omitempty"`
	Category       string  `json:"category"`
	Complexity     string  `json:"complexity"`
	PriceSats      int64   `json:"priceSats"`
	ProductionCost int64   `json:"productionCost"`
	Quality        float64 `json:"quality"` // in [0,1]; decays each tick, discard below 0.1
	Listed         bool    `json:"listed"`
	ListedAt       int64   `json:"listedAt,omitempty"`       // unix seconds of the last listing publish
	ListingEventID string  `json:"listingEventId,omitempty"` // last 30078 event id, used by kind-5 delists
	CreatedAt      int64   `json:"createdAt"`
	Acquired       bool    `json:"acquired,omitempty"` // bought from a peer rather than produced
}

// Listing is a marketplace snapshot of another agent's program, built from
// an observed kind-30078 event. Held in memory only; evicted 30 minutes
// after the event's own timestamp.
type Listing struct {
	SellerPubKey string  `json:"sellerPubkey"`
	SellerName   string  `json:"sellerName,omitempty"` // from kind-0 profiles, best effort
	DTag         string  `json:"dTag"`                 // = seller's program id, the upsert key
	EventID      string  `json:"eventId"`
	Name         string  `json:"name"`
	Category     string  `json:"category"`
	PriceSats    int64   `json:"priceSats"`
	Complexity   string  `json:"complexity"`
	Preview      string  `json:"preview,omitempty"`
	Quality      float64 `json:"quality,omitempty"`
	CreatedAt    int64   `json:"createdAt"`  // event timestamp, unix seconds
	ObservedAt   int64   `json:"observedAt"` // unix seconds
}

// ListingContent is the JSON content of a kind-30078 listing event.
// Key names are part of the wire protocol.
type ListingContent struct {
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	Language     string  `json:"language"`
	Version      string  `json:"version"`
	Category     string  `json:"category"`
	Complexity   string  `json:"complexity"`
	PriceSats    int64   `json:"price_sats"`
	Preview      string  `json:"preview"`
	QualityScore float64 `json:"quality_score,omitempty"`
}
