package strategy

import (
	"math/rand"
	"time"

	"github.com/zapempire/economy-engine/pkg/models"
)

// Actions an agent can pick on a tick.
const (
	ActionCreate       = "create"
	ActionBuy          = "buy"
	ActionAdjustPrices = "adjust_prices"
	ActionIdle         = "idle"
)

// AllCategories is the fixed marketplace taxonomy.
var AllCategories = []string{
	"math", "text", "data_structures", "crypto",
	"utilities", "generators", "converters", "validators",
}

// CategoryBasePrices anchor listing prices and value estimates, in sats.
var CategoryBasePrices = map[string]int64{
	"math":            150,
	"text":            200,
	"data_structures": 350,
	"crypto":          275,
	"utilities":       350,
	"generators":      200,
	"converters":      175,
	"validators":      250,
}

// ComplexityFactors scale prices by program complexity.
var ComplexityFactors = map[string]float64{
	models.ComplexitySimple:  0.5,
	models.ComplexityMedium:  1.0,
	models.ComplexityComplex: 2.0,
}

// creationRateProbs maps a personality's creation rate to the per-tick
// probability of producing a program.
var creationRateProbs = map[string]float64{
	CreationLow:      0.2,
	CreationMedium:   0.4,
	CreationHigh:     0.6,
	CreationAdaptive: 0.4,
}

const buyThreshold = 0.4

// TickState is the slice of agent state the action selector looks at.
type TickState struct {
	Balance        int64
	ActiveTrades   int
	MarketListings int
	ListedPrograms int
}

// Engine makes buy/sell/produce decisions for one agent. Not safe for
// concurrent use; the agent serializes calls under its own lock.
type Engine struct {
	params  Personality
	balance func() int64
	initial int64
	rng     *rand.Rand
}

// NewEngine builds a decision engine. balanceFn reports the current
// spendable balance in sats. A nil rng gets a time-seeded source.
func NewEngine(p Personality, balanceFn func() int64, initialBalance int64, rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{params: p, balance: balanceFn, initial: initialBalance, rng: rng}
}

// BudgetLimit is the max the agent will spend on a single trade.
func (e *Engine) BudgetLimit() int64 {
	return int64(float64(e.balance()) * e.params.SpendingRatio)
}

// ProgramPrice computes a listing price for a program in the given
// category and complexity, with a +/-10% roll. Floor 10 sats.
func (e *Engine) ProgramPrice(category, complexity string) int64 {
	base, ok := CategoryBasePrices[category]
	if !ok {
		base = 200
	}
	factor, ok := ComplexityFactors[complexity]
	if !ok {
		factor = 1.0
	}
	raw := int64(float64(base) * factor * e.params.PriceMultiplier)
	variation := 0.9 + e.rng.Float64()*0.2
	price := int64(float64(raw) * variation)
	if price < 10 {
		return 10
	}
	return price
}

// OfferPrice rolls an offer for a marketplace listing. Low-pricers
// lowball, high-pricers offer close to asking. Clamped to the budget
// limit, floor 1 sat. Returns 0 for an unpriced listing.
func (e *Engine) OfferPrice(listing *models.Listing) int64 {
	if listing.PriceSats <= 0 {
		return 0
	}
	var lo, hi float64
	switch {
	case e.params.PriceMultiplier < 1.0:
		lo, hi = 0.80, 0.95
	case e.params.PriceMultiplier > 1.1:
		lo, hi = 0.90, 1.00
	default:
		lo, hi = 0.85, 1.00
	}
	offer := int64(float64(listing.PriceSats) * (lo + e.rng.Float64()*(hi-lo)))
	if limit := e.BudgetLimit(); offer > limit {
		offer = limit
	}
	if offer < 1 {
		return 1
	}
	return offer
}

// ShouldBuy decides whether to pursue a listing, weighing category gaps,
// collection diversity, focus interest and price against estimated value.
func (e *Engine) ShouldBuy(listing *models.Listing, ownedCategories []string, sellerTrust float64) bool {
	if listing.PriceSats > e.BudgetLimit() {
		return false
	}
	if sellerTrust < e.params.TrustMinimum {
		return false
	}

	need := 0.0

	owned := false
	unique := map[string]struct{}{}
	for _, c := range ownedCategories {
		unique[c] = struct{}{}
		if c == listing.Category {
			owned = true
		}
	}
	if !owned {
		need += 0.4
	}
	if len(unique) < 5 {
		need += 0.2
	}

	need += e.rng.Float64() * 0.1

	if e.params.HasFocus(listing.Category) {
		need += 0.2
	}

	if est := e.EstimateValue(listing, sellerTrust); est > 0 && listing.PriceSats <= est {
		need += 0.2
	}

	return need >= buyThreshold
}

// EstimateValue prices a listing from its category base and complexity,
// discounted by seller trust (0.5x at zero trust, 1.0x at full).
func (e *Engine) EstimateValue(listing *models.Listing, sellerTrust float64) int64 {
	base, ok := CategoryBasePrices[listing.Category]
	if !ok {
		base = 200
	}
	complexity := listing.Complexity
	if complexity == "" {
		complexity = models.ComplexityMedium
	}
	factor, ok := ComplexityFactors[complexity]
	if !ok {
		factor = 1.0
	}
	trustFactor := 0.5 + sellerTrust*0.5
	return int64(float64(base) * factor * trustFactor)
}

// ShouldAcceptOffer decides whether a seller takes an incoming offer.
func (e *Engine) ShouldAcceptOffer(listingPrice, offerSats int64, buyerTrust float64) bool {
	if buyerTrust < e.params.TrustMinimum {
		return false
	}
	minAcceptable := int64(float64(listingPrice) * e.params.AcceptThreshold)
	return offerSats >= minAcceptable
}

// CounterOffer suggests a counter when rejecting an offer. No counter
// for offers under half the listing price.
func (e *Engine) CounterOffer(listingPrice, offerSats int64) (int64, bool) {
	if float64(offerSats) >= float64(listingPrice)*0.5 {
		return int64(float64(listingPrice) * e.params.AcceptThreshold), true
	}
	return 0, false
}

// SelectAction picks what the agent does this tick.
func (e *Engine) SelectAction(st TickState) string {
	// Busy agents sit out.
	if st.ActiveTrades >= 3 {
		return ActionIdle
	}

	if st.MarketListings > 0 && st.Balance > 500 {
		if e.rng.Float64() < 0.3 {
			return ActionBuy
		}
	}

	prob, ok := creationRateProbs[e.params.CreationRate]
	if !ok {
		prob = 0.4
	}
	// Poor agents produce to sell, rich agents ease off.
	if st.Balance < int64(float64(e.initial)*0.2) {
		prob *= 1.5
	} else if st.Balance > int64(float64(e.initial)*1.5) {
		prob *= 0.7
	}
	if len(e.params.CategoryFocus) > 0 {
		prob *= 1.2
	}
	if e.rng.Float64() < prob {
		return ActionCreate
	}

	if st.ListedPrograms > 0 && e.rng.Float64() < 0.15 {
		return ActionAdjustPrices
	}

	return ActionIdle
}

// SelectCategory picks a production category from the allowed set.
// Specialists land on a focus category 70% of the time.
func (e *Engine) SelectCategory(allowed []string) string {
	if len(allowed) == 0 {
		allowed = AllCategories
	}
	if len(e.params.CategoryFocus) > 0 {
		var focusAllowed []string
		for _, c := range e.params.CategoryFocus {
			for _, a := range allowed {
				if c == a {
					focusAllowed = append(focusAllowed, c)
					break
				}
			}
		}
		if len(focusAllowed) > 0 && e.rng.Float64() < 0.7 {
			return focusAllowed[e.rng.Intn(len(focusAllowed))]
		}
	}
	return allowed[e.rng.Intn(len(allowed))]
}
