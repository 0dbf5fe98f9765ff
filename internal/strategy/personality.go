package strategy

import "fmt"

// Creation rates gate how often an agent produces on a tick.
const (
	CreationLow      = "low"
	CreationMedium   = "medium"
	CreationHigh     = "high"
	CreationAdaptive = "adaptive"
)

// Personality tunes an agent's economic behavior. Specialists carry a
// CategoryFocus and split production costs between focus and off-focus
// work; everyone else uses the flat CostMultiplier.
type Personality struct {
	Name            string
	PriceMultiplier float64
	SpendingRatio   float64
	AcceptThreshold float64
	TrustMinimum    float64
	CreationRate    string
	RiskTolerance   float64
	CostMultiplier  float64
	CostFocus       float64
	CostOther       float64
	CategoryFocus   []string
	AdaptiveFocus   bool
}

// ProductionCostMultiplier scales the base production cost for a category.
func (p Personality) ProductionCostMultiplier(category string) float64 {
	if len(p.CategoryFocus) > 0 {
		for _, c := range p.CategoryFocus {
			if c == category {
				return p.CostFocus
			}
		}
		return p.CostOther
	}
	if p.CostMultiplier > 0 {
		return p.CostMultiplier
	}
	return 1.0
}

// HasFocus reports whether category is one of the personality's focus
// categories.
func (p Personality) HasFocus(category string) bool {
	for _, c := range p.CategoryFocus {
		if c == category {
			return true
		}
	}
	return false
}

var personalities = map[string]Personality{
	"conservative": {
		Name:            "conservative",
		PriceMultiplier: 1.2,
		SpendingRatio:   0.10,
		AcceptThreshold: 0.95,
		TrustMinimum:    0.6,
		CreationRate:    CreationLow,
		RiskTolerance:   0.2,
		CostMultiplier:  1.0,
	},
	"aggressive": {
		Name:            "aggressive",
		PriceMultiplier: 0.8,
		SpendingRatio:   0.35,
		AcceptThreshold: 0.70,
		TrustMinimum:    0.3,
		CreationRate:    CreationHigh,
		RiskTolerance:   0.7,
		CostMultiplier:  0.7,
	},
	"specialist": {
		Name:            "specialist",
		PriceMultiplier: 1.3,
		SpendingRatio:   0.20,
		AcceptThreshold: 0.90,
		TrustMinimum:    0.5,
		CreationRate:    CreationMedium,
		RiskTolerance:   0.4,
		CostFocus:       0.4,
		CostOther:       1.5,
	},
	"generalist": {
		Name:            "generalist",
		PriceMultiplier: 1.0,
		SpendingRatio:   0.25,
		AcceptThreshold: 0.85,
		TrustMinimum:    0.4,
		CreationRate:    CreationMedium,
		RiskTolerance:   0.5,
		CostMultiplier:  1.2,
	},
	"opportunist": {
		Name:            "opportunist",
		PriceMultiplier: 1.0,
		SpendingRatio:   0.30,
		AcceptThreshold: 0.75,
		TrustMinimum:    0.35,
		CreationRate:    CreationAdaptive,
		RiskTolerance:   0.6,
		CostMultiplier:  0.9,
		AdaptiveFocus:   true,
	},
}

// Profile is one row of the fixed ten-agent roster.
type Profile struct {
	Index                int
	ID                   string // process/data-dir id, "user0".."user9"
	DisplayName          string
	Personality          Personality
	ProductionCategories []string
}

type rosterRow struct {
	displayName string
	personality string
	focus       []string
	production  []string
}

var roster = []rosterRow{
	{"ぼたん", "conservative", nil, []string{"math", "text", "validators"}},
	{"わんたん", "conservative", nil, []string{"data_structures", "converters", "utilities"}},
	{"みかたん", "aggressive", nil, []string{"text", "generators", "converters", "utilities"}},
	{"ぷりたん", "aggressive", nil, []string{"crypto", "validators", "math", "generators"}},
	{"くろたん", "specialist", []string{"math", "crypto"}, []string{"math", "crypto"}},
	{"しろたん", "specialist", []string{"data_structures", "text"}, []string{"data_structures", "text"}},
	{"あおたん", "generalist", nil, []string{"math", "text", "data_structures", "crypto", "utilities"}},
	{"もちたん", "generalist", nil, []string{"generators", "converters", "validators", "utilities", "text"}},
	{"ぽんたん", "opportunist", nil, []string{"crypto", "utilities", "generators"}},
	{"りんたん", "opportunist", nil, []string{"converters", "validators", "data_structures"}},
}

// ProfileFor returns the fixed roster row for an agent index (0-9).
func ProfileFor(index int) (Profile, error) {
	if index < 0 || index >= len(roster) {
		return Profile{}, fmt.Errorf("agent index %d out of range 0-%d", index, len(roster)-1)
	}
	row := roster[index]
	p := personalities[row.personality]
	if len(row.focus) > 0 {
		p.CategoryFocus = row.focus
	}
	return Profile{
		Index:                index,
		ID:                   fmt.Sprintf("user%d", index),
		DisplayName:          row.displayName,
		Personality:          p,
		ProductionCategories: row.production,
	}, nil
}
