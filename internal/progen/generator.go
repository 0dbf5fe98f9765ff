// Package progen renders complete, runnable Python programs from an
// embedded template catalog, priced and quality-scored by the producing
// agent's personality.
package progen

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zapempire/economy-engine/internal/strategy"
	"github.com/zapempire/economy-engine/pkg/models"
)

// complexityMultipliers scale the family base price per complexity tier.
var complexityMultipliers = map[string]float64{
	models.ComplexitySimple:  0.7,
	models.ComplexityMedium:  1.0,
	models.ComplexityComplex: 1.5,
}

var complexities = []string{
	models.ComplexitySimple,
	models.ComplexityMedium,
	models.ComplexityComplex,
}

// Generator produces programs for one agent. Not safe for concurrent use;
// each agent owns its own.
type Generator struct {
	personality strategy.Personality
	baseCost    func(category string) int64
	rng         *rand.Rand
	generated   int
}

// NewGenerator builds a generator for the given personality. baseCost maps
// a category to its base production cost (config.Config.ProductionCost);
// nil falls back to 70 flat. A nil rng gets a time-seeded source.
func NewGenerator(p strategy.Personality, baseCost func(string) int64, rng *rand.Rand) *Generator {
	if baseCost == nil {
		baseCost = func(string) int64 { return 70 }
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{personality: p, baseCost: baseCost, rng: rng}
}

// Generate renders a new program in the given category: random family,
// variant, and complexity, priced at family base x personality price
// multiplier x complexity multiplier with a 10 sat floor. Returns the
// program metadata and its full Python source.
func (g *Generator) Generate(category string) (*models.Program, string, error) {
	families, ok := catalog[category]
	if !ok || len(families) == 0 {
		return nil, "", fmt.Errorf("no templates for category %q", category)
	}
	tmpl := families[g.rng.Intn(len(families))]
	variant := tmpl.Variants[g.rng.Intn(len(tmpl.Variants))]
	complexity := complexities[g.rng.Intn(len(complexities))]

	source := buildSource(tmpl, variant)

	price := int64(float64(tmpl.BasePrice) * g.personality.PriceMultiplier * complexityMultipliers[complexity])
	if price < 10 {
		price = 10
	}

	prog := &models.Program{
		ID:             uuid.NewString(),
		Name:           strings.ReplaceAll(tmpl.NamePattern, "{variant}", variant),
		Category:       category,
		Complexity:     complexity,
		PriceSats:      price,
		ProductionCost: g.ProductionCost(category),
		Quality:        g.initialQuality(category),
		CreatedAt:      time.Now().Unix(),
	}
	g.generated++
	return prog, source, nil
}

// ProductionCost is what producing one program in the category costs this
// personality: base cost x the focus/other or flat multiplier, floor 1.
func (g *Generator) ProductionCost(category string) int64 {
	base := g.baseCost(category)
	cost := int64(float64(base) * g.personality.ProductionCostMultiplier(category))
	if cost < 1 {
		cost = 1
	}
	return cost
}

// Count reports how many programs this generator has produced.
func (g *Generator) Count() int {
	return g.generated
}

// initialQuality rolls the starting quality score. Specialists get a high
// roll in their focus categories; everyone else starts from a band set by
// their price multiplier, with small variance, clamped to [0.1, 1.0].
func (g *Generator) initialQuality(category string) float64 {
	p := g.personality
	if p.CostFocus > 0 && p.HasFocus(category) {
		q := 0.9 * g.uniform(0.95, 1.05)
		if q > 1.0 {
			q = 1.0
		}
		return q
	}

	base := 0.55
	switch p.PriceMultiplier {
	case 1.2:
		base = 0.60
	case 0.8:
		base = 0.55
	case 1.3:
		base = 0.50
	case 1.0:
		base = 0.58
	}
	q := base * g.uniform(0.90, 1.10)
	if q > 1.0 {
		q = 1.0
	}
	if q < 0.1 {
		q = 0.1
	}
	return q
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}

// buildSource renders the skeleton with the variant's body, main block,
// description, and limit spliced in.
func buildSource(t Template, variant string) string {
	limit := 10
	if v, ok := t.Limits[variant]; ok {
		limit = v
	}
	return formatSkeleton(t.Skeleton, map[string]string{
		"variant":     variant,
		"body":        t.BodyVariants[variant],
		"main_body":   t.MainVariants[variant],
		"description": t.Descriptions[variant],
		"limit":       strconv.Itoa(limit),
	})
}

// formatSkeleton substitutes {field} placeholders and collapses doubled
// braces, python str.format style. Substituted values are inserted
// verbatim, never rescanned.
func formatSkeleton(s string, vals map[string]string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		switch c := s[i]; c {
		case '{':
			if i+1 < len(s) && s[i+1] == '{' {
				b.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(s[i:], '}')
			if end < 0 {
				b.WriteString(s[i:])
				return b.String()
			}
			b.WriteString(vals[s[i+1:i+end]])
			i += end + 1
		case '}':
			if i+1 < len(s) && s[i+1] == '}' {
				b.WriteByte('}')
				i += 2
				continue
			}
			b.WriteByte('}')
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}
