package agent

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zapempire/economy-engine/internal/strategy"
	"github.com/zapempire/economy-engine/internal/trade"
	"github.com/zapempire/economy-engine/pkg/models"
)

const (
	// Listings untouched this long get marked down 10%.
	repriceAfter    = 5 * time.Minute
	minListingPrice = 10

	// Programs below this quality are worn out and discarded.
	minQuality = 0.1
)

// tick runs one economic cycle: sweep trades, decay trust and quality,
// then act.
func (a *Agent) tick(ctx context.Context) {
	a.mu.Lock()
	a.tickCount++
	n := a.tickCount
	a.mu.Unlock()

	a.trades.ExpireStale()
	a.ledger.DecayAll()
	a.depreciate(ctx)

	action := a.strategy.SelectAction(strategy.TickState{
		Balance:        a.wallet.Balance(),
		ActiveTrades:   a.trades.ActiveCount(),
		MarketListings: a.view.Count(),
		ListedPrograms: a.listedCount(),
	})
	a.log.WithFields(logrus.Fields{"tick": n, "action": action}).Debug("Tick")

	switch action {
	case strategy.ActionCreate:
		a.create(ctx)
	case strategy.ActionBuy:
		a.tryBuy(ctx)
	case strategy.ActionAdjustPrices:
		a.adjustPrices(ctx)
	default:
		a.idle(ctx)
	}

	if n%5 == 0 {
		a.publishStatus(ctx)
	}
}

// create produces one program and lists it. The production cost is
// burned before validation, so a program that fails the sandbox still
// costs its sats.
func (a *Agent) create(ctx context.Context) {
	category := a.strategy.SelectCategory(a.profile.ProductionCategories)
	prog, source, err := a.progen.Generate(category)
	if err != nil {
		a.log.Warnf("Generate %s program: %v", category, err)
		return
	}
	cost := prog.ProductionCost

	if cost > a.wallet.Balance() {
		a.postChat(ctx, a.chat.ProductionTooExpensive(prog.Name, cost))
		return
	}
	if err := a.wallet.Deduct(ctx, cost); err != nil {
		a.log.Warnf("Deduct production cost: %v", err)
		return
	}
	a.mu.Lock()
	a.productionSpent += cost
	a.mu.Unlock()

	if !a.sandbox.Test(ctx, source) {
		a.log.WithField("program", prog.Name).Warn("Program failed validation, cost written off")
		return
	}
	if err := os.WriteFile(a.sourcePath(prog.ID), []byte(source), 0o644); err != nil {
		a.log.Warnf("Write program source: %v", err)
		return
	}

	a.mu.Lock()
	a.programs = append(a.programs, prog)
	a.programsCreated++
	a.mu.Unlock()

	// Publish against a copy; the shared struct is only updated under
	// the lock once the listing is live.
	cp := *prog
	if err := a.publisher.PublishListing(ctx, &cp, source); err != nil {
		a.log.Warnf("List %s: %v", prog.Name, err)
		return
	}
	a.mu.Lock()
	prog.Listed = cp.Listed
	prog.ListedAt = cp.ListedAt
	prog.ListingEventID = cp.ListingEventID
	a.mu.Unlock()

	a.postChat(ctx, a.chat.Listing(prog.Name, prog.PriceSats, prog.Category))
	a.log.WithFields(logrus.Fields{
		"program":  prog.Name,
		"category": category,
		"cost":     cost,
		"price":    prog.PriceSats,
	}).Info("Produced and listed program")
}

// tryBuy sends an offer for the best interesting listing, if any.
func (a *Agent) tryBuy(ctx context.Context) {
	listings := a.view.Interesting(a.ownedCategories(), a.ledger, a.strategy)
	if len(listings) == 0 {
		return
	}
	pick := listings[0]

	offer := a.strategy.OfferPrice(pick)
	if offer <= 0 || offer > a.strategy.BudgetLimit() {
		return
	}

	if _, err := a.trades.SendOffer(ctx, pick, offer); err != nil {
		if !errors.Is(err, trade.ErrTooManyTrades) {
			a.log.Warnf("Offer for %s: %v", pick.Name, err)
		}
		return
	}

	seller := pick.SellerName
	if seller == "" {
		seller = a.nameOf(pick.SellerPubKey)
	}
	a.postChat(ctx, a.chat.Buying(seller, pick.Name, offer))
}

// adjustPrices marks down every listing that has sat unsold past
// repriceAfter, floor minListingPrice.
func (a *Agent) adjustPrices(ctx context.Context) {
	type markdown struct {
		snap     models.Program
		newPrice int64
	}
	cutoff := time.Now().Add(-repriceAfter).Unix()

	a.mu.Lock()
	var jobs []markdown
	for _, p := range a.programs {
		if !p.Listed || p.ListedAt >= cutoff {
			continue
		}
		next := p.PriceSats * 9 / 10
		if next < minListingPrice {
			next = minListingPrice
		}
		if next == p.PriceSats {
			continue
		}
		jobs = append(jobs, markdown{snap: *p, newPrice: next})
	}
	a.mu.Unlock()

	for _, j := range jobs {
		source, err := a.readSource(j.snap.ID)
		if err != nil {
			a.log.Warnf("Reprice %s: %v", j.snap.Name, err)
			continue
		}
		old := j.snap.PriceSats
		if err := a.publisher.UpdatePrice(ctx, &j.snap, source, j.newPrice); err != nil {
			a.log.Warnf("Reprice %s: %v", j.snap.Name, err)
			continue
		}
		a.mu.Lock()
		if p := a.programLocked(j.snap.ID); p != nil {
			p.PriceSats = j.newPrice
			p.ListedAt = j.snap.ListedAt
			p.ListingEventID = j.snap.ListingEventID
		}
		a.mu.Unlock()
		a.log.WithFields(logrus.Fields{
			"program": j.snap.Name,
			"from":    old,
			"to":      j.newPrice,
		}).Info("Marked down listing")
	}
}

// depreciate decays every quality-scored program and discards the ones
// worn below minQuality. Bought programs carry no quality score and
// never wear out.
func (a *Agent) depreciate(ctx context.Context) {
	var discarded []*models.Program

	a.mu.Lock()
	kept := a.programs[:0]
	for _, p := range a.programs {
		if p.Quality == 0 {
			kept = append(kept, p)
			continue
		}
		switch {
		case p.Quality >= 0.8:
			p.Quality *= 0.999
		case p.Quality < 0.4:
			p.Quality *= 0.995
		default:
			p.Quality *= 0.998
		}
		if p.Quality < minQuality {
			discarded = append(discarded, p)
			continue
		}
		kept = append(kept, p)
	}
	a.programs = kept
	a.mu.Unlock()

	for _, p := range discarded {
		if p.Listed {
			if err := a.publisher.Delist(ctx, p.ID); err != nil {
				a.log.Warnf("Delist %s: %v", p.ID, err)
			}
		}
		a.postChat(ctx, a.chat.ProgramDiscarded(p.Name))
		a.log.WithField("program", p.Name).Info("Discarded worn-out program")
	}
}

func (a *Agent) idle(ctx context.Context) {
	if a.rng.Float64() < 0.3 {
		a.postChat(ctx, a.chat.Idle(a.wallet.Balance()))
	}
}

func (a *Agent) listedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, p := range a.programs {
		if p.Listed {
			n++
		}
	}
	return n
}

func (a *Agent) ownedCategories() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.programs))
	for _, p := range a.programs {
		out = append(out, p.Category)
	}
	return out
}

func (a *Agent) programLocked(id string) *models.Program {
	for _, p := range a.programs {
		if p.ID == id {
			return p
		}
	}
	return nil
}
