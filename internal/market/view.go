package market

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/zapempire/economy-engine/pkg/models"
)

const (
	// Listings drop out of the view 30 minutes after their event timestamp.
	listingTTL      = 30 * time.Minute
	cleanupInterval = 5 * time.Minute
)

// TrustSource resolves a counterparty trust score.
type TrustSource interface {
	Trust(pubkey string) float64
}

// Buyer decides whether a listing is worth an offer.
type Buyer interface {
	ShouldBuy(listing *models.Listing, ownedCategories []string, sellerTrust float64) bool
}

// View is the agent's live picture of other agents' kind-30078 listings,
// keyed by d tag. Entries age out on their own; the zero picture is an
// empty market.
type View struct {
	self     string
	ttl      time.Duration
	listings *cache.Cache
	names    func(pubkey string) string
}

// NewView builds a listing view for an agent. Own listings (events signed
// by selfPubKey) are ignored. names resolves seller display names from
// kind-0 profiles and may be nil.
func NewView(selfPubKey string, names func(string) string) *View {
	return newView(selfPubKey, names, listingTTL)
}

func newView(selfPubKey string, names func(string) string, ttl time.Duration) *View {
	return &View{
		self:     selfPubKey,
		ttl:      ttl,
		listings: cache.New(ttl, cleanupInterval),
		names:    names,
	}
}

// OnListing ingests a kind-30078 event, upserting by d tag. Malformed
// content, missing d tags and already-stale events are dropped.
func (v *View) OnListing(ev *models.Event) {
	var content models.ListingContent
	if err := json.Unmarshal([]byte(ev.Content), &content); err != nil {
		return
	}

	dTag := ev.TagValue("d")
	if dTag == "" {
		return
	}

	category := content.Category
	if category == "" {
		if ts := ev.TagValues("t"); len(ts) > 0 {
			category = ts[0]
		} else {
			category = "unknown"
		}
	}
	complexity := content.Complexity
	if complexity == "" {
		complexity = models.ComplexityMedium
	}
	name := content.Name
	if name == "" {
		name = "unknown"
	}

	price := content.PriceSats
	if price == 0 {
		if raw := ev.TagValue("price"); raw != "" {
			if p, err := strconv.ParseInt(raw, 10, 64); err == nil {
				price = p
			}
		}
	}

	now := time.Now()
	remaining := v.ttl - time.Duration(now.Unix()-ev.CreatedAt)*time.Second
	if remaining <= 0 {
		return
	}

	listing := &models.Listing{
		SellerPubKey: ev.PubKey,
		DTag:         dTag,
		EventID:      ev.ID,
		Name:         name,
		Category:     category,
		PriceSats:    price,
		Complexity:   complexity,
		Preview:      content.Preview,
		Quality:      content.QualityScore,
		CreatedAt:    ev.CreatedAt,
		ObservedAt:   now.Unix(),
	}
	if v.names != nil {
		listing.SellerName = v.names(ev.PubKey)
	}
	v.listings.Set(dTag, listing, remaining)
}

// Remove drops a listing, e.g. after buying it or observing a deletion.
func (v *View) Remove(dTag string) {
	v.listings.Delete(dTag)
}

// Get returns the listing stored under a d tag.
func (v *View) Get(dTag string) (*models.Listing, bool) {
	obj, ok := v.listings.Get(dTag)
	if !ok {
		return nil, false
	}
	return obj.(*models.Listing), true
}

// Count reports how many live listings the view holds.
func (v *View) Count() int {
	return v.listings.ItemCount()
}

// All returns the live listings in no particular order.
func (v *View) All() []*models.Listing {
	items := v.listings.Items()
	out := make([]*models.Listing, 0, len(items))
	for _, it := range items {
		out = append(out, it.Object.(*models.Listing))
	}
	return out
}

// Interesting filters the view down to listings the buyer wants, cheapest
// first. Own and unpriced listings never qualify.
func (v *View) Interesting(ownedCategories []string, trust TrustSource, buyer Buyer) []*models.Listing {
	var out []*models.Listing
	for _, l := range v.All() {
		if l.SellerPubKey == v.self {
			continue
		}
		if l.PriceSats <= 0 {
			continue
		}
		if !buyer.ShouldBuy(l, ownedCategories, trust.Trust(l.SellerPubKey)) {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PriceSats < out[j].PriceSats })
	return out
}
