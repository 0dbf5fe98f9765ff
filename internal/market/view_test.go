package market

import (
	"io"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zapempire/economy-engine/pkg/models"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func listingEvent(t *testing.T, seller, dTag string, price int64, createdAt int64) *models.Event {
	t.Helper()
	content, err := models.CompactJSON(models.ListingContent{
		Name:         "prime_checker",
		Description:  "A math program",
		Language:     "python",
		Version:      "1.0.0",
		Category:     "math",
		Complexity:   models.ComplexityMedium,
		PriceSats:    price,
		Preview:      "def main():",
		QualityScore: 0.62,
	})
	if err != nil {
		t.Fatalf("encode content: %v", err)
	}
	return &models.Event{
		ID:        "evt-" + dTag,
		PubKey:    seller,
		CreatedAt: createdAt,
		Kind:      models.KindListing,
		Tags: []models.Tag{
			{"d", dTag},
			{"t", "python"},
			{"t", "math"},
			{"price", strconv.FormatInt(price, 10), "sat"},
		},
		Content: content,
	}
}

func TestOnListingParses(t *testing.T) {
	v := NewView("me", func(pk string) string { return "名前-" + pk })
	now := time.Now().Unix()

	v.OnListing(listingEvent(t, "seller1", "prog-1", 150, now))

	l, ok := v.Get("prog-1")
	if !ok {
		t.Fatal("listing not stored")
	}
	if l.SellerPubKey != "seller1" || l.Name != "prime_checker" {
		t.Errorf("seller/name = %q/%q", l.SellerPubKey, l.Name)
	}
	if l.Category != "math" || l.Complexity != models.ComplexityMedium {
		t.Errorf("category/complexity = %q/%q", l.Category, l.Complexity)
	}
	if l.PriceSats != 150 {
		t.Errorf("price = %d, want 150", l.PriceSats)
	}
	if l.Quality != 0.62 {
		t.Errorf("quality = %v, want 0.62", l.Quality)
	}
	if l.SellerName != "名前-seller1" {
		t.Errorf("seller name = %q", l.SellerName)
	}
	if l.EventID != "evt-prog-1" || l.CreatedAt != now {
		t.Errorf("event id/created = %q/%d", l.EventID, l.CreatedAt)
	}
}

func TestOnListingFallbacksAndDrops(t *testing.T) {
	v := NewView("me", nil)
	now := time.Now().Unix()

	// Price missing from content falls back to the price tag.
	ev := &models.Event{
		PubKey:    "seller1",
		CreatedAt: now,
		Kind:      models.KindListing,
		Tags: []models.Tag{
			{"d", "prog-tagprice"},
			{"t", "crypto"},
			{"price", "275", "sat"},
		},
		Content: `{"name":"hasher"}`,
	}
	v.OnListing(ev)
	l, ok := v.Get("prog-tagprice")
	if !ok {
		t.Fatal("tag-price listing not stored")
	}
	if l.PriceSats != 275 {
		t.Errorf("price = %d, want 275 from tag", l.PriceSats)
	}
	if l.Category != "crypto" {
		t.Errorf("category = %q, want crypto from t tag", l.Category)
	}
	if l.Complexity != models.ComplexityMedium {
		t.Errorf("complexity = %q, want medium default", l.Complexity)
	}

	// No d tag: dropped.
	v.OnListing(&models.Event{
		PubKey: "seller1", CreatedAt: now, Kind: models.KindListing,
		Tags: []models.Tag{{"t", "math"}}, Content: `{"name":"x"}`,
	})
	if v.Count() != 1 {
		t.Errorf("count = %d after d-less event, want 1", v.Count())
	}

	// Unparseable content: dropped.
	v.OnListing(&models.Event{
		PubKey: "seller1", CreatedAt: now, Kind: models.KindListing,
		Tags: []models.Tag{{"d", "prog-bad"}}, Content: `{not json`,
	})
	if _, ok := v.Get("prog-bad"); ok {
		t.Error("malformed content should be dropped")
	}

	// Already stale: dropped.
	v.OnListing(listingEvent(t, "seller1", "prog-old", 100, now-31*60))
	if _, ok := v.Get("prog-old"); ok {
		t.Error("stale listing should be dropped")
	}
}

func TestOnListingUpserts(t *testing.T) {
	v := NewView("me", nil)
	now := time.Now().Unix()

	v.OnListing(listingEvent(t, "seller1", "prog-1", 150, now))
	v.OnListing(listingEvent(t, "seller1", "prog-1", 120, now))

	if v.Count() != 1 {
		t.Fatalf("count = %d, want 1 after upsert", v.Count())
	}
	l, _ := v.Get("prog-1")
	if l.PriceSats != 120 {
		t.Errorf("price = %d, want 120 after upsert", l.PriceSats)
	}
}

func TestListingExpiry(t *testing.T) {
	v := newView("me", nil, 50*time.Millisecond)
	v.OnListing(listingEvent(t, "seller1", "prog-1", 150, time.Now().Unix()))

	if _, ok := v.Get("prog-1"); !ok {
		t.Fatal("listing should be live immediately")
	}

	time.Sleep(80 * time.Millisecond)
	if _, ok := v.Get("prog-1"); ok {
		t.Error("listing should have expired")
	}
}

type stubTrust map[string]float64

func (s stubTrust) Trust(pk string) float64 { return s[pk] }

type buyerFunc func(*models.Listing, []string, float64) bool

func (f buyerFunc) ShouldBuy(l *models.Listing, owned []string, trust float64) bool {
	return f(l, owned, trust)
}

func TestInteresting(t *testing.T) {
	v := NewView("me", nil)
	now := time.Now().Unix()

	v.OnListing(listingEvent(t, "me", "prog-own", 100, now))
	v.OnListing(listingEvent(t, "seller1", "prog-free", 0, now))
	v.OnListing(listingEvent(t, "seller1", "prog-cheap", 90, now))
	v.OnListing(listingEvent(t, "seller2", "prog-dear", 400, now))
	v.OnListing(listingEvent(t, "shady", "prog-shady", 50, now))

	trust := stubTrust{"seller1": 0.8, "seller2": 0.8, "shady": 0.1}
	judge := buyerFunc(func(l *models.Listing, _ []string, tr float64) bool {
		return tr >= 0.5
	})

	got := v.Interesting([]string{"math"}, trust, judge)
	if len(got) != 2 {
		t.Fatalf("interesting = %d listings, want 2", len(got))
	}
	// Cheapest first.
	if got[0].DTag != "prog-cheap" || got[1].DTag != "prog-dear" {
		t.Errorf("order = %s, %s; want prog-cheap, prog-dear", got[0].DTag, got[1].DTag)
	}
}
