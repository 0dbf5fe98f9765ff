package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/zapempire/economy-engine/pkg/models"
)

type fakePub struct {
	events []*models.Event
	fail   bool
}

func (f *fakePub) Publish(_ context.Context, ev *models.Event) error {
	if f.fail {
		return errors.New("relay down")
	}
	ev.ID = fmt.Sprintf("ev%d", len(f.events)+1)
	f.events = append(f.events, ev)
	return nil
}

func testProgram() *models.Program {
	return &models.Program{
		ID:         "prog-abc",
		Name:       "prime_checker",
		Category:   "math",
		Complexity: models.ComplexityMedium,
		PriceSats:  150,
		Quality:    0.6251,
	}
}

func TestPublishListing(t *testing.T) {
	pub := &fakePub{}
	p := NewPublisher(pub, testLogger())
	prog := testProgram()
	source := "def main():\n    print(1)\n"

	if err := p.PublishListing(context.Background(), prog, source); err != nil {
		t.Fatalf("PublishListing: %v", err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}

	ev := pub.events[0]
	if ev.Kind != models.KindListing {
		t.Errorf("kind = %d, want %d", ev.Kind, models.KindListing)
	}
	if got := ev.TagValue("d"); got != "prog-abc" {
		t.Errorf("d tag = %q", got)
	}
	if got := ev.TagValue("price"); got != "150" {
		t.Errorf("price tag = %q", got)
	}
	if got := ev.TagValue("quality"); got != "0.625" {
		t.Errorf("quality tag = %q", got)
	}
	ts := ev.TagValues("t")
	if len(ts) != 2 || ts[0] != "python" || ts[1] != "math" {
		t.Errorf("t tags = %v", ts)
	}

	var content models.ListingContent
	if err := json.Unmarshal([]byte(ev.Content), &content); err != nil {
		t.Fatalf("content: %v", err)
	}
	if content.Name != "prime_checker" || content.PriceSats != 150 {
		t.Errorf("content name/price = %q/%d", content.Name, content.PriceSats)
	}
	if content.Description != "A math program" {
		t.Errorf("default description = %q", content.Description)
	}
	if content.Language != "python" || content.Version != "1.0.0" {
		t.Errorf("language/version = %q/%q", content.Language, content.Version)
	}
	if content.Preview != source {
		t.Errorf("short source should be previewed whole, got %q", content.Preview)
	}
	if content.QualityScore != 0.625 {
		t.Errorf("quality score = %v, want rounded 0.625", content.QualityScore)
	}

	if !prog.Listed || prog.ListedAt == 0 || prog.ListingEventID != "ev1" {
		t.Errorf("program not marked listed: %+v", prog)
	}
	if !p.Listed("prog-abc") {
		t.Error("publisher should track the listing")
	}
}

func TestPublishListingUnscoredOmitsQualityTag(t *testing.T) {
	pub := &fakePub{}
	p := NewPublisher(pub, testLogger())
	prog := testProgram()
	prog.Quality = 0

	if err := p.PublishListing(context.Background(), prog, "src"); err != nil {
		t.Fatalf("PublishListing: %v", err)
	}

	ev := pub.events[0]
	for _, tag := range ev.Tags {
		if len(tag) > 0 && tag[0] == "quality" {
			t.Errorf("unscored listing carries quality tag %v", tag)
		}
	}
	if got := len(ev.Tags); got != 4 {
		t.Errorf("tag count = %d, want 4", got)
	}
}

func TestPublishListingTruncatesPreview(t *testing.T) {
	pub := &fakePub{}
	p := NewPublisher(pub, testLogger())
	long := strings.Repeat("x", 2000)

	if err := p.PublishListing(context.Background(), testProgram(), long); err != nil {
		t.Fatalf("PublishListing: %v", err)
	}

	var content models.ListingContent
	if err := json.Unmarshal([]byte(pub.events[0].Content), &content); err != nil {
		t.Fatalf("content: %v", err)
	}
	if len(content.Preview) != previewLimit {
		t.Errorf("preview length = %d, want %d", len(content.Preview), previewLimit)
	}
}

func TestUpdatePriceRepublishes(t *testing.T) {
	pub := &fakePub{}
	p := NewPublisher(pub, testLogger())
	prog := testProgram()

	if err := p.PublishListing(context.Background(), prog, "src"); err != nil {
		t.Fatalf("PublishListing: %v", err)
	}
	if err := p.UpdatePrice(context.Background(), prog, "src", 99); err != nil {
		t.Fatalf("UpdatePrice: %v", err)
	}

	if prog.PriceSats != 99 {
		t.Errorf("price = %d, want 99", prog.PriceSats)
	}
	if len(pub.events) != 2 {
		t.Fatalf("published %d events, want 2", len(pub.events))
	}
	// Same d tag, so the relay replaces the listing in place.
	if pub.events[0].TagValue("d") != pub.events[1].TagValue("d") {
		t.Error("republish changed the d tag")
	}
	if got := pub.events[1].TagValue("price"); got != "99" {
		t.Errorf("new price tag = %q", got)
	}
	if prog.ListingEventID != "ev2" {
		t.Errorf("listing event id = %q, want ev2", prog.ListingEventID)
	}
}

func TestDelist(t *testing.T) {
	pub := &fakePub{}
	p := NewPublisher(pub, testLogger())
	prog := testProgram()

	if err := p.PublishListing(context.Background(), prog, "src"); err != nil {
		t.Fatalf("PublishListing: %v", err)
	}
	if err := p.Delist(context.Background(), prog.ID); err != nil {
		t.Fatalf("Delist: %v", err)
	}

	if len(pub.events) != 2 {
		t.Fatalf("published %d events, want 2", len(pub.events))
	}
	del := pub.events[1]
	if del.Kind != models.KindDelete {
		t.Errorf("kind = %d, want %d", del.Kind, models.KindDelete)
	}
	if got := del.TagValue("e"); got != "ev1" {
		t.Errorf("e tag = %q, want ev1", got)
	}
	if del.Content != "Delisted: sold or withdrawn" {
		t.Errorf("content = %q", del.Content)
	}
	if p.Listed(prog.ID) {
		t.Error("listing should be forgotten after delist")
	}

	// Delisting something never listed publishes nothing.
	if err := p.Delist(context.Background(), "never-listed"); err != nil {
		t.Fatalf("Delist unknown: %v", err)
	}
	if len(pub.events) != 2 {
		t.Error("unknown delist should not publish")
	}
}

func TestTrackRestoresDelist(t *testing.T) {
	pub := &fakePub{}
	p := NewPublisher(pub, testLogger())

	// A fresh publisher knows nothing about listings from the previous run
	// until the restored event id is handed back.
	p.Track("prog-abc", "ev-from-last-run")
	if !p.Listed("prog-abc") {
		t.Fatal("tracked listing should be live")
	}

	if err := p.Delist(context.Background(), "prog-abc"); err != nil {
		t.Fatalf("Delist: %v", err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	if got := pub.events[0].TagValue("e"); got != "ev-from-last-run" {
		t.Errorf("e tag = %q, want the restored event id", got)
	}
}

func TestPublishListingRelayError(t *testing.T) {
	p := NewPublisher(&fakePub{fail: true}, testLogger())
	prog := testProgram()

	if err := p.PublishListing(context.Background(), prog, "src"); err == nil {
		t.Fatal("expected error from failing relay")
	}
	if prog.Listed {
		t.Error("failed publish should not mark the program listed")
	}
}
