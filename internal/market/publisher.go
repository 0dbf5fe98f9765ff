package market

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zapempire/economy-engine/pkg/models"
)

const previewLimit = 500

// EventPublisher sends an event to the relay, signing it first if needed.
type EventPublisher interface {
	Publish(ctx context.Context, ev *models.Event) error
}

// Publisher owns the agent's side of the marketplace: kind-30078
// replaceable listings addressed by program id, and kind-5 deletions.
// Re-publishing under the same d tag is how prices change.
type Publisher struct {
	pub EventPublisher
	log *logrus.Entry

	mu  sync.Mutex
	own map[string]string // program id -> latest listing event id
}

// NewPublisher builds a listing publisher on top of a relay connection.
func NewPublisher(pub EventPublisher, log *logrus.Entry) *Publisher {
	return &Publisher{pub: pub, log: log, own: make(map[string]string)}
}

// PublishListing announces a program for sale and marks it listed. The
// program source is only previewed, never published in full.
func (p *Publisher) PublishListing(ctx context.Context, prog *models.Program, source string) error {
	desc := prog.Description
	if desc == "" {
		desc = fmt.Sprintf("A %s program", prog.Category)
	}
	content := models.ListingContent{
		Name:         prog.Name,
		Description:  desc,
		Language:     "python",
		Version:      "1.0.0",
		Category:     prog.Category,
		Complexity:   prog.Complexity,
		PriceSats:    prog.PriceSats,
		Preview:      preview(source),
		QualityScore: math.Round(prog.Quality*1000) / 1000,
	}
	raw, err := models.CompactJSON(content)
	if err != nil {
		return fmt.Errorf("encode listing content: %v", err)
	}

	tags := []models.Tag{
		{"d", prog.ID},
		{"t", "python"},
		{"t", prog.Category},
		{"price", fmt.Sprintf("%d", prog.PriceSats), "sat"},
	}
	// An unscored program carries no quality tag at all.
	if prog.Quality > 0 {
		tags = append(tags, models.Tag{"quality", fmt.Sprintf("%.3f", prog.Quality)})
	}
	ev := &models.Event{
		Kind:    models.KindListing,
		Content: raw,
		Tags:    tags,
	}
	if err := p.pub.Publish(ctx, ev); err != nil {
		return fmt.Errorf("publish listing %s: %v", prog.ID, err)
	}

	p.mu.Lock()
	p.own[prog.ID] = ev.ID
	p.mu.Unlock()

	prog.Listed = true
	prog.ListedAt = time.Now().Unix()
	prog.ListingEventID = ev.ID

	p.log.WithFields(logrus.Fields{
		"program": prog.Name,
		"price":   prog.PriceSats,
	}).Info("Listed program")
	return nil
}

// UpdatePrice re-publishes a listing at a new price. The d tag stays the
// same, so the relay replaces the old listing.
func (p *Publisher) UpdatePrice(ctx context.Context, prog *models.Program, source string, newPrice int64) error {
	prog.PriceSats = newPrice
	return p.PublishListing(ctx, prog, source)
}

// Track records an already-live listing event id, restored from a state
// snapshot, so Delist can reference it after a restart.
func (p *Publisher) Track(programID, eventID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.own[programID] = eventID
}

// Delist publishes a kind-5 deletion for a program's listing. A program
// that was never listed is a no-op.
func (p *Publisher) Delist(ctx context.Context, programID string) error {
	p.mu.Lock()
	eventID, ok := p.own[programID]
	p.mu.Unlock()
	if !ok {
		return nil
	}

	ev := &models.Event{
		Kind:    models.KindDelete,
		Content: "Delisted: sold or withdrawn",
		Tags:    []models.Tag{{"e", eventID}},
	}
	if err := p.pub.Publish(ctx, ev); err != nil {
		return fmt.Errorf("publish delist %s: %v", programID, err)
	}

	p.mu.Lock()
	delete(p.own, programID)
	p.mu.Unlock()

	p.log.WithField("program", programID).Info("Delisted program")
	return nil
}

// Listed reports whether the publisher is tracking a live listing for the
// program.
func (p *Publisher) Listed(programID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.own[programID]
	return ok
}

func preview(source string) string {
	runes := []rune(source)
	if len(runes) > previewLimit {
		return string(runes[:previewLimit])
	}
	return source
}
