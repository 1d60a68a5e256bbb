package timeline

import (
	"context"
	"time"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/state"
)

// Feed is a live stream of the full record list, newest first.
type Feed interface {
	AllRecords(ctx context.Context) <-chan []models.AudioRecord
}

// Projector keeps a projection of the live record list.
type Projector struct {
	feed  Feed
	loc   *time.Location
	items *state.Cell[[]Item]
}

// NewProjector creates a Projector grouping dates in loc.
func NewProjector(feed Feed, loc *time.Location) *Projector {
	if loc == nil {
		loc = time.Local
	}
	return &Projector{feed: feed, loc: loc, items: state.NewCell[[]Item](nil)}
}

// Run republishes the projection on every feed change until ctx is done or
// the feed closes.
func (p *Projector) Run(ctx context.Context) error {
	for records := range p.feed.AllRecords(ctx) {
		p.items.Set(Project(records, p.loc))
	}
	return nil
}

// Items returns the latest projection.
func (p *Projector) Items() []Item {
	return p.items.Get()
}

// Subscribe streams projections, starting with the latest, until ctx is done.
func (p *Projector) Subscribe(ctx context.Context) <-chan []Item {
	return p.items.Subscribe(ctx)
}

// Close closes all subscriptions.
func (p *Projector) Close() {
	p.items.Close()
}
