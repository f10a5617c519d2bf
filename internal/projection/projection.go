// Package projection derives read-optimized views from an entity store
// snapshot and provides the mutable working copy used during a drag gesture.
package projection

import (
	"log/slog"
	"sync/atomic"

	"github.com/Lllllllleong/pdfassembler/internal/models"
)

// Projection is a pure derivation of a snapshot. It is rebuilt on every store
// change and never mutated afterwards.
type Projection struct {
	// PageLookup maps every page id to its page.
	PageLookup map[string]models.Page
	// Membership maps every document id to its ordered page ids.
	Membership map[string][]string
	// GroupOrder is the display order of the documents.
	GroupOrder []string
	// Collisions lists page ids found in more than one document. The lookup
	// keeps the last one seen.
	Collisions []string
}

// Build derives a Projection from a snapshot. Documents are visited in Group
// Order so that collision resolution is deterministic.
func Build(snap models.Snapshot) *Projection {
	p := &Projection{
		PageLookup: make(map[string]models.Page, snap.PageCount()),
		Membership: make(map[string][]string, len(snap.Order)),
		GroupOrder: make([]string, 0, len(snap.Order)),
	}
	for _, doc := range snap.Ordered() {
		p.GroupOrder = append(p.GroupOrder, doc.ID)
		ids := make([]string, 0, len(doc.Pages))
		for _, page := range doc.Pages {
			if _, dup := p.PageLookup[page.ID]; dup {
				p.Collisions = append(p.Collisions, page.ID)
			}
			p.PageLookup[page.ID] = page
			ids = append(ids, page.ID)
		}
		p.Membership[doc.ID] = ids
	}
	if len(p.Collisions) > 0 {
		slog.Warn("Page ids shared by more than one document.", "pageIds", p.Collisions)
	}
	return p
}

// PagesOf resolves a document's pages through the lookup, in order.
func (p *Projection) PagesOf(documentID string) []models.Page {
	ids := p.Membership[documentID]
	pages := make([]models.Page, 0, len(ids))
	for _, id := range ids {
		if page, ok := p.PageLookup[id]; ok {
			pages = append(pages, page)
		}
	}
	return pages
}

// Working returns a mutable copy of the order state.
func (p *Projection) Working() *Working {
	w := &Working{
		order:   append([]string(nil), p.GroupOrder...),
		members: make(map[string][]string, len(p.Membership)),
	}
	for id, ids := range p.Membership {
		w.members[id] = append([]string(nil), ids...)
	}
	return w
}

// Tracker holds the projection of the latest store snapshot. Subscribe Update
// to the store so readers always see a derivation of the current state.
type Tracker struct {
	current atomic.Pointer[Projection]
}

// NewTracker returns a Tracker seeded with snap.
func NewTracker(snap models.Snapshot) *Tracker {
	t := &Tracker{}
	t.Update(snap)
	return t
}

// Update rebuilds the projection from snap.
func (t *Tracker) Update(snap models.Snapshot) {
	t.current.Store(Build(snap))
}

// Current returns the latest projection. Callers must not mutate it.
func (t *Tracker) Current() *Projection {
	return t.current.Load()
}
