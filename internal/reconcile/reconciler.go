// Package reconcile folds a finished working projection back into the entity
// store.
package reconcile

import (
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/pdfassembler/internal/models"
	"github.com/Lllllllleong/pdfassembler/internal/projection"
)

// Store is the part of the entity store the reconciler needs.
type Store interface {
	Get() models.Snapshot
	Replace(documents map[string]models.Document, order []string) error
}

// Reconciler rebuilds every document from the working projection's order
// state and installs the result with a single Replace.
type Reconciler struct {
	store  Store
	logger *slog.Logger
}

// New returns a Reconciler writing to store.
func New(store Store, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, logger: logger}
}

// Fold resolves the working projection against the live store state. Page and
// document ids that no longer resolve are pruned. Documents and pages that
// were added while the gesture was in flight are kept at the end of their
// respective sequences.
func (r *Reconciler) Fold(w *projection.Working) (models.Snapshot, error) {
	live := r.store.Get()

	lookup := make(map[string]models.Page, live.PageCount())
	for _, doc := range live.Documents {
		for _, page := range doc.Pages {
			lookup[page.ID] = page
		}
	}

	next := models.Snapshot{
		Documents: make(map[string]models.Document, len(live.Documents)),
		Order:     make([]string, 0, len(live.Order)),
	}
	seen := make(map[string]bool, len(lookup))
	var pruned []string

	for _, groupID := range w.GroupOrder() {
		doc, ok := live.Documents[groupID]
		if !ok {
			r.logger.Debug("Dropping document that no longer exists.", "documentId", groupID)
			pruned = append(pruned, w.Members(groupID)...)
			continue
		}
		if _, dup := next.Documents[groupID]; dup {
			continue
		}
		pages := make([]models.Page, 0, len(w.Members(groupID)))
		for _, pageID := range w.Members(groupID) {
			page, ok := lookup[pageID]
			if !ok || seen[pageID] {
				pruned = append(pruned, pageID)
				continue
			}
			seen[pageID] = true
			pages = append(pages, page)
		}
		doc.Pages = pages
		next.Documents[groupID] = doc
		next.Order = append(next.Order, groupID)
	}

	for _, doc := range live.Ordered() {
		folded, ok := next.Documents[doc.ID]
		if !ok {
			folded = doc
			folded.Pages = nil
			next.Order = append(next.Order, doc.ID)
		}
		for _, page := range doc.Pages {
			if !seen[page.ID] {
				seen[page.ID] = true
				folded.Pages = append(folded.Pages, page)
			}
		}
		next.Documents[doc.ID] = folded
	}

	if len(pruned) > 0 {
		r.logger.Warn("Pruned page ids that no longer resolve.", "pageIds", pruned)
	}

	if err := r.store.Replace(next.Documents, next.Order); err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to replace store state: %w", err)
	}
	return next, nil
}
