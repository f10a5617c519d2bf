// Package store holds the authoritative mapping of documents to their ordered
// pages together with the display order of the documents.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Lllllllleong/pdfassembler/internal/models"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

var (
	// ErrDocumentNotFound indicates the referenced document is not in the store.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrPageNotFound indicates the referenced page is not in the document.
	ErrPageNotFound = errors.New("page not found")
	// ErrInvalidSnapshot indicates a replacement state violates the store invariants.
	ErrInvalidSnapshot = errors.New("invalid snapshot")
	// ErrInvalidName indicates an empty document name.
	ErrInvalidName = errors.New("document name must not be empty")
)

// Listener is notified with a copy of the new state after every mutation.
type Listener func(models.Snapshot)

// Store is the single source of truth for documents and their page order.
// Mutations leave every invariant holding or fail without side effects.
type Store struct {
	// notifyMu is held from installing a state until its listeners return,
	// so listeners observe states in commit order.
	notifyMu  sync.Mutex
	mu        sync.RWMutex
	state     models.Snapshot
	listeners []Listener
	logger    *slog.Logger
}

// New returns an empty store.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		state:  models.Snapshot{Documents: map[string]models.Document{}},
		logger: logger,
	}
}

// Subscribe registers fn to run after each successful mutation. Listeners run
// synchronously, in registration order and in commit order, outside the state
// lock. A listener may read the store but must not mutate it.
func (s *Store) Subscribe(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Get returns a deep copy of the current state.
func (s *Store) Get() models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Document returns a copy of a single document.
func (s *Store) Document(id string) (models.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.state.Documents[id]
	if !ok {
		return models.Document{}, false
	}
	return doc.Clone(), true
}

// DecryptionState reports the decryption state of a document.
func (s *Store) DecryptionState(id string) (models.DecryptionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.state.Documents[id]
	if !ok {
		return "", false
	}
	return doc.DecryptionState, true
}

// Replace atomically installs a new state. Either the whole state is accepted
// or an error wrapping ErrInvalidSnapshot is returned and nothing changes.
func (s *Store) Replace(documents map[string]models.Document, order []string) error {
	next := models.Snapshot{Documents: documents, Order: order}.Clone()
	if err := s.mutate(func(state *models.Snapshot) error {
		*state = next
		return nil
	}); err != nil {
		return err
	}
	s.logger.Debug("Store state replaced.", "documentCount", len(next.Order), "pageCount", next.PageCount())
	return nil
}

// AddDocument inserts a new document at the end of the order, or replaces an
// existing document with the same id in place.
func (s *Store) AddDocument(doc models.Document) error {
	doc = doc.Clone()
	if doc.ID == "" {
		return fmt.Errorf("%w: document id is empty", ErrInvalidSnapshot)
	}
	if doc.DecryptionState == "" {
		doc.DecryptionState = models.DecryptionNotApplicable
	}

	err := s.mutate(func(state *models.Snapshot) error {
		if _, exists := state.Documents[doc.ID]; !exists {
			state.Order = append(state.Order, doc.ID)
		}
		state.Documents[doc.ID] = doc
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("Document added.", "documentId", doc.ID, "pageCount", len(doc.Pages), "decryptionState", doc.DecryptionState)
	return nil
}

// RemoveDocument deletes a document and its pages. The document's position in
// the order is removed as well.
func (s *Store) RemoveDocument(id string) error {
	err := s.mutate(func(state *models.Snapshot) error {
		if _, ok := state.Documents[id]; !ok {
			return fmt.Errorf("remove document %s: %w", id, ErrDocumentNotFound)
		}
		delete(state.Documents, id)
		state.Order = removeString(state.Order, id)
		return nil
	})
	if err == nil {
		s.logger.Info("Document removed.", "documentId", id)
	}
	return err
}

// RemovePage deletes a page from a document. An empty document is kept.
func (s *Store) RemovePage(documentID, pageID string) error {
	return s.mutate(func(state *models.Snapshot) error {
		doc, ok := state.Documents[documentID]
		if !ok {
			return fmt.Errorf("remove page %s: %w", pageID, ErrDocumentNotFound)
		}
		idx := pageIndex(doc.Pages, pageID)
		if idx < 0 {
			return fmt.Errorf("remove page %s from %s: %w", pageID, documentID, ErrPageNotFound)
		}
		doc.Pages = append(doc.Pages[:idx], doc.Pages[idx+1:]...)
		state.Documents[documentID] = doc
		return nil
	})
}

// RenameDocument changes a document's display name.
func (s *Store) RenameDocument(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	return s.mutate(func(state *models.Snapshot) error {
		doc, ok := state.Documents[id]
		if !ok {
			return fmt.Errorf("rename document %s: %w", id, ErrDocumentNotFound)
		}
		doc.DisplayName = name
		state.Documents[id] = doc
		return nil
	})
}

// DuplicatePage appends a copy of a page to the end of the same document. The
// copy gets a fresh id and shares the preview of the original.
func (s *Store) DuplicatePage(documentID, pageID string) (string, error) {
	newID := documentID + "_" + uuid.NewString()
	err := s.mutate(func(state *models.Snapshot) error {
		doc, ok := state.Documents[documentID]
		if !ok {
			return fmt.Errorf("duplicate page %s: %w", pageID, ErrDocumentNotFound)
		}
		idx := pageIndex(doc.Pages, pageID)
		if idx < 0 {
			return fmt.Errorf("duplicate page %s in %s: %w", pageID, documentID, ErrPageNotFound)
		}
		dup := doc.Pages[idx]
		dup.ID = newID
		doc.Pages = append(doc.Pages, dup)
		state.Documents[documentID] = doc
		return nil
	})
	if err != nil {
		return "", err
	}
	return newID, nil
}

// UpdateDocument applies fn to a copy of an existing document and stores the
// result. It fails with ErrDocumentNotFound if the document has been removed,
// so late results never bring a document back. fn must not change the id.
func (s *Store) UpdateDocument(id string, fn func(doc *models.Document) error) error {
	return s.mutate(func(state *models.Snapshot) error {
		doc, ok := state.Documents[id]
		if !ok {
			return fmt.Errorf("update document %s: %w", id, ErrDocumentNotFound)
		}
		if err := fn(&doc); err != nil {
			return err
		}
		if doc.ID != id {
			return fmt.Errorf("%w: update changed document id %s to %s", ErrInvalidSnapshot, id, doc.ID)
		}
		state.Documents[id] = doc
		return nil
	})
}

// Clear removes every document.
func (s *Store) Clear() {
	s.commit(func(state *models.Snapshot) {
		*state = models.Snapshot{Documents: map[string]models.Document{}}
	})
	s.logger.Info("Store cleared.")
}

// mutate applies fn to a copy of the state and installs the copy only if fn
// succeeds and the result is valid.
func (s *Store) mutate(fn func(state *models.Snapshot) error) error {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	next := s.state.Clone()
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := validate(next); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	s.state = next
	listeners := append([]Listener(nil), s.listeners...)
	snapshot := s.state.Clone()
	s.mu.Unlock()

	notify(listeners, snapshot)
	return nil
}

func (s *Store) commit(fn func(state *models.Snapshot)) {
	_ = s.mutate(func(state *models.Snapshot) error {
		fn(state)
		return nil
	})
}

func notify(listeners []Listener, snapshot models.Snapshot) {
	for _, fn := range listeners {
		fn(snapshot.Clone())
	}
}

// validate checks the invariants of a candidate state and reports every
// violation it finds.
func validate(state models.Snapshot) error {
	var result *multierror.Error

	inOrder := make(map[string]bool, len(state.Order))
	for _, id := range state.Order {
		if inOrder[id] {
			result = multierror.Append(result, fmt.Errorf("document %q appears more than once in the order", id))
			continue
		}
		inOrder[id] = true
		if _, ok := state.Documents[id]; !ok {
			result = multierror.Append(result, fmt.Errorf("ordered document %q does not exist", id))
		}
	}

	owner := make(map[string]string)
	for key, doc := range state.Documents {
		if key == "" || doc.ID != key {
			result = multierror.Append(result, fmt.Errorf("document key %q does not match id %q", key, doc.ID))
		}
		if !inOrder[key] {
			result = multierror.Append(result, fmt.Errorf("document %q is missing from the order", key))
		}
		for _, page := range doc.Pages {
			if page.ID == "" {
				result = multierror.Append(result, fmt.Errorf("document %q has a page with an empty id", key))
				continue
			}
			if prev, seen := owner[page.ID]; seen {
				result = multierror.Append(result, fmt.Errorf("page %q is owned by both %q and %q", page.ID, prev, key))
				continue
			}
			owner[page.ID] = key
		}
	}

	return result.ErrorOrNil()
}

func pageIndex(pages []models.Page, id string) int {
	for i, p := range pages {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func removeString(values []string, target string) []string {
	out := values[:0]
	for _, v := range values {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}
