// Package reorder implements the drag-gesture state machine that reorders
// pages within a document, transfers pages between documents and reorders
// whole documents.
package reorder

import (
	"log/slog"

	"github.com/Lllllllleong/pdfassembler/internal/guard"
	"github.com/Lllllllleong/pdfassembler/internal/models"
	"github.com/Lllllllleong/pdfassembler/internal/projection"
)

// State is the engine's gesture state.
type State int

const (
	StateIdle State = iota
	StateDragging
)

func (s State) String() string {
	if s == StateDragging {
		return "dragging"
	}
	return "idle"
}

// Outcome reports what an event did. A host uses OutcomeDenied and
// OutcomeIgnored to snap the dragged item back to its last valid position.
type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeApplied
	OutcomeDenied
	OutcomeCommitted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeDenied:
		return "denied"
	case OutcomeCommitted:
		return "committed"
	default:
		return "ignored"
	}
}

// Source provides the latest derived projection.
type Source interface {
	Current() *projection.Projection
}

// Folder commits a finished working projection to the entity store.
type Folder interface {
	Fold(w *projection.Working) (models.Snapshot, error)
}

// Engine consumes drag events one at a time. It is not safe for concurrent
// use; the host delivers events sequentially.
type Engine struct {
	source Source
	policy guard.Policy
	folder Folder
	logger *slog.Logger

	state    State
	dragged  DraggedEntity
	origin   string
	working  *projection.Working
	pristine *projection.Working
}

// NewEngine wires an engine. A nil policy allows every transfer.
func NewEngine(source Source, policy guard.Policy, folder Folder, logger *slog.Logger) *Engine {
	if policy == nil {
		policy = guard.AllowAll
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{source: source, policy: policy, folder: folder, logger: logger}
}

// State returns the current gesture state.
func (e *Engine) State() State { return e.state }

// Dragging returns the entity of the active gesture and the group it was
// picked up from.
func (e *Engine) Dragging() (DraggedEntity, string, bool) {
	if e.state != StateDragging {
		return nil, "", false
	}
	return e.dragged, e.origin, true
}

// Working returns a copy of the in-progress projection so the host can render
// the gesture, or nil when idle.
func (e *Engine) Working() *projection.Working {
	if e.state != StateDragging {
		return nil
	}
	return e.working.Clone()
}

// Handle applies one event. Invalid or stale events are dropped; nothing is
// ever returned as an error.
func (e *Engine) Handle(ev Event) Outcome {
	switch ev := ev.(type) {
	case DragStart:
		return e.start(ev.Entity)
	case DragOver:
		return e.over(ev.Target)
	case DragEnd:
		return e.end(ev.Target)
	case DragCancel:
		return e.cancel()
	default:
		e.logger.Debug("Dropping unknown drag event.", "event", ev)
		return OutcomeIgnored
	}
}

func (e *Engine) start(entity DraggedEntity) Outcome {
	if entity == nil {
		return OutcomeIgnored
	}
	if e.state == StateDragging {
		e.logger.Warn("Drag started before the previous gesture ended. Abandoning it.", "previous", e.dragged.EntityID())
		e.cancel()
	}
	proj := e.source.Current()
	if proj == nil {
		return OutcomeIgnored
	}
	working := proj.Working()

	var origin string
	switch en := entity.(type) {
	case DraggedPage:
		group, ok := working.GroupOf(en.ID)
		if !ok {
			e.logger.Debug("Dropping drag start for unknown page.", "pageId", en.ID)
			return OutcomeIgnored
		}
		if en.GroupID != "" && en.GroupID != group {
			e.logger.Debug("Drag start group hint is stale.", "pageId", en.ID, "hint", en.GroupID, "owner", group)
		}
		origin = group
	case DraggedDocument:
		if !working.HasGroup(en.ID) {
			e.logger.Debug("Dropping drag start for unknown document.", "documentId", en.ID)
			return OutcomeIgnored
		}
		origin = en.ID
	default:
		return OutcomeIgnored
	}

	e.state = StateDragging
	e.dragged = entity
	e.origin = origin
	e.working = working
	e.pristine = working.Clone()
	e.logger.Debug("Drag started.", "kind", entity.Kind().String(), "id", entity.EntityID(), "origin", origin)
	return OutcomeApplied
}

func (e *Engine) over(target Target) Outcome {
	if e.state != StateDragging || target == nil {
		return OutcomeIgnored
	}
	// Documents are only reordered on completion.
	page, ok := e.dragged.(DraggedPage)
	if !ok {
		return OutcomeIgnored
	}
	if target.TargetID() == page.ID {
		return OutcomeIgnored
	}
	source, ok := e.working.GroupOf(page.ID)
	if !ok {
		e.logger.Debug("Dragged page is no longer in the working projection.", "pageId", page.ID)
		return OutcomeIgnored
	}

	switch t := target.(type) {
	case PageTarget:
		return e.overPage(page.ID, source, t.ID)
	case DocumentTarget:
		return e.overDocument(page.ID, source, t.ID)
	default:
		return OutcomeIgnored
	}
}

func (e *Engine) overPage(pageID, source, targetPageID string) Outcome {
	targetGroup, ok := e.working.GroupOf(targetPageID)
	if !ok {
		e.logger.Debug("Dropping drag over unknown page.", "targetPageId", targetPageID)
		return OutcomeIgnored
	}
	targetIndex := e.working.PageIndex(targetGroup, targetPageID)

	if targetGroup == source {
		from := e.working.PageIndex(source, pageID)
		if from == targetIndex || !e.working.MovePage(source, from, targetIndex) {
			return OutcomeIgnored
		}
		return OutcomeApplied
	}

	if !e.policy.CanAcceptTransfer(source, targetGroup) {
		e.logger.Debug("Transfer denied.", "pageId", pageID, "source", source, "target", targetGroup)
		return OutcomeDenied
	}
	// Moving down the group order lands after the target, moving up lands
	// before it, the same as a move across one flattened list.
	if e.working.GroupIndex(source) < e.working.GroupIndex(targetGroup) {
		targetIndex++
	}
	if !e.working.TransferPage(pageID, source, targetGroup, targetIndex) {
		return OutcomeIgnored
	}
	return OutcomeApplied
}

func (e *Engine) overDocument(pageID, source, targetGroup string) Outcome {
	if targetGroup == source {
		return OutcomeIgnored
	}
	if !e.working.HasGroup(targetGroup) {
		e.logger.Debug("Dropping drag over unknown document.", "documentId", targetGroup)
		return OutcomeIgnored
	}
	if !e.policy.CanAcceptTransfer(source, targetGroup) {
		e.logger.Debug("Transfer denied.", "pageId", pageID, "source", source, "target", targetGroup)
		return OutcomeDenied
	}
	end := len(e.working.Members(targetGroup))
	if !e.working.TransferPage(pageID, source, targetGroup, end) {
		return OutcomeIgnored
	}
	return OutcomeApplied
}

func (e *Engine) end(target Target) Outcome {
	if e.state != StateDragging {
		return OutcomeIgnored
	}
	if target == nil {
		return e.cancel()
	}
	if doc, ok := e.dragged.(DraggedDocument); ok {
		e.reorderDocuments(doc.ID, target)
	}
	return e.commit(e.working)
}

func (e *Engine) reorderDocuments(documentID string, target Target) {
	var targetGroup string
	switch t := target.(type) {
	case DocumentTarget:
		targetGroup = t.ID
	case PageTarget:
		targetGroup, _ = e.working.GroupOf(t.ID)
	}
	if targetGroup == "" || targetGroup == documentID {
		return
	}
	from := e.working.GroupIndex(documentID)
	to := e.working.GroupIndex(targetGroup)
	if from < 0 || to < 0 {
		e.logger.Debug("Dropping document reorder with unknown ids.", "documentId", documentID, "target", targetGroup)
		return
	}
	e.working.MoveGroup(from, to)
}

func (e *Engine) cancel() Outcome {
	if e.state != StateDragging {
		return OutcomeIgnored
	}
	e.logger.Debug("Drag cancelled.", "id", e.dragged.EntityID())
	return e.commit(e.pristine)
}

func (e *Engine) commit(w *projection.Working) Outcome {
	defer e.reset()
	if _, err := e.folder.Fold(w); err != nil {
		e.logger.Error("Failed to fold working projection.", "error", err)
		return OutcomeIgnored
	}
	return OutcomeCommitted
}

func (e *Engine) reset() {
	e.state = StateIdle
	e.dragged = nil
	e.origin = ""
	e.working = nil
	e.pristine = nil
}
