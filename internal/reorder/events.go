package reorder

// Kind distinguishes what is being dragged or hovered.
type Kind int

const (
	KindPage Kind = iota + 1
	KindDocument
)

func (k Kind) String() string {
	switch k {
	case KindPage:
		return "page"
	case KindDocument:
		return "document"
	default:
		return "unknown"
	}
}

// DraggedEntity is the item picked up at gesture start: a DraggedPage or a
// DraggedDocument.
type DraggedEntity interface {
	Kind() Kind
	EntityID() string
	draggedEntity()
}

// DraggedPage is a page picked up from GroupID. The engine resolves the real
// owner from the working projection; GroupID is only a hint.
type DraggedPage struct {
	ID      string
	GroupID string
}

func (DraggedPage) Kind() Kind         { return KindPage }
func (p DraggedPage) EntityID() string { return p.ID }
func (DraggedPage) draggedEntity()     {}

// DraggedDocument is a whole document picked up by its handle.
type DraggedDocument struct {
	ID string
}

func (DraggedDocument) Kind() Kind         { return KindDocument }
func (d DraggedDocument) EntityID() string { return d.ID }
func (DraggedDocument) draggedEntity()     {}

// Target is what the dragged entity hovers over or is dropped on.
type Target interface {
	Kind() Kind
	TargetID() string
	target()
}

// PageTarget is a specific page.
type PageTarget struct {
	ID string
}

func (PageTarget) Kind() Kind         { return KindPage }
func (p PageTarget) TargetID() string { return p.ID }
func (PageTarget) target()            {}

// DocumentTarget is a document as a whole, e.g. the empty area of its row.
type DocumentTarget struct {
	ID string
}

func (DocumentTarget) Kind() Kind         { return KindDocument }
func (d DocumentTarget) TargetID() string { return d.ID }
func (DocumentTarget) target()            {}

// Event is one step of the drag lifecycle.
type Event interface {
	event()
}

// DragStart begins a gesture.
type DragStart struct {
	Entity DraggedEntity
}

// DragOver is delivered repeatedly while hovering a candidate target.
type DragOver struct {
	Target Target
}

// DragEnd completes a gesture. A nil Target means the item was released
// outside any valid target and is treated as a cancel.
type DragEnd struct {
	Target Target
}

// DragCancel abandons the gesture.
type DragCancel struct{}

func (DragStart) event()  {}
func (DragOver) event()   {}
func (DragEnd) event()    {}
func (DragCancel) event() {}
