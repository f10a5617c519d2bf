package models

// DecryptionState describes whether a Document's source file still needs a
// credential before its pages can be shown or moved.
type DecryptionState string

const (
	DecryptionNotApplicable DecryptionState = "not-applicable"
	DecryptionLocked        DecryptionState = "locked"
	DecryptionUnlocked      DecryptionState = "unlocked"
)

// Page is one page extracted from a source file. A Page is owned by exactly
// one Document at any instant.
type Page struct {
	ID              string  `json:"id"`
	SourceFilePath  string  `json:"sourceFilePath"`
	SourcePageIndex int     `json:"sourcePageIndex"` // 0-based
	Preview         string  `json:"preview,omitempty"`
	Width           float64 `json:"width"`
	Height          float64 `json:"height"`
}

// Document is one assembled unit: an ordered sequence of pages plus the
// metadata of the file it was produced from.
type Document struct {
	ID              string          `json:"id"`
	DisplayName     string          `json:"displayName"`
	SourceFilePath  string          `json:"sourceFilePath"`
	Pages           []Page          `json:"pages"`
	Credential      string          `json:"-"`
	DecryptionState DecryptionState `json:"decryptionState"`
	Error           ErrorCode       `json:"error,omitempty"` // last collaborator failure, if any
}

// Locked reports whether the document is waiting for an unlock credential.
func (d Document) Locked() bool {
	return d.DecryptionState == DecryptionLocked
}

// PageIDs returns the document's page ids in order.
func (d Document) PageIDs() []string {
	ids := make([]string, len(d.Pages))
	for i, p := range d.Pages {
		ids[i] = p.ID
	}
	return ids
}

// Clone returns a copy that shares no page storage with d.
func (d Document) Clone() Document {
	cp := d
	cp.Pages = append([]Page(nil), d.Pages...)
	return cp
}

// Snapshot is a point-in-time view of the entity store: every document keyed
// by id plus the display order of the documents (the Group Order).
type Snapshot struct {
	Documents map[string]Document `json:"documents"`
	Order     []string            `json:"order"`
}

// Clone deep-copies the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Documents: make(map[string]Document, len(s.Documents)),
		Order:     append([]string(nil), s.Order...),
	}
	for id, doc := range s.Documents {
		out.Documents[id] = doc.Clone()
	}
	return out
}

// Ordered returns the documents in Group Order. Ids in Order without a
// matching document are skipped.
func (s Snapshot) Ordered() []Document {
	docs := make([]Document, 0, len(s.Order))
	for _, id := range s.Order {
		if doc, ok := s.Documents[id]; ok {
			docs = append(docs, doc)
		}
	}
	return docs
}

// PageCount is the total number of pages across all documents.
func (s Snapshot) PageCount() int {
	n := 0
	for _, doc := range s.Documents {
		n += len(doc.Pages)
	}
	return n
}
