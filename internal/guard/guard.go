// Package guard decides whether a page may move between two documents.
package guard

import "github.com/Lllllllleong/pdfassembler/internal/models"

// Policy is consulted synchronously for every candidate cross-document
// transfer. Implementations must be pure.
type Policy interface {
	CanAcceptTransfer(sourceGroupID, targetGroupID string) bool
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(sourceGroupID, targetGroupID string) bool

func (f PolicyFunc) CanAcceptTransfer(sourceGroupID, targetGroupID string) bool {
	return f(sourceGroupID, targetGroupID)
}

// AllowAll accepts every transfer.
var AllowAll Policy = PolicyFunc(func(string, string) bool { return true })

// StateLookup resolves the decryption state of a document.
type StateLookup interface {
	DecryptionState(documentID string) (models.DecryptionState, bool)
}

// LockPolicy rejects transfers into a locked document, and by default out of
// one as well. Unknown documents are rejected.
type LockPolicy struct {
	states        StateLookup
	blockOutgoing bool
}

// Option configures a LockPolicy.
type Option func(*LockPolicy)

// WithOutgoingLock controls whether a locked source document may release its
// pages.
func WithOutgoingLock(enabled bool) Option {
	return func(p *LockPolicy) { p.blockOutgoing = enabled }
}

// NewLockPolicy returns a LockPolicy reading states from lookup.
func NewLockPolicy(lookup StateLookup, opts ...Option) *LockPolicy {
	p := &LockPolicy{states: lookup, blockOutgoing: true}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *LockPolicy) CanAcceptTransfer(sourceGroupID, targetGroupID string) bool {
	target, ok := p.states.DecryptionState(targetGroupID)
	if !ok || target == models.DecryptionLocked {
		return false
	}
	if p.blockOutgoing {
		source, ok := p.states.DecryptionState(sourceGroupID)
		if !ok || source == models.DecryptionLocked {
			return false
		}
	}
	return true
}
