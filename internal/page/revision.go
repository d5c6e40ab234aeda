package page

// RevisionRootPage is the root of one revision's node tree.
type RevisionRootPage struct {
	// Revision is the revision number.
	Revision int64
	// MaxNodeKey is the largest node key allocated so far.
	MaxNodeKey int64
	// Timestamp is the commit time in Unix nanoseconds.
	Timestamp int64
	// NameRef points at the name dictionary.
	NameRef Reference
	// NodeRef points at the root of the node indirect tree.
	NodeRef Reference
}

// NewRevisionRootPage returns an empty revision root.
func NewRevisionRootPage(revision int64) *RevisionRootPage {
	return &RevisionRootPage{
		Revision:   revision,
		MaxNodeKey: -1,
		NameRef:    NewReference(),
		NodeRef:    NewReference(),
	}
}

// Kind implements Page.
func (p *RevisionRootPage) Kind() Kind { return KindRevisionRoot }

// References implements Page.
func (p *RevisionRootPage) References() []*Reference {
	return nonNull(&p.NameRef, &p.NodeRef)
}

// Clone returns a copy renumbered to revision that shares both subtrees.
func (p *RevisionRootPage) Clone(revision int64) *RevisionRootPage {
	c := *p
	c.Revision = revision
	c.Timestamp = 0
	return &c
}

// UberPage is the entry point of a store. Each commit writes a new one.
type UberPage struct {
	// Revision is the newest committed revision.
	Revision int64
	// RevisionRef points at the revision indirect tree.
	RevisionRef Reference
}

// NewUberPage returns an uber page with no revisions.
func NewUberPage() *UberPage {
	return &UberPage{Revision: -1, RevisionRef: NewReference()}
}

// Kind implements Page.
func (p *UberPage) Kind() Kind { return KindUber }

// References implements Page.
func (p *UberPage) References() []*Reference {
	return nonNull(&p.RevisionRef)
}

// Clone returns a copy that shares the revision tree.
func (p *UberPage) Clone() *UberPage {
	c := *p
	return &c
}

func nonNull(refs ...*Reference) []*Reference {
	out := refs[:0]
	for _, r := range refs {
		if !r.IsNull() {
			out = append(out, r)
		}
	}
	return out
}
