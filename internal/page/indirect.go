package page

import "fmt"

// Indirect tree geometry.
const (
	// IndirectFanout is the number of references held by an indirect page.
	IndirectFanout = 128
	// IndirectLevels is the height of every indirect tree.
	IndirectLevels = 5
	// fanoutMask selects the slot of a key at one level.
	fanoutMask = IndirectFanout - 1
	// MaxIndirectKey is the largest key an indirect tree can address.
	MaxIndirectKey int64 = 1<<(7*IndirectLevels) - 1
)

// LevelShifts are the per-level shifts applied to a key to find its slot,
// from the tree root down to the leaf.
var LevelShifts = [IndirectLevels]uint{28, 21, 14, 7, 0}

// IndirectPage is an interior page of a 128-way tree.
type IndirectPage struct {
	// Revision is the revision that produced this version of the page.
	Revision int64
	// Refs holds exactly IndirectFanout references.
	Refs []Reference
}

// NewIndirectPage returns an empty indirect page.
func NewIndirectPage(revision int64) *IndirectPage {
	refs := make([]Reference, IndirectFanout)
	for i := range refs {
		refs[i].Key = NullKey
	}
	return &IndirectPage{Revision: revision, Refs: refs}
}

// Kind implements Page.
func (p *IndirectPage) Kind() Kind { return KindIndirect }

// References implements Page.
func (p *IndirectPage) References() []*Reference {
	out := make([]*Reference, 0, 8)
	for i := range p.Refs {
		if !p.Refs[i].IsNull() {
			out = append(out, &p.Refs[i])
		}
	}
	return out
}

// Clone returns a copy of the page stamped with revision. References are
// copied by value, so the copy shares children with the original.
func (p *IndirectPage) Clone(revision int64) *IndirectPage {
	refs := make([]Reference, IndirectFanout)
	copy(refs, p.Refs)
	return &IndirectPage{Revision: revision, Refs: refs}
}

// Slots returns the slot index of key at every level.
func Slots(key int64) ([IndirectLevels]int, error) {
	var slots [IndirectLevels]int
	if key < 0 || key > MaxIndirectKey {
		return slots, fmt.Errorf("%w: %d", ErrKeyOutOfRange, key)
	}
	for level, shift := range LevelShifts {
		slots[level] = int((key >> shift) & fanoutMask)
	}
	return slots, nil
}

// LookupLeaf walks the committed indirect tree under root and returns the
// leaf reference for key. A missing path yields a null reference.
func LookupLeaf(l Loader, root Reference, key int64) (Reference, error) {
	slots, err := Slots(key)
	if err != nil {
		return Reference{}, err
	}
	ref := root
	for _, slot := range slots {
		p, err := Deref(l, &ref)
		if err != nil {
			return Reference{}, err
		}
		if p == nil {
			return NewReference(), nil
		}
		ip, ok := p.(*IndirectPage)
		if !ok {
			return Reference{}, fmt.Errorf("%w: want %s, got %s", ErrUnexpectedPage, KindIndirect, p.Kind())
		}
		ref = ip.Refs[slot]
	}
	return ref, nil
}

// PrepareLeaf makes the path from root to the leaf slot of key writable
// for revision and returns a pointer to the leaf reference.
//
// Pages already owned by the caller (dirty references) are reused. Any
// committed page on the path is cloned, and missing pages are created.
func PrepareLeaf(l Loader, root *Reference, key int64, revision int64) (*Reference, error) {
	slots, err := Slots(key)
	if err != nil {
		return nil, err
	}
	ref := root
	for _, slot := range slots {
		ip, err := writableIndirect(l, ref, revision)
		if err != nil {
			return nil, err
		}
		ref = &ip.Refs[slot]
	}
	return ref, nil
}

func writableIndirect(l Loader, ref *Reference, revision int64) (*IndirectPage, error) {
	if ref.IsDirty() {
		ip, ok := ref.Page.(*IndirectPage)
		if !ok {
			return nil, fmt.Errorf("%w: want %s, got %s", ErrUnexpectedPage, KindIndirect, ref.Page.Kind())
		}
		return ip, nil
	}
	var ip *IndirectPage
	if ref.IsPersisted() {
		p, err := l.LoadPage(ref.Key)
		if err != nil {
			return nil, err
		}
		committed, ok := p.(*IndirectPage)
		if !ok {
			return nil, fmt.Errorf("%w: want %s, got %s", ErrUnexpectedPage, KindIndirect, p.Kind())
		}
		ip = committed.Clone(revision)
	} else {
		ip = NewIndirectPage(revision)
	}
	ref.SetPage(ip)
	return ip, nil
}
