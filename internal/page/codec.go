package page

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/KilimcininKorOglu/arbor/internal/node"
)

// Encode serializes p. Every child reference must already be persisted.
//
// Layout: kind u8 followed by the kind specific body, integers varint
// encoded. References are written as storage keys.
func Encode(p Page) ([]byte, error) {
	buf := []byte{byte(p.Kind())}
	switch pg := p.(type) {
	case *UberPage:
		buf = binary.AppendVarint(buf, pg.Revision)
		return appendRef(buf, &pg.RevisionRef)

	case *RevisionRootPage:
		buf = binary.AppendVarint(buf, pg.Revision)
		buf = binary.AppendVarint(buf, pg.MaxNodeKey)
		buf = binary.AppendVarint(buf, pg.Timestamp)
		var err error
		if buf, err = appendRef(buf, &pg.NameRef); err != nil {
			return nil, err
		}
		return appendRef(buf, &pg.NodeRef)

	case *IndirectPage:
		buf = binary.AppendVarint(buf, pg.Revision)
		refs := pg.References()
		buf = binary.AppendUvarint(buf, uint64(len(refs)))
		for i := range pg.Refs {
			ref := &pg.Refs[i]
			if ref.IsNull() {
				continue
			}
			if !ref.IsPersisted() {
				return nil, ErrUnpersistedReference
			}
			buf = append(buf, byte(i))
			buf = binary.AppendVarint(buf, ref.Key)
		}
		return buf, nil

	case *NodePage:
		buf = binary.AppendVarint(buf, pg.PageKey)
		buf = binary.AppendVarint(buf, pg.Revision)
		if pg.Full {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
		buf = binary.AppendVarint(buf, pg.PreviousKey)
		buf = binary.AppendUvarint(buf, uint64(pg.Len()))
		for i, n := range pg.Nodes {
			if n == nil {
				continue
			}
			buf = append(buf, byte(i))
			buf = n.AppendBinary(buf)
		}
		return buf, nil

	case *NamePage:
		keys := make([]int32, 0, len(pg.names))
		for k := range pg.names {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		buf = binary.AppendUvarint(buf, uint64(len(keys)))
		for _, k := range keys {
			name := pg.names[k]
			buf = binary.AppendVarint(buf, int64(k))
			buf = binary.AppendUvarint(buf, uint64(len(name)))
			buf = append(buf, name...)
		}
		return buf, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrInvalidPageKind, p)
}

func appendRef(buf []byte, ref *Reference) ([]byte, error) {
	if ref.IsDirty() {
		return nil, ErrUnpersistedReference
	}
	return binary.AppendVarint(buf, ref.Key), nil
}

// Decode parses a page produced by Encode.
func Decode(buf []byte) (Page, error) {
	if len(buf) == 0 {
		return nil, ErrCorruptPage
	}
	d := decoder{buf: buf, off: 1}
	var p Page
	switch Kind(buf[0]) {
	case KindUber:
		up := NewUberPage()
		up.Revision = d.varint()
		up.RevisionRef.Key = d.varint()
		p = up

	case KindRevisionRoot:
		rp := NewRevisionRootPage(d.varint())
		rp.MaxNodeKey = d.varint()
		rp.Timestamp = d.varint()
		rp.NameRef.Key = d.varint()
		rp.NodeRef.Key = d.varint()
		p = rp

	case KindIndirect:
		ip := NewIndirectPage(d.varint())
		count := d.uvarint()
		for i := uint64(0); i < count && d.err == nil; i++ {
			slot := int(d.byte())
			if slot >= IndirectFanout {
				return nil, fmt.Errorf("%w: slot %d", ErrCorruptPage, slot)
			}
			ip.Refs[slot].Key = d.varint()
		}
		p = ip

	case KindNode:
		np := NewNodePage(d.varint(), d.varint(), false)
		np.Full = d.byte() == 1
		np.PreviousKey = d.varint()
		count := d.uvarint()
		for i := uint64(0); i < count && d.err == nil; i++ {
			slot := int(d.byte())
			if d.err != nil {
				break
			}
			if slot >= NodesPerPage {
				return nil, fmt.Errorf("%w: slot %d", ErrCorruptPage, slot)
			}
			n, size, err := node.Decode(d.buf[d.off:])
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorruptPage, err)
			}
			d.off += size
			np.Nodes[slot] = n
		}
		p = np

	case KindName:
		pg := NewNamePage()
		count := d.uvarint()
		for i := uint64(0); i < count && d.err == nil; i++ {
			key := int32(d.varint())
			size := d.uvarint()
			if d.err != nil || size > uint64(len(d.buf)-d.off) {
				return nil, ErrCorruptPage
			}
			pg.set(key, string(d.buf[d.off:d.off+int(size)]))
			d.off += int(size)
		}
		p = pg

	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidPageKind, buf[0])
	}
	if d.err != nil {
		return nil, d.err
	}
	return p, nil
}

type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) byte() byte {
	if d.err != nil || d.off >= len(d.buf) {
		d.err = ErrCorruptPage
		return 0
	}
	b := d.buf[d.off]
	d.off++
	return b
}

func (d *decoder) varint() int64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Varint(d.buf[d.off:])
	if n <= 0 {
		d.err = ErrCorruptPage
		return 0
	}
	d.off += n
	return v
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.buf[d.off:])
	if n <= 0 {
		d.err = ErrCorruptPage
		return 0
	}
	d.off += n
	return v
}
