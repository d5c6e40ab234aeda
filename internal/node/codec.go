package node

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Codec errors.
var (
	ErrShortBuffer = errors.New("node: buffer too short")
	ErrInvalidKind = errors.New("node: invalid kind")
)

// AppendBinary appends the encoded node to buf.
//
// Layout (all integers varint encoded):
//
//	kind u8 | key | parent | [hash u64 LE] | kind specific fields
//
// Tombstones stop after parent.
func (n *Node) AppendBinary(buf []byte) []byte {
	buf = append(buf, byte(n.Kind))
	buf = binary.AppendVarint(buf, n.Key)
	buf = binary.AppendVarint(buf, n.ParentKey)
	if n.Kind == KindTombstone {
		return buf
	}
	buf = binary.LittleEndian.AppendUint64(buf, n.Hash)
	buf = binary.AppendVarint(buf, n.FirstChildKey)
	buf = binary.AppendVarint(buf, n.LeftSiblingKey)
	buf = binary.AppendVarint(buf, n.RightSiblingKey)
	buf = binary.AppendVarint(buf, n.ChildCount)
	buf = binary.AppendVarint(buf, int64(n.NameKey))
	buf = binary.AppendVarint(buf, int64(n.URIKey))
	buf = binary.AppendVarint(buf, int64(n.TypeKey))
	buf = appendKeys(buf, n.AttributeKeys)
	buf = appendKeys(buf, n.NamespaceKeys)
	buf = binary.AppendUvarint(buf, uint64(len(n.Value)))
	buf = append(buf, n.Value...)
	return buf
}

func appendKeys(buf []byte, keys []int64) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(keys)))
	for _, k := range keys {
		buf = binary.AppendVarint(buf, k)
	}
	return buf
}

// Decode reads one node from buf and returns it with the number of bytes
// consumed.
func Decode(buf []byte) (*Node, int, error) {
	r := reader{buf: buf}
	kind := Kind(r.byte())
	if r.err == nil && (kind == KindUnknown || kind > KindTombstone) {
		return nil, 0, fmt.Errorf("%w: %d", ErrInvalidKind, kind)
	}
	n := New(r.varint(), r.varint(), kind)
	if kind != KindTombstone {
		n.Hash = r.uint64()
		n.FirstChildKey = r.varint()
		n.LeftSiblingKey = r.varint()
		n.RightSiblingKey = r.varint()
		n.ChildCount = r.varint()
		n.NameKey = int32(r.varint())
		n.URIKey = int32(r.varint())
		n.TypeKey = int32(r.varint())
		n.AttributeKeys = r.keys()
		n.NamespaceKeys = r.keys()
		n.Value = r.bytes()
	}
	if r.err != nil {
		return nil, 0, r.err
	}
	return n, r.off, nil
}

// reader is a sticky-error cursor over an encoded node.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) byte() byte {
	if r.err != nil || r.off >= len(r.buf) {
		r.err = ErrShortBuffer
		return 0
	}
	b := r.buf[r.off]
	r.off++
	return b
}

func (r *reader) varint() int64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Varint(r.buf[r.off:])
	if n <= 0 {
		r.err = ErrShortBuffer
		return 0
	}
	r.off += n
	return v
}

func (r *reader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf[r.off:])
	if n <= 0 {
		r.err = ErrShortBuffer
		return 0
	}
	r.off += n
	return v
}

func (r *reader) uint64() uint64 {
	if r.err != nil || r.off+8 > len(r.buf) {
		r.err = ErrShortBuffer
		return 0
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

func (r *reader) keys() []int64 {
	count := r.uvarint()
	if r.err != nil || count == 0 {
		return nil
	}
	if count > uint64(len(r.buf)-r.off) {
		r.err = ErrShortBuffer
		return nil
	}
	keys := make([]int64, count)
	for i := range keys {
		keys[i] = r.varint()
	}
	return keys
}

func (r *reader) bytes() []byte {
	size := r.uvarint()
	if r.err != nil || size == 0 {
		return nil
	}
	if size > uint64(len(r.buf)-r.off) {
		r.err = ErrShortBuffer
		return nil
	}
	v := make([]byte, size)
	copy(v, r.buf[r.off:])
	r.off += int(size)
	return v
}

// OwnHash returns the content hash of the node alone: kind, interned names
// and value. Structural keys are not part of it, so equal content at a
// different position hashes the same.
func (n *Node) OwnHash() uint64 {
	if n.Kind == KindTombstone {
		return 0
	}
	var scratch [13]byte
	scratch[0] = byte(n.Kind)
	binary.LittleEndian.PutUint32(scratch[1:], uint32(n.NameKey))
	binary.LittleEndian.PutUint32(scratch[5:], uint32(n.URIKey))
	binary.LittleEndian.PutUint32(scratch[9:], uint32(n.TypeKey))
	d := xxhash.New()
	_, _ = d.Write(scratch[:])
	_, _ = d.Write(n.Value)
	return d.Sum64()
}
