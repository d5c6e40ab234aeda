package page

import (
	"maps"

	"github.com/cespare/xxhash/v2"

	"github.com/KilimcininKorOglu/arbor/internal/node"
)

// NamePage interns the names, URIs and type names of a revision.
//
// A name's key is derived from its xxhash; collisions are resolved by
// probing upward, so a name keeps its key in every later revision.
type NamePage struct {
	names map[int32]string
	keys  map[string]int32
}

// NewNamePage returns an empty name dictionary.
func NewNamePage() *NamePage {
	return &NamePage{
		names: make(map[int32]string),
		keys:  make(map[string]int32),
	}
}

// Kind implements Page.
func (p *NamePage) Kind() Kind { return KindName }

// References implements Page.
func (p *NamePage) References() []*Reference { return nil }

// Clone returns an independent copy.
func (p *NamePage) Clone() *NamePage {
	return &NamePage{
		names: maps.Clone(p.names),
		keys:  maps.Clone(p.keys),
	}
}

// Lookup returns the key of name.
func (p *NamePage) Lookup(name string) (int32, bool) {
	key, ok := p.keys[name]
	return key, ok
}

// Name returns the name stored under key, or "" for NullName and unknown
// keys.
func (p *NamePage) Name(key int32) string {
	if key == node.NullName {
		return ""
	}
	return p.names[key]
}

// Intern returns the key of name, adding it if missing. The empty name is
// never interned.
func (p *NamePage) Intern(name string) int32 {
	if name == "" {
		return node.NullName
	}
	if key, ok := p.keys[name]; ok {
		return key
	}
	key := int32(xxhash.Sum64String(name) & 0x7fffffff)
	for {
		if _, taken := p.names[key]; !taken {
			break
		}
		key = (key + 1) & 0x7fffffff
	}
	p.set(key, name)
	return key
}

// Len returns the number of interned names.
func (p *NamePage) Len() int {
	return len(p.names)
}

func (p *NamePage) set(key int32, name string) {
	p.names[key] = name
	p.keys[name] = key
}
