package relay

import (
	"net/http"

	"github.com/samber/lo"
)

// HeaderPair is a single (name, value) pair in a HeaderSet.
type HeaderPair struct {
	Name  string
	Value string
}

// HeaderSet is an ordered multimap of header pairs, applied to every
// response the core originates. The set itself keeps insertion order.
// Responses carry it as an http.Header, so on the wire the values of one
// name keep their order while the names themselves are written sorted.
type HeaderSet struct {
	pairs []HeaderPair
}

// NewHeaderSet builds a HeaderSet from a list of pairs, in order.
func NewHeaderSet(pairs ...HeaderPair) *HeaderSet {
	hs := &HeaderSet{}
	hs.pairs = append(hs.pairs, pairs...)
	return hs
}

// Add appends a (name, value) pair, preserving any existing pair with the
// same name (this is a multimap, not a map).
func (hs *HeaderSet) Add(name, value string) {
	hs.pairs = append(hs.pairs, HeaderPair{Name: name, Value: value})
}

// Merge appends every pair of other after this set's own pairs.
func (hs *HeaderSet) Merge(other *HeaderSet) {
	if other == nil {
		return
	}
	hs.pairs = append(hs.pairs, other.pairs...)
}

// ApplyTo adds every pair in the set to h, in order.
func (hs *HeaderSet) ApplyTo(h http.Header) {
	if hs == nil {
		return
	}
	for _, p := range hs.pairs {
		h.Add(p.Name, p.Value)
	}
}

// Snapshot returns a defensive copy of the pairs, in order.
func (hs *HeaderSet) Snapshot() []HeaderPair {
	if hs == nil {
		return nil
	}
	return lo.Map(hs.pairs, func(p HeaderPair, _ int) HeaderPair { return p })
}
