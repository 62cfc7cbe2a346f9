// Package resource lays out and stores the per-frame data a timeline
// writes and the renderer uploads.
//
// A Layout is built once at startup from a list of declarations and never
// changes. Callers resolve each key to a Slot up front and keep it, so the
// per-frame path does no lookups.
package resource

import (
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/hellhand/kube/internal/errs"
)

// DefaultAlign keeps every slot on a std140 vec4 boundary.
const DefaultAlign = 16

type Key string

// Decl declares a slot of Size bytes in the storage bound at Binding.
type Decl struct {
	Key     Key
	Size    int
	Binding uint32
}

// Slot is a resolved declaration.
type Slot struct {
	Key     Key
	Binding uint32
	Offset  int
	Size    int
}

// End is the first byte past the slot.
func (s Slot) End() int { return s.Offset + s.Size }

type Layout struct {
	slots    []Slot
	index    map[Key]int
	sizes    map[uint32]int
	bindings []uint32
}

// NewLayout packs decls in declaration order, aligning each slot to
// DefaultAlign within its binding.
func NewLayout(decls ...Decl) (*Layout, error) {
	l := &Layout{
		index: make(map[Key]int, len(decls)),
		sizes: make(map[uint32]int),
	}
	for _, d := range decls {
		if d.Key == "" {
			return nil, errors.New("resource layout: empty key")
		}
		if d.Size <= 0 {
			return nil, errors.Newf("resource layout: slot %q has size %d", d.Key, d.Size)
		}
		if _, ok := l.index[d.Key]; ok {
			return nil, errs.AlreadyExists("resource key", string(d.Key))
		}
		end, seen := l.sizes[d.Binding]
		if !seen {
			l.bindings = append(l.bindings, d.Binding)
		}
		off := align(end, DefaultAlign)
		l.index[d.Key] = len(l.slots)
		l.slots = append(l.slots, Slot{Key: d.Key, Binding: d.Binding, Offset: off, Size: d.Size})
		l.sizes[d.Binding] = off + d.Size
	}
	slices.Sort(l.bindings)
	return l, nil
}

func align(n, to int) int { return (n + to - 1) &^ (to - 1) }

// Resolve returns the slot declared for key.
func (l *Layout) Resolve(key Key) (Slot, error) {
	i, ok := l.index[key]
	if !ok {
		return Slot{}, errs.NotFound("resource key", string(key))
	}
	return l.slots[i], nil
}

// Slots returns every slot in declaration order.
func (l *Layout) Slots() []Slot { return slices.Clone(l.slots) }

// Bindings returns the binding numbers in use, ascending.
func (l *Layout) Bindings() []uint32 { return slices.Clone(l.bindings) }

// Size is the storage a binding needs, rounded up to DefaultAlign.
func (l *Layout) Size(binding uint32) int { return align(l.sizes[binding], DefaultAlign) }

func (l *Layout) owns(s Slot) bool {
	i, ok := l.index[s.Key]
	return ok && l.slots[i] == s
}
