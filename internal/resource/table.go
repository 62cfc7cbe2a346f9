package resource

import (
	"github.com/cockroachdb/errors"

	"github.com/hellhand/kube/internal/errs"
)

// Table holds the bytes for one Layout. Writes land in a staging copy and
// become visible to readers only on Commit.
//
// A Table belongs to one window; it is not safe for concurrent use.
type Table struct {
	layout    *Layout
	committed map[uint32][]byte
	staged    map[uint32][]byte
	dirty     bool
	gen       uint64
}

func NewTable(layout *Layout) *Table {
	t := &Table{
		layout:    layout,
		committed: make(map[uint32][]byte, len(layout.bindings)),
		staged:    make(map[uint32][]byte, len(layout.bindings)),
	}
	for _, b := range layout.bindings {
		t.committed[b] = make([]byte, layout.Size(b))
		t.staged[b] = make([]byte, layout.Size(b))
	}
	return t
}

func (t *Table) Layout() *Layout { return t.layout }

// Span returns the staged bytes of slot from offset to the end of the
// slot. Writing through it is equivalent to Write.
func (t *Table) Span(slot Slot, offset int) ([]byte, error) {
	if !t.layout.owns(slot) {
		return nil, errs.NotFound("resource slot", string(slot.Key))
	}
	if offset < 0 || offset > slot.Size {
		return nil, errors.Newf("resource slot %q: offset %d outside %d bytes", slot.Key, offset, slot.Size)
	}
	t.dirty = true
	return t.staged[slot.Binding][slot.Offset+offset : slot.End() : slot.End()], nil
}

// Write copies data into slot at offset.
func (t *Table) Write(slot Slot, offset int, data []byte) error {
	span, err := t.Span(slot, offset)
	if err != nil {
		return err
	}
	if len(data) > len(span) {
		return errors.Newf("resource slot %q: %d bytes at offset %d exceed %d", slot.Key, len(data), offset, slot.Size)
	}
	copy(span, data)
	return nil
}

// Commit publishes staged writes.
func (t *Table) Commit() {
	if !t.dirty {
		return
	}
	for b, src := range t.staged {
		copy(t.committed[b], src)
	}
	t.dirty = false
	t.gen++
}

// Discard drops staged writes, restoring the last committed bytes.
func (t *Table) Discard() {
	if !t.dirty {
		return
	}
	for b, src := range t.committed {
		copy(t.staged[b], src)
	}
	t.dirty = false
}

// Read returns a copy of slot's committed bytes.
func (t *Table) Read(slot Slot) ([]byte, error) {
	if !t.layout.owns(slot) {
		return nil, errs.NotFound("resource slot", string(slot.Key))
	}
	out := make([]byte, slot.Size)
	copy(out, t.committed[slot.Binding][slot.Offset:slot.End()])
	return out, nil
}

// Binding returns the committed storage of binding. The slice is owned by
// the table and valid until the next Commit.
func (t *Table) Binding(binding uint32) []byte { return t.committed[binding] }

// Generation counts commits that changed the table.
func (t *Table) Generation() uint64 { return t.gen }
