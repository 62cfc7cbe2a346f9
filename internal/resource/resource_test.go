package resource

import (
	"bytes"
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/hellhand/kube/internal/errs"
)

func testLayout(t *testing.T) *Layout {
	t.Helper()
	l, err := NewLayout(
		Decl{Key: "SWAP_EXTENT", Size: 8},
		Decl{Key: "PROJECTION", Size: 64},
		Decl{Key: "FRAME", Size: 8},
		Decl{Key: "TINT", Size: 4, Binding: 1},
		Decl{Key: "FRAME_RATE", Size: 4, Binding: 1},
	)
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	return l
}

// ============================================================================
// Layout
// ============================================================================

func TestLayout_OffsetsInjectiveAndInBounds(t *testing.T) {
	l := testLayout(t)
	seen := map[[2]int]Key{}
	for _, s := range l.Slots() {
		pos := [2]int{int(s.Binding), s.Offset}
		if other, ok := seen[pos]; ok {
			t.Errorf("%s and %s share binding %d offset %d", s.Key, other, s.Binding, s.Offset)
		}
		seen[pos] = s.Key
		if s.Offset%DefaultAlign != 0 {
			t.Errorf("%s offset %d not aligned", s.Key, s.Offset)
		}
		if s.End() > l.Size(s.Binding) {
			t.Errorf("%s ends at %d past binding size %d", s.Key, s.End(), l.Size(s.Binding))
		}
	}
	// Slots in one binding must not overlap either.
	slots := l.Slots()
	for i := range slots {
		for j := i + 1; j < len(slots); j++ {
			a, b := slots[i], slots[j]
			if a.Binding == b.Binding && a.Offset < b.End() && b.Offset < a.End() {
				t.Errorf("%s overlaps %s", a.Key, b.Key)
			}
		}
	}
}

func TestLayout_Packing(t *testing.T) {
	l := testLayout(t)
	tests := []struct {
		key     Key
		binding uint32
		offset  int
	}{
		{"SWAP_EXTENT", 0, 0},
		{"PROJECTION", 0, 16},
		{"FRAME", 0, 80},
		{"TINT", 1, 0},
		{"FRAME_RATE", 1, 16},
	}
	for _, tt := range tests {
		s, err := l.Resolve(tt.key)
		if err != nil {
			t.Fatalf("Resolve(%s): %v", tt.key, err)
		}
		if s.Binding != tt.binding || s.Offset != tt.offset {
			t.Errorf("%s = binding %d offset %d, want %d/%d", tt.key, s.Binding, s.Offset, tt.binding, tt.offset)
		}
	}
	if got := l.Size(0); got != 96 {
		t.Errorf("Size(0) = %d, want 96", got)
	}
	if got := l.Bindings(); len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Errorf("Bindings() = %v", got)
	}
}

func TestLayout_Errors(t *testing.T) {
	_, err := NewLayout(Decl{Key: "A", Size: 4}, Decl{Key: "A", Size: 8, Binding: 2})
	if !errors.Is(err, errs.ErrAlreadyExists) {
		t.Errorf("duplicate key err = %v, want already exists", err)
	}
	if _, err := NewLayout(Decl{Key: "A"}); err == nil {
		t.Error("zero size should be rejected")
	}
	if _, err := NewLayout(Decl{Size: 4}); err == nil {
		t.Error("empty key should be rejected")
	}
	l := testLayout(t)
	if _, err := l.Resolve("MISSING"); errs.KindOf(err) != errs.KindNotFound {
		t.Errorf("Resolve(missing) = %v, want not found", err)
	}
}

// ============================================================================
// Table
// ============================================================================

func TestTable_StageCommitDiscard(t *testing.T) {
	l := testLayout(t)
	tbl := NewTable(l)
	extent, _ := l.Resolve("SWAP_EXTENT")

	if err := tbl.Write(extent, 0, []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	got, _ := tbl.Read(extent)
	if !bytes.Equal(got, make([]byte, 8)) {
		t.Errorf("staged write visible before commit: %v", got)
	}

	tbl.Commit()
	got, _ = tbl.Read(extent)
	if !bytes.Equal(got[:4], []byte{1, 2, 3, 4}) {
		t.Errorf("after commit = %v", got)
	}
	if tbl.Generation() != 1 {
		t.Errorf("Generation() = %d, want 1", tbl.Generation())
	}

	if err := tbl.Write(extent, 4, []byte{9, 9, 9, 9}); err != nil {
		t.Fatal(err)
	}
	tbl.Discard()
	tbl.Commit()
	got, _ = tbl.Read(extent)
	if !bytes.Equal(got, []byte{1, 2, 3, 4, 0, 0, 0, 0}) {
		t.Errorf("discarded write leaked: %v", got)
	}
	if tbl.Generation() != 1 {
		t.Errorf("empty commit bumped generation to %d", tbl.Generation())
	}
}

func TestTable_Bounds(t *testing.T) {
	l := testLayout(t)
	tbl := NewTable(l)
	extent, _ := l.Resolve("SWAP_EXTENT")

	tests := []struct {
		name   string
		slot   Slot
		offset int
		data   []byte
	}{
		{"too long", extent, 0, make([]byte, 9)},
		{"offset past end", extent, 9, nil},
		{"negative offset", extent, -1, []byte{1}},
		{"spill from offset", extent, 6, []byte{1, 2, 3}},
		{"foreign slot", Slot{Key: "SWAP_EXTENT", Offset: 8, Size: 8}, 0, []byte{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tbl.Write(tt.slot, tt.offset, tt.data); err == nil {
				t.Error("Write() = nil, want error")
			}
		})
	}

	// A span never reaches into the next slot.
	span, err := tbl.Span(extent, 2)
	if err != nil || len(span) != 6 || cap(span) != 6 {
		t.Errorf("Span = len %d cap %d, %v", len(span), cap(span), err)
	}
}
