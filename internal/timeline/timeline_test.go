package timeline

import (
	"context"
	"encoding/binary"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	mgl32 "github.com/go-gl/mathgl/mgl32"

	"github.com/hellhand/kube/internal/native"
	"github.com/hellhand/kube/internal/resource"
	"github.com/hellhand/kube/internal/workerpool"
)

func newTable(t *testing.T) *resource.Table {
	t.Helper()
	l, err := resource.NewLayout(
		resource.Decl{Key: "SWAP_EXTENT", Size: SwapExtentSize},
		resource.Decl{Key: "PROJECTION", Size: ProjectionSize},
		resource.Decl{Key: "FRAME", Size: FrameIndexSize},
		resource.Decl{Key: "FPS", Size: FrameRateSize},
	)
	if err != nil {
		t.Fatal(err)
	}
	return resource.NewTable(l)
}

func read(t *testing.T, tbl *resource.Table, key resource.Key) []byte {
	t.Helper()
	slot, err := tbl.Layout().Resolve(key)
	if err != nil {
		t.Fatal(err)
	}
	b, err := tbl.Read(slot)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestTick_DeterministicOrder(t *testing.T) {
	tbl := newTable(t)
	var log []resource.Key
	tl, err := New(tbl,
		Entry{Key: "FRAME", Callback: FrameIndex()},
		Entry{Key: "SWAP_EXTENT", Callback: SwapExtent()},
		Entry{Key: "PROJECTION", Callback: Projection()},
	)
	if err != nil {
		t.Fatal(err)
	}
	tl.WithObserver(func(key resource.Key, err error) { log = append(log, key) })

	st := &State{Extent: native.Extent{Width: 640, Height: 480}}
	var first []resource.Key
	for i := range 5 {
		log = nil
		st.Frame = uint64(i)
		if err := tl.Tick(st); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if i == 0 {
			first = slices.Clone(log)
			continue
		}
		if !slices.Equal(log, first) {
			t.Fatalf("tick %d order %v, want %v", i, log, first)
		}
	}
	want := []resource.Key{"FRAME", "SWAP_EXTENT", "PROJECTION"}
	if !slices.Equal(first, want) {
		t.Errorf("order = %v, want declaration order %v", first, want)
	}
	if got := binary.LittleEndian.Uint64(read(t, tbl, "FRAME")); got != 4 {
		t.Errorf("FRAME = %d, want 4", got)
	}
}

func TestTick_FailureAbortsAndDiscards(t *testing.T) {
	tbl := newTable(t)
	boom := errors.New("boom")
	var ran []resource.Key
	fail := true
	tl, err := New(tbl,
		Entry{Key: "SWAP_EXTENT", Callback: SwapExtent()},
		Entry{Key: "FRAME", Callback: Func(func(st *State, dst []byte) error {
			if fail {
				return boom
			}
			return nil
		})},
		Entry{Key: "PROJECTION", Callback: Projection()},
	)
	if err != nil {
		t.Fatal(err)
	}
	tl.WithObserver(func(key resource.Key, err error) { ran = append(ran, key) })

	st := &State{Extent: native.Extent{Width: 1280, Height: 720}}
	err = tl.Tick(st)
	if !errors.Is(err, boom) {
		t.Fatalf("Tick = %v, want boom", err)
	}
	if !slices.Equal(ran, []resource.Key{"SWAP_EXTENT", "FRAME"}) {
		t.Errorf("ran %v, want abort after FRAME", ran)
	}
	if got := read(t, tbl, "SWAP_EXTENT"); !slices.Equal(got, make([]byte, 8)) {
		t.Errorf("failed tick leaked writes: %v", got)
	}
	if tbl.Generation() != 0 {
		t.Errorf("failed tick committed")
	}

	fail = false
	if err := tl.Tick(st); err != nil {
		t.Fatal(err)
	}
	if got := binary.LittleEndian.Uint32(read(t, tbl, "SWAP_EXTENT")); got != 1280 {
		t.Errorf("width = %d, want 1280", got)
	}
}

func TestNew_Errors(t *testing.T) {
	tbl := newTable(t)
	tests := []struct {
		name  string
		entry Entry
	}{
		{"unknown key", Entry{Key: "MISSING", Callback: FrameIndex()}},
		{"offset past slot", Entry{Key: "FRAME", Offset: 8, Callback: FrameIndex()}},
		{"nil callback", Entry{Key: "FRAME"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tbl, tt.entry); err == nil {
				t.Error("New() = nil error")
			}
		})
	}
}

func TestBuiltins_NeedRoom(t *testing.T) {
	tbl := newTable(t)
	// Offset 4 leaves four bytes in an eight-byte slot.
	tl, err := New(tbl, Entry{Key: "SWAP_EXTENT", Offset: 4, Callback: SwapExtent()})
	if err != nil {
		t.Fatal(err)
	}
	if err := tl.Tick(&State{}); err == nil {
		t.Error("swap extent into four bytes should fail")
	}
}

func TestProjection(t *testing.T) {
	tbl := newTable(t)
	tl, err := New(tbl, Entry{Key: "PROJECTION", Callback: Projection()})
	if err != nil {
		t.Fatal(err)
	}
	if err := tl.Tick(&State{Extent: native.Extent{Width: 200, Height: 100}}); err != nil {
		t.Fatal(err)
	}
	raw := read(t, tbl, "PROJECTION")
	var m mgl32.Mat4
	for i := range m {
		m[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	corner := m.Mul4x1(mgl32.Vec4{200, 100, 0, 1})
	if !corner.ApproxEqual(mgl32.Vec4{1, 1, 0, 1}) {
		t.Errorf("far corner maps to %v", corner)
	}
	if err := tl.Tick(&State{}); err == nil {
		t.Error("empty extent should fail")
	}
}

func TestFrameRate(t *testing.T) {
	tbl := newTable(t)
	var updates []float64
	fps := &FrameRate{OnUpdate: func(v float64) { updates = append(updates, v) }}
	tl, err := New(tbl, Entry{Key: "FPS", Callback: fps})
	if err != nil {
		t.Fatal(err)
	}
	start := time.Unix(100, 0)
	for i := range 61 {
		st := &State{Time: start.Add(time.Duration(i) * time.Second / 60)}
		if err := tl.Tick(st); err != nil {
			t.Fatal(err)
		}
	}
	if len(updates) != 1 {
		t.Fatalf("updates = %v, want one", updates)
	}
	if fps.Value() < 60 || fps.Value() > 62 {
		t.Errorf("fps = %v, want about 61", fps.Value())
	}
	got := math.Float32frombits(binary.LittleEndian.Uint32(read(t, tbl, "FPS")))
	if float64(got) != float64(float32(fps.Value())) {
		t.Errorf("slot = %v, want %v", got, fps.Value())
	}
}

func TestSchedule(t *testing.T) {
	pool := workerpool.NewSized(2)
	defer pool.Close()

	tbl := newTable(t)
	tl, err := New(tbl, Entry{Key: "SWAP_EXTENT", Callback: SwapExtent()})
	if err != nil {
		t.Fatal(err)
	}
	if err := tl.Schedule(context.Background(), pool, &State{Extent: native.Extent{Width: 3, Height: 4}}); err != nil {
		t.Fatal(err)
	}
	if got := binary.LittleEndian.Uint32(read(t, tbl, "SWAP_EXTENT")[4:]); got != 4 {
		t.Errorf("height = %d, want 4", got)
	}
}
