package window_test

import (
	"context"
	"encoding/binary"
	"slices"
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/hellhand/kube/internal/errs"
	"github.com/hellhand/kube/internal/gpu"
	"github.com/hellhand/kube/internal/native/headless"
	"github.com/hellhand/kube/internal/resource"
	"github.com/hellhand/kube/internal/timeline"
	"github.com/hellhand/kube/internal/window"
	"github.com/hellhand/kube/internal/workerpool"
)

type rig struct {
	driver   *headless.Driver
	instance *gpu.Instance
	physical *gpu.PhysicalDevice
	device   *gpu.Device
}

func newRig(t *testing.T) *rig {
	t.Helper()
	r := &rig{driver: headless.New()}
	var err error
	if r.instance, err = gpu.Create[gpu.Instance](gpu.InstanceArgs{Driver: r.driver, AppName: "test"}); err != nil {
		t.Fatalf("instance: %v", err)
	}
	return r
}

func extentLayout(t *testing.T) *resource.Layout {
	t.Helper()
	l, err := resource.NewLayout(resource.Decl{Key: "SWAP_EXTENT", Size: timeline.SwapExtentSize})
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func (r *rig) open(t *testing.T, title string, w, h int) (*window.Window, *headless.Window) {
	t.Helper()
	nw, err := r.driver.NewWindow(title, w, h)
	if err != nil {
		t.Fatal(err)
	}
	win, err := window.New(r.instance, nw, window.Options{
		Layout:   extentLayout(t),
		Timeline: []timeline.Entry{{Key: "SWAP_EXTENT", Callback: timeline.SwapExtent()}},
	})
	if err != nil {
		t.Fatalf("window %q: %v", title, err)
	}
	if r.device == nil {
		physical, families, err := gpu.SelectPhysicalDevice(r.instance, win.Surface())
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		r.physical = physical
		if r.device, err = gpu.Create[gpu.Device](gpu.DeviceArgs{Physical: physical, Families: families}); err != nil {
			t.Fatalf("device: %v", err)
		}
	}
	return win, nw
}

func (r *rig) teardown() {
	if r.device != nil {
		r.device.Destroy()
		r.physical.Destroy()
	}
	r.instance.Destroy()
}

func (r *rig) assertClean(t *testing.T) {
	t.Helper()
	if v := r.driver.Violations(); len(v) > 0 {
		t.Errorf("ordering violations: %q", v)
	}
	if n := r.driver.Live(); n != 0 {
		t.Errorf("Live() = %d, want 0: %v", n, r.driver.LiveKinds())
	}
}

func swapExtent(t *testing.T, w *window.Window) (uint32, uint32) {
	t.Helper()
	slot, err := w.Table().Layout().Resolve("SWAP_EXTENT")
	if err != nil {
		t.Fatal(err)
	}
	b, err := w.Table().Read(slot)
	if err != nil {
		t.Fatal(err)
	}
	return binary.LittleEndian.Uint32(b), binary.LittleEndian.Uint32(b[4:])
}

// ============================================================================
// Window
// ============================================================================

func TestWindow_TickWritesSwapExtent(t *testing.T) {
	r := newRig(t)
	w, _ := r.open(t, "demo", 1280, 720)

	if err := w.InitializeSwap(r.device); err != nil {
		t.Fatalf("InitializeSwap: %v", err)
	}
	if err := w.Tick(context.Background(), nil); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if gw, gh := swapExtent(t, w); gw != 1280 || gh != 720 {
		t.Errorf("SWAP_EXTENT = %dx%d, want 1280x720", gw, gh)
	}
	if w.Frame() != 1 {
		t.Errorf("Frame() = %d, want 1", w.Frame())
	}

	w.Destroy()
	r.teardown()
	r.assertClean(t)
}

func TestWindow_InitializeSwapIsIdempotent(t *testing.T) {
	r := newRig(t)
	w, _ := r.open(t, "demo", 640, 480)

	if err := w.InitializeSwap(r.device); err != nil {
		t.Fatal(err)
	}
	first := w.Swapchain()
	if err := w.InitializeSwap(r.device); err != nil {
		t.Fatalf("second InitializeSwap = %v, want nil", err)
	}
	if w.Swapchain() != first {
		t.Error("second InitializeSwap replaced the swap chain")
	}

	w.Destroy()
	r.teardown()
	r.assertClean(t)
}

func TestWindow_RecreateSwapAfterResize(t *testing.T) {
	r := newRig(t)
	w, nw := r.open(t, "demo", 640, 480)

	if err := w.RecreateSwap(); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("RecreateSwap without swap chain = %v, want not found", err)
	}
	if err := w.InitializeSwap(r.device); err != nil {
		t.Fatal(err)
	}
	pass, err := gpu.Create[gpu.RenderPass](gpu.RenderPassArgs{Device: r.device, ColorFormat: w.Swapchain().Format().Format})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.AttachRenderPass(pass); err != nil {
		t.Fatal(err)
	}
	fence, err := gpu.Create[gpu.Fence](gpu.FenceArgs{Device: r.device, Signaled: true})
	if err != nil {
		t.Fatal(err)
	}

	nw.Resize(800, 600)
	if !w.ResizePending() {
		t.Fatal("resize callback did not mark the window")
	}
	old := w.Swapchain()
	if err := w.RecreateSwap(fence); err != nil {
		t.Fatalf("RecreateSwap: %v", err)
	}
	if w.Swapchain() == old || old.Alive() {
		t.Error("old swap chain should be replaced and destroyed")
	}
	if got := w.Swapchain().Extent(); got.Width != 800 || got.Height != 600 {
		t.Errorf("extent = %v, want 800x600", got)
	}
	if n := len(w.Swapchain().Framebuffers()); n != w.Swapchain().Len() {
		t.Errorf("framebuffers = %d, want one per image (%d)", n, w.Swapchain().Len())
	}
	if w.ResizePending() {
		t.Error("rebuild should clear the pending flag")
	}

	// Minimised windows keep the old swap chain until they come back.
	nw.Resize(0, 0)
	kept := w.Swapchain()
	if err := w.RecreateSwap(fence); err != nil {
		t.Fatalf("RecreateSwap minimised: %v", err)
	}
	if w.Swapchain() != kept || !w.ResizePending() || !w.Minimized() {
		t.Error("minimised rebuild should be deferred")
	}

	nw.Resize(320, 200)
	if err := w.Tick(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if err := w.RecreateSwap(fence); err != nil {
		t.Fatal(err)
	}
	if err := w.Tick(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if gw, gh := swapExtent(t, w); gw != 320 || gh != 200 {
		t.Errorf("SWAP_EXTENT = %dx%d, want 320x200", gw, gh)
	}

	fence.Destroy()
	pass.Destroy()
	w.Destroy()
	r.teardown()
	r.assertClean(t)
}

func TestWindow_SurfaceFailureIsWindowing(t *testing.T) {
	r := newRig(t)
	nw, err := r.driver.NewWindow("broken", 100, 100)
	if err != nil {
		t.Fatal(err)
	}
	nw.FailSurface(errors.New("no display"))

	_, err = window.New(r.instance, nw, window.Options{})
	if errs.KindOf(err) != errs.KindWindowing {
		t.Errorf("KindOf(%v) = %v, want windowing", err, errs.KindOf(err))
	}
	if !nw.Destroyed() {
		t.Error("native window should be destroyed on failure")
	}

	r.teardown()
	r.assertClean(t)
}

func TestWindow_TickFailureLeavesTableUntouched(t *testing.T) {
	r := newRig(t)
	nw, err := r.driver.NewWindow("demo", 64, 64)
	if err != nil {
		t.Fatal(err)
	}
	boom := errors.New("boom")
	w, err := window.New(r.instance, nw, window.Options{
		Layout: extentLayout(t),
		Timeline: []timeline.Entry{
			{Key: "SWAP_EXTENT", Callback: timeline.SwapExtent()},
			{Key: "SWAP_EXTENT", Offset: 4, Callback: timeline.Func(func(*timeline.State, []byte) error { return boom })},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Tick(context.Background(), nil); !errors.Is(err, boom) {
		t.Fatalf("Tick = %v, want boom", err)
	}
	if gw, gh := swapExtent(t, w); gw != 0 || gh != 0 {
		t.Errorf("failed tick committed %dx%d", gw, gh)
	}
	if w.Frame() != 0 {
		t.Errorf("Frame() = %d after failed tick", w.Frame())
	}

	w.Destroy()
	r.teardown()
	r.assertClean(t)
}

// ============================================================================
// Manager
// ============================================================================

func TestManager_Registry(t *testing.T) {
	r := newRig(t)
	m := window.NewManager()

	a, _ := r.open(t, "a", 100, 100)
	b, _ := r.open(t, "b", 200, 100)
	dup, dupNative := r.open(t, "a", 50, 50)

	if err := m.Add(a); err != nil {
		t.Fatal(err)
	}
	if err := m.Add(b); err != nil {
		t.Fatal(err)
	}
	if err := m.Add(dup); errs.KindOf(err) != errs.KindAlreadyExists {
		t.Errorf("duplicate Add = %v, want already-exists", err)
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
	if got, err := m.Get("a"); err != nil || got != a {
		t.Errorf("Get(a) = %v, %v; want the first window", got, err)
	}
	dup.Destroy()
	if !dupNative.Destroyed() {
		t.Error("rejected window should still be destroyable by its caller")
	}

	if err := m.Remove("missing"); errs.KindOf(err) != errs.KindNotFound {
		t.Errorf("Remove(missing) = %v, want not-found", err)
	}
	if _, err := m.Get("missing"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Get(missing) = %v, want not found", err)
	}
	if err := m.Remove("a"); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(m.Titles(), []string{"b"}) {
		t.Errorf("Titles() = %v, want [b]", m.Titles())
	}

	m.Close()
	if m.Len() != 0 {
		t.Errorf("Len() after Close = %d", m.Len())
	}
	r.teardown()
	r.assertClean(t)
}

func TestManager_TickAll(t *testing.T) {
	r := newRig(t)
	pool := workerpool.NewSized(2)
	defer pool.Close()
	m := window.NewManager()
	defer func() {
		m.Close()
		r.teardown()
		r.assertClean(t)
	}()

	sizes := map[string][2]uint32{"left": {300, 200}, "right": {640, 360}, "third": {16, 9}}
	for _, title := range []string{"left", "right", "third"} {
		s := sizes[title]
		w, _ := r.open(t, title, int(s[0]), int(s[1]))
		if err := m.Add(w); err != nil {
			t.Fatal(err)
		}
		if err := w.InitializeSwap(r.device); err != nil {
			t.Fatal(err)
		}
	}

	for range 3 {
		if err := m.TickAll(context.Background(), pool); err != nil {
			t.Fatalf("TickAll: %v", err)
		}
	}
	for title, s := range sizes {
		w, err := m.Get(title)
		if err != nil {
			t.Fatal(err)
		}
		if gw, gh := swapExtent(t, w); gw != s[0] || gh != s[1] {
			t.Errorf("%s: SWAP_EXTENT = %dx%d, want %dx%d", title, gw, gh, s[0], s[1])
		}
		if w.Frame() != 3 {
			t.Errorf("%s: Frame() = %d, want 3", title, w.Frame())
		}
	}
}
