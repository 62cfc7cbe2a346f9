// Package window ties a platform window to its surface, swap chain and
// per-frame timeline.
package window

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"github.com/hellhand/kube/internal/errs"
	"github.com/hellhand/kube/internal/gpu"
	"github.com/hellhand/kube/internal/logging"
	"github.com/hellhand/kube/internal/native"
	"github.com/hellhand/kube/internal/resource"
	"github.com/hellhand/kube/internal/timeline"
	"github.com/hellhand/kube/internal/workerpool"
)

// Native is the platform window a Window is built on.
type Native interface {
	native.SurfaceSource
	Title() string
	FramebufferSize() (width, height int)
	SetResizeCallback(fn func(width, height int))
	ShouldClose() bool
	Destroy()
}

type Options struct {
	// Layout describes the window's resource table. Nil means an empty
	// table.
	Layout *resource.Layout
	// Timeline entries run in order on every tick.
	Timeline []timeline.Entry
	// PresentModes are tried in order before mailbox and FIFO.
	PresentModes []native.PresentMode
	// FenceTimeout bounds the wait for in-flight frames before a rebuild.
	FenceTimeout time.Duration
}

// Window owns its native window, surface, optional swap chain and resource
// table.
type Window struct {
	native  Native
	title   string
	surface *gpu.Surface
	opts    Options
	log     *logrus.Entry

	mu     sync.Mutex
	device gpu.Strong[*gpu.Device]
	swap   *gpu.Swapchain
	pass   *gpu.RenderPass

	table    *resource.Table
	timeline *timeline.Timeline
	frame    atomic.Uint64
	image    atomic.Uint32
	resized  atomic.Bool
}

// New derives a surface for nw from instance. The window takes ownership of
// nw and destroys it if construction fails.
func New(instance *gpu.Instance, nw Native, opts Options) (*Window, error) {
	w := &Window{native: nw, title: nw.Title(), opts: opts}
	w.log = logging.WithComponent("window").WithField("window", w.title)

	surface, err := gpu.Create[gpu.Surface](gpu.SurfaceArgs{Instance: instance, Source: nw})
	if err != nil {
		nw.Destroy()
		return nil, errors.Wrapf(err, "window %q", w.title)
	}
	w.surface = surface

	layout := opts.Layout
	if layout == nil {
		layout, _ = resource.NewLayout()
	}
	w.table = resource.NewTable(layout)
	if w.timeline, err = timeline.New(w.table, opts.Timeline...); err != nil {
		w.Destroy()
		return nil, errors.Wrapf(err, "window %q", w.title)
	}
	if w.opts.FenceTimeout <= 0 {
		w.opts.FenceTimeout = time.Second
	}

	nw.SetResizeCallback(func(width, height int) {
		w.resized.Store(true)
		w.log.WithFields(logrus.Fields{"width": width, "height": height}).Debug("framebuffer resized")
	})
	return w, nil
}

func (w *Window) Title() string { return w.title }

func (w *Window) Native() Native { return w.native }

func (w *Window) Surface() *gpu.Surface { return w.surface }

func (w *Window) Table() *resource.Table { return w.table }

func (w *Window) Timeline() *timeline.Timeline { return w.timeline }

// Swapchain is nil until InitializeSwap succeeds.
func (w *Window) Swapchain() *gpu.Swapchain {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.swap
}

// ShouldClose also reports true once the window is destroyed.
func (w *Window) ShouldClose() bool { return w.native == nil || w.native.ShouldClose() }

// ResizePending reports whether the framebuffer changed since the swap
// chain was last built.
func (w *Window) ResizePending() bool { return w.resized.Load() }

// Minimized reports a zero-sized framebuffer; no swap chain can be built.
func (w *Window) Minimized() bool { return w.framebuffer().Empty() }

func (w *Window) framebuffer() native.Extent {
	if w.native == nil {
		return native.Extent{}
	}
	width, height := w.native.FramebufferSize()
	return native.Extent{Width: uint32(max(width, 0)), Height: uint32(max(height, 0))}
}

// InitializeSwap creates the window's first swap chain on device. If one
// already exists it does nothing and reports success; use RecreateSwap to
// rebuild after a resize.
func (w *Window) InitializeSwap(device *gpu.Device) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.swap != nil {
		w.log.WithError(errs.ErrSwapchainInitialized).Debug("swap chain kept")
		return nil
	}
	dev, err := gpu.Retain(device)
	if err != nil {
		return errors.Wrapf(err, "window %q: initialize swap", w.title)
	}
	swap, err := gpu.Create[gpu.Swapchain](gpu.SwapchainArgs{
		Device:       device,
		Surface:      w.surface,
		Framebuffer:  w.framebuffer(),
		PresentModes: w.opts.PresentModes,
	})
	if err != nil {
		dev.Release()
		return errors.Wrapf(err, "window %q: initialize swap", w.title)
	}
	w.device = dev
	w.swap = swap
	w.resized.Store(false)
	w.log.WithFields(logrus.Fields{
		"width":  swap.Extent().Width,
		"height": swap.Extent().Height,
	}).Info("swap chain initialized")
	return nil
}

// AttachRenderPass creates framebuffers for pass on the current swap chain
// and re-creates them for it after every rebuild. The window does not own
// pass.
func (w *Window) AttachRenderPass(pass *gpu.RenderPass) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.swap == nil {
		return errors.Wrapf(errs.ErrNotFound, "window %q: no swap chain", w.title)
	}
	if err := w.swap.AttachFramebuffers(pass); err != nil {
		return errors.Wrapf(err, "window %q", w.title)
	}
	w.pass = pass
	return nil
}

// RecreateSwap rebuilds the swap chain at the current framebuffer size.
// It first waits for inFlight, the fences of every frame that may still
// use the old images. A minimised window keeps its old swap chain and
// stays pending.
func (w *Window) RecreateSwap(inFlight ...*gpu.Fence) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.swap == nil {
		return errors.Wrapf(errs.ErrNotFound, "window %q: no swap chain", w.title)
	}
	fb := w.framebuffer()
	if fb.Empty() {
		w.resized.Store(true)
		return nil
	}
	if err := gpu.WaitAll(w.opts.FenceTimeout, inFlight...); err != nil {
		return errors.Wrapf(err, "window %q: wait for in-flight frames", w.title)
	}

	old := w.swap
	swap, err := gpu.Create[gpu.Swapchain](gpu.SwapchainArgs{
		Device:       w.device.Get(),
		Surface:      w.surface,
		Framebuffer:  fb,
		PresentModes: w.opts.PresentModes,
		Old:          old,
	})
	if err != nil {
		w.resized.Store(true)
		return errors.Wrapf(err, "window %q: recreate swap", w.title)
	}
	// The old chain stays published until the new one is complete, and
	// the rebuild stays pending on failure.
	if w.pass != nil {
		if err := swap.AttachFramebuffers(w.pass); err != nil {
			swap.Destroy()
			w.resized.Store(true)
			return errors.Wrapf(err, "window %q", w.title)
		}
	}
	old.Destroy()
	w.swap = swap
	w.resized.Store(false)
	w.log.WithFields(logrus.Fields{
		"width":  swap.Extent().Width,
		"height": swap.Extent().Height,
	}).Info("swap chain recreated")
	return nil
}

// SetImageIndex records the swap chain image the next tick renders to.
func (w *Window) SetImageIndex(i uint32) { w.image.Store(i) }

// Frame is the number of successful ticks.
func (w *Window) Frame() uint64 { return w.frame.Load() }

func (w *Window) state() *timeline.State {
	st := &timeline.State{
		Window:     w.title,
		Swapchain:  w.Swapchain(),
		Extent:     w.framebuffer(),
		ImageIndex: w.image.Load(),
		Frame:      w.frame.Load(),
		Time:       time.Now(),
	}
	if st.Swapchain != nil {
		st.Extent = st.Swapchain.Extent()
	}
	return st
}

// Tick runs the window's timeline once, on pool when it is not nil.
func (w *Window) Tick(ctx context.Context, pool *workerpool.Pool) error {
	st := w.state()
	var err error
	if pool != nil {
		err = w.timeline.Schedule(ctx, pool, st)
	} else {
		err = w.timeline.Tick(st)
	}
	if err != nil {
		return errors.Wrapf(err, "window %q: tick", w.title)
	}
	w.frame.Add(1)
	return nil
}

// Destroy releases the swap chain, surface and native window.
func (w *Window) Destroy() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.swap != nil {
		w.swap.Destroy()
		w.swap = nil
	}
	w.pass = nil
	w.device.Release()
	if w.surface != nil {
		w.surface.Destroy()
		w.surface = nil
	}
	if w.native != nil {
		w.native.SetResizeCallback(nil)
		w.native.Destroy()
		w.native = nil
	}
}
