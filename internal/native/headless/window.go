package headless

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/hellhand/kube/internal/native"
)

// Window is an in-memory stand-in for a platform window. Its framebuffer
// size drives the extent reported by surfaces derived from it.
type Window struct {
	driver *Driver

	mu         sync.Mutex
	title      string
	width      int
	height     int
	onResize   func(width, height int)
	closed     bool
	destroyed  bool
	surfaceErr error
}

// NewWindow opens a headless window of the given framebuffer size.
func (d *Driver) NewWindow(title string, width, height int) (*Window, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Newf("invalid dimensions: %dx%d", width, height)
	}
	return &Window{driver: d, title: title, width: width, height: height}, nil
}

func (w *Window) Title() string { return w.title }

func (w *Window) FramebufferSize() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width, w.height
}

func (w *Window) extent() native.Extent {
	width, height := w.FramebufferSize()
	return native.Extent{Width: uint32(width), Height: uint32(height)}
}

// CreateSurface derives a surface for instance. It fails with the error set
// by FailSurface, or with the driver's injected CreateSurface result.
func (w *Window) CreateSurface(instance native.Handle) (native.Handle, error) {
	w.mu.Lock()
	failure := w.surfaceErr
	w.surfaceErr = nil
	w.mu.Unlock()
	if failure != nil {
		return native.NullHandle, failure
	}
	h, res := w.driver.NewSurface(instance, w.extent)
	if res != native.Success {
		return native.NullHandle, errors.Wrap(res, "create window surface")
	}
	return h, nil
}

// FailSurface makes the next CreateSurface return err.
func (w *Window) FailSurface(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.surfaceErr = err
}

func (w *Window) SetResizeCallback(fn func(width, height int)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onResize = fn
}

// Resize changes the framebuffer size and fires the resize callback.
func (w *Window) Resize(width, height int) {
	w.mu.Lock()
	w.width, w.height = width, height
	fn := w.onResize
	w.mu.Unlock()
	if fn != nil {
		fn(width, height)
	}
}

func (w *Window) ShouldClose() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *Window) SetShouldClose(v bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = v
}

func (w *Window) Destroy() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.destroyed = true
	w.onResize = nil
}

// Destroyed reports whether Destroy has been called.
func (w *Window) Destroyed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.destroyed
}
