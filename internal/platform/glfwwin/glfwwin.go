// Package glfwwin provides GLFW-backed windows for window.Window.
//
// GLFW must be driven from the main OS thread: call Init, Poll and every
// Window method from the goroutine that locked it.
package glfwwin

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/vulkan-go/glfw/v3.3/glfw"
	"github.com/vulkan-go/vulkan"

	"github.com/hellhand/kube/internal/logging"
	"github.com/hellhand/kube/internal/native"
)

// SurfaceDriver resolves instance handles and adopts surfaces created by
// GLFW. vkdriver.Driver implements it.
type SurfaceDriver interface {
	Instance(h native.Handle) (vulkan.Instance, error)
	AdoptSurface(ptr uintptr) native.Handle
}

// Init initialises GLFW. Pair it with Terminate.
func Init() error {
	if err := glfw.Init(); err != nil {
		return errors.Wrap(err, "init glfw")
	}
	return nil
}

func Terminate() { glfw.Terminate() }

// Poll processes pending window events and fires their callbacks.
func Poll() { glfw.PollEvents() }

type Window struct {
	win      *glfw.Window
	title    string
	driver   SurfaceDriver
	onResize func(width, height int)
	log      *logrus.Entry
}

// New opens a window without a client API so Vulkan can present to it.
// Escape requests close.
func New(title string, width, height int) (*Window, error) {
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "create window %q", title)
	}
	w := &Window{
		win:   win,
		title: title,
		log:   logging.WithComponent("glfw").WithField("window", title),
	}
	win.SetKeyCallback(func(gw *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			gw.SetShouldClose(true)
		}
	})
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.log.WithFields(logrus.Fields{"width": width, "height": height}).Debug("framebuffer resized")
		if w.onResize != nil {
			w.onResize(width, height)
		}
	})
	return w, nil
}

// Bind sets the driver CreateSurface goes through. It must be called
// before the window is handed to window.New.
func (w *Window) Bind(driver SurfaceDriver) { w.driver = driver }

// RequiredExtensions lists the instance extensions GLFW needs to present
// to this window.
func (w *Window) RequiredExtensions() []string {
	return w.win.GetRequiredInstanceExtensions()
}

// WaitVisible blocks until the framebuffer has a non-zero size or the
// window is asked to close.
func (w *Window) WaitVisible() {
	for !w.win.ShouldClose() {
		if width, height := w.win.GetFramebufferSize(); width > 0 && height > 0 {
			return
		}
		glfw.WaitEventsTimeout((10 * time.Millisecond).Seconds())
	}
}

func (w *Window) CreateSurface(instance native.Handle) (native.Handle, error) {
	if w.driver == nil {
		return native.NullHandle, errors.New("window is not bound to a driver")
	}
	inst, err := w.driver.Instance(instance)
	if err != nil {
		return native.NullHandle, err
	}
	ptr, err := w.win.CreateWindowSurface(inst, nil)
	if err != nil {
		return native.NullHandle, errors.Wrap(err, "create window surface")
	}
	return w.driver.AdoptSurface(ptr), nil
}

func (w *Window) Title() string { return w.title }

func (w *Window) FramebufferSize() (width, height int) { return w.win.GetFramebufferSize() }

func (w *Window) SetResizeCallback(fn func(width, height int)) { w.onResize = fn }

func (w *Window) ShouldClose() bool { return w.win.ShouldClose() }

func (w *Window) Destroy() {
	if w.win != nil {
		w.win.Destroy()
		w.win = nil
	}
}
