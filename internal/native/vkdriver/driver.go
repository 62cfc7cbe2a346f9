// Package vkdriver implements native.Driver on github.com/vulkan-go/vulkan.
//
// Vulkan objects are kept in a handle table so the rest of the program
// only sees native.Handle values. The loader is resolved through GLFW, so
// glfw.Init must have run before New.
package vkdriver

import (
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/vulkan-go/glfw/v3.3/glfw"
	"github.com/vulkan-go/vulkan"

	"github.com/hellhand/kube/internal/logging"
	"github.com/hellhand/kube/internal/native"
)

type Driver struct {
	mu      sync.RWMutex
	next    atomic.Uint64
	objects map[native.Handle]any
	log     *logrus.Entry
}

var _ native.Driver = (*Driver)(nil)

// New loads the Vulkan entry points through GLFW.
func New() (*Driver, error) {
	if !glfw.VulkanSupported() {
		return nil, errors.New("GLFW Vulkan loader not found")
	}
	vulkan.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	if err := vulkan.Init(); err != nil {
		return nil, errors.Wrap(err, "vulkan init")
	}
	return &Driver{
		objects: make(map[native.Handle]any),
		log:     logging.WithComponent("vkdriver"),
	}, nil
}

func (d *Driver) register(obj any) native.Handle {
	h := native.Handle(d.next.Add(1))
	d.mu.Lock()
	d.objects[h] = obj
	d.mu.Unlock()
	return h
}

func (d *Driver) forget(h native.Handle) {
	d.mu.Lock()
	delete(d.objects, h)
	d.mu.Unlock()
}

func lookup[T any](d *Driver, h native.Handle) (T, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	obj, ok := d.objects[h].(T)
	return obj, ok
}

// take removes h from the table and returns what it held.
func take[T any](d *Driver, h native.Handle) (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	obj, ok := d.objects[h].(T)
	if ok {
		delete(d.objects, h)
	}
	return obj, ok
}

func result(res vulkan.Result) native.Result { return native.Result(res) }

// timeout converts to the nanosecond count Vulkan expects. A negative
// duration waits forever.
func timeout(t time.Duration) uint64 {
	if t < 0 {
		return math.MaxUint64
	}
	return uint64(t.Nanoseconds())
}

// cstrs null-terminates every name for the C side.
func cstrs(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		if !strings.HasSuffix(n, "\x00") {
			n += "\x00"
		}
		out[i] = n
	}
	return out
}

func cstr(s string) string { return cstrs([]string{s})[0] }
