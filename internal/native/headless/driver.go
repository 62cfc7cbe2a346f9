// Package headless is a GPU-free native.Driver.
//
// It keeps every native object in memory, completes submitted work
// immediately and records ownership mistakes (destroying an object after
// its parent, destroying twice, destroying a parent with live children) as
// violations instead of crashing. Failures can be injected per operation.
package headless

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hellhand/kube/internal/native"
)

type kind uint8

const (
	kindInstance kind = iota + 1
	kindPhysical
	kindSurface
	kindDevice
	kindQueue
	kindBuffer
	kindMemory
	kindImage
	kindSwapImage
	kindImageView
	kindSampler
	kindShader
	kindPipelineLayout
	kindRenderPass
	kindFramebuffer
	kindCommandPool
	kindCommandBuffer
	kindFence
	kindSemaphore
	kindTimeline
	kindSwapchain
)

var kindNames = [...]string{
	kindInstance:       "instance",
	kindPhysical:       "physical device",
	kindSurface:        "surface",
	kindDevice:         "device",
	kindQueue:          "queue",
	kindBuffer:         "buffer",
	kindMemory:         "memory",
	kindImage:          "image",
	kindSwapImage:      "swapchain image",
	kindImageView:      "image view",
	kindSampler:        "sampler",
	kindShader:         "shader module",
	kindPipelineLayout: "pipeline layout",
	kindRenderPass:     "render pass",
	kindFramebuffer:    "framebuffer",
	kindCommandPool:    "command pool",
	kindCommandBuffer:  "command buffer",
	kindFence:          "fence",
	kindSemaphore:      "semaphore",
	kindTimeline:       "timeline semaphore",
	kindSwapchain:      "swapchain",
}

func (k kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// implicit kinds are released together with their parent and never
// destroyed on their own.
func (k kind) implicit() bool {
	switch k {
	case kindPhysical, kindQueue, kindSwapImage, kindCommandBuffer:
		return true
	}
	return false
}

type object struct {
	kind   kind
	parent native.Handle
	alive  bool

	// physical
	spec int
	// device
	queues map[[2]uint32]native.Handle
	// memory and image texels
	props native.MemoryProperty
	data  []byte
	// fence, binary and timeline semaphore
	signaled bool
	value    uint64
	// image, swapchain, framebuffer
	extent native.Extent
	// swapchain
	surface native.Handle
	images  []native.Handle
	next    uint32
	// image view
	source native.Handle
	// command buffer
	clear *native.ClearPass
	// surface
	extentFn func() native.Extent
}

// DeviceSpec describes a simulated physical device.
type DeviceSpec struct {
	Name         string
	Type         native.DeviceType
	Families     []native.QueueFamily
	Extensions   []string
	Formats      []native.SurfaceFormat
	PresentModes []native.PresentMode
}

// DefaultDevice is a discrete GPU with one graphics+present queue family.
func DefaultDevice() DeviceSpec {
	return DeviceSpec{
		Name:         "Headless GPU",
		Type:         native.DeviceTypeDiscrete,
		Families:     []native.QueueFamily{{Graphics: true, Present: true, Count: 1}},
		Extensions:   []string{native.SwapchainExtension},
		Formats:      []native.SurfaceFormat{{Format: native.FormatB8G8R8A8Srgb, ColorSpace: native.ColorSpaceSrgbNonlinear}},
		PresentModes: []native.PresentMode{native.PresentModeFifo, native.PresentModeMailbox},
	}
}

type Option func(*Driver)

// WithDevices replaces the simulated physical devices.
func WithDevices(specs ...DeviceSpec) Option {
	return func(d *Driver) { d.devices = specs }
}

// Driver is safe for concurrent use.
type Driver struct {
	mu          sync.Mutex
	next        native.Handle
	objects     map[native.Handle]*object
	devices     []DeviceSpec
	failures    map[string][]native.Result
	violations  []string
	changed     chan struct{}
	submissions int
	presents    int
}

var _ native.Driver = (*Driver)(nil)

func New(opts ...Option) *Driver {
	d := &Driver{
		objects:  make(map[native.Handle]*object),
		devices:  []DeviceSpec{DefaultDevice()},
		failures: make(map[string][]native.Result),
		changed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FailNext makes the next call to op (a Driver method name such as
// "CreateBuffer") return res. Calls queue up in order.
func (d *Driver) FailNext(op string, res native.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[op] = append(d.failures[op], res)
}

// Violations returns the ownership-ordering mistakes seen so far.
func (d *Driver) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.violations...)
}

// Live returns the number of live objects that need an explicit destroy.
func (d *Driver) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, o := range d.objects {
		if o.alive && !o.kind.implicit() {
			n++
		}
	}
	return n
}

// LiveKinds lists the kinds of live objects, sorted, for test diagnostics.
func (d *Driver) LiveKinds() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, o := range d.objects {
		if o.alive && !o.kind.implicit() {
			out = append(out, o.kind.String())
		}
	}
	sort.Strings(out)
	return out
}

// Alive reports whether h names a live object.
func (d *Driver) Alive(h native.Handle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.objects[h]
	return ok && o.alive
}

// Submissions returns how many QueueSubmit calls succeeded.
func (d *Driver) Submissions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submissions
}

// Presents returns how many QueuePresent calls succeeded.
func (d *Driver) Presents() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.presents
}

// Memory returns a copy of the bytes held by a memory allocation.
func (d *Driver) Memory(h native.Handle) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if o, ok := d.objects[h]; ok {
		return append([]byte(nil), o.data...)
	}
	return nil
}

// LastClear returns the clear pass recorded into cmd.
func (d *Driver) LastClear(cmd native.Handle) (native.ClearPass, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if o, ok := d.objects[cmd]; ok && o.clear != nil {
		return *o.clear, true
	}
	return native.ClearPass{}, false
}

// SignalFence completes the work guarded by fence, as the GPU would.
func (d *Driver) SignalFence(fence native.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if o, ok := d.objects[fence]; ok && o.kind == kindFence {
		o.signaled = true
		d.broadcast()
	}
}

// fail pops an injected failure for op. Callers hold d.mu.
func (d *Driver) fail(op string) (native.Result, bool) {
	q := d.failures[op]
	if len(q) == 0 {
		return native.Success, false
	}
	d.failures[op] = q[1:]
	return q[0], true
}

func (d *Driver) violate(format string, args ...any) {
	d.violations = append(d.violations, fmt.Sprintf(format, args...))
}

// broadcast wakes every waiter. Callers hold d.mu.
func (d *Driver) broadcast() {
	close(d.changed)
	d.changed = make(chan struct{})
}

// alloc registers a new object. Callers hold d.mu.
func (d *Driver) alloc(k kind, parent native.Handle) (native.Handle, *object) {
	if parent.Valid() {
		if p, ok := d.objects[parent]; !ok || !p.alive {
			d.violate("create %s with dead parent %d", k, parent)
		}
	}
	d.next++
	o := &object{kind: k, parent: parent, alive: true}
	d.objects[d.next] = o
	return d.next, o
}

// get returns a live object of kind k. Callers hold d.mu.
func (d *Driver) get(h native.Handle, k kind) (*object, bool) {
	o, ok := d.objects[h]
	if !ok || !o.alive || o.kind != k {
		return nil, false
	}
	return o, true
}

// release destroys h after checking ownership order. Callers hold d.mu.
func (d *Driver) release(k kind, parent, h native.Handle) {
	if !h.Valid() {
		return
	}
	o, ok := d.objects[h]
	switch {
	case !ok:
		d.violate("destroy unknown %s %d", k, h)
		return
	case o.kind != k:
		d.violate("destroy %s %d as %s", o.kind, h, k)
		return
	case !o.alive:
		d.violate("double destroy of %s %d", k, h)
		return
	case o.parent != parent:
		d.violate("destroy %s %d with parent %d, created from %d", k, h, parent, o.parent)
	}
	if p, ok := d.objects[o.parent]; ok && !p.alive {
		d.violate("destroy %s %d after its parent %s %d", k, h, p.kind, o.parent)
	}
	if n := d.liveChildren(h); n > 0 {
		d.violate("destroy %s %d with %d live children", k, h, n)
	}
	if n := d.liveViews(h); n > 0 {
		d.violate("destroy %s %d with %d live image views", k, h, n)
	}
	o.alive = false
	d.releaseImplicit(h)
}

func (d *Driver) liveChildren(h native.Handle) int {
	n := 0
	for ch, o := range d.objects {
		if o.parent != h || !o.alive {
			continue
		}
		if o.kind.implicit() {
			n += d.liveChildren(ch)
			continue
		}
		n++
	}
	return n
}

// liveViews counts views of h's images, or of h itself.
func (d *Driver) liveViews(h native.Handle) int {
	n := 0
	for _, o := range d.objects {
		if o.kind != kindImageView || !o.alive {
			continue
		}
		if o.source == h {
			n++
		} else if img, ok := d.objects[o.source]; ok && img.kind == kindSwapImage && img.parent == h {
			n++
		}
	}
	return n
}

func (d *Driver) releaseImplicit(h native.Handle) {
	for ch, o := range d.objects {
		if o.parent == h && o.alive && o.kind.implicit() {
			o.alive = false
			d.releaseImplicit(ch)
		}
	}
}

// create is the shared path for simple objects: injected failure, parent
// liveness, allocation.
func (d *Driver) create(op string, k kind, parent native.Handle, parentKind kind) (native.Handle, *object, native.Result) {
	if res, ok := d.fail(op); ok {
		return native.NullHandle, nil, res
	}
	if _, ok := d.get(parent, parentKind); !ok {
		return native.NullHandle, nil, native.ErrorDeviceLost
	}
	h, o := d.alloc(k, parent)
	return h, o, native.Success
}

// wait blocks until ready returns true or timeout elapses.
func (d *Driver) wait(timeout time.Duration, ready func() (bool, native.Result)) native.Result {
	deadline := time.Now().Add(timeout)
	for {
		d.mu.Lock()
		done, res := ready()
		changed := d.changed
		d.mu.Unlock()
		if res != native.Success {
			return res
		}
		if done {
			return native.Success
		}
		remaining := time.Until(deadline)
		if timeout <= 0 || remaining <= 0 {
			return native.Timeout
		}
		timer := time.NewTimer(remaining)
		select {
		case <-changed:
			timer.Stop()
		case <-timer.C:
		}
	}
}
