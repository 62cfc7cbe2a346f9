package gpu

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/hellhand/kube/internal/errs"
	"github.com/hellhand/kube/internal/native"
)

type DeviceArgs struct {
	Physical *PhysicalDevice
	Families QueueFamilies
	// Extensions default to the swapchain extension.
	Extensions []string
}

// Device is the logical device every resource wrapper hangs off.
type Device struct {
	object
	physical Strong[*PhysicalDevice]
	families QueueFamilies

	mu     sync.Mutex
	queues map[[2]uint32]*Queue
}

func (d *Device) create(args DeviceArgs) error {
	phys, err := Retain(args.Physical)
	if err != nil {
		return errors.Wrap(err, "create device")
	}
	d.physical = phys
	d.init(args.Physical.driver, d.destroy)

	if !args.Families.Complete() {
		d.Destroy()
		return errors.Wrap(errs.ErrNotFound, "create device: incomplete queue families")
	}
	exts := args.Extensions
	if exts == nil {
		exts = []string{native.SwapchainExtension}
	}
	info := native.DeviceInfo{
		QueueFamilies: args.Families.Unique(),
		Extensions:    exts,
	}
	if args.Physical.Instance().Validation() {
		info.Layers = []string{validationLayer}
	}
	h, res := d.driver.CreateDevice(args.Physical.handle, info)
	if res != native.Success {
		d.Destroy()
		return errs.Native("create logical device", res)
	}
	d.handle = h
	d.families = args.Families
	d.queues = make(map[[2]uint32]*Queue)
	return nil
}

func (d *Device) destroy() {
	if d.handle.Valid() {
		d.driver.DestroyDevice(d.handle)
		d.handle = native.NullHandle
	}
	d.physical.Release()
}

func (d *Device) Physical() *PhysicalDevice { return d.physical.Get() }

func (d *Device) Families() QueueFamilies { return d.families }

// Queue returns the borrowed queue (family, index). The same *Queue is
// returned for the same pair so its submission lock is shared.
func (d *Device) Queue(family, index uint32) *Queue {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := [2]uint32{family, index}
	if q, ok := d.queues[key]; ok {
		return q
	}
	q := &Queue{device: d, family: family, handle: d.driver.DeviceQueue(d.handle, family, index)}
	d.queues[key] = q
	return q
}

func (d *Device) GraphicsQueue() *Queue { return d.Queue(d.families.Graphics, 0) }

func (d *Device) PresentQueue() *Queue { return d.Queue(d.families.Present, 0) }

func (d *Device) WaitIdle() error {
	if res := d.driver.DeviceWaitIdle(d.handle); res != native.Success {
		return errs.Native("device wait idle", res)
	}
	return nil
}

// Queue is owned by its Device and never destroyed on its own. Submission
// and presentation are serialised per queue.
type Queue struct {
	device *Device
	family uint32
	handle native.Handle
	mu     sync.Mutex
}

func (q *Queue) Handle() native.Handle { return q.handle }

func (q *Queue) Family() uint32 { return q.family }

func (q *Queue) Submit(info native.SubmitInfo) error {
	q.mu.Lock()
	res := q.device.driver.QueueSubmit(q.handle, info)
	q.mu.Unlock()
	if res != native.Success {
		return errs.Native("queue submit", res)
	}
	return nil
}

// Present queues image for presentation. It reports suboptimal when the
// swapchain still works but no longer matches the surface; an out-of-date
// swapchain is returned as an error carrying native.ErrorOutOfDate.
func (q *Queue) Present(info native.PresentInfo) (suboptimal bool, err error) {
	q.mu.Lock()
	res := q.device.driver.QueuePresent(q.handle, info)
	q.mu.Unlock()
	switch res {
	case native.Success:
		return false, nil
	case native.Suboptimal:
		return true, nil
	default:
		return false, errs.Native("queue present", res)
	}
}

// upload copies pixels into image through the driver's staging path while
// holding the queue lock.
func (q *Queue) upload(pool, image native.Handle, extent native.Extent, pixels []byte) native.Result {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.device.driver.UploadImage(q.device.handle, q.handle, pool, image, extent, pixels)
}
