package gpu

import (
	"slices"

	"github.com/cockroachdb/errors"
	mgl32 "github.com/go-gl/mathgl/mgl32"

	"github.com/hellhand/kube/internal/errs"
	"github.com/hellhand/kube/internal/native"
)

type CommandPoolArgs struct {
	Device *Device
	// Physical is consulted for the queue family; it defaults to the
	// device's adapter. The pool does not keep it alive.
	Physical            *PhysicalDevice
	QueueFamily         uint32
	ResetCommandBuffers bool
}

// CommandPool holds a strong reference to its device and a weak one to the
// adapter it was created for.
type CommandPool struct {
	object
	device   Strong[*Device]
	physical Weak[*PhysicalDevice]
	family   uint32
	buffers  []native.Handle
}

func (p *CommandPool) create(args CommandPoolArgs) error {
	dev, err := Retain(args.Device)
	if err != nil {
		return errors.Wrap(err, "create command pool")
	}
	p.device = dev
	p.init(args.Device.driver, p.destroy)

	physical := args.Physical
	if physical == nil {
		physical = args.Device.Physical()
	}
	p.physical = Downgrade(physical)
	phys, err := p.physical.Lock()
	if err != nil {
		p.Destroy()
		return errors.Wrap(err, "create command pool: physical device")
	}
	families := p.driver.QueueFamilies(phys.Get().Handle(), native.NullHandle)
	phys.Release()
	if int(args.QueueFamily) >= len(families) {
		p.Destroy()
		return errors.Wrapf(errs.ErrNotFound, "create command pool: queue family %d", args.QueueFamily)
	}

	h, res := p.driver.CreateCommandPool(args.Device.handle, native.CommandPoolInfo{
		QueueFamily:         args.QueueFamily,
		ResetCommandBuffers: args.ResetCommandBuffers,
	})
	if res != native.Success {
		p.Destroy()
		return errs.Native("create command pool", res)
	}
	p.handle = h
	p.family = args.QueueFamily
	return nil
}

func (p *CommandPool) destroy() {
	dev := p.device.Get().Handle()
	if p.handle.Valid() {
		if len(p.buffers) > 0 {
			p.driver.FreeCommandBuffers(dev, p.handle, p.buffers)
			p.buffers = nil
		}
		p.driver.DestroyCommandPool(dev, p.handle)
		p.handle = native.NullHandle
	}
	p.device.Release()
}

func (p *CommandPool) Family() uint32 { return p.family }

// Physical returns the adapter the pool was created for, or
// errs.ErrExpired once it has been released.
func (p *CommandPool) Physical() (Strong[*PhysicalDevice], error) { return p.physical.Lock() }

// Allocate returns count primary command buffers owned by the pool.
func (p *CommandPool) Allocate(count uint32) ([]native.Handle, error) {
	bufs, res := p.driver.AllocateCommandBuffers(p.device.Get().Handle(), p.handle, count)
	if res != native.Success {
		return nil, errs.Native("allocate command buffers", res)
	}
	p.buffers = append(p.buffers, bufs...)
	return bufs, nil
}

// Free returns buffers to the pool.
func (p *CommandPool) Free(buffers []native.Handle) {
	if len(buffers) == 0 {
		return
	}
	p.driver.FreeCommandBuffers(p.device.Get().Handle(), p.handle, buffers)
	p.buffers = slices.DeleteFunc(p.buffers, func(h native.Handle) bool {
		return slices.Contains(buffers, h)
	})
}

// RecordClear records a render pass that clears fb to color.
func (p *CommandPool) RecordClear(cmd native.Handle, pass *RenderPass, fb *Framebuffer, color mgl32.Vec4) error {
	res := p.driver.RecordClearPass(cmd, native.ClearPass{
		RenderPass:  pass.Handle(),
		Framebuffer: fb.Handle(),
		Extent:      fb.Extent(),
		Color:       color,
	})
	if res != native.Success {
		return errs.Native("record command buffer", res)
	}
	return nil
}
