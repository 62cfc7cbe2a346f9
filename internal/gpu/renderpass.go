package gpu

import (
	"github.com/cockroachdb/errors"

	"github.com/hellhand/kube/internal/errs"
	"github.com/hellhand/kube/internal/native"
)

type RenderPassArgs struct {
	Device      *Device
	ColorFormat native.Format
	DepthFormat native.Format
}

type RenderPass struct {
	object
	device Strong[*Device]
	format native.Format
}

func (p *RenderPass) create(args RenderPassArgs) error {
	dev, err := Retain(args.Device)
	if err != nil {
		return errors.Wrap(err, "create render pass")
	}
	p.device = dev
	p.init(args.Device.driver, p.destroy)
	h, res := p.driver.CreateRenderPass(args.Device.handle, native.RenderPassInfo{
		ColorFormat: args.ColorFormat,
		DepthFormat: args.DepthFormat,
	})
	if res != native.Success {
		p.Destroy()
		return errs.Native("create render pass", res)
	}
	p.handle = h
	p.format = args.ColorFormat
	return nil
}

func (p *RenderPass) destroy() {
	if p.handle.Valid() {
		p.driver.DestroyRenderPass(p.device.Get().Handle(), p.handle)
		p.handle = native.NullHandle
	}
	p.device.Release()
}

func (p *RenderPass) ColorFormat() native.Format { return p.format }

type FramebufferArgs struct {
	Device      *Device
	RenderPass  *RenderPass
	Attachments []*ImageView
	Extent      native.Extent
}

// Framebuffer keeps its render pass and attachments alive.
type Framebuffer struct {
	object
	device      Strong[*Device]
	pass        Strong[*RenderPass]
	attachments []Strong[*ImageView]
	extent      native.Extent
}

func (f *Framebuffer) create(args FramebufferArgs) error {
	dev, err := Retain(args.Device)
	if err != nil {
		return errors.Wrap(err, "create framebuffer")
	}
	f.device = dev
	f.init(args.Device.driver, f.destroy)
	if f.pass, err = Retain(args.RenderPass); err != nil {
		f.Destroy()
		return errors.Wrap(err, "create framebuffer")
	}
	handles := make([]native.Handle, 0, len(args.Attachments))
	for _, v := range args.Attachments {
		ref, err := Retain(v)
		if err != nil {
			f.Destroy()
			return errors.Wrap(err, "create framebuffer attachment")
		}
		f.attachments = append(f.attachments, ref)
		handles = append(handles, v.Handle())
	}
	h, res := f.driver.CreateFramebuffer(args.Device.handle, native.FramebufferInfo{
		RenderPass:  args.RenderPass.handle,
		Attachments: handles,
		Extent:      args.Extent,
	})
	if res != native.Success {
		f.Destroy()
		return errs.Native("create framebuffer", res)
	}
	f.handle = h
	f.extent = args.Extent
	return nil
}

func (f *Framebuffer) destroy() {
	if f.handle.Valid() {
		f.driver.DestroyFramebuffer(f.device.Get().Handle(), f.handle)
		f.handle = native.NullHandle
	}
	for i := range f.attachments {
		f.attachments[i].Release()
	}
	f.attachments = nil
	f.pass.Release()
	f.device.Release()
}

func (f *Framebuffer) Extent() native.Extent { return f.extent }
