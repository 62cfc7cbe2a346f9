package gpu

import (
	"math"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"github.com/hellhand/kube/internal/errs"
	"github.com/hellhand/kube/internal/native"
)

type SwapchainArgs struct {
	Device  *Device
	Surface *Surface
	// Framebuffer is the window's framebuffer size, used when the surface
	// lets the swapchain pick its extent.
	Framebuffer native.Extent
	// PresentModes lists preferred modes; mailbox and FIFO are the
	// fallbacks.
	PresentModes []native.PresentMode
	// Old is the swapchain being replaced. The caller still destroys it.
	Old *Swapchain
}

// Swapchain owns the presentable images, one view per image and the
// framebuffers attached to them.
type Swapchain struct {
	object
	device       Strong[*Device]
	surface      Strong[*Surface]
	format       native.SurfaceFormat
	mode         native.PresentMode
	extent       native.Extent
	images       []native.Handle
	views        []*ImageView
	framebuffers []*Framebuffer
}

func (s *Swapchain) create(args SwapchainArgs) error {
	dev, err := Retain(args.Device)
	if err != nil {
		return errors.Wrap(err, "create swapchain")
	}
	s.device = dev
	s.init(args.Device.driver, s.destroy)
	if s.surface, err = Retain(args.Surface); err != nil {
		s.Destroy()
		return errors.Wrap(err, "create swapchain")
	}

	support, err := args.Surface.Support(args.Device.Physical())
	if err != nil {
		s.Destroy()
		return err
	}
	if len(support.Formats) == 0 {
		s.Destroy()
		return errors.Wrap(errs.ErrNotFound, "create swapchain: surface reports no formats")
	}
	s.format = chooseSwapSurfaceFormat(support.Formats)
	s.mode = chooseSwapPresentMode(support.PresentModes, args.PresentModes)
	s.extent = chooseSwapExtent(support.Capabilities, args.Framebuffer)
	if s.extent.Empty() {
		s.Destroy()
		return errors.Newf("create swapchain: empty extent %dx%d", s.extent.Width, s.extent.Height)
	}

	caps := support.Capabilities
	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}
	info := native.SwapchainInfo{
		Surface:       args.Surface.handle,
		MinImageCount: imageCount,
		Format:        s.format,
		Extent:        s.extent,
		PresentMode:   s.mode,
		Transform:     caps.CurrentTransform,
	}
	if fam := args.Device.Families(); fam.Graphics != fam.Present {
		info.QueueFamilies = fam.Unique()
	}
	if args.Old != nil {
		info.Old = args.Old.handle
	}
	h, res := s.driver.CreateSwapchain(args.Device.handle, info)
	if res != native.Success {
		s.Destroy()
		return errs.Native("create swapchain", res)
	}
	s.handle = h

	images, res := s.driver.SwapchainImages(args.Device.handle, h)
	if res != native.Success {
		s.Destroy()
		return errs.Native("get swapchain images", res)
	}
	s.images = images
	for _, img := range images {
		view, err := Create[ImageView](ImageViewArgs{
			Device: args.Device,
			Owner:  s,
			Image:  img,
			Format: s.format.Format,
		})
		if err != nil {
			s.Destroy()
			return errors.Wrap(err, "create swapchain image view")
		}
		s.views = append(s.views, view)
	}
	logger().WithFields(logrus.Fields{
		"width":  s.extent.Width,
		"height": s.extent.Height,
		"images": len(images),
	}).Debug("swapchain created")
	return nil
}

// Destroy drops framebuffers and views before the swapchain's own
// reference.
func (s *Swapchain) Destroy() {
	if !s.dropped.CompareAndSwap(false, true) {
		return
	}
	s.releaseFramebuffers()
	for _, v := range s.views {
		v.Destroy()
	}
	s.views = nil
	s.life.release()
}

func (s *Swapchain) releaseFramebuffers() {
	for _, fb := range s.framebuffers {
		fb.Destroy()
	}
	s.framebuffers = nil
}

func (s *Swapchain) destroy() {
	if s.handle.Valid() {
		s.driver.DestroySwapchain(s.device.Get().Handle(), s.handle)
		s.handle = native.NullHandle
	}
	s.images = nil
	s.surface.Release()
	s.device.Release()
}

func (s *Swapchain) Format() native.SurfaceFormat { return s.format }

func (s *Swapchain) PresentMode() native.PresentMode { return s.mode }

func (s *Swapchain) Extent() native.Extent { return s.extent }

func (s *Swapchain) Len() int { return len(s.images) }

func (s *Swapchain) Views() []*ImageView { return s.views }

func (s *Swapchain) Framebuffers() []*Framebuffer { return s.framebuffers }

// AttachFramebuffers creates one framebuffer per swapchain image for pass,
// replacing any attached earlier.
func (s *Swapchain) AttachFramebuffers(pass *RenderPass) error {
	s.releaseFramebuffers()
	dev := s.device.Get()
	for i, view := range s.views {
		fb, err := Create[Framebuffer](FramebufferArgs{
			Device:      dev,
			RenderPass:  pass,
			Attachments: []*ImageView{view},
			Extent:      s.extent,
		})
		if err != nil {
			s.releaseFramebuffers()
			return errors.Wrapf(err, "create framebuffer %d", i)
		}
		s.framebuffers = append(s.framebuffers, fb)
	}
	return nil
}

// AcquireNextImage returns the index of the next presentable image and
// signals signal once it is available. An out-of-date swapchain is an
// error carrying native.ErrorOutOfDate.
func (s *Swapchain) AcquireNextImage(signal *Semaphore, timeout time.Duration) (index uint32, suboptimal bool, err error) {
	sem := native.NullHandle
	if signal != nil {
		sem = signal.Handle()
	}
	index, res := s.driver.AcquireNextImage(s.device.Get().Handle(), s.handle, sem, timeout)
	switch res {
	case native.Success:
		return index, false, nil
	case native.Suboptimal:
		return index, true, nil
	default:
		return 0, false, errs.Native("acquire next image", res)
	}
}

// Present queues image index on queue once every wait semaphore fires.
func (s *Swapchain) Present(queue *Queue, index uint32, wait ...*Semaphore) (suboptimal bool, err error) {
	info := native.PresentInfo{Swapchain: s.handle, ImageIndex: index}
	for _, w := range wait {
		info.Wait = append(info.Wait, w.Handle())
	}
	return queue.Present(info)
}

func chooseSwapSurfaceFormat(available []native.SurfaceFormat) native.SurfaceFormat {
	for _, f := range available {
		if f.Format == native.FormatB8G8R8A8Srgb && f.ColorSpace == native.ColorSpaceSrgbNonlinear {
			return f
		}
	}
	return available[0]
}

func chooseSwapPresentMode(available, preferred []native.PresentMode) native.PresentMode {
	for _, m := range append(slices.Clone(preferred), native.PresentModeMailbox) {
		if slices.Contains(available, m) {
			return m
		}
	}
	return native.PresentModeFifo
}

func chooseSwapExtent(caps native.SurfaceCapabilities, framebuffer native.Extent) native.Extent {
	if caps.CurrentExtent.Width != math.MaxUint32 {
		return caps.CurrentExtent
	}
	return native.Extent{
		Width:  clamp(framebuffer.Width, caps.MinExtent.Width, caps.MaxExtent.Width),
		Height: clamp(framebuffer.Height, caps.MinExtent.Height, caps.MaxExtent.Height),
	}
}

func clamp(val, lo, hi uint32) uint32 {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}
