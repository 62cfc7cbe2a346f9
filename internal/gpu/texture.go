package gpu

import (
	"github.com/cockroachdb/errors"

	"github.com/hellhand/kube/internal/errs"
	"github.com/hellhand/kube/internal/native"
)

// TextureState tracks two-phase texture construction.
type TextureState int

const (
	TextureUnallocated TextureState = iota
	TextureAllocated
	TextureReady
)

func (s TextureState) String() string {
	switch s {
	case TextureAllocated:
		return "allocated"
	case TextureReady:
		return "ready"
	default:
		return "unallocated"
	}
}

type TextureArgs struct {
	Device      *Device
	Extent      native.Extent
	Format      native.Format
	Tiling      native.ImageTiling
	Usage       native.ImageUsage
	ArrayLayers uint32
	Filter      native.Filter
	AddressMode native.AddressMode
}

// Texture is an image with its memory, view and sampler. Create allocates
// the image; Initialize adds the view and sampler.
type Texture struct {
	object
	device  Strong[*Device]
	args    TextureArgs
	memory  native.Handle
	view    *ImageView
	sampler *Sampler
	state   TextureState
}

func (t *Texture) create(args TextureArgs) error {
	dev, err := Retain(args.Device)
	if err != nil {
		return errors.Wrap(err, "create texture")
	}
	t.device = dev
	t.init(args.Device.driver, t.destroy)

	if args.Usage == 0 {
		args.Usage = native.ImageUsageTransferDst | native.ImageUsageSampled
	}
	args.ArrayLayers = max(args.ArrayLayers, 1)
	h, res := t.driver.CreateImage(args.Device.handle, native.ImageInfo{
		Extent:      args.Extent,
		Format:      args.Format,
		Tiling:      args.Tiling,
		Usage:       args.Usage,
		ArrayLayers: args.ArrayLayers,
		MipLevels:   1,
	})
	if res != native.Success {
		t.Destroy()
		return errs.Native("create image", res)
	}
	t.handle = h
	mem, res := t.driver.AllocateImageMemory(args.Device.handle, h, native.MemoryDeviceLocal)
	if res != native.Success {
		t.Destroy()
		return errs.Native("allocate image memory", res)
	}
	t.memory = mem
	t.args = args
	t.state = TextureAllocated
	return nil
}

// Destroy drops the texture's view and sampler before its own reference,
// so the image outlives every view still held elsewhere.
func (t *Texture) Destroy() {
	if !t.dropped.CompareAndSwap(false, true) {
		return
	}
	t.releaseViews()
	t.life.release()
}

func (t *Texture) releaseViews() {
	if t.view != nil {
		t.view.Destroy()
		t.view = nil
	}
	if t.sampler != nil {
		t.sampler.Destroy()
		t.sampler = nil
	}
}

func (t *Texture) destroy() {
	dev := t.device.Get().Handle()
	if t.handle.Valid() {
		t.driver.DestroyImage(dev, t.handle)
		t.handle = native.NullHandle
	}
	if t.memory.Valid() {
		t.driver.FreeMemory(dev, t.memory)
		t.memory = native.NullHandle
	}
	t.state = TextureUnallocated
	t.device.Release()
}

func (t *Texture) State() TextureState { return t.state }

func (t *Texture) Extent() native.Extent { return t.args.Extent }

func (t *Texture) Format() native.Format { return t.args.Format }

// View is nil until the texture is Ready.
func (t *Texture) View() *ImageView { return t.view }

func (t *Texture) Sampler() *Sampler { return t.sampler }

// Initialize creates the view and sampler. It is a no-op on a Ready
// texture.
func (t *Texture) Initialize() error {
	switch t.state {
	case TextureReady:
		return nil
	case TextureUnallocated:
		return errors.New("initialize texture: image not allocated")
	}
	dev := t.device.Get()
	view, err := Create[ImageView](ImageViewArgs{
		Device:     dev,
		Owner:      t,
		Image:      t.handle,
		Format:     t.args.Format,
		LayerCount: t.args.ArrayLayers,
	})
	if err != nil {
		return errors.Wrap(err, "initialize texture")
	}
	sampler, err := Create[Sampler](SamplerArgs{
		Device:      dev,
		Filter:      t.args.Filter,
		AddressMode: t.args.AddressMode,
	})
	if err != nil {
		view.Destroy()
		return errors.Wrap(err, "initialize texture")
	}
	t.view, t.sampler = view, sampler
	t.state = TextureReady
	return nil
}

// Upload copies RGBA8 texels into the image through a staging buffer
// recorded on pool and submitted to queue.
func (t *Texture) Upload(pool *CommandPool, queue *Queue, pixels []byte) error {
	if t.state == TextureUnallocated {
		return errors.New("upload texture: image not allocated")
	}
	want := int(t.args.Extent.Width) * int(t.args.Extent.Height) * 4
	if len(pixels) != want {
		return errors.Newf("upload texture: got %d bytes, want %d", len(pixels), want)
	}
	if res := queue.upload(pool.Handle(), t.handle, t.args.Extent, pixels); res != native.Success {
		return errs.Native("upload texture", res)
	}
	return nil
}

// Clone allocates a new texture with the same descriptor. The clone is
// initialised when t is Ready; texel contents are not copied.
func (t *Texture) Clone() (*Texture, error) {
	if t.state == TextureUnallocated {
		return nil, errors.New("clone texture: source not allocated")
	}
	args := t.args
	args.Device = t.device.Get()
	c, err := Create[Texture](args)
	if err != nil {
		return nil, errors.Wrap(err, "clone texture")
	}
	if t.state == TextureReady {
		if err := c.Initialize(); err != nil {
			c.Destroy()
			return nil, errors.Wrap(err, "clone texture")
		}
	}
	return c, nil
}
