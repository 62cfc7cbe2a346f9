package gpu

import (
	"github.com/cockroachdb/errors"

	"github.com/hellhand/kube/internal/errs"
	"github.com/hellhand/kube/internal/native"
)

// Owner is any wrapper that can keep a dependent alive. Textures and
// swapchains are the owners of the images views are taken of.
type Owner interface {
	lifetimeOf() *lifetime
}

type ImageViewArgs struct {
	Device *Device
	// Owner holds Image; the view keeps it alive.
	Owner      Owner
	Image      native.Handle
	Format     native.Format
	Aspect     native.ImageAspect
	LayerCount uint32
}

type ImageView struct {
	object
	device Strong[*Device]
	owner  Strong[Owner]
}

func (v *ImageView) create(args ImageViewArgs) error {
	dev, err := Retain(args.Device)
	if err != nil {
		return errors.Wrap(err, "create image view")
	}
	v.device = dev
	v.init(args.Device.driver, v.destroy)
	if args.Owner != nil {
		if v.owner, err = Retain(args.Owner); err != nil {
			v.Destroy()
			return errors.Wrap(err, "create image view")
		}
	}

	aspect := args.Aspect
	if aspect == 0 {
		aspect = native.ImageAspectColor
	}
	h, res := v.driver.CreateImageView(args.Device.handle, native.ImageViewInfo{
		Image:      args.Image,
		Format:     args.Format,
		Aspect:     aspect,
		LayerCount: max(args.LayerCount, 1),
	})
	if res != native.Success {
		v.Destroy()
		return errs.Native("create image view", res)
	}
	v.handle = h
	return nil
}

func (v *ImageView) destroy() {
	if v.handle.Valid() {
		v.driver.DestroyImageView(v.device.Get().Handle(), v.handle)
		v.handle = native.NullHandle
	}
	v.owner.Release()
	v.device.Release()
}

type SamplerArgs struct {
	Device      *Device
	Filter      native.Filter
	AddressMode native.AddressMode
}

type Sampler struct {
	object
	device Strong[*Device]
}

func (s *Sampler) create(args SamplerArgs) error {
	dev, err := Retain(args.Device)
	if err != nil {
		return errors.Wrap(err, "create sampler")
	}
	s.device = dev
	s.init(args.Device.driver, s.destroy)
	h, res := s.driver.CreateSampler(args.Device.handle, native.SamplerInfo{
		Filter:      args.Filter,
		AddressMode: args.AddressMode,
	})
	if res != native.Success {
		s.Destroy()
		return errs.Native("create texture sampler", res)
	}
	s.handle = h
	return nil
}

func (s *Sampler) destroy() {
	if s.handle.Valid() {
		s.driver.DestroySampler(s.device.Get().Handle(), s.handle)
		s.handle = native.NullHandle
	}
	s.device.Release()
}
