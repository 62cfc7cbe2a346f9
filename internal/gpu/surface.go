package gpu

import (
	"github.com/cockroachdb/errors"

	"github.com/hellhand/kube/internal/errs"
	"github.com/hellhand/kube/internal/native"
)

type SurfaceArgs struct {
	Instance *Instance
	Source   native.SurfaceSource
}

// Surface is the presentation target derived from a window.
type Surface struct {
	object
	instance Strong[*Instance]
}

func (s *Surface) create(args SurfaceArgs) error {
	inst, err := Retain(args.Instance)
	if err != nil {
		return errors.Wrap(err, "create surface")
	}
	s.instance = inst
	s.init(args.Instance.driver, s.destroy)
	if args.Source == nil {
		s.Destroy()
		return errs.Windowing("create window surface", errors.New("no surface source"))
	}
	h, err := args.Source.CreateSurface(args.Instance.handle)
	if err != nil {
		s.Destroy()
		return errs.Windowing("create window surface", err)
	}
	s.handle = h
	return nil
}

func (s *Surface) destroy() {
	if s.handle.Valid() {
		s.driver.DestroySurface(s.instance.Get().Handle(), s.handle)
		s.handle = native.NullHandle
	}
	s.instance.Release()
}

func (s *Surface) Instance() *Instance { return s.instance.Get() }

// Support queries capabilities, formats and present modes of physical for
// this surface.
func (s *Surface) Support(physical *PhysicalDevice) (native.SurfaceSupport, error) {
	support, res := s.driver.SurfaceSupport(physical.Handle(), s.handle)
	if res != native.Success {
		return native.SurfaceSupport{}, errs.Native("query surface support", res)
	}
	return support, nil
}
