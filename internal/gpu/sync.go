package gpu

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/hellhand/kube/internal/errs"
	"github.com/hellhand/kube/internal/native"
)

type FenceArgs struct {
	Device   *Device
	Signaled bool
}

// Fence is a host-waitable completion signal.
type Fence struct {
	object
	device Strong[*Device]
}

func (f *Fence) create(args FenceArgs) error {
	dev, err := Retain(args.Device)
	if err != nil {
		return errors.Wrap(err, "create fence")
	}
	f.device = dev
	f.init(args.Device.driver, f.destroy)
	h, res := f.driver.CreateFence(args.Device.handle, args.Signaled)
	if res != native.Success {
		f.Destroy()
		return errs.Native("create fence", res)
	}
	f.handle = h
	return nil
}

func (f *Fence) destroy() {
	if f.handle.Valid() {
		f.driver.DestroyFence(f.device.Get().Handle(), f.handle)
		f.handle = native.NullHandle
	}
	f.device.Release()
}

// Wait blocks until the fence is signalled or timeout elapses. A timeout
// is reported as an error carrying native.Timeout; see errs.IsTimeout.
// A destroyed fence reports errs.ErrExpired, as do Reset and Signalled.
func (f *Fence) Wait(timeout time.Duration) error {
	if err := f.live("wait for fence"); err != nil {
		return err
	}
	if res := f.driver.WaitFences(f.device.Get().Handle(), []native.Handle{f.handle}, timeout); res != native.Success {
		return errs.Native("wait for fence", res)
	}
	return nil
}

func (f *Fence) Reset() error {
	if err := f.live("reset fence"); err != nil {
		return err
	}
	if res := f.driver.ResetFences(f.device.Get().Handle(), []native.Handle{f.handle}); res != native.Success {
		return errs.Native("reset fence", res)
	}
	return nil
}

// Signalled polls the fence without blocking.
func (f *Fence) Signalled() (bool, error) {
	if err := f.live("fence status"); err != nil {
		return false, err
	}
	switch res := f.driver.FenceStatus(f.device.Get().Handle(), f.handle); res {
	case native.Success:
		return true, nil
	case native.NotReady:
		return false, nil
	default:
		return false, errs.Native("fence status", res)
	}
}

// WaitAll waits for every fence. All fences must share one device.
func WaitAll(timeout time.Duration, fences ...*Fence) error {
	if len(fences) == 0 {
		return nil
	}
	for _, f := range fences {
		if err := f.live("wait for fences"); err != nil {
			return err
		}
	}
	dev := fences[0].device.Get()
	handles := make([]native.Handle, 0, len(fences))
	for _, f := range fences {
		if f.device.Get() != dev {
			return errors.New("wait for fences: fences belong to different devices")
		}
		handles = append(handles, f.handle)
	}
	if res := dev.driver.WaitFences(dev.handle, handles, timeout); res != native.Success {
		return errs.Native("wait for fences", res)
	}
	return nil
}

type SemaphoreArgs struct {
	Device *Device
}

// Semaphore is a binary GPU-to-GPU signal.
type Semaphore struct {
	object
	device Strong[*Device]
}

func (s *Semaphore) create(args SemaphoreArgs) error {
	dev, err := Retain(args.Device)
	if err != nil {
		return errors.Wrap(err, "create semaphore")
	}
	s.device = dev
	s.init(args.Device.driver, s.destroy)
	h, res := s.driver.CreateSemaphore(args.Device.handle)
	if res != native.Success {
		s.Destroy()
		return errs.Native("create semaphore", res)
	}
	s.handle = h
	return nil
}

func (s *Semaphore) destroy() {
	if s.handle.Valid() {
		s.driver.DestroySemaphore(s.device.Get().Handle(), s.handle)
		s.handle = native.NullHandle
	}
	s.device.Release()
}

type TimelineSemaphoreArgs struct {
	Device  *Device
	Initial uint64
}

// TimelineSemaphore carries a monotonically increasing counter.
type TimelineSemaphore struct {
	object
	device Strong[*Device]
}

func (s *TimelineSemaphore) create(args TimelineSemaphoreArgs) error {
	dev, err := Retain(args.Device)
	if err != nil {
		return errors.Wrap(err, "create timeline semaphore")
	}
	s.device = dev
	s.init(args.Device.driver, s.destroy)
	h, res := s.driver.CreateTimelineSemaphore(args.Device.handle, args.Initial)
	if res != native.Success {
		s.Destroy()
		return errs.Native("create timeline semaphore", res)
	}
	s.handle = h
	return nil
}

func (s *TimelineSemaphore) destroy() {
	if s.handle.Valid() {
		s.driver.DestroySemaphore(s.device.Get().Handle(), s.handle)
		s.handle = native.NullHandle
	}
	s.device.Release()
}

func (s *TimelineSemaphore) Value() (uint64, error) {
	v, res := s.driver.SemaphoreValue(s.device.Get().Handle(), s.handle)
	if res != native.Success {
		return 0, errs.Native("semaphore counter value", res)
	}
	return v, nil
}

// Signal advances the counter to v, which must exceed the current value.
func (s *TimelineSemaphore) Signal(v uint64) error {
	cur, err := s.Value()
	if err != nil {
		return err
	}
	if v <= cur {
		return errors.Newf("signal timeline semaphore: value %d does not exceed %d", v, cur)
	}
	if res := s.driver.SignalSemaphore(s.device.Get().Handle(), s.handle, v); res != native.Success {
		return errs.Native("signal semaphore", res)
	}
	return nil
}

// Wait blocks until the counter reaches v.
func (s *TimelineSemaphore) Wait(v uint64, timeout time.Duration) error {
	if res := s.driver.WaitSemaphore(s.device.Get().Handle(), s.handle, v, timeout); res != native.Success {
		return errs.Native("wait semaphore", res)
	}
	return nil
}
