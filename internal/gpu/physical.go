package gpu

import (
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/hellhand/kube/internal/errs"
	"github.com/hellhand/kube/internal/native"
)

type PhysicalDeviceArgs struct {
	Instance *Instance
	Handle   native.Handle
}

// PhysicalDevice is an adapter enumerated from an Instance. It has no
// native destroy call; dropping it only releases the instance.
type PhysicalDevice struct {
	object
	instance Strong[*Instance]
	info     native.PhysicalDeviceInfo
}

func (p *PhysicalDevice) create(args PhysicalDeviceArgs) error {
	inst, err := Retain(args.Instance)
	if err != nil {
		return errors.Wrap(err, "physical device")
	}
	p.instance = inst
	p.init(args.Instance.driver, p.instance.Release)
	if !args.Handle.Valid() {
		p.Destroy()
		return errors.Wrap(errs.ErrNotFound, "physical device: null handle")
	}
	p.handle = args.Handle
	p.info = p.driver.PhysicalDeviceInfo(p.handle)
	return nil
}

func (p *PhysicalDevice) Info() native.PhysicalDeviceInfo { return p.info }

func (p *PhysicalDevice) Instance() *Instance { return p.instance.Get() }

// SupportsExtensions reports whether every extension in exts is available.
func (p *PhysicalDevice) SupportsExtensions(exts ...string) bool {
	for _, ext := range exts {
		if !slices.Contains(p.info.Extensions, ext) {
			return false
		}
	}
	return true
}

// QueueFamilies records the queue families a device was selected for.
// Either index may be absent.
type QueueFamilies struct {
	Graphics    uint32
	Present     uint32
	HasGraphics bool
	HasPresent  bool
}

func (q QueueFamilies) Complete() bool { return q.HasGraphics && q.HasPresent }

// Unique returns the distinct family indices, graphics first.
func (q QueueFamilies) Unique() []uint32 {
	var out []uint32
	if q.HasGraphics {
		out = append(out, q.Graphics)
	}
	if q.HasPresent && (!q.HasGraphics || q.Present != q.Graphics) {
		out = append(out, q.Present)
	}
	return out
}

// FindQueueFamilies resolves the graphics and present families of p for
// surface. A nil surface resolves graphics only.
func FindQueueFamilies(p *PhysicalDevice, surface *Surface) QueueFamilies {
	sh := native.NullHandle
	if surface != nil {
		sh = surface.Handle()
	}
	var q QueueFamilies
	for i, fam := range p.driver.QueueFamilies(p.handle, sh) {
		if fam.Graphics && !q.HasGraphics {
			q.Graphics, q.HasGraphics = uint32(i), true
		}
		if fam.Present && !q.HasPresent {
			q.Present, q.HasPresent = uint32(i), true
		}
		if q.Complete() {
			break
		}
	}
	return q
}

func deviceScore(info native.PhysicalDeviceInfo) int {
	switch info.Type {
	case native.DeviceTypeDiscrete:
		return 1000
	case native.DeviceTypeIntegrated:
		return 500
	default:
		return 100
	}
}

// SelectPhysicalDevice picks the highest scoring adapter that can present
// to surface. Adapters that are not chosen are released.
func SelectPhysicalDevice(instance *Instance, surface *Surface) (*PhysicalDevice, QueueFamilies, error) {
	devices, err := instance.PhysicalDevices()
	if err != nil {
		return nil, QueueFamilies{}, err
	}

	var selected *PhysicalDevice
	var selectedQueues QueueFamilies
	bestScore := -1
	for _, dev := range devices {
		q := FindQueueFamilies(dev, surface)
		if !q.Complete() || !dev.SupportsExtensions(native.SwapchainExtension) {
			continue
		}
		support, err := surface.Support(dev)
		if err != nil || len(support.Formats) == 0 || len(support.PresentModes) == 0 {
			continue
		}
		if score := deviceScore(dev.info); score > bestScore {
			bestScore = score
			selected = dev
			selectedQueues = q
		}
	}
	for _, dev := range devices {
		if dev != selected {
			dev.Destroy()
		}
	}
	if selected == nil {
		return nil, QueueFamilies{}, errors.Wrap(errs.ErrNotFound, "no suitable GPU found")
	}
	logger().WithField("device", selected.info.Name).Info("physical device selected")
	return selected, selectedQueues, nil
}
