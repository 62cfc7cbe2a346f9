package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"github.com/hellhand/kube/internal/errs"
	"github.com/hellhand/kube/internal/logging"
	"github.com/hellhand/kube/internal/native"
)

const (
	validationLayer      = "VK_LAYER_KHRONOS_validation"
	debugReportExtension = "VK_EXT_debug_report"
)

func logger() *logrus.Entry { return logging.WithComponent("gpu") }

type InstanceArgs struct {
	Driver  native.Driver
	AppName string
	// Extensions are the instance extensions the windowing system needs.
	Extensions []string
	Validation bool
}

// Instance is the root of every ownership chain.
type Instance struct {
	object
	validation bool
}

func (i *Instance) create(args InstanceArgs) error {
	if args.Driver == nil {
		return errors.New("create instance: no driver")
	}
	i.init(args.Driver, i.destroy)

	info := native.InstanceInfo{
		AppName:    args.AppName,
		Extensions: append([]string(nil), args.Extensions...),
	}
	if args.Validation {
		info.Layers = []string{validationLayer}
		info.Extensions = append(info.Extensions, debugReportExtension)
		info.DebugReport = true
		info.Logf = func(format string, a ...any) {
			logger().WithField("source", "validation").Warnf(format, a...)
		}
	}

	h, res := i.driver.CreateInstance(info)
	if res != native.Success {
		i.Destroy()
		return errs.Native("create instance", res)
	}
	i.handle = h
	i.validation = args.Validation
	logger().WithField("app", args.AppName).Debug("instance created")
	return nil
}

func (i *Instance) destroy() {
	if i.handle.Valid() {
		i.driver.DestroyInstance(i.handle)
		i.handle = native.NullHandle
	}
}

// Validation reports whether validation layers were requested.
func (i *Instance) Validation() bool { return i.validation }

// PhysicalDevices enumerates the adapters visible to i. The caller owns the
// returned wrappers.
func (i *Instance) PhysicalDevices() ([]*PhysicalDevice, error) {
	handles, res := i.driver.EnumeratePhysicalDevices(i.handle)
	if res != native.Success {
		return nil, errs.Native("enumerate physical devices", res)
	}
	if len(handles) == 0 {
		return nil, errors.Wrap(errs.ErrNotFound, "no physical devices")
	}
	out := make([]*PhysicalDevice, 0, len(handles))
	for _, h := range handles {
		pd, err := Create[PhysicalDevice](PhysicalDeviceArgs{Instance: i, Handle: h})
		if err != nil {
			for _, p := range out {
				p.Destroy()
			}
			return nil, err
		}
		out = append(out, pd)
	}
	return out, nil
}
