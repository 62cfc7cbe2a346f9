package gpu

import (
	"github.com/cockroachdb/errors"

	"github.com/hellhand/kube/internal/errs"
	"github.com/hellhand/kube/internal/native"
)

type ShaderModuleArgs struct {
	Device *Device
	// Code is SPIR-V; its length must be a multiple of four.
	Code []byte
}

type ShaderModule struct {
	object
	device Strong[*Device]
}

func (m *ShaderModule) create(args ShaderModuleArgs) error {
	dev, err := Retain(args.Device)
	if err != nil {
		return errors.Wrap(err, "create shader module")
	}
	m.device = dev
	m.init(args.Device.driver, m.destroy)
	if len(args.Code) == 0 || len(args.Code)%4 != 0 {
		m.Destroy()
		return errors.Newf("create shader module: code length %d is not a multiple of 4", len(args.Code))
	}
	h, res := m.driver.CreateShaderModule(args.Device.handle, args.Code)
	if res != native.Success {
		m.Destroy()
		return errs.Native("create shader module", res)
	}
	m.handle = h
	return nil
}

func (m *ShaderModule) destroy() {
	if m.handle.Valid() {
		m.driver.DestroyShaderModule(m.device.Get().Handle(), m.handle)
		m.handle = native.NullHandle
	}
	m.device.Release()
}

type PipelineLayoutArgs struct {
	Device           *Device
	PushConstantSize uint32
}

type PipelineLayout struct {
	object
	device Strong[*Device]
}

func (l *PipelineLayout) create(args PipelineLayoutArgs) error {
	dev, err := Retain(args.Device)
	if err != nil {
		return errors.Wrap(err, "create pipeline layout")
	}
	l.device = dev
	l.init(args.Device.driver, l.destroy)
	h, res := l.driver.CreatePipelineLayout(args.Device.handle, native.PipelineLayoutInfo{PushConstantSize: args.PushConstantSize})
	if res != native.Success {
		l.Destroy()
		return errs.Native("create pipeline layout", res)
	}
	l.handle = h
	return nil
}

func (l *PipelineLayout) destroy() {
	if l.handle.Valid() {
		l.driver.DestroyPipelineLayout(l.device.Get().Handle(), l.handle)
		l.handle = native.NullHandle
	}
	l.device.Release()
}
