package vkdriver

/*
#include <stdlib.h>
*/
import "C"

import (
	"unsafe"

	"github.com/vulkan-go/vulkan"

	"github.com/hellhand/kube/internal/native"
)

func (d *Driver) CreateSampler(device native.Handle, info native.SamplerInfo) (native.Handle, native.Result) {
	dev, ok := d.device(device)
	if !ok {
		return native.NullHandle, native.ErrorDeviceLost
	}
	address := vulkan.SamplerAddressMode(info.AddressMode)
	samplerInfo := vulkan.SamplerCreateInfo{
		SType:                   vulkan.StructureTypeSamplerCreateInfo,
		MagFilter:               vulkan.Filter(info.Filter),
		MinFilter:               vulkan.Filter(info.Filter),
		AddressModeU:            address,
		AddressModeV:            address,
		AddressModeW:            address,
		AnisotropyEnable:        vulkan.False,
		MaxAnisotropy:           1.0,
		BorderColor:             vulkan.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vulkan.False,
		CompareEnable:           vulkan.False,
		CompareOp:               vulkan.CompareOpAlways,
		MipmapMode:              vulkan.SamplerMipmapModeLinear,
	}
	// The binding writes the handle through C, so the out pointer must
	// not be Go memory.
	var zero vulkan.Sampler
	out := (*vulkan.Sampler)(C.malloc(C.size_t(unsafe.Sizeof(zero))))
	if out == nil {
		return native.NullHandle, native.ErrorOutOfHostMemory
	}
	defer C.free(unsafe.Pointer(out))

	if res := vulkan.CreateSampler(dev.dev, &samplerInfo, nil, out); res != vulkan.Success {
		return native.NullHandle, result(res)
	}
	return d.register(*out), native.Success
}

func (d *Driver) DestroySampler(device, sampler native.Handle) {
	dev, ok := d.device(device)
	if !ok {
		return
	}
	if s, ok := take[vulkan.Sampler](d, sampler); ok {
		vulkan.DestroySampler(dev.dev, s, nil)
	}
}
