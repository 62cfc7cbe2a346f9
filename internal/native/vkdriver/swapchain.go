package vkdriver

import (
	"time"

	"github.com/vulkan-go/vulkan"

	"github.com/hellhand/kube/internal/native"
)

type swapchainObj struct {
	sc     vulkan.Swapchain
	images []native.Handle
}

func (d *Driver) CreateSwapchain(device native.Handle, info native.SwapchainInfo) (native.Handle, native.Result) {
	dev, ok := d.device(device)
	if !ok {
		return native.NullHandle, native.ErrorDeviceLost
	}
	surface, ok := lookup[vulkan.Surface](d, info.Surface)
	if !ok {
		return native.NullHandle, native.ErrorSurfaceLost
	}
	old := vulkan.Swapchain(vulkan.NullHandle)
	if o, ok := lookup[*swapchainObj](d, info.Old); ok {
		old = o.sc
	}

	createInfo := vulkan.SwapchainCreateInfo{
		SType:            vulkan.StructureTypeSwapchainCreateInfo,
		Surface:          surface,
		MinImageCount:    info.MinImageCount,
		ImageFormat:      vulkan.Format(info.Format.Format),
		ImageColorSpace:  vulkan.ColorSpace(info.Format.ColorSpace),
		ImageExtent:      vulkan.Extent2D{Width: info.Extent.Width, Height: info.Extent.Height},
		ImageArrayLayers: 1,
		ImageUsage:       vulkan.ImageUsageFlags(vulkan.ImageUsageColorAttachmentBit),
		PreTransform:     vulkan.SurfaceTransformFlagBits(info.Transform),
		CompositeAlpha:   vulkan.CompositeAlphaOpaqueBit,
		PresentMode:      vulkan.PresentMode(info.PresentMode),
		Clipped:          vulkan.True,
		OldSwapchain:     old,
	}
	if len(info.QueueFamilies) > 1 {
		createInfo.ImageSharingMode = vulkan.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = uint32(len(info.QueueFamilies))
		createInfo.PQueueFamilyIndices = info.QueueFamilies
	} else {
		createInfo.ImageSharingMode = vulkan.SharingModeExclusive
	}

	var sc vulkan.Swapchain
	if res := vulkan.CreateSwapchain(dev.dev, &createInfo, nil, &sc); res != vulkan.Success {
		return native.NullHandle, result(res)
	}

	var count uint32
	if res := vulkan.GetSwapchainImages(dev.dev, sc, &count, nil); res != vulkan.Success {
		vulkan.DestroySwapchain(dev.dev, sc, nil)
		return native.NullHandle, result(res)
	}
	images := make([]vulkan.Image, count)
	if res := vulkan.GetSwapchainImages(dev.dev, sc, &count, images); res != vulkan.Success {
		vulkan.DestroySwapchain(dev.dev, sc, nil)
		return native.NullHandle, result(res)
	}
	obj := &swapchainObj{sc: sc}
	for _, img := range images[:count] {
		obj.images = append(obj.images, d.register(&imageObj{
			img:    img,
			format: vulkan.Format(info.Format.Format),
		}))
	}
	return d.register(obj), native.Success
}

// DestroySwapchain forgets the swapchain's images along with it.
func (d *Driver) DestroySwapchain(device, swapchain native.Handle) {
	dev, ok := d.device(device)
	if !ok {
		return
	}
	obj, ok := take[*swapchainObj](d, swapchain)
	if !ok {
		return
	}
	for _, img := range obj.images {
		d.forget(img)
	}
	vulkan.DestroySwapchain(dev.dev, obj.sc, nil)
}

func (d *Driver) SwapchainImages(device, swapchain native.Handle) ([]native.Handle, native.Result) {
	obj, ok := lookup[*swapchainObj](d, swapchain)
	if !ok {
		return nil, native.ErrorSurfaceLost
	}
	return append([]native.Handle(nil), obj.images...), native.Success
}

func (d *Driver) AcquireNextImage(device, swapchain, semaphore native.Handle, t time.Duration) (uint32, native.Result) {
	dev, ok := d.device(device)
	if !ok {
		return 0, native.ErrorDeviceLost
	}
	obj, ok := lookup[*swapchainObj](d, swapchain)
	if !ok {
		return 0, native.ErrorSurfaceLost
	}
	sem, ok := lookup[vulkan.Semaphore](d, semaphore)
	if !ok {
		sem = vulkan.Semaphore(vulkan.NullHandle)
	}
	var idx uint32
	res := vulkan.AcquireNextImage(dev.dev, obj.sc, timeout(t), sem, vulkan.Fence(vulkan.NullHandle), &idx)
	return idx, result(res)
}

func (d *Driver) QueueSubmit(queue native.Handle, submit native.SubmitInfo) native.Result {
	q, ok := lookup[*queueObj](d, queue)
	if !ok {
		return native.ErrorDeviceLost
	}
	wait := handles[vulkan.Semaphore](d, submit.Wait)
	stages := make([]vulkan.PipelineStageFlags, len(wait))
	for i := range stages {
		stages[i] = vulkan.PipelineStageFlags(vulkan.PipelineStageColorAttachmentOutputBit)
	}
	cbs := make([]vulkan.CommandBuffer, 0, len(submit.CommandBuffers))
	for _, h := range submit.CommandBuffers {
		c, ok := lookup[*commandObj](d, h)
		if !ok {
			return native.ErrorDeviceLost
		}
		cbs = append(cbs, c.cb)
	}
	signal := handles[vulkan.Semaphore](d, submit.Signal)

	submitInfo := vulkan.SubmitInfo{
		SType:                vulkan.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(wait)),
		PWaitSemaphores:      wait,
		PWaitDstStageMask:    stages,
		CommandBufferCount:   uint32(len(cbs)),
		PCommandBuffers:      cbs,
		SignalSemaphoreCount: uint32(len(signal)),
		PSignalSemaphores:    signal,
	}
	fence := vulkan.Fence(vulkan.NullHandle)
	if submit.Fence.Valid() {
		f, ok := lookup[vulkan.Fence](d, submit.Fence)
		if !ok {
			return native.ErrorDeviceLost
		}
		fence = f
	}
	return result(vulkan.QueueSubmit(q.queue, 1, []vulkan.SubmitInfo{submitInfo}, fence))
}

func (d *Driver) QueuePresent(queue native.Handle, present native.PresentInfo) native.Result {
	q, ok := lookup[*queueObj](d, queue)
	if !ok {
		return native.ErrorDeviceLost
	}
	obj, ok := lookup[*swapchainObj](d, present.Swapchain)
	if !ok || int(present.ImageIndex) >= len(obj.images) {
		return native.ErrorSurfaceLost
	}
	wait := handles[vulkan.Semaphore](d, present.Wait)
	presentInfo := vulkan.PresentInfo{
		SType:              vulkan.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(wait)),
		PWaitSemaphores:    wait,
		SwapchainCount:     1,
		PSwapchains:        []vulkan.Swapchain{obj.sc},
		PImageIndices:      []uint32{present.ImageIndex},
	}
	return result(vulkan.QueuePresent(q.queue, &presentInfo))
}
