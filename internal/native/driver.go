// Package native is the boundary to the native graphics API.
//
// Every call that allocates, destroys or waits on a native object goes
// through Driver. The Vulkan implementation lives in native/vkdriver; a
// GPU-free implementation used by tests and headless runs lives in
// native/headless. Methods return a Result instead of an error so callers
// decide how to classify each status (a fence Timeout, for example, is an
// expected outcome of a zero-timeout poll).
package native

import "time"

// Driver issues the creation and destruction calls for each native object
// kind. Destroy methods take the parent handle the native API requires and
// tolerate NullHandle.
//
// Queue submission and presentation are not free-threaded: callers must
// serialise QueueSubmit and QueuePresent per queue.
type Driver interface {
	CreateInstance(info InstanceInfo) (Handle, Result)
	DestroyInstance(instance Handle)
	EnumeratePhysicalDevices(instance Handle) ([]Handle, Result)
	PhysicalDeviceInfo(physical Handle) PhysicalDeviceInfo
	QueueFamilies(physical, surface Handle) []QueueFamily
	SurfaceSupport(physical, surface Handle) (SurfaceSupport, Result)
	DestroySurface(instance, surface Handle)

	CreateDevice(physical Handle, info DeviceInfo) (Handle, Result)
	DestroyDevice(device Handle)
	DeviceQueue(device Handle, family, index uint32) Handle
	DeviceWaitIdle(device Handle) Result

	CreateBuffer(device Handle, info BufferInfo) (Handle, Result)
	DestroyBuffer(device, buffer Handle)
	AllocateBufferMemory(device, buffer Handle, props MemoryProperty) (Handle, Result)
	AllocateImageMemory(device, image Handle, props MemoryProperty) (Handle, Result)
	FreeMemory(device, memory Handle)
	WriteMemory(device, memory Handle, offset uint64, data []byte) Result

	CreateImage(device Handle, info ImageInfo) (Handle, Result)
	DestroyImage(device, image Handle)
	UploadImage(device, queue, pool, image Handle, extent Extent, pixels []byte) Result
	CreateImageView(device Handle, info ImageViewInfo) (Handle, Result)
	DestroyImageView(device, view Handle)
	CreateSampler(device Handle, info SamplerInfo) (Handle, Result)
	DestroySampler(device, sampler Handle)

	CreateShaderModule(device Handle, code []byte) (Handle, Result)
	DestroyShaderModule(device, module Handle)
	CreatePipelineLayout(device Handle, info PipelineLayoutInfo) (Handle, Result)
	DestroyPipelineLayout(device, layout Handle)
	CreateRenderPass(device Handle, info RenderPassInfo) (Handle, Result)
	DestroyRenderPass(device, pass Handle)
	CreateFramebuffer(device Handle, info FramebufferInfo) (Handle, Result)
	DestroyFramebuffer(device, framebuffer Handle)

	CreateCommandPool(device Handle, info CommandPoolInfo) (Handle, Result)
	DestroyCommandPool(device, pool Handle)
	AllocateCommandBuffers(device, pool Handle, count uint32) ([]Handle, Result)
	FreeCommandBuffers(device, pool Handle, buffers []Handle)
	RecordClearPass(cmd Handle, pass ClearPass) Result

	CreateFence(device Handle, signaled bool) (Handle, Result)
	DestroyFence(device, fence Handle)
	WaitFences(device Handle, fences []Handle, timeout time.Duration) Result
	ResetFences(device Handle, fences []Handle) Result
	FenceStatus(device, fence Handle) Result

	CreateSemaphore(device Handle) (Handle, Result)
	CreateTimelineSemaphore(device Handle, initial uint64) (Handle, Result)
	DestroySemaphore(device, semaphore Handle)
	SemaphoreValue(device, semaphore Handle) (uint64, Result)
	SignalSemaphore(device, semaphore Handle, value uint64) Result
	WaitSemaphore(device, semaphore Handle, value uint64, timeout time.Duration) Result

	CreateSwapchain(device Handle, info SwapchainInfo) (Handle, Result)
	DestroySwapchain(device, swapchain Handle)
	SwapchainImages(device, swapchain Handle) ([]Handle, Result)
	AcquireNextImage(device, swapchain, semaphore Handle, timeout time.Duration) (uint32, Result)

	QueueSubmit(queue Handle, submit SubmitInfo) Result
	QueuePresent(queue Handle, present PresentInfo) Result
}

// SurfaceSource is implemented by windows that can derive a presentation
// surface for an instance.
type SurfaceSource interface {
	CreateSurface(instance Handle) (Handle, error)
}
