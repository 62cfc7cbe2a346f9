package headless

import (
	"math"
	"slices"
	"time"

	"github.com/hellhand/kube/internal/native"
)

func (d *Driver) CreateInstance(info native.InstanceInfo) (native.Handle, native.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if res, ok := d.fail("CreateInstance"); ok {
		return native.NullHandle, res
	}
	h, _ := d.alloc(kindInstance, native.NullHandle)
	for i := range d.devices {
		_, o := d.alloc(kindPhysical, h)
		o.spec = i
	}
	if info.DebugReport && info.Logf != nil {
		info.Logf("[VK][headless] validation requested for %s", info.AppName)
	}
	return h, native.Success
}

func (d *Driver) DestroyInstance(instance native.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(kindInstance, native.NullHandle, instance)
}

func (d *Driver) EnumeratePhysicalDevices(instance native.Handle) ([]native.Handle, native.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if res, ok := d.fail("EnumeratePhysicalDevices"); ok {
		return nil, res
	}
	if _, ok := d.get(instance, kindInstance); !ok {
		return nil, native.ErrorInitializationFailed
	}
	var out []native.Handle
	for h, o := range d.objects {
		if o.kind == kindPhysical && o.parent == instance && o.alive {
			out = append(out, h)
		}
	}
	slices.Sort(out)
	return out, native.Success
}

func (d *Driver) spec(physical native.Handle) (DeviceSpec, bool) {
	o, ok := d.get(physical, kindPhysical)
	if !ok {
		return DeviceSpec{}, false
	}
	return d.devices[o.spec], true
}

func (d *Driver) PhysicalDeviceInfo(physical native.Handle) native.PhysicalDeviceInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.spec(physical)
	if !ok {
		return native.PhysicalDeviceInfo{}
	}
	return native.PhysicalDeviceInfo{Name: s.Name, Type: s.Type, Extensions: slices.Clone(s.Extensions)}
}

func (d *Driver) QueueFamilies(physical, surface native.Handle) []native.QueueFamily {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.spec(physical)
	if !ok {
		return nil
	}
	_, presentable := d.get(surface, kindSurface)
	out := slices.Clone(s.Families)
	for i := range out {
		out[i].Present = out[i].Present && presentable
	}
	return out
}

func (d *Driver) SurfaceSupport(physical, surface native.Handle) (native.SurfaceSupport, native.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if res, ok := d.fail("SurfaceSupport"); ok {
		return native.SurfaceSupport{}, res
	}
	s, ok := d.spec(physical)
	if !ok {
		return native.SurfaceSupport{}, native.ErrorInitializationFailed
	}
	so, ok := d.get(surface, kindSurface)
	if !ok {
		return native.SurfaceSupport{}, native.ErrorSurfaceLost
	}
	current := native.Extent{Width: math.MaxUint32, Height: math.MaxUint32}
	if so.extentFn != nil {
		current = so.extentFn()
	}
	return native.SurfaceSupport{
		Capabilities: native.SurfaceCapabilities{
			MinImageCount: 2,
			MaxImageCount: 3,
			CurrentExtent: current,
			MinExtent:     native.Extent{Width: 1, Height: 1},
			MaxExtent:     native.Extent{Width: 16384, Height: 16384},
		},
		Formats:      slices.Clone(s.Formats),
		PresentModes: slices.Clone(s.PresentModes),
	}, native.Success
}

// NewSurface registers a surface whose current extent is reported by
// extent. Windows call it from CreateSurface.
func (d *Driver) NewSurface(instance native.Handle, extent func() native.Extent) (native.Handle, native.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, o, res := d.create("CreateSurface", kindSurface, instance, kindInstance)
	if res != native.Success {
		return native.NullHandle, res
	}
	o.extentFn = extent
	return h, native.Success
}

func (d *Driver) DestroySurface(instance, surface native.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(kindSurface, instance, surface)
}

func (d *Driver) CreateDevice(physical native.Handle, info native.DeviceInfo) (native.Handle, native.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.spec(physical)
	if !ok {
		return native.NullHandle, native.ErrorInitializationFailed
	}
	for _, ext := range info.Extensions {
		if !slices.Contains(s.Extensions, ext) {
			return native.NullHandle, native.ErrorExtensionNotPresent
		}
	}
	for _, fam := range info.QueueFamilies {
		if int(fam) >= len(s.Families) {
			return native.NullHandle, native.ErrorInitializationFailed
		}
	}
	h, o, res := d.create("CreateDevice", kindDevice, physical, kindPhysical)
	if res != native.Success {
		return native.NullHandle, res
	}
	o.queues = make(map[[2]uint32]native.Handle)
	return h, native.Success
}

func (d *Driver) DestroyDevice(device native.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if o, ok := d.objects[device]; ok {
		d.release(kindDevice, o.parent, device)
		return
	}
	d.release(kindDevice, native.NullHandle, device)
}

func (d *Driver) DeviceQueue(device native.Handle, family, index uint32) native.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.get(device, kindDevice)
	if !ok {
		return native.NullHandle
	}
	key := [2]uint32{family, index}
	if q, ok := o.queues[key]; ok {
		return q
	}
	q, _ := d.alloc(kindQueue, device)
	o.queues[key] = q
	return q
}

func (d *Driver) DeviceWaitIdle(device native.Handle) native.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if res, ok := d.fail("DeviceWaitIdle"); ok {
		return res
	}
	if _, ok := d.get(device, kindDevice); !ok {
		return native.ErrorDeviceLost
	}
	return native.Success
}

func (d *Driver) CreateBuffer(device native.Handle, info native.BufferInfo) (native.Handle, native.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.Size == 0 {
		return native.NullHandle, native.ErrorInitializationFailed
	}
	h, o, res := d.create("CreateBuffer", kindBuffer, device, kindDevice)
	if res != native.Success {
		return native.NullHandle, res
	}
	o.data = make([]byte, info.Size)
	return h, native.Success
}

func (d *Driver) DestroyBuffer(device, buffer native.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(kindBuffer, device, buffer)
}

func (d *Driver) allocateMemory(op string, device, target native.Handle, k kind, props native.MemoryProperty) (native.Handle, native.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.get(target, k)
	if !ok {
		return native.NullHandle, native.ErrorInitializationFailed
	}
	h, o, res := d.create(op, kindMemory, device, kindDevice)
	if res != native.Success {
		return native.NullHandle, res
	}
	o.props = props
	o.data = make([]byte, len(t.data))
	return h, native.Success
}

func (d *Driver) AllocateBufferMemory(device, buffer native.Handle, props native.MemoryProperty) (native.Handle, native.Result) {
	return d.allocateMemory("AllocateBufferMemory", device, buffer, kindBuffer, props)
}

func (d *Driver) AllocateImageMemory(device, image native.Handle, props native.MemoryProperty) (native.Handle, native.Result) {
	return d.allocateMemory("AllocateImageMemory", device, image, kindImage, props)
}

func (d *Driver) FreeMemory(device, memory native.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(kindMemory, device, memory)
}

func (d *Driver) WriteMemory(device, memory native.Handle, offset uint64, data []byte) native.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if res, ok := d.fail("WriteMemory"); ok {
		return res
	}
	o, ok := d.get(memory, kindMemory)
	if !ok || o.parent != device {
		return native.ErrorMemoryMapFailed
	}
	if o.props&native.MemoryHostVisible == 0 {
		return native.ErrorMemoryMapFailed
	}
	if offset+uint64(len(data)) > uint64(len(o.data)) {
		return native.ErrorMemoryMapFailed
	}
	copy(o.data[offset:], data)
	return native.Success
}

func (d *Driver) CreateImage(device native.Handle, info native.ImageInfo) (native.Handle, native.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.Extent.Empty() || info.Format == native.FormatUndefined {
		return native.NullHandle, native.ErrorFormatNotSupported
	}
	h, o, res := d.create("CreateImage", kindImage, device, kindDevice)
	if res != native.Success {
		return native.NullHandle, res
	}
	layers := max(info.ArrayLayers, 1)
	o.extent = info.Extent
	o.data = make([]byte, int(info.Extent.Width)*int(info.Extent.Height)*4*int(layers))
	return h, native.Success
}

func (d *Driver) DestroyImage(device, image native.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(kindImage, device, image)
}

func (d *Driver) UploadImage(device, queue, pool, image native.Handle, extent native.Extent, pixels []byte) native.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if res, ok := d.fail("UploadImage"); ok {
		return res
	}
	o, ok := d.get(image, kindImage)
	if !ok || o.parent != device {
		return native.ErrorInitializationFailed
	}
	if _, ok := d.get(queue, kindQueue); !ok {
		return native.ErrorDeviceLost
	}
	if _, ok := d.get(pool, kindCommandPool); !ok {
		return native.ErrorDeviceLost
	}
	if extent != o.extent || len(pixels) != int(extent.Width)*int(extent.Height)*4 {
		return native.ErrorFormatNotSupported
	}
	copy(o.data, pixels)
	return native.Success
}

// Texels returns a copy of an image's uploaded texels.
func (d *Driver) Texels(image native.Handle) []byte {
	return d.Memory(image)
}

func (d *Driver) CreateImageView(device native.Handle, info native.ImageViewInfo) (native.Handle, native.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, ok := d.objects[info.Image]
	if !ok || !img.alive || (img.kind != kindImage && img.kind != kindSwapImage) {
		return native.NullHandle, native.ErrorInitializationFailed
	}
	h, o, res := d.create("CreateImageView", kindImageView, device, kindDevice)
	if res != native.Success {
		return native.NullHandle, res
	}
	o.source = info.Image
	return h, native.Success
}

func (d *Driver) DestroyImageView(device, view native.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(kindImageView, device, view)
}

func (d *Driver) CreateSampler(device native.Handle, info native.SamplerInfo) (native.Handle, native.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, _, res := d.create("CreateSampler", kindSampler, device, kindDevice)
	return h, res
}

func (d *Driver) DestroySampler(device, sampler native.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(kindSampler, device, sampler)
}

func (d *Driver) CreateShaderModule(device native.Handle, code []byte) (native.Handle, native.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(code) == 0 || len(code)%4 != 0 {
		return native.NullHandle, native.ErrorInitializationFailed
	}
	h, _, res := d.create("CreateShaderModule", kindShader, device, kindDevice)
	return h, res
}

func (d *Driver) DestroyShaderModule(device, module native.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(kindShader, device, module)
}

func (d *Driver) CreatePipelineLayout(device native.Handle, info native.PipelineLayoutInfo) (native.Handle, native.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, _, res := d.create("CreatePipelineLayout", kindPipelineLayout, device, kindDevice)
	return h, res
}

func (d *Driver) DestroyPipelineLayout(device, layout native.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(kindPipelineLayout, device, layout)
}

func (d *Driver) CreateRenderPass(device native.Handle, info native.RenderPassInfo) (native.Handle, native.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.ColorFormat == native.FormatUndefined {
		return native.NullHandle, native.ErrorFormatNotSupported
	}
	h, _, res := d.create("CreateRenderPass", kindRenderPass, device, kindDevice)
	return h, res
}

func (d *Driver) DestroyRenderPass(device, pass native.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(kindRenderPass, device, pass)
}

func (d *Driver) CreateFramebuffer(device native.Handle, info native.FramebufferInfo) (native.Handle, native.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.get(info.RenderPass, kindRenderPass); !ok {
		return native.NullHandle, native.ErrorInitializationFailed
	}
	for _, a := range info.Attachments {
		if _, ok := d.get(a, kindImageView); !ok {
			return native.NullHandle, native.ErrorInitializationFailed
		}
	}
	h, o, res := d.create("CreateFramebuffer", kindFramebuffer, device, kindDevice)
	if res != native.Success {
		return native.NullHandle, res
	}
	o.extent = info.Extent
	return h, native.Success
}

func (d *Driver) DestroyFramebuffer(device, framebuffer native.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(kindFramebuffer, device, framebuffer)
}

func (d *Driver) CreateCommandPool(device native.Handle, info native.CommandPoolInfo) (native.Handle, native.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, _, res := d.create("CreateCommandPool", kindCommandPool, device, kindDevice)
	return h, res
}

func (d *Driver) DestroyCommandPool(device, pool native.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(kindCommandPool, device, pool)
}

func (d *Driver) AllocateCommandBuffers(device, pool native.Handle, count uint32) ([]native.Handle, native.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if res, ok := d.fail("AllocateCommandBuffers"); ok {
		return nil, res
	}
	if _, ok := d.get(pool, kindCommandPool); !ok {
		return nil, native.ErrorDeviceLost
	}
	out := make([]native.Handle, count)
	for i := range out {
		out[i], _ = d.alloc(kindCommandBuffer, pool)
	}
	return out, native.Success
}

func (d *Driver) FreeCommandBuffers(device, pool native.Handle, buffers []native.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range buffers {
		if o, ok := d.get(b, kindCommandBuffer); ok && o.parent == pool {
			o.alive = false
		}
	}
}

func (d *Driver) RecordClearPass(cmd native.Handle, pass native.ClearPass) native.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if res, ok := d.fail("RecordClearPass"); ok {
		return res
	}
	o, ok := d.get(cmd, kindCommandBuffer)
	if !ok {
		return native.ErrorDeviceLost
	}
	if _, ok := d.get(pass.Framebuffer, kindFramebuffer); !ok {
		return native.ErrorInitializationFailed
	}
	o.clear = &pass
	return native.Success
}

func (d *Driver) CreateFence(device native.Handle, signaled bool) (native.Handle, native.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, o, res := d.create("CreateFence", kindFence, device, kindDevice)
	if res != native.Success {
		return native.NullHandle, res
	}
	o.signaled = signaled
	return h, native.Success
}

func (d *Driver) DestroyFence(device, fence native.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(kindFence, device, fence)
}

func (d *Driver) WaitFences(device native.Handle, fences []native.Handle, timeout time.Duration) native.Result {
	d.mu.Lock()
	res, failed := d.fail("WaitFences")
	d.mu.Unlock()
	if failed {
		return res
	}
	return d.wait(timeout, func() (bool, native.Result) {
		for _, f := range fences {
			o, ok := d.get(f, kindFence)
			if !ok {
				return false, native.ErrorDeviceLost
			}
			if !o.signaled {
				return false, native.Success
			}
		}
		return true, native.Success
	})
}

func (d *Driver) ResetFences(device native.Handle, fences []native.Handle) native.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if res, ok := d.fail("ResetFences"); ok {
		return res
	}
	for _, f := range fences {
		o, ok := d.get(f, kindFence)
		if !ok {
			return native.ErrorDeviceLost
		}
		o.signaled = false
	}
	return native.Success
}

func (d *Driver) FenceStatus(device, fence native.Handle) native.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.get(fence, kindFence)
	switch {
	case !ok:
		return native.ErrorDeviceLost
	case o.signaled:
		return native.Success
	default:
		return native.NotReady
	}
}

func (d *Driver) CreateSemaphore(device native.Handle) (native.Handle, native.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, _, res := d.create("CreateSemaphore", kindSemaphore, device, kindDevice)
	return h, res
}

func (d *Driver) CreateTimelineSemaphore(device native.Handle, initial uint64) (native.Handle, native.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, o, res := d.create("CreateTimelineSemaphore", kindTimeline, device, kindDevice)
	if res != native.Success {
		return native.NullHandle, res
	}
	o.value = initial
	return h, native.Success
}

func (d *Driver) DestroySemaphore(device, semaphore native.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := kindSemaphore
	if o, ok := d.objects[semaphore]; ok && o.kind == kindTimeline {
		k = kindTimeline
	}
	d.release(k, device, semaphore)
}

func (d *Driver) SemaphoreValue(device, semaphore native.Handle) (uint64, native.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.get(semaphore, kindTimeline)
	if !ok {
		return 0, native.ErrorDeviceLost
	}
	return o.value, native.Success
}

func (d *Driver) SignalSemaphore(device, semaphore native.Handle, value uint64) native.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if res, ok := d.fail("SignalSemaphore"); ok {
		return res
	}
	o, ok := d.get(semaphore, kindTimeline)
	if !ok {
		return native.ErrorDeviceLost
	}
	o.value = value
	d.broadcast()
	return native.Success
}

func (d *Driver) WaitSemaphore(device, semaphore native.Handle, value uint64, timeout time.Duration) native.Result {
	return d.wait(timeout, func() (bool, native.Result) {
		o, ok := d.get(semaphore, kindTimeline)
		if !ok {
			return false, native.ErrorDeviceLost
		}
		return o.value >= value, native.Success
	})
}

func (d *Driver) CreateSwapchain(device native.Handle, info native.SwapchainInfo) (native.Handle, native.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.get(info.Surface, kindSurface); !ok {
		return native.NullHandle, native.ErrorSurfaceLost
	}
	if info.Extent.Empty() || info.MinImageCount == 0 {
		return native.NullHandle, native.ErrorInitializationFailed
	}
	h, o, res := d.create("CreateSwapchain", kindSwapchain, device, kindDevice)
	if res != native.Success {
		return native.NullHandle, res
	}
	o.extent = info.Extent
	o.surface = info.Surface
	for range info.MinImageCount {
		img, io := d.alloc(kindSwapImage, h)
		io.extent = info.Extent
		o.images = append(o.images, img)
	}
	return h, native.Success
}

func (d *Driver) DestroySwapchain(device, swapchain native.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(kindSwapchain, device, swapchain)
}

func (d *Driver) SwapchainImages(device, swapchain native.Handle) ([]native.Handle, native.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.get(swapchain, kindSwapchain)
	if !ok {
		return nil, native.ErrorSurfaceLost
	}
	return slices.Clone(o.images), native.Success
}

// outOfDate reports whether the surface extent moved away from the
// swapchain's. Callers hold d.mu.
func (d *Driver) outOfDate(sc *object) bool {
	so, ok := d.get(sc.surface, kindSurface)
	if !ok {
		return true
	}
	if so.extentFn == nil {
		return false
	}
	return so.extentFn() != sc.extent
}

func (d *Driver) AcquireNextImage(device, swapchain, semaphore native.Handle, timeout time.Duration) (uint32, native.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if res, ok := d.fail("AcquireNextImage"); ok {
		return 0, res
	}
	o, ok := d.get(swapchain, kindSwapchain)
	if !ok {
		return 0, native.ErrorSurfaceLost
	}
	if d.outOfDate(o) {
		return 0, native.ErrorOutOfDate
	}
	if s, ok := d.get(semaphore, kindSemaphore); ok {
		s.signaled = true
	}
	idx := o.next
	o.next = (o.next + 1) % uint32(len(o.images))
	return idx, native.Success
}

func (d *Driver) QueueSubmit(queue native.Handle, submit native.SubmitInfo) native.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if res, ok := d.fail("QueueSubmit"); ok {
		return res
	}
	if _, ok := d.get(queue, kindQueue); !ok {
		return native.ErrorDeviceLost
	}
	for _, cb := range submit.CommandBuffers {
		if _, ok := d.get(cb, kindCommandBuffer); !ok {
			return native.ErrorDeviceLost
		}
	}
	for _, s := range submit.Wait {
		if o, ok := d.get(s, kindSemaphore); ok {
			o.signaled = false
		}
	}
	for _, s := range submit.Signal {
		if o, ok := d.get(s, kindSemaphore); ok {
			o.signaled = true
		}
	}
	if submit.Fence.Valid() {
		f, ok := d.get(submit.Fence, kindFence)
		if !ok {
			return native.ErrorDeviceLost
		}
		f.signaled = true
	}
	d.submissions++
	d.broadcast()
	return native.Success
}

func (d *Driver) QueuePresent(queue native.Handle, present native.PresentInfo) native.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if res, ok := d.fail("QueuePresent"); ok {
		return res
	}
	o, ok := d.get(present.Swapchain, kindSwapchain)
	if !ok || int(present.ImageIndex) >= len(o.images) {
		return native.ErrorSurfaceLost
	}
	if d.outOfDate(o) {
		return native.ErrorOutOfDate
	}
	d.presents++
	return native.Success
}
