package vkdriver

import (
	"slices"
	"unsafe"

	"github.com/vulkan-go/vulkan"

	"github.com/hellhand/kube/internal/native"
)

type deviceObj struct {
	dev      vulkan.Device
	physical vulkan.PhysicalDevice
	memProps vulkan.PhysicalDeviceMemoryProperties
}

type queueObj struct {
	queue  vulkan.Queue
	device native.Handle
}

type bufferObj struct {
	buf  vulkan.Buffer
	size uint64
}

type memoryObj struct {
	mem   vulkan.DeviceMemory
	size  uint64
	props native.MemoryProperty
}

type imageObj struct {
	img    vulkan.Image
	format vulkan.Format
	// owned is false for swap chain images.
	owned bool
}

func (d *Driver) CreateDevice(physical native.Handle, info native.DeviceInfo) (native.Handle, native.Result) {
	p, ok := lookup[*physicalObj](d, physical)
	if !ok {
		return native.NullHandle, native.ErrorInitializationFailed
	}
	var queueInfos []vulkan.DeviceQueueCreateInfo
	seen := map[uint32]bool{}
	for _, family := range info.QueueFamilies {
		if seen[family] {
			continue
		}
		seen[family] = true
		queueInfos = append(queueInfos, vulkan.DeviceQueueCreateInfo{
			SType:            vulkan.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		})
	}
	extensions := cstrs(info.Extensions)
	layers := cstrs(info.Layers)
	createInfo := vulkan.DeviceCreateInfo{
		SType:                   vulkan.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		PEnabledFeatures:        []vulkan.PhysicalDeviceFeatures{{}},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}
	var dev vulkan.Device
	if res := vulkan.CreateDevice(p.dev, &createInfo, nil, &dev); res != vulkan.Success {
		return native.NullHandle, result(res)
	}
	obj := &deviceObj{dev: dev, physical: p.dev}
	vulkan.GetPhysicalDeviceMemoryProperties(p.dev, &obj.memProps)
	obj.memProps.Deref()
	return d.register(obj), native.Success
}

func (d *Driver) DestroyDevice(device native.Handle) {
	obj, ok := take[*deviceObj](d, device)
	if !ok {
		return
	}
	d.mu.Lock()
	for h, o := range d.objects {
		if q, ok := o.(*queueObj); ok && q.device == device {
			delete(d.objects, h)
		}
	}
	d.mu.Unlock()
	vulkan.DestroyDevice(obj.dev, nil)
}

func (d *Driver) device(h native.Handle) (*deviceObj, bool) { return lookup[*deviceObj](d, h) }

func (d *Driver) DeviceQueue(device native.Handle, family, index uint32) native.Handle {
	dev, ok := d.device(device)
	if !ok {
		return native.NullHandle
	}
	var q vulkan.Queue
	vulkan.GetDeviceQueue(dev.dev, family, index, &q)
	return d.register(&queueObj{queue: q, device: device})
}

func (d *Driver) DeviceWaitIdle(device native.Handle) native.Result {
	dev, ok := d.device(device)
	if !ok {
		return native.ErrorDeviceLost
	}
	return result(vulkan.DeviceWaitIdle(dev.dev))
}

func (dev *deviceObj) findMemoryType(typeFilter uint32, properties native.MemoryProperty) (uint32, bool) {
	want := vulkan.MemoryPropertyFlags(properties)
	for i := uint32(0); i < dev.memProps.MemoryTypeCount; i++ {
		memoryType := dev.memProps.MemoryTypes[i]
		memoryType.Deref()
		if typeFilter&(1<<i) != 0 && memoryType.PropertyFlags&want == want {
			return i, true
		}
	}
	return 0, false
}

func (d *Driver) CreateBuffer(device native.Handle, info native.BufferInfo) (native.Handle, native.Result) {
	dev, ok := d.device(device)
	if !ok {
		return native.NullHandle, native.ErrorDeviceLost
	}
	createInfo := vulkan.BufferCreateInfo{
		SType:       vulkan.StructureTypeBufferCreateInfo,
		Size:        vulkan.DeviceSize(info.Size),
		Usage:       vulkan.BufferUsageFlags(info.Usage),
		SharingMode: vulkan.SharingModeExclusive,
	}
	var buf vulkan.Buffer
	if res := vulkan.CreateBuffer(dev.dev, &createInfo, nil, &buf); res != vulkan.Success {
		return native.NullHandle, result(res)
	}
	return d.register(&bufferObj{buf: buf, size: info.Size}), native.Success
}

func (d *Driver) DestroyBuffer(device, buffer native.Handle) {
	dev, ok := d.device(device)
	if !ok {
		return
	}
	if b, ok := take[*bufferObj](d, buffer); ok {
		vulkan.DestroyBuffer(dev.dev, b.buf, nil)
	}
}

func (d *Driver) allocate(dev *deviceObj, req vulkan.MemoryRequirements, props native.MemoryProperty) (vulkan.DeviceMemory, native.Result) {
	req.Deref()
	index, ok := dev.findMemoryType(req.MemoryTypeBits, props)
	if !ok {
		return nil, native.ErrorOutOfDeviceMemory
	}
	allocInfo := vulkan.MemoryAllocateInfo{
		SType:           vulkan.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: index,
	}
	var mem vulkan.DeviceMemory
	if res := vulkan.AllocateMemory(dev.dev, &allocInfo, nil, &mem); res != vulkan.Success {
		return nil, result(res)
	}
	return mem, native.Success
}

func (d *Driver) AllocateBufferMemory(device, buffer native.Handle, props native.MemoryProperty) (native.Handle, native.Result) {
	dev, ok := d.device(device)
	if !ok {
		return native.NullHandle, native.ErrorDeviceLost
	}
	b, ok := lookup[*bufferObj](d, buffer)
	if !ok {
		return native.NullHandle, native.ErrorInitializationFailed
	}
	var req vulkan.MemoryRequirements
	vulkan.GetBufferMemoryRequirements(dev.dev, b.buf, &req)
	mem, res := d.allocate(dev, req, props)
	if res != native.Success {
		return native.NullHandle, res
	}
	if res := vulkan.BindBufferMemory(dev.dev, b.buf, mem, 0); res != vulkan.Success {
		vulkan.FreeMemory(dev.dev, mem, nil)
		return native.NullHandle, result(res)
	}
	return d.register(&memoryObj{mem: mem, size: b.size, props: props}), native.Success
}

func (d *Driver) AllocateImageMemory(device, image native.Handle, props native.MemoryProperty) (native.Handle, native.Result) {
	dev, ok := d.device(device)
	if !ok {
		return native.NullHandle, native.ErrorDeviceLost
	}
	img, ok := lookup[*imageObj](d, image)
	if !ok {
		return native.NullHandle, native.ErrorInitializationFailed
	}
	var req vulkan.MemoryRequirements
	vulkan.GetImageMemoryRequirements(dev.dev, img.img, &req)
	mem, res := d.allocate(dev, req, props)
	if res != native.Success {
		return native.NullHandle, res
	}
	if res := vulkan.BindImageMemory(dev.dev, img.img, mem, 0); res != vulkan.Success {
		vulkan.FreeMemory(dev.dev, mem, nil)
		return native.NullHandle, result(res)
	}
	req.Deref()
	return d.register(&memoryObj{mem: mem, size: uint64(req.Size), props: props}), native.Success
}

func (d *Driver) FreeMemory(device, memory native.Handle) {
	dev, ok := d.device(device)
	if !ok {
		return
	}
	if m, ok := take[*memoryObj](d, memory); ok {
		vulkan.FreeMemory(dev.dev, m.mem, nil)
	}
}

func (d *Driver) WriteMemory(device, memory native.Handle, offset uint64, data []byte) native.Result {
	dev, ok := d.device(device)
	if !ok {
		return native.ErrorDeviceLost
	}
	m, ok := lookup[*memoryObj](d, memory)
	if !ok || m.props&native.MemoryHostVisible == 0 {
		return native.ErrorMemoryMapFailed
	}
	if len(data) == 0 {
		return native.Success
	}
	if offset+uint64(len(data)) > m.size {
		return native.ErrorMemoryMapFailed
	}
	return mapCopy(dev.dev, m.mem, offset, data)
}

func mapCopy(dev vulkan.Device, mem vulkan.DeviceMemory, offset uint64, data []byte) native.Result {
	var ptr unsafe.Pointer
	if res := vulkan.MapMemory(dev, mem, vulkan.DeviceSize(offset), vulkan.DeviceSize(len(data)), 0, &ptr); res != vulkan.Success {
		return result(res)
	}
	copy(unsafe.Slice((*byte)(ptr), len(data)), data)
	vulkan.UnmapMemory(dev, mem)
	return native.Success
}

func (d *Driver) CreateImage(device native.Handle, info native.ImageInfo) (native.Handle, native.Result) {
	dev, ok := d.device(device)
	if !ok {
		return native.NullHandle, native.ErrorDeviceLost
	}
	createInfo := vulkan.ImageCreateInfo{
		SType:     vulkan.StructureTypeImageCreateInfo,
		ImageType: vulkan.ImageType2d,
		Extent: vulkan.Extent3D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
			Depth:  1,
		},
		MipLevels:     max(info.MipLevels, 1),
		ArrayLayers:   max(info.ArrayLayers, 1),
		Format:        vulkan.Format(info.Format),
		Tiling:        vulkan.ImageTiling(info.Tiling),
		InitialLayout: vulkan.ImageLayoutUndefined,
		Usage:         vulkan.ImageUsageFlags(info.Usage),
		Samples:       vulkan.SampleCount1Bit,
		SharingMode:   vulkan.SharingModeExclusive,
	}
	var img vulkan.Image
	if res := vulkan.CreateImage(dev.dev, &createInfo, nil, &img); res != vulkan.Success {
		return native.NullHandle, result(res)
	}
	return d.register(&imageObj{img: img, format: createInfo.Format, owned: true}), native.Success
}

func (d *Driver) DestroyImage(device, image native.Handle) {
	dev, ok := d.device(device)
	if !ok {
		return
	}
	img, ok := lookup[*imageObj](d, image)
	if !ok || !img.owned {
		return
	}
	d.forget(image)
	vulkan.DestroyImage(dev.dev, img.img, nil)
}

func (d *Driver) CreateImageView(device native.Handle, info native.ImageViewInfo) (native.Handle, native.Result) {
	dev, ok := d.device(device)
	if !ok {
		return native.NullHandle, native.ErrorDeviceLost
	}
	img, ok := lookup[*imageObj](d, info.Image)
	if !ok {
		return native.NullHandle, native.ErrorInitializationFailed
	}
	aspect := info.Aspect
	if aspect == 0 {
		aspect = native.ImageAspectColor
	}
	viewInfo := vulkan.ImageViewCreateInfo{
		SType:    vulkan.StructureTypeImageViewCreateInfo,
		Image:    img.img,
		ViewType: vulkan.ImageViewType2d,
		Format:   vulkan.Format(info.Format),
		Components: vulkan.ComponentMapping{
			R: vulkan.ComponentSwizzleIdentity,
			G: vulkan.ComponentSwizzleIdentity,
			B: vulkan.ComponentSwizzleIdentity,
			A: vulkan.ComponentSwizzleIdentity,
		},
		SubresourceRange: vulkan.ImageSubresourceRange{
			AspectMask: vulkan.ImageAspectFlags(aspect),
			LevelCount: 1,
			LayerCount: max(info.LayerCount, 1),
		},
	}
	if viewInfo.SubresourceRange.LayerCount > 1 {
		viewInfo.ViewType = vulkan.ImageViewType2dArray
	}
	var view vulkan.ImageView
	if res := vulkan.CreateImageView(dev.dev, &viewInfo, nil, &view); res != vulkan.Success {
		return native.NullHandle, result(res)
	}
	return d.register(view), native.Success
}

func (d *Driver) DestroyImageView(device, view native.Handle) {
	dev, ok := d.device(device)
	if !ok {
		return
	}
	if v, ok := take[vulkan.ImageView](d, view); ok {
		vulkan.DestroyImageView(dev.dev, v, nil)
	}
}

func (d *Driver) CreateShaderModule(device native.Handle, code []byte) (native.Handle, native.Result) {
	dev, ok := d.device(device)
	if !ok {
		return native.NullHandle, native.ErrorDeviceLost
	}
	if len(code) == 0 || len(code)%4 != 0 {
		return native.NullHandle, native.ErrorInitializationFailed
	}
	createInfo := vulkan.ShaderModuleCreateInfo{
		SType:    vulkan.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    unsafe.Slice((*uint32)(unsafe.Pointer(&code[0])), len(code)/4),
	}
	var module vulkan.ShaderModule
	if res := vulkan.CreateShaderModule(dev.dev, &createInfo, nil, &module); res != vulkan.Success {
		return native.NullHandle, result(res)
	}
	return d.register(module), native.Success
}

func (d *Driver) DestroyShaderModule(device, module native.Handle) {
	dev, ok := d.device(device)
	if !ok {
		return
	}
	if m, ok := take[vulkan.ShaderModule](d, module); ok {
		vulkan.DestroyShaderModule(dev.dev, m, nil)
	}
}

func (d *Driver) CreatePipelineLayout(device native.Handle, info native.PipelineLayoutInfo) (native.Handle, native.Result) {
	dev, ok := d.device(device)
	if !ok {
		return native.NullHandle, native.ErrorDeviceLost
	}
	createInfo := vulkan.PipelineLayoutCreateInfo{
		SType: vulkan.StructureTypePipelineLayoutCreateInfo,
	}
	if info.PushConstantSize > 0 {
		createInfo.PushConstantRangeCount = 1
		createInfo.PPushConstantRanges = []vulkan.PushConstantRange{{
			StageFlags: vulkan.ShaderStageFlags(vulkan.ShaderStageVertexBit | vulkan.ShaderStageFragmentBit),
			Size:       info.PushConstantSize,
		}}
	}
	var layout vulkan.PipelineLayout
	if res := vulkan.CreatePipelineLayout(dev.dev, &createInfo, nil, &layout); res != vulkan.Success {
		return native.NullHandle, result(res)
	}
	return d.register(layout), native.Success
}

func (d *Driver) DestroyPipelineLayout(device, layout native.Handle) {
	dev, ok := d.device(device)
	if !ok {
		return
	}
	if l, ok := take[vulkan.PipelineLayout](d, layout); ok {
		vulkan.DestroyPipelineLayout(dev.dev, l, nil)
	}
}

func (d *Driver) CreateRenderPass(device native.Handle, info native.RenderPassInfo) (native.Handle, native.Result) {
	dev, ok := d.device(device)
	if !ok {
		return native.NullHandle, native.ErrorDeviceLost
	}
	attachments := []vulkan.AttachmentDescription{{
		Format:         vulkan.Format(info.ColorFormat),
		Samples:        vulkan.SampleCount1Bit,
		LoadOp:         vulkan.AttachmentLoadOpClear,
		StoreOp:        vulkan.AttachmentStoreOpStore,
		StencilLoadOp:  vulkan.AttachmentLoadOpDontCare,
		StencilStoreOp: vulkan.AttachmentStoreOpDontCare,
		InitialLayout:  vulkan.ImageLayoutUndefined,
		FinalLayout:    vulkan.ImageLayoutPresentSrc,
	}}
	subpass := vulkan.SubpassDescription{
		PipelineBindPoint:    vulkan.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vulkan.AttachmentReference{{
			Attachment: 0,
			Layout:     vulkan.ImageLayoutColorAttachmentOptimal,
		}},
	}
	stages := vulkan.PipelineStageColorAttachmentOutputBit
	access := vulkan.AccessColorAttachmentWriteBit
	if info.DepthFormat != native.FormatUndefined {
		attachments = append(attachments, vulkan.AttachmentDescription{
			Format:         vulkan.Format(info.DepthFormat),
			Samples:        vulkan.SampleCount1Bit,
			LoadOp:         vulkan.AttachmentLoadOpClear,
			StoreOp:        vulkan.AttachmentStoreOpDontCare,
			StencilLoadOp:  vulkan.AttachmentLoadOpDontCare,
			StencilStoreOp: vulkan.AttachmentStoreOpDontCare,
			InitialLayout:  vulkan.ImageLayoutUndefined,
			FinalLayout:    vulkan.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &vulkan.AttachmentReference{
			Attachment: 1,
			Layout:     vulkan.ImageLayoutDepthStencilAttachmentOptimal,
		}
		stages |= vulkan.PipelineStageEarlyFragmentTestsBit
		access |= vulkan.AccessDepthStencilAttachmentWriteBit
	}
	dependency := vulkan.SubpassDependency{
		SrcSubpass:    vulkan.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vulkan.PipelineStageFlags(stages),
		DstStageMask:  vulkan.PipelineStageFlags(stages),
		DstAccessMask: vulkan.AccessFlags(access),
	}
	createInfo := vulkan.RenderPassCreateInfo{
		SType:           vulkan.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vulkan.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vulkan.SubpassDependency{dependency},
	}
	var pass vulkan.RenderPass
	if res := vulkan.CreateRenderPass(dev.dev, &createInfo, nil, &pass); res != vulkan.Success {
		return native.NullHandle, result(res)
	}
	return d.register(pass), native.Success
}

func (d *Driver) DestroyRenderPass(device, pass native.Handle) {
	dev, ok := d.device(device)
	if !ok {
		return
	}
	if p, ok := take[vulkan.RenderPass](d, pass); ok {
		vulkan.DestroyRenderPass(dev.dev, p, nil)
	}
}

func (d *Driver) CreateFramebuffer(device native.Handle, info native.FramebufferInfo) (native.Handle, native.Result) {
	dev, ok := d.device(device)
	if !ok {
		return native.NullHandle, native.ErrorDeviceLost
	}
	pass, ok := lookup[vulkan.RenderPass](d, info.RenderPass)
	if !ok {
		return native.NullHandle, native.ErrorInitializationFailed
	}
	views := make([]vulkan.ImageView, 0, len(info.Attachments))
	for _, h := range info.Attachments {
		v, ok := lookup[vulkan.ImageView](d, h)
		if !ok {
			return native.NullHandle, native.ErrorInitializationFailed
		}
		views = append(views, v)
	}
	createInfo := vulkan.FramebufferCreateInfo{
		SType:           vulkan.StructureTypeFramebufferCreateInfo,
		RenderPass:      pass,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           info.Extent.Width,
		Height:          info.Extent.Height,
		Layers:          1,
	}
	var fb vulkan.Framebuffer
	if res := vulkan.CreateFramebuffer(dev.dev, &createInfo, nil, &fb); res != vulkan.Success {
		return native.NullHandle, result(res)
	}
	return d.register(fb), native.Success
}

func (d *Driver) DestroyFramebuffer(device, framebuffer native.Handle) {
	dev, ok := d.device(device)
	if !ok {
		return
	}
	if fb, ok := take[vulkan.Framebuffer](d, framebuffer); ok {
		vulkan.DestroyFramebuffer(dev.dev, fb, nil)
	}
}

// handles maps table handles to Vulkan objects of one type, skipping
// unknown ones.
func handles[T any](d *Driver, hs []native.Handle) []T {
	out := make([]T, 0, len(hs))
	for _, h := range hs {
		if v, ok := lookup[T](d, h); ok {
			out = append(out, v)
		}
	}
	return slices.Clip(out)
}
