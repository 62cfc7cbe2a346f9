package vkdriver

import (
	"github.com/vulkan-go/vulkan"

	"github.com/hellhand/kube/internal/native"
)

type commandObj struct {
	cb   vulkan.CommandBuffer
	pool native.Handle
}

func (d *Driver) CreateCommandPool(device native.Handle, info native.CommandPoolInfo) (native.Handle, native.Result) {
	dev, ok := d.device(device)
	if !ok {
		return native.NullHandle, native.ErrorDeviceLost
	}
	poolInfo := vulkan.CommandPoolCreateInfo{
		SType:            vulkan.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: info.QueueFamily,
	}
	if info.ResetCommandBuffers {
		poolInfo.Flags = vulkan.CommandPoolCreateFlags(vulkan.CommandPoolCreateResetCommandBufferBit)
	}
	var pool vulkan.CommandPool
	if res := vulkan.CreateCommandPool(dev.dev, &poolInfo, nil, &pool); res != vulkan.Success {
		return native.NullHandle, result(res)
	}
	return d.register(pool), native.Success
}

// DestroyCommandPool also forgets the pool's command buffers; Vulkan frees
// them with the pool.
func (d *Driver) DestroyCommandPool(device, pool native.Handle) {
	dev, ok := d.device(device)
	if !ok {
		return
	}
	p, ok := take[vulkan.CommandPool](d, pool)
	if !ok {
		return
	}
	d.mu.Lock()
	for h, o := range d.objects {
		if c, ok := o.(*commandObj); ok && c.pool == pool {
			delete(d.objects, h)
		}
	}
	d.mu.Unlock()
	vulkan.DestroyCommandPool(dev.dev, p, nil)
}

func (d *Driver) AllocateCommandBuffers(device, pool native.Handle, count uint32) ([]native.Handle, native.Result) {
	dev, ok := d.device(device)
	if !ok {
		return nil, native.ErrorDeviceLost
	}
	p, ok := lookup[vulkan.CommandPool](d, pool)
	if !ok {
		return nil, native.ErrorInitializationFailed
	}
	allocInfo := vulkan.CommandBufferAllocateInfo{
		SType:              vulkan.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p,
		Level:              vulkan.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	}
	bufs := make([]vulkan.CommandBuffer, count)
	if res := vulkan.AllocateCommandBuffers(dev.dev, &allocInfo, bufs); res != vulkan.Success {
		return nil, result(res)
	}
	out := make([]native.Handle, count)
	for i, cb := range bufs {
		out[i] = d.register(&commandObj{cb: cb, pool: pool})
	}
	return out, native.Success
}

func (d *Driver) FreeCommandBuffers(device, pool native.Handle, buffers []native.Handle) {
	dev, ok := d.device(device)
	if !ok {
		return
	}
	p, ok := lookup[vulkan.CommandPool](d, pool)
	if !ok {
		return
	}
	var cbs []vulkan.CommandBuffer
	for _, h := range buffers {
		if c, ok := take[*commandObj](d, h); ok {
			cbs = append(cbs, c.cb)
		}
	}
	if len(cbs) > 0 {
		vulkan.FreeCommandBuffers(dev.dev, p, uint32(len(cbs)), cbs)
	}
}

// RecordClearPass re-records cmd with a render pass instance that only
// clears its colour attachment.
func (d *Driver) RecordClearPass(cmd native.Handle, pass native.ClearPass) native.Result {
	c, ok := lookup[*commandObj](d, cmd)
	if !ok {
		return native.ErrorDeviceLost
	}
	rp, ok := lookup[vulkan.RenderPass](d, pass.RenderPass)
	if !ok {
		return native.ErrorInitializationFailed
	}
	fb, ok := lookup[vulkan.Framebuffer](d, pass.Framebuffer)
	if !ok {
		return native.ErrorInitializationFailed
	}

	vulkan.ResetCommandBuffer(c.cb, 0)
	beginInfo := vulkan.CommandBufferBeginInfo{
		SType: vulkan.StructureTypeCommandBufferBeginInfo,
	}
	if res := vulkan.BeginCommandBuffer(c.cb, &beginInfo); res != vulkan.Success {
		return result(res)
	}
	clearValues := []vulkan.ClearValue{
		vulkan.NewClearValue(pass.Color[:]),
		vulkan.NewClearDepthStencil(1.0, 0),
	}
	renderPassInfo := vulkan.RenderPassBeginInfo{
		SType:       vulkan.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp,
		Framebuffer: fb,
		RenderArea: vulkan.Rect2D{
			Offset: vulkan.Offset2D{X: 0, Y: 0},
			Extent: vulkan.Extent2D{Width: pass.Extent.Width, Height: pass.Extent.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vulkan.CmdBeginRenderPass(c.cb, &renderPassInfo, vulkan.SubpassContentsInline)
	vulkan.CmdEndRenderPass(c.cb)
	return result(vulkan.EndCommandBuffer(c.cb))
}

// UploadImage copies pixels into image through a host-visible staging
// buffer and leaves the image ready for sampling. It waits for queue to go
// idle before returning.
func (d *Driver) UploadImage(device, queue, pool, image native.Handle, extent native.Extent, pixels []byte) native.Result {
	dev, ok := d.device(device)
	if !ok {
		return native.ErrorDeviceLost
	}
	q, ok := lookup[*queueObj](d, queue)
	if !ok {
		return native.ErrorDeviceLost
	}
	p, ok := lookup[vulkan.CommandPool](d, pool)
	if !ok {
		return native.ErrorInitializationFailed
	}
	img, ok := lookup[*imageObj](d, image)
	if !ok {
		return native.ErrorInitializationFailed
	}

	size := vulkan.DeviceSize(len(pixels))
	bufInfo := vulkan.BufferCreateInfo{
		SType:       vulkan.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       vulkan.BufferUsageFlags(vulkan.BufferUsageTransferSrcBit),
		SharingMode: vulkan.SharingModeExclusive,
	}
	var stage vulkan.Buffer
	if res := vulkan.CreateBuffer(dev.dev, &bufInfo, nil, &stage); res != vulkan.Success {
		return result(res)
	}
	defer vulkan.DestroyBuffer(dev.dev, stage, nil)
	var req vulkan.MemoryRequirements
	vulkan.GetBufferMemoryRequirements(dev.dev, stage, &req)
	stageMem, res := d.allocate(dev, req, native.MemoryHostVisible|native.MemoryHostCoherent)
	if res != native.Success {
		return res
	}
	defer vulkan.FreeMemory(dev.dev, stageMem, nil)
	if res := vulkan.BindBufferMemory(dev.dev, stage, stageMem, 0); res != vulkan.Success {
		return result(res)
	}
	if res := mapCopy(dev.dev, stageMem, 0, pixels); res != native.Success {
		return res
	}

	allocInfo := vulkan.CommandBufferAllocateInfo{
		SType:              vulkan.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p,
		Level:              vulkan.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	cbs := make([]vulkan.CommandBuffer, 1)
	if res := vulkan.AllocateCommandBuffers(dev.dev, &allocInfo, cbs); res != vulkan.Success {
		return result(res)
	}
	defer vulkan.FreeCommandBuffers(dev.dev, p, 1, cbs)
	cmd := cbs[0]

	beginInfo := vulkan.CommandBufferBeginInfo{
		SType: vulkan.StructureTypeCommandBufferBeginInfo,
		Flags: vulkan.CommandBufferUsageFlags(vulkan.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vulkan.BeginCommandBuffer(cmd, &beginInfo); res != vulkan.Success {
		return result(res)
	}
	transition(cmd, img.img, vulkan.ImageLayoutUndefined, vulkan.ImageLayoutTransferDstOptimal)
	region := vulkan.BufferImageCopy{
		ImageSubresource: vulkan.ImageSubresourceLayers{
			AspectMask: vulkan.ImageAspectFlags(vulkan.ImageAspectColorBit),
			LayerCount: 1,
		},
		ImageExtent: vulkan.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
	}
	vulkan.CmdCopyBufferToImage(cmd, stage, img.img, vulkan.ImageLayoutTransferDstOptimal, 1, []vulkan.BufferImageCopy{region})
	transition(cmd, img.img, vulkan.ImageLayoutTransferDstOptimal, vulkan.ImageLayoutShaderReadOnlyOptimal)
	if res := vulkan.EndCommandBuffer(cmd); res != vulkan.Success {
		return result(res)
	}

	submit := vulkan.SubmitInfo{
		SType:              vulkan.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    cbs,
	}
	if res := vulkan.QueueSubmit(q.queue, 1, []vulkan.SubmitInfo{submit}, vulkan.Fence(vulkan.NullHandle)); res != vulkan.Success {
		return result(res)
	}
	return result(vulkan.QueueWaitIdle(q.queue))
}

// transition records a layout barrier for the two layout changes an
// upload needs.
func transition(cmd vulkan.CommandBuffer, img vulkan.Image, from, to vulkan.ImageLayout) {
	barrier := vulkan.ImageMemoryBarrier{
		SType:               vulkan.StructureTypeImageMemoryBarrier,
		OldLayout:           from,
		NewLayout:           to,
		SrcQueueFamilyIndex: vulkan.QueueFamilyIgnored,
		DstQueueFamilyIndex: vulkan.QueueFamilyIgnored,
		Image:               img,
		SubresourceRange: vulkan.ImageSubresourceRange{
			AspectMask: vulkan.ImageAspectFlags(vulkan.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	var src, dst vulkan.PipelineStageFlags
	if from == vulkan.ImageLayoutUndefined {
		barrier.DstAccessMask = vulkan.AccessFlags(vulkan.AccessTransferWriteBit)
		src = vulkan.PipelineStageFlags(vulkan.PipelineStageTopOfPipeBit)
		dst = vulkan.PipelineStageFlags(vulkan.PipelineStageTransferBit)
	} else {
		barrier.SrcAccessMask = vulkan.AccessFlags(vulkan.AccessTransferWriteBit)
		barrier.DstAccessMask = vulkan.AccessFlags(vulkan.AccessShaderReadBit)
		src = vulkan.PipelineStageFlags(vulkan.PipelineStageTransferBit)
		dst = vulkan.PipelineStageFlags(vulkan.PipelineStageFragmentShaderBit)
	}
	vulkan.CmdPipelineBarrier(cmd, src, dst, 0, 0, nil, 0, nil, 1, []vulkan.ImageMemoryBarrier{barrier})
}
