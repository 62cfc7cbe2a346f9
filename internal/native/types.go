package native

// Handle is an opaque reference to an object owned by the native graphics
// API or the windowing system.
type Handle uint64

// NullHandle is the invalid handle.
const NullHandle Handle = 0

// Valid reports whether h is not NullHandle.
func (h Handle) Valid() bool { return h != NullHandle }

type Extent struct {
	Width  uint32
	Height uint32
}

// Empty reports whether either dimension is zero, as with a minimised window.
func (e Extent) Empty() bool { return e.Width == 0 || e.Height == 0 }

type Format int32

const (
	FormatUndefined     Format = 0
	FormatR8G8B8A8Unorm Format = 37
	FormatR8G8B8A8Srgb  Format = 43
	FormatB8G8R8A8Unorm Format = 44
	FormatB8G8R8A8Srgb  Format = 50
	FormatD32Sfloat     Format = 126
	FormatD24UnormS8    Format = 129
)

type ColorSpace int32

const ColorSpaceSrgbNonlinear ColorSpace = 0

type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

type PresentMode int32

const (
	PresentModeImmediate   PresentMode = 0
	PresentModeMailbox     PresentMode = 1
	PresentModeFifo        PresentMode = 2
	PresentModeFifoRelaxed PresentMode = 3
)

type DeviceType int32

const (
	DeviceTypeOther DeviceType = iota
	DeviceTypeIntegrated
	DeviceTypeDiscrete
	DeviceTypeVirtual
	DeviceTypeCPU
)

// SwapchainExtension is the device extension every presenting device needs.
const SwapchainExtension = "VK_KHR_swapchain"

type InstanceInfo struct {
	AppName    string
	Extensions []string
	Layers     []string
	// DebugReport routes validation messages through Logf when set.
	DebugReport bool
	Logf        func(format string, args ...any)
}

type PhysicalDeviceInfo struct {
	Name       string
	Type       DeviceType
	Extensions []string
}

type QueueFamily struct {
	Graphics bool
	Present  bool
	Count    uint32
}

type SurfaceCapabilities struct {
	MinImageCount    uint32
	MaxImageCount    uint32 // zero means unbounded
	CurrentExtent    Extent // Width == MaxUint32 means "pick one"
	MinExtent        Extent
	MaxExtent        Extent
	CurrentTransform uint32
}

type SurfaceSupport struct {
	Capabilities SurfaceCapabilities
	Formats      []SurfaceFormat
	PresentModes []PresentMode
}

type DeviceInfo struct {
	QueueFamilies []uint32
	Extensions    []string
	Layers        []string
}

type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 0x01
	BufferUsageTransferDst BufferUsage = 0x02
	BufferUsageUniform     BufferUsage = 0x10
	BufferUsageStorage     BufferUsage = 0x20
	BufferUsageIndex       BufferUsage = 0x40
	BufferUsageVertex      BufferUsage = 0x80
)

type MemoryProperty uint32

const (
	MemoryDeviceLocal  MemoryProperty = 0x1
	MemoryHostVisible  MemoryProperty = 0x2
	MemoryHostCoherent MemoryProperty = 0x4
)

type BufferInfo struct {
	Size  uint64
	Usage BufferUsage
}

type ImageTiling int32

const (
	ImageTilingOptimal ImageTiling = 0
	ImageTilingLinear  ImageTiling = 1
)

type ImageUsage uint32

const (
	ImageUsageTransferSrc     ImageUsage = 0x01
	ImageUsageTransferDst     ImageUsage = 0x02
	ImageUsageSampled         ImageUsage = 0x04
	ImageUsageStorage         ImageUsage = 0x08
	ImageUsageColorAttachment ImageUsage = 0x10
	ImageUsageDepthStencil    ImageUsage = 0x20
)

type ImageInfo struct {
	Extent      Extent
	Format      Format
	Tiling      ImageTiling
	Usage       ImageUsage
	ArrayLayers uint32
	MipLevels   uint32
}

type ImageAspect uint32

const (
	ImageAspectColor ImageAspect = 0x1
	ImageAspectDepth ImageAspect = 0x2
)

type ImageViewInfo struct {
	Image      Handle
	Format     Format
	Aspect     ImageAspect
	LayerCount uint32
}

type Filter int32

const (
	FilterNearest Filter = 0
	FilterLinear  Filter = 1
)

type AddressMode int32

const (
	AddressModeRepeat      AddressMode = 0
	AddressModeClampToEdge AddressMode = 2
)

type SamplerInfo struct {
	Filter      Filter
	AddressMode AddressMode
}

type PipelineLayoutInfo struct {
	PushConstantSize uint32
}

type RenderPassInfo struct {
	ColorFormat Format
	// DepthFormat is FormatUndefined for a colour-only pass.
	DepthFormat Format
}

type FramebufferInfo struct {
	RenderPass  Handle
	Attachments []Handle
	Extent      Extent
}

type CommandPoolInfo struct {
	QueueFamily         uint32
	ResetCommandBuffers bool
}

type SwapchainInfo struct {
	Surface       Handle
	MinImageCount uint32
	Format        SurfaceFormat
	Extent        Extent
	PresentMode   PresentMode
	Transform     uint32
	QueueFamilies []uint32
	Old           Handle
}

// ClearPass describes a render pass instance that only clears its colour
// attachment.
type ClearPass struct {
	RenderPass  Handle
	Framebuffer Handle
	Extent      Extent
	Color       [4]float32
}

type SubmitInfo struct {
	Wait           []Handle
	CommandBuffers []Handle
	Signal         []Handle
	Fence          Handle
}

type PresentInfo struct {
	Wait       []Handle
	Swapchain  Handle
	ImageIndex uint32
}
