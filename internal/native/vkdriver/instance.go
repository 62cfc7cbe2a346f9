package vkdriver

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vulkan-go/vulkan"

	"github.com/hellhand/kube/internal/native"
)

type instanceObj struct {
	inst  vulkan.Instance
	debug vulkan.DebugReportCallback
	// physical lists the handles EnumeratePhysicalDevices registered.
	physical []native.Handle
}

type physicalObj struct {
	dev vulkan.PhysicalDevice
}

func (d *Driver) CreateInstance(info native.InstanceInfo) (native.Handle, native.Result) {
	appInfo := vulkan.ApplicationInfo{
		SType:              vulkan.StructureTypeApplicationInfo,
		PApplicationName:   cstr(info.AppName),
		ApplicationVersion: vulkan.MakeVersion(0, 1, 0),
		PEngineName:        cstr("Kube"),
		EngineVersion:      vulkan.MakeVersion(0, 1, 0),
		ApiVersion:         vulkan.MakeVersion(1, 1, 0),
	}
	extensions := cstrs(info.Extensions)
	layers := cstrs(info.Layers)
	createInfo := vulkan.InstanceCreateInfo{
		SType:                   vulkan.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}

	var inst vulkan.Instance
	if res := vulkan.CreateInstance(&createInfo, nil, &inst); res != vulkan.Success {
		return native.NullHandle, result(res)
	}
	if err := vulkan.InitInstance(inst); err != nil {
		d.log.WithError(err).Error("init instance")
		vulkan.DestroyInstance(inst, nil)
		return native.NullHandle, native.ErrorInitializationFailed
	}
	obj := &instanceObj{inst: inst}
	if info.DebugReport {
		logf := info.Logf
		if logf == nil {
			logf = d.log.Warnf
		}
		cbInfo := vulkan.DebugReportCallbackCreateInfo{
			SType: vulkan.StructureTypeDebugReportCallbackCreateInfo,
			Flags: vulkan.DebugReportFlags(
				vulkan.DebugReportErrorBit |
					vulkan.DebugReportWarningBit |
					vulkan.DebugReportPerformanceWarningBit),
			PfnCallback: func(flags vulkan.DebugReportFlags, objectType vulkan.DebugReportObjectType, object uint64, location uint, messageCode int32, layerPrefix string, message string, userData unsafe.Pointer) vulkan.Bool32 {
				logf("[%s][0x%x] %s (code=%d)", layerPrefix, flags, message, messageCode)
				return vulkan.False
			},
		}
		if res := vulkan.CreateDebugReportCallback(inst, &cbInfo, nil, &obj.debug); res != vulkan.Success {
			vulkan.DestroyInstance(inst, nil)
			return native.NullHandle, result(res)
		}
	}
	return d.register(obj), native.Success
}

func (d *Driver) DestroyInstance(instance native.Handle) {
	obj, ok := take[*instanceObj](d, instance)
	if !ok {
		return
	}
	for _, p := range obj.physical {
		d.forget(p)
	}
	if obj.debug != vulkan.DebugReportCallback(vulkan.NullHandle) {
		vulkan.DestroyDebugReportCallback(obj.inst, obj.debug, nil)
	}
	vulkan.DestroyInstance(obj.inst, nil)
}

// Instance returns the Vulkan instance behind h for windowing code that
// creates surfaces itself.
func (d *Driver) Instance(h native.Handle) (vulkan.Instance, error) {
	obj, ok := lookup[*instanceObj](d, h)
	if !ok {
		return nil, errors.Newf("unknown instance handle %d", h)
	}
	return obj.inst, nil
}

// AdoptSurface takes ownership of a surface created outside the driver,
// such as by glfw.Window.CreateWindowSurface.
func (d *Driver) AdoptSurface(ptr uintptr) native.Handle {
	return d.register(vulkan.SurfaceFromPointer(ptr))
}

func (d *Driver) DestroySurface(instance, surface native.Handle) {
	inst, ok := lookup[*instanceObj](d, instance)
	if !ok {
		return
	}
	if s, ok := take[vulkan.Surface](d, surface); ok {
		vulkan.DestroySurface(inst.inst, s, nil)
	}
}

func (d *Driver) EnumeratePhysicalDevices(instance native.Handle) ([]native.Handle, native.Result) {
	obj, ok := lookup[*instanceObj](d, instance)
	if !ok {
		return nil, native.ErrorInitializationFailed
	}
	var count uint32
	if res := vulkan.EnumeratePhysicalDevices(obj.inst, &count, nil); res != vulkan.Success {
		return nil, result(res)
	}
	devices := make([]vulkan.PhysicalDevice, count)
	if res := vulkan.EnumeratePhysicalDevices(obj.inst, &count, devices); res != vulkan.Success {
		return nil, result(res)
	}
	out := make([]native.Handle, 0, count)
	for _, dev := range devices[:count] {
		h := d.register(&physicalObj{dev: dev})
		out = append(out, h)
	}
	d.mu.Lock()
	obj.physical = append(obj.physical, out...)
	d.mu.Unlock()
	return out, native.Success
}

func (d *Driver) PhysicalDeviceInfo(physical native.Handle) native.PhysicalDeviceInfo {
	p, ok := lookup[*physicalObj](d, physical)
	if !ok {
		return native.PhysicalDeviceInfo{}
	}
	var props vulkan.PhysicalDeviceProperties
	vulkan.GetPhysicalDeviceProperties(p.dev, &props)
	props.Deref()
	return native.PhysicalDeviceInfo{
		Name:       vulkan.ToString(props.DeviceName[:]),
		Type:       native.DeviceType(props.DeviceType),
		Extensions: deviceExtensions(p.dev),
	}
}

func deviceExtensions(dev vulkan.PhysicalDevice) []string {
	var count uint32
	if res := vulkan.EnumerateDeviceExtensionProperties(dev, "", &count, nil); res != vulkan.Success {
		return nil
	}
	props := make([]vulkan.ExtensionProperties, count)
	if res := vulkan.EnumerateDeviceExtensionProperties(dev, "", &count, props); res != vulkan.Success {
		return nil
	}
	out := make([]string, 0, count)
	for i := range props[:count] {
		props[i].Deref()
		out = append(out, vulkan.ToString(props[i].ExtensionName[:]))
	}
	return out
}

func (d *Driver) QueueFamilies(physical, surface native.Handle) []native.QueueFamily {
	p, ok := lookup[*physicalObj](d, physical)
	if !ok {
		return nil
	}
	s, hasSurface := lookup[vulkan.Surface](d, surface)

	var count uint32
	vulkan.GetPhysicalDeviceQueueFamilyProperties(p.dev, &count, nil)
	props := make([]vulkan.QueueFamilyProperties, count)
	vulkan.GetPhysicalDeviceQueueFamilyProperties(p.dev, &count, props)

	out := make([]native.QueueFamily, count)
	for i := range props[:count] {
		props[i].Deref()
		out[i] = native.QueueFamily{
			Graphics: props[i].QueueFlags&vulkan.QueueFlags(vulkan.QueueGraphicsBit) != 0,
			Count:    props[i].QueueCount,
		}
		if hasSurface {
			var present vulkan.Bool32
			vulkan.GetPhysicalDeviceSurfaceSupport(p.dev, uint32(i), s, &present)
			out[i].Present = present == vulkan.True
		}
	}
	return out
}

func (d *Driver) SurfaceSupport(physical, surface native.Handle) (native.SurfaceSupport, native.Result) {
	p, ok := lookup[*physicalObj](d, physical)
	if !ok {
		return native.SurfaceSupport{}, native.ErrorInitializationFailed
	}
	s, ok := lookup[vulkan.Surface](d, surface)
	if !ok {
		return native.SurfaceSupport{}, native.ErrorSurfaceLost
	}

	var caps vulkan.SurfaceCapabilities
	if res := vulkan.GetPhysicalDeviceSurfaceCapabilities(p.dev, s, &caps); res != vulkan.Success {
		return native.SurfaceSupport{}, result(res)
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	support := native.SurfaceSupport{
		Capabilities: native.SurfaceCapabilities{
			MinImageCount:    caps.MinImageCount,
			MaxImageCount:    caps.MaxImageCount,
			CurrentExtent:    native.Extent{Width: caps.CurrentExtent.Width, Height: caps.CurrentExtent.Height},
			MinExtent:        native.Extent{Width: caps.MinImageExtent.Width, Height: caps.MinImageExtent.Height},
			MaxExtent:        native.Extent{Width: caps.MaxImageExtent.Width, Height: caps.MaxImageExtent.Height},
			CurrentTransform: uint32(caps.CurrentTransform),
		},
	}

	var formatCount uint32
	vulkan.GetPhysicalDeviceSurfaceFormats(p.dev, s, &formatCount, nil)
	if formatCount > 0 {
		formats := make([]vulkan.SurfaceFormat, formatCount)
		vulkan.GetPhysicalDeviceSurfaceFormats(p.dev, s, &formatCount, formats)
		for i := range formats[:formatCount] {
			formats[i].Deref()
			support.Formats = append(support.Formats, native.SurfaceFormat{
				Format:     native.Format(formats[i].Format),
				ColorSpace: native.ColorSpace(formats[i].ColorSpace),
			})
		}
	}

	var modeCount uint32
	vulkan.GetPhysicalDeviceSurfacePresentModes(p.dev, s, &modeCount, nil)
	if modeCount > 0 {
		modes := make([]vulkan.PresentMode, modeCount)
		vulkan.GetPhysicalDeviceSurfacePresentModes(p.dev, s, &modeCount, modes)
		for _, m := range modes[:modeCount] {
			support.PresentModes = append(support.PresentModes, native.PresentMode(m))
		}
	}
	return support, native.Success
}
