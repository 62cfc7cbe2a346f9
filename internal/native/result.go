package native

import "fmt"

// Result mirrors the native API status codes. Negative values are errors,
// zero is success and positive values are non-error statuses such as
// Timeout or Suboptimal.
type Result int32

const (
	Success    Result = 0
	NotReady   Result = 1
	Timeout    Result = 2
	Incomplete Result = 5
	Suboptimal Result = 1000001003

	ErrorOutOfHostMemory      Result = -1
	ErrorOutOfDeviceMemory    Result = -2
	ErrorInitializationFailed Result = -3
	ErrorDeviceLost           Result = -4
	ErrorMemoryMapFailed      Result = -5
	ErrorLayerNotPresent      Result = -6
	ErrorExtensionNotPresent  Result = -7
	ErrorFeatureNotPresent    Result = -8
	ErrorIncompatibleDriver   Result = -9
	ErrorTooManyObjects       Result = -10
	ErrorFormatNotSupported   Result = -11
	ErrorUnknown              Result = -13
	ErrorSurfaceLost          Result = -1000000000
	ErrorNativeWindowInUse    Result = -1000000001
	ErrorOutOfDate            Result = -1000001004
)

var resultNames = map[Result]string{
	Success:                   "success",
	NotReady:                  "not ready",
	Timeout:                   "timeout",
	Incomplete:                "incomplete",
	Suboptimal:                "suboptimal",
	ErrorOutOfHostMemory:      "out of host memory",
	ErrorOutOfDeviceMemory:    "out of device memory",
	ErrorInitializationFailed: "initialization failed",
	ErrorDeviceLost:           "device lost",
	ErrorMemoryMapFailed:      "memory map failed",
	ErrorLayerNotPresent:      "layer not present",
	ErrorExtensionNotPresent:  "extension not present",
	ErrorFeatureNotPresent:    "feature not present",
	ErrorIncompatibleDriver:   "incompatible driver",
	ErrorTooManyObjects:       "too many objects",
	ErrorFormatNotSupported:   "format not supported",
	ErrorUnknown:              "unknown error",
	ErrorSurfaceLost:          "surface lost",
	ErrorNativeWindowInUse:    "native window in use",
	ErrorOutOfDate:            "swapchain out of date",
}

// Error implements error so a Result can be wrapped directly.
func (r Result) Error() string {
	if name, ok := resultNames[r]; ok {
		return fmt.Sprintf("vk: %s (%d)", name, int32(r))
	}
	return fmt.Sprintf("vk: result %d", int32(r))
}

// Failed reports whether r is anything other than Success.
// Suboptimal and Timeout count as failures; callers that accept them check
// for them first.
func (r Result) Failed() bool { return r != Success }
