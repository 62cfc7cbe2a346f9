package vkdriver

import (
	"sync"
	"time"

	"github.com/vulkan-go/vulkan"

	"github.com/hellhand/kube/internal/native"
)

func (d *Driver) CreateFence(device native.Handle, signaled bool) (native.Handle, native.Result) {
	dev, ok := d.device(device)
	if !ok {
		return native.NullHandle, native.ErrorDeviceLost
	}
	fenceInfo := vulkan.FenceCreateInfo{
		SType: vulkan.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fenceInfo.Flags = vulkan.FenceCreateFlags(vulkan.FenceCreateSignaledBit)
	}
	var fence vulkan.Fence
	if res := vulkan.CreateFence(dev.dev, &fenceInfo, nil, &fence); res != vulkan.Success {
		return native.NullHandle, result(res)
	}
	return d.register(fence), native.Success
}

func (d *Driver) DestroyFence(device, fence native.Handle) {
	dev, ok := d.device(device)
	if !ok {
		return
	}
	if f, ok := take[vulkan.Fence](d, fence); ok {
		vulkan.DestroyFence(dev.dev, f, nil)
	}
}

func (d *Driver) WaitFences(device native.Handle, fences []native.Handle, t time.Duration) native.Result {
	dev, ok := d.device(device)
	if !ok {
		return native.ErrorDeviceLost
	}
	fs := handles[vulkan.Fence](d, fences)
	if len(fs) == 0 {
		return native.Success
	}
	return result(vulkan.WaitForFences(dev.dev, uint32(len(fs)), fs, vulkan.True, timeout(t)))
}

func (d *Driver) ResetFences(device native.Handle, fences []native.Handle) native.Result {
	dev, ok := d.device(device)
	if !ok {
		return native.ErrorDeviceLost
	}
	fs := handles[vulkan.Fence](d, fences)
	if len(fs) == 0 {
		return native.Success
	}
	return result(vulkan.ResetFences(dev.dev, uint32(len(fs)), fs))
}

func (d *Driver) FenceStatus(device, fence native.Handle) native.Result {
	dev, ok := d.device(device)
	if !ok {
		return native.ErrorDeviceLost
	}
	f, ok := lookup[vulkan.Fence](d, fence)
	if !ok {
		return native.ErrorDeviceLost
	}
	return result(vulkan.GetFenceStatus(dev.dev, f))
}

func (d *Driver) CreateSemaphore(device native.Handle) (native.Handle, native.Result) {
	dev, ok := d.device(device)
	if !ok {
		return native.NullHandle, native.ErrorDeviceLost
	}
	semaphoreInfo := vulkan.SemaphoreCreateInfo{
		SType: vulkan.StructureTypeSemaphoreCreateInfo,
	}
	var sem vulkan.Semaphore
	if res := vulkan.CreateSemaphore(dev.dev, &semaphoreInfo, nil, &sem); res != vulkan.Success {
		return native.NullHandle, result(res)
	}
	return d.register(sem), native.Success
}

// timelineObj is a host-side timeline semaphore. The bindings target
// Vulkan 1.0, so counters are never visible to the GPU; they order host
// threads only.
type timelineObj struct {
	mu      sync.Mutex
	value   uint64
	changed chan struct{}
}

func newTimeline(initial uint64) *timelineObj {
	return &timelineObj{value: initial, changed: make(chan struct{})}
}

func (t *timelineObj) load() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value
}

// signal stores value and wakes waiters. value must exceed the current
// counter.
func (t *timelineObj) signal(value uint64) native.Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	if value <= t.value {
		return native.ErrorUnknown
	}
	t.value = value
	close(t.changed)
	t.changed = make(chan struct{})
	return native.Success
}

func (t *timelineObj) wait(value uint64, d time.Duration) native.Result {
	var deadline <-chan time.Time
	if d >= 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		deadline = timer.C
	}
	for {
		t.mu.Lock()
		if t.value >= value {
			t.mu.Unlock()
			return native.Success
		}
		changed := t.changed
		t.mu.Unlock()
		select {
		case <-changed:
		case <-deadline:
			if t.load() >= value {
				return native.Success
			}
			return native.Timeout
		}
	}
}

func (d *Driver) CreateTimelineSemaphore(device native.Handle, initial uint64) (native.Handle, native.Result) {
	if _, ok := d.device(device); !ok {
		return native.NullHandle, native.ErrorDeviceLost
	}
	return d.register(newTimeline(initial)), native.Success
}

func (d *Driver) DestroySemaphore(device, semaphore native.Handle) {
	if _, ok := take[*timelineObj](d, semaphore); ok {
		return
	}
	dev, ok := d.device(device)
	if !ok {
		return
	}
	if s, ok := take[vulkan.Semaphore](d, semaphore); ok {
		vulkan.DestroySemaphore(dev.dev, s, nil)
	}
}

func (d *Driver) SemaphoreValue(device, semaphore native.Handle) (uint64, native.Result) {
	t, ok := lookup[*timelineObj](d, semaphore)
	if !ok {
		return 0, native.ErrorDeviceLost
	}
	return t.load(), native.Success
}

func (d *Driver) SignalSemaphore(device, semaphore native.Handle, value uint64) native.Result {
	t, ok := lookup[*timelineObj](d, semaphore)
	if !ok {
		return native.ErrorDeviceLost
	}
	return t.signal(value)
}

func (d *Driver) WaitSemaphore(device, semaphore native.Handle, value uint64, t time.Duration) native.Result {
	tl, ok := lookup[*timelineObj](d, semaphore)
	if !ok {
		return native.ErrorDeviceLost
	}
	return tl.wait(value, t)
}
