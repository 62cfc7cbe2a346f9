package gpu_test

import (
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/hellhand/kube/internal/errs"
	"github.com/hellhand/kube/internal/gpu"
	"github.com/hellhand/kube/internal/native"
	"github.com/hellhand/kube/internal/native/headless"
)

type rig struct {
	driver   *headless.Driver
	window   *headless.Window
	instance *gpu.Instance
	surface  *gpu.Surface
	physical *gpu.PhysicalDevice
	device   *gpu.Device
}

func newRig(t *testing.T, opts ...headless.Option) *rig {
	t.Helper()
	r := &rig{driver: headless.New(opts...)}
	var err error
	if r.window, err = r.driver.NewWindow("test", 640, 480); err != nil {
		t.Fatal(err)
	}
	if r.instance, err = gpu.Create[gpu.Instance](gpu.InstanceArgs{Driver: r.driver, AppName: "test"}); err != nil {
		t.Fatalf("instance: %v", err)
	}
	if r.surface, err = gpu.Create[gpu.Surface](gpu.SurfaceArgs{Instance: r.instance, Source: r.window}); err != nil {
		t.Fatalf("surface: %v", err)
	}
	var families gpu.QueueFamilies
	if r.physical, families, err = gpu.SelectPhysicalDevice(r.instance, r.surface); err != nil {
		t.Fatalf("select: %v", err)
	}
	if r.device, err = gpu.Create[gpu.Device](gpu.DeviceArgs{Physical: r.physical, Families: families}); err != nil {
		t.Fatalf("device: %v", err)
	}
	return r
}

// teardown drops the root objects first; children must keep them alive.
func (r *rig) teardown() {
	r.instance.Destroy()
	r.physical.Destroy()
	r.surface.Destroy()
	r.device.Destroy()
}

func (r *rig) assertClean(t *testing.T) {
	t.Helper()
	if v := r.driver.Violations(); len(v) > 0 {
		t.Errorf("ordering violations: %q", v)
	}
	if n := r.driver.Live(); n != 0 {
		t.Errorf("Live() = %d, want 0: %v", n, r.driver.LiveKinds())
	}
}

// ============================================================================
// Ownership
// ============================================================================

func TestOwnership_ParentsOutliveChildren(t *testing.T) {
	r := newRig(t)

	buf, err := gpu.Create[gpu.Buffer](gpu.BufferArgs{Device: r.device, Size: 256, Usage: native.BufferUsageUniform})
	if err != nil {
		t.Fatalf("buffer: %v", err)
	}
	tex, err := gpu.Create[gpu.Texture](gpu.TextureArgs{
		Device: r.device,
		Extent: native.Extent{Width: 4, Height: 4},
		Format: native.FormatR8G8B8A8Srgb,
	})
	if err != nil {
		t.Fatalf("texture: %v", err)
	}
	if err := tex.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	fence, err := gpu.Create[gpu.Fence](gpu.FenceArgs{Device: r.device, Signaled: true})
	if err != nil {
		t.Fatalf("fence: %v", err)
	}
	sc, err := gpu.Create[gpu.Swapchain](gpu.SwapchainArgs{
		Device:      r.device,
		Surface:     r.surface,
		Framebuffer: native.Extent{Width: 640, Height: 480},
	})
	if err != nil {
		t.Fatalf("swapchain: %v", err)
	}
	pass, err := gpu.Create[gpu.RenderPass](gpu.RenderPassArgs{Device: r.device, ColorFormat: sc.Format().Format})
	if err != nil {
		t.Fatalf("render pass: %v", err)
	}
	if err := sc.AttachFramebuffers(pass); err != nil {
		t.Fatalf("framebuffers: %v", err)
	}
	shader, err := gpu.Create[gpu.ShaderModule](gpu.ShaderModuleArgs{Device: r.device, Code: make([]byte, 16)})
	if err != nil {
		t.Fatalf("shader module: %v", err)
	}
	layout, err := gpu.Create[gpu.PipelineLayout](gpu.PipelineLayoutArgs{Device: r.device, PushConstantSize: 64})
	if err != nil {
		t.Fatalf("pipeline layout: %v", err)
	}

	r.teardown()
	if !r.device.Alive() || !r.instance.Alive() {
		t.Fatal("device and instance must stay alive while children exist")
	}
	pass.Destroy()
	if !pass.Alive() {
		t.Error("render pass must stay alive while framebuffers reference it")
	}
	sc.Destroy()
	layout.Destroy()
	shader.Destroy()
	fence.Destroy()
	tex.Destroy()
	buf.Destroy()

	if r.device.Alive() || r.instance.Alive() {
		t.Error("roots should be destroyed once the last child is gone")
	}
	r.assertClean(t)
}

func TestOwnership_StrongReleaseIsIdempotent(t *testing.T) {
	r := newRig(t)
	fence, err := gpu.Create[gpu.Fence](gpu.FenceArgs{Device: r.device})
	if err != nil {
		t.Fatal(err)
	}
	ref, err := gpu.Retain(fence)
	if err != nil {
		t.Fatal(err)
	}
	moved := ref.Move()
	if ref.Valid() || !moved.Valid() {
		t.Fatal("Move should transfer the reference")
	}
	ref.Release()

	fence.Destroy()
	fence.Destroy()
	if !fence.Alive() {
		t.Fatal("moved reference should keep the fence alive")
	}
	moved.Release()
	moved.Release()
	if fence.Alive() {
		t.Error("fence should be destroyed after the last release")
	}
	if _, err := gpu.Retain(fence); !errors.Is(err, errs.ErrExpired) {
		t.Errorf("Retain(destroyed) = %v, want ErrExpired", err)
	}

	r.teardown()
	r.assertClean(t)
}

func TestOwnership_WeakExpires(t *testing.T) {
	r := newRig(t)
	weak := gpu.Downgrade(r.physical)
	fence, err := gpu.Create[gpu.Fence](gpu.FenceArgs{Device: r.device})
	if err != nil {
		t.Fatal(err)
	}

	r.teardown()
	if weak.Expired() {
		t.Fatal("device keeps the physical device alive")
	}
	strong, err := weak.Lock()
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	strong.Release()

	// The fence is the last holder of the device.
	fence.Destroy()
	if !weak.Expired() {
		t.Error("weak reference should expire with the last strong reference")
	}
	_, err = weak.Lock()
	if !errors.Is(err, errs.ErrExpired) || errs.KindOf(err) != errs.KindNotFound {
		t.Errorf("Lock = %v, want expired not-found", err)
	}
	r.assertClean(t)
}

// ============================================================================
// Construction failure
// ============================================================================

func TestCreate_FailureIsInert(t *testing.T) {
	tests := []struct {
		op   string
		res  native.Result
		make func(*rig) error
	}{
		{"CreateBuffer", native.ErrorOutOfDeviceMemory, func(r *rig) error {
			b, err := gpu.Create[gpu.Buffer](gpu.BufferArgs{Device: r.device, Size: 64})
			if b != nil {
				return errors.New("buffer returned on failure")
			}
			return err
		}},
		{"AllocateBufferMemory", native.ErrorOutOfHostMemory, func(r *rig) error {
			_, err := gpu.Create[gpu.Buffer](gpu.BufferArgs{Device: r.device, Size: 64})
			return err
		}},
		{"AllocateImageMemory", native.ErrorOutOfDeviceMemory, func(r *rig) error {
			_, err := gpu.Create[gpu.Texture](gpu.TextureArgs{
				Device: r.device,
				Extent: native.Extent{Width: 2, Height: 2},
				Format: native.FormatR8G8B8A8Unorm,
			})
			return err
		}},
		{"CreateImageView", native.ErrorOutOfHostMemory, func(r *rig) error {
			_, err := gpu.Create[gpu.Swapchain](gpu.SwapchainArgs{Device: r.device, Surface: r.surface})
			return err
		}},
		{"CreateFence", native.ErrorDeviceLost, func(r *rig) error {
			_, err := gpu.Create[gpu.Fence](gpu.FenceArgs{Device: r.device})
			return err
		}},
		{"CreateShaderModule", native.ErrorOutOfHostMemory, func(r *rig) error {
			m, err := gpu.Create[gpu.ShaderModule](gpu.ShaderModuleArgs{Device: r.device, Code: make([]byte, 8)})
			if m != nil {
				return errors.New("shader module returned on failure")
			}
			return err
		}},
		{"CreatePipelineLayout", native.ErrorOutOfDeviceMemory, func(r *rig) error {
			l, err := gpu.Create[gpu.PipelineLayout](gpu.PipelineLayoutArgs{Device: r.device})
			if l != nil {
				return errors.New("pipeline layout returned on failure")
			}
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			r := newRig(t)
			r.driver.FailNext(tt.op, tt.res)
			err := tt.make(r)
			if errs.KindOf(err) != errs.KindNative {
				t.Fatalf("err = %v, want native kind", err)
			}
			if res, ok := errs.Result(err); !ok || res != tt.res {
				t.Errorf("Result = %v, want %v", res, tt.res)
			}
			r.teardown()
			r.assertClean(t)
		})
	}
}

func TestCreate_SurfaceFailureIsWindowing(t *testing.T) {
	r := newRig(t)
	r.window.FailSurface(errors.New("no display"))
	s, err := gpu.Create[gpu.Surface](gpu.SurfaceArgs{Instance: r.instance, Source: r.window})
	if s != nil || errs.KindOf(err) != errs.KindWindowing {
		t.Fatalf("Create = %v, %v; want windowing error", s, err)
	}
	r.teardown()
	r.assertClean(t)
}

// ============================================================================
// Device selection
// ============================================================================

func TestSelectPhysicalDevice(t *testing.T) {
	integrated := headless.DefaultDevice()
	integrated.Name = "integrated"
	integrated.Type = native.DeviceTypeIntegrated

	discrete := headless.DefaultDevice()
	discrete.Name = "discrete"

	computeOnly := headless.DefaultDevice()
	computeOnly.Name = "compute"
	computeOnly.Families = []native.QueueFamily{{Graphics: true, Count: 1}}

	noSwapchain := headless.DefaultDevice()
	noSwapchain.Name = "offscreen"
	noSwapchain.Extensions = nil

	r := newRig(t, headless.WithDevices(integrated, computeOnly, discrete, noSwapchain))
	if got := r.physical.Info().Name; got != "discrete" {
		t.Errorf("selected %q, want discrete", got)
	}
	fam := r.device.Families()
	if !fam.Complete() || len(fam.Unique()) != 1 {
		t.Errorf("families = %+v", fam)
	}
	if r.device.GraphicsQueue() != r.device.PresentQueue() {
		t.Error("shared family should share one queue")
	}
	r.teardown()
	r.assertClean(t)
}

func TestCommandPool_ExpiredPhysicalDevice(t *testing.T) {
	second := headless.DefaultDevice()
	second.Name = "second"
	r := newRig(t, headless.WithDevices(headless.DefaultDevice(), second))

	devices, err := r.instance.PhysicalDevices()
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range devices {
		d.Destroy()
	}
	_, err = gpu.Create[gpu.CommandPool](gpu.CommandPoolArgs{Device: r.device, Physical: devices[1]})
	if !errors.Is(err, errs.ErrExpired) {
		t.Errorf("err = %v, want ErrExpired", err)
	}

	pool, err := gpu.Create[gpu.CommandPool](gpu.CommandPoolArgs{Device: r.device})
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	bufs, err := pool.Allocate(2)
	if err != nil || len(bufs) != 2 {
		t.Fatalf("Allocate = %v, %v", bufs, err)
	}
	pool.Free(bufs[:1])
	pool.Destroy()
	r.teardown()
	r.assertClean(t)
}

// ============================================================================
// Synchronisation
// ============================================================================

func TestFence(t *testing.T) {
	r := newRig(t)
	unsignalled, err := gpu.Create[gpu.Fence](gpu.FenceArgs{Device: r.device})
	if err != nil {
		t.Fatal(err)
	}
	signalled, err := gpu.Create[gpu.Fence](gpu.FenceArgs{Device: r.device, Signaled: true})
	if err != nil {
		t.Fatal(err)
	}

	if err := unsignalled.Wait(0); !errs.IsTimeout(err) {
		t.Errorf("Wait(0) on unsignalled fence = %v, want timeout", err)
	}
	if err := signalled.Wait(0); err != nil {
		t.Errorf("Wait(0) on signalled fence = %v", err)
	}
	if err := gpu.WaitAll(0, signalled, unsignalled); !errs.IsTimeout(err) {
		t.Errorf("WaitAll = %v, want timeout", err)
	}
	if err := signalled.Reset(); err != nil {
		t.Fatal(err)
	}
	if err := signalled.Wait(0); !errs.IsTimeout(err) {
		t.Errorf("Wait(0) right after reset = %v, want timeout", err)
	}
	if ok, err := signalled.Signalled(); ok || err != nil {
		t.Errorf("Signalled after reset = %v, %v", ok, err)
	}

	unsignalled.Destroy()
	signalled.Destroy()
	r.teardown()
	r.assertClean(t)
}

func TestShaderModule_RejectsMisalignedCode(t *testing.T) {
	r := newRig(t)
	for _, n := range []int{0, 6} {
		m, err := gpu.Create[gpu.ShaderModule](gpu.ShaderModuleArgs{Device: r.device, Code: make([]byte, n)})
		if m != nil || err == nil {
			t.Errorf("code length %d: Create = %v, %v; want error", n, m, err)
		}
	}
	r.teardown()
	r.assertClean(t)
}

func TestUseAfterDestroyIsExpired(t *testing.T) {
	r := newRig(t)
	fence, err := gpu.Create[gpu.Fence](gpu.FenceArgs{Device: r.device, Signaled: true})
	if err != nil {
		t.Fatal(err)
	}
	buf, err := gpu.Create[gpu.Buffer](gpu.BufferArgs{Device: r.device, Size: 16, Usage: native.BufferUsageUniform})
	if err != nil {
		t.Fatal(err)
	}
	fence.Destroy()
	buf.Destroy()

	if err := fence.Wait(0); !errors.Is(err, errs.ErrExpired) {
		t.Errorf("Wait = %v, want ErrExpired", err)
	}
	if err := fence.Reset(); !errors.Is(err, errs.ErrExpired) {
		t.Errorf("Reset = %v, want ErrExpired", err)
	}
	if _, err := fence.Signalled(); !errors.Is(err, errs.ErrExpired) {
		t.Errorf("Signalled = %v, want ErrExpired", err)
	}
	if err := gpu.WaitAll(0, fence); !errors.Is(err, errs.ErrExpired) {
		t.Errorf("WaitAll = %v, want ErrExpired", err)
	}
	if err := buf.Write(0, []byte{1}); !errors.Is(err, errs.ErrExpired) {
		t.Errorf("Write = %v, want ErrExpired", err)
	}

	r.teardown()
	r.assertClean(t)
}

func TestTimelineSemaphore(t *testing.T) {
	r := newRig(t)
	sem, err := gpu.Create[gpu.TimelineSemaphore](gpu.TimelineSemaphoreArgs{Device: r.device, Initial: 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := sem.Wait(3, 0); !errs.IsTimeout(err) {
		t.Errorf("Wait(3) before signal = %v, want timeout", err)
	}
	if err := sem.Signal(3); err != nil {
		t.Fatal(err)
	}
	if v, _ := sem.Value(); v != 3 {
		t.Errorf("Value() = %d, want 3", v)
	}
	if err := sem.Signal(3); err == nil {
		t.Error("non-increasing signal should be rejected")
	}
	if err := sem.Wait(2, 0); err != nil {
		t.Errorf("Wait(2) = %v", err)
	}
	sem.Destroy()
	r.teardown()
	r.assertClean(t)
}

// ============================================================================
// Textures
// ============================================================================

func TestTexture_TwoPhase(t *testing.T) {
	r := newRig(t)
	tex, err := gpu.Create[gpu.Texture](gpu.TextureArgs{
		Device: r.device,
		Extent: native.Extent{Width: 2, Height: 2},
		Format: native.FormatR8G8B8A8Srgb,
	})
	if err != nil {
		t.Fatal(err)
	}
	if tex.State() != gpu.TextureAllocated || tex.View() != nil {
		t.Fatalf("state = %v, want allocated without view", tex.State())
	}

	pool, err := gpu.Create[gpu.CommandPool](gpu.CommandPoolArgs{Device: r.device})
	if err != nil {
		t.Fatal(err)
	}
	pixels := make([]byte, 2*2*4)
	for i := range pixels {
		pixels[i] = byte(i)
	}
	if err := tex.Upload(pool, r.device.GraphicsQueue(), pixels); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if got := r.driver.Texels(tex.Handle()); string(got) != string(pixels) {
		t.Errorf("texels = %v", got)
	}
	if err := tex.Upload(pool, r.device.GraphicsQueue(), pixels[:4]); err == nil {
		t.Error("short upload should fail")
	}

	if err := tex.Initialize(); err != nil {
		t.Fatal(err)
	}
	if tex.State() != gpu.TextureReady || tex.View() == nil || tex.Sampler() == nil {
		t.Fatalf("state = %v, want ready with view and sampler", tex.State())
	}

	clone, err := tex.Clone()
	if err != nil {
		t.Fatal(err)
	}
	if clone.State() != gpu.TextureReady || clone.Extent() != tex.Extent() || clone.Handle() == tex.Handle() {
		t.Errorf("clone = %v %v", clone.State(), clone.Extent())
	}

	// A view held elsewhere keeps the image alive past Destroy.
	view, err := gpu.Retain(tex.View())
	if err != nil {
		t.Fatal(err)
	}
	image := tex.Handle()
	tex.Destroy()
	if !r.driver.Alive(image) {
		t.Error("image destroyed while a view is still held")
	}
	view.Release()
	if r.driver.Alive(image) {
		t.Error("image should be destroyed with its last view")
	}

	clone.Destroy()
	pool.Destroy()
	r.teardown()
	r.assertClean(t)
}

func TestTexture_InitializeBeforeAllocate(t *testing.T) {
	var tex gpu.Texture
	if err := tex.Initialize(); err == nil {
		t.Error("Initialize on an unallocated texture should fail")
	}
}
