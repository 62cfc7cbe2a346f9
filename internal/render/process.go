// Package render drives one window's frames: it waits for a free frame
// slot, acquires a swap chain image, runs the window's timeline, uploads the
// table and submits a clear pass before presenting.
package render

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	mgl32 "github.com/go-gl/mathgl/mgl32"
	"github.com/sirupsen/logrus"

	"github.com/hellhand/kube/internal/errs"
	"github.com/hellhand/kube/internal/gpu"
	"github.com/hellhand/kube/internal/logging"
	"github.com/hellhand/kube/internal/native"
	"github.com/hellhand/kube/internal/window"
	"github.com/hellhand/kube/internal/workerpool"
)

const DefaultFramesInFlight = 2

type Options struct {
	FramesInFlight int
	ClearColor     mgl32.Vec4
	// FenceTimeout bounds every fence wait and image acquisition.
	FenceTimeout time.Duration
	// Binding is the table binding copied into each frame's uniform
	// buffer.
	Binding uint32
}

type frameSlot struct {
	inFlight       *gpu.Fence
	imageAvailable *gpu.Semaphore
	renderFinished *gpu.Semaphore
	uniform        *gpu.Buffer
	cmd            native.Handle
}

// Process renders one window. It is not safe for concurrent use; each
// window gets its own.
type Process struct {
	window   *window.Window
	device   gpu.Strong[*gpu.Device]
	graphics *gpu.Queue
	present  *gpu.Queue
	pool     *gpu.CommandPool
	pass     *gpu.RenderPass
	frames   []frameSlot
	// imagesInFlight maps a swap chain image to the fence of the frame
	// last rendering to it.
	imagesInFlight []*gpu.Fence
	current        int
	opts           Options
	log            *logrus.Entry
	closed         bool
}

// New initialises w's swap chain on device and creates every per-frame
// object. The process does not own w.
func New(w *window.Window, device *gpu.Device, opts Options) (*Process, error) {
	if opts.FramesInFlight <= 0 {
		opts.FramesInFlight = DefaultFramesInFlight
	}
	if opts.FenceTimeout <= 0 {
		opts.FenceTimeout = time.Second
	}
	dev, err := gpu.Retain(device)
	if err != nil {
		return nil, errors.Wrap(err, "render process")
	}
	p := &Process{
		window:   w,
		device:   dev,
		graphics: device.GraphicsQueue(),
		present:  device.PresentQueue(),
		opts:     opts,
		log:      logging.WithComponent("render").WithField("window", w.Title()),
	}
	if err := p.init(); err != nil {
		p.Close()
		return nil, errors.Wrapf(err, "render process %q", w.Title())
	}
	return p, nil
}

func (p *Process) init() error {
	device := p.device.Get()
	if err := p.window.InitializeSwap(device); err != nil {
		return err
	}
	swap := p.window.Swapchain()

	var err error
	if p.pass, err = gpu.Create[gpu.RenderPass](gpu.RenderPassArgs{Device: device, ColorFormat: swap.Format().Format}); err != nil {
		return err
	}
	if err := p.window.AttachRenderPass(p.pass); err != nil {
		return err
	}
	if p.pool, err = gpu.Create[gpu.CommandPool](gpu.CommandPoolArgs{
		Device:              device,
		QueueFamily:         device.Families().Graphics,
		ResetCommandBuffers: true,
	}); err != nil {
		return err
	}
	cmds, err := p.pool.Allocate(uint32(p.opts.FramesInFlight))
	if err != nil {
		return err
	}

	uniformSize := p.window.Table().Layout().Size(p.opts.Binding)
	p.frames = make([]frameSlot, p.opts.FramesInFlight)
	for i := range p.frames {
		f := &p.frames[i]
		f.cmd = cmds[i]
		if f.inFlight, err = gpu.Create[gpu.Fence](gpu.FenceArgs{Device: device, Signaled: true}); err != nil {
			return errors.Wrapf(err, "frame %d", i)
		}
		if f.imageAvailable, err = gpu.Create[gpu.Semaphore](gpu.SemaphoreArgs{Device: device}); err != nil {
			return errors.Wrapf(err, "frame %d", i)
		}
		if f.renderFinished, err = gpu.Create[gpu.Semaphore](gpu.SemaphoreArgs{Device: device}); err != nil {
			return errors.Wrapf(err, "frame %d", i)
		}
		if uniformSize > 0 {
			if f.uniform, err = gpu.Create[gpu.Buffer](gpu.BufferArgs{
				Device: device,
				Size:   uint64(uniformSize),
				Usage:  native.BufferUsageUniform,
			}); err != nil {
				return errors.Wrapf(err, "frame %d", i)
			}
		}
	}
	p.imagesInFlight = make([]*gpu.Fence, swap.Len())
	p.log.WithFields(logrus.Fields{
		"frames":  p.opts.FramesInFlight,
		"uniform": uniformSize,
	}).Debug("render process ready")
	return nil
}

func (p *Process) Window() *window.Window { return p.window }

// Uniform returns the uniform buffer of frame slot i.
func (p *Process) Uniform(i int) *gpu.Buffer { return p.frames[i].uniform }

// CommandBuffer returns the command buffer of frame slot i.
func (p *Process) CommandBuffer(i int) native.Handle { return p.frames[i].cmd }

// Current is the frame slot the next Frame call uses.
func (p *Process) Current() int { return p.current }

func (p *Process) fences() []*gpu.Fence {
	out := make([]*gpu.Fence, len(p.frames))
	for i := range p.frames {
		out[i] = p.frames[i].inFlight
	}
	return out
}

func (p *Process) rebuild() error {
	if err := p.window.RecreateSwap(p.fences()...); err != nil {
		return err
	}
	p.imagesInFlight = make([]*gpu.Fence, p.window.Swapchain().Len())
	return nil
}

// replaceImageAvailable swaps in a fresh semaphore after an acquire whose
// signal was never waited on.
func (p *Process) replaceImageAvailable(f *frameSlot) error {
	device := p.device.Get()
	if err := device.WaitIdle(); err != nil {
		return err
	}
	sem, err := gpu.Create[gpu.Semaphore](gpu.SemaphoreArgs{Device: device})
	if err != nil {
		return err
	}
	f.imageAvailable.Destroy()
	f.imageAvailable = sem
	return nil
}

// replaceInFlight swaps in a signalled fence for one that was reset but
// never submitted.
func (p *Process) replaceInFlight(f *frameSlot) error {
	fence, err := gpu.Create[gpu.Fence](gpu.FenceArgs{Device: p.device.Get(), Signaled: true})
	if err != nil {
		return err
	}
	for i, prev := range p.imagesInFlight {
		if prev == f.inFlight {
			p.imagesInFlight[i] = nil
		}
	}
	f.inFlight.Destroy()
	f.inFlight = fence
	return nil
}

// abandon repairs a slot whose acquired image is never submitted, so the
// next frame on it can wait and acquire again.
func (p *Process) abandon(f *frameSlot, fenceReset bool) {
	if err := p.replaceImageAvailable(f); err != nil {
		p.log.WithError(err).Warn("replace image semaphore")
	}
	if !fenceReset {
		return
	}
	if err := p.replaceInFlight(f); err != nil {
		p.log.WithError(err).Warn("replace frame fence")
	}
}

// Frame renders one frame. The timeline runs on workers when it is not
// nil. A failing tick aborts the frame before anything is submitted. A
// minimised window skips the frame.
func (p *Process) Frame(ctx context.Context, workers *workerpool.Pool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f := &p.frames[p.current]
	if err := f.inFlight.Wait(p.opts.FenceTimeout); err != nil {
		return errors.Wrap(err, "wait for frame")
	}

	if p.window.ResizePending() {
		if err := p.rebuild(); err != nil {
			return err
		}
		if p.window.ResizePending() {
			return nil
		}
	}

	swap := p.window.Swapchain()
	index, _, err := swap.AcquireNextImage(f.imageAvailable, p.opts.FenceTimeout)
	if res, ok := errs.Result(err); ok && res == native.ErrorOutOfDate {
		return p.rebuild()
	}
	if err != nil {
		return err
	}
	framebuffers := swap.Framebuffers()
	if int(index) >= len(framebuffers) {
		p.abandon(f, false)
		return errors.Newf("swap chain image %d has no framebuffer (%d attached)", index, len(framebuffers))
	}
	p.window.SetImageIndex(index)

	if err := p.window.Tick(ctx, workers); err != nil {
		p.abandon(f, false)
		return err
	}
	if f.uniform != nil {
		if err := f.uniform.Write(0, p.window.Table().Binding(p.opts.Binding)); err != nil {
			p.abandon(f, false)
			return errors.Wrap(err, "upload table")
		}
	}

	if prev := p.imagesInFlight[index]; prev != nil && prev != f.inFlight {
		if err := prev.Wait(p.opts.FenceTimeout); err != nil {
			p.abandon(f, false)
			return errors.Wrapf(err, "wait for image %d", index)
		}
	}

	if err := p.pool.RecordClear(f.cmd, p.pass, framebuffers[index], p.opts.ClearColor); err != nil {
		p.abandon(f, false)
		return err
	}
	// The fence is reset only once the submit that signals it is next.
	if err := f.inFlight.Reset(); err != nil {
		p.abandon(f, true)
		return err
	}
	if err := p.graphics.Submit(native.SubmitInfo{
		Wait:           []native.Handle{f.imageAvailable.Handle()},
		CommandBuffers: []native.Handle{f.cmd},
		Signal:         []native.Handle{f.renderFinished.Handle()},
		Fence:          f.inFlight.Handle(),
	}); err != nil {
		p.abandon(f, true)
		return err
	}
	p.imagesInFlight[index] = f.inFlight

	suboptimal, err := swap.Present(p.present, index, f.renderFinished)
	p.current = (p.current + 1) % len(p.frames)
	if res, ok := errs.Result(err); ok && res == native.ErrorOutOfDate {
		return p.rebuild()
	}
	if err != nil {
		return err
	}
	if suboptimal || p.window.ResizePending() {
		return p.rebuild()
	}
	return nil
}

// Close waits for the device to go idle and destroys the per-frame objects,
// command pool and render pass. It is safe to call more than once.
func (p *Process) Close() {
	if p.closed {
		return
	}
	p.closed = true
	if device := p.device.Get(); device != nil {
		if err := device.WaitIdle(); err != nil {
			p.log.WithError(err).Warn("wait idle before close")
		}
	}
	for i := len(p.frames) - 1; i >= 0; i-- {
		f := &p.frames[i]
		if f.uniform != nil {
			f.uniform.Destroy()
		}
		if f.renderFinished != nil {
			f.renderFinished.Destroy()
		}
		if f.imageAvailable != nil {
			f.imageAvailable.Destroy()
		}
		if f.inFlight != nil {
			f.inFlight.Destroy()
		}
	}
	p.frames = nil
	p.imagesInFlight = nil
	if p.pool != nil {
		p.pool.Destroy()
	}
	if p.pass != nil {
		p.pass.Destroy()
	}
	p.device.Release()
}
