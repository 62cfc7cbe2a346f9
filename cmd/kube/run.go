package main

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"github.com/hellhand/kube/internal/config"
	"github.com/hellhand/kube/internal/gpu"
	"github.com/hellhand/kube/internal/logging"
	"github.com/hellhand/kube/internal/native"
	"github.com/hellhand/kube/internal/native/headless"
	"github.com/hellhand/kube/internal/native/vkdriver"
	"github.com/hellhand/kube/internal/platform/glfwwin"
	"github.com/hellhand/kube/internal/render"
	"github.com/hellhand/kube/internal/window"
	"github.com/hellhand/kube/internal/workerpool"
)

// backend is the driver and platform window a run presents through.
type backend struct {
	driver     native.Driver
	window     window.Native
	extensions []string
	poll       func()
	close      func()
}

func openHeadless(cfg *config.Config) (*backend, error) {
	d := headless.New()
	w, err := d.NewWindow(cfg.Window.Title, cfg.Window.Width, cfg.Window.Height)
	if err != nil {
		return nil, err
	}
	return &backend{
		driver: d,
		window: w,
		poll:   func() {},
		close: func() {
			if v := d.Violations(); len(v) > 0 {
				logging.WithComponent("headless").WithField("violations", v).Error("destruction order violated")
			}
		},
	}, nil
}

func openGLFW(cfg *config.Config) (*backend, error) {
	if err := glfwwin.Init(); err != nil {
		return nil, err
	}
	w, err := glfwwin.New(cfg.Window.Title, cfg.Window.Width, cfg.Window.Height)
	if err != nil {
		glfwwin.Terminate()
		return nil, err
	}
	d, err := vkdriver.New()
	if err != nil {
		w.Destroy()
		glfwwin.Terminate()
		return nil, err
	}
	w.Bind(d)
	// The first swap chain needs a non-zero framebuffer.
	w.WaitVisible()
	return &backend{
		driver:     d,
		window:     w,
		extensions: w.RequiredExtensions(),
		poll:       glfwwin.Poll,
		close:      glfwwin.Terminate,
	}, nil
}

func run(ctx context.Context, opts runOptions) error {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}
	if err := logging.Init(cfg.Logging.Level, cfg.Logging.File, cfg.Logging.Console); err != nil {
		return errors.Wrap(err, "init logging")
	}
	log := logging.WithComponent("kube")

	pool := workerpool.New(cfg.Pool.ReservedThreads)
	defer pool.Close()

	open := openGLFW
	if opts.headless {
		open = openHeadless
	}
	b, err := open(cfg)
	if err != nil {
		return err
	}
	defer b.close()

	instance, err := gpu.Create[gpu.Instance](gpu.InstanceArgs{
		Driver:     b.driver,
		AppName:    cfg.App.Name,
		Extensions: b.extensions,
		Validation: cfg.Renderer.Validation && !opts.headless,
	})
	if err != nil {
		b.window.Destroy()
		return err
	}
	defer instance.Destroy()

	layout, entries, err := demoTimeline(log)
	if err != nil {
		b.window.Destroy()
		return err
	}
	w, err := window.New(instance, b.window, window.Options{
		Layout:       layout,
		Timeline:     entries,
		PresentModes: cfg.Renderer.PresentModes(),
		FenceTimeout: cfg.Renderer.FenceTimeout,
	})
	if err != nil {
		return err
	}
	defer w.Destroy()

	physical, families, err := gpu.SelectPhysicalDevice(instance, w.Surface())
	if err != nil {
		return err
	}
	defer physical.Destroy()
	log.WithField("device", physical.Info().Name).Info("selected physical device")

	device, err := gpu.Create[gpu.Device](gpu.DeviceArgs{Physical: physical, Families: families})
	if err != nil {
		return err
	}
	defer device.Destroy()

	proc, err := render.New(w, device, render.Options{
		FramesInFlight: cfg.Renderer.FramesInFlight,
		ClearColor:     cfg.Renderer.Clear(),
		FenceTimeout:   cfg.Renderer.FenceTimeout,
	})
	if err != nil {
		return err
	}
	defer proc.Close()

	return loop(ctx, log, b, w, proc, pool, opts.frames)
}

func loop(ctx context.Context, log *logrus.Entry, b *backend, w *window.Window, proc *render.Process, pool *workerpool.Pool, frames int) error {
	log.WithField("window", w.Title()).Info("entering main loop")
	n := 0
	for frames == 0 || n < frames {
		if w.ShouldClose() {
			break
		}
		b.poll()
		if err := proc.Frame(ctx, pool); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			return errors.Wrapf(err, "frame %d", n)
		}
		n++
		time.Sleep(time.Millisecond)
	}
	log.WithField("frames", n).Info("main loop finished")
	return nil
}
