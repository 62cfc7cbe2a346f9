package gpu

import (
	"math"
	"testing"

	"github.com/hellhand/kube/internal/native"
)

func TestChooseSwapSurfaceFormat(t *testing.T) {
	srgb := native.SurfaceFormat{Format: native.FormatB8G8R8A8Srgb, ColorSpace: native.ColorSpaceSrgbNonlinear}
	unorm := native.SurfaceFormat{Format: native.FormatB8G8R8A8Unorm, ColorSpace: native.ColorSpaceSrgbNonlinear}

	if got := chooseSwapSurfaceFormat([]native.SurfaceFormat{unorm, srgb}); got != srgb {
		t.Errorf("got %v, want sRGB", got)
	}
	if got := chooseSwapSurfaceFormat([]native.SurfaceFormat{unorm}); got != unorm {
		t.Errorf("got %v, want first available", got)
	}
}

func TestChooseSwapPresentMode(t *testing.T) {
	tests := []struct {
		name      string
		available []native.PresentMode
		preferred []native.PresentMode
		want      native.PresentMode
	}{
		{"preferred available", []native.PresentMode{native.PresentModeFifo, native.PresentModeImmediate}, []native.PresentMode{native.PresentModeImmediate}, native.PresentModeImmediate},
		{"mailbox fallback", []native.PresentMode{native.PresentModeFifo, native.PresentModeMailbox}, []native.PresentMode{native.PresentModeImmediate}, native.PresentModeMailbox},
		{"fifo fallback", []native.PresentMode{native.PresentModeFifo}, nil, native.PresentModeFifo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := chooseSwapPresentMode(tt.available, tt.preferred); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChooseSwapExtent(t *testing.T) {
	caps := native.SurfaceCapabilities{
		CurrentExtent: native.Extent{Width: math.MaxUint32, Height: math.MaxUint32},
		MinExtent:     native.Extent{Width: 16, Height: 16},
		MaxExtent:     native.Extent{Width: 1024, Height: 1024},
	}
	got := chooseSwapExtent(caps, native.Extent{Width: 4096, Height: 8})
	if got != (native.Extent{Width: 1024, Height: 16}) {
		t.Errorf("clamped extent = %v", got)
	}

	caps.CurrentExtent = native.Extent{Width: 1280, Height: 720}
	if got := chooseSwapExtent(caps, native.Extent{Width: 1, Height: 1}); got != caps.CurrentExtent {
		t.Errorf("extent = %v, want surface current extent", got)
	}
}

func TestQueueFamiliesUnique(t *testing.T) {
	q := QueueFamilies{Graphics: 0, Present: 1, HasGraphics: true, HasPresent: true}
	if u := q.Unique(); len(u) != 2 || u[0] != 0 || u[1] != 1 {
		t.Errorf("Unique() = %v", u)
	}
	q.Present = 0
	if u := q.Unique(); len(u) != 1 {
		t.Errorf("Unique() = %v, want one family", u)
	}
	if (QueueFamilies{HasGraphics: true}).Complete() {
		t.Error("graphics-only families are not complete")
	}
}
