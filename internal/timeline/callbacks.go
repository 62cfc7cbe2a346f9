package timeline

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/cockroachdb/errors"
	mgl32 "github.com/go-gl/mathgl/mgl32"
)

// Sizes of the built-in callbacks' output.
const (
	SwapExtentSize = 8
	ProjectionSize = 64
	FrameIndexSize = 8
	FrameRateSize  = 4
)

func need(dst []byte, n int, what string) error {
	if len(dst) < n {
		return errors.Newf("%s needs %d bytes, slot has %d", what, n, len(dst))
	}
	return nil
}

func extentOf(st *State) (width, height uint32) {
	if st.Swapchain != nil {
		e := st.Swapchain.Extent()
		return e.Width, e.Height
	}
	return st.Extent.Width, st.Extent.Height
}

// SwapExtent writes the swap chain extent as two little-endian uint32s.
func SwapExtent() Callback {
	return Func(func(st *State, dst []byte) error {
		if err := need(dst, SwapExtentSize, "swap extent"); err != nil {
			return err
		}
		w, h := extentOf(st)
		binary.LittleEndian.PutUint32(dst[0:], w)
		binary.LittleEndian.PutUint32(dst[4:], h)
		return nil
	})
}

// Projection writes a column-major orthographic projection mapping pixel
// coordinates, origin top left, to clip space.
func Projection() Callback {
	return Func(func(st *State, dst []byte) error {
		if err := need(dst, ProjectionSize, "projection"); err != nil {
			return err
		}
		w, h := extentOf(st)
		if w == 0 || h == 0 {
			return errors.Newf("projection: empty extent %dx%d", w, h)
		}
		m := mgl32.Ortho(0, float32(w), 0, float32(h), -1, 1)
		for i, v := range m {
			binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
		}
		return nil
	})
}

// FrameIndex writes the frame counter as a little-endian uint64.
func FrameIndex() Callback {
	return Func(func(st *State, dst []byte) error {
		if err := need(dst, FrameIndexSize, "frame index"); err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(dst, st.Frame)
		return nil
	})
}

// FrameRate averages frames per second over windows of at least one
// second and writes the latest value as a float32. OnUpdate, when set, is
// called each time the average changes.
type FrameRate struct {
	OnUpdate func(fps float64)

	frames int
	last   time.Time
	value  float64
}

func (f *FrameRate) Apply(st *State, dst []byte) error {
	if err := need(dst, FrameRateSize, "frame rate"); err != nil {
		return err
	}
	now := st.Time
	if now.IsZero() {
		now = time.Now()
	}
	if f.last.IsZero() {
		f.last = now
	}
	f.frames++
	if elapsed := now.Sub(f.last); elapsed >= time.Second {
		f.value = float64(f.frames) / elapsed.Seconds()
		f.frames = 0
		f.last = now
		if f.OnUpdate != nil {
			f.OnUpdate(f.value)
		}
	}
	binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(f.value)))
	return nil
}

// Value is the last computed rate.
func (f *FrameRate) Value() float64 { return f.value }
