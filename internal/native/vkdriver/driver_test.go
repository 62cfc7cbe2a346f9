package vkdriver

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/hellhand/kube/internal/native"
)

// =============================================================================
// Helpers
// =============================================================================

func TestCstrs(t *testing.T) {
	got := cstrs([]string{"VK_KHR_swapchain", "already\x00"})
	want := []string{"VK_KHR_swapchain\x00", "already\x00"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("cstrs[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if cstr("") != "\x00" {
		t.Errorf("cstr(\"\") = %q", cstr(""))
	}
}

func TestTimeout(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want uint64
	}{
		{0, 0},
		{time.Millisecond, 1_000_000},
		{-1, math.MaxUint64},
	}
	for _, tt := range tests {
		if got := timeout(tt.in); got != tt.want {
			t.Errorf("timeout(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestLookupIsTyped(t *testing.T) {
	d := &Driver{objects: make(map[native.Handle]any)}
	h := d.register(newTimeline(3))
	if _, ok := lookup[*swapchainObj](d, h); ok {
		t.Fatal("lookup with the wrong type succeeded")
	}
	tl, ok := take[*timelineObj](d, h)
	if !ok || tl.load() != 3 {
		t.Fatalf("take = %v, %v", tl, ok)
	}
	if _, ok := lookup[*timelineObj](d, h); ok {
		t.Fatal("handle still present after take")
	}
}

// =============================================================================
// Host timeline
// =============================================================================

func TestTimeline_WaitWakesOnSignal(t *testing.T) {
	tl := newTimeline(0)
	var wg sync.WaitGroup
	results := make([]native.Result, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = tl.wait(uint64(i+1), time.Second)
		}()
	}
	for v := uint64(1); v <= 4; v++ {
		if res := tl.signal(v); res != native.Success {
			t.Fatalf("signal(%d) = %v", v, res)
		}
	}
	wg.Wait()
	for i, res := range results {
		if res != native.Success {
			t.Errorf("waiter %d = %v", i, res)
		}
	}
}

func TestTimeline_WaitTimesOut(t *testing.T) {
	tl := newTimeline(5)
	if res := tl.wait(5, 0); res != native.Success {
		t.Fatalf("wait for reached value = %v", res)
	}
	if res := tl.wait(6, 10*time.Millisecond); res != native.Timeout {
		t.Fatalf("wait = %v, want Timeout", res)
	}
}

func TestTimeline_NeverMovesBackwards(t *testing.T) {
	tl := newTimeline(7)
	for _, v := range []uint64{6, 7} {
		if res := tl.signal(v); res == native.Success {
			t.Fatalf("signal(%d) at 7 succeeded", v)
		}
	}
	if tl.load() != 7 {
		t.Fatalf("value = %d, want 7", tl.load())
	}
}
