package errs

import (
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/hellhand/kube/internal/native"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"native", Native("create buffer", native.ErrorOutOfDeviceMemory), KindNative},
		{"windowing", Windowing("create window", errors.New("no display")), KindWindowing},
		{"already exists", AlreadyExists("window", "demo"), KindAlreadyExists},
		{"not found", NotFound("window", "demo"), KindNotFound},
		{"expired", errors.Wrap(ErrExpired, "lock physical device"), KindNotFound},
		{"swapchain", ErrSwapchainInitialized, KindSwapchainInitialized},
		{"plain", errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNativeCarriesResult(t *testing.T) {
	err := errors.Wrap(Native("wait fence", native.Timeout), "frame 3")
	res, ok := Result(err)
	if !ok || res != native.Timeout {
		t.Fatalf("Result() = %v, %v; want timeout", res, ok)
	}
	if !IsTimeout(err) {
		t.Error("IsTimeout() = false, want true")
	}
	if IsTimeout(Native("reset fence", native.ErrorDeviceLost)) {
		t.Error("device lost reported as timeout")
	}
}

func TestWindowingNil(t *testing.T) {
	if err := Windowing("poll", nil); err != nil {
		t.Errorf("Windowing(nil) = %v, want nil", err)
	}
}
