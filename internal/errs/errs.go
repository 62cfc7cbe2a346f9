// Package errs holds the error taxonomy shared by every package.
//
// Errors are classified by marking them with one of the kind sentinels
// below; callers test with errors.Is or KindOf. Nothing in the core panics
// or retries: the first failure is returned to the caller.
package errs

import (
	"github.com/cockroachdb/errors"

	"github.com/hellhand/kube/internal/native"
)

var (
	ErrNative               = errors.New("native API failure")
	ErrWindowing            = errors.New("windowing system failure")
	ErrAlreadyExists        = errors.New("resource already exists")
	ErrNotFound             = errors.New("resource not found")
	ErrSwapchainInitialized = errors.New("swapchain already initialized")
	ErrUnknown              = errors.New("unknown failure")

	// ErrExpired is returned when a weak reference no longer points at a
	// live object. It is also marked ErrNotFound.
	ErrExpired = errors.Mark(errors.New("referenced object expired"), ErrNotFound)
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNative
	KindWindowing
	KindAlreadyExists
	KindNotFound
	KindSwapchainInitialized
)

func (k Kind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindWindowing:
		return "windowing"
	case KindAlreadyExists:
		return "already-exists"
	case KindNotFound:
		return "not-found"
	case KindSwapchainInitialized:
		return "swapchain-initialized"
	default:
		return "unknown"
	}
}

// KindOf classifies err. A nil error has no kind and reports KindUnknown.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrNative):
		return KindNative
	case errors.Is(err, ErrWindowing):
		return KindWindowing
	case errors.Is(err, ErrAlreadyExists):
		return KindAlreadyExists
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrSwapchainInitialized):
		return KindSwapchainInitialized
	default:
		return KindUnknown
	}
}

// Native wraps a failing native status with the operation that produced it.
func Native(op string, res native.Result) error {
	return errors.Mark(errors.Wrap(res, op), ErrNative)
}

// Windowing classifies an error returned by the windowing collaborator.
func Windowing(op string, err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, op), ErrWindowing)
}

// AlreadyExists reports a duplicate registration of name.
func AlreadyExists(what, name string) error {
	return errors.Wrapf(ErrAlreadyExists, "%s %q", what, name)
}

// NotFound reports a lookup of an unregistered name.
func NotFound(what, name string) error {
	return errors.Wrapf(ErrNotFound, "%s %q", what, name)
}

// Result extracts the native status carried by err, if any.
func Result(err error) (native.Result, bool) {
	var res native.Result
	if errors.As(err, &res) {
		return res, true
	}
	return native.Success, false
}

// IsTimeout reports whether err carries a native Timeout status.
func IsTimeout(err error) bool {
	res, ok := Result(err)
	return ok && res == native.Timeout
}
