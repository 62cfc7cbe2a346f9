// Package gpu wraps native graphics objects with explicit ownership.
//
// Every wrapper is built through Create and holds strong references to the
// objects it was created from, so a parent is never destroyed while a child
// still needs its handle. Destroy drops the caller's reference; the native
// destroy call runs once the last reference is gone.
package gpu

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/hellhand/kube/internal/errs"
	"github.com/hellhand/kube/internal/native"
)

// noCopy makes go vet's copylocks check flag wrappers copied by value.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// lifetime counts the references keeping a native object alive. The
// creator holds one; every Strong handed out holds another.
type lifetime struct {
	refs    atomic.Int64
	destroy func()
}

func (l *lifetime) acquire() bool {
	for {
		n := l.refs.Load()
		if n <= 0 {
			return false
		}
		if l.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (l *lifetime) release() {
	if l.refs.Add(-1) == 0 && l.destroy != nil {
		l.destroy()
	}
}

func (l *lifetime) alive() bool { return l.refs.Load() > 0 }

// owner is satisfied by pointers to wrapper types.
type owner interface {
	comparable
	lifetimeOf() *lifetime
}

// object is embedded by every wrapper.
type object struct {
	_       noCopy
	driver  native.Driver
	handle  native.Handle
	life    lifetime
	dropped atomic.Bool
}

// init binds the driver and the native destroy routine. It must run before
// any strong reference is taken on the wrapper.
func (o *object) init(d native.Driver, destroy func()) {
	o.driver = d
	o.life.refs.Store(1)
	o.life.destroy = destroy
}

func (o *object) lifetimeOf() *lifetime { return &o.life }

// Handle returns the native handle, or NullHandle once destroyed.
func (o *object) Handle() native.Handle { return o.handle }

func (o *object) Driver() native.Driver { return o.driver }

// Alive reports whether the native object still exists.
func (o *object) Alive() bool { return o.life.alive() && o.handle.Valid() }

// live returns errs.ErrExpired once the native object is gone.
func (o *object) live(op string) error {
	if !o.Alive() {
		return errors.Wrap(errs.ErrExpired, op)
	}
	return nil
}

// Destroy drops the creator's reference. Calling it again is a no-op.
func (o *object) Destroy() {
	if o.dropped.CompareAndSwap(false, true) {
		o.life.release()
	}
}

// Strong keeps its target alive until Release.
type Strong[T owner] struct {
	obj T
}

// Retain takes a strong reference on obj. It fails with errs.ErrExpired
// when obj has already been destroyed.
func Retain[T owner](obj T) (Strong[T], error) {
	var zero T
	if obj == zero {
		return Strong[T]{}, errors.Wrap(errs.ErrNotFound, "retain nil object")
	}
	if !obj.lifetimeOf().acquire() {
		return Strong[T]{}, errs.ErrExpired
	}
	return Strong[T]{obj: obj}, nil
}

func (s *Strong[T]) Get() T { return s.obj }

func (s *Strong[T]) Valid() bool {
	var zero T
	return s.obj != zero
}

// Release drops the reference. It is safe to call more than once.
func (s *Strong[T]) Release() {
	var zero T
	if s.obj == zero {
		return
	}
	l := s.obj.lifetimeOf()
	s.obj = zero
	l.release()
}

// Move transfers the reference to the returned value and empties s.
func (s *Strong[T]) Move() Strong[T] {
	out := *s
	*s = Strong[T]{}
	return out
}

// Weak observes an object without keeping it alive.
type Weak[T owner] struct {
	obj T
}

func Downgrade[T owner](obj T) Weak[T] { return Weak[T]{obj: obj} }

// Lock upgrades w, failing with errs.ErrExpired once the target is gone.
func (w Weak[T]) Lock() (Strong[T], error) {
	var zero T
	if w.obj == zero {
		return Strong[T]{}, errs.ErrExpired
	}
	return Retain(w.obj)
}

func (w Weak[T]) Expired() bool {
	var zero T
	return w.obj == zero || !w.obj.lifetimeOf().alive()
}
