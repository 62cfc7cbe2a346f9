package gpu

// factory is implemented by every wrapper that can be built from A.
type factory[T, A any] interface {
	*T
	create(args A) error
}

// Create builds a T from args. On failure it returns nil and every partial
// native object has already been destroyed.
//
//	buf, err := gpu.Create[gpu.Buffer](gpu.BufferArgs{Device: dev, Size: 256})
func Create[T, A any, P factory[T, A]](args A) (*T, error) {
	obj := P(new(T))
	if err := obj.create(args); err != nil {
		return nil, err
	}
	return (*T)(obj), nil
}
