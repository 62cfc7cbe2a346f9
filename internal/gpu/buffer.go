package gpu

import (
	"github.com/cockroachdb/errors"

	"github.com/hellhand/kube/internal/errs"
	"github.com/hellhand/kube/internal/native"
)

type BufferArgs struct {
	Device *Device
	Size   uint64
	Usage  native.BufferUsage
	// Memory defaults to host visible and coherent.
	Memory native.MemoryProperty
}

// Buffer owns a native buffer and its bound memory.
type Buffer struct {
	object
	device Strong[*Device]
	memory native.Handle
	size   uint64
}

func (b *Buffer) create(args BufferArgs) error {
	dev, err := Retain(args.Device)
	if err != nil {
		return errors.Wrap(err, "create buffer")
	}
	b.device = dev
	b.init(args.Device.driver, b.destroy)

	if args.Size == 0 {
		b.Destroy()
		return errors.New("create buffer: zero size")
	}
	props := args.Memory
	if props == 0 {
		props = native.MemoryHostVisible | native.MemoryHostCoherent
	}
	h, res := b.driver.CreateBuffer(args.Device.handle, native.BufferInfo{Size: args.Size, Usage: args.Usage})
	if res != native.Success {
		b.Destroy()
		return errs.Native("create buffer", res)
	}
	b.handle = h
	mem, res := b.driver.AllocateBufferMemory(args.Device.handle, h, props)
	if res != native.Success {
		b.Destroy()
		return errs.Native("allocate buffer memory", res)
	}
	b.memory = mem
	b.size = args.Size
	return nil
}

func (b *Buffer) destroy() {
	dev := b.device.Get().Handle()
	if b.handle.Valid() {
		b.driver.DestroyBuffer(dev, b.handle)
		b.handle = native.NullHandle
	}
	if b.memory.Valid() {
		b.driver.FreeMemory(dev, b.memory)
		b.memory = native.NullHandle
	}
	b.device.Release()
}

func (b *Buffer) Size() uint64 { return b.size }

func (b *Buffer) Memory() native.Handle { return b.memory }

// Write copies data into the buffer's memory at offset. Writing to a
// destroyed buffer reports errs.ErrExpired.
func (b *Buffer) Write(offset uint64, data []byte) error {
	if err := b.live("write buffer"); err != nil {
		return err
	}
	if offset+uint64(len(data)) > b.size {
		return errors.Newf("buffer write of %d bytes at %d exceeds size %d", len(data), offset, b.size)
	}
	if res := b.driver.WriteMemory(b.device.Get().Handle(), b.memory, offset, data); res != native.Success {
		return errs.Native("write buffer memory", res)
	}
	return nil
}
