package upload

import (
	"fmt"

	"github.com/glaciergfx/glacier/engine/renderer/gpu"
)

const arenaInitialSize = 64 * 1024

// Allocation is a transient slice of arena memory. Bytes is host memory
// to write into; Buffer and Offset locate it for binding.
type Allocation struct {
	Bytes  []byte
	Buffer *gpu.Buffer
	Offset uint64
}

// BufferArena linearly suballocates a persistently mapped upload buffer
// for data that lives a single frame. Reset rewinds the arena; users
// must retain the buffer through the frame's command buffer, which
// keeps a grown-out-of buffer alive until its last frame completes.
type BufferArena struct {
	device *gpu.Device
	kind   string

	buffer *gpu.MappableBuffer
	size   uint64
	offset uint64
}

func NewBufferArena(device *gpu.Device, kind string) *BufferArena {
	return &BufferArena{device: device, kind: kind, size: arenaInitialSize}
}

// Allocate returns size bytes aligned by alignMask. Grows by doubling
// when full; the previous buffer is released and survives only through
// command buffer references.
func (a *BufferArena) Allocate(size uint64, alignMask uint64) (Allocation, error) {
	offset := gpu.AlignUp(a.offset, alignMask)
	if a.buffer == nil || offset+size > a.size {
		for a.size < offset+size {
			a.size *= 2
		}
		if a.buffer != nil {
			a.buffer.Freeze().Release()
		}
		buffer, err := a.device.CreateUploadBuffer(a.size, a.kind)
		if err != nil {
			return Allocation{}, fmt.Errorf("failed to grow %s arena: %w", a.kind, err)
		}
		a.buffer = buffer
		a.offset = 0
		offset = 0
	}
	a.offset = offset + size
	return Allocation{
		Bytes:  a.buffer.Bytes()[offset : offset+size],
		Buffer: a.buffer.Buffer,
		Offset: offset,
	}, nil
}

// Reset rewinds the arena for a new frame. Only safe once the frame
// that used the memory has been waited on.
func (a *BufferArena) Reset() {
	a.offset = 0
}

func (a *BufferArena) Destroy() {
	if a.buffer != nil {
		a.buffer.Freeze().Release()
		a.buffer = nil
	}
}

// MultiBufferArena keeps one arena per frame in flight so a frame's
// transient allocations are only recycled when that frame's fence has
// been observed.
type MultiBufferArena struct {
	arenas []*BufferArena
	frame  int
}

func NewMultiBufferArena(device *gpu.Device, framesInFlight int, kind string) *MultiBufferArena {
	arenas := make([]*BufferArena, framesInFlight)
	for i := range arenas {
		arenas[i] = NewBufferArena(device, fmt.Sprintf("%s-frame%d", kind, i))
	}
	return &MultiBufferArena{arenas: arenas}
}

// StartFrame rotates to the arena of the given frame slot and rewinds
// it. The caller must have waited on that slot's fence first.
func (m *MultiBufferArena) StartFrame(slot int) {
	m.frame = slot % len(m.arenas)
	m.arenas[m.frame].Reset()
}

func (m *MultiBufferArena) Allocate(size uint64, alignMask uint64) (Allocation, error) {
	return m.arenas[m.frame].Allocate(size, alignMask)
}

func (m *MultiBufferArena) Destroy() {
	for _, a := range m.arenas {
		a.Destroy()
	}
}
