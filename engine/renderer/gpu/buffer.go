package gpu

import (
	"sync/atomic"

	"github.com/glaciergfx/glacier/engine/core"
)

// Buffer is a reference-counted handle to a device buffer. Command
// buffers retain the buffers they reference, so a buffer released while
// a submission is in flight survives until the covering epoch closes.
// Releasing the last reference after the device is gone is a no-op.
type Buffer struct {
	inner *bufferInner
}

type bufferInner struct {
	id     BufferID
	info   BufferInfo
	memory MemoryUsage
	owner  WeakDevice
	name   string
	refs   atomic.Int32
}

func newBuffer(id BufferID, info BufferInfo, memory MemoryUsage, owner WeakDevice, kind string) *Buffer {
	b := &Buffer{inner: &bufferInner{
		id:     id,
		info:   info,
		memory: memory,
		owner:  owner,
		name:   core.DebugName(kind),
	}}
	b.inner.refs.Store(1)
	return b
}

func (b *Buffer) ID() BufferID {
	return b.inner.id
}

func (b *Buffer) Info() BufferInfo {
	return b.inner.info
}

func (b *Buffer) Name() string {
	return b.inner.name
}

// Retain takes an additional reference and returns the same buffer.
func (b *Buffer) Retain() *Buffer {
	b.inner.refs.Add(1)
	return b
}

// Release drops one reference. The device buffer is destroyed when the
// last reference goes away.
func (b *Buffer) Release() {
	refs := b.inner.refs.Add(-1)
	if refs > 0 {
		return
	}
	if refs < 0 {
		panic("buffer released more times than retained")
	}
	if device := b.inner.owner.Upgrade(); device != nil {
		device.backend.DestroyBuffer(b.inner.id)
	}
}

// MappableBuffer is a host-visible buffer whose memory is mapped for CPU
// writes. Freeze unmaps it and hands out the plain buffer for GPU use.
type MappableBuffer struct {
	*Buffer
	mapped []byte
}

// Bytes returns the mapped host memory.
func (m *MappableBuffer) Bytes() []byte {
	return m.mapped
}

// Freeze unmaps the buffer. The mapped slice must not be used afterwards.
func (m *MappableBuffer) Freeze() *Buffer {
	if device := m.inner.owner.Upgrade(); device != nil {
		device.backend.UnmapMemory(m.inner.id)
	}
	m.mapped = nil
	return m.Buffer
}
