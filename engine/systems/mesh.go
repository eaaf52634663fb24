package systems

import (
	"fmt"
	"sync"

	"github.com/glaciergfx/glacier/engine/containers"
	"github.com/glaciergfx/glacier/engine/core"
	"github.com/glaciergfx/glacier/engine/renderer/gpu"
	"github.com/glaciergfx/glacier/engine/renderer/handle"
)

// MeshTag types mesh handles.
type MeshTag struct{}

type MeshHandle = handle.Handle[MeshTag]
type RawMeshHandle = handle.Raw[MeshTag]

// MeshData is the CPU-side mesh description handed to Add.
type MeshData struct {
	// VertexData is the packed vertex stream, in the layout the
	// material's pipeline expects.
	VertexData []byte
	Indices    []uint32
	// Attributes declares the vertex streams the data contains, checked
	// against material requirements when objects are built. Empty means
	// undeclared and skips the check.
	Attributes []VertexAttribute
}

// InternalMesh locates a mesh inside the shared buffers. VertexRange is
// in bytes, IndexRange in uint32 index units.
type InternalMesh struct {
	VertexRange containers.Range
	IndexRange  containers.Range
	IndexCount  uint32
	Attributes  []VertexAttribute
}

// HasAttribute reports whether the mesh declared the given vertex stream.
func (m InternalMesh) HasAttribute(attr VertexAttribute) bool {
	for _, a := range m.Attributes {
		if a == attr {
			return true
		}
	}
	return false
}

const (
	initialVertexBufferSize = 1 << 20
	initialIndexBufferCount = 1 << 16
)

// MeshSystem suballocates every mesh out of one shared vertex buffer
// and one shared index buffer. Handles released by their owners queue a
// range free that FlushFrees applies once the frames that may still
// draw the mesh have been waited on.
type MeshSystem struct {
	mu     sync.Mutex
	device *gpu.Device

	vertexBuffer *gpu.Buffer
	indexBuffer  *gpu.Buffer
	vertexAlloc  *containers.RangeAllocator
	indexAlloc   *containers.RangeAllocator

	handles *handle.Registry[MeshTag, InternalMesh]

	pendingFrees []InternalMesh
}

func NewMeshSystem(device *gpu.Device) (*MeshSystem, error) {
	vertexBuffer, err := device.CreateBuffer(gpu.BufferInfo{
		AlignMask: gpu.MinStorageAlignMask,
		Size:      initialVertexBufferSize,
		Usage:     gpu.BufferUsageVertex | gpu.BufferUsageStorage | gpu.BufferUsageTransferSrc | gpu.BufferUsageTransferDst,
	}, gpu.MemoryFastDeviceAccess, "mesh-vertex")
	if err != nil {
		return nil, err
	}
	indexBuffer, err := device.CreateBuffer(gpu.BufferInfo{
		AlignMask: gpu.StagingAlignMask,
		Size:      initialIndexBufferCount * 4,
		Usage:     gpu.BufferUsageIndex | gpu.BufferUsageStorage | gpu.BufferUsageTransferSrc | gpu.BufferUsageTransferDst,
	}, gpu.MemoryFastDeviceAccess, "mesh-index")
	if err != nil {
		vertexBuffer.Release()
		return nil, err
	}
	msys := &MeshSystem{
		device:       device,
		vertexBuffer: vertexBuffer,
		indexBuffer:  indexBuffer,
		vertexAlloc:  containers.NewRangeAllocator(initialVertexBufferSize),
		indexAlloc:   containers.NewRangeAllocator(initialIndexBufferCount),
	}
	msys.handles = handle.NewRegistry[MeshTag, InternalMesh](&handle.FreelistAllocator{},
		func(_ RawMeshHandle, mesh InternalMesh) {
			msys.mu.Lock()
			defer msys.mu.Unlock()
			msys.pendingFrees = append(msys.pendingFrees, mesh)
		})
	return msys, nil
}

// Add uploads a mesh into the shared buffers, growing them when full,
// and returns an owning handle. The copies are recorded into encoder
// and the staging memory lives until that submission's epoch closes.
func (msys *MeshSystem) Add(encoder *gpu.Encoder, data MeshData) (MeshHandle, error) {
	if len(data.VertexData) == 0 || len(data.Indices) == 0 {
		return MeshHandle{}, fmt.Errorf("mesh needs vertex data and indices")
	}

	msys.mu.Lock()
	defer msys.mu.Unlock()

	vertexRange, err := msys.allocate(encoder, msys.vertexAlloc, &msys.vertexBuffer, uint64(len(data.VertexData)), 1)
	if err != nil {
		return MeshHandle{}, fmt.Errorf("failed to place mesh vertices: %w", err)
	}
	indexRange, err := msys.allocate(encoder, msys.indexAlloc, &msys.indexBuffer, uint64(len(data.Indices)), 4)
	if err != nil {
		msys.vertexAlloc.Free(vertexRange)
		return MeshHandle{}, fmt.Errorf("failed to place mesh indices: %w", err)
	}

	indexBytes := uint64(len(data.Indices)) * 4
	staging, err := msys.device.CreateUploadBuffer(uint64(len(data.VertexData))+indexBytes, "mesh-staging")
	if err != nil {
		msys.vertexAlloc.Free(vertexRange)
		msys.indexAlloc.Free(indexRange)
		return MeshHandle{}, err
	}
	bytes := staging.Bytes()
	copy(bytes, data.VertexData)
	putUint32s(bytes[len(data.VertexData):], data.Indices)
	buffer := staging.Freeze()

	encoder.CopyBuffer(buffer, msys.vertexBuffer, gpu.BufferCopy{
		DstOffset: vertexRange.Start,
		Size:      uint64(len(data.VertexData)),
	})
	encoder.CopyBuffer(buffer, msys.indexBuffer, gpu.BufferCopy{
		SrcOffset: uint64(len(data.VertexData)),
		DstOffset: indexRange.Start * 4,
		Size:      indexBytes,
	})
	buffer.Release()

	return msys.handles.Register(InternalMesh{
		VertexRange: vertexRange,
		IndexRange:  indexRange,
		IndexCount:  uint32(len(data.Indices)),
		Attributes:  data.Attributes,
	}), nil
}

// allocate finds a range, growing the backing buffer by doubling when
// the allocator is out of space. Growing copies the live contents
// forward; the old buffer survives through the copy's epoch.
func (msys *MeshSystem) allocate(encoder *gpu.Encoder, alloc *containers.RangeAllocator, buffer **gpu.Buffer, units uint64, unitSize uint64) (containers.Range, error) {
	if r, ok := alloc.Allocate(units); ok {
		return r, nil
	}

	capacity := alloc.Capacity()
	for capacity < alloc.Capacity()+units {
		capacity *= 2
	}
	old := *buffer
	info := old.Info()
	info.Size = capacity * unitSize
	grown, err := msys.device.CreateBuffer(info, gpu.MemoryFastDeviceAccess, "mesh-grow")
	if err != nil {
		return containers.Range{}, err
	}
	encoder.CopyBuffer(old, grown, gpu.BufferCopy{Size: alloc.Capacity() * unitSize})
	old.Release()
	*buffer = grown
	core.LogDebug("grew mesh buffer %s to %d bytes", grown.Name(), info.Size)

	alloc.GrowTo(capacity)
	r, ok := alloc.Allocate(units)
	if !ok {
		return containers.Range{}, fmt.Errorf("allocation of %d units failed after growth to %d", units, capacity)
	}
	return r, nil
}

// Get looks up the buffer placement of a live mesh.
func (msys *MeshSystem) Get(raw RawMeshHandle) (InternalMesh, bool) {
	return msys.handles.Get(raw)
}

// VertexBuffer returns the shared vertex buffer of the current frame.
func (msys *MeshSystem) VertexBuffer() *gpu.Buffer {
	msys.mu.Lock()
	defer msys.mu.Unlock()
	return msys.vertexBuffer
}

func (msys *MeshSystem) IndexBuffer() *gpu.Buffer {
	msys.mu.Lock()
	defer msys.mu.Unlock()
	return msys.indexBuffer
}

// FlushFrees returns the ranges of released meshes to the allocators.
// Call after the frame fences covering their last use have been waited
// on.
func (msys *MeshSystem) FlushFrees() {
	msys.mu.Lock()
	defer msys.mu.Unlock()
	for _, mesh := range msys.pendingFrees {
		msys.vertexAlloc.Free(mesh.VertexRange)
		msys.indexAlloc.Free(mesh.IndexRange)
	}
	msys.pendingFrees = msys.pendingFrees[:0]
}

func (msys *MeshSystem) Destroy() {
	msys.mu.Lock()
	defer msys.mu.Unlock()
	msys.vertexBuffer.Release()
	msys.indexBuffer.Release()
}
