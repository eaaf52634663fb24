package systems

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"sync"

	"github.com/glaciergfx/glacier/engine/core"
	glmath "github.com/glaciergfx/glacier/engine/math"
	"github.com/glaciergfx/glacier/engine/renderer/gpu"
	"github.com/glaciergfx/glacier/engine/renderer/handle"
	"github.com/glaciergfx/glacier/engine/renderer/upload"
)

// ObjectTag types object handles.
type ObjectTag struct{}

type ObjectHandle = handle.Handle[ObjectTag]
type RawObjectHandle = handle.Raw[ObjectTag]

// Object describes one drawable instance. The system clones the mesh
// and material handles and holds them until the object is removed.
type Object struct {
	Mesh      MeshHandle
	Material  MaterialHandle
	Transform glmath.Transform
}

// Per-object GPU record: model matrix, first index, index count,
// material slot, enabled flag.
const objectShaderDataSize = 64 + 4*4

type objectSlot struct {
	mesh      MeshHandle
	material  MaterialHandle
	transform glmath.Transform
}

type dynamicState struct {
	prev glmath.Transform
	next glmath.Transform
}

// DynamicTransforms locates the per-frame interpolated matrices of
// dynamic objects inside a transient arena buffer. Each record is a
// uint32 object slot, 12 bytes of padding and a model matrix.
type DynamicTransforms struct {
	Buffer *gpu.Buffer
	Offset uint64
	Count  uint32
}

const dynamicRecordSize = 16 + 64

// ObjectSystem tracks drawable instances. Static objects live in a
// double-buffered storage buffer updated by scatter; removing one
// leaves a disabled tombstone record so frames in flight skip it.
// Dynamic objects additionally upload an interpolated transform every
// frame through a per-frame arena.
type ObjectSystem struct {
	mu        sync.Mutex
	device    *gpu.Device
	meshes    *MeshSystem
	materials *MaterialSystem

	buffer *upload.FreelistDoubleBuffer
	arena  *upload.MultiBufferArena

	// Dense per-slot storage; nil marks a tombstone.
	objects   []*objectSlot
	nextSlot  uint32
	freeSlots []uint32

	handles  *handle.Registry[ObjectTag, uint32]
	dynamics map[uint32]*dynamicState
	removals []uint32
}

func NewObjectSystem(device *gpu.Device, bindless *gpu.BindlessResources, meshes *MeshSystem, materials *MaterialSystem, framesInFlight int) *ObjectSystem {
	os := &ObjectSystem{
		device:    device,
		meshes:    meshes,
		materials: materials,
		buffer:    upload.NewFreelistDoubleBuffer(device, bindless, objectShaderDataSize, "objects"),
		arena:     upload.NewMultiBufferArena(device, framesInFlight, "dynamic-transforms"),
		dynamics:  make(map[uint32]*dynamicState),
	}
	os.handles = handle.NewRegistry[ObjectTag, uint32](&handle.FreelistAllocator{},
		func(_ RawObjectHandle, slot uint32) {
			os.mu.Lock()
			defer os.mu.Unlock()
			os.removals = append(os.removals, slot)
		})
	return os
}

// Add registers an object. Dynamic objects interpolate between the two
// most recent transforms instead of snapping to the last one. Pairing a
// material with a mesh that lacks a required vertex stream is a logic
// error.
func (os *ObjectSystem) Add(object Object, dynamic bool) ObjectHandle {
	os.checkAttributes(object)

	os.mu.Lock()
	defer os.mu.Unlock()

	var slot uint32
	if n := len(os.freeSlots); n > 0 {
		slot = os.freeSlots[n-1]
		os.freeSlots = os.freeSlots[:n-1]
	} else {
		slot = os.nextSlot
		os.nextSlot++
	}
	for uint32(len(os.objects)) <= slot {
		os.objects = append(os.objects, nil)
	}
	os.objects[slot] = &objectSlot{
		mesh:      object.Mesh.Clone(),
		material:  object.Material.Clone(),
		transform: object.Transform,
	}
	os.buffer.UpdateSlot(slot)
	if dynamic {
		os.dynamics[slot] = &dynamicState{prev: object.Transform, next: object.Transform}
	}

	return os.handles.Register(slot)
}

// IterStaticObjects visits every live static object whose material
// belongs to archetype M, in slot order, for draw recording.
func IterStaticObjects[M Material](os *ObjectSystem, visit func(slot uint32, mesh InternalMesh, materialSlot uint32)) {
	key := reflect.TypeFor[M]()

	os.mu.Lock()
	defer os.mu.Unlock()
	for slot, obj := range os.objects {
		if obj == nil {
			continue
		}
		if _, dynamic := os.dynamics[uint32(slot)]; dynamic {
			continue
		}
		if arch, ok := os.materials.archetype(obj.material.Raw()); !ok || arch != key {
			continue
		}
		mesh, ok := os.meshes.Get(obj.mesh.Raw())
		if !ok {
			continue
		}
		materialSlot, _ := os.materials.Slot(obj.material.Raw())
		visit(uint32(slot), mesh, materialSlot)
	}
}

// checkAttributes verifies the mesh carries every vertex stream the
// material requires. Meshes that declared no attributes skip the check.
func (os *ObjectSystem) checkAttributes(object Object) {
	mesh, ok := os.meshes.Get(object.Mesh.Raw())
	if !ok || len(mesh.Attributes) == 0 {
		return
	}
	required, ok := os.materials.RequiredAttributes(object.Material.Raw())
	if !ok {
		return
	}
	for _, attr := range required {
		if !mesh.HasAttribute(attr) {
			panic(fmt.Sprintf("material requires vertex attribute %q the mesh does not provide", attr))
		}
	}
}

// SetTransform moves an object. For dynamic objects the previous
// transform is kept for interpolation; static objects re-upload their
// record at the next flush.
func (os *ObjectSystem) SetTransform(h ObjectHandle, transform glmath.Transform) {
	slot, ok := os.handles.Get(h.Raw())
	if !ok {
		panic("moving an unknown object handle")
	}

	os.mu.Lock()
	defer os.mu.Unlock()
	if state, dynamic := os.dynamics[slot]; dynamic {
		state.prev = state.next
		state.next = transform
		os.objects[slot].transform = transform
		return
	}
	os.objects[slot].transform = transform
	os.buffer.UpdateSlot(slot)
}

// StartFrame rotates the dynamic transform arena to the given frame
// slot. Call after waiting on that slot's fence.
func (os *ObjectSystem) StartFrame(frameSlot int) {
	os.mu.Lock()
	defer os.mu.Unlock()
	os.arena.StartFrame(frameSlot)
}

// DataBufferHandle returns the bindless handle of the static object
// records buffer.
func (os *ObjectSystem) DataBufferHandle() gpu.BindlessHandle {
	os.mu.Lock()
	defer os.mu.Unlock()
	return os.buffer.Handle()
}

// Flush applies removals, uploads dirty static records and writes this
// frame's interpolated dynamic transforms at the given interpolation
// factor in [0, 1].
func (os *ObjectSystem) Flush(encoder *gpu.Encoder, scatter *upload.ScatterCopy, interpolation float32) (DynamicTransforms, error) {
	os.mu.Lock()
	defer os.mu.Unlock()

	for _, slot := range os.removals {
		obj := os.objects[slot]
		obj.mesh.Release()
		obj.material.Release()
		os.objects[slot] = nil
		delete(os.dynamics, slot)
		os.freeSlots = append(os.freeSlots, slot)
		// Re-sync the slot as a disabled tombstone.
		os.buffer.UpdateSlot(slot)
	}
	os.removals = os.removals[:0]

	objects := os.objects
	err := os.buffer.Flush(encoder, scatter, func(slot uint32, out []byte) {
		obj := objects[slot]
		if obj == nil {
			return
		}
		os.putObjectRecord(out, obj)
	})
	if err != nil {
		return DynamicTransforms{}, fmt.Errorf("failed to flush object records: %w", err)
	}

	return os.flushDynamics(encoder, interpolation)
}

func (os *ObjectSystem) putObjectRecord(out []byte, obj *objectSlot) {
	putMat4(out[0:64], obj.transform.Mat4())
	mesh, ok := os.meshes.Get(obj.mesh.Raw())
	if !ok {
		core.LogWarn("object references a dead mesh, leaving record disabled")
		return
	}
	materialSlot, ok := os.materials.Slot(obj.material.Raw())
	if !ok {
		core.LogWarn("object references a dead material, leaving record disabled")
		return
	}
	binary.LittleEndian.PutUint32(out[64:], uint32(mesh.IndexRange.Start))
	binary.LittleEndian.PutUint32(out[68:], mesh.IndexCount)
	binary.LittleEndian.PutUint32(out[72:], materialSlot)
	binary.LittleEndian.PutUint32(out[76:], 1)
}

func (os *ObjectSystem) flushDynamics(encoder *gpu.Encoder, interpolation float32) (DynamicTransforms, error) {
	if len(os.dynamics) == 0 {
		return DynamicTransforms{}, nil
	}
	alloc, err := os.arena.Allocate(uint64(len(os.dynamics))*dynamicRecordSize, gpu.MinStorageAlignMask)
	if err != nil {
		return DynamicTransforms{}, err
	}
	i := 0
	for slot, state := range os.dynamics {
		record := alloc.Bytes[i*dynamicRecordSize:]
		binary.LittleEndian.PutUint32(record[0:4], slot)
		putMat4(record[16:80], state.prev.Lerp(state.next, interpolation).Mat4())
		i++
	}
	encoder.Retain(alloc.Buffer.Retain())
	return DynamicTransforms{
		Buffer: alloc.Buffer,
		Offset: alloc.Offset,
		Count:  uint32(len(os.dynamics)),
	}, nil
}

func (os *ObjectSystem) Destroy() {
	os.mu.Lock()
	defer os.mu.Unlock()
	for slot, obj := range os.objects {
		if obj != nil {
			obj.mesh.Release()
			obj.material.Release()
			os.objects[slot] = nil
		}
	}
	os.buffer.Destroy()
	os.arena.Destroy()
}
