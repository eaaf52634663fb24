package systems

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/glaciergfx/glacier/engine/core"
	"github.com/glaciergfx/glacier/engine/renderer/gpu"
	"github.com/glaciergfx/glacier/engine/renderer/handle"
	"github.com/glaciergfx/glacier/engine/renderer/upload"
)

type MaterialSorting uint8

const (
	SortFrontToBack MaterialSorting = iota
	SortBackToFront
)

// Material is implemented by every concrete material type. Materials of
// the same Go type share an archetype: a dense CPU array mirrored into
// one double-buffered GPU storage buffer.
type Material interface {
	// ShaderDataSize is the byte size of one std430 GPU record, constant
	// per type. Records are padded to the 16-byte storage alignment.
	ShaderDataSize() uint32
	// PutShaderData encodes the record into out, which is ShaderDataSize
	// bytes of zeroed memory.
	PutShaderData(out []byte)
	RequiredAttributes() []VertexAttribute
	SupportedAttributes() []VertexAttribute
	Sorting() MaterialSorting
}

// MaterialTag types material handles.
type MaterialTag struct{}

type MaterialHandle = handle.Handle[MaterialTag]
type RawMaterialHandle = handle.Raw[MaterialTag]

type materialLocation struct {
	archetype reflect.Type
	slot      uint32
}

type materialArchetype struct {
	itemSize uint32
	buffer   *upload.FreelistDoubleBuffer

	// Dense per-slot storage; nil marks a free slot whose GPU data is
	// stale until the slot is reused.
	slots     []Material
	nextSlot  uint32
	freeSlots []uint32
}

// MaterialSystem owns every material archetype. Handles released by
// their owners queue their slot for removal at the next flush, so GPU
// data referenced by frames in flight is never mutated early.
type MaterialSystem struct {
	mu       sync.Mutex
	device   *gpu.Device
	bindless *gpu.BindlessResources

	handles    *handle.Registry[MaterialTag, materialLocation]
	archetypes map[reflect.Type]*materialArchetype
	removals   []materialLocation
}

func NewMaterialSystem(device *gpu.Device, bindless *gpu.BindlessResources) *MaterialSystem {
	ms := &MaterialSystem{
		device:     device,
		bindless:   bindless,
		archetypes: make(map[reflect.Type]*materialArchetype),
	}
	ms.handles = handle.NewRegistry[MaterialTag, materialLocation](&handle.FreelistAllocator{},
		func(_ RawMaterialHandle, loc materialLocation) {
			ms.mu.Lock()
			defer ms.mu.Unlock()
			ms.removals = append(ms.removals, loc)
		})
	return ms
}

// InsertMaterial adds a material to its type's archetype and returns an
// owning handle. Releasing the last clone removes the material at the
// next flush.
func InsertMaterial[M Material](ms *MaterialSystem, material M) MaterialHandle {
	key := reflect.TypeFor[M]()

	ms.mu.Lock()
	defer ms.mu.Unlock()

	arch := ms.archetypes[key]
	if arch == nil {
		arch = &materialArchetype{
			itemSize: material.ShaderDataSize(),
			buffer: upload.NewFreelistDoubleBuffer(
				ms.device, ms.bindless, material.ShaderDataSize(),
				fmt.Sprintf("material-%s", key.Name()),
			),
		}
		ms.archetypes[key] = arch
		core.LogDebug("registered material archetype %s, %d bytes per slot", key, arch.itemSize)
	}

	var slot uint32
	if n := len(arch.freeSlots); n > 0 {
		slot = arch.freeSlots[n-1]
		arch.freeSlots = arch.freeSlots[:n-1]
	} else {
		slot = arch.nextSlot
		arch.nextSlot++
	}
	for uint32(len(arch.slots)) <= slot {
		arch.slots = append(arch.slots, nil)
	}
	arch.slots[slot] = material
	arch.buffer.UpdateSlot(slot)

	return ms.handles.Register(materialLocation{archetype: key, slot: slot})
}

// UpdateMaterial replaces the data of an existing material. The new
// value must have the exact type the handle was inserted with.
func UpdateMaterial[M Material](ms *MaterialSystem, h MaterialHandle, material M) {
	key := reflect.TypeFor[M]()

	loc, ok := ms.handles.Get(h.Raw())
	if !ok {
		panic("updating an unknown material handle")
	}
	if loc.archetype != key {
		panic(fmt.Sprintf("updating material of type %s with value of type %s", loc.archetype, key))
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	arch := ms.archetypes[key]
	arch.slots[loc.slot] = material
	arch.buffer.UpdateSlot(loc.slot)
}

// MaterialsDataBufferHandle returns the bindless handle of the archetype
// buffer for material type M. Invalid before the first flush or when no
// such material was ever inserted.
func MaterialsDataBufferHandle[M Material](ms *MaterialSystem) gpu.BindlessHandle {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	arch := ms.archetypes[reflect.TypeFor[M]()]
	if arch == nil {
		return gpu.InvalidBindlessHandle
	}
	return arch.buffer.Handle()
}

// Slot returns the archetype slot of a live material, for embedding in
// per-object shader data.
func (ms *MaterialSystem) Slot(raw RawMaterialHandle) (uint32, bool) {
	loc, ok := ms.handles.Get(raw)
	return loc.slot, ok
}

// archetype returns the concrete type a live material was inserted as.
func (ms *MaterialSystem) archetype(raw RawMaterialHandle) (reflect.Type, bool) {
	loc, ok := ms.handles.Get(raw)
	return loc.archetype, ok
}

// RequiredAttributes returns the vertex streams a live material needs.
func (ms *MaterialSystem) RequiredAttributes(raw RawMaterialHandle) ([]VertexAttribute, bool) {
	loc, ok := ms.handles.Get(raw)
	if !ok {
		return nil, false
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.archetypes[loc.archetype].slots[loc.slot].RequiredAttributes(), true
}

// Flush applies queued removals and uploads every archetype's dirty
// slots. Removed slots keep stale GPU data until reused.
func (ms *MaterialSystem) Flush(encoder *gpu.Encoder, scatter *upload.ScatterCopy) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for _, loc := range ms.removals {
		arch := ms.archetypes[loc.archetype]
		arch.slots[loc.slot] = nil
		arch.freeSlots = append(arch.freeSlots, loc.slot)
	}
	ms.removals = ms.removals[:0]

	for key, arch := range ms.archetypes {
		slots := arch.slots
		err := arch.buffer.Flush(encoder, scatter, func(slot uint32, out []byte) {
			if m := slots[slot]; m != nil {
				m.PutShaderData(out)
			}
		})
		if err != nil {
			return fmt.Errorf("failed to flush material archetype %s: %w", key, err)
		}
	}
	return nil
}

func (ms *MaterialSystem) Destroy() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for _, arch := range ms.archetypes {
		arch.buffer.Destroy()
	}
	ms.archetypes = make(map[reflect.Type]*materialArchetype)
}
