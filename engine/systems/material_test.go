package systems_test

import (
	"encoding/binary"
	"math"
	"testing"

	glmath "github.com/glaciergfx/glacier/engine/math"
	"github.com/glaciergfx/glacier/engine/renderer/gpu"
	"github.com/glaciergfx/glacier/engine/renderer/gpu/gputest"
	"github.com/glaciergfx/glacier/engine/renderer/upload"
	"github.com/glaciergfx/glacier/engine/systems"
)

type sysEnv struct {
	backend  *gputest.FakeBackend
	device   *gpu.Device
	queue    *gpu.Queue
	bindless *gpu.BindlessResources
	scatter  *upload.ScatterCopy
}

func newSysEnv(t *testing.T) *sysEnv {
	t.Helper()
	backend := gputest.NewFakeBackend()
	device := gpu.NewDevice(backend)
	bindless, err := gpu.NewBindlessResources(device, 64, 2)
	if err != nil {
		t.Fatalf("NewBindlessResources: %v", err)
	}
	scatter, err := upload.NewScatterCopy(device, []byte{0, 0, 0, 0})
	if err != nil {
		t.Fatalf("NewScatterCopy: %v", err)
	}
	return &sysEnv{
		backend:  backend,
		device:   device,
		queue:    device.Queue(gputest.DefaultQueue),
		bindless: bindless,
		scatter:  scatter,
	}
}

// submit runs the encoder's commands on the fake device and closes the
// submission's epoch.
func (e *sysEnv) submit(t *testing.T, encoder *gpu.Encoder) {
	t.Helper()
	fence, err := e.device.CreateFence()
	if err != nil {
		t.Fatalf("CreateFence: %v", err)
	}
	cb, err := encoder.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if _, err := e.queue.Submit(cb, fence); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	e.backend.CompleteAll()
	if err := e.device.WaitFences(true, fence); err != nil {
		t.Fatalf("WaitFences: %v", err)
	}
	fence.Destroy()
}

func (e *sysEnv) flushMaterials(t *testing.T, ms *systems.MaterialSystem) {
	t.Helper()
	encoder, err := e.queue.CreateEncoder()
	if err != nil {
		t.Fatalf("CreateEncoder: %v", err)
	}
	if err := ms.Flush(encoder, e.scatter); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	e.submit(t, encoder)
}

// DebugMaterial records pad from 12 bytes to the 16-byte storage stride.
const debugMaterialStride = 16

func (e *sysEnv) debugColorAt(t *testing.T, ms *systems.MaterialSystem, slot uint32) glmath.Vec3 {
	t.Helper()
	h := systems.MaterialsDataBufferHandle[systems.DebugMaterial](ms)
	buffer := e.bindless.StorageBuffer(h)
	if buffer == nil {
		t.Fatal("archetype buffer handle does not resolve")
	}
	data := e.backend.Buffer(buffer.ID()).Data[slot*debugMaterialStride:]
	return glmath.NewVec3(
		math.Float32frombits(binary.LittleEndian.Uint32(data[0:4])),
		math.Float32frombits(binary.LittleEndian.Uint32(data[4:8])),
		math.Float32frombits(binary.LittleEndian.Uint32(data[8:12])),
	)
}

func TestMaterialInsertAndFlush(t *testing.T) {
	env := newSysEnv(t)
	ms := systems.NewMaterialSystem(env.device, env.bindless)
	defer ms.Destroy()

	colors := []glmath.Vec3{
		glmath.NewVec3(1, 0, 0),
		glmath.NewVec3(0, 1, 0),
		glmath.NewVec3(0, 0, 1),
	}
	handles := make([]systems.MaterialHandle, len(colors))
	for i, c := range colors {
		handles[i] = systems.InsertMaterial(ms, systems.DebugMaterial{Color: c})
	}
	if systems.MaterialsDataBufferHandle[systems.DebugMaterial](ms).Valid() {
		t.Fatal("archetype buffer handle valid before the first flush")
	}

	env.flushMaterials(t, ms)
	for i, want := range colors {
		slot, ok := ms.Slot(handles[i].Raw())
		if !ok {
			t.Fatalf("material %d has no slot", i)
		}
		if got := env.debugColorAt(t, ms, slot); got != want {
			t.Fatalf("slot %d color = %v, want %v", slot, got, want)
		}
	}
	for _, h := range handles {
		h.Release()
	}
}

func TestMaterialUpdateReuploads(t *testing.T) {
	env := newSysEnv(t)
	ms := systems.NewMaterialSystem(env.device, env.bindless)
	defer ms.Destroy()

	h := systems.InsertMaterial(ms, systems.DebugMaterial{Color: glmath.NewVec3(1, 1, 1)})
	defer h.Release()
	env.flushMaterials(t, ms)

	want := glmath.NewVec3(0.25, 0.5, 0.75)
	systems.UpdateMaterial(ms, h, systems.DebugMaterial{Color: want})
	env.flushMaterials(t, ms)

	slot, _ := ms.Slot(h.Raw())
	if got := env.debugColorAt(t, ms, slot); got != want {
		t.Fatalf("updated color = %v, want %v", got, want)
	}
}

func TestMaterialRemovalReusesSlot(t *testing.T) {
	env := newSysEnv(t)
	ms := systems.NewMaterialSystem(env.device, env.bindless)
	defer ms.Destroy()

	keep := systems.InsertMaterial(ms, systems.DebugMaterial{Color: glmath.NewVec3(1, 0, 0)})
	defer keep.Release()
	gone := systems.InsertMaterial(ms, systems.DebugMaterial{Color: glmath.NewVec3(0, 1, 0)})
	goneSlot, _ := ms.Slot(gone.Raw())
	env.flushMaterials(t, ms)

	// The released handle dies immediately; its archetype slot is only
	// recycled at the next flush.
	gone.Release()
	if _, ok := ms.Slot(gone.Raw()); ok {
		t.Fatal("released handle still resolves")
	}
	early := systems.InsertMaterial(ms, systems.DebugMaterial{Color: glmath.NewVec3(1, 1, 0)})
	defer early.Release()
	if earlySlot, _ := ms.Slot(early.Raw()); earlySlot == goneSlot {
		t.Fatal("slot reused before the removal was flushed")
	}
	env.flushMaterials(t, ms)

	want := glmath.NewVec3(0, 0, 1)
	fresh := systems.InsertMaterial(ms, systems.DebugMaterial{Color: want})
	defer fresh.Release()
	freshSlot, _ := ms.Slot(fresh.Raw())
	if freshSlot != goneSlot {
		t.Fatalf("fresh material took slot %d, want recycled slot %d", freshSlot, goneSlot)
	}

	env.flushMaterials(t, ms)
	if got := env.debugColorAt(t, ms, freshSlot); got != want {
		t.Fatalf("recycled slot color = %v, want %v", got, want)
	}
}

// wireMaterial is a second archetype for cross-type checks.
type wireMaterial struct {
	width float32
}

func (wireMaterial) ShaderDataSize() uint32 {
	return 4
}

func (m wireMaterial) PutShaderData(out []byte) {
	binary.LittleEndian.PutUint32(out, math.Float32bits(m.width))
}

func (wireMaterial) RequiredAttributes() []systems.VertexAttribute {
	return []systems.VertexAttribute{systems.VertexPosition}
}

func (wireMaterial) SupportedAttributes() []systems.VertexAttribute {
	return []systems.VertexAttribute{systems.VertexPosition}
}

func (wireMaterial) Sorting() systems.MaterialSorting {
	return systems.SortBackToFront
}

func TestMaterialArchetypesAreIndependent(t *testing.T) {
	env := newSysEnv(t)
	ms := systems.NewMaterialSystem(env.device, env.bindless)
	defer ms.Destroy()

	debug := systems.InsertMaterial(ms, systems.DebugMaterial{Color: glmath.NewVec3(1, 0, 0)})
	defer debug.Release()
	wire := systems.InsertMaterial(ms, wireMaterial{width: 2})
	defer wire.Release()
	env.flushMaterials(t, ms)

	// Both start at slot 0 of their own archetype buffer.
	debugSlot, _ := ms.Slot(debug.Raw())
	wireSlot, _ := ms.Slot(wire.Raw())
	if debugSlot != 0 || wireSlot != 0 {
		t.Fatalf("slots = %d, %d, want 0, 0", debugSlot, wireSlot)
	}
	dh := systems.MaterialsDataBufferHandle[systems.DebugMaterial](ms)
	wh := systems.MaterialsDataBufferHandle[wireMaterial](ms)
	if dh == wh {
		t.Fatal("archetypes share a buffer handle")
	}
}

func TestUpdateMaterialWrongTypePanics(t *testing.T) {
	env := newSysEnv(t)
	ms := systems.NewMaterialSystem(env.device, env.bindless)
	defer ms.Destroy()

	h := systems.InsertMaterial(ms, systems.DebugMaterial{})
	defer h.Release()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic updating with a different material type")
		}
	}()
	systems.UpdateMaterial(ms, h, wireMaterial{width: 1})
}

func TestMaterialsDataBufferHandleUnknownArchetype(t *testing.T) {
	env := newSysEnv(t)
	ms := systems.NewMaterialSystem(env.device, env.bindless)
	defer ms.Destroy()

	if systems.MaterialsDataBufferHandle[wireMaterial](ms).Valid() {
		t.Fatal("handle valid for an archetype that was never inserted")
	}
}
