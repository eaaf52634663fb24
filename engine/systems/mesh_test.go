package systems_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/glaciergfx/glacier/engine/renderer/gpu"
	"github.com/glaciergfx/glacier/engine/systems"
)

func (e *sysEnv) addMesh(t *testing.T, msys *systems.MeshSystem, encoder *gpu.Encoder, data systems.MeshData) systems.MeshHandle {
	t.Helper()
	h, err := msys.Add(encoder, data)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	return h
}

func TestMeshAddUploadsIntoSharedBuffers(t *testing.T) {
	env := newSysEnv(t)
	msys, err := systems.NewMeshSystem(env.device)
	if err != nil {
		t.Fatalf("NewMeshSystem: %v", err)
	}
	defer msys.Destroy()

	vertices := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	indices := []uint32{0, 1, 2}

	encoder, err := env.queue.CreateEncoder()
	if err != nil {
		t.Fatalf("CreateEncoder: %v", err)
	}
	h := env.addMesh(t, msys, encoder, systems.MeshData{VertexData: vertices, Indices: indices})
	defer h.Release()
	env.submit(t, encoder)

	mesh, ok := msys.Get(h.Raw())
	if !ok {
		t.Fatal("mesh not found after add")
	}
	if mesh.VertexRange.Start != 0 || mesh.VertexRange.End != 12 {
		t.Fatalf("vertex range = %+v", mesh.VertexRange)
	}
	if mesh.IndexRange.Start != 0 || mesh.IndexRange.End != 3 || mesh.IndexCount != 3 {
		t.Fatalf("index range = %+v, count %d", mesh.IndexRange, mesh.IndexCount)
	}

	vb := env.backend.Buffer(msys.VertexBuffer().ID()).Data
	if !bytes.Equal(vb[:12], vertices) {
		t.Fatalf("vertex buffer = % x", vb[:12])
	}
	ib := env.backend.Buffer(msys.IndexBuffer().ID()).Data
	for i, want := range indices {
		if got := binary.LittleEndian.Uint32(ib[i*4:]); got != want {
			t.Fatalf("index %d = %d, want %d", i, got, want)
		}
	}
	// Staging retired with the epoch.
	if env.backend.LiveBuffers() != 2 {
		t.Fatalf("%d buffers live, want the two shared buffers", env.backend.LiveBuffers())
	}
}

func TestMeshReleaseDefersRangeReuse(t *testing.T) {
	env := newSysEnv(t)
	msys, err := systems.NewMeshSystem(env.device)
	if err != nil {
		t.Fatalf("NewMeshSystem: %v", err)
	}
	defer msys.Destroy()

	data := systems.MeshData{
		VertexData: make([]byte, 24),
		Indices:    []uint32{0, 1, 2},
	}

	encoder, err := env.queue.CreateEncoder()
	if err != nil {
		t.Fatalf("CreateEncoder: %v", err)
	}
	first := env.addMesh(t, msys, encoder, data)
	raw := first.Raw()
	first.Release()

	if _, ok := msys.Get(raw); ok {
		t.Fatal("released mesh still resolves")
	}

	// The range stays out of circulation until the frames that may
	// still draw it have been waited on.
	second := env.addMesh(t, msys, encoder, data)
	defer second.Release()
	if mesh, _ := msys.Get(second.Raw()); mesh.VertexRange.Start == 0 {
		t.Fatal("released range reused before FlushFrees")
	}

	msys.FlushFrees()
	third := env.addMesh(t, msys, encoder, data)
	defer third.Release()
	if mesh, _ := msys.Get(third.Raw()); mesh.VertexRange.Start != 0 {
		t.Fatalf("freed range not reused, got start %d", mesh.VertexRange.Start)
	}
	env.submit(t, encoder)
}

func TestMeshIndexBufferGrows(t *testing.T) {
	env := newSysEnv(t)
	msys, err := systems.NewMeshSystem(env.device)
	if err != nil {
		t.Fatalf("NewMeshSystem: %v", err)
	}
	defer msys.Destroy()

	encoder, err := env.queue.CreateEncoder()
	if err != nil {
		t.Fatalf("CreateEncoder: %v", err)
	}
	small := env.addMesh(t, msys, encoder, systems.MeshData{
		VertexData: []byte{1, 2, 3, 4},
		Indices:    []uint32{7, 8, 9},
	})
	defer small.Release()
	before := msys.IndexBuffer()

	// More indices than the initial buffer holds.
	big := make([]uint32, 1<<16+64)
	for i := range big {
		big[i] = uint32(i)
	}
	large := env.addMesh(t, msys, encoder, systems.MeshData{
		VertexData: []byte{1, 2, 3, 4},
		Indices:    big,
	})
	defer large.Release()

	after := msys.IndexBuffer()
	if after == before {
		t.Fatal("index buffer did not grow")
	}
	env.submit(t, encoder)

	// The first mesh's indices came along in the grow copy.
	mesh, _ := msys.Get(small.Raw())
	data := env.backend.Buffer(after.ID()).Data
	for i, want := range []uint32{7, 8, 9} {
		offset := (mesh.IndexRange.Start + uint64(i)) * 4
		if got := binary.LittleEndian.Uint32(data[offset:]); got != want {
			t.Fatalf("carried index %d = %d, want %d", i, got, want)
		}
	}
	largeMesh, _ := msys.Get(large.Raw())
	for _, i := range []int{1, len(big) - 1} {
		offset := (largeMesh.IndexRange.Start + uint64(i)) * 4
		if got := binary.LittleEndian.Uint32(data[offset:]); got != big[i] {
			t.Fatalf("large mesh index %d = %d, want %d", i, got, big[i])
		}
	}
}

func TestMeshAddRejectsEmptyData(t *testing.T) {
	env := newSysEnv(t)
	msys, err := systems.NewMeshSystem(env.device)
	if err != nil {
		t.Fatalf("NewMeshSystem: %v", err)
	}
	defer msys.Destroy()

	encoder, err := env.queue.CreateEncoder()
	if err != nil {
		t.Fatalf("CreateEncoder: %v", err)
	}
	if _, err := msys.Add(encoder, systems.MeshData{Indices: []uint32{0}}); err == nil {
		t.Fatal("mesh without vertices accepted")
	}
	if _, err := msys.Add(encoder, systems.MeshData{VertexData: []byte{1}}); err == nil {
		t.Fatal("mesh without indices accepted")
	}
	env.submit(t, encoder)
}
