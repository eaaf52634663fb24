package renderer_test

import (
	"testing"

	glmath "github.com/glaciergfx/glacier/engine/math"
	"github.com/glaciergfx/glacier/engine/renderer"
	"github.com/glaciergfx/glacier/engine/renderer/gpu/gputest"
	"github.com/glaciergfx/glacier/engine/systems"
)

type fakePresenter struct {
	acquires     int
	presents     int
	reconfigures int
	width        uint32
	height       uint32
	optimal      bool
}

func (p *fakePresenter) AcquireImage() (uint32, bool, error) {
	p.acquires++
	return uint32(p.acquires % 3), p.optimal, nil
}

func (p *fakePresenter) Present(imageIndex uint32) (bool, error) {
	p.presents++
	return p.optimal, nil
}

func (p *fakePresenter) Reconfigure(width, height uint32) error {
	p.reconfigures++
	p.width, p.height = width, height
	return nil
}

func newTestRenderer(t *testing.T) (*gputest.FakeBackend, *fakePresenter, *renderer.Renderer) {
	t.Helper()
	backend := gputest.NewFakeBackend()
	presenter := &fakePresenter{optimal: true}
	r, err := renderer.NewRenderer(renderer.Config{
		Backend:        backend,
		Presenter:      presenter,
		ScatterShader:  []byte{0, 0, 0, 0},
		FramesInFlight: 2,
		Width:          640,
		Height:         480,
	})
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return backend, presenter, r
}

func TestDrawPacesFramesAndPresents(t *testing.T) {
	_, presenter, r := newTestRenderer(t)
	defer r.Destroy()

	material := systems.InsertMaterial(r.Materials(), systems.DebugMaterial{
		Color: glmath.NewVec3(1, 0, 0),
	})
	defer material.Release()

	encoder, err := r.UploadEncoder()
	if err != nil {
		t.Fatalf("UploadEncoder: %v", err)
	}
	mesh, err := r.Meshes().Add(encoder, systems.MeshData{
		VertexData: make([]byte, 36),
		Indices:    []uint32{0, 1, 2},
	})
	if err != nil {
		t.Fatalf("Add mesh: %v", err)
	}
	defer mesh.Release()
	if err := r.SubmitUpload(encoder); err != nil {
		t.Fatalf("SubmitUpload: %v", err)
	}

	object := r.Objects().Add(systems.Object{
		Mesh:      mesh,
		Material:  material,
		Transform: glmath.TransformIdentity(),
	}, false)
	defer object.Release()

	for i := 0; i < 4; i++ {
		if err := r.Draw(1); err != nil {
			t.Fatalf("Draw %d: %v", i, err)
		}
	}
	if r.FrameIndex() != 4 {
		t.Fatalf("frame index = %d", r.FrameIndex())
	}
	if presenter.acquires != 4 || presenter.presents != 4 {
		t.Fatalf("acquires = %d, presents = %d", presenter.acquires, presenter.presents)
	}
	if presenter.reconfigures != 0 {
		t.Fatalf("swapchain rebuilt %d times without cause", presenter.reconfigures)
	}
	if !r.Objects().DataBufferHandle().Valid() {
		t.Fatal("object records never uploaded")
	}
}

func TestResizeRebuildsSwapchainNextDraw(t *testing.T) {
	_, presenter, r := newTestRenderer(t)
	defer r.Destroy()

	if err := r.Draw(1); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	r.Resize(800, 600)
	if err := r.Draw(1); err != nil {
		t.Fatalf("Draw after resize: %v", err)
	}

	if presenter.reconfigures != 1 {
		t.Fatalf("reconfigures = %d, want 1", presenter.reconfigures)
	}
	if presenter.width != 800 || presenter.height != 600 {
		t.Fatalf("rebuilt at %dx%d", presenter.width, presenter.height)
	}
}

func TestSuboptimalFramesEventuallyRebuild(t *testing.T) {
	_, presenter, r := newTestRenderer(t)
	defer r.Destroy()

	presenter.optimal = false
	// The rebuild triggers once the suboptimal streak hits the limit.
	for i := 0; i < 101; i++ {
		if err := r.Draw(1); err != nil {
			t.Fatalf("Draw %d: %v", i, err)
		}
	}
	if presenter.reconfigures != 1 {
		t.Fatalf("reconfigures = %d, want 1", presenter.reconfigures)
	}

	presenter.optimal = true
	if err := r.Draw(1); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if presenter.reconfigures != 1 {
		t.Fatal("rebuilt again after turning optimal")
	}
}
