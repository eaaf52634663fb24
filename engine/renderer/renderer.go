package renderer

import (
	"fmt"

	"github.com/glaciergfx/glacier/engine/core"
	"github.com/glaciergfx/glacier/engine/renderer/gpu"
	"github.com/glaciergfx/glacier/engine/renderer/upload"
	"github.com/glaciergfx/glacier/engine/systems"
)

// Presenter drives the swapchain. Implementations report suboptimal
// acquire/present results so the renderer can decide when to rebuild.
type Presenter interface {
	AcquireImage() (imageIndex uint32, optimal bool, err error)
	Present(imageIndex uint32) (optimal bool, err error)
	Reconfigure(width, height uint32) error
}

// A suboptimal swapchain is tolerated for this many frames before it is
// rebuilt.
const nonOptimalLimit = 100

// Config wires the renderer frontend together.
type Config struct {
	Backend        gpu.Backend
	Presenter      Presenter
	ScatterShader  []byte
	FramesInFlight int
	// Zero selects the default bindless array capacity.
	BindlessCapacity uint32
	Width, Height    uint32
}

// Renderer is the frontend that owns the device, the upload machinery
// and the scene systems, and ties them together into frames.
type Renderer struct {
	device   *gpu.Device
	queue    *gpu.Queue
	bindless *gpu.BindlessResources
	scatter  *upload.ScatterCopy

	materials *systems.MaterialSystem
	meshes    *systems.MeshSystem
	objects   *systems.ObjectSystem

	fences    *Fences
	presenter Presenter

	frameIndex      uint64
	nonOptimalCount int
	width, height   uint32

	// Dynamic transforms of the frame being recorded, consumed by the
	// backend draw path.
	dynamics systems.DynamicTransforms
}

func NewRenderer(cfg Config) (*Renderer, error) {
	device := gpu.NewDevice(cfg.Backend)
	queues := device.Queues()
	if len(queues) == 0 {
		return nil, fmt.Errorf("backend exposes no queues")
	}

	bindless, err := gpu.NewBindlessResources(device, cfg.BindlessCapacity, cfg.FramesInFlight)
	if err != nil {
		return nil, err
	}
	scatter, err := upload.NewScatterCopy(device, cfg.ScatterShader)
	if err != nil {
		bindless.Destroy()
		return nil, err
	}
	meshes, err := systems.NewMeshSystem(device)
	if err != nil {
		scatter.Destroy()
		bindless.Destroy()
		return nil, err
	}
	fences, err := NewFences(device, cfg.FramesInFlight)
	if err != nil {
		meshes.Destroy()
		scatter.Destroy()
		bindless.Destroy()
		return nil, err
	}

	materials := systems.NewMaterialSystem(device, bindless)
	r := &Renderer{
		device:    device,
		queue:     device.Queue(queues[0]),
		bindless:  bindless,
		scatter:   scatter,
		materials: materials,
		meshes:    meshes,
		objects:   systems.NewObjectSystem(device, bindless, meshes, materials, cfg.FramesInFlight),
		fences:    fences,
		presenter: cfg.Presenter,
		width:     cfg.Width,
		height:    cfg.Height,
	}
	core.LogInfo("renderer ready, %d frames in flight", cfg.FramesInFlight)
	return r, nil
}

func (r *Renderer) Device() *gpu.Device                { return r.device }
func (r *Renderer) Queue() *gpu.Queue                  { return r.queue }
func (r *Renderer) Bindless() *gpu.BindlessResources   { return r.bindless }
func (r *Renderer) Materials() *systems.MaterialSystem { return r.materials }
func (r *Renderer) Meshes() *systems.MeshSystem        { return r.meshes }
func (r *Renderer) Objects() *systems.ObjectSystem     { return r.objects }

// UploadEncoder starts an encoder on the main queue for out-of-frame
// uploads such as mesh creation.
func (r *Renderer) UploadEncoder() (*gpu.Encoder, error) {
	return r.queue.CreateEncoder()
}

// SubmitUpload submits an upload encoder without pacing it against the
// frame ring.
func (r *Renderer) SubmitUpload(encoder *gpu.Encoder) error {
	cb, err := encoder.Finish()
	if err != nil {
		return err
	}
	_, err = r.queue.Submit(cb, nil)
	return err
}

// DynamicTransforms returns the transient transform upload of the frame
// recorded by the last Draw.
func (r *Renderer) DynamicTransforms() systems.DynamicTransforms {
	return r.dynamics
}

// Resize records the new surface size. The swapchain is rebuilt on the
// next Draw.
func (r *Renderer) Resize(width, height uint32) {
	r.width, r.height = width, height
	r.nonOptimalCount = nonOptimalLimit
}

// Draw records and submits one frame. Slot reuse waits on the slot's
// fence, recycling the resources of the frame that previously used it.
// interpolation in [0, 1] blends dynamic objects between their two most
// recent transforms.
func (r *Renderer) Draw(interpolation float32) error {
	slot, fence, err := r.fences.WaitNext()
	if err != nil {
		return err
	}

	// The waited slot's resources are now reclaimable.
	r.bindless.FlushRetired()
	r.meshes.FlushFrees()
	r.objects.StartFrame(slot)

	if r.nonOptimalCount >= nonOptimalLimit {
		if err := r.device.WaitIdle(); err != nil {
			return fmt.Errorf("failed to drain device for swapchain rebuild: %w", err)
		}
		if err := r.presenter.Reconfigure(r.width, r.height); err != nil {
			return fmt.Errorf("failed to rebuild swapchain: %w", err)
		}
		r.nonOptimalCount = 0
	}

	imageIndex, acquireOptimal, err := r.presenter.AcquireImage()
	if err != nil {
		return fmt.Errorf("failed to acquire swapchain image: %w", err)
	}

	encoder, err := r.queue.CreateEncoder()
	if err != nil {
		return err
	}
	if err := r.materials.Flush(encoder, r.scatter); err != nil {
		return err
	}
	r.dynamics, err = r.objects.Flush(encoder, r.scatter, interpolation)
	if err != nil {
		return err
	}

	cb, err := encoder.Finish()
	if err != nil {
		return err
	}
	if _, err := r.queue.Submit(cb, fence); err != nil {
		return err
	}

	presentOptimal, err := r.presenter.Present(imageIndex)
	if err != nil {
		return fmt.Errorf("failed to present image %d: %w", imageIndex, err)
	}
	if acquireOptimal && presentOptimal {
		r.nonOptimalCount = 0
	} else {
		r.nonOptimalCount++
	}

	r.frameIndex++
	return nil
}

func (r *Renderer) FrameIndex() uint64 {
	return r.frameIndex
}

// Destroy drains the device and tears everything down in dependency
// order.
func (r *Renderer) Destroy() {
	if err := r.device.WaitIdle(); err != nil {
		core.LogError("wait idle failed during renderer destroy: %v", err)
	}
	r.fences.Destroy()
	r.objects.Destroy()
	r.meshes.FlushFrees()
	r.meshes.Destroy()
	r.materials.Destroy()
	r.scatter.Destroy()
	r.bindless.FlushRetired()
	r.bindless.Destroy()
	r.device.Destroy()
}
