package main

import (
	"flag"
	stdmath "math"
	"path/filepath"

	"github.com/glaciergfx/glacier/engine/assets"
	"github.com/glaciergfx/glacier/engine/config"
	"github.com/glaciergfx/glacier/engine/core"
	glmath "github.com/glaciergfx/glacier/engine/math"
	"github.com/glaciergfx/glacier/engine/platform"
	"github.com/glaciergfx/glacier/engine/renderer"
	"github.com/glaciergfx/glacier/engine/renderer/vulkan"
	"github.com/glaciergfx/glacier/engine/systems"
)

func main() {
	configPath := flag.String("config", "glacier.toml", "path to the engine configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		core.LogFatal("invalid configuration: %v", err)
	}
	core.SetVerbose(cfg.Verbose)
	core.MetricsInitialize()

	if err := run(cfg); err != nil {
		core.LogFatal("%v", err)
	}
}

func run(cfg config.Config) error {
	p, err := platform.New()
	if err != nil {
		return err
	}
	if err := p.Startup(cfg.AppName, cfg.Width, cfg.Height); err != nil {
		return err
	}
	defer p.Shutdown()

	shaders, err := assets.NewShaderRegistry(filepath.Join(cfg.AssetsDir, "shaders"))
	if err != nil {
		return err
	}
	defer shaders.Close()

	scatterShader, err := shaders.Load("scatter_copy.spv")
	if err != nil {
		return err
	}

	backend, err := vulkan.New(vulkan.Config{
		AppName:          cfg.AppName,
		Validation:       cfg.ValidationLayer,
		WindowExtensions: p.RequiredExtensions(),
		CreateSurface:    p.CreateSurface,
	})
	if err != nil {
		return err
	}
	swapchain, err := vulkan.NewSwapchain(backend, cfg.Width, cfg.Height)
	if err != nil {
		return err
	}
	defer swapchain.Destroy()

	r, err := renderer.NewRenderer(renderer.Config{
		Backend:          backend,
		Presenter:        swapchain,
		ScatterShader:    scatterShader,
		FramesInFlight:   cfg.FramesInFlight,
		BindlessCapacity: cfg.BindlessCapacity,
		Width:            cfg.Width,
		Height:           cfg.Height,
	})
	if err != nil {
		return err
	}
	defer r.Destroy()

	p.OnResize(r.Resize)

	scene, err := buildDemoScene(r)
	if err != nil {
		return err
	}
	defer scene.release()

	clock := core.NewClock()
	clock.Start()
	last := 0.0
	nextReport := 5.0

	for p.PumpMessages() {
		clock.Update()
		elapsed := clock.Elapsed().Seconds()
		delta := elapsed - last
		last = elapsed

		scene.animate(r, float32(elapsed))
		if err := r.Draw(1); err != nil {
			return err
		}
		core.MetricsUpdate(delta)
		if elapsed >= nextReport {
			fps, avgMS := core.MetricsFrame()
			core.LogDebug("%.0f fps, %.2f ms avg frame", fps, avgMS)
			nextReport = elapsed + 5
		}
	}
	return nil
}

type demoScene struct {
	mesh     systems.MeshHandle
	material systems.MaterialHandle
	spinner  systems.ObjectHandle
	statics  []systems.ObjectHandle
}

// buildDemoScene uploads a triangle and spreads a few instances of it
// around, one of them animated.
func buildDemoScene(r *renderer.Renderer) (*demoScene, error) {
	encoder, err := r.UploadEncoder()
	if err != nil {
		return nil, err
	}

	mesh, err := r.Meshes().Add(encoder, systems.MeshData{
		VertexData: triangleVertices(),
		Indices:    []uint32{0, 1, 2},
		Attributes: []systems.VertexAttribute{systems.VertexPosition},
	})
	if err != nil {
		return nil, err
	}
	if err := r.SubmitUpload(encoder); err != nil {
		return nil, err
	}

	material := systems.InsertMaterial(r.Materials(), systems.DebugMaterial{
		Color: glmath.NewVec3(0.9, 0.4, 0.1),
	})

	scene := &demoScene{mesh: mesh, material: material}
	for i := 0; i < 4; i++ {
		transform := glmath.TransformIdentity()
		transform.Position = glmath.NewVec3(float32(i)*2-3, 0, -5)
		scene.statics = append(scene.statics, r.Objects().Add(systems.Object{
			Mesh:      mesh,
			Material:  material,
			Transform: transform,
		}, false))
	}
	scene.spinner = r.Objects().Add(systems.Object{
		Mesh:      mesh,
		Material:  material,
		Transform: glmath.TransformIdentity(),
	}, true)
	return scene, nil
}

func (s *demoScene) animate(r *renderer.Renderer, elapsed float32) {
	transform := glmath.TransformIdentity()
	transform.Position = glmath.NewVec3(0, 1.5, -5)
	transform.Rotation = glmath.QuatFromAxisAngle(glmath.NewVec3(0, 1, 0), elapsed)
	r.Objects().SetTransform(s.spinner, transform)
}

func (s *demoScene) release() {
	s.spinner.Release()
	for _, h := range s.statics {
		h.Release()
	}
	s.material.Release()
	s.mesh.Release()
}

// triangleVertices packs three positions as float32 triplets.
func triangleVertices() []byte {
	positions := []float32{
		0, 0.5, 0,
		-0.5, -0.5, 0,
		0.5, -0.5, 0,
	}
	out := make([]byte, len(positions)*4)
	for i, v := range positions {
		bits := stdmath.Float32bits(v)
		out[i*4] = byte(bits)
		out[i*4+1] = byte(bits >> 8)
		out[i*4+2] = byte(bits >> 16)
		out[i*4+3] = byte(bits >> 24)
	}
	return out
}
