package platform

import (
	"fmt"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/glaciergfx/glacier/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// Platform owns the window and the Vulkan loader hookup.
type Platform struct {
	Window *glfw.Window

	resizeCallback func(width, height uint32)
}

func New() (*Platform, error) {
	return &Platform{}, nil
}

func (p *Platform) Startup(applicationName string, width, height uint32) error {
	if err := glfw.Init(); err != nil {
		core.LogFatal("failed to initialize glfw: %s", err)
		return err
	}

	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		core.LogFatal("failed to create window: %s", err)
		return err
	}
	p.Window = window

	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	if err := vk.Init(); err != nil {
		return fmt.Errorf("failed to initialize the vulkan loader: %w", err)
	}

	p.Window.SetFramebufferSizeCallback(func(_ *glfw.Window, w, h int) {
		if p.resizeCallback != nil {
			p.resizeCallback(uint32(w), uint32(h))
		}
	})
	return nil
}

// OnResize registers the framebuffer resize handler.
func (p *Platform) OnResize(fn func(width, height uint32)) {
	p.resizeCallback = fn
}

// RequiredExtensions returns the instance extensions the window system
// needs.
func (p *Platform) RequiredExtensions() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

// CreateSurface attaches a Vulkan surface to the window.
func (p *Platform) CreateSurface(instance vk.Instance) (vk.Surface, error) {
	surface, err := p.Window.CreateWindowSurface(instance, nil)
	if err != nil {
		return vk.NullSurface, err
	}
	return vk.SurfaceFromPointer(surface), nil
}

// PumpMessages processes pending window events. Reports false once the
// window wants to close.
func (p *Platform) PumpMessages() bool {
	glfw.PollEvents()
	return !p.Window.ShouldClose()
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
	}
	glfw.Terminate()
	return nil
}
