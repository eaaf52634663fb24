package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"

	"github.com/glaciergfx/glacier/engine/core"
)

// Swapchain implements the renderer.Presenter interface. Image acquire
// synchronizes through a dedicated fence; presentation relies on queue
// submission order.
type Swapchain struct {
	backend *Backend

	handle       vk.Swapchain
	images       []vk.Image
	format       vk.SurfaceFormat
	extent       vk.Extent2D
	acquireFence vk.Fence
}

func NewSwapchain(backend *Backend, width, height uint32) (*Swapchain, error) {
	createInfo := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	var fence vk.Fence
	if res := vk.CreateFence(backend.context.LogicalDevice, &createInfo, backend.context.Allocator, &fence); res != vk.Success {
		return nil, resultErr("vkCreateFence", res)
	}
	s := &Swapchain{backend: backend, acquireFence: fence}
	if err := s.Reconfigure(width, height); err != nil {
		vk.DestroyFence(backend.context.LogicalDevice, fence, backend.context.Allocator)
		return nil, err
	}
	return s, nil
}

func (s *Swapchain) ImageCount() int {
	return len(s.images)
}

// Reconfigure rebuilds the swapchain for a new surface size. The device
// is drained first so in-flight frames cannot touch the old images.
func (s *Swapchain) Reconfigure(width, height uint32) error {
	context := s.backend.context
	vk.DeviceWaitIdle(context.LogicalDevice)

	var capabilities vk.SurfaceCapabilities
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(context.PhysicalDevice, context.Surface, &capabilities); res != vk.Success {
		return resultErr("vkGetPhysicalDeviceSurfaceCapabilities", res)
	}
	capabilities.Deref()
	capabilities.CurrentExtent.Deref()
	capabilities.MinImageExtent.Deref()
	capabilities.MaxImageExtent.Deref()

	format, err := s.chooseFormat()
	if err != nil {
		return err
	}
	s.format = format

	extent := capabilities.CurrentExtent
	if extent.Width == math.MaxUint32 {
		extent = vk.Extent2D{
			Width:  clampUint32(width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width),
			Height: clampUint32(height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height),
		}
	}
	s.extent = extent

	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && imageCount > capabilities.MaxImageCount {
		imageCount = capabilities.MaxImageCount
	}

	oldSwapchain := s.handle
	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      format.Format,
		ImageColorSpace:  format.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      vk.PresentModeFifo,
		Clipped:          vk.True,
		OldSwapchain:     oldSwapchain,
	}
	var swapchain vk.Swapchain
	if res := vk.CreateSwapchain(context.LogicalDevice, &createInfo, context.Allocator, &swapchain); res != vk.Success {
		return resultErr("vkCreateSwapchain", res)
	}
	if oldSwapchain != vk.NullSwapchain {
		vk.DestroySwapchain(context.LogicalDevice, oldSwapchain, context.Allocator)
	}
	s.handle = swapchain

	var count uint32
	vk.GetSwapchainImages(context.LogicalDevice, s.handle, &count, nil)
	s.images = make([]vk.Image, count)
	vk.GetSwapchainImages(context.LogicalDevice, s.handle, &count, s.images)

	core.LogDebug("swapchain rebuilt at %dx%d with %d images", extent.Width, extent.Height, count)
	return nil
}

func (s *Swapchain) chooseFormat() (vk.SurfaceFormat, error) {
	context := s.backend.context
	var count uint32
	vk.GetPhysicalDeviceSurfaceFormats(context.PhysicalDevice, context.Surface, &count, nil)
	if count == 0 {
		return vk.SurfaceFormat{}, fmt.Errorf("surface reports no formats")
	}
	formats := make([]vk.SurfaceFormat, count)
	vk.GetPhysicalDeviceSurfaceFormats(context.PhysicalDevice, context.Surface, &count, formats)

	for i := range formats {
		formats[i].Deref()
		if formats[i].Format == vk.FormatB8g8r8a8Unorm && formats[i].ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return formats[i], nil
		}
	}
	return formats[0], nil
}

// AcquireImage blocks until the next swapchain image is available.
func (s *Swapchain) AcquireImage() (uint32, bool, error) {
	context := s.backend.context

	var imageIndex uint32
	res := vk.AcquireNextImage(context.LogicalDevice, s.handle, math.MaxUint64, vk.NullSemaphore, s.acquireFence, &imageIndex)
	if res == vk.ErrorOutOfDate {
		if err := s.Reconfigure(s.extent.Width, s.extent.Height); err != nil {
			return 0, false, err
		}
		res = vk.AcquireNextImage(context.LogicalDevice, s.handle, math.MaxUint64, vk.NullSemaphore, s.acquireFence, &imageIndex)
	}
	if res != vk.Success && res != vk.Suboptimal {
		return 0, false, resultErr("vkAcquireNextImage", res)
	}

	if r := vk.WaitForFences(context.LogicalDevice, 1, []vk.Fence{s.acquireFence}, vk.True, math.MaxUint64); r != vk.Success {
		return 0, false, resultErr("vkWaitForFences", r)
	}
	vk.ResetFences(context.LogicalDevice, 1, []vk.Fence{s.acquireFence})
	return imageIndex, res == vk.Success, nil
}

// Present hands the image back to the surface.
func (s *Swapchain) Present(imageIndex uint32) (bool, error) {
	context := s.backend.context

	presentInfo := vk.PresentInfo{
		SType:          vk.StructureTypePresentInfo,
		SwapchainCount: 1,
		PSwapchains:    []vk.Swapchain{s.handle},
		PImageIndices:  []uint32{imageIndex},
	}
	switch res := vk.QueuePresent(context.PresentQueue, &presentInfo); res {
	case vk.Success:
		return true, nil
	case vk.Suboptimal, vk.ErrorOutOfDate:
		return false, nil
	default:
		return false, resultErr("vkQueuePresent", res)
	}
}

func (s *Swapchain) Destroy() {
	context := s.backend.context
	vk.DeviceWaitIdle(context.LogicalDevice)
	vk.DestroyFence(context.LogicalDevice, s.acquireFence, context.Allocator)
	if s.handle != vk.NullSwapchain {
		vk.DestroySwapchain(context.LogicalDevice, s.handle, context.Allocator)
		s.handle = vk.NullSwapchain
	}
}

func clampUint32(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
