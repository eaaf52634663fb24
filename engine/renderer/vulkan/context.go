package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

// Context bundles the instance-level and device-level Vulkan state the
// backend operates on.
type Context struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device

	GraphicsFamily uint32
	GraphicsQueue  vk.Queue
	PresentQueue   vk.Queue

	memoryProperties vk.PhysicalDeviceMemoryProperties
}

// FindMemoryIndex picks a memory type matching the requirement bits and
// the wanted property flags.
func (c *Context) FindMemoryIndex(typeBits uint32, properties vk.MemoryPropertyFlags) (uint32, error) {
	c.memoryProperties.Deref()
	for i := uint32(0); i < c.memoryProperties.MemoryTypeCount; i++ {
		c.memoryProperties.MemoryTypes[i].Deref()
		if typeBits&(1<<i) == 0 {
			continue
		}
		if c.memoryProperties.MemoryTypes[i].PropertyFlags&properties == properties {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no memory type matches bits %#x with properties %#x", typeBits, properties)
}
