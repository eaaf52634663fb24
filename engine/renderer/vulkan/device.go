package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/glaciergfx/glacier/engine/core"
)

var deviceExtensions = []string{"VK_KHR_swapchain"}
var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}

func createInstance(appName string, validation bool, windowExtensions []string) (vk.Instance, error) {
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   safeString(appName),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        safeString("Glacier"),
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.MakeVersion(1, 2, 0),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(windowExtensions)),
		PpEnabledExtensionNames: safeStrings(windowExtensions),
	}
	if validation {
		createInfo.EnabledLayerCount = uint32(len(validationLayers))
		createInfo.PpEnabledLayerNames = safeStrings(validationLayers)
	}

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, nil, &instance); res != vk.Success {
		return nil, resultErr("vkCreateInstance", res)
	}
	return instance, nil
}

// pickPhysicalDevice selects a discrete GPU when one exists and finds a
// graphics queue family that can also present to the surface.
func (c *Context) pickPhysicalDevice() error {
	var count uint32
	vk.EnumeratePhysicalDevices(c.Instance, &count, nil)
	if count == 0 {
		return fmt.Errorf("no Vulkan-capable device found")
	}
	devices := make([]vk.PhysicalDevice, count)
	vk.EnumeratePhysicalDevices(c.Instance, &count, devices)

	for _, device := range devices {
		family, ok := c.findGraphicsFamily(device)
		if !ok {
			continue
		}
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(device, &properties)
		properties.Deref()

		c.PhysicalDevice = device
		c.GraphicsFamily = family
		vk.GetPhysicalDeviceMemoryProperties(device, &c.memoryProperties)
		name := string(properties.DeviceName[:])
		core.LogInfo("selected device %s", name[:findZero(properties.DeviceName[:])])

		if properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
			return nil
		}
	}
	if c.PhysicalDevice == nil {
		return fmt.Errorf("no device with a graphics queue that can present")
	}
	return nil
}

func (c *Context) findGraphicsFamily(device vk.PhysicalDevice) (uint32, bool) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, families)

	for i := uint32(0); i < count; i++ {
		families[i].Deref()
		if families[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
			continue
		}
		var supported vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(device, i, c.Surface, &supported)
		if supported == vk.True {
			return i, true
		}
	}
	return 0, false
}

func (c *Context) createLogicalDevice(validation bool) error {
	priorities := []float32{1.0}
	queueInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: c.GraphicsFamily,
		QueueCount:       1,
		PQueuePriorities: priorities,
	}

	// The bindless descriptor array needs update-after-bind and partial
	// binding, core in Vulkan 1.2.
	indexingFeatures := vk.PhysicalDeviceVulkan12Features{
		SType:                                         vk.StructureTypePhysicalDeviceVulkan12Features,
		DescriptorIndexing:                            vk.True,
		RuntimeDescriptorArray:                        vk.True,
		DescriptorBindingPartiallyBound:               vk.True,
		DescriptorBindingStorageBufferUpdateAfterBind: vk.True,
		DescriptorBindingUpdateUnusedWhilePending:     vk.True,
	}

	createInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		PNext:                   unsafe.Pointer(indexingFeatures.Ref()),
		QueueCreateInfoCount:    1,
		PQueueCreateInfos:       []vk.DeviceQueueCreateInfo{queueInfo},
		EnabledExtensionCount:   uint32(len(deviceExtensions)),
		PpEnabledExtensionNames: safeStrings(deviceExtensions),
	}
	if validation {
		createInfo.EnabledLayerCount = uint32(len(validationLayers))
		createInfo.PpEnabledLayerNames = safeStrings(validationLayers)
	}

	var device vk.Device
	if res := vk.CreateDevice(c.PhysicalDevice, &createInfo, c.Allocator, &device); res != vk.Success {
		return resultErr("vkCreateDevice", res)
	}
	c.LogicalDevice = device

	vk.GetDeviceQueue(c.LogicalDevice, c.GraphicsFamily, 0, &c.GraphicsQueue)
	c.PresentQueue = c.GraphicsQueue
	return nil
}

func findZero(arr []byte) int {
	for i, b := range arr {
		if b == 0 {
			return i
		}
	}
	return len(arr)
}
