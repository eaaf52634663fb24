package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/glaciergfx/glacier/engine/renderer/gpu"
)

// resultErr maps a vk.Result onto the device error taxonomy. Device
// loss and the out-of-memory pair get typed errors so callers can react
// to them.
func resultErr(op string, result vk.Result) error {
	switch result {
	case vk.Success:
		return nil
	case vk.ErrorDeviceLost:
		return fmt.Errorf("%s: %w", op, gpu.ErrDeviceLost)
	case vk.ErrorOutOfDeviceMemory:
		return fmt.Errorf("%s: %w", op, &gpu.OutOfMemoryError{Device: true})
	case vk.ErrorOutOfHostMemory:
		return fmt.Errorf("%s: %w", op, &gpu.OutOfMemoryError{Device: false})
	default:
		return fmt.Errorf("%s: %s", op, vk.Error(result))
	}
}

var end = "\x00"

// safeString null-terminates a string for the C side.
func safeString(s string) string {
	if len(s) == 0 || s[len(s)-1] != '\x00' {
		return s + end
	}
	return s
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = safeString(list[i])
	}
	return out
}

func vkBool(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}

// bytesToUint32 reinterprets SPIR-V bytes as the word slice the shader
// module API wants.
func bytesToUint32(data []byte) []uint32 {
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
	}
	return words
}

func bufferUsageFlags(usage gpu.BufferUsage) vk.BufferUsageFlags {
	var flags vk.BufferUsageFlags
	if usage&gpu.BufferUsageTransferSrc != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit)
	}
	if usage&gpu.BufferUsageTransferDst != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	}
	if usage&gpu.BufferUsageStorage != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit)
	}
	if usage&gpu.BufferUsageUniform != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
	}
	if usage&gpu.BufferUsageIndex != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)
	}
	if usage&gpu.BufferUsageVertex != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)
	}
	if usage&gpu.BufferUsageIndirect != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageIndirectBufferBit)
	}
	return flags
}

func memoryPropertyFlags(memory gpu.MemoryUsage) vk.MemoryPropertyFlags {
	switch memory {
	case gpu.MemoryUpload:
		return vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	case gpu.MemoryDownload:
		return vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCachedBit)
	default:
		return vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	}
}

func descriptorType(t gpu.DescriptorType) vk.DescriptorType {
	switch t {
	case gpu.DescriptorTypeStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	case gpu.DescriptorTypeUniformBuffer:
		return vk.DescriptorTypeUniformBuffer
	case gpu.DescriptorTypeSampledImage:
		return vk.DescriptorTypeSampledImage
	case gpu.DescriptorTypeSampler:
		return vk.DescriptorTypeSampler
	}
	panic(fmt.Sprintf("unknown descriptor type %d", t))
}
