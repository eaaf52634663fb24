package gpu

// QueueID identifies a device queue by family and index within the family.
type QueueID struct {
	Family uint32
	Index  uint32
}

// Opaque backend object identifiers. The backend owns the underlying
// driver handles and maps these to them.
type (
	BufferID              uint64
	FenceID               uint64
	PipelineID            uint64
	PipelineLayoutID      uint64
	DescriptorSetLayoutID uint64
	DescriptorSetID       uint64
	CommandBufferID       uint64
)

type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 1 << iota
	BufferUsageTransferDst
	BufferUsageStorage
	BufferUsageUniform
	BufferUsageIndex
	BufferUsageVertex
	BufferUsageIndirect
)

type MemoryUsage uint8

const (
	// MemoryUpload is host-visible memory the CPU writes and the GPU reads.
	MemoryUpload MemoryUsage = iota
	// MemoryDownload is host-visible memory the GPU writes and the CPU reads.
	MemoryDownload
	// MemoryFastDeviceAccess is device-local memory.
	MemoryFastDeviceAccess
)

// BufferInfo describes a buffer allocation. AlignMask is the required
// alignment minus one, so offsets are aligned with (x + mask) &^ mask.
type BufferInfo struct {
	AlignMask uint64
	Size      uint64
	Usage     BufferUsage
}

// BufferCopy is a single region of a buffer-to-buffer copy.
type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

type DescriptorType uint8

const (
	DescriptorTypeStorageBuffer DescriptorType = iota
	DescriptorTypeUniformBuffer
	DescriptorTypeSampledImage
	DescriptorTypeSampler
)

type DescriptorSetLayoutBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32

	// Bindless array bindings update while sets are bound elsewhere.
	UpdateAfterBind bool
	PartiallyBound  bool
}

type DescriptorSetLayoutInfo struct {
	Bindings []DescriptorSetLayoutBinding
}

// BufferRange is a slice of a buffer bound into a descriptor.
type BufferRange struct {
	Buffer BufferID
	Offset uint64
	Size   uint64
}

// DescriptorWrite updates consecutive elements of one binding.
type DescriptorWrite struct {
	Binding uint32
	Element uint32
	Buffers []BufferRange
}

type PushConstantRange struct {
	Offset uint32
	Size   uint32
}

type PipelineLayoutInfo struct {
	SetLayouts    []DescriptorSetLayoutID
	PushConstants []PushConstantRange
}

// ComputePipelineInfo describes a compute pipeline built from SPIR-V code.
type ComputePipelineInfo struct {
	Shader     []byte
	EntryPoint string
	Layout     PipelineLayoutID
}

// ComputePipeline pairs a pipeline with the layout it was created against.
type ComputePipeline struct {
	ID     PipelineID
	Layout PipelineLayoutID
}

const (
	// StagingAlignMask is the alignment of host staging data.
	StagingAlignMask uint64 = 0b11
	// MinStorageAlignMask is the minimum alignment of storage buffer items.
	MinStorageAlignMask uint64 = 0b1111
)

// AlignUp rounds a size up to the alignment described by a mask.
func AlignUp(value uint64, alignMask uint64) uint64 {
	return (value + alignMask) &^ alignMask
}
