package gpu

// Backend is the driver-facing surface of the device. The vulkan package
// implements it against a real driver, the gputest package implements it
// in memory for tests. All methods are called from the render thread
// unless noted otherwise.
type Backend interface {
	Queues() []QueueID

	CreateBuffer(info BufferInfo, memory MemoryUsage) (BufferID, error)
	DestroyBuffer(id BufferID)
	// MapMemory returns the host-visible bytes of an Upload or Download
	// buffer. The mapping stays valid until UnmapMemory.
	MapMemory(id BufferID) ([]byte, error)
	UnmapMemory(id BufferID)

	CreateFence() (FenceID, error)
	DestroyFence(id FenceID)
	// FenceStatus reports whether the fence has been signalled by the device.
	FenceStatus(id FenceID) (bool, error)
	WaitFences(ids []FenceID, all bool) error
	ResetFences(ids []FenceID) error

	CreateDescriptorSetLayout(info DescriptorSetLayoutInfo) (DescriptorSetLayoutID, error)
	DestroyDescriptorSetLayout(id DescriptorSetLayoutID)
	CreatePipelineLayout(info PipelineLayoutInfo) (PipelineLayoutID, error)
	DestroyPipelineLayout(id PipelineLayoutID)
	CreateComputePipeline(info ComputePipelineInfo) (PipelineID, error)
	DestroyPipeline(id PipelineID)
	CreateDescriptorSet(layout DescriptorSetLayoutID) (DescriptorSetID, error)
	DestroyDescriptorSet(id DescriptorSetID)
	UpdateDescriptorSet(id DescriptorSetID, writes []DescriptorWrite)

	AllocateCommandBuffer(queue QueueID, secondary bool) (CommandBufferID, error)
	ResetCommandBuffer(id CommandBufferID) error
	BeginCommandBuffer(id CommandBufferID) error
	EndCommandBuffer(id CommandBufferID) error

	CmdCopyBuffer(cb CommandBufferID, src, dst BufferID, regions []BufferCopy)
	CmdBindComputePipeline(cb CommandBufferID, pipeline PipelineID)
	CmdBindComputeDescriptorSets(cb CommandBufferID, layout PipelineLayoutID, first uint32, sets []DescriptorSetID)
	CmdPushConstants(cb CommandBufferID, layout PipelineLayoutID, offset uint32, data []byte)
	CmdDispatch(cb CommandBufferID, x, y, z uint32)
	CmdExecuteCommands(cb CommandBufferID, secondaries []CommandBufferID)

	// Submit enqueues a primary command buffer. A zero fence means no
	// fence is signalled for this submission.
	Submit(queue QueueID, cb CommandBufferID, fence FenceID) error
	QueueWaitIdle(queue QueueID) error
	WaitIdle() error

	Destroy()
}
