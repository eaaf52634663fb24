// Package vulkan implements the gpu.Backend and renderer.Presenter
// interfaces on top of the Vulkan API.
package vulkan

import (
	"fmt"
	"math"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/glaciergfx/glacier/engine/core"
	"github.com/glaciergfx/glacier/engine/renderer/gpu"
)

// Config describes how to bring the backend up. CreateSurface is called
// with the fresh instance so the windowing layer can attach its surface.
type Config struct {
	AppName          string
	Validation       bool
	WindowExtensions []string
	CreateSurface    func(instance vk.Instance) (vk.Surface, error)
}

type buffer struct {
	handle vk.Buffer
	memory vk.DeviceMemory
	size   vk.DeviceSize
}

// Backend owns every driver object behind the opaque gpu identifiers.
type Backend struct {
	context *Context

	mu     sync.Mutex
	nextID uint64

	buffers        map[gpu.BufferID]*buffer
	fences         map[gpu.FenceID]vk.Fence
	pipelines      map[gpu.PipelineID]vk.Pipeline
	pipeLayouts    map[gpu.PipelineLayoutID]vk.PipelineLayout
	setLayouts     map[gpu.DescriptorSetLayoutID]vk.DescriptorSetLayout
	sets           map[gpu.DescriptorSetID]vk.DescriptorSet
	commandBuffers map[gpu.CommandBufferID]vk.CommandBuffer

	commandPool    vk.CommandPool
	descriptorPool vk.DescriptorPool
}

func New(cfg Config) (*Backend, error) {
	instance, err := createInstance(cfg.AppName, cfg.Validation, cfg.WindowExtensions)
	if err != nil {
		return nil, err
	}
	context := &Context{Instance: instance}

	context.Surface, err = cfg.CreateSurface(instance)
	if err != nil {
		return nil, fmt.Errorf("failed to create window surface: %w", err)
	}
	if err := context.pickPhysicalDevice(); err != nil {
		return nil, err
	}
	if err := context.createLogicalDevice(cfg.Validation); err != nil {
		return nil, err
	}

	b := &Backend{
		context:        context,
		buffers:        make(map[gpu.BufferID]*buffer),
		fences:         make(map[gpu.FenceID]vk.Fence),
		pipelines:      make(map[gpu.PipelineID]vk.Pipeline),
		pipeLayouts:    make(map[gpu.PipelineLayoutID]vk.PipelineLayout),
		setLayouts:     make(map[gpu.DescriptorSetLayoutID]vk.DescriptorSetLayout),
		sets:           make(map[gpu.DescriptorSetID]vk.DescriptorSet),
		commandBuffers: make(map[gpu.CommandBufferID]vk.CommandBuffer),
	}
	if err := b.createPools(); err != nil {
		return nil, err
	}
	core.LogInfo("vulkan backend initialized")
	return b, nil
}

func (b *Backend) Context() *Context {
	return b.context
}

func (b *Backend) createPools() error {
	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: b.context.GraphicsFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(b.context.LogicalDevice, &poolInfo, b.context.Allocator, &pool); res != vk.Success {
		return resultErr("vkCreateCommandPool", res)
	}
	b.commandPool = pool

	sizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: 4096},
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 256},
	}
	descriptorInfo := vk.DescriptorPoolCreateInfo{
		SType: vk.StructureTypeDescriptorPoolCreateInfo,
		Flags: vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit |
			vk.DescriptorPoolCreateUpdateAfterBindBit),
		MaxSets:       1024,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	var descriptorPool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(b.context.LogicalDevice, &descriptorInfo, b.context.Allocator, &descriptorPool); res != vk.Success {
		return resultErr("vkCreateDescriptorPool", res)
	}
	b.descriptorPool = descriptorPool
	return nil
}

func (b *Backend) id() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	return b.nextID
}

func (b *Backend) Queues() []gpu.QueueID {
	return []gpu.QueueID{{Family: b.context.GraphicsFamily, Index: 0}}
}

func (b *Backend) CreateBuffer(info gpu.BufferInfo, memory gpu.MemoryUsage) (gpu.BufferID, error) {
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(info.Size),
		Usage:       bufferUsageFlags(info.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	if res := vk.CreateBuffer(b.context.LogicalDevice, &createInfo, b.context.Allocator, &handle); res != vk.Success {
		return 0, resultErr("vkCreateBuffer", res)
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(b.context.LogicalDevice, handle, &requirements)
	requirements.Deref()

	typeIndex, err := b.context.FindMemoryIndex(requirements.MemoryTypeBits, memoryPropertyFlags(memory))
	if err != nil {
		vk.DestroyBuffer(b.context.LogicalDevice, handle, b.context.Allocator)
		return 0, err
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: typeIndex,
	}
	var deviceMemory vk.DeviceMemory
	if res := vk.AllocateMemory(b.context.LogicalDevice, &allocInfo, b.context.Allocator, &deviceMemory); res != vk.Success {
		vk.DestroyBuffer(b.context.LogicalDevice, handle, b.context.Allocator)
		return 0, resultErr("vkAllocateMemory", res)
	}
	if res := vk.BindBufferMemory(b.context.LogicalDevice, handle, deviceMemory, 0); res != vk.Success {
		vk.FreeMemory(b.context.LogicalDevice, deviceMemory, b.context.Allocator)
		vk.DestroyBuffer(b.context.LogicalDevice, handle, b.context.Allocator)
		return 0, resultErr("vkBindBufferMemory", res)
	}

	id := gpu.BufferID(b.id())
	b.mu.Lock()
	b.buffers[id] = &buffer{handle: handle, memory: deviceMemory, size: vk.DeviceSize(info.Size)}
	b.mu.Unlock()
	return id, nil
}

func (b *Backend) DestroyBuffer(id gpu.BufferID) {
	b.mu.Lock()
	buf := b.buffers[id]
	delete(b.buffers, id)
	b.mu.Unlock()
	vk.DestroyBuffer(b.context.LogicalDevice, buf.handle, b.context.Allocator)
	vk.FreeMemory(b.context.LogicalDevice, buf.memory, b.context.Allocator)
}

func (b *Backend) buffer(id gpu.BufferID) *buffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffers[id]
}

func (b *Backend) MapMemory(id gpu.BufferID) ([]byte, error) {
	buf := b.buffer(id)
	var ptr unsafe.Pointer
	if res := vk.MapMemory(b.context.LogicalDevice, buf.memory, 0, buf.size, 0, &ptr); res != vk.Success {
		return nil, resultErr("vkMapMemory", res)
	}
	return unsafe.Slice((*byte)(ptr), int(buf.size)), nil
}

func (b *Backend) UnmapMemory(id gpu.BufferID) {
	vk.UnmapMemory(b.context.LogicalDevice, b.buffer(id).memory)
}

func (b *Backend) CreateFence() (gpu.FenceID, error) {
	createInfo := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	var fence vk.Fence
	if res := vk.CreateFence(b.context.LogicalDevice, &createInfo, b.context.Allocator, &fence); res != vk.Success {
		return 0, resultErr("vkCreateFence", res)
	}
	id := gpu.FenceID(b.id())
	b.mu.Lock()
	b.fences[id] = fence
	b.mu.Unlock()
	return id, nil
}

func (b *Backend) DestroyFence(id gpu.FenceID) {
	b.mu.Lock()
	fence := b.fences[id]
	delete(b.fences, id)
	b.mu.Unlock()
	vk.DestroyFence(b.context.LogicalDevice, fence, b.context.Allocator)
}

func (b *Backend) FenceStatus(id gpu.FenceID) (bool, error) {
	b.mu.Lock()
	fence := b.fences[id]
	b.mu.Unlock()
	switch res := vk.GetFenceStatus(b.context.LogicalDevice, fence); res {
	case vk.Success:
		return true, nil
	case vk.NotReady:
		return false, nil
	default:
		return false, resultErr("vkGetFenceStatus", res)
	}
}

func (b *Backend) WaitFences(ids []gpu.FenceID, all bool) error {
	fences := make([]vk.Fence, len(ids))
	b.mu.Lock()
	for i, id := range ids {
		fences[i] = b.fences[id]
	}
	b.mu.Unlock()
	res := vk.WaitForFences(b.context.LogicalDevice, uint32(len(fences)), fences, vkBool(all), math.MaxUint64)
	return resultErr("vkWaitForFences", res)
}

func (b *Backend) ResetFences(ids []gpu.FenceID) error {
	fences := make([]vk.Fence, len(ids))
	b.mu.Lock()
	for i, id := range ids {
		fences[i] = b.fences[id]
	}
	b.mu.Unlock()
	return resultErr("vkResetFences", vk.ResetFences(b.context.LogicalDevice, uint32(len(fences)), fences))
}

func (b *Backend) CreateDescriptorSetLayout(info gpu.DescriptorSetLayoutInfo) (gpu.DescriptorSetLayoutID, error) {
	bindings := make([]vk.DescriptorSetLayoutBinding, len(info.Bindings))
	bindingFlags := make([]vk.DescriptorBindingFlags, len(info.Bindings))
	var flagged, updateAfterBind bool
	for i, binding := range info.Bindings {
		bindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         binding.Binding,
			DescriptorType:  descriptorType(binding.Type),
			DescriptorCount: binding.Count,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageComputeBit | vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit),
		}
		if binding.UpdateAfterBind {
			bindingFlags[i] |= vk.DescriptorBindingFlags(vk.DescriptorBindingUpdateAfterBindBit)
			updateAfterBind = true
		}
		if binding.PartiallyBound {
			bindingFlags[i] |= vk.DescriptorBindingFlags(vk.DescriptorBindingPartiallyBoundBit)
		}
		if bindingFlags[i] != 0 {
			flagged = true
		}
	}
	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	if flagged {
		flagsInfo := vk.DescriptorSetLayoutBindingFlagsCreateInfo{
			SType:         vk.StructureTypeDescriptorSetLayoutBindingFlagsCreateInfo,
			BindingCount:  uint32(len(bindingFlags)),
			PBindingFlags: bindingFlags,
		}
		createInfo.PNext = unsafe.Pointer(flagsInfo.Ref())
	}
	if updateAfterBind {
		createInfo.Flags = vk.DescriptorSetLayoutCreateFlags(vk.DescriptorSetLayoutCreateUpdateAfterBindPoolBit)
	}
	var layout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(b.context.LogicalDevice, &createInfo, b.context.Allocator, &layout); res != vk.Success {
		return 0, resultErr("vkCreateDescriptorSetLayout", res)
	}
	id := gpu.DescriptorSetLayoutID(b.id())
	b.mu.Lock()
	b.setLayouts[id] = layout
	b.mu.Unlock()
	return id, nil
}

func (b *Backend) DestroyDescriptorSetLayout(id gpu.DescriptorSetLayoutID) {
	b.mu.Lock()
	layout := b.setLayouts[id]
	delete(b.setLayouts, id)
	b.mu.Unlock()
	vk.DestroyDescriptorSetLayout(b.context.LogicalDevice, layout, b.context.Allocator)
}

func (b *Backend) CreatePipelineLayout(info gpu.PipelineLayoutInfo) (gpu.PipelineLayoutID, error) {
	b.mu.Lock()
	layouts := make([]vk.DescriptorSetLayout, len(info.SetLayouts))
	for i, id := range info.SetLayouts {
		layouts[i] = b.setLayouts[id]
	}
	b.mu.Unlock()

	ranges := make([]vk.PushConstantRange, len(info.PushConstants))
	for i, r := range info.PushConstants {
		ranges[i] = vk.PushConstantRange{
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageComputeBit),
			Offset:     r.Offset,
			Size:       r.Size,
		}
	}
	createInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(layouts)),
		PSetLayouts:            layouts,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}
	var layout vk.PipelineLayout
	if res := vk.CreatePipelineLayout(b.context.LogicalDevice, &createInfo, b.context.Allocator, &layout); res != vk.Success {
		return 0, resultErr("vkCreatePipelineLayout", res)
	}
	id := gpu.PipelineLayoutID(b.id())
	b.mu.Lock()
	b.pipeLayouts[id] = layout
	b.mu.Unlock()
	return id, nil
}

func (b *Backend) DestroyPipelineLayout(id gpu.PipelineLayoutID) {
	b.mu.Lock()
	layout := b.pipeLayouts[id]
	delete(b.pipeLayouts, id)
	b.mu.Unlock()
	vk.DestroyPipelineLayout(b.context.LogicalDevice, layout, b.context.Allocator)
}

func (b *Backend) CreateComputePipeline(info gpu.ComputePipelineInfo) (gpu.PipelineID, error) {
	moduleInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(info.Shader)),
		PCode:    bytesToUint32(info.Shader),
	}
	var module vk.ShaderModule
	if res := vk.CreateShaderModule(b.context.LogicalDevice, &moduleInfo, b.context.Allocator, &module); res != vk.Success {
		return 0, resultErr("vkCreateShaderModule", res)
	}
	defer vk.DestroyShaderModule(b.context.LogicalDevice, module, b.context.Allocator)

	b.mu.Lock()
	layout := b.pipeLayouts[info.Layout]
	b.mu.Unlock()

	createInfo := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: module,
			PName:  safeString(info.EntryPoint),
		},
		Layout: layout,
	}
	pipelines := make([]vk.Pipeline, 1)
	res := vk.CreateComputePipelines(b.context.LogicalDevice, vk.NullPipelineCache, 1,
		[]vk.ComputePipelineCreateInfo{createInfo}, b.context.Allocator, pipelines)
	if res != vk.Success {
		return 0, resultErr("vkCreateComputePipelines", res)
	}
	id := gpu.PipelineID(b.id())
	b.mu.Lock()
	b.pipelines[id] = pipelines[0]
	b.mu.Unlock()
	return id, nil
}

func (b *Backend) DestroyPipeline(id gpu.PipelineID) {
	b.mu.Lock()
	pipeline := b.pipelines[id]
	delete(b.pipelines, id)
	b.mu.Unlock()
	vk.DestroyPipeline(b.context.LogicalDevice, pipeline, b.context.Allocator)
}

func (b *Backend) CreateDescriptorSet(layout gpu.DescriptorSetLayoutID) (gpu.DescriptorSetID, error) {
	b.mu.Lock()
	setLayout := b.setLayouts[layout]
	b.mu.Unlock()

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     b.descriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{setLayout},
	}
	var set vk.DescriptorSet
	if res := vk.AllocateDescriptorSets(b.context.LogicalDevice, &allocInfo, &set); res != vk.Success {
		return 0, resultErr("vkAllocateDescriptorSets", res)
	}
	id := gpu.DescriptorSetID(b.id())
	b.mu.Lock()
	b.sets[id] = set
	b.mu.Unlock()
	return id, nil
}

func (b *Backend) DestroyDescriptorSet(id gpu.DescriptorSetID) {
	b.mu.Lock()
	set := b.sets[id]
	delete(b.sets, id)
	b.mu.Unlock()
	vk.FreeDescriptorSets(b.context.LogicalDevice, b.descriptorPool, 1, &set)
}

func (b *Backend) UpdateDescriptorSet(id gpu.DescriptorSetID, writes []gpu.DescriptorWrite) {
	b.mu.Lock()
	set := b.sets[id]
	vkWrites := make([]vk.WriteDescriptorSet, len(writes))
	for i, write := range writes {
		infos := make([]vk.DescriptorBufferInfo, len(write.Buffers))
		for j, r := range write.Buffers {
			size := vk.DeviceSize(r.Size)
			if r.Size == 0 {
				size = vk.DeviceSize(vk.WholeSize)
			}
			infos[j] = vk.DescriptorBufferInfo{
				Buffer: b.buffers[r.Buffer].handle,
				Offset: vk.DeviceSize(r.Offset),
				Range:  size,
			}
		}
		vkWrites[i] = vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      write.Binding,
			DstArrayElement: write.Element,
			DescriptorCount: uint32(len(infos)),
			DescriptorType:  vk.DescriptorTypeStorageBuffer,
			PBufferInfo:     infos,
		}
	}
	b.mu.Unlock()
	vk.UpdateDescriptorSets(b.context.LogicalDevice, uint32(len(vkWrites)), vkWrites, 0, nil)
}

func (b *Backend) AllocateCommandBuffer(queue gpu.QueueID, secondary bool) (gpu.CommandBufferID, error) {
	level := vk.CommandBufferLevelPrimary
	if secondary {
		level = vk.CommandBufferLevelSecondary
	}
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        b.commandPool,
		Level:              level,
		CommandBufferCount: 1,
	}
	cbs := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(b.context.LogicalDevice, &allocInfo, cbs); res != vk.Success {
		return 0, resultErr("vkAllocateCommandBuffers", res)
	}
	id := gpu.CommandBufferID(b.id())
	b.mu.Lock()
	b.commandBuffers[id] = cbs[0]
	b.mu.Unlock()
	return id, nil
}

func (b *Backend) commandBuffer(id gpu.CommandBufferID) vk.CommandBuffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.commandBuffers[id]
}

func (b *Backend) ResetCommandBuffer(id gpu.CommandBufferID) error {
	return resultErr("vkResetCommandBuffer", vk.ResetCommandBuffer(b.commandBuffer(id), 0))
}

func (b *Backend) BeginCommandBuffer(id gpu.CommandBufferID) error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	return resultErr("vkBeginCommandBuffer", vk.BeginCommandBuffer(b.commandBuffer(id), &beginInfo))
}

func (b *Backend) EndCommandBuffer(id gpu.CommandBufferID) error {
	return resultErr("vkEndCommandBuffer", vk.EndCommandBuffer(b.commandBuffer(id)))
}

func (b *Backend) CmdCopyBuffer(cb gpu.CommandBufferID, src, dst gpu.BufferID, regions []gpu.BufferCopy) {
	vkRegions := make([]vk.BufferCopy, len(regions))
	for i, r := range regions {
		vkRegions[i] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		}
	}
	vk.CmdCopyBuffer(b.commandBuffer(cb), b.buffer(src).handle, b.buffer(dst).handle, uint32(len(vkRegions)), vkRegions)
}

func (b *Backend) CmdBindComputePipeline(cb gpu.CommandBufferID, pipeline gpu.PipelineID) {
	b.mu.Lock()
	p := b.pipelines[pipeline]
	b.mu.Unlock()
	vk.CmdBindPipeline(b.commandBuffer(cb), vk.PipelineBindPointCompute, p)
}

func (b *Backend) CmdBindComputeDescriptorSets(cb gpu.CommandBufferID, layout gpu.PipelineLayoutID, first uint32, sets []gpu.DescriptorSetID) {
	b.mu.Lock()
	vkLayout := b.pipeLayouts[layout]
	vkSets := make([]vk.DescriptorSet, len(sets))
	for i, id := range sets {
		vkSets[i] = b.sets[id]
	}
	b.mu.Unlock()
	vk.CmdBindDescriptorSets(b.commandBuffer(cb), vk.PipelineBindPointCompute, vkLayout, first, uint32(len(vkSets)), vkSets, 0, nil)
}

func (b *Backend) CmdPushConstants(cb gpu.CommandBufferID, layout gpu.PipelineLayoutID, offset uint32, data []byte) {
	b.mu.Lock()
	vkLayout := b.pipeLayouts[layout]
	b.mu.Unlock()
	vk.CmdPushConstants(b.commandBuffer(cb), vkLayout, vk.ShaderStageFlags(vk.ShaderStageComputeBit),
		offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (b *Backend) CmdDispatch(cb gpu.CommandBufferID, x, y, z uint32) {
	vk.CmdDispatch(b.commandBuffer(cb), x, y, z)
}

func (b *Backend) CmdExecuteCommands(cb gpu.CommandBufferID, secondaries []gpu.CommandBufferID) {
	b.mu.Lock()
	vkSecondaries := make([]vk.CommandBuffer, len(secondaries))
	for i, id := range secondaries {
		vkSecondaries[i] = b.commandBuffers[id]
	}
	b.mu.Unlock()
	vk.CmdExecuteCommands(b.commandBuffer(cb), uint32(len(vkSecondaries)), vkSecondaries)
}

func (b *Backend) Submit(queue gpu.QueueID, cb gpu.CommandBufferID, fence gpu.FenceID) error {
	vkFence := vk.NullFence
	if fence != 0 {
		b.mu.Lock()
		vkFence = b.fences[fence]
		b.mu.Unlock()
	}
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{b.commandBuffer(cb)},
	}
	res := vk.QueueSubmit(b.context.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, vkFence)
	return resultErr("vkQueueSubmit", res)
}

func (b *Backend) QueueWaitIdle(queue gpu.QueueID) error {
	return resultErr("vkQueueWaitIdle", vk.QueueWaitIdle(b.context.GraphicsQueue))
}

func (b *Backend) WaitIdle() error {
	return resultErr("vkDeviceWaitIdle", vk.DeviceWaitIdle(b.context.LogicalDevice))
}

func (b *Backend) Destroy() {
	vk.DeviceWaitIdle(b.context.LogicalDevice)

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, buf := range b.buffers {
		core.LogWarn("buffer %d leaked into backend teardown", id)
		vk.DestroyBuffer(b.context.LogicalDevice, buf.handle, b.context.Allocator)
		vk.FreeMemory(b.context.LogicalDevice, buf.memory, b.context.Allocator)
	}
	for _, fence := range b.fences {
		vk.DestroyFence(b.context.LogicalDevice, fence, b.context.Allocator)
	}
	for _, pipeline := range b.pipelines {
		vk.DestroyPipeline(b.context.LogicalDevice, pipeline, b.context.Allocator)
	}
	for _, layout := range b.pipeLayouts {
		vk.DestroyPipelineLayout(b.context.LogicalDevice, layout, b.context.Allocator)
	}
	for _, layout := range b.setLayouts {
		vk.DestroyDescriptorSetLayout(b.context.LogicalDevice, layout, b.context.Allocator)
	}
	vk.DestroyDescriptorPool(b.context.LogicalDevice, b.descriptorPool, b.context.Allocator)
	vk.DestroyCommandPool(b.context.LogicalDevice, b.commandPool, b.context.Allocator)
	vk.DestroyDevice(b.context.LogicalDevice, b.context.Allocator)
	vk.DestroySurface(b.context.Instance, b.context.Surface, b.context.Allocator)
	vk.DestroyInstance(b.context.Instance, b.context.Allocator)
}
