// Package gputest provides an in-memory Backend for tests. Buffers are
// plain byte slices, submissions complete when the test says the device
// finished, and dispatches execute the scatter upload kernel against
// the fake buffers so tests can assert real contents.
package gputest

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/glaciergfx/glacier/engine/renderer/gpu"
)

// DefaultQueue is the single queue the fake device exposes unless
// configured otherwise.
var DefaultQueue = gpu.QueueID{Family: 0, Index: 0}

type FakeBuffer struct {
	Data      []byte
	Info      gpu.BufferInfo
	Memory    gpu.MemoryUsage
	Destroyed bool
	mapped    bool
}

type fakeFence struct {
	signalled bool
	destroyed bool
}

type command func(f *FakeBackend)

type fakeCommandBuffer struct {
	queue     gpu.QueueID
	secondary bool
	recording bool
	commands  []command

	boundPipeline gpu.PipelineID
	boundSets     []gpu.DescriptorSetID
}

type fakeDescriptorSet struct {
	layout   gpu.DescriptorSetLayoutID
	bindings map[uint32][]gpu.BufferRange
}

type pendingSubmission struct {
	queue    gpu.QueueID
	commands []command
	fence    gpu.FenceID
}

// FakeBackend implements gpu.Backend entirely on the host. Submissions
// stay pending until Complete or CompleteAll simulates the device
// finishing them; the Wait* calls complete everything outstanding.
type FakeBackend struct {
	mu     sync.Mutex
	queues []gpu.QueueID
	nextID uint64

	buffers        map[gpu.BufferID]*FakeBuffer
	fences         map[gpu.FenceID]*fakeFence
	commandBuffers map[gpu.CommandBufferID]*fakeCommandBuffer
	pipelines      map[gpu.PipelineID]gpu.ComputePipelineInfo
	setLayouts     map[gpu.DescriptorSetLayoutID]gpu.DescriptorSetLayoutInfo
	pipeLayouts    map[gpu.PipelineLayoutID]gpu.PipelineLayoutInfo
	sets           map[gpu.DescriptorSetID]*fakeDescriptorSet

	pending   []pendingSubmission
	destroyed bool

	// FailBufferAllocs makes CreateBuffer fail with device OOM, for
	// exercising allocation error paths.
	FailBufferAllocs bool
}

func NewFakeBackend(queues ...gpu.QueueID) *FakeBackend {
	if len(queues) == 0 {
		queues = []gpu.QueueID{DefaultQueue}
	}
	return &FakeBackend{
		queues:         queues,
		buffers:        make(map[gpu.BufferID]*FakeBuffer),
		fences:         make(map[gpu.FenceID]*fakeFence),
		commandBuffers: make(map[gpu.CommandBufferID]*fakeCommandBuffer),
		pipelines:      make(map[gpu.PipelineID]gpu.ComputePipelineInfo),
		setLayouts:     make(map[gpu.DescriptorSetLayoutID]gpu.DescriptorSetLayoutInfo),
		pipeLayouts:    make(map[gpu.PipelineLayoutID]gpu.PipelineLayoutInfo),
		sets:           make(map[gpu.DescriptorSetID]*fakeDescriptorSet),
	}
}

func (f *FakeBackend) id() uint64 {
	f.nextID++
	return f.nextID
}

func (f *FakeBackend) Queues() []gpu.QueueID {
	return f.queues
}

func (f *FakeBackend) CreateBuffer(info gpu.BufferInfo, memory gpu.MemoryUsage) (gpu.BufferID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailBufferAllocs {
		return 0, &gpu.OutOfMemoryError{Device: true}
	}
	id := gpu.BufferID(f.id())
	f.buffers[id] = &FakeBuffer{Data: make([]byte, info.Size), Info: info, Memory: memory}
	return id, nil
}

func (f *FakeBackend) DestroyBuffer(id gpu.BufferID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := f.buffers[id]
	if buf == nil || buf.Destroyed {
		panic(fmt.Sprintf("destroying unknown or already destroyed buffer %d", id))
	}
	buf.Destroyed = true
}

func (f *FakeBackend) MapMemory(id gpu.BufferID) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := f.liveBuffer(id)
	if buf.Memory == gpu.MemoryFastDeviceAccess {
		return nil, fmt.Errorf("gputest: mapping a device-local buffer")
	}
	buf.mapped = true
	return buf.Data, nil
}

func (f *FakeBackend) UnmapMemory(id gpu.BufferID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.liveBuffer(id).mapped = false
}

func (f *FakeBackend) liveBuffer(id gpu.BufferID) *FakeBuffer {
	buf := f.buffers[id]
	if buf == nil || buf.Destroyed {
		panic(fmt.Sprintf("use of unknown or destroyed buffer %d", id))
	}
	return buf
}

// Buffer exposes a fake buffer for assertions.
func (f *FakeBackend) Buffer(id gpu.BufferID) *FakeBuffer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buffers[id]
}

// LiveBuffers counts buffers that have not been destroyed.
func (f *FakeBackend) LiveBuffers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	live := 0
	for _, buf := range f.buffers {
		if !buf.Destroyed {
			live++
		}
	}
	return live
}

func (f *FakeBackend) CreateFence() (gpu.FenceID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := gpu.FenceID(f.id())
	f.fences[id] = &fakeFence{}
	return id, nil
}

func (f *FakeBackend) DestroyFence(id gpu.FenceID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fences[id].destroyed = true
}

func (f *FakeBackend) FenceStatus(id gpu.FenceID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fences[id].signalled, nil
}

func (f *FakeBackend) WaitFences(ids []gpu.FenceID, all bool) error {
	f.completeAllLocked()
	return nil
}

func (f *FakeBackend) ResetFences(ids []gpu.FenceID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.fences[id].signalled = false
	}
	return nil
}

func (f *FakeBackend) CreateDescriptorSetLayout(info gpu.DescriptorSetLayoutInfo) (gpu.DescriptorSetLayoutID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := gpu.DescriptorSetLayoutID(f.id())
	f.setLayouts[id] = info
	return id, nil
}

func (f *FakeBackend) DestroyDescriptorSetLayout(id gpu.DescriptorSetLayoutID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.setLayouts, id)
}

func (f *FakeBackend) CreatePipelineLayout(info gpu.PipelineLayoutInfo) (gpu.PipelineLayoutID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := gpu.PipelineLayoutID(f.id())
	f.pipeLayouts[id] = info
	return id, nil
}

func (f *FakeBackend) DestroyPipelineLayout(id gpu.PipelineLayoutID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pipeLayouts, id)
}

func (f *FakeBackend) CreateComputePipeline(info gpu.ComputePipelineInfo) (gpu.PipelineID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := gpu.PipelineID(f.id())
	f.pipelines[id] = info
	return id, nil
}

func (f *FakeBackend) DestroyPipeline(id gpu.PipelineID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pipelines, id)
}

func (f *FakeBackend) CreateDescriptorSet(layout gpu.DescriptorSetLayoutID) (gpu.DescriptorSetID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := gpu.DescriptorSetID(f.id())
	f.sets[id] = &fakeDescriptorSet{layout: layout, bindings: make(map[uint32][]gpu.BufferRange)}
	return id, nil
}

func (f *FakeBackend) DestroyDescriptorSet(id gpu.DescriptorSetID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sets, id)
}

func (f *FakeBackend) UpdateDescriptorSet(id gpu.DescriptorSetID, writes []gpu.DescriptorWrite) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := f.sets[id]
	for _, w := range writes {
		ranges := set.bindings[w.Binding]
		need := int(w.Element) + len(w.Buffers)
		for len(ranges) < need {
			ranges = append(ranges, gpu.BufferRange{})
		}
		copy(ranges[w.Element:], w.Buffers)
		set.bindings[w.Binding] = ranges
	}
}

func (f *FakeBackend) AllocateCommandBuffer(queue gpu.QueueID, secondary bool) (gpu.CommandBufferID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := gpu.CommandBufferID(f.id())
	f.commandBuffers[id] = &fakeCommandBuffer{queue: queue, secondary: secondary}
	return id, nil
}

func (f *FakeBackend) ResetCommandBuffer(id gpu.CommandBufferID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cb := f.commandBuffers[id]
	cb.commands = nil
	cb.recording = false
	return nil
}

func (f *FakeBackend) BeginCommandBuffer(id gpu.CommandBufferID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cb := f.commandBuffers[id]
	if cb.recording {
		return fmt.Errorf("gputest: command buffer %d already recording", id)
	}
	cb.commands = nil
	cb.recording = true
	return nil
}

func (f *FakeBackend) EndCommandBuffer(id gpu.CommandBufferID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cb := f.commandBuffers[id]
	if !cb.recording {
		return fmt.Errorf("gputest: command buffer %d not recording", id)
	}
	cb.recording = false
	return nil
}

func (f *FakeBackend) CmdCopyBuffer(cb gpu.CommandBufferID, src, dst gpu.BufferID, regions []gpu.BufferCopy) {
	rs := append([]gpu.BufferCopy(nil), regions...)
	f.record(cb, func(f *FakeBackend) {
		srcBuf := f.liveBuffer(src)
		dstBuf := f.liveBuffer(dst)
		for _, r := range rs {
			copy(dstBuf.Data[r.DstOffset:r.DstOffset+r.Size], srcBuf.Data[r.SrcOffset:r.SrcOffset+r.Size])
		}
	})
}

func (f *FakeBackend) CmdBindComputePipeline(cb gpu.CommandBufferID, pipeline gpu.PipelineID) {
	f.record(cb, func(f *FakeBackend) {
		f.commandBuffers[cb].boundPipeline = pipeline
	})
}

func (f *FakeBackend) CmdBindComputeDescriptorSets(cb gpu.CommandBufferID, layout gpu.PipelineLayoutID, first uint32, sets []gpu.DescriptorSetID) {
	bound := append([]gpu.DescriptorSetID(nil), sets...)
	f.record(cb, func(f *FakeBackend) {
		state := f.commandBuffers[cb]
		need := int(first) + len(bound)
		for len(state.boundSets) < need {
			state.boundSets = append(state.boundSets, 0)
		}
		copy(state.boundSets[first:], bound)
	})
}

func (f *FakeBackend) CmdPushConstants(cb gpu.CommandBufferID, layout gpu.PipelineLayoutID, offset uint32, data []byte) {
	f.record(cb, func(f *FakeBackend) {})
}

// CmdDispatch executes the scatter upload kernel: the last bound
// descriptor set holds the staging buffer at binding 0 and the
// destination at binding 1. The staging layout is two uint32 header
// words (words per item, item count) followed by count records of a
// uint32 destination word offset and the item words.
func (f *FakeBackend) CmdDispatch(cb gpu.CommandBufferID, x, y, z uint32) {
	f.record(cb, func(f *FakeBackend) {
		state := f.commandBuffers[cb]
		set := f.sets[state.boundSets[len(state.boundSets)-1]]
		src := f.liveBuffer(set.bindings[0][0].Buffer)
		dstRange := set.bindings[1][0]
		dst := f.liveBuffer(dstRange.Buffer)

		itemWords := binary.LittleEndian.Uint32(src.Data[0:4])
		count := binary.LittleEndian.Uint32(src.Data[4:8])
		if invocations := x * 64; count > invocations {
			count = invocations
		}
		recordSize := 4 + itemWords*4
		for i := uint32(0); i < count; i++ {
			record := src.Data[8+i*recordSize:]
			wordOffset := binary.LittleEndian.Uint32(record[0:4])
			dstStart := dstRange.Offset + uint64(wordOffset)*4
			copy(dst.Data[dstStart:dstStart+uint64(itemWords)*4], record[4:4+itemWords*4])
		}
	})
}

func (f *FakeBackend) CmdExecuteCommands(cb gpu.CommandBufferID, secondaries []gpu.CommandBufferID) {
	ids := append([]gpu.CommandBufferID(nil), secondaries...)
	f.record(cb, func(f *FakeBackend) {
		for _, id := range ids {
			for _, cmd := range f.commandBuffers[id].commands {
				cmd(f)
			}
		}
	})
}

func (f *FakeBackend) record(id gpu.CommandBufferID, cmd command) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cb := f.commandBuffers[id]
	if !cb.recording {
		panic(fmt.Sprintf("recording into command buffer %d outside begin/end", id))
	}
	cb.commands = append(cb.commands, cmd)
}

func (f *FakeBackend) Submit(queue gpu.QueueID, cb gpu.CommandBufferID, fence gpu.FenceID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := f.commandBuffers[cb]
	if state.recording {
		return fmt.Errorf("gputest: submitting command buffer %d while recording", cb)
	}
	f.pending = append(f.pending, pendingSubmission{
		queue:    queue,
		commands: append([]command(nil), state.commands...),
		fence:    fence,
	})
	return nil
}

// Complete finishes the oldest n pending submissions, running their
// commands and signalling their fences.
func (f *FakeBackend) Complete(n int) {
	for i := 0; i < n; i++ {
		f.mu.Lock()
		if len(f.pending) == 0 {
			f.mu.Unlock()
			return
		}
		sub := f.pending[0]
		f.pending = f.pending[1:]
		f.mu.Unlock()
		f.execute(sub)
	}
}

// CompleteAll finishes every pending submission.
func (f *FakeBackend) CompleteAll() {
	f.completeAllLocked()
}

func (f *FakeBackend) completeAllLocked() {
	for {
		f.mu.Lock()
		if len(f.pending) == 0 {
			f.mu.Unlock()
			return
		}
		sub := f.pending[0]
		f.pending = f.pending[1:]
		f.mu.Unlock()
		f.execute(sub)
	}
}

func (f *FakeBackend) execute(sub pendingSubmission) {
	for _, cmd := range sub.commands {
		cmd(f)
	}
	f.mu.Lock()
	if sub.fence != 0 {
		f.fences[sub.fence].signalled = true
	}
	f.mu.Unlock()
}

func (f *FakeBackend) QueueWaitIdle(queue gpu.QueueID) error {
	f.completeAllLocked()
	return nil
}

func (f *FakeBackend) WaitIdle() error {
	f.completeAllLocked()
	return nil
}

func (f *FakeBackend) Destroy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = true
}
