package gpu

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/glaciergfx/glacier/engine/core"
)

// Device wraps a Backend with epoch tracking and fence bookkeeping. All
// resources created through it hold a weak reference back, so resources
// outliving the device degrade to no-ops instead of touching freed
// driver state.
type Device struct {
	backend Backend
	epochs  *Epochs
	alive   atomic.Bool
	name    string
}

// WeakDevice is a non-owning reference to a device. Upgrade returns nil
// once the device has been destroyed.
type WeakDevice struct {
	device *Device
}

func (w WeakDevice) Upgrade() *Device {
	if w.device != nil && w.device.alive.Load() {
		return w.device
	}
	return nil
}

func NewDevice(backend Backend) *Device {
	d := &Device{
		backend: backend,
		epochs:  NewEpochs(backend.Queues()),
		name:    core.DebugName("device"),
	}
	d.alive.Store(true)
	return d
}

func (d *Device) Weak() WeakDevice {
	return WeakDevice{device: d}
}

func (d *Device) Name() string {
	return d.name
}

func (d *Device) Queues() []QueueID {
	return d.backend.Queues()
}

func (d *Device) Queue(id QueueID) *Queue {
	d.epochs.queue(id)
	return &Queue{id: id, device: d}
}

// CreateBuffer allocates a device buffer. The kind string only feeds the
// debug name.
func (d *Device) CreateBuffer(info BufferInfo, memory MemoryUsage, kind string) (*Buffer, error) {
	id, err := d.backend.CreateBuffer(info, memory)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s buffer: %w", kind, err)
	}
	return newBuffer(id, info, memory, d.Weak(), kind), nil
}

// CreateUploadBuffer allocates a host-visible buffer and maps it for CPU
// writes.
func (d *Device) CreateUploadBuffer(size uint64, kind string) (*MappableBuffer, error) {
	info := BufferInfo{AlignMask: StagingAlignMask, Size: size, Usage: BufferUsageTransferSrc | BufferUsageStorage}
	buffer, err := d.CreateBuffer(info, MemoryUpload, kind)
	if err != nil {
		return nil, err
	}
	mapped, err := d.backend.MapMemory(buffer.ID())
	if err != nil {
		buffer.Release()
		return nil, fmt.Errorf("failed to map %s buffer: %w", kind, err)
	}
	return &MappableBuffer{Buffer: buffer, mapped: mapped}, nil
}

func (d *Device) CreateFence() (*Fence, error) {
	id, err := d.backend.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("failed to create fence: %w", err)
	}
	return &Fence{id: id, owner: d.Weak()}, nil
}

func (d *Device) CreateDescriptorSetLayout(info DescriptorSetLayoutInfo) (DescriptorSetLayoutID, error) {
	return d.backend.CreateDescriptorSetLayout(info)
}

func (d *Device) DestroyDescriptorSetLayout(id DescriptorSetLayoutID) {
	d.backend.DestroyDescriptorSetLayout(id)
}

func (d *Device) CreatePipelineLayout(info PipelineLayoutInfo) (PipelineLayoutID, error) {
	return d.backend.CreatePipelineLayout(info)
}

func (d *Device) DestroyPipelineLayout(id PipelineLayoutID) {
	d.backend.DestroyPipelineLayout(id)
}

func (d *Device) CreateComputePipeline(info ComputePipelineInfo) (ComputePipeline, error) {
	id, err := d.backend.CreateComputePipeline(info)
	if err != nil {
		return ComputePipeline{}, fmt.Errorf("failed to create compute pipeline: %w", err)
	}
	return ComputePipeline{ID: id, Layout: info.Layout}, nil
}

func (d *Device) DestroyComputePipeline(p ComputePipeline) {
	d.backend.DestroyPipeline(p.ID)
}

func (d *Device) CreateDescriptorSet(layout DescriptorSetLayoutID) (DescriptorSetID, error) {
	return d.backend.CreateDescriptorSet(layout)
}

func (d *Device) DestroyDescriptorSet(id DescriptorSetID) {
	d.backend.DestroyDescriptorSet(id)
}

func (d *Device) UpdateDescriptorSet(id DescriptorSetID, writes []DescriptorWrite) {
	d.backend.UpdateDescriptorSet(id, writes)
}

// UpdateArmedFenceState queries the device for an armed fence. When the
// submission has finished, the fence moves to the signalled state and
// its epoch closes, releasing the resources retained by that submission
// and all older ones on the same queue.
func (d *Device) UpdateArmedFenceState(f *Fence) (bool, error) {
	return d.updateArmedFenceState(f)
}

func (d *Device) updateArmedFenceState(f *Fence) (bool, error) {
	if f.state != FenceArmed {
		panic("querying a fence that is not armed")
	}
	signalled, err := d.backend.FenceStatus(f.id)
	if err != nil {
		return false, err
	}
	if !signalled {
		return false, nil
	}
	queue, epoch, fresh := f.setSignalled()
	if fresh {
		d.epochs.CloseEpoch(queue, epoch)
	}
	return true, nil
}

// WaitFences blocks until all (or any, when all is false) of the given
// fences signal. Already signalled fences are skipped; waiting on an
// unsignalled fence that was never armed is a logic error. Epochs of
// newly signalled fences close in order, one close per queue at the
// highest signalled number.
func (d *Device) WaitFences(all bool, fences ...*Fence) error {
	armed := make([]*Fence, 0, len(fences))
	for _, f := range fences {
		switch f.state {
		case FenceUnsignalled:
			panic("waiting on a fence that was never armed")
		case FenceSignalled:
		case FenceArmed:
			armed = append(armed, f)
		}
	}
	if len(armed) == 0 {
		return nil
	}

	ids := make([]FenceID, len(armed))
	for i, f := range armed {
		ids[i] = f.id
	}
	if err := d.backend.WaitFences(ids, all); err != nil {
		return err
	}

	type queueEpoch struct {
		queue QueueID
		epoch uint64
	}
	var signalled []queueEpoch
	for _, f := range armed {
		if !all {
			done, err := d.backend.FenceStatus(f.id)
			if err != nil {
				return err
			}
			if !done {
				continue
			}
		}
		queue, epoch, fresh := f.setSignalled()
		if fresh {
			signalled = append(signalled, queueEpoch{queue, epoch})
		}
	}

	// Close each queue once, at the highest signalled epoch.
	sort.Slice(signalled, func(i, j int) bool {
		return signalled[i].epoch > signalled[j].epoch
	})
	closed := make(map[QueueID]bool, len(signalled))
	for _, qe := range signalled {
		if closed[qe.queue] {
			continue
		}
		closed[qe.queue] = true
		d.epochs.CloseEpoch(qe.queue, qe.epoch)
	}
	return nil
}

// ResetFences moves signalled fences back to unsignalled. Resetting an
// armed fence is a logic error.
func (d *Device) ResetFences(fences ...*Fence) error {
	ids := make([]FenceID, len(fences))
	for i, f := range fences {
		f.setUnsignalled()
		ids[i] = f.id
	}
	return d.backend.ResetFences(ids)
}

func (d *Device) WaitIdle() error {
	if err := d.backend.WaitIdle(); err != nil {
		return err
	}
	d.epochs.CloseAll()
	return nil
}

// Destroy waits for the device to go idle, retires all epochs and tears
// down the backend. Resources still referencing the device see it as
// gone afterwards.
func (d *Device) Destroy() {
	if !d.alive.Load() {
		return
	}
	if err := d.WaitIdle(); err != nil {
		core.LogError("wait idle failed during device destroy: %v", err)
		d.epochs.CloseAll()
	}
	d.epochs.assertDrained()
	d.alive.Store(false)
	d.backend.Destroy()
	core.LogDebug("device %s destroyed", d.name)
}
