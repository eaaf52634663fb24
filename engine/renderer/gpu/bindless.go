package gpu

import "fmt"

// BindlessHandle is a packed index into the global descriptor arrays,
// passed to shaders as a plain uint32. Layout: 24 index bits, 2 kind
// bits at 24, 6 version bits at 26. The version catches stale handles
// after a slot is recycled.
type BindlessHandle uint32

const (
	bindlessIndexBits    = 24
	bindlessIndexMask    = (1 << bindlessIndexBits) - 1
	bindlessKindShift    = 24
	bindlessKindMask     = 0b11
	bindlessVersionShift = 26
	bindlessVersionMask  = 0b111111
)

type bindlessKind uint32

const (
	bindlessKindStorageBuffer bindlessKind = iota
	bindlessKindSampledImage
	bindlessKindSampler
)

// InvalidBindlessHandle is the shader-visible null handle.
var InvalidBindlessHandle = newBindlessHandle(bindlessKindStorageBuffer, bindlessIndexMask, 0)

func newBindlessHandle(kind bindlessKind, index, version uint32) BindlessHandle {
	return BindlessHandle(index&bindlessIndexMask |
		(uint32(kind)&bindlessKindMask)<<bindlessKindShift |
		(version&bindlessVersionMask)<<bindlessVersionShift)
}

func (h BindlessHandle) index() uint32 {
	return uint32(h) & bindlessIndexMask
}

func (h BindlessHandle) kind() bindlessKind {
	return bindlessKind(uint32(h) >> bindlessKindShift & bindlessKindMask)
}

func (h BindlessHandle) version() uint32 {
	return uint32(h) >> bindlessVersionShift & bindlessVersionMask
}

func (h BindlessHandle) Valid() bool {
	return h != InvalidBindlessHandle
}

type bindlessSlot struct {
	version uint32
	buffer  *Buffer
}

type retiredSlot struct {
	handle BindlessHandle
	// FlushRetired calls this entry sits out before its slot recycles.
	cooldown int
}

// BindlessResources owns the global descriptor set every shader indexes
// with BindlessHandle values. Freed slots go through a retired list
// first: a slot freed while recording frame j can still be read by
// frame j-1, so it only becomes reusable once the per-frame FlushRetired
// calls have aged it past every frame in flight at the time of the free.
type BindlessResources struct {
	device   *Device
	layout   DescriptorSetLayoutID
	set      DescriptorSetID
	capacity uint32

	// Flushes a freed slot waits out, framesInFlight-2 for the frame
	// pacer's wait to cover its newest possible reader.
	retireDelay int

	slots   []bindlessSlot
	free    []uint32
	retired []retiredSlot
	next    uint32
}

const DefaultBindlessCapacity = 1024

func NewBindlessResources(device *Device, capacity uint32, framesInFlight int) (*BindlessResources, error) {
	if capacity == 0 {
		capacity = DefaultBindlessCapacity
	}
	retireDelay := framesInFlight - 2
	if retireDelay < 0 {
		retireDelay = 0
	}
	layout, err := device.CreateDescriptorSetLayout(DescriptorSetLayoutInfo{
		Bindings: []DescriptorSetLayoutBinding{{
			Binding:         0,
			Type:            DescriptorTypeStorageBuffer,
			Count:           capacity,
			UpdateAfterBind: true,
			PartiallyBound:  true,
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bindless descriptor layout: %w", err)
	}
	set, err := device.CreateDescriptorSet(layout)
	if err != nil {
		device.DestroyDescriptorSetLayout(layout)
		return nil, fmt.Errorf("failed to create bindless descriptor set: %w", err)
	}
	return &BindlessResources{
		device:      device,
		layout:      layout,
		set:         set,
		capacity:    capacity,
		retireDelay: retireDelay,
		slots:       make([]bindlessSlot, capacity),
	}, nil
}

func (br *BindlessResources) Layout() DescriptorSetLayoutID {
	return br.layout
}

func (br *BindlessResources) Set() DescriptorSetID {
	return br.set
}

// AddStorageBuffer registers a buffer in the global array and returns
// its shader-visible handle. The buffer is retained until the handle is
// freed and flushed.
func (br *BindlessResources) AddStorageBuffer(buffer *Buffer) BindlessHandle {
	var index uint32
	if n := len(br.free); n > 0 {
		index = br.free[n-1]
		br.free = br.free[:n-1]
	} else {
		if br.next == br.capacity {
			panic("bindless storage buffer array exhausted")
		}
		index = br.next
		br.next++
	}
	br.slots[index].buffer = buffer.Retain()
	br.device.UpdateDescriptorSet(br.set, []DescriptorWrite{{
		Binding: 0,
		Element: index,
		Buffers: []BufferRange{{Buffer: buffer.ID(), Offset: 0, Size: buffer.Info().Size}},
	}})
	return newBindlessHandle(bindlessKindStorageBuffer, index, br.slots[index].version)
}

// StorageBuffer resolves a handle back to the registered buffer, or nil
// when the handle is stale or invalid.
func (br *BindlessResources) StorageBuffer(h BindlessHandle) *Buffer {
	if !h.Valid() || h.kind() != bindlessKindStorageBuffer {
		return nil
	}
	index := h.index()
	if index >= br.capacity || br.slots[index].version != h.version() {
		return nil
	}
	return br.slots[index].buffer
}

// FreeStorageBuffer retires a handle. The slot stays out of circulation
// and the buffer stays alive until FlushRetired recycles it, since
// frames in flight may still index it.
func (br *BindlessResources) FreeStorageBuffer(h BindlessHandle) {
	if !h.Valid() {
		return
	}
	if h.kind() != bindlessKindStorageBuffer {
		panic("freeing a non storage-buffer bindless handle")
	}
	index := h.index()
	if index >= br.capacity || br.slots[index].version != h.version() {
		panic("freeing a stale bindless handle")
	}
	br.retired = append(br.retired, retiredSlot{handle: h, cooldown: br.retireDelay})
}

// FlushRetired recycles retired slots whose cooldown has run out,
// releasing their buffers and bumping slot versions so stale handles no
// longer resolve. Call once per frame, after the frame fence wait.
func (br *BindlessResources) FlushRetired() {
	kept := br.retired[:0]
	for _, r := range br.retired {
		if r.cooldown > 0 {
			r.cooldown--
			kept = append(kept, r)
			continue
		}
		index := r.handle.index()
		slot := &br.slots[index]
		slot.buffer.Release()
		slot.buffer = nil
		slot.version = (slot.version + 1) & bindlessVersionMask
		br.free = append(br.free, index)
	}
	br.retired = kept
}

func (br *BindlessResources) Destroy() {
	for len(br.retired) > 0 {
		br.FlushRetired()
	}
	for i := range br.slots {
		if br.slots[i].buffer != nil {
			br.slots[i].buffer.Release()
			br.slots[i].buffer = nil
		}
	}
	br.device.DestroyDescriptorSet(br.set)
	br.device.DestroyDescriptorSetLayout(br.layout)
}
