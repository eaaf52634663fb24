package upload

import (
	"fmt"
	"math/bits"

	"github.com/glaciergfx/glacier/engine/renderer/gpu"
)

type doubleBufferTarget struct {
	buffer *gpu.Buffer
	handle gpu.BindlessHandle
	// Slots written since this target was last flushed.
	stale slotSet
	count uint32
}

// FreelistDoubleBuffer keeps a slot-addressed storage buffer in two
// copies so one can be read by a frame in flight while the other
// receives this frame's scatter upload. Each target remembers the slots
// it missed while inactive and catches up on its next flush, so both
// copies converge after two flushes with no new writes.
type FreelistDoubleBuffer struct {
	device   *gpu.Device
	bindless *gpu.BindlessResources

	itemSize uint32
	// GPU-side stride per slot, padded up to the storage alignment.
	stride uint32
	kind   string

	reserved  uint32
	targets   [2]doubleBufferTarget
	oddTarget bool

	// Target flushed most recently, the one shaders should read.
	current *doubleBufferTarget
}

func NewFreelistDoubleBuffer(device *gpu.Device, bindless *gpu.BindlessResources, itemSize uint32, kind string) *FreelistDoubleBuffer {
	// Slots are padded to the 16-byte storage alignment; no std430
	// record layout requires more.
	stride := uint32(gpu.AlignUp(uint64(itemSize), gpu.MinStorageAlignMask))
	return &FreelistDoubleBuffer{
		device:   device,
		bindless: bindless,
		itemSize: itemSize,
		stride:   stride,
		kind:     kind,
	}
}

func (db *FreelistDoubleBuffer) ItemSize() uint32 {
	return db.itemSize
}

// UpdateSlot marks a slot dirty in both targets and grows the reserved
// capacity to the next power of two covering it.
func (db *FreelistDoubleBuffer) UpdateSlot(slot uint32) {
	if slot >= db.reserved {
		db.reserved = nextPowerOfTwo(slot + 1)
	}
	db.targets[0].stale.Set(slot)
	db.targets[1].stale.Set(slot)
}

// Handle returns the bindless handle of the readable copy. Invalid
// until the first flush.
func (db *FreelistDoubleBuffer) Handle() gpu.BindlessHandle {
	if db.current == nil {
		return gpu.InvalidBindlessHandle
	}
	return db.current.handle
}

// Buffer returns the readable copy, or nil before the first flush.
func (db *FreelistDoubleBuffer) Buffer() *gpu.Buffer {
	if db.current == nil {
		return nil
	}
	return db.current.buffer
}

// Flush uploads this frame's dirty slots into the inactive target and
// makes it the readable copy. data must fill out with the itemSize
// bytes of the given slot.
func (db *FreelistDoubleBuffer) Flush(encoder *gpu.Encoder, scatter *ScatterCopy, data func(slot uint32, out []byte)) error {
	index := 0
	if db.oddTarget {
		index = 1
	}
	target := &db.targets[index]

	if err := db.prepare(encoder, target); err != nil {
		return err
	}
	if target.stale.Empty() {
		db.current = target
		db.oddTarget = !db.oddTarget
		return nil
	}

	items := make([]ScatterItem, 0, target.stale.Count())
	wordsPerSlot := db.stride / 4
	target.stale.ForEach(func(slot uint32) {
		out := make([]byte, db.itemSize)
		data(slot, out)
		items = append(items, ScatterItem{WordOffset: slot * wordsPerSlot, Data: out})
	})
	if err := scatter.Upload(encoder, target.buffer, db.itemSize, items); err != nil {
		return err
	}

	target.stale.Clear()
	db.current = target
	db.oddTarget = !db.oddTarget
	return nil
}

// prepare sizes the target buffer for the reserved slot count. Growing
// copies the old contents forward so only stale slots need re-upload;
// the old buffer and bindless slot retire through the epoch and the
// bindless free list.
func (db *FreelistDoubleBuffer) prepare(encoder *gpu.Encoder, target *doubleBufferTarget) error {
	if db.reserved == 0 {
		db.reserved = 1
	}
	if target.buffer != nil && target.count >= db.reserved {
		return nil
	}

	info := gpu.BufferInfo{
		AlignMask: gpu.MinStorageAlignMask,
		Size:      uint64(db.reserved) * uint64(db.stride),
		Usage:     gpu.BufferUsageStorage | gpu.BufferUsageTransferSrc | gpu.BufferUsageTransferDst,
	}
	grown, err := db.device.CreateBuffer(info, gpu.MemoryFastDeviceAccess, db.kind)
	if err != nil {
		return fmt.Errorf("failed to grow %s double buffer: %w", db.kind, err)
	}

	if target.buffer != nil {
		encoder.CopyBuffer(target.buffer, grown, gpu.BufferCopy{
			Size: uint64(target.count) * uint64(db.stride),
		})
		db.bindless.FreeStorageBuffer(target.handle)
		target.buffer.Release()
	}
	target.buffer = grown
	target.handle = db.bindless.AddStorageBuffer(grown)
	target.count = db.reserved
	return nil
}

func (db *FreelistDoubleBuffer) Destroy() {
	for i := range db.targets {
		target := &db.targets[i]
		if target.buffer != nil {
			db.bindless.FreeStorageBuffer(target.handle)
			target.buffer.Release()
			target.buffer = nil
		}
	}
	db.current = nil
}

func nextPowerOfTwo(v uint32) uint32 {
	if v <= 1 {
		return 1
	}
	return 1 << (32 - bits.LeadingZeros32(v-1))
}
