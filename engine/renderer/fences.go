package renderer

import (
	"fmt"

	"github.com/glaciergfx/glacier/engine/renderer/gpu"
)

// Fences is the ring of per-frame fences pacing the CPU against frames
// in flight. WaitNext rotates through the ring; reusing a slot waits on
// its fence first, which closes the epoch of the frame that last used
// it and releases everything that frame referenced.
type Fences struct {
	device *gpu.Device
	fences []*gpu.Fence
	next   int
}

func NewFences(device *gpu.Device, count int) (*Fences, error) {
	if count < 1 {
		return nil, fmt.Errorf("fence ring needs at least one slot, got %d", count)
	}
	f := &Fences{device: device, fences: make([]*gpu.Fence, count)}
	for i := range f.fences {
		fence, err := device.CreateFence()
		if err != nil {
			f.Destroy()
			return nil, err
		}
		f.fences[i] = fence
	}
	return f, nil
}

func (f *Fences) Len() int {
	return len(f.fences)
}

// WaitNext returns the next frame slot and its fence, ready to arm.
func (f *Fences) WaitNext() (int, *gpu.Fence, error) {
	slot := f.next
	f.next = (f.next + 1) % len(f.fences)

	fence := f.fences[slot]
	if fence.State() != gpu.FenceUnsignalled {
		if err := f.device.WaitFences(true, fence); err != nil {
			return 0, nil, fmt.Errorf("failed to wait for frame slot %d: %w", slot, err)
		}
		if err := f.device.ResetFences(fence); err != nil {
			return 0, nil, fmt.Errorf("failed to reset fence of frame slot %d: %w", slot, err)
		}
	}
	return slot, fence, nil
}

func (f *Fences) Destroy() {
	for _, fence := range f.fences {
		if fence != nil {
			fence.Destroy()
		}
	}
	f.fences = nil
}
