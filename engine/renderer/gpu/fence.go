package gpu

import (
	"fmt"

	"github.com/glaciergfx/glacier/engine/core"
)

type FenceState uint8

const (
	// FenceUnsignalled fences are idle and ready to be armed.
	FenceUnsignalled FenceState = iota
	// FenceArmed fences have been attached to a submission that the
	// device has not been observed to finish yet.
	FenceArmed
	// FenceSignalled fences have an observed completed submission and
	// must be reset before re-arming.
	FenceSignalled
)

func (s FenceState) String() string {
	switch s {
	case FenceUnsignalled:
		return "unsignalled"
	case FenceArmed:
		return "armed"
	case FenceSignalled:
		return "signalled"
	}
	return fmt.Sprintf("FenceState(%d)", uint8(s))
}

// Fence tracks one submission at a time. Arming binds it to a queue and
// the epoch of the submission, so observing the signal can close that
// epoch and release everything the submission referenced.
type Fence struct {
	id    FenceID
	owner WeakDevice
	state FenceState
	queue QueueID
	epoch uint64
}

func (f *Fence) ID() FenceID {
	return f.id
}

func (f *Fence) State() FenceState {
	return f.state
}

// Armed returns the queue and epoch the fence is bound to. Only valid in
// the armed state.
func (f *Fence) Armed() (QueueID, uint64) {
	if f.state != FenceArmed {
		panic("fence is not armed")
	}
	return f.queue, f.epoch
}

// arm binds the fence to a pending submission. Re-arming an armed fence
// first queries the device; if the previous submission is still pending
// that is a logic error in the caller's synchronization.
func (f *Fence) arm(device *Device, queue QueueID, epoch uint64) error {
	switch f.state {
	case FenceUnsignalled:
	case FenceArmed:
		signalled, err := device.updateArmedFenceState(f)
		if err != nil {
			return err
		}
		if !signalled {
			panic("arming a fence whose previous submission is still pending")
		}
		// updateArmedFenceState left it signalled, fall through after
		// an implicit reset.
		if err := device.backend.ResetFences([]FenceID{f.id}); err != nil {
			return err
		}
		f.state = FenceUnsignalled
	case FenceSignalled:
		panic("arming a signalled fence that was not reset")
	}
	f.state = FenceArmed
	f.queue = queue
	f.epoch = epoch
	return nil
}

// setSignalled records that the device signalled the fence and returns
// the queue and epoch it covered. Reports false if it was already
// observed signalled.
func (f *Fence) setSignalled() (QueueID, uint64, bool) {
	switch f.state {
	case FenceUnsignalled:
		panic("signalling a fence that was never armed")
	case FenceSignalled:
		return QueueID{}, 0, false
	}
	f.state = FenceSignalled
	return f.queue, f.epoch, true
}

// setUnsignalled resets the fence for reuse. Armed fences must be waited
// on first.
func (f *Fence) setUnsignalled() {
	if f.state == FenceArmed {
		panic("resetting an armed fence")
	}
	f.state = FenceUnsignalled
}

// Destroy releases the device fence. An armed fence is waited on first
// so its epoch closes and retained resources are released.
func (f *Fence) Destroy() {
	device := f.owner.Upgrade()
	if device == nil {
		return
	}
	if f.state == FenceArmed {
		if err := device.WaitFences(true, f); err != nil {
			core.LogError("failed to wait for armed fence before destroy: %v", err)
		}
	}
	device.backend.DestroyFence(f.id)
	f.state = FenceUnsignalled
}
