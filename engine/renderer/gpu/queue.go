package gpu

import "fmt"

// Queue is a handle to one device queue. Encoders recycle command
// buffers from closed epochs before allocating new ones.
type Queue struct {
	id     QueueID
	device *Device
}

func (q *Queue) ID() QueueID {
	return q.id
}

func (q *Queue) CreateEncoder() (*Encoder, error) {
	return q.createEncoder(false)
}

func (q *Queue) CreateSecondaryEncoder() (*Encoder, error) {
	return q.createEncoder(true)
}

func (q *Queue) createEncoder(secondary bool) (*Encoder, error) {
	cb := q.device.epochs.popFree(q.id, secondary)
	if cb != nil {
		if err := q.device.backend.ResetCommandBuffer(cb.id); err != nil {
			return nil, fmt.Errorf("failed to reset command buffer: %w", err)
		}
	} else {
		id, err := q.device.backend.AllocateCommandBuffer(q.id, secondary)
		if err != nil {
			return nil, fmt.Errorf("failed to allocate command buffer: %w", err)
		}
		cb = &CommandBuffer{id: id, queue: q.id, secondary: secondary}
	}
	if err := q.device.backend.BeginCommandBuffer(cb.id); err != nil {
		return nil, fmt.Errorf("failed to begin command buffer: %w", err)
	}
	cb.state = CommandBufferStateRecording
	return &Encoder{device: q.device, cb: cb}, nil
}

// Submit enqueues a finished primary command buffer under a fresh epoch
// and returns the epoch number. When a fence is given it is armed for
// this submission.
func (q *Queue) Submit(cb *CommandBuffer, fence *Fence) (uint64, error) {
	if cb.secondary {
		panic("submitting a secondary command buffer directly")
	}
	if cb.state != CommandBufferStateRecordingEnded {
		panic("submitting a command buffer that did not finish recording")
	}

	epoch := q.device.epochs.Submit(q.id, cb)
	var fenceID FenceID
	if fence != nil {
		if err := fence.arm(q.device, q.id, epoch); err != nil {
			return 0, err
		}
		fenceID = fence.id
	}
	if err := q.device.backend.Submit(q.id, cb.id, fenceID); err != nil {
		return 0, fmt.Errorf("failed to submit command buffer: %w", err)
	}
	cb.state = CommandBufferStateSubmitted
	return epoch, nil
}

// WaitIdle blocks until the queue drains, then retires all of its epochs.
func (q *Queue) WaitIdle() error {
	if err := q.device.backend.QueueWaitIdle(q.id); err != nil {
		return err
	}
	qe := q.device.epochs.queue(q.id)
	qe.mu.Lock()
	latest := qe.sequence
	qe.mu.Unlock()
	q.device.epochs.CloseEpoch(q.id, latest)
	return nil
}
