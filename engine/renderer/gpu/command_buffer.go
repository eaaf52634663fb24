package gpu

// Resource is anything a command buffer can keep alive until the
// submission that uses it is observed complete.
type Resource interface {
	Release()
}

type CommandBufferState uint8

const (
	CommandBufferStateReady CommandBufferState = iota
	CommandBufferStateRecording
	CommandBufferStateRecordingEnded
	CommandBufferStateSubmitted
)

// CommandBuffer wraps a backend command buffer together with the
// resources recorded commands reference. References are released when
// the epoch covering the submission closes, which is the deferred
// destruction path for everything the GPU may still be reading.
type CommandBuffer struct {
	id        CommandBufferID
	queue     QueueID
	secondary bool
	state     CommandBufferState

	references  []Resource
	secondaries []*CommandBuffer
}

func (cb *CommandBuffer) ID() CommandBufferID {
	return cb.id
}

func (cb *CommandBuffer) Queue() QueueID {
	return cb.queue
}

func (cb *CommandBuffer) Secondary() bool {
	return cb.secondary
}

func (cb *CommandBuffer) State() CommandBufferState {
	return cb.state
}

func (cb *CommandBuffer) addReference(r Resource) {
	cb.references = append(cb.references, r)
}

// clearReferences releases every retained resource. Called exactly once
// when the covering epoch closes.
func (cb *CommandBuffer) clearReferences() {
	for _, r := range cb.references {
		r.Release()
	}
	cb.references = cb.references[:0]
}

// takeSecondaries detaches and returns the secondary command buffers
// executed from this primary, so they can be recycled separately.
func (cb *CommandBuffer) takeSecondaries() []*CommandBuffer {
	out := cb.secondaries
	cb.secondaries = nil
	return out
}
