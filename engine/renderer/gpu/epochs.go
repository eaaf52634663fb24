package gpu

import (
	"sync"

	"github.com/glaciergfx/glacier/engine/containers"
	"github.com/glaciergfx/glacier/engine/core"
)

// epoch is one submission generation on a queue. It owns the command
// buffers submitted under it until the device is observed past it.
type epoch struct {
	number         uint64
	commandBuffers []*CommandBuffer
}

// queueEpochs tracks the open epochs of a single queue. The deque keeps
// the newest epoch at the front, so the entry at index i has number
// sequence-i. Closed epoch records and finished command buffers are
// recycled through free lists.
type queueEpochs struct {
	mu       sync.Mutex
	sequence uint64
	open     *containers.Deque[*epoch]
	cache    []*epoch

	freePrimary   []*CommandBuffer
	freeSecondary []*CommandBuffer
}

// Epochs orders submissions per queue and drives deferred destruction:
// closing an epoch releases every resource referenced by the command
// buffers of that epoch and all older ones on the same queue.
type Epochs struct {
	queues map[QueueID]*queueEpochs
}

func NewEpochs(queues []QueueID) *Epochs {
	e := &Epochs{queues: make(map[QueueID]*queueEpochs, len(queues))}
	for _, q := range queues {
		e.queues[q] = &queueEpochs{open: containers.NewDeque[*epoch](4)}
	}
	return e
}

func (e *Epochs) queue(q QueueID) *queueEpochs {
	qe, ok := e.queues[q]
	if !ok {
		panic("submission on an unknown queue")
	}
	return qe
}

// Submit opens a new epoch containing the given primary command buffer
// and returns its number. Fences armed for this submission carry the
// number so observing the signal can close the epoch.
func (e *Epochs) Submit(q QueueID, cb *CommandBuffer) uint64 {
	qe := e.queue(q)
	qe.mu.Lock()
	defer qe.mu.Unlock()

	qe.sequence++
	var record *epoch
	if n := len(qe.cache); n > 0 {
		record = qe.cache[n-1]
		qe.cache = qe.cache[:n-1]
	} else {
		record = &epoch{}
	}
	record.number = qe.sequence
	record.commandBuffers = append(record.commandBuffers, cb)
	qe.open.PushFront(record)
	return qe.sequence
}

// CloseEpoch retires the given epoch and every older open epoch on the
// queue. Command buffer references are released and the buffers move to
// the free lists. Closing an already closed epoch is a no-op; closing an
// epoch that was never opened is a logic error.
func (e *Epochs) CloseEpoch(q QueueID, number uint64) {
	qe := e.queue(q)
	qe.mu.Lock()
	defer qe.mu.Unlock()

	if number > qe.sequence {
		panic("closing an epoch that was never submitted")
	}
	keep := int(qe.sequence - number)
	for qe.open.Len() > keep {
		record, _ := qe.open.PopBack()
		qe.retireLocked(record)
	}
}

// retireLocked recycles one closed epoch record.
func (qe *queueEpochs) retireLocked(record *epoch) {
	for _, cb := range record.commandBuffers {
		for _, secondary := range cb.takeSecondaries() {
			secondary.clearReferences()
			qe.freeSecondary = append(qe.freeSecondary, secondary)
		}
		cb.clearReferences()
		qe.freePrimary = append(qe.freePrimary, cb)
	}
	record.commandBuffers = record.commandBuffers[:0]
	qe.cache = append(qe.cache, record)
}

// popFree returns a recycled command buffer of the requested kind, or
// nil when none is available.
func (e *Epochs) popFree(q QueueID, secondary bool) *CommandBuffer {
	qe := e.queue(q)
	qe.mu.Lock()
	defer qe.mu.Unlock()

	list := &qe.freePrimary
	if secondary {
		list = &qe.freeSecondary
	}
	n := len(*list)
	if n == 0 {
		return nil
	}
	cb := (*list)[n-1]
	*list = (*list)[:n-1]
	return cb
}

// CloseAll retires every open epoch on every queue. Only valid once the
// device is known idle.
func (e *Epochs) CloseAll() {
	for q, qe := range e.queues {
		qe.mu.Lock()
		latest := qe.sequence
		qe.mu.Unlock()
		e.CloseEpoch(q, latest)
	}
}

// assertDrained panics if any epoch is still open. Called on device
// teardown, where an open epoch means a submission was never waited on.
func (e *Epochs) assertDrained() {
	for q, qe := range e.queues {
		qe.mu.Lock()
		open := qe.open.Len()
		qe.mu.Unlock()
		if open != 0 {
			core.LogError("queue (%d,%d) has %d open epochs at teardown", q.Family, q.Index, open)
			panic("device destroyed with open epochs")
		}
	}
}
