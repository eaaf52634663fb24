package gpu

import "fmt"

// Encoder records commands into a command buffer and retains the
// resources they touch, keeping them alive until the epoch of the
// eventual submission closes.
type Encoder struct {
	device *Device
	cb     *CommandBuffer
}

func (e *Encoder) CommandBuffer() *CommandBuffer {
	return e.cb
}

// Retain attaches a resource to the command buffer lifetime. The
// resource is released when the covering epoch closes.
func (e *Encoder) Retain(r Resource) {
	e.cb.addReference(r)
}

func (e *Encoder) CopyBuffer(src, dst *Buffer, regions ...BufferCopy) {
	e.device.backend.CmdCopyBuffer(e.cb.id, src.ID(), dst.ID(), regions)
	e.cb.addReference(src.Retain())
	e.cb.addReference(dst.Retain())
}

func (e *Encoder) BindComputePipeline(pipeline ComputePipeline) {
	e.device.backend.CmdBindComputePipeline(e.cb.id, pipeline.ID)
}

func (e *Encoder) BindComputeDescriptorSets(layout PipelineLayoutID, first uint32, sets ...DescriptorSetID) {
	e.device.backend.CmdBindComputeDescriptorSets(e.cb.id, layout, first, sets)
}

func (e *Encoder) PushConstants(layout PipelineLayoutID, offset uint32, data []byte) {
	e.device.backend.CmdPushConstants(e.cb.id, layout, offset, data)
}

func (e *Encoder) Dispatch(x, y, z uint32) {
	e.device.backend.CmdDispatch(e.cb.id, x, y, z)
}

// Execute records secondary command buffers into this primary one. The
// secondaries are recycled together with the primary when its epoch
// closes.
func (e *Encoder) Execute(secondaries ...*CommandBuffer) {
	ids := make([]CommandBufferID, len(secondaries))
	for i, s := range secondaries {
		if !s.secondary {
			panic("executing a primary command buffer as secondary")
		}
		if s.state != CommandBufferStateRecordingEnded {
			panic("executing a secondary command buffer that did not finish recording")
		}
		ids[i] = s.id
	}
	e.device.backend.CmdExecuteCommands(e.cb.id, ids)
	e.cb.secondaries = append(e.cb.secondaries, secondaries...)
}

// Finish ends recording and returns the command buffer for submission.
func (e *Encoder) Finish() (*CommandBuffer, error) {
	if e.cb.state != CommandBufferStateRecording {
		panic("finishing an encoder that is not recording")
	}
	if err := e.device.backend.EndCommandBuffer(e.cb.id); err != nil {
		return nil, fmt.Errorf("failed to end command buffer: %w", err)
	}
	e.cb.state = CommandBufferStateRecordingEnded
	return e.cb, nil
}
