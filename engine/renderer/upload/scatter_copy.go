// Package upload moves per-frame CPU data into device buffers. Sparse
// slot updates go through a scatter compute kernel instead of many small
// copies, and persistent buffers are double buffered so a frame in
// flight never observes a partial write.
package upload

import (
	"encoding/binary"
	"fmt"

	"github.com/glaciergfx/glacier/engine/renderer/gpu"
)

const (
	scatterGroupSize  = 64
	scatterHeaderSize = 8
)

// releaseFunc adapts a closure to the command buffer resource interface,
// used to defer descriptor set destruction to epoch close.
type releaseFunc func()

func (r releaseFunc) Release() { r() }

// ScatterItem is one record of a scatter upload: the item bytes land at
// WordOffset words into the destination buffer.
type ScatterItem struct {
	WordOffset uint32
	Data       []byte
}

// ScatterCopy owns the compute pipeline that scatters packed staging
// records into a storage buffer. The staging layout is two uint32 header
// words (words per item, item count) followed by count records of a
// uint32 destination word offset and the padded item words.
type ScatterCopy struct {
	device     *gpu.Device
	layout     gpu.DescriptorSetLayoutID
	pipeLayout gpu.PipelineLayoutID
	pipeline   gpu.ComputePipeline
}

func NewScatterCopy(device *gpu.Device, shader []byte) (*ScatterCopy, error) {
	layout, err := device.CreateDescriptorSetLayout(gpu.DescriptorSetLayoutInfo{
		Bindings: []gpu.DescriptorSetLayoutBinding{
			{Binding: 0, Type: gpu.DescriptorTypeStorageBuffer, Count: 1},
			{Binding: 1, Type: gpu.DescriptorTypeStorageBuffer, Count: 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create scatter descriptor layout: %w", err)
	}
	pipeLayout, err := device.CreatePipelineLayout(gpu.PipelineLayoutInfo{
		SetLayouts: []gpu.DescriptorSetLayoutID{layout},
	})
	if err != nil {
		device.DestroyDescriptorSetLayout(layout)
		return nil, fmt.Errorf("failed to create scatter pipeline layout: %w", err)
	}
	pipeline, err := device.CreateComputePipeline(gpu.ComputePipelineInfo{
		Shader:     shader,
		EntryPoint: "main",
		Layout:     pipeLayout,
	})
	if err != nil {
		device.DestroyPipelineLayout(pipeLayout)
		device.DestroyDescriptorSetLayout(layout)
		return nil, fmt.Errorf("failed to create scatter pipeline: %w", err)
	}
	return &ScatterCopy{
		device:     device,
		layout:     layout,
		pipeLayout: pipeLayout,
		pipeline:   pipeline,
	}, nil
}

// StagingSize returns the staging buffer size needed for count items of
// the given unpadded size.
func StagingSize(itemSize uint32, count int) uint64 {
	padded := paddedItemSize(itemSize)
	return scatterHeaderSize + uint64(count)*uint64(4+padded)
}

func paddedItemSize(itemSize uint32) uint32 {
	return uint32(gpu.AlignUp(uint64(itemSize), gpu.StagingAlignMask))
}

// Upload records a scatter of the given items into dst. Every item must
// be itemSize bytes. The staging buffer and descriptor set live until
// the submission's epoch closes.
func (sc *ScatterCopy) Upload(encoder *gpu.Encoder, dst *gpu.Buffer, itemSize uint32, items []ScatterItem) error {
	if len(items) == 0 {
		return nil
	}
	padded := paddedItemSize(itemSize)
	itemWords := padded / 4
	recordSize := 4 + padded

	staging, err := sc.device.CreateUploadBuffer(StagingSize(itemSize, len(items)), "scatter-staging")
	if err != nil {
		return err
	}
	bytes := staging.Bytes()
	binary.LittleEndian.PutUint32(bytes[0:4], itemWords)
	binary.LittleEndian.PutUint32(bytes[4:8], uint32(len(items)))
	for i, item := range items {
		if uint32(len(item.Data)) != itemSize {
			staging.Freeze().Release()
			return fmt.Errorf("scatter item %d has %d bytes, want %d", i, len(item.Data), itemSize)
		}
		end := uint64(item.WordOffset)*4 + uint64(padded)
		if end > dst.Info().Size {
			staging.Freeze().Release()
			return fmt.Errorf("scatter item %d ends at %d past destination size %d", i, end, dst.Info().Size)
		}
		record := bytes[scatterHeaderSize+uint32(i)*recordSize:]
		binary.LittleEndian.PutUint32(record[0:4], item.WordOffset)
		copy(record[4:4+itemSize], item.Data)
	}
	buffer := staging.Freeze()

	set, err := sc.device.CreateDescriptorSet(sc.layout)
	if err != nil {
		buffer.Release()
		return fmt.Errorf("failed to create scatter descriptor set: %w", err)
	}
	sc.device.UpdateDescriptorSet(set, []gpu.DescriptorWrite{
		{Binding: 0, Buffers: []gpu.BufferRange{{Buffer: buffer.ID(), Size: buffer.Info().Size}}},
		{Binding: 1, Buffers: []gpu.BufferRange{{Buffer: dst.ID(), Size: dst.Info().Size}}},
	})

	encoder.BindComputePipeline(sc.pipeline)
	encoder.BindComputeDescriptorSets(sc.pipeLayout, 0, set)
	groups := (uint32(len(items)) + scatterGroupSize - 1) / scatterGroupSize
	encoder.Dispatch(groups, 1, 1)

	// The encoder takes over the staging reference and destroys the
	// descriptor set once the submission is observed complete.
	encoder.Retain(buffer)
	encoder.Retain(dst.Retain())
	device := sc.device
	encoder.Retain(releaseFunc(func() {
		device.DestroyDescriptorSet(set)
	}))
	return nil
}

func (sc *ScatterCopy) Destroy() {
	sc.device.DestroyComputePipeline(sc.pipeline)
	sc.device.DestroyPipelineLayout(sc.pipeLayout)
	sc.device.DestroyDescriptorSetLayout(sc.layout)
}
