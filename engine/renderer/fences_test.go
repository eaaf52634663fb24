package renderer_test

import (
	"testing"

	"github.com/glaciergfx/glacier/engine/renderer"
	"github.com/glaciergfx/glacier/engine/renderer/gpu"
	"github.com/glaciergfx/glacier/engine/renderer/gpu/gputest"
)

func newFenceRing(t *testing.T, slots int) (*gputest.FakeBackend, *gpu.Device, *gpu.Queue, *renderer.Fences) {
	t.Helper()
	backend := gputest.NewFakeBackend()
	device := gpu.NewDevice(backend)
	ring, err := renderer.NewFences(device, slots)
	if err != nil {
		t.Fatalf("NewFences: %v", err)
	}
	return backend, device, device.Queue(gputest.DefaultQueue), ring
}

// submitFrame records a submission that retains one fresh buffer, paced
// by the given frame fence.
func submitFrame(t *testing.T, device *gpu.Device, queue *gpu.Queue, fence *gpu.Fence) {
	t.Helper()
	buf, err := device.CreateBuffer(gpu.BufferInfo{Size: 16, Usage: gpu.BufferUsageStorage}, gpu.MemoryFastDeviceAccess, "frame")
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	encoder, err := queue.CreateEncoder()
	if err != nil {
		t.Fatalf("CreateEncoder: %v", err)
	}
	encoder.Retain(buf)
	cb, err := encoder.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if _, err := queue.Submit(cb, fence); err != nil {
		t.Fatalf("Submit: %v", err)
	}
}

func TestFencesRotateThroughSlots(t *testing.T) {
	_, _, _, ring := newFenceRing(t, 3)
	defer ring.Destroy()

	for round := 0; round < 2; round++ {
		for want := 0; want < 3; want++ {
			slot, fence, err := ring.WaitNext()
			if err != nil {
				t.Fatalf("WaitNext: %v", err)
			}
			if slot != want {
				t.Fatalf("slot = %d, want %d", slot, want)
			}
			if fence == nil || fence.State() != gpu.FenceUnsignalled {
				t.Fatalf("slot %d fence not ready to arm", slot)
			}
		}
	}
}

func TestFencesSlotReuseReclaimsFrame(t *testing.T) {
	backend, device, queue, ring := newFenceRing(t, 2)
	defer ring.Destroy()

	// Two frames in flight, each retaining one buffer.
	for i := 0; i < 2; i++ {
		_, fence, err := ring.WaitNext()
		if err != nil {
			t.Fatalf("WaitNext: %v", err)
		}
		submitFrame(t, device, queue, fence)
	}
	if backend.LiveBuffers() != 2 {
		t.Fatalf("%d buffers live with two frames in flight", backend.LiveBuffers())
	}

	// Reusing slot 0 waits on its fence and closes only the epoch that
	// frame covered; the newer frame's resources stay retained.
	slot, fence, err := ring.WaitNext()
	if err != nil {
		t.Fatalf("WaitNext: %v", err)
	}
	if slot != 0 {
		t.Fatalf("slot = %d, want 0", slot)
	}
	if fence.State() != gpu.FenceUnsignalled {
		t.Fatalf("reused fence state = %v", fence.State())
	}
	if backend.LiveBuffers() != 1 {
		t.Fatalf("%d buffers live after the ring reclaimed slot 0, want 1", backend.LiveBuffers())
	}

	// Cycling the second slot reclaims the remaining frame.
	if _, _, err := ring.WaitNext(); err != nil {
		t.Fatalf("WaitNext: %v", err)
	}
	if backend.LiveBuffers() != 0 {
		t.Fatalf("%d buffers live after both slots recycled", backend.LiveBuffers())
	}
}

func TestFencesRejectEmptyRing(t *testing.T) {
	backend := gputest.NewFakeBackend()
	device := gpu.NewDevice(backend)
	if _, err := renderer.NewFences(device, 0); err == nil {
		t.Fatal("empty fence ring accepted")
	}
}
