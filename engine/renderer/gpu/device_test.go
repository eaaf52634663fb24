package gpu_test

import (
	"testing"

	"github.com/glaciergfx/glacier/engine/renderer/gpu"
	"github.com/glaciergfx/glacier/engine/renderer/gpu/gputest"
)

func newTestDevice(t *testing.T) (*gputest.FakeBackend, *gpu.Device, *gpu.Queue) {
	t.Helper()
	backend := gputest.NewFakeBackend()
	device := gpu.NewDevice(backend)
	return backend, device, device.Queue(gputest.DefaultQueue)
}

func testBuffer(t *testing.T, device *gpu.Device, size uint64) *gpu.Buffer {
	t.Helper()
	buf, err := device.CreateBuffer(gpu.BufferInfo{
		AlignMask: gpu.MinStorageAlignMask,
		Size:      size,
		Usage:     gpu.BufferUsageStorage,
	}, gpu.MemoryFastDeviceAccess, "test")
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	return buf
}

// submitRetaining records a submission that keeps buf alive until its
// epoch closes. The caller's own reference is dropped.
func submitRetaining(t *testing.T, queue *gpu.Queue, buf *gpu.Buffer, fence *gpu.Fence) {
	t.Helper()
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

func TestFenceSignalClosesEpoch(t *testing.T) {
	backend, device, queue := newTestDevice(t)
	fence, err := device.CreateFence()
	if err != nil {
		t.Fatalf("CreateFence: %v", err)
	}

	buf := testBuffer(t, device, 64)
	submitRetaining(t, queue, buf, fence)

	if fence.State() != gpu.FenceArmed {
		t.Fatalf("fence state = %v, want armed", fence.State())
	}
	signalled, err := device.UpdateArmedFenceState(fence)
	if err != nil || signalled {
		t.Fatalf("pending submission reported signalled=%v, err=%v", signalled, err)
	}
	if backend.LiveBuffers() != 1 {
		t.Fatalf("buffer destroyed while its submission is pending")
	}

	backend.Complete(1)
	signalled, err = device.UpdateArmedFenceState(fence)
	if err != nil || !signalled {
		t.Fatalf("completed submission reported signalled=%v, err=%v", signalled, err)
	}
	if fence.State() != gpu.FenceSignalled {
		t.Fatalf("fence state = %v, want signalled", fence.State())
	}
	if backend.LiveBuffers() != 0 {
		t.Fatalf("%d buffers still live after epoch close", backend.LiveBuffers())
	}
}

func TestWaitFencesClosesHighestEpochOnce(t *testing.T) {
	backend, device, queue := newTestDevice(t)
	f1, _ := device.CreateFence()
	f2, _ := device.CreateFence()

	first := testBuffer(t, device, 16)
	second := testBuffer(t, device, 16)
	submitRetaining(t, queue, first, f1)
	submitRetaining(t, queue, second, f2)

	backend.CompleteAll()
	// Waiting on the newer fence retires its epoch and the older one.
	if err := device.WaitFences(true, f2); err != nil {
		t.Fatalf("WaitFences: %v", err)
	}
	if backend.LiveBuffers() != 0 {
		t.Fatalf("%d buffers live after closing the newest epoch", backend.LiveBuffers())
	}

	// The older fence is still armed; waiting on it afterwards is fine
	// and closes nothing new.
	if err := device.WaitFences(true, f1); err != nil {
		t.Fatalf("WaitFences on older fence: %v", err)
	}
	if f1.State() != gpu.FenceSignalled {
		t.Fatalf("older fence state = %v, want signalled", f1.State())
	}
}

func TestRearmAfterCompletionImplicitlyCloses(t *testing.T) {
	backend, device, queue := newTestDevice(t)
	fence, _ := device.CreateFence()

	first := testBuffer(t, device, 16)
	submitRetaining(t, queue, first, fence)
	backend.Complete(1)

	// Re-arming queries the device, observes the signal and closes the
	// previous epoch before binding the new submission.
	second := testBuffer(t, device, 16)
	submitRetaining(t, queue, second, fence)

	if fence.State() != gpu.FenceArmed {
		t.Fatalf("fence state = %v, want armed", fence.State())
	}
	if backend.LiveBuffers() != 1 {
		t.Fatalf("%d buffers live, want only the second submission's", backend.LiveBuffers())
	}
}

func TestRearmPendingFencePanics(t *testing.T) {
	_, device, queue := newTestDevice(t)
	fence, _ := device.CreateFence()

	submitRetaining(t, queue, testBuffer(t, device, 16), fence)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic re-arming a pending fence")
		}
	}()
	submitRetaining(t, queue, testBuffer(t, device, 16), fence)
}

func TestArmSignalledFencePanics(t *testing.T) {
	backend, device, queue := newTestDevice(t)
	fence, _ := device.CreateFence()

	submitRetaining(t, queue, testBuffer(t, device, 16), fence)
	backend.CompleteAll()
	if err := device.WaitFences(true, fence); err != nil {
		t.Fatalf("WaitFences: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic arming a signalled fence without reset")
		}
	}()
	submitRetaining(t, queue, testBuffer(t, device, 16), fence)
}

func TestWaitUnarmedFencePanics(t *testing.T) {
	_, device, _ := newTestDevice(t)
	fence, _ := device.CreateFence()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic waiting on an unarmed fence")
		}
	}()
	device.WaitFences(true, fence)
}

func TestResetArmedFencePanics(t *testing.T) {
	_, device, queue := newTestDevice(t)
	fence, _ := device.CreateFence()
	submitRetaining(t, queue, testBuffer(t, device, 16), fence)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic resetting an armed fence")
		}
	}()
	device.ResetFences(fence)
}

func TestFenceResetAllowsRearm(t *testing.T) {
	backend, device, queue := newTestDevice(t)
	fence, _ := device.CreateFence()

	submitRetaining(t, queue, testBuffer(t, device, 16), fence)
	backend.CompleteAll()
	if err := device.WaitFences(true, fence); err != nil {
		t.Fatalf("WaitFences: %v", err)
	}
	if err := device.ResetFences(fence); err != nil {
		t.Fatalf("ResetFences: %v", err)
	}
	if fence.State() != gpu.FenceUnsignalled {
		t.Fatalf("fence state = %v after reset", fence.State())
	}

	submitRetaining(t, queue, testBuffer(t, device, 16), fence)
	if fence.State() != gpu.FenceArmed {
		t.Fatalf("fence state = %v after re-arm", fence.State())
	}
}

func TestCopyBufferRetainsBothSides(t *testing.T) {
	backend, device, queue := newTestDevice(t)
	fence, _ := device.CreateFence()

	src := testBuffer(t, device, 32)
	dst := testBuffer(t, device, 32)

	encoder, _ := queue.CreateEncoder()
	encoder.CopyBuffer(src, dst, gpu.BufferCopy{Size: 32})
	cb, err := encoder.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if _, err := queue.Submit(cb, fence); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Owner drops its references mid-flight.
	src.Release()
	dst.Release()
	if backend.LiveBuffers() != 2 {
		t.Fatalf("%d buffers live, want 2 held by the submission", backend.LiveBuffers())
	}

	backend.CompleteAll()
	if err := device.WaitFences(true, fence); err != nil {
		t.Fatalf("WaitFences: %v", err)
	}
	if backend.LiveBuffers() != 0 {
		t.Fatalf("%d buffers live after the epoch closed", backend.LiveBuffers())
	}
}

func TestDeviceDestroyDrainsEpochs(t *testing.T) {
	backend, device, queue := newTestDevice(t)
	submitRetaining(t, queue, testBuffer(t, device, 16), nil)

	device.Destroy()
	if backend.LiveBuffers() != 0 {
		t.Fatalf("%d buffers leaked through device destroy", backend.LiveBuffers())
	}
}

func TestBufferReleaseAfterDeviceDestroyIsNoop(t *testing.T) {
	_, device, _ := newTestDevice(t)
	buf := testBuffer(t, device, 16)
	device.Destroy()
	// Must not panic or touch the dead backend mapping.
	buf.Release()
}

func TestCreateBufferPropagatesOOM(t *testing.T) {
	backend, device, _ := newTestDevice(t)
	backend.FailBufferAllocs = true

	_, err := device.CreateBuffer(gpu.BufferInfo{Size: 16, Usage: gpu.BufferUsageStorage}, gpu.MemoryFastDeviceAccess, "test")
	if !gpu.IsOutOfMemory(err) {
		t.Fatalf("error = %v, want out of memory", err)
	}
}
