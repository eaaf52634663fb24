package upload_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/glaciergfx/glacier/engine/renderer/gpu"
	"github.com/glaciergfx/glacier/engine/renderer/upload"
)

const slotStride = 16

func newDoubleBuffer(t *testing.T, env *uploadEnv) (*gpu.BindlessResources, *upload.FreelistDoubleBuffer) {
	t.Helper()
	bindless, err := gpu.NewBindlessResources(env.device, 16, 2)
	if err != nil {
		t.Fatalf("NewBindlessResources: %v", err)
	}
	db := upload.NewFreelistDoubleBuffer(env.device, bindless, 4, "test")
	return bindless, db
}

// slotData fills each dirty slot with its index as a little-endian
// uint32.
func slotData(slot uint32, out []byte) {
	binary.LittleEndian.PutUint32(out, slot)
}

func flush(t *testing.T, env *uploadEnv, db *upload.FreelistDoubleBuffer) {
	t.Helper()
	encoder, err := env.queue.CreateEncoder()
	if err != nil {
		t.Fatalf("CreateEncoder: %v", err)
	}
	if err := db.Flush(encoder, env.scatter, slotData); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	env.submit(t, encoder)
}

func slotValue(t *testing.T, env *uploadEnv, buffer *gpu.Buffer, slot uint32) uint32 {
	t.Helper()
	data := env.backend.Buffer(buffer.ID()).Data
	return binary.LittleEndian.Uint32(data[slot*slotStride:])
}

func TestDoubleBufferFlushUploadsDirtySlots(t *testing.T) {
	env := newUploadEnv(t)
	bindless, db := newDoubleBuffer(t, env)
	defer bindless.Destroy()
	defer db.Destroy()

	if db.Handle().Valid() || db.Buffer() != nil {
		t.Fatal("readable copy exists before the first flush")
	}

	db.UpdateSlot(0)
	db.UpdateSlot(3)
	flush(t, env, db)

	buffer := db.Buffer()
	if buffer == nil || !db.Handle().Valid() {
		t.Fatal("no readable copy after flush")
	}
	if got := slotValue(t, env, buffer, 0); got != 0 {
		t.Fatalf("slot 0 = %d", got)
	}
	if got := slotValue(t, env, buffer, 3); got != 3 {
		t.Fatalf("slot 3 = %d", got)
	}
	if bindless.StorageBuffer(db.Handle()) != buffer {
		t.Fatal("handle does not resolve to the readable copy")
	}
}

func TestDoubleBufferTargetsConverge(t *testing.T) {
	env := newUploadEnv(t)
	bindless, db := newDoubleBuffer(t, env)
	defer bindless.Destroy()
	defer db.Destroy()

	db.UpdateSlot(1)
	db.UpdateSlot(2)
	flush(t, env, db)
	first := db.Buffer()

	// No new writes: the second flush catches the other target up on
	// the slots it missed and flips to it.
	flush(t, env, db)
	second := db.Buffer()
	if second == first {
		t.Fatal("flush did not flip targets")
	}

	a := env.backend.Buffer(first.ID()).Data
	b := env.backend.Buffer(second.ID()).Data
	if !bytes.Equal(a, b) {
		t.Fatalf("targets diverged:\n% x\n% x", a, b)
	}
	if got := slotValue(t, env, second, 2); got != 2 {
		t.Fatalf("slot 2 on the caught-up target = %d", got)
	}
}

func TestDoubleBufferGrowCopiesForward(t *testing.T) {
	env := newUploadEnv(t)
	bindless, db := newDoubleBuffer(t, env)
	defer bindless.Destroy()
	defer db.Destroy()

	db.UpdateSlot(0)
	flush(t, env, db)
	small := db.Buffer()
	smallHandle := db.Handle()
	flush(t, env, db)

	// Touching slot 5 reserves 8 slots. The next flush lands on the
	// first target again and grows it.
	db.UpdateSlot(5)
	flush(t, env, db)

	grown := db.Buffer()
	if grown == small {
		t.Fatal("buffer did not grow")
	}
	if env.backend.Buffer(grown.ID()).Info.Size != 8*slotStride {
		t.Fatalf("grown size = %d, want %d", env.backend.Buffer(grown.ID()).Info.Size, 8*slotStride)
	}
	// Old contents came along, only the new slot needed a scatter.
	if got := slotValue(t, env, grown, 0); got != 0 {
		t.Fatalf("carried slot 0 = %d", got)
	}
	if got := slotValue(t, env, grown, 5); got != 5 {
		t.Fatalf("new slot 5 = %d", got)
	}

	// The outgrown copy's bindless slot recycles on the next flush of
	// retired handles.
	bindless.FlushRetired()
	if bindless.StorageBuffer(smallHandle) != nil {
		t.Fatal("outgrown handle still resolves")
	}
	if db.Handle() == smallHandle {
		t.Fatal("readable handle was not replaced on growth")
	}
}

func TestDoubleBufferEmptyFlushStillFlips(t *testing.T) {
	env := newUploadEnv(t)
	bindless, db := newDoubleBuffer(t, env)
	defer bindless.Destroy()
	defer db.Destroy()

	db.UpdateSlot(0)
	flush(t, env, db)
	flush(t, env, db)
	first := db.Buffer()

	flush(t, env, db)
	if db.Buffer() == first {
		t.Fatal("clean flush did not flip targets")
	}
}
