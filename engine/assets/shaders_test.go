package assets

import (
	"os"
	"path/filepath"
	"testing"
)

func writeShader(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestShaderRegistryLoads(t *testing.T) {
	dir := t.TempDir()
	writeShader(t, dir, "pass.spv", []byte{1, 2, 3, 4, 5, 6, 7, 8})

	r, err := NewShaderRegistry(dir)
	if err != nil {
		t.Fatalf("NewShaderRegistry: %v", err)
	}
	defer r.Close()

	data, err := r.Load("pass.spv")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(data) != 8 {
		t.Fatalf("loaded %d bytes", len(data))
	}
	if _, err := r.Load("pass.spv"); err != nil {
		t.Fatalf("cached Load: %v", err)
	}
}

func TestShaderRegistryRejectsBadBinaries(t *testing.T) {
	dir := t.TempDir()
	// SPIR-V is a stream of 32-bit words.
	writeShader(t, dir, "truncated.spv", []byte{1, 2, 3})

	r, err := NewShaderRegistry(dir)
	if err != nil {
		t.Fatalf("NewShaderRegistry: %v", err)
	}
	defer r.Close()

	if _, err := r.Load("truncated.spv"); err == nil {
		t.Fatal("truncated binary accepted")
	}
	if _, err := r.Load("missing.spv"); err == nil {
		t.Fatal("missing file accepted")
	}
}
