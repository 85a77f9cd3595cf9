package wasmplatform

import (
	"context"
	"os"
	"testing"

	"github.com/joncooperworks/classloader/catalog"
	"github.com/joncooperworks/classloader/library"
)

func TestOpenMissingFileReturnsError(t *testing.T) {
	backend := NewBackend(catalog.NewCatalog(), catalog.NewRegistrationContext())
	_, err := backend.Open(context.Background(), "/nonexistent/path/plugin.wasm")
	if err == nil {
		t.Fatal("Open() of a nonexistent path should error")
	}
}

func TestOpenInvalidWASMBytesReturnsError(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/bad.wasm"
	if err := os.WriteFile(path, []byte("not a wasm module"), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	backend := NewBackend(catalog.NewCatalog(), catalog.NewRegistrationContext())
	_, err := backend.Open(context.Background(), path)
	if err == nil {
		t.Fatal("Open() of invalid WASM bytes should error")
	}
}

func TestBackendRegisteredUnderWasmFormat(t *testing.T) {
	backend, err := library.ResolveBackend("wasm")
	if err != nil {
		t.Fatalf("ResolveBackend(wasm) error = %v", err)
	}
	if _, ok := backend.(*Backend); !ok {
		t.Errorf("ResolveBackend() returned %T, want *Backend", backend)
	}
}
