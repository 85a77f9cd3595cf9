package library

import (
	"context"
	"testing"

	"github.com/joncooperworks/classloader/catalog"
)

// fakeBackend is a deterministic PlatformLoader test double: each Open call
// invokes onOpen (simulating a library's registration side effect) and
// counts opens/closes for assertions. Mirrors the teacher's MockPlugin/
// TestLoader fake style.
type fakeBackend struct {
	onOpen   func(path string)
	opens    int
	closes   int
	failOpen bool
}

func (f *fakeBackend) Open(ctx context.Context, path string) (Handle, error) {
	f.opens++
	if f.failOpen {
		return nil, errFakeOpen
	}
	if f.onOpen != nil {
		f.onOpen(path)
	}
	return &fakeHandle{backend: f}, nil
}

type fakeHandle struct {
	backend *fakeBackend
}

func (h *fakeHandle) Close(ctx context.Context) error {
	h.backend.closes++
	return nil
}

type fakeOpenError struct{ msg string }

func (e *fakeOpenError) Error() string { return e.msg }

var errFakeOpen = &fakeOpenError{msg: "simulated open failure"}

func TestOpenRegistersFactories(t *testing.T) {
	cat := catalog.NewCatalog()
	ctx := catalog.NewRegistrationContext()
	reg := NewRegistry(cat, ctx)
	backend := &fakeBackend{onOpen: func(path string) {
		catalog.Register(ctx, cat, "Alpha", "Interface", "fp", func() any { return "alpha" })
	}}

	if err := reg.Open(context.Background(), backend, "/lib/plug", "L1"); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if cat.Find("fp", "Alpha") == nil {
		t.Fatal("expected Alpha to be registered")
	}
	if backend.opens != 1 {
		t.Errorf("backend.opens = %d, want 1", backend.opens)
	}
}

func TestOpenSecondLoaderAddsOwnershipWithoutReopening(t *testing.T) {
	cat := catalog.NewCatalog()
	ctx := catalog.NewRegistrationContext()
	reg := NewRegistry(cat, ctx)
	backend := &fakeBackend{onOpen: func(path string) {
		catalog.Register(ctx, cat, "Alpha", "Interface", "fp", func() any { return "alpha" })
	}}

	if err := reg.Open(context.Background(), backend, "/lib/plug", "L1"); err != nil {
		t.Fatalf("Open(L1) error = %v", err)
	}
	if err := reg.Open(context.Background(), backend, "/lib/plug", "L2"); err != nil {
		t.Fatalf("Open(L2) error = %v", err)
	}

	if backend.opens != 1 {
		t.Errorf("backend.opens = %d, want 1 (second open must not hit the platform loader)", backend.opens)
	}
	rec := cat.Find("fp", "Alpha")
	if !rec.IsOwnedBy("L1") || !rec.IsOwnedBy("L2") {
		t.Error("both loaders should own the record")
	}
}

func TestCloseKeepsSharedLibraryResidentUntilLastOwner(t *testing.T) {
	cat := catalog.NewCatalog()
	ctx := catalog.NewRegistrationContext()
	reg := NewRegistry(cat, ctx)
	backend := &fakeBackend{onOpen: func(path string) {
		catalog.Register(ctx, cat, "Alpha", "Interface", "fp", func() any { return "alpha" })
	}}

	reg.Open(context.Background(), backend, "/lib/plug", "L1")
	reg.Open(context.Background(), backend, "/lib/plug", "L2")

	if err := reg.Close(context.Background(), "/lib/plug", "L1"); err != nil {
		t.Fatalf("Close(L1) error = %v", err)
	}
	if backend.closes != 0 {
		t.Error("closing L1 must not close the platform handle while L2 still owns it")
	}
	if cat.Find("fp", "Alpha") == nil {
		t.Error("Alpha should still be reachable through L2")
	}

	if err := reg.Close(context.Background(), "/lib/plug", "L2"); err != nil {
		t.Fatalf("Close(L2) error = %v", err)
	}
	if backend.closes != 1 {
		t.Errorf("backend.closes = %d, want 1 after last owner releases", backend.closes)
	}
	if cat.Find("fp", "Alpha") != nil {
		t.Error("Alpha should no longer be enumerable after last owner releases")
	}
}

func TestNonPureLibraryNeverUnloads(t *testing.T) {
	cat := catalog.NewCatalog()
	ctx := catalog.NewRegistrationContext()
	reg := NewRegistry(cat, ctx)

	// Simulate a registration with no active loader (non-pure library).
	h := catalog.Register(ctx, cat, "Rogue", "Interface", "fp", func() any { return "rogue" })
	defer h.Release()
	if !ctx.NonPureLibraryOpened() {
		t.Fatal("precondition: non-pure flag should be set")
	}

	backend := &fakeBackend{}
	reg.Open(context.Background(), backend, "/lib/plug", "L1")
	if err := reg.Close(context.Background(), "/lib/plug", "L1"); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if backend.closes != 0 {
		t.Error("Close must never unload once a non-pure library has been opened")
	}
}

func TestOpenLoadFailureSurfacesError(t *testing.T) {
	cat := catalog.NewCatalog()
	ctx := catalog.NewRegistrationContext()
	reg := NewRegistry(cat, ctx)
	backend := &fakeBackend{failOpen: true}

	err := reg.Open(context.Background(), backend, "/lib/bad", "L1")
	if err == nil {
		t.Fatal("Open() with failing backend should return an error")
	}
}

func TestPlatformLibraryName(t *testing.T) {
	name := PlatformLibraryName("plug")
	if name == "" {
		t.Fatal("PlatformLibraryName() returned empty string")
	}
}
