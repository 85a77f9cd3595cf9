package classloader

import (
	"context"
	"errors"
	"testing"

	"github.com/joncooperworks/classloader/catalog"
	"github.com/joncooperworks/classloader/library"
)

func TestMultiLoaderLoadAndDispatch(t *testing.T) {
	cat := catalog.NewCatalog()
	rc := catalog.NewRegistrationContext()
	reg := library.NewRegistry(cat, rc)
	backend := newFakeBackend(cat, rc)
	backend.registerOnOpen("/lib/plug", func() {
		Register[Base, alphaImpl](rc, cat, "Alpha", "Base", func() alphaImpl { return alphaImpl{} })
	})

	ml := NewMultiLoader(backend, reg, true)
	ctx := context.Background()
	if err := ml.LoadLibrary(ctx, "/lib/plug"); err != nil {
		t.Fatalf("LoadLibrary() error = %v", err)
	}
	if !ml.IsLibraryAvailable("/lib/plug") {
		t.Fatal("IsLibraryAvailable() should be true after LoadLibrary")
	}

	inst, err := MultiCreateShared[Base](ctx, ml, "Alpha")
	if err != nil {
		t.Fatalf("MultiCreateShared() error = %v", err)
	}
	if inst.Value().Tag() != "alpha" {
		t.Errorf("Value().Tag() = %q, want alpha", inst.Value().Tag())
	}
	inst.Release(ctx)
}

func TestMultiLoaderNoLoaderError(t *testing.T) {
	cat := catalog.NewCatalog()
	rc := catalog.NewRegistrationContext()
	reg := library.NewRegistry(cat, rc)
	backend := newFakeBackend(cat, rc)
	ml := NewMultiLoader(backend, reg, true)

	err := ml.UnloadLibrary(context.Background(), "/lib/nope")
	var nle *NoLoaderError
	if !errors.As(err, &nle) {
		t.Errorf("UnloadLibrary() error = %v, want *NoLoaderError", err)
	}

	_, err = CreateSharedFrom[Base](context.Background(), ml, "/lib/nope", "Alpha")
	if !errors.As(err, &nle) {
		t.Errorf("CreateSharedFrom() error = %v, want *NoLoaderError", err)
	}
}

func TestMultiLoaderClose(t *testing.T) {
	cat := catalog.NewCatalog()
	rc := catalog.NewRegistrationContext()
	reg := library.NewRegistry(cat, rc)
	backend := newFakeBackend(cat, rc)
	backend.registerOnOpen("/lib/a", func() {
		Register[Base, alphaImpl](rc, cat, "Alpha", "Base", func() alphaImpl { return alphaImpl{} })
	})
	backend.registerOnOpen("/lib/b", func() {
		Register[Base, betaImpl](rc, cat, "Beta", "Base", func() betaImpl { return betaImpl{} })
	})

	// Not on-demand, so LoadLibrary opens each library and Close has two
	// open handles to release.
	ml := NewMultiLoader(backend, reg, false)
	ctx := context.Background()
	ml.LoadLibrary(ctx, "/lib/a")
	ml.LoadLibrary(ctx, "/lib/b")

	if err := ml.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if backend.closes != 2 {
		t.Errorf("backend.closes = %d, want 2", backend.closes)
	}
}
