package catalog

import (
	"sync"
	"testing"
)

func newConstructor(tag string) func() any {
	return func() any { return tag }
}

func TestRegisterAndFind(t *testing.T) {
	cat := NewCatalog()
	ctx := NewRegistrationContext()
	loader := "loaderA"
	ctx.BeginOpen(loader, "/lib/plug")
	h := Register(ctx, cat, "Alpha", "Interface", "fingerprint.Interface", newConstructor("alpha"))
	ctx.EndOpen()
	defer h.Release()

	rec := cat.Find("fingerprint.Interface", "Alpha")
	if rec == nil {
		t.Fatal("Find() = nil, want record")
	}
	if rec.LibraryPath() != "/lib/plug" {
		t.Errorf("LibraryPath() = %q, want /lib/plug", rec.LibraryPath())
	}
	if !rec.IsOwnedBy(loader) {
		t.Error("record should be owned by loader")
	}
}

func TestEnumerateMatchesCatalog(t *testing.T) {
	cat := NewCatalog()
	ctx := NewRegistrationContext()
	ctx.BeginOpen("L", "/lib/plug")
	h1 := Register(ctx, cat, "Alpha", "Interface", "fp", newConstructor("a"))
	h2 := Register(ctx, cat, "Beta", "Interface", "fp", newConstructor("b"))
	ctx.EndOpen()
	defer h1.Release()
	defer h2.Release()

	names := cat.Enumerate("fp", nil)
	if len(names) != 2 {
		t.Fatalf("Enumerate() = %v, want 2 entries", names)
	}
	for _, want := range []string{"Alpha", "Beta"} {
		found := false
		for _, n := range names {
			if n == want {
				found = true
			}
		}
		if !found {
			t.Errorf("Enumerate() missing %q", want)
		}
	}
}

func TestCollisionLastWriterWins(t *testing.T) {
	cat := NewCatalog()
	ctx := NewRegistrationContext()

	ctx.BeginOpen("L1", "/lib/p1")
	h1 := Register(ctx, cat, "Dup", "Interface", "fp", newConstructor("from-p1"))
	ctx.EndOpen()
	defer h1.Release()

	ctx.BeginOpen("L2", "/lib/p2")
	h2 := Register(ctx, cat, "Dup", "Interface", "fp", newConstructor("from-p2"))
	ctx.EndOpen()
	defer h2.Release()

	rec := cat.Find("fp", "Dup")
	if rec == nil {
		t.Fatal("Find() = nil")
	}
	if rec.LibraryPath() != "/lib/p2" {
		t.Errorf("LibraryPath() = %q, want /lib/p2 (last writer wins)", rec.LibraryPath())
	}
	names := cat.Enumerate("fp", nil)
	if len(names) != 1 {
		t.Fatalf("Enumerate() = %v, want exactly one Dup entry", names)
	}
}

func TestHandleReleaseUnlinks(t *testing.T) {
	cat := NewCatalog()
	ctx := NewRegistrationContext()
	ctx.BeginOpen("L", "/lib/plug")
	h := Register(ctx, cat, "Alpha", "Interface", "fp", newConstructor("a"))
	ctx.EndOpen()

	h.Release()
	if cat.Find("fp", "Alpha") != nil {
		t.Error("record should be unlinked after Release()")
	}

	// idempotent
	h.Release()
}

func TestNonPureLibraryFlag(t *testing.T) {
	cat := NewCatalog()
	ctx := NewRegistrationContext()
	if ctx.NonPureLibraryOpened() {
		t.Fatal("flag should start false")
	}
	h := Register(ctx, cat, "Alpha", "Interface", "fp", newConstructor("a"))
	defer h.Release()

	if !ctx.NonPureLibraryOpened() {
		t.Error("registering with no active loader must set the non-pure flag")
	}
	rec := cat.Find("fp", "Alpha")
	if rec.LibraryPath() != UnknownLibraryPath {
		t.Errorf("LibraryPath() = %q, want sentinel %q", rec.LibraryPath(), UnknownLibraryPath)
	}
}

func TestRegisterConcurrent(t *testing.T) {
	cat := NewCatalog()
	ctx := NewRegistrationContext()
	ctx.BeginOpen("L", "/lib/plug")
	defer ctx.EndOpen()

	const n = 100
	var wg sync.WaitGroup
	handles := make([]*Handle, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i] = Register(ctx, cat, classNameFor(i), "Interface", "fp", newConstructor(classNameFor(i)))
		}(i)
	}
	wg.Wait()

	names := cat.Enumerate("fp", nil)
	if len(names) != n {
		t.Fatalf("Enumerate() = %d entries, want %d", len(names), n)
	}
	for _, h := range handles {
		h.Release()
	}
}

func classNameFor(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return "Class" + string(letters[i%26]) + string(letters[(i/26)%26])
}
