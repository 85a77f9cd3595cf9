package catalog

import "testing"

func TestDestroyFactoriesForMovesToGraveyardWhenUnowned(t *testing.T) {
	cat := NewCatalog()
	ctx := NewRegistrationContext()
	ctx.BeginOpen("L1", "/lib/plug")
	h := Register(ctx, cat, "Alpha", "Interface", "fp", newConstructor("a"))
	ctx.EndOpen()
	defer h.Release()

	cat.DestroyFactoriesFor("/lib/plug", "L1")

	if cat.Find("fp", "Alpha") != nil {
		t.Error("record should be removed from Catalog once unowned")
	}
	if cat.HasLiveFactoriesFor("/lib/plug") {
		t.Error("HasLiveFactoriesFor should be false once the only record moved to graveyard")
	}
}

func TestDestroyFactoriesForSharedLibraryKeepsOtherOwner(t *testing.T) {
	cat := NewCatalog()
	ctx := NewRegistrationContext()
	ctx.BeginOpen("L1", "/lib/plug")
	h := Register(ctx, cat, "Alpha", "Interface", "fp", newConstructor("a"))
	ctx.EndOpen()
	defer h.Release()

	cat.AddOwnerForAllFactoriesFor("/lib/plug", "L2")

	cat.DestroyFactoriesFor("/lib/plug", "L1")

	rec := cat.Find("fp", "Alpha")
	if rec == nil {
		t.Fatal("record should still be in Catalog, owned by L2")
	}
	if rec.IsOwnedBy("L1") {
		t.Error("L1 should have been removed as owner")
	}
	if !rec.IsOwnedBy("L2") {
		t.Error("L2 should remain as owner")
	}

	cat.DestroyFactoriesFor("/lib/plug", "L2")
	if cat.Find("fp", "Alpha") != nil {
		t.Error("record should move to graveyard once L2 also releases it")
	}
}

func TestResurrectAndPurge(t *testing.T) {
	cat := NewCatalog()
	ctx := NewRegistrationContext()
	ctx.BeginOpen("L1", "/lib/plug")
	h := Register(ctx, cat, "Alpha", "Interface", "fp", newConstructor("a"))
	ctx.EndOpen()
	defer h.Release()

	cat.DestroyFactoriesFor("/lib/plug", "L1")
	if cat.Find("fp", "Alpha") != nil {
		t.Fatal("precondition: record should be in graveyard")
	}

	resurrected := cat.ResurrectFor("/lib/plug", "L2")
	if resurrected != 1 {
		t.Fatalf("ResurrectFor() = %d, want 1", resurrected)
	}
	rec := cat.Find("fp", "Alpha")
	if rec == nil {
		t.Fatal("resurrected record should be back in the Catalog")
	}
	if !rec.IsOwnedBy("L2") {
		t.Error("resurrected record should be owned by the resurrecting loader")
	}

	cat.PurgeFor("/lib/plug")
	// purge removes the graveyard shadow copy but the catalog entry (same
	// pointer) is untouched.
	if cat.Find("fp", "Alpha") == nil {
		t.Error("purge must not remove the now-resurrected Catalog entry")
	}
}

func TestPurgeForOnlyAffectsMatchingPath(t *testing.T) {
	cat := NewCatalog()
	ctx := NewRegistrationContext()

	ctx.BeginOpen("L1", "/lib/p1")
	h1 := Register(ctx, cat, "Alpha", "Interface", "fp", newConstructor("a"))
	ctx.EndOpen()
	defer h1.Release()

	ctx.BeginOpen("L2", "/lib/p2")
	h2 := Register(ctx, cat, "Beta", "Interface", "fp", newConstructor("b"))
	ctx.EndOpen()
	defer h2.Release()

	cat.DestroyFactoriesFor("/lib/p1", "L1")
	cat.DestroyFactoriesFor("/lib/p2", "L2")

	cat.PurgeFor("/lib/p1")

	resurrected := cat.ResurrectFor("/lib/p2", "L3")
	if resurrected != 1 {
		t.Fatalf("ResurrectFor(/lib/p2) = %d, want 1 (p1 purge must not affect p2)", resurrected)
	}
}
