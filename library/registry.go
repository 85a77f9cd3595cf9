package library

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"github.com/joncooperworks/classloader/catalog"
)

// entry is one live (path, handle) pair in the registry.
type entry struct {
	path   string
	handle Handle
}

// Registry maps library path to open platform handle, and coordinates the
// registration context and graveyard around each Open/Close. Grounded on the
// source system's loadLibrary/unloadLibrary (class_loader_core.cpp).
type Registry struct {
	libMu   sync.Mutex // guards entries
	openMu  sync.Mutex // open-serialization lock
	entries []entry

	cat *catalog.Catalog
	ctx *catalog.RegistrationContext
	log *slog.Logger
}

// NewRegistry returns an independent Registry bound to cat and ctx, suitable
// for test isolation.
func NewRegistry(cat *catalog.Catalog, ctx *catalog.RegistrationContext) *Registry {
	return &Registry{cat: cat, ctx: ctx, log: slog.Default()}
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide default Registry, bound to the default
// Catalog and RegistrationContext.
func Global() *Registry {
	globalOnce.Do(func() {
		global = NewRegistry(catalog.Global(), catalog.GlobalContext())
	})
	return global
}

// SetLogger overrides the logger used for diagnostic warnings.
func (r *Registry) SetLogger(l *slog.Logger) {
	if l != nil {
		r.log = l
	}
}

// Catalog returns the Catalog this Registry is bound to.
func (r *Registry) Catalog() *catalog.Catalog { return r.cat }

// Context returns the RegistrationContext this Registry is bound to.
func (r *Registry) Context() *catalog.RegistrationContext { return r.ctx }

func (r *Registry) findLocked(path string) (int, bool) {
	for i, e := range r.entries {
		if e.path == path {
			return i, true
		}
	}
	return 0, false
}

// Open binds loader as an owner of path. If path is already open, this only
// adds ownership of existing factories and never calls the platform backend
// again. Otherwise it serializes the real open under the open-serialization
// lock, sets the registration context around it, and performs graveyard
// resurrection/purge afterward.
func (r *Registry) Open(ctx context.Context, backend PlatformLoader, path string, loader catalog.Owner) error {
	r.libMu.Lock()
	if _, ok := r.findLocked(path); ok {
		r.libMu.Unlock()
		r.cat.AddOwnerForAllFactoriesFor(path, loader)
		return nil
	}
	r.libMu.Unlock()

	r.openMu.Lock()
	r.ctx.BeginOpen(loader, path)
	handle, err := backend.Open(ctx, path)
	r.ctx.EndOpen()
	r.openMu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to load library %q: %w", path, err)
	}

	if !r.cat.HasLiveFactoriesFor(path) {
		resurrected := r.cat.ResurrectFor(path, loader)
		if resurrected > 0 {
			r.log.Info("resurrected factory records from graveyard", "path", path, "count", resurrected)
		}
	}
	r.cat.PurgeFor(path)

	r.libMu.Lock()
	r.entries = append(r.entries, entry{path: path, handle: handle})
	r.libMu.Unlock()
	return nil
}

// Close releases loader's ownership of path's factories and, if no factories
// remain for path anywhere in the catalog, closes the platform handle and
// removes the registry entry. If the non-pure-library flag has ever been set,
// Close never unloads anything — it only logs.
func (r *Registry) Close(ctx context.Context, path string, loader catalog.Owner) error {
	if r.ctx.NonPureLibraryOpened() {
		r.log.Warn("skipping unload: a non-pure library was opened earlier in this process", "path", path)
		return nil
	}

	r.libMu.Lock()
	idx, ok := r.findLocked(path)
	if !ok {
		r.libMu.Unlock()
		r.log.Warn("close requested for a path with no registry entry", "path", path)
		return nil
	}
	e := r.entries[idx]
	r.libMu.Unlock()

	r.cat.DestroyFactoriesFor(path, loader)

	if r.cat.HasLiveFactoriesFor(path) {
		return nil
	}

	if err := e.handle.Close(ctx); err != nil {
		return fmt.Errorf("failed to unload library %q: %w", path, err)
	}

	r.libMu.Lock()
	if idx, ok := r.findLocked(path); ok {
		r.entries = append(r.entries[:idx], r.entries[idx+1:]...)
	}
	r.libMu.Unlock()
	return nil
}

// PlatformLibraryName returns the conventional shared-library filename for
// name on the current platform, ported from the source system's
// systemLibraryFormat.
func PlatformLibraryName(name string) string {
	if strings.Contains(name, "/") || strings.Contains(name, string(rune(0))) {
		return name
	}
	switch runtime.GOOS {
	case "windows":
		return name + ".dll"
	case "darwin":
		return "lib" + name + ".dylib"
	default:
		return "lib" + name + ".so"
	}
}
