package classloader

import (
	"context"
	"log/slog"
	"sync"

	"github.com/joncooperworks/classloader/catalog"
	"github.com/joncooperworks/classloader/library"
)

// Loader binds a library path to a Registry, tracking independent load and
// instance reference counts. Grounded on the source system's ClassLoader
// (class_loader.hpp/.cpp).
type Loader struct {
	path     string
	onDemand bool
	backend  library.PlatformLoader
	reg      *library.Registry
	log      *slog.Logger

	loadMu    sync.Mutex
	loadCount int

	instMu    sync.Mutex
	instCount int
}

// New constructs a Loader bound to path using backend and reg. If onDemand is
// false, Load is called immediately.
func New(backend library.PlatformLoader, reg *library.Registry, path string, onDemand bool) (*Loader, error) {
	l := &Loader{
		path:     path,
		onDemand: onDemand,
		backend:  backend,
		reg:      reg,
		log:      slog.Default(),
	}
	if !onDemand {
		if err := l.Load(context.Background()); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// NewFromFormat resolves the PlatformLoader backend registered under format
// (via library.ResolveBackend, caching it for every later Loader built
// against the same format) and constructs a Loader from it. This is the
// normal construction path for callers that know a library's format but not
// its backend instance, such as a CLI dispatching on the path's extension.
func NewFromFormat(format string, reg *library.Registry, path string, onDemand bool) (*Loader, error) {
	backend, err := library.ResolveBackend(format)
	if err != nil {
		return nil, err
	}
	return New(backend, reg, path, onDemand)
}

// SetLogger overrides the logger used for diagnostic warnings.
func (l *Loader) SetLogger(logger *slog.Logger) {
	if logger != nil {
		l.log = logger
	}
}

// Path returns the library path this Loader is bound to.
func (l *Loader) Path() string { return l.path }

// Load opens the bound library, incrementing load_count. A no-op if path is
// empty.
func (l *Loader) Load(ctx context.Context) error {
	if l.path == "" {
		return nil
	}
	l.loadMu.Lock()
	defer l.loadMu.Unlock()

	if err := l.reg.Open(ctx, l.backend, l.path, l); err != nil {
		return &LibraryLoadError{Path: l.path, Err: err}
	}
	l.loadCount++
	return nil
}

// Unload decrements load_count and, if it reaches zero, closes the bound
// library. Returns the remaining load_count. A no-op (returns 0) if path is
// empty.
func (l *Loader) Unload(ctx context.Context) (int, error) {
	if l.path == "" {
		return 0, nil
	}
	l.instMu.Lock()
	defer l.instMu.Unlock()
	return l.unloadLocked(ctx)
}

// unloadLocked assumes the instance-count lock is already held. Replaces the
// source system's unload_internal(lock_instances bool) parameter with this
// explicit, separately named path.
func (l *Loader) unloadLocked(ctx context.Context) (int, error) {
	l.loadMu.Lock()
	defer l.loadMu.Unlock()

	if l.instCount > 0 {
		l.log.Warn("unload requested while instances are still live", "path", l.path, "instance_count", l.instCount)
		return l.loadCount, nil
	}

	l.loadCount--
	if l.loadCount < 0 {
		l.log.Debug("Unload called more times than Load; clamping", "path", l.path)
		l.loadCount = 0
		return 0, nil
	}
	if l.loadCount == 0 {
		if err := l.reg.Close(ctx, l.path, l); err != nil {
			return l.loadCount, &LibraryUnloadError{Path: l.path, Err: err}
		}
	}
	return l.loadCount, nil
}

// Close calls Unload once, discarding the remaining load_count.
func (l *Loader) Close(ctx context.Context) error {
	_, err := l.Unload(ctx)
	return err
}

// onInstanceDeleted is the release callback bound into every handle minted by
// CreateShared/CreateUnique. It is the only caller that starts from
// "instance-count lock not held".
func (l *Loader) onInstanceDeleted(ctx context.Context) {
	l.instMu.Lock()
	defer l.instMu.Unlock()

	l.instCount--
	if l.instCount < 0 {
		l.instCount = 0
	}
	if l.instCount != 0 {
		return
	}
	if !l.onDemand {
		return
	}
	if l.reg.Context().UnmanagedInstanceEverCreated() {
		l.log.Warn("instance count reached zero but an unmanaged instance exists somewhere; leaving library resident", "path", l.path)
		return
	}
	if _, err := l.unloadLocked(ctx); err != nil {
		l.log.Warn("automatic unload on last instance release failed", "path", l.path, "error", err)
	}
}

// ensureLoaded opens the bound library if it is not currently loaded through
// this Loader (load_count is zero), realizing CreateShared/CreateUnique's
// on-demand-load clause.
func (l *Loader) ensureLoaded(ctx context.Context) error {
	l.loadMu.Lock()
	needsLoad := l.loadCount == 0
	l.loadMu.Unlock()
	if needsLoad {
		return l.Load(ctx)
	}
	return nil
}

// findOwnedOrUnowned looks up a factory this Loader may instantiate: owned by
// it, or currently unowned (the graveyard-free common case right after load).
func (l *Loader) findOwnedOrUnowned(baseFingerprint, className string) (*catalog.Record, error) {
	rec := l.reg.Catalog().Find(baseFingerprint, className)
	if rec == nil || !(rec.IsOwnedBy(l) || rec.Unowned()) {
		return nil, &CreateClassError{ClassName: className, BaseName: baseFingerprint}
	}
	return rec, nil
}

func (l *Loader) incInstance() {
	l.instMu.Lock()
	l.instCount++
	l.instMu.Unlock()
}

// IsClassAvailable reports whether className is currently enumerable under
// baseFingerprint and owned by this Loader (or unowned). Mirrors
// ClassLoader::isClassAvailable.
func (l *Loader) IsClassAvailable(baseFingerprint, className string) bool {
	rec := l.reg.Catalog().Find(baseFingerprint, className)
	if rec == nil {
		return false
	}
	return rec.IsOwnedBy(l) || rec.Unowned()
}
