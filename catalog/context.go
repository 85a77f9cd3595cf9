package catalog

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// RegistrationContext holds the scoped state a library's load-time side
// effect reads: the currently active Loader and the path currently being
// opened, plus the two sticky process-wide flags. The source system calls
// these "thread-globals"; they are logically per-process, not per-goroutine,
// and are only meaningfully read while the caller holds the open-serialization
// lock that guards an in-progress Open call — see library.Registry.
type RegistrationContext struct {
	mu                 sync.Mutex
	activeLoader       Owner
	loadingLibraryPath string

	nonPureLibraryOpened         atomic.Bool
	unmanagedInstanceEverCreated atomic.Bool

	log *slog.Logger
}

// NewRegistrationContext returns a fresh, independent context.
func NewRegistrationContext() *RegistrationContext {
	return &RegistrationContext{log: slog.Default()}
}

var (
	globalCtxOnce sync.Once
	globalCtx     *RegistrationContext
)

// GlobalContext returns the process-wide default RegistrationContext.
func GlobalContext() *RegistrationContext {
	globalCtxOnce.Do(func() { globalCtx = NewRegistrationContext() })
	return globalCtx
}

// SetLogger overrides the logger used for diagnostic warnings.
func (rc *RegistrationContext) SetLogger(l *slog.Logger) {
	if l != nil {
		rc.log = l
	}
}

// BeginOpen records which loader and library path an Open call in progress is
// acting on. Caller must already hold the relevant open-serialization lock.
func (rc *RegistrationContext) BeginOpen(loader Owner, path string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.activeLoader = loader
	rc.loadingLibraryPath = path
}

// EndOpen clears the active-loader/loading-path state after an Open call
// completes, successfully or not.
func (rc *RegistrationContext) EndOpen() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.activeLoader = nil
	rc.loadingLibraryPath = ""
}

// NonPureLibraryOpened reports whether any registration has ever occurred
// with no active loader.
func (rc *RegistrationContext) NonPureLibraryOpened() bool {
	return rc.nonPureLibraryOpened.Load()
}

// MarkUnmanagedInstanceCreated sets the sticky "an unmanaged instance exists"
// flag. Once set it is never cleared.
func (rc *RegistrationContext) MarkUnmanagedInstanceCreated() {
	rc.unmanagedInstanceEverCreated.Store(true)
}

// UnmanagedInstanceEverCreated reports the sticky unmanaged-instance flag.
func (rc *RegistrationContext) UnmanagedInstanceEverCreated() bool {
	return rc.unmanagedInstanceEverCreated.Load()
}

// Register implements the registration protocol (SPEC_FULL.md §4.2): mint a
// Factory Record tagged with the context's current active loader and loading
// library path, insert it into cat, and return the unique Handle that owns
// its lifetime.
func Register(ctx *RegistrationContext, cat *Catalog, className, baseClassName, baseFingerprint string, create func() any) *Handle {
	ctx.mu.Lock()
	loader := ctx.activeLoader
	path := ctx.loadingLibraryPath
	ctx.mu.Unlock()

	if loader == nil {
		if !ctx.nonPureLibraryOpened.Swap(true) {
			ctx.log.Warn("registration occurred with no active loader; library will be treated as non-pure and never auto-unloaded",
				"class_name", className, "base_class_name", baseClassName)
		}
	}

	rec := newRecord(className, baseClassName, baseFingerprint, create)
	if path != "" {
		rec.setLibraryPath(path)
	}
	if loader != nil {
		rec.AddOwner(loader)
	}

	cat.mu.Lock()
	cat.registerLocked(rec)
	cat.mu.Unlock()

	return &Handle{cat: cat, record: rec}
}
