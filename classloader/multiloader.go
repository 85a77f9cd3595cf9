package classloader

import (
	"context"
	"log/slog"
	"sync"

	"github.com/joncooperworks/classloader/library"
)

// MultiLoader is a façade over several Loaders, keyed by library path.
// Grounded on the source system's MultiLibraryClassLoader
// (multi_library_class_loader.hpp/.cpp).
type MultiLoader struct {
	mu      sync.Mutex
	backend library.PlatformLoader
	reg     *library.Registry
	onDemand bool
	log     *slog.Logger

	loaders []*Loader // insertion order, scanned by CreateShared without an explicit path
	byPath  map[string]*Loader
}

// NewMultiLoader returns an empty MultiLoader that opens libraries through
// backend and reg, with onDemand applied to every Loader it creates.
func NewMultiLoader(backend library.PlatformLoader, reg *library.Registry, onDemand bool) *MultiLoader {
	return &MultiLoader{
		backend:  backend,
		reg:      reg,
		onDemand: onDemand,
		log:      slog.Default(),
		byPath:   make(map[string]*Loader),
	}
}

// SetLogger overrides the logger used for diagnostic warnings.
func (m *MultiLoader) SetLogger(l *slog.Logger) {
	if l != nil {
		m.log = l
	}
}

// LoadLibrary binds path to a new Loader, if not already bound. The library
// is opened immediately unless the MultiLoader is in on-demand mode; then it
// is opened on first use (see MultiCreateShared).
func (m *MultiLoader) LoadLibrary(ctx context.Context, path string) error {
	m.mu.Lock()
	if _, ok := m.byPath[path]; ok {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	l, err := New(m.backend, m.reg, path, m.onDemand)
	if err != nil {
		return err
	}
	l.SetLogger(m.log)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byPath[path]; ok {
		// Lost a race with a concurrent LoadLibrary(path); close the redundant
		// loader we just built and keep the existing one.
		l.Close(ctx)
		return nil
	}
	m.byPath[path] = l
	m.loaders = append(m.loaders, l)
	return nil
}

// UnloadLibrary closes the Loader bound to path.
func (m *MultiLoader) UnloadLibrary(ctx context.Context, path string) error {
	m.mu.Lock()
	l, ok := m.byPath[path]
	m.mu.Unlock()
	if !ok {
		return &NoLoaderError{Path: path}
	}
	return l.Close(ctx)
}

// IsLibraryAvailable reports whether path is bound to a Loader, mirroring
// MultiLibraryClassLoader::isLibraryAvailable.
func (m *MultiLoader) IsLibraryAvailable(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byPath[path]
	return ok
}

// loaderForPath returns the Loader bound to path, or nil.
func (m *MultiLoader) loaderForPath(path string) *Loader {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byPath[path]
}

// loadersSnapshot returns a stable copy of the insertion-ordered Loader list.
func (m *MultiLoader) loadersSnapshot() []*Loader {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Loader, len(m.loaders))
	copy(out, m.loaders)
	return out
}

// CreateSharedFrom creates an instance of className from the Loader bound to
// path.
func CreateSharedFrom[Base any](ctx context.Context, m *MultiLoader, path, className string) (*Instance[Base], error) {
	l := m.loaderForPath(path)
	if l == nil {
		return nil, &NoLoaderError{Path: path}
	}
	return CreateShared[Base](ctx, l, className)
}

// MultiCreateShared creates an instance of className, scanning bound Loaders
// in insertion order and loading any not yet loaded, dispatching to the
// first Loader that advertises the class.
func MultiCreateShared[Base any](ctx context.Context, m *MultiLoader, className string) (*Instance[Base], error) {
	for _, l := range m.loadersSnapshot() {
		if err := l.ensureLoaded(ctx); err != nil {
			m.log.Warn("on-demand load failed while scanning for class", "path", l.Path(), "class", className, "error", err)
			continue
		}
		inst, err := CreateShared[Base](ctx, l, className)
		if err == nil {
			return inst, nil
		}
	}
	return nil, &CreateClassError{ClassName: className, BaseName: fingerprintOf[Base]()}
}

// Close unloads every bound library.
func (m *MultiLoader) Close(ctx context.Context) error {
	var firstErr error
	for _, l := range m.loadersSnapshot() {
		if err := l.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
