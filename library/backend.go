// Package library implements the Library Registry: the mapping from library
// path to open platform handle, the pluggable PlatformLoader backend registry,
// and the open/close logic that drives the catalog's registration protocol and
// graveyard.
package library

import (
	"context"
	"fmt"
	"sync"
)

// Handle is an open library's platform handle. Close releases it; once
// released, the Library Registry never calls it again.
type Handle interface {
	Close(ctx context.Context) error
}

// PlatformLoader opens a library path, triggering its registration side
// effect, and returns a Handle. Implementations genuinely load executable
// code (wasmplatform.Backend) or model a library statically linked into the
// process (GoBackend).
type PlatformLoader interface {
	Open(ctx context.Context, path string) (Handle, error)
}

// BackendFactory constructs a PlatformLoader on demand.
type BackendFactory func() (PlatformLoader, error)

var (
	backendMu        sync.Mutex
	backendFactories = make(map[string]BackendFactory)
	backendInstances = make(map[string]PlatformLoader)
)

// RegisterBackend registers a PlatformLoader factory under a format
// identifier (e.g. "wasm", "go"). Called from a backend package's init(). A
// second registration under the same format replaces the factory and evicts
// any instance ResolveBackend had already cached for it, so a re-registration
// (as happens when a test package's init() runs alongside the real one) never
// leaves a stale singleton bound to the previous factory in place.
func RegisterBackend(format string, factory BackendFactory) {
	if format == "" {
		panic("library: RegisterBackend called with empty format")
	}
	backendMu.Lock()
	defer backendMu.Unlock()
	backendFactories[format] = factory
	delete(backendInstances, format)
}

// ResolveBackend returns the PlatformLoader registered under format,
// constructing it on first use and caching the result for every call after.
// This is the operation classloader.NewFromFormat drives: a format's backend
// is bound once to its catalog/registration-context pair and then reused
// across every Loader opened against that format, rather than each caller
// building and discarding its own copy the way a bare factory lookup would
// invite.
func ResolveBackend(format string) (PlatformLoader, error) {
	backendMu.Lock()
	defer backendMu.Unlock()

	if backend, ok := backendInstances[format]; ok {
		return backend, nil
	}
	factory, ok := backendFactories[format]
	if !ok {
		return nil, fmt.Errorf("no platform loader backend registered for format: %s", format)
	}
	backend, err := factory()
	if err != nil {
		return nil, fmt.Errorf("construct platform loader backend for format %q: %w", format, err)
	}
	backendInstances[format] = backend
	return backend, nil
}

// ListRegisteredBackends returns every registered format identifier.
func ListRegisteredBackends() []string {
	backendMu.Lock()
	defer backendMu.Unlock()
	formats := make([]string, 0, len(backendFactories))
	for format := range backendFactories {
		formats = append(formats, format)
	}
	return formats
}
