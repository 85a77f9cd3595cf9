package library

import (
	"context"
	"fmt"
	"sync"
)

func init() {
	RegisterBackend("go", func() (PlatformLoader, error) {
		return NewGoBackend(), nil
	})
}

// GoBackend models a library statically linked into the process: its
// registration side effect is a plain Go function rather than bytes loaded
// from disk. Grounded on the source system's "linked, not dlopened" case
// (class_loader.cpp), realized here with Go's own init()-once semantics: a
// path's bootstrap runs at most once per process for the life of the
// Registry, so the *second* Open of a Go-native path is guaranteed to
// register nothing new, making graveyard resurrection the only path by which
// it becomes usable again. Close is a no-op: Go has no facility to unlink a
// compiled-in package.
type GoBackend struct {
	mu         sync.Mutex
	bootstraps map[string]func()
	ran        map[string]*sync.Once
}

// NewGoBackend returns a backend with no registered paths.
func NewGoBackend() *GoBackend {
	return &GoBackend{
		bootstraps: make(map[string]func()),
		ran:        make(map[string]*sync.Once),
	}
}

// RegisterLibrary binds path to bootstrap, the function that performs this
// library's self-registration (typically one or more classloader.Register
// calls). bootstrap runs at most once across the life of this backend.
func (b *GoBackend) RegisterLibrary(path string, bootstrap func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bootstraps[path] = bootstrap
	b.ran[path] = &sync.Once{}
}

// Open runs path's bootstrap function if it has not already run.
func (b *GoBackend) Open(ctx context.Context, path string) (Handle, error) {
	b.mu.Lock()
	bootstrap, ok := b.bootstraps[path]
	once := b.ran[path]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no Go-native library registered at path %q", path)
	}
	once.Do(bootstrap)
	return goHandle{}, nil
}

// goHandle is a no-op Handle: a statically linked Go package cannot be
// unlinked from a running process.
type goHandle struct{}

func (goHandle) Close(ctx context.Context) error { return nil }
