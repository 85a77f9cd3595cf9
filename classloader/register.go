package classloader

import (
	"context"
	"reflect"
	"sync"

	"github.com/joncooperworks/classloader/catalog"
)

// fingerprintOf returns Base's opaque runtime type-identity string, computed
// via reflect.TypeOf((*Base)(nil)).Elem().String(). The Catalog never
// interprets this string; it exists purely as a map key.
func fingerprintOf[Base any]() string {
	var zero Base
	return reflect.TypeOf(&zero).Elem().String()
}

// Register binds className/baseClassName under Base's fingerprint to a
// constructor, invoking the registration protocol (§4.2): reading the active
// loader and loading library path from ctx, allocating a Factory Record, and
// inserting it into cat. The returned Handle should be retained by the
// registrar (typically a library's bootstrap function) so Release can be
// called deterministically at teardown. Derived is not checked against Base
// at compile time: if newFunc's value does not implement Base, CreateShared,
// CreateUnique and CreateUnmanaged return a *CreateClassError for className.
func Register[Base any, Derived any](ctx *catalog.RegistrationContext, cat *catalog.Catalog, className, baseClassName string, newFunc func() Derived) *catalog.Handle {
	fp := fingerprintOf[Base]()
	return catalog.Register(ctx, cat, className, baseClassName, fp, func() any {
		return newFunc()
	})
}

// Instance wraps a value created through CreateShared with a release
// callback into the owning Loader's instance-count bookkeeping. Release may
// be called any number of times by independent holders of the same
// underlying value; each call decrements the Loader's instance_count once.
type Instance[Base any] struct {
	value   Base
	release func(ctx context.Context)
}

// Value returns the wrapped instance.
func (i *Instance[Base]) Value() Base { return i.value }

// Release decrements the owning Loader's instance count, triggering
// on-demand unload if it reaches zero.
func (i *Instance[Base]) Release(ctx context.Context) {
	if i.release != nil {
		i.release(ctx)
	}
}

// UniqueInstance is an Instance with single-owner semantics: a second
// Release call is a no-op, mirroring std::unique_ptr reset-once behavior.
type UniqueInstance[Base any] struct {
	Instance[Base]
	once sync.Once
}

// Release decrements the owning Loader's instance count exactly once,
// regardless of how many times it is called.
func (u *UniqueInstance[Base]) Release(ctx context.Context) {
	u.once.Do(func() { u.Instance.Release(ctx) })
}

// CreateShared creates an instance of className under Base's fingerprint
// through l, loading l's library first if it is not currently loaded. The
// returned handle's Release decrements l's instance count.
func CreateShared[Base any](ctx context.Context, l *Loader, className string) (*Instance[Base], error) {
	value, err := createAndCount[Base](ctx, l, className)
	if err != nil {
		return nil, err
	}
	return &Instance[Base]{value: value, release: l.onInstanceDeleted}, nil
}

// CreateUnique is CreateShared with single-owner release semantics: a second
// call to the returned handle's Release is a no-op.
func CreateUnique[Base any](ctx context.Context, l *Loader, className string) (*UniqueInstance[Base], error) {
	value, err := createAndCount[Base](ctx, l, className)
	if err != nil {
		return nil, err
	}
	return &UniqueInstance[Base]{Instance: Instance[Base]{value: value, release: l.onInstanceDeleted}}, nil
}

// CreateUnmanaged creates an instance of className through l without
// incrementing the instance count, and sets the process-wide
// "unmanaged-exists" sticky flag: once set, no Loader will ever auto-unload
// on reaching a zero instance count again. The caller is responsible for the
// returned value's lifetime; there is no handle to release.
func CreateUnmanaged[Base any](ctx context.Context, l *Loader, className string) (Base, error) {
	var zero Base
	if err := l.ensureLoaded(ctx); err != nil {
		return zero, err
	}
	fp := fingerprintOf[Base]()
	rec, err := l.findOwnedOrUnowned(fp, className)
	if err != nil {
		return zero, err
	}
	l.reg.Context().MarkUnmanagedInstanceCreated()
	value, ok := rec.Create().(Base)
	if !ok {
		return zero, &CreateClassError{ClassName: className, BaseName: fp}
	}
	return value, nil
}

// Enumerate returns every class name registered under Base's fingerprint that
// l owns or that is currently unowned.
func Enumerate[Base any](l *Loader) []string {
	fp := fingerprintOf[Base]()
	return l.reg.Catalog().Enumerate(fp, func(r *catalog.Record) bool {
		return r.IsOwnedBy(l) || r.Unowned()
	})
}

func createAndCount[Base any](ctx context.Context, l *Loader, className string) (Base, error) {
	var zero Base
	if err := l.ensureLoaded(ctx); err != nil {
		return zero, err
	}
	fp := fingerprintOf[Base]()
	rec, err := l.findOwnedOrUnowned(fp, className)
	if err != nil {
		return zero, err
	}
	value, ok := rec.Create().(Base)
	if !ok {
		return zero, &CreateClassError{ClassName: className, BaseName: fp}
	}
	l.incInstance()
	return value, nil
}
