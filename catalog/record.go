package catalog

import "sync"

// Record is a factory for one plugin class: (base interface, class name) ->
// instance. ClassName, BaseClassName, and BaseFingerprint are fixed at
// construction. LibraryPath and the owner set are the only fields mutated
// afterward, always under the record's own mutex.
type Record struct {
	ClassName       string
	BaseClassName   string
	BaseFingerprint string

	create func() any

	mu          sync.Mutex
	libraryPath string
	owners      map[Owner]struct{}
}

func newRecord(className, baseClassName, baseFingerprint string, create func() any) *Record {
	return &Record{
		ClassName:       className,
		BaseClassName:   baseClassName,
		BaseFingerprint: baseFingerprint,
		create:          create,
		libraryPath:     UnknownLibraryPath,
		owners:          make(map[Owner]struct{}),
	}
}

// Create invokes the factory's constructor, returning an untyped instance.
// Typed callers assert the result back to the Base interface the fingerprint
// names; the Catalog itself never does this.
func (r *Record) Create() any {
	return r.create()
}

// LibraryPath returns the library path this record was registered under.
func (r *Record) LibraryPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.libraryPath
}

func (r *Record) setLibraryPath(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.libraryPath = path
}

// AddOwner adds owner to the record's owner set. A no-op if already present.
func (r *Record) AddOwner(owner Owner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[owner] = struct{}{}
}

// RemoveOwner removes owner from the record's owner set. A no-op if absent.
func (r *Record) RemoveOwner(owner Owner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.owners, owner)
}

// IsOwnedBy reports whether owner is in the record's owner set.
func (r *Record) IsOwnedBy(owner Owner) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.owners[owner]
	return ok
}

// OwnerCount returns the number of current owners.
func (r *Record) OwnerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.owners)
}

// Unowned reports whether the record currently has no owners at all — the
// state that makes it eligible to be moved into the Graveyard.
func (r *Record) Unowned() bool {
	return r.OwnerCount() == 0
}

// Handle is the unique, owning reference returned by Register. Its Release
// method unlinks the underlying Record from both the Catalog and the
// Graveyard. The source system binds an equivalent handle's destructor to a
// per-plugin static object so it fires at process shutdown; Go has no
// implicit destructors, so Release must be called explicitly — by a
// library's teardown path, or by a test that wants to exercise self-unlink
// deterministically. A Handle that is never released simply stays resident,
// which is the conservative and safe default.
type Handle struct {
	cat    *Catalog
	record *Record

	once sync.Once
}

// Release unlinks the record from the Catalog and Graveyard. Idempotent.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.cat.mu.Lock()
		defer h.cat.mu.Unlock()
		h.cat.removeGraveyardLocked(h.record)
		h.cat.removeLocked(h.record)
	})
}

// Record returns the underlying Factory Record this handle owns.
func (h *Handle) Record() *Record {
	return h.record
}
