// Package catalog implements the process-global factory registration fabric:
// the Factory Catalog, Factory Record, Graveyard, and the registration context
// that ties a library's load-time side effect to the loader that triggered it.
package catalog

import (
	"log/slog"
	"strconv"
	"sync"
)

// UnknownLibraryPath is recorded on a Record whose associated library path has
// not been fixed up by an in-progress registration (no Open call is active).
const UnknownLibraryPath = "Unknown"

// Owner identifies an entity that can claim a Record. The catalog treats it as
// an opaque, comparable identity; in practice this is a *classloader.Loader.
type Owner any

// Catalog maps base-type fingerprint to class name to Record, and holds the
// Graveyard of records whose owner set has gone empty or was never populated.
//
// The source system requires this lock to be reentrant because Factory Record
// destructors fire synchronously from inside catalog operations that already
// hold it. This implementation has no implicit destructors — Release is always
// an explicit call made outside of any in-progress Catalog method — so a plain
// sync.Mutex is sufficient.
type Catalog struct {
	mu     sync.Mutex
	byBase map[string]map[string]*Record
	grave  []*Record
	log    *slog.Logger
}

// NewCatalog returns an empty, independently lockable Catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		byBase: make(map[string]map[string]*Record),
		log:    slog.Default(),
	}
}

var (
	globalOnce sync.Once
	global     *Catalog
)

// Global returns the process-wide default Catalog, lazily constructed.
func Global() *Catalog {
	globalOnce.Do(func() { global = NewCatalog() })
	return global
}

// SetLogger overrides the logger used for diagnostic warnings.
func (c *Catalog) SetLogger(l *slog.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l != nil {
		c.log = l
	}
}

// factoryMapForLocked returns the sub-map for baseFingerprint, creating it if absent.
// Caller must hold c.mu.
func (c *Catalog) factoryMapForLocked(baseFingerprint string) map[string]*Record {
	m, ok := c.byBase[baseFingerprint]
	if !ok {
		m = make(map[string]*Record)
		c.byBase[baseFingerprint] = m
	}
	return m
}

// FactoryMapFor returns a snapshot of the class-name -> Record sub-map for baseFingerprint.
func (c *Catalog) FactoryMapFor(baseFingerprint string) map[string]*Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	src := c.factoryMapForLocked(baseFingerprint)
	out := make(map[string]*Record, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// registerLocked inserts record under (record.BaseFingerprint, record.ClassName),
// overwriting and logging a collision warning if the key is already occupied.
// Caller must hold c.mu.
func (c *Catalog) registerLocked(record *Record) {
	m := c.factoryMapForLocked(record.BaseFingerprint)
	if prior, exists := m[record.ClassName]; exists && prior != record {
		c.log.Warn("factory registration collision, last writer wins",
			"base_fingerprint", record.BaseFingerprint,
			"class_name", record.ClassName,
			"prior_library_path", prior.LibraryPath(),
			"new_library_path", record.LibraryPath(),
		)
	}
	m[record.ClassName] = record
}

// Find returns the Record under (baseFingerprint, className), or nil if absent.
func (c *Catalog) Find(baseFingerprint, className string) *Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.factoryMapForLocked(baseFingerprint)[className]
}

// Enumerate returns the class names under baseFingerprint for which predicate
// returns true. A nil predicate matches everything.
func (c *Catalog) Enumerate(baseFingerprint string, predicate func(*Record) bool) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.factoryMapForLocked(baseFingerprint)
	names := make([]string, 0, len(m))
	for name, rec := range m {
		if predicate == nil || predicate(rec) {
			names = append(names, name)
		}
	}
	return names
}

// removeLocked unlinks record from the catalog sub-map, a silent no-op if absent.
// Caller must hold c.mu.
func (c *Catalog) removeLocked(record *Record) {
	m, ok := c.byBase[record.BaseFingerprint]
	if !ok {
		return
	}
	if cur, exists := m[record.ClassName]; exists && cur == record {
		delete(m, record.ClassName)
	}
}

// Remove unlinks exactly this record from the Catalog (not the Graveyard).
func (c *Catalog) Remove(record *Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(record)
}

// DebugString dumps every record's (base fingerprint, class name, library path,
// owner count), one line each, for operator diagnostics. Mirrors the source
// system's printDebugInfoToScreen.
func (c *Catalog) DebugString() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := ""
	for base, m := range c.byBase {
		for name, rec := range m {
			out += base + "/" + name + " path=" + rec.LibraryPath() +
				" owners=" + strconv.Itoa(rec.OwnerCount()) + "\n"
		}
	}
	for _, rec := range c.grave {
		out += "[graveyard] " + rec.BaseFingerprint + "/" + rec.ClassName +
			" path=" + rec.LibraryPath() + "\n"
	}
	return out
}
