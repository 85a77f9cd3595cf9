package wasmplatform

import (
	"math"
	"net"
	"sync"
)

// connTracker assigns small integer IDs to live connections a guest module
// holds open across host calls. The teacher's plugin/wasm.go tracked these in
// bare package-level maps shared by every loaded plugin with no locking; here
// each Backend.Open call gets its own tracker, so concurrently open plugins
// never collide on connection IDs and every access is mutex-guarded.
type connTracker[C net.Conn] struct {
	mu      sync.Mutex
	conns   map[uint32]C
	nextID  uint32
}

func newConnTracker[C net.Conn]() *connTracker[C] {
	return &connTracker[C]{conns: make(map[uint32]C), nextID: 1}
}

// add stores conn and returns its new ID. 0 is reserved for "no connection".
func (t *connTracker[C]) add(conn C) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.nextID == math.MaxUint32 {
		t.nextID = 1
	}
	id := t.nextID
	t.nextID++
	t.conns[id] = conn
	return id
}

func (t *connTracker[C]) get(id uint32) (C, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.conns[id]
	return c, ok
}

func (t *connTracker[C]) remove(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, id)
}

// closeAll closes and forgets every tracked connection.
func (t *connTracker[C]) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, conn := range t.conns {
		conn.Close()
		delete(t.conns, id)
	}
}
