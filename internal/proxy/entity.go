package proxy

import (
	"sync"

	"github.com/google/uuid"
)

// Entity is one tracked world entity, populated from SPAWN_* packets.
type Entity struct {
	EID       int32
	UUID      uuid.UUID // zero for pre-uuid protocol versions
	Kind      int32
	X, Y, Z   float64
	Yaw       int8
	Pitch     int8
	HeadPitch int8
	IsObject  bool
}

// EntityTable tracks entities visible to one session. Single writer (the
// server half's read loop); readers accept staleness.
type EntityTable struct {
	mu       sync.RWMutex
	entities map[int32]Entity
}

// NewEntityTable creates an empty table.
func NewEntityTable() *EntityTable {
	return &EntityTable{entities: make(map[int32]Entity)}
}

// Upsert inserts or replaces an entity.
func (t *EntityTable) Upsert(e Entity) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entities[e.EID] = e
}

// Get returns the entity for eid.
func (t *EntityTable) Get(eid int32) (Entity, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entities[eid]
	return e, ok
}

// MoveRelative offsets an entity's position. Unknown eids are ignored.
func (t *EntityTable) MoveRelative(eid int32, dx, dy, dz float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entities[eid]
	if !ok {
		return
	}
	e.X += dx
	e.Y += dy
	e.Z += dz
	t.entities[eid] = e
}

// Teleport moves an entity to an absolute position. Unknown eids are ignored.
func (t *EntityTable) Teleport(eid int32, x, y, z float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entities[eid]
	if !ok {
		return
	}
	e.X, e.Y, e.Z = x, y, z
	t.entities[eid] = e
}

// Remove drops entities destroyed by the server.
func (t *EntityTable) Remove(eids ...int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, eid := range eids {
		delete(t.entities, eid)
	}
}

// Len returns the current entity count.
func (t *EntityTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entities)
}

// Clear empties the table (cross-server rebind).
func (t *EntityTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.entities)
}
