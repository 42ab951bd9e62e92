package proxy

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/craftwrap/craftwrap/internal/auth"
	"github.com/craftwrap/craftwrap/internal/protocol"
)

// NoEntity marks the absence of a riding/vehicle entity id.
const NoEntity int32 = -1

// Session is the shared per-player state both halves read. Fields follow a
// single-writer rule: position, inventory, bed and entity state are written
// only by the server half's handlers; identity fields are written once during
// login before the server half exists. Cross-half teardown goes through the
// coordinator.
type Session struct {
	mu sync.Mutex

	version     int32
	username    string
	authUUID    uuid.UUID
	offlineUUID uuid.UUID
	properties  []auth.Property

	serverEID int32
	gamemode  byte
	dimension int32
	x, y, z   float64
	bed       *protocol.BlockPos
	riding    int32
	inventory map[int16]protocol.Slot
	timeOfDay int64
	spawned   bool

	entities *EntityTable // nil unless entity tracking is configured

	client *ClientConn
	server *ServerConn

	closed    atomic.Bool
	closeOnce sync.Once
}

func newSession(trackEntities bool) *Session {
	s := &Session{
		riding:    NoEntity,
		inventory: make(map[int16]protocol.Slot),
	}
	if trackEntities {
		s.entities = NewEntityTable()
	}
	return s
}

// PlayerRef is the identity handle passed in event payloads.
type PlayerRef struct {
	Username string
	UUID     uuid.UUID
	EID      int32
}

// Ref returns the event-payload handle for this session's player.
func (s *Session) Ref() PlayerRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return PlayerRef{Username: s.username, UUID: s.authUUID, EID: s.serverEID}
}

// setIdentity records the negotiated identity. Called once, during login.
func (s *Session) setIdentity(version int32, username string, authUUID, offlineUUID uuid.UUID, props []auth.Property) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = version
	s.username = username
	s.authUUID = authUUID
	s.offlineUUID = offlineUUID
	s.properties = props
}

// Version returns the negotiated protocol version.
func (s *Session) Version() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Username returns the player's name.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// AuthUUID returns the session-service identity.
func (s *Session) AuthUUID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authUUID
}

// OfflineUUID returns the identity the local server knows the player by.
func (s *Session) OfflineUUID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offlineUUID
}

// Properties returns the signed profile properties from authentication.
func (s *Session) Properties() []auth.Property {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.properties
}

// ServerEID returns the entity id the local server assigned to the player.
func (s *Session) ServerEID() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverEID
}

// SetJoinState records the JOIN_GAME fields.
func (s *Session) SetJoinState(eid int32, gamemode byte, dimension int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverEID = eid
	s.gamemode = gamemode
	s.dimension = dimension
}

// Gamemode returns the current gamemode.
func (s *Session) Gamemode() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gamemode
}

// SetGamemode updates the gamemode.
func (s *Session) SetGamemode(gm byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gamemode = gm
}

// SetDimension updates the dimension.
func (s *Session) SetDimension(dim int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dim
}

// Dimension returns the current dimension.
func (s *Session) Dimension() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dimension
}

// Position returns the player's last known position.
func (s *Session) Position() (x, y, z float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.x, s.y, s.z
}

// SetPosition updates the player's position.
func (s *Session) SetPosition(x, y, z float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.x, s.y, s.z = x, y, z
}

// BedPosition returns the recorded bed location, or nil.
func (s *Session) BedPosition() *protocol.BlockPos {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bed
}

// SetBedPosition records the bed location.
func (s *Session) SetBedPosition(p protocol.BlockPos) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bed = &p
}

// Riding returns the ridden entity id, or NoEntity.
func (s *Session) Riding() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.riding
}

// SetRiding updates the ridden entity id.
func (s *Session) SetRiding(eid int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.riding = eid
}

// SetSlot records an inventory slot from window 0.
func (s *Session) SetSlot(slot int16, item protocol.Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inventory[slot] = item
}

// Slot returns an inventory slot snapshot.
func (s *Session) Slot(slot int16) (protocol.Slot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.inventory[slot]
	return item, ok
}

// SetTimeOfDay mirrors the world time from TIME_UPDATE.
func (s *Session) SetTimeOfDay(t int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeOfDay = t
}

// TimeOfDay returns the last mirrored world time.
func (s *Session) TimeOfDay() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeOfDay
}

// MarkSpawned flips the spawned flag; returns true the first time only.
func (s *Session) MarkSpawned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.spawned {
		return false
	}
	s.spawned = true
	return true
}

// ResetWorldState clears per-backend state for a cross-server rebind: the
// inventory snapshot, the entity table, bed and riding. Identity survives.
func (s *Session) ResetWorldState() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inventory = make(map[int16]protocol.Slot)
	s.bed = nil
	s.riding = NoEntity
	s.spawned = false
	if s.entities != nil {
		s.entities.Clear()
	}
}

// Entities returns the entity table, or nil when tracking is off.
func (s *Session) Entities() *EntityTable {
	return s.entities
}

func (s *Session) setClient(c *ClientConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = c
}

func (s *Session) setServer(sc *ServerConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.server = sc
}

func (s *Session) clientHalf() *ClientConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

func (s *Session) serverHalf() *ServerConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.server
}

// Closed reports whether the session has been torn down.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// markClosed flips the closed flag; returns true for the caller that won the
// race and owns the teardown side effects.
func (s *Session) markClosed() bool {
	return s.closed.CompareAndSwap(false, true)
}

// close tears down both halves. Idempotent; called via the coordinator.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if c := s.clientHalf(); c != nil {
			c.conn.Close()
		}
		if sc := s.serverHalf(); sc != nil {
			sc.conn.Close()
		}
	})
}
