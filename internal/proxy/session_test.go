package proxy

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftwrap/craftwrap/internal/protocol"
)

func TestSessionMarkSpawnedOnce(t *testing.T) {
	s := newSession(false)
	assert.True(t, s.MarkSpawned())
	assert.False(t, s.MarkSpawned())
}

func TestSessionResetWorldState(t *testing.T) {
	s := newSession(true)
	s.SetSlot(36, protocol.Slot{Present: true, ItemID: 276, Count: 1})
	s.SetBedPosition(protocol.BlockPos{X: 10, Y: 64, Z: -5})
	s.SetRiding(42)
	require.True(t, s.MarkSpawned())
	s.Entities().Upsert(Entity{EID: 7})

	s.ResetWorldState()

	_, ok := s.Slot(36)
	assert.False(t, ok)
	assert.Nil(t, s.BedPosition())
	assert.Equal(t, NoEntity, s.Riding())
	assert.Equal(t, 0, s.Entities().Len())
	// Spawning fires again after a rebind.
	assert.True(t, s.MarkSpawned())
}

func TestSessionIdentitySurvivesReset(t *testing.T) {
	s := newSession(false)
	authID := uuid.MustParse("069a79f4-44e9-4726-a5be-fca90e38aaf5")
	offlineID := uuid.MustParse("b50ad385-829d-3141-a216-7e7d7539ba7f")
	s.setIdentity(protocol.Version18, "Notch", authID, offlineID, nil)
	s.SetJoinState(99, 1, 0)

	s.ResetWorldState()

	assert.Equal(t, "Notch", s.Username())
	assert.Equal(t, authID, s.AuthUUID())
	assert.Equal(t, offlineID, s.OfflineUUID())
	ref := s.Ref()
	assert.Equal(t, "Notch", ref.Username)
	assert.Equal(t, authID, ref.UUID)
	assert.EqualValues(t, 99, ref.EID)
}

func TestEntityTable(t *testing.T) {
	tab := NewEntityTable()
	tab.Upsert(Entity{EID: 1, X: 10, Y: 64, Z: 10})
	tab.Upsert(Entity{EID: 2, X: 0, Y: 70, Z: 0, IsObject: true})

	tab.MoveRelative(1, 0.5, 0, -0.25)
	e, ok := tab.Get(1)
	require.True(t, ok)
	assert.Equal(t, 10.5, e.X)
	assert.Equal(t, 9.75, e.Z)

	tab.Teleport(2, -100, 80, 100)
	e, ok = tab.Get(2)
	require.True(t, ok)
	assert.Equal(t, -100.0, e.X)
	assert.Equal(t, 80.0, e.Y)

	// Unknown eids are silently ignored.
	tab.MoveRelative(99, 1, 1, 1)
	tab.Teleport(99, 1, 1, 1)
	assert.Equal(t, 2, tab.Len())

	tab.Remove(1, 99)
	assert.Equal(t, 1, tab.Len())
	_, ok = tab.Get(1)
	assert.False(t, ok)

	tab.Clear()
	assert.Equal(t, 0, tab.Len())
}
