package protocol

import (
	"fmt"
	"log/slog"
)

// Supported protocol versions.
const (
	Version18  int32 = 47  // 1.8.x
	Version19  int32 = 107 // 1.9 – 1.9.3
	Version194 int32 = 110 // 1.9.4
)

// Protocol epochs: boundary versions at which a wire layout changed.
// Parsers read these to pick alternate field layouts.
const (
	// EpochVarIntKeepAlive: keep-alive id switched from int to varint.
	EpochVarIntKeepAlive int32 = 47
	// EpochEntityUUID: spawn-object/spawn-mob gained an entity uuid field,
	// attach-entity lost its leash flag, player-pos-look gained a teleport id.
	EpochEntityUUID int32 = 107
	// EpochIntDimension: join-game dimension widened from byte to int.
	EpochIntDimension int32 = 108
	// EpochPositionXZY: packed block positions moved Y to the low 12 bits.
	EpochPositionXZY int32 = 441
)

// Sym is a symbolic packet name, stable across protocol versions. The
// per-version tables map symbols to numeric ids; a symbol absent from a table
// does not exist in that version.
type Sym int

const (
	// Handshake state, server-bound.
	Handshake Sym = iota

	// Status state.
	StatusRequest
	StatusPing
	StatusResponse
	StatusPong

	// Login state.
	LoginStart
	EncryptionResponse
	LoginDisconnect
	EncryptionRequest
	LoginSuccess
	SetCompressionLogin

	// Play state, client-bound.
	KeepAliveCB
	JoinGame
	ChatMessageCB
	TimeUpdate
	SpawnPosition
	Respawn
	PlayerPosLookCB
	UseBed
	SpawnPlayer
	SpawnObject
	SpawnMob
	DestroyEntities
	EntityRelativeMove
	EntityTeleport
	AttachEntity
	ChangeGameState
	SetSlot
	PlayerListItem
	DisconnectCB
	SetCompressionPlay

	// Play state, server-bound.
	KeepAliveSB
	ChatMessageSB
	PlayerPosition
	PlayerPosLookSB
	TeleportConfirm

	symCount
)

var symNames = [symCount]string{
	Handshake:           "HANDSHAKE",
	StatusRequest:       "STATUS_REQUEST",
	StatusPing:          "STATUS_PING",
	StatusResponse:      "STATUS_RESPONSE",
	StatusPong:          "STATUS_PONG",
	LoginStart:          "LOGIN_START",
	EncryptionResponse:  "ENCRYPTION_RESPONSE",
	LoginDisconnect:     "LOGIN_DISCONNECT",
	EncryptionRequest:   "ENCRYPTION_REQUEST",
	LoginSuccess:        "LOGIN_SUCCESS",
	SetCompressionLogin: "SET_COMPRESSION",
	KeepAliveCB:         "KEEP_ALIVE",
	JoinGame:            "JOIN_GAME",
	ChatMessageCB:       "CHAT_MESSAGE",
	TimeUpdate:          "TIME_UPDATE",
	SpawnPosition:       "SPAWN_POSITION",
	Respawn:             "RESPAWN",
	PlayerPosLookCB:     "PLAYER_POSLOOK",
	UseBed:              "USE_BED",
	SpawnPlayer:         "SPAWN_PLAYER",
	SpawnObject:         "SPAWN_OBJECT",
	SpawnMob:            "SPAWN_MOB",
	DestroyEntities:     "DESTROY_ENTITIES",
	EntityRelativeMove:  "ENTITY_RELATIVE_MOVE",
	EntityTeleport:      "ENTITY_TELEPORT",
	AttachEntity:        "ATTACH_ENTITY",
	ChangeGameState:     "CHANGE_GAME_STATE",
	SetSlot:             "SET_SLOT",
	PlayerListItem:      "PLAYER_LIST_ITEM",
	DisconnectCB:        "DISCONNECT",
	SetCompressionPlay:  "SET_COMPRESSION_PLAY",
	KeepAliveSB:         "KEEP_ALIVE",
	ChatMessageSB:       "CHAT_MESSAGE",
	PlayerPosition:      "PLAYER_POSITION",
	PlayerPosLookSB:     "PLAYER_POSLOOK",
	TeleportConfirm:     "TELEPORT_CONFIRM",
}

func (s Sym) String() string {
	if s < 0 || s >= symCount {
		return fmt.Sprintf("SYM(%d)", int(s))
	}
	return symNames[s]
}

// Table maps symbolic names to numeric packet ids for one direction of one
// version family.
type Table map[Sym]int32

// ID returns the numeric id for sym, or an error if the packet does not
// exist in this version. Hitting the error from proxy code is a programming
// mistake, not a peer protocol violation.
func (t Table) ID(sym Sym) (int32, error) {
	id, ok := t[sym]
	if !ok {
		return 0, fmt.Errorf("packet %v does not exist in this protocol version", sym)
	}
	return id, nil
}

// Has reports whether sym exists in this version.
func (t Table) Has(sym Sym) bool {
	_, ok := t[sym]
	return ok
}

// Tables is the immutable per-version packet id record selected once per
// session after handshake.
type Tables struct {
	Version    int32 // lowest version of the family
	ClientSide Table // client-bound (server half receives these)
	ServerSide Table // server-bound (client half receives these)
}

// Pre-play states share one id space across all supported versions.
var baseIDs = Table{
	Handshake:           0x00,
	StatusRequest:       0x00,
	StatusPing:          0x01,
	StatusResponse:      0x00,
	StatusPong:          0x01,
	LoginStart:          0x00,
	EncryptionResponse:  0x01,
	LoginDisconnect:     0x00,
	EncryptionRequest:   0x01,
	LoginSuccess:        0x02,
	SetCompressionLogin: 0x03,
}

var clientBound18 = Table{
	KeepAliveCB:        0x00,
	JoinGame:           0x01,
	ChatMessageCB:      0x02,
	TimeUpdate:         0x03,
	SpawnPosition:      0x05,
	Respawn:            0x07,
	PlayerPosLookCB:    0x08,
	UseBed:             0x0A,
	SpawnPlayer:        0x0C,
	SpawnObject:        0x0E,
	SpawnMob:           0x0F,
	DestroyEntities:    0x13,
	EntityRelativeMove: 0x15,
	EntityTeleport:     0x18,
	AttachEntity:       0x1B,
	ChangeGameState:    0x2B,
	SetSlot:            0x2F,
	PlayerListItem:     0x38,
	DisconnectCB:       0x40,
	SetCompressionPlay: 0x46,
}

var serverBound18 = Table{
	KeepAliveSB:     0x00,
	ChatMessageSB:   0x01,
	PlayerPosition:  0x04,
	PlayerPosLookSB: 0x06,
}

var clientBound19 = Table{
	SpawnObject:        0x00,
	SpawnMob:           0x03,
	SpawnPlayer:        0x05,
	ChatMessageCB:      0x0F,
	DisconnectCB:       0x1A,
	ChangeGameState:    0x1E,
	KeepAliveCB:        0x1F,
	SetSlot:            0x16,
	JoinGame:           0x23,
	EntityRelativeMove: 0x25,
	PlayerListItem:     0x2D,
	PlayerPosLookCB:    0x2E,
	UseBed:             0x2F,
	DestroyEntities:    0x30,
	Respawn:            0x33,
	AttachEntity:       0x3A,
	SpawnPosition:      0x43,
	TimeUpdate:         0x44,
	EntityTeleport:     0x4A,
}

var serverBound19 = Table{
	TeleportConfirm: 0x00,
	ChatMessageSB:   0x02,
	KeepAliveSB:     0x0B,
	PlayerPosition:  0x0C,
	PlayerPosLookSB: 0x0D,
}

// 1.9.4 dropped a client-bound id below the tail of the table, shifting the
// entries above it down by one.
var clientBound194 = Table{
	SpawnObject:        0x00,
	SpawnMob:           0x03,
	SpawnPlayer:        0x05,
	ChatMessageCB:      0x0F,
	DisconnectCB:       0x1A,
	ChangeGameState:    0x1E,
	KeepAliveCB:        0x1F,
	SetSlot:            0x16,
	JoinGame:           0x23,
	EntityRelativeMove: 0x25,
	PlayerListItem:     0x2D,
	PlayerPosLookCB:    0x2E,
	UseBed:             0x2F,
	DestroyEntities:    0x30,
	Respawn:            0x33,
	AttachEntity:       0x3A,
	SpawnPosition:      0x43,
	TimeUpdate:         0x44,
	EntityTeleport:     0x49,
}

var versionFamilies = []Tables{
	{Version: Version194, ClientSide: clientBound194, ServerSide: serverBound19},
	{Version: Version19, ClientSide: clientBound19, ServerSide: serverBound19},
	{Version: Version18, ClientSide: clientBound18, ServerSide: serverBound18},
}

// TablesFor selects the packet id tables for a negotiated protocol version
// using half-open ranges. Unknown versions fall back to the lowest supported
// family with a warning.
func TablesFor(version int32) Tables {
	for _, fam := range versionFamilies {
		if version >= fam.Version {
			return fam
		}
	}
	slog.Warn("unsupported protocol version, falling back", "version", version, "fallback", Version18)
	return versionFamilies[len(versionFamilies)-1]
}

// BaseIDs returns the shared handshake/status/login id table.
func BaseIDs() Table {
	return baseIDs
}
