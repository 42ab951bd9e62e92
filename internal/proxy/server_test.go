package proxy

import (
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftwrap/craftwrap/internal/auth"
	"github.com/craftwrap/craftwrap/internal/config"
	"github.com/craftwrap/craftwrap/internal/events"
	"github.com/craftwrap/craftwrap/internal/protocol"
)

// rosterProxy builds a Proxy with one registered session whose offline and
// authenticated uuids differ, the situation the uuid rewrites exist for.
func rosterProxy(t *testing.T) (*Proxy, *Session) {
	t.Helper()
	cfg := config.Default()
	cfg.Proxy.OnlineMode = false
	px, err := New(cfg, events.NewBus(), testLogger())
	require.NoError(t, err)

	alice := newSession(false)
	alice.setIdentity(protocol.Version18, "alice",
		uuid.MustParse("11111111-2222-3333-4444-555555555555"),
		auth.OfflineUUID("alice"),
		[]auth.Property{{Name: "textures", Value: "payload", Signature: "sig"}})
	px.register(alice)
	return px, alice
}

func viewerConn(px *Proxy, version int32) *ServerConn {
	viewer := newSession(false)
	viewer.setIdentity(version, "bob", auth.OfflineUUID("bob"), auth.OfflineUUID("bob"), nil)
	return &ServerConn{
		px:     px,
		sess:   viewer,
		log:    testLogger(),
		tables: protocol.TablesFor(version),
	}
}

func TestRewritePlayerListRemapsUUIDAndProperties(t *testing.T) {
	px, alice := rosterProxy(t)
	s := viewerConn(px, protocol.Version18)

	w := protocol.NewWriter(128)
	w.WriteVarInt(0) // add player
	w.WriteVarInt(1)
	w.WriteUUID(alice.OfflineUUID())
	w.WriteString("alice")
	w.WriteVarInt(0) // backend has no signed properties
	w.WriteVarInt(1) // gamemode
	w.WriteVarInt(5) // ping
	w.WriteBool(false)

	out, err := s.rewritePlayerList(w.Bytes())
	require.NoError(t, err)

	r := protocol.NewReader(out)
	action, _ := r.ReadVarInt()
	count, _ := r.ReadVarInt()
	assert.EqualValues(t, 0, action)
	assert.EqualValues(t, 1, count)

	id, err := r.ReadUUID()
	require.NoError(t, err)
	assert.Equal(t, alice.AuthUUID(), id, "offline uuid must be replaced")

	name, _ := r.ReadString()
	assert.Equal(t, "alice", name)

	propCount, _ := r.ReadVarInt()
	require.EqualValues(t, 1, propCount, "session-service properties substituted")
	pname, _ := r.ReadString()
	pvalue, _ := r.ReadString()
	signed, _ := r.ReadBool()
	psig, _ := r.ReadString()
	assert.Equal(t, "textures", pname)
	assert.Equal(t, "payload", pvalue)
	assert.True(t, signed)
	assert.Equal(t, "sig", psig)

	gm, _ := r.ReadVarInt()
	ping, _ := r.ReadVarInt()
	hasDisplay, _ := r.ReadBool()
	assert.EqualValues(t, 1, gm)
	assert.EqualValues(t, 5, ping)
	assert.False(t, hasDisplay)
	assert.Equal(t, 0, r.Remaining())
}

func TestRewritePlayerListRemove(t *testing.T) {
	px, alice := rosterProxy(t)
	s := viewerConn(px, protocol.Version18)

	w := protocol.NewWriter(32)
	w.WriteVarInt(4) // remove
	w.WriteVarInt(1)
	w.WriteUUID(alice.OfflineUUID())

	out, err := s.rewritePlayerList(w.Bytes())
	require.NoError(t, err)

	r := protocol.NewReader(out)
	r.ReadVarInt()
	r.ReadVarInt()
	id, err := r.ReadUUID()
	require.NoError(t, err)
	assert.Equal(t, alice.AuthUUID(), id)
}

func TestRewritePlayerListUnknownActionFails(t *testing.T) {
	px, _ := rosterProxy(t)
	s := viewerConn(px, protocol.Version18)

	w := protocol.NewWriter(8)
	w.WriteVarInt(9)
	w.WriteVarInt(0)
	_, err := s.rewritePlayerList(w.Bytes())
	assert.Error(t, err)
}

func TestParseSpawnLayouts(t *testing.T) {
	px, _ := rosterProxy(t)

	// 1.8: fixed-point int coordinates, no uuid.
	s18 := viewerConn(px, protocol.Version18)
	w := protocol.NewWriter(64)
	w.WriteVarInt(33)
	w.WriteByte(50) // type
	w.WriteInt(320) // 10.0 blocks
	w.WriteInt(2048)
	w.WriteInt(-64)
	e, ok := s18.parseSpawn(w.Bytes(), false)
	require.True(t, ok)
	assert.EqualValues(t, 33, e.EID)
	assert.EqualValues(t, 50, e.Kind)
	assert.Equal(t, 10.0, e.X)
	assert.Equal(t, 64.0, e.Y)
	assert.Equal(t, -2.0, e.Z)
	assert.Equal(t, uuid.Nil, e.UUID)

	// 1.9: entity uuid plus double coordinates.
	s19 := viewerConn(px, protocol.Version19)
	id := uuid.MustParse("069a79f4-44e9-4726-a5be-fca90e38aaf5")
	w = protocol.NewWriter(64)
	w.WriteVarInt(34)
	w.WriteUUID(id)
	w.WriteByte(51)
	w.WriteDouble(1.5)
	w.WriteDouble(65.0)
	w.WriteDouble(-3.25)
	e, ok = s19.parseSpawn(w.Bytes(), true)
	require.True(t, ok)
	assert.EqualValues(t, 34, e.EID)
	assert.Equal(t, id, e.UUID)
	assert.Equal(t, 1.5, e.X)
	assert.Equal(t, -3.25, e.Z)
	assert.True(t, e.IsObject)
}

func TestSpawnPlayerUUIDRewrite(t *testing.T) {
	px, alice := rosterProxy(t)
	s := viewerConn(px, protocol.Version18)

	// Give the viewer a client half so the rewritten packet can be observed
	// on its outbound queue.
	c1, c2 := net.Pipe()
	t.Cleanup(func() { c1.Close(); c2.Close() })
	cl := &ClientConn{conn: newConn("client", c1)}
	s.sess.setClient(cl)

	w := protocol.NewWriter(64)
	w.WriteVarInt(77)
	w.WriteUUID(alice.OfflineUUID())
	w.WriteInt(320) // 1.8 fixed-point tail, preserved verbatim
	w.WriteInt(2048)
	w.WriteInt(-64)
	tail := append([]byte(nil), w.Bytes()[1+16:]...) // after eid varint + uuid

	require.NoError(t, s.handleSpawnPlayer(protocol.NewFrame(0x0C, w.Bytes())))

	select {
	case raw := <-cl.conn.out:
		r := protocol.NewReader(raw)
		id, err := r.ReadVarInt()
		require.NoError(t, err)
		assert.EqualValues(t, 0x0C, id)
		eid, err := r.ReadVarInt()
		require.NoError(t, err)
		assert.EqualValues(t, 77, eid)
		u, err := r.ReadUUID()
		require.NoError(t, err)
		assert.Equal(t, alice.AuthUUID(), u)
		assert.Equal(t, tail, r.ReadRest())
	case <-time.After(time.Second):
		t.Fatal("no packet queued for the client")
	}
}

func TestSpawnPlayerUnknownUUIDPassesThrough(t *testing.T) {
	px, _ := rosterProxy(t)
	s := viewerConn(px, protocol.Version18)

	c1, c2 := net.Pipe()
	t.Cleanup(func() { c1.Close(); c2.Close() })
	cl := &ClientConn{conn: newConn("client", c1)}
	s.sess.setClient(cl)

	stranger := uuid.MustParse("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")
	w := protocol.NewWriter(64)
	w.WriteVarInt(78)
	w.WriteUUID(stranger)
	w.WriteInt(0)
	f := protocol.NewFrame(0x0C, w.Bytes())

	require.NoError(t, s.handleSpawnPlayer(f))

	select {
	case raw := <-cl.conn.out:
		assert.Equal(t, f.Raw, raw, "unknown uuids forward byte-identical")
	case <-time.After(time.Second):
		t.Fatal("no packet queued for the client")
	}
}

func TestMidPlaySetCompressionAbsorbed(t *testing.T) {
	px, _ := rosterProxy(t)
	s := viewerConn(px, protocol.Version18)

	b1, b2 := net.Pipe()
	t.Cleanup(func() { b1.Close(); b2.Close() })
	s.conn = newConn("server", b1)

	c1, c2 := net.Pipe()
	t.Cleanup(func() { c1.Close(); c2.Close() })
	cl := &ClientConn{conn: newConn("client", c1)}
	s.sess.setClient(cl)

	w := protocol.NewWriter(8)
	w.WriteVarInt(256)
	require.NoError(t, s.handlePlay(protocol.NewFrame(0x46, w.Bytes())))

	// The backend stream switches format; the client, whose threshold was
	// fixed during its own login, must see nothing.
	assert.EqualValues(t, 256, s.conn.Codec().Threshold())
	select {
	case raw := <-cl.conn.out:
		t.Fatalf("threshold switch relayed to the client: % x", raw)
	default:
	}
}

func TestSpawnObjectNotMistakenForCompressionSwitch(t *testing.T) {
	px, _ := rosterProxy(t)
	s := viewerConn(px, protocol.Version19)

	b1, b2 := net.Pipe()
	t.Cleanup(func() { b1.Close(); b2.Close() })
	s.conn = newConn("server", b1)

	c1, c2 := net.Pipe()
	t.Cleanup(func() { c1.Close(); c2.Close() })
	cl := &ClientConn{conn: newConn("client", c1)}
	s.sess.setClient(cl)

	// SPAWN_OBJECT carries id 0x00 in this version, the same value a missing
	// threshold-switch table entry would yield. It must forward untouched.
	w := protocol.NewWriter(64)
	w.WriteVarInt(40)
	w.WriteUUID(uuid.MustParse("069a79f4-44e9-4726-a5be-fca90e38aaf5"))
	w.WriteByte(51)
	w.WriteDouble(1.0)
	w.WriteDouble(64.0)
	w.WriteDouble(2.0)
	f := protocol.NewFrame(0x00, w.Bytes())
	require.NoError(t, s.handlePlay(f))

	assert.EqualValues(t, protocol.CompressionDisabled, s.conn.Codec().Threshold())
	select {
	case raw := <-cl.conn.out:
		assert.Equal(t, f.Raw, raw)
	case <-time.After(time.Second):
		t.Fatal("spawn packet never forwarded")
	}
}

func TestJoinGameGamemodeNotice(t *testing.T) {
	px, _ := rosterProxy(t)
	s := viewerConn(px, protocol.Version18)

	c1, c2 := net.Pipe()
	t.Cleanup(func() { c1.Close(); c2.Close() })
	cl := &ClientConn{conn: newConn("client", c1)}
	s.sess.setClient(cl)

	w := protocol.NewWriter(16)
	w.WriteInt(99)
	w.WriteByte(3) // spectator
	w.WriteSByte(0)
	f := protocol.NewFrame(0x01, w.Bytes())
	require.NoError(t, s.handleJoinGame(f))

	assert.EqualValues(t, 99, s.sess.ServerEID())
	assert.EqualValues(t, 3, s.sess.Gamemode())

	read := func() []byte {
		select {
		case raw := <-cl.conn.out:
			return raw
		case <-time.After(time.Second):
			t.Fatal("no packet queued for the client")
			return nil
		}
	}

	assert.Equal(t, f.Raw, read(), "join game forwards first")

	// The explicit gamemode notice follows so a relogging client drops any
	// stale abilities.
	r := protocol.NewReader(read())
	id, err := r.ReadVarInt()
	require.NoError(t, err)
	assert.EqualValues(t, 0x2B, id)
	reason, err := r.ReadByte()
	require.NoError(t, err)
	value, err := r.ReadFloat()
	require.NoError(t, err)
	assert.EqualValues(t, 3, reason)
	assert.EqualValues(t, 3.0, value)
}

func TestReplacementCommand(t *testing.T) {
	assert.Equal(t, "/tp alice spawn",
		replacementCommand(map[string]any{"command": "tp", "args": []string{"alice", "spawn"}}, "/orig"))
	assert.Equal(t, "/say hi",
		replacementCommand(map[string]any{"command": "say", "args": []any{"hi"}}, "/orig"))
	// Malformed payloads fall back to the original message.
	assert.Equal(t, "/orig", replacementCommand(map[string]any{"args": []string{"x"}}, "/orig"))
}

func TestChatText(t *testing.T) {
	assert.JSONEq(t, `{"text":"hello"}`, chatText("hello", ""))
	assert.JSONEq(t, `{"text":"bye","color":"red"}`, chatText("bye", "red"))
}
