package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/craftwrap/craftwrap/internal/auth"
	"github.com/craftwrap/craftwrap/internal/events"
	"github.com/craftwrap/craftwrap/internal/protocol"
)

// keepAliveDeadline is how long the backend may go silent before the session
// is declared dead.
const keepAliveDeadline = 30 * time.Second

// ServerConn is the proxy's client face towards the local game server. It
// logs in as the player (the backend runs in offline mode, so a bare
// LOGIN_START suffices), then parses the client-bound stream: keep-alives are
// answered here, identity packets are rewritten, everything else is mirrored
// into session state and forwarded.
type ServerConn struct {
	px   *Proxy
	sess *Session
	conn *Conn
	log  *slog.Logger

	state  ConnState
	tables protocol.Tables

	// playReady is closed when the backend login completes. The write loop
	// waits on it so forwarded play packets never interleave with the login
	// exchange.
	playReady chan struct{}

	lastKeepAlive atomic.Int64 // unix nanos of the last backend keep-alive
}

func dialServer(px *Proxy, sess *Session, addr string) (*ServerConn, error) {
	sock, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("dialing game server %s: %w", addr, err)
	}
	return &ServerConn{
		px:        px,
		sess:      sess,
		conn:      newConn("server", sock),
		log:       px.log.With("backend", addr, "player", sess.Username()),
		state:     StateLogin,
		tables:    protocol.TablesFor(sess.Version()),
		playReady: make(chan struct{}),
	}, nil
}

// run drives the backend half: offline login, then the play-state read loop
// with a keep-alive watchdog.
func (s *ServerConn) run(ctx context.Context) error {
	if err := s.login(); err != nil {
		return fmt.Errorf("backend login: %w", err)
	}
	close(s.playReady)

	s.lastKeepAlive.Store(time.Now().UnixNano())
	watchdogDone := make(chan struct{})
	defer close(watchdogDone)
	go s.watchdog(ctx, watchdogDone)

	for {
		f, err := s.conn.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if err := s.handlePlay(f); err != nil {
			return err
		}
	}
}

// login sends HANDSHAKE + LOGIN_START and consumes the backend's login
// sequence until LOGIN_SUCCESS.
func (s *ServerConn) login() error {
	base := protocol.BaseIDs()

	hsID, _ := base.ID(protocol.Handshake)
	w := protocol.GetWriter()
	w.WriteVarInt(s.sess.Version())
	w.WriteString("127.0.0.1")
	w.WriteUShort(uint16(s.px.cfg.Proxy.ServerPort))
	w.WriteVarInt(2)
	err := s.conn.sendNow(hsID, w.Bytes())
	w.Put()
	if err != nil {
		return err
	}

	lsID, _ := base.ID(protocol.LoginStart)
	w = protocol.GetWriter()
	w.WriteString(s.sess.Username())
	err = s.conn.sendNow(lsID, w.Bytes())
	w.Put()
	if err != nil {
		return err
	}

	for {
		f, err := s.conn.ReadFrame()
		if err != nil {
			return err
		}
		switch f.ID {
		case mustID(base, protocol.LoginDisconnect):
			r := protocol.NewReader(f.Body())
			reason, err := r.ReadString()
			if err != nil {
				reason = chatText("Kicked during login", "")
			}
			if cl := s.sess.clientHalf(); cl != nil {
				cl.playDisconnect(reason)
			}
			return fmt.Errorf("backend refused login: %s", reason)
		case mustID(base, protocol.EncryptionRequest):
			return errors.New("backend requested encryption; it must run in offline mode behind the proxy")
		case mustID(base, protocol.SetCompressionLogin):
			r := protocol.NewReader(f.Body())
			t, err := r.ReadVarInt()
			if err != nil {
				return err
			}
			s.conn.Codec().SetThreshold(t)
		case mustID(base, protocol.LoginSuccess):
			s.state = StatePlay
			s.log.Debug("backend login complete")
			return nil
		default:
			return fmt.Errorf("unexpected login packet 0x%02X", f.ID)
		}
	}
}

// mustID resolves ids that exist in every supported version.
func mustID(t protocol.Table, sym protocol.Sym) int32 {
	id, err := t.ID(sym)
	if err != nil {
		panic(err)
	}
	return id
}

// watchdog closes the session when the backend stops sending keep-alives.
func (s *ServerConn) watchdog(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			last := time.Unix(0, s.lastKeepAlive.Load())
			if time.Since(last) > keepAliveDeadline {
				s.log.Warn("backend keep-alive timeout", "last", last)
				s.px.closeSession(s.sess, "keep-alive timeout")
				return
			}
		}
	}
}

func (s *ServerConn) handlePlay(f protocol.Frame) error {
	t := s.tables.ClientSide
	// Checked before the switch: the symbol is absent from some versions and
	// a missing table entry must not shadow the id 0 packet.
	if id, ok := t[protocol.SetCompressionPlay]; ok && f.ID == id {
		return s.handleSetCompression(f)
	}
	switch f.ID {
	case t[protocol.KeepAliveCB]:
		return s.handleKeepAlive(f)
	case t[protocol.JoinGame]:
		return s.handleJoinGame(f)
	case t[protocol.TimeUpdate]:
		return s.handleTimeUpdate(f)
	case t[protocol.SpawnPosition]:
		return s.handleSpawnPosition(f)
	case t[protocol.Respawn]:
		return s.handleRespawn(f)
	case t[protocol.PlayerPosLookCB]:
		return s.handlePosLook(f)
	case t[protocol.UseBed]:
		return s.handleUseBed(f)
	case t[protocol.SpawnPlayer]:
		return s.handleSpawnPlayer(f)
	case t[protocol.SpawnObject]:
		return s.handleSpawnObject(f)
	case t[protocol.SpawnMob]:
		return s.handleSpawnMob(f)
	case t[protocol.DestroyEntities]:
		return s.handleDestroyEntities(f)
	case t[protocol.EntityRelativeMove]:
		return s.handleRelativeMove(f)
	case t[protocol.EntityTeleport]:
		return s.handleEntityTeleport(f)
	case t[protocol.AttachEntity]:
		return s.handleAttachEntity(f)
	case t[protocol.ChangeGameState]:
		return s.handleGameState(f)
	case t[protocol.SetSlot]:
		return s.handleSetSlot(f)
	case t[protocol.ChatMessageCB]:
		return s.handleChat(f)
	case t[protocol.PlayerListItem]:
		return s.handlePlayerListItem(f)
	case t[protocol.DisconnectCB]:
		return s.handleDisconnect(f)
	default:
		s.forward(f.Raw)
		return nil
	}
}

// handleSetCompression applies a mid-play threshold switch to the backend
// stream. The proxy re-frames in both directions and the client's threshold
// was fixed during its own login, so the packet is absorbed rather than
// relayed.
func (s *ServerConn) handleSetCompression(f protocol.Frame) error {
	r := protocol.NewReader(f.Body())
	threshold, err := r.ReadVarInt()
	if err != nil {
		return err
	}
	s.conn.Codec().SetThreshold(threshold)
	s.log.Debug("backend switched compression", "threshold", threshold)
	return nil
}

// handleKeepAlive answers the backend's liveness probe in the player's stead
// and feeds the watchdog. The probe never reaches the real client.
func (s *ServerConn) handleKeepAlive(f protocol.Frame) error {
	r := protocol.NewReader(f.Body())
	version := s.sess.Version()

	var id int64
	if version >= protocol.EpochVarIntKeepAlive {
		v, err := r.ReadVarInt()
		if err != nil {
			return err
		}
		id = int64(v)
	} else {
		v, err := r.ReadInt()
		if err != nil {
			return err
		}
		id = int64(v)
	}
	s.lastKeepAlive.Store(time.Now().UnixNano())

	sbID, err := s.tables.ServerSide.ID(protocol.KeepAliveSB)
	if err != nil {
		return err
	}
	w := protocol.GetWriter()
	defer w.Put()
	if version >= protocol.EpochVarIntKeepAlive {
		w.WriteVarInt(int32(id))
	} else {
		w.WriteInt(int32(id))
	}
	s.conn.SendPacket(sbID, append([]byte(nil), w.Bytes()...))
	return nil
}

func (s *ServerConn) handleJoinGame(f protocol.Frame) error {
	r := protocol.NewReader(f.Body())
	eid, err := r.ReadInt()
	if err != nil {
		return err
	}
	gamemode, err := r.ReadByte()
	if err != nil {
		return err
	}
	var dimension int32
	if s.sess.Version() >= protocol.EpochIntDimension {
		dimension, err = r.ReadInt()
	} else {
		var d int8
		d, err = r.ReadSByte()
		dimension = int32(d)
	}
	if err != nil {
		return err
	}

	s.sess.SetJoinState(eid, gamemode, dimension)
	s.log.Debug("join game", "eid", eid, "gamemode", gamemode, "dimension", dimension)
	s.forward(f.Raw)

	// A client that relogs while in spectator keeps stale abilities until it
	// hears an explicit gamemode notice.
	if id, err := s.tables.ClientSide.ID(protocol.ChangeGameState); err == nil {
		w := protocol.GetWriter()
		w.WriteByte(3) // gamemode change
		w.WriteFloat(float32(gamemode))
		s.forwardPacket(id, w.Bytes())
		w.Put()
	}
	return nil
}

func (s *ServerConn) handleTimeUpdate(f protocol.Frame) error {
	r := protocol.NewReader(f.Body())
	if _, err := r.ReadLong(); err != nil { // world age
		return err
	}
	timeOfDay, err := r.ReadLong()
	if err != nil {
		return err
	}
	s.sess.SetTimeOfDay(timeOfDay)
	s.forward(f.Raw)
	return nil
}

func (s *ServerConn) handleSpawnPosition(f protocol.Frame) error {
	if s.sess.MarkSpawned() {
		s.px.bus.Emit(events.PlayerSpawned, map[string]any{"player": s.sess.Ref()})
		s.log.Info("player spawned")
	}
	s.forward(f.Raw)
	return nil
}

func (s *ServerConn) handleRespawn(f protocol.Frame) error {
	r := protocol.NewReader(f.Body())
	dimension, err := r.ReadInt()
	if err != nil {
		return err
	}
	if _, err := r.ReadByte(); err != nil { // difficulty
		return err
	}
	gamemode, err := r.ReadByte()
	if err != nil {
		return err
	}
	s.sess.SetDimension(dimension)
	s.sess.SetGamemode(gamemode)
	s.forward(f.Raw)
	return nil
}

// handlePosLook mirrors the server-set position and acknowledges the teleport
// on the player's behalf so the backend never waits on the real client.
func (s *ServerConn) handlePosLook(f protocol.Frame) error {
	r := protocol.NewReader(f.Body())
	x, err := r.ReadDouble()
	if err != nil {
		return err
	}
	y, err := r.ReadDouble()
	if err != nil {
		return err
	}
	z, err := r.ReadDouble()
	if err != nil {
		return err
	}
	yaw, err := r.ReadFloat()
	if err != nil {
		return err
	}
	pitch, err := r.ReadFloat()
	if err != nil {
		return err
	}
	if _, err := r.ReadByte(); err != nil { // relative-flags bitmask
		return err
	}
	s.sess.SetPosition(x, y, z)

	if s.sess.Version() >= protocol.EpochEntityUUID {
		teleportID, err := r.ReadVarInt()
		if err != nil {
			return err
		}
		tcID, err := s.tables.ServerSide.ID(protocol.TeleportConfirm)
		if err != nil {
			return err
		}
		w := protocol.GetWriter()
		w.WriteVarInt(teleportID)
		s.conn.SendPacket(tcID, append([]byte(nil), w.Bytes()...))
		w.Put()
	} else {
		plID, err := s.tables.ServerSide.ID(protocol.PlayerPosLookSB)
		if err != nil {
			return err
		}
		w := protocol.GetWriter()
		w.WriteDouble(x)
		w.WriteDouble(y)
		w.WriteDouble(z)
		w.WriteFloat(yaw)
		w.WriteFloat(pitch)
		w.WriteBool(true)
		s.conn.SendPacket(plID, append([]byte(nil), w.Bytes()...))
		w.Put()
	}

	s.forward(f.Raw)
	return nil
}

func (s *ServerConn) handleUseBed(f protocol.Frame) error {
	r := protocol.NewReader(f.Body())
	eid, err := r.ReadVarInt()
	if err != nil {
		return err
	}
	pos, err := r.ReadBlockPos(s.sess.Version())
	if err != nil {
		return err
	}
	if eid == s.sess.ServerEID() {
		s.sess.SetBedPosition(pos)
		s.px.bus.Emit(events.PlayerUseBed, map[string]any{"player": s.sess.Ref()})
	}
	s.forward(f.Raw)
	return nil
}

// handleSpawnPlayer rewrites the offline uuid the backend spawned a player
// with into the authenticated uuid the viewing client knows from the tab
// list. Unrecognized uuids pass unchanged.
func (s *ServerConn) handleSpawnPlayer(f protocol.Frame) error {
	r := protocol.NewReader(f.Body())
	eid, err := r.ReadVarInt()
	if err != nil {
		return err
	}
	id, err := r.ReadUUID()
	if err != nil {
		return err
	}
	rest := r.ReadRest()

	out := id
	if other, ok := s.px.LookupByOfflineUUID(id); ok {
		out = other.AuthUUID()
	}

	if tab := s.sess.Entities(); tab != nil {
		s.trackSpawnPlayer(eid, out, rest)
	}

	if out == id {
		s.forward(f.Raw)
		return nil
	}
	w := protocol.GetWriter()
	defer w.Put()
	w.WriteVarInt(eid)
	w.WriteUUID(out)
	w.WriteBytes(rest)
	s.forwardPacket(f.ID, w.Bytes())
	return nil
}

func (s *ServerConn) trackSpawnPlayer(eid int32, id uuid.UUID, rest []byte) {
	r := protocol.NewReader(rest)
	var x, y, z float64
	if s.sess.Version() >= protocol.EpochEntityUUID {
		var err error
		if x, err = r.ReadDouble(); err != nil {
			return
		}
		if y, err = r.ReadDouble(); err != nil {
			return
		}
		if z, err = r.ReadDouble(); err != nil {
			return
		}
	} else {
		xi, err := r.ReadInt()
		if err != nil {
			return
		}
		yi, err := r.ReadInt()
		if err != nil {
			return
		}
		zi, err := r.ReadInt()
		if err != nil {
			return
		}
		x, y, z = fixedPoint(xi), fixedPoint(yi), fixedPoint(zi)
	}
	s.sess.Entities().Upsert(Entity{EID: eid, UUID: id, X: x, Y: y, Z: z})
}

// fixedPoint converts a 1.8 fixed-point coordinate (1/32 block) to blocks.
func fixedPoint(v int32) float64 {
	return float64(v) / 32
}

func (s *ServerConn) handleSpawnObject(f protocol.Frame) error {
	if tab := s.sess.Entities(); tab != nil {
		if e, ok := s.parseSpawn(f.Body(), true); ok {
			tab.Upsert(e)
		}
	}
	s.forward(f.Raw)
	return nil
}

func (s *ServerConn) handleSpawnMob(f protocol.Frame) error {
	if tab := s.sess.Entities(); tab != nil {
		if e, ok := s.parseSpawn(f.Body(), false); ok {
			tab.Upsert(e)
		}
	}
	s.forward(f.Raw)
	return nil
}

// parseSpawn extracts the tracked fields from SPAWN_OBJECT and SPAWN_MOB,
// which share a prefix layout within each version family.
func (s *ServerConn) parseSpawn(body []byte, object bool) (Entity, bool) {
	r := protocol.NewReader(body)
	eid, err := r.ReadVarInt()
	if err != nil {
		return Entity{}, false
	}
	e := Entity{EID: eid, IsObject: object}

	if s.sess.Version() >= protocol.EpochEntityUUID {
		if e.UUID, err = r.ReadUUID(); err != nil {
			return Entity{}, false
		}
	}
	var kind byte
	if kind, err = r.ReadByte(); err != nil {
		return Entity{}, false
	}
	e.Kind = int32(kind)

	if s.sess.Version() >= protocol.EpochEntityUUID {
		if e.X, err = r.ReadDouble(); err != nil {
			return Entity{}, false
		}
		if e.Y, err = r.ReadDouble(); err != nil {
			return Entity{}, false
		}
		if e.Z, err = r.ReadDouble(); err != nil {
			return Entity{}, false
		}
	} else {
		xi, err := r.ReadInt()
		if err != nil {
			return Entity{}, false
		}
		yi, err := r.ReadInt()
		if err != nil {
			return Entity{}, false
		}
		zi, err := r.ReadInt()
		if err != nil {
			return Entity{}, false
		}
		e.X, e.Y, e.Z = fixedPoint(xi), fixedPoint(yi), fixedPoint(zi)
	}
	return e, true
}

func (s *ServerConn) handleDestroyEntities(f protocol.Frame) error {
	if tab := s.sess.Entities(); tab != nil {
		r := protocol.NewReader(f.Body())
		count, err := r.ReadVarInt()
		if err != nil {
			return err
		}
		for i := int32(0); i < count; i++ {
			eid, err := r.ReadVarInt()
			if err != nil {
				return err
			}
			tab.Remove(eid)
		}
	}
	s.forward(f.Raw)
	return nil
}

func (s *ServerConn) handleRelativeMove(f protocol.Frame) error {
	if tab := s.sess.Entities(); tab != nil {
		r := protocol.NewReader(f.Body())
		eid, err := r.ReadVarInt()
		if err != nil {
			return err
		}
		var dx, dy, dz float64
		if s.sess.Version() >= protocol.EpochEntityUUID {
			// 1.9 deltas are (current*32 - prev*32)*128.
			sx, err := r.ReadShort()
			if err != nil {
				return err
			}
			sy, err := r.ReadShort()
			if err != nil {
				return err
			}
			sz, err := r.ReadShort()
			if err != nil {
				return err
			}
			dx, dy, dz = float64(sx)/4096, float64(sy)/4096, float64(sz)/4096
		} else {
			bx, err := r.ReadSByte()
			if err != nil {
				return err
			}
			by, err := r.ReadSByte()
			if err != nil {
				return err
			}
			bz, err := r.ReadSByte()
			if err != nil {
				return err
			}
			dx, dy, dz = float64(bx)/32, float64(by)/32, float64(bz)/32
		}
		tab.MoveRelative(eid, dx, dy, dz)
	}
	s.forward(f.Raw)
	return nil
}

func (s *ServerConn) handleEntityTeleport(f protocol.Frame) error {
	if tab := s.sess.Entities(); tab != nil {
		r := protocol.NewReader(f.Body())
		eid, err := r.ReadVarInt()
		if err != nil {
			return err
		}
		var x, y, z float64
		if s.sess.Version() >= protocol.EpochEntityUUID {
			if x, err = r.ReadDouble(); err != nil {
				return err
			}
			if y, err = r.ReadDouble(); err != nil {
				return err
			}
			if z, err = r.ReadDouble(); err != nil {
				return err
			}
		} else {
			xi, err := r.ReadInt()
			if err != nil {
				return err
			}
			yi, err := r.ReadInt()
			if err != nil {
				return err
			}
			zi, err := r.ReadInt()
			if err != nil {
				return err
			}
			x, y, z = fixedPoint(xi), fixedPoint(yi), fixedPoint(zi)
		}
		tab.Teleport(eid, x, y, z)
	}
	s.forward(f.Raw)
	return nil
}

// handleAttachEntity tracks mount state. Pre-1.9 the packet carries a leash
// flag and leash updates are ignored; from 1.9 the packet is mount-only and
// vehicle -1 means dismount.
func (s *ServerConn) handleAttachEntity(f protocol.Frame) error {
	r := protocol.NewReader(f.Body())
	eid, err := r.ReadInt()
	if err != nil {
		return err
	}
	vehicle, err := r.ReadInt()
	if err != nil {
		return err
	}
	leash := false
	if s.sess.Version() < protocol.EpochEntityUUID {
		if leash, err = r.ReadBool(); err != nil {
			return err
		}
	}

	if !leash && eid == s.sess.ServerEID() {
		s.sess.SetRiding(vehicle)
		if vehicle == NoEntity {
			s.px.bus.Emit(events.PlayerUnmount, map[string]any{"player": s.sess.Ref()})
		} else {
			s.px.bus.Emit(events.PlayerMount, map[string]any{
				"player":     s.sess.Ref(),
				"vehicle_id": vehicle,
				"leash":      leash,
			})
		}
	}
	s.forward(f.Raw)
	return nil
}

func (s *ServerConn) handleGameState(f protocol.Frame) error {
	r := protocol.NewReader(f.Body())
	reason, err := r.ReadByte()
	if err != nil {
		return err
	}
	value, err := r.ReadFloat()
	if err != nil {
		return err
	}
	if reason == 3 { // gamemode change
		s.sess.SetGamemode(byte(value))
	}
	s.forward(f.Raw)
	return nil
}

func (s *ServerConn) handleSetSlot(f protocol.Frame) error {
	r := protocol.NewReader(f.Body())
	window, err := r.ReadSByte()
	if err != nil {
		return err
	}
	slot, err := r.ReadShort()
	if err != nil {
		return err
	}
	if window == 0 {
		item, err := r.ReadSlot()
		if err != nil {
			return err
		}
		s.sess.SetSlot(slot, item)
	}
	s.forward(f.Raw)
	return nil
}

// handleChat publishes server-to-client chat to handlers, which may suppress
// or rewrite it before the client sees anything.
func (s *ServerConn) handleChat(f protocol.Frame) error {
	r := protocol.NewReader(f.Body())
	raw, err := r.ReadString()
	if err != nil {
		return err
	}
	position, err := r.ReadByte()
	if err != nil {
		return err
	}

	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		parsed = raw
	}

	d := s.px.bus.Emit(events.PlayerChatbox, map[string]any{
		"player": s.sess.Ref(),
		"json":   parsed,
	})
	switch d.Action {
	case events.ActDrop:
		return nil
	case events.ActReplace:
		// The replacement map is the chat component itself unless it wraps
		// one under "json".
		var repl any = d.Replacement
		if j, ok := d.Replacement["json"]; ok {
			repl = j
		}
		encoded, err := json.Marshal(repl)
		if err != nil {
			return fmt.Errorf("encoding replacement chat: %w", err)
		}
		w := protocol.GetWriter()
		defer w.Put()
		w.WriteString(string(encoded))
		w.WriteByte(position)
		s.forwardPacket(f.ID, w.Bytes())
		return nil
	}
	s.forward(f.Raw)
	return nil
}

// handlePlayerListItem rewrites offline uuids to authenticated ones in tab
// list updates. A layout the parser does not understand forwards unchanged.
func (s *ServerConn) handlePlayerListItem(f protocol.Frame) error {
	rebuilt, err := s.rewritePlayerList(f.Body())
	if err != nil {
		s.log.Debug("player list passthrough", "err", err)
		s.forward(f.Raw)
		return nil
	}
	s.forwardPacket(f.ID, rebuilt)
	return nil
}

const (
	listActionAdd = iota
	listActionGamemode
	listActionLatency
	listActionDisplayName
	listActionRemove
)

func (s *ServerConn) rewritePlayerList(body []byte) ([]byte, error) {
	r := protocol.NewReader(body)
	action, err := r.ReadVarInt()
	if err != nil {
		return nil, err
	}
	count, err := r.ReadVarInt()
	if err != nil {
		return nil, err
	}
	if action < listActionAdd || action > listActionRemove {
		return nil, fmt.Errorf("unknown player list action %d", action)
	}

	w := protocol.NewWriter(len(body))
	w.WriteVarInt(action)
	w.WriteVarInt(count)

	for i := int32(0); i < count; i++ {
		id, err := r.ReadUUID()
		if err != nil {
			return nil, err
		}
		if other, ok := s.px.LookupByOfflineUUID(id); ok {
			id = other.AuthUUID()
		}
		w.WriteUUID(id)

		switch action {
		case listActionAdd:
			name, err := r.ReadString()
			if err != nil {
				return nil, err
			}
			w.WriteString(name)
			if err := s.copyListProperties(r, w, name); err != nil {
				return nil, err
			}
			gm, err := r.ReadVarInt()
			if err != nil {
				return nil, err
			}
			w.WriteVarInt(gm)
			ping, err := r.ReadVarInt()
			if err != nil {
				return nil, err
			}
			w.WriteVarInt(ping)
			if err := copyOptionalString(r, w); err != nil {
				return nil, err
			}
		case listActionGamemode, listActionLatency:
			v, err := r.ReadVarInt()
			if err != nil {
				return nil, err
			}
			w.WriteVarInt(v)
		case listActionDisplayName:
			if err := copyOptionalString(r, w); err != nil {
				return nil, err
			}
		case listActionRemove:
			// uuid only
		}
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%d trailing bytes", r.Remaining())
	}
	return w.Bytes(), nil
}

// copyListProperties relays the property list of a tab-list add entry. The
// backend ran an offline login, so it has no signed properties; the proxy
// substitutes the ones fetched from the session service.
func (s *ServerConn) copyListProperties(r *protocol.Reader, w *protocol.Writer, name string) error {
	count, err := r.ReadVarInt()
	if err != nil {
		return err
	}
	var backend []auth.Property
	for i := int32(0); i < count; i++ {
		var p auth.Property
		if p.Name, err = r.ReadString(); err != nil {
			return err
		}
		if p.Value, err = r.ReadString(); err != nil {
			return err
		}
		signed, err := r.ReadBool()
		if err != nil {
			return err
		}
		if signed {
			if p.Signature, err = r.ReadString(); err != nil {
				return err
			}
		}
		backend = append(backend, p)
	}

	props := backend
	if name == s.sess.Username() {
		if authed := s.sess.Properties(); len(authed) > 0 {
			props = authed
		}
	} else if other, ok := s.px.LookupByUsername(name); ok {
		if authed := other.Properties(); len(authed) > 0 {
			props = authed
		}
	}

	w.WriteVarInt(int32(len(props)))
	for _, p := range props {
		w.WriteString(p.Name)
		w.WriteString(p.Value)
		w.WriteBool(p.Signature != "")
		if p.Signature != "" {
			w.WriteString(p.Signature)
		}
	}
	return nil
}

func copyOptionalString(r *protocol.Reader, w *protocol.Writer) error {
	has, err := r.ReadBool()
	if err != nil {
		return err
	}
	w.WriteBool(has)
	if !has {
		return nil
	}
	v, err := r.ReadString()
	if err != nil {
		return err
	}
	w.WriteString(v)
	return nil
}

// handleDisconnect relays the backend's kick to the client and ends the
// session.
func (s *ServerConn) handleDisconnect(f protocol.Frame) error {
	r := protocol.NewReader(f.Body())
	reason, err := r.ReadString()
	if err != nil {
		reason = chatText("Disconnected", "")
	}
	s.log.Info("backend disconnected player", "reason", reason)
	if cl := s.sess.clientHalf(); cl != nil {
		cl.playDisconnect(reason)
	}
	s.px.closeSession(s.sess, "backend disconnect")
	return nil
}

// forward queues raw id||body bytes for the client half.
func (s *ServerConn) forward(raw []byte) {
	if cl := s.sess.clientHalf(); cl != nil {
		cl.conn.Send(raw)
	}
}

func (s *ServerConn) forwardPacket(id int32, body []byte) {
	if cl := s.sess.clientHalf(); cl != nil {
		cl.conn.SendPacket(id, append([]byte(nil), body...))
	}
}
