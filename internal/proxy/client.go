package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"

	"github.com/craftwrap/craftwrap/internal/auth"
	"github.com/craftwrap/craftwrap/internal/crypto"
	"github.com/craftwrap/craftwrap/internal/events"
	"github.com/craftwrap/craftwrap/internal/protocol"
)

// ClientConn is the proxy's server face: it accepts a game client, walks it
// through handshake, status or login, and in the play state parses
// server-bound packets before forwarding them to the backend half.
type ClientConn struct {
	px   *Proxy
	sess *Session
	conn *Conn
	log  *slog.Logger

	state  ConnState
	tables protocol.Tables

	version     int32
	virtualHost string
	virtualPort uint16
}

func newClientConn(px *Proxy, sess *Session, sock net.Conn) *ClientConn {
	return &ClientConn{
		px:    px,
		sess:  sess,
		conn:  newConn("client", sock),
		log:   px.log.With("remote", sock.RemoteAddr().String()),
		state: StateHandshake,
	}
}

// run drives the client half's read side until the peer disconnects or the
// session is torn down. io.EOF and closed-connection errors are normal exits.
func (c *ClientConn) run(ctx context.Context) error {
	if err := c.readHandshake(); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	switch c.state {
	case StateStatus:
		return c.serveStatus()
	case StateLogin:
		if err := c.runLogin(ctx); err != nil {
			return fmt.Errorf("login: %w", err)
		}
		return c.runPlay()
	default:
		return fmt.Errorf("unexpected state %v after handshake", c.state)
	}
}

func (c *ClientConn) readHandshake() error {
	f, err := c.conn.ReadFrame()
	if err != nil {
		return err
	}
	base := protocol.BaseIDs()
	if id, _ := base.ID(protocol.Handshake); f.ID != id {
		return fmt.Errorf("expected HANDSHAKE, got 0x%02X", f.ID)
	}

	r := protocol.NewReader(f.Body())
	version, err := r.ReadVarInt()
	if err != nil {
		return err
	}
	host, err := r.ReadString()
	if err != nil {
		return err
	}
	port, err := r.ReadUShort()
	if err != nil {
		return err
	}
	next, err := r.ReadVarInt()
	if err != nil {
		return err
	}

	c.version = version
	c.virtualHost = host
	c.virtualPort = port
	c.tables = protocol.TablesFor(version)

	switch next {
	case 1:
		c.state = StateStatus
	case 2:
		c.state = StateLogin
	default:
		return fmt.Errorf("invalid next state %d", next)
	}

	c.log.Debug("handshake",
		"version", version,
		"host", host,
		"port", port,
		"next", c.state.String())
	return nil
}

type statusPayload struct {
	Version struct {
		Name     string `json:"name"`
		Protocol int32  `json:"protocol"`
	} `json:"version"`
	Players struct {
		Max    int `json:"max"`
		Online int `json:"online"`
	} `json:"players"`
	Description struct {
		Text string `json:"text"`
	} `json:"description"`
}

func versionName(version int32) string {
	switch {
	case version >= protocol.Version194:
		return "1.9.4"
	case version >= protocol.Version19:
		return "1.9"
	default:
		return "1.8"
	}
}

// serveStatus answers the server-list ping: one STATUS_REQUEST, one optional
// STATUS_PING, then the client goes away.
func (c *ClientConn) serveStatus() error {
	base := protocol.BaseIDs()
	reqID, _ := base.ID(protocol.StatusRequest)
	pingID, _ := base.ID(protocol.StatusPing)
	respID, _ := base.ID(protocol.StatusResponse)
	pongID, _ := base.ID(protocol.StatusPong)

	for {
		f, err := c.conn.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		switch f.ID {
		case reqID:
			var p statusPayload
			p.Version.Name = versionName(c.version)
			p.Version.Protocol = c.version
			p.Players.Max = c.px.cfg.Proxy.MaxPlayers
			p.Players.Online = c.px.OnlineCount()
			p.Description.Text = c.px.cfg.Proxy.MOTD

			body, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("encoding status: %w", err)
			}
			w := protocol.GetWriter()
			w.WriteString(string(body))
			err = c.conn.sendNow(respID, w.Bytes())
			w.Put()
			if err != nil {
				return err
			}
		case pingID:
			r := protocol.NewReader(f.Body())
			nonce, err := r.ReadLong()
			if err != nil {
				return err
			}
			w := protocol.GetWriter()
			w.WriteLong(nonce)
			err = c.conn.sendNow(pongID, w.Bytes())
			w.Put()
			return err
		default:
			return fmt.Errorf("unexpected status packet 0x%02X", f.ID)
		}
	}
}

// runLogin performs the login handshake: LOGIN_START, the optional encryption
// exchange plus session-service check, compression enablement and
// LOGIN_SUCCESS. On return the client half is in the play state and the
// session carries a full identity.
func (c *ClientConn) runLogin(ctx context.Context) error {
	base := protocol.BaseIDs()

	f, err := c.conn.ReadFrame()
	if err != nil {
		return err
	}
	if id, _ := base.ID(protocol.LoginStart); f.ID != id {
		return fmt.Errorf("expected LOGIN_START, got 0x%02X", f.ID)
	}
	r := protocol.NewReader(f.Body())
	username, err := r.ReadString()
	if err != nil {
		return err
	}
	c.log = c.log.With("player", username)

	if max := c.px.cfg.Proxy.MaxPlayers; c.px.OnlineCount() >= max {
		c.loginDisconnect("Server is full")
		return fmt.Errorf("server full (%d players)", max)
	}

	offlineID := auth.OfflineUUID(username)
	authID := offlineID
	var props []auth.Property

	if c.px.cfg.Proxy.OnlineMode {
		profile, err := c.encryptLogin(ctx, username)
		if err != nil {
			c.loginDisconnect("Failed to verify username!")
			return err
		}
		authID = profile.ID
		props = profile.Properties
	}

	c.sess.setIdentity(c.version, username, authID, offlineID, props)

	if t := c.px.cfg.Proxy.CompressionThreshold; t >= 0 {
		scID, _ := base.ID(protocol.SetCompressionLogin)
		w := protocol.GetWriter()
		w.WriteVarInt(int32(t))
		err := c.conn.sendNow(scID, w.Bytes())
		w.Put()
		if err != nil {
			return err
		}
		c.conn.Codec().SetThreshold(int32(t))
	}

	d := c.px.bus.Emit(events.PlayerLogin, map[string]any{
		"username": username,
		"uuid":     authID.String(),
		"online":   c.px.cfg.Proxy.OnlineMode,
	})
	if d.Action == events.ActDrop {
		c.loginDisconnect("Login cancelled")
		return fmt.Errorf("login for %q denied by handler", username)
	}

	lsID, _ := base.ID(protocol.LoginSuccess)
	w := protocol.GetWriter()
	w.WriteString(authID.String())
	w.WriteString(username)
	err = c.conn.sendNow(lsID, w.Bytes())
	w.Put()
	if err != nil {
		return err
	}
	c.state = StatePlay

	c.px.register(c.sess)
	c.px.bus.Emit(events.PlayerJoin, map[string]any{"player": c.sess.Ref()})
	c.log.Info("player logged in", "uuid", authID, "offline_uuid", offlineID)

	if err := c.px.openServerHalf(ctx, c.sess); err != nil {
		c.playDisconnect(chatText("Could not reach the game server", "red"))
		return err
	}
	return nil
}

// encryptLogin runs the ENCRYPTION_REQUEST/RESPONSE exchange, switches the
// socket to AES/CFB8 and verifies the player against the session service.
func (c *ClientConn) encryptLogin(ctx context.Context, username string) (*auth.Profile, error) {
	base := protocol.BaseIDs()
	token, err := crypto.NewVerifyToken()
	if err != nil {
		return nil, err
	}

	reqID, _ := base.ID(protocol.EncryptionRequest)
	w := protocol.GetWriter()
	w.WriteString("") // server id, empty since 1.7
	w.WriteByteArray(c.px.keys.PublicDER)
	w.WriteByteArray(token)
	err = c.conn.sendNow(reqID, w.Bytes())
	w.Put()
	if err != nil {
		return nil, err
	}

	f, err := c.conn.ReadFrame()
	if err != nil {
		return nil, err
	}
	if id, _ := base.ID(protocol.EncryptionResponse); f.ID != id {
		return nil, fmt.Errorf("expected ENCRYPTION_RESPONSE, got 0x%02X", f.ID)
	}
	r := protocol.NewReader(f.Body())
	encSecret, err := r.ReadByteArray()
	if err != nil {
		return nil, err
	}
	encToken, err := r.ReadByteArray()
	if err != nil {
		return nil, err
	}

	secret, err := c.px.keys.Decrypt(encSecret)
	if err != nil {
		return nil, err
	}
	echoed, err := c.px.keys.Decrypt(encToken)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(echoed, token) {
		return nil, errors.New("verify token mismatch")
	}

	enc, dec, err := crypto.SessionStreams(secret)
	if err != nil {
		return nil, err
	}
	c.conn.Codec().EnableEncryption(enc, dec)

	hash := crypto.ServerIDHash("", secret, c.px.keys.PublicDER)
	profile, err := c.px.sessions.HasJoined(ctx, username, hash)
	if err != nil {
		return nil, fmt.Errorf("session check for %q: %w", username, err)
	}
	return profile, nil
}

// runPlay is the client half's steady-state read loop: parse what the proxy
// observes, forward everything else byte-identical.
func (c *ClientConn) runPlay() error {
	for {
		f, err := c.conn.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if err := c.handlePlay(f); err != nil {
			return err
		}
	}
}

func (c *ClientConn) handlePlay(f protocol.Frame) error {
	t := c.tables.ServerSide
	switch f.ID {
	case t[protocol.KeepAliveSB]:
		// The backend half answers keep-alives itself; a stray client echo
		// would be an unsolicited response, so it is absorbed here.
		return nil
	case t[protocol.ChatMessageSB]:
		return c.handleChat(f)
	case t[protocol.PlayerPosition], t[protocol.PlayerPosLookSB]:
		return c.handleMove(f)
	default:
		c.forward(f.Raw)
		return nil
	}
}

func (c *ClientConn) handleChat(f protocol.Frame) error {
	r := protocol.NewReader(f.Body())
	msg, err := r.ReadString()
	if err != nil {
		return err
	}

	if strings.HasPrefix(msg, "/") {
		fields := strings.Fields(msg[1:])
		if len(fields) == 0 {
			c.forward(f.Raw)
			return nil
		}
		d := c.px.bus.Emit(events.PlayerRunCommand, map[string]any{
			"player":  c.sess.Ref(),
			"command": fields[0],
			"args":    fields[1:],
		})
		switch d.Action {
		case events.ActDrop:
			return nil
		case events.ActReplace:
			return c.sendChatToServer(replacementCommand(d.Replacement, msg))
		}
		c.forward(f.Raw)
		return nil
	}

	d := c.px.bus.Emit(events.PlayerChatbox, map[string]any{
		"player": c.sess.Ref(),
		"json":   map[string]any{"message": msg},
	})
	switch d.Action {
	case events.ActDrop:
		return nil
	case events.ActReplace:
		if repl, ok := replacementMessage(d.Replacement); ok {
			return c.sendChatToServer(repl)
		}
	}
	c.forward(f.Raw)
	return nil
}

// replacementMessage digs the rewritten chat text out of a chatbox
// replacement payload.
func replacementMessage(repl map[string]any) (string, bool) {
	if j, ok := repl["json"].(map[string]any); ok {
		if msg, ok := j["message"].(string); ok {
			return msg, true
		}
	}
	msg, ok := repl["message"].(string)
	return msg, ok
}

// replacementCommand rebuilds a slash command from a runCommand replacement
// payload, falling back to the original message on a malformed payload.
func replacementCommand(repl map[string]any, original string) string {
	cmd, ok := repl["command"].(string)
	if !ok {
		return original
	}
	parts := []string{"/" + cmd}
	switch args := repl["args"].(type) {
	case []string:
		parts = append(parts, args...)
	case []any:
		for _, a := range args {
			if s, ok := a.(string); ok {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, " ")
}

func (c *ClientConn) sendChatToServer(msg string) error {
	id, err := c.tables.ServerSide.ID(protocol.ChatMessageSB)
	if err != nil {
		return err
	}
	w := protocol.GetWriter()
	defer w.Put()
	w.WriteString(msg)
	c.forwardPacket(id, w.Bytes())
	return nil
}

// handleMove covers PLAYER_POSITION and PLAYER_POSLOOK, which share the
// x/y/z prefix.
func (c *ClientConn) handleMove(f protocol.Frame) error {
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
	// Yaw and pitch trail the position and are not mirrored.
	c.sess.SetPosition(x, y, z)
	d := c.px.bus.Emit(events.PlayerMove, map[string]any{
		"player": c.sess.Ref(),
		"x":      x,
		"y":      y,
		"z":      z,
	})
	if d.Action == events.ActDrop {
		return nil
	}
	c.forward(f.Raw)
	return nil
}

// forward queues raw id||body bytes for the backend half. Packets arriving
// before the backend connection exists are dropped.
func (c *ClientConn) forward(raw []byte) {
	if srv := c.sess.serverHalf(); srv != nil {
		srv.conn.Send(raw)
	}
}

func (c *ClientConn) forwardPacket(id int32, body []byte) {
	if srv := c.sess.serverHalf(); srv != nil {
		srv.conn.SendPacket(id, append([]byte(nil), body...))
	}
}

// loginDisconnect sends a LOGIN_DISCONNECT with a plain-text reason. Errors
// are ignored, the connection is going away either way.
func (c *ClientConn) loginDisconnect(reason string) {
	id, _ := protocol.BaseIDs().ID(protocol.LoginDisconnect)
	w := protocol.GetWriter()
	defer w.Put()
	w.WriteString(chatText(reason, ""))
	_ = c.conn.sendNow(id, w.Bytes())
}

// playDisconnect sends a play-state DISCONNECT with a pre-encoded chat json.
func (c *ClientConn) playDisconnect(chatJSON string) {
	id, err := c.tables.ClientSide.ID(protocol.DisconnectCB)
	if err != nil {
		return
	}
	w := protocol.GetWriter()
	defer w.Put()
	w.WriteString(chatJSON)
	_ = c.conn.sendNow(id, w.Bytes())
}

// chatText encodes a chat component with optional color.
func chatText(text, color string) string {
	comp := map[string]string{"text": text}
	if color != "" {
		comp["color"] = color
	}
	b, _ := json.Marshal(comp)
	return string(b)
}
