package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/craftwrap/craftwrap/internal/auth"
	"github.com/craftwrap/craftwrap/internal/config"
	"github.com/craftwrap/craftwrap/internal/crypto"
	"github.com/craftwrap/craftwrap/internal/events"
	"github.com/craftwrap/craftwrap/internal/protocol"
)

// backendDialRetry is the pause before the single dial retry; the local
// server may still be binding its port when the first player arrives.
const backendDialRetry = 500 * time.Millisecond

// Proxy accepts game clients, authenticates them and splices each one to the
// local offline-mode server, keeping a roster of live sessions.
type Proxy struct {
	cfg      config.Config
	bus      *events.Bus
	sessions *auth.SessionClient
	keys     *crypto.LoginKeyPair
	log      *slog.Logger

	mu     sync.Mutex
	roster map[uuid.UUID]*Session // keyed by authenticated uuid
}

// New builds a Proxy. The RSA login key is generated eagerly so the first
// online-mode login does not pay for it.
func New(cfg config.Config, bus *events.Bus, log *slog.Logger) (*Proxy, error) {
	p := &Proxy{
		cfg:      cfg,
		bus:      bus,
		sessions: auth.NewSessionClient(auth.DefaultSessionURL),
		log:      log,
		roster:   make(map[uuid.UUID]*Session),
	}
	if cfg.Proxy.OnlineMode {
		keys, err := crypto.GenerateLoginKeyPair(cfg.Proxy.EncryptionKeySize)
		if err != nil {
			return nil, err
		}
		p.keys = keys
	}
	return p, nil
}

// SetSessionClient overrides the session-service client. Tests point it at a
// local httptest server.
func (p *Proxy) SetSessionClient(c *auth.SessionClient) {
	p.sessions = c
}

// Bus returns the event bus for handler registration.
func (p *Proxy) Bus() *events.Bus {
	return p.bus
}

// Run listens on the configured bind address and accepts clients until ctx is
// cancelled.
func (p *Proxy) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", p.cfg.Proxy.Bind)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", p.cfg.Proxy.Bind, err)
	}
	p.log.Info("proxy listening",
		"bind", p.cfg.Proxy.Bind,
		"backend_port", p.cfg.Proxy.ServerPort,
		"online_mode", p.cfg.Proxy.OnlineMode)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	return p.Serve(ctx, ln)
}

// Serve accepts clients from ln until it is closed.
func (p *Proxy) Serve(ctx context.Context, ln net.Listener) error {
	for {
		sock, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accepting client: %w", err)
		}
		go p.handleConn(ctx, sock)
	}
}

// handleConn owns one client socket from accept to teardown.
func (p *Proxy) handleConn(ctx context.Context, sock net.Conn) {
	sess := newSession(p.cfg.Proxy.TrackEntities)
	cl := newClientConn(p, sess, sock)
	sess.setClient(cl)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return cl.conn.writeLoop() })
	g.Go(func() error {
		defer cl.conn.Close()
		return cl.run(ctx)
	})

	if err := g.Wait(); err != nil && !sess.Closed() {
		p.log.Debug("client connection ended",
			"remote", sock.RemoteAddr(),
			"err", err,
			"recent", cl.conn.LastPackets())
	}
	p.closeSession(sess, "client gone")
}

// openServerHalf dials the local server and attaches the backend half to the
// session. The half runs under its own supervision; its failure tears the
// session down but not the listener.
func (p *Proxy) openServerHalf(ctx context.Context, sess *Session) error {
	srv, err := p.dialBackend(sess)
	if err != nil {
		return err
	}
	sess.setServer(srv)
	go p.superviseBackend(ctx, sess, srv)
	return nil
}

// superviseBackend runs one backend half to completion. The write loop only
// starts once the backend login finishes, so packets forwarded by the client
// half sit in the queue instead of interleaving with the login exchange. A
// half that has been detached from the session (rebind) tears nothing down.
func (p *Proxy) superviseBackend(ctx context.Context, sess *Session, srv *ServerConn) {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-srv.playReady:
			return srv.conn.writeLoop()
		case <-srv.conn.done:
			return nil
		}
	})
	g.Go(func() error {
		defer srv.conn.Close()
		return srv.run(ctx)
	})
	err := g.Wait()

	if sess.serverHalf() != srv {
		// Replaced by a rebind; the session lives on with the new half.
		return
	}
	if err != nil && !sess.Closed() {
		p.log.Warn("backend connection lost",
			"player", sess.Username(),
			"err", err,
			"recent", srv.conn.LastPackets())
		if cl := sess.clientHalf(); cl != nil {
			cl.playDisconnect(chatText("Disconnected from server: "+err.Error(), "red"))
		}
	}
	p.closeSession(sess, "backend gone")
}

func (p *Proxy) dialBackend(sess *Session) (*ServerConn, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", p.cfg.Proxy.ServerPort)
	srv, err := dialServer(p, sess, addr)
	if err != nil {
		time.Sleep(backendDialRetry)
		srv, err = dialServer(p, sess, addr)
	}
	return srv, err
}

// register adds an authenticated session to the roster.
func (p *Proxy) register(sess *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.roster[sess.AuthUUID()] = sess
}

// closeSession removes the session from the roster and closes both halves.
// Safe to call from either half, multiple times.
func (p *Proxy) closeSession(sess *Session, why string) {
	if !sess.markClosed() {
		return
	}

	p.mu.Lock()
	_, registered := p.roster[sess.AuthUUID()]
	delete(p.roster, sess.AuthUUID())
	p.mu.Unlock()

	sess.close()

	if registered {
		ref := sess.Ref()
		p.bus.Emit(events.PlayerLogout, map[string]any{"player": ref})
		p.bus.Emit(events.PlayerLeave, map[string]any{"player": ref})
		p.log.Info("player disconnected", "player", ref.Username, "reason", why)
	}
}

// OnlineCount returns the number of live sessions.
func (p *Proxy) OnlineCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.roster)
}

// LookupByOfflineUUID finds the session whose offline identity matches id.
func (p *Proxy) LookupByOfflineUUID(id uuid.UUID) (*Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.roster {
		if s.OfflineUUID() == id {
			return s, true
		}
	}
	return nil, false
}

// LookupByUsername finds the session for a player name.
func (p *Proxy) LookupByUsername(name string) (*Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.roster {
		if s.Username() == name {
			return s, true
		}
	}
	return nil, false
}

// LookupByServerEID finds the session whose player carries the given backend
// entity id.
func (p *Proxy) LookupByServerEID(eid int32) (*Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.roster {
		if s.ServerEID() == eid {
			return s, true
		}
	}
	return nil, false
}

// Rebind detaches a session from its current backend and splices it to a new
// one on port, keeping the client connection alive. World-dependent session
// state is reset; identity and the client socket survive.
func (p *Proxy) Rebind(ctx context.Context, sess *Session, port int) error {
	if sess.Closed() {
		return errors.New("session is closed")
	}
	cl := sess.clientHalf()
	if cl == nil {
		return errors.New("session has no client")
	}

	// Detach before closing so the old half's supervision sees it was
	// replaced and leaves the client connection alone.
	if old := sess.serverHalf(); old != nil {
		sess.setServer(nil)
		old.conn.Close()
	}
	sess.ResetWorldState()

	// Stop any rain and tell the player what is happening; the new backend's
	// JOIN_GAME and chunk data follow.
	if id, err := cl.tables.ClientSide.ID(protocol.ChangeGameState); err == nil {
		w := protocol.GetWriter()
		w.WriteByte(1) // end raining
		w.WriteFloat(0)
		cl.conn.SendPacket(id, append([]byte(nil), w.Bytes()...))
		w.Put()
	}
	if id, err := cl.tables.ClientSide.ID(protocol.ChatMessageCB); err == nil {
		w := protocol.GetWriter()
		w.WriteString(chatText("Connecting to new server...", "yellow"))
		w.WriteByte(0)
		cl.conn.SendPacket(id, append([]byte(nil), w.Bytes()...))
		w.Put()
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	srv, err := dialServer(p, sess, addr)
	if err != nil {
		cl.playDisconnect(chatText("Disconnected from server: "+err.Error(), "red"))
		p.closeSession(sess, "rebind failed")
		return err
	}
	sess.setServer(srv)
	go p.superviseBackend(ctx, sess, srv)
	return nil
}
