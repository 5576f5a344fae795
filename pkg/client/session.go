// Package client hosts the editor side of a gist document: a
// websocket session that speaks the sync protocol with a room and
// feeds every inbound message through a reconciliation machine.
//
// The websocket carries two kinds of frames. Text frames are protocol
// messages; binary frames are document snapshots relayed between
// collaborating sessions.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gistsync/gistsync/pkg/document"
	"github.com/gistsync/gistsync/pkg/protocol"
	"github.com/gistsync/gistsync/pkg/reconcile"
)

// ErrSessionClosed is returned from operations on a closed session.
var ErrSessionClosed = errors.New("client: session closed")

// ConnectionState is the transport-level state of a session,
// independent of the reconciliation status.
type ConnectionState int32

const (
	StateConnecting ConnectionState = iota
	StateConnected
	StateDisconnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int32(s))
	}
}

// Session is one open document on one editor. It owns the websocket
// connection, the local document replica, and the reconciliation
// machine that interprets room messages.
type Session struct {
	gistID string
	conn   *websocket.Conn
	doc    *document.MemoryDocument
	mach   *reconcile.Machine
	logger *slog.Logger
	cfg    options

	writeMu sync.Mutex
	state   atomic.Int32
	closed  atomic.Bool
	done    chan struct{}

	// echoing masks the local-change callback while a collaborator's
	// snapshot is applied, so it is not bounced back to the room.
	echoing atomic.Bool
}

// Dial connects a session to the room for gistID. baseURL is the
// server's HTTP origin, e.g. "http://localhost:8080"; the websocket
// and canonical-fetch endpoints are derived from it.
func Dial(ctx context.Context, baseURL, gistID string, opts ...Option) (*Session, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt(&cfg)
	}

	wsURL, err := roomURL(baseURL, gistID)
	if err != nil {
		return nil, err
	}

	s := &Session{
		gistID: gistID,
		doc:    document.NewMemoryDocument(""),
		logger: cfg.logger.With("component", "client", "gist_id", gistID),
		cfg:    cfg,
		done:   make(chan struct{}),
	}
	s.state.Store(int32(StateConnecting))

	conn, _, err := cfg.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		s.state.Store(int32(StateDisconnected))
		return nil, fmt.Errorf("client: dial %s: %w", wsURL, err)
	}
	s.conn = conn
	s.state.Store(int32(StateConnected))

	fetch := cfg.fetch
	if fetch == nil {
		fetch = httpFetcher(baseURL, cfg.httpClient)
	}
	// The machine writes the document when seeding or applying remote
	// text; those writes must not be echoed to the room as edits.
	s.mach = reconcile.NewMachine(gistID, machineDoc{s.doc, &s.echoing}, fetch, s.sendMessage, cfg.logger)

	// Local edits travel to the room over the document channel; the
	// machine has its own subscription for reconciliation bookkeeping.
	s.doc.Subscribe(s.onLocalChange)

	go s.readLoop()
	go s.pingLoop()

	s.logger.Info("session connected", "url", wsURL)
	return s, nil
}

// roomURL derives the websocket room endpoint from the HTTP origin.
func roomURL(baseURL, gistID string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("client: parse base url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("client: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/parties/gist/" + url.PathEscape(gistID)
	return u.String(), nil
}

// httpFetcher fetches canonical content from the server's REST
// surface. A 404 means the gist has no persisted content yet.
func httpFetcher(baseURL string, hc *http.Client) reconcile.FetchFunc {
	return func(ctx context.Context, gistID string) (string, bool, error) {
		u := strings.TrimRight(baseURL, "/") + "/api/gists/" + url.PathEscape(gistID)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return "", false, err
		}
		resp, err := hc.Do(req)
		if err != nil {
			return "", false, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return "", false, nil
		}
		if resp.StatusCode != http.StatusOK {
			return "", false, fmt.Errorf("client: fetch %s: status %d", gistID, resp.StatusCode)
		}

		var body struct {
			Content *string `json:"content"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&body); err != nil {
			return "", false, fmt.Errorf("client: decode fetch response: %w", err)
		}
		if body.Content == nil {
			return "", false, nil
		}
		return *body.Content, true, nil
	}
}

// readLoop pumps inbound frames until the connection dies.
func (s *Session) readLoop() {
	defer s.Close()

	for {
		if s.cfg.readTimeout > 0 {
			s.conn.SetReadDeadline(time.Now().Add(s.cfg.readTimeout))
		}
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() && websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure) {
				s.logger.Error("read error", "error", err)
			}
			return
		}

		switch kind {
		case websocket.TextMessage:
			s.handleProtocolFrame(data)

		case websocket.BinaryMessage:
			// A collaborator's snapshot. Applying it is a document
			// change like any other; the machine will mark the
			// replica unsynced until the room saves.
			s.applyPeerUpdate(string(data))

		default:
			s.logger.Warn("unexpected frame kind", "kind", kind)
		}
	}
}

func (s *Session) handleProtocolFrame(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		s.logger.Warn("malformed message dropped", "error", err)
		return
	}
	if err := s.mach.HandleMessage(msg); err != nil {
		if errors.Is(err, reconcile.ErrMisdirected) {
			s.logger.Warn("misdirected message dropped", "type", msg.Type)
			return
		}
		s.logger.Warn("message rejected", "type", msg.Type, "error", err)
	}
}

// machineDoc is the machine's view of the replica. Its writes carry
// the echo guard so reconciliation writes stay off the wire.
type machineDoc struct {
	*document.MemoryDocument
	echo *atomic.Bool
}

func (d machineDoc) SetMarkdown(markdown string) {
	d.echo.Store(true)
	d.MemoryDocument.SetMarkdown(markdown)
	d.echo.Store(false)
}

// applyPeerUpdate merges a collaborator's snapshot into the local
// replica without echoing it back over the document channel.
func (s *Session) applyPeerUpdate(markdown string) {
	s.echoing.Store(true)
	s.doc.SetMarkdown(markdown)
	s.echoing.Store(false)
}

// pingLoop keeps the connection alive.
func (s *Session) pingLoop() {
	ticker := time.NewTicker(s.cfg.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.writeMu.Lock()
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.writeTimeout))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// onLocalChange ships an edited snapshot to the room over the
// document channel.
func (s *Session) onLocalChange(markdown string) {
	if s.echoing.Load() {
		return
	}
	if err := s.writeFrame(websocket.BinaryMessage, []byte(markdown)); err != nil {
		s.logger.Warn("update send failed", "error", err)
	}
}

// sendMessage is the machine's outbound path for protocol messages.
func (s *Session) sendMessage(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return s.writeFrame(websocket.TextMessage, data)
}

func (s *Session) writeFrame(kind int, data []byte) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(s.cfg.writeTimeout))
	return s.conn.WriteMessage(kind, data)
}

// SetMarkdown replaces the local text, as a user edit would.
func (s *Session) SetMarkdown(markdown string) {
	s.doc.SetMarkdown(markdown)
}

// Markdown exports the current local text.
func (s *Session) Markdown() string {
	return s.doc.Markdown()
}

// Document returns the local replica.
func (s *Session) Document() *document.MemoryDocument {
	return s.doc
}

// Status returns the reconciliation status.
func (s *Session) Status() reconcile.Status {
	return s.mach.Status()
}

// ConflictRecord returns the pending conflict, or nil.
func (s *Session) ConflictRecord() *reconcile.ConflictRecord {
	return s.mach.ConflictRecord()
}

// RetryState returns the room's last advisory retry schedule.
func (s *Session) RetryState() reconcile.RetryState {
	return s.mach.RetryState()
}

// ConnectionState returns the transport state.
func (s *Session) ConnectionState() ConnectionState {
	return ConnectionState(s.state.Load())
}

// PushLocal resolves a pending conflict keeping the local text.
func (s *Session) PushLocal() {
	s.mach.PushLocal()
}

// DiscardLocal resolves a pending conflict adopting the remote text.
func (s *Session) DiscardLocal() {
	s.mach.DiscardLocal()
}

// Close tears the session down. Safe to call more than once.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.state.Store(int32(StateDisconnected))
	close(s.done)
	s.mach.Close()

	s.writeMu.Lock()
	s.conn.SetWriteDeadline(time.Now().Add(s.cfg.writeTimeout))
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()

	err := s.conn.Close()
	s.logger.Info("session closed")
	return err
}
