package server

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gistsync/gistsync/pkg/observe"
	"github.com/gistsync/gistsync/pkg/protocol"
)

// handleRoom upgrades the connection and attaches it to the gist's
// room. Text frames carry protocol messages, binary frames carry
// document snapshots.
func (s *Server) handleRoom(w http.ResponseWriter, r *http.Request) {
	gistID := chi.URLParam(r, "gistID")

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "gist_id", gistID, "error", err)
		return
	}

	conn := &wsConn{
		id:           uuid.New().String(),
		ws:           ws,
		writeTimeout: 10 * time.Second,
	}

	rm := s.hub.Join(gistID, conn)
	if rm == nil {
		ws.Close()
		return
	}
	defer s.hub.Leave(rm, conn)

	done := make(chan struct{})
	defer close(done)
	go s.pingLoop(conn, done)

	ws.SetReadLimit(s.cfg.MaxMessageSize)
	ws.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	})

	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure) {
				s.logger.Warn("read error", "gist_id", gistID, "conn_id", conn.id, "error", err)
			}
			return
		}
		ws.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))

		switch kind {
		case websocket.TextMessage:
			msg, err := protocol.Decode(data)
			if err != nil {
				observe.Default().ProtocolErrors.WithLabelValues("malformed").Inc()
				s.logger.Warn("malformed message dropped", "conn_id", conn.id, "error", err)
				continue
			}
			rm.HandleMessage(conn, msg)

		case websocket.BinaryMessage:
			rm.ApplyUpdate(conn.id, string(data))
		}
	}
}

func (s *Server) pingLoop(conn *wsConn, done <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.writeFrame(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// checkOrigin allows same-origin upgrades plus any configured origin.
func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// wsConn adapts a websocket connection to the room.Conn contract.
type wsConn struct {
	id           string
	ws           *websocket.Conn
	writeTimeout time.Duration

	writeMu sync.Mutex
	closed  atomic.Bool
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return c.writeFrame(websocket.TextMessage, data)
}

func (c *wsConn) SendUpdate(markdown string) error {
	return c.writeFrame(websocket.BinaryMessage, []byte(markdown))
}

func (c *wsConn) writeFrame(kind int, data []byte) error {
	if c.closed.Load() {
		return websocket.ErrCloseSent
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(kind, data)
}

func (c *wsConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.writeMu.Lock()
	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.ws.Close()
}
