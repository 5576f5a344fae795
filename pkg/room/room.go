package room

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/gistsync/gistsync/pkg/document"
	"github.com/gistsync/gistsync/pkg/gist"
	"github.com/gistsync/gistsync/pkg/observe"
	"github.com/gistsync/gistsync/pkg/protocol"
)

// Room coordinates one document: it owns the shared collaborative
// document, relays document updates between sessions, and keeps the
// canonical markdown persisted.
type Room struct {
	gistID  string
	cfg     Config
	store   gist.Store
	doc     *document.MemoryDocument
	logger  *slog.Logger
	metrics *observe.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	conns     map[string]Conn
	pending   map[string]string // requestID -> connID that must answer
	canonical string
	hasRemote bool // canonical is known (loaded or saved at least once)
	saveTimer *time.Timer
	saving    bool
	queued    bool
	closed    bool

	// suppress masks change events while the room itself writes the
	// document from already-canonical text.
	suppress atomic.Bool

	cancelSub func()
}

func newRoom(gistID string, store gist.Store, cfg Config, logger *slog.Logger, metrics *observe.Metrics) *Room {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Room{
		gistID:  gistID,
		cfg:     cfg,
		store:   store,
		doc:     document.NewMemoryDocument(""),
		logger:  logger.With("component", "room", "gist_id", gistID),
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
		conns:   make(map[string]Conn),
		pending: make(map[string]string),
	}
	r.cancelSub = r.doc.Subscribe(r.onDocumentChange)
	return r
}

// GistID returns the document id this room coordinates.
func (r *Room) GistID() string {
	return r.gistID
}

// Document returns the shared collaborative document.
func (r *Room) Document() *document.MemoryDocument {
	return r.doc
}

// Join registers a connection with the room. The first join loads the
// canonical text; a joining session either receives the known remote
// text (reload-remote) or is asked to seed the document (needs-init).
func (r *Room) Join(conn Conn) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		conn.Close()
		return
	}
	r.conns[conn.ID()] = conn
	count := len(r.conns)
	needLoad := !r.hasRemote
	r.mu.Unlock()

	r.metrics.ActiveSessions.Inc()
	r.logger.Info("connection joined", "conn_id", conn.ID(), "conns", count)

	if needLoad {
		ctx, span := observe.StartSpan(r.ctx, "room.load", observe.GistID(r.gistID))
		content, ok, err := r.store.Load(ctx, r.gistID)
		observe.EndSpan(span, err)
		if err != nil {
			r.logger.Warn("canonical load failed", "error", err)
			ok = false
		}
		if ok {
			r.mu.Lock()
			r.canonical = content
			r.hasRemote = true
			r.mu.Unlock()
			r.setDocument(content)
		}
	}

	r.mu.Lock()
	known := r.hasRemote
	canonical := r.canonical
	r.mu.Unlock()

	if known {
		r.send(conn, protocol.NewReloadRemote(canonical))
		r.send(conn, protocol.NewSyncStatus(protocol.SyncSaved, ""))
	} else {
		// No persisted content: ask this session to seed the document
		// from the canonical store.
		r.send(conn, protocol.NewNeedsInit(r.gistID, r.cfg.Filename))
	}
}

// Leave unregisters a connection. When the last session leaves, the
// room makes a final persistence pass; the hub then evicts it.
func (r *Room) Leave(conn Conn) (empty bool) {
	r.mu.Lock()
	if _, ok := r.conns[conn.ID()]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.conns, conn.ID())
	for reqID, connID := range r.pending {
		if connID == conn.ID() {
			delete(r.pending, reqID)
		}
	}
	count := len(r.conns)
	r.mu.Unlock()

	r.metrics.ActiveSessions.Dec()
	r.logger.Info("connection left", "conn_id", conn.ID(), "conns", count)
	return count == 0
}

// ApplyUpdate feeds a document snapshot from one session into the
// shared document and relays it to the other sessions. This is the
// collaborative-document channel; merge ordering belongs to the
// document engine, not to this coordinator.
func (r *Room) ApplyUpdate(fromConnID, markdown string) {
	r.doc.SetMarkdown(markdown)

	r.mu.Lock()
	others := make([]Conn, 0, len(r.conns))
	for id, c := range r.conns {
		if id != fromConnID {
			others = append(others, c)
		}
	}
	r.mu.Unlock()

	for _, c := range others {
		if err := c.SendUpdate(markdown); err != nil {
			r.logger.Warn("update relay failed", "conn_id", c.ID(), "error", err)
		}
	}
}

// HandleMessage processes one client-originated message. Misdirected
// or unexpected messages are dropped and reported, never retried.
func (r *Room) HandleMessage(conn Conn, msg protocol.Message) {
	if !protocol.IsClientOriginated(msg) {
		r.metrics.ProtocolErrors.WithLabelValues("misdirected").Inc()
		r.logger.Warn("misdirected message dropped", "conn_id", conn.ID(), "type", msg.Type)
		return
	}
	r.metrics.MessagesTotal.WithLabelValues(msg.Type.String(), protocol.ClientToRoom.String()).Inc()

	switch p := msg.Payload.(type) {
	case protocol.CanonicalMarkdownPayload:
		r.handleCanonicalMarkdown(conn, p)

	case protocol.PushLocalPayload:
		// Local wins: pull a fresh snapshot from the resolving session
		// and persist it.
		r.requestMarkdownFrom(conn)

	case protocol.DiscardLocalPayload:
		// Remote wins: the session already adopted the canonical text.
		r.send(conn, protocol.NewSyncStatus(protocol.SyncSaved, ""))

	default:
		r.metrics.ProtocolErrors.WithLabelValues("unexpected").Inc()
		r.logger.Warn("unexpected message dropped", "conn_id", conn.ID(), "type", msg.Type)
	}
}

// handleCanonicalMarkdown accepts an answer only when its request id
// matches an outstanding request issued by this room.
func (r *Room) handleCanonicalMarkdown(conn Conn, p protocol.CanonicalMarkdownPayload) {
	r.mu.Lock()
	connID, ok := r.pending[p.RequestID]
	if ok {
		delete(r.pending, p.RequestID)
	}
	r.mu.Unlock()

	if !ok || connID != conn.ID() {
		r.metrics.ProtocolErrors.WithLabelValues("unmatched_request").Inc()
		r.logger.Warn("unmatched canonical-markdown ignored",
			"conn_id", conn.ID(), "request_id", p.RequestID)
		return
	}

	// Adopt the answered text without re-arming the save debounce.
	r.setDocument(p.Markdown)
	r.persist(conn.ID(), p.Markdown)
}

// onDocumentChange arms the debounced save cycle.
func (r *Room) onDocumentChange(string) {
	if r.suppress.Load() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if r.saveTimer != nil {
		r.saveTimer.Stop()
	}
	r.saveTimer = time.AfterFunc(r.cfg.Debounce, r.requestMarkdown)
	r.broadcastLocked(protocol.NewSyncStatus(protocol.SyncPendingSync, ""), "")
}

// requestMarkdown asks one connected session for the current text.
func (r *Room) requestMarkdown() {
	r.mu.Lock()
	var target Conn
	for _, c := range r.conns {
		target = c
		break
	}
	r.mu.Unlock()

	if target == nil {
		// No session to ask; persist the hosted document directly.
		r.persist("", r.doc.Markdown())
		return
	}
	r.requestMarkdownFrom(target)
}

// requestMarkdownFrom issues a correlated request-markdown to conn.
func (r *Room) requestMarkdownFrom(conn Conn) {
	requestID := uuid.New().String()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.pending[requestID] = conn.ID()
	r.mu.Unlock()

	r.send(conn, protocol.NewRequestMarkdown(requestID))
}

// persist saves markdown as the new canonical text, retrying
// transient failures with exponential backoff. Saves are
// single-writer: a concurrent request queues one follow-up cycle.
func (r *Room) persist(originConnID, markdown string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if r.saving {
		r.queued = true
		r.mu.Unlock()
		return
	}
	if r.hasRemote && r.canonical == markdown {
		r.broadcastLocked(protocol.NewSyncStatus(protocol.SyncSaved, ""), "")
		r.mu.Unlock()
		return
	}
	r.saving = true
	r.mu.Unlock()

	go r.runSave(originConnID, markdown)
}

func (r *Room) runSave(originConnID, markdown string) {
	r.broadcast(protocol.NewSyncStatus(protocol.SyncSaving, ""), "")

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.cfg.SaveInitialInterval
	bo.MaxInterval = r.cfg.SaveMaxInterval
	bo.MaxElapsedTime = r.cfg.SaveMaxElapsed
	bo.Reset()

	attempt := 0
	for {
		attempt++
		start := time.Now()
		ctx, span := observe.StartSpan(r.ctx, "room.save",
			observe.GistID(r.gistID), observe.Attempt(attempt))
		err := r.store.Save(ctx, r.gistID, markdown)
		observe.EndSpan(span, err)
		r.metrics.SaveDuration.Observe(time.Since(start).Seconds())

		if err == nil {
			r.metrics.SavesTotal.WithLabelValues("ok").Inc()
			r.finishSave(originConnID, markdown)
			return
		}

		r.metrics.SavesTotal.WithLabelValues("error").Inc()
		next := bo.NextBackOff()
		if next == backoff.Stop {
			r.logger.Error("canonical save abandoned", "attempts", attempt, "error", err)
			r.broadcast(protocol.NewSyncStatus(protocol.SyncErrorRetrying, err.Error()), "")
			r.abortSave()
			return
		}

		r.metrics.SaveRetries.Inc()
		r.logger.Warn("canonical save failed, retrying",
			"attempt", attempt, "next_retry_in", next, "error", err)
		r.broadcast(protocol.NewErrorRetrying(attempt, time.Now().Add(next).UnixMilli()), "")

		select {
		case <-time.After(next):
		case <-r.ctx.Done():
			r.abortSave()
			return
		}
	}
}

// finishSave publishes the new canonical text: saved status to all
// sessions, remote-changed to everyone but the origin.
func (r *Room) finishSave(originConnID, markdown string) {
	r.mu.Lock()
	r.canonical = markdown
	r.hasRemote = true
	r.saving = false
	rerun := r.queued
	r.queued = false
	r.broadcastLocked(protocol.NewSyncStatus(protocol.SyncSaved, ""), "")
	r.broadcastLocked(protocol.NewRemoteChanged(markdown), originConnID)
	r.mu.Unlock()

	r.logger.Info("canonical saved", "bytes", len(markdown))

	if rerun {
		// The document moved on while we were saving.
		r.persist("", r.doc.Markdown())
	}
}

func (r *Room) abortSave() {
	r.mu.Lock()
	r.saving = false
	r.queued = false
	r.mu.Unlock()
}

// broadcast sends msg to every connection except the one named by
// exceptID (empty means everyone).
func (r *Room) broadcast(msg protocol.Message, exceptID string) {
	r.mu.Lock()
	r.broadcastLocked(msg, exceptID)
	r.mu.Unlock()
}

// broadcastLocked writes synchronously so every connection observes
// messages in emission order; connection writes are deadline-bounded.
func (r *Room) broadcastLocked(msg protocol.Message, exceptID string) {
	for id, c := range r.conns {
		if id == exceptID {
			continue
		}
		if err := c.Send(msg); err != nil {
			r.logger.Warn("broadcast failed", "conn_id", c.ID(), "error", err)
		}
	}
	r.metrics.MessagesTotal.WithLabelValues(msg.Type.String(), protocol.RoomToClient.String()).Inc()
}

// send delivers one message to one connection.
func (r *Room) send(conn Conn, msg protocol.Message) {
	if err := conn.Send(msg); err != nil {
		r.logger.Warn("send failed", "conn_id", conn.ID(), "type", msg.Type, "error", err)
		return
	}
	r.metrics.MessagesTotal.WithLabelValues(msg.Type.String(), protocol.RoomToClient.String()).Inc()
}

// setDocument writes the hosted document without arming the save
// debounce: the text is already canonical, there is nothing to save.
func (r *Room) setDocument(markdown string) {
	r.suppress.Store(true)
	r.doc.SetMarkdown(markdown)
	r.suppress.Store(false)
}

// close shuts the room down. Called by the hub on eviction.
func (r *Room) close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	if r.saveTimer != nil {
		r.saveTimer.Stop()
	}
	if r.cancelSub != nil {
		r.cancelSub()
		r.cancelSub = nil
	}
	conns := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[string]Conn)
	r.mu.Unlock()

	r.cancel()
	for _, c := range conns {
		c.Close()
	}
}
