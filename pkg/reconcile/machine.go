package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gistsync/gistsync/pkg/document"
	"github.com/gistsync/gistsync/pkg/observe"
	"github.com/gistsync/gistsync/pkg/protocol"
)

// ErrMisdirected is returned for a message whose direction table says
// it cannot originate from the room. Such messages are dropped and
// reported, never retried.
var ErrMisdirected = errors.New("reconcile: misdirected message")

// FetchFunc fetches canonical content by gist id. Absence of content
// is (ok=false, err=nil), not an error.
type FetchFunc func(ctx context.Context, gistID string) (content string, ok bool, err error)

// SendFunc delivers an outbound message to the room.
type SendFunc func(protocol.Message) error

// Machine hosts one reconciliation state machine for one open
// document on one client. It is safe for concurrent use; events are
// serialized and processed in arrival order.
type Machine struct {
	mu    sync.Mutex
	state State

	doc    document.Document
	fetch  FetchFunc
	send   SendFunc
	logger *slog.Logger

	// applying suppresses the document-change callback while the
	// machine itself writes the document (seed, apply-remote).
	applying atomic.Bool

	cancelSub func()
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewMachine creates and starts a machine for gistID. It subscribes
// to document changes immediately.
func NewMachine(gistID string, doc document.Document, fetch FetchFunc, send SendFunc, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	m := &Machine{
		state:  NewState(gistID),
		doc:    doc,
		fetch:  fetch,
		send:   send,
		logger: logger.With("component", "reconcile", "gist_id", gistID),
		ctx:    ctx,
		cancel: cancel,
	}
	m.cancelSub = doc.Subscribe(m.onDocumentChange)
	return m
}

// HandleMessage feeds a decoded room message into the machine.
// Client-originated kinds are rejected with ErrMisdirected.
func (m *Machine) HandleMessage(msg protocol.Message) error {
	if !protocol.IsRoomOriginated(msg) {
		return fmt.Errorf("%w: %s", ErrMisdirected, msg.Type)
	}

	switch p := msg.Payload.(type) {
	case protocol.NeedsInitPayload:
		m.dispatch(EvNeedsInit{GistID: p.GistID, Filename: p.Filename})
	case protocol.RequestMarkdownPayload:
		// The reply must reflect the live local text at reply time.
		m.dispatch(EvRequestMarkdown{RequestID: p.RequestID, Local: m.doc.Markdown()})
	case protocol.ReloadRemotePayload:
		m.dispatch(EvReloadRemote{Markdown: p.Markdown})
	case protocol.RemoteChangedPayload:
		m.dispatch(EvRemoteChanged{RemoteMarkdown: p.RemoteMarkdown})
	case protocol.SyncStatusPayload:
		m.dispatch(EvSyncStatus{State: p.State, Detail: p.Detail})
	case protocol.ErrorRetryingPayload:
		m.dispatch(EvErrorRetrying{Attempt: p.Attempt, NextRetryAt: time.UnixMilli(p.NextRetryAt)})
	case protocol.ConflictPayload:
		m.dispatch(EvConflict{LocalMarkdown: p.LocalMarkdown, RemoteMarkdown: p.RemoteMarkdown})
	default:
		return fmt.Errorf("reconcile: unhandled message %s", msg.Type)
	}
	return nil
}

// PushLocal resolves a pending conflict keeping the local text.
// A no-op when no conflict is pending.
func (m *Machine) PushLocal() {
	m.dispatch(EvPushLocal{})
}

// DiscardLocal resolves a pending conflict adopting the remote text.
// A no-op when no conflict is pending.
func (m *Machine) DiscardLocal() {
	m.dispatch(EvDiscardLocal{})
}

// Status returns the current observable status.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Status
}

// ConflictRecord returns a copy of the pending conflict, or nil.
func (m *Machine) ConflictRecord() *ConflictRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Conflict == nil {
		return nil
	}
	c := *m.state.Conflict
	return &c
}

// RetryState returns the room's last advisory retry schedule.
func (m *Machine) RetryState() RetryState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Retry
}

// Markdown returns the live markdown view of the local document.
func (m *Machine) Markdown() string {
	return m.doc.Markdown()
}

// Close discards the machine. In-flight fetch results arriving after
// Close are dropped without state mutation.
func (m *Machine) Close() {
	m.dispatch(EvClose{})
	m.cancel()
	if m.cancelSub != nil {
		m.cancelSub()
	}
}

// onDocumentChange is the collaborative-document change callback.
func (m *Machine) onDocumentChange(markdown string) {
	if m.applying.Load() {
		// Our own seed/apply write, not a user edit.
		return
	}
	m.dispatch(EvLocalChanged{Markdown: markdown})
}

// dispatch runs one event through Step and executes its effects.
func (m *Machine) dispatch(ev Event) {
	m.mu.Lock()
	prev := m.state.Status
	next, effects := Step(m.state, ev)
	m.state = next
	m.mu.Unlock()

	if next.Status == Conflict && prev != Conflict {
		observe.Default().ConflictsTotal.Inc()
		m.logger.Warn("divergence conflict", "has_record", next.Conflict != nil)
	}

	for _, fx := range effects {
		m.run(fx)
	}
}

// run executes one effect at the boundary.
func (m *Machine) run(fx Effect) {
	switch f := fx.(type) {
	case FxSend:
		if err := m.send(f.Message); err != nil {
			m.logger.Warn("send failed", "type", f.Message.Type, "error", err)
		}

	case FxSeedDocument:
		m.setDocument(f.Markdown)

	case FxApplyRemote:
		m.setDocument(f.Markdown)

	case FxFetchCanonical:
		go m.runFetch(f)
	}
}

// setDocument writes the document without treating the resulting
// change event as a user edit.
func (m *Machine) setDocument(markdown string) {
	m.applying.Store(true)
	m.doc.SetMarkdown(markdown)
	m.applying.Store(false)
}

// runFetch performs a canonical-content fetch and feeds the result
// back as an event. Fetch failures degrade to the blank-document
// fallback rather than crashing the session.
func (m *Machine) runFetch(f FxFetchCanonical) {
	content, ok, err := m.fetch(m.ctx, f.GistID)
	if err != nil {
		m.logger.Warn("canonical fetch failed", "refresh", f.Refresh, "error", err)
		ok = false
	}

	if f.Refresh {
		if ok {
			m.dispatch(EvReloadRemote{Markdown: content})
		}
		return
	}
	m.dispatch(EvSeedResult{Content: content, Found: ok})
}
