package protocol

// MessageType identifies one of the ten protocol message kinds.
type MessageType string

const (
	TypeRequestMarkdown   MessageType = "request-markdown"
	TypeCanonicalMarkdown MessageType = "canonical-markdown"
	TypeNeedsInit         MessageType = "needs-init"
	TypeReloadRemote      MessageType = "reload-remote"
	TypeRemoteChanged     MessageType = "remote-changed"
	TypeSyncStatus        MessageType = "sync-status"
	TypeErrorRetrying     MessageType = "error-retrying"
	TypeConflict          MessageType = "conflict"
	TypePushLocal         MessageType = "push-local"
	TypeDiscardLocal      MessageType = "discard-local"
)

// AllTypes lists every message kind. The closed set: Decode rejects
// anything outside it.
var AllTypes = []MessageType{
	TypeRequestMarkdown,
	TypeCanonicalMarkdown,
	TypeNeedsInit,
	TypeReloadRemote,
	TypeRemoteChanged,
	TypeSyncStatus,
	TypeErrorRetrying,
	TypeConflict,
	TypePushLocal,
	TypeDiscardLocal,
}

// Valid reports whether mt is one of the ten known kinds.
func (mt MessageType) Valid() bool {
	_, ok := directions[mt]
	return ok
}

// String returns the wire name of the message type.
func (mt MessageType) String() string {
	return string(mt)
}

// SyncState is the externally observable save progress for one open
// document on one client. Exactly one state is active per
// document-session at a time.
type SyncState string

const (
	SyncSaved         SyncState = "saved"
	SyncSaving        SyncState = "saving"
	SyncErrorRetrying SyncState = "error-retrying"
	SyncPendingSync   SyncState = "pending-sync"
	SyncConflict      SyncState = "conflict"
)

// Valid reports whether s is one of the five sync states.
func (s SyncState) Valid() bool {
	switch s {
	case SyncSaved, SyncSaving, SyncErrorRetrying, SyncPendingSync, SyncConflict:
		return true
	}
	return false
}

// Message is one protocol message: a kind and its matching payload.
// Construct messages with the New* helpers so the payload always
// matches the declared type.
type Message struct {
	Type    MessageType
	Payload Payload
}

// Payload is implemented by the per-kind payload structs.
type Payload interface {
	// messageType returns the kind this payload belongs to.
	messageType() MessageType
}

// RequestMarkdownPayload asks a client session for the current
// markdown view of its live document. Room → client.
type RequestMarkdownPayload struct {
	RequestID string `json:"requestId"`
}

// CanonicalMarkdownPayload answers a request-markdown with the live
// local text at reply time. Client → room.
type CanonicalMarkdownPayload struct {
	RequestID string `json:"requestId"`
	Markdown  string `json:"markdown"`
}

// NeedsInitPayload tells a client session the room has no persisted
// content and the session should seed the document from the canonical
// store. Room → client.
type NeedsInitPayload struct {
	GistID   string `json:"gistId"`
	Filename string `json:"filename"`
}

// ReloadRemotePayload carries remote text the session should apply,
// or surface as a conflict if unsynced local edits diverge from it.
// Room → client.
type ReloadRemotePayload struct {
	Markdown string `json:"markdown"`
}

// RemoteChangedPayload notifies that another party persisted a
// change. Unlike reload-remote it is advisory: a clean session
// refetches rather than applying the carried text directly.
// Room → client.
type RemoteChangedPayload struct {
	RemoteMarkdown string `json:"remoteMarkdown"`
}

// SyncStatusPayload is the room's view of save progress.
// Room → client.
type SyncStatusPayload struct {
	State  SyncState `json:"state"`
	Detail string    `json:"detail,omitempty"`
}

// ErrorRetryingPayload reports a transient persistence failure and
// the room's retry schedule. NextRetryAt is epoch milliseconds.
// Room → client.
type ErrorRetryingPayload struct {
	Attempt     int   `json:"attempt"`
	NextRetryAt int64 `json:"nextRetryAt"`
}

// ConflictPayload carries both divergent texts verbatim. Resolution
// requires an explicit push-local or discard-local; the protocol
// never auto-resolves. Room → client.
type ConflictPayload struct {
	LocalMarkdown  string `json:"localMarkdown"`
	RemoteMarkdown string `json:"remoteMarkdown"`
}

// PushLocalPayload resolves a conflict keeping the local text.
// Client → room.
type PushLocalPayload struct{}

// DiscardLocalPayload resolves a conflict adopting the remote text.
// Client → room.
type DiscardLocalPayload struct{}

func (RequestMarkdownPayload) messageType() MessageType   { return TypeRequestMarkdown }
func (CanonicalMarkdownPayload) messageType() MessageType { return TypeCanonicalMarkdown }
func (NeedsInitPayload) messageType() MessageType         { return TypeNeedsInit }
func (ReloadRemotePayload) messageType() MessageType      { return TypeReloadRemote }
func (RemoteChangedPayload) messageType() MessageType     { return TypeRemoteChanged }
func (SyncStatusPayload) messageType() MessageType        { return TypeSyncStatus }
func (ErrorRetryingPayload) messageType() MessageType     { return TypeErrorRetrying }
func (ConflictPayload) messageType() MessageType          { return TypeConflict }
func (PushLocalPayload) messageType() MessageType         { return TypePushLocal }
func (DiscardLocalPayload) messageType() MessageType      { return TypeDiscardLocal }

// NewRequestMarkdown builds a request-markdown message.
func NewRequestMarkdown(requestID string) Message {
	return Message{Type: TypeRequestMarkdown, Payload: RequestMarkdownPayload{RequestID: requestID}}
}

// NewCanonicalMarkdown builds a canonical-markdown reply.
func NewCanonicalMarkdown(requestID, markdown string) Message {
	return Message{Type: TypeCanonicalMarkdown, Payload: CanonicalMarkdownPayload{RequestID: requestID, Markdown: markdown}}
}

// NewNeedsInit builds a needs-init message.
func NewNeedsInit(gistID, filename string) Message {
	return Message{Type: TypeNeedsInit, Payload: NeedsInitPayload{GistID: gistID, Filename: filename}}
}

// NewReloadRemote builds a reload-remote message.
func NewReloadRemote(markdown string) Message {
	return Message{Type: TypeReloadRemote, Payload: ReloadRemotePayload{Markdown: markdown}}
}

// NewRemoteChanged builds a remote-changed notification.
func NewRemoteChanged(remoteMarkdown string) Message {
	return Message{Type: TypeRemoteChanged, Payload: RemoteChangedPayload{RemoteMarkdown: remoteMarkdown}}
}

// NewSyncStatus builds a sync-status message.
func NewSyncStatus(state SyncState, detail string) Message {
	return Message{Type: TypeSyncStatus, Payload: SyncStatusPayload{State: state, Detail: detail}}
}

// NewErrorRetrying builds an error-retrying message. nextRetryAt is
// epoch milliseconds.
func NewErrorRetrying(attempt int, nextRetryAt int64) Message {
	return Message{Type: TypeErrorRetrying, Payload: ErrorRetryingPayload{Attempt: attempt, NextRetryAt: nextRetryAt}}
}

// NewConflict builds a conflict message carrying both texts verbatim.
func NewConflict(localMarkdown, remoteMarkdown string) Message {
	return Message{Type: TypeConflict, Payload: ConflictPayload{LocalMarkdown: localMarkdown, RemoteMarkdown: remoteMarkdown}}
}

// NewPushLocal builds a push-local resolution message.
func NewPushLocal() Message {
	return Message{Type: TypePushLocal, Payload: PushLocalPayload{}}
}

// NewDiscardLocal builds a discard-local resolution message.
func NewDiscardLocal() Message {
	return Message{Type: TypeDiscardLocal, Payload: DiscardLocalPayload{}}
}
