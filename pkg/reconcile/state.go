package reconcile

import (
	"time"

	"github.com/gistsync/gistsync/pkg/protocol"
)

// Status is the machine's externally observable state for one open
// document on one client. Exactly one Status is active at a time.
type Status int

const (
	// Uninitialized is the initial state, before any seed or sync.
	Uninitialized Status = iota
	// Syncing means a local change awaits persistence.
	Syncing
	// Saved means local and canonical text agree.
	Saved
	// ErrorRetrying means the room reported a transient save failure
	// and will retry on its own schedule.
	ErrorRetrying
	// Conflict means local and remote texts diverged and an explicit
	// resolution is required.
	Conflict
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Syncing:
		return "syncing"
	case Saved:
		return "saved"
	case ErrorRetrying:
		return "error-retrying"
	case Conflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// ConflictRecord holds both divergent texts verbatim. It is created
// when local and remote have both changed since the last agreed state
// and destroyed by PushLocal or DiscardLocal.
type ConflictRecord struct {
	LocalMarkdown  string
	RemoteMarkdown string
}

// RetryState mirrors the room's advisory retry schedule. The machine
// only reports it; retry initiation belongs to the room.
type RetryState struct {
	Attempt     int
	NextRetryAt time.Time
}

// State is the full machine state. Step treats it as immutable input
// and returns the successor; callers must not share a State between
// concurrent Step calls.
type State struct {
	// GistID and Filename identify the document. Filename is learned
	// from needs-init.
	GistID   string
	Filename string

	Status Status

	// Seeded is set once needs-init handling completes; duplicate
	// needs-init messages are then idempotent.
	Seeded bool
	// SeedPending is set while the initial content fetch is outstanding.
	SeedPending bool

	// LocalMarkdown is the last markdown snapshot seen from the local
	// document. Dirty marks it as unsynced since the last agreed state.
	LocalMarkdown string
	Dirty         bool

	Conflict *ConflictRecord
	Retry    RetryState

	// BufferedStatus holds a sync-status received while a conflict is
	// pending; conflict takes precedence until resolved.
	BufferedStatus *protocol.SyncStatusPayload

	// Closed guards against state mutation after the session closes.
	Closed bool
}

// NewState returns the initial state for one open document.
func NewState(gistID string) State {
	return State{GistID: gistID, Status: Uninitialized}
}

// statusOf maps a wire sync state onto a machine status.
func statusOf(s protocol.SyncState) Status {
	switch s {
	case protocol.SyncSaved:
		return Saved
	case protocol.SyncSaving, protocol.SyncPendingSync:
		return Syncing
	case protocol.SyncErrorRetrying:
		return ErrorRetrying
	case protocol.SyncConflict:
		return Conflict
	}
	return Uninitialized
}
