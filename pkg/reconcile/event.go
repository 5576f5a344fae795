package reconcile

import (
	"time"

	"github.com/gistsync/gistsync/pkg/protocol"
)

// Event is one input to Step: a decoded room message, a local
// document change, a boundary fetch result, or a user resolution.
type Event interface {
	event()
}

// EvNeedsInit is the room's needs-init message.
type EvNeedsInit struct {
	GistID   string
	Filename string
}

// EvSeedResult is the outcome of the initial content fetch issued for
// needs-init. A fetch failure is delivered as Found=false: degraded
// blank-document fallback, not an error.
type EvSeedResult struct {
	Content string
	Found   bool
}

// EvRequestMarkdown is the room's request-markdown message. Local is
// the live document text read at event time; the reply reflects it
// even in ErrorRetrying or Conflict.
type EvRequestMarkdown struct {
	RequestID string
	Local     string
}

// EvReloadRemote is the room's reload-remote message, carrying remote
// text to apply. Refresh fetch results are also delivered as this
// event.
type EvReloadRemote struct {
	Markdown string
}

// EvRemoteChanged is the room's remote-changed notification. It is
// advisory: a clean session refetches canonical content instead of
// applying the carried text.
type EvRemoteChanged struct {
	RemoteMarkdown string
}

// EvSyncStatus is the room's view of save progress.
type EvSyncStatus struct {
	State  protocol.SyncState
	Detail string
}

// EvErrorRetrying is the room's transient-failure report.
type EvErrorRetrying struct {
	Attempt     int
	NextRetryAt time.Time
}

// EvConflict is the room's conflict message carrying both texts.
type EvConflict struct {
	LocalMarkdown  string
	RemoteMarkdown string
}

// EvLocalChanged is a change event from the collaborative document.
type EvLocalChanged struct {
	Markdown string
}

// EvPushLocal is the user resolving a conflict by keeping local text.
type EvPushLocal struct{}

// EvDiscardLocal is the user resolving a conflict by adopting remote
// text.
type EvDiscardLocal struct{}

// EvClose marks the session closed. Every later event, including
// in-flight fetch results, is discarded without state mutation.
type EvClose struct{}

func (EvNeedsInit) event()       {}
func (EvSeedResult) event()      {}
func (EvRequestMarkdown) event() {}
func (EvReloadRemote) event()    {}
func (EvRemoteChanged) event()   {}
func (EvSyncStatus) event()      {}
func (EvErrorRetrying) event()   {}
func (EvConflict) event()        {}
func (EvLocalChanged) event()    {}
func (EvPushLocal) event()       {}
func (EvDiscardLocal) event()    {}
func (EvClose) event()           {}

// Effect is one output of Step: an outbound message or a call to an
// external collaborator. The Machine executes effects; Step never
// performs them.
type Effect interface {
	effect()
}

// FxSend sends a message to the room.
type FxSend struct {
	Message protocol.Message
}

// FxSeedDocument seeds the local document with initial canonical
// content. Seeding must not mark the document dirty.
type FxSeedDocument struct {
	Markdown string
}

// FxApplyRemote overwrites the local document with remote text.
type FxApplyRemote struct {
	Markdown string
}

// FxFetchCanonical fetches canonical content from the persistence
// collaborator. Refresh distinguishes a remote-changed refetch (result
// delivered as EvReloadRemote) from needs-init seeding (result
// delivered as EvSeedResult).
type FxFetchCanonical struct {
	GistID  string
	Refresh bool
}

func (FxSend) effect()           {}
func (FxSeedDocument) effect()   {}
func (FxApplyRemote) effect()    {}
func (FxFetchCanonical) effect() {}
