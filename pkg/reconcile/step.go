package reconcile

import (
	"github.com/gistsync/gistsync/pkg/protocol"
)

// Step is the pure transition function. It never blocks, never calls
// collaborators, and is safe to drive from tests event by event.
func Step(s State, ev Event) (State, []Effect) {
	if s.Closed {
		return s, nil
	}

	switch e := ev.(type) {
	case EvClose:
		s.Closed = true
		return s, nil

	case EvNeedsInit:
		// At most once per document per session: duplicate needs-init
		// must not seed twice.
		if s.Seeded || s.SeedPending {
			return s, nil
		}
		s.SeedPending = true
		if e.GistID != "" {
			s.GistID = e.GistID
		}
		s.Filename = e.Filename
		return s, []Effect{FxFetchCanonical{GistID: s.GistID}}

	case EvSeedResult:
		if !s.SeedPending {
			return s, nil
		}
		s.SeedPending = false
		s.Seeded = true
		if !e.Found {
			// No prior content, or the fetch failed: the document
			// stays blank and the status stays unset.
			return s, nil
		}
		s.LocalMarkdown = e.Content
		s.Dirty = false
		s.Status = Saved
		return s, []Effect{FxSeedDocument{Markdown: e.Content}}

	case EvRequestMarkdown:
		// Always answered, even in ErrorRetrying or Conflict: the
		// reply reflects the current local text, not the reconciled
		// text.
		s.LocalMarkdown = e.Local
		return s, []Effect{FxSend{Message: protocol.NewCanonicalMarkdown(e.RequestID, e.Local)}}

	case EvLocalChanged:
		if e.Markdown == s.LocalMarkdown {
			return s, nil
		}
		s.LocalMarkdown = e.Markdown
		s.Dirty = true
		if s.Status == Saved || s.Status == Uninitialized {
			s.Status = Syncing
		}
		// No message emitted: the room pulls via request-markdown,
		// debounced on its side, so keystrokes never flood the wire.
		return s, nil

	case EvReloadRemote:
		return reloadRemote(s, e.Markdown, true)

	case EvRemoteChanged:
		if !s.Dirty {
			// Advisory only: refetch canonical content rather than
			// trusting the carried text for a direct apply.
			return s, []Effect{FxFetchCanonical{GistID: s.GistID, Refresh: true}}
		}
		return reloadRemote(s, e.RemoteMarkdown, false)

	case EvSyncStatus:
		if s.Status == Conflict {
			// Conflict takes precedence; hold the room's status until
			// the conflict resolves.
			s.BufferedStatus = &protocol.SyncStatusPayload{State: e.State, Detail: e.Detail}
			return s, nil
		}
		s.Status = statusOf(e.State)
		if s.Status == Saved {
			s.Dirty = false
			s.Retry = RetryState{}
		}
		return s, nil

	case EvErrorRetrying:
		s.Retry = RetryState{Attempt: e.Attempt, NextRetryAt: e.NextRetryAt}
		if s.Status == Conflict {
			s.BufferedStatus = &protocol.SyncStatusPayload{State: protocol.SyncErrorRetrying}
			return s, nil
		}
		s.Status = ErrorRetrying
		return s, nil

	case EvConflict:
		s.Status = Conflict
		s.Conflict = &ConflictRecord{LocalMarkdown: e.LocalMarkdown, RemoteMarkdown: e.RemoteMarkdown}
		s.Dirty = true
		return s, nil

	case EvPushLocal:
		// Idempotent: a second push-local before new edits is a no-op.
		if s.Conflict == nil {
			return s, nil
		}
		s.LocalMarkdown = s.Conflict.LocalMarkdown
		s.Conflict = nil
		s.BufferedStatus = nil
		s.Dirty = true
		s.Status = Syncing
		return s, []Effect{FxSend{Message: protocol.NewPushLocal()}}

	case EvDiscardLocal:
		if s.Conflict == nil {
			return s, nil
		}
		remote := s.Conflict.RemoteMarkdown
		s.Conflict = nil
		s.LocalMarkdown = remote
		s.Dirty = false
		s.Retry = RetryState{}
		if s.BufferedStatus != nil {
			s.Status = statusOf(s.BufferedStatus.State)
			s.BufferedStatus = nil
		} else {
			s.Status = Saved
		}
		return s, []Effect{
			FxApplyRemote{Markdown: remote},
			FxSend{Message: protocol.NewDiscardLocal()},
		}
	}

	return s, nil
}

// reloadRemote runs the divergence comparison shared by reload-remote
// and a dirty remote-changed. apply controls whether a clean session
// overwrites its document with the remote text.
func reloadRemote(s State, remote string, apply bool) (State, []Effect) {
	if !s.Dirty {
		s.LocalMarkdown = remote
		s.Status = Saved
		s.Conflict = nil
		s.Retry = RetryState{}
		if apply {
			return s, []Effect{FxApplyRemote{Markdown: remote}}
		}
		return s, nil
	}

	if s.LocalMarkdown == remote {
		// Both sides arrived at the same text: agreement, not conflict.
		s.Dirty = false
		s.Status = Saved
		s.Conflict = nil
		s.Retry = RetryState{}
		return s, nil
	}

	// Byte-for-byte divergence. Never silently lose local edits.
	s.Status = Conflict
	s.Conflict = &ConflictRecord{LocalMarkdown: s.LocalMarkdown, RemoteMarkdown: remote}
	return s, nil
}
