package reconcile

import (
	"testing"
	"time"

	"github.com/gistsync/gistsync/pkg/protocol"
)

func TestNeedsInitNoPriorContent(t *testing.T) {
	s := NewState("abc123")

	s, fx := Step(s, EvNeedsInit{GistID: "abc123", Filename: "README.md"})
	if len(fx) != 1 {
		t.Fatalf("effects = %v; want one fetch", fx)
	}
	if f, ok := fx[0].(FxFetchCanonical); !ok || f.GistID != "abc123" || f.Refresh {
		t.Fatalf("effect = %+v; want seed fetch for abc123", fx[0])
	}

	// Fetch returned {} — no content field.
	s, fx = Step(s, EvSeedResult{Found: false})
	if len(fx) != 0 {
		t.Errorf("effects = %v; want none", fx)
	}
	if s.Status != Uninitialized {
		t.Errorf("Status = %v; want Uninitialized", s.Status)
	}
	if s.LocalMarkdown != "" {
		t.Errorf("LocalMarkdown = %q; want blank", s.LocalMarkdown)
	}
	if !s.Seeded {
		t.Error("Seeded = false; want true after fetch completes")
	}
}

func TestNeedsInitWithPriorContent(t *testing.T) {
	s := NewState("abc123")
	s, _ = Step(s, EvNeedsInit{GistID: "abc123", Filename: "README.md"})

	s, fx := Step(s, EvSeedResult{Content: "# Hi", Found: true})
	if len(fx) != 1 {
		t.Fatalf("effects = %v; want one seed", fx)
	}
	if f, ok := fx[0].(FxSeedDocument); !ok || f.Markdown != "# Hi" {
		t.Fatalf("effect = %+v; want seed with %q", fx[0], "# Hi")
	}
	if s.Status != Saved {
		t.Errorf("Status = %v; want Saved", s.Status)
	}
	if s.LocalMarkdown != "# Hi" || s.Dirty {
		t.Errorf("state = {local:%q dirty:%v}; want {# Hi false}", s.LocalMarkdown, s.Dirty)
	}
}

func TestNeedsInitIdempotent(t *testing.T) {
	s := NewState("abc123")
	s, fx := Step(s, EvNeedsInit{GistID: "abc123", Filename: "README.md"})
	if len(fx) != 1 {
		t.Fatalf("first needs-init effects = %v; want one fetch", fx)
	}

	// Duplicate while the fetch is outstanding.
	s, fx = Step(s, EvNeedsInit{GistID: "abc123", Filename: "README.md"})
	if len(fx) != 0 {
		t.Errorf("duplicate needs-init effects = %v; want none", fx)
	}

	s, _ = Step(s, EvSeedResult{Content: "# Hi", Found: true})

	// Duplicate after seeding completed.
	_, fx = Step(s, EvNeedsInit{GistID: "abc123", Filename: "README.md"})
	if len(fx) != 0 {
		t.Errorf("post-seed needs-init effects = %v; want none", fx)
	}
}

func TestRequestMarkdownAlwaysAnswered(t *testing.T) {
	for _, status := range []Status{Uninitialized, Syncing, Saved, ErrorRetrying, Conflict} {
		s := NewState("abc123")
		s.Status = status

		_, fx := Step(s, EvRequestMarkdown{RequestID: "r1", Local: "live text"})
		if len(fx) != 1 {
			t.Fatalf("status %v: effects = %v; want one reply", status, fx)
		}
		send, ok := fx[0].(FxSend)
		if !ok {
			t.Fatalf("status %v: effect = %+v; want FxSend", status, fx[0])
		}
		p, ok := send.Message.Payload.(protocol.CanonicalMarkdownPayload)
		if !ok || p.RequestID != "r1" || p.Markdown != "live text" {
			t.Errorf("status %v: reply = %+v; want {r1, live text}", status, send.Message.Payload)
		}
	}
}

func TestLocalChangeSavedToSyncing(t *testing.T) {
	s := NewState("abc123")
	s.Status = Saved
	s.LocalMarkdown = "a"

	s, fx := Step(s, EvLocalChanged{Markdown: "ab"})
	if len(fx) != 0 {
		t.Errorf("effects = %v; want none (pull-based, room debounces)", fx)
	}
	if s.Status != Syncing || !s.Dirty {
		t.Errorf("state = {%v dirty:%v}; want {Syncing true}", s.Status, s.Dirty)
	}
}

func TestReloadRemoteClean(t *testing.T) {
	s := NewState("abc123")
	s.Status = Saved
	s.LocalMarkdown = "old"

	s, fx := Step(s, EvReloadRemote{Markdown: "new"})
	if len(fx) != 1 {
		t.Fatalf("effects = %v; want one apply", fx)
	}
	if f, ok := fx[0].(FxApplyRemote); !ok || f.Markdown != "new" {
		t.Fatalf("effect = %+v; want apply %q", fx[0], "new")
	}
	if s.Status != Saved || s.Conflict != nil {
		t.Errorf("state = {%v conflict:%v}; want {Saved nil}", s.Status, s.Conflict)
	}
}

func TestReloadRemoteConflictCreation(t *testing.T) {
	s := NewState("abc123")
	s.Status = Syncing
	s.LocalMarkdown = "L"
	s.Dirty = true

	s, fx := Step(s, EvReloadRemote{Markdown: "R"})
	if len(fx) != 0 {
		t.Errorf("effects = %v; want none (no silent overwrite)", fx)
	}
	if s.Status != Conflict {
		t.Fatalf("Status = %v; want Conflict", s.Status)
	}
	if s.Conflict == nil || s.Conflict.LocalMarkdown != "L" || s.Conflict.RemoteMarkdown != "R" {
		t.Errorf("Conflict = %+v; want {L R}", s.Conflict)
	}
}

func TestReloadRemoteDirtyButEqual(t *testing.T) {
	s := NewState("abc123")
	s.Status = Syncing
	s.LocalMarkdown = "same"
	s.Dirty = true

	s, _ = Step(s, EvReloadRemote{Markdown: "same"})
	if s.Status != Saved || s.Conflict != nil || s.Dirty {
		t.Errorf("state = {%v conflict:%v dirty:%v}; want {Saved nil false}", s.Status, s.Conflict, s.Dirty)
	}
}

func TestWhitespaceDivergenceIsConflict(t *testing.T) {
	s := NewState("abc123")
	s.LocalMarkdown = "# Hi\n"
	s.Dirty = true

	s, _ = Step(s, EvReloadRemote{Markdown: "# Hi"})
	if s.Status != Conflict {
		t.Errorf("Status = %v; want Conflict (comparison is byte-for-byte)", s.Status)
	}
}

func TestRemoteChangedCleanRefetches(t *testing.T) {
	s := NewState("abc123")
	s.Status = Saved
	s.LocalMarkdown = "old"

	s, fx := Step(s, EvRemoteChanged{RemoteMarkdown: "new"})
	if len(fx) != 1 {
		t.Fatalf("effects = %v; want one refetch", fx)
	}
	f, ok := fx[0].(FxFetchCanonical)
	if !ok || !f.Refresh || f.GistID != "abc123" {
		t.Fatalf("effect = %+v; want refresh fetch", fx[0])
	}
	// Notification never applies the carried text directly.
	if s.LocalMarkdown != "old" {
		t.Errorf("LocalMarkdown = %q; want unchanged", s.LocalMarkdown)
	}
}

func TestRemoteChangedDirtyConflicts(t *testing.T) {
	s := NewState("abc123")
	s.Status = Syncing
	s.LocalMarkdown = "L"
	s.Dirty = true

	s, fx := Step(s, EvRemoteChanged{RemoteMarkdown: "R"})
	if len(fx) != 0 {
		t.Errorf("effects = %v; want none", fx)
	}
	if s.Status != Conflict || s.Conflict == nil || s.Conflict.RemoteMarkdown != "R" {
		t.Errorf("state = {%v %+v}; want conflict with R", s.Status, s.Conflict)
	}
}

func TestErrorRetrying(t *testing.T) {
	s := NewState("abc123")
	s.Status = Saved

	at := time.UnixMilli(1700000000000)
	s, _ = Step(s, EvErrorRetrying{Attempt: 2, NextRetryAt: at})
	if s.Status != ErrorRetrying {
		t.Errorf("Status = %v; want ErrorRetrying", s.Status)
	}
	if s.Retry.Attempt != 2 || !s.Retry.NextRetryAt.Equal(at) {
		t.Errorf("Retry = %+v; want {2 %v}", s.Retry, at)
	}
}

func TestSyncStatusBufferedDuringConflict(t *testing.T) {
	s := NewState("abc123")
	s.LocalMarkdown = "L"
	s.Dirty = true
	s, _ = Step(s, EvReloadRemote{Markdown: "R"})
	if s.Status != Conflict {
		t.Fatalf("Status = %v; want Conflict", s.Status)
	}

	s, _ = Step(s, EvSyncStatus{State: protocol.SyncSaving})
	if s.Status != Conflict {
		t.Errorf("Status = %v; want Conflict to take precedence", s.Status)
	}
	if s.BufferedStatus == nil || s.BufferedStatus.State != protocol.SyncSaving {
		t.Errorf("BufferedStatus = %+v; want buffered saving", s.BufferedStatus)
	}

	// Resolution surfaces the buffered status.
	s, _ = Step(s, EvDiscardLocal{})
	if s.Status != Syncing {
		t.Errorf("Status = %v; want Syncing from buffered saving", s.Status)
	}
	if s.BufferedStatus != nil {
		t.Error("BufferedStatus not cleared after resolution")
	}
}

func TestPushLocalResolution(t *testing.T) {
	s := NewState("abc123")
	s.LocalMarkdown = "L"
	s.Dirty = true
	s, _ = Step(s, EvReloadRemote{Markdown: "R"})

	s, fx := Step(s, EvPushLocal{})
	if len(fx) != 1 {
		t.Fatalf("effects = %v; want one send", fx)
	}
	send, ok := fx[0].(FxSend)
	if !ok || send.Message.Type != protocol.TypePushLocal {
		t.Fatalf("effect = %+v; want push-local message", fx[0])
	}
	if s.Status != Syncing || s.Conflict != nil || s.LocalMarkdown != "L" {
		t.Errorf("state = {%v %v local:%q}; want {Syncing nil L}", s.Status, s.Conflict, s.LocalMarkdown)
	}

	// Idempotent before new edits.
	_, fx = Step(s, EvPushLocal{})
	if len(fx) != 0 {
		t.Errorf("second push-local effects = %v; want none", fx)
	}
}

func TestDiscardLocalResolution(t *testing.T) {
	s := NewState("abc123")
	s.LocalMarkdown = "L"
	s.Dirty = true
	s, _ = Step(s, EvReloadRemote{Markdown: "R"})

	s, fx := Step(s, EvDiscardLocal{})
	if len(fx) != 2 {
		t.Fatalf("effects = %v; want apply + send", fx)
	}
	apply, ok := fx[0].(FxApplyRemote)
	if !ok || apply.Markdown != "R" {
		t.Fatalf("effect[0] = %+v; want apply R", fx[0])
	}
	if send, ok := fx[1].(FxSend); !ok || send.Message.Type != protocol.TypeDiscardLocal {
		t.Fatalf("effect[1] = %+v; want discard-local message", fx[1])
	}
	if s.Status != Saved || s.Conflict != nil || s.LocalMarkdown != "R" || s.Dirty {
		t.Errorf("state = %+v; want saved on R", s)
	}

	_, fx = Step(s, EvDiscardLocal{})
	if len(fx) != 0 {
		t.Errorf("second discard-local effects = %v; want none", fx)
	}
}

func TestConflictMessage(t *testing.T) {
	s := NewState("abc123")
	s, _ = Step(s, EvConflict{LocalMarkdown: "L", RemoteMarkdown: "R"})
	if s.Status != Conflict || s.Conflict == nil {
		t.Fatalf("state = {%v %v}; want conflict", s.Status, s.Conflict)
	}
	if s.Conflict.LocalMarkdown != "L" || s.Conflict.RemoteMarkdown != "R" {
		t.Errorf("Conflict = %+v; want {L R}", s.Conflict)
	}
}

func TestClosedDiscardsEverything(t *testing.T) {
	s := NewState("abc123")
	s, _ = Step(s, EvNeedsInit{GistID: "abc123", Filename: "README.md"})
	s, _ = Step(s, EvClose{})

	before := s
	for _, ev := range []Event{
		EvSeedResult{Content: "# Hi", Found: true},
		EvReloadRemote{Markdown: "x"},
		EvLocalChanged{Markdown: "y"},
		EvRequestMarkdown{RequestID: "r1", Local: "z"},
		EvPushLocal{},
	} {
		next, fx := Step(s, ev)
		if len(fx) != 0 {
			t.Errorf("%T after close: effects = %v; want none", ev, fx)
		}
		if next.Status != before.Status || next.LocalMarkdown != before.LocalMarkdown {
			t.Errorf("%T after close mutated state", ev)
		}
	}
}
