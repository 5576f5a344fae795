package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gistsync/gistsync/pkg/document"
	"github.com/gistsync/gistsync/pkg/protocol"
)

// sendRecorder records outbound messages.
type sendRecorder struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (r *sendRecorder) send(m protocol.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *sendRecorder) all() []protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]protocol.Message, len(r.msgs))
	copy(out, r.msgs)
	return out
}

func staticFetch(content string, ok bool) FetchFunc {
	return func(ctx context.Context, gistID string) (string, bool, error) {
		return content, ok, nil
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestMachineSeedsFromNeedsInit(t *testing.T) {
	doc := document.NewMemoryDocument("")
	rec := &sendRecorder{}
	m := NewMachine("abc123", doc, staticFetch("# Hi", true), rec.send, nil)
	defer m.Close()

	if err := m.HandleMessage(protocol.NewNeedsInit("abc123", "README.md")); err != nil {
		t.Fatalf("HandleMessage() error: %v", err)
	}

	waitFor(t, func() bool { return m.Status() == Saved })
	if got := doc.Markdown(); got != "# Hi" {
		t.Errorf("document = %q; want seeded %q", got, "# Hi")
	}
	// Seeding is not a user edit: no dirty transition back to Syncing.
	if m.Status() != Saved {
		t.Errorf("Status = %v; want Saved", m.Status())
	}
}

func TestMachineBlankFallbackOnFetchError(t *testing.T) {
	doc := document.NewMemoryDocument("")
	rec := &sendRecorder{}
	fetch := func(ctx context.Context, gistID string) (string, bool, error) {
		return "", false, errors.New("gist API unreachable")
	}
	m := NewMachine("abc123", doc, fetch, rec.send, nil)
	defer m.Close()

	if err := m.HandleMessage(protocol.NewNeedsInit("abc123", "README.md")); err != nil {
		t.Fatalf("HandleMessage() error: %v", err)
	}

	// The seed attempt completes as "no prior content".
	waitFor(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.state.Seeded
	})
	if doc.Markdown() != "" {
		t.Errorf("document = %q; want blank", doc.Markdown())
	}
	if m.Status() != Uninitialized {
		t.Errorf("Status = %v; want Uninitialized", m.Status())
	}
}

func TestMachineAnswersRequestMarkdown(t *testing.T) {
	doc := document.NewMemoryDocument("current text")
	rec := &sendRecorder{}
	m := NewMachine("abc123", doc, staticFetch("", false), rec.send, nil)
	defer m.Close()

	if err := m.HandleMessage(protocol.NewRequestMarkdown("r1")); err != nil {
		t.Fatalf("HandleMessage() error: %v", err)
	}

	msgs := rec.all()
	if len(msgs) != 1 {
		t.Fatalf("sent %d messages; want exactly 1", len(msgs))
	}
	p, ok := msgs[0].Payload.(protocol.CanonicalMarkdownPayload)
	if !ok || p.RequestID != "r1" || p.Markdown != "current text" {
		t.Errorf("reply = %+v; want {r1, current text}", msgs[0].Payload)
	}
}

func TestMachineRejectsMisdirected(t *testing.T) {
	doc := document.NewMemoryDocument("")
	rec := &sendRecorder{}
	m := NewMachine("abc123", doc, staticFetch("", false), rec.send, nil)
	defer m.Close()

	err := m.HandleMessage(protocol.NewPushLocal())
	if !errors.Is(err, ErrMisdirected) {
		t.Errorf("HandleMessage(push-local) error = %v; want ErrMisdirected", err)
	}
	if m.Status() != Uninitialized {
		t.Errorf("Status = %v; misdirected message must not change state", m.Status())
	}
}

func TestMachineLocalEditThenConflict(t *testing.T) {
	doc := document.NewMemoryDocument("")
	rec := &sendRecorder{}
	m := NewMachine("abc123", doc, staticFetch("base", true), rec.send, nil)
	defer m.Close()

	m.HandleMessage(protocol.NewNeedsInit("abc123", "README.md"))
	waitFor(t, func() bool { return m.Status() == Saved })

	doc.SetMarkdown("local edit")
	waitFor(t, func() bool { return m.Status() == Syncing })

	m.HandleMessage(protocol.NewReloadRemote("remote edit"))
	if m.Status() != Conflict {
		t.Fatalf("Status = %v; want Conflict", m.Status())
	}
	c := m.ConflictRecord()
	if c == nil || c.LocalMarkdown != "local edit" || c.RemoteMarkdown != "remote edit" {
		t.Fatalf("ConflictRecord = %+v; want both texts preserved", c)
	}
	// The local document is untouched while the conflict is pending.
	if doc.Markdown() != "local edit" {
		t.Errorf("document = %q; want local edit kept", doc.Markdown())
	}

	m.DiscardLocal()
	if m.Status() != Saved {
		t.Errorf("Status = %v; want Saved after discard", m.Status())
	}
	if doc.Markdown() != "remote edit" {
		t.Errorf("document = %q; want remote adopted", doc.Markdown())
	}

	var sawDiscard bool
	for _, msg := range rec.all() {
		if msg.Type == protocol.TypeDiscardLocal {
			sawDiscard = true
		}
	}
	if !sawDiscard {
		t.Error("discard-local message not sent to room")
	}
}

func TestMachineErrorRetrying(t *testing.T) {
	doc := document.NewMemoryDocument("")
	rec := &sendRecorder{}
	m := NewMachine("abc123", doc, staticFetch("", false), rec.send, nil)
	defer m.Close()

	m.HandleMessage(protocol.NewErrorRetrying(2, 1700000000000))
	if m.Status() != ErrorRetrying {
		t.Errorf("Status = %v; want ErrorRetrying", m.Status())
	}
	rs := m.RetryState()
	if rs.Attempt != 2 || rs.NextRetryAt.UnixMilli() != 1700000000000 {
		t.Errorf("RetryState = %+v; want attempt 2 at 1700000000000", rs)
	}
}

func TestMachineCloseDiscardsLateFetch(t *testing.T) {
	doc := document.NewMemoryDocument("")
	rec := &sendRecorder{}
	release := make(chan struct{})
	fetch := func(ctx context.Context, gistID string) (string, bool, error) {
		<-release
		return "# Late", true, nil
	}
	m := NewMachine("abc123", doc, fetch, rec.send, nil)

	m.HandleMessage(protocol.NewNeedsInit("abc123", "README.md"))
	m.Close()
	close(release)

	// The fetch result arrives after close and must be dropped.
	time.Sleep(50 * time.Millisecond)
	if doc.Markdown() != "" {
		t.Errorf("document = %q; want untouched after close", doc.Markdown())
	}
}
