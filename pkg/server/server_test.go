package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gistsync/gistsync/pkg/client"
	"github.com/gistsync/gistsync/pkg/gist"
	"github.com/gistsync/gistsync/pkg/reconcile"
	"github.com/gistsync/gistsync/pkg/room"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestServer(t *testing.T) (*httptest.Server, gist.Store) {
	t.Helper()
	store := gist.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	cfg := room.Config{
		Debounce:            10 * time.Millisecond,
		SaveInitialInterval: 10 * time.Millisecond,
		SaveMaxInterval:     20 * time.Millisecond,
		SaveMaxElapsed:      time.Second,
	}
	hub := room.NewHub(store, cfg, discard)
	t.Cleanup(hub.Close)

	s := New(store, hub, DefaultConfig(), discard)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, store
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d; want 200", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf(`body = %v; want {"status":"ok"}`, body)
	}
}

func TestGetGist(t *testing.T) {
	srv, store := newTestServer(t)
	store.Save(context.Background(), "known", "# Content")

	t.Run("known", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/gists/known")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		defer resp.Body.Close()

		var body struct {
			Content *string `json:"content"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Content == nil || *body.Content != "# Content" {
			t.Errorf("content = %v; want # Content", body.Content)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/gists/missing")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d; want 200", resp.StatusCode)
		}
		var body struct {
			Content *string `json:"content"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Content != nil {
			t.Errorf("content = %q; want null", *body.Content)
		}
	})
}

func TestMetricsExposed(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d; want 200", resp.StatusCode)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestEndToEndSaveCycle(t *testing.T) {
	srv, store := newTestServer(t)

	a, err := client.Dial(context.Background(), srv.URL, "abc123",
		client.WithLogger(discard))
	if err != nil {
		t.Fatalf("dial a: %v", err)
	}
	defer a.Close()

	// A joins an unknown gist, is asked to seed, and falls back to
	// blank since the store has nothing.
	waitFor(t, "seed settled", func() bool { return a.Markdown() == "" })

	a.SetMarkdown("# Hello")

	// The room debounces, pulls the markdown from A, and persists it.
	waitFor(t, "persisted content", func() bool {
		content, ok, _ := store.Load(context.Background(), "abc123")
		return ok && content == "# Hello"
	})
	waitFor(t, "a saved", func() bool { return a.Status() == reconcile.Saved })

	// B joins later and receives the canonical text outright.
	b, err := client.Dial(context.Background(), srv.URL, "abc123",
		client.WithLogger(discard))
	if err != nil {
		t.Fatalf("dial b: %v", err)
	}
	defer b.Close()

	waitFor(t, "b caught up", func() bool { return b.Markdown() == "# Hello" })
	if got := b.Status(); got != reconcile.Saved {
		t.Errorf("b.Status() = %v; want Saved", got)
	}
}

func TestEndToEndUpdateRelay(t *testing.T) {
	srv, store := newTestServer(t)
	store.Save(context.Background(), "abc123", "# Base")

	a, err := client.Dial(context.Background(), srv.URL, "abc123", client.WithLogger(discard))
	if err != nil {
		t.Fatalf("dial a: %v", err)
	}
	defer a.Close()
	b, err := client.Dial(context.Background(), srv.URL, "abc123", client.WithLogger(discard))
	if err != nil {
		t.Fatalf("dial b: %v", err)
	}
	defer b.Close()

	waitFor(t, "a base", func() bool { return a.Markdown() == "# Base" })
	waitFor(t, "b base", func() bool { return b.Markdown() == "# Base" })

	a.SetMarkdown("# Base, extended")

	// The snapshot reaches B over the document channel without
	// waiting for a save.
	waitFor(t, "relay to b", func() bool { return b.Markdown() == "# Base, extended" })
}
