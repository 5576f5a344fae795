package document

import "testing"

func TestMemoryDocumentSetAndGet(t *testing.T) {
	d := NewMemoryDocument("# Hi")
	if got := d.Markdown(); got != "# Hi" {
		t.Errorf("Markdown() = %q; want %q", got, "# Hi")
	}

	d.SetMarkdown("# Bye")
	if got := d.Markdown(); got != "# Bye" {
		t.Errorf("Markdown() = %q; want %q", got, "# Bye")
	}
}

func TestMemoryDocumentSubscribe(t *testing.T) {
	d := NewMemoryDocument("")

	var got []string
	cancel := d.Subscribe(func(md string) {
		got = append(got, md)
	})

	d.SetMarkdown("a")
	d.SetMarkdown("a") // identical snapshot, no notification
	d.SetMarkdown("b")

	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("notifications = %v; want [a b]", got)
	}

	cancel()
	d.SetMarkdown("c")
	if len(got) != 2 {
		t.Errorf("got notification after cancel: %v", got)
	}

	cancel() // idempotent
}

func TestMemoryDocumentCallbackMayRead(t *testing.T) {
	d := NewMemoryDocument("")
	var seen string
	d.Subscribe(func(string) {
		seen = d.Markdown()
	})
	d.SetMarkdown("x")
	if seen != "x" {
		t.Errorf("callback read %q; want %q", seen, "x")
	}
}
