// Package document defines the boundary to the collaborative-document
// engine. The reconciliation core only reads and writes a markdown
// string view of the shared document and listens for change events;
// concurrent character-level merging belongs to the engine behind the
// Document interface (a CRDT or equivalent).
package document

import "sync"

// Document is a markdown view of one shared collaborative document.
// Implementations must be safe for concurrent use.
type Document interface {
	// Markdown returns the current markdown snapshot.
	Markdown() string

	// SetMarkdown replaces the document content. Subscribers are
	// notified with the new snapshot.
	SetMarkdown(markdown string)

	// Subscribe registers a change callback and returns a cancel
	// function. The callback receives the markdown snapshot after
	// each change. Cancel is idempotent.
	Subscribe(fn func(markdown string)) (cancel func())
}

// MemoryDocument is a snapshot-based Document. It carries whole
// markdown states rather than merging concurrent edits; the merge
// algorithm is the engine's job, not this package's.
type MemoryDocument struct {
	mu     sync.RWMutex
	text   string
	subs   map[int]func(string)
	nextID int
}

// NewMemoryDocument creates a document with the given initial text.
func NewMemoryDocument(text string) *MemoryDocument {
	return &MemoryDocument{
		text: text,
		subs: make(map[int]func(string)),
	}
}

// Markdown returns the current markdown snapshot.
func (d *MemoryDocument) Markdown() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.text
}

// SetMarkdown replaces the content and notifies subscribers.
// Setting an identical snapshot is a no-op and does not notify.
func (d *MemoryDocument) SetMarkdown(markdown string) {
	d.mu.Lock()
	if d.text == markdown {
		d.mu.Unlock()
		return
	}
	d.text = markdown
	subs := make([]func(string), 0, len(d.subs))
	for _, fn := range d.subs {
		subs = append(subs, fn)
	}
	d.mu.Unlock()

	// Callbacks run outside the lock so they may read the document.
	for _, fn := range subs {
		fn(markdown)
	}
}

// Subscribe registers a change callback.
func (d *MemoryDocument) Subscribe(fn func(markdown string)) (cancel func()) {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.subs[id] = fn
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.subs, id)
		d.mu.Unlock()
	}
}
