// Package gist implements canonical markdown persistence. A Store
// holds the authoritative text for each document id; absence of
// content is a normal answer, never an error, so callers can fall
// back to a blank document.
package gist

import "context"

// Store is the persistence backend for canonical markdown.
// Implementations must be safe for concurrent use.
type Store interface {
	// Load retrieves the canonical content for a gist.
	// Returns ("", false, nil) when no prior content exists.
	// Returns (content, true, nil) when found.
	// Returns ("", false, err) only on backend errors.
	Load(ctx context.Context, gistID string) (content string, ok bool, err error)

	// Save persists canonical content, overwriting any prior value.
	Save(ctx context.Context, gistID, content string) error

	// Delete removes a gist. Not an error if it doesn't exist.
	Delete(ctx context.Context, gistID string) error

	// Close releases any resources held by the store.
	Close() error
}

// ErrStoreClosed is returned when operations are attempted on a
// closed store.
type ErrStoreClosed struct{}

func (e ErrStoreClosed) Error() string {
	return "gist store is closed"
}
