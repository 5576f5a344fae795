package room

import (
	"time"

	"github.com/gistsync/gistsync/pkg/protocol"
)

// Conn is one client session's connection as seen by a room.
// Implementations must be safe for concurrent use.
type Conn interface {
	// ID returns the connection's unique id.
	ID() string

	// Send delivers a protocol message to the client session.
	Send(msg protocol.Message) error

	// SendUpdate relays a collaborative-document snapshot to the
	// client session. This is the document channel, distinct from the
	// protocol messages.
	SendUpdate(markdown string) error

	// Close closes the underlying connection.
	Close() error
}

// Config tunes room behavior.
type Config struct {
	// Filename is the canonical filename announced in needs-init.
	// Default: "README.md".
	Filename string

	// Debounce is how long the room waits after the last document
	// change before requesting markdown. Keystrokes never flood the
	// wire: the debounce lives here, not in the client.
	// Default: 2 seconds.
	Debounce time.Duration

	// SaveInitialInterval is the first backoff interval after a save
	// failure. Default: 500ms.
	SaveInitialInterval time.Duration

	// SaveMaxInterval caps the backoff interval. Default: 30s.
	SaveMaxInterval time.Duration

	// SaveMaxElapsed gives up the save cycle after this much total
	// retrying; the room stays in error-retrying until the next
	// change. Default: 5 minutes.
	SaveMaxElapsed time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Filename:            "README.md",
		Debounce:            2 * time.Second,
		SaveInitialInterval: 500 * time.Millisecond,
		SaveMaxInterval:     30 * time.Second,
		SaveMaxElapsed:      5 * time.Minute,
	}
}

// withDefaults fills in zero fields.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Filename == "" {
		c.Filename = d.Filename
	}
	if c.Debounce == 0 {
		c.Debounce = d.Debounce
	}
	if c.SaveInitialInterval == 0 {
		c.SaveInitialInterval = d.SaveInitialInterval
	}
	if c.SaveMaxInterval == 0 {
		c.SaveMaxInterval = d.SaveMaxInterval
	}
	if c.SaveMaxElapsed == 0 {
		c.SaveMaxElapsed = d.SaveMaxElapsed
	}
	return c
}
