package client

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gistsync/gistsync/pkg/reconcile"
)

type options struct {
	logger       *slog.Logger
	dialer       *websocket.Dialer
	httpClient   *http.Client
	fetch        reconcile.FetchFunc
	readTimeout  time.Duration
	writeTimeout time.Duration
	pingInterval time.Duration
}

func defaultOptions() options {
	return options{
		logger:       slog.Default(),
		dialer:       websocket.DefaultDialer,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		readTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
		pingInterval: 25 * time.Second,
	}
}

// Option configures a Session.
type Option func(*options)

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithDialer sets the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(o *options) {
		if d != nil {
			o.dialer = d
		}
	}
}

// WithHTTPClient sets the client used for canonical-content fetches.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		if hc != nil {
			o.httpClient = hc
		}
	}
}

// WithFetcher overrides the canonical-content fetcher entirely.
func WithFetcher(f reconcile.FetchFunc) Option {
	return func(o *options) { o.fetch = f }
}

// WithReadTimeout sets the read deadline per inbound frame.
// Zero disables the deadline.
func WithReadTimeout(d time.Duration) Option {
	return func(o *options) { o.readTimeout = d }
}

// WithWriteTimeout sets the write deadline per outbound frame.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

// WithPingInterval sets the keepalive ping cadence.
func WithPingInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pingInterval = d
		}
	}
}
