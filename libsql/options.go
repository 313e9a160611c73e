package libsql

import (
	"log/slog"
	"net/http"
	"time"
)

// settings collects everything Connect needs besides the target location.
// Values come from the target's query string first, then from Options.
type settings struct {
	syncURL       string
	authToken     string
	namespace     string
	isolation     IsolationLevel
	isolationErr  error
	tls           *bool
	logger        *slog.Logger
	httpClient    *http.Client
	stmtCacheSize int
	busyTimeoutMS int
	pushTimeout   time.Duration
}

// Option represents a functional option for configuring a Connection
type Option func(*settings)

// WithSyncURL turns a local target into a replica of the primary at url
func WithSyncURL(url string) Option {
	return func(s *settings) {
		s.syncURL = url
	}
}

// WithAuthToken sets the bearer token sent to the primary or server
func WithAuthToken(token string) Option {
	return func(s *settings) {
		s.authToken = token
	}
}

// WithNamespace selects the server-side database of a Remote or Replica
// connection
func WithNamespace(namespace string) Option {
	return func(s *settings) {
		s.namespace = namespace
	}
}

// WithIsolationLevel sets the isolation level of implicit transactions
func WithIsolationLevel(level IsolationLevel) Option {
	return func(s *settings) {
		s.isolation = level
		s.isolationErr = nil
	}
}

// WithAutocommit disables implicit transactions
func WithAutocommit() Option {
	return WithIsolationLevel(Autocommit)
}

// WithTLS chooses https (the default) or http for libsql:// targets
func WithTLS(enabled bool) Option {
	return func(s *settings) {
		s.tls = &enabled
	}
}

// WithLogger sets the logger used by the connection and its backend
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithHTTPClient sets the HTTP client used to reach a server or primary
func WithHTTPClient(client *http.Client) Option {
	return func(s *settings) {
		s.httpClient = client
	}
}

// WithStatementCacheSize bounds the prepared statement cache of local
// databases. A negative size disables caching.
func WithStatementCacheSize(size int) Option {
	return func(s *settings) {
		s.stmtCacheSize = size
	}
}

// WithBusyTimeout sets how long a local database waits on a lock, in
// milliseconds.
func WithBusyTimeout(millis int) Option {
	return func(s *settings) {
		s.busyTimeoutMS = millis
	}
}

// WithPushTimeout bounds each request a replica makes to push its writes
// to the primary.
func WithPushTimeout(timeout time.Duration) Option {
	return func(s *settings) {
		s.pushTimeout = timeout
	}
}
