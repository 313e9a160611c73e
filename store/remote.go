package store

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tomyedwab/libsqlgo/dberror"
	"github.com/tomyedwab/libsqlgo/hrana"
	"github.com/tomyedwab/libsqlgo/types"
)

// RemoteConfig configures OpenRemote.
type RemoteConfig struct {
	// URL is the http(s) base URL of the server.
	URL        string
	AuthToken  string
	Namespace  string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Remote is a Store that forwards every statement to a server over one
// pipeline stream. Each call is one round trip; nothing is retried.
type Remote struct {
	client *hrana.Client
	closed bool
}

// OpenRemote prepares a stream. No request is sent until the first
// statement, so an unreachable or unauthorized server surfaces then.
func OpenRemote(cfg RemoteConfig) *Remote {
	options := []hrana.ClientOption{
		hrana.WithAuthToken(cfg.AuthToken),
		hrana.WithNamespace(cfg.Namespace),
	}
	if cfg.HTTPClient != nil {
		options = append(options, hrana.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.Logger != nil {
		options = append(options, hrana.WithLogger(cfg.Logger))
	}
	return &Remote{client: hrana.NewClient(cfg.URL, options...)}
}

// Client returns the underlying pipeline client.
func (s *Remote) Client() *hrana.Client {
	return s.client
}

// Run implements Store.
func (s *Remote) Run(ctx context.Context, query string, args []types.Value) (*types.Result, error) {
	if s.closed {
		return nil, dberror.Usage("database is closed")
	}
	return s.client.Execute(ctx, query, args, true)
}

// RunScript implements Store.
func (s *Remote) RunScript(ctx context.Context, script string) error {
	if s.closed {
		return dberror.Usage("database is closed")
	}
	return s.client.Sequence(ctx, script)
}

// Commit implements Store.
func (s *Remote) Commit(ctx context.Context) error {
	_, err := s.Run(ctx, "COMMIT", nil)
	return err
}

// Rollback implements Store.
func (s *Remote) Rollback(ctx context.Context) error {
	_, err := s.Run(ctx, "ROLLBACK", nil)
	return err
}

// Close implements Store. It ends the stream; failures to reach the server
// are returned but the store is closed regardless.
func (s *Remote) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close(context.Background())
}
