// Package server is a small database server speaking the pipeline and
// replication protocols over HTTP. Each namespace is a sqlite file under
// the data directory.
//
// Endpoints:
//
//	GET  /v2           probe
//	POST /v2/pipeline  execute statements on a stream
//	POST /v1/push      apply journal entries from a replica
//	GET  /v1/pull      fetch frames for a replica
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/schema"

	"github.com/tomyedwab/libsqlgo/auth"
	"github.com/tomyedwab/libsqlgo/hrana"
	"github.com/tomyedwab/libsqlgo/metrics"
	"github.com/tomyedwab/libsqlgo/middleware"
	"github.com/tomyedwab/libsqlgo/replication"
	"github.com/tomyedwab/libsqlgo/types"
)

// Server serves every namespace under one data directory.
type Server struct {
	cfg     Config
	logger  *slog.Logger
	secret  []byte
	decoder *schema.Decoder
	frames  replication.FrameLog

	mu         sync.Mutex // Protects namespaces and streams
	namespaces map[string]*namespace
	streams    map[string]*stream
}

// Option represents a functional option for configuring the Server
type Option func(*Server)

// WithLogger sets the server's logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithSecret enables bearer token verification with the given HS256 key
func WithSecret(secret []byte) Option {
	return func(s *Server) {
		s.secret = secret
	}
}

// New creates a server. When cfg.JWTSecretFile is set the key is loaded (or
// generated) from it.
func New(cfg Config, options ...Option) (*Server, error) {
	cfg = cfg.withDefaults()
	if cfg.DataDir == "" {
		return nil, errors.New("data directory is required")
	}

	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(false)
	decoder.SetAliasTag("json")

	s := &Server{
		cfg:        cfg,
		logger:     slog.Default(),
		decoder:    decoder,
		namespaces: make(map[string]*namespace),
		streams:    make(map[string]*stream),
	}
	for _, option := range options {
		option(s)
	}
	if s.secret == nil && cfg.JWTSecretFile != "" {
		secret, err := auth.LoadSecretKey(cfg.JWTSecretFile)
		if err != nil {
			return nil, err
		}
		s.secret = secret
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *Server) Config() Config {
	return s.cfg
}

// Handler returns the HTTP handler serving all endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2", middleware.Chain(s.handleProbe, middleware.LogRequests(s.logger)))
	mux.HandleFunc("/v2/pipeline", s.protected(s.handlePipeline))
	mux.HandleFunc("/v1/push", s.protected(s.handlePush))
	mux.HandleFunc("/v1/pull", s.protected(s.handlePull))
	return mux
}

func (s *Server) protected(h http.HandlerFunc) http.HandlerFunc {
	return middleware.Chain(h,
		middleware.RequireToken(s.secret),
		middleware.LogRequests(s.logger),
	)
}

// Close releases every stream and namespace database.
func (s *Server) Close() error {
	s.mu.Lock()
	streams := s.streams
	namespaces := s.namespaces
	s.streams = make(map[string]*stream)
	s.namespaces = make(map[string]*namespace)
	s.mu.Unlock()

	for _, st := range streams {
		s.closeStream(st)
	}
	var errs []error
	for _, ns := range namespaces {
		if err := ns.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close namespace %s: %w", ns.name, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Server) namespaceName(r *http.Request) string {
	if name := r.Header.Get(hrana.NamespaceHeader); name != "" {
		return name
	}
	return s.cfg.DefaultNamespace
}

// resolve picks the request's namespace and checks the caller may use it.
// It writes the error response itself when it fails.
func (s *Server) resolve(w http.ResponseWriter, r *http.Request, endpoint string) (*namespace, *auth.Claims, bool) {
	name := s.namespaceName(r)
	claims := auth.FromContext(r.Context())
	if claims != nil && !claims.Allows(name) {
		s.fail(w, endpoint, http.StatusForbidden, fmt.Errorf("token does not grant access to namespace %q", name))
		return nil, nil, false
	}
	ns, err := s.namespace(r.Context(), name)
	if err != nil {
		s.fail(w, endpoint, http.StatusBadRequest, err)
		return nil, nil, false
	}
	return ns, claims, true
}

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Invalid method", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"version":"2"}`))
}

// fail writes a JSON error body.
func (s *Server) fail(w http.ResponseWriter, endpoint string, status int, err error) {
	metrics.ServerRequestsTotal.WithLabelValues(endpoint, metrics.Fail).Inc()
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "endpoint", endpoint, "error", err)
	}
	writeJSON(w, status, types.ErrorBody{Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
