package server

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tomyedwab/libsqlgo/metrics"
	"github.com/tomyedwab/libsqlgo/store"
)

// stream is a pipeline session pinned to one connection. A stream is
// removed from the baton table while a request uses it, and reinserted
// under a fresh baton afterwards, so a baton is good for one request.
type stream struct {
	ns       *namespace
	conn     *sqlx.Conn
	readOnly bool
	lastUsed time.Time
}

func (s *Server) openStream(ctx context.Context, ns *namespace, readOnly bool) (*stream, error) {
	conn, err := ns.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream on %s: %w", ns.name, err)
	}
	metrics.ServerOpenStreams.Inc()
	return &stream{ns: ns, conn: conn, readOnly: readOnly, lastUsed: time.Now()}, nil
}

// takeStream removes the stream for baton from the table.
func (s *Server) takeStream(baton string, ns *namespace) (*stream, error) {
	s.mu.Lock()
	st, ok := s.streams[baton]
	if ok {
		delete(s.streams, baton)
	}
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("unknown or expired baton")
	}
	if st.ns != ns {
		s.closeStream(st)
		return nil, fmt.Errorf("baton belongs to another namespace")
	}
	return st, nil
}

// parkStream stores st under a new baton and returns the baton.
func (s *Server) parkStream(st *stream) string {
	baton := uuid.NewString()
	st.lastUsed = time.Now()

	s.mu.Lock()
	s.streams[baton] = st
	s.mu.Unlock()
	return baton
}

// closeStream rolls back whatever the stream left open and releases its
// connection.
func (s *Server) closeStream(st *stream) {
	inTx, err := store.InTransaction(st.conn)
	if err != nil {
		// State unknown; try the rollback anyway.
		s.logger.Warn("Failed to read stream transaction state", "namespace", st.ns.name, "error", err)
		inTx = true
	}
	if inTx {
		if _, err := st.conn.ExecContext(context.Background(), "ROLLBACK"); err != nil {
			s.logger.Warn("Failed to roll back abandoned stream", "namespace", st.ns.name, "error", err)
		}
	}
	if err := st.conn.Close(); err != nil {
		s.logger.Warn("Failed to close stream connection", "namespace", st.ns.name, "error", err)
	}
	metrics.ServerOpenStreams.Dec()
}

// ReapIdle closes streams unused since before now minus the idle timeout,
// returning how many were closed.
func (s *Server) ReapIdle(now time.Time) int {
	var idle []*stream

	s.mu.Lock()
	for baton, st := range s.streams {
		if now.Sub(st.lastUsed) > s.cfg.StreamIdleTimeout {
			idle = append(idle, st)
			delete(s.streams, baton)
		}
	}
	s.mu.Unlock()

	for _, st := range idle {
		s.closeStream(st)
	}
	if len(idle) > 0 {
		s.logger.Info("Reaped idle streams", "count", len(idle))
	}
	return len(idle)
}

// RunReaper reaps idle streams periodically until ctx is done.
func (s *Server) RunReaper(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.StreamIdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			s.ReapIdle(now)
		case <-ctx.Done():
			return nil
		}
	}
}

// OpenStreams returns the number of parked streams.
func (s *Server) OpenStreams() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams)
}
