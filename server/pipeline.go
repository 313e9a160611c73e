package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/tomyedwab/libsqlgo/dberror"
	"github.com/tomyedwab/libsqlgo/hrana"
	"github.com/tomyedwab/libsqlgo/metrics"
	"github.com/tomyedwab/libsqlgo/replication"
	"github.com/tomyedwab/libsqlgo/statement"
	"github.com/tomyedwab/libsqlgo/store"
	"github.com/tomyedwab/libsqlgo/types"
)

const frameSavepoint = "libsql_frame"

var errStreamClosed = errors.New("stream is closed")

func (s *Server) handlePipeline(w http.ResponseWriter, r *http.Request) {
	const endpoint = "pipeline"
	if r.Method != http.MethodPost {
		http.Error(w, "Invalid method", http.StatusMethodNotAllowed)
		return
	}

	var req types.PipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, endpoint, http.StatusBadRequest, fmt.Errorf("invalid pipeline request: %w", err))
		return
	}
	ns, claims, ok := s.resolve(w, r, endpoint)
	if !ok {
		return
	}

	var st *stream
	var err error
	if req.Baton == "" {
		st, err = s.openStream(r.Context(), ns, claims != nil && claims.ReadOnly())
	} else {
		st, err = s.takeStream(req.Baton, ns)
	}
	if err != nil {
		s.fail(w, endpoint, http.StatusBadRequest, err)
		return
	}

	resp := types.PipelineResponse{Results: make([]types.StreamResult, len(req.Requests))}
	closed := false
	for i, sr := range req.Requests {
		if closed {
			resp.Results[i] = errorResult(errStreamClosed)
			continue
		}
		switch sr.Type {
		case "execute":
			if sr.Stmt == nil {
				resp.Results[i] = errorResult(errors.New("execute request carries no statement"))
				continue
			}
			res, err := s.execute(r.Context(), st, *sr.Stmt)
			if err != nil {
				resp.Results[i] = errorResult(err)
				continue
			}
			resp.Results[i] = types.StreamResult{
				Type:     "ok",
				Response: &types.StreamResponse{Type: "execute", Result: hrana.ToWire(res)},
			}
		case "sequence":
			if err := s.sequence(r.Context(), st, sr.SQL); err != nil {
				resp.Results[i] = errorResult(err)
				continue
			}
			resp.Results[i] = types.StreamResult{Type: "ok", Response: &types.StreamResponse{Type: "sequence"}}
		case "close":
			closed = true
			resp.Results[i] = types.StreamResult{Type: "ok", Response: &types.StreamResponse{Type: "close"}}
		default:
			resp.Results[i] = errorResult(fmt.Errorf("unknown request type %q", sr.Type))
		}
	}

	if closed {
		s.closeStream(st)
	} else {
		resp.Baton = s.parkStream(st)
	}
	metrics.ServerRequestsTotal.WithLabelValues(endpoint, metrics.Ok).Inc()
	writeJSON(w, http.StatusOK, resp)
}

func errorResult(err error) types.StreamResult {
	return types.StreamResult{Type: "error", Error: hrana.ErrorToWire(err)}
}

// execute runs one statement on the stream. Writes are recorded in the
// frame log on the same connection, so they commit or roll back together.
func (s *Server) execute(ctx context.Context, st *stream, stmt types.Stmt) (*types.Result, error) {
	switch stmts := statement.Split(stmt.SQL); len(stmts) {
	case 0:
	case 1:
		stmt.SQL = stmts[0]
	default:
		return nil, &dberror.Error{Kind: dberror.KindProgramming, Message: "you can only execute one statement at a time", Code: "SQLITE_MISUSE"}
	}
	kind := statement.Classify(stmt.SQL)
	if !kind.Modifies() {
		return store.RunConn(ctx, st.conn, stmt.SQL, stmt.Args)
	}
	if st.readOnly {
		return nil, &dberror.Error{Kind: dberror.KindProgramming, Message: "write access denied", Code: "SQLITE_AUTH"}
	}

	var res *types.Result
	err := replication.WithSavepoint(ctx, st.conn, frameSavepoint, func() error {
		var err error
		if res, err = store.RunConn(ctx, st.conn, stmt.SQL, stmt.Args); err != nil {
			return err
		}
		entry := types.Entry{ID: uuid.NewString(), SQL: stmt.SQL, Args: stmt.Args}
		if _, err := s.frames.Append(ctx, st.conn, "", entry); err != nil {
			return dberror.FromSQLite(err, "failed to record frame")
		}
		return nil
	})
	if err != nil {
		return nil, dberror.FromSQLite(err, "exec failed")
	}
	return res, nil
}

// sequence runs a script statement by statement, stopping at the first
// failure.
func (s *Server) sequence(ctx context.Context, st *stream, script string) error {
	for _, sql := range statement.Split(script) {
		if _, err := s.execute(ctx, st, types.Stmt{SQL: sql}); err != nil {
			return err
		}
	}
	return nil
}
