package server

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/dustin/go-humanize"

	"github.com/tomyedwab/libsqlgo/dberror"
	"github.com/tomyedwab/libsqlgo/metrics"
	"github.com/tomyedwab/libsqlgo/replication"
	"github.com/tomyedwab/libsqlgo/store"
	"github.com/tomyedwab/libsqlgo/types"
)

type pullQuery struct {
	After   int64  `json:"after"`
	Replica string `json:"replica"`
	Limit   int    `json:"limit"`
}

// handlePush applies a replica's journal entries. Entries already applied
// are skipped, so a replica may re-send a batch whose response it lost.
// The batch is applied atomically: if any entry fails nothing is applied.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	const endpoint = "push"
	if r.Method != http.MethodPost {
		http.Error(w, "Invalid method", http.StatusMethodNotAllowed)
		return
	}
	ns, claims, ok := s.resolve(w, r, endpoint)
	if !ok {
		return
	}
	if claims != nil && claims.ReadOnly() {
		s.fail(w, endpoint, http.StatusForbidden, fmt.Errorf("write access denied"))
		return
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		s.fail(w, endpoint, http.StatusBadRequest, fmt.Errorf("failed to read body: %w", err))
		return
	}
	var req types.PushRequest
	if err := decodeBody(r, raw, &req); err != nil {
		s.fail(w, endpoint, http.StatusBadRequest, err)
		return
	}
	if req.ReplicaID == "" {
		s.fail(w, endpoint, http.StatusBadRequest, fmt.Errorf("replica_id is required"))
		return
	}

	resp, err := s.applyEntries(r.Context(), ns, req)
	if err != nil {
		status := http.StatusInternalServerError
		if k := dberror.KindOf(err); k == dberror.KindIntegrity || k == dberror.KindProgramming {
			status = http.StatusConflict
		}
		s.fail(w, endpoint, status, err)
		return
	}
	s.logger.Info("Applied replica push",
		"namespace", ns.name, "replica", req.ReplicaID,
		"entries", len(req.Entries), "applied", resp.Applied, "size", humanize.Bytes(uint64(len(raw))))

	body, err := replication.Encode(resp)
	if err != nil {
		s.fail(w, endpoint, http.StatusInternalServerError, err)
		return
	}
	metrics.ServerRequestsTotal.WithLabelValues(endpoint, metrics.Ok).Inc()
	writeEncoded(w, body)
}

func (s *Server) applyEntries(ctx context.Context, ns *namespace, req types.PushRequest) (resp *types.PushResponse, err error) {
	conn, err := ns.db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return nil, dberror.FromSQLite(err, "failed to begin push")
	}
	defer func() {
		if err != nil {
			conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	resp = &types.PushResponse{}
	for _, entry := range req.Entries {
		seen, err := s.frames.Seen(ctx, conn, entry.ID)
		if err != nil {
			return nil, dberror.FromSQLite(err, "failed to read frames")
		}
		if seen {
			continue
		}
		if _, err := store.RunConn(ctx, conn, entry.SQL, entry.Args); err != nil {
			return nil, fmt.Errorf("entry %s: %w", entry.ID, err)
		}
		if _, err := s.frames.Append(ctx, conn, req.ReplicaID, entry); err != nil {
			return nil, dberror.FromSQLite(err, "failed to record frame")
		}
		resp.Applied++
	}
	if resp.LastIndex, err = s.frames.LastIndex(ctx, conn); err != nil {
		return nil, dberror.FromSQLite(err, "failed to read frames")
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return nil, dberror.FromSQLite(err, "failed to commit push")
	}
	return resp, nil
}

// handlePull returns frames after an index, leaving out the ones the
// calling replica pushed itself. last_index covers every frame scanned,
// including skipped ones, so the replica advances past them.
func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	const endpoint = "pull"
	if r.Method != http.MethodGet {
		http.Error(w, "Invalid method", http.StatusMethodNotAllowed)
		return
	}
	ns, _, ok := s.resolve(w, r, endpoint)
	if !ok {
		return
	}

	var q pullQuery
	if err := s.decoder.Decode(&q, r.URL.Query()); err != nil {
		s.fail(w, endpoint, http.StatusBadRequest, fmt.Errorf("invalid pull query: %w", err))
		return
	}
	if q.Limit <= 0 || q.Limit > s.cfg.PullLimit {
		q.Limit = s.cfg.PullLimit
	}

	records, err := s.frames.Since(r.Context(), ns.db, q.After, q.Limit)
	if err != nil {
		s.fail(w, endpoint, http.StatusInternalServerError, err)
		return
	}
	resp := types.PullResponse{Frames: []types.Frame{}, LastIndex: q.After}
	for _, rec := range records {
		resp.LastIndex = rec.Index
		if q.Replica != "" && rec.Origin == q.Replica {
			continue
		}
		frame, err := rec.Frame()
		if err != nil {
			s.fail(w, endpoint, http.StatusInternalServerError, err)
			return
		}
		resp.Frames = append(resp.Frames, frame)
	}

	body, err := replication.Encode(resp)
	if err != nil {
		s.fail(w, endpoint, http.StatusInternalServerError, err)
		return
	}
	metrics.ServerRequestsTotal.WithLabelValues(endpoint, metrics.Ok).Inc()
	writeEncoded(w, body)
}

// decodeBody decodes a zstd or plain JSON request body.
func decodeBody(r *http.Request, raw []byte, v any) error {
	if r.Header.Get("Content-Encoding") == replication.ContentEncoding {
		return replication.Decode(raw, v)
	}
	return replication.DecodePlain(raw, v)
}

func writeEncoded(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Encoding", replication.ContentEncoding)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
