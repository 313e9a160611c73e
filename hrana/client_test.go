package hrana

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomyedwab/libsqlgo/dberror"
	"github.com/tomyedwab/libsqlgo/types"
)

// scriptedServer answers each pipeline request with the next response from
// its script and records what it received.
type scriptedServer struct {
	t        *testing.T
	script   []func(types.PipelineRequest) (int, any)
	received []types.PipelineRequest
	headers  []http.Header
}

func (s *scriptedServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	assert.Equal(s.t, PipelinePath, r.URL.Path)
	var req types.PipelineRequest
	require.NoError(s.t, json.NewDecoder(r.Body).Decode(&req))
	s.received = append(s.received, req)
	s.headers = append(s.headers, r.Header.Clone())

	step := s.script[0]
	s.script = s.script[1:]
	status, body := step(req)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func newScripted(t *testing.T, steps ...func(types.PipelineRequest) (int, any)) (*scriptedServer, *Client) {
	s := &scriptedServer{t: t, script: steps}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, WithAuthToken("tok"), WithNamespace("ns1"), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return s, c
}

func ok(baton string, result *types.ExecuteResult) func(types.PipelineRequest) (int, any) {
	return func(req types.PipelineRequest) (int, any) {
		results := make([]types.StreamResult, len(req.Requests))
		for i := range results {
			results[i] = types.StreamResult{Type: "ok", Response: &types.StreamResponse{Type: req.Requests[i].Type, Result: result}}
		}
		return http.StatusOK, types.PipelineResponse{Baton: baton, Results: results}
	}
}

func TestExecuteCarriesBaton(t *testing.T) {
	ctx := context.Background()
	id := "3"
	s, c := newScripted(t,
		ok("b1", &types.ExecuteResult{
			Cols:             []types.Col{{Name: "id"}, {Name: "name"}},
			Rows:             [][]types.Value{{types.Integer(1), types.Text("a")}},
			AffectedRowCount: 0,
		}),
		ok("b2", &types.ExecuteResult{AffectedRowCount: 1, LastInsertRowID: &id}),
		ok("", nil),
	)

	res, err := c.Execute(ctx, "SELECT id, name FROM t WHERE id = ?", []types.Value{types.Integer(1)}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, res.Columns)
	require.Len(t, res.Rows, 1)
	assert.Nil(t, res.LastInsertRowID)
	assert.Equal(t, "b1", c.Baton())

	res, err = c.Execute(ctx, "INSERT INTO t VALUES (3)", nil, false)
	require.NoError(t, err)
	require.NotNil(t, res.LastInsertRowID)
	assert.Equal(t, int64(3), *res.LastInsertRowID)

	require.NoError(t, c.Close(ctx))
	assert.Empty(t, c.Baton())
	// Closing without a stream sends nothing.
	require.NoError(t, c.Close(ctx))

	require.Len(t, s.received, 3)
	assert.Empty(t, s.received[0].Baton)
	assert.Equal(t, "b1", s.received[1].Baton)
	assert.Equal(t, "b2", s.received[2].Baton)
	assert.Equal(t, "close", s.received[2].Requests[0].Type)
	assert.True(t, s.received[0].Requests[0].Stmt.WantRows)
	assert.Equal(t, "Bearer tok", s.headers[0].Get("Authorization"))
	assert.Equal(t, "ns1", s.headers[0].Get(NamespaceHeader))
}

func TestStatementError(t *testing.T) {
	ctx := context.Background()
	_, c := newScripted(t, func(req types.PipelineRequest) (int, any) {
		return http.StatusOK, types.PipelineResponse{Baton: "b1", Results: []types.StreamResult{{
			Type:  "error",
			Error: &types.ErrorBody{Message: "UNIQUE constraint failed: t.id", Code: "SQLITE_CONSTRAINT"},
		}}}
	})

	_, err := c.Execute(ctx, "INSERT INTO t VALUES (1)", nil, false)
	assert.True(t, dberror.IsIntegrityError(err))
	assert.ErrorContains(t, err, "UNIQUE constraint failed")
	// A statement error keeps the stream.
	assert.Equal(t, "b1", c.Baton())
}

func TestTransportErrorsDropStream(t *testing.T) {
	ctx := context.Background()
	_, c := newScripted(t,
		ok("b1", nil),
		func(types.PipelineRequest) (int, any) {
			return http.StatusBadRequest, types.ErrorBody{Message: "stream expired", Code: "STREAM_EXPIRED"}
		},
		func(types.PipelineRequest) (int, any) {
			return http.StatusOK, types.PipelineResponse{Results: nil}
		},
	)

	require.NoError(t, c.Sequence(ctx, "CREATE TABLE t (id); CREATE TABLE u (id)"))
	assert.Equal(t, "b1", c.Baton())

	_, err := c.Execute(ctx, "SELECT 1", nil, true)
	assert.True(t, dberror.IsOperationalError(err))
	assert.ErrorContains(t, err, "stream expired")
	assert.Empty(t, c.Baton())

	_, err = c.Execute(ctx, "SELECT 1", nil, true)
	assert.ErrorContains(t, err, "0 results for 1 requests")
}

func TestBaseURLRedirect(t *testing.T) {
	ctx := context.Background()
	other := &scriptedServer{t: t, script: []func(types.PipelineRequest) (int, any){ok("b2", nil)}}
	otherSrv := httptest.NewServer(other)
	defer otherSrv.Close()

	_, c := newScripted(t, func(req types.PipelineRequest) (int, any) {
		status, body := ok("b1", nil)(req)
		resp := body.(types.PipelineResponse)
		resp.BaseURL = otherSrv.URL + "/"
		return status, resp
	})

	require.NoError(t, c.Sequence(ctx, "SELECT 1"))
	assert.Equal(t, otherSrv.URL, c.URL())
	require.NoError(t, c.Sequence(ctx, "SELECT 1"))
	require.Len(t, other.received, 1)
	assert.Equal(t, "b1", other.received[0].Baton)
}

func TestWireConversions(t *testing.T) {
	id := int64(9)
	res := &types.Result{
		Columns:         []string{"a"},
		Rows:            []types.Row{{types.Real(1.5)}},
		RowsAffected:    2,
		LastInsertRowID: &id,
	}
	back, err := FromWire(ToWire(res))
	require.NoError(t, err)
	assert.Equal(t, res.Columns, back.Columns)
	assert.True(t, res.Rows[0].Equal(back.Rows[0]))
	assert.Equal(t, int64(2), back.RowsAffected)
	assert.Equal(t, id, *back.LastInsertRowID)

	_, err = FromWire(&types.ExecuteResult{Cols: []types.Col{{Name: "a"}}, Rows: [][]types.Value{{}}})
	assert.ErrorContains(t, err, "row 0 has 0 values")

	bad := "x"
	_, err = FromWire(&types.ExecuteResult{LastInsertRowID: &bad})
	assert.True(t, dberror.IsOperationalError(err))
}

func TestErrorWire(t *testing.T) {
	eb := ErrorToWire(&dberror.Error{Kind: dberror.KindProgramming, Message: "prepare failed", Code: "SQLITE_ERROR"})
	assert.Equal(t, "SQLITE_ERROR", eb.Code)
	assert.Equal(t, "prepare failed", eb.Message)
	assert.True(t, dberror.IsProgrammingError(ErrorFromWire(eb)))

	assert.True(t, dberror.IsOperationalError(ErrorFromWire(&types.ErrorBody{Message: "boom"})))
	assert.True(t, dberror.IsProgrammingError(ErrorFromWire(&types.ErrorBody{Message: "denied", Code: "SQLITE_AUTH"})))
}
