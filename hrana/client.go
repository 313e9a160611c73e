// Package hrana is a client for the HTTP pipeline protocol of a remote
// database server.
//
// A stream is a server-side connection. The first pipeline request opens
// one; the server answers with a baton which the next request must echo to
// continue on the same connection, so transactions span requests. Sending
// a "close" request, or failing to echo the baton, ends the stream.
package hrana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tomyedwab/libsqlgo/dberror"
	"github.com/tomyedwab/libsqlgo/types"
)

const (
	// PipelinePath is where pipeline requests are posted.
	PipelinePath = "/v2/pipeline"
	// NamespaceHeader selects the database of a multi-tenant server.
	NamespaceHeader = "x-namespace"
)

// Client owns one stream. It is not safe for concurrent use.
type Client struct {
	url        string
	authToken  string
	namespace  string
	httpClient *http.Client
	logger     *slog.Logger
	baton      string
}

// ClientOption represents a functional option for configuring the Client
type ClientOption func(*Client)

// WithAuthToken sets the bearer token sent with each request
func WithAuthToken(token string) ClientOption {
	return func(c *Client) {
		c.authToken = token
	}
}

// WithNamespace sets the namespace header sent with each request
func WithNamespace(namespace string) ClientOption {
	return func(c *Client) {
		c.namespace = namespace
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the server at url (http or https).
func NewClient(url string, options ...ClientOption) *Client {
	c := &Client{
		url:        strings.TrimRight(url, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// URL returns the base URL requests are currently sent to.
func (c *Client) URL() string {
	return c.url
}

// Baton returns the baton of the open stream, or "" when none is open.
func (c *Client) Baton() string {
	return c.baton
}

// Execute runs one statement on the stream.
func (c *Client) Execute(ctx context.Context, sql string, args []types.Value, wantRows bool) (*types.Result, error) {
	results, err := c.Pipeline(ctx, []types.StreamRequest{{
		Type: "execute",
		Stmt: &types.Stmt{SQL: sql, Args: args, WantRows: wantRows},
	}})
	if err != nil {
		return nil, err
	}
	resp, err := unwrap(results[0])
	if err != nil {
		return nil, err
	}
	if resp.Result == nil {
		return nil, dberror.Operational(nil, "execute response carries no result")
	}
	return FromWire(resp.Result)
}

// Sequence runs semicolon-separated statements without arguments.
func (c *Client) Sequence(ctx context.Context, sql string) error {
	results, err := c.Pipeline(ctx, []types.StreamRequest{{Type: "sequence", SQL: sql}})
	if err != nil {
		return err
	}
	_, err = unwrap(results[0])
	return err
}

// Close ends the stream, if one is open. The server discards any open
// transaction.
func (c *Client) Close(ctx context.Context) error {
	if c.baton == "" {
		return nil
	}
	_, err := c.Pipeline(ctx, []types.StreamRequest{{Type: "close"}})
	c.baton = ""
	return err
}

// Pipeline sends requests in one round trip and returns one result per
// request. Statement failures are reported inside the results; the error
// return covers transport and protocol failures, after which the stream is
// considered lost.
func (c *Client) Pipeline(ctx context.Context, requests []types.StreamRequest) ([]types.StreamResult, error) {
	body, err := json.Marshal(types.PipelineRequest{Baton: c.baton, Requests: requests})
	if err != nil {
		return nil, dberror.Wrap(dberror.KindProgramming, err, "failed to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+PipelinePath, bytes.NewReader(body))
	if err != nil {
		return nil, dberror.Operational(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	if c.namespace != "" {
		req.Header.Set(NamespaceHeader, c.namespace)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.baton = ""
		return nil, dberror.Operational(err, "pipeline request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.baton = ""
		return nil, dberror.Operational(err, "failed to read pipeline response")
	}
	if resp.StatusCode != http.StatusOK {
		c.baton = ""
		return nil, statusError(resp.StatusCode, raw)
	}

	var pr types.PipelineResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		c.baton = ""
		return nil, dberror.Operational(err, "invalid pipeline response")
	}
	if len(pr.Results) != len(requests) {
		c.baton = ""
		return nil, dberror.Operational(nil,
			fmt.Sprintf("pipeline returned %d results for %d requests", len(pr.Results), len(requests)))
	}
	c.baton = pr.Baton
	if pr.BaseURL != "" {
		c.url = strings.TrimRight(pr.BaseURL, "/")
	}
	c.logger.Debug("Pipeline round trip", "requests", len(requests), "baton", c.baton != "")
	return pr.Results, nil
}

func statusError(status int, body []byte) error {
	var eb types.ErrorBody
	message := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &eb) == nil && eb.Message != "" {
		message = eb.Message
	}
	return &dberror.Error{
		Kind:    dberror.KindOperational,
		Message: fmt.Sprintf("server returned %d: %s", status, message),
		Code:    eb.Code,
	}
}

func unwrap(result types.StreamResult) (*types.StreamResponse, error) {
	switch result.Type {
	case "ok":
		if result.Response == nil {
			return nil, dberror.Operational(nil, "ok result carries no response")
		}
		return result.Response, nil
	case "error":
		if result.Error == nil {
			return nil, dberror.Operational(nil, "error result carries no error")
		}
		return nil, ErrorFromWire(result.Error)
	}
	return nil, dberror.Operational(nil, fmt.Sprintf("unknown result type %q", result.Type))
}

// ErrorFromWire classifies a statement error reported by the server.
func ErrorFromWire(eb *types.ErrorBody) error {
	kind := dberror.KindOperational
	if eb.Code != "" {
		kind = dberror.KindFromCode(eb.Code)
	}
	return &dberror.Error{Kind: kind, Message: eb.Message, Code: eb.Code}
}

// ErrorToWire is the inverse of ErrorFromWire, used by servers.
func ErrorToWire(err error) *types.ErrorBody {
	eb := &types.ErrorBody{Message: err.Error()}
	var e *dberror.Error
	if errors.As(err, &e) {
		eb.Code = e.Code
		eb.Message = e.Message
		if e.Cause != nil {
			eb.Message = e.Cause.Error()
		}
	}
	return eb
}

// FromWire converts an execute result.
func FromWire(er *types.ExecuteResult) (*types.Result, error) {
	res := &types.Result{
		Columns:      make([]string, len(er.Cols)),
		Rows:         make([]types.Row, len(er.Rows)),
		RowsAffected: er.AffectedRowCount,
	}
	for i, col := range er.Cols {
		res.Columns[i] = col.Name
	}
	for i, row := range er.Rows {
		if len(row) != len(er.Cols) {
			return nil, dberror.Operational(nil,
				fmt.Sprintf("row %d has %d values for %d columns", i, len(row), len(er.Cols)))
		}
		res.Rows[i] = types.Row(row)
	}
	if er.LastInsertRowID != nil {
		id, err := strconv.ParseInt(*er.LastInsertRowID, 10, 64)
		if err != nil {
			return nil, dberror.Operational(err, "invalid last_insert_rowid")
		}
		res.LastInsertRowID = &id
	}
	return res, nil
}

// ToWire converts a result for an execute response.
func ToWire(res *types.Result) *types.ExecuteResult {
	er := &types.ExecuteResult{
		Cols:             make([]types.Col, len(res.Columns)),
		Rows:             make([][]types.Value, len(res.Rows)),
		AffectedRowCount: res.RowsAffected,
	}
	for i, name := range res.Columns {
		er.Cols[i] = types.Col{Name: name}
	}
	for i, row := range res.Rows {
		er.Rows[i] = []types.Value(row)
	}
	if res.LastInsertRowID != nil {
		id := strconv.FormatInt(*res.LastInsertRowID, 10)
		er.LastInsertRowID = &id
	}
	return er
}
