package replication

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tomyedwab/libsqlgo/dberror"
	"github.com/tomyedwab/libsqlgo/metrics"
	"github.com/tomyedwab/libsqlgo/types"
)

// NamespaceHeader selects the database of a multi-tenant server.
const NamespaceHeader = "x-namespace"

// Client speaks the push/pull protocol with a primary.
type Client struct {
	baseURL    string
	authToken  string
	namespace  string
	httpClient *http.Client
	logger     *slog.Logger
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

// WithLogger sets the logger used for request tracing
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the primary at baseURL.
func NewClient(baseURL string, options ...ClientOption) *Client {
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, option := range options {
		option(client)
	}
	return client
}

// BaseURL returns the primary's base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Push sends a batch of entries. The primary skips entries it has already
// applied, so a batch may be re-sent after a failure.
func (c *Client) Push(ctx context.Context, replicaID string, entries []types.Entry) (*types.PushResponse, error) {
	body, err := Encode(types.PushRequest{ReplicaID: replicaID, Entries: entries})
	if err != nil {
		return nil, dberror.Operational(err, "failed to encode push request")
	}
	metrics.ReplicationPayloadBytes.WithLabelValues("push").Observe(float64(len(body)))

	var resp types.PushResponse
	if err := c.do(ctx, http.MethodPost, "/v1/push", bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}
	c.logger.Debug("Pushed journal entries",
		"entries", len(entries), "applied", resp.Applied, "size", humanize.Bytes(uint64(len(body))))
	return &resp, nil
}

// Pull fetches frames after the given index, excluding frames that
// originated from replicaID.
func (c *Client) Pull(ctx context.Context, replicaID string, after int64) (*types.PullResponse, error) {
	query := url.Values{}
	query.Set("after", strconv.FormatInt(after, 10))
	query.Set("replica", replicaID)

	var resp types.PullResponse
	if err := c.do(ctx, http.MethodGet, "/v1/pull?"+query.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return dberror.Operational(err, "failed to create request")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	if c.namespace != "" {
		req.Header.Set(NamespaceHeader, c.namespace)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Content-Encoding", ContentEncoding)
	}
	req.Header.Set("Accept-Encoding", ContentEncoding)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return dberror.Operational(err, fmt.Sprintf("%s %s failed", method, path))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return dberror.Operational(err, "failed to read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return dberror.Operational(nil,
			fmt.Sprintf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw))))
	}
	if method == http.MethodGet {
		metrics.ReplicationPayloadBytes.WithLabelValues("pull").Observe(float64(len(raw)))
	}
	if err := Decode(raw, out); err != nil {
		return dberror.Operational(err, "invalid response")
	}
	return nil
}
