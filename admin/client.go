// Package admin drives the namespace admin endpoints of a database server.
// It is test and setup tooling: the client library never calls it.
package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Client talks to a server's public listener (URL) and admin listener
// (AdminURL) about one namespace.
type Client struct {
	URL        string
	AdminURL   string
	Namespace  string
	httpClient *http.Client
}

// ClientOption represents a functional option for configuring the Client
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient creates an admin client for namespace.
func NewClient(url, adminURL, namespace string, options ...ClientOption) *Client {
	c := &Client{
		URL:        strings.TrimRight(url, "/"),
		AdminURL:   strings.TrimRight(adminURL, "/"),
		Namespace:  namespace,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// FromEnv builds a client from SQLD_HOST, SQLD_PORT, SQLD_ADMIN_PORT and
// SQLD_NAMESPACE. It returns nil when SQLD_HOST is unset.
func FromEnv(options ...ClientOption) *Client {
	host := os.Getenv("SQLD_HOST")
	if host == "" {
		return nil
	}
	port := envOr("SQLD_PORT", "8080")
	adminPort := envOr("SQLD_ADMIN_PORT", "9090")
	namespace := envOr("SQLD_NAMESPACE", "default")
	return NewClient(
		fmt.Sprintf("http://%s:%s", host, port),
		fmt.Sprintf("http://%s:%s", host, adminPort),
		namespace, options...)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (c *Client) namespaceURL() string {
	return c.AdminURL + "/v1/namespaces/" + c.Namespace
}

func (c *Client) runRequest(ctx context.Context, method, url string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return respBody, resp.StatusCode, nil
}

// Probe checks that the server answers on its public listener.
func (c *Client) Probe(ctx context.Context) error {
	_, status, err := c.runRequest(ctx, http.MethodGet, c.URL+"/v2", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("server probe returned status %d", status)
	}
	return nil
}

// Stats returns the namespace statistics. It fails if the admin listener
// is disabled or the namespace does not exist.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	body, status, err := c.runRequest(ctx, http.MethodGet, c.namespaceURL()+"/stats", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("namespace %s stats returned status %d", c.Namespace, status)
	}
	stats := map[string]any{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &stats); err != nil {
			return nil, fmt.Errorf("invalid stats response: %w", err)
		}
	}
	return stats, nil
}

// Delete removes the namespace and its database. A missing namespace is
// not an error.
func (c *Client) Delete(ctx context.Context) error {
	_, status, err := c.runRequest(ctx, http.MethodDelete, c.namespaceURL(), nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNotFound {
		return fmt.Errorf("namespace %s delete returned status %d", c.Namespace, status)
	}
	return nil
}

// Create creates the namespace with an empty database.
func (c *Client) Create(ctx context.Context) error {
	_, status, err := c.runRequest(ctx, http.MethodPost, c.namespaceURL()+"/create", []byte("{}"))
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("namespace %s create returned status %d", c.Namespace, status)
	}
	return nil
}

// Reset deletes and recreates the namespace.
func (c *Client) Reset(ctx context.Context) error {
	if err := c.Delete(ctx); err != nil {
		return err
	}
	return c.Create(ctx)
}

// Prepare runs the checks a test fixture needs before using the server:
// the server must answer, and the namespace must exist, after which it is
// reset to an empty database.
func (c *Client) Prepare(ctx context.Context) error {
	if err := c.Probe(ctx); err != nil {
		return fmt.Errorf("server is not running: %w", err)
	}
	if _, err := c.Stats(ctx); err != nil {
		return fmt.Errorf("admin listener is not enabled: %w", err)
	}
	return c.Reset(ctx)
}
