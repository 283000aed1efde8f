// Package client talks to a rollcall server. *Client satisfies
// session.Backend, so a session can run in another process than the engine.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/rollcall/internal/api"
	"github.com/roach88/rollcall/internal/attendance"
)

const defaultTimeout = 15 * time.Second

// Client is an HTTP and WebSocket client for one server.
type Client struct {
	base   *url.URL
	http   *http.Client
	dialer *websocket.Dialer
	token  string
	buffer int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithBuffer sets the per-subscription event buffer.
func WithBuffer(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.buffer = n
		}
	}
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, attendance.Invalid("server", "invalid server URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, attendance.Invalid("server", "server URL must be http or https, got %q", baseURL)
	}

	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: defaultTimeout},
		dialer: &websocket.Dialer{HandshakeTimeout: defaultTimeout},
		buffer: 16,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get fetches the records on sheet.
func (c *Client) Get(ctx context.Context, sheet attendance.Sheet) ([]attendance.Record, error) {
	var resp api.SheetResponse
	if err := c.do(ctx, http.MethodGet, api.SheetPath(sheet.Date, sheet.ScopeID), typeQuery(sheet.SubjectType), "", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// BulkUpsert commits entries onto sheet as editor.
func (c *Client) BulkUpsert(ctx context.Context, sheet attendance.Sheet, entries []attendance.Entry, editor string) error {
	body := api.NewCommitRequest(sheet.SubjectType, entries)
	var resp api.CommitResponse
	return c.do(ctx, http.MethodPut, api.SheetPath(sheet.Date, sheet.ScopeID), nil, editor, body, &resp)
}

// Initialize seeds default records for sheet's roster.
func (c *Client) Initialize(ctx context.Context, sheet attendance.Sheet) (int, error) {
	var resp api.InitializeResponse
	if err := c.do(ctx, http.MethodPost, api.InitializePath(sheet.Date, sheet.ScopeID), typeQuery(sheet.SubjectType), "", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Created, nil
}

// Ping checks the server's health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	var resp api.HealthResponse
	return c.do(ctx, http.MethodGet, "/healthz", nil, "", nil, &resp)
}

// Subscribe opens a WebSocket event stream for f. The returned
// subscription's channel closes when the connection drops.
func (c *Client) Subscribe(ctx context.Context, f attendance.Filter) (attendance.Subscription, error) {
	u := c.resolve(api.EventsPath(f.Date, f.ScopeID), typeQuery(f.SubjectType))
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), c.header(""))
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusSwitchingProtocols {
				return nil, decodeError(resp)
			}
		}
		return nil, attendance.Transport("subscribe", err)
	}
	return newWSSubscription(conn, f, c.buffer), nil
}

// resolve joins an already-escaped path onto the base URL.
func (c *Client) resolve(path string, query url.Values) *url.URL {
	u := *c.base
	u.RawPath = c.base.EscapedPath() + path
	if p, err := url.PathUnescape(u.RawPath); err == nil {
		u.Path = p
	}
	u.RawQuery = query.Encode()
	return &u
}

func (c *Client) header(editor string) http.Header {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	if editor != "" {
		h.Set(api.EditorHeader, editor)
	}
	return h
}

// do sends one JSON request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, editor string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path, query).String(), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header = c.header(editor)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return attendance.Transport(method+" "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return attendance.Transport("decode response", err)
	}
	return nil
}

// decodeError turns a non-2xx response back into a typed error.
func decodeError(resp *http.Response) error {
	var body api.ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err := json.Unmarshal(data, &body); err == nil && body.Error != nil && body.Error.Code != "" {
		return body.Error
	}
	return attendance.Transport(fmt.Sprintf("server returned %s", resp.Status), nil)
}

func typeQuery(t attendance.SubjectType) url.Values {
	q := url.Values{}
	if t != "" {
		q.Set("type", string(t))
	}
	return q
}
