// Package httptransport implements a stateless HTTP transport for MCP.
//
// Every JSON-RPC message is POSTed to the endpoint, and the response to a
// request is returned in the HTTP response body. Notifications are
// acknowledged with 202 Accepted.
package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/dataagents/mcp/transport"
	"github.com/effective-security/dataagents/mcp/transport/localtransport"
	"github.com/effective-security/xlog"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/dataagents/mcp/transport", "httptransport")

// Defaults
const (
	DefaultEndpoint = "/mcp"
	DefaultAddr     = ":8080"
	maxBodySize     = 16 << 20
)

// HTTPTransport implements a stateless HTTP transport for MCP
type HTTPTransport struct {
	*localtransport.Transport

	endpoint string
	addr     string
	timeout  time.Duration

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewHTTPTransport creates a new HTTP transport that serves the specified endpoint
func NewHTTPTransport(endpoint string) *HTTPTransport {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &HTTPTransport{
		Transport: localtransport.New(),
		endpoint:  endpoint,
		addr:      DefaultAddr,
		timeout:   5 * time.Minute,
	}
}

// WithAddr sets the address to listen on
func (t *HTTPTransport) WithAddr(addr string) *HTTPTransport {
	t.addr = addr
	return t
}

// WithTimeout sets the per request timeout
func (t *HTTPTransport) WithTimeout(timeout time.Duration) *HTTPTransport {
	if timeout > 0 {
		t.timeout = timeout
	}
	return t
}

// Handler returns the HTTP handler serving the MCP endpoint and the health check
func (t *HTTPTransport) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(t.timeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Post(t.endpoint, t.handleRequest)
	return r
}

// Start starts listening in the background
func (t *HTTPTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.server != nil {
		return errors.New("transport already started")
	}

	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", t.addr)
	}

	srv := &http.Server{
		Handler:           t.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	t.listener = ln
	t.server = srv

	logger.KV(xlog.NOTICE, "status", "listening", "addr", ln.Addr().String(), "endpoint", t.endpoint)

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.KV(xlog.ERROR, "reason", "serve", "err", err.Error())
		}
	}()
	return nil
}

// Addr returns the listening address, available after Start
func (t *HTTPTransport) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return ""
	}
	return t.listener.Addr().String()
}

// Close implements Transport.Close
func (t *HTTPTransport) Close() error {
	t.mu.Lock()
	server := t.server
	t.server = nil
	t.mu.Unlock()

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.KV(xlog.ERROR, "reason", "shutdown", "err", err.Error())
		}
	}
	return t.Transport.Close()
}

func (t *HTTPTransport) handleRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	response, err := t.HandleMessage(ctx, body)
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR,
			"request_id", middleware.GetReqID(ctx),
			"err", err.Error(),
		)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if response == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	jsonData, err := json.Marshal(response)
	if err != nil {
		http.Error(w, "failed to marshal response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(jsonData)
}

// Client posts messages to a remote HTTP transport.
// It implements localtransport.Handler.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient returns a client for the MCP endpoint at url.
// If httpClient is nil, http.DefaultClient is used.
func NewClient(url string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		url:        url,
		httpClient: httpClient,
	}
}

// NewClientTransport returns a client side transport for the MCP endpoint at url
func NewClientTransport(url string, httpClient *http.Client) *localtransport.ClientTransport {
	return localtransport.NewClient(NewClient(url, httpClient))
}

// HandleMessage posts the message and parses the reply
func (c *Client) HandleMessage(ctx context.Context, body []byte) (*transport.BaseJsonRpcMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return transport.ParseMessage(data)
	case http.StatusAccepted, http.StatusNoContent:
		return nil, nil
	}
	return nil, errors.Errorf("server returned error: %d %s", resp.StatusCode, string(data))
}
