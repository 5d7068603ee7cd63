package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
)

// HTTPTransport posts each JSON-RPC request to a single endpoint and reads
// the response from the reply body.
type HTTPTransport struct {
	cfg    *ServerConfig
	client *http.Client

	mu        sync.Mutex
	connected bool

	nextID atomic.Int64
}

// NewHTTPTransport builds a transport for an HTTP server config.
func NewHTTPTransport(cfg *ServerConfig) *HTTPTransport {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &HTTPTransport{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// Connect marks the transport usable. The endpoint is not probed; the
// initialize handshake is the first real request.
func (t *HTTPTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	return nil
}

// Close marks the transport unusable.
func (t *HTTPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	return nil
}

// Connected reports whether Connect has been called.
func (t *HTTPTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Call posts a request and decodes the JSON-RPC response from the body.
func (t *HTTPTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !t.Connected() {
		return nil, transportError(fmt.Errorf("not connected"))
	}

	req := JSONRPCRequest{JSONRPC: "2.0", ID: t.nextID.Add(1), Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, transportError(fmt.Errorf("marshal params: %w", err))
		}
		req.Params = raw
	}

	body, err := t.post(ctx, req)
	if err != nil {
		return nil, err
	}

	var resp JSONRPCResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, transportError(fmt.Errorf("decode response: %w", err))
	}
	if resp.Error != nil {
		return nil, wrapRPCError(resp.Error)
	}
	return resp.Result, nil
}

// Notify posts a notification and discards any reply body.
func (t *HTTPTransport) Notify(ctx context.Context, method string, params any) error {
	if !t.Connected() {
		return transportError(fmt.Errorf("not connected"))
	}
	note := JSONRPCNotification{JSONRPC: "2.0", Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return transportError(fmt.Errorf("marshal params: %w", err))
		}
		note.Params = raw
	}
	_, err := t.post(ctx, note)
	return err
}

func (t *HTTPTransport) post(ctx context.Context, msg any) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, transportError(fmt.Errorf("marshal message: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, transportError(fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range t.cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, transportError(fmt.Errorf("post %s: %w", t.cfg.URL, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16*1024*1024))
	if err != nil {
		return nil, transportError(fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, transportError(fmt.Errorf("http %d from %s: %s", resp.StatusCode, t.cfg.URL, truncate(string(body), 256)))
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
