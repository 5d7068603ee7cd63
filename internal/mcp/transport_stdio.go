package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// stdioScanBuffer bounds a single JSON-RPC line from the server.
	stdioScanBuffer = 1024 * 1024

	defaultCallTimeout = 30 * time.Second
)

// StdioTransport speaks newline-delimited JSON-RPC to a subprocess over its
// stdin/stdout, the way MCP servers launched as local commands expect.
type StdioTransport struct {
	cfg    *ServerConfig
	logger *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	stderr  io.ReadCloser
	running bool

	nextID  atomic.Int64
	pending sync.Map // int64 -> chan *JSONRPCResponse

	done chan struct{}
}

// NewStdioTransport builds a transport for a stdio server config.
func NewStdioTransport(cfg *ServerConfig) *StdioTransport {
	return &StdioTransport{
		cfg:    cfg,
		logger: slog.Default().With("component", "mcp-stdio", "server", cfg.ID),
	}
}

// Connect launches the subprocess and starts the reader loop.
func (t *StdioTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return nil
	}

	cmd := exec.CommandContext(ctx, t.cfg.Command, t.cfg.Args...)
	cmd.Dir = t.cfg.WorkDir
	cmd.Env = os.Environ()
	for k, v := range t.cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return transportError(fmt.Errorf("stdin pipe: %w", err))
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return transportError(fmt.Errorf("stdout pipe: %w", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return transportError(fmt.Errorf("stderr pipe: %w", err))
	}

	if err := cmd.Start(); err != nil {
		return transportError(fmt.Errorf("start %s: %w", t.cfg.Command, err))
	}

	t.cmd = cmd
	t.stdin = stdin
	t.stdout = stdout
	t.stderr = stderr
	t.running = true
	t.done = make(chan struct{})

	go t.readLoop()
	go t.drainStderr()

	t.logger.Debug("mcp server started", "command", t.cfg.Command)
	return nil
}

// Close terminates the subprocess and fails all pending calls.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	stdin := t.stdin
	cmd := t.cmd
	done := t.done
	t.mu.Unlock()

	if stdin != nil {
		stdin.Close()
	}

	// Give the process a moment to exit on its own before killing it.
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		<-exited
	}

	<-done
	t.failPending(fmt.Errorf("transport closed"))
	return nil
}

// Connected reports whether the subprocess is still running.
func (t *StdioTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Call sends a request and waits for the matching response.
func (t *StdioTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !t.Connected() {
		return nil, transportError(fmt.Errorf("not connected"))
	}

	id := t.nextID.Add(1)
	req := JSONRPCRequest{JSONRPC: "2.0", ID: id, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, transportError(fmt.Errorf("marshal params: %w", err))
		}
		req.Params = raw
	}

	ch := make(chan *JSONRPCResponse, 1)
	t.pending.Store(id, ch)
	defer t.pending.Delete(id)

	if err := t.writeMessage(req); err != nil {
		return nil, err
	}

	timeout := t.cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, wrapRPCError(resp.Error)
		}
		return resp.Result, nil
	case <-timer.C:
		return nil, transportError(fmt.Errorf("call %s timed out after %s", method, timeout))
	case <-ctx.Done():
		return nil, transportError(ctx.Err())
	}
}

// Notify sends a notification without waiting for a response.
func (t *StdioTransport) Notify(ctx context.Context, method string, params any) error {
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
	return t.writeMessage(note)
}

func (t *StdioTransport) writeMessage(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return transportError(fmt.Errorf("marshal message: %w", err))
	}
	data = append(data, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return transportError(fmt.Errorf("not connected"))
	}
	if _, err := t.stdin.Write(data); err != nil {
		return transportError(fmt.Errorf("write: %w", err))
	}
	return nil
}

// readLoop delivers responses to their pending calls and logs everything else.
func (t *StdioTransport) readLoop() {
	defer close(t.done)

	scanner := bufio.NewScanner(t.stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), stdioScanBuffer)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp JSONRPCResponse
		if err := json.Unmarshal(line, &resp); err != nil || resp.ID == nil {
			// Server-initiated notifications are not consumed here.
			t.logger.Debug("ignoring non-response message", "size", len(line))
			continue
		}

		id, ok := responseID(resp.ID)
		if !ok {
			t.logger.Warn("response with unusable id", "id", resp.ID)
			continue
		}
		if ch, ok := t.pending.Load(id); ok {
			ch.(chan *JSONRPCResponse) <- &resp
		}
	}

	if err := scanner.Err(); err != nil {
		t.logger.Warn("mcp stdout closed with error", "error", err)
	}

	t.mu.Lock()
	t.running = false
	t.mu.Unlock()
	t.failPending(fmt.Errorf("server stdout closed"))
}

func (t *StdioTransport) drainStderr() {
	scanner := bufio.NewScanner(t.stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), stdioScanBuffer)
	for scanner.Scan() {
		t.logger.Debug("mcp server stderr", "line", scanner.Text())
	}
}

func (t *StdioTransport) failPending(cause error) {
	t.pending.Range(func(key, value any) bool {
		ch := value.(chan *JSONRPCResponse)
		select {
		case ch <- &JSONRPCResponse{
			JSONRPC: "2.0",
			Error:   &JSONRPCError{Code: ErrCodeInternalError, Message: cause.Error()},
		}:
		default:
		}
		t.pending.Delete(key)
		return true
	})
}

// responseID normalizes the wire id back to the int64 Call assigned.
func responseID(v any) (int64, bool) {
	switch id := v.(type) {
	case float64:
		return int64(id), true
	case int64:
		return id, true
	case json.Number:
		n, err := id.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}
