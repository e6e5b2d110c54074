// Package stdio implements the MCP transport over a pair of byte streams,
// typically the process stdin and stdout.
//
// Framing of newline-delimited JSON-RPC is done by the mcp-golang stdio
// transport, messages are converted to and from the in-tree message model.
// When the input ends, the close handler runs before the output is closed,
// so requests already received still get their responses.
package stdio

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/dataagents/mcp/transport"
	"github.com/effective-security/xlog"
	mcptransport "github.com/metoro-io/mcp-golang/transport"
	mcpstdio "github.com/metoro-io/mcp-golang/transport/stdio"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/dataagents/mcp/transport", "stdio")

// Transport implements transport.Transport over a reader and a writer
type Transport struct {
	conn   *mcpstdio.StdioServerTransport
	closer []io.Closer

	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()

	mu sync.RWMutex

	started   bool
	inputOnce sync.Once
	inputDone chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// New returns a transport reading from r and writing to w.
// If r or w implement io.Closer, they are closed by Close.
func New(r io.Reader, w io.Writer) *Transport {
	t := newTransport(r, w)
	if c, ok := r.(io.Closer); ok {
		t.closer = append(t.closer, c)
	}
	if c, ok := w.(io.Closer); ok {
		t.closer = append(t.closer, c)
	}
	return t
}

// NewStdio returns a transport over the process stdin and stdout.
// The process streams are not closed by Close.
func NewStdio() *Transport {
	return newTransport(os.Stdin, os.Stdout)
}

func newTransport(r io.Reader, w io.Writer) *Transport {
	t := &Transport{
		inputDone: make(chan struct{}),
		done:      make(chan struct{}),
	}
	t.conn = mcpstdio.NewStdioServerTransportWithIO(&inputReader{r: r, onEnd: t.endOfInput}, w)
	t.conn.SetMessageHandler(t.dispatch)
	t.conn.SetErrorHandler(t.reportError)
	return t
}

// inputReader reports the end of the input once all data before it was read.
// Data is never returned together with an error.
type inputReader struct {
	r     io.Reader
	err   error
	onEnd func(error)
}

func (r *inputReader) Read(p []byte) (int, error) {
	if r.err != nil {
		r.onEnd(r.err)
		return 0, r.err
	}
	n, err := r.r.Read(p)
	if err != nil {
		if n > 0 {
			r.err = err
			return n, nil
		}
		r.onEnd(err)
	}
	return n, err
}

func (t *Transport) endOfInput(err error) {
	t.inputOnce.Do(func() {
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, os.ErrClosed) {
			t.reportError(errors.Wrap(err, "failed to read message"))
		}
		close(t.inputDone)
	})
}

// Start begins reading messages in a background goroutine
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return errors.New("transport already started")
	}
	t.started = true
	t.mu.Unlock()

	if err := t.conn.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start stdio transport")
	}

	go func() {
		select {
		case <-t.inputDone:
			logger.KV(xlog.DEBUG, "status", "input_closed")
			_ = t.Close()
		case <-t.done:
		}
	}()
	return nil
}

// Done returns a channel that is closed when the transport is closed
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

func (t *Transport) dispatch(ctx context.Context, wire *mcptransport.BaseJsonRpcMessage) {
	msg, err := fromWire(wire)
	if err != nil {
		logger.KV(xlog.ERROR, "reason", "parse", "err", err.Error())
		t.reportError(err)
		return
	}

	t.mu.RLock()
	handler := t.messageHandler
	t.mu.RUnlock()

	if handler != nil {
		handler(ctx, msg)
	}
}

func (t *Transport) reportError(err error) {
	t.mu.RLock()
	handler := t.errorHandler
	t.mu.RUnlock()
	if handler != nil {
		handler(err)
	}
}

// Send writes a message as a single line
func (t *Transport) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	select {
	case <-t.done:
		return errors.New("transport closed")
	default:
	}

	wire, err := toWire(message)
	if err != nil {
		return err
	}
	if err = t.conn.Send(ctx, wire); err != nil {
		return errors.Wrap(err, "failed to write message")
	}
	return nil
}

// Close invokes the close handler once, then closes the streams.
// Messages may still be sent from the close handler.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.RLock()
		handler := t.closeHandler
		t.mu.RUnlock()
		if handler != nil {
			handler()
		}

		close(t.done)
		err = t.conn.Close()
		for _, c := range t.closer {
			if cerr := c.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	})
	return err
}

// SetCloseHandler sets the callback for when the connection is closed for any reason.
func (t *Transport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}

// SetErrorHandler sets the callback for when an error occurs.
func (t *Transport) SetErrorHandler(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = handler
}

// SetMessageHandler sets the callback for when a message is received.
func (t *Transport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}

func fromWire(m *mcptransport.BaseJsonRpcMessage) (*transport.BaseJsonRpcMessage, error) {
	var body any
	switch m.Type {
	case mcptransport.BaseMessageTypeJSONRPCRequestType:
		body = m.JsonRpcRequest
	case mcptransport.BaseMessageTypeJSONRPCNotificationType:
		body = m.JsonRpcNotification
	case mcptransport.BaseMessageTypeJSONRPCResponseType:
		body = m.JsonRpcResponse
	case mcptransport.BaseMessageTypeJSONRPCErrorType:
		body = m.JsonRpcError
	default:
		return nil, errors.Errorf("unsupported message type: %s", m.Type)
	}

	js, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal message")
	}
	return transport.ParseMessage(js)
}

func toWire(m *transport.BaseJsonRpcMessage) (*mcptransport.BaseJsonRpcMessage, error) {
	switch m.Type {
	case transport.BaseMessageTypeJSONRPCRequestType:
		var req mcptransport.BaseJSONRPCRequest
		if err := convert(m.JsonRpcRequest, &req); err != nil {
			return nil, err
		}
		return mcptransport.NewBaseMessageRequest(&req), nil
	case transport.BaseMessageTypeJSONRPCNotificationType:
		var n mcptransport.BaseJSONRPCNotification
		if err := convert(m.JsonRpcNotification, &n); err != nil {
			return nil, err
		}
		return mcptransport.NewBaseMessageNotification(&n), nil
	case transport.BaseMessageTypeJSONRPCResponseType:
		var res mcptransport.BaseJSONRPCResponse
		if err := convert(m.JsonRpcResponse, &res); err != nil {
			return nil, err
		}
		return mcptransport.NewBaseMessageResponse(&res), nil
	case transport.BaseMessageTypeJSONRPCErrorType:
		var e mcptransport.BaseJSONRPCError
		if err := convert(m.JsonRpcError, &e); err != nil {
			return nil, err
		}
		return mcptransport.NewBaseMessageError(&e), nil
	}
	return nil, errors.Errorf("unsupported message type: %s", m.Type)
}

func convert(from, to any) error {
	js, err := json.Marshal(from)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}
	if err = json.Unmarshal(js, to); err != nil {
		return errors.Wrap(err, "failed to convert message")
	}
	return nil
}
