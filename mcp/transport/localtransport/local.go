// Package localtransport provides a stateless request/response transport
// that lets a MCP server be driven in-process, or from a HTTP handler,
// one message at a time.
package localtransport

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/dataagents/mcp/transport"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/dataagents/mcp/transport", "localtransport")

// Handler processes a single raw JSON-RPC message and returns the reply,
// or nil when the message does not produce one.
type Handler interface {
	HandleMessage(ctx context.Context, body []byte) (*transport.BaseJsonRpcMessage, error)
}

// Transport is the server side of the local transport.
type Transport struct {
	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()
	mu             sync.RWMutex
	responseMap    map[int64]chan *transport.BaseJsonRpcMessage
	atomicCounter  int64
}

// New returns a server side local transport
func New() *Transport {
	return &Transport{
		responseMap: make(map[int64]chan *transport.BaseJsonRpcMessage),
	}
}

// Start does nothing in the stateless local transport
func (s *Transport) Start(ctx context.Context) error {
	return nil
}

// Close closes the connection.
func (s *Transport) Close() error {
	s.mu.RLock()
	handler := s.closeHandler
	s.mu.RUnlock()
	if handler != nil {
		handler()
	}
	return nil
}

// SetErrorHandler sets the callback for when an error occurs.
func (s *Transport) SetErrorHandler(handler func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorHandler = handler
}

// SetCloseHandler sets the callback for when the connection is closed for any reason.
func (s *Transport) SetCloseHandler(handler func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeHandler = handler
}

// SetMessageHandler sets the callback for when a message is received over the connection.
func (s *Transport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageHandler = handler
}

// Send delivers a response to the pending HandleMessage call.
// Notifications have no back channel and are dropped.
func (s *Transport) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	if message.Type == transport.BaseMessageTypeJSONRPCNotificationType {
		logger.ContextKV(ctx, xlog.DEBUG, "reason", "dropped_notification", "method", message.JsonRpcNotification.Method)
		return nil
	}

	key := int64(message.MessageID())

	s.mu.RLock()
	responseChannel := s.responseMap[key]
	s.mu.RUnlock()

	if responseChannel == nil {
		return errors.Errorf("no response channel found for key: %d", key)
	}

	select {
	case responseChannel <- message:
	default:
		return errors.Errorf("response already sent for key: %d", key)
	}
	return nil
}

// HandleMessage processes an incoming message and returns the response.
// For notifications and responses the returned message is nil.
func (s *Transport) HandleMessage(ctx context.Context, body []byte) (*transport.BaseJsonRpcMessage, error) {
	msg, err := transport.ParseMessage(body)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	handler := s.messageHandler
	s.mu.RUnlock()
	if handler == nil {
		return nil, errors.New("transport is not connected")
	}

	if msg.Type != transport.BaseMessageTypeJSONRPCRequestType {
		handler(ctx, msg)
		return nil, nil
	}

	// request ids from independent callers may collide, use a private key
	key := atomic.AddInt64(&s.atomicCounter, 1)
	ch := make(chan *transport.BaseJsonRpcMessage, 1)

	s.mu.Lock()
	s.responseMap[key] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.responseMap, key)
		s.mu.Unlock()
	}()

	prevID := msg.MessageID()
	msg.SetMessageID(transport.RequestId(key))
	handler(ctx, msg)

	select {
	case response := <-ch:
		response.SetMessageID(prevID)
		return response, nil
	case <-ctx.Done():
		return nil, errors.WithStack(ctx.Err())
	}
}
