// Package protocol implements JSON-RPC framing on top of a pluggable transport.
//
// It handles the protocol-level concerns of MCP messaging:
//   - request/response correlation using per-request channels
//   - one-way notifications
//   - request cancellation via `notifications/cancelled`
//   - request timeouts
//   - error propagation with JSON-RPC error codes
//
// Usage:
//
//	p := protocol.NewProtocol(nil)
//	p.SetRequestHandler("ping", handler)
//	if err := p.Connect(tr); err != nil {
//		return err
//	}
//	defer p.Close()
//
//	res, err := p.Request(ctx, "ping", nil, &protocol.RequestOptions{Timeout: 5 * time.Second})
package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/dataagents/mcp/transport"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/dataagents/mcp/internal", "protocol")

// DefaultRequestTimeout is used when RequestOptions does not specify a timeout
const DefaultRequestTimeout = 60 * time.Second

// Method names handled by the protocol layer itself
const (
	MethodCancelled   = "notifications/cancelled"
	MethodInitialized = "notifications/initialized"
)

// ErrClosed is returned to pending requests when the transport closes
var ErrClosed = errors.New("connection closed")

// RPCError is an error carrying a JSON-RPC error code.
// Request handlers return it to control the code sent to the peer,
// and Request returns it when the peer responds with an error.
type RPCError struct {
	Code    int
	Message string
}

// Error implements error
func (e *RPCError) Error() string {
	return e.Message
}

// NewRPCError returns a new RPCError
func NewRPCError(code int, format string, args ...any) *RPCError {
	return &RPCError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// ProtocolOptions contains additional initialization options
type ProtocolOptions struct {
	// RequestTimeout overrides DefaultRequestTimeout for all requests
	RequestTimeout time.Duration
}

// RequestOptions contains options that can be given per request
type RequestOptions struct {
	// Timeout specifies a timeout for this request.
	// If not specified, the protocol default is used.
	Timeout time.Duration
}

// RequestHandler handles a request and returns the result to be marshaled into the response
type RequestHandler func(ctx context.Context, request *transport.BaseJSONRPCRequest) (transport.JsonRpcBody, error)

// NotificationHandler handles a notification
type NotificationHandler func(notification *transport.BaseJSONRPCNotification) error

// Protocol implements MCP protocol framing on top of a pluggable transport,
// including request/response linking, notifications and cancellation.
type Protocol struct {
	transport transport.Transport
	timeout   time.Duration

	requestMessageID transport.RequestId
	mu               sync.RWMutex
	closed           bool
	inflight         sync.WaitGroup

	requestHandlers      map[string]RequestHandler
	requestCancellers    map[transport.RequestId]context.CancelFunc
	notificationHandlers map[string]NotificationHandler
	responseHandlers     map[transport.RequestId]chan *responseEnvelope

	// OnClose is called when the connection is closed for any reason
	OnClose func()
	// OnError is called when an error occurs out of band
	OnError func(error)
	// FallbackRequestHandler is invoked for requests that do not have their own handler
	FallbackRequestHandler RequestHandler
}

type responseEnvelope struct {
	response json.RawMessage
	err      error
}

// NewProtocol creates a new Protocol instance
func NewProtocol(options *ProtocolOptions) *Protocol {
	p := &Protocol{
		timeout:              DefaultRequestTimeout,
		requestHandlers:      make(map[string]RequestHandler),
		requestCancellers:    make(map[transport.RequestId]context.CancelFunc),
		notificationHandlers: make(map[string]NotificationHandler),
		responseHandlers:     make(map[transport.RequestId]chan *responseEnvelope),
	}
	if options != nil && options.RequestTimeout > 0 {
		p.timeout = options.RequestTimeout
	}

	p.SetNotificationHandler(MethodCancelled, p.handleCancelledNotification)
	p.SetNotificationHandler(MethodInitialized, p.handleInitializedNotification)

	return p
}

// Connect attaches to the given transport, starts it, and starts listening for messages
func (p *Protocol) Connect(tr transport.Transport) error {
	p.transport = tr

	tr.SetCloseHandler(p.handleClose)
	tr.SetErrorHandler(p.handleError)
	tr.SetMessageHandler(func(ctx context.Context, message *transport.BaseJsonRpcMessage) {
		switch message.Type {
		case transport.BaseMessageTypeJSONRPCRequestType:
			p.handleRequest(ctx, message.JsonRpcRequest)
		case transport.BaseMessageTypeJSONRPCNotificationType:
			p.handleNotification(message.JsonRpcNotification)
		case transport.BaseMessageTypeJSONRPCResponseType:
			p.handleResponse(message.MessageID(), message.JsonRpcResponse.Result, nil)
		case transport.BaseMessageTypeJSONRPCErrorType:
			inner := message.JsonRpcError.Error
			p.handleResponse(message.MessageID(), nil, &RPCError{Code: inner.Code, Message: inner.Message})
		}
	})

	return tr.Start(context.Background())
}

// handleClose is invoked by the transport. Requests already received
// complete and send their responses before OnClose is called.
func (p *Protocol) handleClose() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.inflight.Wait()

	p.mu.Lock()
	for id, ch := range p.responseHandlers {
		select {
		case ch <- &responseEnvelope{err: ErrClosed}:
		default:
		}
		delete(p.responseHandlers, id)
	}
	onClose := p.OnClose
	p.mu.Unlock()

	if onClose != nil {
		onClose()
	}
}

func (p *Protocol) handleError(err error) {
	logger.KV(xlog.DEBUG, "reason", "transport", "err", err.Error())
	if p.OnError != nil {
		p.OnError(err)
	}
}

func (p *Protocol) handleNotification(notification *transport.BaseJSONRPCNotification) {
	logger.KV(xlog.DEBUG, "method", notification.Method)

	p.mu.RLock()
	handler := p.notificationHandlers[notification.Method]
	p.mu.RUnlock()

	if handler == nil {
		return
	}

	if err := handler(notification); err != nil {
		p.handleError(errors.Wrapf(err, "notification handler error: %s", notification.Method))
	}
}

func (p *Protocol) handleRequest(ctx context.Context, request *transport.BaseJSONRPCRequest) {
	logger.KV(xlog.DEBUG,
		"method", request.Method,
		"id", request.Id,
	)

	p.mu.RLock()
	handler := p.requestHandlers[request.Method]
	if handler == nil {
		handler = p.FallbackRequestHandler
	}
	p.mu.RUnlock()

	if handler == nil {
		handler = func(_ context.Context, req *transport.BaseJSONRPCRequest) (transport.JsonRpcBody, error) {
			return nil, NewRPCError(transport.ErrCodeMethodNotFound, "method not found: %s", req.Method)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cancel()
		logger.KV(xlog.DEBUG, "reason", "closed", "method", request.Method, "id", request.Id)
		return
	}
	p.requestCancellers[request.Id] = cancel
	p.inflight.Add(1)
	p.mu.Unlock()

	go func() {
		defer func() {
			p.mu.Lock()
			delete(p.requestCancellers, request.Id)
			p.mu.Unlock()
			cancel()
			p.inflight.Done()
		}()

		result, err := handler(ctx, request)
		if err != nil {
			logger.KV(xlog.DEBUG, "method", request.Method, "id", request.Id, "err", err.Error())
			p.sendErrorResponse(request.Id, err)
			return
		}

		jsonResult, err := json.Marshal(result)
		if err != nil {
			p.sendErrorResponse(request.Id, errors.Wrap(err, "failed to marshal result"))
			return
		}
		response := &transport.BaseJSONRPCResponse{
			Jsonrpc: "2.0",
			Id:      request.Id,
			Result:  jsonResult,
		}

		// the response is sent even if the request was cancelled, the peer ignores unknown ids
		if err := p.transport.Send(context.Background(), transport.NewBaseMessageResponse(response)); err != nil {
			p.handleError(errors.Wrap(err, "failed to send response"))
		}
	}()
}

func (p *Protocol) handleInitializedNotification(notification *transport.BaseJSONRPCNotification) error {
	logger.KV(xlog.DEBUG, "method", notification.Method)
	return nil
}

func (p *Protocol) handleCancelledNotification(notification *transport.BaseJSONRPCNotification) error {
	var params struct {
		RequestId transport.RequestId `json:"requestId"`
		Reason    string              `json:"reason"`
	}

	if err := json.Unmarshal(notification.Params, &params); err != nil {
		return errors.Wrap(err, "failed to unmarshal cancelled params")
	}

	p.mu.RLock()
	cancel := p.requestCancellers[params.RequestId]
	p.mu.RUnlock()

	if cancel != nil {
		logger.KV(xlog.DEBUG, "cancelled", params.RequestId, "reason", params.Reason)
		cancel()
	}

	return nil
}

func (p *Protocol) handleResponse(id transport.RequestId, result json.RawMessage, err error) {
	p.mu.RLock()
	ch := p.responseHandlers[id]
	p.mu.RUnlock()

	if ch == nil {
		logger.KV(xlog.DEBUG, "reason", "unknown_response", "id", id)
		return
	}

	select {
	case ch <- &responseEnvelope{response: result, err: err}:
	default:
	}
}

// Close cancels the requests in flight and closes the connection
func (p *Protocol) Close() error {
	p.mu.Lock()
	for _, cancel := range p.requestCancellers {
		cancel()
	}
	p.mu.Unlock()

	if p.transport != nil {
		return p.transport.Close()
	}
	return nil
}

// Request sends a request and waits for a response
func (p *Protocol) Request(ctx context.Context, method string, params any, opts *RequestOptions) (json.RawMessage, error) {
	if p.transport == nil {
		return nil, errors.New("not connected")
	}

	timeout := p.timeout
	if opts != nil && opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	p.requestMessageID++
	id := p.requestMessageID
	ch := make(chan *responseEnvelope, 1)
	p.responseHandlers[id] = ch
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.responseHandlers, id)
		p.mu.Unlock()
	}()

	var marshalledParams json.RawMessage
	if params != nil {
		var err error
		marshalledParams, err = json.Marshal(params)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal params")
		}
	}

	request := &transport.BaseJSONRPCRequest{
		Jsonrpc: "2.0",
		Method:  method,
		Params:  marshalledParams,
		Id:      id,
	}

	if err := p.transport.Send(ctx, transport.NewBaseMessageRequest(request)); err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case envelope := <-ch:
		if envelope.err != nil {
			return nil, envelope.err
		}
		return envelope.response, nil
	case <-ctx.Done():
		p.sendCancelNotification(id, ctx.Err().Error())
		return nil, errors.WithStack(ctx.Err())
	case <-timer.C:
		p.sendCancelNotification(id, "request timeout")
		return nil, errors.Errorf("request timeout after %v: %s", timeout, method)
	}
}

func (p *Protocol) sendCancelNotification(requestID transport.RequestId, reason string) {
	err := p.Notification(MethodCancelled, map[string]any{
		"requestId": requestID,
		"reason":    reason,
	})
	if err != nil {
		p.handleError(errors.Wrap(err, "failed to send cancel notification"))
	}
}

func (p *Protocol) sendErrorResponse(requestID transport.RequestId, err error) {
	code := transport.ErrCodeServerError
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		code = rpcErr.Code
	}

	response := &transport.BaseJSONRPCError{
		Jsonrpc: "2.0",
		Id:      requestID,
		Error: transport.BaseJSONRPCErrorInner{
			Code:    code,
			Message: err.Error(),
		},
	}

	if err := p.transport.Send(context.Background(), transport.NewBaseMessageError(response)); err != nil {
		p.handleError(errors.Wrap(err, "failed to send error response"))
	}
}

// Notification emits a notification, which is a one-way message that does not expect a response
func (p *Protocol) Notification(method string, params any) error {
	if p.transport == nil {
		return errors.New("not connected")
	}

	var marshalled json.RawMessage
	if params != nil {
		var err error
		marshalled, err = json.Marshal(params)
		if err != nil {
			return errors.Wrap(err, "failed to marshal notification params")
		}
	}

	notification := &transport.BaseJSONRPCNotification{
		Jsonrpc: "2.0",
		Method:  method,
		Params:  marshalled,
	}

	return p.transport.Send(context.Background(), transport.NewBaseMessageNotification(notification))
}

// SetRequestHandler registers a handler to invoke when this protocol object receives a request with the given method
func (p *Protocol) SetRequestHandler(method string, handler RequestHandler) {
	p.mu.Lock()
	p.requestHandlers[method] = handler
	p.mu.Unlock()
}

// RemoveRequestHandler removes the request handler for the given method
func (p *Protocol) RemoveRequestHandler(method string) {
	p.mu.Lock()
	delete(p.requestHandlers, method)
	p.mu.Unlock()
}

// SetNotificationHandler registers a handler to invoke when this protocol object receives a notification with the given method
func (p *Protocol) SetNotificationHandler(method string, handler NotificationHandler) {
	p.mu.Lock()
	p.notificationHandlers[method] = handler
	p.mu.Unlock()
}

// RemoveNotificationHandler removes the notification handler for the given method
func (p *Protocol) RemoveNotificationHandler(method string) {
	p.mu.Lock()
	delete(p.notificationHandlers, method)
	p.mu.Unlock()
}
