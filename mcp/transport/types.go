package transport

import (
	"bytes"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// JSON-RPC error codes used by the protocol layer.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
	ErrCodeServerError    = -32000
)

// RequestId is the JSON-RPC request identifier.
// Only numeric identifiers are supported.
type RequestId int64

// JsonRpcBody is the result of a request handler, marshaled into the response.
type JsonRpcBody any

// BaseJSONRPCRequest is a request that expects a response.
type BaseJSONRPCRequest struct {
	// Id is the request identifier
	Id RequestId `json:"id"`
	// Jsonrpc is always "2.0"
	Jsonrpc string `json:"jsonrpc"`
	// Method is the name of the method to invoke
	Method string `json:"method"`
	// Params is the raw method parameters
	Params json.RawMessage `json:"params,omitempty"`
}

// BaseJSONRPCNotification is a one-way message that does not expect a response.
type BaseJSONRPCNotification struct {
	Jsonrpc string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// BaseJSONRPCResponse is a successful response to a request.
type BaseJSONRPCResponse struct {
	Id      RequestId       `json:"id"`
	Jsonrpc string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
}

// BaseJSONRPCErrorInner is the error object of a failed response.
type BaseJSONRPCErrorInner struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// BaseJSONRPCError is a response to a request that indicates an error occurred.
type BaseJSONRPCError struct {
	Id      RequestId             `json:"id"`
	Jsonrpc string                `json:"jsonrpc"`
	Error   BaseJSONRPCErrorInner `json:"error"`
}

// BaseMessageType discriminates the kind of message carried by BaseJsonRpcMessage.
type BaseMessageType string

const (
	BaseMessageTypeJSONRPCRequestType      BaseMessageType = "request"
	BaseMessageTypeJSONRPCNotificationType BaseMessageType = "notification"
	BaseMessageTypeJSONRPCResponseType     BaseMessageType = "response"
	BaseMessageTypeJSONRPCErrorType        BaseMessageType = "error"
)

// BaseJsonRpcMessage is a union of the four JSON-RPC message kinds.
type BaseJsonRpcMessage struct {
	Type                BaseMessageType
	JsonRpcRequest      *BaseJSONRPCRequest
	JsonRpcNotification *BaseJSONRPCNotification
	JsonRpcResponse     *BaseJSONRPCResponse
	JsonRpcError        *BaseJSONRPCError
}

// NewBaseMessageRequest wraps a request
func NewBaseMessageRequest(request *BaseJSONRPCRequest) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:           BaseMessageTypeJSONRPCRequestType,
		JsonRpcRequest: request,
	}
}

// NewBaseMessageNotification wraps a notification
func NewBaseMessageNotification(notification *BaseJSONRPCNotification) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:                BaseMessageTypeJSONRPCNotificationType,
		JsonRpcNotification: notification,
	}
}

// NewBaseMessageResponse wraps a response
func NewBaseMessageResponse(response *BaseJSONRPCResponse) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:            BaseMessageTypeJSONRPCResponseType,
		JsonRpcResponse: response,
	}
}

// NewBaseMessageError wraps an error response
func NewBaseMessageError(response *BaseJSONRPCError) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:         BaseMessageTypeJSONRPCErrorType,
		JsonRpcError: response,
	}
}

// MessageID returns the identifier of a request, response or error.
// Notifications have no identifier and return 0.
func (m *BaseJsonRpcMessage) MessageID() RequestId {
	switch m.Type {
	case BaseMessageTypeJSONRPCRequestType:
		return m.JsonRpcRequest.Id
	case BaseMessageTypeJSONRPCResponseType:
		return m.JsonRpcResponse.Id
	case BaseMessageTypeJSONRPCErrorType:
		return m.JsonRpcError.Id
	}
	return 0
}

// SetMessageID replaces the identifier of a request, response or error.
func (m *BaseJsonRpcMessage) SetMessageID(id RequestId) {
	switch m.Type {
	case BaseMessageTypeJSONRPCRequestType:
		m.JsonRpcRequest.Id = id
	case BaseMessageTypeJSONRPCResponseType:
		m.JsonRpcResponse.Id = id
	case BaseMessageTypeJSONRPCErrorType:
		m.JsonRpcError.Id = id
	}
}

// MarshalJSON marshals the carried message only.
func (m *BaseJsonRpcMessage) MarshalJSON() ([]byte, error) {
	switch m.Type {
	case BaseMessageTypeJSONRPCRequestType:
		return json.Marshal(m.JsonRpcRequest)
	case BaseMessageTypeJSONRPCNotificationType:
		return json.Marshal(m.JsonRpcNotification)
	case BaseMessageTypeJSONRPCResponseType:
		return json.Marshal(m.JsonRpcResponse)
	case BaseMessageTypeJSONRPCErrorType:
		return json.Marshal(m.JsonRpcError)
	}
	return nil, errors.Errorf("unknown message type: %q", m.Type)
}

// envelope is used to discriminate incoming messages by the presence of fields.
type envelope struct {
	Jsonrpc string          `json:"jsonrpc"`
	Id      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

// ParseMessage decodes a single JSON-RPC message.
func ParseMessage(data []byte) (*BaseJsonRpcMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(err, "invalid JSON-RPC message")
	}
	if env.Jsonrpc != "2.0" {
		return nil, errors.Errorf("unsupported JSON-RPC version: %q", env.Jsonrpc)
	}

	hasID := len(env.Id) > 0 && !bytes.Equal(env.Id, []byte("null"))
	var id RequestId
	if hasID {
		if err := json.Unmarshal(env.Id, &id); err != nil {
			return nil, errors.Errorf("unsupported request id: %s", string(env.Id))
		}
	}

	switch {
	case env.Method != "" && hasID:
		return NewBaseMessageRequest(&BaseJSONRPCRequest{
			Id:      id,
			Jsonrpc: env.Jsonrpc,
			Method:  env.Method,
			Params:  env.Params,
		}), nil
	case env.Method != "":
		return NewBaseMessageNotification(&BaseJSONRPCNotification{
			Jsonrpc: env.Jsonrpc,
			Method:  env.Method,
			Params:  env.Params,
		}), nil
	case len(env.Error) > 0:
		var inner BaseJSONRPCErrorInner
		if err := json.Unmarshal(env.Error, &inner); err != nil {
			return nil, errors.Wrap(err, "invalid JSON-RPC error object")
		}
		return NewBaseMessageError(&BaseJSONRPCError{
			Id:      id,
			Jsonrpc: env.Jsonrpc,
			Error:   inner,
		}), nil
	case hasID && len(env.Result) > 0:
		return NewBaseMessageResponse(&BaseJSONRPCResponse{
			Id:      id,
			Jsonrpc: env.Jsonrpc,
			Result:  env.Result,
		}), nil
	}
	return nil, errors.New("message is neither request, notification nor response")
}
