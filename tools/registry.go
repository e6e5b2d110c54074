package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/dataagents/pkg/metricskey"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/dataagents", "tools")

// Registry holds the tools advertised by a server and dispatches calls to them.
// Calls are serialized: at most one tool call is in flight per registry.
type Registry struct {
	server string

	lock  sync.RWMutex
	tools map[string]ITool
	order []ITool

	callLock  sync.Mutex
	callbacks []Callback
}

// Option configures the Registry
type Option func(*Registry)

// WithCallbacks adds callbacks notified on every call
func WithCallbacks(cb ...Callback) Option {
	return func(r *Registry) {
		r.callbacks = append(r.callbacks, cb...)
	}
}

// NewRegistry returns an empty registry for the named server
func NewRegistry(server string, opts ...Option) *Registry {
	r := &Registry{
		server: server,
		tools:  make(map[string]ITool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Server returns the name of the server the registry belongs to
func (r *Registry) Server() string {
	return r.server
}

// Register adds tools to the registry.
// Names must be unique; on error no tool from the list is registered.
func (r *Registry) Register(list ...ITool) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	seen := make(map[string]bool, len(list))
	for _, t := range list {
		if t == nil {
			return errors.New("tool is nil")
		}
		name := t.Name()
		if name == "" {
			return errors.New("tool name is empty")
		}
		if _, ok := r.tools[name]; ok || seen[name] {
			return errors.Errorf("tool already registered: %s", name)
		}
		seen[name] = true
	}

	for _, t := range list {
		r.tools[t.Name()] = t
		r.order = append(r.order, t)
	}
	return nil
}

// Get returns the tool by name
func (r *Registry) Get(name string) (ITool, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Tools returns the registered tools in registration order
func (r *Registry) Tools() []ITool {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return append([]ITool(nil), r.order...)
}

// List returns descriptors of the registered tools in registration order
func (r *Registry) List() []Descriptor {
	r.lock.RLock()
	defer r.lock.RUnlock()

	list := make([]Descriptor, 0, len(r.order))
	for _, t := range r.order {
		list = append(list, Descriptor{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.Parameters(),
		})
	}
	return list
}

// Dispatch invokes the tool named in the call
func (r *Registry) Dispatch(ctx context.Context, call *Call) *Envelope {
	var args json.RawMessage
	var argsErr error
	if len(call.Arguments) > 0 {
		args, argsErr = json.Marshal(call.Arguments)
	}
	return r.call(ctx, call.Name, args, argsErr)
}

// Call invokes the named tool with JSON arguments and returns the envelope.
// It never returns nil and never panics.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) *Envelope {
	return r.call(ctx, name, args, nil)
}

func (r *Registry) call(ctx context.Context, name string, args json.RawMessage, argsErr error) *Envelope {
	r.callLock.Lock()
	defer r.callLock.Unlock()

	rec := &CallRecord{
		ID:      uuid.NewString(),
		Server:  r.server,
		Tool:    name,
		Started: time.Now(),
	}

	for _, cb := range r.callbacks {
		cb.OnToolStart(ctx, r.server, name, string(args))
	}

	var env *Envelope
	if argsErr != nil {
		rec.Outcome = OutcomeInvalidArguments
		rec.Message = fmt.Sprintf("invalid arguments for tool '%s': %s", name, argsErr.Error())
		env = Failure(rec.Message)
	} else {
		env = r.invoke(ctx, rec, args)
	}
	rec.Duration = time.Since(rec.Started)

	r.record(ctx, rec)
	return env
}

func (r *Registry) invoke(ctx context.Context, rec *CallRecord, args json.RawMessage) (env *Envelope) {
	tool, ok := r.Get(rec.Tool)
	if !ok {
		rec.Outcome = OutcomeNotFound
		rec.Message = "tool not implemented: " + rec.Tool
		return Failure(rec.Message)
	}

	defer func() {
		if p := recover(); p != nil {
			rec.Outcome = OutcomeFailed
			rec.Message = fmt.Sprintf("failed to execute tool '%s': panic: %v", rec.Tool, p)
			env = Failure(rec.Message)
		}
	}()

	out, err := tool.Call(ctx, string(args))
	if err != nil {
		if errors.Is(err, ErrInvalidArguments) {
			rec.Outcome = OutcomeInvalidArguments
			rec.Message = fmt.Sprintf("invalid arguments for tool '%s': %s", rec.Tool, err.Error())
		} else {
			rec.Outcome = OutcomeFailed
			rec.Message = fmt.Sprintf("failed to execute tool '%s': %s", rec.Tool, err.Error())
		}
		return Failure(rec.Message)
	}

	rec.Outcome = OutcomeSuccess
	return Success(toPayload(out))
}

// toPayload returns the tool output as JSON,
// output that is not valid JSON is encoded as a string
func toPayload(out string) json.RawMessage {
	if json.Valid([]byte(out)) {
		return json.RawMessage(out)
	}
	js, _ := json.Marshal(out)
	return js
}

func (r *Registry) record(ctx context.Context, rec *CallRecord) {
	level := xlog.INFO
	switch rec.Outcome {
	case OutcomeSuccess:
		metricskey.StatsToolCallsSucceeded.IncrCounter(1, r.server, rec.Tool)
	case OutcomeNotFound:
		level = xlog.WARNING
		metricskey.StatsToolCallsNotFound.IncrCounter(1, r.server, rec.Tool)
	case OutcomeInvalidArguments:
		level = xlog.WARNING
		metricskey.StatsToolCallsInvalidArguments.IncrCounter(1, r.server, rec.Tool)
	default:
		level = xlog.ERROR
		metricskey.StatsToolCallsFailed.IncrCounter(1, r.server, rec.Tool)
	}
	metricskey.PerfToolCall.MeasureSince(rec.Started, r.server, rec.Tool)

	kv := []any{
		"call_id", rec.ID,
		"server", rec.Server,
		"tool", rec.Tool,
		"outcome", string(rec.Outcome),
		"duration", rec.Duration.String(),
	}
	if rec.Message != "" {
		kv = append(kv, "message", rec.Message)
	}
	logger.ContextKV(ctx, level, kv...)

	for _, cb := range r.callbacks {
		cb.OnToolEnd(ctx, rec)
	}
}
