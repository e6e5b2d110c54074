// Package callbacks provides tools.Callback implementations
// for printing, logging and recording tool calls.
package callbacks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/effective-security/dataagents/tools"
	"github.com/effective-security/xlog"
)

// ensure that the callbacks implement the correct interfaces
var (
	_ tools.Callback = (*Noop)(nil)
	_ tools.Callback = (*Printer)(nil)
	_ tools.Callback = (*PackageLogger)(nil)
	_ tools.Callback = (*Fanout)(nil)
	_ tools.Callback = (*Recorder)(nil)
)

// Mode defines the mode for callback printing
type Mode int

const (
	// ModeDefault is the default mode for callback printing
	ModeDefault Mode = iota
	// ModeVerbose is the verbose mode for callback printing
	ModeVerbose
)

// Fanout is a callback handler that forwards the events to multiple callbacks.
type Fanout struct {
	callbacks []tools.Callback
}

func NewFanout(callbacks ...tools.Callback) *Fanout {
	return &Fanout{callbacks: callbacks}
}

func (l *Fanout) Add(callback tools.Callback) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) OnToolStart(ctx context.Context, server, tool, input string) {
	for _, callback := range l.callbacks {
		callback.OnToolStart(ctx, server, tool, input)
	}
}

func (l *Fanout) OnToolEnd(ctx context.Context, record *tools.CallRecord) {
	for _, callback := range l.callbacks {
		callback.OnToolEnd(ctx, record)
	}
}

// Noop does nothing.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (l *Noop) OnToolStart(ctx context.Context, server, tool, input string) {}
func (l *Noop) OnToolEnd(ctx context.Context, record *tools.CallRecord)    {}

// Printer is a callback handler that prints to the Writer.
type Printer struct {
	Out  io.Writer
	Mode Mode

	lock sync.Mutex
}

func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{Out: out, Mode: mode}
}

func (l *Printer) OnToolStart(ctx context.Context, server, tool, input string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Start: %s (%s)\n", tool, server)
	if l.Mode == ModeVerbose && input != "" {
		fmt.Fprintf(l.Out, "Input: %s\n", input)
	}
}

func (l *Printer) OnToolEnd(ctx context.Context, record *tools.CallRecord) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool End: %s (%s): %s in %s\n", record.Tool, record.Server, record.Outcome, record.Duration)
	if record.Message != "" {
		fmt.Fprintf(l.Out, "Message: %s\n", record.Message)
	}
}

// PackageLogger is a callback handler that prints to the logger.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnToolStart(ctx context.Context, server, tool, input string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_start",
		"server", server,
		"tool", tool,
		"input", input,
	)
}

func (l *PackageLogger) OnToolEnd(ctx context.Context, record *tools.CallRecord) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_end",
		"call_id", record.ID,
		"tool", record.Tool,
		"outcome", string(record.Outcome),
	)
}

// Recorder keeps the records of completed calls.
type Recorder struct {
	lock    sync.Mutex
	started int
	records []tools.CallRecord
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (l *Recorder) OnToolStart(ctx context.Context, server, tool, input string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.started++
}

func (l *Recorder) OnToolEnd(ctx context.Context, record *tools.CallRecord) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.records = append(l.records, *record)
}

// Started returns the number of started calls
func (l *Recorder) Started() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.started
}

// Records returns a copy of the completed call records
func (l *Recorder) Records() []tools.CallRecord {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]tools.CallRecord(nil), l.records...)
}
