// Package logging opens the append-only activity log of a tool server.
//
// Tool servers talk to the orchestrator over stdout,
// so all log output goes to the activity file and never to stdout.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/dataagents", "logging")

// DefaultFile is the name of the activity log
const DefaultFile = "mcp_server_activity.log"

// Config of the activity log
type Config struct {
	// Path of the log file, DefaultFile in the working directory when empty
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
	// Level is one of trace|debug|info|notice|warning|error|critical
	Level string `json:"level,omitempty" yaml:"level,omitempty" validate:"omitempty,oneof=trace debug info notice warning error critical"`
}

// ActivityLog is the open log file
type ActivityLog struct {
	path string

	lock sync.Mutex
	file *os.File
}

// Open opens the log file for append, and directs the process logs to it
func Open(cfg *Config) (*ActivityLog, error) {
	path := cfg.Path
	if path == "" {
		path = DefaultFile
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create log folder")
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open activity log")
	}

	xlog.SetFormatter(xlog.NewStringFormatter(f))
	xlog.SetGlobalLogLevel(level)

	logger.KV(xlog.INFO, "status", "opened", "path", path, "pid", os.Getpid())
	return &ActivityLog{path: path, file: f}, nil
}

// Path returns the path of the log file
func (l *ActivityLog) Path() string {
	return l.path
}

// Close flushes and closes the file.
// Later log output is discarded.
func (l *ActivityLog) Close() error {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.file == nil {
		return nil
	}
	logger.KV(xlog.INFO, "status", "closed", "path", l.path)

	xlog.SetFormatter(xlog.NewStringFormatter(io.Discard))
	err := l.file.Sync()
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	l.file = nil
	return errors.WithStack(err)
}

// ParseLevel returns the log level by name, INFO when empty
func ParseLevel(level string) (xlog.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "":
		return xlog.INFO, nil
	case "trace":
		return xlog.TRACE, nil
	case "debug":
		return xlog.DEBUG, nil
	case "info":
		return xlog.INFO, nil
	case "notice":
		return xlog.NOTICE, nil
	case "warning", "warn":
		return xlog.WARNING, nil
	case "error":
		return xlog.ERROR, nil
	case "critical":
		return xlog.CRITICAL, nil
	}
	return xlog.INFO, errors.Errorf("invalid log level: %s", level)
}
