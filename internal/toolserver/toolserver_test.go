package toolserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/dataagents/config"
	"github.com/effective-security/dataagents/internal/toolserver"
	"github.com/effective-security/dataagents/mcp"
	"github.com/effective-security/dataagents/mcp/transport/stdio"
	"github.com/effective-security/dataagents/tools"
	"github.com/effective-security/xlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoRequest struct {
	Text string `json:"text" validate:"required"`
}

func echoTools(context.Context, *config.Config) ([]tools.ITool, error) {
	return []tools.ITool{
		tools.MustNew("echo", "Echoes the text", func(_ context.Context, in *echoRequest) (string, error) {
			return in.Text, nil
		}),
	}, nil
}

func TestRun(t *testing.T) {
	defer xlog.SetGlobalLogLevel(xlog.ERROR)

	logFile := filepath.Join(t.TempDir(), "activity.log")
	cfg := &config.Config{}
	cfg.Log.Path = logFile

	c2sR, c2sW := io.Pipe()
	s2cR, s2cW := io.Pipe()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- toolserver.Run(ctx, cfg, toolserver.Options{
			Name:         "echo_server",
			Version:      "1.0.0",
			Instructions: "echo things",
			Build:        echoTools,
			Transport:    stdio.New(c2sR, s2cW),
		})
	}()

	client := mcp.NewClient(stdio.New(s2cR, c2sW))
	require.NoError(t, client.Connect())

	info, err := client.Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, "echo_server", info.ServerInfo.Name)
	assert.Equal(t, "1.0.0", info.ServerInfo.Version)
	assert.True(t, strings.HasPrefix(info.Instructions, "echo things\n\nAvailable tools:"), info.Instructions)
	assert.Contains(t, info.Instructions, `"Name": "echo"`)
	assert.Contains(t, info.Instructions, `"Description": "Echoes the text"`)

	list, err := client.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "echo", list[0].Name)

	res, err := client.CallTool(ctx, "echo", map[string]any{"text": "hello"}, time.Second)
	require.NoError(t, err)
	env, err := res.Envelope()
	require.NoError(t, err)
	var out string
	require.NoError(t, env.Decode(&out))
	assert.Equal(t, "hello", out)

	require.NoError(t, client.Close())

	select {
	case err = <-errCh:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("server did not stop")
	}

	b, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(b), "echo_server")
	assert.Contains(t, string(b), "success")
}

func TestRun_InputClosedAfterCall(t *testing.T) {
	defer xlog.SetGlobalLogLevel(xlog.ERROR)

	logFile := filepath.Join(t.TempDir(), "activity.log")
	cfg := &config.Config{}
	cfg.Log.Path = logFile

	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"slow","arguments":{"text":"late"}}}`,
	}, "\n") + "\n"
	var out lockedBuffer

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := toolserver.Run(ctx, cfg, toolserver.Options{
		Name: "slow_server",
		Build: func(context.Context, *config.Config) ([]tools.ITool, error) {
			return []tools.ITool{
				tools.MustNew("slow", "Answers after a while", func(_ context.Context, in *echoRequest) (string, error) {
					time.Sleep(50 * time.Millisecond)
					return in.Text, nil
				}),
			}, nil
		},
		Transport: stdio.New(strings.NewReader(input), &out),
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2, out.String())

	byID := map[int]map[string]any{}
	for _, line := range lines {
		var msg map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &msg))
		byID[int(msg["id"].(float64))] = msg
	}
	require.Contains(t, byID, 1)
	require.Contains(t, byID, 2)
	assert.Contains(t, byID[2], "result")
	assert.Contains(t, lines[0]+lines[1], "late")

	b, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(b), "slow")
	assert.Contains(t, string(b), "success")
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRun_Cancelled(t *testing.T) {
	defer xlog.SetGlobalLogLevel(xlog.ERROR)

	cfg := &config.Config{}
	cfg.Log.Path = filepath.Join(t.TempDir(), "activity.log")

	c2sR, _ := io.Pipe()
	_, s2cW := io.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := toolserver.Run(ctx, cfg, toolserver.Options{
		Name:      "echo_server",
		Build:     echoTools,
		Transport: stdio.New(c2sR, s2cW),
	})
	assert.NoError(t, err)
}

func TestRun_Errors(t *testing.T) {
	defer xlog.SetGlobalLogLevel(xlog.ERROR)

	cfg := &config.Config{}
	cfg.Log.Path = filepath.Join(t.TempDir(), "activity.log")
	ctx := context.Background()

	err := toolserver.Run(ctx, cfg, toolserver.Options{Name: "empty"})
	assert.EqualError(t, err, "no tools for server empty")

	err = toolserver.Run(ctx, cfg, toolserver.Options{
		Name: "broken",
		Build: func(context.Context, *config.Config) ([]tools.ITool, error) {
			return nil, errors.New("no credentials")
		},
	})
	assert.EqualError(t, err, "failed to create broken tools: no credentials")

	cfg.Log.Level = "loud"
	err = toolserver.Run(ctx, cfg, toolserver.Options{Name: "echo", Build: echoTools})
	assert.EqualError(t, err, "invalid log level: loud")
}
