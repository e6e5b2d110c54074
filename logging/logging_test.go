package logging_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/effective-security/dataagents/logging"
	"github.com/effective-security/dataagents/tools"
	"github.com/effective-security/xlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	defer xlog.SetGlobalLogLevel(xlog.ERROR)

	path := filepath.Join(t.TempDir(), "logs", "activity.log")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("previous run\n"), 0o644))

	l, err := logging.Open(&logging.Config{Path: path, Level: "debug"})
	require.NoError(t, err)
	assert.Equal(t, path, l.Path())

	r := tools.NewRegistry("etl_server")
	require.NoError(t, r.Register(tools.MustNew("echo", "echo", func(_ context.Context, in *struct {
		Text string `json:"text"`
	}) (string, error) {
		return in.Text, nil
	})))
	env := r.Call(context.Background(), "echo", []byte(`{"text":"hi"}`))
	require.True(t, env.Success)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(b)
	assert.True(t, strings.HasPrefix(out, "previous run\n"))
	assert.Contains(t, out, "echo")
	assert.Contains(t, out, "success")
	assert.Contains(t, out, "closed")
}

func TestParseLevel(t *testing.T) {
	tcases := map[string]xlog.LogLevel{
		"":        xlog.INFO,
		"DEBUG":   xlog.DEBUG,
		"warn":    xlog.WARNING,
		"error":   xlog.ERROR,
		" trace ": xlog.TRACE,
	}
	for in, exp := range tcases {
		lvl, err := logging.ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, exp, lvl, in)
	}

	_, err := logging.ParseLevel("verbose")
	assert.EqualError(t, err, "invalid log level: verbose")

	_, err = logging.Open(&logging.Config{Level: "verbose"})
	assert.Error(t, err)
}
