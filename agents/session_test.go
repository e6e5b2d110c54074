package agents_test

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/dataagents/agents"
	"github.com/effective-security/dataagents/callbacks"
	"github.com/effective-security/dataagents/mcp"
	"github.com/effective-security/dataagents/mcp/transport/httptransport"
	"github.com/effective-security/dataagents/mcp/transport/localtransport"
	"github.com/effective-security/dataagents/mcp/transport/stdio"
	"github.com/effective-security/dataagents/tools"
	"github.com/effective-security/xlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const envServeTools = "AGENTS_TEST_SERVE_TOOLS"

// TestMain runs the test binary as a tool server when started by a session
func TestMain(m *testing.M) {
	if os.Getenv(envServeTools) == "1" {
		xlog.SetFormatter(xlog.NewStringFormatter(io.Discard))
		srv := mcp.NewServer(newRegistry())
		if err := srv.Serve(stdio.NewStdio()); err != nil {
			os.Exit(1)
		}
		_ = srv.Wait(context.Background())
		os.Exit(0)
	}
	os.Exit(m.Run())
}

type questionRequest struct {
	UserInput string `json:"user_input" validate:"required"`
}

func newRegistry() *tools.Registry {
	r := tools.NewRegistry("analytics_server")
	_ = r.Register(
		tools.MustNew("get_analysis", "Answers business questions",
			func(_ context.Context, in *questionRequest) (string, error) {
				if in.UserInput == "fail" {
					return "", errors.New("warehouse unavailable")
				}
				return "[(1000,)]", nil
			}),
		tools.MustNew("sleep", "Sleeps",
			func(ctx context.Context, _ *struct{}) (string, error) {
				select {
				case <-ctx.Done():
					return "", ctx.Err()
				case <-time.After(5 * time.Second):
					return "done", nil
				}
			}),
	)
	return r
}

func localSession(t *testing.T, def *agents.Definition, opts ...agents.Option) *agents.Session {
	srvTransport := localtransport.New()
	srv := mcp.NewServer(newRegistry())
	require.NoError(t, srv.Serve(srvTransport))

	client := mcp.NewClient(localtransport.NewClient(srvTransport))
	require.NoError(t, client.Connect())

	s, err := agents.NewSession(context.Background(), def, client, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestSession(t *testing.T) {
	rec := callbacks.NewRecorder()
	def := &agents.Definition{Name: "analytics_agent", Command: "analytics-server"}
	s := localSession(t, def, agents.WithCallback(rec))
	ctx := context.Background()

	assert.Equal(t, "analytics_server", s.Server())
	assert.Same(t, def, s.Definition())

	list, err := s.Tools(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "get_analysis", list[0].Name)
	assert.Contains(t, agents.Describe(def, list), "  - get_analysis: Answers business questions\n")

	env, err := s.Call(ctx, "get_analysis", map[string]any{"user_input": "total transactions last month"})
	require.NoError(t, err)
	assert.True(t, env.Success)
	var payload string
	require.NoError(t, env.Decode(&payload))
	assert.Equal(t, "[(1000,)]", payload)

	env, err = s.Call(ctx, "get_analysis", map[string]any{"user_input": "fail"})
	require.NoError(t, err)
	assert.False(t, env.Success)
	assert.Equal(t, "failed to execute tool 'get_analysis': warehouse unavailable", env.Message)

	env, err = s.Call(ctx, "get_analysis", map[string]any{})
	require.NoError(t, err)
	assert.False(t, env.Success)

	env, err = s.Call(ctx, "drop_table", nil)
	require.NoError(t, err)
	assert.False(t, env.Success)

	assert.Equal(t, 4, rec.Started())
	records := rec.Records()
	require.Len(t, records, 4)
	assert.Equal(t, tools.OutcomeSuccess, records[0].Outcome)
	assert.Equal(t, tools.OutcomeFailed, records[1].Outcome)
	assert.Equal(t, tools.OutcomeInvalidArguments, records[2].Outcome)
	assert.Equal(t, tools.OutcomeNotFound, records[3].Outcome)
	for _, r := range records {
		assert.NotEmpty(t, r.ID)
		assert.Equal(t, "analytics_server", r.Server)
	}
}

func TestSession_Timeout(t *testing.T) {
	rec := callbacks.NewRecorder()
	s := localSession(t, &agents.Definition{
		Name:    "analytics_agent",
		Command: "analytics-server",
		Timeout: 100 * time.Millisecond,
	}, agents.WithCallback(rec))

	_, err := s.Call(context.Background(), "sleep", nil)
	require.Error(t, err)

	records := rec.Records()
	require.Len(t, records, 1)
	assert.Equal(t, tools.OutcomeFailed, records[0].Outcome)
	assert.Contains(t, records[0].Message, "analytics_agent: sleep")
}

func TestConnect(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	var stderr bytes.Buffer
	var out bytes.Buffer
	def := &agents.Definition{
		Name:    "analytics_agent",
		Command: exe,
		Env:     []string{envServeTools + "=1"},
		Timeout: 10 * time.Second,
	}

	ctx := context.Background()
	s, err := agents.Connect(ctx, def, &stderr, agents.WithCallback(callbacks.NewPrinter(&out, callbacks.ModeDefault)))
	require.NoError(t, err)

	env, err := s.Call(ctx, "get_analysis", map[string]any{"user_input": "total transactions last month"})
	require.NoError(t, err)
	assert.True(t, env.Success)
	assert.Equal(t, `{"success":true,"payload":"[(1000,)]"}`, env.JSON())

	require.NoError(t, s.Close())
	assert.Contains(t, out.String(), "Tool Start: get_analysis (analytics_server)")
	assert.Contains(t, out.String(), "Tool End: get_analysis (analytics_server): success")
}

func TestConnect_HTTP(t *testing.T) {
	tr := httptransport.NewHTTPTransport("")
	srv := mcp.NewServer(newRegistry())
	// served by httptest, the transport does not listen
	require.NoError(t, srv.Serve(tr.Transport))
	httpSrv := httptest.NewServer(tr.Handler())
	defer httpSrv.Close()

	ctx := context.Background()
	s, err := agents.Connect(ctx, &agents.Definition{
		Name: "analytics_agent",
		URL:  httpSrv.URL + httptransport.DefaultEndpoint,
	}, io.Discard)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "analytics_server", s.Server())
	env, err := s.Call(ctx, "get_analysis", map[string]any{"user_input": "total"})
	require.NoError(t, err)
	assert.True(t, env.Success)
}

func TestConnect_Errors(t *testing.T) {
	_, err := agents.Connect(context.Background(), &agents.Definition{
		Name:    "data_agent",
		Command: "/non-existent/etl-server",
	}, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start /non-existent/etl-server")
}
