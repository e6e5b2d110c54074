package tools_test

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/dataagents/callbacks"
	"github.com/effective-security/dataagents/tools"
	"github.com/effective-security/xlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type analysisRequest struct {
	UserInput string `json:"user_input" jsonschema:"description=Business question" validate:"required"`
}

func newAnalysis(t *testing.T, fn func(context.Context, *analysisRequest) (string, error)) tools.ITool {
	tool, err := tools.New("get_analysis", "Answers business questions", fn)
	require.NoError(t, err)
	return tool
}

func TestRegistry_Register(t *testing.T) {
	r := tools.NewRegistry("analytics_server")
	assert.Equal(t, "analytics_server", r.Server())
	assert.Empty(t, r.List())

	a := newAnalysis(t, func(context.Context, *analysisRequest) (string, error) { return "", nil })
	b := tools.MustNew("echo", "echo", func(_ context.Context, in *struct {
		Text string `json:"text"`
	}) (string, error) {
		return in.Text, nil
	})

	require.NoError(t, r.Register(a, b))
	assert.EqualError(t, r.Register(a), "tool already registered: get_analysis")

	c := tools.MustNew("other", "other", func(context.Context, *struct{}) (int, error) { return 1, nil })
	assert.EqualError(t, r.Register(c, c), "tool already registered: other")
	_, ok := r.Get("other")
	assert.False(t, ok, "failed batch must not be registered")

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "get_analysis", list[0].Name)
	assert.Equal(t, "Answers business questions", list[0].Description)
	assert.NotNil(t, list[0].InputSchema)
	assert.Equal(t, "echo", list[1].Name)

	// every descriptor maps to exactly one callable
	for _, d := range list {
		tool, ok := r.Get(d.Name)
		require.True(t, ok)
		assert.Equal(t, d.Name, tool.Name())
	}
	assert.Len(t, r.Tools(), 2)

	js, err := json.Marshal(list[0])
	require.NoError(t, err)
	assert.Contains(t, string(js), `"inputSchema":{`)
	assert.Contains(t, string(js), `"required":["user_input"]`)
}

func TestRegistry_Call(t *testing.T) {
	rec := callbacks.NewRecorder()
	r := tools.NewRegistry("analytics_server", tools.WithCallbacks(rec))

	var lastInput string
	require.NoError(t, r.Register(
		newAnalysis(t, func(_ context.Context, in *analysisRequest) (string, error) {
			lastInput = in.UserInput
			return "[(1000,)]", nil
		}),
		tools.MustNew("fails", "always fails", func(context.Context, *struct{}) (string, error) {
			return "", errors.New("warehouse unavailable")
		}),
		tools.MustNew("panics", "always panics", func(context.Context, *struct{}) (string, error) {
			panic("nil map")
		}),
		tools.MustNew("schema", "returns a map", func(context.Context, *struct{}) (map[string]string, error) {
			return map[string]string{"id": "int", "name": "string"}, nil
		}),
	))

	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		env := r.Call(ctx, "get_analysis", json.RawMessage(`{"user_input": "total transactions last month"}`))
		require.True(t, env.Success)
		assert.Empty(t, env.Message)
		assert.Equal(t, "total transactions last month", lastInput)

		var payload string
		require.NoError(t, env.Decode(&payload))
		assert.Equal(t, "[(1000,)]", payload)
		assert.JSONEq(t, `{"success":true,"payload":"[(1000,)]"}`, env.JSON())
	})

	t.Run("structured", func(t *testing.T) {
		env := r.Dispatch(ctx, &tools.Call{Name: "schema"})
		require.True(t, env.Success)
		var payload map[string]string
		require.NoError(t, env.Decode(&payload))
		assert.Equal(t, map[string]string{"id": "int", "name": "string"}, payload)
	})

	t.Run("not_found", func(t *testing.T) {
		env := r.Call(ctx, "drop_database", nil)
		assert.False(t, env.Success)
		assert.Equal(t, "tool not implemented: drop_database", env.Message)
		assert.JSONEq(t, `{"success":false,"message":"tool not implemented: drop_database"}`, env.JSON())
	})

	t.Run("error", func(t *testing.T) {
		env := r.Call(ctx, "fails", nil)
		assert.False(t, env.Success)
		assert.Equal(t, "failed to execute tool 'fails': warehouse unavailable", env.Message)
	})

	t.Run("panic", func(t *testing.T) {
		var env *tools.Envelope
		assert.NotPanics(t, func() {
			env = r.Call(ctx, "panics", nil)
		})
		assert.False(t, env.Success)
		assert.Equal(t, "failed to execute tool 'panics': panic: nil map", env.Message)
	})

	t.Run("invalid_arguments", func(t *testing.T) {
		tcs := []struct {
			args string
			exp  string
		}{
			{args: ``, exp: "invalid arguments for tool 'get_analysis': missing required argument: user_input"},
			{args: `{"user_input": ""}`, exp: "invalid arguments for tool 'get_analysis': missing required argument: user_input"},
			{args: `{"user_input": "x", "limit": 1}`, exp: `invalid arguments for tool 'get_analysis': failed to decode arguments: json: unknown field "limit"`},
			{args: `{"user_input": 5}`, exp: "invalid arguments for tool 'get_analysis': failed to decode arguments"},
			{args: `[1,2]`, exp: "invalid arguments for tool 'get_analysis': arguments must be a JSON object"},
		}
		for _, tc := range tcs {
			env := r.Call(ctx, "get_analysis", json.RawMessage(tc.args))
			assert.False(t, env.Success, tc.args)
			assert.True(t, strings.HasPrefix(env.Message, tc.exp), "%s: %s", tc.args, env.Message)
		}
	})

	records := rec.Records()
	require.Len(t, records, 10)
	assert.Equal(t, 10, rec.Started())

	outcomes := map[tools.Outcome]int{}
	ids := map[string]bool{}
	for _, r := range records {
		outcomes[r.Outcome]++
		assert.NotEmpty(t, r.ID)
		assert.False(t, ids[r.ID], "call ids must be unique")
		ids[r.ID] = true
		assert.Equal(t, "analytics_server", r.Server)
	}
	assert.Equal(t, 2, outcomes[tools.OutcomeSuccess])
	assert.Equal(t, 1, outcomes[tools.OutcomeNotFound])
	assert.Equal(t, 2, outcomes[tools.OutcomeFailed])
	assert.Equal(t, 5, outcomes[tools.OutcomeInvalidArguments])
	assert.Equal(t, "get_analysis", records[0].Tool)
	assert.Equal(t, "drop_database", records[2].Tool)
}

func TestRegistry_OneLogRecordPerCall(t *testing.T) {
	var buf bytes.Buffer
	xlog.SetFormatter(xlog.NewStringFormatter(&buf))
	xlog.SetGlobalLogLevel(xlog.INFO)
	defer xlog.SetGlobalLogLevel(xlog.ERROR)

	rec := callbacks.NewRecorder()
	r := tools.NewRegistry("etl_server", tools.WithCallbacks(rec))
	require.NoError(t, r.Register(newAnalysis(t, func(context.Context, *analysisRequest) (string, error) {
		return "ok", nil
	})))

	ctx := context.Background()
	r.Call(ctx, "get_analysis", json.RawMessage(`{"user_input":"q"}`))
	r.Call(ctx, "unknown_tool", nil)

	records := rec.Records()
	require.Len(t, records, 2)

	out := buf.String()
	for _, record := range records {
		assert.Equal(t, 1, strings.Count(out, record.ID), "call %s must be logged once", record.Tool)
	}
	assert.Contains(t, out, "get_analysis")
	assert.Contains(t, out, "success")
	assert.Contains(t, out, "unknown_tool")
	assert.Contains(t, out, "not_found")
}

func TestRegistry_DispatchUnencodableArguments(t *testing.T) {
	var buf bytes.Buffer
	xlog.SetFormatter(xlog.NewStringFormatter(&buf))
	xlog.SetGlobalLogLevel(xlog.INFO)
	defer xlog.SetGlobalLogLevel(xlog.ERROR)

	rec := callbacks.NewRecorder()
	r := tools.NewRegistry("analytics_server", tools.WithCallbacks(rec))
	called := false
	require.NoError(t, r.Register(newAnalysis(t, func(context.Context, *analysisRequest) (string, error) {
		called = true
		return "ok", nil
	})))

	env := r.Dispatch(context.Background(), &tools.Call{
		Name:      "get_analysis",
		Arguments: map[string]any{"user_input": math.NaN()},
	})
	assert.False(t, env.Success)
	assert.True(t, strings.HasPrefix(env.Message, "invalid arguments for tool 'get_analysis': "), env.Message)
	assert.Contains(t, env.Message, "unsupported value: NaN")
	assert.False(t, called)

	assert.Equal(t, 1, rec.Started())
	records := rec.Records()
	require.Len(t, records, 1)
	assert.Equal(t, tools.OutcomeInvalidArguments, records[0].Outcome)
	assert.Equal(t, "get_analysis", records[0].Tool)
	assert.Equal(t, 1, strings.Count(buf.String(), records[0].ID))
}

func TestRegistry_CallsAreSerialized(t *testing.T) {
	var inFlight, maxInFlight int32
	r := tools.NewRegistry("s")
	require.NoError(t, r.Register(tools.MustNew("slow", "slow", func(context.Context, *struct{}) (bool, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return true, nil
	})))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env := r.Call(context.Background(), "slow", nil)
			assert.True(t, env.Success)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight))
}

func TestGetDescriptions(t *testing.T) {
	a := tools.MustNew("a", "tool A", func(context.Context, *struct{}) (string, error) { return "", nil })
	b := tools.MustNew("b", "tool B", func(context.Context, *struct{}) (string, error) { return "", nil })
	d := tools.GetDescriptions(a, b)
	assert.Contains(t, d, "```json")
	assert.Contains(t, d, `"Name": "a"`)
	assert.Contains(t, d, `"Description": "tool B"`)
}
