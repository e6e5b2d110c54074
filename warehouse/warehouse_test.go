package warehouse

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/effective-security/dataagents/gcpauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, maxRows int) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), &Config{
		Config:   gcpauth.Config{Project: "test-project"},
		MaxRows:  maxRows,
		Endpoint: srv.URL + "/",
		Location: "US",
		Timeout:  5 * time.Second,
	}, option.WithoutAuthentication())
	require.NoError(t, err)
	c.poll = time.Millisecond
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

var schema = map[string]any{
	"fields": []map[string]any{
		{"name": "company_name", "type": "STRING"},
		{"name": "total", "type": "INTEGER"},
	},
}

func rows(vals ...[]any) []map[string]any {
	var list []map[string]any
	for _, v := range vals {
		var cells []map[string]any
		for _, c := range v {
			cells = append(cells, map[string]any{"v": c})
		}
		list = append(list, map[string]any{"f": cells})
	}
	return list
}

func TestQuery_Pages(t *testing.T) {
	var polls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/projects/test-project/queries":
			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "SELECT company_name, COUNT(*) AS total FROM t", req["query"])
			assert.Equal(t, false, req["useLegacySql"])
			assert.Equal(t, "US", req["location"])
			writeJSON(w, map[string]any{
				"jobComplete":  false,
				"jobReference": map[string]any{"projectId": "test-project", "jobId": "job1", "location": "US"},
			})
		case r.Method == http.MethodGet && r.URL.Path == "/projects/test-project/queries/job1":
			assert.Equal(t, "US", r.URL.Query().Get("location"))
			if polls.Add(1) == 1 {
				writeJSON(w, map[string]any{"jobComplete": false})
				return
			}
			if r.URL.Query().Get("pageToken") == "" {
				writeJSON(w, map[string]any{
					"jobComplete": true,
					"schema":      schema,
					"totalRows":   "3",
					"rows":        rows([]any{"Acme", "10"}, []any{"Globex", nil}),
					"pageToken":   "p2",
				})
				return
			}
			assert.Equal(t, "p2", r.URL.Query().Get("pageToken"))
			writeJSON(w, map[string]any{
				"jobComplete": true,
				"schema":      schema,
				"totalRows":   "3",
				"rows":        rows([]any{"Initech", "7"}),
			})
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}, 0)

	res, err := c.Query(context.Background(), "SELECT company_name, COUNT(*) AS total FROM t")
	require.NoError(t, err)
	assert.Equal(t, []string{"company_name", "total"}, res.Headers())
	assert.Equal(t, uint64(3), res.TotalRows)
	assert.False(t, res.Truncated)
	assert.Equal(t, [][]string{{"Acme", "10"}, {"Globex", "NULL"}, {"Initech", "7"}}, res.Records())

	text := res.String()
	assert.Contains(t, text, "company_name")
	assert.Contains(t, text, "Initech")
	assert.Len(t, strings.Split(strings.TrimSpace(text), "\n"), 5)
}

func TestQuery_MaxRows(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/projects/test-project/queries", r.URL.Path)
		writeJSON(w, map[string]any{
			"jobComplete":  true,
			"jobReference": map[string]any{"projectId": "test-project", "jobId": "job2"},
			"schema":       schema,
			"totalRows":    "1000",
			"rows":         rows([]any{"Acme", "1"}, []any{"Globex", "2"}, []any{"Initech", "3"}),
			"pageToken":    "next",
		})
	}, 2)

	res, err := c.Query(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)
	assert.True(t, res.Truncated)
	assert.Contains(t, res.String(), "(2 of 1000 rows)")
}

func TestQuery_Error(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"Syntax error: Unexpected identifier"}}`))
	}, 0)

	_, err := c.Query(context.Background(), "SELEC 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "warehouse: query failed")
	assert.Contains(t, err.Error(), "Syntax error")
}

func TestNew(t *testing.T) {
	_, err := New(context.Background(), &Config{})
	assert.EqualError(t, err, "warehouse: project is required")
}

func TestFormatValue(t *testing.T) {
	tcases := []struct {
		v   any
		exp string
	}{
		{nil, "NULL"},
		{"abc", "abc"},
		{true, "true"},
		{[]any{map[string]any{"v": "1"}, map[string]any{"v": "2"}}, "[1, 2]"},
		{map[string]any{"f": []any{map[string]any{"v": "a"}, map[string]any{"v": nil}}}, "(a, NULL)"},
	}
	for _, tc := range tcases {
		assert.Equal(t, tc.exp, FormatValue(tc.v))
	}
}

func TestResultString(t *testing.T) {
	var r *Result
	assert.Equal(t, "(no columns)", r.String())

	r = &Result{Columns: []Column{{Name: "total"}}}
	assert.Contains(t, r.String(), "(0 rows)")

	r.Rows = [][]any{{strings.Repeat("x", 200)}}
	r.TotalRows = 1
	assert.Contains(t, r.String(), "...")
	assert.NotContains(t, r.String(), strings.Repeat("x", 100))
}
