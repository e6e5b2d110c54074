package etl_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/dataagents/blobstore"
	"github.com/effective-security/dataagents/callbacks"
	"github.com/effective-security/dataagents/tools"
	"github.com/effective-security/dataagents/tools/etl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDownloader struct {
	bucket string
	opts   blobstore.DownloadOptions
	files  []string
	err    error
}

func (f *fakeDownloader) DownloadAll(_ context.Context, bucket, dir string, opts blobstore.DownloadOptions) ([]string, error) {
	f.bucket = bucket
	f.opts = opts
	return f.files, f.err
}

func setup(t *testing.T, dl etl.Downloader) (*tools.Registry, *callbacks.Recorder, string) {
	t.Helper()

	b, err := os.ReadFile("testdata/transactions.csv")
	require.NoError(t, err)
	dir := t.TempDir()
	p := filepath.Join(dir, "transactions.csv")
	require.NoError(t, os.WriteFile(p, b, 0o644))

	list, err := etl.New(dl, dir, 0).Tools()
	require.NoError(t, err)

	rec := callbacks.NewRecorder()
	r := tools.NewRegistry(etl.ServerName, tools.WithCallbacks(rec))
	require.NoError(t, r.Register(list...))
	return r, rec, p
}

func call(t *testing.T, r *tools.Registry, name string, args map[string]any) *tools.Envelope {
	t.Helper()
	return r.Dispatch(context.Background(), &tools.Call{Name: name, Arguments: args})
}

func text(t *testing.T, env *tools.Envelope) string {
	t.Helper()
	require.True(t, env.Success, env.Message)
	var s string
	require.NoError(t, env.Decode(&s))
	return s
}

func TestTools_List(t *testing.T) {
	r, _, _ := setup(t, &fakeDownloader{})
	var names []string
	for _, d := range r.List() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{
		"get_data_from_gcs",
		"check_null_columns",
		"drop_null_columns",
		"get_table_schema",
		"fill_null",
		"remove_symbols",
	}, names)
}

func TestGetDataFromGCS(t *testing.T) {
	dl := &fakeDownloader{files: []string{"/tmp/a.csv", "/tmp/b.csv"}}
	r, rec, _ := setup(t, dl)

	out := text(t, call(t, r, etl.ToolGetDataFromGCS, map[string]any{"bucket_name": "raw-data"}))
	assert.Contains(t, out, "Blobs [/tmp/a.csv, /tmp/b.csv] downloaded to ")
	assert.Equal(t, "raw-data", dl.bucket)
	assert.Equal(t, blobstore.DefaultWorkers, dl.opts.Workers)

	dl.files = nil
	out = text(t, call(t, r, etl.ToolGetDataFromGCS, map[string]any{"bucket_name": "empty"}))
	assert.Equal(t, "Bucket empty has no objects.", out)

	dl.err = errors.New("bucket not found")
	env := call(t, r, etl.ToolGetDataFromGCS, map[string]any{"bucket_name": "missing"})
	assert.False(t, env.Success)
	assert.Equal(t, "failed to execute tool 'get_data_from_gcs': bucket not found", env.Message)

	records := rec.Records()
	require.Len(t, records, 3)
	assert.Equal(t, tools.OutcomeFailed, records[2].Outcome)
}

func TestCheckNullColumnsAndSchema(t *testing.T) {
	r, _, p := setup(t, &fakeDownloader{})

	out := text(t, call(t, r, etl.ToolCheckNullColumns, map[string]any{"table_path": p}))
	assert.Contains(t, out, "nulls")
	assert.Contains(t, out, "city")

	out = text(t, call(t, r, etl.ToolGetTableSchema, map[string]any{"table_path": p}))
	assert.Contains(t, out, "score")
	assert.Contains(t, out, "int")

	env := call(t, r, etl.ToolGetTableSchema, map[string]any{"table_path": filepath.Join(filepath.Dir(p), "missing.csv")})
	assert.False(t, env.Success)
	assert.Contains(t, env.Message, "failed to execute tool 'get_table_schema': failed to read table")
}

func TestDropNullColumns(t *testing.T) {
	r, _, p := setup(t, &fakeDownloader{})

	out := text(t, call(t, r, etl.ToolDropNullColumns, map[string]any{"table_path": p}))
	assert.Contains(t, out, "Dropped columns: amount, city, score")
	assert.Contains(t, out, "Before:")
	assert.Contains(t, out, "After:")

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "id,merchant\n1,Acme\n2,Globex\n3,Initech\n4,Umbrella\n", string(b))

	out = text(t, call(t, r, etl.ToolDropNullColumns, map[string]any{"table_path": p}))
	assert.Contains(t, out, "No columns with nulls found.")
}

func TestFillNull(t *testing.T) {
	r, _, p := setup(t, &fakeDownloader{})

	out := text(t, call(t, r, etl.ToolFillNull, map[string]any{
		"table_path":  p,
		"column_name": "city",
		"fill_value":  "Unknown",
	}))
	assert.Contains(t, out, "Filled 2 null rows in column 'city'.")
	assert.Contains(t, out, "NULL")
	assert.Contains(t, out, "Unknown")

	out = text(t, call(t, r, etl.ToolFillNull, map[string]any{
		"table_path":  p,
		"column_name": "city",
		"fill_value":  "Unknown",
	}))
	assert.Equal(t, "No null rows found in column 'city'.", out)

	env := call(t, r, etl.ToolFillNull, map[string]any{
		"table_path":  p,
		"column_name": "country",
		"fill_value":  "BR",
	})
	assert.False(t, env.Success)
	assert.Equal(t, "failed to execute tool 'fill_null': column not found: country", env.Message)

	env = call(t, r, etl.ToolFillNull, map[string]any{
		"table_path":  p,
		"column_name": "city",
	})
	assert.False(t, env.Success)
	assert.Equal(t, "invalid arguments for tool 'fill_null': missing required argument: fill_value", env.Message)
}

func TestRemoveSymbols(t *testing.T) {
	r, _, p := setup(t, &fakeDownloader{})

	out := text(t, call(t, r, etl.ToolRemoveSymbols, map[string]any{
		"table_path":  p,
		"column_name": "amount",
	}))
	assert.Contains(t, out, "Changed 2 rows in column 'amount'.")
	assert.Contains(t, out, "R$ 1.200,50")
	assert.Contains(t, out, "1.200,50")

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Contains(t, string(b), "1,\"1.200,50\",Acme,Sao Paulo,10\n")
	assert.Contains(t, string(b), "3,30.00,Initech,Recife,\n")
}
