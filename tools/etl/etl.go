// Package etl provides the tools of the ETL server:
// downloading bucket contents and cleaning CSV tables.
package etl

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/dataagents/blobstore"
	"github.com/effective-security/dataagents/pkg/mdtable"
	"github.com/effective-security/dataagents/table"
	"github.com/effective-security/dataagents/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/dataagents/tools", "etl")

// ServerName is the name the ETL server advertises
const ServerName = "etl_server"

// Tool names
const (
	ToolGetDataFromGCS   = "get_data_from_gcs"
	ToolCheckNullColumns = "check_null_columns"
	ToolDropNullColumns  = "drop_null_columns"
	ToolGetTableSchema   = "get_table_schema"
	ToolFillNull         = "fill_null"
	ToolRemoveSymbols    = "remove_symbols"
)

// Downloader downloads bucket contents
type Downloader interface {
	DownloadAll(ctx context.Context, bucket, dir string, opts blobstore.DownloadOptions) ([]string, error)
}

// BucketRequest is the input of get_data_from_gcs
type BucketRequest struct {
	BucketName string `json:"bucket_name" jsonschema:"title=bucket_name,description=The name of the bucket to extract the data from." validate:"required"`
}

// TableRequest is the input of the tools reading one table
type TableRequest struct {
	TablePath string `json:"table_path" jsonschema:"title=table_path,description=The full path of the CSV table." validate:"required"`
}

// FillNullRequest is the input of fill_null
type FillNullRequest struct {
	TablePath  string `json:"table_path" jsonschema:"title=table_path,description=The full path of the CSV table." validate:"required"`
	ColumnName string `json:"column_name" jsonschema:"title=column_name,description=The name of the column to fill." validate:"required"`
	FillValue  string `json:"fill_value" jsonschema:"title=fill_value,description=The value replacing the nulls." validate:"required"`
}

// ColumnRequest is the input of remove_symbols
type ColumnRequest struct {
	TablePath  string `json:"table_path" jsonschema:"title=table_path,description=The full path of the CSV table." validate:"required"`
	ColumnName string `json:"column_name" jsonschema:"title=column_name,description=The name of the column to transform." validate:"required"`
}

// Service implements the ETL tools
type Service struct {
	downloader Downloader
	tempDir    string
	workers    int
}

// New returns the ETL service downloading into tempDir
func New(downloader Downloader, tempDir string, workers int) *Service {
	if workers <= 0 {
		workers = blobstore.DefaultWorkers
	}
	return &Service{
		downloader: downloader,
		tempDir:    tempDir,
		workers:    workers,
	}
}

// GetDataFromGCS downloads all objects of the bucket into the temp directory
func (s *Service) GetDataFromGCS(ctx context.Context, req *BucketRequest) (string, error) {
	files, err := s.downloader.DownloadAll(ctx, req.BucketName, s.tempDir, blobstore.DownloadOptions{
		Workers: s.workers,
	})
	if err != nil {
		return "", err
	}
	logger.ContextKV(ctx, xlog.INFO, "status", "downloaded", "bucket", req.BucketName, "files", len(files))

	if len(files) == 0 {
		return fmt.Sprintf("Bucket %s has no objects.", req.BucketName), nil
	}
	return fmt.Sprintf("Blobs [%s] downloaded to %s.", strings.Join(files, ", "), s.tempDir), nil
}

// CheckNullColumns returns the number of nulls in every column
func (s *Service) CheckNullColumns(_ context.Context, req *TableRequest) (string, error) {
	t, err := table.Load(req.TablePath)
	if err != nil {
		return "", err
	}
	return nullsText(t.NullCounts()), nil
}

// DropNullColumns removes the columns containing nulls, rewrites the table,
// and returns the schema before and after
func (s *Service) DropNullColumns(ctx context.Context, req *TableRequest) (string, error) {
	t, err := table.Load(req.TablePath)
	if err != nil {
		return "", err
	}

	before := t.Schema()
	dropped := t.DropNullColumns()
	if len(dropped) == 0 {
		return "No columns with nulls found.\n" + schemaText(before), nil
	}
	if err = t.Save(); err != nil {
		return "", err
	}
	logger.ContextKV(ctx, xlog.INFO, "status", "dropped", "path", req.TablePath, "columns", dropped)

	return strings.Join([]string{
		"Dropped columns: " + strings.Join(dropped, ", "),
		"Before:",
		schemaText(before),
		"After:",
		schemaText(t.Schema()),
	}, "\n"), nil
}

// GetTableSchema returns the column types
func (s *Service) GetTableSchema(_ context.Context, req *TableRequest) (string, error) {
	t, err := table.Load(req.TablePath)
	if err != nil {
		return "", err
	}
	return schemaText(t.Schema()), nil
}

// FillNull fills nulls of the column with the value, rewrites the table,
// and returns up to 3 of the filled rows before and after
func (s *Service) FillNull(ctx context.Context, req *FillNullRequest) (string, error) {
	t, err := table.Load(req.TablePath)
	if err != nil {
		return "", err
	}

	rows, err := t.NullRows(req.ColumnName)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return fmt.Sprintf("No null rows found in column '%s'.", req.ColumnName), nil
	}

	before, err := t.Sample(req.ColumnName, rows[:min(len(rows), table.SampleSize)])
	if err != nil {
		return "", err
	}
	n, err := t.FillNull(req.ColumnName, req.FillValue)
	if err != nil {
		return "", err
	}
	if err = t.Save(); err != nil {
		return "", err
	}
	logger.ContextKV(ctx, xlog.INFO, "status", "filled", "path", req.TablePath, "column", req.ColumnName, "rows", n)

	return s.beforeAfter(t, before, fmt.Sprintf("Filled %d null rows in column '%s'.", n, req.ColumnName))
}

// RemoveSymbols strips the characters other than digits, '.' and ',' from the column,
// rewrites the table, and returns 3 sample rows before and after
func (s *Service) RemoveSymbols(ctx context.Context, req *ColumnRequest) (string, error) {
	t, err := table.Load(req.TablePath)
	if err != nil {
		return "", err
	}

	before, err := t.Sample(req.ColumnName, t.Head(table.SampleSize))
	if err != nil {
		return "", err
	}
	n, err := t.RemoveSymbols(req.ColumnName)
	if err != nil {
		return "", err
	}
	if err = t.Save(); err != nil {
		return "", err
	}
	logger.ContextKV(ctx, xlog.INFO, "status", "transformed", "path", req.TablePath, "column", req.ColumnName, "rows", n)

	return s.beforeAfter(t, before, fmt.Sprintf("Changed %d rows in column '%s'.", n, req.ColumnName))
}

func (s *Service) beforeAfter(t *table.Table, before *table.Sample, summary string) (string, error) {
	after, err := before.Refresh(t)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{
		summary,
		"Before:",
		before.String(),
		"After:",
		after.String(),
	}, "\n"), nil
}

func nullsText(list []table.ColumnNulls) string {
	rows := make([][]string, len(list))
	for i, c := range list {
		rows[i] = []string{c.Column, fmt.Sprint(c.Nulls)}
	}
	return mdtable.Render([]string{"column", "nulls"}, rows)
}

func schemaText(list []table.ColumnType) string {
	rows := make([][]string, len(list))
	for i, c := range list {
		rows[i] = []string{c.Column, c.Type}
	}
	return mdtable.Render([]string{"column", "type"}, rows)
}

// Tools returns the tools of the ETL server
func (s *Service) Tools() ([]tools.ITool, error) {
	var list []tools.ITool
	var errs error
	add := func(t tools.ITool, err error) {
		if err != nil {
			errs = errors.CombineErrors(errs, err)
			return
		}
		list = append(list, t)
	}

	add(tools.New(ToolGetDataFromGCS,
		"Extracts the data of the bucket, downloading all its objects into the local temp directory. Returns the names of the downloaded files.",
		s.GetDataFromGCS))
	add(tools.New(ToolCheckNullColumns,
		"Checks the table for null fields, returning the column names and the number of nulls found in each one.",
		s.CheckNullColumns))
	add(tools.New(ToolDropNullColumns,
		"Drops the columns with null fields from the table, returning the schema of the table before and after.",
		s.DropNullColumns))
	add(tools.New(ToolGetTableSchema,
		"Returns the schema of the table: the column names and their types.",
		s.GetTableSchema))
	add(tools.New(ToolFillNull,
		"Fills the null fields of the column with the value, returning up to 3 of the filled rows before and after: the row id and the column.",
		s.FillNull))
	add(tools.New(ToolRemoveSymbols,
		"Removes non numeric characters from the column, keeping digits and the '.' and ',' separators. Returns 3 sample rows before and after: the row id and the column.",
		s.RemoveSymbols))

	if errs != nil {
		return nil, errs
	}
	return list, nil
}
