// Package warehouse executes SQL queries on BigQuery.
package warehouse

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/dataagents/gcpauth"
	"github.com/effective-security/dataagents/pkg/metricskey"
	"github.com/effective-security/xlog"
	"google.golang.org/api/bigquery/v2"
	"google.golang.org/api/option"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/dataagents", "warehouse")

// DefaultMaxRows limits rows returned by a query
const DefaultMaxRows = 1000

// Config of the warehouse client
type Config struct {
	gcpauth.Config `yaml:",inline"`
	// Location of the datasets, US by default
	Location string `json:"location,omitempty" yaml:"location,omitempty"`
	// MaxRows limits rows returned by a query
	MaxRows int `json:"max_rows,omitempty" yaml:"max_rows,omitempty"`
	// Timeout of a query
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// Endpoint overrides the BigQuery API endpoint
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

// Warehouse executes queries
type Warehouse interface {
	Query(ctx context.Context, sql string) (*Result, error)
}

// Client is the BigQuery warehouse
type Client struct {
	svc      *bigquery.Service
	project  string
	location string
	maxRows  int
	timeout  time.Duration
	poll     time.Duration
}

var _ Warehouse = (*Client)(nil)

// New returns the BigQuery client for the project in the configuration.
// When opts are not provided, credentials are loaded with gcpauth.
func New(ctx context.Context, cfg *Config, opts ...option.ClientOption) (*Client, error) {
	if cfg.Project == "" {
		return nil, errors.New("warehouse: project is required")
	}

	if len(opts) == 0 {
		creds, err := gcpauth.Credentials(&cfg.Config)
		if err != nil {
			return nil, err
		}
		opts = gcpauth.ClientOptions(creds)
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := bigquery.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "warehouse: failed to create BigQuery service")
	}

	c := &Client{
		svc:      svc,
		project:  cfg.Project,
		location: cfg.Location,
		maxRows:  cfg.MaxRows,
		timeout:  cfg.Timeout,
		poll:     time.Second,
	}
	if c.maxRows <= 0 {
		c.maxRows = DefaultMaxRows
	}
	if c.timeout <= 0 {
		c.timeout = 2 * time.Minute
	}
	return c, nil
}

// Query runs the SQL as a standard SQL query job, and waits for its results.
// At most MaxRows rows are returned, Result.Truncated reports when more were available.
func (c *Client) Query(ctx context.Context, sql string) (*Result, error) {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	useLegacy := false
	req := &bigquery.QueryRequest{
		Query:        sql,
		UseLegacySql: &useLegacy,
		Location:     c.location,
		MaxResults:   int64(c.maxRows),
		TimeoutMs:    10000,
	}

	resp, err := c.svc.Jobs.Query(c.project, req).Context(ctx).Do()
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "reason", "jobs.query", "err", err.Error())
		return nil, errors.Wrap(err, "warehouse: query failed")
	}

	res := &Result{}
	complete := resp.JobComplete
	pageToken := resp.PageToken
	if complete {
		res.TotalRows = resp.TotalRows
		res.setSchema(resp.Schema)
		res.appendRows(resp.Rows, c.maxRows)
	}

	for !complete || (pageToken != "" && len(res.Rows) < c.maxRows) {
		if resp.JobReference == nil {
			return nil, errors.New("warehouse: query response has no job reference")
		}
		if !complete {
			select {
			case <-ctx.Done():
				return nil, errors.Wrap(ctx.Err(), "warehouse: query timed out")
			case <-time.After(c.poll):
			}
		}

		call := c.svc.Jobs.GetQueryResults(c.project, resp.JobReference.JobId).
			MaxResults(int64(c.maxRows - len(res.Rows))).
			TimeoutMs(10000)
		if loc := resp.JobReference.Location; loc != "" {
			call = call.Location(loc)
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		page, err := call.Context(ctx).Do()
		if err != nil {
			logger.ContextKV(ctx, xlog.ERROR, "reason", "jobs.getQueryResults", "err", err.Error())
			return nil, errors.Wrap(err, "warehouse: failed to get query results")
		}
		if !page.JobComplete {
			continue
		}
		if !complete {
			complete = true
			res.TotalRows = page.TotalRows
			res.setSchema(page.Schema)
		}
		res.appendRows(page.Rows, c.maxRows)
		pageToken = page.PageToken
	}

	res.Truncated = uint64(len(res.Rows)) < res.TotalRows

	metricskey.StatsWarehouseRows.IncrCounter(float64(len(res.Rows)), c.project)
	metricskey.PerfWarehouseQuery.MeasureSince(started, c.project)

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "query_completed",
		"rows", len(res.Rows),
		"total_rows", res.TotalRows,
		"elapsed", time.Since(started).String(),
	)
	return res, nil
}
