// Package analytics provides the tools of the analytics server,
// answering business questions from the warehouse.
package analytics

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/dataagents/tools"
	"github.com/effective-security/dataagents/warehouse"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/dataagents/tools", "analytics")

// ServerName is the name the analytics server advertises
const ServerName = "analytics_server"

// ToolGetAnalysis is the name of the analysis tool
const ToolGetAnalysis = "get_analysis"

// Converter converts a business question to SQL
type Converter interface {
	ToSQL(ctx context.Context, question string) (string, error)
}

// AnalysisRequest is the input of get_analysis
type AnalysisRequest struct {
	UserInput string `json:"user_input" jsonschema:"title=user_input,description=The business question asked by the user." validate:"required"`
}

// Service answers business questions
type Service struct {
	conv Converter
	wh   warehouse.Warehouse
}

// New returns the analytics service
func New(conv Converter, wh warehouse.Warehouse) *Service {
	return &Service{conv: conv, wh: wh}
}

// GetAnalysis generates the SQL query for the question, runs it,
// and returns the result table as text
func (s *Service) GetAnalysis(ctx context.Context, req *AnalysisRequest) (string, error) {
	sql, err := s.conv.ToSQL(ctx, req.UserInput)
	if err != nil {
		return "", err
	}
	logger.ContextKV(ctx, xlog.INFO, "status", "converted", "sql", sql)

	res, err := s.wh.Query(ctx, sql)
	if err != nil {
		return "", errors.WithMessagef(err, "query: %s", sql)
	}
	logger.ContextKV(ctx, xlog.INFO, "status", "queried", "rows", len(res.Rows))
	return res.String(), nil
}

// Tools returns the tools of the analytics server
func (s *Service) Tools() ([]tools.ITool, error) {
	t, err := tools.New(ToolGetAnalysis,
		"Runs the chain of generating a SQL query that answers the user's business question and executing it in the warehouse, returning the query result as a table in text.",
		s.GetAnalysis)
	if err != nil {
		return nil, err
	}
	return []tools.ITool{t}, nil
}
