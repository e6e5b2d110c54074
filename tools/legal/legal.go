// Package legal provides the tools of the legal server:
// questions over the contracts warehouse, contract OCR and clause extraction.
package legal

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/dataagents/docai"
	"github.com/effective-security/dataagents/tools"
	"github.com/effective-security/dataagents/tools/analytics"
	"github.com/effective-security/dataagents/warehouse"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/dataagents/tools", "legal")

// ServerName is the name the legal server advertises
const ServerName = "legal_server"

// Tool names
const (
	ToolConvertToSQL     = "convert_to_sql"
	ToolExtractClause    = "extract_clause"
	ToolGetContractText  = "get_contract_text"
	ToolGetLegalAnalysis = "get_legal_analysis"
)

// ClauseExtractor extracts a clause from a document
type ClauseExtractor interface {
	ExtractClause(ctx context.Context, document, request string) (string, error)
}

// OCR returns the text of a document stored in a bucket
type OCR interface {
	ProcessGCS(ctx context.Context, uri, mimeType string) (string, error)
}

// ContractsConfig locates the signed contracts
type ContractsConfig struct {
	Bucket string `json:"bucket" yaml:"bucket"`
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// QuestionRequest is the input of convert_to_sql and get_legal_analysis
type QuestionRequest struct {
	UserInput string `json:"user_input" jsonschema:"title=user_input,description=The legal business question asked by the user." validate:"required"`
}

// ExtractClauseRequest is the input of extract_clause
type ExtractClauseRequest struct {
	DocumentText string `json:"document_text" jsonschema:"title=document_text,description=The full text of the contract." validate:"required"`
	DataNeeded   string `json:"data_needed" jsonschema:"title=data_needed,description=The clause or data requested by the user." validate:"required"`
}

// ContractRequest is the input of get_contract_text
type ContractRequest struct {
	ContractName string `json:"contract_name" jsonschema:"title=contract_name,description=The file name of the contract PDF." validate:"required"`
}

// Service implements the legal tools
type Service struct {
	conv      analytics.Converter
	extractor ClauseExtractor
	ocr       OCR
	wh        warehouse.Warehouse
	contracts ContractsConfig
}

// New returns the legal service
func New(conv analytics.Converter, extractor ClauseExtractor, ocr OCR, wh warehouse.Warehouse, contracts ContractsConfig) *Service {
	return &Service{
		conv:      conv,
		extractor: extractor,
		ocr:       ocr,
		wh:        wh,
		contracts: contracts,
	}
}

// ConvertToSQL returns the SQL query answering the question
func (s *Service) ConvertToSQL(ctx context.Context, req *QuestionRequest) (string, error) {
	sql, err := s.conv.ToSQL(ctx, req.UserInput)
	if err != nil {
		return "", err
	}
	logger.ContextKV(ctx, xlog.INFO, "status", "converted", "sql", sql)
	return sql, nil
}

// ExtractClause returns the clause of the document closest to the request
func (s *Service) ExtractClause(ctx context.Context, req *ExtractClauseRequest) (string, error) {
	return s.extractor.ExtractClause(ctx, req.DocumentText, req.DataNeeded)
}

// GetContractText returns the OCR text of the signed contract
func (s *Service) GetContractText(ctx context.Context, req *ContractRequest) (string, error) {
	if s.contracts.Bucket == "" {
		return "", errors.New("contracts bucket is not configured")
	}
	name := strings.TrimSpace(req.ContractName)
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." || seg == "" {
			return "", errors.Errorf("invalid contract name: %q", req.ContractName)
		}
	}

	uri := docai.ObjectURI(s.contracts.Bucket, s.contracts.Prefix, name)
	text, err := s.ocr.ProcessGCS(ctx, uri, docai.MimePDF)
	if err != nil {
		return "", err
	}
	logger.ContextKV(ctx, xlog.INFO, "status", "ocr", "uri", uri, "chars", len(text))
	return text, nil
}

// GetLegalAnalysis generates the SQL query for the question, runs it,
// and returns the rows as text
func (s *Service) GetLegalAnalysis(ctx context.Context, req *QuestionRequest) (string, error) {
	sql, err := s.ConvertToSQL(ctx, req)
	if err != nil {
		return "", err
	}
	res, err := s.wh.Query(ctx, sql)
	if err != nil {
		return "", errors.WithMessagef(err, "query: %s", sql)
	}
	return res.String(), nil
}

// Tools returns the tools of the legal server
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

	add(tools.New(ToolConvertToSQL,
		"Generates the SQL query that fetches the data answering the user's legal business question.",
		s.ConvertToSQL))
	add(tools.New(ToolExtractClause,
		"Extracts the specific clause requested by the user from the contract text, including its numbering and title.",
		s.ExtractClause))
	add(tools.New(ToolGetContractText,
		"Returns the full text of the signed contract, read with OCR from the contracts bucket.",
		s.GetContractText))
	add(tools.New(ToolGetLegalAnalysis,
		"Generates the SQL query for the user's legal business question and executes it in the warehouse, returning the result as a table in text.",
		s.GetLegalAnalysis))

	if errs != nil {
		return nil, errs
	}
	return list, nil
}
