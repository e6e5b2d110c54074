// Package sqlgen converts business questions to SQL,
// and extracts clauses from contract text, with a chat model.
package sqlgen

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/dataagents/pkg/llms"
	"github.com/effective-security/dataagents/pkg/llmutils"
	"github.com/effective-security/dataagents/pkg/metricskey"
	"github.com/effective-security/dataagents/pkg/prompts"
	"github.com/effective-security/dataagents/store"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/dataagents", "sqlgen")

// Tasks reported in metrics
const (
	TaskConvertToSQL  = "convert_to_sql"
	TaskExtractClause = "extract_clause"
)

// ErrEmptySQL is returned when the model answered without a query
var ErrEmptySQL = errors.New("model returned empty SQL")

type config struct {
	systemTemplate string
	cache          store.Cache
	callOptions    []llms.CallOption
}

// Option configures Converter and Extractor
type Option func(*config)

// WithSystemTemplate replaces the embedded system prompt template
func WithSystemTemplate(tmpl string) Option {
	return func(c *config) {
		c.systemTemplate = tmpl
	}
}

// WithCache caches generated SQL
func WithCache(cache store.Cache) Option {
	return func(c *config) {
		c.cache = cache
	}
}

// WithCallOptions are passed to the model on each call
func WithCallOptions(opts ...llms.CallOption) Option {
	return func(c *config) {
		c.callOptions = append(c.callOptions, opts...)
	}
}

// Converter converts natural language questions to SQL
type Converter struct {
	model  llms.Model
	schema *Schema
	prompt prompts.ChatPromptTemplate
	cfg    config
}

// NewConverter returns a converter for the schema
func NewConverter(model llms.Model, schema *Schema, opts ...Option) (*Converter, error) {
	if model == nil {
		return nil, errors.New("model is required")
	}
	if schema == nil || len(schema.Tables) == 0 {
		return nil, errors.New("schema with tables is required")
	}

	c := &Converter{
		model:  model,
		schema: schema,
	}
	for _, opt := range opts {
		opt(&c.cfg)
	}
	c.prompt = prompts.SQLConversion(c.cfg.systemTemplate)
	return c, nil
}

// ToSQL returns the SQL query answering the question
func (c *Converter) ToSQL(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.New("question is empty")
	}

	msgs, err := c.prompt.FormatPrompt(map[string]any{
		"schema":     c.schema,
		"user_input": question,
	})
	if err != nil {
		return "", err
	}

	var key string
	if c.cfg.cache != nil {
		key = store.Key(c.model.GetName(), msgs.String())
		sql, ok, err := c.cfg.cache.Get(ctx, key)
		if err != nil {
			logger.ContextKV(ctx, xlog.WARNING, "reason", "cache_get", "err", err.Error())
		} else if ok {
			metricskey.StatsSQLCacheHits.IncrCounter(1, TaskConvertToSQL)
			return sql, nil
		}
	}

	text, err := generate(ctx, c.model, TaskConvertToSQL, msgs, c.cfg.callOptions...)
	if err != nil {
		return "", err
	}

	sql := llmutils.TrimSQL(text)
	if sql == "" {
		return "", errors.WithStack(ErrEmptySQL)
	}

	if c.cfg.cache != nil {
		if err := c.cfg.cache.Put(ctx, key, sql); err != nil {
			logger.ContextKV(ctx, xlog.WARNING, "reason", "cache_put", "err", err.Error())
		}
	}

	logger.ContextKV(ctx, xlog.DEBUG, "question", question, "sql", sql)
	return sql, nil
}

// Extractor extracts clauses from documents
type Extractor struct {
	model  llms.Model
	prompt prompts.ChatPromptTemplate
	cfg    config
}

// NewExtractor returns a clause extractor
func NewExtractor(model llms.Model, opts ...Option) (*Extractor, error) {
	if model == nil {
		return nil, errors.New("model is required")
	}
	e := &Extractor{
		model: model,
	}
	for _, opt := range opts {
		opt(&e.cfg)
	}
	e.prompt = prompts.ClauseExtraction(e.cfg.systemTemplate)
	return e, nil
}

// ExtractClause returns the clause of the document closest to the request,
// including its numbering and title
func (e *Extractor) ExtractClause(ctx context.Context, document, request string) (string, error) {
	if strings.TrimSpace(document) == "" {
		return "", errors.New("document is empty")
	}

	msgs, err := e.prompt.FormatPrompt(map[string]any{
		"contract":   document,
		"user_input": request,
	})
	if err != nil {
		return "", err
	}

	text, err := generate(ctx, e.model, TaskExtractClause, msgs, e.cfg.callOptions...)
	if err != nil {
		return "", err
	}
	// models wrap the clause in a fence or add <!-- --> notes
	return strings.TrimSpace(llmutils.TrimBackticks(llmutils.StripComments(text))), nil
}
