package toolserver

import (
	"context"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/dataagents/blobstore"
	"github.com/effective-security/dataagents/config"
	"github.com/effective-security/dataagents/docai"
	"github.com/effective-security/dataagents/pkg/llmfactory"
	"github.com/effective-security/dataagents/pkg/llms"
	"github.com/effective-security/dataagents/sqlgen"
	"github.com/effective-security/dataagents/store"
	"github.com/effective-security/dataagents/tools"
	"github.com/effective-security/dataagents/tools/analytics"
	"github.com/effective-security/dataagents/tools/etl"
	"github.com/effective-security/dataagents/tools/legal"
	"github.com/effective-security/dataagents/warehouse"
	"github.com/effective-security/xlog"
)

// Clients can be replaced in tests
var (
	NewModel     = newModel
	NewWarehouse = func(ctx context.Context, cfg *config.Config) (warehouse.Warehouse, error) {
		return warehouse.New(ctx, &cfg.Warehouse)
	}
	NewDownloader = func(ctx context.Context, cfg *config.Config) (etl.Downloader, error) {
		return blobstore.New(ctx, &cfg.Storage)
	}
	NewOCR = func(ctx context.Context, cfg *config.Config) (legal.OCR, error) {
		return docai.New(ctx, &cfg.OCR)
	}
)

// Analytics returns the tools of the analytics server
func Analytics(ctx context.Context, cfg *config.Config) ([]tools.ITool, error) {
	conv, err := newConverter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	wh, err := NewWarehouse(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return analytics.New(conv, wh).Tools()
}

// ETL returns the tools of the ETL server
func ETL(ctx context.Context, cfg *config.Config) ([]tools.ITool, error) {
	dl, err := NewDownloader(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err = os.MkdirAll(cfg.ETL.TempDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create temp folder")
	}
	return etl.New(dl, cfg.ETL.TempDir, cfg.ETL.Workers).Tools()
}

// Legal returns the tools of the legal server
func Legal(ctx context.Context, cfg *config.Config) ([]tools.ITool, error) {
	conv, err := newConverter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	model, err := NewModel(cfg, sqlgen.TaskExtractClause)
	if err != nil {
		return nil, err
	}
	extractor, err := sqlgen.NewExtractor(model)
	if err != nil {
		return nil, err
	}
	ocr, err := NewOCR(ctx, cfg)
	if err != nil {
		return nil, err
	}
	wh, err := NewWarehouse(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return legal.New(conv, extractor, ocr, wh, cfg.Contracts).Tools()
}

func newModel(cfg *config.Config, task string) (llms.Model, error) {
	f, err := llmfactory.Load(cfg.LLM)
	if err != nil {
		return nil, err
	}
	model, err := f.ToolModel(task, cfg.Models...)
	if err != nil {
		return nil, errors.WithMessagef(err, "no model for %s", task)
	}
	logger.KV(xlog.INFO, "task", task, "model", model.GetName(), "provider", model.GetProviderType())
	return model, nil
}

func newConverter(ctx context.Context, cfg *config.Config) (*sqlgen.Converter, error) {
	if cfg.Schema == "" {
		return nil, errors.New("schema is required")
	}
	schema, err := sqlgen.LoadSchema(cfg.Schema)
	if err != nil {
		return nil, err
	}
	model, err := NewModel(cfg, sqlgen.TaskConvertToSQL)
	if err != nil {
		return nil, err
	}

	var opts []sqlgen.Option
	if cfg.Prompt != "" {
		tmpl, err := os.ReadFile(cfg.Prompt)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load prompt")
		}
		opts = append(opts, sqlgen.WithSystemTemplate(string(tmpl)))
	}

	cache, err := store.New(ctx, &cfg.Cache)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		opts = append(opts, sqlgen.WithCache(cache))
	}
	return sqlgen.NewConverter(model, schema, opts...)
}
