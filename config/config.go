// Package config loads the configuration of a tool server.
package config

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/dataagents/blobstore"
	"github.com/effective-security/dataagents/docai"
	"github.com/effective-security/dataagents/gcpauth"
	"github.com/effective-security/dataagents/logging"
	"github.com/effective-security/dataagents/store"
	"github.com/effective-security/dataagents/tools/legal"
	"github.com/effective-security/dataagents/warehouse"
	"github.com/effective-security/x/configloader"
	"github.com/go-playground/validator/v10"
)

// DefaultWorkers is the number of parallel bucket downloads
const DefaultWorkers = 2

// Config of a tool server
type Config struct {
	// GCP is the default project and credentials,
	// inherited by the warehouse, storage and ocr clients
	GCP gcpauth.Config `json:"gcp" yaml:"gcp"`
	// LLM is the path to the LLM providers configuration
	LLM string `json:"llm,omitempty" yaml:"llm,omitempty"`
	// Models are the preferred models, the default provider is used when empty
	Models []string `json:"models,omitempty" yaml:"models,omitempty"`
	// Schema is the path to the warehouse schema fed to the SQL prompt,
	// relative to the config file
	Schema string `json:"schema,omitempty" yaml:"schema,omitempty"`
	// Prompt is an optional path to a SQL system prompt template,
	// relative to the config file
	Prompt string `json:"prompt,omitempty" yaml:"prompt,omitempty"`

	Cache     store.Config          `json:"cache" yaml:"cache"`
	Warehouse warehouse.Config      `json:"warehouse" yaml:"warehouse"`
	Storage   blobstore.Config      `json:"storage" yaml:"storage"`
	OCR       docai.Config          `json:"ocr" yaml:"ocr"`
	Contracts legal.ContractsConfig `json:"contracts" yaml:"contracts"`
	ETL       ETLConfig             `json:"etl" yaml:"etl"`
	Log       logging.Config        `json:"log" yaml:"log"`

	dir string
}

// ETLConfig specifies where bucket objects are downloaded
type ETLConfig struct {
	// TempDir is the download folder relative to the config file,
	// a folder under os.TempDir when empty
	TempDir string `json:"temp_dir,omitempty" yaml:"temp_dir,omitempty"`
	// Workers is the number of parallel downloads
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty" validate:"gte=0,lte=16"`
}

// Load returns the configuration from file
func Load(file string) (*Config, error) {
	cfg := new(Config)
	if file != "" {
		if err := configloader.UnmarshalAndExpand(file, cfg); err != nil {
			return nil, errors.WithMessagef(err, "failed to load config %s", file)
		}
		cfg.dir = filepath.Dir(file)
	}

	cfg.setDefaults()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrapf(err, "invalid config")
	}
	return cfg, nil
}

func (c *Config) setDefaults() {
	c.LLM = c.Resolve(c.LLM)
	c.Schema = c.Resolve(c.Schema)
	c.Prompt = c.Resolve(c.Prompt)
	c.Log.Path = c.Resolve(c.Log.Path)
	c.ETL.TempDir = c.Resolve(c.ETL.TempDir)

	inherit(&c.Warehouse.Config, c.GCP)
	inherit(&c.Storage.Config, c.GCP)
	inherit(&c.OCR.Config, c.GCP)

	if c.ETL.TempDir == "" {
		c.ETL.TempDir = filepath.Join(os.TempDir(), "dataagents")
	}
	if c.ETL.Workers == 0 {
		c.ETL.Workers = DefaultWorkers
	}
}

func inherit(dst *gcpauth.Config, src gcpauth.Config) {
	if dst.Project == "" {
		dst.Project = src.Project
	}
	if dst.CredentialsFile == "" {
		dst.CredentialsFile = src.CredentialsFile
	}
}

// Resolve returns the path relative to the config folder
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.dir == "" {
		return path
	}
	return filepath.Join(c.dir, path)
}
