package sqlgen

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/configloader"
)

// Column of a warehouse table
type Column struct {
	Name        string `json:"name" yaml:"name" validate:"required"`
	Type        string `json:"type,omitempty" yaml:"type,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Table of the warehouse
type Table struct {
	// Name is the fully qualified table name
	Name        string   `json:"name" yaml:"name" validate:"required"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Columns     []Column `json:"columns" yaml:"columns" validate:"required,min=1,dive"`
}

// Schema describes the tables the model may query
type Schema struct {
	// Domain of the business questions, for example "the legal area"
	Domain string `json:"domain,omitempty" yaml:"domain,omitempty"`
	// Dialect of the generated SQL, for example "BigQuery Standard SQL"
	Dialect string `json:"dialect,omitempty" yaml:"dialect,omitempty"`
	// AggregateAlias is the alias of aggregate results, "total" by default
	AggregateAlias string `json:"aggregate_alias,omitempty" yaml:"aggregate_alias,omitempty"`
	// Rules are extra instructions added to the prompt
	Rules  []string `json:"rules,omitempty" yaml:"rules,omitempty"`
	Tables []Table  `json:"tables" yaml:"tables" validate:"required,min=1,dive"`
}

// LoadSchema loads the schema from YAML or JSON file,
// environment variables in values are expanded.
func LoadSchema(file string) (*Schema, error) {
	s := new(Schema)
	if err := configloader.UnmarshalAndExpand(file, s); err != nil {
		return nil, errors.Wrapf(err, "failed to load schema")
	}
	if len(s.Tables) == 0 {
		return nil, errors.Errorf("schema has no tables: %s", file)
	}
	return s, nil
}
