// Package schema derives JSON schemas for tool arguments from Go structs.
package schema

import (
	"encoding/json"
	"reflect"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var (
	cache   = make(map[reflect.Type]*Schema)
	cacheMu sync.Mutex
)

// Schema describes the arguments of a tool
type Schema struct {
	RawSchema *jsonschema.Schema
	// Parameters is the object schema advertised as the tool input schema
	Parameters *jsonschema.Schema
}

// Property describes a single top level argument
type Property struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// New creates a new schema from the given struct type
func New(t reflect.Type) (*Schema, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, errors.Errorf("arguments must be a struct: %s", t.String())
	}

	cacheMu.Lock()
	defer cacheMu.Unlock()

	if s, ok := cache[t]; ok {
		return s, nil
	}

	raw := JSONSchema(t)
	params := &jsonschema.Schema{
		Type:                 "object",
		Properties:           raw.Properties,
		Required:             raw.Required,
		AdditionalProperties: raw.AdditionalProperties,
	}
	if params.Properties == nil {
		params.Properties = orderedmap.New[string, *jsonschema.Schema]()
	}

	s := &Schema{
		RawSchema:  raw,
		Parameters: params,
	}
	cache[t] = s
	return s, nil
}

// String returns indented JSON of the parameters schema
func (s *Schema) String() string {
	js, _ := json.MarshalIndent(s.Parameters, "", "\t")
	return string(js)
}

// Properties returns the top level arguments in declaration order
func (s *Schema) Properties() []Property {
	required := make(map[string]bool, len(s.Parameters.Required))
	for _, r := range s.Parameters.Required {
		required[r] = true
	}

	var list []Property
	for pair := s.Parameters.Properties.Oldest(); pair != nil; pair = pair.Next() {
		list = append(list, Property{
			Name:        pair.Key,
			Type:        pair.Value.Type,
			Description: pair.Value.Description,
			Required:    required[pair.Key],
		})
	}
	return list
}

// JSONSchema returns the expanded json schema of the type
func JSONSchema(t reflect.Type) *jsonschema.Schema {
	r := new(jsonschema.Reflector)
	r.ExpandedStruct = true
	r.DoNotReference = true

	// the struct names could be same in different packages,
	// add the package hash to the name
	r.Namer = func(t reflect.Type) string {
		name := t.Name()
		if t.Kind() == reflect.Struct {
			fullname := t.PkgPath() + "/" + t.Name()
			name = t.Name() + "@" + strconv.FormatUint(xxhash.Sum64String(fullname), 10)
		}
		return name
	}

	s := r.ReflectFromType(t)
	s.Version = ""
	return s
}
