package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/dataagents/pkg/schema"
	"github.com/go-playground/validator/v10"
)

// ErrInvalidArguments marks errors caused by tool arguments
// that could not be decoded or validated
var ErrInvalidArguments = errors.New("invalid arguments")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report argument names as they appear on the wire
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Func is a tool backed by a typed function
type Func[I any, O any] struct {
	name        string
	description string
	schema      *schema.Schema
	run         func(context.Context, *I) (O, error)
}

var _ Tool[struct{}, string] = (*Func[struct{}, string])(nil)

// New returns a tool that decodes arguments into I, validates them
// with `validate` tags, and calls run.
// The input schema is derived from I once, here.
func New[I any, O any](name, description string, run func(context.Context, *I) (O, error)) (*Func[I, O], error) {
	if name == "" {
		return nil, errors.New("tool name is required")
	}
	if run == nil {
		return nil, errors.Errorf("tool %q: function is required", name)
	}
	sc, err := schema.New(reflect.TypeOf((*I)(nil)).Elem())
	if err != nil {
		return nil, errors.Wrapf(err, "tool %q: failed to create schema", name)
	}
	return &Func[I, O]{
		name:        name,
		description: description,
		schema:      sc,
		run:         run,
	}, nil
}

// MustNew is like New but panics on error
func MustNew[I any, O any](name, description string, run func(context.Context, *I) (O, error)) *Func[I, O] {
	t, err := New(name, description, run)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the name of the tool
func (f *Func[I, O]) Name() string {
	return f.name
}

// Description returns the description of the tool
func (f *Func[I, O]) Description() string {
	return f.description
}

// Parameters returns the input schema
func (f *Func[I, O]) Parameters() any {
	return f.schema.Parameters
}

// Schema returns the derived schema of the arguments
func (f *Func[I, O]) Schema() *schema.Schema {
	return f.schema
}

// Run calls the function with decoded arguments
func (f *Func[I, O]) Run(ctx context.Context, in *I) (*O, error) {
	if err := validateArguments(in); err != nil {
		return nil, err
	}
	out, err := f.run(ctx, in)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Call decodes the JSON arguments and returns the JSON encoded result
func (f *Func[I, O]) Call(ctx context.Context, input string) (string, error) {
	in := new(I)
	if err := DecodeArguments([]byte(input), in); err != nil {
		return "", err
	}

	out, err := f.Run(ctx, in)
	if err != nil {
		return "", err
	}

	js, err := json.Marshal(out)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal result")
	}
	return string(js), nil
}

// DecodeArguments strictly decodes a JSON object into v.
// Empty input is treated as an empty object, unknown fields are rejected.
func DecodeArguments(input []byte, v any) error {
	input = bytes.TrimSpace(input)
	if len(input) == 0 || bytes.Equal(input, []byte("null")) {
		input = []byte("{}")
	}
	if input[0] != '{' {
		return errors.Mark(errors.New("arguments must be a JSON object"), ErrInvalidArguments)
	}

	dec := json.NewDecoder(bytes.NewReader(input))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Mark(errors.Wrap(err, "failed to decode arguments"), ErrInvalidArguments)
	}
	return nil
}

func validateArguments(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Mark(errors.WithStack(err), ErrInvalidArguments)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			msgs = append(msgs, "missing required argument: "+fe.Field())
		} else {
			msgs = append(msgs, "argument "+fe.Field()+" failed on '"+fe.Tag()+"'")
		}
	}
	return errors.Mark(errors.New(strings.Join(msgs, "; ")), ErrInvalidArguments)
}
