package agents

import (
	"os"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultTimeout of a tool call
const DefaultTimeout = 60 * time.Second

// Definition of an agent
type Definition struct {
	Name        string `json:"name" yaml:"name" validate:"required"`
	Model       string `json:"model,omitempty" yaml:"model,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Instruction string `json:"instruction,omitempty" yaml:"instruction,omitempty"`
	// Command starts the tool server
	Command string   `json:"command,omitempty" yaml:"command,omitempty" validate:"required_without=URL"`
	Args    []string `json:"args,omitempty" yaml:"args,omitempty"`
	// Env is appended to the environment of the tool server
	Env []string `json:"env,omitempty" yaml:"env,omitempty"`
	// Dir is the working folder of the tool server
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
	// URL of a tool server served over HTTP, used instead of Command
	URL string `json:"url,omitempty" yaml:"url,omitempty" validate:"omitempty,url"`
	// Timeout of a tool call
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Definitions of the agents
type Definitions struct {
	Agents []*Definition `json:"agents" yaml:"agents" validate:"required,dive"`
}

// Load returns the definitions from a YAML file,
// environment variables are expanded in the file content.
func Load(file string) (*Definitions, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	defs := new(Definitions)
	if err = yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), defs); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", file)
	}

	if err = validator.New().Struct(defs); err != nil {
		return nil, errors.Wrapf(err, "invalid agents in %s", file)
	}

	seen := map[string]bool{}
	for _, def := range defs.Agents {
		if seen[def.Name] {
			return nil, errors.Errorf("duplicate agent: %s", def.Name)
		}
		seen[def.Name] = true
		if def.Timeout == 0 {
			def.Timeout = DefaultTimeout
		}
	}
	return defs, nil
}

// Names returns the sorted agent names
func (d *Definitions) Names() []string {
	var names []string
	for _, def := range d.Agents {
		names = append(names, def.Name)
	}
	slices.Sort(names)
	return names
}

// Find returns the agent by name
func (d *Definitions) Find(name string) (*Definition, error) {
	for _, def := range d.Agents {
		if def.Name == name {
			return def, nil
		}
	}
	return nil, errors.Errorf("agent not found: %s", name)
}
