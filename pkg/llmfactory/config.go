package llmfactory

import (
	"slices"

	"github.com/effective-security/dataagents/gcpauth"
	"github.com/effective-security/x/configloader"
)

// Config specifies the LLM providers available to the tool servers
type Config struct {
	// Providers specifies the list of providers to use
	Providers []*ProviderConfig `json:"providers" yaml:"providers"`
	// DefaultProvider specifies the default provider to use
	DefaultProvider string `json:"default_provider" yaml:"default_provider"`
	// ToolModels specifies the mapping of tools to models.
	// key is the tool name, value is the list of preferred model names.
	// Use `default: [<model_name>]` as the default model for tools.
	ToolModels map[string][]string `json:"tool_models" yaml:"tool_models"`
}

// ProviderConfig for a LLM provider
type ProviderConfig struct {
	Name string `json:"name" yaml:"name"`
	// Type specifies the provider: GOOGLEAI|OPENAI|ANTHROPIC|BEDROCK
	Type            string   `json:"type" yaml:"type"`
	Token           string   `json:"token,omitempty" yaml:"token,omitempty"`
	DefaultModel    string   `json:"default_model,omitempty" yaml:"default_model,omitempty"`
	AvailableModels []string `json:"available_models,omitempty" yaml:"available_models,omitempty"`
	BaseURL         string   `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	// Organization is the OpenAI organization
	Organization string `json:"organization,omitempty" yaml:"organization,omitempty"`
	// Region is the AWS region for Bedrock
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
	// Vertex configures Gemini served by Vertex AI,
	// the Gemini API with Token is used when Vertex.Project is empty
	Vertex VertexConfig `json:"vertex" yaml:"vertex"`
}

// VertexConfig specifies the Vertex AI project
type VertexConfig struct {
	gcpauth.Config `yaml:",inline"`
	Location       string `json:"location,omitempty" yaml:"location,omitempty"`
}

// FindModel returns the first of models available for the provider,
// or the provider default model
func (c *ProviderConfig) FindModel(models ...string) string {
	for _, model := range models {
		if slices.Contains(c.AvailableModels, model) {
			return model
		}
	}
	return c.DefaultModel
}

// LoadConfig from file
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file == "" {
		return cfg, nil
	}

	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
