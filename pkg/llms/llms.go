package llms

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
)

//go:generate mockgen -source=llms.go -destination=../../mocks/mockllms/llm_mock.gen.go -package mockllms

// ProviderType is the type of provider.
type ProviderType string

const (
	// ProviderAnthropic is the Anthropic Messages API.
	ProviderAnthropic ProviderType = "ANTHROPIC"
	// ProviderBedrock is the AWS Bedrock Converse API.
	ProviderBedrock ProviderType = "BEDROCK"
	// ProviderGoogleAI is the Gemini API.
	ProviderGoogleAI ProviderType = "GOOGLEAI"
	// ProviderOpenAI is the OpenAI Chat Completions API.
	ProviderOpenAI ProviderType = "OPENAI"
)

// ErrEmptyResponse is returned when a provider returns no content
var ErrEmptyResponse = errors.New("empty response")

// Model is an interface chat models implement.
type Model interface {
	// GetName returns the name of the model.
	GetName() string
	// GetProviderType returns the type of provider.
	GetProviderType() ProviderType
	// GenerateContent asks the model to generate content from a sequence of
	// messages.
	GenerateContent(ctx context.Context, messages []Message, options ...CallOption) (*ContentResponse, error)
}

// Role is the type of chat message.
type Role string

const (
	// RoleSystem is a message sent by the system.
	RoleSystem Role = "system"
	// RoleHuman is a message sent by a human.
	RoleHuman Role = "human"
	// RoleAI is a message sent by an AI.
	RoleAI Role = "ai"
)

// Message is a text message sent to a model
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemMessage returns a system message
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// HumanMessage returns a human message
func HumanMessage(text string) Message {
	return Message{Role: RoleHuman, Content: text}
}

// AIMessage returns an AI message
func AIMessage(text string) Message {
	return Message{Role: RoleAI, Content: text}
}

// SplitSystem returns the concatenated system prompt and the remaining messages
func SplitSystem(messages []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}

// ContentResponse is the response returned by a GenerateContent call.
// It can potentially return multiple content choices.
type ContentResponse struct {
	Choices []*ContentChoice
}

// ContentChoice is one of the response choices returned by GenerateContent
// calls.
type ContentChoice struct {
	// Content is the textual content of a response
	Content string `json:"content"`
	// StopReason is the reason the model stopped generating output.
	StopReason string `json:"stop_reason"`
	// GenerationInfo is arbitrary information the model adds to the response,
	// token usage is reported as InputTokens, OutputTokens and TotalTokens.
	GenerationInfo map[string]any `json:"generation_info"`
}

// Text returns the content of the first choice
func (r *ContentResponse) Text() (string, error) {
	if r == nil || len(r.Choices) == 0 || r.Choices[0] == nil {
		return "", ErrEmptyResponse
	}
	return r.Choices[0].Content, nil
}

// TokenUsage holds the token counters reported by a provider
type TokenUsage struct {
	Input  int64
	Output int64
	Total  int64
}

// Usage returns the sum of token counters reported in GenerationInfo
func (r *ContentResponse) Usage() TokenUsage {
	var u TokenUsage
	if r == nil {
		return u
	}
	for _, c := range r.Choices {
		if c == nil {
			continue
		}
		u.Input += toInt64(c.GenerationInfo["InputTokens"])
		u.Output += toInt64(c.GenerationInfo["OutputTokens"])
		u.Total += toInt64(c.GenerationInfo["TotalTokens"])
	}
	return u
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	case *int32:
		if n != nil {
			return int64(*n)
		}
	}
	return 0
}
