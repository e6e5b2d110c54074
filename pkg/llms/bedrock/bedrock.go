// Package bedrock implements a llms.Model provider for AWS Bedrock
// using the Converse API.
package bedrock

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/dataagents/pkg/llms"
)

// DefaultModel is used when no model is configured
const DefaultModel = "anthropic.claude-3-5-sonnet-20240620-v1:0"

// ConverseAPI is the subset of the Bedrock runtime client used by LLM
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

type options struct {
	modelID string
	region  string
	client  ConverseAPI
}

// Option configures the client
type Option func(*options)

// WithModel sets the Bedrock model or inference profile ID
func WithModel(modelID string) Option {
	return func(o *options) {
		if modelID != "" {
			o.modelID = modelID
		}
	}
}

// WithRegion sets the AWS region
func WithRegion(region string) Option {
	return func(o *options) {
		o.region = region
	}
}

// WithClient sets the Bedrock runtime client
func WithClient(client ConverseAPI) Option {
	return func(o *options) {
		o.client = client
	}
}

// LLM is a Bedrock LLM implementation.
type LLM struct {
	modelID string
	client  ConverseAPI
}

var _ llms.Model = (*LLM)(nil)

// New creates a new Bedrock LLM implementation.
// Without WithClient, the AWS default config chain is used.
func New(opts ...Option) (*LLM, error) {
	o := &options{
		modelID: DefaultModel,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.client == nil {
		var loadOpts []func(*config.LoadOptions) error
		if o.region != "" {
			loadOpts = append(loadOpts, config.WithRegion(o.region))
		}
		cfg, err := config.LoadDefaultConfig(context.Background(), loadOpts...)
		if err != nil {
			return nil, errors.Wrap(err, "bedrock: failed to load AWS config")
		}
		o.client = bedrockruntime.NewFromConfig(cfg)
	}

	return &LLM{
		modelID: o.modelID,
		client:  o.client,
	}, nil
}

// GetName implements the Model interface.
func (l *LLM) GetName() string {
	return l.modelID
}

// GetProviderType implements the Model interface.
func (l *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderBedrock
}

// GenerateContent implements llms.Model.
func (l *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.NewCallOptions(llms.CallOptions{Model: l.modelID}, options...)

	system, rest := llms.SplitSystem(messages)
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(opts.Model),
		Messages: make([]types.Message, 0, len(rest)),
	}
	if system != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: system},
		}
	}
	for _, m := range rest {
		var role types.ConversationRole
		switch m.Role {
		case llms.RoleHuman:
			role = types.ConversationRoleUser
		case llms.RoleAI:
			role = types.ConversationRoleAssistant
		default:
			return nil, errors.Errorf("bedrock: role %q not supported", m.Role)
		}
		input.Messages = append(input.Messages, types.Message{
			Role: role,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: m.Content},
			},
		})
	}

	inference := &types.InferenceConfiguration{}
	if opts.MaxTokens > 0 {
		inference.MaxTokens = aws.Int32(int32(opts.MaxTokens))
	}
	if opts.Temperature > 0 {
		inference.Temperature = aws.Float32(float32(opts.Temperature))
	}
	if opts.TopP > 0 {
		inference.TopP = aws.Float32(float32(opts.TopP))
	}
	if len(opts.StopWords) > 0 {
		inference.StopSequences = opts.StopWords
	}
	input.InferenceConfig = inference

	out, err := l.client.Converse(ctx, input)
	if err != nil {
		return nil, errors.Wrap(err, "bedrock: converse failed")
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, llms.ErrEmptyResponse
	}

	var buf strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			buf.WriteString(text.Value)
		}
	}

	info := map[string]any{}
	if out.Usage != nil {
		info["InputTokens"] = out.Usage.InputTokens
		info["OutputTokens"] = out.Usage.OutputTokens
		info["TotalTokens"] = out.Usage.TotalTokens
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				Content:        buf.String(),
				StopReason:     string(out.StopReason),
				GenerationInfo: info,
			},
		},
	}, nil
}
