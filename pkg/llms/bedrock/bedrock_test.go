package bedrock_test

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/dataagents/pkg/llms"
	"github.com/effective-security/dataagents/pkg/llms/bedrock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConverse struct {
	input *bedrockruntime.ConverseInput
	out   *bedrockruntime.ConverseOutput
	err   error
}

func (f *fakeConverse) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = params
	return f.out, f.err
}

func TestGenerateContent(t *testing.T) {
	fake := &fakeConverse{
		out: &bedrockruntime.ConverseOutput{
			Output: &types.ConverseOutputMemberMessage{
				Value: types.Message{
					Role: types.ConversationRoleAssistant,
					Content: []types.ContentBlock{
						&types.ContentBlockMemberText{Value: "SELECT 1"},
					},
				},
			},
			StopReason: types.StopReasonEndTurn,
			Usage: &types.TokenUsage{
				InputTokens:  aws.Int32(5),
				OutputTokens: aws.Int32(2),
				TotalTokens:  aws.Int32(7),
			},
		},
	}

	llm, err := bedrock.New(bedrock.WithClient(fake), bedrock.WithModel(""))
	require.NoError(t, err)
	assert.Equal(t, bedrock.DefaultModel, llm.GetName())
	assert.Equal(t, llms.ProviderBedrock, llm.GetProviderType())

	resp, err := llm.GenerateContent(context.Background(), []llms.Message{
		llms.SystemMessage("You write SQL"),
		llms.HumanMessage("one"),
		llms.AIMessage("SELECT"),
		llms.HumanMessage("again"),
	}, llms.WithMaxTokens(64), llms.WithTemperature(0.3))
	require.NoError(t, err)

	text, err := resp.Text()
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", text)
	assert.Equal(t, "end_turn", resp.Choices[0].StopReason)
	assert.Equal(t, llms.TokenUsage{Input: 5, Output: 2, Total: 7}, resp.Usage())

	require.NotNil(t, fake.input)
	assert.Equal(t, bedrock.DefaultModel, aws.ToString(fake.input.ModelId))
	require.Len(t, fake.input.System, 1)
	require.Len(t, fake.input.Messages, 3)
	assert.Equal(t, types.ConversationRoleAssistant, fake.input.Messages[1].Role)
	assert.Equal(t, int32(64), aws.ToInt32(fake.input.InferenceConfig.MaxTokens))
}

func TestGenerateContent_Errors(t *testing.T) {
	fake := &fakeConverse{err: errors.New("throttled")}
	llm, err := bedrock.New(bedrock.WithClient(fake))
	require.NoError(t, err)

	_, err = llm.GenerateContent(context.Background(), []llms.Message{llms.HumanMessage("q")})
	assert.EqualError(t, err, "bedrock: converse failed: throttled")

	_, err = llm.GenerateContent(context.Background(), []llms.Message{{Role: "tool"}})
	assert.EqualError(t, err, `bedrock: role "tool" not supported`)

	fake.err = nil
	fake.out = &bedrockruntime.ConverseOutput{}
	_, err = llm.GenerateContent(context.Background(), []llms.Message{llms.HumanMessage("q")})
	assert.ErrorIs(t, err, llms.ErrEmptyResponse)
}
