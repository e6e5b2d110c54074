package llms_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/dataagents/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSystem(t *testing.T) {
	system, rest := llms.SplitSystem([]llms.Message{
		llms.SystemMessage("you write SQL"),
		llms.HumanMessage("count orders"),
		llms.SystemMessage("BigQuery dialect"),
		llms.AIMessage("SELECT 1"),
	})
	assert.Equal(t, "you write SQL\n\nBigQuery dialect", system)
	require.Len(t, rest, 2)
	assert.Equal(t, llms.RoleHuman, rest[0].Role)
	assert.Equal(t, llms.RoleAI, rest[1].Role)

	system, rest = llms.SplitSystem(nil)
	assert.Empty(t, system)
	assert.Empty(t, rest)
}

func TestContentResponse(t *testing.T) {
	var resp *llms.ContentResponse
	_, err := resp.Text()
	assert.True(t, errors.Is(err, llms.ErrEmptyResponse))
	assert.Equal(t, llms.TokenUsage{}, resp.Usage())

	_, err = (&llms.ContentResponse{}).Text()
	assert.True(t, errors.Is(err, llms.ErrEmptyResponse))

	in := int32(3)
	resp = &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				Content: "SELECT 1",
				GenerationInfo: map[string]any{
					"InputTokens":  int64(10),
					"OutputTokens": 4,
					"TotalTokens":  float64(14),
				},
			},
			nil,
			{
				Content: "SELECT 2",
				GenerationInfo: map[string]any{
					"InputTokens": &in,
				},
			},
		},
	}
	text, err := resp.Text()
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", text)
	assert.Equal(t, llms.TokenUsage{Input: 13, Output: 4, Total: 14}, resp.Usage())
}

func TestCallOptions(t *testing.T) {
	opts := llms.NewCallOptions(llms.CallOptions{Model: "gemini-2.5-pro", MaxTokens: 100},
		llms.WithTemperature(0.2),
		llms.WithTopP(0.9),
		llms.WithMaxTokens(2048),
		llms.WithStopWords([]string{";"}),
	)
	assert.Equal(t, llms.CallOptions{
		Model:       "gemini-2.5-pro",
		MaxTokens:   2048,
		Temperature: 0.2,
		TopP:        0.9,
		StopWords:   []string{";"},
	}, opts)

	opts = llms.NewCallOptions(opts, llms.WithModel("gpt-5-mini"))
	assert.Equal(t, "gpt-5-mini", opts.Model)
}
