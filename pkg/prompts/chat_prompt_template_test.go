package prompts

import (
	"testing"

	"github.com/effective-security/dataagents/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatPromptTemplate(t *testing.T) {
	t.Parallel()

	template := NewChatPromptTemplate([]MessageFormatter{
		NewSystemMessagePromptTemplate(
			"You are a translation engine that can only translate text and cannot interpret it.",
			nil,
		),
		NewHumanMessagePromptTemplate(
			`translate this text from {{.inputLang}} to {{.outputLang | upper}}:\n{{.input}}`,
			[]string{"inputLang", "outputLang", "input"},
		),
	})
	assert.Equal(t, []string{"input", "inputLang", "outputLang"}, template.GetInputVariables())

	value, err := template.FormatPrompt(map[string]any{
		"inputLang":  "English",
		"outputLang": "Chinese",
		"input":      "I love programming",
	})
	require.NoError(t, err)
	expectedMessages := []llms.Message{
		llms.SystemMessage("You are a translation engine that can only translate text and cannot interpret it."),
		llms.HumanMessage(`translate this text from English to CHINESE:\nI love programming`),
	}
	require.Equal(t, expectedMessages, value.Messages())
	assert.Contains(t, value.String(), "human: translate this text")

	_, err = template.FormatPrompt(map[string]any{
		"inputLang":  "English",
		"outputLang": "Chinese",
	})
	assert.EqualError(t, err, "missing input variable: input")
}

func TestRender(t *testing.T) {
	t.Parallel()

	out, err := Render(`{{ .name | default "anon" }}`, map[string]any{"name": ""})
	require.NoError(t, err)
	assert.Equal(t, "anon", out)

	_, err = Render(`{{ .name`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse template")

	_, err = Render(`{{ .missing }}`, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to render template")
}

type column struct {
	Name        string
	Type        string
	Description string
}

type table struct {
	Name        string
	Description string
	Columns     []column
}

type schema struct {
	Domain         string
	Dialect        string
	AggregateAlias string
	Rules          []string
	Tables         []table
}

func TestSQLConversion(t *testing.T) {
	t.Parallel()

	p := SQLConversion("")
	msgs, err := p.FormatPrompt(map[string]any{
		"schema": &schema{
			Domain:  "the legal area",
			Dialect: "BigQuery SQL",
			Rules:   []string{" Use fully qualified table names. "},
			Tables: []table{
				{
					Name:        "project.legal.contracts",
					Description: "signed contracts",
					Columns: []column{
						{Name: "id", Type: "int", Description: "Id in the table."},
						{Name: "contract_name"},
					},
				},
			},
		},
		"user_input": "how many contracts were signed in 2024?",
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	sys := msgs[0]
	assert.Equal(t, llms.RoleSystem, sys.Role)
	assert.Contains(t, sys.Content, "business questions about the legal area")
	assert.Contains(t, sys.Content, "'project.legal.contracts' (signed contracts):")
	assert.Contains(t, sys.Content, "- id (int): Id in the table.")
	assert.Contains(t, sys.Content, "- contract_name (str)\n")
	assert.Contains(t, sys.Content, "Build the BigQuery SQL query")
	assert.Contains(t, sys.Content, "use the alias 'total'")
	assert.Contains(t, sys.Content, "- Use fully qualified table names.\n")
	assert.Equal(t, llms.HumanMessage("how many contracts were signed in 2024?"), msgs[1])

	_, err = p.FormatPrompt(map[string]any{"user_input": "q"})
	assert.EqualError(t, err, "missing input variable: schema")
}

func TestClauseExtraction(t *testing.T) {
	t.Parallel()

	p := ClauseExtraction("")
	msgs, err := p.FormatPrompt(map[string]any{
		"contract":   "\n1. OBJECT\nThe object.\n2. TERM\nTwelve months.\n",
		"user_input": "term clause",
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Content, "<Contract>\n1. OBJECT\nThe object.\n2. TERM\nTwelve months.\n</Contract>")
	assert.Equal(t, "term clause", msgs[1].Content)

	custom := ClauseExtraction("Find it in: {{ .contract }}")
	msgs, err = custom.FormatPrompt(map[string]any{"contract": "text", "user_input": "x"})
	require.NoError(t, err)
	assert.Equal(t, "Find it in: text", msgs[0].Content)
}
