package prompts

import (
	"embed"

	"github.com/effective-security/dataagents/pkg/llms"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Names of the embedded templates
const (
	TemplateSQLSystem    = "sql_system.tmpl"
	TemplateClauseSystem = "clause_system.tmpl"
)

// MustTemplate returns the embedded template by name
func MustTemplate(name string) string {
	b, err := templatesFS.ReadFile("templates/" + name)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// SQLConversion returns the prompt converting `user_input` to SQL,
// the system template is rendered with the `schema` value.
// When systemTemplate is empty, the embedded one is used.
func SQLConversion(systemTemplate string) ChatPromptTemplate {
	if systemTemplate == "" {
		systemTemplate = MustTemplate(TemplateSQLSystem)
	}
	return NewChatPromptTemplate([]MessageFormatter{
		&schemaMessageTemplate{tmpl: systemTemplate},
		NewHumanMessagePromptTemplate("{{ .user_input }}", []string{"user_input"}),
	})
}

// ClauseExtraction returns the prompt extracting the clause named by `user_input`
// from the `contract` text.
func ClauseExtraction(systemTemplate string) ChatPromptTemplate {
	if systemTemplate == "" {
		systemTemplate = MustTemplate(TemplateClauseSystem)
	}
	return NewChatPromptTemplate([]MessageFormatter{
		NewSystemMessagePromptTemplate(systemTemplate, []string{"contract"}),
		NewHumanMessagePromptTemplate("{{ .user_input }}", []string{"user_input"}),
	})
}

// schemaMessageTemplate renders the system template with the `schema` value as dot
type schemaMessageTemplate struct {
	tmpl string
}

func (p *schemaMessageTemplate) GetInputVariables() []string {
	return []string{"schema"}
}

func (p *schemaMessageTemplate) FormatMessage(values map[string]any) (llms.Message, error) {
	schema, ok := values["schema"]
	if !ok {
		return llms.Message{}, errMissing("schema")
	}
	text, err := RenderData(p.tmpl, schema)
	if err != nil {
		return llms.Message{}, err
	}
	return llms.SystemMessage(text), nil
}
