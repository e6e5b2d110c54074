package prompts

import (
	"slices"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/dataagents/pkg/llms"
)

// MessageFormatter formats one message of a chat prompt
type MessageFormatter interface {
	FormatMessage(values map[string]any) (llms.Message, error)
	GetInputVariables() []string
}

// MessagePromptTemplate is a Go text template rendered into a message of the role.
// sprig functions are available to the template.
type MessagePromptTemplate struct {
	Role           llms.Role
	Template       string
	InputVariables []string
}

// NewSystemMessagePromptTemplate returns a template of the system message
func NewSystemMessagePromptTemplate(tmpl string, inputVariables []string) *MessagePromptTemplate {
	return &MessagePromptTemplate{Role: llms.RoleSystem, Template: tmpl, InputVariables: inputVariables}
}

// NewHumanMessagePromptTemplate returns a template of the human message
func NewHumanMessagePromptTemplate(tmpl string, inputVariables []string) *MessagePromptTemplate {
	return &MessagePromptTemplate{Role: llms.RoleHuman, Template: tmpl, InputVariables: inputVariables}
}

// GetInputVariables returns the variables the template requires
func (p *MessagePromptTemplate) GetInputVariables() []string {
	return p.InputVariables
}

// FormatMessage renders the message
func (p *MessagePromptTemplate) FormatMessage(values map[string]any) (llms.Message, error) {
	text, err := Render(p.Template, values, p.InputVariables...)
	if err != nil {
		return llms.Message{}, err
	}
	return llms.Message{Role: p.Role, Content: text}, nil
}

// ChatPromptTemplate is a list of message templates
type ChatPromptTemplate struct {
	Messages []MessageFormatter
}

// NewChatPromptTemplate returns a chat prompt from the message templates
func NewChatPromptTemplate(messages []MessageFormatter) ChatPromptTemplate {
	return ChatPromptTemplate{Messages: messages}
}

// FormatPrompt renders all messages
func (p ChatPromptTemplate) FormatPrompt(values map[string]any) (ChatPromptValue, error) {
	msgs := make(ChatPromptValue, 0, len(p.Messages))
	for _, m := range p.Messages {
		msg, err := m.FormatMessage(values)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// GetInputVariables returns the sorted list of variables of all messages
func (p ChatPromptTemplate) GetInputVariables() []string {
	var vars []string
	for _, m := range p.Messages {
		for _, v := range m.GetInputVariables() {
			if !slices.Contains(vars, v) {
				vars = append(vars, v)
			}
		}
	}
	slices.Sort(vars)
	return vars
}

// Render executes the template with values.
// Every one of required must be present in values.
func Render(tmpl string, values map[string]any, required ...string) (string, error) {
	for _, name := range required {
		if _, ok := values[name]; !ok {
			return "", errMissing(name)
		}
	}
	return RenderData(tmpl, values)
}

// RenderData executes the template with data as dot
func RenderData(tmpl string, data any) (string, error) {
	t, err := template.New("prompt").
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(tmpl)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse template")
	}

	var buf strings.Builder
	if err := t.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "failed to render template")
	}
	return buf.String(), nil
}

func errMissing(name string) error {
	return errors.Errorf("missing input variable: %s", name)
}
