package prompts

import (
	"strings"

	"github.com/effective-security/dataagents/pkg/llms"
)

// ChatPromptValue is a prompt value that is a list of chat messages.
type ChatPromptValue []llms.Message

// String returns the chat message slice as a buffer string.
func (v ChatPromptValue) String() string {
	var buf strings.Builder
	for i, m := range v {
		if i > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(string(m.Role))
		buf.WriteString(": ")
		buf.WriteString(m.Content)
	}
	return buf.String()
}

// Messages returns the ChatMessage slice.
func (v ChatPromptValue) Messages() []llms.Message {
	return v
}
