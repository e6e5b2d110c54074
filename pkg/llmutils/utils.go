package llmutils

import (
	"bytes"
	"encoding/json"
	"strings"
)

// TrimBackticks removes ```json, ```sql or ``` fences
func TrimBackticks(text string) string {
	return string(BytesTrimBackticks([]byte(text)))
}

var backtick = []byte("```")

// BytesTrimBackticks removes ```json, ```sql or ``` fences
func BytesTrimBackticks(bs []byte) []byte {
	size := len(bs)
	startIndex := bytes.Index(bs, backtick)
	if startIndex == -1 {
		return bs
	}
	startIndex += len(backtick)

	// skip the language tag up to the end of line
	for i := startIndex; i < size && bs[i] != '{' && bs[i] != '['; i++ {
		if bs[i] == '\n' {
			startIndex = i + 1
			break
		}
	}

	contentAfterStart := bs[startIndex:]
	endIndex := bytes.LastIndex(contentAfterStart, backtick)
	if endIndex == -1 {
		return bytes.TrimSpace(contentAfterStart)
	}
	return bytes.TrimSpace(contentAfterStart[:endIndex])
}

// TrimSQL returns the SQL statement from a model reply,
// removing every ```sql and ``` marker and surrounding spaces.
func TrimSQL(text string) string {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "```sql", "")
	text = strings.ReplaceAll(text, "```SQL", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

// StripComments removes <!--  --> comments from the LLM output
func StripComments(text string) string {
	before, after, ok := strings.Cut(text, "<!--")
	if ok {
		_, after2, ok := strings.Cut(after, "-->")
		if ok {
			if len(after2) > 1 && after2[0] == '\n' {
				after2 = after2[1:]
			}
			return before + after2
		}
	}
	return text
}

// JSONIndent returns the JSON text indented with tabs,
// or an empty string if it is not valid JSON
func JSONIndent(body string) string {
	var buf bytes.Buffer
	_ = json.Indent(&buf, []byte(body), "", "\t")
	return buf.String()
}

func ToJSONIndent(val any) string {
	js, _ := json.MarshalIndent(val, "", "\t")
	return string(js)
}

// BackticksJSON wraps the JSON text in a ```json fence
func BackticksJSON(js string) string {
	return "\n```json\n" + strings.TrimSpace(js) + "\n```\n"
}

// EnsureEndsWithNewline ensures the message ends with a newline,
// it also removes any extra leading and trailing spaces.
func EnsureEndsWithNewline(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	return s + "\n"
}
