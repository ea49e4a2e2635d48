package context

import (
	"fmt"
	"strings"
	"text/template"
)

// Excerpt is the text of an attached asset included in the system prompt.
type Excerpt struct {
	Name string
	Text string
}

// PromptData is passed to the system prompt template.
type PromptData struct {
	System string
	Assets []Excerpt
}

// DefaultPrompt renders the preset system prompt followed by the content
// of any attached files.
const DefaultPrompt = `{{.System}}
{{- if .Assets}}

## Attached files

The user attached the following files. Use them to answer when relevant.
{{- range .Assets}}

### {{.Name}}

{{.Text}}
{{- end}}
{{- end}}`

var defaultTemplate = template.Must(template.New("system").Parse(DefaultPrompt))

// RenderSystem renders the system message. It returns an empty string when
// there is neither a system prompt nor an excerpt.
func RenderSystem(data PromptData) (string, error) {
	if strings.TrimSpace(data.System) == "" && len(data.Assets) == 0 {
		return "", nil
	}
	var b strings.Builder
	if err := defaultTemplate.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}
	return strings.TrimSpace(b.String()), nil
}
