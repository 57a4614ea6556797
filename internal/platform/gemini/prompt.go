package gemini

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/phrazzld/owl-api/internal/domain"
	"github.com/phrazzld/owl-api/internal/pipeline"
)

const promptText = `You are a short-video content analyst.
{{- if .Account}}
Summarize the content strategy of the {{.Platform}} account at {{.URL}}.
Base the summary on its {{.Videos}} most recent videos at {{.Mode}} depth.
{{- if .IncludeComments}} Take audience comments into account.{{end}}
{{- else}}
Summarize the {{.Platform}} video at {{.URL}} for a {{.Mode}} analysis.
{{- end}}
{{- if .Prompts}}
Address each of these questions:
{{- range .Prompts}}
- {{.}}
{{- end}}
{{- end}}
Answer in one paragraph of plain text without markdown.`

var promptTemplate = template.Must(template.New("summary").Parse(promptText))

type promptData struct {
	Account         bool
	Platform        domain.Platform
	URL             string
	Mode            string
	Videos          int
	IncludeComments bool
	Prompts         []string
}

func renderPrompt(in pipeline.SummaryInput) (string, error) {
	if strings.TrimSpace(in.TargetURL) == "" {
		return "", errors.New("summary input has no target url")
	}
	data := promptData{
		Account:         in.Kind == domain.KindAccountAnalysis,
		Platform:        in.Platform,
		URL:             in.TargetURL,
		Mode:            in.Mode,
		Videos:          in.Videos,
		IncludeComments: in.IncludeComments,
		Prompts:         in.CustomPrompts,
	}
	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}
