package analysis

import (
	"strings"
	"text/template"

	"github.com/clipscope/clipscope/internal/models"
)

var promptTemplate = template.Must(template.New("analysis").Parse(`You are a senior software engineer reviewing a technical video.

Video title: {{.Title}}
{{- if .Description}}
Video description: {{.Description}}
{{- end}}

Watch the attached video and describe how the software shown is built.

Respond with ONLY a JSON object, no markdown and no text before or after it, with exactly these fields:
{
  "implementationOverview": "two or three sentences on what is built and how",
  "technicalDetails": "the notable implementation details",
  "techStack": ["each language, framework, library or service used"],
  "architecturePatterns": ["each architectural or design pattern used"],
  "bestPractices": ["each engineering practice demonstrated"]
}

Use empty strings or empty arrays when the video does not show something.`))

// BuildPrompt renders the analysis instruction for a video.
func BuildPrompt(video models.Video) string {
	title := video.Title
	if title == "" {
		title = models.DefaultVideoTitle
	}

	var b strings.Builder
	// the template is static and its inputs are plain strings
	_ = promptTemplate.Execute(&b, struct {
		Title       string
		Description string
	}{
		Title:       title,
		Description: strings.TrimSpace(video.Description),
	})
	return b.String()
}
