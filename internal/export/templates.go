package export

import (
	"bytes"
	"html/template"
	"strings"
)

var documentTemplate = template.Must(template.New("resolution").Parse(resolutionTemplate))

// TemplateData holds data for resolution template rendering
type TemplateData struct {
	Committee     string
	Bloc          string
	Forum         string
	QuestionOf    string
	SubmittedBy   string
	CoSubmittedBy string
	Paragraphs    []string
}

// RenderResolutionHTML renders the printable resolution page: the four header
// lines followed by the rendered clause text, one paragraph per clause.
func RenderResolutionHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// splitParagraphs breaks the rendered clause text on blank lines so the
// template can emit one <p> per clause.
func splitParagraphs(rendered string) []string {
	if rendered == "" {
		return nil
	}
	parts := strings.Split(rendered, "\n\n")
	paragraphs := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimRight(part, "\n"); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}
	return paragraphs
}

const resolutionTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Bloc}} Resolution</title>
  <style>
    body { font-family: "Times New Roman", serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    .headers { margin-bottom: 2rem; }
    .headers div { margin-bottom: 0.25rem; }
    .label { font-weight: bold; text-transform: uppercase; }
    p { margin: 0 0 1rem 0; }
  </style>
</head>
<body>
  <div class="headers">
    <div><span class="label">Forum:</span> {{.Forum}}</div>
    <div><span class="label">Question of:</span> {{.QuestionOf}}</div>
    <div><span class="label">Submitted by:</span> {{.SubmittedBy}}</div>
    <div><span class="label">Co-submitted by:</span> {{.CoSubmittedBy}}</div>
  </div>
  {{range .Paragraphs}}<p>{{.}}</p>
  {{end}}
</body>
</html>`
