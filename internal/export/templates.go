package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

var reportTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}
	reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(reportHTML))
}

// TemplateData holds data for change report rendering
type TemplateData struct {
	Title         string
	DocumentID    int64
	Version1      int
	Version2      int
	UploadedBy1   string
	UploadedBy2   string
	CreatedAt1    time.Time
	CreatedAt2    time.Time
	Additions     int
	Deletions     int
	Modifications int
	TotalChanges  int
	Changes       []TemplateChange
	GeneratedAt   time.Time
}

// TemplateChange holds one change row for the template
type TemplateChange struct {
	Type       string
	LineStart  int
	LineEnd    int
	Summary    string
	Impact     string
	OldContent string
	NewContent string
	Frameworks []string
	Review     bool
}

// RenderReportHTML renders the change report template with provided data
func RenderReportHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const reportHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 900px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .stats { display: flex; gap: 2rem; margin-bottom: 2rem; }
    .stat { background: #f5f5f5; padding: 0.75rem 1.25rem; border-radius: 4px; }
    .stat b { font-size: 1.4em; display: block; }
    .change { padding: 1rem; margin: 1rem 0; border-left: 3px solid #999; background: #fafafa; }
    .change.critical { border-left-color: #c0392b; }
    .change.high { border-left-color: #e67e22; }
    .change.medium { border-left-color: #f1c40f; }
    .impact { text-transform: uppercase; font-size: 0.8em; font-weight: bold; }
    .impact.critical { color: #c0392b; }
    .impact.high { color: #e67e22; }
    pre { background: #fff; border: 1px solid #ddd; padding: 0.5rem; white-space: pre-wrap; font-size: 0.85em; }
    .old pre { background: #fdecea; }
    .new pre { background: #eafaf1; }
    .frameworks { font-size: 0.85em; color: #555; }
    .review { color: #c0392b; font-size: 0.85em; font-weight: bold; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">
    Document {{.DocumentID}} |
    v{{.Version1}} ({{formatDate .CreatedAt1 "Jan 2, 2006"}}, {{.UploadedBy1}})
    compared with
    v{{.Version2}} ({{formatDate .CreatedAt2 "Jan 2, 2006"}}, {{.UploadedBy2}}) |
    generated {{formatDate .GeneratedAt "Jan 2, 2006 15:04 MST"}}
  </div>
  <div class="stats">
    <div class="stat"><b>{{.TotalChanges}}</b> total changes</div>
    <div class="stat"><b>{{.Additions}}</b> additions</div>
    <div class="stat"><b>{{.Deletions}}</b> deletions</div>
    <div class="stat"><b>{{.Modifications}}</b> modifications</div>
  </div>
  {{if not .Changes}}<p>No changes between these versions.</p>{{end}}
  {{range .Changes}}
  <div class="change {{lower .Impact}}">
    <span class="impact {{lower .Impact}}">{{.Impact}}</span>
    <span> {{.Type}} at lines {{.LineStart}}-{{.LineEnd}}</span>
    {{if .Review}}<span class="review"> | requires review</span>{{end}}
    <p>{{.Summary}}</p>
    {{if .OldContent}}<div class="old"><pre>{{.OldContent}}</pre></div>{{end}}
    {{if .NewContent}}<div class="new"><pre>{{.NewContent}}</pre></div>{{end}}
    {{if .Frameworks}}<div class="frameworks">Affected frameworks: {{range $i, $f := .Frameworks}}{{if $i}}, {{end}}{{$f}}{{end}}</div>{{end}}
  </div>
  {{end}}
</body>
</html>`
