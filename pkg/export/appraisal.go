package export

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"appraiserai/pkg/domain"
	"appraiserai/pkg/prompt"
)

const dateLayout = "January 2, 2006 15:04 MST"

// Text renders an appraisal as a plain-text document.
func Text(a domain.Appraisal) []byte {
	var b strings.Builder
	b.WriteString(displayTitle(a))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", len([]rune(displayTitle(a)))))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Appraisal type: %s\n", prompt.Resolve(a.TemplateID).Name)
	if !a.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", a.CreatedAt.Format(dateLayout))
	}
	if d := strings.TrimSpace(a.Description); d != "" {
		fmt.Fprintf(&b, "Description: %s\n", d)
	}
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(a.AppraisalText))
	b.WriteString("\n")
	return []byte(b.String())
}

// TextFilename is the download name for Text.
func TextFilename(a domain.Appraisal) string {
	return "appraisal-" + a.ID + ".txt"
}

var printTemplate = template.Must(template.New("print").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Georgia, "Times New Roman", serif; margin: 2rem auto; max-width: 48rem; color: #222; }
h1 { font-size: 1.6rem; margin-bottom: 0.25rem; }
.meta { color: #666; font-size: 0.9rem; margin-bottom: 1.5rem; }
pre { white-space: pre-wrap; word-wrap: break-word; font-family: inherit; line-height: 1.5; }
@media print { body { margin: 0; } }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<div class="meta">{{.Template}}{{if .Date}} &middot; {{.Date}}{{end}}</div>
{{if .Description}}<p>{{.Description}}</p>{{end}}
<pre>{{.Text}}</pre>
<script>window.onload = function () { window.print(); };</script>
</body>
</html>
`))

// PrintHTML renders a standalone HTML page that opens the print dialog on load.
func PrintHTML(a domain.Appraisal) ([]byte, error) {
	data := struct {
		Title       string
		Template    string
		Date        string
		Description string
		Text        string
	}{
		Title:       displayTitle(a),
		Template:    prompt.Resolve(a.TemplateID).Name,
		Description: strings.TrimSpace(a.Description),
		Text:        strings.TrimSpace(a.AppraisalText),
	}
	if !a.CreatedAt.IsZero() {
		data.Date = a.CreatedAt.Format(dateLayout)
	}
	var buf bytes.Buffer
	if err := printTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render print view: %w", err)
	}
	return buf.Bytes(), nil
}

func displayTitle(a domain.Appraisal) string {
	if t := strings.TrimSpace(a.Title); t != "" {
		return t
	}
	if a.CreatedAt.IsZero() {
		return "Appraisal"
	}
	return "Appraisal " + a.CreatedAt.Format(time.DateTime)
}
