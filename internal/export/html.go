package export

import (
	"bytes"
	"fmt"
	"html/template"
)

var htmlShell = template.Must(template.New("document").Parse(`<!DOCTYPE html>
<html lang="{{.Lang}}">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
<style>
body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; line-height: 1.6; max-width: 900px; margin: 0 auto; padding: 40px 20px; color: #333; }
h1 { color: #2563eb; border-bottom: 2px solid #2563eb; padding-bottom: 10px; }
h2 { color: #1d4ed8; margin-top: 30px; }
h3 { color: #3b82f6; }
table { border-collapse: collapse; width: 100%; margin: 20px 0; }
th, td { border: 1px solid #ddd; padding: 12px; text-align: left; }
th { background-color: #f3f4f6; font-weight: bold; }
tr:nth-child(even) { background-color: #f9fafb; }
code { background-color: #f3f4f6; padding: 2px 6px; border-radius: 4px; font-family: 'Courier New', monospace; }
pre { background-color: #1f2937; color: #f9fafb; padding: 16px; border-radius: 8px; overflow-x: auto; }
pre code { background-color: transparent; padding: 0; }
blockquote { border-left: 4px solid #2563eb; margin: 20px 0; padding-left: 20px; color: #6b7280; }
ul, ol { padding-left: 30px; }
li { margin: 8px 0; }
</style>
</head>
<body>
{{.Body}}</body>
</html>
`))

// renderHTML converts markdown to a standalone page. Raw HTML in the content
// is not passed through.
func renderHTML(content, title, lang string) ([]byte, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(content), &body); err != nil {
		return nil, fmt.Errorf("convert markdown: %w", err)
	}
	if lang == "" {
		lang = "en"
	}
	var out bytes.Buffer
	err := htmlShell.Execute(&out, struct {
		Lang  string
		Title string
		Body  template.HTML
	}{lang, title, template.HTML(body.String())})
	if err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	return out.Bytes(), nil
}
