package export

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
	"time"

	"panehub/server/internal/pane"
)

// SafeHTML marks producer supplied text pane content as HTML.
func SafeHTML(s interface{}) template.HTML {
	switch v := s.(type) {
	case string:
		return template.HTML(v)
	case template.HTML:
		return v
	default:
		return template.HTML("")
	}
}

//go:embed templates/*.html
var templateFS embed.FS

var reportTemplate = template.Must(template.New("report.html").Funcs(template.FuncMap{
	"lower": strings.ToLower,
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
	"safeHTML": SafeHTML,
}).ParseFS(templateFS, "templates/report.html"))

// TemplateData holds data for report rendering
type TemplateData struct {
	Eid       string
	Generated time.Time
	Panes     []TemplatePane
}

// TemplatePane is one pane as the report shows it. Exactly one of Text,
// Images, Properties or JSON is set.
type TemplatePane struct {
	ID         string
	Title      string
	Type       string
	Text       string
	Images     []TemplateImage
	Properties []TemplateProperty
	JSON       string
}

type TemplateImage struct {
	Src     template.URL
	Caption string
}

type TemplateProperty struct {
	Name  string
	Value string
}

func templatePane(p *pane.Pane) TemplatePane {
	tp := TemplatePane{ID: p.ID, Title: p.Title, Type: string(p.Type)}
	switch p.Type {
	case pane.TypeText:
		if text, ok := p.Content.(string); ok {
			tp.Text = text
			return tp
		}
	case pane.TypeImage:
		if img, ok := imageOf(p.Content); ok {
			tp.Images = []TemplateImage{img}
			return tp
		}
	case pane.TypeImageHistory:
		if list, ok := p.Content.([]any); ok {
			for _, item := range list {
				if img, ok := imageOf(item); ok {
					tp.Images = append(tp.Images, img)
				}
			}
			return tp
		}
	case pane.TypeProperties:
		if props, ok := propertiesOf(p.Content); ok {
			tp.Properties = props
			return tp
		}
	}
	raw, err := json.MarshalIndent(p.Content, "", "  ")
	if err != nil {
		raw = []byte(fmt.Sprintf("%v", p.Content))
	}
	tp.JSON = string(raw)
	return tp
}

func imageOf(v any) (TemplateImage, bool) {
	content, ok := v.(map[string]any)
	if !ok {
		return TemplateImage{}, false
	}
	src, ok := content["src"].(string)
	if !ok {
		return TemplateImage{}, false
	}
	caption, _ := content["caption"].(string)
	// Producers send inline data: URLs; the template would otherwise
	// replace them.
	return TemplateImage{Src: template.URL(src), Caption: caption}, true
}

func propertiesOf(v any) ([]TemplateProperty, bool) {
	content, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	list, ok := content["data"].([]any)
	if !ok {
		return nil, false
	}
	props := make([]TemplateProperty, 0, len(list))
	for _, item := range list {
		prop, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := prop["name"].(string)
		props = append(props, TemplateProperty{Name: name, Value: fmt.Sprint(prop["value"])})
	}
	return props, true
}

// RenderReportHTML renders the report template with provided data
func RenderReportHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
