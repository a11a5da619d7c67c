package view

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/odyssey-erp/gatekeeper/web"
)

// Engine renders HTML mail templates.
type Engine struct {
	templates *template.Template
	now       func() time.Time
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title string
	Data  any
}

// NewEngine parses templates at build-time.
func NewEngine() (*Engine, error) {
	e := &Engine{now: time.Now}
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.UTC().Format("02 Jan 2006 15:04 MST")
		},
		"now": func() time.Time { return e.now() },
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/mail/*.html")
	if err != nil {
		return nil, err
	}
	e.templates = tpl
	return e, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(name string, data TemplateData) (string, error) {
	if e == nil {
		return "", fmt.Errorf("template engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
