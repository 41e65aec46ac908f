package app

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/golang/glog"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// clientConfig is handed to the browser bundle as a JS object.
type clientConfig struct {
	BaseURL    string   `json:"base_url"`
	EnvID      string   `json:"env_id"`
	Compare    bool     `json:"compare"`
	UsePolling bool     `json:"use_polling"`
	Readonly   bool     `json:"readonly"`
	EnvIDs     []string `json:"env_ids"`
}

type indexPage struct {
	Title  string
	Config clientConfig
}

type errorPage struct {
	Status     int
	StatusText string
	Message    string
	Details    string
}

func (s *HTTPServer) writeIndex(w http.ResponseWriter, r *http.Request, eid string, compare bool) {
	s.render(w, http.StatusOK, "index.html", indexPage{
		Title: eid,
		Config: clientConfig{
			BaseURL:    s.opts.BaseURL,
			EnvID:      eid,
			Compare:    compare,
			UsePolling: s.opts.UseFrontendClientPolling,
			Readonly:   s.broker.Readonly(),
			EnvIDs:     s.broker.EnvIDs(r.Context()),
		},
	})
}

func (s *HTTPServer) writeLogin(w http.ResponseWriter) {
	s.render(w, http.StatusOK, "login.html", map[string]string{"BaseURL": s.opts.BaseURL})
}

// writeErrorPage renders the error template. The error text is shown only
// with --debug.
func (s *HTTPServer) writeErrorPage(w http.ResponseWriter, status int, err error) {
	page := errorPage{
		Status:     status,
		StatusText: http.StatusText(status),
		Message:    "The server failed to handle the request.",
	}
	if s.opts.Debug && err != nil {
		page.Details = err.Error()
	}
	s.render(w, status, "error.html", page)
}

func (s *HTTPServer) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		glog.Errorf("render %s: %v", name, err)
		writeText(w, http.StatusInternalServerError, "template error")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
