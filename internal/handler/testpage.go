package handler

import (
	"embed"
	"html/template"
	"net/http"
	"strings"
)

//go:embed templates/test_page.html
var templateFS embed.FS

var testPageTmpl = template.Must(template.ParseFS(templateFS, "templates/test_page.html"))

type testPageData struct {
	AppName    string
	Version    string
	Extensions string
}

// TestPage serves a small HTML form for manual testing of /send-email.
func (h *Handler) TestPage(w http.ResponseWriter, r *http.Request) {
	exts := make([]string, 0, len(h.cfg.Limits.AllowedExtensions))
	for _, ext := range h.cfg.Limits.AllowedExtensions {
		exts = append(exts, "."+strings.TrimPrefix(ext, "."))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := testPageTmpl.Execute(w, testPageData{
		AppName:    h.cfg.App.Name,
		Version:    h.cfg.App.Version,
		Extensions: strings.Join(exts, ","),
	})
	if err != nil {
		h.log.Error().Err(err).Msg("failed to render test page")
	}
}
