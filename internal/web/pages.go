package web

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/tidycsv/internal/core"
)

//go:generate templ generate

// render writes c as an HTML response with status.
func render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render page", "path", r.URL.Path, "error", err)
	}
}

// dashboardData is everything the dashboard shows.
type dashboardData struct {
	Username    string
	MaxFileSize int64
	Files       []core.ArtifactInfo
	History     []core.UploadAttempt
}

func downloadURL(name, format string) templ.SafeURL {
	u := "/download/" + url.PathEscape(name)
	if format != "" {
		u += "?format=" + url.QueryEscape(format)
	}
	return templ.SafeURL(u)
}

func previewURL(name string) templ.SafeURL {
	return templ.SafeURL("/preview/" + url.PathEscape(name))
}
