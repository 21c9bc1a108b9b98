// Package web embeds the built frontend (dist/) and serves it as a
// single-page application.
//
// The committed dist/ holds a placeholder shell; the frontend build replaces
// it before the server binary is compiled.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

type spa struct {
	files  fs.FS
	server http.Handler
}

// SPAHandler returns an http.Handler that serves the embedded frontend.
// Paths that do not name a file get index.html so client-side routes like
// /projects work on reload. Unknown /api/ paths get a JSON 404 instead.
func SPAHandler() http.Handler {
	files, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}
	return &spa{files: files, server: http.FileServer(http.FS(files))}
}

func (s *spa) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasPrefix(r.URL.Path, "/api/"):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))

	case s.isFile(r.URL.Path):
		// Bundled assets carry a content hash in their names.
		if strings.HasPrefix(r.URL.Path, "/assets/") {
			w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		}
		s.server.ServeHTTP(w, r)

	default:
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFileFS(w, r, s.files, "index.html")
	}
}

func (s *spa) isFile(urlPath string) bool {
	name := strings.TrimPrefix(path.Clean(urlPath), "/")
	if name == "" {
		return true
	}
	info, err := fs.Stat(s.files, name)
	return err == nil && !info.IsDir()
}
