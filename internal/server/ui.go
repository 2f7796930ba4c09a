package server

import (
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// uiFS holds the embedded SPA build. Set via SetUI before creating the server.
var uiFS fs.FS

// SetUI sets the embedded filesystem for serving the SPA. A filesystem
// without index.html is treated as absent.
func SetUI(fsys fs.FS) {
	if fsys != nil {
		if _, err := fs.Stat(fsys, "index.html"); err != nil {
			fsys = nil
		}
	}
	uiFS = fsys
}

// spaHandler serves static files from the embedded FS with SPA fallback.
// Any path not matching a real file returns index.html.
func spaHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if p == "" {
			p = "index.html"
		}

		if info, err := fs.Stat(uiFS, p); err != nil || info.IsDir() {
			// client-side route
			p = "index.html"
		}

		http.ServeFileFS(w, r, uiFS, p)
	}
}

// uploadsHandler serves stored uploads without directory listings or
// dotfiles (in-flight temp files).
func uploadsHandler(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Path
		if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
			writeError(w, http.StatusNotFound, "Not Found")
			return
		}
		if info, err := os.Stat(filepath.Join(dir, name)); err != nil || info.IsDir() {
			writeError(w, http.StatusNotFound, "Not Found")
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		files.ServeHTTP(w, r)
	})
}
