package server

import (
	"io/fs"
	"net/http"
	"path"
	"strings"
)

const (
	cacheImmutable  = "public, max-age=31536000, immutable"
	cacheRevalidate = "no-cache"
)

// webUI serves the browser client. Paths without a file extension are client
// routes and get index.html. Unknown /api and /ws paths and missing assets
// answer 404. Fingerprinted files under assets/ are cached for a year.
type webUI struct {
	assets fs.FS
	files  http.Handler
}

func newWebUI(assets fs.FS) *webUI {
	return &webUI{assets: assets, files: http.FileServerFS(assets)}
}

func (u *webUI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	if isBackendPath(r.URL.Path) {
		http.NotFound(w, r)
		return
	}

	name := path.Clean(strings.TrimPrefix(r.URL.Path, "/"))
	switch {
	case name != "." && u.isFile(name):
		if strings.HasPrefix(name, "assets/") {
			w.Header().Set("Cache-Control", cacheImmutable)
		}
		u.files.ServeHTTP(w, r)
	case path.Ext(name) != "":
		http.NotFound(w, r)
	default:
		w.Header().Set("Cache-Control", cacheRevalidate)
		http.ServeFileFS(w, r, u.assets, "index.html")
	}
}

func (u *webUI) isFile(name string) bool {
	info, err := fs.Stat(u.assets, name)
	return err == nil && !info.IsDir()
}

func isBackendPath(p string) bool {
	for _, prefix := range []string{"/api/", "/ws/"} {
		if p == strings.TrimSuffix(prefix, "/") || strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}
