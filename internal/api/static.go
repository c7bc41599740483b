package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/voxnote/voxnote/pkg/logger"
)

// StaticFileHandler serves the web UI from a directory on disk. Unknown paths
// fall back to index.html so client-side routing works.
type StaticFileHandler struct {
	dir    string
	fs     http.Handler
	logger *logger.Logger
}

// NewStaticFileHandler creates a static file handler rooted at dir
func NewStaticFileHandler(dir string, log *logger.Logger) *StaticFileHandler {
	return &StaticFileHandler{
		dir:    dir,
		fs:     http.FileServer(http.Dir(dir)),
		logger: log.Named("static"),
	}
}

// ServeHTTP serves the requested file, or index.html when it does not exist
func (h *StaticFileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(h.dir, filepath.Clean("/"+r.URL.Path))

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			http.ServeFile(w, r, filepath.Join(h.dir, "index.html"))
			return
		}
		http.NotFound(w, r)
		return
	}

	h.fs.ServeHTTP(w, r)
}
