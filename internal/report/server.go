package report

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ServerConfig points the review server at the run's artifacts.
type ServerConfig struct {
	ReportPath string // generated report HTML
	DataDir    string // snapshot JSON files
	ImagesDir  string // locally staged images
}

// NewRouter builds the chi router for the review server: the report at /,
// snapshots under /snapshots/, staged images under /images/.
func NewRouter(cfg ServerConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		if _, err := os.Stat(cfg.ReportPath); err != nil {
			http.Error(w, "report not generated yet", http.StatusNotFound)
			return
		}
		http.ServeFile(w, req, cfg.ReportPath)
	})

	serveDir(r, "/snapshots", cfg.DataDir)
	serveDir(r, "/images", cfg.ImagesDir)

	return r
}

func serveDir(r chi.Router, prefix, dir string) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	fs := http.StripPrefix(prefix, http.FileServer(http.Dir(abs)))
	r.Get(prefix+"/*", fs.ServeHTTP)
}
