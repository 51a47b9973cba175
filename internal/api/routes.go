package api

import (
	"log/slog"
	"net/http"
	"path/filepath"
	"time"
)

// StaticDirs locates the directories served next to the API.
type StaticDirs struct {
	Frontend string
	Data     string
	Images   string
}

// RegisterRoutes wires the dashboard API and static files onto mux.
func RegisterRoutes(mux *http.ServeMux, h *Handler, dirs StaticDirs) http.Handler {
	// Dashboard APIs
	mux.HandleFunc("GET /api/status", h.GetStatus)
	mux.HandleFunc("GET /api/models", h.GetModels)
	mux.HandleFunc("GET /api/suggest-replacement", h.SuggestReplacement)
	mux.HandleFunc("POST /api/replace-model", h.ReplaceModel)
	mux.HandleFunc("POST /api/refresh", h.Refresh)
	mux.HandleFunc("GET /api/history", h.GetHistory)

	// Static files
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, filepath.Join(dirs.Frontend, "index.html"))
	})
	mux.Handle("GET /frontend/", http.StripPrefix("/frontend/", http.FileServer(http.Dir(dirs.Frontend))))
	mux.Handle("GET /data/", http.StripPrefix("/data/", http.FileServer(http.Dir(dirs.Data))))
	mux.Handle("GET /images/", http.StripPrefix("/images/", http.FileServer(http.Dir(dirs.Images))))

	// Middlewares
	return Chain(
		mux,
		RecoveryMiddleware(h.logger),
		LoggingMiddleware(h.logger),
	)
}

// NewHTTPServer builds the dashboard server on addr.
func NewHTTPServer(addr string, handler http.Handler, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
}
