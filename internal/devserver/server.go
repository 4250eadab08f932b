// Package devserver is a development host for the playback core: it serves
// session manifests and pre-generated WAV tracks from local directories,
// with the same health, CORS and audio-path conventions as the production
// backend. It performs no generation or persistence of its own.
package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Theeojeong/READNING/internal/manifest"
)

// Config contains server configuration options.
type Config struct {
	// ManifestDir holds one <book>.json manifest per book.
	ManifestDir string
	// AudioDir holds generated tracks as <user>/<book>/ch<page>.wav.
	AudioDir string
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		ManifestDir:    "manifests",
		AudioDir:       "gen_musics",
		AllowedOrigins: []string{"*"},
	}
}

// Handlers contains the HTTP handlers for the dev server.
type Handlers struct {
	cfg    Config
	logger *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(cfg Config, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{cfg: cfg, logger: logger}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Readning API is running"})
}

// GetManifest handles GET /manifests/{book} requests. The manifest is
// validated before serving so a malformed file fails loudly here instead of
// silently inside a client session.
func (h *Handlers) GetManifest(w http.ResponseWriter, r *http.Request) {
	book := secureName(r.PathValue("book"))
	if book == "" {
		writeError(w, http.StatusBadRequest, "book is required", "MISSING_BOOK")
		return
	}

	path := filepath.Join(h.cfg.ManifestDir, book+".json")
	m, err := manifest.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "manifest not found", "MANIFEST_NOT_FOUND")
			return
		}
		h.logger.Error("manifest load failed",
			slog.String("book", book),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "invalid manifest", "MANIFEST_INVALID")
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// GetTrack handles GET /gen_musics/{user}/{book}/ch{page}.wav requests.
func (h *Handlers) GetTrack(w http.ResponseWriter, r *http.Request) {
	user := secureName(r.PathValue("user"))
	book := secureName(r.PathValue("book"))
	file := secureName(r.PathValue("file"))
	if user == "" || book == "" || !strings.HasSuffix(file, ".wav") {
		writeError(w, http.StatusBadRequest, "invalid track path", "INVALID_TRACK_PATH")
		return
	}

	path := filepath.Join(h.cfg.AudioDir, user, book, file)
	f, err := os.Open(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "file not found", "TRACK_NOT_FOUND")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "file not found", "TRACK_NOT_FOUND")
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", file))
	http.ServeContent(w, r, file, info.ModTime(), f)
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /manifests/{book}", h.GetManifest)
	mux.HandleFunc("GET /gen_musics/{user}/{book}/{file}", h.GetTrack)

	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}

// secureName strips path separators and traversal components from a
// user-supplied path segment.
func secureName(s string) string {
	s = strings.ReplaceAll(s, "\\", "/")
	s = filepath.Base(s)
	if s == "." || s == ".." || s == "/" {
		return ""
	}
	return s
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// errorResponse is the standard error response format.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}
