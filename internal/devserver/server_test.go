package devserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testManifest = `{
	"title": "demian",
	"chunks": [
		{"id": "p1-c0", "text": "x", "audioUrl": "/gen_musics/u1/demian/ch1.wav"}
	]
}`

func newTestRouter(t *testing.T) (http.Handler, Config) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.ManifestDir = t.TempDir()
	cfg.AudioDir = t.TempDir()

	require.NoError(t, os.WriteFile(
		filepath.Join(cfg.ManifestDir, "demian.json"), []byte(testManifest), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(cfg.ManifestDir, "broken.json"), []byte(`{"chunks": []}`), 0o644))

	trackDir := filepath.Join(cfg.AudioDir, "u1", "demian")
	require.NoError(t, os.MkdirAll(trackDir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(trackDir, "ch1.wav"), []byte("RIFF-fake-wav"), 0o644))

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	h := NewHandlers(cfg, logger)
	return NewRouter(h, logger, cfg), cfg
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Readning API is running", body["message"])
}

func TestGetManifest(t *testing.T) {
	router, _ := newTestRouter(t)

	t.Run("found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/manifests/demian", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var m struct {
			Chunks []struct {
				ID string `json:"id"`
			} `json:"chunks"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
		require.Len(t, m.Chunks, 1)
		assert.Equal(t, "p1-c0", m.Chunks[0].ID)
	})

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/manifests/unknown", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusNotFound, rec.Code)

		var body errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "MANIFEST_NOT_FOUND", body.Code)
	})

	t.Run("invalid manifest fails loudly", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/manifests/broken", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusInternalServerError, rec.Code)

		var body errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "MANIFEST_INVALID", body.Code)
	})
}

func TestGetTrack(t *testing.T) {
	router, _ := newTestRouter(t)

	t.Run("serves wav inline", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/gen_musics/u1/demian/ch1.wav", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "inline")
		assert.Equal(t, "RIFF-fake-wav", rec.Body.String())
	})

	t.Run("supports range requests", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/gen_musics/u1/demian/ch1.wav", nil)
		req.Header.Set("Range", "bytes=0-3")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusPartialContent, rec.Code)
		assert.Equal(t, "RIFF", rec.Body.String())
	})

	t.Run("missing file", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/gen_musics/u1/demian/ch9.wav", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("rejects non-wav", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/gen_musics/u1/demian/ch1.mp3", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSecureName(t *testing.T) {
	assert.Equal(t, "ch1.wav", secureName("ch1.wav"))
	assert.Equal(t, "passwd", secureName("../../etc/passwd"))
	assert.Equal(t, "passwd", secureName("..\\..\\etc\\passwd"))
	assert.Equal(t, "", secureName(".."))
	assert.Equal(t, "", secureName("."))
}

func TestCORSMiddleware(t *testing.T) {
	router, _ := newTestRouter(t)

	t.Run("echoes allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/health", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	panics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	handler := RecoveryMiddleware(logger)(panics)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
