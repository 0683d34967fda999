package handler

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSPATestRouter(staticDir string) http.Handler {
	r := chi.NewRouter()
	r.Get("/*", StaticFileServer(staticDir).ServeHTTP)
	return r
}

func TestSPAHandler(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "spa-test")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	indexContent := "<!DOCTYPE html><html><body>Index</body></html>"
	err = os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte(indexContent), 0644)
	require.NoError(t, err)

	cssContent := "body { color: black; }"
	err = os.WriteFile(filepath.Join(tmpDir, "styles.css"), []byte(cssContent), 0644)
	require.NoError(t, err)

	jsContent := "console.log('hello');"
	err = os.WriteFile(filepath.Join(tmpDir, "app.js"), []byte(jsContent), 0644)
	require.NoError(t, err)

	router := newSPATestRouter(tmpDir)

	t.Run("serves index.html for root path", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Index")
	})

	t.Run("serves static files", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/styles.css", nil)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "color: black")
	})

	t.Run("serves JS files", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/app.js", nil)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "console.log")
	})

	t.Run("falls back to index.html for unknown paths", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/campaigns/settings", nil)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Index")
	})

	t.Run("returns 404 for api paths", func(t *testing.T) {
		for _, path := range []string{"/api/users", "/auth/unknown", "/instagram/unknown", "/tiktok/unknown"} {
			req := httptest.NewRequest("GET", path, nil)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusNotFound, rec.Code, path)
		}
	})
}

func TestSPAHandler_NoIndexFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "spa-test-empty")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	router := newSPATestRouter(tmpDir)

	t.Run("returns 404 when index.html is missing", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestStaticFileServer(t *testing.T) {
	t.Run("returns SPAHandler", func(t *testing.T) {
		h := StaticFileServer("/tmp/test")
		assert.NotNil(t, h)
		_, ok := h.(*SPAHandler)
		assert.True(t, ok)
	})
}
