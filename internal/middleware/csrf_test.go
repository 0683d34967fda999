package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSRFMiddleware(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("sets a cookie on first GET", func(t *testing.T) {
		middleware := NewCSRFMiddleware(false)
		handler := middleware.Handler(okHandler)

		req := httptest.NewRequest("GET", "/auth/me", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, CSRFCookieName, cookies[0].Name)
		assert.False(t, cookies[0].HttpOnly, "token must be readable by the SPA")
	})

	t.Run("rejects POST without header", func(t *testing.T) {
		middleware := NewCSRFMiddleware(false)
		handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest("POST", "/auth/login", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "token-value"})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("rejects POST with mismatched header", func(t *testing.T) {
		middleware := NewCSRFMiddleware(false)
		handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest("POST", "/auth/login", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "token-value"})
		req.Header.Set(CSRFHeaderName, "different-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("allows POST with matching cookie and header", func(t *testing.T) {
		middleware := NewCSRFMiddleware(false)
		handler := middleware.Handler(okHandler)

		req := httptest.NewRequest("POST", "/auth/login", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "token-value"})
		req.Header.Set(CSRFHeaderName, "token-value")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
