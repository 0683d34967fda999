package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/reachlab/campaign-server-go/internal/model"
	"github.com/reachlab/campaign-server-go/internal/service"
)

type contextKey string

const (
	SessionCookie = "access_token"

	UserContextKey contextKey = "sessionUser"
)

// GetUser returns the session user attached by SessionMiddleware, or nil.
func GetUser(ctx context.Context) *model.User {
	if user, ok := ctx.Value(UserContextKey).(*model.User); ok {
		return user
	}
	return nil
}

// SessionMiddleware authenticates requests by the access_token cookie.
type SessionMiddleware struct {
	authSvc *service.AuthService
}

func NewSessionMiddleware(authSvc *service.AuthService) *SessionMiddleware {
	return &SessionMiddleware{authSvc: authSvc}
}

// Handler rejects requests without a valid session.
func (m *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := m.resolveUser(r)
		if user == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Unauthorized",
			})
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Optional attaches the user when a valid session cookie is present but lets
// anonymous requests through. OAuth callbacks use this: a link started from a
// logged-in browser attaches to the user, one without a session only stores
// the credential.
func (m *SessionMiddleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := m.resolveUser(r); user != nil {
			ctx := context.WithValue(r.Context(), UserContextKey, user)
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

func (m *SessionMiddleware) resolveUser(r *http.Request) *model.User {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil || cookie.Value == "" {
		return nil
	}

	user, err := m.authSvc.ValidateSession(r.Context(), cookie.Value)
	if err != nil {
		return nil
	}
	return user
}

func SetSessionCookie(w http.ResponseWriter, token string, maxAge time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   SessionCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}
