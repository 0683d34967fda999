package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/reachlab/campaign-server-go/internal/model"
	"github.com/reachlab/campaign-server-go/internal/service"
)

// slotFor returns the user's linked slot for a platform, or nil.
func slotFor(user *model.User, platform string) *model.SocialAccount {
	if user == nil {
		return nil
	}
	if i := user.LinkedAccounts.FindPlatform(platform); i >= 0 {
		return &user.LinkedAccounts[i]
	}
	return nil
}

// redirectToFrontend sends the browser back to the SPA link page after a
// callback, carrying the outcome in the query string.
func redirectToFrontend(w http.ResponseWriter, r *http.Request, frontendBase, platform string, err error) {
	q := url.Values{"platform": {platform}}

	if err == nil {
		q.Set("status", "success")
	} else {
		q.Set("status", "error")
		switch {
		case errors.Is(err, service.ErrInvalidState):
			q.Set("reason", "invalid_state")
		case errors.Is(err, service.ErrProviderNotConfigured):
			q.Set("reason", "not_configured")
		case errors.Is(err, service.ErrProviderError):
			q.Set("reason", "provider_error")
		default:
			q.Set("reason", "internal_error")
		}
		log.Error().Err(err).Str("platform", platform).Msg("link callback failed")
	}

	http.Redirect(w, r, frontendBase+"/link?"+q.Encode(), http.StatusFound)
}
