package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/reachlab/campaign-server-go/internal/audit"
	"github.com/reachlab/campaign-server-go/internal/config"
	"github.com/reachlab/campaign-server-go/internal/middleware"
	"github.com/reachlab/campaign-server-go/internal/model"
	"github.com/reachlab/campaign-server-go/internal/service"
	"github.com/reachlab/campaign-server-go/internal/util"
)

const tiktokStateCookie = "csrf_state"

// TikTokHandler serves the TikTok link flow. State rides in a short-lived
// cookie rather than the redis store, so auth must 302 through this server.
type TikTokHandler struct {
	cfg       *config.Config
	linkSvc   *service.LinkService
	ttClient  *service.TikTokClient
	sessionMW *middleware.SessionMiddleware
}

func NewTikTokHandler(
	cfg *config.Config,
	linkSvc *service.LinkService,
	ttClient *service.TikTokClient,
	sessionMW *middleware.SessionMiddleware,
) *TikTokHandler {
	return &TikTokHandler{
		cfg:       cfg,
		linkSvc:   linkSvc,
		ttClient:  ttClient,
		sessionMW: sessionMW,
	}
}

func (h *TikTokHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/auth", h.Auth)
	r.With(h.sessionMW.Optional).Get("/callback", h.Callback)

	r.Group(func(r chi.Router) {
		r.Use(h.sessionMW.Handler)
		r.Get("/refresh", h.Refresh)
		r.Post("/refresh", h.Refresh)
		r.Get("/user-info", h.UserInfo)
	})

	return r
}

func (h *TikTokHandler) Auth(w http.ResponseWriter, r *http.Request) {
	start, err := h.linkSvc.GetAuthURL(r.Context(), model.PlatformTikTok)
	if err != nil {
		writeServiceError(w, model.PlatformTikTok, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     tiktokStateCookie,
		Value:    start.State,
		Path:     "/tiktok",
		MaxAge:   int(config.TikTokStateCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, start.URL, http.StatusFound)
}

func (h *TikTokHandler) Callback(w http.ResponseWriter, r *http.Request) {
	defer h.clearStateCookie(w)

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		log.Warn().Str("error", errParam).Msg("tiktok authorization denied")
		redirectToFrontend(w, r, h.cfg.FrontendBaseURL, model.PlatformTikTok, service.ErrProviderError)
		return
	}

	cookie, err := r.Cookie(tiktokStateCookie)
	state := r.URL.Query().Get("state")
	if err != nil || cookie.Value == "" || state == "" || !util.ConstantTimeEqual(cookie.Value, state) {
		audit.LogFromRequest(r, audit.Event{Type: audit.EventLinkFailure, Platform: model.PlatformTikTok})
		redirectToFrontend(w, r, h.cfg.FrontendBaseURL, model.PlatformTikTok, service.ErrInvalidState)
		return
	}

	userID := ""
	if user := middleware.GetUser(r.Context()); user != nil {
		userID = user.ID
	}

	code := r.URL.Query().Get("code")
	_, profile, err := h.linkSvc.CompleteLink(r.Context(), model.PlatformTikTok, code, "", userID)
	if err != nil {
		audit.LogFromRequest(r, audit.Event{Type: audit.EventLinkFailure, UserID: userID, Platform: model.PlatformTikTok})
		redirectToFrontend(w, r, h.cfg.FrontendBaseURL, model.PlatformTikTok, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:     audit.EventAccountLink,
		UserID:   userID,
		Platform: model.PlatformTikTok,
		Details:  map[string]interface{}{"username": profile.Username},
	})
	redirectToFrontend(w, r, h.cfg.FrontendBaseURL, model.PlatformTikTok, nil)
}

func (h *TikTokHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	cred, err := h.userCredential(r)
	if err != nil {
		writeServiceError(w, model.PlatformTikTok, err)
		return
	}

	refreshed, err := h.linkSvc.RefreshCredential(r.Context(), cred)
	if err != nil {
		writeServiceError(w, model.PlatformTikTok, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"platform":  model.PlatformTikTok,
		"expiresAt": refreshed.TokenExpiresAt,
	})
}

func (h *TikTokHandler) UserInfo(w http.ResponseWriter, r *http.Request) {
	cred, err := h.userCredential(r)
	if err != nil {
		writeServiceError(w, model.PlatformTikTok, err)
		return
	}

	profile, err := h.ttClient.FetchProfile(r.Context(), cred.AccessToken)
	if err != nil {
		writeServiceError(w, model.PlatformTikTok, err)
		return
	}

	writeJSON(w, http.StatusOK, profile.Raw)
}

func (h *TikTokHandler) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   tiktokStateCookie,
		Value:  "",
		Path:   "/tiktok",
		MaxAge: -1,
	})
}

func (h *TikTokHandler) userCredential(r *http.Request) (*model.ProviderCredential, error) {
	user := middleware.GetUser(r.Context())
	slot := slotFor(user, model.PlatformTikTok)
	if slot == nil {
		return nil, service.ErrNotLinked
	}
	return h.linkSvc.Credential(r.Context(), model.PlatformTikTok, slot.PlatformUserID)
}
