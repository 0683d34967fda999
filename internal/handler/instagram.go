package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/reachlab/campaign-server-go/internal/audit"
	"github.com/reachlab/campaign-server-go/internal/config"
	apperrors "github.com/reachlab/campaign-server-go/internal/errors"
	"github.com/reachlab/campaign-server-go/internal/httputil"
	"github.com/reachlab/campaign-server-go/internal/middleware"
	"github.com/reachlab/campaign-server-go/internal/model"
	"github.com/reachlab/campaign-server-go/internal/service"
)

// InstagramHandler serves the Instagram link flow, media lookups and the
// Meta deauthorize webhook.
type InstagramHandler struct {
	cfg       *config.Config
	linkSvc   *service.LinkService
	igClient  *service.InstagramClient
	sessionMW *middleware.SessionMiddleware
	metaMW    *middleware.MetaSignatureMiddleware
}

func NewInstagramHandler(
	cfg *config.Config,
	linkSvc *service.LinkService,
	igClient *service.InstagramClient,
	sessionMW *middleware.SessionMiddleware,
	metaMW *middleware.MetaSignatureMiddleware,
) *InstagramHandler {
	return &InstagramHandler{
		cfg:       cfg,
		linkSvc:   linkSvc,
		igClient:  igClient,
		sessionMW: sessionMW,
		metaMW:    metaMW,
	}
}

func (h *InstagramHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/auth", h.Auth)
	r.Post("/auth", h.Auth)
	r.With(h.sessionMW.Optional).Get("/callback", h.Callback)
	r.With(h.metaMW.Handler).Post("/deauthorize", h.Deauthorize)

	r.Group(func(r chi.Router) {
		r.Use(h.sessionMW.Handler)
		r.Get("/user", h.User)
		r.Get("/media", h.Media)
		r.Get("/media/tagged", h.TaggedMedia)
		r.Get("/token/{userId}", h.Token)
	})

	return r
}

func (h *InstagramHandler) Auth(w http.ResponseWriter, r *http.Request) {
	start, err := h.linkSvc.GetAuthURL(r.Context(), model.PlatformInstagram)
	if err != nil {
		writeServiceError(w, model.PlatformInstagram, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": start.URL})
}

func (h *InstagramHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		log.Warn().
			Str("error", errParam).
			Str("reason", r.URL.Query().Get("error_reason")).
			Msg("instagram authorization denied")
		redirectToFrontend(w, r, h.cfg.FrontendBaseURL, model.PlatformInstagram, service.ErrProviderError)
		return
	}

	code := r.URL.Query().Get("code")

	userID := ""
	if user := middleware.GetUser(r.Context()); user != nil {
		userID = user.ID
	}

	_, profile, err := h.linkSvc.CompleteLink(r.Context(), model.PlatformInstagram, code, "", userID)
	if err != nil {
		audit.LogFromRequest(r, audit.Event{Type: audit.EventLinkFailure, UserID: userID, Platform: model.PlatformInstagram})
		redirectToFrontend(w, r, h.cfg.FrontendBaseURL, model.PlatformInstagram, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:     audit.EventAccountLink,
		UserID:   userID,
		Platform: model.PlatformInstagram,
		Details:  map[string]interface{}{"username": profile.Username},
	})
	redirectToFrontend(w, r, h.cfg.FrontendBaseURL, model.PlatformInstagram, nil)
}

func (h *InstagramHandler) User(w http.ResponseWriter, r *http.Request) {
	cred, err := h.userCredential(r)
	if err != nil {
		writeServiceError(w, model.PlatformInstagram, err)
		return
	}

	profile, err := h.igClient.FetchProfile(r.Context(), cred.AccessToken)
	if err != nil {
		writeServiceError(w, model.PlatformInstagram, err)
		return
	}

	writeJSON(w, http.StatusOK, profile.Raw)
}

func (h *InstagramHandler) Media(w http.ResponseWriter, r *http.Request) {
	cred, err := h.userCredential(r)
	if err != nil {
		writeServiceError(w, model.PlatformInstagram, err)
		return
	}

	media, err := h.igClient.FetchMedia(r.Context(), cred.AccessToken)
	if err != nil {
		writeServiceError(w, model.PlatformInstagram, err)
		return
	}

	writeJSON(w, http.StatusOK, media)
}

func (h *InstagramHandler) TaggedMedia(w http.ResponseWriter, r *http.Request) {
	cred, err := h.userCredential(r)
	if err != nil {
		writeServiceError(w, model.PlatformInstagram, err)
		return
	}

	media, err := h.igClient.FetchTaggedMedia(r.Context(), cred.AccessToken)
	if err != nil {
		writeServiceError(w, model.PlatformInstagram, err)
		return
	}

	writeJSON(w, http.StatusOK, media)
}

// Token hands the SPA the long-lived token for a linked Instagram user, used
// for oEmbed widgets. Only credentials attached to the session user are
// served.
func (h *InstagramHandler) Token(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	platformUserID := chi.URLParam(r, "userId")

	slot := slotFor(user, model.PlatformInstagram)
	if slot == nil || slot.PlatformUserID != platformUserID {
		httputil.WriteError(w, apperrors.Forbidden("Credential does not belong to this user"))
		return
	}

	cred, err := h.linkSvc.Credential(r.Context(), model.PlatformInstagram, platformUserID)
	if err != nil {
		writeServiceError(w, model.PlatformInstagram, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken": cred.AccessToken,
		"expiresAt":   cred.TokenExpiresAt,
	})
}

// Deauthorize handles Meta's revoke callback. The signature middleware has
// already verified the body.
func (h *InstagramHandler) Deauthorize(w http.ResponseWriter, r *http.Request) {
	body := middleware.GetMetaBody(r.Context())
	if body == nil {
		httputil.WriteError(w, apperrors.InvalidInput("body", "missing payload"))
		return
	}

	var payload struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.UserID == "" {
		httputil.WriteError(w, apperrors.InvalidInput("body", "missing user_id"))
		return
	}

	if err := h.linkSvc.HandleDeauthorize(r.Context(), model.PlatformInstagram, payload.UserID); err != nil {
		writeServiceError(w, model.PlatformInstagram, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:     audit.EventDeauthorize,
		Platform: model.PlatformInstagram,
		Details:  map[string]interface{}{"platformUserId": payload.UserID},
	})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *InstagramHandler) userCredential(r *http.Request) (*model.ProviderCredential, error) {
	user := middleware.GetUser(r.Context())
	slot := slotFor(user, model.PlatformInstagram)
	if slot == nil {
		return nil, service.ErrNotLinked
	}
	return h.linkSvc.Credential(r.Context(), model.PlatformInstagram, slot.PlatformUserID)
}
