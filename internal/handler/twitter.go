package handler

import (
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

// XHandler serves the X OAuth flow and live profile lookups.
type XHandler struct {
	cfg       *config.Config
	linkSvc   *service.LinkService
	xClient   *service.XClient
	sessionMW *middleware.SessionMiddleware
}

func NewXHandler(
	cfg *config.Config,
	linkSvc *service.LinkService,
	xClient *service.XClient,
	sessionMW *middleware.SessionMiddleware,
) *XHandler {
	return &XHandler{
		cfg:       cfg,
		linkSvc:   linkSvc,
		xClient:   xClient,
		sessionMW: sessionMW,
	}
}

func (h *XHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/auth", h.Auth)
	r.With(h.sessionMW.Optional).Get("/callback", h.Callback)

	r.Group(func(r chi.Router) {
		r.Use(h.sessionMW.Handler)
		r.Get("/refresh", h.Refresh)
		r.Post("/refresh", h.Refresh)
		r.Get("/user/me", h.UserMe)
		r.Get("/user/by-username/{username}", h.UserByUsername)
	})

	return r
}

func (h *XHandler) Auth(w http.ResponseWriter, r *http.Request) {
	start, err := h.linkSvc.GetAuthURL(r.Context(), model.PlatformX)
	if err != nil {
		writeServiceError(w, model.PlatformX, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": start.URL})
}

func (h *XHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		log.Warn().Str("error", errParam).Msg("x authorization denied")
		redirectToFrontend(w, r, h.cfg.FrontendBaseURL, model.PlatformX, service.ErrProviderError)
		return
	}

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	userID := ""
	if user := middleware.GetUser(r.Context()); user != nil {
		userID = user.ID
	}

	_, profile, err := h.linkSvc.CompleteLink(r.Context(), model.PlatformX, code, state, userID)
	if err != nil {
		audit.LogFromRequest(r, audit.Event{Type: audit.EventLinkFailure, UserID: userID, Platform: model.PlatformX})
		redirectToFrontend(w, r, h.cfg.FrontendBaseURL, model.PlatformX, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:     audit.EventAccountLink,
		UserID:   userID,
		Platform: model.PlatformX,
		Details:  map[string]interface{}{"username": profile.Username},
	})
	redirectToFrontend(w, r, h.cfg.FrontendBaseURL, model.PlatformX, nil)
}

func (h *XHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	cred, err := h.userCredential(r, user)
	if err != nil {
		writeServiceError(w, model.PlatformX, err)
		return
	}

	refreshed, err := h.linkSvc.RefreshCredential(r.Context(), cred)
	if err != nil {
		writeServiceError(w, model.PlatformX, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"platform":  model.PlatformX,
		"expiresAt": refreshed.TokenExpiresAt,
	})
}

func (h *XHandler) UserMe(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	cred, err := h.userCredential(r, user)
	if err != nil {
		writeServiceError(w, model.PlatformX, err)
		return
	}

	profile, err := h.xClient.FetchProfile(r.Context(), cred.AccessToken)
	if err != nil {
		writeServiceError(w, model.PlatformX, err)
		return
	}

	writeJSON(w, http.StatusOK, profile.Raw)
}

func (h *XHandler) UserByUsername(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	username := chi.URLParam(r, "username")
	if username == "" {
		httputil.WriteError(w, apperrors.MissingRequired("username"))
		return
	}

	cred, err := h.userCredential(r, user)
	if err != nil {
		writeServiceError(w, model.PlatformX, err)
		return
	}

	profile, err := h.xClient.FetchUserByUsername(r.Context(), cred.AccessToken, username)
	if err != nil {
		writeServiceError(w, model.PlatformX, err)
		return
	}

	writeJSON(w, http.StatusOK, profile.Raw)
}

// userCredential resolves the session user's X credential with open tokens.
func (h *XHandler) userCredential(r *http.Request, user *model.User) (*model.ProviderCredential, error) {
	slot := slotFor(user, model.PlatformX)
	if slot == nil {
		return nil, service.ErrNotLinked
	}
	return h.linkSvc.Credential(r.Context(), model.PlatformX, slot.PlatformUserID)
}
