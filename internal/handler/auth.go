package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/rs/zerolog/log"

	"github.com/reachlab/campaign-server-go/internal/audit"
	apperrors "github.com/reachlab/campaign-server-go/internal/errors"
	"github.com/reachlab/campaign-server-go/internal/httputil"
	"github.com/reachlab/campaign-server-go/internal/middleware"
	"github.com/reachlab/campaign-server-go/internal/model"
	"github.com/reachlab/campaign-server-go/internal/service"
)

type AuthHandler struct {
	authSvc       *service.AuthService
	linkSvc       *service.LinkService
	sessionMW     *middleware.SessionMiddleware
	loginLimitMW  *middleware.IPRateLimitMiddleware
	eventsHandler *EventsHandler
	sessionTTL    time.Duration
	isProduction  bool
}

func NewAuthHandler(
	authSvc *service.AuthService,
	linkSvc *service.LinkService,
	sessionMW *middleware.SessionMiddleware,
	loginLimitMW *middleware.IPRateLimitMiddleware,
	eventsHandler *EventsHandler,
	sessionTTL time.Duration,
	isProduction bool,
) *AuthHandler {
	return &AuthHandler{
		authSvc:       authSvc,
		linkSvc:       linkSvc,
		sessionMW:     sessionMW,
		loginLimitMW:  loginLimitMW,
		eventsHandler: eventsHandler,
		sessionTTL:    sessionTTL,
		isProduction:  isProduction,
	}
}

func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/check-email", h.CheckEmail)
	r.Group(func(r chi.Router) {
		r.Use(h.loginLimitMW.Handler)
		r.Post("/signup", h.Signup)
		r.Post("/login", h.Login)
	})
	r.Post("/logout", h.Logout)

	r.Group(func(r chi.Router) {
		r.Use(h.sessionMW.Handler)
		r.Get("/me", h.Me)
		r.Get("/events", h.eventsHandler.ServeHTTP)
		r.Patch("/user", h.UpdateUser)
		r.Patch("/user/password", h.ChangePassword)
		r.Patch("/user/linked-accounts", h.ReplaceLinkedAccounts)
		r.Delete("/user/linked-accounts/{platform}", h.Unlink)
		r.Delete("/user", h.DeleteUser)
	})

	return r
}

func (h *AuthHandler) CheckEmail(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("email", err.Error()))
		return
	}

	available, err := h.authSvc.EmailAvailable(r.Context(), email)
	if err != nil {
		log.Error().Err(err).Msg("email availability check failed")
		writeServiceError(w, "", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"exists": !available})
}

type signupPayload struct {
	Email           string  `json:"email"`
	Password        string  `json:"password"`
	PasswordConfirm string  `json:"passwordConfirm"`
	Name            string  `json:"name"`
	Address         *string `json:"address"`
	BankAccount     *string `json:"bankAccount"`
}

func (p signupPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, is.Email),
		validation.Field(&p.Password, validation.Required, validation.Length(8, 128)),
		validation.Field(&p.PasswordConfirm, validation.Required, validation.In(p.Password).Error("must match password")),
		validation.Field(&p.Name, validation.Required, validation.Length(1, 200)),
	)
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var payload signupPayload
	if !decodePayload(w, r, &payload) {
		return
	}

	user, token, err := h.authSvc.Signup(r.Context(), service.SignupParams{
		Email:       payload.Email,
		Password:    payload.Password,
		Name:        payload.Name,
		Address:     payload.Address,
		BankAccount: payload.BankAccount,
	})
	if err != nil {
		writeServiceError(w, "", err)
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventSignup, UserID: user.ID})
	h.setSession(w, token)
	writeJSON(w, http.StatusCreated, formatUser(user))
}

type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (p loginPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, is.Email),
		validation.Field(&p.Password, validation.Required),
	)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload loginPayload
	if !decodePayload(w, r, &payload) {
		return
	}

	user, token, err := h.authSvc.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		audit.LogFromRequest(r, audit.Event{
			Type:    audit.EventLoginFailure,
			Details: map[string]interface{}{"email": payload.Email},
		})
		writeServiceError(w, "", err)
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventLoginSuccess, UserID: user.ID})
	h.setSession(w, token)
	writeJSON(w, http.StatusOK, formatUser(user))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if user := middleware.GetUser(r.Context()); user != nil {
		audit.LogFromRequest(r, audit.Event{Type: audit.EventLogout, UserID: user.ID})
	}
	middleware.ClearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	writeJSON(w, http.StatusOK, formatUser(user))
}

type updateUserPayload struct {
	Name        *string `json:"name"`
	Address     *string `json:"address"`
	BankAccount *string `json:"bankAccount"`
}

func (p updateUserPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.Length(1, 200)),
	)
}

func (h *AuthHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var payload updateUserPayload
	if !decodePayload(w, r, &payload) {
		return
	}

	updated, err := h.authSvc.UpdateProfile(r.Context(), user.ID, model.UpdateUserParams{
		Name:        payload.Name,
		Address:     payload.Address,
		BankAccount: payload.BankAccount,
	})
	if err != nil {
		writeServiceError(w, "", err)
		return
	}

	writeJSON(w, http.StatusOK, formatUser(updated))
}

type changePasswordPayload struct {
	CurrentPassword    string `json:"currentPassword"`
	NewPassword        string `json:"newPassword"`
	NewPasswordConfirm string `json:"newPasswordConfirm"`
}

func (p changePasswordPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.CurrentPassword, validation.Required),
		validation.Field(&p.NewPassword, validation.Required, validation.Length(8, 128)),
		validation.Field(&p.NewPasswordConfirm, validation.Required, validation.In(p.NewPassword).Error("must match new password")),
	)
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var payload changePasswordPayload
	if !decodePayload(w, r, &payload) {
		return
	}

	if err := h.authSvc.ChangePassword(r.Context(), user.ID, payload.CurrentPassword, payload.NewPassword); err != nil {
		writeServiceError(w, "", err)
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventPasswordChange, UserID: user.ID})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type linkedAccountsPayload struct {
	LinkedAccounts model.SocialAccounts `json:"linkedAccounts"`
}

func (h *AuthHandler) ReplaceLinkedAccounts(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var payload linkedAccountsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	updated, err := h.authSvc.ReplaceLinkedAccounts(r.Context(), user.ID, payload.LinkedAccounts)
	if err != nil {
		writeServiceError(w, "", err)
		return
	}

	writeJSON(w, http.StatusOK, formatUser(updated))
}

func (h *AuthHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	platform := chi.URLParam(r, "platform")

	if !model.IsValidPlatform(platform) {
		httputil.WriteError(w, apperrors.InvalidInput("platform", "unknown platform"))
		return
	}

	updated, err := h.linkSvc.Unlink(r.Context(), user.ID, platform)
	if err != nil {
		writeServiceError(w, platform, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventAccountUnlink, UserID: user.ID, Platform: platform})
	writeJSON(w, http.StatusOK, formatUser(updated))
}

func (h *AuthHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	if err := h.authSvc.DeleteUser(r.Context(), user.ID); err != nil {
		writeServiceError(w, "", err)
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventUserDelete, UserID: user.ID})
	middleware.ClearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AuthHandler) setSession(w http.ResponseWriter, token string) {
	middleware.SetSessionCookie(w, token, h.sessionTTL, h.isProduction)
}
