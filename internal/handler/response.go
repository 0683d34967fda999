package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/reachlab/campaign-server-go/internal/errors"
	"github.com/reachlab/campaign-server-go/internal/httputil"
	"github.com/reachlab/campaign-server-go/internal/model"
	"github.com/reachlab/campaign-server-go/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

// writeServiceError maps service sentinel errors onto the error code
// taxonomy before writing.
func writeServiceError(w http.ResponseWriter, platform string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidState):
		httputil.WriteError(w, apperrors.InvalidState())
	case errors.Is(err, service.ErrProviderNotConfigured):
		httputil.WriteError(w, apperrors.ProviderNotConfigured(platform))
	case errors.Is(err, service.ErrProviderError):
		httputil.WriteError(w, apperrors.ProviderError(platform, err))
	case errors.Is(err, service.ErrNotLinked):
		httputil.WriteError(w, apperrors.NotLinked(platform))
	case errors.Is(err, service.ErrEmailTaken):
		httputil.WriteError(w, apperrors.AlreadyExists("Account"))
	case errors.Is(err, service.ErrInvalidCredentials):
		httputil.WriteError(w, apperrors.Unauthorized("Invalid email or password"))
	case errors.Is(err, service.ErrInvalidSession):
		httputil.WriteError(w, apperrors.Unauthorized("Invalid session"))
	case errors.Is(err, service.ErrDuplicatePlatform):
		httputil.WriteError(w, apperrors.ValidationError("Linked accounts may hold one entry per platform"))
	default:
		httputil.WriteError(w, err)
	}
}

// decodePayload parses the JSON body and runs the payload's validation
// rules. Writes the error response itself and reports whether to continue.
func decodePayload(w http.ResponseWriter, r *http.Request, payload interface{ Validate() error }) bool {
	if err := json.NewDecoder(r.Body).Decode(payload); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return false
	}
	if err := payload.Validate(); err != nil {
		httputil.WriteError(w, apperrors.ValidationError("Validation failed").WithDetails(err))
		return false
	}
	return true
}

// formatUser shapes the user payload. The password hash never leaves the
// model thanks to its json tag; this keeps the envelope consistent instead.
func formatUser(user *model.User) map[string]any {
	return map[string]any{"user": user}
}
