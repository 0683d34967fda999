package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/reachlab/campaign-server-go/internal/audit"
	"github.com/reachlab/campaign-server-go/internal/util"
)

const MetaBodyContextKey contextKey = "metaBody"

// GetMetaBody returns the verified raw webhook body.
func GetMetaBody(ctx context.Context) []byte {
	if body, ok := ctx.Value(MetaBodyContextKey).([]byte); ok {
		return body
	}
	return nil
}

// MetaSignatureMiddleware verifies the X-Hub-Signature-256 header Meta sends
// with deauthorize callbacks: "sha256=" followed by an HMAC of the raw body
// keyed with the app secret.
type MetaSignatureMiddleware struct {
	appSecret string
}

func NewMetaSignatureMiddleware(appSecret string) *MetaSignatureMiddleware {
	return &MetaSignatureMiddleware{appSecret: appSecret}
}

func (m *MetaSignatureMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Without the app secret there is no way to authenticate the caller,
		// and the webhook deletes credentials. Refuse rather than trust.
		if m.appSecret == "" {
			log.Warn().Msg("meta webhook refused: META_APP_SECRET is not configured")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "Webhook verification is not configured",
			})
			return
		}

		signature := r.Header.Get("X-Hub-Signature-256")
		if !strings.HasPrefix(signature, "sha256=") {
			audit.LogFromRequest(r, audit.Event{Type: audit.EventWebhookRejected})
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Missing signature",
			})
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			log.Error().Err(err).Msg("meta signature middleware: failed to read body")
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "Failed to read request body",
			})
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		computed := util.HmacSHA256(m.appSecret, string(body))
		if !util.ConstantTimeEqual(computed, strings.TrimPrefix(signature, "sha256=")) {
			audit.LogFromRequest(r, audit.Event{Type: audit.EventWebhookRejected})
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Invalid signature",
			})
			return
		}

		ctx := context.WithValue(r.Context(), MetaBodyContextKey, body)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
