package httpserver

import (
	"errors"
	"io"
	"net/http"

	"github.com/aaronBIOO/QuickChat/internal/identity"
	"github.com/aaronBIOO/QuickChat/internal/logging"
	"github.com/aaronBIOO/QuickChat/internal/service"
)

// @Summary      Identity webhook
// @Description  Signed user.created, user.updated and user.deleted events from the identity provider
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        svix-id         header string true "Message id"
// @Param        svix-timestamp  header string true "Unix seconds"
// @Param        svix-signature  header string true "v1,<base64 signature>"
// @Success      200  {object}  map[string]any
// @Failure      400  {object}  errorResponse
// @Router       /webhooks/identity [post]
func handleIdentityWebhook(wv *identity.WebhookVerifier, userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeFail(w, http.StatusBadRequest, "could not read body")
			return
		}

		ev, err := wv.Verify(r.Header, body)
		if err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Msg("webhook rejected")
			msg := "invalid webhook"
			if errors.Is(err, identity.ErrMissingWebhookHeaders) {
				msg = "missing webhook headers"
			}
			writeFail(w, http.StatusBadRequest, msg)
			return
		}

		if err := userSvc.SyncFromProvider(r.Context(), ev); err != nil {
			writeError(w, r, err)
			return
		}
		logging.Ctx(r.Context()).Info().Str("type", ev.Type).Str("user_id", ev.Data.ID).Msg("webhook processed")
		writeOK(w, http.StatusOK, envelope{"message": "Webhook processed"})
	}
}
