package reconcile

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/prokit/handler"
	"github.com/dmitrymomot/prokit/pkg/billing"
	"github.com/dmitrymomot/prokit/pkg/logger"
)

// MaxWebhookBodyBytes caps the webhook payload read before verification.
const MaxWebhookBodyBytes = 1 << 20

type webhookAck struct {
	Received bool   `json:"received"`
	Status   string `json:"status"`
}

type webhookError struct {
	Error string `json:"error"`
}

// WebhookHandler verifies a provider delivery and hands it to rec.
func WebhookHandler(provider billing.Provider, rec *Reconciler, log *slog.Logger) http.HandlerFunc {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	log = log.With(logger.Component("webhook"), logger.Provider(provider.Name()))

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		respond := func(status int, body any) {
			if err := handler.JSONWithStatus(status, body).Render(w, r); err != nil {
				log.ErrorContext(ctx, "failed to write webhook response", logger.Error(err))
			}
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				log.WarnContext(ctx, "webhook payload too large")
				respond(http.StatusRequestEntityTooLarge, webhookError{Error: "payload too large"})
				return
			}
			respond(http.StatusBadRequest, webhookError{Error: "unreadable body"})
			return
		}

		evt, err := provider.ParseWebhook(ctx, payload, r.Header.Get(provider.SignatureHeader()))
		if err != nil {
			// Verified but undecodable: acknowledge so the provider stops redelivering.
			var perr *billing.PayloadError
			if errors.As(err, &perr) {
				log.WarnContext(ctx, "webhook payload could not be decoded",
					logger.EventID(perr.EventID), logger.EventType(perr.EventType), logger.Error(err))
				respond(http.StatusOK, webhookAck{Received: true, Status: StatusIgnored})
				return
			}
			log.WarnContext(ctx, "webhook signature verification failed", logger.Error(err))
			respond(http.StatusBadRequest, webhookError{Error: "invalid signature"})
			return
		}

		res, err := rec.Handle(ctx, evt)
		switch {
		case errors.Is(err, ErrInFlight):
			respond(http.StatusConflict, webhookError{Error: "event is being processed"})
		case err != nil:
			respond(http.StatusInternalServerError, webhookError{Error: "processing failed"})
		default:
			respond(http.StatusOK, webhookAck{Received: true, Status: res.Status})
		}
	}
}
