// internal/handler/webhook_handler.go
package handler

import (
	"crypto/ecdsa"
	"encoding/json"
	"io"
	"net/http"

	"github.com/sendgrid/sendgrid-go/helpers/eventwebhook"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/metrics"
	"github.com/unclebandit/mailleopard-backend/internal/service"
)

const (
	maxWebhookBytes  = 1 << 20
	providerSendGrid = "sendgrid"
)

// WebhookHandler receives provider callbacks. None of these routes are authenticated.
// Stripe and LiqPay payloads are always signature-checked; SendGrid events are checked
// only when SendGridKey is set and are accepted unsigned otherwise.
type WebhookHandler struct {
	Billing     *service.BillingService
	Tracker     *service.EventTracker
	SendGridKey *ecdsa.PublicKey
	Log         *zap.Logger
}

func (h *WebhookHandler) respond(w http.ResponseWriter, v any, err error) {
	if err != nil {
		detail := err.Error()
		if !appErrors.Public(err) {
			detail = "Error processing webhook"
		}
		writeJSON(w, appErrors.StatusCode(err), map[string]string{"detail": detail})
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		h.respond(w, nil, appErrors.NewBadRequest("unreadable body"))
		return
	}

	res, err := h.Billing.HandleStripeWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	h.respond(w, map[string]any{"status": "success", "event": res}, err)
}

// LiqPay posts a form with base64 "data" and its "signature".
func (h *WebhookHandler) LiqPay(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBytes)
	if err := r.ParseForm(); err != nil {
		h.respond(w, nil, appErrors.NewBadRequest("invalid form"))
		return
	}

	res, err := h.Billing.HandleLiqPayCallback(r.Context(), r.PostFormValue("data"), r.PostFormValue("signature"))
	h.respond(w, map[string]any{"status": "ok", "event": res}, err)
}

// Email takes the SendGrid event webhook batch.
func (h *WebhookHandler) Email(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		h.respond(w, nil, appErrors.NewBadRequest("unreadable body"))
		return
	}
	if h.SendGridKey != nil && !h.validSendGridSignature(r, body) {
		metrics.IncrementWebhooks(providerSendGrid, "invalid_signature")
		h.respond(w, nil, appErrors.NewBadRequest("invalid signature"))
		return
	}

	sum, err := h.Tracker.HandleSendGridEvents(r.Context(), body)
	if err != nil {
		h.Log.Error("error processing email webhook", zap.Error(err))
		metrics.IncrementWebhooks(providerSendGrid, "error")
	} else {
		metrics.IncrementWebhooks(providerSendGrid, "applied")
	}
	h.respond(w, sum, err)
}

func (h *WebhookHandler) validSendGridSignature(r *http.Request, body []byte) bool {
	signature := r.Header.Get(eventwebhook.VerificationHTTPHeader)
	timestamp := r.Header.Get(eventwebhook.TimestampHTTPHeader)
	if signature == "" || timestamp == "" {
		return false
	}
	ok, err := eventwebhook.VerifySignature(h.SendGridKey, body, signature, timestamp)
	if err != nil {
		h.Log.Warn("malformed sendgrid webhook signature", zap.Error(err))
		return false
	}
	return ok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
