package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hugh/funnel-builder/internal/api/dto"
	"github.com/hugh/funnel-builder/internal/billing"
)

// WebhookSecretHeader carries the shared secret the payment provider signs
// its deliveries with.
const WebhookSecretHeader = "X-Webhook-Secret"

type BillingHandler struct {
	responder
	billing *billing.Service
	secret  string
}

func NewBillingHandler(svc *billing.Service, webhookSecret string, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{responder: responder{logger: logger}, billing: svc, secret: webhookSecret}
}

func (h *BillingHandler) ListAddOns(w http.ResponseWriter, r *http.Request) {
	wsID, ok := workspaceID(w, r)
	if !ok {
		return
	}

	list, err := h.billing.ListAddOns(r.Context(), currentUser(r), wsID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ListResponse{Data: list, Total: len(list)})
}

type webhookResponse struct {
	Status string `json:"status"`
}

// Webhook applies a payment event. Event types this service does not handle
// are acknowledged with 202 so the provider stops redelivering them.
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if !billing.VerifySecret(h.secret, r.Header.Get(WebhookSecretHeader)) {
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Unauthorized"})
		return
	}

	var ev billing.Event
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	err := h.billing.HandleEvent(r.Context(), ev)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, webhookResponse{Status: "processed"})
	case errors.Is(err, billing.ErrUnknownEvent):
		h.logger.Info("ignored webhook event", "event_id", ev.ID, "type", ev.Type)
		writeJSON(w, http.StatusAccepted, webhookResponse{Status: "ignored"})
	default:
		h.fail(w, r, err)
	}
}
