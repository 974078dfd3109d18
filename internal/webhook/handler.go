package webhook

import (
	"net/http"

	"sales_enforcer_backend/internal/crm"
	"sales_enforcer_backend/internal/scheduler"
	"sales_enforcer_backend/platform/httpkit"
	"sales_enforcer_backend/platform/logger"
	"sales_enforcer_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// DealEventRequest is the CRM webhook body. Previous may be absent on
// the first event for a deal; Current is absent on delete events, which
// we ignore.
type DealEventRequest struct {
	Event    string         `json:"event" validate:"required"`
	Current  map[string]any `json:"current"`
	Previous map[string]any `json:"previous"`
}

type Handler struct {
	enqueuer scheduler.EventEnqueuer
	val      *validator.Validator
	log      *logger.Logger
}

func NewHandler(enqueuer scheduler.EventEnqueuer, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{enqueuer: enqueuer, val: val, log: log}
}

// HandleDealEvent accepts one webhook delivery, queues it, and returns
// immediately. The CRM treats non-2xx responses as delivery failures and
// disables the hook after too many, so everything that can go wrong in
// processing is deferred to the worker; only an unreachable queue
// surfaces as an error here.
func (h *Handler) HandleDealEvent(c *gin.Context) {
	var req DealEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid payload", err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid payload", err.Error())
		return
	}

	if req.Event != "updated.deal" || len(req.Current) == 0 {
		httpkit.OK(c, gin.H{"status": "ignored"})
		return
	}

	deliveryID, err := h.enqueuer.EnqueueDealEvent(c.Request.Context(), scheduler.DealEventPayload{
		Event:    req.Event,
		Previous: crm.Snapshot(req.Previous),
		Current:  crm.Snapshot(req.Current),
	})
	if err != nil {
		h.log.Error("failed to enqueue deal event", "error", err)
		httpkit.Error(c, http.StatusInternalServerError, "failed to queue event", nil)
		return
	}

	httpkit.OK(c, gin.H{"status": "queued", "deliveryId": deliveryID})
}
