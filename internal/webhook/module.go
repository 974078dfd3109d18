// Package webhook provides the inbound CRM webhook bounded context: the
// authenticated endpoint that accepts deal-change deliveries and hands
// them to the task queue.
package webhook

import (
	apphttp "sales_enforcer_backend/internal/http"
	"sales_enforcer_backend/internal/scheduler"
	"sales_enforcer_backend/platform/config"
	"sales_enforcer_backend/platform/logger"
	"sales_enforcer_backend/platform/validator"
)

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	cfg     config.WebhookConfig
}

// NewModule creates and initializes the webhook module.
func NewModule(enqueuer scheduler.EventEnqueuer, cfg config.WebhookConfig, val *validator.Validator, log *logger.Logger) *Module {
	return &Module{
		handler: NewHandler(enqueuer, val, log),
		cfg:     cfg,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts the webhook endpoint (shared-secret auth, no JWT).
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/webhook")
	group.Use(SharedSecretMiddleware(m.cfg))
	group.POST("/crm", m.handler.HandleDealEvent)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
