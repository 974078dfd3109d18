package reports

import (
	apphttp "sales_enforcer_backend/internal/http"
)

// Module is the reports bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	svc     *Service
}

func NewModule(svc *Service) *Module {
	return &Module{
		handler: NewHandler(svc),
		svc:     svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "reports"
}

// Service exposes the underlying service for worker-side wiring (the
// weekly digest runs without HTTP handlers).
func (m *Module) Service() *Service {
	return m.svc
}

// RegisterRoutes mounts the dashboard routes behind JWT auth.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/reports")
	group.GET("/scoreboard", m.handler.HandleScoreboard)
	group.GET("/weekly-report", m.handler.HandleWeeklyReport)
	group.GET("/due-activities", m.handler.HandleDueActivities)
	group.GET("/users/:userId/history", m.handler.HandleUserHistory)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
