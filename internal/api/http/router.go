package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/approval-service/internal/api/http/handlers"
	"github.com/spec-kit/approval-service/internal/auth"
	"github.com/spec-kit/approval-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	Approvals      *handlers.ApprovalsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireAuth())
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/submit", cfg.Tickets.SubmitTicket)

	approvals := app.Group("/approvals", cfg.AuthMiddleware.Handle, auth.RequireAuth())
	approvals.Post("/workflows", cfg.Approvals.CreateWorkflow)
	approvals.Get("/workflows/:id", cfg.Approvals.GetWorkflow)
	approvals.Delete("/workflows/:id", cfg.Approvals.CancelWorkflow)
	approvals.Post("/steps/:id/process", cfg.Approvals.ProcessStep)
	approvals.Post("/steps/:id/delegate", cfg.Approvals.DelegateStep)
	approvals.Post("/steps/:id/request-info", cfg.Approvals.RequestInfo)
	approvals.Get("/pending", cfg.Approvals.ListPending)
	approvals.Get("/statistics", auth.RequireRole(domain.RoleManager, domain.RoleDepartmentHead, domain.RoleAdmin), cfg.Approvals.Statistics)
}
