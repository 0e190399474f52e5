package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/approval-service/internal/api/dto"
	"github.com/spec-kit/approval-service/internal/auth"
	"github.com/spec-kit/approval-service/internal/domain"
	"github.com/spec-kit/approval-service/internal/service"
	apperrors "github.com/spec-kit/approval-service/pkg/errorutil"
)

// ApprovalsHandler manages approval workflow endpoints.
type ApprovalsHandler struct {
	service *service.ApprovalService
}

// NewApprovalsHandler constructs handler.
func NewApprovalsHandler(approvalService *service.ApprovalService) *ApprovalsHandler {
	return &ApprovalsHandler{service: approvalService}
}

// CreateWorkflow POST /approvals/workflows.
func (h *ApprovalsHandler) CreateWorkflow(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CreateWorkflowRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(req); err != nil {
		return err
	}

	workflow, err := h.service.CreateWorkflow(c.Context(), principal.User.ID, service.WorkflowCreateInput{
		TicketID:               req.TicketID,
		Name:                   req.Name,
		WorkflowType:           req.WorkflowType,
		ApproverIDs:            req.ApproverIDs,
		Config:                 req.Config,
		AutoApproveThreshold:   req.AutoApproveThreshold,
		EscalationTimeoutHours: req.EscalationTimeoutHours,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": workflowResponse(workflow)})
}

// GetWorkflow GET /approvals/workflows/:id.
func (h *ApprovalsHandler) GetWorkflow(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	workflow, err := h.service.GetWorkflow(c.Context(), c.Params("id"), principal.User.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": workflowResponse(workflow)})
}

// ProcessStep POST /approvals/steps/:id/process.
func (h *ApprovalsHandler) ProcessStep(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.ProcessStepRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(req); err != nil {
		return err
	}

	step, err := h.service.ProcessStep(c.Context(), service.StepActionInput{
		StepID:       c.Params("id"),
		Action:       req.Action,
		ActorID:      principal.User.ID,
		Comment:      req.Comment,
		DelegateToID: req.DelegateToID,
		EscalateToID: req.EscalateToID,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stepResponse(step)})
}

// DelegateStep POST /approvals/steps/:id/delegate.
func (h *ApprovalsHandler) DelegateStep(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.DelegateStepRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(req); err != nil {
		return err
	}

	step, err := h.service.ProcessStep(c.Context(), service.StepActionInput{
		StepID:       c.Params("id"),
		Action:       domain.ActionDelegate,
		ActorID:      principal.User.ID,
		Comment:      req.Comment,
		DelegateToID: &req.DelegateToID,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stepResponse(step)})
}

// RequestInfo POST /approvals/steps/:id/request-info.
func (h *ApprovalsHandler) RequestInfo(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.RequestInfoRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(req); err != nil {
		return err
	}

	step, err := h.service.ProcessStep(c.Context(), service.StepActionInput{
		StepID:  c.Params("id"),
		Action:  domain.ActionRequestInfo,
		ActorID: principal.User.ID,
		Comment: req.Comment,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stepResponse(step)})
}

// ListPending GET /approvals/pending.
func (h *ApprovalsHandler) ListPending(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	pending, err := h.service.PendingForUser(c.Context(), principal.User.ID)
	if err != nil {
		return err
	}
	items := make([]dto.PendingApprovalResponse, 0, len(pending))
	for i := range pending {
		items = append(items, dto.PendingApprovalResponse{
			Step:        stepResponse(&pending[i].Step),
			TicketID:    pending[i].TicketID,
			TicketTitle: pending[i].TicketTitle,
			Priority:    pending[i].Priority,
			IsUrgent:    pending[i].IsUrgent,
			DaysPending: pending[i].DaysPending,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// CancelWorkflow DELETE /approvals/workflows/:id.
func (h *ApprovalsHandler) CancelWorkflow(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CancelWorkflowRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}

	cancelled, err := h.service.CancelWorkflow(c.Context(), c.Params("id"), principal.User.ID, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"cancelled": cancelled}})
}

// Statistics GET /approvals/statistics.
func (h *ApprovalsHandler) Statistics(c *fiber.Ctx) error {
	stats, err := h.service.Statistics(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}

func workflowResponse(workflow *domain.ApprovalWorkflow) dto.WorkflowResponse {
	steps := make([]dto.ApprovalStepResponse, 0, len(workflow.Steps))
	for i := range workflow.Steps {
		steps = append(steps, stepResponse(&workflow.Steps[i]))
	}
	return dto.WorkflowResponse{
		ID:                   workflow.ID,
		TicketID:             workflow.TicketID,
		Name:                 workflow.Name,
		WorkflowType:         workflow.WorkflowType,
		Status:               workflow.Status,
		Config:               workflow.Config,
		AutoApproveThreshold: workflow.AutoApproveThreshold,
		InitiatedByID:        workflow.InitiatedByID,
		CompletionPercentage: domain.CompletionPercentage(workflow.Steps),
		CompletedAt:          workflow.CompletedAt,
		CreatedAt:            workflow.CreatedAt,
		Steps:                steps,
	}
}

func stepResponse(step *domain.ApprovalStep) dto.ApprovalStepResponse {
	return dto.ApprovalStepResponse{
		ID:            step.ID,
		WorkflowID:    step.WorkflowID,
		ApproverID:    step.ApproverID,
		StepOrder:     step.StepOrder,
		Action:        step.Action,
		Status:        step.Status,
		Comment:       step.Comment,
		DelegatedToID: step.DelegatedToID,
		EscalatedToID: step.EscalatedToID,
		DueDate:       step.DueDate,
		CompletedAt:   step.CompletedAt,
		CreatedAt:     step.CreatedAt,
	}
}
