package dto

import (
	"time"

	"github.com/spec-kit/approval-service/internal/domain"
)

// CreateWorkflowRequest payload.
type CreateWorkflowRequest struct {
	TicketID               string              `json:"ticket_id" validate:"required"`
	Name                   string              `json:"name" validate:"required,max=200"`
	WorkflowType           domain.WorkflowType `json:"workflow_type" validate:"required"`
	ApproverIDs            []string            `json:"approver_ids"`
	Config                 map[string]any      `json:"config"`
	AutoApproveThreshold   *float64            `json:"auto_approve_threshold" validate:"omitempty,gte=0"`
	EscalationTimeoutHours int                 `json:"escalation_timeout_hours" validate:"omitempty,gte=1,lte=720"`
}

// ProcessStepRequest payload for approve/reject/delegate/escalate.
type ProcessStepRequest struct {
	Action       domain.ApprovalAction `json:"action" validate:"required"`
	Comment      string                `json:"comment" validate:"max=2000"`
	DelegateToID *string               `json:"delegate_to_id"`
	EscalateToID *string               `json:"escalate_to_id"`
}

// DelegateStepRequest payload for the dedicated delegation endpoint.
type DelegateStepRequest struct {
	DelegateToID string `json:"delegate_to_id" validate:"required"`
	Comment      string `json:"comment" validate:"max=2000"`
}

// RequestInfoRequest payload.
type RequestInfoRequest struct {
	Comment string `json:"comment" validate:"required,max=2000"`
}

// CancelWorkflowRequest payload.
type CancelWorkflowRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

// WorkflowResponse represents a workflow with its step chain.
type WorkflowResponse struct {
	ID                   string                 `json:"id"`
	TicketID             string                 `json:"ticket_id"`
	Name                 string                 `json:"name"`
	WorkflowType         domain.WorkflowType    `json:"workflow_type"`
	Status               domain.WorkflowStatus  `json:"status"`
	Config               map[string]any         `json:"config,omitempty"`
	AutoApproveThreshold *float64               `json:"auto_approve_threshold,omitempty"`
	InitiatedByID        string                 `json:"initiated_by_id"`
	CompletionPercentage float64                `json:"completion_percentage"`
	CompletedAt          *time.Time             `json:"completed_at"`
	CreatedAt            time.Time              `json:"created_at"`
	Steps                []ApprovalStepResponse `json:"steps"`
}

// ApprovalStepResponse represents one step.
type ApprovalStepResponse struct {
	ID            string                 `json:"id"`
	WorkflowID    string                 `json:"workflow_id"`
	ApproverID    string                 `json:"approver_id"`
	StepOrder     int                    `json:"step_order"`
	Action        *domain.ApprovalAction `json:"action"`
	Status        domain.StepStatus      `json:"status"`
	Comment       string                 `json:"comment,omitempty"`
	DelegatedToID *string                `json:"delegated_to_id,omitempty"`
	EscalatedToID *string                `json:"escalated_to_id,omitempty"`
	DueDate       *time.Time             `json:"due_date"`
	CompletedAt   *time.Time             `json:"completed_at"`
	CreatedAt     time.Time              `json:"created_at"`
}

// PendingApprovalResponse is a pending step enriched with ticket context.
type PendingApprovalResponse struct {
	Step        ApprovalStepResponse  `json:"step"`
	TicketID    string                `json:"ticket_id"`
	TicketTitle string                `json:"ticket_title"`
	Priority    domain.TicketPriority `json:"priority"`
	IsUrgent    bool                  `json:"is_urgent"`
	DaysPending int                   `json:"days_pending"`
}
