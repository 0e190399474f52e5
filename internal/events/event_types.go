package events

import (
	"time"

	"github.com/spec-kit/approval-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventWorkflowCreated     EventType = "workflow_created"
	EventWorkflowCompleted   EventType = "workflow_completed"
	EventWorkflowCancelled   EventType = "workflow_cancelled"
	EventStepProcessed       EventType = "step_processed"
	EventStepEscalated       EventType = "step_escalated"
	EventTicketStatusChanged EventType = "ticket_status_changed"
)

// Actor encapsulates actor metadata for an event. A nil UserID means the
// system acted (auto-approval, escalation sweep).
type Actor struct {
	UserID *string `json:"user_id,omitempty"`
	System bool    `json:"system,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// WorkflowCreatedPayload payload.
type WorkflowCreatedPayload struct {
	WorkflowID   string              `json:"workflow_id"`
	Name         string              `json:"name"`
	WorkflowType domain.WorkflowType `json:"workflow_type"`
	ApproverIDs  []string            `json:"approver_ids"`
	AutoApproved bool                `json:"auto_approved"`
}

// WorkflowCompletedPayload payload.
type WorkflowCompletedPayload struct {
	WorkflowID string                 `json:"workflow_id"`
	Outcome    domain.WorkflowOutcome `json:"outcome"`
}

// WorkflowCancelledPayload payload.
type WorkflowCancelledPayload struct {
	WorkflowID   string `json:"workflow_id"`
	Reason       string `json:"reason,omitempty"`
	SkippedSteps int64  `json:"skipped_steps"`
}

// StepProcessedPayload payload.
type StepProcessedPayload struct {
	WorkflowID string                `json:"workflow_id"`
	StepID     string                `json:"step_id"`
	Action     domain.ApprovalAction `json:"action"`
	Status     domain.StepStatus     `json:"status"`
	NewStepID  *string               `json:"new_step_id,omitempty"`
}

// StepEscalatedPayload payload.
type StepEscalatedPayload struct {
	WorkflowID     string `json:"workflow_id"`
	StepID         string `json:"step_id"`
	OriginalUserID string `json:"original_user_id"`
	EscalatedToID  string `json:"escalated_to_id"`
	NewStepID      string `json:"new_step_id"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Comment   string              `json:"comment,omitempty"`
}
