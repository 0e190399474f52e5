package domain

import (
	"sort"
	"time"
)

// WorkflowType enumerates the supported approval topologies.
type WorkflowType string

const (
	WorkflowTypeSequential  WorkflowType = "SEQUENTIAL"
	WorkflowTypeParallel    WorkflowType = "PARALLEL"
	WorkflowTypeConditional WorkflowType = "CONDITIONAL"
	WorkflowTypeAutoApprove WorkflowType = "AUTO_APPROVE"
)

// ValidWorkflowType reports whether t is one of the four supported topologies.
func ValidWorkflowType(t WorkflowType) bool {
	switch t {
	case WorkflowTypeSequential, WorkflowTypeParallel, WorkflowTypeConditional, WorkflowTypeAutoApprove:
		return true
	}
	return false
}

// WorkflowStatus enumerates workflow lifecycle states.
type WorkflowStatus string

const (
	WorkflowStatusActive    WorkflowStatus = "ACTIVE"
	WorkflowStatusCompleted WorkflowStatus = "COMPLETED"
	WorkflowStatusCancelled WorkflowStatus = "CANCELLED"
	WorkflowStatusEscalated WorkflowStatus = "ESCALATED"
)

// StepStatus enumerates approval step states. PENDING is the only status
// from which a step accepts input; every other status is terminal for
// that step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "PENDING"
	StepStatusApproved  StepStatus = "APPROVED"
	StepStatusRejected  StepStatus = "REJECTED"
	StepStatusDelegated StepStatus = "DELEGATED"
	StepStatusEscalated StepStatus = "ESCALATED"
	StepStatusSkipped   StepStatus = "SKIPPED"
)

// ApprovalAction enumerates actions an approver can take on a step.
type ApprovalAction string

const (
	ActionApprove     ApprovalAction = "APPROVE"
	ActionReject      ApprovalAction = "REJECT"
	ActionRequestInfo ApprovalAction = "REQUEST_INFO"
	ActionDelegate    ApprovalAction = "DELEGATE"
	ActionEscalate    ApprovalAction = "ESCALATE"
)

// WorkflowOutcome is the terminal decision derived from step statuses.
type WorkflowOutcome string

const (
	OutcomeNone     WorkflowOutcome = "NONE"
	OutcomeApproved WorkflowOutcome = "APPROVED"
	OutcomeRejected WorkflowOutcome = "REJECTED"
)

// ApprovalWorkflow is one approval process instance attached to exactly
// one ticket. At most one open workflow may exist per ticket.
type ApprovalWorkflow struct {
	ID                   string
	TicketID             string
	Name                 string
	WorkflowType         WorkflowType
	Status               WorkflowStatus
	Config               map[string]any
	AutoApproveThreshold *float64
	EscalationTimeoutHrs int
	InitiatedByID        string
	CompletedAt          *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
	Steps                []ApprovalStep
}

// IsOpen reports whether the workflow still accepts step actions.
// ESCALATED is an open state: escalated steps have pending siblings.
func (w *ApprovalWorkflow) IsOpen() bool {
	return w.Status == WorkflowStatusActive || w.Status == WorkflowStatusEscalated
}

// ApprovalStep is one approver's decision within a workflow. Steps are
// append-only: delegation and escalation never rewrite the original row,
// they mark it terminal and add a sibling with the same step order.
type ApprovalStep struct {
	ID            string
	WorkflowID    string
	ApproverID    string
	StepOrder     int
	Action        *ApprovalAction
	Status        StepStatus
	Comment       string
	DelegatedToID *string
	EscalatedToID *string
	DueDate       *time.Time
	CompletedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Terminal reports whether the step can no longer be acted on.
func (s *ApprovalStep) Terminal() bool {
	return s.Status != StepStatusPending
}

// Overdue reports whether a pending step is past its due date.
func (s *ApprovalStep) Overdue(now time.Time) bool {
	return s.Status == StepStatusPending && s.DueDate != nil && s.DueDate.Before(now)
}

// EvaluateCompletion derives the workflow outcome from its step statuses.
// A single rejected step decides the workflow regardless of topology.
// The rule per topology is a closed switch: adding a workflow type means
// adding a case here.
func EvaluateCompletion(workflowType WorkflowType, steps []ApprovalStep) WorkflowOutcome {
	if len(steps) == 0 {
		return OutcomeNone
	}
	for i := range steps {
		if steps[i].Status == StepStatusRejected {
			return OutcomeRejected
		}
	}
	switch workflowType {
	case WorkflowTypeSequential, WorkflowTypeConditional, WorkflowTypeAutoApprove:
		return completeWhenNonePending(steps)
	case WorkflowTypeParallel:
		return completeWhenAllApproved(steps)
	}
	return OutcomeNone
}

// completeWhenNonePending approves once no step remains pending. Delegated
// and escalated originals count as resolved because their obligation moved
// to a sibling step, which must itself leave PENDING first.
func completeWhenNonePending(steps []ApprovalStep) WorkflowOutcome {
	for i := range steps {
		if steps[i].Status == StepStatusPending {
			return OutcomeNone
		}
	}
	return OutcomeApproved
}

// completeWhenAllApproved approves only when every step that still carries
// an approval obligation is APPROVED. Superseded originals (delegated or
// escalated) do not block completion; their siblings do until approved.
func completeWhenAllApproved(steps []ApprovalStep) WorkflowOutcome {
	approved := 0
	for i := range steps {
		switch steps[i].Status {
		case StepStatusPending:
			return OutcomeNone
		case StepStatusApproved:
			approved++
		case StepStatusDelegated, StepStatusEscalated:
			// superseded by a sibling
		default:
			return OutcomeNone
		}
	}
	if approved == 0 {
		return OutcomeNone
	}
	return OutcomeApproved
}

// CurrentSteps returns the steps awaiting action right now. For parallel
// workflows every pending step is current; for sequential and auto-approve
// workflows only the lowest-order pending step is. Conditional workflows
// route by ticket attributes: urgent or expensive tickets go to the
// highest-order (most senior) pending approver first.
func CurrentSteps(workflowType WorkflowType, steps []ApprovalStep, ticket *Ticket) []ApprovalStep {
	pending := make([]ApprovalStep, 0, len(steps))
	for i := range steps {
		if steps[i].Status == StepStatusPending {
			pending = append(pending, steps[i])
		}
	}
	if len(pending) == 0 {
		return nil
	}

	switch workflowType {
	case WorkflowTypeParallel:
		return pending
	case WorkflowTypeConditional:
		if fastTrack(ticket) {
			sort.SliceStable(pending, func(i, j int) bool {
				return pending[i].StepOrder > pending[j].StepOrder
			})
			return pending[:1]
		}
	}

	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].StepOrder < pending[j].StepOrder
	})
	return pending[:1]
}

func fastTrack(ticket *Ticket) bool {
	if ticket == nil {
		return false
	}
	if ticket.Priority == TicketPriorityCritical || ticket.Priority == TicketPriorityHigh {
		return true
	}
	return false
}

// CompletionPercentage reports how much of the workflow has been decided.
func CompletionPercentage(steps []ApprovalStep) float64 {
	if len(steps) == 0 {
		return 0
	}
	done := 0
	for i := range steps {
		if steps[i].Status == StepStatusApproved || steps[i].Status == StepStatusRejected {
			done++
		}
	}
	return float64(done) / float64(len(steps)) * 100
}
