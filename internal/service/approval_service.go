package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/approval-service/internal/config"
	"github.com/spec-kit/approval-service/internal/domain"
	"github.com/spec-kit/approval-service/internal/events"
	"github.com/spec-kit/approval-service/internal/observability"
	"github.com/spec-kit/approval-service/internal/policy"
	"github.com/spec-kit/approval-service/internal/repository"
	apperrors "github.com/spec-kit/approval-service/pkg/errorutil"
)

// ApprovalService drives tickets through their multi-step sign-off process.
// It owns all workflow and step state transitions; ticket status, comments
// and notifications are downstream effects applied after the transition
// commits.
type ApprovalService struct {
	approvals  repository.ApprovalRepository
	tickets    repository.TicketRepository
	users      repository.UserRepository
	comments   repository.CommentRepository
	history    repository.TicketHistoryRepository
	approvers  policy.ApproverPolicy
	escalation policy.EscalationPolicy
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	cfg        config.ApprovalConfig
	now        func() time.Time
}

// ApprovalDependencies bundles collaborators for the approval service.
type ApprovalDependencies struct {
	ApprovalRepo     repository.ApprovalRepository
	TicketRepo       repository.TicketRepository
	UserRepo         repository.UserRepository
	CommentRepo      repository.CommentRepository
	HistoryRepo      repository.TicketHistoryRepository
	ApproverPolicy   policy.ApproverPolicy
	EscalationPolicy policy.EscalationPolicy
	Dispatcher       events.Dispatcher
	Metrics          *observability.Metrics
	Logger           *zap.Logger
}

// NewApprovalService constructs the service.
func NewApprovalService(cfg config.ApprovalConfig, deps ApprovalDependencies) *ApprovalService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalService{
		approvals:  deps.ApprovalRepo,
		tickets:    deps.TicketRepo,
		users:      deps.UserRepo,
		comments:   deps.CommentRepo,
		history:    deps.HistoryRepo,
		approvers:  deps.ApproverPolicy,
		escalation: deps.EscalationPolicy,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// WorkflowCreateInput describes workflow creation payload.
type WorkflowCreateInput struct {
	TicketID               string
	Name                   string
	WorkflowType           domain.WorkflowType
	ApproverIDs            []string
	Config                 map[string]any
	AutoApproveThreshold   *float64
	EscalationTimeoutHours int
}

// StepActionInput describes one approver action against a step.
type StepActionInput struct {
	StepID       string
	Action       domain.ApprovalAction
	ActorID      string
	Comment      string
	DelegateToID *string
	EscalateToID *string
}

// PendingApproval pairs a pending step with the ticket context an approver
// needs to act on it.
type PendingApproval struct {
	Step        domain.ApprovalStep
	TicketID    string
	TicketTitle string
	Priority    domain.TicketPriority
	IsUrgent    bool
	DaysPending int
}

// CreateWorkflow materializes a workflow and its steps for a ticket and
// moves the ticket into review. Auto-approve workflows whose threshold test
// passes complete immediately through the same transition path as manual
// approvals, so the audit trail is uniform.
func (s *ApprovalService) CreateWorkflow(ctx context.Context, initiatorID string, input WorkflowCreateInput) (*domain.ApprovalWorkflow, error) {
	if !domain.ValidWorkflowType(input.WorkflowType) {
		return nil, apperrors.NewValidationError("invalid workflow type", map[string]any{"workflow_type": input.WorkflowType})
	}

	ticket, err := s.tickets.GetByID(ctx, input.TicketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": input.TicketID})
		}
		return nil, apperrors.MapError(err)
	}

	if existing, err := s.approvals.GetOpenWorkflowForTicket(ctx, ticket.ID); err == nil && existing != nil {
		return nil, apperrors.NewConflict("ticket already has an active approval workflow", map[string]any{
			"ticket_id":   ticket.ID,
			"workflow_id": existing.ID,
		})
	} else if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	approverIDs, err := s.resolveApprovers(ctx, ticket, input)
	if err != nil {
		return nil, err
	}

	timeoutHours := input.EscalationTimeoutHours
	if timeoutHours <= 0 {
		timeoutHours = s.cfg.DefaultEscalationTimeoutHours
	}
	now := s.now()
	dueDate := now.Add(time.Duration(timeoutHours) * time.Hour)

	workflow := &domain.ApprovalWorkflow{
		TicketID:             ticket.ID,
		Name:                 input.Name,
		WorkflowType:         input.WorkflowType,
		Status:               domain.WorkflowStatusActive,
		Config:               input.Config,
		AutoApproveThreshold: input.AutoApproveThreshold,
		EscalationTimeoutHrs: timeoutHours,
		InitiatedByID:        initiatorID,
	}
	for i, approverID := range approverIDs {
		due := dueDate
		workflow.Steps = append(workflow.Steps, domain.ApprovalStep{
			ApproverID: approverID,
			StepOrder:  i + 1,
			Status:     domain.StepStatusPending,
			DueDate:    &due,
		})
	}

	if err := s.approvals.CreateWorkflow(ctx, workflow); err != nil {
		return nil, apperrors.MapError(err)
	}

	autoApprove := s.autoApprovalApplies(workflow, ticket)
	if !autoApprove {
		// an auto-approved ticket goes straight to APPROVED, never IN_REVIEW
		s.bridgeTicketStatus(ctx, ticket, domain.TicketStatusInReview, nil, "workflow_initiated")
	}
	s.systemComment(ctx, ticket.ID, fmt.Sprintf("Approval workflow %q initiated with %d approvers", workflow.Name, len(approverIDs)))

	autoApproved := false
	if autoApprove {
		if err := s.autoApproveWorkflow(ctx, workflow, ticket); err != nil {
			return nil, err
		}
		autoApproved = true
		refreshed, err := s.approvals.GetWorkflow(ctx, workflow.ID)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		workflow = refreshed
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventWorkflowCreated,
		TicketID: ticket.ID,
		Actor:    userActor(initiatorID),
		Payload: events.WorkflowCreatedPayload{
			WorkflowID:   workflow.ID,
			Name:         workflow.Name,
			WorkflowType: workflow.WorkflowType,
			ApproverIDs:  approverIDs,
			AutoApproved: autoApproved,
		},
	})

	return workflow, nil
}

// ProcessStep applies one approver action to a pending step, recomputes
// workflow completion inside the same transaction, and propagates the
// outcome to the ticket. A step accepts input exactly once: the second
// caller in a race loses with a conflict.
func (s *ApprovalService) ProcessStep(ctx context.Context, input StepActionInput) (*domain.ApprovalStep, error) {
	step, err := s.approvals.GetStep(ctx, input.StepID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("approval step", map[string]any{"step_id": input.StepID})
		}
		return nil, apperrors.MapError(err)
	}

	workflow, err := s.approvals.GetWorkflow(ctx, step.WorkflowID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	if step.ApproverID != input.ActorID {
		return nil, apperrors.NewForbidden("actor is not the step approver")
	}
	if !workflow.IsOpen() {
		return nil, apperrors.NewConflict("workflow no longer accepts step actions", map[string]any{
			"workflow_id": workflow.ID,
			"status":      workflow.Status,
		})
	}
	if step.Terminal() {
		return nil, apperrors.NewConflict(fmt.Sprintf("step already %s", step.Status), map[string]any{"step_id": step.ID})
	}

	ticket, err := s.tickets.GetByID(ctx, workflow.TicketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	switch input.Action {
	case domain.ActionApprove, domain.ActionReject:
		return s.applyDecision(ctx, workflow, ticket, step, input)
	case domain.ActionRequestInfo:
		return s.applyInfoRequest(ctx, workflow, ticket, step, input)
	case domain.ActionDelegate:
		return s.applyReassignment(ctx, workflow, ticket, step, input)
	case domain.ActionEscalate:
		return s.applyReassignment(ctx, workflow, ticket, step, input)
	default:
		return nil, apperrors.NewValidationError("invalid approval action", map[string]any{"action": input.Action})
	}
}

// PendingForUser lists the caller's pending steps with ticket context,
// urgent items first.
func (s *ApprovalService) PendingForUser(ctx context.Context, userID string) ([]PendingApproval, error) {
	steps, err := s.approvals.ListPendingForUser(ctx, userID, 50)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	now := s.now()
	result := make([]PendingApproval, 0, len(steps))
	for i := range steps {
		workflow, err := s.approvals.GetWorkflow(ctx, steps[i].WorkflowID)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		ticket, err := s.tickets.GetByID(ctx, workflow.TicketID)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		result = append(result, PendingApproval{
			Step:        steps[i],
			TicketID:    ticket.ID,
			TicketTitle: ticket.Title,
			Priority:    ticket.Priority,
			IsUrgent:    stepUrgent(&steps[i], ticket, now),
			DaysPending: int(now.Sub(steps[i].CreatedAt).Hours() / 24),
		})
	}

	// urgent first, then earliest due date
	sortPending(result)
	return result, nil
}

// GetWorkflow returns a workflow with its full step chain. Access is
// limited to ticket participants, approvers, the initiator and admins.
func (s *ApprovalService) GetWorkflow(ctx context.Context, workflowID, actorID string) (*domain.ApprovalWorkflow, error) {
	workflow, err := s.approvals.GetWorkflow(ctx, workflowID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("workflow", map[string]any{"workflow_id": workflowID})
		}
		return nil, apperrors.MapError(err)
	}

	allowed, err := s.canAccessWorkflow(ctx, workflow, actorID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperrors.NewForbidden("not authorized to view this workflow")
	}
	return workflow, nil
}

// CancelWorkflow cancels an open workflow: pending steps become SKIPPED
// (never deleted) and the ticket reverts to its pre-review status.
func (s *ApprovalService) CancelWorkflow(ctx context.Context, workflowID, actorID, reason string) (bool, error) {
	workflow, err := s.approvals.GetWorkflow(ctx, workflowID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, apperrors.NewNotFound("workflow", map[string]any{"workflow_id": workflowID})
		}
		return false, apperrors.MapError(err)
	}

	ticket, err := s.tickets.GetByID(ctx, workflow.TicketID)
	if err != nil {
		return false, apperrors.MapError(err)
	}
	if !s.canCancelWorkflow(ctx, workflow, ticket, actorID) {
		return false, apperrors.NewForbidden("not authorized to cancel this workflow")
	}
	if !workflow.IsOpen() {
		return false, apperrors.NewConflict(fmt.Sprintf("workflow already %s", workflow.Status), map[string]any{"workflow_id": workflow.ID})
	}

	cancelled, skipped, err := s.approvals.CancelWorkflow(ctx, workflowID, s.now())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, apperrors.NewConflict("workflow already closed", map[string]any{"workflow_id": workflowID})
		}
		return false, apperrors.MapError(err)
	}

	s.bridgeTicketStatus(ctx, ticket, domain.TicketStatusSubmitted, &actorID, "workflow_cancelled")
	body := fmt.Sprintf("Approval workflow cancelled by user %s", actorID)
	if reason != "" {
		body += ": " + reason
	}
	s.systemComment(ctx, ticket.ID, body)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventWorkflowCancelled,
		TicketID: ticket.ID,
		Actor:    userActor(actorID),
		Payload: events.WorkflowCancelledPayload{
			WorkflowID:   cancelled.ID,
			Reason:       reason,
			SkippedSteps: skipped,
		},
	})
	return true, nil
}

// SweepEscalations finds pending steps past their due date and re-routes
// each to an escalation target. Steps without a resolvable target stay
// pending and are skipped; the sweep never aborts on an individual step.
// The pending-status claim makes repeated and concurrent sweeps safe: a
// step escalates at most once. Returns the newly created steps.
func (s *ApprovalService) SweepEscalations(ctx context.Context) ([]domain.ApprovalStep, error) {
	s.metrics.RecordSweep()
	overdue, err := s.approvals.ListOverdueSteps(ctx, s.now())
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	var escalated []domain.ApprovalStep
	for i := range overdue {
		step := overdue[i]
		workflow, err := s.approvals.GetWorkflow(ctx, step.WorkflowID)
		if err != nil {
			s.logger.Warn("sweep: load workflow", zap.String("step_id", step.ID), zap.Error(err))
			continue
		}
		if !workflow.IsOpen() {
			continue
		}
		ticket, err := s.tickets.GetByID(ctx, workflow.TicketID)
		if err != nil {
			s.logger.Warn("sweep: load ticket", zap.String("workflow_id", workflow.ID), zap.Error(err))
			continue
		}
		target, err := s.escalation.Target(ctx, ticket, &step)
		if err != nil {
			if !errors.Is(err, policy.ErrNoEscalationTarget) {
				s.logger.Warn("sweep: resolve target", zap.String("step_id", step.ID), zap.Error(err))
			}
			continue
		}

		result, err := s.escalateStep(ctx, workflow, ticket, &step, target.ID, events.Actor{System: true})
		if err != nil {
			if apperrors.IsCode(err, "CONFLICT") {
				// another sweep or a manual action claimed the step first
				continue
			}
			s.logger.Warn("sweep: escalate step", zap.String("step_id", step.ID), zap.Error(err))
			continue
		}
		if result.Sibling != nil {
			escalated = append(escalated, *result.Sibling)
		}
	}

	s.metrics.RecordEscalation(len(escalated))
	return escalated, nil
}

// Statistics aggregates workflow counts by status and type.
func (s *ApprovalService) Statistics(ctx context.Context) (map[string]any, error) {
	buckets, err := s.approvals.CountWorkflows(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	var total, active, completed int64
	byType := map[string]int64{}
	byStatus := map[string]int64{}
	for _, b := range buckets {
		total += b.Count
		byType[string(b.WorkflowType)] += b.Count
		byStatus[string(b.Status)] += b.Count
		switch b.Status {
		case domain.WorkflowStatusActive, domain.WorkflowStatusEscalated:
			active += b.Count
		case domain.WorkflowStatusCompleted:
			completed += b.Count
		}
	}
	return map[string]any{
		"total_workflows":     total,
		"active_workflows":    active,
		"completed_workflows": completed,
		"workflows_by_type":   byType,
		"workflows_by_status": byStatus,
	}, nil
}

// --- action handlers ---

func (s *ApprovalService) applyDecision(ctx context.Context, workflow *domain.ApprovalWorkflow, ticket *domain.Ticket, step *domain.ApprovalStep, input StepActionInput) (*domain.ApprovalStep, error) {
	status := domain.StepStatusApproved
	if input.Action == domain.ActionReject {
		status = domain.StepStatusRejected
	}
	result, err := s.transition(ctx, workflow, repository.StepTransition{
		StepID:     step.ID,
		Action:     input.Action,
		StepStatus: status,
		Comment:    input.Comment,
		Now:        s.now(),
	})
	if err != nil {
		return nil, err
	}

	s.recordStepComment(ctx, ticket.ID, input.ActorID, input.Action, input.Comment)
	s.finishIfComplete(ctx, workflow, ticket, result, &input.ActorID)
	s.publishStepEvent(ctx, ticket.ID, userActor(input.ActorID), result)
	return result.Step, nil
}

func (s *ApprovalService) applyInfoRequest(ctx context.Context, workflow *domain.ApprovalWorkflow, ticket *domain.Ticket, step *domain.ApprovalStep, input StepActionInput) (*domain.ApprovalStep, error) {
	annotated, err := s.approvals.AnnotateStep(ctx, step.ID, domain.ActionRequestInfo, input.Comment)
	if err != nil {
		if errors.Is(err, repository.ErrStepNotPending) {
			return nil, apperrors.NewConflict("step already processed", map[string]any{"step_id": step.ID})
		}
		return nil, apperrors.MapError(err)
	}

	// The one action that does not consume the step: it stays pending
	// while the requester supplies more information.
	s.bridgeTicketStatus(ctx, ticket, domain.TicketStatusPendingInfo, &input.ActorID, "info_requested")
	s.recordStepComment(ctx, ticket.ID, input.ActorID, input.Action, input.Comment)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventStepProcessed,
		TicketID: ticket.ID,
		Actor:    userActor(input.ActorID),
		Payload: events.StepProcessedPayload{
			WorkflowID: workflow.ID,
			StepID:     annotated.ID,
			Action:     domain.ActionRequestInfo,
			Status:     annotated.Status,
		},
	})
	return annotated, nil
}

func (s *ApprovalService) applyReassignment(ctx context.Context, workflow *domain.ApprovalWorkflow, ticket *domain.Ticket, step *domain.ApprovalStep, input StepActionInput) (*domain.ApprovalStep, error) {
	if input.Action == domain.ActionDelegate {
		if input.DelegateToID == nil || *input.DelegateToID == "" {
			return nil, apperrors.NewValidationError("delegate target is required for delegation", nil)
		}
		if err := s.validateApprover(ctx, *input.DelegateToID); err != nil {
			return nil, err
		}

		due := step.DueDate
		result, err := s.transition(ctx, workflow, repository.StepTransition{
			StepID:        step.ID,
			Action:        domain.ActionDelegate,
			StepStatus:    domain.StepStatusDelegated,
			Comment:       input.Comment,
			DelegatedToID: input.DelegateToID,
			Sibling: &domain.ApprovalStep{
				ApproverID: *input.DelegateToID,
				StepOrder:  step.StepOrder,
				Comment:    fmt.Sprintf("Delegated from user %s", step.ApproverID),
				DueDate:    due,
			},
			Now: s.now(),
		})
		if err != nil {
			return nil, err
		}

		s.recordStepComment(ctx, ticket.ID, input.ActorID, input.Action, input.Comment)
		s.finishIfComplete(ctx, workflow, ticket, result, &input.ActorID)
		s.publishStepEvent(ctx, ticket.ID, userActor(input.ActorID), result)
		return result.Step, nil
	}

	if input.EscalateToID == nil || *input.EscalateToID == "" {
		return nil, apperrors.NewValidationError("escalation target is required", nil)
	}
	if err := s.validateApprover(ctx, *input.EscalateToID); err != nil {
		return nil, err
	}
	result, err := s.escalateStep(ctx, workflow, ticket, step, *input.EscalateToID, userActor(input.ActorID))
	if err != nil {
		return nil, err
	}
	s.recordStepComment(ctx, ticket.ID, input.ActorID, input.Action, input.Comment)
	return result.Step, nil
}

// escalateStep is the shared path for manual escalation and the overdue
// sweep: the original step goes terminal, a sibling with a shortened due
// window goes to the target.
func (s *ApprovalService) escalateStep(ctx context.Context, workflow *domain.ApprovalWorkflow, ticket *domain.Ticket, step *domain.ApprovalStep, targetID string, actor events.Actor) (*repository.TransitionResult, error) {
	now := s.now()
	due := now.Add(time.Duration(s.cfg.EscalatedStepDueHours) * time.Hour)
	result, err := s.transition(ctx, workflow, repository.StepTransition{
		StepID:        step.ID,
		Action:        domain.ActionEscalate,
		StepStatus:    domain.StepStatusEscalated,
		EscalatedToID: &targetID,
		Sibling: &domain.ApprovalStep{
			ApproverID: targetID,
			StepOrder:  step.StepOrder,
			Comment:    fmt.Sprintf("Escalated from user %s", step.ApproverID),
			DueDate:    &due,
		},
		Now:           now,
		MarkEscalated: true,
	})
	if err != nil {
		return nil, err
	}

	s.systemComment(ctx, ticket.ID, fmt.Sprintf("Approval step escalated due to timeout. Original approver: %s", step.ApproverID))
	s.finishIfComplete(ctx, workflow, ticket, result, nil)
	if result.Sibling != nil {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventStepEscalated,
			TicketID: ticket.ID,
			Actor:    actor,
			Payload: events.StepEscalatedPayload{
				WorkflowID:     workflow.ID,
				StepID:         result.Step.ID,
				OriginalUserID: step.ApproverID,
				EscalatedToID:  targetID,
				NewStepID:      result.Sibling.ID,
			},
		})
	}
	return result, nil
}

// transition funnels every terminal step mutation through the repository's
// atomic apply, with the type-specific completion rule evaluated on the
// locked step set.
func (s *ApprovalService) transition(ctx context.Context, workflow *domain.ApprovalWorkflow, t repository.StepTransition) (*repository.TransitionResult, error) {
	workflowType := workflow.WorkflowType
	t.Evaluate = func(steps []domain.ApprovalStep) domain.WorkflowOutcome {
		return domain.EvaluateCompletion(workflowType, steps)
	}
	result, err := s.approvals.ApplyTransition(ctx, t)
	if err != nil {
		if errors.Is(err, repository.ErrStepNotPending) {
			return nil, apperrors.NewConflict("step already processed", map[string]any{"step_id": t.StepID})
		}
		return nil, apperrors.MapError(err)
	}
	return result, nil
}

// finishIfComplete propagates a terminal workflow outcome to the ticket.
// Runs after the state transition committed; failures here are logged,
// never rolled back into the engine.
func (s *ApprovalService) finishIfComplete(ctx context.Context, workflow *domain.ApprovalWorkflow, ticket *domain.Ticket, result *repository.TransitionResult, actorID *string) {
	if result.Outcome == domain.OutcomeNone {
		return
	}

	ticketStatus := domain.TicketStatusApproved
	if result.Outcome == domain.OutcomeRejected {
		ticketStatus = domain.TicketStatusRejected
	}
	s.bridgeTicketStatus(ctx, ticket, ticketStatus, actorID, "workflow_completed")
	s.metrics.RecordWorkflowCompleted(string(result.Outcome))
	s.publishEvent(ctx, events.Event{
		Type:     events.EventWorkflowCompleted,
		TicketID: ticket.ID,
		Actor:    actorOrSystem(actorID),
		Payload: events.WorkflowCompletedPayload{
			WorkflowID: workflow.ID,
			Outcome:    result.Outcome,
		},
	})
}

// --- creation helpers ---

func (s *ApprovalService) resolveApprovers(ctx context.Context, ticket *domain.Ticket, input WorkflowCreateInput) ([]string, error) {
	approverIDs := input.ApproverIDs
	if len(approverIDs) > 0 {
		for _, id := range approverIDs {
			if err := s.validateApprover(ctx, id); err != nil {
				return nil, err
			}
		}
	} else {
		resolved, err := s.approvers.Resolve(ctx, ticket)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		approverIDs = resolved
	}

	if len(approverIDs) == 0 {
		if input.WorkflowType != domain.WorkflowTypeAutoApprove {
			return nil, apperrors.NewValidationError("no approvers could be resolved for ticket", map[string]any{"ticket_id": ticket.ID})
		}
		// auto-approve workflows still materialize one step so the audit
		// chain is never empty; the initiator holds it
		approverIDs = []string{ticket.RequesterID}
	}
	return approverIDs, nil
}

func (s *ApprovalService) validateApprover(ctx context.Context, userID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewValidationError("approver does not exist", map[string]any{"user_id": userID})
		}
		return apperrors.MapError(err)
	}
	if !user.CanApprove() {
		return apperrors.NewValidationError("user cannot receive approval steps", map[string]any{"user_id": userID})
	}
	return nil
}

func (s *ApprovalService) autoApprovalApplies(workflow *domain.ApprovalWorkflow, ticket *domain.Ticket) bool {
	if workflow.WorkflowType != domain.WorkflowTypeAutoApprove {
		return false
	}
	if workflow.AutoApproveThreshold == nil || ticket.CostEstimate == nil {
		return false
	}
	return *ticket.CostEstimate <= *workflow.AutoApproveThreshold
}

func (s *ApprovalService) autoApproveWorkflow(ctx context.Context, workflow *domain.ApprovalWorkflow, ticket *domain.Ticket) error {
	for i := range workflow.Steps {
		step := &workflow.Steps[i]
		if step.Status != domain.StepStatusPending {
			continue
		}
		result, err := s.transition(ctx, workflow, repository.StepTransition{
			StepID:     step.ID,
			Action:     domain.ActionApprove,
			StepStatus: domain.StepStatusApproved,
			Comment:    "Auto-approved based on threshold",
			Now:        s.now(),
		})
		if err != nil {
			return err
		}
		s.finishIfComplete(ctx, workflow, ticket, result, nil)
	}
	s.systemComment(ctx, ticket.ID, "Workflow auto-approved based on configured threshold")
	return nil
}

// --- access checks ---

func (s *ApprovalService) canAccessWorkflow(ctx context.Context, workflow *domain.ApprovalWorkflow, actorID string) (bool, error) {
	if workflow.InitiatedByID == actorID {
		return true, nil
	}
	for i := range workflow.Steps {
		if workflow.Steps[i].ApproverID == actorID {
			return true, nil
		}
	}

	ticket, err := s.tickets.GetByID(ctx, workflow.TicketID)
	if err != nil {
		return false, apperrors.MapError(err)
	}
	if ticket.RequesterID == actorID {
		return true, nil
	}
	if ticket.AssigneeID != nil && *ticket.AssigneeID == actorID {
		return true, nil
	}

	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, apperrors.MapError(err)
	}
	return actor.Role == domain.RoleAdmin, nil
}

func (s *ApprovalService) canCancelWorkflow(ctx context.Context, workflow *domain.ApprovalWorkflow, ticket *domain.Ticket, actorID string) bool {
	if workflow.InitiatedByID == actorID || ticket.RequesterID == actorID {
		return true
	}
	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		return false
	}
	return actor.Role == domain.RoleAdmin
}

// --- effects ---

func (s *ApprovalService) bridgeTicketStatus(ctx context.Context, ticket *domain.Ticket, status domain.TicketStatus, actorID *string, note string) {
	if ticket.Status == status {
		return
	}
	oldStatus := ticket.Status
	if err := s.tickets.SetStatus(ctx, ticket.ID, status); err != nil {
		s.logger.Error("ticket status bridge", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return
	}
	ticket.Status = status

	if s.history != nil {
		authorType := domain.AuthorTypeSystem
		if actorID != nil {
			authorType = domain.AuthorTypeUser
		}
		entry := &domain.TicketHistory{
			TicketID:      ticket.ID,
			ChangedByType: authorType,
			ChangedByID:   actorID,
			ChangeType:    domain.ChangeTypeStatus,
			OldValue:      map[string]any{"status": oldStatus},
			NewValue:      map[string]any{"status": status, "note": note},
		}
		if err := s.history.Create(ctx, entry); err != nil {
			s.logger.Warn("record status history", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    actorOrSystem(actorID),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: status,
			Comment:   note,
		},
	})
}

func (s *ApprovalService) systemComment(ctx context.Context, ticketID, body string) {
	if s.comments == nil {
		return
	}
	comment := &domain.TicketComment{
		TicketID:   ticketID,
		AuthorType: domain.AuthorTypeSystem,
		Body:       body,
		IsInternal: false,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		s.logger.Warn("audit comment write failed", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

var actionDescriptions = map[domain.ApprovalAction]string{
	domain.ActionApprove:     "approved",
	domain.ActionReject:      "rejected",
	domain.ActionRequestInfo: "requested additional information for",
	domain.ActionDelegate:    "delegated",
	domain.ActionEscalate:    "escalated",
}

func (s *ApprovalService) recordStepComment(ctx context.Context, ticketID, actorID string, action domain.ApprovalAction, comment string) {
	desc, ok := actionDescriptions[action]
	if !ok {
		desc = "processed"
	}
	body := fmt.Sprintf("User %s %s the approval request", actorID, desc)
	if comment != "" {
		body += ": " + comment
	}
	s.systemComment(ctx, ticketID, body)
}

func (s *ApprovalService) publishStepEvent(ctx context.Context, ticketID string, actor events.Actor, result *repository.TransitionResult) {
	var newStepID *string
	if result.Sibling != nil {
		newStepID = &result.Sibling.ID
	}
	var action domain.ApprovalAction
	if result.Step.Action != nil {
		action = *result.Step.Action
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventStepProcessed,
		TicketID: ticketID,
		Actor:    actor,
		Payload: events.StepProcessedPayload{
			WorkflowID: result.Step.WorkflowID,
			StepID:     result.Step.ID,
			Action:     action,
			Status:     result.Step.Status,
			NewStepID:  newStepID,
		},
	})
}

func (s *ApprovalService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = newEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func userActor(userID string) events.Actor {
	return events.Actor{UserID: &userID}
}

func actorOrSystem(userID *string) events.Actor {
	if userID == nil {
		return events.Actor{System: true}
	}
	return events.Actor{UserID: userID}
}

func stepUrgent(step *domain.ApprovalStep, ticket *domain.Ticket, now time.Time) bool {
	if step.DueDate != nil && !step.DueDate.After(now.Add(24*time.Hour)) {
		return true
	}
	return ticket.Priority == domain.TicketPriorityCritical || ticket.Priority == domain.TicketPriorityHigh
}

func sortPending(items []PendingApproval) {
	// stable insertion keeps repo ordering for equal keys
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && pendingLess(items[j], items[j-1]); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

func pendingLess(a, b PendingApproval) bool {
	if a.IsUrgent != b.IsUrgent {
		return a.IsUrgent
	}
	switch {
	case a.Step.DueDate == nil && b.Step.DueDate == nil:
		return false
	case a.Step.DueDate == nil:
		return false
	case b.Step.DueDate == nil:
		return true
	}
	return a.Step.DueDate.Before(*b.Step.DueDate)
}
