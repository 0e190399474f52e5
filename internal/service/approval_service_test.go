package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/approval-service/internal/config"
	"github.com/spec-kit/approval-service/internal/domain"
	"github.com/spec-kit/approval-service/internal/events"
	"github.com/spec-kit/approval-service/internal/policy"
	apperrors "github.com/spec-kit/approval-service/pkg/errorutil"
)

type approvalFixture struct {
	svc        *ApprovalService
	approvals  *memApprovalRepo
	tickets    *memTicketRepo
	users      *memUserRepo
	comments   *memCommentRepo
	history    *memHistoryRepo
	resolver   *stubApproverPolicy
	escalation *stubEscalationPolicy
	dispatcher events.Dispatcher
	now        time.Time
}

func (f *approvalFixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func newApprovalFixture(t *testing.T) *approvalFixture {
	t.Helper()
	fix := &approvalFixture{
		approvals: newMemApprovalRepo(),
		tickets:   newMemTicketRepo(),
		users: newMemUserRepo(
			&domain.User{ID: "emp-1", Name: "Riley", Role: domain.RoleEmployee, Active: true},
			&domain.User{ID: "mgr-1", Name: "Sam", Role: domain.RoleManager, Active: true},
			&domain.User{ID: "mgr-2", Name: "Alex", Role: domain.RoleManager, Active: true},
			&domain.User{ID: "admin-1", Name: "Jordan", Role: domain.RoleAdmin, Active: true},
		),
		comments:   &memCommentRepo{},
		history:    &memHistoryRepo{},
		resolver:   &stubApproverPolicy{},
		escalation: &stubEscalationPolicy{err: policy.ErrNoEscalationTarget},
		dispatcher: events.NewInMemoryDispatcher(),
		now:        time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
	}

	cfg := config.ApprovalConfig{
		DefaultEscalationTimeoutHours: 24,
		EscalatedStepDueHours:         12,
	}
	fix.svc = NewApprovalService(cfg, ApprovalDependencies{
		ApprovalRepo:     fix.approvals,
		TicketRepo:       fix.tickets,
		UserRepo:         fix.users,
		CommentRepo:      fix.comments,
		HistoryRepo:      fix.history,
		ApproverPolicy:   fix.resolver,
		EscalationPolicy: fix.escalation,
		Dispatcher:       fix.dispatcher,
	})
	fix.svc.now = func() time.Time { return fix.now }
	return fix
}

func (f *approvalFixture) seedTicket(t *testing.T, mutate ...func(*domain.Ticket)) *domain.Ticket {
	t.Helper()
	ticket := &domain.Ticket{
		ExternalKey: "TCK-TEST",
		Title:       "New laptop",
		TicketType:  domain.TicketTypeITHardware,
		Status:      domain.TicketStatusSubmitted,
		Priority:    domain.TicketPriorityMedium,
		RequesterID: "emp-1",
	}
	for _, m := range mutate {
		m(ticket)
	}
	require.NoError(t, f.tickets.Create(context.Background(), ticket))
	return ticket
}

func TestCreateWorkflow_Sequential(t *testing.T) {
	fix := newApprovalFixture(t)
	ticket := fix.seedTicket(t)

	workflow, err := fix.svc.CreateWorkflow(context.Background(), "emp-1", WorkflowCreateInput{
		TicketID:     ticket.ID,
		Name:         "Hardware approval",
		WorkflowType: domain.WorkflowTypeSequential,
		ApproverIDs:  []string{"mgr-1", "mgr-2"},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.WorkflowStatusActive, workflow.Status)
	require.Len(t, workflow.Steps, 2)
	assert.Equal(t, 1, workflow.Steps[0].StepOrder)
	assert.Equal(t, "mgr-1", workflow.Steps[0].ApproverID)
	assert.Equal(t, 2, workflow.Steps[1].StepOrder)
	for _, step := range workflow.Steps {
		assert.Equal(t, domain.StepStatusPending, step.Status)
		require.NotNil(t, step.DueDate)
		assert.Equal(t, fix.now.Add(24*time.Hour), *step.DueDate)
	}

	stored, err := fix.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInReview, stored.Status)

	bodies := fix.comments.bodies(ticket.ID)
	require.NotEmpty(t, bodies)
	assert.Contains(t, bodies[0], "initiated with 2 approvers")
}

func TestCreateWorkflow_RejectsSecondOpenWorkflow(t *testing.T) {
	fix := newApprovalFixture(t)
	ticket := fix.seedTicket(t)

	input := WorkflowCreateInput{
		TicketID:     ticket.ID,
		Name:         "First",
		WorkflowType: domain.WorkflowTypeSequential,
		ApproverIDs:  []string{"mgr-1"},
	}
	_, err := fix.svc.CreateWorkflow(context.Background(), "emp-1", input)
	require.NoError(t, err)

	_, err = fix.svc.CreateWorkflow(context.Background(), "emp-1", input)
	assert.True(t, apperrors.IsCode(err, "CONFLICT"))
}

func TestCreateWorkflow_Validation(t *testing.T) {
	fix := newApprovalFixture(t)
	ticket := fix.seedTicket(t)

	t.Run("unknown workflow type", func(t *testing.T) {
		_, err := fix.svc.CreateWorkflow(context.Background(), "emp-1", WorkflowCreateInput{
			TicketID:     ticket.ID,
			WorkflowType: domain.WorkflowType("ROUND_ROBIN"),
		})
		assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
	})

	t.Run("approver without approval rights", func(t *testing.T) {
		_, err := fix.svc.CreateWorkflow(context.Background(), "emp-1", WorkflowCreateInput{
			TicketID:     ticket.ID,
			Name:         "Bad",
			WorkflowType: domain.WorkflowTypeSequential,
			ApproverIDs:  []string{"emp-1"},
		})
		assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
	})

	t.Run("missing ticket", func(t *testing.T) {
		_, err := fix.svc.CreateWorkflow(context.Background(), "emp-1", WorkflowCreateInput{
			TicketID:     "nope",
			Name:         "Bad",
			WorkflowType: domain.WorkflowTypeSequential,
			ApproverIDs:  []string{"mgr-1"},
		})
		assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))
	})

	t.Run("no approvers resolvable", func(t *testing.T) {
		_, err := fix.svc.CreateWorkflow(context.Background(), "emp-1", WorkflowCreateInput{
			TicketID:     ticket.ID,
			Name:         "Empty",
			WorkflowType: domain.WorkflowTypeSequential,
		})
		assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
	})
}

func TestCreateWorkflow_UsesResolverWhenNoApproversGiven(t *testing.T) {
	fix := newApprovalFixture(t)
	fix.resolver.ids = []string{"mgr-2", "mgr-1"}
	ticket := fix.seedTicket(t)

	workflow, err := fix.svc.CreateWorkflow(context.Background(), "emp-1", WorkflowCreateInput{
		TicketID:     ticket.ID,
		Name:         "Routed",
		WorkflowType: domain.WorkflowTypeParallel,
	})
	require.NoError(t, err)
	require.Len(t, workflow.Steps, 2)
	assert.Equal(t, "mgr-2", workflow.Steps[0].ApproverID)
	assert.Equal(t, "mgr-1", workflow.Steps[1].ApproverID)
}

func TestCreateWorkflow_AutoApproveUnderThreshold(t *testing.T) {
	fix := newApprovalFixture(t)
	cost := 500.0
	threshold := 1000.0
	ticket := fix.seedTicket(t, func(tk *domain.Ticket) { tk.CostEstimate = &cost })

	workflow, err := fix.svc.CreateWorkflow(context.Background(), "emp-1", WorkflowCreateInput{
		TicketID:             ticket.ID,
		Name:                 "Cheap purchase",
		WorkflowType:         domain.WorkflowTypeAutoApprove,
		AutoApproveThreshold: &threshold,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.WorkflowStatusCompleted, workflow.Status)
	require.Len(t, workflow.Steps, 1)
	assert.Equal(t, domain.StepStatusApproved, workflow.Steps[0].Status)
	assert.Equal(t, "Auto-approved based on threshold", workflow.Steps[0].Comment)

	stored, err := fix.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusApproved, stored.Status)

	// the ticket moves straight from SUBMITTED to APPROVED, never IN_REVIEW
	require.Len(t, fix.history.entries, 1)
	assert.Equal(t, map[string]any{"status": domain.TicketStatusSubmitted}, fix.history.entries[0].OldValue)
	assert.Equal(t, domain.TicketStatusApproved, fix.history.entries[0].NewValue["status"])

	assert.Contains(t, fix.comments.bodies(ticket.ID), "Workflow auto-approved based on configured threshold")
}

func TestCreateWorkflow_AutoApproveOverThresholdStaysActive(t *testing.T) {
	fix := newApprovalFixture(t)
	cost := 5000.0
	threshold := 1000.0
	ticket := fix.seedTicket(t, func(tk *domain.Ticket) { tk.CostEstimate = &cost })

	workflow, err := fix.svc.CreateWorkflow(context.Background(), "emp-1", WorkflowCreateInput{
		TicketID:             ticket.ID,
		Name:                 "Expensive purchase",
		WorkflowType:         domain.WorkflowTypeAutoApprove,
		ApproverIDs:          []string{"mgr-1"},
		AutoApproveThreshold: &threshold,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatusActive, workflow.Status)
	assert.Equal(t, domain.StepStatusPending, workflow.Steps[0].Status)
}

func TestProcessStep_ApproveCompletesSequentialWorkflow(t *testing.T) {
	fix := newApprovalFixture(t)
	ticket := fix.seedTicket(t)
	workflow, err := fix.svc.CreateWorkflow(context.Background(), "emp-1", WorkflowCreateInput{
		TicketID:     ticket.ID,
		Name:         "Two step",
		WorkflowType: domain.WorkflowTypeSequential,
		ApproverIDs:  []string{"mgr-1", "mgr-2"},
	})
	require.NoError(t, err)

	step1, err := fix.svc.ProcessStep(context.Background(), StepActionInput{
		StepID: workflow.Steps[0].ID, Action: domain.ActionApprove, ActorID: "mgr-1", Comment: "looks good",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StepStatusApproved, step1.Status)

	stored, err := fix.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInReview, stored.Status)

	_, err = fix.svc.ProcessStep(context.Background(), StepActionInput{
		StepID: workflow.Steps[1].ID, Action: domain.ActionApprove, ActorID: "mgr-2",
	})
	require.NoError(t, err)

	refreshed, err := fix.approvals.GetWorkflow(context.Background(), workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatusCompleted, refreshed.Status)

	stored, err = fix.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusApproved, stored.Status)

	assert.Contains(t, fix.comments.bodies(ticket.ID), "User mgr-1 approved the approval request: looks good")
}

func TestProcessStep_RejectionShortCircuitsParallel(t *testing.T) {
	fix := newApprovalFixture(t)
	ticket := fix.seedTicket(t)
	workflow, err := fix.svc.CreateWorkflow(context.Background(), "emp-1", WorkflowCreateInput{
		TicketID:     ticket.ID,
		Name:         "Parallel",
		WorkflowType: domain.WorkflowTypeParallel,
		ApproverIDs:  []string{"mgr-1", "mgr-2"},
	})
	require.NoError(t, err)

	_, err = fix.svc.ProcessStep(context.Background(), StepActionInput{
		StepID: workflow.Steps[0].ID, Action: domain.ActionReject, ActorID: "mgr-1", Comment: "over budget",
	})
	require.NoError(t, err)

	refreshed, err := fix.approvals.GetWorkflow(context.Background(), workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatusCompleted, refreshed.Status)

	stored, err := fix.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusRejected, stored.Status)

	// the second approver cannot act on a decided workflow
	_, err = fix.svc.ProcessStep(context.Background(), StepActionInput{
		StepID: workflow.Steps[1].ID, Action: domain.ActionApprove, ActorID: "mgr-2",
	})
	assert.True(t, apperrors.IsCode(err, "CONFLICT"))
}

func TestProcessStep_Guards(t *testing.T) {
	fix := newApprovalFixture(t)
	ticket := fix.seedTicket(t)
	workflow, err := fix.svc.CreateWorkflow(context.Background(), "emp-1", WorkflowCreateInput{
		TicketID:     ticket.ID,
		Name:         "Guarded",
		WorkflowType: domain.WorkflowTypeSequential,
		ApproverIDs:  []string{"mgr-1"},
	})
	require.NoError(t, err)
	stepID := workflow.Steps[0].ID

	t.Run("unknown step", func(t *testing.T) {
		_, err := fix.svc.ProcessStep(context.Background(), StepActionInput{StepID: "nope", Action: domain.ActionApprove, ActorID: "mgr-1"})
		assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))
	})

	t.Run("wrong actor", func(t *testing.T) {
		_, err := fix.svc.ProcessStep(context.Background(), StepActionInput{StepID: stepID, Action: domain.ActionApprove, ActorID: "mgr-2"})
		assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
	})

	t.Run("delegate without target", func(t *testing.T) {
		_, err := fix.svc.ProcessStep(context.Background(), StepActionInput{StepID: stepID, Action: domain.ActionDelegate, ActorID: "mgr-1"})
		assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
	})

	t.Run("second decision conflicts", func(t *testing.T) {
		_, err := fix.svc.ProcessStep(context.Background(), StepActionInput{StepID: stepID, Action: domain.ActionApprove, ActorID: "mgr-1"})
		require.NoError(t, err)
		_, err = fix.svc.ProcessStep(context.Background(), StepActionInput{StepID: stepID, Action: domain.ActionReject, ActorID: "mgr-1"})
		assert.True(t, apperrors.IsCode(err, "CONFLICT"))
	})
}

func TestProcessStep_DelegationCreatesSiblingAndPreservesHistory(t *testing.T) {
	fix := newApprovalFixture(t)
	ticket := fix.seedTicket(t)
	workflow, err := fix.svc.CreateWorkflow(context.Background(), "emp-1", WorkflowCreateInput{
		TicketID:     ticket.ID,
		Name:         "Delegated",
		WorkflowType: domain.WorkflowTypeSequential,
		ApproverIDs:  []string{"mgr-1"},
	})
	require.NoError(t, err)
	original := workflow.Steps[0]

	delegate := "mgr-2"
	processed, err := fix.svc.ProcessStep(context.Background(), StepActionInput{
		StepID: original.ID, Action: domain.ActionDelegate, ActorID: "mgr-1", DelegateToID: &delegate,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StepStatusDelegated, processed.Status)
	require.NotNil(t, processed.DelegatedToID)
	assert.Equal(t, "mgr-2", *processed.DelegatedToID)

	refreshed, err := fix.approvals.GetWorkflow(context.Background(), workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatusActive, refreshed.Status)
	require.Len(t, refreshed.Steps, 2)

	var sibling *domain.ApprovalStep
	for i := range refreshed.Steps {
		if refreshed.Steps[i].ID != original.ID {
			sibling = &refreshed.Steps[i]
		}
	}
	require.NotNil(t, sibling)
	assert.Equal(t, "mgr-2", sibling.ApproverID)
	assert.Equal(t, original.StepOrder, sibling.StepOrder)
	assert.Equal(t, domain.StepStatusPending, sibling.Status)
	assert.Equal(t, "Delegated from user mgr-1", sibling.Comment)
	assert.Equal(t, original.DueDate, sibling.DueDate)

	// the delegate's approval completes the workflow
	_, err = fix.svc.ProcessStep(context.Background(), StepActionInput{
		StepID: sibling.ID, Action: domain.ActionApprove, ActorID: "mgr-2",
	})
	require.NoError(t, err)

	refreshed, err = fix.approvals.GetWorkflow(context.Background(), workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatusCompleted, refreshed.Status)
}

func TestProcessStep_RequestInfoKeepsStepPending(t *testing.T) {
	fix := newApprovalFixture(t)
	ticket := fix.seedTicket(t)
	workflow, err := fix.svc.CreateWorkflow(context.Background(), "emp-1", WorkflowCreateInput{
		TicketID:     ticket.ID,
		Name:         "Needs info",
		WorkflowType: domain.WorkflowTypeSequential,
		ApproverIDs:  []string{"mgr-1"},
	})
	require.NoError(t, err)

	step, err := fix.svc.ProcessStep(context.Background(), StepActionInput{
		StepID: workflow.Steps[0].ID, Action: domain.ActionRequestInfo, ActorID: "mgr-1", Comment: "need quotes",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StepStatusPending, step.Status)
	require.NotNil(t, step.Action)
	assert.Equal(t, domain.ActionRequestInfo, *step.Action)

	stored, err := fix.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPendingInfo, stored.Status)

	// approval still possible afterwards
	_, err = fix.svc.ProcessStep(context.Background(), StepActionInput{
		StepID: workflow.Steps[0].ID, Action: domain.ActionApprove, ActorID: "mgr-1",
	})
	require.NoError(t, err)
}

func TestSweepEscalations(t *testing.T) {
	fix := newApprovalFixture(t)
	fix.escalation.err = nil
	fix.escalation.target = &domain.User{ID: "admin-1", Name: "Jordan", Role: domain.RoleAdmin, Active: true}

	ticket := fix.seedTicket(t)
	workflow, err := fix.svc.CreateWorkflow(context.Background(), "emp-1", WorkflowCreateInput{
		TicketID:     ticket.ID,
		Name:         "Slow approval",
		WorkflowType: domain.WorkflowTypeSequential,
		ApproverIDs:  []string{"mgr-1"},
	})
	require.NoError(t, err)

	fix.advance(25 * time.Hour)

	escalated, err := fix.svc.SweepEscalations(context.Background())
	require.NoError(t, err)
	require.Len(t, escalated, 1)
	assert.Equal(t, "admin-1", escalated[0].ApproverID)
	require.NotNil(t, escalated[0].DueDate)
	assert.Equal(t, fix.now.Add(12*time.Hour), *escalated[0].DueDate)
	assert.Equal(t, "Escalated from user mgr-1", escalated[0].Comment)

	refreshed, err := fix.approvals.GetWorkflow(context.Background(), workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatusEscalated, refreshed.Status)

	original, err := fix.approvals.GetStep(context.Background(), workflow.Steps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StepStatusEscalated, original.Status)
	require.NotNil(t, original.EscalatedToID)
	assert.Equal(t, "admin-1", *original.EscalatedToID)

	assert.Contains(t, fix.comments.bodies(ticket.ID), "Approval step escalated due to timeout. Original approver: mgr-1")

	// repeated sweep finds nothing new
	again, err := fix.svc.SweepEscalations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, again)

	// escalation target can still drive the workflow to completion
	_, err = fix.svc.ProcessStep(context.Background(), StepActionInput{
		StepID: escalated[0].ID, Action: domain.ActionApprove, ActorID: "admin-1",
	})
	require.NoError(t, err)
	refreshed, err = fix.approvals.GetWorkflow(context.Background(), workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatusCompleted, refreshed.Status)
}

func TestSweepEscalations_NoTargetLeavesStepPending(t *testing.T) {
	fix := newApprovalFixture(t)
	ticket := fix.seedTicket(t)
	workflow, err := fix.svc.CreateWorkflow(context.Background(), "emp-1", WorkflowCreateInput{
		TicketID:     ticket.ID,
		Name:         "Stuck",
		WorkflowType: domain.WorkflowTypeSequential,
		ApproverIDs:  []string{"mgr-1"},
	})
	require.NoError(t, err)

	fix.advance(48 * time.Hour)

	escalated, err := fix.svc.SweepEscalations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, escalated)

	step, err := fix.approvals.GetStep(context.Background(), workflow.Steps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StepStatusPending, step.Status)
}

func TestCancelWorkflow(t *testing.T) {
	fix := newApprovalFixture(t)
	ticket := fix.seedTicket(t)
	workflow, err := fix.svc.CreateWorkflow(context.Background(), "emp-1", WorkflowCreateInput{
		TicketID:     ticket.ID,
		Name:         "Cancelled",
		WorkflowType: domain.WorkflowTypeParallel,
		ApproverIDs:  []string{"mgr-1", "mgr-2"},
	})
	require.NoError(t, err)

	t.Run("stranger cannot cancel", func(t *testing.T) {
		_, err := fix.svc.CancelWorkflow(context.Background(), workflow.ID, "mgr-2", "")
		assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
	})

	cancelled, err := fix.svc.CancelWorkflow(context.Background(), workflow.ID, "emp-1", "no longer needed")
	require.NoError(t, err)
	assert.True(t, cancelled)

	refreshed, err := fix.approvals.GetWorkflow(context.Background(), workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatusCancelled, refreshed.Status)
	for _, step := range refreshed.Steps {
		assert.Equal(t, domain.StepStatusSkipped, step.Status)
	}

	stored, err := fix.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusSubmitted, stored.Status)

	t.Run("second cancel conflicts", func(t *testing.T) {
		_, err := fix.svc.CancelWorkflow(context.Background(), workflow.ID, "emp-1", "")
		assert.True(t, apperrors.IsCode(err, "CONFLICT"))
	})

	t.Run("skipped steps accept no actions", func(t *testing.T) {
		_, err := fix.svc.ProcessStep(context.Background(), StepActionInput{
			StepID: refreshed.Steps[0].ID, Action: domain.ActionApprove, ActorID: "mgr-1",
		})
		assert.True(t, apperrors.IsCode(err, "CONFLICT"))
	})
}

func TestPendingForUser(t *testing.T) {
	fix := newApprovalFixture(t)
	urgentTicket := fix.seedTicket(t, func(tk *domain.Ticket) {
		tk.Title = "Server down"
		tk.Priority = domain.TicketPriorityCritical
	})
	calmTicket := fix.seedTicket(t, func(tk *domain.Ticket) {
		tk.Title = "New chair"
		tk.Priority = domain.TicketPriorityLow
	})

	for _, ticket := range []*domain.Ticket{calmTicket, urgentTicket} {
		_, err := fix.svc.CreateWorkflow(context.Background(), "emp-1", WorkflowCreateInput{
			TicketID:               ticket.ID,
			Name:                   "Review " + ticket.Title,
			WorkflowType:           domain.WorkflowTypeSequential,
			ApproverIDs:            []string{"mgr-1"},
			EscalationTimeoutHours: 72,
		})
		require.NoError(t, err)
	}

	pending, err := fix.svc.PendingForUser(context.Background(), "mgr-1")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "Server down", pending[0].TicketTitle)
	assert.True(t, pending[0].IsUrgent)
	assert.False(t, pending[1].IsUrgent)

	none, err := fix.svc.PendingForUser(context.Background(), "mgr-2")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetWorkflow_AccessControl(t *testing.T) {
	fix := newApprovalFixture(t)
	ticket := fix.seedTicket(t)
	workflow, err := fix.svc.CreateWorkflow(context.Background(), "emp-1", WorkflowCreateInput{
		TicketID:     ticket.ID,
		Name:         "Private",
		WorkflowType: domain.WorkflowTypeSequential,
		ApproverIDs:  []string{"mgr-1"},
	})
	require.NoError(t, err)

	for _, actor := range []string{"emp-1", "mgr-1", "admin-1"} {
		_, err := fix.svc.GetWorkflow(context.Background(), workflow.ID, actor)
		assert.NoError(t, err, "actor %s", actor)
	}

	_, err = fix.svc.GetWorkflow(context.Background(), workflow.ID, "mgr-2")
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
}

func TestStatistics(t *testing.T) {
	fix := newApprovalFixture(t)

	first := fix.seedTicket(t)
	second := fix.seedTicket(t)

	wf1, err := fix.svc.CreateWorkflow(context.Background(), "emp-1", WorkflowCreateInput{
		TicketID: first.ID, Name: "One", WorkflowType: domain.WorkflowTypeSequential, ApproverIDs: []string{"mgr-1"},
	})
	require.NoError(t, err)
	_, err = fix.svc.CreateWorkflow(context.Background(), "emp-1", WorkflowCreateInput{
		TicketID: second.ID, Name: "Two", WorkflowType: domain.WorkflowTypeParallel, ApproverIDs: []string{"mgr-1", "mgr-2"},
	})
	require.NoError(t, err)

	_, err = fix.svc.ProcessStep(context.Background(), StepActionInput{
		StepID: wf1.Steps[0].ID, Action: domain.ActionApprove, ActorID: "mgr-1",
	})
	require.NoError(t, err)

	stats, err := fix.svc.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats["total_workflows"])
	assert.Equal(t, int64(1), stats["active_workflows"])
	assert.Equal(t, int64(1), stats["completed_workflows"])
}
