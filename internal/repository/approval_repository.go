package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/approval-service/internal/domain"
)

// ErrStepNotPending signals that a step transition lost the race: the row
// was no longer PENDING when the conditional update ran.
var ErrStepNotPending = errors.New("approval step is not pending")

// StepTransition is a fully decided state change for one step, applied
// atomically together with the workflow-completion recomputation. The
// service decides WHAT changes; the repository guarantees the change and
// the recomputation commit together.
type StepTransition struct {
	StepID        string
	Action        domain.ApprovalAction
	StepStatus    domain.StepStatus
	Comment       string
	DelegatedToID *string
	EscalatedToID *string
	Sibling       *domain.ApprovalStep
	Now           time.Time
	MarkEscalated bool
	Evaluate      func(steps []domain.ApprovalStep) domain.WorkflowOutcome
}

// TransitionResult reports what a committed transition produced.
type TransitionResult struct {
	Step     *domain.ApprovalStep
	Sibling  *domain.ApprovalStep
	Workflow *domain.ApprovalWorkflow
	Outcome  domain.WorkflowOutcome
}

// WorkflowStatusCount is one statistics bucket.
type WorkflowStatusCount struct {
	Status       domain.WorkflowStatus
	WorkflowType domain.WorkflowType
	Count        int64
}

// ApprovalRepository is the durable step store. Workflow and step state is
// mutated only through it.
type ApprovalRepository interface {
	CreateWorkflow(ctx context.Context, workflow *domain.ApprovalWorkflow) error
	GetWorkflow(ctx context.Context, id string) (*domain.ApprovalWorkflow, error)
	GetOpenWorkflowForTicket(ctx context.Context, ticketID string) (*domain.ApprovalWorkflow, error)
	GetStep(ctx context.Context, stepID string) (*domain.ApprovalStep, error)
	ListPendingForUser(ctx context.Context, userID string, limit int) ([]domain.ApprovalStep, error)
	ListOverdueSteps(ctx context.Context, now time.Time) ([]domain.ApprovalStep, error)
	AnnotateStep(ctx context.Context, stepID string, action domain.ApprovalAction, comment string) (*domain.ApprovalStep, error)
	ApplyTransition(ctx context.Context, transition StepTransition) (*TransitionResult, error)
	CancelWorkflow(ctx context.Context, workflowID string, now time.Time) (*domain.ApprovalWorkflow, int64, error)
	CountWorkflows(ctx context.Context) ([]WorkflowStatusCount, error)
}

type approvalRepository struct {
	pool *pgxpool.Pool
}

// NewApprovalRepository builds the Postgres-backed step store.
func NewApprovalRepository(pool *pgxpool.Pool) ApprovalRepository {
	return &approvalRepository{pool: pool}
}

const workflowColumns = `id, ticket_id, name, workflow_type, status, config,
       auto_approve_threshold, escalation_timeout_hours, initiated_by_id,
       completed_at, created_at, updated_at`

const stepColumns = `id, workflow_id, approver_id, step_order, action, status,
       comment, delegated_to_id, escalated_to_id, due_date, completed_at,
       created_at, updated_at`

func (r *approvalRepository) CreateWorkflow(ctx context.Context, workflow *domain.ApprovalWorkflow) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const insertWorkflow = `
        INSERT INTO approval_workflows (ticket_id, name, workflow_type, status, config,
            auto_approve_threshold, escalation_timeout_hours, initiated_by_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at, updated_at`
	if err := tx.QueryRow(ctx, insertWorkflow,
		workflow.TicketID,
		workflow.Name,
		workflow.WorkflowType,
		workflow.Status,
		workflow.Config,
		workflow.AutoApproveThreshold,
		workflow.EscalationTimeoutHrs,
		workflow.InitiatedByID,
	).Scan(&workflow.ID, &workflow.CreatedAt, &workflow.UpdatedAt); err != nil {
		return err
	}

	const insertStep = `
        INSERT INTO approval_steps (workflow_id, approver_id, step_order, status, comment, due_date)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	for i := range workflow.Steps {
		step := &workflow.Steps[i]
		step.WorkflowID = workflow.ID
		if err := tx.QueryRow(ctx, insertStep,
			step.WorkflowID,
			step.ApproverID,
			step.StepOrder,
			step.Status,
			step.Comment,
			step.DueDate,
		).Scan(&step.ID, &step.CreatedAt, &step.UpdatedAt); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *approvalRepository) GetWorkflow(ctx context.Context, id string) (*domain.ApprovalWorkflow, error) {
	const query = `SELECT ` + workflowColumns + ` FROM approval_workflows WHERE id=$1`
	workflow, err := scanWorkflow(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	steps, err := r.listWorkflowSteps(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	workflow.Steps = steps
	return workflow, nil
}

func (r *approvalRepository) GetOpenWorkflowForTicket(ctx context.Context, ticketID string) (*domain.ApprovalWorkflow, error) {
	const query = `SELECT ` + workflowColumns + `
        FROM approval_workflows
        WHERE ticket_id=$1 AND status IN ('ACTIVE','ESCALATED')
        ORDER BY created_at DESC LIMIT 1`
	return scanWorkflow(r.pool.QueryRow(ctx, query, ticketID))
}

func (r *approvalRepository) GetStep(ctx context.Context, stepID string) (*domain.ApprovalStep, error) {
	const query = `SELECT ` + stepColumns + ` FROM approval_steps WHERE id=$1`
	return scanStep(r.pool.QueryRow(ctx, query, stepID))
}

func (r *approvalRepository) ListPendingForUser(ctx context.Context, userID string, limit int) ([]domain.ApprovalStep, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT ` + stepColumns + `
        FROM approval_steps
        WHERE approver_id=$1 AND status='PENDING'
        ORDER BY due_date ASC NULLS LAST, created_at ASC
        LIMIT $2`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSteps(rows)
}

func (r *approvalRepository) ListOverdueSteps(ctx context.Context, now time.Time) ([]domain.ApprovalStep, error) {
	const query = `SELECT ` + stepColumns + `
        FROM approval_steps
        WHERE status='PENDING' AND due_date IS NOT NULL AND due_date < $1
        ORDER BY due_date ASC`
	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSteps(rows)
}

// AnnotateStep records an action and comment on a step without consuming
// it. Used for REQUEST_INFO, the one action that leaves the step pending.
func (r *approvalRepository) AnnotateStep(ctx context.Context, stepID string, action domain.ApprovalAction, comment string) (*domain.ApprovalStep, error) {
	const query = `
        UPDATE approval_steps SET action=$2, comment=$3, updated_at=NOW()
        WHERE id=$1 AND status='PENDING'
        RETURNING ` + stepColumns
	step, err := scanStep(r.pool.QueryRow(ctx, query, stepID, action, comment))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStepNotPending
	}
	return step, err
}

// ApplyTransition claims the step with a conditional update on PENDING,
// inserts the sibling step when delegation or escalation produced one,
// then locks the workflow's step rows and recomputes completion, all in
// one transaction. Concurrent calls against the same step serialize on the
// row lock; the loser sees a non-PENDING row and gets ErrStepNotPending.
func (r *approvalRepository) ApplyTransition(ctx context.Context, t StepTransition) (*TransitionResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const claim = `
        UPDATE approval_steps
        SET action=$2, status=$3, comment=$4, delegated_to_id=$5, escalated_to_id=$6,
            completed_at=$7, updated_at=NOW()
        WHERE id=$1 AND status='PENDING'
        RETURNING ` + stepColumns
	step, err := scanStep(tx.QueryRow(ctx, claim,
		t.StepID,
		t.Action,
		t.StepStatus,
		t.Comment,
		t.DelegatedToID,
		t.EscalatedToID,
		t.Now,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStepNotPending
		}
		return nil, err
	}

	result := &TransitionResult{Step: step, Outcome: domain.OutcomeNone}

	if t.Sibling != nil {
		const insertSibling = `
            INSERT INTO approval_steps (workflow_id, approver_id, step_order, status, comment, due_date)
            VALUES ($1,$2,$3,$4,$5,$6)
            RETURNING ` + stepColumns
		sibling, err := scanStep(tx.QueryRow(ctx, insertSibling,
			step.WorkflowID,
			t.Sibling.ApproverID,
			t.Sibling.StepOrder,
			domain.StepStatusPending,
			t.Sibling.Comment,
			t.Sibling.DueDate,
		))
		if err != nil {
			return nil, err
		}
		result.Sibling = sibling
	}

	const lockWorkflow = `SELECT ` + workflowColumns + ` FROM approval_workflows WHERE id=$1 FOR UPDATE`
	workflow, err := scanWorkflow(tx.QueryRow(ctx, lockWorkflow, step.WorkflowID))
	if err != nil {
		return nil, err
	}

	steps, err := r.lockWorkflowSteps(ctx, tx, step.WorkflowID)
	if err != nil {
		return nil, err
	}

	outcome := domain.OutcomeNone
	if t.Evaluate != nil {
		outcome = t.Evaluate(steps)
	}
	switch {
	case outcome != domain.OutcomeNone:
		const complete = `
            UPDATE approval_workflows SET status='COMPLETED', completed_at=$2, updated_at=NOW()
            WHERE id=$1`
		if _, err := tx.Exec(ctx, complete, step.WorkflowID, t.Now); err != nil {
			return nil, err
		}
		workflow.Status = domain.WorkflowStatusCompleted
		workflow.CompletedAt = &t.Now
	case t.MarkEscalated && workflow.Status != domain.WorkflowStatusEscalated:
		const escalate = `
            UPDATE approval_workflows SET status='ESCALATED', updated_at=NOW() WHERE id=$1`
		if _, err := tx.Exec(ctx, escalate, step.WorkflowID); err != nil {
			return nil, err
		}
		workflow.Status = domain.WorkflowStatusEscalated
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	workflow.Steps = steps
	result.Workflow = workflow
	result.Outcome = outcome
	return result, nil
}

func (r *approvalRepository) CancelWorkflow(ctx context.Context, workflowID string, now time.Time) (*domain.ApprovalWorkflow, int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const cancel = `
        UPDATE approval_workflows SET status='CANCELLED', completed_at=$2, updated_at=NOW()
        WHERE id=$1 AND status IN ('ACTIVE','ESCALATED')
        RETURNING ` + workflowColumns
	workflow, err := scanWorkflow(tx.QueryRow(ctx, cancel, workflowID, now))
	if err != nil {
		return nil, 0, err
	}

	// Pending steps are skipped, never deleted: history stays intact.
	const skip = `
        UPDATE approval_steps SET status='SKIPPED', updated_at=NOW()
        WHERE workflow_id=$1 AND status='PENDING'`
	cmd, err := tx.Exec(ctx, skip, workflowID)
	if err != nil {
		return nil, 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, err
	}
	return workflow, cmd.RowsAffected(), nil
}

func (r *approvalRepository) CountWorkflows(ctx context.Context) ([]WorkflowStatusCount, error) {
	const query = `
        SELECT status, workflow_type, COUNT(*)
        FROM approval_workflows
        GROUP BY status, workflow_type`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []WorkflowStatusCount
	for rows.Next() {
		var bucket WorkflowStatusCount
		if err := rows.Scan(&bucket.Status, &bucket.WorkflowType, &bucket.Count); err != nil {
			return nil, err
		}
		result = append(result, bucket)
	}
	return result, rows.Err()
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *approvalRepository) listWorkflowSteps(ctx context.Context, q querier, workflowID string) ([]domain.ApprovalStep, error) {
	const query = `SELECT ` + stepColumns + `
        FROM approval_steps WHERE workflow_id=$1
        ORDER BY step_order ASC, created_at ASC`
	rows, err := q.Query(ctx, query, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSteps(rows)
}

func (r *approvalRepository) lockWorkflowSteps(ctx context.Context, tx pgx.Tx, workflowID string) ([]domain.ApprovalStep, error) {
	const query = `SELECT ` + stepColumns + `
        FROM approval_steps WHERE workflow_id=$1
        ORDER BY step_order ASC, created_at ASC
        FOR UPDATE`
	rows, err := tx.Query(ctx, query, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSteps(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*domain.ApprovalWorkflow, error) {
	var workflow domain.ApprovalWorkflow
	if err := row.Scan(
		&workflow.ID,
		&workflow.TicketID,
		&workflow.Name,
		&workflow.WorkflowType,
		&workflow.Status,
		&workflow.Config,
		&workflow.AutoApproveThreshold,
		&workflow.EscalationTimeoutHrs,
		&workflow.InitiatedByID,
		&workflow.CompletedAt,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &workflow, nil
}

func scanStep(row rowScanner) (*domain.ApprovalStep, error) {
	var step domain.ApprovalStep
	if err := row.Scan(
		&step.ID,
		&step.WorkflowID,
		&step.ApproverID,
		&step.StepOrder,
		&step.Action,
		&step.Status,
		&step.Comment,
		&step.DelegatedToID,
		&step.EscalatedToID,
		&step.DueDate,
		&step.CompletedAt,
		&step.CreatedAt,
		&step.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &step, nil
}

func scanSteps(rows pgx.Rows) ([]domain.ApprovalStep, error) {
	var result []domain.ApprovalStep
	for rows.Next() {
		var step domain.ApprovalStep
		if err := rows.Scan(
			&step.ID,
			&step.WorkflowID,
			&step.ApproverID,
			&step.StepOrder,
			&step.Action,
			&step.Status,
			&step.Comment,
			&step.DelegatedToID,
			&step.EscalatedToID,
			&step.DueDate,
			&step.CompletedAt,
			&step.CreatedAt,
			&step.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, step)
	}
	return result, rows.Err()
}
