package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/approval-service/internal/domain"
	"github.com/spec-kit/approval-service/internal/policy"
	"github.com/spec-kit/approval-service/internal/repository"
)

// memApprovalRepo reproduces the step store contract in memory: the
// pending-only claim, sibling insertion and completion recomputation all
// happen inside ApplyTransition, mirroring the transactional behavior.
type memApprovalRepo struct {
	workflows map[string]*domain.ApprovalWorkflow
	steps     map[string]*domain.ApprovalStep
	seq       int
}

func newMemApprovalRepo() *memApprovalRepo {
	return &memApprovalRepo{
		workflows: make(map[string]*domain.ApprovalWorkflow),
		steps:     make(map[string]*domain.ApprovalStep),
	}
}

func (r *memApprovalRepo) nextID(prefix string) string {
	r.seq++
	return fmt.Sprintf("%s-%d", prefix, r.seq)
}

func (r *memApprovalRepo) CreateWorkflow(ctx context.Context, workflow *domain.ApprovalWorkflow) error {
	workflow.ID = r.nextID("wf")
	workflow.CreatedAt = time.Now()
	workflow.UpdatedAt = workflow.CreatedAt
	stored := *workflow
	stored.Steps = nil
	r.workflows[workflow.ID] = &stored

	for i := range workflow.Steps {
		step := &workflow.Steps[i]
		step.ID = r.nextID("step")
		step.WorkflowID = workflow.ID
		step.CreatedAt = time.Now()
		step.UpdatedAt = step.CreatedAt
		copied := *step
		r.steps[step.ID] = &copied
	}
	return nil
}

func (r *memApprovalRepo) GetWorkflow(ctx context.Context, id string) (*domain.ApprovalWorkflow, error) {
	stored, ok := r.workflows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	workflow := *stored
	workflow.Steps = r.workflowSteps(id)
	return &workflow, nil
}

func (r *memApprovalRepo) GetOpenWorkflowForTicket(ctx context.Context, ticketID string) (*domain.ApprovalWorkflow, error) {
	for _, stored := range r.workflows {
		if stored.TicketID == ticketID && (stored.Status == domain.WorkflowStatusActive || stored.Status == domain.WorkflowStatusEscalated) {
			workflow := *stored
			workflow.Steps = r.workflowSteps(stored.ID)
			return &workflow, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memApprovalRepo) GetStep(ctx context.Context, stepID string) (*domain.ApprovalStep, error) {
	stored, ok := r.steps[stepID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	step := *stored
	return &step, nil
}

func (r *memApprovalRepo) ListPendingForUser(ctx context.Context, userID string, limit int) ([]domain.ApprovalStep, error) {
	var result []domain.ApprovalStep
	for _, step := range r.steps {
		if step.ApproverID == userID && step.Status == domain.StepStatusPending {
			result = append(result, *step)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		di, dj := result[i].DueDate, result[j].DueDate
		switch {
		case di == nil:
			return false
		case dj == nil:
			return true
		}
		return di.Before(*dj)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *memApprovalRepo) ListOverdueSteps(ctx context.Context, now time.Time) ([]domain.ApprovalStep, error) {
	var result []domain.ApprovalStep
	for _, step := range r.steps {
		if step.Overdue(now) {
			result = append(result, *step)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *memApprovalRepo) AnnotateStep(ctx context.Context, stepID string, action domain.ApprovalAction, comment string) (*domain.ApprovalStep, error) {
	stored, ok := r.steps[stepID]
	if !ok || stored.Status != domain.StepStatusPending {
		return nil, repository.ErrStepNotPending
	}
	stored.Action = &action
	stored.Comment = comment
	stored.UpdatedAt = time.Now()
	step := *stored
	return &step, nil
}

func (r *memApprovalRepo) ApplyTransition(ctx context.Context, t repository.StepTransition) (*repository.TransitionResult, error) {
	stored, ok := r.steps[t.StepID]
	if !ok || stored.Status != domain.StepStatusPending {
		return nil, repository.ErrStepNotPending
	}

	action := t.Action
	stored.Action = &action
	stored.Status = t.StepStatus
	stored.Comment = t.Comment
	stored.DelegatedToID = t.DelegatedToID
	stored.EscalatedToID = t.EscalatedToID
	now := t.Now
	stored.CompletedAt = &now
	stored.UpdatedAt = now

	result := &repository.TransitionResult{Outcome: domain.OutcomeNone}
	step := *stored
	result.Step = &step

	if t.Sibling != nil {
		sibling := *t.Sibling
		sibling.ID = r.nextID("step")
		sibling.WorkflowID = stored.WorkflowID
		sibling.Status = domain.StepStatusPending
		sibling.CreatedAt = time.Now()
		sibling.UpdatedAt = sibling.CreatedAt
		copied := sibling
		r.steps[sibling.ID] = &copied
		result.Sibling = &sibling
	}

	workflow := r.workflows[stored.WorkflowID]
	steps := r.workflowSteps(stored.WorkflowID)

	outcome := domain.OutcomeNone
	if t.Evaluate != nil {
		outcome = t.Evaluate(steps)
	}
	switch {
	case outcome != domain.OutcomeNone:
		workflow.Status = domain.WorkflowStatusCompleted
		workflow.CompletedAt = &now
	case t.MarkEscalated && workflow.Status != domain.WorkflowStatusEscalated:
		workflow.Status = domain.WorkflowStatusEscalated
	}

	copied := *workflow
	copied.Steps = steps
	result.Workflow = &copied
	result.Outcome = outcome
	return result, nil
}

func (r *memApprovalRepo) CancelWorkflow(ctx context.Context, workflowID string, now time.Time) (*domain.ApprovalWorkflow, int64, error) {
	stored, ok := r.workflows[workflowID]
	if !ok || (stored.Status != domain.WorkflowStatusActive && stored.Status != domain.WorkflowStatusEscalated) {
		return nil, 0, pgx.ErrNoRows
	}
	stored.Status = domain.WorkflowStatusCancelled
	stored.CompletedAt = &now

	var skipped int64
	for _, step := range r.steps {
		if step.WorkflowID == workflowID && step.Status == domain.StepStatusPending {
			step.Status = domain.StepStatusSkipped
			skipped++
		}
	}
	workflow := *stored
	return &workflow, skipped, nil
}

func (r *memApprovalRepo) CountWorkflows(ctx context.Context) ([]repository.WorkflowStatusCount, error) {
	buckets := make(map[string]*repository.WorkflowStatusCount)
	for _, workflow := range r.workflows {
		key := string(workflow.Status) + "|" + string(workflow.WorkflowType)
		if _, ok := buckets[key]; !ok {
			buckets[key] = &repository.WorkflowStatusCount{Status: workflow.Status, WorkflowType: workflow.WorkflowType}
		}
		buckets[key].Count++
	}
	var result []repository.WorkflowStatusCount
	for _, bucket := range buckets {
		result = append(result, *bucket)
	}
	return result, nil
}

func (r *memApprovalRepo) workflowSteps(workflowID string) []domain.ApprovalStep {
	var steps []domain.ApprovalStep
	for _, step := range r.steps {
		if step.WorkflowID == workflowID {
			steps = append(steps, *step)
		}
	}
	sort.Slice(steps, func(i, j int) bool {
		if steps[i].StepOrder != steps[j].StepOrder {
			return steps[i].StepOrder < steps[j].StepOrder
		}
		return steps[i].ID < steps[j].ID
	})
	return steps
}

type memTicketRepo struct {
	byID map[string]*domain.Ticket
}

func newMemTicketRepo() *memTicketRepo {
	return &memTicketRepo{byID: make(map[string]*domain.Ticket)}
}

func (r *memTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	if ticket.ID == "" {
		ticket.ID = fmt.Sprintf("tck-%d", len(r.byID)+1)
	}
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	copied := *ticket
	r.byID[ticket.ID] = &copied
	return nil
}

func (r *memTicketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	if _, ok := r.byID[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	copied := *ticket
	r.byID[ticket.ID] = &copied
	return nil
}

func (r *memTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	stored, ok := r.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	ticket := *stored
	return &ticket, nil
}

func (r *memTicketRepo) SetStatus(ctx context.Context, id string, status domain.TicketStatus) error {
	stored, ok := r.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	stored.Status = status
	stored.UpdatedAt = time.Now()
	return nil
}

func (r *memTicketRepo) ListByRequester(ctx context.Context, requesterID string, limit, offset int) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for _, ticket := range r.byID {
		if ticket.RequesterID == requesterID {
			result = append(result, *ticket)
		}
	}
	return result, nil
}

type memUserRepo struct {
	byID map[string]*domain.User
}

func newMemUserRepo(users ...*domain.User) *memUserRepo {
	repo := &memUserRepo{byID: make(map[string]*domain.User)}
	for _, user := range users {
		repo.byID[user.ID] = user
	}
	return repo
}

func (r *memUserRepo) Create(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = fmt.Sprintf("usr-%d", len(r.byID)+1)
	}
	copied := *user
	r.byID[user.ID] = &copied
	return nil
}

func (r *memUserRepo) Update(ctx context.Context, user *domain.User) error {
	if _, ok := r.byID[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	copied := *user
	r.byID[user.ID] = &copied
	return nil
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	stored, ok := r.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	user := *stored
	return &user, nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	for _, user := range r.byID {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memUserRepo) ListActiveByRole(ctx context.Context, role domain.UserRole, limit int) ([]domain.User, error) {
	var result []domain.User
	for _, user := range r.byID {
		if user.Role == role && user.Active {
			result = append(result, *user)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

type memCommentRepo struct {
	comments []domain.TicketComment
}

func (r *memCommentRepo) Create(ctx context.Context, comment *domain.TicketComment) error {
	comment.ID = fmt.Sprintf("cmt-%d", len(r.comments)+1)
	comment.CreatedAt = time.Now()
	r.comments = append(r.comments, *comment)
	return nil
}

func (r *memCommentRepo) ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketComment, error) {
	var result []domain.TicketComment
	for _, comment := range r.comments {
		if comment.TicketID == ticketID {
			result = append(result, comment)
		}
	}
	return result, nil
}

func (r *memCommentRepo) bodies(ticketID string) []string {
	var result []string
	for _, comment := range r.comments {
		if comment.TicketID == ticketID {
			result = append(result, comment.Body)
		}
	}
	return result
}

type memHistoryRepo struct {
	entries []domain.TicketHistory
}

func (r *memHistoryRepo) Create(ctx context.Context, history *domain.TicketHistory) error {
	history.ID = fmt.Sprintf("his-%d", len(r.entries)+1)
	history.CreatedAt = time.Now()
	r.entries = append(r.entries, *history)
	return nil
}

func (r *memHistoryRepo) ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketHistory, error) {
	var result []domain.TicketHistory
	for _, entry := range r.entries {
		if entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	return result, nil
}

type stubApproverPolicy struct {
	ids []string
	err error
}

func (p *stubApproverPolicy) Resolve(ctx context.Context, ticket *domain.Ticket) ([]string, error) {
	return p.ids, p.err
}

type stubEscalationPolicy struct {
	target *domain.User
	err    error
}

func (p *stubEscalationPolicy) Target(ctx context.Context, ticket *domain.Ticket, step *domain.ApprovalStep) (*domain.User, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.target, nil
}

var _ repository.ApprovalRepository = (*memApprovalRepo)(nil)
var _ repository.TicketRepository = (*memTicketRepo)(nil)
var _ repository.UserRepository = (*memUserRepo)(nil)
var _ repository.CommentRepository = (*memCommentRepo)(nil)
var _ repository.TicketHistoryRepository = (*memHistoryRepo)(nil)
var _ policy.ApproverPolicy = (*stubApproverPolicy)(nil)
var _ policy.EscalationPolicy = (*stubEscalationPolicy)(nil)
