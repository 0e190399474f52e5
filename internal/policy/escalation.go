package policy

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/approval-service/internal/domain"
	"github.com/spec-kit/approval-service/internal/repository"
)

// ErrNoEscalationTarget means no valid target could be resolved; the
// caller leaves the step pending rather than half-escalating it.
var ErrNoEscalationTarget = errors.New("no escalation target available")

// EscalationPolicy resolves where an overdue step is re-routed.
type EscalationPolicy interface {
	Target(ctx context.Context, ticket *domain.Ticket, step *domain.ApprovalStep) (*domain.User, error)
}

// ManagerThenAdminPolicy prefers the ticket's department manager and falls
// back to the administrative approver pool.
type ManagerThenAdminPolicy struct {
	departments repository.DepartmentRepository
	users       repository.UserRepository
}

// NewManagerThenAdminPolicy builds the default escalation policy.
func NewManagerThenAdminPolicy(departments repository.DepartmentRepository, users repository.UserRepository) *ManagerThenAdminPolicy {
	return &ManagerThenAdminPolicy{departments: departments, users: users}
}

// Target never escalates a step back to its current approver: when the
// manager is the overdue approver, resolution moves on to the admin pool.
func (p *ManagerThenAdminPolicy) Target(ctx context.Context, ticket *domain.Ticket, step *domain.ApprovalStep) (*domain.User, error) {
	if ticket.DepartmentID != nil {
		dept, err := p.departments.GetByID(ctx, *ticket.DepartmentID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		if dept != nil && dept.IsActive && dept.ManagerID != nil && *dept.ManagerID != step.ApproverID {
			manager, err := p.users.GetByID(ctx, *dept.ManagerID)
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return nil, err
			}
			if manager.CanApprove() {
				return manager, nil
			}
		}
	}

	admins, err := p.users.ListActiveByRole(ctx, domain.RoleAdmin, 10)
	if err != nil {
		return nil, err
	}
	for i := range admins {
		if admins[i].ID != step.ApproverID && admins[i].CanApprove() {
			return &admins[i], nil
		}
	}
	return nil, ErrNoEscalationTarget
}
