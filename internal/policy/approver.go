// Package policy holds the pluggable routing rules of the approval engine:
// who must approve a ticket and who receives an overdue step. Threshold
// values and fallback order come from configuration, not constants.
package policy

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/approval-service/internal/config"
	"github.com/spec-kit/approval-service/internal/domain"
	"github.com/spec-kit/approval-service/internal/repository"
)

// ApproverPolicy determines the ordered approver list for a ticket when the
// caller supplies none. Resolution must be deterministic for identical input.
type ApproverPolicy interface {
	Resolve(ctx context.Context, ticket *domain.Ticket) ([]string, error)
}

// RuleBasedApproverPolicy routes by department manager, cost bands and
// privileged ticket types.
type RuleBasedApproverPolicy struct {
	cfg         config.ApprovalConfig
	departments repository.DepartmentRepository
}

// NewRuleBasedApproverPolicy builds the default policy.
func NewRuleBasedApproverPolicy(cfg config.ApprovalConfig, departments repository.DepartmentRepository) *RuleBasedApproverPolicy {
	return &RuleBasedApproverPolicy{cfg: cfg, departments: departments}
}

// Resolve returns approver ids in routing order: department manager first,
// then finance and executive sign-off as the cost estimate crosses the
// configured bands, then the specialist approver for privileged ticket
// types. Duplicates collapse to the earliest position.
func (p *RuleBasedApproverPolicy) Resolve(ctx context.Context, ticket *domain.Ticket) ([]string, error) {
	var approvers []string

	if ticket.DepartmentID != nil {
		dept, err := p.departments.GetByID(ctx, *ticket.DepartmentID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		if dept != nil && dept.IsActive && dept.ManagerID != nil {
			approvers = append(approvers, *dept.ManagerID)
		}
	}

	if ticket.CostEstimate != nil {
		cost := *ticket.CostEstimate
		if cost > p.cfg.FinanceCostThreshold && p.cfg.FinanceApproverID != "" {
			approvers = append(approvers, p.cfg.FinanceApproverID)
		}
		if cost > p.cfg.ExecutiveCostThreshold && p.cfg.ExecutiveApproverID != "" {
			approvers = append(approvers, p.cfg.ExecutiveApproverID)
		}
	}

	if p.privileged(ticket.TicketType) && p.cfg.SpecialistApproverID != "" {
		approvers = append(approvers, p.cfg.SpecialistApproverID)
	}

	return dedupe(approvers), nil
}

func (p *RuleBasedApproverPolicy) privileged(ticketType domain.TicketType) bool {
	for _, t := range p.cfg.PrivilegedTicketTypes {
		if t == ticketType {
			return true
		}
	}
	return false
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
