package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/approval-service/internal/domain"
)

// TicketRepository encapsulates ticket persistence. The approval engine
// consumes it as a narrow bridge: it reads ticket attributes for approver
// resolution and writes status transitions only.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	SetStatus(ctx context.Context, id string, status domain.TicketStatus) error
	ListByRequester(ctx context.Context, requesterID string, limit, offset int) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, external_key, title, description, ticket_type, status, priority,
       requester_id, assignee_id, department_id, cost_estimate, tags,
       created_at, updated_at, resolved_at, closed_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (external_key, title, description, ticket_type, status, priority,
            requester_id, assignee_id, department_id, cost_estimate, tags)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.ExternalKey,
		ticket.Title,
		ticket.Description,
		ticket.TicketType,
		ticket.Status,
		ticket.Priority,
		ticket.RequesterID,
		ticket.AssigneeID,
		ticket.DepartmentID,
		ticket.CostEstimate,
		ticket.Tags,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET title=$1, description=$2, ticket_type=$3, status=$4, priority=$5,
            assignee_id=$6, department_id=$7, cost_estimate=$8, tags=$9,
            resolved_at=$10, closed_at=$11, updated_at=NOW()
        WHERE id=$12`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.TicketType,
		ticket.Status,
		ticket.Priority,
		ticket.AssigneeID,
		ticket.DepartmentID,
		ticket.CostEstimate,
		ticket.Tags,
		ticket.ResolvedAt,
		ticket.ClosedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&ticket.ID,
		&ticket.ExternalKey,
		&ticket.Title,
		&ticket.Description,
		&ticket.TicketType,
		&ticket.Status,
		&ticket.Priority,
		&ticket.RequesterID,
		&ticket.AssigneeID,
		&ticket.DepartmentID,
		&ticket.CostEstimate,
		&ticket.Tags,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) SetStatus(ctx context.Context, id string, status domain.TicketStatus) error {
	query := `UPDATE tickets SET status=$1, updated_at=NOW() WHERE id=$2`
	args := []any{status, id}
	if status == domain.TicketStatusClosed {
		query = `UPDATE tickets SET status=$1, closed_at=$2, updated_at=NOW() WHERE id=$3`
		args = []any{status, time.Now(), id}
	}
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) ListByRequester(ctx context.Context, requesterID string, limit, offset int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	const query = `SELECT ` + ticketColumns + `
        FROM tickets WHERE requester_id=$1
        ORDER BY updated_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, requesterID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.ExternalKey,
			&ticket.Title,
			&ticket.Description,
			&ticket.TicketType,
			&ticket.Status,
			&ticket.Priority,
			&ticket.RequesterID,
			&ticket.AssigneeID,
			&ticket.DepartmentID,
			&ticket.CostEstimate,
			&ticket.Tags,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
			&ticket.ResolvedAt,
			&ticket.ClosedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
