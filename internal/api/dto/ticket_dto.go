package dto

import (
	"time"

	"github.com/spec-kit/approval-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title        string                `json:"title" validate:"required,max=200"`
	Description  string                `json:"description" validate:"required"`
	TicketType   domain.TicketType     `json:"ticket_type" validate:"required"`
	Priority     domain.TicketPriority `json:"priority"`
	DepartmentID *string               `json:"department_id"`
	CostEstimate *float64              `json:"cost_estimate" validate:"omitempty,gte=0"`
	Tags         []string              `json:"tags"`
}

// TicketSummary response.
type TicketSummary struct {
	ID           string                `json:"id"`
	ExternalKey  string                `json:"external_key"`
	Title        string                `json:"title"`
	TicketType   domain.TicketType     `json:"ticket_type"`
	Status       domain.TicketStatus   `json:"status"`
	Priority     domain.TicketPriority `json:"priority"`
	DepartmentID *string               `json:"department_id"`
	CostEstimate *float64              `json:"cost_estimate"`
	Tags         []string              `json:"tags"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info with its comment trail.
type TicketDetailResponse struct {
	ID           string                  `json:"id"`
	ExternalKey  string                  `json:"external_key"`
	Title        string                  `json:"title"`
	Description  string                  `json:"description"`
	TicketType   domain.TicketType       `json:"ticket_type"`
	Status       domain.TicketStatus     `json:"status"`
	Priority     domain.TicketPriority   `json:"priority"`
	RequesterID  string                  `json:"requester_id"`
	AssigneeID   *string                 `json:"assignee_id"`
	DepartmentID *string                 `json:"department_id"`
	CostEstimate *float64                `json:"cost_estimate"`
	Tags         []string                `json:"tags"`
	CreatedAt    time.Time               `json:"created_at"`
	UpdatedAt    time.Time               `json:"updated_at"`
	ClosedAt     *time.Time              `json:"closed_at"`
	Comments     []TicketCommentResponse `json:"comments"`
}

// TicketCommentResponse represents one audit or user comment.
type TicketCommentResponse struct {
	ID         string                   `json:"id"`
	AuthorType domain.CommentAuthorType `json:"author_type"`
	AuthorID   *string                  `json:"author_id"`
	Body       string                   `json:"body"`
	IsInternal bool                     `json:"is_internal"`
	CreatedAt  time.Time                `json:"created_at"`
}
