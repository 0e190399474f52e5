package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/approval-service/internal/domain"
	"github.com/spec-kit/approval-service/internal/events"
	"github.com/spec-kit/approval-service/internal/repository"
	apperrors "github.com/spec-kit/approval-service/pkg/errorutil"
)

// TicketService manages the request tickets that approval workflows run
// against.
type TicketService struct {
	tickets    repository.TicketRepository
	comments   repository.CommentRepository
	history    repository.TicketHistoryRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	CommentRepo repository.CommentRepository
	HistoryRepo repository.TicketHistoryRepository
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		comments:   deps.CommentRepo,
		history:    deps.HistoryRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title        string
	Description  string
	TicketType   domain.TicketType
	Priority     domain.TicketPriority
	DepartmentID *string
	CostEstimate *float64
	Tags         []string
}

// TicketDetail pairs a ticket with its comment trail.
type TicketDetail struct {
	Ticket   *domain.Ticket
	Comments []domain.TicketComment
}

// CreateTicket creates a draft ticket for the requester.
func (s *TicketService) CreateTicket(ctx context.Context, requesterID string, input TicketCreateInput) (*domain.Ticket, error) {
	if input.CostEstimate != nil && *input.CostEstimate < 0 {
		return nil, apperrors.NewValidationError("cost estimate cannot be negative", nil)
	}

	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}

	ticket := &domain.Ticket{
		ExternalKey:  newTicketKey(),
		Title:        input.Title,
		Description:  input.Description,
		TicketType:   input.TicketType,
		Priority:     priority,
		Status:       domain.TicketStatusDraft,
		RequesterID:  requesterID,
		DepartmentID: input.DepartmentID,
		CostEstimate: input.CostEstimate,
		Tags:         input.Tags,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// GetTicket returns a ticket with its comments.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*TicketDetail, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}

	comments, err := s.comments.ListByTicket(ctx, ticketID, 100, 0)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &TicketDetail{Ticket: ticket, Comments: comments}, nil
}

// SubmitTicket moves a draft ticket into SUBMITTED, making it eligible
// for an approval workflow.
func (s *TicketService) SubmitTicket(ctx context.Context, ticketID, actorID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if ticket.RequesterID != actorID {
		return nil, apperrors.NewForbidden("only the requester can submit a ticket")
	}
	if ticket.Status != domain.TicketStatusDraft {
		return nil, apperrors.NewConflict("only draft tickets can be submitted", map[string]any{
			"ticket_id": ticketID,
			"status":    ticket.Status,
		})
	}

	if err := s.tickets.SetStatus(ctx, ticketID, domain.TicketStatusSubmitted); err != nil {
		return nil, apperrors.MapError(err)
	}
	oldStatus := ticket.Status
	ticket.Status = domain.TicketStatusSubmitted

	if s.history != nil {
		entry := &domain.TicketHistory{
			TicketID:      ticket.ID,
			ChangedByType: domain.AuthorTypeUser,
			ChangedByID:   &actorID,
			ChangeType:    domain.ChangeTypeStatus,
			OldValue:      map[string]any{"status": oldStatus},
			NewValue:      map[string]any{"status": ticket.Status},
		}
		if err := s.history.Create(ctx, entry); err != nil {
			s.logger.Warn("record submit history", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}
	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			ID:       newEventID(),
			Type:     events.EventTicketStatusChanged,
			TicketID: ticket.ID,
			Actor:    events.Actor{UserID: &actorID},
			Payload: events.TicketStatusChangedPayload{
				OldStatus: oldStatus,
				NewStatus: ticket.Status,
			},
		})
	}
	return ticket, nil
}

// ListUserTickets returns the requester's tickets, newest first.
func (s *TicketService) ListUserTickets(ctx context.Context, requesterID string, limit, offset int) ([]domain.Ticket, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	tickets, err := s.tickets.ListByRequester(ctx, requesterID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

func newTicketKey() string {
	return fmt.Sprintf("TCK-%s", strings.ToUpper(uuid.NewString()[:8]))
}

func newEventID() string {
	return uuid.NewString()
}
