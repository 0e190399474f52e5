package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/approval-service/internal/config"
	"github.com/spec-kit/approval-service/internal/events"
)

// NotificationService listens for workflow events and delivers
// notifications. Delivery is a log-only stub until a mail provider is
// wired in; the subscription surface is the part that matters.
type NotificationService struct {
	cfg    config.NotificationConfig
	logger *zap.Logger
}

// NewNotificationService constructs the service.
func NewNotificationService(cfg config.NotificationConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{cfg: cfg, logger: logger}
}

// Register subscribes the service to the events it notifies on.
func (s *NotificationService) Register(dispatcher events.Dispatcher) {
	dispatcher.Subscribe(events.EventWorkflowCreated, s.onWorkflowCreated)
	dispatcher.Subscribe(events.EventWorkflowCompleted, s.onWorkflowCompleted)
	dispatcher.Subscribe(events.EventWorkflowCancelled, s.onWorkflowCancelled)
	dispatcher.Subscribe(events.EventStepEscalated, s.onStepEscalated)
}

func (s *NotificationService) onWorkflowCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.WorkflowCreatedPayload)
	if !ok {
		return nil
	}
	for _, approverID := range payload.ApproverIDs {
		s.deliver("approval_requested", approverID,
			zap.String("ticket_id", event.TicketID),
			zap.String("workflow_id", payload.WorkflowID),
		)
	}
	return nil
}

func (s *NotificationService) onWorkflowCompleted(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.WorkflowCompletedPayload)
	if !ok {
		return nil
	}
	s.deliver("workflow_completed", "",
		zap.String("ticket_id", event.TicketID),
		zap.String("workflow_id", payload.WorkflowID),
		zap.String("outcome", string(payload.Outcome)),
	)
	return nil
}

func (s *NotificationService) onWorkflowCancelled(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.WorkflowCancelledPayload)
	if !ok {
		return nil
	}
	s.deliver("workflow_cancelled", "",
		zap.String("ticket_id", event.TicketID),
		zap.String("workflow_id", payload.WorkflowID),
	)
	return nil
}

func (s *NotificationService) onStepEscalated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.StepEscalatedPayload)
	if !ok {
		return nil
	}
	s.deliver("step_escalated", payload.EscalatedToID,
		zap.String("ticket_id", event.TicketID),
		zap.String("workflow_id", payload.WorkflowID),
		zap.String("original_approver", payload.OriginalUserID),
	)
	return nil
}

func (s *NotificationService) deliver(kind, recipientID string, fields ...zap.Field) {
	fields = append(fields,
		zap.String("kind", kind),
		zap.String("recipient", recipientID),
		zap.String("from", s.cfg.EmailFrom),
	)
	s.logger.Info("notification dispatched", fields...)
}
