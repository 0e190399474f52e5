package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusDraft       TicketStatus = "DRAFT"
	TicketStatusSubmitted   TicketStatus = "SUBMITTED"
	TicketStatusInReview    TicketStatus = "IN_REVIEW"
	TicketStatusPendingInfo TicketStatus = "PENDING_INFO"
	TicketStatusApproved    TicketStatus = "APPROVED"
	TicketStatusRejected    TicketStatus = "REJECTED"
	TicketStatusInProgress  TicketStatus = "IN_PROGRESS"
	TicketStatusCompleted   TicketStatus = "COMPLETED"
	TicketStatusClosed      TicketStatus = "CLOSED"
)

// TicketPriority enumerates urgency levels.
type TicketPriority string

const (
	TicketPriorityCritical TicketPriority = "CRITICAL"
	TicketPriorityHigh     TicketPriority = "HIGH"
	TicketPriorityMedium   TicketPriority = "MEDIUM"
	TicketPriorityLow      TicketPriority = "LOW"
)

// TicketType categorizes requests; some types always require specialist sign-off.
type TicketType string

const (
	TicketTypeITSupport   TicketType = "IT_SUPPORT"
	TicketTypeITHardware  TicketType = "IT_HARDWARE"
	TicketTypeITSoftware  TicketType = "IT_SOFTWARE"
	TicketTypeHR          TicketType = "HR"
	TicketTypeFinance     TicketType = "FINANCE"
	TicketTypeFacility    TicketType = "FACILITY"
	TicketTypeProcurement TicketType = "PROCUREMENT"
	TicketTypeLegal       TicketType = "LEGAL"
	TicketTypeCustom      TicketType = "CUSTOM"
)

// Ticket is the aggregate for enterprise requests subject to approval.
type Ticket struct {
	ID           string
	ExternalKey  string
	Title        string
	Description  string
	TicketType   TicketType
	Status       TicketStatus
	Priority     TicketPriority
	RequesterID  string
	AssigneeID   *string
	DepartmentID *string
	CostEstimate *float64
	Tags         []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ResolvedAt   *time.Time
	ClosedAt     *time.Time
}
