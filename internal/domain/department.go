package domain

import "time"

// Department represents a high-level organizational unit. The manager
// reference feeds approver resolution and escalation targeting.
type Department struct {
	ID          string
	Name        string
	Description string
	ManagerID   *string
	BudgetLimit float64
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
