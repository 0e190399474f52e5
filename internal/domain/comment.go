package domain

import "time"

// CommentAuthorType indicates who authored a comment.
type CommentAuthorType string

const (
	AuthorTypeUser   CommentAuthorType = "USER"
	AuthorTypeSystem CommentAuthorType = "SYSTEM"
)

// TicketComment captures the communication thread on a ticket. System
// comments double as the human-readable audit trail: the approval engine
// appends one for every meaningful workflow transition.
type TicketComment struct {
	ID         string
	TicketID   string
	AuthorType CommentAuthorType
	AuthorID   *string
	Body       string
	IsInternal bool
	CreatedAt  time.Time
}
