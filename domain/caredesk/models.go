package caredesk

import (
	"time"

	"github.com/uptrace/bun"
)

type Ticket struct {
	bun.BaseModel `bun:"table:caredesk_tickets,alias:t"`

	ID          int64     `bun:"id,pk,autoincrement"`
	UserID      int64     `bun:"user_id,notnull"`
	ReferenceID string    `bun:"reference_id,notnull"`
	IssueType   string    `bun:"issue_type,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
	Status      string    `bun:"status,notnull"`
}

type TicketMessage struct {
	bun.BaseModel `bun:"table:caredesk_ticket_messages,alias:tm"`

	ID        int64     `bun:"id,pk,autoincrement"`
	TicketID  int64     `bun:"ticket_id,notnull"`
	Sender    string    `bun:"sender,notnull"`
	Content   string    `bun:"content,notnull"`
	Timestamp time.Time `bun:"timestamp,notnull"`
}

type SatisfactionSurvey struct {
	bun.BaseModel `bun:"table:caredesk_satisfaction_surveys,alias:ss"`

	ID       int64  `bun:"id,pk,autoincrement"`
	TicketID int64  `bun:"ticket_id,notnull"`
	Rating   int    `bun:"rating,notnull"`
	Comments string `bun:"comments"`
}
