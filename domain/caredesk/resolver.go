package caredesk

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	contractx "github.com/omniflowhq/omniflow/agent/contract"
	"github.com/omniflowhq/omniflow/domain/shopcore"
)

// Resolver surfaces support history. Only the newest ticket is reported;
// older history is noise for a live conversation.
type Resolver struct {
	db *bun.DB
}

func NewResolver(db *bun.DB) *Resolver {
	return &Resolver{db: db}
}

func (r *Resolver) Resolve(ctx context.Context, op contractx.Op, args map[string]any) (contractx.Record, error) {
	switch op {
	case contractx.OpLatestTicket:
		return r.latestTicket(ctx, contractx.StringArg(args, "user_email"), contractx.Int64Arg(args, "order_id"))
	default:
		return nil, fmt.Errorf("%w: caredesk does not support op %q", contractx.ErrValidation, op)
	}
}

func (r *Resolver) latestTicket(ctx context.Context, email string, orderID int64) (contractx.Record, error) {
	if email == "" {
		return nil, contractx.ErrIdentityMissing
	}

	var user shopcore.User
	err := r.db.NewSelect().
		Model(&user).
		Where("lower(u.email) = lower(?)", email).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return contractx.Record{"found": false, "reason": "unknown_user"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lookup user: %v", contractx.ErrResolverUnavailable, err)
	}

	var ticket Ticket
	q := r.db.NewSelect().
		Model(&ticket).
		Where("t.user_id = ?", user.ID)
	if orderID != 0 {
		q = q.Where("t.reference_id = ?", fmt.Sprintf("%d", orderID))
	}
	err = q.OrderExpr("t.created_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return contractx.Record{"found": false, "reason": "no_ticket"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lookup ticket: %v", contractx.ErrResolverUnavailable, err)
	}

	rec := contractx.Record{
		"found":      true,
		"ticket_id":  ticket.ID,
		"issue_type": ticket.IssueType,
		"status":     ticket.Status,
		"created_at": ticket.CreatedAt.Format(time.RFC3339),
	}

	var messages []TicketMessage
	err = r.db.NewSelect().
		Model(&messages).
		Where("tm.ticket_id = ?", ticket.ID).
		OrderExpr("tm.timestamp ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: lookup ticket messages: %v", contractx.ErrResolverUnavailable, err)
	}
	if len(messages) > 0 {
		out := make([]map[string]any, 0, len(messages))
		for _, msg := range messages {
			out = append(out, map[string]any{
				"sender":    msg.Sender,
				"content":   msg.Content,
				"timestamp": msg.Timestamp.Format(time.RFC3339),
			})
		}
		rec["messages"] = out
	}

	return rec, nil
}
