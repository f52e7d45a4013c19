package shipstream

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	contractx "github.com/omniflowhq/omniflow/agent/contract"
	identx "github.com/omniflowhq/omniflow/agent/identifier"
)

// StatusDelivered gates both the ETA and return eligibility: an undelivered
// shipment has neither a firm arrival date nor a returnable item.
const StatusDelivered = "Delivered"

const etaUnavailable = "Not available"

// Resolver answers shipment lifecycle questions and drives the return flow
// against the logistics schema.
type Resolver struct {
	db  *bun.DB
	now func() time.Time
}

func NewResolver(db *bun.DB, now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{db: db, now: now}
}

func (r *Resolver) Resolve(ctx context.Context, op contractx.Op, args map[string]any) (contractx.Record, error) {
	switch op {
	case contractx.OpLookup:
		return r.lookup(ctx, contractx.StringArg(args, "tracking_number"))
	case contractx.OpTrackingForOrder:
		return r.trackingForOrder(ctx, contractx.Int64Arg(args, "order_id"))
	case contractx.OpCheckReturnEligibility:
		return r.checkReturnEligibility(ctx, contractx.StringArg(args, "tracking_number"))
	case contractx.OpInitiateReturn:
		return r.initiateReturn(ctx, contractx.StringArg(args, "tracking_number"))
	case contractx.OpSubmitReturnImage:
		return r.submitReturnImage(ctx,
			contractx.StringArg(args, "tracking_number"),
			contractx.StringArg(args, "user_email"),
			contractx.BytesArg(args, "image"))
	case contractx.OpCheckReturnStatus:
		return r.checkReturnStatus(ctx, contractx.StringArg(args, "tracking_number"))
	default:
		return nil, fmt.Errorf("%w: shipstream does not support op %q", contractx.ErrValidation, op)
	}
}

// lookup dispatches on the identifier kind. Each kind reads its own table;
// an unknown identifier degrades to a found:false record.
func (r *Resolver) lookup(ctx context.Context, tracking string) (contractx.Record, error) {
	id, err := identx.Parse(tracking)
	if err != nil {
		return nil, fmt.Errorf("%w: tracking number", contractx.ErrIdentifierMissing)
	}

	switch id.Kind {
	case identx.KindForward:
		return r.lookupForward(ctx, id.String())
	case identx.KindReverse:
		return r.lookupReverse(ctx, id.String())
	case identx.KindNDR:
		return r.lookupNdr(ctx, id.String())
	case identx.KindExchange:
		return r.lookupExchange(ctx, id.String())
	default:
		return contractx.Record{"tracking_number": id.String(), "found": false, "unsupported_type": true}, nil
	}
}

func (r *Resolver) lookupForward(ctx context.Context, tracking string) (contractx.Record, error) {
	var shipment Shipment
	err := r.db.NewSelect().
		Model(&shipment).
		Where("lower(s.tracking_number) = lower(?)", tracking).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return contractx.Record{"tracking_number": tracking, "found": false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: forward lookup: %v", contractx.ErrResolverUnavailable, err)
	}

	rec := contractx.Record{
		"type":              "forward",
		"found":             true,
		"tracking_number":   shipment.TrackingNumber,
		"status":            shipment.Status,
		"customer":          shipment.CustomerName,
		"amount":            shipment.Amount,
		"estimated_arrival": etaText(shipment),
	}

	// Linked lifecycle events annotate the forward record so one lookup
	// tells the whole story of the shipment.
	reverse, err := r.latestReverse(ctx, shipment.TrackingNumber)
	if err != nil {
		return nil, err
	}
	if reverse != nil {
		rec["return_created"] = true
		rec["reverse_number"] = reverse.ReverseNumber
		rec["refund_status"] = reverse.RefundStatus
		rec["return_reason"] = reverse.Reason
		rec["return_date"] = reverse.ReturnDate.Format("2006-01-02")
	} else {
		rec["return_created"] = false
	}

	ndr, err := r.latestNdr(ctx, shipment.TrackingNumber)
	if err != nil {
		return nil, err
	}
	if ndr != nil {
		rec["ndr_number"] = ndr.NdrNumber
		rec["ndr_issue"] = ndr.Issue
		rec["ndr_attempts"] = ndr.Attempts
		rec["ndr_outcome"] = ndr.FinalOutcome
		rec["ndr_date"] = ndr.NdrDate.Format("2006-01-02")
	}

	exchange, err := r.latestExchange(ctx, shipment.TrackingNumber)
	if err != nil {
		return nil, err
	}
	if exchange != nil {
		rec["exchange_number"] = exchange.ExchangeNumber
		rec["exchange_status"] = exchange.Status
		rec["exchange_date"] = exchange.ExchangeDate.Format("2006-01-02")
		rec["new_item"] = exchange.NewItem
	}

	return rec, nil
}

func (r *Resolver) lookupReverse(ctx context.Context, tracking string) (contractx.Record, error) {
	var reverse ReverseShipment
	err := r.db.NewSelect().
		Model(&reverse).
		Where("rs.reverse_number = ?", tracking).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return contractx.Record{"tracking_number": tracking, "found": false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reverse lookup: %v", contractx.ErrResolverUnavailable, err)
	}

	return contractx.Record{
		"type":           "reverse",
		"found":          true,
		"reverse_number": reverse.ReverseNumber,
		"original_awb":   reverse.OriginalAWB,
		"return_date":    reverse.ReturnDate.Format("2006-01-02"),
		"reason":         reverse.Reason,
		"refund_status":  reverse.RefundStatus,
	}, nil
}

func (r *Resolver) lookupNdr(ctx context.Context, tracking string) (contractx.Record, error) {
	var ndr NdrEvent
	err := r.db.NewSelect().
		Model(&ndr).
		Where("ne.ndr_number = ?", tracking).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return contractx.Record{"tracking_number": tracking, "found": false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: ndr lookup: %v", contractx.ErrResolverUnavailable, err)
	}

	return contractx.Record{
		"type":          "ndr",
		"found":         true,
		"ndr_number":    ndr.NdrNumber,
		"original_awb":  ndr.OriginalAWB,
		"ndr_date":      ndr.NdrDate.Format("2006-01-02"),
		"issue":         ndr.Issue,
		"attempts":      ndr.Attempts,
		"final_outcome": ndr.FinalOutcome,
	}, nil
}

func (r *Resolver) lookupExchange(ctx context.Context, tracking string) (contractx.Record, error) {
	var exchange ExchangeShipment
	err := r.db.NewSelect().
		Model(&exchange).
		Where("es.exchange_number = ?", tracking).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return contractx.Record{"tracking_number": tracking, "found": false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: exchange lookup: %v", contractx.ErrResolverUnavailable, err)
	}

	return contractx.Record{
		"type":            "exchange",
		"found":           true,
		"exchange_number": exchange.ExchangeNumber,
		"original_awb":    exchange.OriginalAWB,
		"exchange_date":   exchange.ExchangeDate.Format("2006-01-02"),
		"new_item":        exchange.NewItem,
		"status":          exchange.Status,
	}, nil
}

func (r *Resolver) trackingForOrder(ctx context.Context, orderID int64) (contractx.Record, error) {
	if orderID == 0 {
		return nil, fmt.Errorf("%w: order id", contractx.ErrIdentifierMissing)
	}

	var shipment Shipment
	err := r.db.NewSelect().
		Model(&shipment).
		Where("s.order_id = ?", orderID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return contractx.Record{"found": false, "order_id": orderID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: shipment for order: %v", contractx.ErrResolverUnavailable, err)
	}

	rec := contractx.Record{
		"found":             true,
		"tracking_number":   shipment.TrackingNumber,
		"current_status":    shipment.Status,
		"estimated_arrival": etaText(shipment),
	}

	var event TrackingEvent
	err = r.db.NewSelect().
		Model(&event).
		Where("te.shipment_id = ?", shipment.ID).
		OrderExpr("te.timestamp DESC").
		Limit(1).
		Scan(ctx)
	if err == nil {
		rec["current_status"] = event.StatusUpdate
		rec["last_updated"] = event.Timestamp.Format(time.RFC3339)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: latest tracking event: %v", contractx.ErrResolverUnavailable, err)
	}

	return rec, nil
}

func (r *Resolver) checkReturnEligibility(ctx context.Context, tracking string) (contractx.Record, error) {
	tracking, err := forwardOnly(tracking)
	if err != nil {
		return nil, err
	}

	var shipment Shipment
	err = r.db.NewSelect().
		Model(&shipment).
		Where("lower(s.tracking_number) = lower(?)", tracking).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return contractx.Record{
			"tracking_number": tracking,
			"eligible":        false,
			"found":           false,
			"message":         fmt.Sprintf("I couldn't find shipment %s.", tracking),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: eligibility lookup: %v", contractx.ErrResolverUnavailable, err)
	}

	existing, err := r.latestReverse(ctx, tracking)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return contractx.Record{
			"tracking_number": tracking,
			"eligible":        false,
			"message": fmt.Sprintf("A return already exists for %s (%s, status: %s).",
				tracking, existing.ReverseNumber, existing.RefundStatus),
		}, nil
	}

	if shipment.Status != StatusDelivered {
		return contractx.Record{
			"tracking_number": tracking,
			"eligible":        false,
			"message":         fmt.Sprintf("%s is not eligible for return because it has not been delivered yet.", tracking),
		}, nil
	}

	return contractx.Record{
		"tracking_number": tracking,
		"eligible":        true,
		"message":         fmt.Sprintf("%s is eligible for return. Would you like to proceed? (yes/no)", tracking),
	}, nil
}

func (r *Resolver) initiateReturn(ctx context.Context, tracking string) (contractx.Record, error) {
	tracking, err := forwardOnly(tracking)
	if err != nil {
		return nil, err
	}

	var shipment Shipment
	err = r.db.NewSelect().
		Model(&shipment).
		Where("lower(s.tracking_number) = lower(?)", tracking).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return contractx.Record{"tracking_number": tracking, "found": false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: initiate return lookup: %v", contractx.ErrResolverUnavailable, err)
	}

	reverse := &ReverseShipment{
		ReverseNumber: fmt.Sprintf("REV-%d", uuid.New().ID()),
		OriginalAWB:   shipment.TrackingNumber,
		ReturnDate:    r.now().UTC(),
		Reason:        "Customer initiated return",
		RefundStatus:  "Pending",
	}
	if _, err := r.db.NewInsert().Model(reverse).Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: create reverse shipment: %v", contractx.ErrResolverUnavailable, err)
	}

	return contractx.Record{
		"tracking_number": tracking,
		"initiated":       true,
		"reverse_number":  reverse.ReverseNumber,
	}, nil
}

func (r *Resolver) submitReturnImage(ctx context.Context, tracking, userEmail string, image []byte) (contractx.Record, error) {
	tracking, err := forwardOnly(tracking)
	if err != nil {
		return nil, err
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: item condition image", contractx.ErrValidation)
	}

	reverse, err := r.latestReverse(ctx, tracking)
	if err != nil {
		return nil, err
	}
	if reverse == nil {
		return contractx.Record{"tracking_number": tracking, "found": false}, nil
	}

	receipt := &ReturnReceipt{
		ReturnID:      fmt.Sprintf("RET-%d", uuid.New().ID()),
		ReverseNumber: reverse.ReverseNumber,
		UserEmail:     userEmail,
		ImageData:     image,
		CreatedAt:     r.now().UTC(),
	}
	if _, err := r.db.NewInsert().Model(receipt).Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: store return receipt: %v", contractx.ErrResolverUnavailable, err)
	}

	reverse.RefundStatus = "Processing"
	if _, err := r.db.NewUpdate().Model(reverse).Column("refund_status").WherePK().Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: advance refund status: %v", contractx.ErrResolverUnavailable, err)
	}

	return contractx.Record{
		"tracking_number": tracking,
		"reverse_number":  reverse.ReverseNumber,
		"return_id":       receipt.ReturnID,
	}, nil
}

func (r *Resolver) checkReturnStatus(ctx context.Context, tracking string) (contractx.Record, error) {
	tracking, err := forwardOnly(tracking)
	if err != nil {
		return nil, err
	}

	var shipment Shipment
	err = r.db.NewSelect().
		Model(&shipment).
		Where("lower(s.tracking_number) = lower(?)", tracking).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return contractx.Record{
			"tracking_number": tracking,
			"found":           false,
			"message":         fmt.Sprintf("I couldn't find shipment %s.", tracking),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: return status lookup: %v", contractx.ErrResolverUnavailable, err)
	}

	reverse, err := r.latestReverse(ctx, tracking)
	if err != nil {
		return nil, err
	}
	if reverse == nil {
		return contractx.Record{
			"tracking_number": tracking,
			"order_id":        shipment.OrderID,
			"found":           false,
			"message":         fmt.Sprintf("No return has been created for %s.", tracking),
		}, nil
	}

	return contractx.Record{
		"tracking_number": tracking,
		"order_id":        shipment.OrderID,
		"found":           true,
		"reverse_number":  reverse.ReverseNumber,
		"refund_status":   reverse.RefundStatus,
		"message": fmt.Sprintf("A return exists for %s (%s, status: %s).",
			tracking, reverse.ReverseNumber, reverse.RefundStatus),
	}, nil
}

func (r *Resolver) latestReverse(ctx context.Context, tracking string) (*ReverseShipment, error) {
	var reverse ReverseShipment
	err := r.db.NewSelect().
		Model(&reverse).
		Where("lower(rs.original_awb) = lower(?)", tracking).
		OrderExpr("rs.id DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reverse shipment lookup: %v", contractx.ErrResolverUnavailable, err)
	}
	return &reverse, nil
}

func (r *Resolver) latestNdr(ctx context.Context, tracking string) (*NdrEvent, error) {
	var ndr NdrEvent
	err := r.db.NewSelect().
		Model(&ndr).
		Where("lower(ne.original_awb) = lower(?)", tracking).
		OrderExpr("ne.id DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: ndr lookup: %v", contractx.ErrResolverUnavailable, err)
	}
	return &ndr, nil
}

func (r *Resolver) latestExchange(ctx context.Context, tracking string) (*ExchangeShipment, error) {
	var exchange ExchangeShipment
	err := r.db.NewSelect().
		Model(&exchange).
		Where("lower(es.original_awb) = lower(?)", tracking).
		OrderExpr("es.id DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: exchange lookup: %v", contractx.ErrResolverUnavailable, err)
	}
	return &exchange, nil
}

// etaText applies the arrival-date discipline: a date is only quoted once
// the shipment is delivered, everything earlier is an estimate we refuse to
// state as fact.
func etaText(shipment Shipment) string {
	if shipment.Status == StatusDelivered && !shipment.EstimatedArrival.IsZero() {
		return shipment.EstimatedArrival.Format("2006-01-02")
	}
	return etaUnavailable
}

func forwardOnly(tracking string) (string, error) {
	id, err := identx.Parse(tracking)
	if err != nil || id.Kind != identx.KindForward {
		return "", fmt.Errorf("%w: forward tracking number", contractx.ErrIdentifierMissing)
	}
	return id.String(), nil
}
