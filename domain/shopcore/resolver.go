package shopcore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	contractx "github.com/omniflowhq/omniflow/agent/contract"
)

// Resolver answers user, product, and order questions from the commerce
// schema. Every lookup is scoped to the requesting user's email.
type Resolver struct {
	db *bun.DB
}

func NewResolver(db *bun.DB) *Resolver {
	return &Resolver{db: db}
}

func (r *Resolver) Resolve(ctx context.Context, op contractx.Op, args map[string]any) (contractx.Record, error) {
	switch op {
	case contractx.OpLookup:
		return r.lookupUser(ctx, contractx.StringArg(args, "user_email"))
	case contractx.OpOrderForUserProduct:
		return r.orderForUserProduct(ctx, contractx.StringArg(args, "user_email"), contractx.StringArg(args, "product_name"))
	case contractx.OpOrderByID:
		return r.orderByID(ctx, contractx.Int64Arg(args, "order_id"), contractx.StringArg(args, "user_email"))
	case contractx.OpOrderOwner:
		return r.orderOwner(ctx, contractx.Int64Arg(args, "order_id"))
	default:
		return nil, fmt.Errorf("%w: shopcore does not support op %q", contractx.ErrValidation, op)
	}
}

func (r *Resolver) lookupUser(ctx context.Context, email string) (contractx.Record, error) {
	if email == "" {
		return nil, contractx.ErrIdentityMissing
	}

	var user User
	err := r.db.NewSelect().
		Model(&user).
		Where("lower(u.email) = lower(?)", email).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return contractx.Record{"found": false, "email": email}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lookup user: %v", contractx.ErrResolverUnavailable, err)
	}

	return contractx.Record{
		"found":          true,
		"user_id":        user.ID,
		"name":           user.Name,
		"email":          user.Email,
		"premium_status": user.PremiumStatus,
	}, nil
}

// orderForUserProduct resolves the user's most recent order of a product.
// The product match is a case-insensitive substring, same as the storefront
// search behaves.
func (r *Resolver) orderForUserProduct(ctx context.Context, email, productName string) (contractx.Record, error) {
	if email == "" {
		return nil, contractx.ErrIdentityMissing
	}
	if strings.TrimSpace(productName) == "" {
		return nil, fmt.Errorf("%w: product name", contractx.ErrIdentifierMissing)
	}

	var user User
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

	var product Product
	err = r.db.NewSelect().
		Model(&product).
		Where("p.name ILIKE ?", "%"+productName+"%").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return contractx.Record{"found": false, "reason": "unknown_product", "product_name": productName}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lookup product: %v", contractx.ErrResolverUnavailable, err)
	}

	var order Order
	err = r.db.NewSelect().
		Model(&order).
		Where("o.user_id = ? AND o.product_id = ?", user.ID, product.ID).
		OrderExpr("o.order_date DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return contractx.Record{"found": false, "reason": "no_order", "product_name": product.Name}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lookup order: %v", contractx.ErrResolverUnavailable, err)
	}

	return contractx.Record{
		"found":         true,
		"user_id":       user.ID,
		"product_id":    product.ID,
		"order_id":      order.ID,
		"order_date":    order.OrderDate.Format("2006-01-02"),
		"order_status":  order.Status,
		"product_name":  product.Name,
		"product_price": product.Price,
	}, nil
}

func (r *Resolver) orderByID(ctx context.Context, orderID int64, email string) (contractx.Record, error) {
	if orderID == 0 {
		return nil, fmt.Errorf("%w: order id", contractx.ErrIdentifierMissing)
	}

	var order Order
	err := r.db.NewSelect().
		Model(&order).
		Relation("User").
		Relation("Product").
		Where("o.id = ?", orderID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return contractx.Record{"found": false, "order_id": orderID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lookup order: %v", contractx.ErrResolverUnavailable, err)
	}

	// An order asked for by someone else's account reads as not found.
	if email != "" && order.User != nil && !strings.EqualFold(order.User.Email, email) {
		return contractx.Record{"found": false, "order_id": orderID}, nil
	}

	rec := contractx.Record{
		"found":        true,
		"order_id":     order.ID,
		"order_date":   order.OrderDate.Format("2006-01-02"),
		"order_status": order.Status,
	}
	if order.Product != nil {
		rec["product_name"] = order.Product.Name
		rec["product_price"] = order.Product.Price
	}
	return rec, nil
}

// orderOwner exposes the owning account of an order for ownership checks.
func (r *Resolver) orderOwner(ctx context.Context, orderID int64) (contractx.Record, error) {
	if orderID == 0 {
		return nil, fmt.Errorf("%w: order id", contractx.ErrIdentifierMissing)
	}

	var order Order
	err := r.db.NewSelect().
		Model(&order).
		Relation("User").
		Where("o.id = ?", orderID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return contractx.Record{"found": false, "order_id": orderID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lookup order owner: %v", contractx.ErrResolverUnavailable, err)
	}
	if order.User == nil {
		return contractx.Record{"found": false, "order_id": orderID}, nil
	}

	return contractx.Record{
		"found":    true,
		"order_id": order.ID,
		"user_id":  order.User.ID,
		"email":    order.User.Email,
	}, nil
}
