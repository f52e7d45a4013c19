package payguard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	contractx "github.com/omniflowhq/omniflow/agent/contract"
	"github.com/omniflowhq/omniflow/domain/shopcore"
)

// Resolver answers wallet and transaction questions. Wallets hang off the
// commerce user, so the account is always resolved by email first.
type Resolver struct {
	db *bun.DB
}

func NewResolver(db *bun.DB) *Resolver {
	return &Resolver{db: db}
}

func (r *Resolver) Resolve(ctx context.Context, op contractx.Op, args map[string]any) (contractx.Record, error) {
	switch op {
	case contractx.OpWalletBalance:
		return r.walletBalance(ctx, contractx.StringArg(args, "user_email"))
	case contractx.OpPaidAmountForOrder:
		return r.paidAmountForOrder(ctx, contractx.Int64Arg(args, "order_id"))
	default:
		return nil, fmt.Errorf("%w: payguard does not support op %q", contractx.ErrValidation, op)
	}
}

func (r *Resolver) walletBalance(ctx context.Context, email string) (contractx.Record, error) {
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

	var wallet Wallet
	err = r.db.NewSelect().
		Model(&wallet).
		Where("wa.user_id = ?", user.ID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return contractx.Record{"found": false, "reason": "no_wallet"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lookup wallet: %v", contractx.ErrResolverUnavailable, err)
	}

	return contractx.Record{
		"found":     true,
		"wallet_id": wallet.ID,
		"balance":   wallet.Balance,
		"currency":  wallet.Currency,
	}, nil
}

// paidAmountForOrder returns the captured payment for an order: the most
// recent debit transaction, with the wallet's currency.
func (r *Resolver) paidAmountForOrder(ctx context.Context, orderID int64) (contractx.Record, error) {
	if orderID == 0 {
		return nil, fmt.Errorf("%w: order id", contractx.ErrIdentifierMissing)
	}

	var tx Transaction
	err := r.db.NewSelect().
		Model(&tx).
		Where("tx.order_id = ? AND lower(tx.type) = lower(?)", orderID, "Debit").
		OrderExpr("tx.timestamp DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return contractx.Record{"found": false, "order_id": orderID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lookup transaction: %v", contractx.ErrResolverUnavailable, err)
	}

	rec := contractx.Record{
		"found":    true,
		"order_id": orderID,
		"amount":   tx.Amount,
		"type":     tx.Type,
	}

	var wallet Wallet
	err = r.db.NewSelect().
		Model(&wallet).
		Where("wa.id = ?", tx.WalletID).
		Limit(1).
		Scan(ctx)
	if err == nil {
		rec["currency"] = wallet.Currency
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: lookup wallet: %v", contractx.ErrResolverUnavailable, err)
	}

	return rec, nil
}
