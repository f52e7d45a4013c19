package payguard

import (
	"time"

	"github.com/uptrace/bun"
)

type Wallet struct {
	bun.BaseModel `bun:"table:payguard_wallets,alias:wa"`

	ID       int64  `bun:"id,pk,autoincrement"`
	UserID   int64  `bun:"user_id,notnull"`
	Balance  string `bun:"balance,notnull"`
	Currency string `bun:"currency,notnull"`
}

type PaymentMethod struct {
	bun.BaseModel `bun:"table:payguard_payment_methods,alias:pm"`

	ID         int64     `bun:"id,pk,autoincrement"`
	WalletID   int64     `bun:"wallet_id,notnull"`
	Provider   string    `bun:"provider,notnull"`
	ExpiryDate time.Time `bun:"expiry_date,notnull"`
}

type Transaction struct {
	bun.BaseModel `bun:"table:payguard_transactions,alias:tx"`

	ID        int64     `bun:"id,pk,autoincrement"`
	WalletID  int64     `bun:"wallet_id,notnull"`
	OrderID   int64     `bun:"order_id,notnull"`
	Amount    string    `bun:"amount,notnull"`
	Type      string    `bun:"type,notnull"`
	Timestamp time.Time `bun:"timestamp,notnull"`
}
