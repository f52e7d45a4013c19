package payguard

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	contractx "github.com/omniflowhq/omniflow/agent/contract"
)

func newMockResolver(t *testing.T) (*Resolver, sqlmock.Sqlmock) {
	t.Helper()
	sqldb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = sqldb.Close() })

	return NewResolver(bun.NewDB(sqldb, pgdialect.New())), mock
}

func TestResolvePaidAmountMatchesTypeCaseInsensitively(t *testing.T) {
	r, mock := newMockResolver(t)

	// Seeded transactions carry "Debit" with a capital D; the filter must
	// still match.
	mock.ExpectQuery(`SELECT (.+) FROM "payguard_transactions"(.+)lower\(tx\.type\) = lower\(`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "wallet_id", "order_id", "amount", "type", "timestamp"}).
			AddRow(int64(11), int64(2), int64(5001), "299.00", "Debit", time.Date(2025, 5, 24, 10, 0, 0, 0, time.UTC)))
	mock.ExpectQuery(`SELECT (.+) FROM "payguard_wallets"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "balance", "currency"}).
			AddRow(int64(2), int64(1), "54.50", "USD"))

	rec, err := r.Resolve(context.Background(), contractx.OpPaidAmountForOrder, map[string]any{
		"order_id": int64(5001),
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if rec["found"] != true || rec["amount"] != "299.00" {
		t.Fatalf("record = %v, want the captured transaction", rec)
	}
	if rec["currency"] != "USD" {
		t.Fatalf("currency = %v", rec["currency"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestResolvePaidAmountNoTransaction(t *testing.T) {
	r, mock := newMockResolver(t)

	mock.ExpectQuery(`SELECT (.+) FROM "payguard_transactions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "wallet_id", "order_id", "amount", "type", "timestamp"}))

	rec, err := r.Resolve(context.Background(), contractx.OpPaidAmountForOrder, map[string]any{
		"order_id": int64(5002),
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if rec["found"] != false {
		t.Fatalf("record = %v, want found:false", rec)
	}
}
