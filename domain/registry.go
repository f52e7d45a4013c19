// Package domain wires the four service resolvers over one Postgres
// connection pool.
package domain

import (
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/omniflowhq/omniflow/agent/contract"
	"github.com/omniflowhq/omniflow/domain/caredesk"
	"github.com/omniflowhq/omniflow/domain/payguard"
	"github.com/omniflowhq/omniflow/domain/shipstream"
	"github.com/omniflowhq/omniflow/domain/shopcore"
)

// NewDB opens a bun handle over Postgres.
func NewDB(dsn string) (*bun.DB, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// Registry hands the supervisor its four resolvers.
type Registry struct {
	shopcore   *shopcore.Resolver
	shipstream *shipstream.Resolver
	payguard   *payguard.Resolver
	caredesk   *caredesk.Resolver
}

func NewRegistry(db *bun.DB, now func() time.Time) *Registry {
	return &Registry{
		shopcore:   shopcore.NewResolver(db),
		shipstream: shipstream.NewResolver(db, now),
		payguard:   payguard.NewResolver(db),
		caredesk:   caredesk.NewResolver(db),
	}
}

func (r *Registry) Shopcore() contractx.Resolver   { return r.shopcore }
func (r *Registry) Shipstream() contractx.Resolver { return r.shipstream }
func (r *Registry) Payguard() contractx.Resolver   { return r.payguard }
func (r *Registry) Caredesk() contractx.Resolver   { return r.caredesk }
