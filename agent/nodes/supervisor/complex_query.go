package supervisornode

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	contractx "github.com/omniflowhq/omniflow/agent/contract"
	identx "github.com/omniflowhq/omniflow/agent/identifier"
	synthx "github.com/omniflowhq/omniflow/agent/synthesis"
)

// HandleComplexQuery answers cross-domain questions about one purchase:
// resolve the order by product name first, then fan out to shipment and
// ticket lookups in parallel. A failed hop degrades to a found:false
// placeholder instead of failing the turn.
func HandleComplexQuery(ctx context.Context, in *GraphState, registry contractx.Registry, guard *synthx.Guard, cfg GateConfig) (*GraphState, error) {
	in.AddTrace("Supervisor", "Cross-domain order inquiry")

	product, ok := identx.ExtractProductName(in.Query, cfg.Aliases)
	if !ok {
		facts := contractx.Facts{contractx.DomainShopcore: contractx.Record{"need_product_name": true}}
		in.Facts = facts
		in.Finish(guard.Answer(ctx, in.Input.Query, facts), 1.0)
		return in, nil
	}

	order, err := registry.Shopcore().Resolve(ctx, contractx.OpOrderForUserProduct, map[string]any{
		"user_email":   in.Input.UserEmail,
		"product_name": product,
	})
	if err != nil {
		log.Error().Err(err).Str("product", product).Msg("shopcore order lookup failed")
		order = nil
	}
	if order == nil || !recBool(order, "found") {
		if order == nil {
			order = notFoundRecord("")
		}
		order["product_name"] = product
		in.Facts.Set(contractx.DomainShopcore, order)
		in.Finish(guard.Answer(ctx, in.Input.Query, in.Facts), 0.7)
		return in, nil
	}
	in.Facts.Set(contractx.DomainShopcore, order)

	orderID, _ := recInt64(order, "order_id")

	var shipment, ticket contractx.Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rec, err := registry.Shipstream().Resolve(gctx, contractx.OpTrackingForOrder, map[string]any{
			"order_id": orderID,
		})
		if err != nil {
			log.Error().Err(err).Int64("order_id", orderID).Msg("shipstream hop failed")
			rec = notFoundRecord("shipstream_unavailable")
		}
		if rec == nil {
			rec = notFoundRecord("")
		}
		shipment = rec
		return nil
	})
	g.Go(func() error {
		rec, err := registry.Caredesk().Resolve(gctx, contractx.OpLatestTicket, map[string]any{
			"user_email": in.Input.UserEmail,
			"order_id":   orderID,
		})
		if err != nil {
			log.Error().Err(err).Int64("order_id", orderID).Msg("caredesk hop failed")
			rec = notFoundRecord("caredesk_unavailable")
		}
		if rec == nil {
			rec = notFoundRecord("")
		}
		ticket = rec
		return nil
	})
	// Hops report degradation through their records, never through errors.
	_ = g.Wait()

	in.Facts.Set(contractx.DomainShipstream, shipment)
	in.Facts.Set(contractx.DomainCaredesk, ticket)
	in.Finish(guard.Answer(ctx, in.Input.Query, in.Facts), factsConfidence(in.Facts))
	return in, nil
}
