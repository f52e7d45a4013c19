package supervisornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	contractx "github.com/omniflowhq/omniflow/agent/contract"
	identx "github.com/omniflowhq/omniflow/agent/identifier"
	synthx "github.com/omniflowhq/omniflow/agent/synthesis"
)

// HandlePaidAmount answers "how much did I pay for <product>". The captured
// transaction is authoritative; the catalog price is only a fallback when no
// transaction was recorded. The reply is templated, not model-generated.
func HandlePaidAmount(ctx context.Context, in *GraphState, registry contractx.Registry, guard *synthx.Guard, cfg GateConfig) (*GraphState, error) {
	in.AddTrace("Supervisor", "Paid amount by product")

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
	payment, err := registry.Payguard().Resolve(ctx, contractx.OpPaidAmountForOrder, map[string]any{
		"order_id": orderID,
	})
	if err != nil {
		log.Error().Err(err).Int64("order_id", orderID).Msg("payguard transaction lookup failed")
		payment = nil
	}
	if payment != nil {
		in.Facts.Set(contractx.DomainPayguard, payment)
	}

	productName := recString(order, "product_name")
	if productName == "" {
		productName = product
	}
	if amount := paidAmountText(payment, order); amount != "" {
		in.Finish(fmt.Sprintf("You paid %s for '%s' (order %d).", amount, productName, orderID), 1.0)
		return in, nil
	}
	in.Finish(fmt.Sprintf("I found your order %d for '%s', but I don't have the payment amount recorded.", orderID, productName), 0.7)
	return in, nil
}

// HandlePaidAmountOrder answers "how much did I pay for order <id>". The
// transaction and the order record are independent reads, so both hops run
// concurrently.
func HandlePaidAmountOrder(ctx context.Context, in *GraphState, registry contractx.Registry) (*GraphState, error) {
	in.AddTrace("Supervisor", "Paid amount by order")

	ref, ok := identx.ExtractOrderRef(in.Query)
	if !ok && in.Session.LastOrderRef != 0 {
		ref, ok = in.Session.LastOrderRef, true
	}
	if !ok {
		in.Finish("Which order do you mean? Please share the order ID.", 1.0)
		return in, nil
	}

	var order, payment contractx.Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rec, err := registry.Shopcore().Resolve(gctx, contractx.OpOrderByID, map[string]any{
			"order_id":   ref,
			"user_email": in.Input.UserEmail,
		})
		if err != nil {
			log.Error().Err(err).Int64("order_id", ref).Msg("shopcore order lookup failed")
			rec = nil
		}
		order = rec
		return nil
	})
	g.Go(func() error {
		rec, err := registry.Payguard().Resolve(gctx, contractx.OpPaidAmountForOrder, map[string]any{
			"order_id": ref,
		})
		if err != nil {
			log.Error().Err(err).Int64("order_id", ref).Msg("payguard transaction lookup failed")
			rec = nil
		}
		payment = rec
		return nil
	})
	_ = g.Wait()

	if order == nil || !recBool(order, "found") {
		in.Finish(fmt.Sprintf("I couldn't find order %d on your account.", ref), 1.0)
		return in, nil
	}
	in.Facts.Set(contractx.DomainShopcore, order)
	if payment != nil {
		in.Facts.Set(contractx.DomainPayguard, payment)
	}

	productName := recString(order, "product_name")
	if amount := paidAmountText(payment, order); amount != "" {
		if productName != "" {
			in.Finish(fmt.Sprintf("You paid %s for '%s' (order %d).", amount, productName, ref), 1.0)
		} else {
			in.Finish(fmt.Sprintf("You paid %s for order %d.", amount, ref), 1.0)
		}
		return in, nil
	}
	in.Finish(fmt.Sprintf("I found order %d, but I don't have the payment amount recorded.", ref), 0.7)
	return in, nil
}

// paidAmountText prefers the captured transaction amount and falls back to
// the catalog price carried on the order record.
func paidAmountText(payment, order contractx.Record) string {
	if recBool(payment, "found") {
		if amount := recString(payment, "amount"); amount != "" {
			if currency := recString(payment, "currency"); currency != "" {
				return amount + " " + currency
			}
			return amount
		}
	}
	if price := recString(order, "product_price"); price != "" {
		return price
	}
	return ""
}
