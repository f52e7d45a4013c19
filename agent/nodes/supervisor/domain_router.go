package supervisornode

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/omniflowhq/omniflow/agent/contract"
	identx "github.com/omniflowhq/omniflow/agent/identifier"
	synthx "github.com/omniflowhq/omniflow/agent/synthesis"
)

// Dispatch routes a classified turn to its handler. Branching lives inside
// this one node so the graph stays a straight line and precedence stays
// auditable.
func Dispatch(ctx context.Context, in *GraphState, registry contractx.Registry, guard *synthx.Guard, cfg GateConfig) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph state is incomplete", contractx.ErrValidation)
	}
	if in.Answered() {
		// The gate already produced a direct final answer.
		return in, nil
	}

	switch in.Intent {
	case contractx.IntentReturnRequest:
		return HandleReturnRequest(ctx, in, registry.Shipstream(), guard)
	case contractx.IntentReturnConfirm:
		return HandleReturnConfirm(ctx, in, registry.Shipstream(), guard)
	case contractx.IntentReturnCancel:
		return HandleReturnCancel(ctx, in, guard)
	case contractx.IntentReturnImage:
		return HandleReturnImage(ctx, in, registry.Shipstream(), guard)
	case contractx.IntentReturnStatus:
		return HandleReturnStatus(ctx, in, registry.Shipstream(), registry.Shopcore())
	case contractx.IntentComplexQuery:
		return HandleComplexQuery(ctx, in, registry, guard, cfg)
	case contractx.IntentPaidAmount:
		return HandlePaidAmount(ctx, in, registry, guard, cfg)
	case contractx.IntentPaidAmountOrder:
		return HandlePaidAmountOrder(ctx, in, registry)
	case contractx.IntentShipstream:
		return CallShipstream(ctx, in, registry.Shipstream(), guard)
	case contractx.IntentPayguard:
		return CallPayguard(ctx, in, registry.Payguard())
	case contractx.IntentCaredesk:
		return CallCaredesk(ctx, in, registry.Caredesk())
	case contractx.IntentShopcore:
		return CallShopcore(ctx, in, registry.Shopcore())
	default:
		return nil, fmt.Errorf("%w: unsupported intent=%q", contractx.ErrValidation, in.Intent)
	}
}

// CallShipstream resolves one tracking identifier of any kind. Without an
// identifier the turn becomes a request for one. Wallets are account-level:
// when wallet keywords ride along with the identifier, the scoping
// constraint fact is attached so the answer can explain it.
func CallShipstream(ctx context.Context, in *GraphState, shipstream contractx.Resolver, guard *synthx.Guard) (*GraphState, error) {
	in.AddTrace("ShipStream", "Shipment lifecycle lookup")

	id, ok := identx.Extract(in.Query)
	if !ok {
		facts := contractx.Facts{contractx.DomainShipstream: contractx.Record{"need_tracking_number": true}}
		in.Facts = facts
		in.Finish(guard.Answer(ctx, in.Input.Query, facts), 1.0)
		return in, nil
	}

	rec, err := shipstream.Resolve(ctx, contractx.OpLookup, map[string]any{
		"tracking_number": id.String(),
	})
	if err != nil {
		log.Error().Err(err).Str("tracking", id.String()).Msg("shipstream lookup failed")
		rec = contractx.Record{"tracking_number": id.String(), "found": false, "resolver_error": true}
	}
	if rec == nil {
		rec = contractx.Record{"tracking_number": id.String(), "found": false}
	}
	in.Facts.Set(contractx.DomainShipstream, rec)

	if asksWallet(in.Query) {
		in.Facts.Set(contractx.DomainPayguard, contractx.Record{
			"tracking_number": id.String(),
			"constraint":      "wallet_not_scoped_to_shipment",
			"note":            "Wallet balances are account-level data and cannot be scoped to shipment or tracking IDs.",
		})
	}
	return in, nil
}

func asksWallet(query string) bool {
	lower := strings.ToLower(query)
	return strings.Contains(lower, "wallet") || strings.Contains(lower, "balance")
}

// CallPayguard answers wallet/balance questions for identifier-free turns.
func CallPayguard(ctx context.Context, in *GraphState, payguard contractx.Resolver) (*GraphState, error) {
	in.AddTrace("PayGuard", "Wallet lookup")

	rec, err := payguard.Resolve(ctx, contractx.OpWalletBalance, map[string]any{
		"user_email": in.Input.UserEmail,
	})
	if err != nil {
		log.Error().Err(err).Msg("payguard lookup failed")
		rec = contractx.Record{"found": false, "resolver_error": true}
	}
	if rec == nil {
		rec = notFoundRecord("")
	}
	in.Facts.Set(contractx.DomainPayguard, rec)
	return in, nil
}

// CallCaredesk surfaces the user's latest support ticket.
func CallCaredesk(ctx context.Context, in *GraphState, caredesk contractx.Resolver) (*GraphState, error) {
	in.AddTrace("CareDesk", "Support inquiry")

	rec, err := caredesk.Resolve(ctx, contractx.OpLatestTicket, map[string]any{
		"user_email": in.Input.UserEmail,
	})
	if err != nil {
		log.Error().Err(err).Msg("caredesk lookup failed")
		rec = contractx.Record{"found": false, "resolver_error": true}
	}
	if rec == nil {
		rec = notFoundRecord("")
	}
	in.Facts.Set(contractx.DomainCaredesk, rec)
	return in, nil
}

// CallShopcore is the default route for anything that matched no other rule.
func CallShopcore(ctx context.Context, in *GraphState, shopcore contractx.Resolver) (*GraphState, error) {
	in.AddTrace("ShopCore", "User/order resolution")

	rec, err := shopcore.Resolve(ctx, contractx.OpLookup, map[string]any{
		"query":      in.Input.Query,
		"user_email": in.Input.UserEmail,
	})
	if err != nil {
		log.Error().Err(err).Msg("shopcore lookup failed")
		rec = contractx.Record{"found": false, "resolver_error": true}
	}
	if rec != nil {
		in.Facts.Set(contractx.DomainShopcore, rec)
	}
	return in, nil
}
