package supervisornode

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/omniflowhq/omniflow/agent/contract"
	identx "github.com/omniflowhq/omniflow/agent/identifier"
	synthx "github.com/omniflowhq/omniflow/agent/synthesis"
)

// Return lifecycle: Idle -> ConfirmReturn pending -> AwaitReturnImage pending
// -> cleared. Every failure path either preserves the previous valid pending
// state or explicitly clears it; none leaves the session inconsistent.

// HandleReturnRequest checks eligibility and, when eligible, parks the
// session in the yes/no confirmation flow. The resolver's eligibility message
// is relayed verbatim: it is already worded to instruct the user.
func HandleReturnRequest(ctx context.Context, in *GraphState, shipstream contractx.Resolver, guard *synthx.Guard) (*GraphState, error) {
	in.AddTrace("ReturnFlow", "Return eligibility check")

	tracking, ok := forwardTracking(in.Query)
	if !ok {
		facts := contractx.Facts{contractx.DomainReturn: contractx.Record{"need_tracking_number": true}}
		in.Facts = facts
		in.Finish(guard.Answer(ctx, in.Input.Query, facts), 1.0)
		return in, nil
	}

	rec, err := shipstream.Resolve(ctx, contractx.OpCheckReturnEligibility, map[string]any{
		"tracking_number": tracking,
	})
	if err != nil || rec == nil {
		if err != nil {
			log.Error().Err(err).Str("tracking", tracking).Msg("return eligibility check failed")
		}
		facts := contractx.Facts{contractx.DomainReturn: contractx.Record{
			"tracking_number":   tracking,
			"eligibility_check": "failed",
		}}
		in.Facts = facts
		in.Finish(guard.Answer(ctx, in.Input.Query, facts), 0.5)
		return in, nil
	}

	if !recBool(rec, "eligible") {
		// Ineligible: relay the message, no state transition.
		in.Facts = contractx.Facts{contractx.DomainReturn: rec}
		in.Finish(recString(rec, "message"), 1.0)
		return in, nil
	}

	in.Session.SetPending(contractx.ConfirmReturn(tracking))
	in.Facts = contractx.Facts{contractx.DomainReturn: contractx.Record{
		"tracking_number": tracking,
		"eligible":        true,
		"next_step":       "awaiting_confirmation_yes_no",
	}}
	in.Finish(recString(rec, "message"), 1.0)
	return in, nil
}

// HandleReturnConfirm materially initiates the return and advances the
// session to the image-upload stage.
func HandleReturnConfirm(ctx context.Context, in *GraphState, shipstream contractx.Resolver, guard *synthx.Guard) (*GraphState, error) {
	in.AddTrace("ReturnFlow", "Return confirmed by user")

	tracking := in.Session.Pending.Tracking
	if tracking == "" {
		in.Session.ClearPending()
		facts := contractx.Facts{contractx.DomainReturn: contractx.Record{"error": "missing_tracking_for_confirmation"}}
		in.Facts = facts
		in.Finish(guard.Answer(ctx, in.Input.Query, facts), 0.5)
		return in, nil
	}

	rec, err := shipstream.Resolve(ctx, contractx.OpInitiateReturn, map[string]any{
		"tracking_number": tracking,
	})
	if err != nil || rec == nil {
		if err != nil {
			log.Error().Err(err).Str("tracking", tracking).Msg("initiate return failed")
		}
		in.Session.ClearPending()
		facts := contractx.Facts{contractx.DomainReturn: contractx.Record{
			"tracking_number": tracking,
			"initiate":        "failed",
		}}
		in.Facts = facts
		in.Finish(guard.Answer(ctx, in.Input.Query, facts), 0.5)
		return in, nil
	}

	in.Session.SetPending(contractx.AwaitReturnImage(tracking))
	facts := contractx.Facts{contractx.DomainReturn: contractx.Record{
		"tracking_number": tracking,
		"stage":           "awaiting_image",
		"requirement":     "item_condition_image",
	}}
	in.Facts = facts
	in.Finish(guard.Answer(ctx, in.Input.Query, facts), 1.0)
	return in, nil
}

// HandleReturnCancel abandons the confirmation flow.
func HandleReturnCancel(ctx context.Context, in *GraphState, guard *synthx.Guard) (*GraphState, error) {
	in.AddTrace("ReturnFlow", "Return cancelled by user")

	tracking := in.Session.Pending.Tracking
	in.Session.ClearPending()

	facts := contractx.Facts{contractx.DomainReturn: contractx.Record{
		"tracking_number": tracking,
		"cancelled":       true,
	}}
	in.Facts = facts
	in.Finish(guard.Answer(ctx, in.Input.Query, facts), 1.0)
	return in, nil
}

// HandleReturnImage persists the item photo and completes the return. The
// completion message is a fixed template: it is purely mechanical and must
// not risk a grounding rejection.
func HandleReturnImage(ctx context.Context, in *GraphState, shipstream contractx.Resolver, guard *synthx.Guard) (*GraphState, error) {
	in.AddTrace("ReturnFlow", "Return image stage")

	tracking := in.Session.Pending.Tracking
	if tracking == "" {
		in.Session.ClearPending()
		facts := contractx.Facts{contractx.DomainReturn: contractx.Record{"error": "missing_tracking_for_image"}}
		in.Facts = facts
		in.Finish(guard.Answer(ctx, in.Input.Query, facts), 0.5)
		return in, nil
	}

	if !in.HasImage() {
		// Still ImagePending; re-prompt without touching state.
		facts := contractx.Facts{contractx.DomainReturn: contractx.Record{
			"tracking_number": tracking,
			"stage":           "awaiting_image",
			"requirement":     "item_condition_image",
		}}
		in.Facts = facts
		in.Finish(guard.Answer(ctx, in.Input.Query, facts), 1.0)
		return in, nil
	}

	image, err := decodeImage(in.Input.Image)
	if err != nil {
		log.Warn().Err(err).Str("tracking", tracking).Msg("image payload rejected")
		// Undecodable payload counts as no image: re-prompt, keep pending.
		facts := contractx.Facts{contractx.DomainReturn: contractx.Record{
			"tracking_number": tracking,
			"stage":           "awaiting_image",
			"image_invalid":   true,
		}}
		in.Facts = facts
		in.Finish(guard.Answer(ctx, in.Input.Query, facts), 1.0)
		return in, nil
	}

	rec, err := shipstream.Resolve(ctx, contractx.OpSubmitReturnImage, map[string]any{
		"tracking_number": tracking,
		"user_email":      in.Input.UserEmail,
		"image":           image,
	})
	if err != nil {
		log.Error().Err(err).Str("tracking", tracking).Msg("submit return image failed")
	}

	returnID := recString(rec, "return_id")
	in.Session.ClearPending()
	facts := contractx.Facts{contractx.DomainReturn: contractx.Record{
		"tracking_number": tracking,
		"return_id":       returnID,
		"stage":           "processed",
	}}
	in.Facts = facts

	if returnID != "" {
		in.Finish(fmt.Sprintf(
			"Your return has been processed successfully. Return ID: %s. Do you need help with anything else?",
			returnID,
		), 1.0)
		return in, nil
	}

	in.Finish(guard.Answer(ctx, in.Input.Query, facts), 0.7)
	return in, nil
}

// HandleReturnStatus is read-only: it never touches the pending action. The
// ownership check is the supervisor's own, never delegated to the resolver.
func HandleReturnStatus(ctx context.Context, in *GraphState, shipstream, shopcore contractx.Resolver) (*GraphState, error) {
	in.AddTrace("ReturnFlow", "Return status lookup")

	tracking, ok := forwardTracking(in.Query)
	if !ok {
		in.Finish("Please provide a valid shipment ID.", 1.0)
		return in, nil
	}

	rec, err := shipstream.Resolve(ctx, contractx.OpCheckReturnStatus, map[string]any{
		"tracking_number": tracking,
	})
	if err != nil || rec == nil {
		if err != nil {
			log.Error().Err(err).Str("tracking", tracking).Msg("return status lookup failed")
		}
		in.Finish("I couldn't retrieve the return information right now.", 0.5)
		return in, nil
	}

	if orderID, ok := recInt64(rec, "order_id"); ok {
		owner, err := shopcore.Resolve(ctx, contractx.OpOrderOwner, map[string]any{"order_id": orderID})
		if err != nil {
			log.Warn().Err(err).Int64("order_id", orderID).Msg("ownership lookup failed")
		}
		ownerEmail := strings.ToLower(recString(owner, "email"))
		requester := strings.ToLower(strings.TrimSpace(in.Input.UserEmail))
		if ownerEmail != "" && requester != "" && ownerEmail != requester {
			in.Finish("I'm unable to share return details for this shipment because it does not belong to your account.", 1.0)
			return in, nil
		}
	}

	in.Facts = contractx.Facts{contractx.DomainReturn: rec}
	in.Finish(recString(rec, "message"), 1.0)
	return in, nil
}

func forwardTracking(query string) (string, bool) {
	for _, id := range identx.ExtractAll(query) {
		if id.IsForward() {
			return id.String(), true
		}
	}
	return "", false
}

// decodeImage turns the transported payload into raw image bytes. A data-URL
// wrapper ("data:image/png;base64,...") is stripped before decoding.
func decodeImage(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		_, rest, ok := strings.Cut(payload, ",")
		if !ok {
			return nil, fmt.Errorf("%w: malformed data url", contractx.ErrValidation)
		}
		payload = rest
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", contractx.ErrValidation, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", contractx.ErrValidation)
	}
	return data, nil
}
