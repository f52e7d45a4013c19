package supervisornode

import (
	"context"

	contractx "github.com/omniflowhq/omniflow/agent/contract"
	synthx "github.com/omniflowhq/omniflow/agent/synthesis"
)

// Aggregate turns whatever facts the routed handlers collected into the
// final reply. Handlers that already finished the turn pass through
// untouched; everything else goes through the grounding guard.
func Aggregate(ctx context.Context, in *GraphState, guard *synthx.Guard) (*GraphState, error) {
	if in.Answered() {
		return in, nil
	}

	if len(in.Facts) == 0 {
		in.Facts = contractx.Facts{contractx.DomainSystem: contractx.Record{"no_matching_record": true}}
		in.AddTrace("Supervisor", "No facts gathered")
		in.Finish(guard.Answer(ctx, in.Input.Query, in.Facts), 0.3)
		return in, nil
	}

	in.Finish(guard.Answer(ctx, in.Input.Query, in.Facts), factsConfidence(in.Facts))
	return in, nil
}

// factsConfidence mirrors how complete the gathered evidence is: every
// record resolved cleanly scores full, a degraded or missing record scores
// partial, and a record produced by a resolver error scores lower still.
func factsConfidence(facts contractx.Facts) float64 {
	conf := 1.0
	for _, rec := range facts {
		if recBool(rec, "resolver_error") {
			return 0.5
		}
		if found, present := rec["found"]; present {
			if ok, _ := found.(bool); !ok {
				conf = 0.7
			}
		}
	}
	return conf
}
