package dispatch

import (
	"context"

	"relaypoint/internal/types"
)

// runVetoes executes the trigger's veto chain for one matched rule, in
// registration order, short-circuiting on the first bail. A nil or empty
// chain continues — most triggers register no vetoes.
//
// Vetoes decide only for their own rule candidate: one bail never affects
// the other rules matched for the same event.
func runVetoes(ctx context.Context, vetoes []types.VetoFunc, rule types.Rule, event types.Event) types.VetoDecision {
	for _, veto := range vetoes {
		if veto(ctx, rule, event) == types.VetoBail {
			return types.VetoBail
		}
	}
	return types.VetoContinue
}
