package dispatch

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"relaypoint/internal/registry"
	"relaypoint/internal/types"
)

// maxConcurrentDispatches bounds per-event delivery fan-out so one event
// matching many rules cannot exhaust outbound connections.
const maxConcurrentDispatches = 8

// Dispatcher runs the full pipeline for fired events. It is safe for
// concurrent use: all mutable state lives in the collaborators, which carry
// their own synchronization.
type Dispatcher struct {
	registry  *registry.Registry
	store     types.RuleStore
	deliverer types.Deliverer
	matcher   *Matcher
	renderer  *Renderer
	assembler *Assembler
	metrics   Metrics
	logger    types.Logger
	clock     types.Clock
}

// NewDispatcher wires the pipeline together.
func NewDispatcher(
	reg *registry.Registry,
	store types.RuleStore,
	deliverer types.Deliverer,
	defaults types.SiteDefaults,
	metrics Metrics,
	logger types.Logger,
	clock types.Clock,
) *Dispatcher {
	return &Dispatcher{
		registry:  reg,
		store:     store,
		deliverer: deliverer,
		matcher:   NewMatcher(),
		renderer:  NewRenderer(),
		assembler: NewAssembler(defaults),
		metrics:   metrics,
		logger:    logger,
		clock:     clock,
	}
}

// FireEvent runs the dispatch pipeline for one event.
//
// Semantics are fire-and-continue: every matched rule is attempted
// independently, a failing rule never blocks the others, and per-rule
// failures are logged rather than returned. The returned error covers only
// failures that prevented the pipeline from running at all (rule store
// unavailable). An unknown trigger is logged and dropped — producers may
// fire triggers the process did not register.
func (d *Dispatcher) FireEvent(ctx context.Context, event types.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch pipeline panicked",
				"event_id", event.ID,
				"trigger", string(event.Trigger),
				"panic", fmt.Sprint(r),
			)
			err = types.NewAppError(types.ErrCodeInternalUnexpected, "dispatch pipeline panicked", nil)
		}
	}()

	log := d.logger.With("event_id", event.ID, "trigger", string(event.Trigger))

	if !d.registry.HasTrigger(event.Trigger) {
		log.Warn("dropping event for unregistered trigger")
		return nil
	}

	d.metrics.RecordEventFired(ctx, event.Trigger)

	rules, err := d.store.ListRules(ctx, event.Trigger)
	if err != nil {
		log.Error("failed to load rules", "error", err.Error())
		return types.NewAppError(types.ErrCodeRuleStoreRead, "failed to load rules for event", err)
	}
	if len(rules) == 0 {
		return nil
	}

	// The template context is derived once per event and shared read-only
	// across all matched rules.
	templateCtx := d.buildContext(event)
	vetoes := d.registry.Vetoes(event.Trigger)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentDispatches)
	for _, rule := range rules {
		g.Go(func() error {
			d.dispatchRule(gctx, log, rule, event, templateCtx, vetoes)
			// Rule failures are logged, not propagated: one bad rule must
			// not cancel the siblings.
			return nil
		})
	}
	_ = g.Wait()

	return nil
}

// dispatchRule runs match, veto, render, assemble, and deliver for a single
// rule candidate.
func (d *Dispatcher) dispatchRule(
	ctx context.Context,
	log types.Logger,
	rule types.Rule,
	event types.Event,
	templateCtx map[string]string,
	vetoes []types.VetoFunc,
) {
	ruleLog := log.With("rule_id", rule.ID)

	if !d.matcher.Matches(rule, event) {
		return
	}
	d.metrics.RecordRuleMatched(ctx, event.Trigger)

	if runVetoes(ctx, vetoes, rule, event) == types.VetoBail {
		d.metrics.RecordRuleVetoed(ctx, event.Trigger)
		ruleLog.Info("rule vetoed, skipping dispatch")
		return
	}

	rendered := d.renderer.RenderTemplate(ruleLog, rule.Template, templateCtx)

	req, err := d.assembler.Assemble(rule, rendered)
	if err != nil {
		d.metrics.RecordDispatch(ctx, event.Trigger, false)
		ruleLog.Error("failed to assemble dispatch", "error", err.Error())
		return
	}

	// Cancellation is honored up to handoff; once Deliver is called the
	// delivery collaborator owns the request.
	if ctx.Err() != nil {
		ruleLog.Warn("context canceled before delivery handoff")
		return
	}

	started := d.clock.Now()
	ack, err := d.deliverer.Deliver(ctx, req)
	if err != nil {
		d.metrics.RecordDispatch(ctx, event.Trigger, false)
		ruleLog.Error("delivery failed",
			"error", err.Error(),
			"duration_ms", d.clock.Now().Sub(started).Milliseconds(),
		)
		return
	}

	d.metrics.RecordDispatch(ctx, event.Trigger, true)
	fields := []any{"duration_ms", d.clock.Now().Sub(started).Milliseconds()}
	if ack != nil && ack.ProviderMessageID != "" {
		fields = append(fields, "provider_message_id", ack.ProviderMessageID)
	}
	ruleLog.Info("dispatch delivered", fields...)
}

// buildContext derives the template substitution context for the event. A
// trigger without a registered context builder renders templates verbatim.
func (d *Dispatcher) buildContext(event types.Event) map[string]string {
	fn, ok := d.registry.ContextBuilder(event.Trigger)
	if !ok {
		return nil
	}
	return fn(event)
}
