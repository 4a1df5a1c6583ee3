package registry

import (
	"context"
	"testing"

	"relaypoint/internal/types"
)

func TestBuilderTriggerCatalog(t *testing.T) {
	b := NewBuilder()
	b.RegisterTrigger("zeta_event", "Zeta happened")
	b.RegisterTrigger("alpha_event", "Alpha happened")
	b.RegisterTrigger("mid_event", "Middle happened")

	r := b.Build()

	if !r.HasTrigger("alpha_event") {
		t.Error("expected alpha_event to be registered")
	}
	if r.HasTrigger("unknown_event") {
		t.Error("did not expect unknown_event to be registered")
	}

	label, ok := r.TriggerLabel("mid_event")
	if !ok || label != "Middle happened" {
		t.Errorf("TriggerLabel(mid_event) = %q, %v", label, ok)
	}

	got := r.Triggers()
	if len(got) != 3 {
		t.Fatalf("expected 3 triggers, got %d", len(got))
	}
	// Catalog is sorted by label, not registration order.
	wantOrder := []types.TriggerID{"alpha_event", "mid_event", "zeta_event"}
	for i, want := range wantOrder {
		if got[i].ID != want {
			t.Errorf("triggers[%d] = %s, want %s", i, got[i].ID, want)
		}
	}
}

func TestBuilderReRegisterTriggerOverwritesLabel(t *testing.T) {
	b := NewBuilder()
	b.RegisterTrigger("evt", "First label")
	b.RegisterTrigger("evt", "Second label")

	r := b.Build()

	label, _ := r.TriggerLabel("evt")
	if label != "Second label" {
		t.Errorf("expected last registration to win, got %q", label)
	}
	if len(r.Triggers()) != 1 {
		t.Errorf("expected a single catalog entry, got %d", len(r.Triggers()))
	}
}

func TestHintsMergeUniversalAndSpecific(t *testing.T) {
	b := NewBuilder()
	b.RegisterTrigger("order_placed", "Order placed")
	b.RegisterUniversalHints(
		types.HintEntry{Token: "name", Description: "Customer name"},
		types.HintEntry{Token: "email", Description: "Customer email"},
	)
	b.RegisterHints("order_placed",
		types.HintEntry{Token: "amount", Description: "Order total"},
	)

	r := b.Build()

	hints := r.Hints("order_placed")
	if len(hints) != 3 {
		t.Fatalf("expected 3 hints, got %d: %v", len(hints), hints)
	}
	if hints[0].Token != "name" || hints[1].Token != "email" || hints[2].Token != "amount" {
		t.Errorf("unexpected hint order: %v", hints)
	}
}

func TestHintsExclusionAndNoUserContext(t *testing.T) {
	b := NewBuilder()
	b.RegisterTrigger("license_issued", "License issued")
	b.RegisterTrigger("plan_changed", "Plan changed", WithoutUserContext())
	b.RegisterUniversalHints(types.HintEntry{Token: "name", Description: "Customer name"})
	b.RegisterHints("license_issued",
		types.HintEntry{Token: "key", Description: "License key"},
		types.HintEntry{Token: "site_count", Description: "Active sites"},
	)
	b.RegisterHints("plan_changed",
		types.HintEntry{Token: "plan", Description: "New plan"},
	)
	b.ExcludeHint("license_issued", "site_count")

	r := b.Build()

	issued := r.Hints("license_issued")
	for _, h := range issued {
		if h.Token == "site_count" {
			t.Error("excluded hint still advertised for license_issued")
		}
	}
	if len(issued) != 2 {
		t.Errorf("expected 2 hints for license_issued, got %v", issued)
	}

	// A trigger without user context must not advertise universal hints.
	changed := r.Hints("plan_changed")
	if len(changed) != 1 || changed[0].Token != "plan" {
		t.Errorf("expected only trigger-specific hints for plan_changed, got %v", changed)
	}
}

func TestHintsDedupeLastRegistrationWins(t *testing.T) {
	b := NewBuilder()
	b.RegisterTrigger("evt", "Event")
	b.RegisterUniversalHints(types.HintEntry{Token: "name", Description: "Generic name"})
	b.RegisterHints("evt", types.HintEntry{Token: "name", Description: "Refined name"})

	r := b.Build()

	hints := r.Hints("evt")
	if len(hints) != 1 {
		t.Fatalf("expected deduped single hint, got %v", hints)
	}
	if hints[0].Description != "Refined name" {
		t.Errorf("expected later registration to win, got %q", hints[0].Description)
	}
}

func TestVetoesAndContextBuilders(t *testing.T) {
	b := NewBuilder()
	b.RegisterTrigger("evt_a", "A")
	b.RegisterTrigger("evt_b", "B")

	bail := func(ctx context.Context, rule types.Rule, event types.Event) types.VetoDecision {
		return types.VetoBail
	}
	b.RegisterVeto([]types.TriggerID{"evt_a"}, bail)
	b.RegisterContextBuilder("evt_a", func(event types.Event) map[string]string {
		return map[string]string{"k": "v"}
	})

	r := b.Build()

	if got := len(r.Vetoes("evt_a")); got != 1 {
		t.Errorf("expected 1 veto for evt_a, got %d", got)
	}
	if r.Vetoes("evt_b") != nil {
		t.Error("expected no vetoes for evt_b")
	}

	fn, ok := r.ContextBuilder("evt_a")
	if !ok {
		t.Fatal("expected context builder for evt_a")
	}
	if got := fn(types.Event{}); got["k"] != "v" {
		t.Errorf("unexpected context: %v", got)
	}
	if _, ok := r.ContextBuilder("evt_b"); ok {
		t.Error("did not expect context builder for evt_b")
	}
}

func TestBuilderPanicsAfterBuild(t *testing.T) {
	b := NewBuilder()
	b.RegisterTrigger("evt", "Event")
	b.Build()

	defer func() {
		if recover() == nil {
			t.Error("expected panic when registering after Build")
		}
	}()
	b.RegisterTrigger("late", "Too late")
}
