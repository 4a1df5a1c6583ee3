package producers

import (
	"context"
	"testing"
	"time"

	"relaypoint/internal/types"
)

func TestLicensingHintExclusion(t *testing.T) {
	reg := builtRegistry(t)

	generated := reg.Hints(types.TriggerLicenseGenerated)
	for _, h := range generated {
		if h.Token == "site_count" {
			t.Error("site_count must not be advertised for license_generated")
		}
	}

	activated := reg.Hints(types.TriggerLicenseActivated)
	found := false
	for _, h := range activated {
		if h.Token == "site_count" {
			found = true
		}
	}
	if !found {
		t.Error("expected site_count hint for license_activated")
	}
}

func TestLicenseUpgradedHasNoUserHints(t *testing.T) {
	reg := builtRegistry(t)

	for _, h := range reg.Hints(types.TriggerLicenseUpgraded) {
		switch h.Token {
		case "name", "email", "username":
			t.Errorf("universal hint %%%s%% advertised for license_upgraded", h.Token)
		}
	}
}

func TestDownloadScopeVeto(t *testing.T) {
	reg := builtRegistry(t)

	scopedRule := types.Rule{
		ID:    "r1",
		Scope: types.RuleScope{Include: types.SelectRefs("42")},
	}
	allRule := types.Rule{
		ID:    "r2",
		Scope: types.RuleScope{Include: types.SelectAll()},
	}

	matching := types.Event{Payload: map[string]any{"download_id": "42"}}
	other := types.Event{Payload: map[string]any{"download_id": "7"}}

	for _, trigger := range []types.TriggerID{
		types.TriggerLicenseGenerated,
		types.TriggerLicenseActivated,
		types.TriggerLicenseDeactivated,
	} {
		vetoes := reg.Vetoes(trigger)
		if len(vetoes) != 1 {
			t.Fatalf("expected 1 veto for %s, got %d", trigger, len(vetoes))
		}
		veto := vetoes[0]

		if veto(context.Background(), scopedRule, matching) != types.VetoContinue {
			t.Errorf("%s: expected in-scope download to continue", trigger)
		}
		if veto(context.Background(), scopedRule, other) != types.VetoBail {
			t.Errorf("%s: expected out-of-scope download to bail", trigger)
		}
		if veto(context.Background(), allRule, other) != types.VetoContinue {
			t.Errorf("%s: expected all-scope rule to continue", trigger)
		}
	}
}

func TestLicenseUpgradedNeverVetoed(t *testing.T) {
	reg := builtRegistry(t)

	if vetoes := reg.Vetoes(types.TriggerLicenseUpgraded); len(vetoes) != 0 {
		t.Errorf("expected no vetoes for license_upgraded, got %d", len(vetoes))
	}
}

func TestLicenseContextExpirationFormat(t *testing.T) {
	reg := builtRegistry(t)
	fn, _ := reg.ContextBuilder(types.TriggerLicenseActivated)

	expiration := time.Date(2027, 3, 14, 0, 0, 0, 0, time.UTC).Unix()
	ctx := fn(types.Event{Payload: map[string]any{
		"license_key":   "LIC-123",
		"download":      "Analytical Engine Plans",
		"expiration":    float64(expiration),
		"site_count":    float64(3),
		"license_limit": float64(5),
		"user_id":       float64(9),
		"username":      "ada",
	}})

	if ctx["expiration"] != "March 14, 2027" {
		t.Errorf("expiration = %q, want formatted date", ctx["expiration"])
	}
	if ctx["site_count"] != "3" || ctx["license_limit"] != "5" {
		t.Errorf("unexpected license counts: %v", ctx)
	}
	if ctx["license_key"] != "LIC-123" {
		t.Errorf("unexpected license key: %q", ctx["license_key"])
	}
}

func TestLicenseContextZeroExpiration(t *testing.T) {
	reg := builtRegistry(t)
	fn, _ := reg.ContextBuilder(types.TriggerLicenseActivated)

	ctx := fn(types.Event{Payload: map[string]any{"license_key": "LIC-123"}})
	if ctx["expiration"] != "" {
		t.Errorf("expected empty expiration for lifetime license, got %q", ctx["expiration"])
	}
}

func TestUpgradeContext(t *testing.T) {
	reg := builtRegistry(t)
	fn, _ := reg.ContextBuilder(types.TriggerLicenseUpgraded)

	ctx := fn(types.Event{Payload: map[string]any{
		"license_key":  "LIC-123",
		"old_download": "Basic Plans",
		"download":     "Pro Plans",
	}})
	if ctx["old_download"] != "Basic Plans" || ctx["download"] != "Pro Plans" {
		t.Errorf("unexpected upgrade context: %v", ctx)
	}
}
