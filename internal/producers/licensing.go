package producers

import (
	"context"

	"relaypoint/internal/registry"
	"relaypoint/internal/types"
)

// licensingVetoTriggers are the licensing triggers subject to the download
// scope veto. License upgrades are deliberately absent: an upgrade event
// always dispatches regardless of the rule's product scope, because the
// upgrade spans the old and new product.
var licensingVetoTriggers = []types.TriggerID{
	types.TriggerLicenseGenerated,
	types.TriggerLicenseActivated,
	types.TriggerLicenseDeactivated,
}

// RegisterLicensing registers the software licensing triggers.
func RegisterLicensing(b *registry.Builder) {
	b.RegisterTrigger(types.TriggerLicenseGenerated, "License generated")
	b.RegisterTrigger(types.TriggerLicenseActivated, "License activated")
	b.RegisterTrigger(types.TriggerLicenseDeactivated, "License deactivated")
	b.RegisterTrigger(types.TriggerLicenseUpgraded, "License upgraded", registry.WithoutUserContext())

	licenseHints := []types.HintEntry{
		{Token: "license_key", Description: "The license key"},
		{Token: "download", Description: "Licensed product name"},
		{Token: "expiration", Description: "License expiration date"},
		{Token: "site_count", Description: "Number of sites the license is active on"},
		{Token: "license_limit", Description: "Maximum activations allowed"},
	}
	for _, id := range licensingVetoTriggers {
		b.RegisterHints(id, licenseHints...)
	}
	b.RegisterHints(types.TriggerLicenseUpgraded,
		types.HintEntry{Token: "license_key", Description: "The license key"},
		types.HintEntry{Token: "old_download", Description: "Product before the upgrade"},
		types.HintEntry{Token: "download", Description: "Product after the upgrade"},
	)

	// A freshly generated license has no activations yet, so the site count
	// hint would always render zero.
	b.ExcludeHint(types.TriggerLicenseGenerated, "site_count")

	b.RegisterVeto(licensingVetoTriggers, vetoDownloadScope)

	for _, id := range licensingVetoTriggers {
		b.RegisterContextBuilder(id, licenseContext)
	}
	b.RegisterContextBuilder(types.TriggerLicenseUpgraded, upgradeContext)
}

// vetoDownloadScope bails when the rule is scoped to concrete products and
// the event's product falls outside them. The matcher already enforces
// entity scope, but licensing events historically carried the product in a
// trigger-specific shape, so the veto re-checks it against the include list
// alone (exclusions stay the matcher's job).
func vetoDownloadScope(_ context.Context, rule types.Rule, event types.Event) types.VetoDecision {
	if rule.Scope.Include.Empty() || rule.Scope.Include.All {
		return types.VetoContinue
	}
	id := payloadStr(event.Payload, "download_id")
	if id == "" {
		return types.VetoContinue
	}
	if !rule.Scope.Include.Contains(types.EntityRef(id)) {
		return types.VetoBail
	}
	return types.VetoContinue
}

func licenseContext(event types.Event) map[string]string {
	ctx := UserContext(event)
	ctx["license_key"] = payloadStr(event.Payload, "license_key")
	ctx["download"] = payloadStr(event.Payload, "download")
	ctx["expiration"] = payloadDate(event.Payload, "expiration")
	ctx["site_count"] = payloadStr(event.Payload, "site_count")
	ctx["license_limit"] = payloadStr(event.Payload, "license_limit")
	return ctx
}

func upgradeContext(event types.Event) map[string]string {
	return map[string]string{
		"license_key":  payloadStr(event.Payload, "license_key"),
		"old_download": payloadStr(event.Payload, "old_download"),
		"download":     payloadStr(event.Payload, "download"),
	}
}
