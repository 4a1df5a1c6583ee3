package producers

import (
	"relaypoint/internal/registry"
	"relaypoint/internal/types"
)

// RegisterCommerce registers the core store triggers: completed and failed
// purchases, discount usage, and account registration.
func RegisterCommerce(b *registry.Builder) {
	b.RegisterTrigger(types.TriggerPurchaseComplete, "Purchase completed")
	b.RegisterTrigger(types.TriggerPurchaseFailed, "Purchase failed")
	b.RegisterTrigger(types.TriggerDiscountApplied, "Discount code applied")
	b.RegisterTrigger(types.TriggerUserRegistered, "User account created")

	b.RegisterUniversalHints(
		types.HintEntry{Token: "name", Description: "Customer's full name"},
		types.HintEntry{Token: "email", Description: "Customer's email address"},
		types.HintEntry{Token: "username", Description: "Customer's account username"},
	)

	paymentHints := []types.HintEntry{
		{Token: "download", Description: "Purchased product name"},
		{Token: "total", Description: "Payment total"},
		{Token: "payment_id", Description: "Payment identifier"},
		{Token: "discount", Description: "Discount code used, if any"},
	}
	b.RegisterHints(types.TriggerPurchaseComplete, paymentHints...)
	b.RegisterHints(types.TriggerPurchaseFailed, paymentHints...)
	b.RegisterHints(types.TriggerDiscountApplied,
		types.HintEntry{Token: "discount", Description: "Discount code applied"},
		types.HintEntry{Token: "download", Description: "Product the code applied to"},
		types.HintEntry{Token: "total", Description: "Cart total after discount"},
	)

	b.RegisterContextBuilder(types.TriggerPurchaseComplete, paymentContext)
	b.RegisterContextBuilder(types.TriggerPurchaseFailed, paymentContext)
	b.RegisterContextBuilder(types.TriggerDiscountApplied, discountContext)
	b.RegisterContextBuilder(types.TriggerUserRegistered, UserContext)
}

func paymentContext(event types.Event) map[string]string {
	ctx := UserContext(event)
	ctx["download"] = payloadStr(event.Payload, "download")
	ctx["total"] = payloadStr(event.Payload, "total")
	ctx["payment_id"] = payloadStr(event.Payload, "payment_id")
	ctx["discount"] = payloadStr(event.Payload, "discount")
	return ctx
}

func discountContext(event types.Event) map[string]string {
	ctx := UserContext(event)
	ctx["download"] = payloadStr(event.Payload, "download")
	ctx["total"] = payloadStr(event.Payload, "total")
	// Discount events carry the code under "code".
	ctx["discount"] = payloadStr(event.Payload, "code")
	if ctx["discount"] == "" {
		ctx["discount"] = payloadStr(event.Payload, "discount_code")
	}
	return ctx
}
