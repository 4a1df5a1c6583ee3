// Package dispatch implements the event dispatch pipeline: for each fired
// event, match configured rules, run pre-dispatch vetoes, render the
// message templates, assemble the delivery request, and hand it off to the
// delivery collaborator. Each stage is a pure function over its inputs; the
// Dispatcher wires them together.
package dispatch

import (
	"strconv"

	"relaypoint/internal/types"
)

// Payload keys the matcher inspects when scoping rules against an event.
const (
	payloadKeyDownloadID   = "download_id"
	payloadKeyPriceID      = "price_id"
	payloadKeyDiscountCode = "code"

	// Some producers emit the discount code under a longer key.
	payloadKeyDiscountCodeAlt = "discount_code"
)

// Matcher evaluates whether a rule's scope admits an event.
type Matcher struct{}

// NewMatcher creates a Matcher.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// Matches reports whether the rule's scope admits the event. The trigger is
// assumed to match already (the store filters by trigger); this checks the
// entity and discount-code dimensions.
//
// Scoping is permissive in two directions: an event whose payload carries no
// entity reference bypasses entity scoping entirely, and a rule with a zero
// Include selection is treated as unscoped. Only a rule that names concrete
// refs (or "all" plus exclusions) can reject an event.
func (m *Matcher) Matches(rule types.Rule, event types.Event) bool {
	ref, hasRef := entityRefFromPayload(event.Payload)
	if hasRef && !scopeIsUnscoped(rule.Scope) {
		if !rule.Scope.MatchesEntity(ref) {
			return false
		}
	}

	if code, ok := discountCodeFromPayload(event.Payload); ok {
		if !rule.Scope.MatchesDiscountCode(code) {
			return false
		}
	}

	return true
}

// scopeIsUnscoped reports whether the rule names no entities at all. Such a
// rule admits every entity rather than none: a rule author who leaves the
// product selection empty means "notify for everything".
func scopeIsUnscoped(s types.RuleScope) bool {
	return s.Include.Empty() && len(s.Exclude) == 0
}

// entityRefFromPayload derives the scoping entity reference from the event
// payload: the download ID, optionally combined with a price/variation ID in
// the "42-1" form. Numeric payload values arrive as float64 after JSON
// decoding, so several representations are accepted.
func entityRefFromPayload(payload map[string]any) (types.EntityRef, bool) {
	id, ok := payloadString(payload, payloadKeyDownloadID)
	if !ok || id == "" {
		return "", false
	}
	if price, ok := payloadString(payload, payloadKeyPriceID); ok && price != "" {
		return types.EntityRef(id + "-" + price), true
	}
	return types.EntityRef(id), true
}

func discountCodeFromPayload(payload map[string]any) (string, bool) {
	if code, ok := payloadString(payload, payloadKeyDiscountCode); ok && code != "" {
		return code, true
	}
	if code, ok := payloadString(payload, payloadKeyDiscountCodeAlt); ok && code != "" {
		return code, true
	}
	return "", false
}

// payloadString reads a payload value as a string, converting the numeric
// types JSON and Go producers commonly emit.
func payloadString(payload map[string]any, key string) (string, bool) {
	raw, ok := payload[key]
	if !ok {
		return "", false
	}
	switch v := raw.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatInt(int64(v), 10), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	default:
		return "", false
	}
}
