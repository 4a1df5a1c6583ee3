// Package producers contains the bundled event producers. Each producer
// registers its triggers, template hints, vetoes, and context builders on
// the registry Builder during process initialization.
package producers

import (
	"fmt"
	"strconv"
	"time"

	"relaypoint/internal/registry"
	"relaypoint/internal/types"
)

// RegisterAll registers every bundled producer on the builder.
func RegisterAll(b *registry.Builder) {
	RegisterCommerce(b)
	RegisterLicensing(b)
}

// UserContext derives the universal customer fields from an event payload.
// Every producer's context builder goes through this so the no-account
// sentinel behaves identically across triggers: a zero or absent user ID
// means the customer checked out as a guest.
func UserContext(event types.Event) map[string]string {
	ctx := map[string]string{
		"name":  payloadStr(event.Payload, "name"),
		"email": payloadStr(event.Payload, "email"),
	}

	userID := payloadInt(event.Payload, "user_id")
	if userID == 0 {
		ctx["username"] = types.NoAccountSentinel
	} else {
		ctx["username"] = payloadStr(event.Payload, "username")
	}

	return ctx
}

// payloadStr reads a payload value as a string, converting the numeric
// representations JSON decoding produces.
func payloadStr(payload map[string]any, key string) string {
	raw, ok := payload[key]
	if !ok {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// payloadInt reads a payload value as an int64, tolerating string and float
// representations. Unparseable values read as zero.
func payloadInt(payload map[string]any, key string) int64 {
	raw, ok := payload[key]
	if !ok {
		return 0
	}
	switch v := raw.(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// payloadDate formats a unix-seconds payload value as a human-readable
// date. Zero or unparseable values format as empty.
func payloadDate(payload map[string]any, key string) string {
	unix := payloadInt(payload, key)
	if unix == 0 {
		return ""
	}
	return time.Unix(unix, 0).UTC().Format("January 2, 2006")
}
