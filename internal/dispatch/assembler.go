package dispatch

import (
	"relaypoint/internal/types"
)

// Assembler resolves the final delivery settings for a matched, rendered
// rule. Each setting resolves independently: rule override first, then the
// site default, then empty — an empty field in the finished request means
// "let the destination webhook decide".
type Assembler struct {
	defaults types.SiteDefaults
}

// NewAssembler creates an Assembler with the given site-wide defaults.
func NewAssembler(defaults types.SiteDefaults) *Assembler {
	return &Assembler{defaults: defaults}
}

// Assemble builds the DispatchRequest for a rule whose templates have
// already been rendered. It fails only when neither the rule nor the site
// defaults provide a webhook URL — the one setting with no destination-side
// fallback.
func (a *Assembler) Assemble(rule types.Rule, rendered types.RuleTemplate) (types.DispatchRequest, error) {
	webhookURL := firstNonEmpty(rule.Delivery.WebhookURL, a.defaults.WebhookURL)
	if webhookURL == "" {
		return types.DispatchRequest{}, types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidWebhook,
			"no webhook URL configured for rule or site",
			nil,
			map[string]any{"rule_id": rule.ID},
		)
	}

	return types.DispatchRequest{
		RuleID:     rule.ID,
		Trigger:    rule.Trigger,
		WebhookURL: webhookURL,
		Channel:    firstNonEmpty(rule.Delivery.Channel, a.defaults.Channel),
		Username:   firstNonEmpty(rule.Delivery.Username, a.defaults.Username),
		Icon:       firstNonEmpty(rule.Delivery.Icon, a.defaults.Icon),
		Color:      firstNonEmpty(rule.Delivery.Color, a.defaults.Color),
		Pretext:    rendered.Pretext,
		Title:      rendered.Title,
		Body:       rendered.Body,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
