package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"relaypoint/internal/types"
)

// fileRule is the YAML shape of one configured rule. Scope fields are
// flattened for hand-editing convenience.
type fileRule struct {
	ID      string `yaml:"id"`
	Title   string `yaml:"title"`
	Trigger string `yaml:"trigger"`

	Include      []string `yaml:"include,omitempty"`
	IncludeAll   bool     `yaml:"include_all,omitempty"`
	Exclude      []string `yaml:"exclude,omitempty"`
	DiscountCode string   `yaml:"discount_code,omitempty"`

	Pretext string `yaml:"pretext,omitempty"`
	Title2  string `yaml:"message_title,omitempty"`
	Body    string `yaml:"body,omitempty"`

	WebhookURL string `yaml:"webhook_url,omitempty"`
	Channel    string `yaml:"channel,omitempty"`
	Username   string `yaml:"username,omitempty"`
	Icon       string `yaml:"icon,omitempty"`
	Color      string `yaml:"color,omitempty"`
}

type fileConfig struct {
	Rules []fileRule `yaml:"rules"`
}

// LoadFile reads a YAML rule file and returns a MemoryStore seeded with its
// rules, preserving file order. The file is read once; edits require a
// process restart (or a fresh LoadFile and store swap).
func LoadFile(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeRuleStoreRead,
			fmt.Sprintf("failed to read rule file %s", path), err)
	}
	return parseRules(data)
}

func parseRules(data []byte) (*MemoryStore, error) {
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, types.NewAppError(types.ErrCodeRuleStoreRead, "failed to parse rule file", err)
	}

	out := make([]types.Rule, 0, len(cfg.Rules))
	for i, fr := range cfg.Rules {
		include := types.EntitySelection{}
		if fr.IncludeAll {
			include = types.SelectAll()
		} else if len(fr.Include) > 0 {
			refs := make([]types.EntityRef, len(fr.Include))
			for j, ref := range fr.Include {
				refs[j] = types.EntityRef(ref)
			}
			include = types.SelectRefs(refs...)
		}

		exclude := make([]types.EntityRef, len(fr.Exclude))
		for j, ref := range fr.Exclude {
			exclude[j] = types.EntityRef(ref)
		}
		if len(exclude) == 0 {
			exclude = nil
		}

		rule := types.Rule{
			ID:      fr.ID,
			Title:   fr.Title,
			Trigger: types.TriggerID(fr.Trigger),
			Scope: types.RuleScope{
				Include:      include,
				Exclude:      exclude,
				DiscountCode: fr.DiscountCode,
			},
			Template: types.RuleTemplate{
				Pretext: fr.Pretext,
				Title:   fr.Title2,
				Body:    fr.Body,
			},
			Delivery: types.DeliveryOverrides{
				WebhookURL: fr.WebhookURL,
				Channel:    fr.Channel,
				Username:   fr.Username,
				Icon:       fr.Icon,
				Color:      fr.Color,
			},
		}
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule at index %d: %w", i, err)
		}
		out = append(out, rule)
	}

	return NewMemoryStore(out...), nil
}
