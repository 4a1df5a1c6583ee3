// Package slack implements delivery to Slack-compatible incoming webhooks,
// the OAuth flow for obtaining webhook credentials, and team invites. It is
// the anti-corruption layer between the dispatch core and the Slack API:
// dispatch hands over a finished DispatchRequest and never sees Slack's
// wire format.
package slack

import (
	"strings"

	"relaypoint/internal/types"
)

// Message is the incoming-webhook payload. Empty fields are omitted so the
// destination webhook's own defaults apply.
type Message struct {
	Channel     string       `json:"channel,omitempty"`
	Username    string       `json:"username,omitempty"`
	IconEmoji   string       `json:"icon_emoji,omitempty"`
	IconURL     string       `json:"icon_url,omitempty"`
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment carries the formatted message body. The three template fields
// map onto pretext, title, and text; fallback is the plain-text rendering
// for surfaces that cannot show attachments.
type Attachment struct {
	Fallback string `json:"fallback"`
	Color    string `json:"color,omitempty"`
	Pretext  string `json:"pretext,omitempty"`
	Title    string `json:"title,omitempty"`
	Text     string `json:"text,omitempty"`
}

// BuildMessage converts a DispatchRequest into the webhook payload. The
// icon setting is interpreted by shape: ":emoji:" form becomes icon_emoji,
// anything else is treated as an image URL.
func BuildMessage(req types.DispatchRequest) Message {
	msg := Message{
		Channel:  req.Channel,
		Username: req.Username,
	}

	if req.Icon != "" {
		if isEmojiIcon(req.Icon) {
			msg.IconEmoji = req.Icon
		} else {
			msg.IconURL = req.Icon
		}
	}

	msg.Attachments = []Attachment{{
		Fallback: fallbackText(req),
		Color:    req.Color,
		Pretext:  req.Pretext,
		Title:    req.Title,
		Text:     req.Body,
	}}

	return msg
}

func isEmojiIcon(icon string) bool {
	return len(icon) > 2 && strings.HasPrefix(icon, ":") && strings.HasSuffix(icon, ":")
}

// fallbackText joins the non-empty template fields into a single line.
func fallbackText(req types.DispatchRequest) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{req.Pretext, req.Title, req.Body} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " - ")
}
