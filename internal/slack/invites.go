package slack

import (
	"context"
	"encoding/json"
	"io"
	"net/url"
	"strings"

	"relaypoint/internal/types"
)

// Invite describes a workspace invitation for a customer.
type Invite struct {
	Email     string
	FirstName string

	// Channels are the channel IDs the invitee joins on acceptance.
	Channels []string
}

// InviteUser sends a workspace invitation via the admin invite endpoint.
// Requires an admin access token obtained through the OAuth flow. Inviting
// an address that is already a member surfaces as ErrCodeDeliveryRejected
// with the upstream reason.
func (c *Client) InviteUser(ctx context.Context, cfg OAuthConfig, token types.SecretString, invite Invite) error {
	form := url.Values{
		"token":      {token.Unmask()},
		"email":      {invite.Email},
		"set_active": {"true"},
	}
	if invite.FirstName != "" {
		form.Set("first_name", invite.FirstName)
	}
	if len(invite.Channels) > 0 {
		form.Set("channels", strings.Join(invite.Channels, ","))
	}

	resp, err := c.postForm(ctx, cfg.base()+"/users.admin.invite", form)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyRead))
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamSlack, "failed to read invite response", err)
	}

	var parsed struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamSlack, "invalid invite response JSON", err)
	}
	if !parsed.OK {
		if parsed.Error == "not_authed" || parsed.Error == "invalid_auth" {
			return types.NewAppError(types.ErrCodeDeliveryAuth, "invite rejected: "+parsed.Error, nil)
		}
		return types.NewAppError(types.ErrCodeDeliveryRejected, "invite rejected: "+parsed.Error, nil)
	}
	return nil
}
