package slack

import (
	"context"
	"encoding/json"
	"io"
	"net/url"

	"relaypoint/internal/types"
)

// apiBase is the Slack Web API base URL. Overridable for tests.
const apiBase = "https://slack.com/api"

// OAuthCredentials is the result of a completed OAuth exchange: the access
// token plus the incoming webhook Slack provisioned during authorization.
type OAuthCredentials struct {
	AccessToken      types.SecretString
	TeamName         string
	WebhookURL       types.SecretString
	WebhookChannel   string
	ConfigurationURL string
}

// OAuthConfig holds the app credentials for the OAuth exchange.
type OAuthConfig struct {
	ClientID     string
	ClientSecret types.SecretString

	// APIBase overrides the Slack API base URL, for tests.
	APIBase string
}

func (cfg OAuthConfig) base() string {
	if cfg.APIBase != "" {
		return cfg.APIBase
	}
	return apiBase
}

// oauthAccessResponse mirrors the oauth.access JSON response.
type oauthAccessResponse struct {
	OK          bool   `json:"ok"`
	Error       string `json:"error"`
	AccessToken string `json:"access_token"`
	TeamName    string `json:"team_name"`

	IncomingWebhook struct {
		URL              string `json:"url"`
		Channel          string `json:"channel"`
		ConfigurationURL string `json:"configuration_url"`
	} `json:"incoming_webhook"`
}

// ExchangeCode trades a temporary OAuth code for an access token and the
// provisioned incoming webhook. Called once when a site connects its
// workspace.
func (c *Client) ExchangeCode(ctx context.Context, cfg OAuthConfig, code string) (*OAuthCredentials, error) {
	form := url.Values{
		"client_id":     {cfg.ClientID},
		"client_secret": {cfg.ClientSecret.Unmask()},
		"code":          {code},
	}

	resp, err := c.postForm(ctx, cfg.base()+"/oauth.access", form)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyRead))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamSlack, "failed to read oauth response", err)
	}

	var parsed oauthAccessResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamSlack, "invalid oauth response JSON", err)
	}
	if !parsed.OK {
		return nil, types.NewAppError(types.ErrCodeDeliveryAuth,
			"oauth exchange rejected: "+parsed.Error, nil)
	}

	return &OAuthCredentials{
		AccessToken:      types.SecretString(parsed.AccessToken),
		TeamName:         parsed.TeamName,
		WebhookURL:       types.SecretString(parsed.IncomingWebhook.URL),
		WebhookChannel:   parsed.IncomingWebhook.Channel,
		ConfigurationURL: parsed.IncomingWebhook.ConfigurationURL,
	}, nil
}
