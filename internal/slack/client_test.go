package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaypoint/internal/types"
)

type mockLogger struct{}

func (l *mockLogger) Info(msg string, args ...any)  {}
func (l *mockLogger) Error(msg string, args ...any) {}
func (l *mockLogger) Warn(msg string, args ...any)  {}
func (l *mockLogger) With(args ...any) types.Logger { return l }

type mockClock struct{ now time.Time }

func (c *mockClock) Now() time.Time { return c.now }

// newTestClient builds a Client that talks to a plain HTTP test server.
// The SSRF-safe transport would block 127.0.0.1, so tests swap in the
// default client.
func newTestClient(t *testing.T, opts ...ClientOption) *Client {
	t.Helper()
	base := []ClientOption{
		WithHTTPClient(&http.Client{Timeout: 5 * time.Second}),
		WithSleepFunc(func(time.Duration) {}),
		WithClock(&mockClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}),
	}
	c, err := NewClient(5*time.Second, 3, DefaultRetryPolicy(), "relaypoint-test/1.0", &mockLogger{}, append(base, opts...)...)
	require.NoError(t, err)
	return c
}

func sampleRequest(webhookURL string) types.DispatchRequest {
	return types.DispatchRequest{
		RuleID:     "r1",
		Trigger:    types.TriggerPurchaseComplete,
		WebhookURL: webhookURL,
		Channel:    "#sales",
		Username:   "StoreBot",
		Icon:       ":moneybag:",
		Color:      "#36a64f",
		Pretext:    "New sale!",
		Title:      "Ada bought Analytical Engine Plans",
		Body:       "Total: $49.00",
	}
}

func TestDeliverPostsFormEncodedPayload(t *testing.T) {
	var gotContentType string
	var gotPayload Message

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, r.ParseForm())
		require.NoError(t, json.Unmarshal([]byte(r.PostForm.Get("payload")), &gotPayload))
		w.Header().Set("X-Slack-Req-Id", "req_abc")
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	c := newTestClient(t)
	ack, err := c.Deliver(context.Background(), sampleRequest(server.URL))
	require.NoError(t, err)
	require.NotNil(t, ack)

	assert.Equal(t, "application/x-www-form-urlencoded", gotContentType)
	assert.Equal(t, "req_abc", ack.ProviderMessageID)
	assert.Equal(t, "#sales", gotPayload.Channel)
	assert.Equal(t, "StoreBot", gotPayload.Username)
	assert.Equal(t, ":moneybag:", gotPayload.IconEmoji)
	assert.Empty(t, gotPayload.IconURL)

	require.Len(t, gotPayload.Attachments, 1)
	att := gotPayload.Attachments[0]
	assert.Equal(t, "New sale!", att.Pretext)
	assert.Equal(t, "Ada bought Analytical Engine Plans", att.Title)
	assert.Equal(t, "Total: $49.00", att.Text)
	assert.Equal(t, "#36a64f", att.Color)
	assert.NotEmpty(t, att.Fallback)
}

func TestDeliverIconURL(t *testing.T) {
	var gotPayload Message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		json.Unmarshal([]byte(r.PostForm.Get("payload")), &gotPayload)
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	req := sampleRequest(server.URL)
	req.Icon = "https://example.com/icon.png"

	c := newTestClient(t)
	_, err := c.Deliver(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/icon.png", gotPayload.IconURL)
	assert.Empty(t, gotPayload.IconEmoji)
}

func TestDeliverSoftFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok": false, "error": "channel_not_found"}`))
	}))
	defer server.Close()

	c := newTestClient(t)
	_, err := c.Deliver(context.Background(), sampleRequest(server.URL))
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeDeliveryRejected, appErr.Code)
	assert.Contains(t, appErr.Message, "channel_not_found")
}

func TestDeliverAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	c := newTestClient(t)
	_, err := c.Deliver(context.Background(), sampleRequest(server.URL))

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeDeliveryAuth, appErr.Code)
}

func TestDeliverRetriesOn5xxThenSucceeds(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	c := newTestClient(t)
	ack, err := c.Deliver(context.Background(), sampleRequest(server.URL))
	require.NoError(t, err)
	require.NotNil(t, ack)
	assert.Equal(t, 3, attempts)
}

func TestDeliverRateLimitedAfterRetries(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := newTestClient(t)
	_, err := c.Deliver(context.Background(), sampleRequest(server.URL))

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeDeliveryRateLimited, appErr.Code)
	assert.Equal(t, 1+DefaultRetryPolicy().MaxRetries, attempts)
}

func TestDeliverRejected4xxNotRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("no_service"))
	}))
	defer server.Close()

	c := newTestClient(t)
	_, err := c.Deliver(context.Background(), sampleRequest(server.URL))

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeDeliveryRejected, appErr.Code)
	assert.Equal(t, 1, attempts)
}

func TestDeliverNetworkError(t *testing.T) {
	c := newTestClient(t)
	// Closed port: connection refused.
	_, err := c.Deliver(context.Background(), sampleRequest("http://127.0.0.1:1/hook"))

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeDeliveryNetwork, appErr.Code)
	assert.True(t, appErr.IsDelivery())
}

func TestExchangeCode(t *testing.T) {
	var gotForm url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		w.Write([]byte(`{
			"ok": true,
			"access_token": "xoxp-secret",
			"team_name": "Acme Store",
			"incoming_webhook": {
				"url": "https://hooks.slack.com/services/T/B/x",
				"channel": "#sales",
				"configuration_url": "https://acme.slack.com/services/B"
			}
		}`))
	}))
	defer server.Close()

	c := newTestClient(t)
	cfg := OAuthConfig{ClientID: "client_1", ClientSecret: "shh", APIBase: server.URL}

	creds, err := c.ExchangeCode(context.Background(), cfg, "tmp_code")
	require.NoError(t, err)

	assert.Equal(t, "client_1", gotForm.Get("client_id"))
	assert.Equal(t, "shh", gotForm.Get("client_secret"))
	assert.Equal(t, "tmp_code", gotForm.Get("code"))

	assert.Equal(t, "xoxp-secret", creds.AccessToken.Unmask())
	assert.Equal(t, "Acme Store", creds.TeamName)
	assert.Equal(t, "https://hooks.slack.com/services/T/B/x", creds.WebhookURL.Unmask())
	assert.Equal(t, "#sales", creds.WebhookChannel)

	// Secrets must stay redacted when stringified.
	assert.NotContains(t, creds.AccessToken.String(), "xoxp")
}

func TestExchangeCodeRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok": false, "error": "invalid_code"}`))
	}))
	defer server.Close()

	c := newTestClient(t)
	cfg := OAuthConfig{ClientID: "client_1", ClientSecret: "shh", APIBase: server.URL}

	_, err := c.ExchangeCode(context.Background(), cfg, "bad_code")
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeDeliveryAuth, appErr.Code)
	assert.Contains(t, appErr.Message, "invalid_code")
}

func TestInviteUser(t *testing.T) {
	var gotForm url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	c := newTestClient(t)
	cfg := OAuthConfig{APIBase: server.URL}

	err := c.InviteUser(context.Background(), cfg, "xoxp-admin", Invite{
		Email:     "ada@example.com",
		FirstName: "Ada",
		Channels:  []string{"C123", "C456"},
	})
	require.NoError(t, err)

	assert.Equal(t, "xoxp-admin", gotForm.Get("token"))
	assert.Equal(t, "ada@example.com", gotForm.Get("email"))
	assert.Equal(t, "Ada", gotForm.Get("first_name"))
	assert.Equal(t, "C123,C456", gotForm.Get("channels"))
	assert.Equal(t, "true", gotForm.Get("set_active"))
}

func TestInviteUserAlreadyMember(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok": false, "error": "already_in_team"}`))
	}))
	defer server.Close()

	c := newTestClient(t)
	err := c.InviteUser(context.Background(), OAuthConfig{APIBase: server.URL}, "tok", Invite{Email: "ada@example.com"})

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeDeliveryRejected, appErr.Code)
}

func TestBuildMessageFallback(t *testing.T) {
	msg := BuildMessage(types.DispatchRequest{Pretext: "a", Body: "c"})
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "a - c", msg.Attachments[0].Fallback)
}
