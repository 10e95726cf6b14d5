// Package gateway is the only module allowed to talk to the messaging
// gateway. Both source adapters go through this client; nothing else in the
// process ever sees gateway credentials.
package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"golang.org/x/time/rate"
)

// Client wraps the gateway REST surface. The upstream is rate limited, so
// every request waits on a shared token bucket before going out; a short
// per-request timeout keeps one slow channel instance from starving a poll
// cycle.
type Client struct {
	baseURL   string
	socketURL string
	apiKey    string
	http      *http.Client
	limiter   *rate.Limiter
	log       *logger.Logger
}

func NewClient(cfg config.GatewayConfig, log *logger.Logger) *Client {
	if cfg.GetGatewayURL() == "" {
		return nil
	}

	timeout := cfg.GetGatewayTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	rps := cfg.GetGatewayRequestsPerSecond()
	if rps <= 0 {
		rps = 5
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.GetGatewayURL(), "/"),
		socketURL: strings.TrimRight(cfg.GetGatewaySocketURL(), "/"),
		apiKey:    cfg.GetGatewayAPIKey(),
		http:      &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		log:       log,
	}
}

type recentMessagesRequest struct {
	ChannelID string `json:"channelId"`
	Limit     int    `json:"limit"`
}

// RecentMessages fetches the most recent messages for a channel instance,
// oldest first as the gateway returns them.
func (c *Client) RecentMessages(ctx context.Context, channelInstanceID string, limit int) ([]Message, error) {
	var payload struct {
		Results []wireMessage `json:"results"`
	}

	req := recentMessagesRequest{ChannelID: channelInstanceID, Limit: limit}
	if err := c.post(ctx, "/api/messages/recent", req, &payload); err != nil {
		return nil, err
	}

	messages := make([]Message, 0, len(payload.Results))
	for _, wm := range payload.Results {
		messages = append(messages, wm.toMessage(channelInstanceID))
	}
	return messages, nil
}

// ConnectionState reports the gateway-side health of a channel instance.
// Used by external diagnostics, not by the ingestion path.
func (c *Client) ConnectionState(ctx context.Context, channelInstanceID string) (ConnectionState, error) {
	var state ConnectionState
	req := struct {
		ChannelID string `json:"channelId"`
	}{ChannelID: channelInstanceID}

	if err := c.post(ctx, "/api/connection/state", req, &state); err != nil {
		return ConnectionState{}, err
	}
	state.ChannelInstanceID = channelInstanceID
	return state, nil
}

type sendMessageRequest struct {
	ChannelID string `json:"channelId"`
	Phone     string `json:"phone"`
	Message   string `json:"message"`
}

// SendMessage delivers an outbound text through a channel instance. The
// notification worker uses it to acknowledge freshly created leads.
func (c *Client) SendMessage(ctx context.Context, channelInstanceID, phoneNumber, text string) error {
	if c == nil {
		return nil
	}

	req := sendMessageRequest{
		ChannelID: channelInstanceID,
		Phone:     phoneNumber,
		Message:   text,
	}
	if err := c.post(ctx, "/api/messages/send", req, nil); err != nil {
		return err
	}

	c.log.Info("gateway message sent", "channel_id", channelInstanceID, "phone", phoneNumber)
	return nil
}

// SocketURL returns the websocket endpoint for a channel instance's push
// feed, or "" when the deployment has no push surface.
func (c *Client) SocketURL(channelInstanceID string) string {
	if c == nil || c.socketURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/ws/%s", c.socketURL, channelInstanceID)
}

// APIKey exposes the credential for the push adapter's auth handshake.
func (c *Client) APIKey() string {
	if c == nil {
		return ""
	}
	return c.apiKey
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	if c == nil {
		return fmt.Errorf("gateway client not configured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal gateway payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(data))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", formatAuthHeader(c.apiKey))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}

func formatAuthHeader(apiKey string) string {
	if strings.HasPrefix(strings.ToLower(apiKey), "basic ") {
		return apiKey
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(apiKey))
	return "Basic " + encoded
}
