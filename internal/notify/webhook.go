package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// postJSON posts body and treats any non-2xx status as a failure.
func postJSON(ctx context.Context, client *http.Client, url string, body []byte, header http.Header) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("posting: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}

// SlackChannel posts a text message to a Slack incoming webhook.
type SlackChannel struct {
	url    string
	client *http.Client
}

func NewSlackChannel(url string) *SlackChannel {
	return &SlackChannel{url: url, client: &http.Client{}}
}

func (c *SlackChannel) Name() string { return "slack" }

func (c *SlackChannel) Send(ctx context.Context, n *Notification) error {
	body, err := json.Marshal(map[string]string{"text": summary(n.Document)})
	if err != nil {
		return fmt.Errorf("failed to marshal slack message: %w", err)
	}
	return postJSON(ctx, c.client, c.url, body, nil)
}

// WebhookChannel posts the JSON payload to a generic automation endpoint.
// The delivery id is repeated in the X-Delivery-ID header so receivers can
// drop duplicates.
type WebhookChannel struct {
	url    string
	client *http.Client
}

func NewWebhookChannel(url string) *WebhookChannel {
	return &WebhookChannel{url: url, client: &http.Client{}}
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Send(ctx context.Context, n *Notification) error {
	body, err := marshalPayload(n)
	if err != nil {
		return err
	}
	header := http.Header{}
	header.Set("X-Delivery-ID", n.DeliveryID)
	return postJSON(ctx, c.client, c.url, body, header)
}
