package todo

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/mycelian/mycelian-todo/internal/model"
)

// Notifier performs the reminder side effect for one list.
type Notifier interface {
	Notify(ctx context.Context, key string, items []model.ListItem) error
}

// LogNotifier writes the reminder to the log. It is the default.
type LogNotifier struct{ log zerolog.Logger }

func NewLogNotifier(log zerolog.Logger) *LogNotifier { return &LogNotifier{log: log} }

func (n *LogNotifier) Notify(_ context.Context, key string, items []model.ListItem) error {
	open := 0
	for _, it := range items {
		if !it.Finished {
			open++
		}
	}
	n.log.Info().Str("list", key).Int("items", len(items)).Int("open", open).Msg("todo reminder")
	return nil
}

// WebhookNotifier POSTs the reminder as JSON to a fixed URL.
type WebhookNotifier struct {
	client *resty.Client
	url    string
}

type webhookPayload struct {
	Key    string           `json:"key"`
	Items  []model.ListItem `json:"items"`
	SentAt time.Time        `json:"sentAt"`
}

// NewWebhookNotifier creates a notifier for url.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	c := resty.New().
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	return &WebhookNotifier{client: c, url: url}
}

func (n *WebhookNotifier) Notify(ctx context.Context, key string, items []model.ListItem) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(&webhookPayload{Key: key, Items: items, SentAt: time.Now().UTC()}).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
