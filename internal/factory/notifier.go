package factory

import (
	"github.com/rs/zerolog"

	"github.com/mycelian/mycelian-todo/internal/config"
	"github.com/mycelian/mycelian-todo/internal/todo"
)

// NewNotifier returns the webhook notifier when NOTIFY_URL is set, the log notifier otherwise.
func NewNotifier(cfg *config.Config, log zerolog.Logger) todo.Notifier {
	if cfg.NotifyURL == "" {
		return todo.NewLogNotifier(log)
	}
	log.Info().Str("url", cfg.NotifyURL).Dur("timeout", cfg.NotifyTimeout).Msg("reminder webhook enabled")
	return todo.NewWebhookNotifier(cfg.NotifyURL, cfg.NotifyTimeout)
}
