package telegram

import (
	"net"
	"strconv"
	"time"

	coreconfig "github.com/m3rciful/paperbot/core/config"

	tele "gopkg.in/telebot.v4"
)

const defaultLongPoll = 10 * time.Second

// allowedUpdates lists the update types the store handles. Payment
// updates must be requested explicitly or Telegram withholds them.
var allowedUpdates = []string{"message", "callback_query", "pre_checkout_query"}

// longPollTimeout returns the configured long-poll wait.
func longPollTimeout(cfg *coreconfig.Config) time.Duration {
	if cfg == nil || cfg.Telegram.LongPollTimeoutSeconds <= 0 {
		return defaultLongPoll
	}
	return time.Duration(cfg.Telegram.LongPollTimeoutSeconds) * time.Second
}

// BuildPoller returns a webhook listener in webhook mode and a long poller
// otherwise.
func BuildPoller(cfg *coreconfig.Config) tele.Poller {
	if cfg != nil && cfg.Telegram.RunMode == coreconfig.RunModeWebhook {
		wh := cfg.Webhook
		return &tele.Webhook{
			Listen:         net.JoinHostPort(wh.Listen, strconv.Itoa(wh.Port)),
			SecretToken:    wh.SecretToken,
			AllowedUpdates: allowedUpdates,
			Endpoint:       &tele.WebhookEndpoint{PublicURL: wh.URL},
		}
	}
	return &tele.LongPoller{
		Timeout:        longPollTimeout(cfg),
		AllowedUpdates: allowedUpdates,
	}
}
