package alerts

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/perptrader/internal/config"
)

// telegramAPI is the slice of the bot client the alerter uses; tests swap
// in a recorder.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramAlerter delivers alerts to a single operator chat.
type TelegramAlerter struct {
	api    telegramAPI
	chatID int64
	logger zerolog.Logger
}

// NewTelegramAlerter connects the bot and targets the given chat.
func NewTelegramAlerter(botToken string, chatID int64) (*TelegramAlerter, error) {
	if botToken == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("telegram chat id is not set")
	}
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("connecting telegram bot: %w", err)
	}
	return newTelegramAlerter(api, chatID), nil
}

func newTelegramAlerter(api telegramAPI, chatID int64) *TelegramAlerter {
	return &TelegramAlerter{
		api:    api,
		chatID: chatID,
		logger: config.NewLogger("alerts.telegram"),
	}
}

// Send delivers one alert as a Markdown message.
func (t *TelegramAlerter) Send(ctx context.Context, alert Alert) error {
	msg := tgbotapi.NewMessage(t.chatID, formatAlert(alert))
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("sending telegram alert %q: %w", alert.Title, err)
	}
	t.logger.Debug().Str("alert_title", alert.Title).Msg("Telegram alert sent")
	return nil
}

func formatAlert(alert Alert) string {
	var marker string
	switch alert.Severity {
	case SeverityCritical:
		marker = "CRITICAL"
	case SeverityWarning:
		marker = "WARNING"
	default:
		marker = "INFO"
	}

	message := fmt.Sprintf("[%s] *%s*\n\n%s", marker, alert.Title, alert.Message)
	if len(alert.Fields) > 0 {
		message += "\n"
		for key, value := range alert.Fields {
			message += fmt.Sprintf("\n%s: `%v`", key, value)
		}
	}
	message += fmt.Sprintf("\n\n_%s_", alert.Timestamp.Format("2006-01-02 15:04:05"))
	return message
}
