package alerts

import (
	"context"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBotAPI struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeBotAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func TestTelegramAlerterRequiresCredentials(t *testing.T) {
	_, err := NewTelegramAlerter("", 1)
	assert.ErrorContains(t, err, "token")

	_, err = NewTelegramAlerter("token", 0)
	assert.ErrorContains(t, err, "chat id")
}

func TestTelegramAlerterSendsMarkdown(t *testing.T) {
	api := &fakeBotAPI{}
	alerter := newTelegramAlerter(api, 42)

	err := alerter.Send(context.Background(), Alert{
		Title:     "Emergency close executed",
		Message:   "ETH long closed",
		Severity:  SeverityWarning,
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Fields:    map[string]interface{}{"pnl": -12.5},
	})
	require.NoError(t, err)
	require.Len(t, api.sent, 1)

	msg, ok := api.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, tgbotapi.ModeMarkdown, msg.ParseMode)
	assert.Contains(t, msg.Text, "[WARNING]")
	assert.Contains(t, msg.Text, "*Emergency close executed*")
	assert.Contains(t, msg.Text, "pnl: `-12.5`")
	assert.Contains(t, msg.Text, "2026-01-02 03:04:05")
}

func TestTelegramAlerterWrapsSendErrors(t *testing.T) {
	alerter := newTelegramAlerter(&fakeBotAPI{err: assert.AnError}, 42)
	err := alerter.Send(context.Background(), Alert{Title: "test"})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestFormatAlertSeverityMarkers(t *testing.T) {
	assert.Contains(t, formatAlert(Alert{Severity: SeverityCritical}), "[CRITICAL]")
	assert.Contains(t, formatAlert(Alert{Severity: SeverityWarning}), "[WARNING]")
	assert.Contains(t, formatAlert(Alert{Severity: SeverityInfo}), "[INFO]")
	assert.Contains(t, formatAlert(Alert{}), "[INFO]")
}
