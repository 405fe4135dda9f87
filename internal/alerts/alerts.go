// Package alerts fans operator notifications out to the configured
// channels: structured logs always, Telegram when credentials are set.
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/perptrader/internal/config"
)

// Severity grades an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is one operator notification.
type Alert struct {
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Severity  Severity               `json:"severity"`
	Timestamp time.Time              `json:"timestamp"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Alerter delivers alerts over one channel.
type Alerter interface {
	Send(ctx context.Context, alert Alert) error
}

// Manager fans alerts out to every channel. Channel failures are logged
// and do not block the others; the last error is returned for visibility.
type Manager struct {
	alerters []Alerter
	logger   zerolog.Logger
}

// NewManager builds the fan-out from the alert configuration: the log
// channel always, Telegram when a token is configured.
func NewManager(cfg config.AlertConfig) *Manager {
	m := &Manager{
		alerters: []Alerter{NewLogAlerter()},
		logger:   config.NewLogger("alerts"),
	}
	if cfg.TelegramToken != "" {
		tg, err := NewTelegramAlerter(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			m.logger.Warn().Err(err).Msg("Telegram alerter disabled")
		} else {
			m.alerters = append(m.alerters, tg)
		}
	}
	return m
}

// NewManagerWith builds a fan-out over explicit channels.
func NewManagerWith(alerters ...Alerter) *Manager {
	return &Manager{alerters: alerters, logger: config.NewLogger("alerts")}
}

// Add appends another delivery channel to the fan-out.
func (m *Manager) Add(a Alerter) {
	m.alerters = append(m.alerters, a)
}

// Send delivers the alert to every channel.
func (m *Manager) Send(ctx context.Context, alert Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}
	var lastErr error
	for _, a := range m.alerters {
		if err := a.Send(ctx, alert); err != nil {
			m.logger.Error().Err(err).Str("title", alert.Title).Msg("Failed to send alert")
			lastErr = err
		}
	}
	return lastErr
}

// OrderFailed reports a rejected or errored order placement.
func (m *Manager) OrderFailed(ctx context.Context, symbol, side string, quantity float64, err error) {
	_ = m.Send(ctx, Alert{
		Title:    "Order placement failed",
		Message:  fmt.Sprintf("Failed to place %s order for %s: %v", side, symbol, err),
		Severity: SeverityCritical,
		Fields: map[string]interface{}{
			"symbol":   symbol,
			"side":     side,
			"quantity": quantity,
			"error":    err.Error(),
		},
	})
}

// BarePosition reports an entry that filled while the protective orders
// could not be registered. The position is live and unguarded.
func (m *Manager) BarePosition(ctx context.Context, symbol, side string, quantity float64, err error) {
	_ = m.Send(ctx, Alert{
		Title:    "Position without protective orders",
		Message:  fmt.Sprintf("%s %s filled but stop registration failed: %v", symbol, side, err),
		Severity: SeverityCritical,
		Fields: map[string]interface{}{
			"symbol":   symbol,
			"side":     side,
			"quantity": quantity,
			"error":    err.Error(),
		},
	})
}

// EmergencyClose reports a reversal-monitor close.
func (m *Manager) EmergencyClose(ctx context.Context, symbol, side string, pnl float64, reason string) {
	_ = m.Send(ctx, Alert{
		Title:    "Emergency close executed",
		Message:  fmt.Sprintf("%s %s closed: %s (PnL %.4f)", symbol, side, reason, pnl),
		Severity: SeverityWarning,
		Fields: map[string]interface{}{
			"symbol": symbol,
			"side":   side,
			"pnl":    pnl,
			"reason": reason,
		},
	})
}

// DrawdownWarning reports the account crossing the warning threshold.
func (m *Manager) DrawdownWarning(ctx context.Context, drawdownPct, thresholdPct, equity float64) {
	_ = m.Send(ctx, Alert{
		Title:    "Account drawdown warning",
		Message:  fmt.Sprintf("Drawdown %.2f%% exceeds the %.2f%% warning threshold", drawdownPct, thresholdPct),
		Severity: SeverityWarning,
		Fields: map[string]interface{}{
			"drawdown_pct":  drawdownPct,
			"threshold_pct": thresholdPct,
			"equity":        equity,
		},
	})
}

// BreakerOpen reports a tripped dependency circuit breaker.
func (m *Manager) BreakerOpen(ctx context.Context, dependency string) {
	_ = m.Send(ctx, Alert{
		Title:    "Circuit breaker open",
		Message:  fmt.Sprintf("The %s breaker is open; related operations are suspended", dependency),
		Severity: SeverityWarning,
		Fields:   map[string]interface{}{"dependency": dependency},
	})
}

// LogAlerter writes alerts to the structured log.
type LogAlerter struct {
	logger zerolog.Logger
}

// NewLogAlerter creates the log channel.
func NewLogAlerter() *LogAlerter {
	return &LogAlerter{logger: config.NewLogger("alerts.log")}
}

// Send logs the alert at a level matching its severity.
func (l *LogAlerter) Send(ctx context.Context, alert Alert) error {
	event := l.logger.Info()
	switch alert.Severity {
	case SeverityCritical:
		event = l.logger.Error()
	case SeverityWarning:
		event = l.logger.Warn()
	}
	for key, value := range alert.Fields {
		event = event.Interface(key, value)
	}
	event.
		Str("alert_title", alert.Title).
		Str("alert_severity", string(alert.Severity)).
		Time("alert_time", alert.Timestamp).
		Msg(alert.Message)
	return nil
}
