package trader

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/perptrader/internal/alerts"
	"github.com/ajitpratap0/perptrader/internal/config"
	"github.com/ajitpratap0/perptrader/internal/exchange"
)

// NATS subjects for external consumers.
const (
	subjectCloseEvents = "trading.events.close"
	subjectAlerts      = "trading.alerts"
)

// ClosePayload is the wire shape of a published close event.
type ClosePayload struct {
	Symbol      string                `json:"symbol"`
	Side        exchange.PositionSide `json:"side"`
	CloseReason string                `json:"close_reason"`
	TriggerType string                `json:"trigger_type"`
	ClosePrice  float64               `json:"close_price,omitempty"`
	Quantity    float64               `json:"quantity,omitempty"`
	PnL         float64               `json:"pnl"`
	Timestamp   time.Time             `json:"timestamp"`
}

// Publisher pushes close events and alerts onto NATS. A nil Publisher is
// valid and publishes nothing, so the scheduler never branches on whether
// eventing is configured.
type Publisher struct {
	conn   *nats.Conn
	logger zerolog.Logger
}

// NewPublisher connects to NATS. An empty URL disables publishing and
// returns a nil Publisher without error.
func NewPublisher(url string) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}
	logger := config.NewLogger("trader.events")
	conn, err := nats.Connect(
		url,
		nats.Name("perptrader"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	logger.Info().Str("url", url).Msg("Event publisher connected")
	return &Publisher{conn: conn, logger: logger}, nil
}

// PublishClose emits one close event. Publish failures are logged, never
// surfaced: eventing is advisory and must not disturb trading.
func (p *Publisher) PublishClose(event ClosePayload) {
	if p == nil || p.conn == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to marshal close event")
		return
	}
	if err := p.conn.Publish(subjectCloseEvents, data); err != nil {
		p.logger.Warn().Err(err).
			Str("symbol", event.Symbol).
			Str("reason", event.CloseReason).
			Msg("Failed to publish close event")
	}
}

// Send delivers an alert to the alerts subject, making the publisher one of
// the alert manager's fan-out channels.
func (p *Publisher) Send(ctx context.Context, alert alerts.Alert) error {
	if p == nil || p.conn == nil {
		return nil
	}
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshalling alert %q: %w", alert.Title, err)
	}
	if err := p.conn.Publish(subjectAlerts, data); err != nil {
		return fmt.Errorf("publishing alert %q: %w", alert.Title, err)
	}
	return nil
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to drain NATS connection")
	}
}
