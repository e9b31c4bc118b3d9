// Package broker bridges outbox events to the shared message broker and
// consumes the same topic to trigger per-series imports. The broker is a
// Redis stream with a consumer group; redelivery past the configured bound
// routes a message to the dead-letter stream.
package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/fxrates/internal/config"
	"github.com/sawpanic/fxrates/internal/domain"
	"github.com/sawpanic/fxrates/internal/metrics"
	"github.com/sawpanic/fxrates/internal/outbox"
)

// Bridge publishes currency-enabled messages onto the broker stream.
type Bridge struct {
	client *redis.Client
	stream string
	dlq    string
	logger zerolog.Logger
}

// NewBridge builds the outbound half of the broker bridge. Stream keys carry
// the namespace prefix so the Redis instance can be shared.
func NewBridge(client *redis.Client, namespace string, cfg config.BrokerConfig) *Bridge {
	stream := fmt.Sprintf("%s:stream:%s", namespace, cfg.Stream)
	return &Bridge{
		client: client,
		stream: stream,
		dlq:    stream + ":dlq",
		logger: log.With().Str("component", "broker").Logger(),
	}
}

// Stream returns the namespaced topic key.
func (b *Bridge) Stream() string { return b.stream }

// DLQ returns the namespaced dead-letter key.
func (b *Bridge) DLQ() string { return b.dlq }

// OutboxListener translates domain events into broker messages. Created and
// updated events publish when and only when the series is enabled; disabled
// transitions complete in the outbox without producing a message.
func (b *Bridge) OutboxListener() outbox.Listener {
	return func(ctx context.Context, e domain.OutboxEvent) error {
		var event domain.CurrencyEvent
		if err := json.Unmarshal(e.Payload, &event); err != nil {
			return fmt.Errorf("failed to decode currency event payload: %w", err)
		}

		if !event.Enabled {
			b.logger.Debug().Str("currency", event.CurrencyCode).
				Msg("disabled-state event recorded, no broker message")
			return nil
		}

		return b.publish(ctx, event)
	}
}

func (b *Bridge) publish(ctx context.Context, event domain.CurrencyEvent) error {
	err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		Values: map[string]interface{}{
			"currencySeriesId": event.CurrencySeriesID,
			"currencyCode":     event.CurrencyCode,
			"correlationId":    event.CorrelationID,
		},
	}).Err()
	if err != nil {
		metrics.BrokerMessages.WithLabelValues("out", "error").Inc()
		return fmt.Errorf("failed to publish currency message: %w", err)
	}

	metrics.BrokerMessages.WithLabelValues("out", "ok").Inc()
	b.logger.Info().Str("currency", event.CurrencyCode).
		Str("correlation_id", event.CorrelationID).
		Msg("currency-enabled message published")
	return nil
}
