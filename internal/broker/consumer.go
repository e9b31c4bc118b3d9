package broker

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/fxrates/internal/config"
	"github.com/sawpanic/fxrates/internal/domain"
	"github.com/sawpanic/fxrates/internal/metrics"
)

const (
	readBlock    = 5 * time.Second
	readCount    = 10
	claimMinIdle = 30 * time.Second
	claimEvery   = 30 * time.Second
)

// SeriesImporter is the slice of the import engine the consumer drives.
type SeriesImporter interface {
	ImportForSeries(ctx context.Context, seriesID int64) (domain.ImportResult, error)
}

// Consumer reads the currency-enabled stream and triggers per-series imports.
// Failed messages stay pending in the group; the reclaim loop retries them
// and dead-letters anything past the delivery bound.
type Consumer struct {
	client        *redis.Client
	bridge        *Bridge
	importer      SeriesImporter
	group         string
	name          string
	maxDeliveries int
	logger        zerolog.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewConsumer builds the inbound half of the broker bridge.
func NewConsumer(client *redis.Client, bridge *Bridge, importer SeriesImporter, cfg config.BrokerConfig) *Consumer {
	return &Consumer{
		client:        client,
		bridge:        bridge,
		importer:      importer,
		group:         cfg.Group,
		name:          "consumer-" + uuid.NewString()[:8],
		maxDeliveries: cfg.MaxDeliveries,
		logger:        log.With().Str("component", "broker_consumer").Logger(),
		stop:          make(chan struct{}),
	}
}

// Start ensures the consumer group exists and launches the read and reclaim
// loops.
func (c *Consumer) Start(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.bridge.Stream(), c.group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return err
	}

	c.wg.Add(2)
	go c.readLoop(ctx)
	go c.reclaimLoop(ctx)
	return nil
}

// Stop halts the loops and waits for in-flight processing.
func (c *Consumer) Stop() {
	close(c.stop)
	c.wg.Wait()
}

func isBusyGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}

func (c *Consumer) readLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.name,
			Streams:  []string{c.bridge.Stream(), ">"},
			Count:    readCount,
			Block:    readBlock,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			c.logger.Warn().Err(err).Msg("stream read failed")
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				c.handle(ctx, msg)
			}
		}
	}
}

// reclaimLoop retries messages another consumer read but never acked, and
// dead-letters anything delivered more than maxDeliveries times.
func (c *Consumer) reclaimLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(claimEvery)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.reclaim(ctx)
		}
	}
}

func (c *Consumer) reclaim(ctx context.Context) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.bridge.Stream(),
		Group:  c.group,
		Start:  "-",
		End:    "+",
		Count:  readCount,
		Idle:   claimMinIdle,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Msg("pending scan failed")
		}
		return
	}

	for _, p := range pending {
		claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   c.bridge.Stream(),
			Group:    c.group,
			Consumer: c.name,
			MinIdle:  claimMinIdle,
			Messages: []string{p.ID},
		}).Result()
		if err != nil || len(claimed) == 0 {
			continue
		}

		msg := claimed[0]
		if c.exhaustedDeliveries(p.RetryCount) {
			c.deadLetter(ctx, msg)
			continue
		}
		c.handle(ctx, msg)
	}
}

// exhaustedDeliveries reports whether a message already used its delivery
// budget. RetryCount counts deliveries so far, so a message at the bound is
// dead-lettered instead of retried once more.
func (c *Consumer) exhaustedDeliveries(deliveries int64) bool {
	return int(deliveries) >= c.maxDeliveries
}

func (c *Consumer) deadLetter(ctx context.Context, msg redis.XMessage) {
	err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.bridge.DLQ(),
		Values: msg.Values,
	}).Err()
	if err != nil {
		c.logger.Error().Err(err).Str("message", msg.ID).Msg("dead-letter publish failed")
		return
	}
	c.client.XAck(ctx, c.bridge.Stream(), c.group, msg.ID)
	metrics.BrokerMessages.WithLabelValues("in", "dead_lettered").Inc()
	c.logger.Error().Str("message", msg.ID).Msg("message routed to dead-letter stream")
}

// handle processes one message. The correlation id rides the log context for
// the duration of processing and is dropped with the scoped logger after.
func (c *Consumer) handle(ctx context.Context, msg redis.XMessage) {
	seriesID, err := strconv.ParseInt(stringValue(msg.Values, "currencySeriesId"), 10, 64)
	if err != nil {
		// Malformed payloads can never succeed; dead-letter immediately.
		c.logger.Error().Str("message", msg.ID).Msg("message missing currencySeriesId")
		c.deadLetter(ctx, msg)
		return
	}

	logger := c.logger.With().
		Str("correlation_id", stringValue(msg.Values, "correlationId")).
		Str("currency", stringValue(msg.Values, "currencyCode")).
		Logger()

	if _, err := c.importer.ImportForSeries(logger.WithContext(ctx), seriesID); err != nil {
		// Leave the message pending; the reclaim loop retries it and the
		// delivery bound eventually dead-letters it.
		logger.Warn().Err(err).Str("message", msg.ID).Msg("import for consumed message failed")
		metrics.BrokerMessages.WithLabelValues("in", "error").Inc()
		return
	}

	c.client.XAck(ctx, c.bridge.Stream(), c.group, msg.ID)
	metrics.BrokerMessages.WithLabelValues("in", "ok").Inc()
	logger.Info().Str("message", msg.ID).Msg("consumed currency-enabled message")
}

func stringValue(values map[string]interface{}, key string) string {
	if v, ok := values[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
