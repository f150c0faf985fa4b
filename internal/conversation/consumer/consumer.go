// Package consumer reads inbound lead events from the Redis stream and feeds
// them to the conversation starter.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"dealerline_backend/internal/conversation/domain"
	"dealerline_backend/platform/apperr"
	"dealerline_backend/platform/config"
	"dealerline_backend/platform/logger"
	"dealerline_backend/platform/metrics"
	"dealerline_backend/platform/retry"

	"github.com/redis/go-redis/v9"
)

const (
	payloadField  = "payload"
	readBatchSize = 10
	claimInterval = 30 * time.Second
)

// Starter begins a conversation for one lead event.
type Starter interface {
	Start(ctx context.Context, ev domain.LeadEvent) error
}

// Status is the shared stream connectivity flag. The consumer flips it as
// reads succeed or fail and the health monitor reads it.
type Status struct {
	connected atomic.Bool
}

// NewStatus creates a disconnected status flag.
func NewStatus() *Status { return &Status{} }

// Connected reports whether the consumer currently has a working stream
// connection.
func (s *Status) Connected() bool { return s.connected.Load() }

func (s *Status) set(v bool) { s.connected.Store(v) }

// Consumer is a consumer-group reader over the lead stream. Messages are
// acknowledged after successful handling, so a crash between read and ack
// leaves the message pending for reclaim. Poison messages (unparseable or
// failing validation) are acknowledged and dropped.
type Consumer struct {
	rdb      *redis.Client
	starter  Starter
	status   *Status
	log      *logger.Logger
	stream   string
	group    string
	consumer string
	block    time.Duration
	minIdle  time.Duration
	backoff  *retry.Backoff
}

// New creates a stream consumer. The consumer name must be unique per
// process so pending-entry ownership is traceable. A nil status gets a
// private flag nobody else observes.
func New(cfg config.StreamConfig, starter Starter, consumerName string, status *Status, log *logger.Logger) (*Consumer, error) {
	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}
	if status == nil {
		status = NewStatus()
	}

	block := cfg.GetLeadStreamBlock()
	if block <= 0 {
		block = time.Second
	}
	minIdle := cfg.GetLeadStreamClaimMinIdle()
	if minIdle <= 0 {
		minIdle = time.Minute
	}

	return &Consumer{
		rdb:      redis.NewClient(opt),
		starter:  starter,
		status:   status,
		log:      log.WithComponent("lead_consumer"),
		stream:   cfg.GetLeadStreamKey(),
		group:    cfg.GetLeadStreamGroup(),
		consumer: consumerName,
		block:    block,
		minIdle:  minIdle,
		backoff: retry.NewBackoff(retry.Policy{
			BaseDelay: time.Second,
			MaxDelay:  30 * time.Second,
		}),
	}, nil
}

func (c *Consumer) Close() error {
	return c.rdb.Close()
}

// ensureGroup creates the consumer group, creating the stream if needed.
// BUSYGROUP means another instance got there first.
func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Run reads until the context ends. Read failures back off exponentially and
// flip the connectivity gauge; a reclaim pass runs periodically to pick up
// messages abandoned by dead consumers.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}
	c.setConnected(true)
	defer c.setConnected(false)

	lastClaim := time.Now()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if time.Since(lastClaim) >= claimInterval {
			c.reclaim(ctx)
			lastClaim = time.Now()
		}

		streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.consumer,
			Streams:  []string{c.stream, ">"},
			Count:    readBatchSize,
			Block:    c.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				c.backoff.Reset()
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}

			c.setConnected(false)
			delay := c.backoff.Next()
			c.log.Error("stream read failed, backing off", "delay", delay, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}

		c.setConnected(true)
		c.backoff.Reset()

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				c.handle(ctx, msg)
			}
		}
	}
}

// handle processes one stream entry. Only retryable failures leave the entry
// unacked for redelivery.
func (c *Consumer) handle(ctx context.Context, msg redis.XMessage) {
	ev, err := decodeLeadEvent(msg)
	if err != nil {
		c.log.Warn("dropping malformed lead event", "messageId", msg.ID, "error", err)
		metrics.LeadsConsumed.WithLabelValues("malformed").Inc()
		c.ack(ctx, msg.ID)
		return
	}

	if err := c.starter.Start(ctx, ev); err != nil {
		if apperr.Is(err, apperr.KindValidation) {
			c.log.Warn("dropping invalid lead event", "messageId", msg.ID, "leadId", ev.ID, "error", err)
			c.ack(ctx, msg.ID)
			return
		}
		// Leave unacked; the entry stays pending and is redelivered after
		// the claim idle window.
		c.log.Error("failed to start conversation, leaving message pending",
			"messageId", msg.ID, "leadId", ev.ID, "error", err)
		return
	}

	c.ack(ctx, msg.ID)
}

// setConnected keeps the shared status flag and the Prometheus gauge in sync.
func (c *Consumer) setConnected(v bool) {
	c.status.set(v)
	if v {
		metrics.StreamConnected.Set(1)
	} else {
		metrics.StreamConnected.Set(0)
	}
}

func (c *Consumer) ack(ctx context.Context, messageID string) {
	if err := c.rdb.XAck(ctx, c.stream, c.group, messageID).Err(); err != nil {
		c.log.Error("failed to ack stream message", "messageId", messageID, "error", err)
	}
}

// reclaim takes over entries that sat pending past the idle threshold,
// typically because their consumer died mid-handling.
func (c *Consumer) reclaim(ctx context.Context) {
	messages, _, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  c.minIdle,
		Start:    "0-0",
		Count:    readBatchSize,
	}).Result()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.log.Error("failed to reclaim pending messages", "error", err)
		}
		return
	}

	if len(messages) > 0 {
		c.log.Info("reclaimed pending lead events", "count", len(messages))
	}
	for _, msg := range messages {
		c.handle(ctx, msg)
	}
}

func decodeLeadEvent(msg redis.XMessage) (domain.LeadEvent, error) {
	raw, ok := msg.Values[payloadField].(string)
	if !ok {
		return domain.LeadEvent{}, errors.New("missing payload field")
	}

	var ev domain.LeadEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return domain.LeadEvent{}, err
	}
	return ev, nil
}
