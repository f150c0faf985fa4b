package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"dealerline_backend/platform/config"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Client enqueues conversation turn jobs. Implements the engine's
// TurnScheduler interface.
type Client struct {
	client     *asynq.Client
	maxRetries int
}

func NewClient(cfg config.QueueConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	maxRetries := cfg.GetTurnMaxRetries()
	if maxRetries < 0 {
		maxRetries = 3
	}

	return &Client{
		client:     asynq.NewClient(opt),
		maxRetries: maxRetries,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// ScheduleTurn enqueues one turn job on the queue matching the conversation's
// priority. The task ID dedupes concurrent schedules of the same turn; a
// conflict means the turn is already queued and is treated as success.
func (c *Client) ScheduleTurn(ctx context.Context, conversationID uuid.UUID, turn int, priority int, delay time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewConversationTurnTask(ConversationTurnPayload{
		ConversationID: conversationID.String(),
		Turn:           turn,
	})
	if err != nil {
		return err
	}

	opts := []asynq.Option{
		asynq.Queue(QueueForPriority(priority)),
		asynq.MaxRetry(c.maxRetries),
		asynq.TaskID(TurnTaskID(conversationID.String(), turn)),
	}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}

	_, err = c.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
