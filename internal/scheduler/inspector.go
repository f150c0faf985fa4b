package scheduler

import (
	"context"
	"errors"
	"fmt"

	"dealerline_backend/internal/conversation/metricsagg"
	"dealerline_backend/platform/config"

	"github.com/hibiken/asynq"
)

// Inspector reports queue counts for the health monitor. Scheduled jobs are
// excluded from the waiting count: a deliberately delayed turn is not
// backlog.
type Inspector struct {
	inspector *asynq.Inspector
}

func NewInspector(cfg config.QueueConfig) (*Inspector, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return &Inspector{inspector: asynq.NewInspector(opt)}, nil
}

func (i *Inspector) Close() error {
	if i == nil || i.inspector == nil {
		return nil
	}
	return i.inspector.Close()
}

// QueueStats returns per-queue job counts. Waiting is pending plus retrying;
// completed and failed are the counters asynq keeps per queue. Queues that do
// not exist yet report zeroes.
func (i *Inspector) QueueStats(ctx context.Context) (map[string]metricsagg.QueueStats, error) {
	stats := make(map[string]metricsagg.QueueStats, len(QueueWeights))
	for queue := range QueueWeights {
		info, err := i.inspector.GetQueueInfo(queue)
		if err != nil {
			if errors.Is(err, asynq.ErrQueueNotFound) {
				stats[queue] = metricsagg.QueueStats{}
				continue
			}
			return nil, fmt.Errorf("failed to inspect queue %s: %w", queue, err)
		}
		stats[queue] = metricsagg.QueueStats{
			Waiting:   info.Pending + info.Retry,
			Active:    info.Active,
			Completed: info.Completed,
			Failed:    info.Failed,
		}
	}
	return stats, nil
}
