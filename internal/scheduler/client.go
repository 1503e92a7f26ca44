package scheduler

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"commhistory_backend/platform/config"
)

type Client struct {
	client *asynq.Client
	queue  string
}

func redisClientOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr: cfg.GetRedisAddr(),
		DB:   cfg.GetRedisDB(),
	}
}

func NewClient(cfg config.SchedulerConfig) *Client {
	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	return &Client{
		client: asynq.NewClient(redisClientOpt(cfg)),
		queue:  queue,
	}
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// ScheduleEventsPrune enqueues a one-off prune run at the given time.
func (c *Client) ScheduleEventsPrune(ctx context.Context, payload EventsPrunePayload, runAt time.Time) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewEventsPruneTask(payload)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.ProcessAt(runAt), asynq.Queue(c.queue))
	return err
}
