package jobs

import (
	"context"

	"github.com/hibiken/asynq"
)

// Enqueuer submits reload checks.
type Enqueuer interface {
	EnqueueRegistryReload(ctx context.Context, force bool) (*asynq.TaskInfo, error)
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueueRegistryReload enqueues a reload check. A second unforced check
// while one is pending fails with asynq.ErrDuplicateTask.
func (c *Client) EnqueueRegistryReload(ctx context.Context, force bool) (*asynq.TaskInfo, error) {
	task, err := NewRegistryReloadTask(force)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

var _ Enqueuer = (*Client)(nil)
