package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/docgen/internal/config"
)

// Client enqueues generation jobs for cmd/worker. It satisfies
// generation.Dispatcher.
type Client struct {
	client  *asynq.Client
	timeout time.Duration
}

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// NewClient builds a client whose tasks outlive the generation timeout by a
// small margin, so asynq never kills a run the worker would still finish.
func NewClient(cfg config.RedisConfig, generationTimeout time.Duration) *Client {
	return &Client{
		client:  asynq.NewClient(RedisOpt(cfg)),
		timeout: generationTimeout + 30*time.Second,
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Dispatch enqueues the job once. Re-dispatching the same id is a no-op.
func (c *Client) Dispatch(ctx context.Context, jobID uuid.UUID) error {
	err := c.enqueue(ctx, TypeGenerationRun, GenerationRunPayload{JobID: jobID.String()},
		asynq.MaxRetry(0),
		asynq.Timeout(c.timeout),
		asynq.TaskID(jobID.String()),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func (c *Client) enqueue(ctx context.Context, taskType string, payload any, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	_, err = c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}
