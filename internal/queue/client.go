package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/lukeborglin-coder/mr-broker/internal/config"
)

// Enqueuer schedules ingestion work and returns the task id.
type Enqueuer interface {
	EnqueueIngestFolder(ctx context.Context, payload IngestFolderPayload) (string, error)
	EnqueueIngestDocument(ctx context.Context, payload IngestDocumentPayload) (string, error)
}

type Client struct {
	client *asynq.Client
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{
		client: asynq.NewClient(RedisOpt(cfg)),
	}
}

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) EnqueueIngestFolder(ctx context.Context, payload IngestFolderPayload) (string, error) {
	if payload.RunID == "" {
		payload.RunID = uuid.NewString()
	}
	return c.enqueue(ctx, TypeIngestFolder, payload,
		asynq.TaskID("folder:"+payload.RunID), asynq.MaxRetry(2), asynq.Timeout(10*time.Minute))
}

func (c *Client) EnqueueIngestDocument(ctx context.Context, payload IngestDocumentPayload) (string, error) {
	if payload.RunID == "" {
		payload.RunID = uuid.NewString()
	}
	return c.enqueue(ctx, TypeIngestDocument, payload,
		asynq.TaskID("doc:"+payload.RunID+":"+payload.FileID), asynq.MaxRetry(3), asynq.Timeout(5*time.Minute))
}

func (c *Client) enqueue(ctx context.Context, taskType string, payload interface{}, opts ...asynq.Option) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return info.ID, nil
}
