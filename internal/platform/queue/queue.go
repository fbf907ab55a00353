// Package queue wires asynq onto the shared Redis client.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	TypeMailSend  = "mail:send"
	TypeQueueBeat = "health:queue_beat"

	DefaultQueue = "default"
)

// redisConnOpt hands an existing client to asynq instead of opening a new pool.
type redisConnOpt struct {
	client redis.UniversalClient
}

func (r redisConnOpt) MakeRedisClient() interface{} {
	return r.client
}

// Enqueuer is implemented by *Client and by test doubles.
type Enqueuer interface {
	Enqueue(ctx context.Context, taskType string, payload any, queueName string) error
}

type Client struct {
	client *asynq.Client
}

func NewClient(rdb redis.UniversalClient) *Client {
	return &Client{client: asynq.NewClient(redisConnOpt{client: rdb})}
}

func (c *Client) Enqueue(ctx context.Context, taskType string, payload any, queueName string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal task payload: %w", err)
	}
	if queueName == "" {
		queueName = DefaultQueue
	}

	info, err := c.client.EnqueueContext(ctx, asynq.NewTask(taskType, data),
		asynq.Queue(queueName),
		asynq.MaxRetry(5),
		asynq.Timeout(time.Minute),
	)
	if err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}

	log.Debug().Str("task_type", taskType).Str("queue", queueName).Str("task_id", info.ID).Msg("task enqueued")
	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// NewServer builds the asynq worker server. Queues maps queue names to priority weights.
func NewServer(rdb redis.UniversalClient, concurrency int, queues map[string]int) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 5
	}
	if len(queues) == 0 {
		queues = map[string]int{DefaultQueue: 1}
	}
	return asynq.NewServer(redisConnOpt{client: rdb}, asynq.Config{
		Concurrency:     concurrency,
		Queues:          queues,
		Logger:          loggerAdapter{},
		ShutdownTimeout: 10 * time.Second,
	})
}

// loggerAdapter routes asynq's logs through zerolog.
type loggerAdapter struct{}

func (loggerAdapter) Debug(args ...any) { log.Debug().Msg(fmt.Sprint(args...)) }
func (loggerAdapter) Info(args ...any)  { log.Info().Msg(fmt.Sprint(args...)) }
func (loggerAdapter) Warn(args ...any)  { log.Warn().Msg(fmt.Sprint(args...)) }
func (loggerAdapter) Error(args ...any) { log.Error().Msg(fmt.Sprint(args...)) }
func (loggerAdapter) Fatal(args ...any) { log.Fatal().Msg(fmt.Sprint(args...)) }
