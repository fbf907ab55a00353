package mail

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// NewTaskHandler returns the queue handler that drains mail:send tasks.
func NewTaskHandler(sender Sender) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var msg Message
		if err := json.Unmarshal(t.Payload(), &msg); err != nil {
			return fmt.Errorf("decode mail task: %v: %w", err, asynq.SkipRetry)
		}
		return sender.Send(ctx, msg)
	}
}
