package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EmitToDLQ appends a failed payload to the dead-letter stream so an operator
// can replay it.
func EmitToDLQ(ctx context.Context, client redis.Cmdable, log *zap.Logger, kind string, payload []byte, cause error) error {
	values := map[string]interface{}{
		"kind":    kind,
		"payload": string(payload),
		"error":   cause.Error(),
	}
	_, dlqErr := client.XAdd(ctx, &redis.XAddArgs{
		Stream: DLQStream,
		Values: values,
	}).Result()
	if dlqErr != nil && log != nil {
		log.Error("Failed to emit to DLQ", zap.Error(dlqErr), zap.String("kind", kind))
	}
	return dlqErr
}
