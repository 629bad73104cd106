package deadletter

import (
	"context"
	"fmt"

	"finetunedb/internal/config"
)

// QueueName is the Redis hash suffix used for rejected ingestion events
const QueueName = "ingest"

// Open builds the sink selected by cfg.Backend. The "none" backend returns a nil Sink.
func Open(ctx context.Context, cfg config.DeadLetterConfig, redisCfg config.RedisConfig) (Sink, error) {
	switch cfg.Backend {
	case config.DeadLetterNone:
		return nil, nil
	case config.DeadLetterMemory, "":
		return NewMemoryQueue(cfg.Capacity), nil
	case config.DeadLetterRedis:
		q, err := DialRedisQueue(ctx, redisCfg, QueueName)
		if err != nil {
			return nil, err
		}
		return q, nil
	case config.DeadLetterS3:
		a, err := NewS3Archive(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Prefix, cfg.PodName)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
	return nil, fmt.Errorf("unknown dead-letter backend %q", cfg.Backend)
}
