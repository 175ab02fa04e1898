package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/neurobridge-backend/orcaengine/internal/platform/elog"
)

// Logging wraps an *elog.Logger and emits one structured line per event —
// the role a global notifier would play for a UI the engine doesn't have.
type Logging struct {
	log *elog.Logger
}

// NewLogging returns a Sink that logs every event at info level.
func NewLogging(log *elog.Logger) *Logging {
	return &Logging{log: log}
}

func (l *Logging) Publish(e Event) {
	l.log.Info(string(e.Kind),
		"execution_id", e.ExecutionID,
		"application", e.Application,
		"stage_id", e.StageID,
		"task_id", e.TaskID,
		"status", e.Status,
	)
}

// RedisPublisher fans events out to a Redis pub/sub channel for external
// subscribers over the client it is given (cmd/engine creates a dedicated
// one for it) — the engine has no dedicated message bus of its own.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher returns a Sink that publishes each Event as JSON on channel.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(e Event) {
	b, err := json.Marshal(e)
	if err != nil {
		return
	}
	// Best-effort: a dropped notification never affects execution
	// correctness, which lives entirely in the store.
	_ = p.client.Publish(context.Background(), p.channel, b).Err()
}
