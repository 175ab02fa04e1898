// Package redisqueue implements queue.Queue on a Redis sorted set plus a
// Lua script for atomic claim-and-lease, built on the same
// redis/go-redis/v9 client (Addr/DialTimeout/Ping-on-construct) used
// elsewhere in this module for pub/sub, here repurposed as a work queue.
package redisqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/neurobridge-backend/orcaengine/internal/engine/message"
	"github.com/neurobridge-backend/orcaengine/internal/engine/queue"
)

// claimScript atomically pops the lowest-scored member that is due (score
// <= now) and re-inserts it at now+visibilityMs so no other poller can
// claim it until the lease expires or it is explicitly acked/nacked.
const claimScript = `
local zset = KEYS[1]
local now = tonumber(ARGV[1])
local visibility = tonumber(ARGV[2])
local members = redis.call('ZRANGEBYSCORE', zset, '-inf', now, 'LIMIT', 0, 1)
if #members == 0 then
  return nil
end
local member = members[1]
redis.call('ZADD', zset, now + visibility, member)
return member
`

// Queue implements queue.Queue against a single Redis sorted set keyed by
// name, where the member is the JSON-encoded message and the score is the
// next-visible-at unix millisecond timestamp.
type Queue struct {
	client            *redis.Client
	key               string
	visibilityTimeout time.Duration
	claim             *redis.Script
}

// Options configures New.
type Options struct {
	Addr              string
	Key               string
	VisibilityTimeout time.Duration
	DialTimeout       time.Duration
}

// New dials Redis, pings it to fail fast on a bad address, then returns a
// Queue backed by Options.Key.
func New(opts Options) (*Queue, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redisqueue: Addr required")
	}
	if opts.Key == "" {
		opts.Key = "orcaengine:queue"
	}
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = 30 * time.Second
	}
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		DialTimeout: dialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisqueue: ping: %w", err)
	}

	return &Queue{
		client:            client,
		key:               opts.Key,
		visibilityTimeout: opts.VisibilityTimeout,
		claim:             redis.NewScript(claimScript),
	}, nil
}

// NewFromClient wraps an already-constructed client (used by tests against
// miniredis, or by a caller that already holds a client).
func NewFromClient(client *redis.Client, key string, visibilityTimeout time.Duration) *Queue {
	if key == "" {
		key = "orcaengine:queue"
	}
	if visibilityTimeout <= 0 {
		visibilityTimeout = 30 * time.Second
	}
	return &Queue{client: client, key: key, visibilityTimeout: visibilityTimeout, claim: redis.NewScript(claimScript)}
}

type token struct {
	Member string
}

func (q *Queue) Push(ctx context.Context, msg message.Message) error {
	return q.PushDelay(ctx, msg, 0)
}

func (q *Queue) PushDelay(ctx context.Context, msg message.Message, delay time.Duration) error {
	raw, err := encode(msg)
	if err != nil {
		return err
	}
	score := float64(time.Now().Add(delay).UnixMilli())
	return q.client.ZAdd(ctx, q.key, redis.Z{Score: score, Member: raw}).Err()
}

func (q *Queue) Poll(ctx context.Context) (queue.Delivery, bool, error) {
	now := time.Now().UnixMilli()
	res, err := q.claim.Run(ctx, q.client, []string{q.key}, now, q.visibilityTimeout.Milliseconds()).Result()
	if err == redis.Nil {
		return queue.Delivery{}, false, nil
	}
	if err != nil {
		return queue.Delivery{}, false, err
	}
	member, ok := res.(string)
	if !ok {
		return queue.Delivery{}, false, nil
	}
	msg, err := decode(member)
	if err != nil {
		return queue.Delivery{}, false, err
	}
	return queue.Delivery{Message: msg, Token: token{Member: member}}, true, nil
}

func (q *Queue) Ack(ctx context.Context, tok queue.AckToken) error {
	t, ok := tok.(token)
	if !ok {
		return nil
	}
	return q.client.ZRem(ctx, q.key, t.Member).Err()
}

func (q *Queue) Nack(ctx context.Context, tok queue.AckToken) error {
	t, ok := tok.(token)
	if !ok {
		return nil
	}
	return q.client.ZAdd(ctx, q.key, redis.Z{Score: float64(time.Now().UnixMilli()), Member: t.Member}).Err()
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func encode(msg message.Message) (string, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	// Prefix with a random nonce so two structurally identical messages
	// (e.g. two StartStage retries) don't collide as the same sorted-set
	// member.
	return uuid.NewString() + ":" + string(b), nil
}

func decode(member string) (message.Message, error) {
	idx := len(member)
	for i, c := range member {
		if c == ':' {
			idx = i
			break
		}
	}
	if idx >= len(member) {
		return message.Message{}, fmt.Errorf("redisqueue: malformed queue member")
	}
	var msg message.Message
	if err := json.Unmarshal([]byte(member[idx+1:]), &msg); err != nil {
		return message.Message{}, err
	}
	return msg, nil
}
