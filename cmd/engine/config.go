package main

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// config is the engine's layered configuration surface: env-var-over-YAML-
// over-default, validated once at startup. The teacher's single JWT-secret/
// TTL config got away with raw os.Getenv; this engine's surface (queue
// backend selection, store DSN, worker concurrency, poll-interval bounds,
// visibility timeout) is wide enough that viper earns its keep.
type config struct {
	QueueBackend string // "mem" | "redis" | "sqs"
	RedisAddr    string
	RedisKey     string
	SQSQueueURL  string

	StoreDriver string // "postgres" | "sqlite"
	StoreDSN    string

	WorkerConcurrency int
	MinPollInterval   time.Duration
	MaxPollInterval   time.Duration
	VisibilityTimeout time.Duration

	Application  string
	LogMode      string // "prod" | "dev"
	StageCatalog string // optional path to a YAML stage-type catalog

	EventsRedisChannel string // optional: also fan events out to this Redis pub/sub channel
}

func loadConfig() (config, error) {
	_ = godotenv.Load() // best-effort local .env for development

	v := viper.New()
	v.SetEnvPrefix("ENGINE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	v.SetDefault("queue.backend", "mem")
	v.SetDefault("queue.redis_addr", "127.0.0.1:6379")
	v.SetDefault("queue.redis_key", "orcaengine:queue")
	v.SetDefault("queue.sqs_queue_url", "")

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "orcaengine.db")

	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.min_poll_interval", "50ms")
	v.SetDefault("worker.max_poll_interval", "2s")
	v.SetDefault("worker.visibility_timeout", "30s")

	v.SetDefault("application", "orcaengine")
	v.SetDefault("log_mode", "dev")
	v.SetDefault("stage_catalog", "")
	v.SetDefault("events.redis_channel", "")

	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return config{}, err
		}
	}

	minPoll, err := time.ParseDuration(v.GetString("worker.min_poll_interval"))
	if err != nil {
		return config{}, err
	}
	maxPoll, err := time.ParseDuration(v.GetString("worker.max_poll_interval"))
	if err != nil {
		return config{}, err
	}
	visTimeout, err := time.ParseDuration(v.GetString("worker.visibility_timeout"))
	if err != nil {
		return config{}, err
	}

	return config{
		QueueBackend:       v.GetString("queue.backend"),
		RedisAddr:          v.GetString("queue.redis_addr"),
		RedisKey:           v.GetString("queue.redis_key"),
		SQSQueueURL:        v.GetString("queue.sqs_queue_url"),
		StoreDriver:        v.GetString("store.driver"),
		StoreDSN:           v.GetString("store.dsn"),
		WorkerConcurrency:  v.GetInt("worker.concurrency"),
		MinPollInterval:    minPoll,
		MaxPollInterval:    maxPoll,
		VisibilityTimeout:  visTimeout,
		Application:        v.GetString("application"),
		LogMode:            v.GetString("log_mode"),
		StageCatalog:       v.GetString("stage_catalog"),
		EventsRedisChannel: v.GetString("events.redis_channel"),
	}, nil
}
