package main

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/neurobridge-backend/orcaengine/internal/engine/builtin"
	"github.com/neurobridge-backend/orcaengine/internal/engine/clock"
	"github.com/neurobridge-backend/orcaengine/internal/engine/events"
	"github.com/neurobridge-backend/orcaengine/internal/engine/expr"
	"github.com/neurobridge-backend/orcaengine/internal/engine/handlers"
	"github.com/neurobridge-backend/orcaengine/internal/engine/queue"
	"github.com/neurobridge-backend/orcaengine/internal/engine/queue/memqueue"
	"github.com/neurobridge-backend/orcaengine/internal/engine/queue/redisqueue"
	"github.com/neurobridge-backend/orcaengine/internal/engine/queue/sqsqueue"
	"github.com/neurobridge-backend/orcaengine/internal/engine/registry"
	"github.com/neurobridge-backend/orcaengine/internal/engine/store"
	"github.com/neurobridge-backend/orcaengine/internal/engine/store/gormstore"
	"github.com/neurobridge-backend/orcaengine/internal/platform/elog"
)

// openDB opens the configured store driver. sqlite is the embeddable/
// single-binary default; postgres is the production driver, matching the
// teacher's two-driver gorm setup.
func openDB(cfg config) (*gorm.DB, error) {
	switch cfg.StoreDriver {
	case "postgres":
		return gorm.Open(postgres.Open(cfg.StoreDSN), &gorm.Config{})
	case "sqlite", "":
		return gorm.Open(sqlite.Open(cfg.StoreDSN), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// openQueue builds the configured transport. memqueue is process-local and
// loses state on restart; redisqueue and sqsqueue are durable.
func openQueue(ctx context.Context, cfg config) (queue.Queue, error) {
	switch cfg.QueueBackend {
	case "mem", "":
		return memqueue.New(cfg.VisibilityTimeout), nil
	case "redis":
		return redisqueue.New(redisqueue.Options{
			Addr:              cfg.RedisAddr,
			Key:               cfg.RedisKey,
			VisibilityTimeout: cfg.VisibilityTimeout,
		})
	case "sqs":
		if cfg.SQSQueueURL == "" {
			return nil, fmt.Errorf("queue.sqs_queue_url required for backend=sqs")
		}
		return sqsqueue.New(ctx, cfg.SQSQueueURL, int32(cfg.VisibilityTimeout.Seconds()))
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
	}
}

// buildEngine wires a store, queue, registries, and an event sink into a
// handlers.Engine. It registers the builtin restrictExecutionDuringTimeWindow
// stage and task itself, plus the YAML stage catalog when one is configured.
func buildEngine(ctx context.Context, cfg config, log *elog.Logger) (*handlers.Engine, queue.Queue, *gorm.DB, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open store: %w", err)
	}
	if err := gormstore.Migrate(db); err != nil {
		return nil, nil, nil, fmt.Errorf("migrate store: %w", err)
	}
	q, err := openQueue(ctx, cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open queue: %w", err)
	}

	guard, err := expr.NewStageEnabledEvaluator()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("build stageEnabled evaluator: %w", err)
	}

	sink := events.Sink(events.NewLogging(log))
	if cfg.EventsRedisChannel != "" {
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		sink = events.Multi{sink, events.NewRedisPublisher(rdb, cfg.EventsRedisChannel)}
	}

	var st store.Store = gormstore.New(db)
	tasks := registry.NewTaskRegistry()
	stages := registry.NewStageRegistry()
	if err := tasks.Register(builtin.TimeWindowStageType, builtin.Task{Clock: clock.System{}}); err != nil {
		return nil, nil, nil, fmt.Errorf("register builtin task: %w", err)
	}
	if err := stages.Register(builtin.StageDefinition{}); err != nil {
		return nil, nil, nil, fmt.Errorf("register builtin stage: %w", err)
	}
	if cfg.StageCatalog != "" {
		catalog, err := registry.LoadCatalogFile(cfg.StageCatalog)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("load stage catalog: %w", err)
		}
		if err := catalog.RegisterInto(stages); err != nil {
			return nil, nil, nil, fmt.Errorf("register stage catalog: %w", err)
		}
		log.Info("stage catalog loaded", "path", cfg.StageCatalog)
	}

	eng := handlers.New(st, q, tasks, stages, sink, nil, guard)
	return eng, q, db, nil
}
