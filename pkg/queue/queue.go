package queue

import (
	"github.com/hibiken/asynq"

	"github.com/hugh/funnel-builder/pkg/config"
)

// Queue names. Weights are set in NewServer.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

func redisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
	}
}

func NewClient(cfg *config.RedisConfig) *asynq.Client {
	return asynq.NewClient(redisOpt(cfg))
}

// NewServer creates the worker server. retryDelay may be nil for asynq's
// default backoff.
func NewServer(cfg *config.RedisConfig, concurrency int, errHandler asynq.ErrorHandler, retryDelay asynq.RetryDelayFunc) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 10
	}

	return asynq.NewServer(
		redisOpt(cfg),
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				QueueCritical: 6,
				QueueDefault:  3,
				QueueLow:      1,
			},
			ErrorHandler:   errHandler,
			RetryDelayFunc: retryDelay,
		},
	)
}

// NewScheduler runs periodic tasks such as the domain sweep.
func NewScheduler(cfg *config.RedisConfig) *asynq.Scheduler {
	return asynq.NewScheduler(redisOpt(cfg), nil)
}
