package consumer

import (
	"context"
	"sync"
	"time"

	"threshold-engine/internal/scoring/config"
	"threshold-engine/internal/scoring/service"
	"threshold-engine/pkg/common"
	"threshold-engine/pkg/logger"
	"threshold-engine/pkg/utils"
)

// RedisConsumer manages the consumption of scoring run requests from the
// Redis stream.
type RedisConsumer struct {
	cfg         *config.Config
	runConsumer service.RunConsumer
	logger      *logger.Logger
	stopChan    chan struct{}
	wg          sync.WaitGroup
}

// NewRedisConsumer creates a new RedisConsumer.
func NewRedisConsumer(cfg *config.Config, runConsumer service.RunConsumer, log *logger.Logger) *RedisConsumer {
	return &RedisConsumer{
		cfg:         cfg,
		runConsumer: runConsumer,
		logger:      log,
		stopChan:    make(chan struct{}),
	}
}

// Start begins the consumer's task processing loops.
func (c *RedisConsumer) Start(ctx context.Context) {
	c.logger.Info("Redis consumer started")
	c.registerStreamHandler(ctx, c.runConsumer.ProcessTask, common.RedisStreamScoringRun)
	c.registerTickerHandler(ctx, c.runConsumer.ProcessRetries, c.cfg.Scoring.RedisStreamRetryInterval, common.RedisStreamScoringRun+"-retry")
}

func (c *RedisConsumer) registerStreamHandler(ctx context.Context, fn func(ctx context.Context), streamName string) {
	c.logger.Info("Registering stream handler", logger.Field("stream", streamName))
	c.wg.Add(1)
	utils.GoSafe(func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("Redis consumer stopping due to context cancellation")
				return
			case <-c.stopChan:
				c.logger.Info("Redis consumer stopping")
				return
			default:
				fn(ctx)
			}
		}
	})
}

func (c *RedisConsumer) registerTickerHandler(ctx context.Context, fn func(ctx context.Context), interval time.Duration, name string) {
	c.logger.Info("Registering ticker handler",
		logger.Field("name", name),
		logger.Field("interval", interval))
	c.wg.Add(1)
	utils.GoSafe(func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				fn(ctx)
			case <-ctx.Done():
				c.logger.Info("Ticker handler stopping due to context cancellation", logger.Field("name", name))
				return
			case <-c.stopChan:
				c.logger.Info("Ticker handler stopping", logger.Field("name", name))
				return
			}
		}
	})
}

// Stop gracefully shuts down the consumer.
func (c *RedisConsumer) Stop() {
	close(c.stopChan)
	c.wg.Wait()
	c.logger.Info("Redis consumer stopped")
}
