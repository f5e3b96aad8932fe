package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"threshold-engine/internal/scoring/config"
	"threshold-engine/internal/scoring/dto"
	"threshold-engine/pkg/common"
	"threshold-engine/pkg/logger"
	"threshold-engine/pkg/telegram"
	"threshold-engine/pkg/utils"
)

// RunConsumer consumes scoring run requests from the Redis stream.
type RunConsumer interface {
	ProcessTask(ctx context.Context)
	ProcessRetries(ctx context.Context)
}

type runConsumer struct {
	cfg         *config.Config
	log         *logger.Logger
	redisClient *redis.Client
	runService  RunService
	notifier    telegram.Notifier
}

// NewRunConsumer creates a new RunConsumer. The notifier may be nil when
// Telegram is not configured.
func NewRunConsumer(cfg *config.Config, log *logger.Logger, redisClient *redis.Client, runService RunService, notifier telegram.Notifier) RunConsumer {
	return &runConsumer{
		cfg:         cfg,
		log:         log,
		redisClient: redisClient,
		runService:  runService,
		notifier:    notifier,
	}
}

// ProcessTask dequeues and executes a single scoring run request.
func (c *runConsumer) ProcessTask(ctx context.Context) {
	streams, err := c.redisClient.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    common.RedisStreamGroup,
		Consumer: common.RedisStreamConsumer,
		Streams:  []string{common.RedisStreamScoringRun, ">"}, // ">" means only new messages
		Count:    1,
		Block:    2 * time.Second, // Block for 2 seconds to allow graceful shutdown
	}).Result()
	if err != nil {
		// Ignore context cancellation and timeout errors, as they are expected during shutdown or idle periods.
		if err == context.Canceled || err == redis.Nil {
			return
		}
		c.log.Error("Failed to read from stream", logger.ErrorField(err))
		return
	}

	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return
	}

	message := streams[0].Messages[0]

	streamData, err := c.decode(message)
	if err != nil {
		c.log.Error("Failed to decode scoring run task", logger.ErrorField(err), logger.Field("message_id", message.ID))
		return
	}

	c.log.Debug("Processing scoring run task", logger.StringField("trigger", streamData.Trigger))

	runCtx, cancel := context.WithTimeout(ctx, c.cfg.Scoring.RedisStreamTimeout)
	defer cancel()

	if _, err := c.runService.Execute(runCtx, streamData.Trigger); err != nil {
		c.log.Error("Failed to execute scoring run", logger.ErrorField(err), logger.Field("message_id", message.ID), logger.StringField("trigger", streamData.Trigger))
		return
	}

	if err := c.AckNDel(ctx, common.RedisStreamScoringRun, message.ID); err != nil {
		c.log.Error("Failed to acknowledge and delete scoring run task", logger.ErrorField(err), logger.Field("message_id", message.ID))
		return
	}

	c.log.Debug("Scoring run task processed successfully", logger.StringField("trigger", streamData.Trigger))
}

func (c *runConsumer) AckNDel(ctx context.Context, streamName string, messageID string) error {
	if err := c.redisClient.XAck(ctx, streamName, common.RedisStreamGroup, messageID).Err(); err != nil {
		c.log.Error("Failed to acknowledge scoring run task", logger.ErrorField(err), logger.Field("message_id", messageID))
		return err
	}
	if err := c.redisClient.XDel(ctx, streamName, messageID).Err(); err != nil {
		c.log.Error("Failed to delete scoring run task", logger.ErrorField(err), logger.Field("message_id", messageID))
		return err
	}
	return nil
}

// ProcessRetries reclaims stale pending messages and re-runs them, dropping
// messages whose delivery count exceeded the configured maximum.
func (c *runConsumer) ProcessRetries(ctx context.Context) {
	msgs, _, err := c.redisClient.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   common.RedisStreamScoringRun,
		Group:    common.RedisStreamGroup,
		Consumer: common.RedisStreamConsumer + "-retry",
		MinIdle:  c.cfg.Scoring.RedisStreamMaxIdleDuration,
		Start:    "0",
		Count:    1,
	}).Result()

	if err != nil {
		c.log.Error("Failed to claim scoring run task on retry", logger.ErrorField(err))
		return
	}

	if len(msgs) == 0 {
		c.log.Debug("Retry No pending messages found", logger.StringField("stream", common.RedisStreamScoringRun))
		return
	}

	c.log.Info("Found pending messages", logger.StringField("stream", common.RedisStreamScoringRun))

	pendingInfo, err := c.redisClient.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: common.RedisStreamScoringRun,
		Group:  common.RedisStreamGroup,
		Start:  msgs[0].ID,
		End:    msgs[0].ID,
		Count:  1,
	}).Result()

	if err != nil {
		c.log.Error("Failed to get pending info", logger.ErrorField(err))
		return
	}

	if len(pendingInfo) == 0 {
		c.log.Warn("pending msg not found, but exist on xautoclaim",
			logger.StringField("stream", common.RedisStreamScoringRun),
			logger.StringField("message_id", msgs[0].ID))
		return
	}

	msg := msgs[0]
	streamData, err := c.decode(msg)
	if err != nil {
		c.log.Error("Failed to decode scoring run task on retry", logger.ErrorField(err), logger.Field("message_id", msg.ID))
		return
	}

	if pendingInfo[0].RetryCount >= int64(c.cfg.Scoring.RedisStreamMaxRetry) {
		c.log.Error("pending msg retry count exceeded",
			logger.StringField("stream", common.RedisStreamScoringRun),
			logger.StringField("message_id", msg.ID),
			logger.StringField("trigger", streamData.Trigger),
			logger.IntField("retry_count", int(pendingInfo[0].RetryCount)),
			logger.IntField("max_retry", c.cfg.Scoring.RedisStreamMaxRetry),
		)
		if c.notifier != nil {
			msgTelegram := telegram.FormatErrorAlertMessage(utils.TimeNowET(), fmt.Sprintf("Scoring run retry count exceeded for trigger %s", streamData.Trigger))
			if err := c.notifier.SendMessage(msgTelegram); err != nil {
				c.log.Error("Failed to send telegram message retry exceeded", logger.ErrorField(err), logger.StringField("trigger", streamData.Trigger))
			}
		}
		if err := c.AckNDel(ctx, common.RedisStreamScoringRun, msg.ID); err != nil {
			c.log.Error("Failed to acknowledge and delete scoring run task", logger.ErrorField(err), logger.Field("message_id", msg.ID))
		}
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, c.cfg.Scoring.RedisStreamTimeout)
	defer cancel()

	if _, err := c.runService.Execute(runCtx, streamData.Trigger); err != nil {
		c.log.Error("Failed to execute scoring run on retry", logger.ErrorField(err), logger.Field("message_id", msg.ID), logger.StringField("trigger", streamData.Trigger))
		return
	}

	if err := c.AckNDel(ctx, common.RedisStreamScoringRun, msg.ID); err != nil {
		c.log.Error("Failed to acknowledge and delete scoring run task", logger.ErrorField(err), logger.Field("message_id", msg.ID))
		return
	}
	c.log.Info("Retry scoring run task processed successfully", logger.StringField("trigger", streamData.Trigger))
}

// decode extracts the StreamDataScoringRun payload from a stream message.
func (c *runConsumer) decode(msg redis.XMessage) (*dto.StreamDataScoringRun, error) {
	taskData, ok := msg.Values["payload"].(string)
	if !ok {
		return nil, fmt.Errorf("field 'payload' not found or not a string in stream message")
	}
	var streamData dto.StreamDataScoringRun
	if err := json.Unmarshal([]byte(taskData), &streamData); err != nil {
		return nil, err
	}
	return &streamData, nil
}
