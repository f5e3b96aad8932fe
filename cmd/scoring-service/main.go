package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"threshold-engine/internal/scoring/config"
	"threshold-engine/internal/scoring/delivery/consumer"
	delivery "threshold-engine/internal/scoring/delivery/http"
	"threshold-engine/internal/scoring/dto"
	"threshold-engine/internal/scoring/repository"
	"threshold-engine/internal/scoring/service"
	"threshold-engine/pkg/common"
	"threshold-engine/pkg/logger"
	"threshold-engine/pkg/postgres"
	pkgredis "threshold-engine/pkg/redis"
	"threshold-engine/pkg/telegram"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the scoring service",
	Run:   runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	appLogger, err := logger.New(cfg.Logger.Level, cfg.Logger.Encoding)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	appLogger.Info("Starting Scoring Service", logger.Field("name", cfg.App.Name))

	// Initialize database
	postgresCfg := postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		TimeZone:        cfg.Database.TimeZone,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        cfg.Database.LogLevel,
	}
	db, err := postgres.NewDB(postgresCfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize database", logger.ErrorField(err))
	}
	if sqlDB, err := db.DB.DB(); err == nil {
		defer sqlDB.Close()
	}

	// Initialize Redis
	redisCfg := pkgredis.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}
	redisClient, err := pkgredis.NewClient(redisCfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize Redis", logger.ErrorField(err))
	}
	defer redisClient.Close()

	// Create the consumer group if it doesn't exist
	// MKSTREAM creates the stream if it doesn't exist
	if err := redisClient.XGroupCreateMkStream(context.Background(), common.RedisStreamScoringRun, common.RedisStreamGroup, "0").Err(); err != nil {
		if err.Error() != "BUSYGROUP Consumer Group name already exists" {
			appLogger.Fatal("Failed to create consumer group", logger.ErrorField(err))
		}
	}

	// Initialize repositories
	tickerRepo := repository.NewTickerRepository(db.DB)
	runRepo := repository.NewScoringRunRepository(db.DB)
	scoreRepo := repository.NewScoreRepository(db.DB)
	signalRepo := repository.NewSignalRepository(db.DB)
	drawdownRepo := repository.NewDrawdownRepository(db.DB)
	yahooRepo := repository.NewYahooFinanceRepository(cfg, appLogger)
	fredRepo := repository.NewFREDRepository(cfg, appLogger)

	// Telegram is optional; without a bot token the service runs silent.
	var notifier telegram.Notifier
	if cfg.Telegram.BotToken != "" {
		notifier, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			appLogger.Fatal("Failed to initialize Telegram notifier", logger.ErrorField(err))
		}
	}

	// Initialize services
	runSvc := service.NewRunService(cfg, appLogger, tickerRepo, runRepo, scoreRepo, signalRepo, drawdownRepo, yahooRepo, fredRepo, notifier)
	runConsumer := service.NewRunConsumer(cfg, appLogger, redisClient.Client, runSvc, notifier)

	// Initialize and start the Redis consumer
	redisConsumer := consumer.NewRedisConsumer(cfg, runConsumer, appLogger)
	redisConsumer.Start(ctx)

	// Schedule run requests on the configured cron expression
	scheduler := cron.New()
	if cfg.Scoring.Schedule != "" {
		_, err := scheduler.AddFunc(cfg.Scoring.Schedule, func() {
			if err := publishRunRequest(ctx, redisClient.Client, "cron"); err != nil {
				appLogger.Error("Failed to publish scheduled run request", logger.ErrorField(err))
			}
		})
		if err != nil {
			appLogger.Fatal("Invalid scoring schedule", logger.ErrorField(err), logger.StringField("schedule", cfg.Scoring.Schedule))
		}
		scheduler.Start()
		appLogger.Info("Scoring schedule registered", logger.StringField("schedule", cfg.Scoring.Schedule))
	}

	// Initialize Echo server
	e := echo.New()
	e.HideBanner = true

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})

	runHandler := delivery.NewRunHandler(runRepo, scoreRepo, signalRepo, redisClient.Client, appLogger)
	apiV1 := e.Group("/api/v1")
	runHandler.RegisterRoutes(apiV1)

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.API.Port)
		appLogger.Info("HTTP server starting", logger.Field("address", addr))
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			appLogger.Error("HTTP server failed to start", logger.ErrorField(err))
			stop()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	appLogger.Info("Shutting down scoring service...")

	cronCtx := scheduler.Stop()
	<-cronCtx.Done()
	redisConsumer.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Fatal("Server forced to shutdown", logger.ErrorField(err))
	}

	appLogger.Info("Scoring service stopped")
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Runs one scoring pass and exits",
	Run:   runScoreOnce,
}

// runScoreOnce executes a single run directly, bypassing the stream. Useful
// for backfills and local verification.
func runScoreOnce(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.New(cfg.Logger.Level, cfg.Logger.Encoding)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	db, err := postgres.NewDB(postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		TimeZone:        cfg.Database.TimeZone,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        cfg.Database.LogLevel,
	})
	if err != nil {
		appLogger.Fatal("Failed to initialize database", logger.ErrorField(err))
	}
	if sqlDB, err := db.DB.DB(); err == nil {
		defer sqlDB.Close()
	}

	var notifier telegram.Notifier
	if cfg.Telegram.BotToken != "" {
		notifier, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			appLogger.Fatal("Failed to initialize Telegram notifier", logger.ErrorField(err))
		}
	}

	runSvc := service.NewRunService(
		cfg,
		appLogger,
		repository.NewTickerRepository(db.DB),
		repository.NewScoringRunRepository(db.DB),
		repository.NewScoreRepository(db.DB),
		repository.NewSignalRepository(db.DB),
		repository.NewDrawdownRepository(db.DB),
		repository.NewYahooFinanceRepository(cfg, appLogger),
		repository.NewFREDRepository(cfg, appLogger),
		notifier,
	)

	run, err := runSvc.Execute(ctx, "cli")
	if err != nil {
		appLogger.Fatal("Scoring run failed", logger.ErrorField(err))
	}
	appLogger.Info("Scoring run finished", logger.Field("run_id", run.ID))
}

func publishRunRequest(ctx context.Context, client *redis.Client, trigger string) error {
	payload, err := json.Marshal(dto.StreamDataScoringRun{
		Trigger:   trigger,
		RequestAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return client.XAdd(ctx, &redis.XAddArgs{
		Stream: common.RedisStreamScoringRun,
		Values: map[string]interface{}{"payload": string(payload)},
	}).Err()
}

func main() {
	rootCmd := &cobra.Command{Use: "scoring-service"}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "Path to the configuration file")

	rootCmd.AddCommand(serveCmd, scoreCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing scoring-service CLI: %s\n", err)
		os.Exit(1)
	}
}
