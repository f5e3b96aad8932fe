package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"threshold-engine/internal/entity"
	"threshold-engine/internal/scoring/dto"
	"threshold-engine/internal/scoring/repository"
	"threshold-engine/pkg/common"
	"threshold-engine/pkg/logger"
)

// RunHandler handles HTTP requests for scoring runs and their results.
type RunHandler struct {
	runRepo     repository.ScoringRunRepository
	scoreRepo   repository.ScoreRepository
	signalRepo  repository.SignalRepository
	redisClient *redis.Client
	logger      *logger.Logger
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(
	runRepo repository.ScoringRunRepository,
	scoreRepo repository.ScoreRepository,
	signalRepo repository.SignalRepository,
	redisClient *redis.Client,
	log *logger.Logger,
) *RunHandler {
	return &RunHandler{
		runRepo:     runRepo,
		scoreRepo:   scoreRepo,
		signalRepo:  signalRepo,
		redisClient: redisClient,
		logger:      log,
	}
}

// RegisterRoutes registers the scoring routes to the Echo group.
func (h *RunHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/runs", h.TriggerRun)
	g.GET("/runs/latest", h.GetLatestRun)
	g.GET("/runs/:id", h.GetRunByID)
	g.GET("/runs/:id/scores", h.GetRunScores)
	g.GET("/runs/:id/signals", h.GetRunSignals)
	g.GET("/scores/:symbol/history", h.GetScoreHistory)
}

// TriggerRun publishes a scoring run request to the stream. The run itself
// executes asynchronously on the consumer.
func (h *RunHandler) TriggerRun(c echo.Context) error {
	payload, err := json.Marshal(dto.StreamDataScoringRun{
		Trigger:   "api",
		RequestAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Message: "Failed to build run request"})
	}

	err = h.redisClient.XAdd(c.Request().Context(), &redis.XAddArgs{
		Stream: common.RedisStreamScoringRun,
		Values: map[string]interface{}{"payload": string(payload)},
	}).Err()
	if err != nil {
		h.logger.Error("Failed to publish scoring run request", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Message: "Failed to queue scoring run"})
	}

	return c.JSON(http.StatusAccepted, echo.Map{"status": "queued"})
}

func (h *RunHandler) GetLatestRun(c echo.Context) error {
	run, err := h.runRepo.GetLatest(c.Request().Context())
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.JSON(http.StatusNotFound, dto.ErrorResponse{Message: "No scoring runs found"})
		}
		h.logger.Error("Failed to get latest run", logger.ErrorField(err))
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Message: "Failed to get latest run"})
	}
	return c.JSON(http.StatusOK, toRunResponse(run))
}

func (h *RunHandler) GetRunByID(c echo.Context) error {
	runID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid run ID"})
	}

	run, err := h.runRepo.GetByID(c.Request().Context(), runID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.JSON(http.StatusNotFound, dto.ErrorResponse{Message: "Run not found"})
		}
		h.logger.Error("Failed to get run", logger.ErrorField(err), logger.Field("run_id", runID))
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Message: "Failed to get run"})
	}
	return c.JSON(http.StatusOK, toRunResponse(run))
}

func (h *RunHandler) GetRunScores(c echo.Context) error {
	runID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid run ID"})
	}

	scores, err := h.scoreRepo.GetByRunID(c.Request().Context(), runID)
	if err != nil {
		h.logger.Error("Failed to get run scores", logger.ErrorField(err), logger.Field("run_id", runID))
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Message: "Failed to get scores"})
	}

	out := make([]dto.ScoreResponse, 0, len(scores))
	for _, s := range scores {
		out = append(out, toScoreResponse(s))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *RunHandler) GetRunSignals(c echo.Context) error {
	runID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid run ID"})
	}

	signals, err := h.signalRepo.GetByRunID(c.Request().Context(), runID)
	if err != nil {
		h.logger.Error("Failed to get run signals", logger.ErrorField(err), logger.Field("run_id", runID))
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Message: "Failed to get signals"})
	}

	out := make([]dto.SignalResponse, 0, len(signals))
	for _, s := range signals {
		out = append(out, dto.SignalResponse{
			Symbol:    s.Symbol,
			Type:      s.Type,
			Severity:  s.Severity,
			Criterion: s.Criterion,
			Message:   s.Message,
			Metadata:  json.RawMessage(s.Metadata),
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *RunHandler) GetScoreHistory(c echo.Context) error {
	symbol := c.Param("symbol")
	if symbol == "" {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Symbol is required"})
	}

	limit := 30
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid limit"})
		}
		limit = parsed
	}

	scores, err := h.scoreRepo.GetHistory(c.Request().Context(), symbol, limit)
	if err != nil {
		h.logger.Error("Failed to get score history", logger.ErrorField(err), logger.StringField("symbol", symbol))
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Message: "Failed to get score history"})
	}

	out := make([]dto.ScoreResponse, 0, len(scores))
	for _, s := range scores {
		out = append(out, toScoreResponse(s))
	}
	return c.JSON(http.StatusOK, out)
}

func toRunResponse(run *entity.ScoringRun) dto.RunResponse {
	return dto.RunResponse{
		ID:          run.ID,
		AsOf:        run.AsOf,
		Status:      run.Status,
		VIXLevel:    run.VIXLevel,
		VIXRegime:   run.VIXRegime,
		TickerCount: run.TickerCount,
		ScoredCount: run.ScoredCount,
		FailedCount: run.FailedCount,
		FinishedAt:  run.FinishedAt,
	}
}

func toScoreResponse(s entity.Score) dto.ScoreResponse {
	return dto.ScoreResponse{
		Symbol:       s.Symbol,
		RawScore:     s.RawScore,
		FinalScore:   s.FinalScore,
		SignalLabel:  s.SignalLabel,
		NetAction:    s.NetAction,
		FKCapApplied: s.FKCapApplied,
		SubScores:    json.RawMessage(s.SubScores),
		Modifiers:    json.RawMessage(s.Modifiers),
		Technicals:   json.RawMessage(s.Technicals),
		CreatedAt:    s.CreatedAt,
	}
}
