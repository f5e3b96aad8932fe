package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"threshold-engine/internal/engine/model"
	"threshold-engine/internal/scoring/config"
	"threshold-engine/internal/scoring/dto"
	"threshold-engine/pkg/logger"
)

const (
	fredSeriesYieldCurve      = "T10Y2Y"
	fredSeriesHighYieldSpread = "BAMLH0A0HYM2"

	highYieldSpreadElevated = 4.0
	highYieldSpreadHigh     = 6.0
)

type FREDRepository interface {
	GetYieldCurveSpread(ctx context.Context) (float64, error)
	GetCreditRisk(ctx context.Context) (model.CreditRisk, float64, error)
}

type fredRepository struct {
	cfg        *config.Config
	log        *logger.Logger
	httpClient *http.Client
	cache      *cache.Cache
}

func NewFREDRepository(cfg *config.Config, log *logger.Logger) FREDRepository {
	return &fredRepository{
		cfg: cfg,
		log: log,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cache: cache.New(1*time.Hour, 2*time.Hour),
	}
}

func (r *fredRepository) GetYieldCurveSpread(ctx context.Context) (float64, error) {
	return r.latestObservation(ctx, fredSeriesYieldCurve)
}

// GetCreditRisk classifies the high-yield OAS into LOW, ELEVATED or HIGH.
func (r *fredRepository) GetCreditRisk(ctx context.Context) (model.CreditRisk, float64, error) {
	spread, err := r.latestObservation(ctx, fredSeriesHighYieldSpread)
	if err != nil {
		return "", 0, err
	}

	risk := model.CreditRiskLow
	switch {
	case spread >= highYieldSpreadHigh:
		risk = model.CreditRiskHigh
	case spread >= highYieldSpreadElevated:
		risk = model.CreditRiskElevated
	}
	return risk, spread, nil
}

func (r *fredRepository) latestObservation(ctx context.Context, seriesID string) (float64, error) {
	if cached, found := r.cache.Get(seriesID); found {
		return cached.(float64), nil
	}

	url := fmt.Sprintf("%s/fred/series/observations?series_id=%s&api_key=%s&file_type=json&sort_order=desc&limit=10",
		r.cfg.FRED.BaseURL, seriesID, r.cfg.FRED.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.log.ErrorContext(ctx, "Failed to send request to FRED API",
			logger.StringField("series_id", seriesID),
			logger.ErrorField(err))
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}

	if resp.StatusCode != http.StatusOK {
		r.log.ErrorContext(ctx, "FRED API returned non-200 status",
			logger.StringField("series_id", seriesID),
			logger.IntField("status_code", resp.StatusCode))
		return 0, fmt.Errorf("fred request for %s failed with status %d", seriesID, resp.StatusCode)
	}

	var response dto.FREDObservationsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return 0, err
	}

	// FRED reports missing values as ".".
	for _, obs := range response.Observations {
		if obs.Value == "." {
			continue
		}
		value, err := strconv.ParseFloat(obs.Value, 64)
		if err != nil {
			continue
		}
		r.cache.Set(seriesID, value, cache.DefaultExpiration)
		return value, nil
	}

	return 0, fmt.Errorf("fred series %s has no usable observations", seriesID)
}
