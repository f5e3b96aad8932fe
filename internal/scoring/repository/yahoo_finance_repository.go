package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"threshold-engine/internal/engine/model"
	"threshold-engine/internal/scoring/config"
	"threshold-engine/internal/scoring/dto"
	"threshold-engine/pkg/logger"
	"threshold-engine/pkg/utils"
)

type YahooFinanceRepository interface {
	GetDailyPrices(ctx context.Context, symbol string, lookbackDays int) (model.PriceSeries, error)
	GetLatestQuote(ctx context.Context, symbol string) (float64, error)
}

type yahooFinanceRepository struct {
	cfg            *config.Config
	log            *logger.Logger
	httpClient     *http.Client
	requestLimiter *rate.Limiter
	cache          *cache.Cache
}

func NewYahooFinanceRepository(cfg *config.Config, log *logger.Logger) YahooFinanceRepository {
	secondsPerRequest := time.Minute / time.Duration(cfg.YahooFinance.MaxRequestPerMinute)
	requestLimiter := rate.NewLimiter(rate.Every(secondsPerRequest), 1)
	return &yahooFinanceRepository{
		cfg: cfg,
		log: log,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		requestLimiter: requestLimiter,
		cache:          cache.New(15*time.Minute, 30*time.Minute),
	}
}

func (r *yahooFinanceRepository) GetDailyPrices(ctx context.Context, symbol string, lookbackDays int) (model.PriceSeries, error) {
	cacheKey := fmt.Sprintf("prices:%s:%d", symbol, lookbackDays)
	if cached, found := r.cache.Get(cacheKey); found {
		return cached.(model.PriceSeries), nil
	}

	url := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=%dd", r.cfg.YahooFinance.BaseURL, symbol, lookbackDays)
	result, err := r.fetchChart(ctx, url, symbol)
	if err != nil {
		return nil, err
	}

	quotes := result.Indicators.Quote
	if len(quotes) == 0 {
		return nil, fmt.Errorf("yahoo chart for %s has no quote data", symbol)
	}
	q := quotes[0]

	prices := make(model.PriceSeries, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(q.Close) || q.Close[i] == nil {
			continue
		}
		bar := model.Bar{
			Date:  utils.DateOnly(time.Unix(ts, 0).UTC()),
			Close: *q.Close[i],
		}
		if i < len(q.Open) && q.Open[i] != nil {
			bar.Open = *q.Open[i]
		}
		if i < len(q.High) && q.High[i] != nil {
			bar.High = *q.High[i]
		}
		if i < len(q.Low) && q.Low[i] != nil {
			bar.Low = *q.Low[i]
		}
		if i < len(q.Volume) && q.Volume[i] != nil {
			bar.Volume = *q.Volume[i]
		}
		prices = append(prices, bar)
	}

	if err := prices.Validate(); err != nil {
		return nil, fmt.Errorf("yahoo chart for %s: %w", symbol, err)
	}

	r.log.DebugContext(ctx, "Fetched daily prices",
		logger.StringField("symbol", symbol),
		logger.IntField("bars", len(prices)))

	r.cache.Set(cacheKey, prices, cache.DefaultExpiration)
	return prices, nil
}

func (r *yahooFinanceRepository) GetLatestQuote(ctx context.Context, symbol string) (float64, error) {
	cacheKey := "quote:" + symbol
	if cached, found := r.cache.Get(cacheKey); found {
		return cached.(float64), nil
	}

	url := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=5d", r.cfg.YahooFinance.BaseURL, symbol)
	result, err := r.fetchChart(ctx, url, symbol)
	if err != nil {
		return 0, err
	}

	price := result.Meta.RegularMarketPrice
	if price <= 0 {
		return 0, fmt.Errorf("yahoo quote for %s has no market price", symbol)
	}

	r.cache.Set(cacheKey, price, cache.DefaultExpiration)
	return price, nil
}

func (r *yahooFinanceRepository) fetchChart(ctx context.Context, url, symbol string) (*dto.YahooChartResult, error) {
	body, err := r.sendRequest(ctx, url)
	if err != nil {
		return nil, err
	}

	var response dto.YahooChartResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, err
	}

	if response.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo chart error for %s: %s", symbol, response.Chart.Error.Description)
	}
	if len(response.Chart.Result) == 0 {
		return nil, fmt.Errorf("yahoo chart for %s returned no result", symbol)
	}
	return &response.Chart.Result[0], nil
}

func (r *yahooFinanceRepository) sendRequest(ctx context.Context, url string) ([]byte, error) {
	fields := []zap.Field{
		zap.String("url", url),
		zap.Int("max_request_per_minute", r.cfg.YahooFinance.MaxRequestPerMinute),
	}

	if err := r.requestLimiter.Wait(ctx); err != nil {
		fields = append(fields, zap.Error(err))
		r.log.ErrorContext(ctx, "Failed to wait for request limit", fields...)
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		fields = append(fields, zap.Error(err))
		r.log.ErrorContext(ctx, "Failed to create new http request", fields...)
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		fields = append(fields, zap.Error(err))
		r.log.ErrorContext(ctx, "Failed to send request to Yahoo Finance API", fields...)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fields = append(fields, zap.Error(err))
		r.log.ErrorContext(ctx, "Failed to read response body", fields...)
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		fields = append(fields, zap.Int("status_code", resp.StatusCode))
		r.log.ErrorContext(ctx, "Yahoo Finance API returned non-200 status", fields...)
		return nil, fmt.Errorf("yahoo finance request failed with status %d", resp.StatusCode)
	}

	return body, nil
}
