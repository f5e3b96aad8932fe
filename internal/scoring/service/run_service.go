package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/datatypes"

	"threshold-engine/internal/engine/composite"
	"threshold-engine/internal/engine/model"
	"threshold-engine/internal/engine/scorer"
	"threshold-engine/internal/engine/signalboard"
	"threshold-engine/internal/engine/technical"
	"threshold-engine/internal/entity"
	"threshold-engine/internal/scoring/config"
	"threshold-engine/internal/scoring/repository"
	"threshold-engine/pkg/logger"
	"threshold-engine/pkg/telegram"
	"threshold-engine/pkg/utils"
)

// RunService executes full scoring runs over the active ticker universe.
type RunService interface {
	Execute(ctx context.Context, trigger string) (*entity.ScoringRun, error)
}

type runService struct {
	cfg          *config.Config
	log          *logger.Logger
	tickerRepo   repository.TickerRepository
	runRepo      repository.ScoringRunRepository
	scoreRepo    repository.ScoreRepository
	signalRepo   repository.SignalRepository
	drawdownRepo repository.DrawdownRepository
	yahooRepo    repository.YahooFinanceRepository
	fredRepo     repository.FREDRepository
	notifier     telegram.Notifier
}

// NewRunService creates a new RunService. The notifier may be nil when
// Telegram is not configured.
func NewRunService(
	cfg *config.Config,
	log *logger.Logger,
	tickerRepo repository.TickerRepository,
	runRepo repository.ScoringRunRepository,
	scoreRepo repository.ScoreRepository,
	signalRepo repository.SignalRepository,
	drawdownRepo repository.DrawdownRepository,
	yahooRepo repository.YahooFinanceRepository,
	fredRepo repository.FREDRepository,
	notifier telegram.Notifier,
) RunService {
	return &runService{
		cfg:          cfg,
		log:          log,
		tickerRepo:   tickerRepo,
		runRepo:      runRepo,
		scoreRepo:    scoreRepo,
		signalRepo:   signalRepo,
		drawdownRepo: drawdownRepo,
		yahooRepo:    yahooRepo,
		fredRepo:     fredRepo,
		notifier:     notifier,
	}
}

// Execute runs one scoring pass: fetch prices for the active universe, build
// the shared market context, score every ticker on a bounded worker pool and
// persist the results. A single ticker failing does not abort the run.
func (s *runService) Execute(ctx context.Context, trigger string) (*entity.ScoringRun, error) {
	asOf := time.Now().UTC()
	s.log.InfoContext(ctx, "Starting scoring run", logger.StringField("trigger", trigger))

	tickers, err := s.tickerRepo.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active tickers: %w", err)
	}
	if len(tickers) == 0 {
		return nil, fmt.Errorf("no active tickers to score")
	}

	drawdowns, err := s.drawdownRepo.GetAll(ctx)
	if err != nil {
		s.log.WarnContext(ctx, "Failed to load drawdown classifications, scoring without them", logger.ErrorField(err))
		drawdowns = map[string]entity.DrawdownClassification{}
	}

	series, skipped := s.fetchPrices(ctx, tickers)

	marketCtx, err := s.buildMarketContext(ctx, asOf, series)
	if err != nil {
		return nil, fmt.Errorf("build market context: %w", err)
	}

	run := &entity.ScoringRun{
		AsOf:        asOf,
		Status:      entity.RunStatusRunning,
		VIXLevel:    marketCtx.VIXLevel,
		VIXRegime:   string(marketCtx.VIXRegime),
		MarketData:  marketDataJSON(marketCtx),
		TickerCount: len(tickers),
	}
	if err := s.runRepo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create scoring run: %w", err)
	}

	results, failed := s.scoreAll(ctx, tickers, series, drawdowns, marketCtx)

	if err := s.persistResults(ctx, run.ID, results, asOf); err != nil {
		finalizeErr := s.runRepo.Finalize(ctx, run.ID, entity.RunStatusFailed, len(results), failed, err.Error())
		if finalizeErr != nil {
			s.log.ErrorContext(ctx, "Failed to finalize failed run", logger.ErrorField(finalizeErr))
		}
		return nil, fmt.Errorf("persist run %d results: %w", run.ID, err)
	}

	if err := s.runRepo.Finalize(ctx, run.ID, entity.RunStatusCompleted, len(results), failed, ""); err != nil {
		s.log.ErrorContext(ctx, "Failed to finalize run", logger.ErrorField(err), logger.Field("run_id", run.ID))
	}

	s.sendAlerts(ctx, run.ID, results, marketCtx, len(results), failed, skipped)

	s.log.InfoContext(ctx, "Scoring run completed",
		logger.Field("run_id", run.ID),
		logger.IntField("scored", len(results)),
		logger.IntField("failed", failed),
		logger.IntField("skipped", skipped))

	return run, nil
}

// fetchPrices loads daily price history for every ticker on a bounded pool.
// Tickers whose history cannot be fetched are skipped, not failed.
func (s *runService) fetchPrices(ctx context.Context, tickers []entity.Ticker) (map[string]model.PriceSeries, int) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		series  = make(map[string]model.PriceSeries, len(tickers))
		skipped int
	)
	sem := make(chan struct{}, s.cfg.Scoring.MaxConcurrentScore)

	for _, t := range tickers {
		t := t
		wg.Add(1)
		sem <- struct{}{}
		utils.GoSafe(func() {
			defer wg.Done()
			defer func() { <-sem }()

			prices, err := s.yahooRepo.GetDailyPrices(ctx, t.Symbol, s.cfg.Scoring.PriceLookbackDays)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.log.WarnContext(ctx, "Skipping ticker, price fetch failed",
					logger.StringField("symbol", t.Symbol), logger.ErrorField(err))
				skipped++
				return
			}
			series[t.Symbol] = prices
		})
	}
	wg.Wait()

	return series, skipped
}

// buildMarketContext assembles the macro snapshot shared by every ticker in
// the run. The benchmark chart and VIX quote are required; FRED series and
// breadth degrade to absent when unavailable.
func (s *runService) buildMarketContext(ctx context.Context, asOf time.Time, series map[string]model.PriceSeries) (*model.MarketContext, error) {
	benchmark, err := s.yahooRepo.GetDailyPrices(ctx, s.cfg.Scoring.BenchmarkSymbol, s.cfg.Scoring.PriceLookbackDays)
	if err != nil {
		return nil, fmt.Errorf("fetch benchmark %s: %w", s.cfg.Scoring.BenchmarkSymbol, err)
	}

	vixLevel, err := s.yahooRepo.GetLatestQuote(ctx, s.cfg.Scoring.VIXSymbol)
	if err != nil {
		return nil, fmt.Errorf("fetch vix %s: %w", s.cfg.Scoring.VIXSymbol, err)
	}

	mc := &model.MarketContext{
		AsOf:            asOf,
		VIXLevel:        vixLevel,
		VIXRegime:       composite.ClassifyVIX(vixLevel),
		BenchmarkClose:  benchmark.LastClose(),
		BenchmarkPrices: benchmark,
		BreadthPct:      computeBreadth(series),
	}

	closes := benchmark.Closes()
	if sma200, err := technical.SMA(closes, 200); err == nil && sma200 > 0 {
		mc.BenchmarkAbove200d = mc.BenchmarkClose > sma200
		mc.BenchmarkPctFrom200d = mc.BenchmarkClose/sma200 - 1
		mc.BearMarket = mc.BenchmarkPctFrom200d < -0.20
	}

	if spread, err := s.fredRepo.GetYieldCurveSpread(ctx); err != nil {
		s.log.WarnContext(ctx, "Failed to fetch yield curve spread", logger.ErrorField(err))
	} else {
		mc.YieldCurveSpread = &spread
	}

	if risk, spread, err := s.fredRepo.GetCreditRisk(ctx); err != nil {
		s.log.WarnContext(ctx, "Failed to fetch high-yield spread", logger.ErrorField(err))
	} else {
		mc.CreditRisk = risk
		s.log.DebugContext(ctx, "Credit backdrop",
			logger.StringField("risk", string(risk)), logger.Float64Field("hy_spread", spread))
	}

	return mc, nil
}

// scoreAll runs the scoring pipeline for every ticker with fetched prices on
// a bounded worker pool. Results come back sorted by symbol so persistence
// and alerting are deterministic.
func (s *runService) scoreAll(
	ctx context.Context,
	tickers []entity.Ticker,
	series map[string]model.PriceSeries,
	drawdowns map[string]entity.DrawdownClassification,
	marketCtx *model.MarketContext,
) ([]*scorer.Result, int) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []*scorer.Result
		failed  int
	)
	sem := make(chan struct{}, s.cfg.Scoring.MaxConcurrentScore)

	for _, t := range tickers {
		prices, ok := series[t.Symbol]
		if !ok {
			continue
		}

		t := t
		wg.Add(1)
		sem <- struct{}{}
		utils.GoSafe(func() {
			defer wg.Done()
			defer func() { <-sem }()

			var dd *entity.DrawdownClassification
			if row, ok := drawdowns[t.Symbol]; ok {
				dd = &row
			}
			tk := buildEnrichedTicker(t, prices, dd)

			res, err := scorer.Score(tk, marketCtx, s.cfg.Scoring.Engine)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.log.ErrorContext(ctx, "Failed to score ticker",
					logger.StringField("symbol", t.Symbol), logger.ErrorField(err))
				failed++
				return
			}
			results = append(results, res)
		})
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Symbol < results[j].Symbol })
	return results, failed
}

func (s *runService) persistResults(ctx context.Context, runID int64, results []*scorer.Result, asOf time.Time) error {
	scores := make([]entity.Score, 0, len(results))
	var signals []entity.Signal
	for _, res := range results {
		scores = append(scores, toScoreEntity(runID, res, asOf))
		signals = append(signals, toSignalEntities(runID, res, asOf)...)
	}

	if err := s.scoreRepo.CreateBatch(ctx, scores); err != nil {
		return fmt.Errorf("persist scores: %w", err)
	}
	if err := s.signalRepo.CreateBatch(ctx, signals); err != nil {
		return fmt.Errorf("persist signals: %w", err)
	}
	return nil
}

// sendAlerts pushes high-conviction and sell-review notifications, then the
// run summary. Notification failures are logged, never fatal.
func (s *runService) sendAlerts(ctx context.Context, runID int64, results []*scorer.Result, marketCtx *model.MarketContext, scored, failed, skipped int) {
	if s.notifier == nil {
		return
	}

	for _, res := range results {
		if res.Composite.FinalScore >= s.cfg.Scoring.AlertMinScore {
			msg := telegram.FormatConvictionAlertMessage(marketCtx.AsOf, telegram.ConvictionAlert{
				Symbol:      res.Symbol,
				Score:       res.Composite.FinalScore,
				SignalLabel: res.Composite.SignalLabel,
				NetAction:   res.NetAction,
				Regime:      string(marketCtx.VIXRegime),
			})
			if err := s.notifier.SendMessage(msg); err != nil {
				s.log.ErrorContext(ctx, "Failed to send conviction alert",
					logger.StringField("symbol", res.Symbol), logger.ErrorField(err))
			}
		}

		if hasEvent(res.Events, signalboard.EventSellReview) {
			msg := telegram.FormatSellReviewAlertMessage(marketCtx.AsOf, res.Symbol, sellCriteriaOf(res.Events))
			if err := s.notifier.SendMessage(msg); err != nil {
				s.log.ErrorContext(ctx, "Failed to send sell review alert",
					logger.StringField("symbol", res.Symbol), logger.ErrorField(err))
			}
		}
	}

	summary := telegram.FormatRunSummaryMessage(marketCtx.AsOf, fmt.Sprintf("%d", runID), scored, failed, skipped, string(marketCtx.VIXRegime))
	if err := s.notifier.SendMessage(summary); err != nil {
		s.log.ErrorContext(ctx, "Failed to send run summary", logger.ErrorField(err))
	}
}

func marketDataJSON(mc *model.MarketContext) datatypes.JSON {
	doc := map[string]interface{}{
		"vix_level":               mc.VIXLevel,
		"vix_regime":              string(mc.VIXRegime),
		"benchmark_close":         mc.BenchmarkClose,
		"benchmark_above_200d":    mc.BenchmarkAbove200d,
		"benchmark_pct_from_200d": mc.BenchmarkPctFrom200d,
		"bear_market":             mc.BearMarket,
		"credit_risk":             string(mc.CreditRisk),
	}
	if mc.BreadthPct != nil {
		doc["breadth_pct"] = *mc.BreadthPct
	}
	if mc.YieldCurveSpread != nil {
		doc["yield_curve_spread"] = *mc.YieldCurveSpread
	}
	raw, _ := json.Marshal(doc)
	return datatypes.JSON(raw)
}
