package service

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"threshold-engine/internal/engine/model"
	"threshold-engine/internal/engine/scorer"
	"threshold-engine/internal/engine/signalboard"
	"threshold-engine/internal/engine/technical"
	"threshold-engine/internal/entity"
)

// gradesDoc is the jsonb layout of tickers.grades.
type gradesDoc struct {
	QuantRating   *float64 `json:"quant_rating"`
	Valuation     string   `json:"valuation"`
	Profitability string   `json:"profitability"`
	Growth        string   `json:"growth"`
	Momentum      string   `json:"momentum"`
	Revisions     string   `json:"revisions"`
}

// fundamentalsDoc is the jsonb layout of tickers.fundamentals.
type fundamentalsDoc struct {
	FCFYieldPctl           *float64 `json:"fcf_yield_pctl"`
	GrossProfitabilityPctl *float64 `json:"gross_profitability_pctl"`
	EVToEBITDAPctl         *float64 `json:"ev_to_ebitda_pctl"`
}

// buildEnrichedTicker joins a ticker row, its fetched price history and its
// drawdown classification into the scoring input. Unparseable jsonb columns
// degrade to empty grades rather than failing the ticker.
func buildEnrichedTicker(t entity.Ticker, prices model.PriceSeries, dd *entity.DrawdownClassification) *model.EnrichedTicker {
	category := model.DefenseCategory(t.DefenseCategory)
	if category == "" {
		category = model.DefenseModerate
	}

	tk := &model.EnrichedTicker{
		Symbol:          t.Symbol,
		Name:            t.Name,
		Sector:          t.Sector,
		DefenseCategory: category,
		IsGold:          t.IsGold,
		IsCrypto:        t.IsCrypto,
		IsDefensive:     t.IsDefensive,
		BrokenThesis:    t.BrokenThesis,
		GraceEndsAt:     t.GraceEndsAt,
		PrevQuantRating: t.PrevQuantRating,
		PrevQuantDate:   t.PrevQuantDate,
		RevisionDelta4W: t.RevisionDelta4W,
		Prices:          prices,
	}

	if len(t.Grades) > 0 {
		var doc gradesDoc
		if err := json.Unmarshal(t.Grades, &doc); err == nil {
			tk.Grades = model.FundamentalGrades{
				QuantRating:   doc.QuantRating,
				Valuation:     model.Grade(doc.Valuation),
				Profitability: model.Grade(doc.Profitability),
				Growth:        model.Grade(doc.Growth),
				Momentum:      model.Grade(doc.Momentum),
				Revisions:     model.Grade(doc.Revisions),
			}
		}
	}

	if len(t.Fundamentals) > 0 {
		var doc fundamentalsDoc
		if err := json.Unmarshal(t.Fundamentals, &doc); err == nil {
			tk.Fundamentals = &model.SectorFundamentals{
				FCFYieldPctl:           doc.FCFYieldPctl,
				GrossProfitabilityPctl: doc.GrossProfitabilityPctl,
				EVToEBITDAPctl:         doc.EVToEBITDAPctl,
			}
		}
	}

	if dd != nil {
		tk.Drawdown = &model.DrawdownInfo{
			PctFromHigh: dd.PctFromHigh,
			Class:       model.DrawdownClass(dd.Classification),
		}
	}

	return tk
}

// toScoreEntity flattens one scoring result into its persistence row.
func toScoreEntity(runID int64, res *scorer.Result, at time.Time) entity.Score {
	subScores, _ := json.Marshal(map[string]float64{
		"momentum_quality":    res.SubScores.MomentumQuality,
		"fundamental_quality": res.SubScores.FundamentalQuality,
		"technical_oversold":  res.SubScores.TechnicalOversold,
		"macro_regime":        res.SubScores.MacroRegime,
		"value_confirmation":  res.SubScores.ValueConfirmation,
	})
	modifiers, _ := json.Marshal(res.Composite.Modifiers)
	technicals, _ := json.Marshal(res.SubScores.Fields)
	warnings, _ := json.Marshal(res.DataWarnings)

	return entity.Score{
		RunID:        runID,
		Symbol:       res.Symbol,
		RawScore:     res.Composite.RawScore,
		FinalScore:   res.Composite.FinalScore,
		SignalLabel:  res.Composite.SignalLabel,
		NetAction:    res.NetAction,
		SubScores:    datatypes.JSON(subScores),
		Modifiers:    datatypes.JSON(modifiers),
		Technicals:   datatypes.JSON(technicals),
		DataWarnings: datatypes.JSON(warnings),
		FKCapApplied: res.Composite.FKCapApplied,
		CreatedAt:    at,
	}
}

// toSignalEntities flattens the result's events into persistence rows.
func toSignalEntities(runID int64, res *scorer.Result, at time.Time) []entity.Signal {
	out := make([]entity.Signal, 0, len(res.Events))
	for _, ev := range res.Events {
		metadata, _ := json.Marshal(ev.Metadata)
		out = append(out, entity.Signal{
			RunID:     runID,
			Symbol:    res.Symbol,
			Type:      string(ev.Type),
			Severity:  string(ev.Severity),
			Criterion: ev.Criterion,
			Message:   ev.Message,
			Metadata:  datatypes.JSON(metadata),
			CreatedAt: at,
		})
	}
	return out
}

// sellCriteriaOf collects the criteria behind the ticker's SELL_SIGNAL events.
func sellCriteriaOf(events []signalboard.Event) []string {
	var criteria []string
	for _, ev := range events {
		if ev.Type == signalboard.EventSellSignal {
			criteria = append(criteria, ev.Criterion)
		}
	}
	return criteria
}

func hasEvent(events []signalboard.Event, t signalboard.EventType) bool {
	for _, ev := range events {
		if ev.Type == t {
			return true
		}
	}
	return false
}

// computeBreadth returns the fraction of tickers trading above their own
// 200-day SMA. Tickers with fewer than 200 bars are excluded; nil means no
// ticker qualified.
func computeBreadth(series map[string]model.PriceSeries) *float64 {
	eligible, above := 0, 0
	for _, prices := range series {
		closes := prices.Closes()
		sma, err := technical.SMA(closes, 200)
		if err != nil {
			continue
		}
		eligible++
		if closes[len(closes)-1] > sma {
			above++
		}
	}
	if eligible == 0 {
		return nil
	}
	breadth := float64(above) / float64(eligible)
	return &breadth
}
