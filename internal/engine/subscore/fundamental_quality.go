package subscore

import (
	"fmt"
	"math"

	"threshold-engine/internal/engine/model"
	"threshold-engine/internal/engine/technical"
)

// FQParams holds the component weights for fundamental quality.
type FQParams struct {
	Quant            float64 `mapstructure:"quant"`
	Profitability    float64 `mapstructure:"profitability"`
	FCFYield         float64 `mapstructure:"fcf_yield"`
	RevisionMomentum float64 `mapstructure:"revision_momentum"`
	RevisionsGrade   float64 `mapstructure:"revisions_grade"`
	GrowthGrade      float64 `mapstructure:"growth_grade"`

	// Profitability is itself a blend of the letter grade and the
	// sector-relative gross profitability percentile.
	ProfBlendGrade     float64 `mapstructure:"prof_blend_grade"`
	ProfBlendGrossProf float64 `mapstructure:"prof_blend_gross_prof"`
}

// DefaultFQParams returns the standard fundamental quality weights.
func DefaultFQParams() FQParams {
	return FQParams{
		Quant:            0.30,
		Profitability:    0.22,
		FCFYield:         0.13,
		RevisionMomentum: 0.15,
		RevisionsGrade:   0.10,
		GrowthGrade:      0.10,

		ProfBlendGrade:     0.60,
		ProfBlendGrossProf: 0.40,
	}
}

// FQResult carries the fundamental quality score and its intermediates.
type FQResult struct {
	Score            float64
	RevMomentumScore float64
	RevMomentumOK    bool
	Missing          []string
}

// FundamentalQuality blends the quant rating, profitability, free cash flow
// yield, revision momentum and the revisions and growth letter grades.
// revisionDelta4W is the change in the normalized revisions grade over the
// trailing four weeks; nil means no usable grade history.
func FundamentalQuality(grades model.FundamentalGrades, fund *model.SectorFundamentals, revisionDelta4W *float64, p FQParams) (FQResult, error) {
	quantOK := grades.QuantRating != nil
	quantNorm := 0.0
	if quantOK {
		quantNorm = math.Min(1.0, *grades.QuantRating/5.0)
	}

	profNorm, profOK := profitabilityBlend(grades.Profitability, fund, p)

	fcfOK := fund != nil && fund.FCFYieldPctl != nil
	fcfPctl := 0.0
	if fcfOK {
		fcfPctl = *fund.FCFYieldPctl
	}

	res := FQResult{}
	revMomOK := revisionDelta4W != nil
	if revMomOK {
		res.RevMomentumScore = technical.Clamp01((*revisionDelta4W + 0.3) / 0.6)
		res.RevMomentumOK = true
	}

	revNorm, revOK := GradeNorm(grades.Revisions)
	growthNorm, growthOK := GradeNorm(grades.Growth)

	value, missing, ok := blend([]component{
		{name: "fq.quant", value: quantNorm, weight: p.Quant, ok: quantOK},
		{name: "fq.profitability", value: profNorm, weight: p.Profitability, ok: profOK},
		{name: "fq.fcf_yield", value: fcfPctl, weight: p.FCFYield, ok: fcfOK},
		{name: "fq.revision_momentum", value: res.RevMomentumScore, weight: p.RevisionMomentum, ok: revMomOK},
		{name: "fq.revisions_grade", value: revNorm, weight: p.RevisionsGrade, ok: revOK},
		{name: "fq.growth_grade", value: growthNorm, weight: p.GrowthGrade, ok: growthOK},
	})
	if !ok {
		return FQResult{}, fmt.Errorf("%w: no fundamental quality components available", model.ErrMissingRequiredInput)
	}
	res.Score = value * 100
	res.Missing = missing
	return res, nil
}

func profitabilityBlend(grade model.Grade, fund *model.SectorFundamentals, p FQParams) (float64, bool) {
	gradeNorm, gradeOK := GradeNorm(grade)
	gpOK := fund != nil && fund.GrossProfitabilityPctl != nil
	gp := 0.0
	if gpOK {
		gp = *fund.GrossProfitabilityPctl
	}
	value, _, ok := blend([]component{
		{name: "grade", value: gradeNorm, weight: p.ProfBlendGrade, ok: gradeOK},
		{name: "gross_prof", value: gp, weight: p.ProfBlendGrossProf, ok: gpOK},
	})
	return value, ok
}
