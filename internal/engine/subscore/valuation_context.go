package subscore

import (
	"fmt"

	"threshold-engine/internal/engine/model"
)

// VCParams holds the component weights for valuation context.
type VCParams struct {
	ValuationGrade float64 `mapstructure:"valuation_grade"`
	EVToEBITDA     float64 `mapstructure:"ev_to_ebitda"`
}

// DefaultVCParams returns the standard valuation context weights.
func DefaultVCParams() VCParams {
	return VCParams{
		ValuationGrade: 0.65,
		EVToEBITDA:     0.35,
	}
}

// VCResult carries the valuation context score.
type VCResult struct {
	Score   float64
	Missing []string
}

// ValuationContext blends the valuation letter grade with the inverted
// sector-relative EV/EBITDA percentile. Cheaper scores higher.
func ValuationContext(grades model.FundamentalGrades, fund *model.SectorFundamentals, p VCParams) (VCResult, error) {
	gradeNorm, gradeOK := GradeNorm(grades.Valuation)

	evOK := fund != nil && fund.EVToEBITDAPctl != nil
	evScore := 0.0
	if evOK {
		evScore = 1.0 - *fund.EVToEBITDAPctl
	}

	value, missing, ok := blend([]component{
		{name: "vc.valuation_grade", value: gradeNorm, weight: p.ValuationGrade, ok: gradeOK},
		{name: "vc.ev_to_ebitda", value: evScore, weight: p.EVToEBITDA, ok: evOK},
	})
	if !ok {
		return VCResult{}, fmt.Errorf("%w: no valuation context components available", model.ErrMissingRequiredInput)
	}
	return VCResult{Score: value * 100, Missing: missing}, nil
}
