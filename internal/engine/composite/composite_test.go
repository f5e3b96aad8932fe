package composite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threshold-engine/internal/engine/model"
)

func standardSubScores() model.SubScoreSet {
	return model.SubScoreSet{
		MomentumQuality:    90,
		FundamentalQuality: 80,
		TechnicalOversold:  70,
		MacroRegime:        60,
		ValueConfirmation:  50,
	}
}

func TestCompose_WeightedSum(t *testing.T) {
	raw := Compose(standardSubScores(), DefaultWeights())
	assert.InDelta(t, 75.0, raw, 1e-9)
}

func TestWeights_Validate(t *testing.T) {
	assert.NoError(t, DefaultWeights().Validate())

	bad := DefaultWeights()
	bad.MQ = 0.5
	err := bad.Validate()
	require.Error(t, err)
	var cfgErr *model.ConfigError
	assert.ErrorAs(t, err, &cfgErr)

	neg := DefaultWeights()
	neg.VC = -0.1
	neg.MQ = 0.5
	assert.Error(t, neg.Validate())
}

func TestThresholds_Validate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())

	bad := DefaultThresholds()
	bad.Watch = 75
	assert.Error(t, bad.Validate())
}

func TestParams_Validate_CapAboveBuyThreshold(t *testing.T) {
	p := DefaultParams()
	p.FreefallCaps.Cyclical = 70
	assert.Error(t, p.Validate())
}

func TestApply_NoModifiers(t *testing.T) {
	res := Apply(75, ModifierInputs{TrendScore: 1.0}, DefaultParams())
	assert.InDelta(t, 75.0, res.RawScore, 1e-9)
	assert.InDelta(t, 75.0, res.FinalScore, 1e-9)
	assert.Equal(t, model.SignalHighConviction, res.SignalLabel)
	assert.Empty(t, res.Modifiers)
	assert.False(t, res.FKCapApplied)
}

func TestApply_OBVBoost(t *testing.T) {
	in := ModifierInputs{OBVBullishDivergence: true, TrendScore: 1.0}
	res := Apply(70, in, DefaultParams())
	assert.InDelta(t, 72.0, res.FinalScore, 1e-9)
	require.Len(t, res.Modifiers, 1)
	assert.Equal(t, ModifierOBVBoost, res.Modifiers[0].Name)
	assert.InDelta(t, 2.0, res.Modifiers[0].Delta, 1e-9)
}

func TestApply_RSIDivergenceBoostGated(t *testing.T) {
	in := ModifierInputs{RSIBullishDivergence: true, TrendScore: 1.0}

	res := Apply(61, in, DefaultParams())
	assert.InDelta(t, 64.0, res.FinalScore, 1e-9)
	assert.Equal(t, model.SignalWatch, res.SignalLabel)

	res = Apply(58, in, DefaultParams())
	assert.InDelta(t, 58.0, res.FinalScore, 1e-9)
	assert.Empty(t, res.Modifiers)
}

func TestApply_OBVBoostFeedsRSIGate(t *testing.T) {
	in := ModifierInputs{
		OBVBullishDivergence: true,
		RSIBullishDivergence: true,
		TrendScore:           1.0,
	}
	res := Apply(58.5, in, DefaultParams())
	// 58.5 + 2 clears the 60 gate, then +3.
	assert.InDelta(t, 63.5, res.FinalScore, 1e-9)
	assert.Len(t, res.Modifiers, 2)
}

func TestApply_FallingKnifeCap(t *testing.T) {
	p := DefaultParams()
	p.DowntrendCaps.Cyclical = 45

	in := ModifierInputs{TrendScore: 0.3, DefenseCategory: model.DefenseCyclical}
	res := Apply(72, in, p)
	assert.True(t, res.FKCapApplied)
	assert.InDelta(t, 72.0, res.FKOriginalDCS, 1e-9)
	assert.InDelta(t, 45.0, res.FinalScore, 1e-9)
	assert.Equal(t, model.SignalWeakAvoid, res.SignalLabel)
}

func TestApply_FallingKnifeFreefallHarsher(t *testing.T) {
	in := ModifierInputs{TrendScore: 0.05, DefenseCategory: model.DefenseAmplifier}
	res := Apply(72, in, DefaultParams())
	assert.True(t, res.FKCapApplied)
	assert.InDelta(t, 15.0, res.FinalScore, 1e-9)
}

func TestApply_FallingKnifeExemptsDefensives(t *testing.T) {
	for _, cat := range []model.DefenseCategory{model.DefenseHedge, model.DefenseDefensive} {
		in := ModifierInputs{TrendScore: 0.05, DefenseCategory: cat}
		res := Apply(72, in, DefaultParams())
		assert.False(t, res.FKCapApplied)
		assert.InDelta(t, 72.0, res.FinalScore, 1e-9)
	}
}

func TestApply_BoostThenCap(t *testing.T) {
	// The boost is applied first and survives in fk_original_dcs, but the
	// cap still bounds the final score.
	in := ModifierInputs{
		OBVBullishDivergence: true,
		TrendScore:           0.05,
		DefenseCategory:      model.DefenseModerate,
	}
	res := Apply(70, in, DefaultParams())
	assert.True(t, res.FKCapApplied)
	assert.InDelta(t, 72.0, res.FKOriginalDCS, 1e-9)
	assert.InDelta(t, 30.0, res.FinalScore, 1e-9)
}

func TestApply_DrawdownDeltaOnlyInFearPanic(t *testing.T) {
	p := DefaultParams()

	in := ModifierInputs{TrendScore: 1.0, DefenseCategory: model.DefenseHedge, VIXRegime: model.VIXRegimeNormal}
	res := Apply(60, in, p)
	assert.InDelta(t, 60.0, res.FinalScore, 1e-9)

	in.VIXRegime = model.VIXRegimeFear
	res = Apply(60, in, p)
	assert.InDelta(t, 65.0, res.FinalScore, 1e-9)
	require.Len(t, res.Modifiers, 1)
	assert.Equal(t, ModifierDrawdown, res.Modifiers[0].Name)

	in.DefenseCategory = model.DefenseAmplifier
	in.VIXRegime = model.VIXRegimePanic
	res = Apply(60, in, p)
	assert.InDelta(t, 55.0, res.FinalScore, 1e-9)
}

func TestApply_FinalScoreClamped(t *testing.T) {
	in := ModifierInputs{
		OBVBullishDivergence: true,
		RSIBullishDivergence: true,
		TrendScore:           1.0,
		DefenseCategory:      model.DefenseHedge,
		VIXRegime:            model.VIXRegimePanic,
	}
	res := Apply(99, in, DefaultParams())
	assert.InDelta(t, 100.0, res.FinalScore, 1e-9)
	assert.Equal(t, model.SignalStrongBuyDip, res.SignalLabel)
}

func TestClassifyScore(t *testing.T) {
	th := DefaultThresholds()
	assert.Equal(t, model.SignalStrongBuyDip, ClassifyScore(80, th))
	assert.Equal(t, model.SignalHighConviction, ClassifyScore(70, th))
	assert.Equal(t, model.SignalBuyDip, ClassifyScore(65, th))
	assert.Equal(t, model.SignalWatch, ClassifyScore(50, th))
	assert.Equal(t, model.SignalWeakAvoid, ClassifyScore(49.9, th))
}

func TestClassifyVIX(t *testing.T) {
	assert.Equal(t, model.VIXRegimeComplacent, ClassifyVIX(12))
	assert.Equal(t, model.VIXRegimeNormal, ClassifyVIX(14))
	assert.Equal(t, model.VIXRegimeFear, ClassifyVIX(20))
	assert.Equal(t, model.VIXRegimePanic, ClassifyVIX(28))
	assert.Equal(t, model.VIXRegimePanic, ClassifyVIX(80))
}
