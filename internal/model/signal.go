package model

// Regime classifies the moving-average alignment of the latest bar.
type Regime string

const (
	RegimeBullish       Regime = "BULLISH_ALIGNMENT"
	RegimeBearish       Regime = "BEARISH_ALIGNMENT"
	RegimeImproving     Regime = "SHORT_TERM_IMPROVING"
	RegimeWeakening     Regime = "SHORT_TERM_WEAKENING"
	RegimeConsolidating Regime = "CONSOLIDATING"
)

var regimeLabels = map[Regime]string{
	RegimeBullish:       "多头排列 📈",
	RegimeBearish:       "空头排列 📉",
	RegimeImproving:     "短期向好 🔼",
	RegimeWeakening:     "短期走弱 🔽",
	RegimeConsolidating: "震荡整理 ↔️",
}

// Label returns the human-readable status shown to downstream consumers.
func (r Regime) Label() string {
	return regimeLabels[r]
}
