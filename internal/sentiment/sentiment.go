// Package sentiment classifies a funding rate into a discrete market-mood
// index and the candle color that renders it.
package sentiment

// Index thresholds, expressed against the daily funding rate (8h rate * 3).
const (
	dailyExtremeGreed = 0.18
	dailyGreed        = 0.11
	dailyOptimism     = 0.07
	dailyFear         = -0.14
)

// Index maps an 8-hour funding rate (in percent) to an integer in
// [-3, 3]. The ladder never yields 0: a non-negative daily rate below the
// optimism threshold classifies as -1. That gap mirrors the skew of the
// underlying market data and is kept as-is.
func Index(funding8h float64) int {
	daily := funding8h * 3

	switch {
	case daily >= dailyExtremeGreed:
		return 3
	case daily >= dailyGreed:
		return 2
	case daily >= dailyOptimism:
		return 1
	case daily >= 0:
		return -1
	case daily >= dailyFear:
		return -2
	default:
		return -3
	}
}

// Candle colors per index. Hex strings understood by any charting surface.
const (
	colorPink    = "#ff6ec7"
	colorPurple  = "#9b59ff"
	colorYellow  = "#ffd23f"
	colorOrange  = "#ff8c1a"
	colorRed     = "#ff3b30"
	colorNeutral = "#8a8f98"
)

// ColorFor maps a sentiment index to its candle color. Values outside the
// ladder's reachable range resolve to a neutral fallback.
func ColorFor(index int) string {
	switch index {
	case -3:
		return colorPink
	case -2:
		return colorPurple
	case -1, 0, 1:
		return colorYellow
	case 2:
		return colorOrange
	case 3:
		return colorRed
	default:
		return colorNeutral
	}
}
