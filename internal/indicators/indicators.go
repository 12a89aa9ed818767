package indicators

import (
	"math"
	"sort"

	"market-insight-bot/internal/market"
)

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// CalculateSMA calculates the Simple Moving Average of closes
func CalculateSMA(candles []market.Candle, period int) float64 {
	if len(candles) < period || period <= 0 {
		return 0
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].Close
	}
	return sum / float64(period)
}

// CalculateEMA calculates the Exponential Moving Average of closes
func CalculateEMA(candles []market.Candle, period int) float64 {
	if len(candles) < period || period <= 0 {
		return 0
	}

	// Seed with an SMA over the first period
	ema := CalculateSMA(candles[:period], period)
	multiplier := 2.0 / float64(period+1)

	for i := period; i < len(candles); i++ {
		ema = (candles[i].Close * multiplier) + (ema * (1 - multiplier))
	}
	return ema
}

// ============================================================================
// RSI (Relative Strength Index)
// ============================================================================

// CalculateRSI calculates the latest RSI value using Wilder smoothing
func CalculateRSI(candles []market.Candle, period int) float64 {
	series := RSISeries(candles, period)
	if len(series) == 0 {
		return 50.0
	}
	return series[len(series)-1]
}

// RSISeries returns per-bar RSI values aligned to the candle indexes.
// Bars before enough history exists are reported as neutral 50.
func RSISeries(candles []market.Candle, period int) []float64 {
	out := make([]float64, len(candles))
	for i := range out {
		out[i] = 50.0
	}
	if len(candles) < period+1 || period <= 0 {
		return out
	}

	gains := 0.0
	losses := 0.0
	for i := 1; i <= period; i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	out[period] = rsiFrom(avgGain, avgLoss)

	for i := period + 1; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiFrom(avgGain, avgLoss)
	}

	return out
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// ============================================================================
// ATR (Average True Range)
// ============================================================================

// ATRSeries returns per-bar Wilder-smoothed ATR values aligned to the
// candle indexes. Bars before enough history exists report the running
// average of the true ranges seen so far.
func ATRSeries(candles []market.Candle, period int) []float64 {
	out := make([]float64, len(candles))
	if len(candles) == 0 || period <= 0 {
		return out
	}

	trSum := candles[0].Range()
	out[0] = trSum

	for i := 1; i < len(candles); i++ {
		tr := trueRange(candles[i], candles[i-1])
		if i < period {
			trSum += tr
			out[i] = trSum / float64(i+1)
			continue
		}
		out[i] = (out[i-1]*float64(period-1) + tr) / float64(period)
	}

	return out
}

// CalculateATR calculates the latest ATR value
func CalculateATR(candles []market.Candle, period int) float64 {
	series := ATRSeries(candles, period)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// ATRPercentile returns the rank of the latest ATR within its own series,
// in [0,1]. High values mean current volatility is elevated.
func ATRPercentile(candles []market.Candle, period int) float64 {
	series := ATRSeries(candles, period)
	if len(series) < 2 {
		return 0
	}

	current := series[len(series)-1]
	below := 0
	for _, v := range series {
		if v <= current {
			below++
		}
	}
	return float64(below) / float64(len(series))
}

func trueRange(c, prev market.Candle) float64 {
	tr := c.Range()
	if hc := math.Abs(c.High - prev.Close); hc > tr {
		tr = hc
	}
	if lc := math.Abs(c.Low - prev.Close); lc > tr {
		tr = lc
	}
	return tr
}

// ============================================================================
// ADX (Average Directional Index)
// ============================================================================

// CalculateADX calculates the latest ADX value using Wilder smoothing
func CalculateADX(candles []market.Candle, period int) float64 {
	if len(candles) < 2*period+1 || period <= 0 {
		return 0
	}

	var trSum, plusDMSum, minusDMSum float64
	dxValues := make([]float64, 0, len(candles))

	var smTR, smPlusDM, smMinusDM float64
	for i := 1; i < len(candles); i++ {
		upMove := candles[i].High - candles[i-1].High
		downMove := candles[i-1].Low - candles[i].Low

		plusDM, minusDM := 0.0, 0.0
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}
		tr := trueRange(candles[i], candles[i-1])

		if i <= period {
			trSum += tr
			plusDMSum += plusDM
			minusDMSum += minusDM
			if i == period {
				smTR = trSum
				smPlusDM = plusDMSum
				smMinusDM = minusDMSum
				dxValues = append(dxValues, dx(smPlusDM, smMinusDM, smTR))
			}
			continue
		}

		smTR = smTR - smTR/float64(period) + tr
		smPlusDM = smPlusDM - smPlusDM/float64(period) + plusDM
		smMinusDM = smMinusDM - smMinusDM/float64(period) + minusDM
		dxValues = append(dxValues, dx(smPlusDM, smMinusDM, smTR))
	}

	if len(dxValues) < period {
		return 0
	}

	// ADX = Wilder-smoothed DX
	adx := 0.0
	for _, v := range dxValues[:period] {
		adx += v
	}
	adx /= float64(period)
	for _, v := range dxValues[period:] {
		adx = (adx*float64(period-1) + v) / float64(period)
	}
	return adx
}

func dx(plusDM, minusDM, tr float64) float64 {
	if tr == 0 {
		return 0
	}
	plusDI := 100 * plusDM / tr
	minusDI := 100 * minusDM / tr
	sum := plusDI + minusDI
	if sum == 0 {
		return 0
	}
	return 100 * math.Abs(plusDI-minusDI) / sum
}

// ============================================================================
// BOLLINGER BANDS
// ============================================================================

// BollingerBandsResult holds Bollinger Bands values
type BollingerBandsResult struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Width returns the band width normalized by the middle band
func (b *BollingerBandsResult) Width() float64 {
	if b.Middle == 0 {
		return 0
	}
	return (b.Upper - b.Lower) / b.Middle
}

// CalculateBollingerBands calculates Bollinger Bands over the last period closes
func CalculateBollingerBands(candles []market.Candle, period int, stdDevMultiplier float64) *BollingerBandsResult {
	if len(candles) < period || period <= 0 {
		return &BollingerBandsResult{}
	}

	middle := CalculateSMA(candles, period)

	variance := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		diff := candles[i].Close - middle
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(period))

	return &BollingerBandsResult{
		Upper:  middle + stdDev*stdDevMultiplier,
		Middle: middle,
		Lower:  middle - stdDev*stdDevMultiplier,
	}
}

// BollingerWidthSeries returns the normalized band width for each bar that
// has enough history, aligned to candle indexes (zero before that).
func BollingerWidthSeries(candles []market.Candle, period int, stdDevMultiplier float64) []float64 {
	out := make([]float64, len(candles))
	for i := period - 1; i < len(candles); i++ {
		bb := CalculateBollingerBands(candles[:i+1], period, stdDevMultiplier)
		out[i] = bb.Width()
	}
	return out
}

// IsRollingLow reports whether the latest value of the series is the
// minimum over the trailing lookback window.
func IsRollingLow(series []float64, lookback int) bool {
	if len(series) == 0 || lookback <= 0 {
		return false
	}

	start := len(series) - lookback
	if start < 0 {
		start = 0
	}
	current := series[len(series)-1]
	for _, v := range series[start:] {
		if v < current {
			return false
		}
	}
	return true
}

// Percentile returns the p-th percentile (0-1) of values
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
