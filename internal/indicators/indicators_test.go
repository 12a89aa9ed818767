package indicators

import (
	"math"
	"testing"

	"market-insight-bot/internal/market"
)

func closesToCandles(closes ...float64) []market.Candle {
	candles := make([]market.Candle, len(closes))
	for i, c := range closes {
		candles[i] = market.Candle{
			OpenTime: int64(i) * 3600000,
			Open:     c,
			High:     c,
			Low:      c,
			Close:    c,
		}
	}
	return candles
}

func flatCandles(n int, price, halfRange float64) []market.Candle {
	candles := make([]market.Candle, n)
	for i := range candles {
		candles[i] = market.Candle{
			OpenTime: int64(i) * 3600000,
			Open:     price,
			High:     price + halfRange,
			Low:      price - halfRange,
			Close:    price,
		}
	}
	return candles
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCalculateSMA(t *testing.T) {
	candles := closesToCandles(1, 2, 3, 4, 5)

	if got := CalculateSMA(candles, 3); !almostEqual(got, 4) {
		t.Errorf("SMA(3) over 3,4,5 should be 4, got %v", got)
	}
	if got := CalculateSMA(candles, 10); got != 0 {
		t.Errorf("SMA with insufficient history should be 0, got %v", got)
	}
}

func TestCalculateEMA(t *testing.T) {
	// With len == period the EMA equals its SMA seed
	if got := CalculateEMA(closesToCandles(2, 4, 6), 3); !almostEqual(got, 4) {
		t.Errorf("EMA seed should equal SMA, got %v", got)
	}

	// One step beyond the seed: multiplier 2/(3+1)=0.5, 8*0.5 + 4*0.5 = 6
	if got := CalculateEMA(closesToCandles(2, 4, 6, 8), 3); !almostEqual(got, 6) {
		t.Errorf("EMA after one update should be 6, got %v", got)
	}
}

func TestRSIExtremes(t *testing.T) {
	rising := closesToCandles(100, 101, 102, 103, 104, 105, 106, 107, 108, 109, 110, 111, 112, 113, 114, 115)
	if got := CalculateRSI(rising, 14); got != 100 {
		t.Errorf("All-gains series should give RSI 100, got %v", got)
	}

	falling := closesToCandles(115, 114, 113, 112, 111, 110, 109, 108, 107, 106, 105, 104, 103, 102, 101, 100)
	if got := CalculateRSI(falling, 14); got > 1 {
		t.Errorf("All-losses series should give RSI near 0, got %v", got)
	}
}

func TestRSISeriesNeutralBeforeHistory(t *testing.T) {
	series := RSISeries(closesToCandles(100, 101, 102), 14)

	if len(series) != 3 {
		t.Fatalf("Series should align to candle count, got %d", len(series))
	}
	for i, v := range series {
		if v != 50 {
			t.Errorf("Bar %d before enough history should report neutral 50, got %v", i, v)
		}
	}
}

func TestATRConstantRange(t *testing.T) {
	// Every bar spans exactly 2.0 with no gaps, so TR is 2.0 throughout
	candles := flatCandles(30, 100, 1)

	series := ATRSeries(candles, 14)
	for i, v := range series {
		if !almostEqual(v, 2) {
			t.Errorf("ATR at bar %d should be 2, got %v", i, v)
		}
	}
	if got := CalculateATR(candles, 14); !almostEqual(got, 2) {
		t.Errorf("Latest ATR should be 2, got %v", got)
	}
}

func TestATRPercentile(t *testing.T) {
	// Constant volatility ranks the latest value at the top
	if got := ATRPercentile(flatCandles(30, 100, 1), 14); !almostEqual(got, 1) {
		t.Errorf("Flat volatility should rank 1.0, got %v", got)
	}

	// Wild early bars, calm late bars: the latest ATR ranks low
	candles := append(flatCandles(20, 100, 5), flatCandles(40, 100, 0.1)...)
	for i := range candles {
		candles[i].OpenTime = int64(i) * 3600000
	}
	if got := ATRPercentile(candles, 14); got > 0.8 {
		t.Errorf("Calm-after-wild series should rank low, got %v", got)
	}
}

func TestADXTrendVersusChop(t *testing.T) {
	trend := make([]market.Candle, 40)
	for i := range trend {
		price := 100 + float64(i)
		trend[i] = market.Candle{Open: price, High: price + 1, Low: price - 1, Close: price + 0.8}
	}
	if got := CalculateADX(trend, 14); got < 25 {
		t.Errorf("Monotone trend should give strong ADX, got %v", got)
	}

	chop := make([]market.Candle, 40)
	for i := range chop {
		price := 100.0
		if i%2 == 1 {
			price = 101.0
		}
		chop[i] = market.Candle{Open: price, High: price + 1, Low: price - 1, Close: price}
	}
	if got := CalculateADX(chop, 14); got > 15 {
		t.Errorf("Symmetric chop should give weak ADX, got %v", got)
	}
}

func TestBollingerBands(t *testing.T) {
	// Closes 98,102,98,102: mean 100, stddev 2
	bb := CalculateBollingerBands(closesToCandles(98, 102, 98, 102), 4, 2)

	if !almostEqual(bb.Middle, 100) {
		t.Errorf("Middle band should be 100, got %v", bb.Middle)
	}
	if !almostEqual(bb.Upper, 104) || !almostEqual(bb.Lower, 96) {
		t.Errorf("Bands should be 96/104, got %v/%v", bb.Lower, bb.Upper)
	}
	if !almostEqual(bb.Width(), 0.08) {
		t.Errorf("Normalized width should be 0.08, got %v", bb.Width())
	}
}

func TestBollingerWidthZeroOnFlatCloses(t *testing.T) {
	bb := CalculateBollingerBands(closesToCandles(100, 100, 100, 100), 4, 2)
	if bb.Width() != 0 {
		t.Errorf("Flat closes should give zero width, got %v", bb.Width())
	}
}

func TestIsRollingLow(t *testing.T) {
	if !IsRollingLow([]float64{5, 4, 3, 2, 1}, 5) {
		t.Error("Strictly falling series ends at its rolling low")
	}
	if IsRollingLow([]float64{1, 2, 3}, 3) {
		t.Error("Rising series does not end at its rolling low")
	}
	if !IsRollingLow([]float64{2, 2, 2}, 3) {
		t.Error("Ties count as the rolling low")
	}
}

func TestPercentile(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	if got := Percentile(values, 0.5); got != 5 {
		t.Errorf("Median index should pick 5, got %v", got)
	}
	if got := Percentile(values, 1); got != 10 {
		t.Errorf("Top percentile should pick 10, got %v", got)
	}
	if got := Percentile(values, 0); got != 1 {
		t.Errorf("Bottom percentile should pick 1, got %v", got)
	}
}
