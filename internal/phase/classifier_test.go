package phase

import (
	"math"
	"testing"

	"market-insight-bot/internal/market"
	"market-insight-bot/internal/zones"
)

func trendSeries(n int, start, step float64) []market.Candle {
	candles := make([]market.Candle, n)
	price := start
	for i := range candles {
		open := price
		close := price + step
		candles[i] = market.Candle{
			Open:  open,
			High:  math.Max(open, close) + math.Abs(step)*0.2,
			Low:   math.Min(open, close) - math.Abs(step)*0.2,
			Close: close,
		}
		price = close
	}
	return candles
}

func choppySeries(n int, center, amplitude float64) []market.Candle {
	candles := make([]market.Candle, n)
	for i := range candles {
		offset := amplitude
		if i%2 == 1 {
			offset = -amplitude
		}
		candles[i] = market.Candle{
			Open:  center - offset,
			High:  center + amplitude*1.1,
			Low:   center - amplitude*1.1,
			Close: center + offset,
		}
	}
	return candles
}

func TestTrendingUpOnSustainedRise(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	candles := trendSeries(60, 100, 1)
	res := c.Classify(candles, &zones.Snapshot{})

	if res.Phase != TrendingUp {
		t.Fatalf("Sustained rise should classify as TRENDING_UP, got %s", res.Phase)
	}
	if res.Confidence < 0.75 {
		t.Errorf("All trend indicators agree, expected high confidence, got %f", res.Confidence)
	}
	if res.Indicators.EMAFast <= res.Indicators.EMASlow {
		t.Error("Fast EMA should lead slow EMA in an uptrend")
	}
}

func TestTrendingDownOnSustainedFall(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	candles := trendSeries(60, 200, -1)
	res := c.Classify(candles, &zones.Snapshot{})

	if res.Phase != TrendingDown {
		t.Fatalf("Sustained fall should classify as TRENDING_DOWN, got %s", res.Phase)
	}
}

func TestRangingInsideZone(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	candles := choppySeries(60, 100, 0.3)
	snap := &zones.Snapshot{
		Zones: []zones.Zone{
			{ID: "z", Bottom: 99, Top: 101, Kind: zones.Support, Strength: 2, Status: zones.ZoneActive},
		},
	}

	res := c.Classify(candles, snap)
	if res.Phase != Ranging {
		t.Fatalf("Chop inside a zone should classify as RANGING, got %s", res.Phase)
	}
	if !res.Indicators.InsideZone {
		t.Error("Indicator snapshot should record price inside the zone")
	}
	if res.Confidence < 0.5 {
		t.Errorf("ADX and zone position agree, expected confidence >= 0.5, got %f", res.Confidence)
	}
}

func TestDefaultRangingOnShortHistory(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	res := c.Classify(choppySeries(10, 100, 0.3), nil)
	if res.Phase != Ranging {
		t.Errorf("Short history should fall back to RANGING, got %s", res.Phase)
	}
	if res.Confidence >= 0.5 {
		t.Errorf("Fallback confidence should be low, got %f", res.Confidence)
	}
}

func TestLadderBreakoutPending(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	ind := IndicatorSnapshot{
		ADX:            15,
		RSI:            52,
		BollWidthAtLow: true,
		ATRPercentile:  0.3,
		NearestZonePct: 0.002,
		HasZones:       true,
	}

	p, conf := c.pickPhase(ind)
	if p != BreakoutPending {
		t.Fatalf("Squeeze near a level should be BREAKOUT_PENDING, got %s", p)
	}
	if conf != 1.0 {
		t.Errorf("Every contributing indicator agrees, expected 1.0, got %f", conf)
	}
}

func TestLadderReversalPossible(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	ind := IndicatorSnapshot{
		ADX:            18,
		RSI:            28,
		NearestZonePct: 0.003,
		HasZones:       true,
		Divergence:     BullishDivergence,
		FalseBreaks:    1,
	}

	p, conf := c.pickPhase(ind)
	if p != ReversalPossible {
		t.Fatalf("Divergence at a level should be REVERSAL_POSSIBLE, got %s", p)
	}
	if conf != 1.0 {
		t.Errorf("Expected full agreement, got %f", conf)
	}
}

func TestLadderVolatile(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	ind := IndicatorSnapshot{
		ADX:           20,
		RSI:           50,
		ATRPercentile: 0.95,
	}

	p, _ := c.pickPhase(ind)
	if p != Volatile {
		t.Fatalf("Elevated ATR with no structure should be VOLATILE, got %s", p)
	}
}

func TestLadderTrendBeatsSqueeze(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	// Both rule 2 and rule 3 conditions hold: first match must win
	ind := IndicatorSnapshot{
		ADX:            30,
		RSI:            60,
		EMAFast:        101,
		EMASlow:        100,
		Close:          102,
		BollWidthAtLow: true,
		NearestZonePct: 0.001,
		HasZones:       true,
	}

	p, _ := c.pickPhase(ind)
	if p != TrendingUp {
		t.Errorf("Earlier ladder rung must win, got %s", p)
	}
}

func TestDetectRSIDivergence(t *testing.T) {
	rsi := make([]float64, 40)
	for i := range rsi {
		rsi[i] = 50
	}
	rsi[10] = 22
	rsi[30] = 38 // Higher RSI low against a lower price low

	pivots := []zones.Pivot{
		{Index: 10, Price: 95.0, Kind: zones.PivotLow},
		{Index: 30, Price: 94.2, Kind: zones.PivotLow},
	}

	if d := detectRSIDivergence(pivots, rsi); d != BullishDivergence {
		t.Errorf("Lower low with rising RSI should be bullish divergence, got %q", d)
	}

	// Price and RSI agreeing is not a divergence
	rsi[30] = 15
	if d := detectRSIDivergence(pivots, rsi); d != NoDivergence {
		t.Errorf("Falling RSI with falling price is trend confirmation, got %q", d)
	}
}
