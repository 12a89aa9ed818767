package phase

import (
	"market-insight-bot/internal/indicators"
	"market-insight-bot/internal/market"
	"market-insight-bot/internal/zones"
)

// Phase labels the current market regime
type Phase string

const (
	Ranging          Phase = "RANGING"
	TrendingUp       Phase = "TRENDING_UP"
	TrendingDown     Phase = "TRENDING_DOWN"
	BreakoutPending  Phase = "BREAKOUT_PENDING"
	Volatile         Phase = "VOLATILE"
	ReversalPossible Phase = "REVERSAL_POSSIBLE"
)

// Divergence between RSI and price at recent pivots
type Divergence string

const (
	NoDivergence      Divergence = ""
	BullishDivergence Divergence = "bullish"
	BearishDivergence Divergence = "bearish"
)

// IndicatorSnapshot holds the inputs the ladder decided on. Persisted with
// the result so a label can always be traced back to its evidence.
type IndicatorSnapshot struct {
	ADX            float64    `json:"adx"`
	RSI            float64    `json:"rsi"`
	EMAFast        float64    `json:"ema_fast"`
	EMASlow        float64    `json:"ema_slow"`
	Close          float64    `json:"close"`
	BollWidth      float64    `json:"boll_width"`
	BollWidthAtLow bool       `json:"boll_width_at_low"`
	ATRPercentile  float64    `json:"atr_percentile"`
	NearestZonePct float64    `json:"nearest_zone_pct"` // Relative distance to the nearest tracked boundary, 0 when inside
	InsideZone     bool       `json:"inside_zone"`
	HasZones       bool       `json:"has_zones"`
	Divergence     Divergence `json:"divergence,omitempty"`
	FalseBreaks    int        `json:"false_breaks"`
}

// Result is one classification outcome
type Result struct {
	Phase      Phase             `json:"phase"`
	Confidence float64           `json:"confidence"`
	Indicators IndicatorSnapshot `json:"indicators"`
}

// Config holds classifier thresholds
type Config struct {
	ADXPeriod        int
	RSIPeriod        int
	ADXTrendMin      float64
	EMAFast          int
	EMASlow          int
	BBPeriod         int
	SqueezeLookback  int
	ATRPercentileMin float64
	ZoneProximityPct float64
	ATRLength        int
}

// DefaultConfig returns classifier defaults
func DefaultConfig() Config {
	return Config{
		ADXPeriod:        14,
		RSIPeriod:        14,
		ADXTrendMin:      25.0,
		EMAFast:          9,
		EMASlow:          21,
		BBPeriod:         20,
		SqueezeLookback:  20,
		ATRPercentileMin: 0.8,
		ZoneProximityPct: 0.005,
		ATRLength:        14,
	}
}

// Classifier labels the market regime with a deterministic rule ladder.
// Stateless over its input window.
type Classifier struct {
	cfg Config
}

// NewClassifier creates a phase classifier
func NewClassifier(cfg Config) *Classifier {
	def := DefaultConfig()
	if cfg.ADXPeriod <= 0 {
		cfg.ADXPeriod = def.ADXPeriod
	}
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = def.RSIPeriod
	}
	if cfg.ADXTrendMin <= 0 {
		cfg.ADXTrendMin = def.ADXTrendMin
	}
	if cfg.EMAFast <= 0 {
		cfg.EMAFast = def.EMAFast
	}
	if cfg.EMASlow <= 0 {
		cfg.EMASlow = def.EMASlow
	}
	if cfg.BBPeriod <= 0 {
		cfg.BBPeriod = def.BBPeriod
	}
	if cfg.SqueezeLookback <= 0 {
		cfg.SqueezeLookback = def.SqueezeLookback
	}
	if cfg.ATRPercentileMin <= 0 {
		cfg.ATRPercentileMin = def.ATRPercentileMin
	}
	if cfg.ZoneProximityPct <= 0 {
		cfg.ZoneProximityPct = def.ZoneProximityPct
	}
	if cfg.ATRLength <= 0 {
		cfg.ATRLength = def.ATRLength
	}
	return &Classifier{cfg: cfg}
}

// Classify runs the rule ladder over the candle series and the zone
// snapshot. With less history than the slow EMA needs it returns the
// default RANGING at low confidence rather than an error.
func (c *Classifier) Classify(candles []market.Candle, snap *zones.Snapshot) Result {
	if len(candles) < c.cfg.EMASlow {
		return Result{Phase: Ranging, Confidence: 0.25}
	}

	ind := c.snapshotIndicators(candles, snap)
	p, conf := c.pickPhase(ind)
	return Result{Phase: p, Confidence: conf, Indicators: ind}
}

func (c *Classifier) snapshotIndicators(candles []market.Candle, snap *zones.Snapshot) IndicatorSnapshot {
	lastClose := candles[len(candles)-1].Close
	rsiSeries := indicators.RSISeries(candles, c.cfg.RSIPeriod)
	bbWidths := indicators.BollingerWidthSeries(candles, c.cfg.BBPeriod, 2.0)

	ind := IndicatorSnapshot{
		ADX:            indicators.CalculateADX(candles, c.cfg.ADXPeriod),
		RSI:            rsiSeries[len(rsiSeries)-1],
		EMAFast:        indicators.CalculateEMA(candles, c.cfg.EMAFast),
		EMASlow:        indicators.CalculateEMA(candles, c.cfg.EMASlow),
		Close:          lastClose,
		BollWidth:      bbWidths[len(bbWidths)-1],
		BollWidthAtLow: indicators.IsRollingLow(bbWidths, c.cfg.SqueezeLookback),
		ATRPercentile:  indicators.ATRPercentile(candles, c.cfg.ATRLength),
	}

	if snap != nil {
		active := snap.ActiveZones()
		ind.HasZones = len(active) > 0
		ind.NearestZonePct, ind.InsideZone = nearestZoneDistance(lastClose, active)
		ind.Divergence = detectRSIDivergence(snap.Pivots, rsiSeries)
		ind.FalseBreaks = len(snap.FalseBreaks)
	}

	return ind
}

// pickPhase is the ladder itself, first match wins. Confidence is the
// fraction of that rung's contributing indicators agreeing with the label.
func (c *Classifier) pickPhase(ind IndicatorSnapshot) (Phase, float64) {
	adxLow := ind.ADX < c.cfg.ADXTrendMin
	nearZone := ind.HasZones && ind.NearestZonePct <= c.cfg.ZoneProximityPct
	rsiNeutral := ind.RSI >= 40 && ind.RSI <= 60
	rsiExtreme := ind.RSI <= 35 || ind.RSI >= 65
	atrHigh := ind.ATRPercentile >= c.cfg.ATRPercentileMin

	// 1. No trend strength while price sits inside a level
	if adxLow && ind.InsideZone {
		return Ranging, confidence(adxLow, ind.InsideZone, rsiNeutral, !ind.BollWidthAtLow)
	}

	// 2. Trend strength with EMA alignment
	if !adxLow && ind.EMAFast > ind.EMASlow {
		return TrendingUp, confidence(true, true, ind.RSI > 50, ind.Close > ind.EMASlow)
	}
	if !adxLow && ind.EMAFast < ind.EMASlow {
		return TrendingDown, confidence(true, true, ind.RSI < 50, ind.Close < ind.EMASlow)
	}

	// 3. Volatility squeeze pressed against a level
	if ind.BollWidthAtLow && nearZone {
		return BreakoutPending, confidence(true, true, adxLow, !atrHigh)
	}

	// 4. Momentum disagreeing with price at a tested level
	if ind.Divergence != NoDivergence && nearZone {
		return ReversalPossible, confidence(true, true, rsiExtreme, ind.FalseBreaks > 0)
	}

	// 5. Elevated volatility with no structural read
	if atrHigh {
		return Volatile, confidence(true, !ind.BollWidthAtLow, adxLow)
	}

	// 6. Default
	return Ranging, 0.25
}

func confidence(votes ...bool) float64 {
	if len(votes) == 0 {
		return 0
	}
	agree := 0
	for _, v := range votes {
		if v {
			agree++
		}
	}
	return float64(agree) / float64(len(votes))
}

// nearestZoneDistance returns the relative distance from price to the
// nearest tracked zone boundary, and whether price sits inside a zone.
func nearestZoneDistance(price float64, zs []zones.Zone) (float64, bool) {
	if len(zs) == 0 || price <= 0 {
		return 0, false
	}

	best := -1.0
	for _, z := range zs {
		if z.Contains(price) {
			return 0, true
		}
		d := (z.Bottom - price) / price
		if price > z.Top {
			d = (price - z.Top) / price
		}
		if best < 0 || d < best {
			best = d
		}
	}
	return best, false
}

// detectRSIDivergence compares the last two same-kind pivots: price making
// a lower low while RSI makes a higher low is bullish; a higher high with
// a lower RSI high is bearish. The more recent divergence wins.
func detectRSIDivergence(pivots []zones.Pivot, rsi []float64) Divergence {
	var lows, highs []zones.Pivot
	for _, p := range pivots {
		if p.Index >= len(rsi) {
			continue
		}
		if p.Kind == zones.PivotLow {
			lows = append(lows, p)
		} else {
			highs = append(highs, p)
		}
	}

	var result Divergence
	lastIndex := -1

	if n := len(lows); n >= 2 {
		p1, p2 := lows[n-2], lows[n-1]
		if p2.Price < p1.Price && rsi[p2.Index] > rsi[p1.Index] {
			result = BullishDivergence
			lastIndex = p2.Index
		}
	}
	if n := len(highs); n >= 2 {
		p1, p2 := highs[n-2], highs[n-1]
		if p2.Price > p1.Price && rsi[p2.Index] < rsi[p1.Index] && p2.Index > lastIndex {
			result = BearishDivergence
		}
	}

	return result
}
