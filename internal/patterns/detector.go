package patterns

import (
	"sort"

	"market-insight-bot/internal/indicators"
	"market-insight-bot/internal/market"
	"market-insight-bot/internal/zones"
)

// PatternType represents different candlestick patterns
type PatternType string

const (
	// Reversal patterns
	Hammer           PatternType = "hammer"
	HangingMan       PatternType = "hanging_man"
	ShootingStar     PatternType = "shooting_star"
	BullishEngulfing PatternType = "bullish_engulfing"
	BearishEngulfing PatternType = "bearish_engulfing"
	BullishHarami    PatternType = "bullish_harami"
	BearishHarami    PatternType = "bearish_harami"
	PiercingLine     PatternType = "piercing_line"
	DarkCloudCover   PatternType = "dark_cloud_cover"
	TweezerTop       PatternType = "tweezer_top"
	TweezerBottom    PatternType = "tweezer_bottom"
	DragonflyDoji    PatternType = "dragonfly_doji"
	GravestoneDoji   PatternType = "gravestone_doji"

	// Neutral / continuation context patterns
	Doji            PatternType = "doji"
	LongUpperShadow PatternType = "long_upper_shadow"
	LongLowerShadow PatternType = "long_lower_shadow"
)

// Direction of the signal a pattern implies
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
	Neutral Direction = "neutral"
)

// patternPriority orders same-bar matches: reversal patterns rank before
// continuation/neutral ones. Lower value sorts first.
var patternPriority = map[PatternType]int{
	BullishEngulfing: 0,
	BearishEngulfing: 0,
	PiercingLine:     1,
	DarkCloudCover:   1,
	Hammer:           2,
	ShootingStar:     2,
	HangingMan:       2,
	BullishHarami:    3,
	BearishHarami:    3,
	TweezerTop:       4,
	TweezerBottom:    4,
	DragonflyDoji:    5,
	GravestoneDoji:   5,
	Doji:             8,
	LongUpperShadow:  9,
	LongLowerShadow:  9,
}

// Match represents a detected candlestick pattern
type Match struct {
	Type       PatternType `json:"pattern_type"`
	BarIndex   int         `json:"bar_index"`
	Direction  Direction   `json:"direction"`
	SizeMetric float64     `json:"size_metric"`       // Candle range normalized to ATR
	ZoneID     *string     `json:"zone_id,omitempty"` // Active zone the candle intersects
}

// Config holds pattern scanner thresholds
type Config struct {
	OnlyAtLevels     bool    // Keep only matches intersecting an active zone
	DojiSizePct      float64 // Max doji body as fraction of price
	HammerSizeATR    float64 // Max hammer/star body as multiple of ATR
	LongShadowRatio  float64 // Wick-to-body ratio for wick-driven patterns
	TweezerTolerance float64 // Max relative distance between tweezer extremes
	ATRLength        int
}

// DefaultConfig returns scanner defaults
func DefaultConfig() Config {
	return Config{
		DojiSizePct:      0.001,
		HammerSizeATR:    1.0,
		LongShadowRatio:  2.0,
		TweezerTolerance: 0.001,
		ATRLength:        14,
	}
}

// Scanner matches a fixed catalogue of candlestick patterns over 1-3
// candle windows. Detection is pure and stateless over the input window.
type Scanner struct {
	cfg Config
}

// NewScanner creates a pattern scanner
func NewScanner(cfg Config) *Scanner {
	if cfg.DojiSizePct <= 0 {
		cfg.DojiSizePct = 0.001
	}
	if cfg.HammerSizeATR <= 0 {
		cfg.HammerSizeATR = 1.0
	}
	if cfg.LongShadowRatio <= 0 {
		cfg.LongShadowRatio = 2.0
	}
	if cfg.TweezerTolerance <= 0 {
		cfg.TweezerTolerance = 0.001
	}
	if cfg.ATRLength <= 0 {
		cfg.ATRLength = 14
	}
	return &Scanner{cfg: cfg}
}

// Scan detects all catalogue patterns over the series. With OnlyAtLevels
// set, a match survives only if its candle's [low, high] range intersects
// one of the given active zones. Output is ordered by bar index
// ascending, ties broken by the fixed priority table.
func (s *Scanner) Scan(candles []market.Candle, activeZones []zones.Zone) []Match {
	if len(candles) == 0 {
		return nil
	}

	atr := indicators.ATRSeries(candles, s.cfg.ATRLength)

	var matches []Match
	add := func(t PatternType, i int, dir Direction) {
		m := Match{Type: t, BarIndex: i, Direction: dir, SizeMetric: sizeMetric(candles[i], atr[i])}
		if s.cfg.OnlyAtLevels {
			zone := intersectingZone(candles[i], activeZones)
			if zone == nil {
				return
			}
			m.ZoneID = &zone.ID
		} else if zone := intersectingZone(candles[i], activeZones); zone != nil {
			m.ZoneID = &zone.ID
		}
		matches = append(matches, m)
	}

	for i := range candles {
		c := candles[i]
		var prev *market.Candle
		if i > 0 {
			prev = &candles[i-1]
		}

		// Single-candle patterns
		if s.isHammer(c, prev, atr[i]) {
			add(Hammer, i, Bullish)
		}
		if s.isHangingMan(c, prev, atr[i]) {
			add(HangingMan, i, Bearish)
		}
		if s.isShootingStar(c, prev, atr[i]) {
			add(ShootingStar, i, Bearish)
		}
		if s.isDragonflyDoji(c) {
			add(DragonflyDoji, i, Bullish)
		} else if s.isGravestoneDoji(c) {
			add(GravestoneDoji, i, Bearish)
		} else if s.isDoji(c) {
			add(Doji, i, Neutral)
		}
		if s.isLongUpperShadow(c) {
			add(LongUpperShadow, i, Bearish)
		}
		if s.isLongLowerShadow(c) {
			add(LongLowerShadow, i, Bullish)
		}

		// Two-candle patterns
		if prev != nil {
			if s.isBullishEngulfing(*prev, c) {
				add(BullishEngulfing, i, Bullish)
			}
			if s.isBearishEngulfing(*prev, c) {
				add(BearishEngulfing, i, Bearish)
			}
			if s.isBullishHarami(*prev, c) {
				add(BullishHarami, i, Bullish)
			}
			if s.isBearishHarami(*prev, c) {
				add(BearishHarami, i, Bearish)
			}
			if s.isPiercingLine(*prev, c) {
				add(PiercingLine, i, Bullish)
			}
			if s.isDarkCloudCover(*prev, c) {
				add(DarkCloudCover, i, Bearish)
			}
			if s.isTweezerTop(*prev, c) {
				add(TweezerTop, i, Bearish)
			}
			if s.isTweezerBottom(*prev, c) {
				add(TweezerBottom, i, Bullish)
			}
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].BarIndex != matches[j].BarIndex {
			return matches[i].BarIndex < matches[j].BarIndex
		}
		return patternPriority[matches[i].Type] < patternPriority[matches[j].Type]
	})

	return matches
}

func sizeMetric(c market.Candle, atr float64) float64 {
	if atr <= 0 {
		return 0
	}
	return c.Range() / atr
}

func intersectingZone(c market.Candle, zs []zones.Zone) *zones.Zone {
	for i := range zs {
		if zs[i].IsTracked() && zs[i].Intersects(c.Low, c.High) {
			return &zs[i]
		}
	}
	return nil
}
