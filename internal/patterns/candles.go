package patterns

import (
	"math"

	"market-insight-bot/internal/market"
)

// Single-candle predicates. Hammer and hanging man share a shape and are
// disambiguated by the preceding candle's direction.

func (s *Scanner) isDoji(c market.Candle) bool {
	return c.Range() > 0 && c.Body() <= c.Close*s.cfg.DojiSizePct
}

func (s *Scanner) isDragonflyDoji(c market.Candle) bool {
	return s.isDoji(c) &&
		c.LowerWick() >= c.Range()*0.6 &&
		c.UpperWick() <= c.Range()*0.15
}

func (s *Scanner) isGravestoneDoji(c market.Candle) bool {
	return s.isDoji(c) &&
		c.UpperWick() >= c.Range()*0.6 &&
		c.LowerWick() <= c.Range()*0.15
}

func (s *Scanner) isHammer(c market.Candle, prev *market.Candle, atr float64) bool {
	if prev == nil || !prev.IsBearish() {
		return false
	}
	return s.hasHammerShape(c, atr)
}

func (s *Scanner) isHangingMan(c market.Candle, prev *market.Candle, atr float64) bool {
	if prev == nil || !prev.IsBullish() {
		return false
	}
	return s.hasHammerShape(c, atr)
}

func (s *Scanner) hasHammerShape(c market.Candle, atr float64) bool {
	body := c.Body()
	if body <= 0 || s.isDoji(c) {
		return false
	}
	if atr > 0 && body > atr*s.cfg.HammerSizeATR {
		return false
	}
	return c.LowerWick() >= body*s.cfg.LongShadowRatio && c.UpperWick() <= body
}

func (s *Scanner) isShootingStar(c market.Candle, prev *market.Candle, atr float64) bool {
	if prev == nil || !prev.IsBullish() {
		return false
	}
	body := c.Body()
	if body <= 0 || s.isDoji(c) {
		return false
	}
	if atr > 0 && body > atr*s.cfg.HammerSizeATR {
		return false
	}
	return c.UpperWick() >= body*s.cfg.LongShadowRatio && c.LowerWick() <= body
}

func (s *Scanner) isLongUpperShadow(c market.Candle) bool {
	body := c.Body()
	return body > 0 &&
		c.UpperWick() >= body*s.cfg.LongShadowRatio &&
		c.UpperWick() >= c.Range()*0.5
}

func (s *Scanner) isLongLowerShadow(c market.Candle) bool {
	body := c.Body()
	return body > 0 &&
		c.LowerWick() >= body*s.cfg.LongShadowRatio &&
		c.LowerWick() >= c.Range()*0.5
}

// Two-candle predicates. All compare real bodies, wicks are ignored
// except where the pattern is defined on the extremes.

func (s *Scanner) isBullishEngulfing(prev, c market.Candle) bool {
	return prev.IsBearish() && c.IsBullish() &&
		c.Open <= prev.Close && c.Close >= prev.Open &&
		c.Body() > prev.Body()
}

func (s *Scanner) isBearishEngulfing(prev, c market.Candle) bool {
	return prev.IsBullish() && c.IsBearish() &&
		c.Open >= prev.Close && c.Close <= prev.Open &&
		c.Body() > prev.Body()
}

func (s *Scanner) isBullishHarami(prev, c market.Candle) bool {
	return prev.IsBearish() && c.IsBullish() &&
		c.Open > prev.Close && c.Close < prev.Open
}

func (s *Scanner) isBearishHarami(prev, c market.Candle) bool {
	return prev.IsBullish() && c.IsBearish() &&
		c.Open < prev.Close && c.Close > prev.Open
}

func (s *Scanner) isPiercingLine(prev, c market.Candle) bool {
	if !prev.IsBearish() || !c.IsBullish() {
		return false
	}
	mid := (prev.Open + prev.Close) / 2
	return c.Open < prev.Close && c.Close > mid && c.Close < prev.Open
}

func (s *Scanner) isDarkCloudCover(prev, c market.Candle) bool {
	if !prev.IsBullish() || !c.IsBearish() {
		return false
	}
	mid := (prev.Open + prev.Close) / 2
	return c.Open > prev.Close && c.Close < mid && c.Close > prev.Open
}

func (s *Scanner) isTweezerTop(prev, c market.Candle) bool {
	return prev.IsBullish() && c.IsBearish() &&
		math.Abs(prev.High-c.High) <= prev.High*s.cfg.TweezerTolerance
}

func (s *Scanner) isTweezerBottom(prev, c market.Candle) bool {
	return prev.IsBearish() && c.IsBullish() &&
		math.Abs(prev.Low-c.Low) <= prev.Low*s.cfg.TweezerTolerance
}
