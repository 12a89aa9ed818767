package zones

import "market-insight-bot/internal/market"

// FalseBreakEvent records a brief close beyond a zone boundary that was
// reclaimed within the lookback window. Immutable once created.
type FalseBreakEvent struct {
	ZoneID       string   `json:"zone_id"`
	Kind         ZoneKind `json:"kind"`
	Level        float64  `json:"level"`
	BreakIndex   int      `json:"break_index"`
	ReclaimIndex int      `json:"reclaim_index"`
	Extreme      float64  `json:"extreme"` // Low (breakdown) or high (breakout) of the breach bar
}

// BreakoutEvent records a close beyond every tracked zone on one side.
// Immutable once created.
type BreakoutEvent struct {
	Direction string   `json:"direction"` // "up" or "down"
	Index     int      `json:"index"`
	Price     float64  `json:"price"`
	ZoneIDs   []string `json:"zone_ids"`
}

// DetectSRFlips flips a zone's kind once price closes beyond it and later
// returns to test the opposite face. Flipping increments strength and
// marks the zone flipped; it is the only operation that changes kind.
func (d *Detector) DetectSRFlips(candles []market.Candle, zs []Zone) []Zone {
	for i := range zs {
		z := &zs[i]
		if z.Status == ZoneBroken {
			continue
		}

		brokenAbove := false
		brokenBelow := false
		for bar := z.CreatedAtIndex + 1; bar < len(candles); bar++ {
			c := candles[bar]

			switch {
			case z.Kind == Support && !brokenBelow:
				if c.Close < z.Bottom {
					brokenBelow = true
				}
			case z.Kind == Support && brokenBelow:
				if c.Close > z.Bottom {
					// Reclaimed: that was a trap, not a break
					brokenBelow = false
					continue
				}
				// Price returns from below to test the underside while
				// still closing beyond the level
				if c.High >= z.Bottom {
					z.Kind = Resistance
					z.Strength++
					z.Status = ZoneFlipped
					z.LastTestedIndex = bar
					brokenBelow = false
				}
			case z.Kind == Resistance && !brokenAbove:
				if c.Close > z.Top {
					brokenAbove = true
				}
			case z.Kind == Resistance && brokenAbove:
				if c.Close < z.Top {
					brokenAbove = false
					continue
				}
				// Price returns from above to test the topside
				if c.Low <= z.Top {
					z.Kind = Support
					z.Strength++
					z.Status = ZoneFlipped
					z.LastTestedIndex = bar
					brokenAbove = false
				}
			}
		}
	}

	return zs
}

// DetectFalseBreaks finds liquidity traps: a close beyond a zone boundary
// that closes back inside within `lookback` bars, without any bar in
// between printing a new extreme beyond the breach bar's extreme.
func (d *Detector) DetectFalseBreaks(candles []market.Candle, zs []Zone) []FalseBreakEvent {
	lookback := d.cfg.FalseBreakBars

	var events []FalseBreakEvent
	for i := range zs {
		z := &zs[i]
		if !z.IsTracked() {
			continue
		}

		if z.Kind == Support {
			events = append(events, d.falseBreakdowns(candles, z, lookback)...)
		} else {
			events = append(events, d.falseBreakouts(candles, z, lookback)...)
		}
	}

	return events
}

// falseBreakdowns fires when price closes below the support level and then
// closes back above it within the lookback, with no new low beyond the
// breach bar's low in between.
func (d *Detector) falseBreakdowns(candles []market.Candle, z *Zone, lookback int) []FalseBreakEvent {
	level := z.Bottom

	var events []FalseBreakEvent
	for b := z.LastTestedIndex + 1; b < len(candles); b++ {
		if candles[b].Close >= level {
			continue
		}

		breachLow := candles[b].Low
		for r := b + 1; r <= b+lookback && r < len(candles); r++ {
			if candles[r].Low < breachLow {
				break // New low beyond the breach extreme: genuine pressure
			}
			if candles[r].Close > level {
				events = append(events, FalseBreakEvent{
					ZoneID:       z.ID,
					Kind:         Support,
					Level:        level,
					BreakIndex:   b,
					ReclaimIndex: r,
					Extreme:      breachLow,
				})
				z.LastTestedIndex = r
				b = r // Resume scanning after the reclaim
				break
			}
		}
	}

	return events
}

// falseBreakouts is the symmetric case for resistance: a close above the
// top that closes back below within the lookback, with no higher high.
func (d *Detector) falseBreakouts(candles []market.Candle, z *Zone, lookback int) []FalseBreakEvent {
	level := z.Top

	var events []FalseBreakEvent
	for b := z.LastTestedIndex + 1; b < len(candles); b++ {
		if candles[b].Close <= level {
			continue
		}

		breachHigh := candles[b].High
		for r := b + 1; r <= b+lookback && r < len(candles); r++ {
			if candles[r].High > breachHigh {
				break
			}
			if candles[r].Close < level {
				events = append(events, FalseBreakEvent{
					ZoneID:       z.ID,
					Kind:         Resistance,
					Level:        level,
					BreakIndex:   b,
					ReclaimIndex: r,
					Extreme:      breachHigh,
				})
				z.LastTestedIndex = r
				b = r
				break
			}
		}
	}

	return events
}

// DetectBreakout reports a breakout only when the latest close is beyond
// the outermost tracked zone on that side: above the highest resistance
// top, or below the lowest support bottom. A close between two same-side
// zones never qualifies. Breached zones are marked broken.
func (d *Detector) DetectBreakout(candles []market.Candle, zs []Zone) *BreakoutEvent {
	if len(candles) == 0 {
		return nil
	}

	lastIdx := len(candles) - 1
	lastClose := candles[lastIdx].Close

	var maxResTop, minSupBottom float64
	var haveRes, haveSup bool
	for i := range zs {
		if !zs[i].IsTracked() {
			continue
		}
		switch zs[i].Kind {
		case Resistance:
			if !haveRes || zs[i].Top > maxResTop {
				maxResTop = zs[i].Top
				haveRes = true
			}
		case Support:
			if !haveSup || zs[i].Bottom < minSupBottom {
				minSupBottom = zs[i].Bottom
				haveSup = true
			}
		}
	}

	if haveRes && lastClose > maxResTop {
		var ids []string
		for i := range zs {
			if zs[i].IsTracked() && zs[i].Kind == Resistance {
				ids = append(ids, zs[i].ID)
				zs[i].Status = ZoneBroken
			}
		}
		return &BreakoutEvent{Direction: "up", Index: lastIdx, Price: lastClose, ZoneIDs: ids}
	}

	if haveSup && lastClose < minSupBottom {
		var ids []string
		for i := range zs {
			if zs[i].IsTracked() && zs[i].Kind == Support {
				ids = append(ids, zs[i].ID)
				zs[i].Status = ZoneBroken
			}
		}
		return &BreakoutEvent{Direction: "down", Index: lastIdx, Price: lastClose, ZoneIDs: ids}
	}

	return nil
}
