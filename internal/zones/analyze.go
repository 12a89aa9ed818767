package zones

import "market-insight-bot/internal/market"

// Snapshot is the immutable result of one analysis pass
type Snapshot struct {
	Pivots      []Pivot           `json:"pivots"`
	Zones       []Zone            `json:"zones"`
	FalseBreaks []FalseBreakEvent `json:"false_breaks"`
	Breakout    *BreakoutEvent    `json:"breakout,omitempty"`
	LastIndex   int               `json:"last_index"`
}

// ActiveZones returns the tracked (active or flipped) zones of the snapshot
func (s *Snapshot) ActiveZones() []Zone {
	var out []Zone
	for _, z := range s.Zones {
		if z.IsTracked() {
			out = append(out, z)
		}
	}
	return out
}

// Analyze runs the full detection pipeline in a fixed order: pivots,
// zones, merge, flips, false breaks, breakout. With fewer than
// left+right+1 candles it returns an empty snapshot, not an error.
func (d *Detector) Analyze(candles []market.Candle) *Snapshot {
	if len(candles) < d.cfg.Left+d.cfg.Right+1 {
		return &Snapshot{LastIndex: len(candles) - 1}
	}

	pivots := d.DetectPivots(candles)
	zs := d.BuildZones(candles, pivots)
	zs = d.MergeOverlappingZones(zs)
	zs = d.DetectSRFlips(candles, zs)
	falseBreaks := d.DetectFalseBreaks(candles, zs)
	breakout := d.DetectBreakout(candles, zs)

	return &Snapshot{
		Pivots:      pivots,
		Zones:       zs,
		FalseBreaks: falseBreaks,
		Breakout:    breakout,
		LastIndex:   len(candles) - 1,
	}
}
