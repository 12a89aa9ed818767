package zones

import (
	"testing"

	"market-insight-bot/internal/market"
)

func TestFalseBreakdownFires(t *testing.T) {
	d := NewDetector(testConfig()) // FalseBreakBars: 2

	candles := series(92, 92, 92, 92, 92, 92, 92, 92, 92, 92, 92, 92, 92, 92, 92)
	// Swing low at index 4 forms the support
	candles[4] = market.Candle{Open: 92, High: 92.5, Low: 90, Close: 91.8}
	// Breach: close below the zone bottom
	candles[10] = market.Candle{Open: 92, High: 92.2, Low: 89.3, Close: 89.5}
	// Reclaim one bar later without a lower low
	candles[11] = market.Candle{Open: 89.5, High: 92, Low: 89.4, Close: 91.5}

	snap := d.Analyze(candles)

	breakdowns := 0
	for _, fb := range snap.FalseBreaks {
		if fb.Kind == Support {
			breakdowns++
			if fb.BreakIndex != 10 || fb.ReclaimIndex != 11 {
				t.Errorf("Expected break at 10 and reclaim at 11, got %d/%d", fb.BreakIndex, fb.ReclaimIndex)
			}
			if fb.Extreme != 89.3 {
				t.Errorf("Breach extreme should be the breach bar low, got %f", fb.Extreme)
			}
		}
	}
	if breakdowns != 1 {
		t.Fatalf("Expected exactly one false breakdown, got %d", breakdowns)
	}
}

func TestFalseBreakNotFiredOnNewLow(t *testing.T) {
	d := NewDetector(testConfig())

	candles := series(92, 92, 92, 92, 92, 92, 92, 92, 92, 92, 92, 92, 92, 92, 92)
	candles[4] = market.Candle{Open: 92, High: 92.5, Low: 90, Close: 91.8}
	candles[10] = market.Candle{Open: 92, High: 92.2, Low: 89.3, Close: 89.5}
	// Prints a lower low before reclaiming: genuine pressure, not a trap
	candles[11] = market.Candle{Open: 89.5, High: 92, Low: 89.0, Close: 91.5}

	snap := d.Analyze(candles)
	for _, fb := range snap.FalseBreaks {
		if fb.Kind == Support && fb.BreakIndex == 10 {
			t.Error("Should NOT report a false breakdown when a new low printed before the reclaim")
		}
	}
}

func TestSupportResistanceFlip(t *testing.T) {
	d := NewDetector(testConfig())

	candles := series(95, 95, 95, 95, 95, 95, 95, 95, 95, 95, 95, 95, 95)
	candles[4].High = 100 // Resistance pivot
	// Sustained break above the zone
	candles[8] = market.Candle{Open: 95, High: 101.5, Low: 94.8, Close: 101.2}
	// Retest of the topside while holding above
	candles[9] = market.Candle{Open: 101.2, High: 101.8, Low: 100.2, Close: 101.0}
	for i := 10; i < 13; i++ {
		candles[i] = market.Candle{Open: 101, High: 101.5, Low: 100.8, Close: 101.2}
	}

	snap := d.Analyze(candles)

	flipped := 0
	for _, z := range snap.Zones {
		if z.Status == ZoneFlipped {
			flipped++
			if z.Kind != Support {
				t.Errorf("Flipped resistance should now act as support, got %s", z.Kind)
			}
			if z.Strength < 2 {
				t.Errorf("Flip should increment strength, got %d", z.Strength)
			}
		}
	}
	if flipped != 1 {
		t.Fatalf("Expected exactly one flipped zone, got %d", flipped)
	}
}

func TestBreakoutRequiresOutermostZone(t *testing.T) {
	d := NewDetector(testConfig())

	makeZones := func() []Zone {
		return []Zone{
			{ID: "near", Bottom: 100, Top: 102, Kind: Resistance, Strength: 1, Status: ZoneActive},
			{ID: "far", Bottom: 108, Top: 110, Kind: Resistance, Strength: 1, Status: ZoneActive},
		}
	}

	// A close between the two resistance zones is never a breakout
	if ev := d.DetectBreakout(series(105), makeZones()); ev != nil {
		t.Errorf("Close at 105 between resistances must not be a breakout, got %+v", ev)
	}

	// A close past every tracked resistance is
	zs := makeZones()
	ev := d.DetectBreakout(series(112), zs)
	if ev == nil {
		t.Fatal("Close at 112 past all resistances should be a breakout")
	}
	if ev.Direction != "up" {
		t.Errorf("Expected upward breakout, got %s", ev.Direction)
	}
	if len(ev.ZoneIDs) != 2 {
		t.Errorf("Breakout should reference every breached zone, got %d", len(ev.ZoneIDs))
	}
	for _, z := range zs {
		if z.Status != ZoneBroken {
			t.Errorf("Breached zone %s should be marked broken", z.ID)
		}
	}
}

func TestBreakoutDownPastAllSupports(t *testing.T) {
	d := NewDetector(testConfig())

	zs := []Zone{
		{ID: "s1", Bottom: 90, Top: 91, Kind: Support, Strength: 1, Status: ZoneActive},
		{ID: "s2", Bottom: 85, Top: 86, Kind: Support, Strength: 2, Status: ZoneActive},
	}

	if ev := d.DetectBreakout(series(88), zs); ev != nil {
		t.Errorf("Close at 88 between supports must not be a breakdown, got %+v", ev)
	}

	ev := d.DetectBreakout(series(84), zs)
	if ev == nil {
		t.Fatal("Close at 84 past all supports should be a breakdown")
	}
	if ev.Direction != "down" {
		t.Errorf("Expected downward breakout, got %s", ev.Direction)
	}
}
