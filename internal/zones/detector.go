package zones

import (
	"math"
	"sort"

	"market-insight-bot/internal/indicators"
	"market-insight-bot/internal/market"

	"github.com/google/uuid"
)

// PivotKind distinguishes swing highs from swing lows
type PivotKind string

const (
	PivotHigh PivotKind = "high"
	PivotLow  PivotKind = "low"
)

// Pivot is a confirmed swing point. A pivot at index i only exists once
// `right` bars beyond i are available.
type Pivot struct {
	Index int       `json:"index"`
	Price float64   `json:"price"`
	Kind  PivotKind `json:"kind"`
}

// ZoneKind distinguishes support from resistance
type ZoneKind string

const (
	Support    ZoneKind = "support"
	Resistance ZoneKind = "resistance"
)

// ZoneStatus tracks the lifecycle of a zone
type ZoneStatus string

const (
	ZoneActive  ZoneStatus = "active"
	ZoneFlipped ZoneStatus = "flipped"
	ZoneBroken  ZoneStatus = "broken"
)

// Zone is an ATR-normalized price band around a pivot
type Zone struct {
	ID              string     `json:"id"`
	Top             float64    `json:"top"`
	Bottom          float64    `json:"bottom"`
	Kind            ZoneKind   `json:"kind"`
	Strength        int        `json:"strength"`
	CreatedAtIndex  int        `json:"created_at_index"`
	LastTestedIndex int        `json:"last_tested_index"`
	Status          ZoneStatus `json:"status"`
}

// IsTracked reports whether the zone still participates in level analysis.
// Flipped zones remain tracked under their new kind; broken zones do not.
func (z *Zone) IsTracked() bool {
	return z.Status != ZoneBroken
}

// Contains reports whether a price falls inside the zone band
func (z *Zone) Contains(price float64) bool {
	return price >= z.Bottom && price <= z.Top
}

// Intersects reports whether a [low, high] range overlaps the zone band
func (z *Zone) Intersects(low, high float64) bool {
	return low <= z.Top && high >= z.Bottom
}

// Config holds pivot and zone detection parameters
type Config struct {
	Left           int     // Bars to the left of a pivot
	Right          int     // Bars required to the right before a pivot is confirmed
	NumPivots      int     // Most recent pivots considered for zone building
	ATRLength      int     // ATR period for zone width
	ZoneATRMult    float64 // Zone width as a multiple of ATR
	MaxZonePct     float64 // Zone width cap as a fraction of the pivot price
	FalseBreakBars int     // Lookback for a false break reclaim
	UseHeikenAshi  bool    // Detect pivots on Heiken Ashi smoothed candles
}

// DefaultConfig returns sensible zone detection defaults
func DefaultConfig() Config {
	return Config{
		Left:           5,
		Right:          5,
		NumPivots:      10,
		ATRLength:      14,
		ZoneATRMult:    0.5,
		MaxZonePct:     0.01,
		FalseBreakBars: 3,
	}
}

// Detector finds swing pivots and builds support/resistance zones
type Detector struct {
	cfg Config
}

// NewDetector creates a pivot zone detector
func NewDetector(cfg Config) *Detector {
	if cfg.Left <= 0 {
		cfg.Left = 5
	}
	if cfg.Right <= 0 {
		cfg.Right = 5
	}
	if cfg.NumPivots <= 0 {
		cfg.NumPivots = 10
	}
	if cfg.ATRLength <= 0 {
		cfg.ATRLength = 14
	}
	if cfg.ZoneATRMult <= 0 {
		cfg.ZoneATRMult = 0.5
	}
	if cfg.MaxZonePct <= 0 {
		cfg.MaxZonePct = 0.01
	}
	if cfg.FalseBreakBars <= 0 {
		cfg.FalseBreakBars = 3
	}
	return &Detector{cfg: cfg}
}

// DetectPivots finds confirmed swing highs and lows. Index i is a pivot
// high iff high[i] is strictly the maximum over [i-left, i+right]; only
// indexes with `right` bars after them are eligible, so an unconfirmed
// pivot can never be reported. Heiken Ashi smoothing, when enabled,
// applies to detection only; reported prices come from the raw series.
func (d *Detector) DetectPivots(candles []market.Candle) []Pivot {
	if len(candles) < d.cfg.Left+d.cfg.Right+1 {
		return nil
	}

	detect := candles
	if d.cfg.UseHeikenAshi {
		detect = market.HeikenAshi(candles)
	}

	var pivots []Pivot
	for i := d.cfg.Left; i <= len(detect)-1-d.cfg.Right; i++ {
		if isStrictExtreme(detect, i, d.cfg.Left, d.cfg.Right, true) {
			pivots = append(pivots, Pivot{Index: i, Price: candles[i].High, Kind: PivotHigh})
		}
		if isStrictExtreme(detect, i, d.cfg.Left, d.cfg.Right, false) {
			pivots = append(pivots, Pivot{Index: i, Price: candles[i].Low, Kind: PivotLow})
		}
	}

	return pivots
}

func isStrictExtreme(candles []market.Candle, i, left, right int, high bool) bool {
	for j := i - left; j <= i+right; j++ {
		if j == i {
			continue
		}
		if high {
			if candles[j].High >= candles[i].High {
				return false
			}
		} else {
			if candles[j].Low <= candles[i].Low {
				return false
			}
		}
	}
	return true
}

// BuildZones turns the most recent pivots into price zones. Zone width is
// min(ATR(atrLength)*atrMult, price*maxPct) at the pivot's bar, centered
// on the pivot price.
func (d *Detector) BuildZones(candles []market.Candle, pivots []Pivot) []Zone {
	if len(pivots) == 0 {
		return nil
	}

	recent := pivots
	if len(recent) > d.cfg.NumPivots {
		recent = recent[len(recent)-d.cfg.NumPivots:]
	}

	atr := indicators.ATRSeries(candles, d.cfg.ATRLength)

	zones := make([]Zone, 0, len(recent))
	for _, p := range recent {
		width := math.Min(atr[p.Index]*d.cfg.ZoneATRMult, p.Price*d.cfg.MaxZonePct)
		if width <= 0 {
			continue
		}

		kind := Support
		if p.Kind == PivotHigh {
			kind = Resistance
		}

		zones = append(zones, Zone{
			ID:              uuid.NewString(),
			Top:             p.Price + width/2,
			Bottom:          p.Price - width/2,
			Kind:            kind,
			Strength:        1,
			CreatedAtIndex:  p.Index,
			LastTestedIndex: p.Index,
			Status:          ZoneActive,
		})
	}

	return zones
}

// MergeOverlappingZones fuses intersecting zones of the same kind into
// their covering interval, summing strengths, and iterates until no pair
// overlaps. Merging is idempotent and a merged zone never shrinks.
func (d *Detector) MergeOverlappingZones(zones []Zone) []Zone {
	if len(zones) <= 1 {
		return zones
	}

	byKind := map[ZoneKind][]Zone{}
	for _, z := range zones {
		byKind[z.Kind] = append(byKind[z.Kind], z)
	}

	var merged []Zone
	for _, group := range byKind {
		merged = append(merged, mergeGroup(group)...)
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Bottom < merged[j].Bottom })
	return merged
}

func mergeGroup(zones []Zone) []Zone {
	for {
		sort.Slice(zones, func(i, j int) bool { return zones[i].Bottom < zones[j].Bottom })

		fused := false
		out := make([]Zone, 0, len(zones))
		for _, z := range zones {
			if len(out) == 0 {
				out = append(out, z)
				continue
			}

			last := &out[len(out)-1]
			if z.Bottom <= last.Top {
				// Fuse into the covering interval
				if z.Top > last.Top {
					last.Top = z.Top
				}
				if z.Bottom < last.Bottom {
					last.Bottom = z.Bottom
				}
				last.Strength += z.Strength
				if z.CreatedAtIndex < last.CreatedAtIndex {
					last.CreatedAtIndex = z.CreatedAtIndex
				}
				if z.LastTestedIndex > last.LastTestedIndex {
					last.LastTestedIndex = z.LastTestedIndex
				}
				fused = true
				continue
			}
			out = append(out, z)
		}

		zones = out
		if !fused {
			return zones
		}
	}
}
