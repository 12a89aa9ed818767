package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"market-insight-bot/config"
	"market-insight-bot/internal/cache"
	"market-insight-bot/internal/logging"
	"market-insight-bot/internal/market"
	"market-insight-bot/internal/patterns"
	"market-insight-bot/internal/phase"
	"market-insight-bot/internal/zones"
)

// Snapshot is one complete market-structure read for a symbol and
// timeframe, shaped for JSON consumers and prompt assembly alike.
type Snapshot struct {
	Symbol      string           `json:"symbol"`
	Timeframe   string           `json:"timeframe"`
	GeneratedAt time.Time        `json:"generated_at"`
	LastPrice   float64          `json:"last_price"`
	Zones       *zones.Snapshot  `json:"zones"`
	Patterns    []patterns.Match `json:"patterns"`
	Phase       phase.Result     `json:"phase"`
}

// Analyzer composes the detection pipeline: candles feed the zone
// detector, whose active zones gate the pattern scanner, and both feed
// the phase classifier. Pure over its inputs, so safe to run in parallel
// across symbols.
type Analyzer struct {
	client     market.DataClient
	cache      *cache.CacheService // nil disables caching
	detector   *zones.Detector
	scanner    *patterns.Scanner
	classifier *phase.Classifier
	klineLimit int
	log        *logging.Logger
}

// New creates an analyzer from the application configuration
func New(client market.DataClient, cacheSvc *cache.CacheService, cfg *config.Config) *Analyzer {
	return &Analyzer{
		client: client,
		cache:  cacheSvc,
		detector: zones.NewDetector(zones.Config{
			Left:           cfg.ZoneConfig.PivotLeft,
			Right:          cfg.ZoneConfig.PivotRight,
			NumPivots:      cfg.ZoneConfig.NumPivots,
			ATRLength:      cfg.ZoneConfig.ATRLength,
			ZoneATRMult:    cfg.ZoneConfig.ZoneATRMult,
			MaxZonePct:     cfg.ZoneConfig.MaxZonePct,
			FalseBreakBars: cfg.ZoneConfig.FalseBreakBars,
			UseHeikenAshi:  cfg.ZoneConfig.UseHeikenAshi,
		}),
		scanner: patterns.NewScanner(patterns.Config{
			OnlyAtLevels:     cfg.ScannerConfig.OnlyAtLevels,
			DojiSizePct:      cfg.ScannerConfig.DojiSizePct,
			HammerSizeATR:    cfg.ScannerConfig.HammerSizeATR,
			LongShadowRatio:  cfg.ScannerConfig.LongShadowRatio,
			TweezerTolerance: cfg.ScannerConfig.TweezerTolerance,
			ATRLength:        cfg.ZoneConfig.ATRLength,
		}),
		classifier: phase.NewClassifier(phase.Config{
			ADXPeriod:        cfg.PhaseConfig.ADXPeriod,
			RSIPeriod:        cfg.PhaseConfig.RSIPeriod,
			ADXTrendMin:      cfg.PhaseConfig.ADXTrendMin,
			EMAFast:          cfg.PhaseConfig.EMAFast,
			EMASlow:          cfg.PhaseConfig.EMASlow,
			BBPeriod:         cfg.PhaseConfig.BBPeriod,
			SqueezeLookback:  cfg.PhaseConfig.SqueezeLookback,
			ATRPercentileMin: cfg.PhaseConfig.ATRPercentileMin,
			ZoneProximityPct: cfg.PhaseConfig.ZoneProximityPct,
			ATRLength:        cfg.ZoneConfig.ATRLength,
		}),
		klineLimit: cfg.MarketDataConfig.KlineLimit,
		log:        logging.Default().WithComponent("analysis"),
	}
}

// Analyze produces a snapshot for one symbol and timeframe, serving from
// cache when a fresh one exists. Cache failures degrade to recomputation.
func (a *Analyzer) Analyze(ctx context.Context, symbol, timeframe string) (*Snapshot, error) {
	key := cache.SnapshotKey(symbol, timeframe)
	if a.cache != nil {
		var cached Snapshot
		err := a.cache.GetJSON(ctx, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) && !errors.Is(err, cache.ErrCacheUnavailable) {
			a.log.Warn("Snapshot cache read failed", "symbol", symbol, "error", err.Error())
		}
	}

	candles, err := a.client.GetKlines(symbol, timeframe, a.klineLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candles for %s: %w", symbol, err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("no candle data for %s %s", symbol, timeframe)
	}

	snap := a.Compute(symbol, timeframe, candles)

	if a.cache != nil {
		if err := a.cache.SetJSON(ctx, key, snap, cache.SnapshotTTL); err != nil &&
			!errors.Is(err, cache.ErrCacheUnavailable) {
			a.log.Warn("Snapshot cache write failed", "symbol", symbol, "error", err.Error())
		}
	}

	return snap, nil
}

// Compute runs the detection pipeline over an already-fetched series
func (a *Analyzer) Compute(symbol, timeframe string, candles []market.Candle) *Snapshot {
	zoneSnap := a.detector.Analyze(candles)
	matches := a.scanner.Scan(candles, zoneSnap.ActiveZones())
	phaseRes := a.classifier.Classify(candles, zoneSnap)

	return &Snapshot{
		Symbol:      symbol,
		Timeframe:   timeframe,
		GeneratedAt: time.Now().UTC(),
		LastPrice:   candles[len(candles)-1].Close,
		Zones:       zoneSnap,
		Patterns:    matches,
		Phase:       phaseRes,
	}
}
