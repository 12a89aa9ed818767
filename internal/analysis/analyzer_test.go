package analysis

import (
	"context"
	"errors"
	"testing"

	"market-insight-bot/config"
	"market-insight-bot/internal/market"
)

func testAppConfig() *config.Config {
	cfg := &config.Config{}
	cfg.ZoneConfig = config.ZoneConfig{
		PivotLeft: 2, PivotRight: 2, NumPivots: 10, ATRLength: 14,
		ZoneATRMult: 0.5, MaxZonePct: 0.01, FalseBreakBars: 3,
	}
	cfg.ScannerConfig = config.ScannerConfig{
		DojiSizePct: 0.001, HammerSizeATR: 1.0, LongShadowRatio: 2.0, TweezerTolerance: 0.001,
	}
	cfg.PhaseConfig = config.PhaseConfig{
		ADXPeriod: 14, RSIPeriod: 14, ADXTrendMin: 25, EMAFast: 9, EMASlow: 21,
		BBPeriod: 20, SqueezeLookback: 20, ATRPercentileMin: 0.8, ZoneProximityPct: 0.005,
	}
	cfg.MarketDataConfig.KlineLimit = 100
	return cfg
}

type stubClient struct {
	candles []market.Candle
	err     error
}

func (s *stubClient) GetKlines(symbol, interval string, limit int) ([]market.Candle, error) {
	return s.candles, s.err
}

func (s *stubClient) GetKlinesSince(symbol, interval string, startTime int64, limit int) ([]market.Candle, error) {
	return s.candles, s.err
}

func (s *stubClient) GetCurrentPrice(symbol string) (float64, error) {
	return 0, s.err
}

func quietCandles(n int) []market.Candle {
	candles := make([]market.Candle, n)
	for i := range candles {
		price := 100.0
		if i%2 == 1 {
			price = 100.4
		}
		candles[i] = market.Candle{
			OpenTime:  int64(i) * 60_000,
			Open:      price,
			High:      price + 0.6,
			Low:       price - 0.6,
			Close:     price,
			CloseTime: int64(i)*60_000 + 59_999,
		}
	}
	return candles
}

func TestAnalyzeComposesPipeline(t *testing.T) {
	candles := quietCandles(60)
	candles[30].High = 104 // Swing high for a resistance zone

	a := New(&stubClient{candles: candles}, nil, testAppConfig())
	snap, err := a.Analyze(context.Background(), "BTCUSDT", "1h")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if snap.Symbol != "BTCUSDT" || snap.Timeframe != "1h" {
		t.Errorf("Snapshot identity wrong: %s %s", snap.Symbol, snap.Timeframe)
	}
	if snap.LastPrice != candles[59].Close {
		t.Errorf("Last price should be the final close, got %f", snap.LastPrice)
	}
	if snap.Zones == nil || len(snap.Zones.Pivots) == 0 {
		t.Error("Zone analysis should run and find the swing high")
	}
	if snap.Phase.Phase == "" {
		t.Error("Phase classification should always produce a label")
	}
}

func TestAnalyzePropagatesFetchError(t *testing.T) {
	a := New(&stubClient{err: errors.New("exchange down")}, nil, testAppConfig())
	if _, err := a.Analyze(context.Background(), "BTCUSDT", "1h"); err == nil {
		t.Fatal("A fetch failure must surface to the caller")
	}
}

func TestAnalyzeRejectsEmptySeries(t *testing.T) {
	a := New(&stubClient{}, nil, testAppConfig())
	if _, err := a.Analyze(context.Background(), "BTCUSDT", "1h"); err == nil {
		t.Fatal("An empty candle series must surface as an error")
	}
}
