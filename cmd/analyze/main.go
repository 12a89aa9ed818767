package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"market-insight-bot/config"
	"market-insight-bot/internal/analysis"
	"market-insight-bot/internal/market"
)

// Offline one-shot analysis: fetch candles for a symbol, run the full
// zone/pattern/phase pipeline, and dump the snapshot as JSON.
func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: analyze <symbol> [timeframe]")
		fmt.Println("Example: analyze BTCUSDT 1h")
		os.Exit(1)
	}

	symbol := os.Args[1]
	timeframe := "1h"
	if len(os.Args) > 2 {
		timeframe = os.Args[2]
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	var client market.DataClient
	if cfg.MarketDataConfig.MockMode {
		fmt.Println("Running against simulated market data (MOCK_MODE=true)")
		client = market.NewMockClient()
	} else {
		client = market.NewClient(cfg.MarketDataConfig.BaseURL).WithAPIKey(cfg.MarketDataConfig.APIKey)
	}

	analyzer := analysis.New(client, nil, cfg)

	snapshot, err := analyzer.Analyze(context.Background(), symbol, timeframe)
	if err != nil {
		fmt.Printf("Analysis failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s %s: phase=%s (confidence %.2f), %d active zones, %d patterns\n",
		snapshot.Symbol, snapshot.Timeframe,
		snapshot.Phase.Phase, snapshot.Phase.Confidence,
		len(snapshot.Zones.ActiveZones()), len(snapshot.Patterns))

	out, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		fmt.Printf("Failed to encode snapshot: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
