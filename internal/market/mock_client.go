package market

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// MockClient provides simulated market data for development/testing
type MockClient struct {
	mu         sync.RWMutex
	prices     map[string]float64
	lastUpdate time.Time
	rng        *rand.Rand
}

// NewMockClient creates a new mock client with realistic base prices
func NewMockClient() *MockClient {
	return &MockClient{
		prices: map[string]float64{
			"BTCUSDT": 104500.00,
			"ETHUSDT": 3900.00,
			"BNBUSDT": 710.00,
			"SOLUSDT": 220.00,
			"XRPUSDT": 2.35,
			"ADAUSDT": 1.05,
		},
		lastUpdate: time.Now(),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// updatePrices adds small random variations to simulate market movement
func (mc *MockClient) updatePrices() {
	if time.Since(mc.lastUpdate) < time.Second {
		return
	}

	for symbol, price := range mc.prices {
		// +/- 0.15% random walk per tick
		change := (mc.rng.Float64() - 0.5) * 0.003
		mc.prices[symbol] = price * (1 + change)
	}
	mc.lastUpdate = time.Now()
}

// GetCurrentPrice returns the simulated price for a symbol
func (mc *MockClient) GetCurrentPrice(symbol string) (float64, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.updatePrices()

	price, ok := mc.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("unknown symbol: %s", symbol)
	}
	return price, nil
}

// GetKlines generates a synthetic candle series ending at the current price
func (mc *MockClient) GetKlines(symbol, interval string, limit int) ([]Candle, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.updatePrices()

	base, ok := mc.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown symbol: %s", symbol)
	}

	step := intervalMillis(interval)
	now := time.Now().UnixMilli()
	start := now - int64(limit)*step

	candles := make([]Candle, 0, limit)
	price := base * 0.98
	for i := 0; i < limit; i++ {
		drift := (mc.rng.Float64() - 0.48) * base * 0.004
		open := price
		close := price + drift
		high := math.Max(open, close) + mc.rng.Float64()*base*0.002
		low := math.Min(open, close) - mc.rng.Float64()*base*0.002
		openTime := start + int64(i)*step

		candles = append(candles, Candle{
			OpenTime:  openTime,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    1000 + mc.rng.Float64()*5000,
			CloseTime: openTime + step - 1,
		})
		price = close
	}

	return candles, nil
}

// GetKlinesSince generates synthetic candles from startTime onward
func (mc *MockClient) GetKlinesSince(symbol, interval string, startTime int64, limit int) ([]Candle, error) {
	candles, err := mc.GetKlines(symbol, interval, limit)
	if err != nil {
		return nil, err
	}

	step := intervalMillis(interval)
	for i := range candles {
		candles[i].OpenTime = startTime + int64(i)*step
		candles[i].CloseTime = candles[i].OpenTime + step - 1
	}
	return candles, nil
}

// intervalMillis converts an interval string like "15m" or "1h" to milliseconds
func intervalMillis(interval string) int64 {
	if len(interval) < 2 {
		return 60_000
	}

	var value int64
	for _, r := range interval[:len(interval)-1] {
		if r < '0' || r > '9' {
			return 60_000
		}
		value = value*10 + int64(r-'0')
	}
	if value == 0 {
		value = 1
	}

	switch interval[len(interval)-1] {
	case 's':
		return value * 1000
	case 'm':
		return value * 60_000
	case 'h':
		return value * 3_600_000
	case 'd':
		return value * 86_400_000
	default:
		return 60_000
	}
}
