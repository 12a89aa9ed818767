package prediction

import (
	"math/rand"
	"testing"
	"time"

	"market-insight-bot/internal/database"
	"market-insight-bot/internal/market"
)

var evalStart = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func longPrediction() *database.Prediction {
	return &database.Prediction{
		ID:          1,
		Symbol:      "BTCUSDT",
		Timeframe:   "1h",
		Direction:   database.DirectionLong,
		Strategy:    database.StrategyBreakoutPullback,
		EntryPrice:  100,
		StopLoss:    95,
		TakeProfits: []float64{105, 110},
		Status:      database.PredictionStatusActive,
		EntryTime:   evalStart,
		ExpiresAt:   evalStart.Add(14 * 24 * time.Hour),
	}
}

// pathBar builds an hourly candle i hours after the entry time
func pathBar(i int, lo, hi float64) market.Candle {
	open := evalStart.Add(time.Duration(i) * time.Hour)
	return market.Candle{
		OpenTime:  open.UnixMilli(),
		Open:      (lo + hi) / 2,
		High:      hi,
		Low:       lo,
		Close:     (lo + hi) / 2,
		CloseTime: open.Add(time.Hour).UnixMilli() - 1,
	}
}

func TestEvaluateLongWin(t *testing.T) {
	p := longPrediction()
	path := []market.Candle{
		pathBar(0, 99.5, 102),
		pathBar(1, 101, 104),
		pathBar(2, 103, 108),
		pathBar(3, 106, 111), // Final target 110 reached
	}

	ev := Evaluate(p, path, evalStart.Add(4*time.Hour), 20)

	if !ev.Resolved || ev.Status != database.PredictionStatusClosed {
		t.Fatalf("Should resolve closed, got %+v", ev)
	}
	if ev.Outcome == nil || *ev.Outcome != database.OutcomeWin {
		t.Fatal("Reaching the final target before the stop is a win")
	}
	if ev.RRAchieved < 1.0 {
		t.Errorf("Risk 5 and excursion 11 should give R:R >= 1, got %f", ev.RRAchieved)
	}
	if ev.DirectionScore != 40 {
		t.Errorf("Win direction component should be 40, got %f", ev.DirectionScore)
	}
	if ev.BarsToResolve == nil || *ev.BarsToResolve != 3 {
		t.Errorf("Should resolve on bar 3, got %v", ev.BarsToResolve)
	}
	// Fast hit, clean entry and R:R >= 2 should score near the top
	if ev.AccuracyScore < 90 || ev.AccuracyScore > 100 {
		t.Errorf("Expected a near-perfect score, got %f", ev.AccuracyScore)
	}
}

func TestEvaluateStopLossFirstTieBreak(t *testing.T) {
	p := longPrediction()
	// One violent bar crosses both the stop and the final target
	path := []market.Candle{pathBar(0, 94, 111)}

	ev := Evaluate(p, path, evalStart.Add(time.Hour), 20)

	if ev.Outcome == nil || *ev.Outcome != database.OutcomeLoss {
		t.Fatal("Stop and target inside one bar must resolve to the stop")
	}
}

func TestEvaluateBreakEvenAfterPartialTarget(t *testing.T) {
	p := longPrediction()
	path := []market.Candle{
		pathBar(0, 99, 103),
		pathBar(1, 102, 106), // First target 105 reached
		pathBar(2, 98, 104),
		pathBar(3, 94.5, 99), // Stop hit before the final target
	}

	ev := Evaluate(p, path, evalStart.Add(4*time.Hour), 20)

	if ev.Outcome == nil || *ev.Outcome != database.OutcomeBreakEven {
		t.Fatalf("Partial target before the stop downgrades loss to break even, got %v", ev.Outcome)
	}
	if ev.DirectionScore != 20 {
		t.Errorf("Break-even direction component should be 20, got %f", ev.DirectionScore)
	}
}

func TestEvaluateShortWin(t *testing.T) {
	p := longPrediction()
	p.Direction = database.DirectionShort
	p.StopLoss = 103
	p.TakeProfits = []float64{96, 92}

	path := []market.Candle{
		pathBar(0, 97, 101),
		pathBar(1, 91.5, 98), // Final target 92 reached
	}

	ev := Evaluate(p, path, evalStart.Add(2*time.Hour), 20)
	if ev.Outcome == nil || *ev.Outcome != database.OutcomeWin {
		t.Fatalf("Short reaching its lowest target is a win, got %v", ev.Outcome)
	}
}

func TestEvaluateExpiry(t *testing.T) {
	p := longPrediction()
	path := []market.Candle{
		pathBar(0, 99, 102),
		pathBar(1, 98, 103),
	}

	// Before the window closes: still unresolved
	ev := Evaluate(p, path, evalStart.Add(48*time.Hour), 20)
	if ev.Resolved {
		t.Fatal("No hit inside the window should stay unresolved before expiry")
	}
	if ev.MFE != 3 || ev.MAE != 2 {
		t.Errorf("Excursions should be recorded while unresolved, got mfe=%f mae=%f", ev.MFE, ev.MAE)
	}

	// Past the window: expired with a null outcome
	ev = Evaluate(p, path, p.ExpiresAt.Add(time.Minute), 20)
	if !ev.Resolved || ev.Status != database.PredictionStatusExpired {
		t.Fatalf("Should expire past the window, got %+v", ev)
	}
	if ev.Outcome != nil {
		t.Error("Expired predictions carry no outcome")
	}
	if ev.TimingScore != 0 || ev.DirectionScore != 0 {
		t.Error("Expiry earns no direction or timing points")
	}
}

func TestEvaluateIgnoresBarsAfterExpiry(t *testing.T) {
	p := longPrediction()
	lateBar := pathBar(0, 109, 112)
	lateBar.OpenTime = p.ExpiresAt.Add(time.Hour).UnixMilli()

	ev := Evaluate(p, []market.Candle{lateBar}, p.ExpiresAt.Add(2*time.Hour), 20)
	if ev.Outcome != nil {
		t.Error("A target hit after expiry must not count as a win")
	}
	if ev.Status != database.PredictionStatusExpired {
		t.Errorf("Expected expired, got %s", ev.Status)
	}
}

func TestEvaluateScoreBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 200; trial++ {
		p := longPrediction()
		if trial%2 == 1 {
			p.Direction = database.DirectionShort
			p.StopLoss = 105
			p.TakeProfits = []float64{95, 90}
		}

		path := make([]market.Candle, 30)
		price := 100.0
		for i := range path {
			lo := price - rng.Float64()*8
			hi := price + rng.Float64()*8
			path[i] = pathBar(i, lo, hi)
			price += (rng.Float64() - 0.5) * 4
		}

		ev := Evaluate(p, path, evalStart.Add(40*time.Hour), 20)
		if ev.Resolved && (ev.AccuracyScore < 0 || ev.AccuracyScore > 100) {
			t.Fatalf("trial %d: accuracy score out of bounds: %f", trial, ev.AccuracyScore)
		}
		if ev.MFE < 0 || ev.MAE < 0 {
			t.Fatalf("trial %d: excursions must be non-negative", trial)
		}
	}
}
