package prediction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"market-insight-bot/internal/database"
	"market-insight-bot/internal/market"
)

type fakeStore struct {
	active      []*database.Prediction
	closes      []database.PredictionClose
	closeResult bool
	evals       []*database.PredictionEvaluation
	excursions  int
}

func (f *fakeStore) GetActivePredictions(ctx context.Context) ([]*database.Prediction, error) {
	return f.active, nil
}

func (f *fakeStore) ClosePrediction(ctx context.Context, id int64, close database.PredictionClose) (bool, error) {
	f.closes = append(f.closes, close)
	return f.closeResult, nil
}

func (f *fakeStore) CreateEvaluation(ctx context.Context, e *database.PredictionEvaluation) error {
	f.evals = append(f.evals, e)
	return nil
}

func (f *fakeStore) UpdateExcursions(ctx context.Context, id int64, mfe, mae float64) error {
	f.excursions++
	return nil
}

type fakeClient struct {
	path  []market.Candle
	price float64
	err   error
	calls int
}

func (f *fakeClient) GetKlines(symbol, interval string, limit int) ([]market.Candle, error) {
	return f.path, f.err
}

func (f *fakeClient) GetKlinesSince(symbol, interval string, startTime int64, limit int) ([]market.Candle, error) {
	f.calls++
	return f.path, f.err
}

func (f *fakeClient) GetCurrentPrice(symbol string) (float64, error) {
	return f.price, f.err
}

type fakeTicker struct {
	price float64
	ok    bool
}

func (f *fakeTicker) LastPrice(symbol string, maxAge time.Duration) (float64, bool) {
	return f.price, f.ok
}

func testSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:        time.Minute,
		EntryLookback:   20,
		MaxFetchRetries: 1, // No backoff sleeps in tests
		FetchLimit:      100,
	}
}

func TestRunOnceClosesResolvedPrediction(t *testing.T) {
	store := &fakeStore{active: []*database.Prediction{longPrediction()}, closeResult: true}
	client := &fakeClient{path: []market.Candle{
		pathBar(0, 99, 103),
		pathBar(1, 104, 111), // Final target reached
	}}

	s := NewScheduler(store, client, nil, testSchedulerConfig(), zerolog.Nop())
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if len(store.closes) != 1 {
		t.Fatalf("Expected one close, got %d", len(store.closes))
	}
	if store.closes[0].Status != database.PredictionStatusClosed {
		t.Errorf("Expected closed status, got %s", store.closes[0].Status)
	}
	if store.closes[0].Outcome == nil || *store.closes[0].Outcome != database.OutcomeWin {
		t.Error("Expected a win outcome")
	}
	if len(store.evals) != 1 {
		t.Errorf("Resolution should record an evaluation row, got %d", len(store.evals))
	}
}

func TestRunOnceLostRaceIsNoOp(t *testing.T) {
	store := &fakeStore{active: []*database.Prediction{longPrediction()}, closeResult: false}
	client := &fakeClient{path: []market.Candle{pathBar(0, 104, 111)}}

	s := NewScheduler(store, client, nil, testSchedulerConfig(), zerolog.Nop())
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("Losing the status race must not error: %v", err)
	}
	if len(store.evals) != 0 {
		t.Error("A lost race should not record an evaluation row")
	}
}

func TestRunOnceRecordsExcursionsWhileUnresolved(t *testing.T) {
	store := &fakeStore{active: []*database.Prediction{longPrediction()}, closeResult: true}
	client := &fakeClient{path: []market.Candle{pathBar(0, 98, 103)}}

	s := NewScheduler(store, client, nil, testSchedulerConfig(), zerolog.Nop())
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if len(store.closes) != 0 {
		t.Error("Unresolved predictions must not be closed")
	}
	if store.excursions != 1 {
		t.Errorf("Expected one excursion update, got %d", store.excursions)
	}
}

func TestRunOnceAppendsEvaluationRowEveryPass(t *testing.T) {
	store := &fakeStore{active: []*database.Prediction{longPrediction()}, closeResult: true}
	client := &fakeClient{path: []market.Candle{pathBar(0, 98, 103)}, price: 102.5}

	s := NewScheduler(store, client, nil, testSchedulerConfig(), zerolog.Nop())
	for i := 0; i < 3; i++ {
		if err := s.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce failed on pass %d: %v", i+1, err)
		}
	}

	if len(store.evals) != 3 {
		t.Fatalf("Each pass must append an evaluation row, got %d rows for 3 passes", len(store.evals))
	}
	if store.excursions != 3 {
		t.Errorf("Expected three excursion updates, got %d", store.excursions)
	}
	for i, e := range store.evals {
		if e.PriceAtEval != 102.5 {
			t.Errorf("Row %d price_at_eval = %v, want 102.5", i, e.PriceAtEval)
		}
		if e.Outcome != nil {
			t.Errorf("Row %d should have no outcome while unresolved", i)
		}
	}
}

func TestEvaluationPriceFromStream(t *testing.T) {
	store := &fakeStore{active: []*database.Prediction{longPrediction()}, closeResult: true}
	client := &fakeClient{path: []market.Candle{pathBar(0, 98, 103)}, price: 101}
	stream := &fakeTicker{price: 102.75, ok: true}

	s := NewScheduler(store, client, stream, testSchedulerConfig(), zerolog.Nop())
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if len(store.evals) != 1 {
		t.Fatalf("Expected one evaluation row, got %d", len(store.evals))
	}
	if store.evals[0].PriceAtEval != 102.75 {
		t.Errorf("Streamed price should win over REST, got %v", store.evals[0].PriceAtEval)
	}
}

func TestEvaluationPriceFallsBackToRest(t *testing.T) {
	store := &fakeStore{active: []*database.Prediction{longPrediction()}, closeResult: true}
	client := &fakeClient{path: []market.Candle{pathBar(0, 98, 103)}, price: 101}
	stream := &fakeTicker{ok: false} // No fresh tick for the symbol

	s := NewScheduler(store, client, stream, testSchedulerConfig(), zerolog.Nop())
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if len(store.evals) != 1 {
		t.Fatalf("Expected one evaluation row, got %d", len(store.evals))
	}
	if store.evals[0].PriceAtEval != 101 {
		t.Errorf("Expected the REST price, got %v", store.evals[0].PriceAtEval)
	}
}

func TestRunOnceDefersSymbolOnFetchFailure(t *testing.T) {
	p1 := longPrediction()
	p2 := longPrediction()
	p2.ID = 2

	store := &fakeStore{active: []*database.Prediction{p1, p2}, closeResult: true}
	client := &fakeClient{err: errors.New("exchange unreachable")}

	s := NewScheduler(store, client, nil, testSchedulerConfig(), zerolog.Nop())
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("A symbol fetch failure must not abort the batch: %v", err)
	}

	if client.calls != 1 {
		t.Errorf("Second prediction on the deferred symbol should be skipped, got %d calls", client.calls)
	}
	if len(store.closes) != 0 || store.excursions != 0 {
		t.Error("Nothing should be persisted when market data is unavailable")
	}
}
