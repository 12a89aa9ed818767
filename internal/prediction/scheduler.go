package prediction

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"market-insight-bot/internal/database"
	"market-insight-bot/internal/market"
)

// Store is the subset of repository methods the evaluation loop needs
type Store interface {
	GetActivePredictions(ctx context.Context) ([]*database.Prediction, error)
	ClosePrediction(ctx context.Context, id int64, close database.PredictionClose) (bool, error)
	CreateEvaluation(ctx context.Context, e *database.PredictionEvaluation) error
	UpdateExcursions(ctx context.Context, id int64, mfe, mae float64) error
}

var _ Store = (*database.Repository)(nil)

// PriceSource serves recent streamed prices. Stale or missing ticks make
// LastPrice report false and the caller falls back to REST.
type PriceSource interface {
	LastPrice(symbol string, maxAge time.Duration) (float64, bool)
}

var _ PriceSource = (*market.PriceStream)(nil)

// priceMaxAge bounds how stale a streamed tick may be before the
// evaluator prefers a REST lookup
const priceMaxAge = time.Minute

// SchedulerConfig holds evaluation loop settings
type SchedulerConfig struct {
	Interval        time.Duration
	EntryLookback   int
	MaxFetchRetries int
	FetchLimit      int
}

// Scheduler periodically evaluates every active prediction against fresh
// market data. It shares nothing with the request path except the store,
// and never holds a lock across a market-data call: fetch, compute, then
// commit.
type Scheduler struct {
	store  Store
	client market.DataClient
	prices PriceSource // nil means REST-only price lookups
	cfg    SchedulerConfig
	logger zerolog.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates the evaluation scheduler. prices may be nil.
func NewScheduler(store Store, client market.DataClient, prices PriceSource, cfg SchedulerConfig, logger zerolog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.EntryLookback <= 0 {
		cfg.EntryLookback = 20
	}
	if cfg.MaxFetchRetries <= 0 {
		cfg.MaxFetchRetries = 3
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = 1000
	}
	return &Scheduler{
		store:  store,
		client: client,
		prices: prices,
		cfg:    cfg,
		logger: logger.With().Str("component", "prediction_scheduler").Logger(),
	}
}

// Start launches the background loop. One pass runs immediately, then one
// per interval until Stop or context cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		s.logger.Info().Dur("interval", s.cfg.Interval).Msg("Prediction scheduler started")
		if err := s.RunOnce(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Evaluation pass failed")
		}

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("Prediction scheduler stopped")
				return
			case <-ticker.C:
				if err := s.RunOnce(ctx); err != nil {
					s.logger.Error().Err(err).Msg("Evaluation pass failed")
				}
			}
		}
	}()
}

// Stop shuts the loop down and waits for the in-flight pass to finish
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

// RunOnce evaluates every active prediction. A market-data failure for one
// symbol is retried with bounded backoff and, once exhausted, deferred to
// the next cycle; it never aborts the batch or fails the prediction.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	preds, err := s.store.GetActivePredictions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active predictions: %w", err)
	}
	if len(preds) == 0 {
		return nil
	}

	now := time.Now()
	deferred := make(map[string]bool) // Symbols that exhausted retries this pass
	evaluated, closed := 0, 0

	for _, p := range preds {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if deferred[p.Symbol] {
			continue
		}

		path, err := s.fetchPath(ctx, p)
		if err != nil {
			deferred[p.Symbol] = true
			s.logger.Warn().Err(err).Str("symbol", p.Symbol).
				Msg("Market data unavailable, deferring symbol to next cycle")
			continue
		}

		ev := Evaluate(p, path, now, s.cfg.EntryLookback)
		evaluated++

		if err := s.commit(ctx, p, ev, s.currentPrice(p, path)); err != nil {
			s.logger.Error().Err(err).Int64("prediction_id", p.ID).
				Msg("Failed to persist evaluation")
			continue
		}
		if ev.Resolved {
			closed++
		}
	}

	s.logger.Info().Int("active", len(preds)).Int("evaluated", evaluated).
		Int("resolved", closed).Msg("Evaluation pass complete")
	return nil
}

func (s *Scheduler) fetchPath(ctx context.Context, p *database.Prediction) ([]market.Candle, error) {
	delay := time.Second
	var lastErr error

	for attempt := 0; attempt < s.cfg.MaxFetchRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		path, err := s.client.GetKlinesSince(p.Symbol, p.Timeframe, p.EntryTime.UnixMilli(), s.cfg.FetchLimit)
		if err == nil {
			return path, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// currentPrice resolves the market price to stamp on an evaluation row:
// a fresh streamed tick when available, then a REST lookup, then the
// close of the last fetched bar.
func (s *Scheduler) currentPrice(p *database.Prediction, path []market.Candle) float64 {
	if s.prices != nil {
		if price, ok := s.prices.LastPrice(p.Symbol, priceMaxAge); ok {
			return price
		}
	}
	if price, err := s.client.GetCurrentPrice(p.Symbol); err == nil && price > 0 {
		return price
	}
	if len(path) > 0 {
		return path[len(path)-1].Close
	}
	return 0
}

// commit persists one evaluation pass. Every pass appends an evaluation
// row; the prediction row additionally mirrors the running excursions.
// Resolution uses check-and-set: if the prediction was cancelled or
// closed concurrently, nothing is written for the losing pass.
func (s *Scheduler) commit(ctx context.Context, p *database.Prediction, ev Evaluation, price float64) error {
	row := &database.PredictionEvaluation{
		PredictionID:   p.ID,
		Outcome:        ev.Outcome,
		PriceAtEval:    price,
		RRAchieved:     ev.RRAchieved,
		MFE:            ev.MFE,
		MAE:            ev.MAE,
		AccuracyScore:  ev.AccuracyScore,
		DirectionScore: ev.DirectionScore,
		EntryScore:     ev.EntryScore,
		RRScore:        ev.RRScore,
		TimingScore:    ev.TimingScore,
		BarsToResolve:  ev.BarsToResolve,
	}

	if !ev.Resolved {
		if err := s.store.UpdateExcursions(ctx, p.ID, ev.MFE, ev.MAE); err != nil {
			return err
		}
		return s.store.CreateEvaluation(ctx, row)
	}

	won, err := s.store.ClosePrediction(ctx, p.ID, database.PredictionClose{
		Status:        ev.Status,
		Outcome:       ev.Outcome,
		AccuracyScore: ev.AccuracyScore,
		RRAchieved:    ev.RRAchieved,
		MFE:           ev.MFE,
		MAE:           ev.MAE,
		ClosedAt:      time.Now(),
	})
	if err != nil {
		return err
	}
	if !won {
		s.logger.Debug().Int64("prediction_id", p.ID).
			Msg("Prediction already resolved elsewhere, skipping")
		return nil
	}

	return s.store.CreateEvaluation(ctx, row)
}
