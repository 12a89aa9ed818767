package prediction

import (
	"math"
	"time"

	"market-insight-bot/internal/database"
	"market-insight-bot/internal/market"
)

// Evaluation is the outcome of one evaluation pass over a prediction
type Evaluation struct {
	Resolved       bool
	Status         string // closed or expired when resolved
	Outcome        *string
	RRAchieved     float64
	MFE            float64
	MAE            float64
	AccuracyScore  float64
	DirectionScore float64
	EntryScore     float64
	RRScore        float64
	TimingScore    float64
	BarsToResolve  *int
}

// Evaluate walks the price path bar by bar since entry. A long wins when a
// bar's high reaches the final take profit before any bar's low touches
// the stop; when both are crossed inside one bar the stop wins the
// tie-break. Reaching an earlier take profit before the stop downgrades a
// would-be loss to break even. No hit by the expiry time resolves to
// expired with a null outcome. Symmetric for shorts.
func Evaluate(p *database.Prediction, path []market.Candle, now time.Time, entryLookback int) Evaluation {
	risk := math.Abs(p.EntryPrice - p.StopLoss)

	var ev Evaluation
	long := p.Direction == database.DirectionLong

	finalTP, nearTP := targetLevels(p.TakeProfits, long)
	partialHit := false

	expiryMillis := p.ExpiresAt.UnixMilli()
	for i, c := range path {
		if c.OpenTime > expiryMillis {
			break // Bars after expiry never resolve the prediction
		}
		if long {
			ev.MFE = math.Max(ev.MFE, c.High-p.EntryPrice)
			ev.MAE = math.Max(ev.MAE, p.EntryPrice-c.Low)
		} else {
			ev.MFE = math.Max(ev.MFE, p.EntryPrice-c.Low)
			ev.MAE = math.Max(ev.MAE, c.High-p.EntryPrice)
		}

		stopHit := (long && c.Low <= p.StopLoss) || (!long && c.High >= p.StopLoss)
		targetHit := (long && c.High >= finalTP) || (!long && c.Low <= finalTP)

		if stopHit {
			outcome := database.OutcomeLoss
			if partialHit {
				outcome = database.OutcomeBreakEven
			}
			ev.resolve(database.PredictionStatusClosed, &outcome, i)
			break
		}
		if targetHit {
			outcome := database.OutcomeWin
			ev.resolve(database.PredictionStatusClosed, &outcome, i)
			break
		}
		if (long && c.High >= nearTP) || (!long && c.Low <= nearTP) {
			partialHit = true
		}
	}

	if !ev.Resolved && !now.Before(p.ExpiresAt) {
		ev.resolve(database.PredictionStatusExpired, nil, -1)
	}

	if risk > 0 {
		ev.RRAchieved = ev.MFE / risk
	}
	if ev.Resolved {
		scoreEvaluation(&ev, p, path, risk, entryLookback)
	}

	return ev
}

func (ev *Evaluation) resolve(status string, outcome *string, barIndex int) {
	ev.Resolved = true
	ev.Status = status
	ev.Outcome = outcome
	if barIndex >= 0 {
		bars := barIndex
		ev.BarsToResolve = &bars
	}
}

// targetLevels returns the final target (the win condition) and the
// nearest target (the break-even trigger) for the given side.
func targetLevels(takeProfits []float64, long bool) (final, near float64) {
	final, near = takeProfits[0], takeProfits[0]
	for _, tp := range takeProfits[1:] {
		if long {
			final = math.Max(final, tp)
			near = math.Min(near, tp)
		} else {
			final = math.Min(final, tp)
			near = math.Max(near, tp)
		}
	}
	return final, near
}

// scoreEvaluation fills the composite accuracy score: direction (0/20/40),
// entry efficiency (0-20), achieved R:R tier (0/10/15/20) and a timing
// bonus (0-20) decaying linearly from entry to expiry. Clamped to [0,100].
func scoreEvaluation(ev *Evaluation, p *database.Prediction, path []market.Candle, risk float64, entryLookback int) {
	switch {
	case ev.Outcome != nil && *ev.Outcome == database.OutcomeWin:
		ev.DirectionScore = 40
	case ev.Outcome != nil && *ev.Outcome == database.OutcomeBreakEven:
		ev.DirectionScore = 20
	}

	ev.EntryScore = entryEfficiency(p, path, risk, entryLookback) * 20

	switch {
	case ev.RRAchieved >= 2.0:
		ev.RRScore = 20
	case ev.RRAchieved >= 1.5:
		ev.RRScore = 15
	case ev.RRAchieved >= 1.0:
		ev.RRScore = 10
	}

	if ev.BarsToResolve != nil && *ev.BarsToResolve < len(path) {
		hitAt := time.UnixMilli(path[*ev.BarsToResolve].CloseTime)
		window := p.ExpiresAt.Sub(p.EntryTime)
		if window > 0 {
			frac := float64(hitAt.Sub(p.EntryTime)) / float64(window)
			ev.TimingScore = clamp(20*(1-frac), 0, 20)
		}
	}

	total := ev.DirectionScore + ev.EntryScore + ev.RRScore + ev.TimingScore
	ev.AccuracyScore = clamp(total, 0, 100)
}

// entryEfficiency measures how close the entry sat to the best available
// price in the early part of the path, normalized by the risk distance.
func entryEfficiency(p *database.Prediction, path []market.Candle, risk float64, lookback int) float64 {
	if len(path) == 0 || risk <= 0 {
		return 0
	}
	if lookback <= 0 || lookback > len(path) {
		lookback = len(path)
	}

	if p.Direction == database.DirectionLong {
		best := path[0].Low
		for _, c := range path[:lookback] {
			best = math.Min(best, c.Low)
		}
		return clamp(1-(p.EntryPrice-best)/risk, 0, 1)
	}

	best := path[0].High
	for _, c := range path[:lookback] {
		best = math.Max(best, c.High)
	}
	return clamp(1-(best-p.EntryPrice)/risk, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
