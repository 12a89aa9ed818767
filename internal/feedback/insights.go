package feedback

import (
	"context"
	"fmt"
	"sort"

	"market-insight-bot/internal/database"
)

// Insight type constants
const (
	InsightStopTooTight        = "stop_too_tight"
	InsightTimeframePreference = "timeframe_preference"
	InsightExpiryHeavy         = "expiry_heavy"
	InsightStrategyEdge        = "strategy_edge"
	InsightOverconfidence      = "overconfidence"
)

const minInsightEvidence = 3

// GlobalInsights mines the full closed-prediction set, irrespective of
// user or strategy, for rule-based lessons. Results are deduplicated by
// (type, source strategy), ranked by confidence and capped for injection.
func (s *Synthesizer) GlobalInsights(ctx context.Context) ([]*database.GlobalInsight, error) {
	preds, err := s.store.GetClosedPredictions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load closed predictions: %w", err)
	}

	var insights []*database.GlobalInsight
	insights = append(insights, stopTooTightInsights(preds)...)
	insights = append(insights, timeframeInsights(preds)...)
	insights = append(insights, expiryHeavyInsights(preds)...)
	insights = append(insights, strategyEdgeInsights(preds)...)
	insights = append(insights, overconfidenceInsights(preds)...)

	insights = dedupeInsights(insights)
	sort.SliceStable(insights, func(i, j int) bool {
		return insights[i].Confidence > insights[j].Confidence
	})
	if len(insights) > s.cfg.MaxInsights {
		insights = insights[:s.cfg.MaxInsights]
	}

	s.log.Info("Global insights mined", "closed_predictions", len(preds), "insights", len(insights))
	return insights, nil
}

// stopTooTightInsights flags strategies where over 30% of losses were
// shaken out: the stop hit after price had already covered at least half
// the distance to the nearest target.
func stopTooTightInsights(preds []*database.Prediction) []*database.GlobalInsight {
	losses := make(map[database.StrategyType]int)
	shaken := make(map[database.StrategyType]int)

	for _, p := range preds {
		if p.Outcome == nil || *p.Outcome != database.OutcomeLoss {
			continue
		}
		losses[p.Strategy]++
		if p.MFE != nil && *p.MFE >= nearestTargetDistance(p)/2 {
			shaken[p.Strategy]++
		}
	}

	var out []*database.GlobalInsight
	for strategy, total := range losses {
		if total < minInsightEvidence {
			continue
		}
		rate := float64(shaken[strategy]) / float64(total)
		if rate <= 0.30 {
			continue
		}
		src := string(strategy)
		out = append(out, &database.GlobalInsight{
			Type:           InsightStopTooTight,
			SourceStrategy: &src,
			Message: fmt.Sprintf("%.0f%% of %s losses ran halfway to target before stopping out; widen the stop or enter later.",
				rate*100, strategy),
			Confidence:    rate,
			EvidenceCount: shaken[strategy],
		})
	}
	return out
}

func nearestTargetDistance(p *database.Prediction) float64 {
	if len(p.TakeProfits) == 0 {
		return 0
	}
	best := -1.0
	for _, tp := range p.TakeProfits {
		d := tp - p.EntryPrice
		if p.Direction == database.DirectionShort {
			d = p.EntryPrice - tp
		}
		if best < 0 || d < best {
			best = d
		}
	}
	return best
}

// timeframeInsights flags a timeframe whose win rate beats the overall
// win rate by more than 10 points
func timeframeInsights(preds []*database.Prediction) []*database.GlobalInsight {
	decided, wins := 0, 0
	tfDecided := make(map[string]int)
	tfWins := make(map[string]int)

	for _, p := range preds {
		if p.Outcome == nil {
			continue
		}
		decided++
		tfDecided[p.Timeframe]++
		if *p.Outcome == database.OutcomeWin {
			wins++
			tfWins[p.Timeframe]++
		}
	}
	if decided < minInsightEvidence {
		return nil
	}
	overall := float64(wins) / float64(decided) * 100

	var out []*database.GlobalInsight
	for tf, n := range tfDecided {
		if n < minInsightEvidence {
			continue
		}
		rate := float64(tfWins[tf]) / float64(n) * 100
		edge := rate - overall
		if edge <= 10 {
			continue
		}
		out = append(out, &database.GlobalInsight{
			Type: InsightTimeframePreference,
			Message: fmt.Sprintf("The %s timeframe wins %.0f%% against %.0f%% overall; prefer it when setups conflict.",
				tf, rate, overall),
			Confidence:    clampUnit(edge / 100 * 2),
			EvidenceCount: n,
		})
	}
	return out
}

// expiryHeavyInsights flags strategies where over 40% of resolved
// predictions timed out without touching either level
func expiryHeavyInsights(preds []*database.Prediction) []*database.GlobalInsight {
	resolved := make(map[database.StrategyType]int)
	expired := make(map[database.StrategyType]int)

	for _, p := range preds {
		resolved[p.Strategy]++
		if p.Status == database.PredictionStatusExpired {
			expired[p.Strategy]++
		}
	}

	var out []*database.GlobalInsight
	for strategy, total := range resolved {
		if total < minInsightEvidence {
			continue
		}
		rate := float64(expired[strategy]) / float64(total)
		if rate <= 0.40 {
			continue
		}
		src := string(strategy)
		out = append(out, &database.GlobalInsight{
			Type:           InsightExpiryHeavy,
			SourceStrategy: &src,
			Message: fmt.Sprintf("%.0f%% of %s predictions expire untouched; targets may be too ambitious for the window.",
				rate*100, strategy),
			Confidence:    rate,
			EvidenceCount: expired[strategy],
		})
	}
	return out
}

// strategyEdgeInsights flags a strategy beating the overall win rate by
// more than 15 points
func strategyEdgeInsights(preds []*database.Prediction) []*database.GlobalInsight {
	decided, wins := 0, 0
	stDecided := make(map[database.StrategyType]int)
	stWins := make(map[database.StrategyType]int)

	for _, p := range preds {
		if p.Outcome == nil {
			continue
		}
		decided++
		stDecided[p.Strategy]++
		if *p.Outcome == database.OutcomeWin {
			wins++
			stWins[p.Strategy]++
		}
	}
	if decided < minInsightEvidence {
		return nil
	}
	overall := float64(wins) / float64(decided) * 100

	var out []*database.GlobalInsight
	for strategy, n := range stDecided {
		if n < minInsightEvidence {
			continue
		}
		rate := float64(stWins[strategy]) / float64(n) * 100
		edge := rate - overall
		if edge <= 15 {
			continue
		}
		src := string(strategy)
		out = append(out, &database.GlobalInsight{
			Type:           InsightStrategyEdge,
			SourceStrategy: &src,
			Message: fmt.Sprintf("%s wins %.0f%% against %.0f%% overall; lean on it while the edge holds.",
				strategy, rate, overall),
			Confidence:    clampUnit(edge / 100 * 2),
			EvidenceCount: n,
		})
	}
	return out
}

// overconfidenceInsights flags strategies whose stated confidence runs
// more than 20 points above the realized win rate
func overconfidenceInsights(preds []*database.Prediction) []*database.GlobalInsight {
	confSum := make(map[database.StrategyType]float64)
	decided := make(map[database.StrategyType]int)
	wins := make(map[database.StrategyType]int)

	for _, p := range preds {
		if p.Outcome == nil || p.Confidence == nil {
			continue
		}
		decided[p.Strategy]++
		confSum[p.Strategy] += *p.Confidence * 100
		if *p.Outcome == database.OutcomeWin {
			wins[p.Strategy]++
		}
	}

	var out []*database.GlobalInsight
	for strategy, n := range decided {
		if n < minInsightEvidence {
			continue
		}
		stated := confSum[strategy] / float64(n)
		realized := float64(wins[strategy]) / float64(n) * 100
		gap := stated - realized
		if gap <= 20 {
			continue
		}
		src := string(strategy)
		out = append(out, &database.GlobalInsight{
			Type:           InsightOverconfidence,
			SourceStrategy: &src,
			Message: fmt.Sprintf("%s states %.0f%% confidence but wins %.0f%%; discount its confidence numbers.",
				strategy, stated, realized),
			Confidence:    clampUnit(gap / 100 * 2),
			EvidenceCount: n,
		})
	}
	return out
}

func dedupeInsights(insights []*database.GlobalInsight) []*database.GlobalInsight {
	seen := make(map[string]bool)
	var out []*database.GlobalInsight
	for _, ins := range insights {
		key := ins.Type
		if ins.SourceStrategy != nil {
			key += "|" + *ins.SourceStrategy
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, ins)
	}
	return out
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
