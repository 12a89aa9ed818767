package feedback

import (
	"context"
	"testing"

	"market-insight-bot/internal/database"
)

func withMFE(p *database.Prediction, mfe float64) *database.Prediction {
	p.MFE = &mfe
	return p
}

func TestStopTooTightInsight(t *testing.T) {
	// Entry 100, nearest target 105: an MFE of 2.5 or more means the trade
	// ran at least halfway to target before stopping out.
	var closed []*database.Prediction
	for i := 0; i < 2; i++ {
		closed = append(closed, withMFE(closedPred(database.StrategyBreakoutPullback, database.OutcomeLoss, 10), 3.0))
	}
	for i := 0; i < 3; i++ {
		closed = append(closed, withMFE(closedPred(database.StrategyBreakoutPullback, database.OutcomeLoss, 5), 0.5))
	}

	insights := stopTooTightInsights(closed)
	if len(insights) != 1 {
		t.Fatalf("40%% shaken-out losses should produce one insight, got %d", len(insights))
	}
	ins := insights[0]
	if ins.Type != InsightStopTooTight {
		t.Errorf("Expected %s, got %s", InsightStopTooTight, ins.Type)
	}
	if ins.SourceStrategy == nil || *ins.SourceStrategy != string(database.StrategyBreakoutPullback) {
		t.Error("Insight should be tagged with its source strategy")
	}
	if ins.EvidenceCount != 2 {
		t.Errorf("Evidence should count the shaken-out losses, got %d", ins.EvidenceCount)
	}
}

func TestStopTooTightBelowThreshold(t *testing.T) {
	var closed []*database.Prediction
	closed = append(closed, withMFE(closedPred(database.StrategyMomentum, database.OutcomeLoss, 10), 3.0))
	for i := 0; i < 4; i++ {
		closed = append(closed, withMFE(closedPred(database.StrategyMomentum, database.OutcomeLoss, 5), 0.2))
	}

	// 1 of 5 = 20%, under the 30% bar
	if insights := stopTooTightInsights(closed); len(insights) != 0 {
		t.Errorf("20%% shaken-out rate should not fire, got %d insights", len(insights))
	}
}

func TestTimeframePreferenceInsight(t *testing.T) {
	var closed []*database.Prediction
	for i := 0; i < 5; i++ {
		closed = append(closed, closedPred(database.StrategyMomentum, database.OutcomeWin, 70))
	}
	closed = append(closed, closedPred(database.StrategyMomentum, database.OutcomeLoss, 20))
	for i := 0; i < 5; i++ {
		p := closedPred(database.StrategyMomentum, database.OutcomeLoss, 20)
		p.Timeframe = "4h"
		closed = append(closed, p)
	}
	p := closedPred(database.StrategyMomentum, database.OutcomeWin, 70)
	p.Timeframe = "4h"
	closed = append(closed, p)

	// Overall 50%, 1h at 83%: a 33-point edge
	insights := timeframeInsights(closed)
	if len(insights) != 1 {
		t.Fatalf("Expected one timeframe insight, got %d", len(insights))
	}
	if insights[0].Type != InsightTimeframePreference || insights[0].EvidenceCount != 6 {
		t.Errorf("Unexpected insight: %+v", insights[0])
	}
}

func TestGlobalInsightsRankAndCap(t *testing.T) {
	var closed []*database.Prediction

	// Three strategies with heavy shaken-out losses at different rates
	for _, setup := range []struct {
		strategy database.StrategyType
		shaken   int
		clean    int
	}{
		{database.StrategyBreakoutPullback, 4, 1},
		{database.StrategyRangeReversal, 3, 2},
		{database.StrategyTrendFollow, 2, 3},
	} {
		for i := 0; i < setup.shaken; i++ {
			closed = append(closed, withMFE(closedPred(setup.strategy, database.OutcomeLoss, 10), 3.0))
		}
		for i := 0; i < setup.clean; i++ {
			closed = append(closed, withMFE(closedPred(setup.strategy, database.OutcomeLoss, 5), 0.1))
		}
	}

	cfg := DefaultConfig()
	cfg.MaxInsights = 2
	s := NewSynthesizer(&fakeStore{closed: closed}, cfg)

	insights, err := s.GlobalInsights(context.Background())
	if err != nil {
		t.Fatalf("GlobalInsights failed: %v", err)
	}

	if len(insights) > 2 {
		t.Fatalf("Insights must be capped at the configured limit, got %d", len(insights))
	}
	for i := 1; i < len(insights); i++ {
		if insights[i].Confidence > insights[i-1].Confidence {
			t.Error("Insights must be ranked by confidence, highest first")
		}
	}
	// The 80% shaken-out strategy outranks the rest
	if insights[0].SourceStrategy == nil || *insights[0].SourceStrategy != string(database.StrategyBreakoutPullback) {
		t.Errorf("Highest shaken-out rate should rank first, got %+v", insights[0])
	}
}

func TestOverconfidenceInsight(t *testing.T) {
	withConfidence := func(p *database.Prediction, conf float64) *database.Prediction {
		p.Confidence = &conf
		return p
	}

	// Stated 80% confidence, realized 25% win rate: a 55-point gap
	var closed []*database.Prediction
	closed = append(closed, withConfidence(closedPred(database.StrategyFalseBreakFade, database.OutcomeWin, 70), 0.8))
	for i := 0; i < 3; i++ {
		closed = append(closed, withConfidence(closedPred(database.StrategyFalseBreakFade, database.OutcomeLoss, 20), 0.8))
	}

	insights := overconfidenceInsights(closed)
	if len(insights) != 1 {
		t.Fatalf("Expected one overconfidence insight, got %d", len(insights))
	}
	if insights[0].Type != InsightOverconfidence || insights[0].EvidenceCount != 4 {
		t.Errorf("Unexpected insight: %+v", insights[0])
	}

	// Predictions without a stated confidence never count as evidence
	if got := overconfidenceInsights([]*database.Prediction{
		closedPred(database.StrategyFalseBreakFade, database.OutcomeLoss, 20),
		closedPred(database.StrategyFalseBreakFade, database.OutcomeLoss, 20),
		closedPred(database.StrategyFalseBreakFade, database.OutcomeLoss, 20),
	}); len(got) != 0 {
		t.Errorf("Confidence-less history should not fire, got %d insights", len(got))
	}
}

func TestDedupeInsights(t *testing.T) {
	src := string(database.StrategyMomentum)
	dupes := []*database.GlobalInsight{
		{Type: InsightStopTooTight, SourceStrategy: &src, Confidence: 0.5},
		{Type: InsightStopTooTight, SourceStrategy: &src, Confidence: 0.4},
		{Type: InsightStopTooTight, Confidence: 0.3},
	}

	out := dedupeInsights(dupes)
	if len(out) != 2 {
		t.Fatalf("Same (type, strategy) should collapse, distinct keys survive: got %d", len(out))
	}
	if out[0].Confidence != 0.5 {
		t.Error("First occurrence wins the dedupe")
	}
}
