package feedback

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"market-insight-bot/internal/database"
	"market-insight-bot/internal/logging"
)

// Config holds feedback synthesis settings
type Config struct {
	ContextSize int // How many closed predictions feed one context
	CharBudget  int // Hard cap for rendered feedback text
	MaxInsights int // Global insights kept for injection
}

// DefaultConfig returns synthesizer defaults
func DefaultConfig() Config {
	return Config{
		ContextSize: 10,
		CharBudget:  800,
		MaxInsights: 5,
	}
}

// Store is the subset of repository methods the synthesizer needs
type Store interface {
	GetRecentClosedPredictions(ctx context.Context, userID string, strategy database.StrategyType, n int) ([]*database.Prediction, error)
	GetClosedPredictions(ctx context.Context) ([]*database.Prediction, error)
}

var _ Store = (*database.Repository)(nil)

// Synthesizer turns evaluated prediction history into short feedback text
// for re-injection upstream
type Synthesizer struct {
	store Store
	cfg   Config
	log   *logging.Logger
}

// NewSynthesizer creates a feedback synthesizer
func NewSynthesizer(store Store, cfg Config) *Synthesizer {
	if cfg.ContextSize <= 0 {
		cfg.ContextSize = 10
	}
	if cfg.CharBudget <= 0 {
		cfg.CharBudget = 800
	}
	if cfg.MaxInsights <= 0 {
		cfg.MaxInsights = 5
	}
	return &Synthesizer{
		store: store,
		cfg:   cfg,
		log:   logging.Default().WithComponent("feedback"),
	}
}

// StrategyContext is the per-strategy feedback unit. History from other
// strategies never leaks into it.
type StrategyContext struct {
	Strategy         database.StrategyType `json:"strategy_type"`
	SampleSize       int                   `json:"sample_size"`
	WinRate          float64               `json:"win_rate"`
	AvgAccuracy      float64               `json:"avg_accuracy"`
	DominantStrength string                `json:"dominant_strength,omitempty"`
	DominantWeakness string                `json:"dominant_weakness,omitempty"`
	Text             string                `json:"text"`
}

// StrategyContext builds feedback from the last n closed predictions for
// exactly one (user, strategy) pair
func (s *Synthesizer) StrategyContext(ctx context.Context, userID string, strategy database.StrategyType) (*StrategyContext, error) {
	preds, err := s.store.GetRecentClosedPredictions(ctx, userID, strategy, s.cfg.ContextSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load prediction history: %w", err)
	}

	sc := &StrategyContext{Strategy: strategy, SampleSize: len(preds)}
	if len(preds) == 0 {
		sc.Text = fmt.Sprintf("## Strategy: %s\nNo closed predictions yet. No adjustments to suggest.", strategy)
		return sc, nil
	}

	decided, wins := 0, 0
	accuracySum, accuracyCount := 0.0, 0
	for _, p := range preds {
		if p.Outcome != nil {
			decided++
			if *p.Outcome == database.OutcomeWin {
				wins++
			}
		}
		if p.AccuracyScore != nil {
			accuracySum += *p.AccuracyScore
			accuracyCount++
		}
	}
	if decided > 0 {
		sc.WinRate = float64(wins) / float64(decided) * 100
	}
	if accuracyCount > 0 {
		sc.AvgAccuracy = accuracySum / float64(accuracyCount)
	}

	sc.DominantStrength = dominantSignal(preds, database.OutcomeWin)
	sc.DominantWeakness = dominantSignal(preds, database.OutcomeLoss)
	sc.Text = renderContext(sc, s.cfg.CharBudget)

	s.log.Debug("Strategy context rendered",
		"strategy", string(strategy), "sample_size", sc.SampleSize, "chars", len(sc.Text))
	return sc, nil
}

// dominantSignal frequency-counts signals[] across predictions with the
// given outcome and returns the most common one, ties broken
// alphabetically for determinism. Empty when no signal repeats.
func dominantSignal(preds []*database.Prediction, outcome string) string {
	counts := make(map[string]int)
	for _, p := range preds {
		if p.Outcome == nil || *p.Outcome != outcome {
			continue
		}
		for _, sig := range p.Signals {
			counts[sig]++
		}
	}

	best, bestCount := "", 0
	for sig, n := range counts {
		if n > bestCount || (n == bestCount && sig < best) {
			best, bestCount = sig, n
		}
	}
	if bestCount < 2 {
		return ""
	}
	return best
}

// renderContext fills the fixed template and enforces the character
// budget by dropping sections in priority order: tip first, then
// strengths, then weakness. The headline is never dropped.
func renderContext(sc *StrategyContext, budget int) string {
	headline := fmt.Sprintf("## Strategy: %s\nLast %d closed: win rate %.0f%%, avg accuracy %.0f/100.",
		sc.Strategy, sc.SampleSize, sc.WinRate, sc.AvgAccuracy)

	var weakness, strengths, tip string
	if sc.DominantWeakness != "" {
		weakness = fmt.Sprintf("Weakness: entries signalled by %q keep ending in losses.", sc.DominantWeakness)
	}
	if sc.DominantStrength != "" {
		strengths = fmt.Sprintf("Strength: %q setups are carrying your wins.", sc.DominantStrength)
	}
	tip = renderTip(sc)

	sections := []string{headline, weakness, strengths, tip}
	// Drop order: tip (3), strengths (2), weakness (1)
	for _, drop := range []int{3, 2, 1} {
		if len(joinSections(sections)) <= budget {
			break
		}
		sections[drop] = ""
	}

	out := joinSections(sections)
	if len(out) > budget {
		out = truncateToRune(out, budget)
	}
	return out
}

// truncateToRune cuts s to at most n bytes without splitting a multi-byte
// rune at the boundary
func truncateToRune(s string, n int) string {
	if n <= 0 {
		return ""
	}
	s = s[:n]
	for len(s) > 0 {
		r, size := utf8.DecodeLastRuneInString(s)
		if r != utf8.RuneError || size > 1 {
			break
		}
		s = s[:len(s)-1]
	}
	return s
}

func joinSections(sections []string) string {
	var kept []string
	for _, s := range sections {
		if s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, "\n")
}

// renderTip derives a single actionable suggestion from the stats
func renderTip(sc *StrategyContext) string {
	switch {
	case sc.DominantWeakness != "":
		return fmt.Sprintf("Tip: demand extra confirmation before acting on %q alone.", sc.DominantWeakness)
	case sc.WinRate < 40:
		return "Tip: tighten setup filters; fewer, cleaner entries beat volume here."
	case sc.AvgAccuracy < 50:
		return "Tip: outcomes are fine but entries and timing lag; wait for the retest."
	default:
		return "Tip: keep position discipline unchanged; the sample says it is working."
	}
}

// SortedStrategies returns the known strategies in stable order, for
// callers rendering multi-strategy summaries.
func SortedStrategies() []database.StrategyType {
	all := database.AllStrategies()
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	return all
}
