package database

import (
	"time"
)

// StrategyType is the closed set of strategies a prediction can claim.
// Frozen at save time; stats and feedback are always scoped to one value.
type StrategyType string

const (
	StrategyBreakoutPullback StrategyType = "breakout_pullback"
	StrategyRangeReversal    StrategyType = "range_reversal"
	StrategyTrendFollow      StrategyType = "trend_follow"
	StrategyFalseBreakFade   StrategyType = "false_break_fade"
	StrategyMomentum         StrategyType = "momentum"
)

// Valid reports whether s is a known strategy
func (s StrategyType) Valid() bool {
	switch s {
	case StrategyBreakoutPullback, StrategyRangeReversal, StrategyTrendFollow,
		StrategyFalseBreakFade, StrategyMomentum:
		return true
	}
	return false
}

// AllStrategies lists every known strategy type
func AllStrategies() []StrategyType {
	return []StrategyType{
		StrategyBreakoutPullback,
		StrategyRangeReversal,
		StrategyTrendFollow,
		StrategyFalseBreakFade,
		StrategyMomentum,
	}
}

// Prediction status constants
const (
	PredictionStatusPending   = "pending"
	PredictionStatusActive    = "active"
	PredictionStatusClosed    = "closed"
	PredictionStatusExpired   = "expired"
	PredictionStatusCancelled = "cancelled"
)

// Prediction outcome constants
const (
	OutcomeWin       = "win"
	OutcomeLoss      = "loss"
	OutcomeBreakEven = "break_even"
)

// Prediction direction constants
const (
	DirectionLong  = "long"
	DirectionShort = "short"
)

// Prediction represents a stored trade prediction
type Prediction struct {
	ID            int64        `json:"id"`
	UserID        string       `json:"user_id"`
	Symbol        string       `json:"symbol"`
	Timeframe     string       `json:"timeframe"`
	Direction     string       `json:"direction"`
	Strategy      StrategyType `json:"strategy_type"`
	EntryPrice    float64      `json:"entry_price"`
	StopLoss      float64      `json:"stop_loss"`
	TakeProfits   []float64    `json:"take_profits"`
	Signals       []string     `json:"signals,omitempty"`
	Confidence    *float64     `json:"confidence,omitempty"`
	Status        string       `json:"status"`
	Outcome       *string      `json:"outcome,omitempty"`
	AccuracyScore *float64     `json:"accuracy_score,omitempty"`
	RRAchieved    *float64     `json:"rr_achieved,omitempty"`
	MFE           *float64     `json:"mfe,omitempty"`
	MAE           *float64     `json:"mae,omitempty"`
	EntryTime     time.Time    `json:"entry_time"`
	ExpiresAt     time.Time    `json:"expires_at"`
	ClosedAt      *time.Time   `json:"closed_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// IsClosed reports whether the prediction has reached a terminal status
func (p *Prediction) IsClosed() bool {
	return p.Status == PredictionStatusClosed ||
		p.Status == PredictionStatusExpired ||
		p.Status == PredictionStatusCancelled
}

// PredictionEvaluation records one evaluation pass over a prediction.
// Every pass appends a row, resolved or not; the history is never
// rewritten.
type PredictionEvaluation struct {
	ID             int64     `json:"id"`
	PredictionID   int64     `json:"prediction_id"`
	Outcome        *string   `json:"outcome,omitempty"`
	PriceAtEval    float64   `json:"price_at_eval"`
	RRAchieved     float64   `json:"rr_achieved"`
	MFE            float64   `json:"mfe"`
	MAE            float64   `json:"mae"`
	AccuracyScore  float64   `json:"accuracy_score"`
	DirectionScore float64   `json:"direction_score"`
	EntryScore     float64   `json:"entry_score"`
	RRScore        float64   `json:"rr_score"`
	TimingScore    float64   `json:"timing_score"`
	BarsToResolve  *int      `json:"bars_to_resolve,omitempty"`
	EvaluatedAt    time.Time `json:"evaluated_at"`
}

// GlobalInsight is a cross-strategy lesson mined from the prediction history
type GlobalInsight struct {
	ID             int64     `json:"id"`
	Type           string    `json:"type"`
	SourceStrategy *string   `json:"source_strategy,omitempty"`
	Message        string    `json:"message"`
	Confidence     float64   `json:"confidence"`
	EvidenceCount  int       `json:"evidence_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// APIUser represents an authenticated API user
type APIUser struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// StrategyStats aggregates closed predictions for one (user, strategy) pair
type StrategyStats struct {
	Strategy    StrategyType `json:"strategy_type"`
	Total       int          `json:"total"`
	Wins        int          `json:"wins"`
	Losses      int          `json:"losses"`
	BreakEven   int          `json:"break_even"`
	Expired     int          `json:"expired"`
	WinRate     float64      `json:"win_rate"`
	AvgAccuracy float64      `json:"avg_accuracy"`
}
