package prediction

import (
	"encoding/json"
	"strings"
	"time"

	"market-insight-bot/internal/database"
)

// Payload is the JSON object a collaborator embeds inside free-form text.
// Everything except signals and confidence is required.
type Payload struct {
	Symbol      string                `json:"symbol"`
	Timeframe   string                `json:"timeframe"`
	Direction   string                `json:"direction"`
	Strategy    database.StrategyType `json:"strategy_type"`
	EntryPrice  float64               `json:"entry_price"`
	StopLoss    float64               `json:"stop_loss"`
	TakeProfits []float64             `json:"take_profits"`
	Signals     []string              `json:"signals,omitempty"`
	Confidence  *float64              `json:"confidence,omitempty"`
}

// ExtractPrediction locates one embedded JSON object matching the Payload
// schema inside free-form text. Malformed or incomplete candidates are
// discarded silently; no error ever propagates to the caller.
func ExtractPrediction(text string) (*Payload, bool) {
	for start := 0; start < len(text); start++ {
		if text[start] != '{' {
			continue
		}
		candidate, end := balancedObject(text, start)
		if candidate == "" {
			continue
		}

		var p Payload
		if err := json.Unmarshal([]byte(candidate), &p); err == nil && p.valid() {
			return &p, true
		}
		// Skip past an unparseable object rather than rescanning its inside
		if end > start {
			start = end
		}
	}
	return nil, false
}

// balancedObject returns the brace-balanced substring starting at `start`,
// honoring JSON string quoting, and the index of its closing brace.
func balancedObject(text string, start int) (string, int) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], i
			}
		}
	}
	return "", start
}

func (p *Payload) valid() bool {
	if strings.TrimSpace(p.Symbol) == "" || strings.TrimSpace(p.Timeframe) == "" {
		return false
	}
	if p.Direction != database.DirectionLong && p.Direction != database.DirectionShort {
		return false
	}
	if !p.Strategy.Valid() {
		return false
	}
	if p.EntryPrice <= 0 || p.StopLoss <= 0 || len(p.TakeProfits) == 0 {
		return false
	}
	if p.Confidence != nil && (*p.Confidence < 0 || *p.Confidence > 1) {
		return false
	}

	// Levels must cohere with the claimed direction, and targets must
	// march away from entry: strictly ascending for long, descending
	// for short
	for i, tp := range p.TakeProfits {
		if tp <= 0 {
			return false
		}
		if p.Direction == database.DirectionLong && tp <= p.EntryPrice {
			return false
		}
		if p.Direction == database.DirectionShort && tp >= p.EntryPrice {
			return false
		}
		if i > 0 {
			prev := p.TakeProfits[i-1]
			if p.Direction == database.DirectionLong && tp <= prev {
				return false
			}
			if p.Direction == database.DirectionShort && tp >= prev {
				return false
			}
		}
	}
	if p.Direction == database.DirectionLong && p.StopLoss >= p.EntryPrice {
		return false
	}
	if p.Direction == database.DirectionShort && p.StopLoss <= p.EntryPrice {
		return false
	}

	return true
}

// ToPrediction builds a storable prediction from the payload. Entries are
// assumed filled at save time; the expiry clock starts at creation.
func (p *Payload) ToPrediction(userID string, now time.Time, expiryWindow time.Duration) *database.Prediction {
	return &database.Prediction{
		UserID:      userID,
		Symbol:      strings.ToUpper(strings.TrimSpace(p.Symbol)),
		Timeframe:   p.Timeframe,
		Direction:   p.Direction,
		Strategy:    p.Strategy,
		EntryPrice:  p.EntryPrice,
		StopLoss:    p.StopLoss,
		TakeProfits: p.TakeProfits,
		Signals:     p.Signals,
		Confidence:  p.Confidence,
		Status:      database.PredictionStatusActive,
		EntryTime:   now,
		ExpiresAt:   now.Add(expiryWindow),
	}
}
