package market

// Candle represents one OHLCV bar. Series are ordered ascending by open
// time and assumed contiguous at the requested interval.
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	CloseTime int64   `json:"close_time"`
}

// Body returns the absolute body size of the candle
func (c Candle) Body() float64 {
	if c.Close >= c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// Range returns the full high-low range of the candle
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// UpperWick returns the distance from the body top to the high
func (c Candle) UpperWick() float64 {
	if c.Close >= c.Open {
		return c.High - c.Close
	}
	return c.High - c.Open
}

// LowerWick returns the distance from the low to the body bottom
func (c Candle) LowerWick() float64 {
	if c.Close >= c.Open {
		return c.Open - c.Low
	}
	return c.Close - c.Low
}

// IsBullish reports whether the candle closed above its open
func (c Candle) IsBullish() bool {
	return c.Close > c.Open
}

// IsBearish reports whether the candle closed below its open
func (c Candle) IsBearish() bool {
	return c.Close < c.Open
}

// HeikenAshi converts a candle series into its Heiken Ashi smoothed form.
// HA close = avg(o,h,l,c); HA open = avg(prev HA open, prev HA close);
// HA high/low extend to cover the original extremes and both HA body ends.
func HeikenAshi(candles []Candle) []Candle {
	if len(candles) == 0 {
		return nil
	}

	ha := make([]Candle, len(candles))
	for i, c := range candles {
		haClose := (c.Open + c.High + c.Low + c.Close) / 4

		var haOpen float64
		if i == 0 {
			haOpen = (c.Open + c.Close) / 2
		} else {
			haOpen = (ha[i-1].Open + ha[i-1].Close) / 2
		}

		haHigh := c.High
		if haOpen > haHigh {
			haHigh = haOpen
		}
		if haClose > haHigh {
			haHigh = haClose
		}

		haLow := c.Low
		if haOpen < haLow {
			haLow = haOpen
		}
		if haClose < haLow {
			haLow = haClose
		}

		ha[i] = Candle{
			OpenTime:  c.OpenTime,
			Open:      haOpen,
			High:      haHigh,
			Low:       haLow,
			Close:     haClose,
			Volume:    c.Volume,
			CloseTime: c.CloseTime,
		}
	}

	return ha
}
