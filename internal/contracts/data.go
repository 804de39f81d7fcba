package contracts

import "time"

// Resolution is the bar granularity of a data request. Values are ordered:
// comparisons like res < ResolutionMinute are meaningful.
type Resolution int

const (
	ResolutionTick Resolution = iota
	ResolutionSecond
	ResolutionMinute
	ResolutionHour
	ResolutionDaily
)

// String returns the resolution name.
func (r Resolution) String() string {
	switch r {
	case ResolutionTick:
		return "tick"
	case ResolutionSecond:
		return "second"
	case ResolutionMinute:
		return "minute"
	case ResolutionHour:
		return "hour"
	case ResolutionDaily:
		return "daily"
	}
	return "unknown"
}

// ParseResolution parses a resolution name as used by the download CLI.
func ParseResolution(s string) (Resolution, bool) {
	switch s {
	case "tick":
		return ResolutionTick, true
	case "second":
		return ResolutionSecond, true
	case "minute":
		return ResolutionMinute, true
	case "hour":
		return ResolutionHour, true
	case "daily":
		return ResolutionDaily, true
	}
	return 0, false
}

// Period returns the bar span for the resolution, zero for tick.
func (r Resolution) Period() time.Duration {
	switch r {
	case ResolutionSecond:
		return time.Second
	case ResolutionMinute:
		return time.Minute
	case ResolutionHour:
		return time.Hour
	case ResolutionDaily:
		return 24 * time.Hour
	}
	return 0
}

// TickType distinguishes trade ticks from quote ticks.
type TickType string

const (
	TickTypeTrade TickType = "TRADE"
	TickTypeQuote TickType = "QUOTE"
)

// TradeBar is one OHLCV bar.
type TradeBar struct {
	Symbol Symbol        `json:"symbol"`
	Time   time.Time     `json:"time"` // bar open time, exchange zone
	Open   float64       `json:"open"`
	High   float64       `json:"high"`
	Low    float64       `json:"low"`
	Close  float64       `json:"close"`
	Volume int64         `json:"volume"`
	Period time.Duration `json:"period"`
}

// Tick is a single streamed market data point.
type Tick struct {
	Symbol   Symbol    `json:"symbol"`
	Time     time.Time `json:"time"`
	Type     TickType  `json:"type"`
	Price    float64   `json:"price,omitempty"`
	Quantity int64     `json:"quantity,omitempty"`
	BidPrice float64   `json:"bid_price,omitempty"`
	AskPrice float64   `json:"ask_price,omitempty"`
	BidSize  int64     `json:"bid_size,omitempty"`
	AskSize  int64     `json:"ask_size,omitempty"`
}

// HistoryRequest asks for historical bars over a UTC time range.
type HistoryRequest struct {
	Symbol       Symbol     `json:"symbol"`
	Resolution   Resolution `json:"resolution"`
	StartTimeUTC time.Time  `json:"start_time_utc"`
	EndTimeUTC   time.Time  `json:"end_time_utc"`
	TickType     TickType   `json:"tick_type"`
}
