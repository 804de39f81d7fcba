package adapter

import (
	"context"
	"time"

	"github.com/quantbridge/tda/internal/contracts"
	"github.com/quantbridge/tda/internal/tda"
	"github.com/quantbridge/tda/pkg/logger"
)

// priceHistoryClient is the slice of the REST client history needs.
type priceHistoryClient interface {
	GetPriceHistory(ctx context.Context, symbol string, params tda.PriceHistoryParams) (*tda.PriceHistory, error)
}

// HistoryAdapter serves historical bars from the broker's price history
// endpoint, re-expressed in the engine's bar model.
type HistoryAdapter struct {
	client  priceHistoryClient
	symbols *SymbolMapper
	logger  *logger.Logger

	exchangeTZ *time.Location
}

// NewHistoryAdapter creates a history adapter. The exchange zone is loaded
// once; bar session filtering happens in that zone.
func NewHistoryAdapter(client priceHistoryClient, symbols *SymbolMapper, log *logger.Logger) *HistoryAdapter {
	tz, err := time.LoadLocation("America/New_York")
	if err != nil {
		// Fails only on broken tzdata; fall back to fixed eastern offset.
		tz = time.FixedZone("ET", -5*60*60)
		log.WithError(err).Warn("Falling back to fixed eastern offset")
	}
	return &HistoryAdapter{
		client:     client,
		symbols:    symbols,
		logger:     log,
		exchangeTZ: tz,
	}
}

// GetHistory returns historical bars for the request. Requests the broker
// cannot serve degrade to an empty result with a warning; the broker is only
// contacted for valid equity trade requests at minute resolution or coarser.
func (h *HistoryAdapter) GetHistory(ctx context.Context, req contracts.HistoryRequest) ([]contracts.TradeBar, error) {
	log := h.logger.WithField("ticker", req.Symbol.Ticker)

	if req.Symbol.SecurityType != contracts.SecurityTypeEquity {
		log.WithField("security_type", req.Symbol.SecurityType).Warn("History supports equities only, returning empty")
		return nil, nil
	}
	if !req.StartTimeUTC.Before(req.EndTimeUTC) {
		log.Warn("History start is not before end, returning empty")
		return nil, nil
	}
	if req.Symbol.IsCanonical() {
		log.Warn("History does not serve canonical symbols, returning empty")
		return nil, nil
	}
	if req.TickType != "" && req.TickType != contracts.TickTypeTrade {
		log.WithField("tick_type", req.TickType).Warn("History serves trade bars only, returning empty")
		return nil, nil
	}
	if req.Resolution < contracts.ResolutionMinute {
		log.WithField("resolution", req.Resolution.String()).Warn("History resolution below one minute unsupported, returning empty")
		return nil, nil
	}

	ticker, err := h.symbols.ToBrokerTicker(req.Symbol)
	if err != nil {
		return nil, err
	}

	params := tda.PriceHistoryParams{
		StartDate: req.StartTimeUTC.UnixMilli(),
		EndDate:   req.EndTimeUTC.UnixMilli(),
	}

	switch req.Resolution {
	case contracts.ResolutionMinute:
		params.PeriodType = "day"
		params.FrequencyType = "minute"
		params.Frequency = 1
	case contracts.ResolutionHour:
		// The broker has no hourly frequency; fetch 30 minute candles and
		// aggregate locally.
		params.PeriodType = "day"
		params.FrequencyType = "minute"
		params.Frequency = 30
	default:
		params.PeriodType = "year"
		params.FrequencyType = "daily"
		params.Frequency = 1
	}

	history, err := h.client.GetPriceHistory(ctx, ticker, params)
	if err != nil {
		return nil, err
	}
	if history == nil || history.Empty || len(history.Candles) == 0 {
		return nil, nil
	}

	bars := make([]contracts.TradeBar, 0, len(history.Candles))
	for _, candle := range history.Candles {
		barTime := time.UnixMilli(candle.Datetime).In(h.exchangeTZ)

		if req.Resolution == contracts.ResolutionDaily {
			// Daily candle timestamps arrive in the broker's zone and can
			// land on the previous or next calendar day; truncate to the
			// exchange date.
			barTime = time.Date(barTime.Year(), barTime.Month(), barTime.Day(), 0, 0, 0, 0, h.exchangeTZ)
		}

		bars = append(bars, contracts.TradeBar{
			Symbol: req.Symbol,
			Time:   barTime,
			Open:   candle.Open,
			High:   candle.High,
			Low:    candle.Low,
			Close:  candle.Close,
			Volume: candle.Volume,
			Period: req.Resolution.Period(),
		})
	}

	if req.Resolution == contracts.ResolutionHour {
		bars = aggregateHourly(bars)
	}

	return h.filterBars(bars, req), nil
}

// aggregateHourly folds finer bars into hour bars keyed on the hour floor:
// first open, max high, min low, last close, summed volume. Input bars must
// be in time order.
func aggregateHourly(bars []contracts.TradeBar) []contracts.TradeBar {
	if len(bars) == 0 {
		return nil
	}

	out := make([]contracts.TradeBar, 0, len(bars)/2+1)
	var current *contracts.TradeBar

	for _, bar := range bars {
		hour := bar.Time.Truncate(time.Hour)

		if current == nil || !current.Time.Equal(hour) {
			out = append(out, contracts.TradeBar{
				Symbol: bar.Symbol,
				Time:   hour,
				Open:   bar.Open,
				High:   bar.High,
				Low:    bar.Low,
				Close:  bar.Close,
				Volume: bar.Volume,
				Period: time.Hour,
			})
			current = &out[len(out)-1]
			continue
		}

		if bar.High > current.High {
			current.High = bar.High
		}
		if bar.Low < current.Low {
			current.Low = bar.Low
		}
		current.Close = bar.Close
		current.Volume += bar.Volume
	}

	return out
}

// filterBars keeps bars inside the requested window and, for intraday
// resolutions, inside the regular trading session. Daily bars compare by
// exchange date since their timestamps were pinned to midnight.
func (h *HistoryAdapter) filterBars(bars []contracts.TradeBar, req contracts.HistoryRequest) []contracts.TradeBar {
	intraday := req.Resolution < contracts.ResolutionDaily

	start := req.StartTimeUTC
	end := req.EndTimeUTC
	if !intraday {
		s := start.In(h.exchangeTZ)
		start = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, h.exchangeTZ)
	}

	out := bars[:0]
	for _, bar := range bars {
		if bar.Time.Before(start) || !bar.Time.Before(end) {
			continue
		}
		if intraday && !h.inRegularSession(bar.Time) {
			continue
		}
		out = append(out, bar)
	}
	return out
}

// inRegularSession reports whether t falls in the 09:30 to 16:00 weekday
// session in the exchange zone.
func (h *HistoryAdapter) inRegularSession(t time.Time) bool {
	local := t.In(h.exchangeTZ)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	minutes := local.Hour()*60 + local.Minute()
	return minutes >= 9*60+30 && minutes < 16*60
}
