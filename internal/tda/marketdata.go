package tda

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// PriceHistoryParams selects the period and frequency of a price history
// request. StartDate/EndDate are epoch millis; when set they replace Period.
type PriceHistoryParams struct {
	PeriodType    string // day, month, year, ytd
	Period        int
	FrequencyType string // minute, daily, weekly, monthly
	Frequency     int
	StartDate     int64
	EndDate       int64
	ExtendedHours bool
}

func (p PriceHistoryParams) values() url.Values {
	q := url.Values{}
	if p.PeriodType != "" {
		q.Set("periodType", p.PeriodType)
	}
	if p.Period > 0 {
		q.Set("period", strconv.Itoa(p.Period))
	}
	if p.FrequencyType != "" {
		q.Set("frequencyType", p.FrequencyType)
	}
	if p.Frequency > 0 {
		q.Set("frequency", strconv.Itoa(p.Frequency))
	}
	if p.StartDate > 0 {
		q.Set("startDate", strconv.FormatInt(p.StartDate, 10))
	}
	if p.EndDate > 0 {
		q.Set("endDate", strconv.FormatInt(p.EndDate, 10))
	}
	q.Set("needExtendedHoursData", strconv.FormatBool(p.ExtendedHours))
	return q
}

// GetPriceHistory returns historical candles for a symbol.
func (c *Client) GetPriceHistory(ctx context.Context, symbol string, params PriceHistoryParams) (*PriceHistory, error) {
	var history PriceHistory
	_, ok, err := c.execute(ctx, restRequest{
		method: http.MethodGet,
		path:   "/marketdata/" + url.PathEscape(symbol) + "/pricehistory",
		query:  params.values(),
		gated:  true,
	}, &history)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &history, nil
}

// GetQuote returns the level-one quote snapshot for one symbol. The response
// is keyed by symbol, so the symbol itself is the unwrap root.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	var quote Quote
	_, ok, err := c.execute(ctx, restRequest{
		method: http.MethodGet,
		path:   "/marketdata/" + url.PathEscape(symbol) + "/quotes",
		root:   symbol,
		gated:  true,
	}, &quote)
	if err != nil {
		return nil, err
	}
	if !ok || quote.Symbol == "" {
		return nil, nil
	}
	return &quote, nil
}

// GetQuotes returns level-one quote snapshots for multiple symbols.
func (c *Client) GetQuotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	query := url.Values{}
	query.Set("symbol", strings.Join(symbols, ","))

	quotes := make(map[string]Quote)
	_, ok, err := c.execute(ctx, restRequest{
		method: http.MethodGet,
		path:   "/marketdata/quotes",
		query:  query,
		gated:  true,
	}, &quotes)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return quotes, nil
}

// GetInstrument looks up an instrument by CUSIP.
func (c *Client) GetInstrument(ctx context.Context, cusip string) ([]InstrumentInfo, error) {
	var instruments []InstrumentInfo
	_, ok, err := c.execute(ctx, restRequest{
		method: http.MethodGet,
		path:   "/instruments/" + url.PathEscape(cusip),
		gated:  true,
	}, &instruments)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return instruments, nil
}

// SearchInstruments searches instruments by symbol with the given projection
// (symbol-search, symbol-regex, desc-search, fundamental).
func (c *Client) SearchInstruments(ctx context.Context, symbol, projection string) (map[string]InstrumentInfo, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("projection", projection)

	results := make(map[string]InstrumentInfo)
	_, ok, err := c.execute(ctx, restRequest{
		method: http.MethodGet,
		path:   "/instruments",
		query:  query,
		gated:  true,
	}, &results)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return results, nil
}
