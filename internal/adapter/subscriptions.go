package adapter

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/quantbridge/tda/internal/contracts"
	"github.com/quantbridge/tda/internal/tda"
	"github.com/quantbridge/tda/pkg/logger"
)

// quoteFieldIDs selects the level-one fields requested on every SUBS frame:
// key, bid, ask, last, bid size, ask size, total volume, last size.
const quoteFieldIDs = "0,1,2,3,4,5,8,9"

// streamConn is the slice of the streamer the manager needs.
type streamConn interface {
	SendRequest(ctx context.Context, service, command string, params map[string]string) error
}

// QuoteState is the merged level-one state for one subscribed ticker. The
// stream delivers deltas; the manager folds them into the last known values.
type QuoteState struct {
	Symbol      contracts.Symbol
	BidPrice    float64
	AskPrice    float64
	LastPrice   float64
	BidSize     int64
	AskSize     int64
	LastSize    int64
	TotalVolume int64
	UpdatedAt   time.Time
}

// SubscriptionManager owns the quote subscription registry. Every SUBS frame
// carries the full key set because the broker treats SUBS as a replacement,
// not an addition.
type SubscriptionManager struct {
	conn       streamConn
	symbols    *SymbolMapper
	aggregator contracts.DataAggregator
	logger     *logger.Logger

	mu       sync.Mutex
	registry map[string]contracts.Symbol // broker ticker -> engine symbol
	quotes   map[string]*QuoteState
}

// NewSubscriptionManager creates a subscription manager feeding the given
// aggregator.
func NewSubscriptionManager(conn streamConn, symbols *SymbolMapper, aggregator contracts.DataAggregator, log *logger.Logger) *SubscriptionManager {
	return &SubscriptionManager{
		conn:       conn,
		symbols:    symbols,
		aggregator: aggregator,
		logger:     log,
		registry:   make(map[string]contracts.Symbol),
		quotes:     make(map[string]*QuoteState),
	}
}

// Subscribe registers symbols for streaming. Universe pseudo-symbols and
// already-registered symbols are skipped; a frame is only sent when the
// registry actually grew.
func (m *SubscriptionManager) Subscribe(ctx context.Context, symbols []contracts.Symbol) error {
	m.mu.Lock()

	added := 0
	for _, symbol := range symbols {
		if symbol.IsUniverse() || symbol.IsCanonical() {
			continue
		}

		ticker, err := m.symbols.ToBrokerTicker(symbol)
		if err != nil {
			m.logger.WithError(err).WithField("ticker", symbol.Ticker).Warn("Skipping unsubscribable symbol")
			continue
		}

		if _, exists := m.registry[ticker]; exists {
			continue
		}

		m.registry[ticker] = symbol
		m.quotes[ticker] = &QuoteState{Symbol: symbol}
		added++
	}

	keys := m.registryKeysLocked()
	m.mu.Unlock()

	if added == 0 {
		return nil
	}

	return m.sendSubs(ctx, keys)
}

// Unsubscribe removes symbols from streaming. Derivative tickers that embed a
// removed ticker (option contracts on an unsubscribed underlying) are removed
// with it.
func (m *SubscriptionManager) Unsubscribe(ctx context.Context, symbols []contracts.Symbol) error {
	m.mu.Lock()

	removed := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		ticker, err := m.symbols.ToBrokerTicker(symbol)
		if err != nil {
			continue
		}

		for registered := range m.registry {
			if registered == ticker || strings.Contains(registered, ticker) {
				delete(m.registry, registered)
				delete(m.quotes, registered)
				removed = append(removed, registered)
			}
		}

		m.aggregator.Remove(symbol)
	}

	m.mu.Unlock()

	if len(removed) == 0 {
		return nil
	}
	sort.Strings(removed)

	return m.conn.SendRequest(ctx, tda.ServiceQuote, tda.CommandUnsubs, map[string]string{
		"keys": strings.Join(removed, ","),
	})
}

// Resubscribe replays the full registry after a reconnect.
func (m *SubscriptionManager) Resubscribe(ctx context.Context) error {
	m.mu.Lock()
	keys := m.registryKeysLocked()
	m.mu.Unlock()

	if len(keys) == 0 {
		return nil
	}
	return m.sendSubs(ctx, keys)
}

func (m *SubscriptionManager) registryKeysLocked() []string {
	keys := make([]string, 0, len(m.registry))
	for ticker := range m.registry {
		keys = append(keys, ticker)
	}
	sort.Strings(keys)
	return keys
}

func (m *SubscriptionManager) sendSubs(ctx context.Context, keys []string) error {
	return m.conn.SendRequest(ctx, tda.ServiceQuote, tda.CommandSubs, map[string]string{
		"keys":   strings.Join(keys, ","),
		"fields": quoteFieldIDs,
	})
}

// HandleQuote folds one streamed quote delta into the registry state and
// emits ticks to the aggregator. Quotes for unregistered tickers are logged
// and dropped.
func (m *SubscriptionManager) HandleQuote(content tda.QuoteContent) {
	m.mu.Lock()

	symbol, registered := m.registry[content.Key]
	if !registered {
		m.mu.Unlock()
		m.logger.WithField("ticker", content.Key).Debug("Dropping quote for unregistered ticker")
		return
	}

	state := m.quotes[content.Key]
	if state == nil {
		state = &QuoteState{Symbol: symbol}
		m.quotes[content.Key] = state
	}

	tradeUpdate := false
	if content.BidPrice != nil {
		state.BidPrice = *content.BidPrice
	}
	if content.AskPrice != nil {
		state.AskPrice = *content.AskPrice
	}
	if content.LastPrice != nil {
		state.LastPrice = *content.LastPrice
		tradeUpdate = true
	}
	if content.BidSize != nil {
		state.BidSize = int64(*content.BidSize)
	}
	if content.AskSize != nil {
		state.AskSize = int64(*content.AskSize)
	}
	if content.LastSize != nil {
		state.LastSize = int64(*content.LastSize)
		tradeUpdate = true
	}
	if content.TotalVolume != nil {
		state.TotalVolume = int64(*content.TotalVolume)
	}

	now := time.Now()
	state.UpdatedAt = now
	snapshot := *state

	m.mu.Unlock()

	if snapshot.BidPrice > 0 && snapshot.AskPrice > 0 {
		m.aggregator.Add(&contracts.Tick{
			Symbol:   snapshot.Symbol,
			Time:     now,
			Type:     contracts.TickTypeQuote,
			BidPrice: snapshot.BidPrice,
			AskPrice: snapshot.AskPrice,
			BidSize:  snapshot.BidSize,
			AskSize:  snapshot.AskSize,
		})
	}

	if tradeUpdate && snapshot.LastPrice > 0 {
		m.aggregator.Add(&contracts.Tick{
			Symbol:   snapshot.Symbol,
			Time:     now,
			Type:     contracts.TickTypeTrade,
			Price:    snapshot.LastPrice,
			Quantity: snapshot.LastSize,
		})
	}
}

// MarketQuote returns a snapshot of the merged quote state for a symbol,
// false when the symbol is not subscribed.
func (m *SubscriptionManager) MarketQuote(symbol contracts.Symbol) (QuoteState, bool) {
	ticker, err := m.symbols.ToBrokerTicker(symbol)
	if err != nil {
		return QuoteState{}, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.quotes[ticker]
	if !ok {
		return QuoteState{}, false
	}
	return *state, true
}
