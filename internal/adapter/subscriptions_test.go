package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantbridge/tda/internal/contracts"
	"github.com/quantbridge/tda/internal/tda"
	"github.com/quantbridge/tda/pkg/logger"
)

type sentFrame struct {
	service string
	command string
	params  map[string]string
}

type fakeStreamConn struct {
	frames []sentFrame
}

func (f *fakeStreamConn) SendRequest(ctx context.Context, service, command string, params map[string]string) error {
	f.frames = append(f.frames, sentFrame{service: service, command: command, params: params})
	return nil
}

type recordingAggregator struct {
	ticks   []contracts.Tick
	removed []contracts.Symbol
}

func (r *recordingAggregator) Add(tick *contracts.Tick) { r.ticks = append(r.ticks, *tick) }

func (r *recordingAggregator) Update(bar *contracts.TradeBar) {}
func (r *recordingAggregator) Remove(symbol contracts.Symbol) {
	r.removed = append(r.removed, symbol)
}

func newTestManager() (*SubscriptionManager, *fakeStreamConn, *recordingAggregator) {
	conn := &fakeStreamConn{}
	agg := &recordingAggregator{}
	m := NewSubscriptionManager(conn, NewSymbolMapper(), agg, logger.NewNop())
	return m, conn, agg
}

func TestSubscribeSendsFullKeySet(t *testing.T) {
	m, conn, _ := newTestManager()
	ctx := context.Background()

	require.NoError(t, m.Subscribe(ctx, []contracts.Symbol{contracts.NewEquity("AAPL", MarketUSA)}))
	require.NoError(t, m.Subscribe(ctx, []contracts.Symbol{contracts.NewEquity("MSFT", MarketUSA)}))

	require.Len(t, conn.frames, 2)
	assert.Equal(t, tda.CommandSubs, conn.frames[0].command)
	assert.Equal(t, "AAPL", conn.frames[0].params["keys"])
	// Second frame carries the whole registry, not just the addition.
	assert.Equal(t, "AAPL,MSFT", conn.frames[1].params["keys"])
	assert.Equal(t, quoteFieldIDs, conn.frames[1].params["fields"])
}

func TestSubscribeIdempotent(t *testing.T) {
	m, conn, _ := newTestManager()
	ctx := context.Background()

	symbols := []contracts.Symbol{
		contracts.NewEquity("AAPL", MarketUSA),
		contracts.NewEquity("AAPL", MarketUSA),
	}
	require.NoError(t, m.Subscribe(ctx, symbols))
	require.Len(t, conn.frames, 1)

	// Resubscribing the same symbol sends nothing.
	require.NoError(t, m.Subscribe(ctx, symbols[:1]))
	assert.Len(t, conn.frames, 1)
}

func TestSubscribeSkipsUniverseSymbols(t *testing.T) {
	m, conn, _ := newTestManager()

	universe := contracts.NewEquity("QC-UNIVERSE-COARSE", MarketUSA)
	require.NoError(t, m.Subscribe(context.Background(), []contracts.Symbol{universe}))
	assert.Empty(t, conn.frames)
}

func TestUnsubscribeRemovesDerivatives(t *testing.T) {
	m, conn, agg := newTestManager()
	ctx := context.Background()

	underlying := contracts.NewEquity("SPY", MarketUSA)
	option, err := m.symbols.FromBrokerTicker("SPY_011526C480", MarketUSA)
	require.NoError(t, err)
	other := contracts.NewEquity("AAPL", MarketUSA)

	require.NoError(t, m.Subscribe(ctx, []contracts.Symbol{underlying, option, other}))
	conn.frames = nil

	require.NoError(t, m.Unsubscribe(ctx, []contracts.Symbol{underlying}))

	require.Len(t, conn.frames, 1)
	assert.Equal(t, tda.CommandUnsubs, conn.frames[0].command)
	assert.Equal(t, "SPY,SPY_011526C480", conn.frames[0].params["keys"])
	assert.Len(t, agg.removed, 1)

	// AAPL is still registered.
	_, ok := m.MarketQuote(other)
	assert.True(t, ok)
	_, ok = m.MarketQuote(underlying)
	assert.False(t, ok)
}

func TestHandleQuoteMergesDeltas(t *testing.T) {
	m, _, agg := newTestManager()
	ctx := context.Background()

	symbol := contracts.NewEquity("AAPL", MarketUSA)
	require.NoError(t, m.Subscribe(ctx, []contracts.Symbol{symbol}))

	bid, ask := 150.0, 150.1
	m.HandleQuote(tda.QuoteContent{Key: "AAPL", BidPrice: &bid, AskPrice: &ask})

	last, size := 150.05, 200.0
	m.HandleQuote(tda.QuoteContent{Key: "AAPL", LastPrice: &last, LastSize: &size})

	state, ok := m.MarketQuote(symbol)
	require.True(t, ok)
	assert.Equal(t, 150.0, state.BidPrice)
	assert.Equal(t, 150.1, state.AskPrice)
	assert.Equal(t, 150.05, state.LastPrice)
	assert.Equal(t, int64(200), state.LastSize)

	// First delta produced one quote tick, second a quote tick and a trade.
	require.Len(t, agg.ticks, 3)
	assert.Equal(t, contracts.TickTypeQuote, agg.ticks[0].Type)
	assert.Equal(t, contracts.TickTypeTrade, agg.ticks[2].Type)
	assert.Equal(t, 150.05, agg.ticks[2].Price)
	assert.Equal(t, int64(200), agg.ticks[2].Quantity)
}

func TestHandleQuoteUnregisteredDropped(t *testing.T) {
	m, _, agg := newTestManager()

	price := 42.0
	m.HandleQuote(tda.QuoteContent{Key: "TSLA", LastPrice: &price})
	assert.Empty(t, agg.ticks)
}

func TestResubscribeReplaysRegistry(t *testing.T) {
	m, conn, _ := newTestManager()
	ctx := context.Background()

	require.NoError(t, m.Subscribe(ctx, []contracts.Symbol{
		contracts.NewEquity("AAPL", MarketUSA),
		contracts.NewEquity("MSFT", MarketUSA),
	}))
	conn.frames = nil

	require.NoError(t, m.Resubscribe(ctx))
	require.Len(t, conn.frames, 1)
	assert.Equal(t, "AAPL,MSFT", conn.frames[0].params["keys"])
}
