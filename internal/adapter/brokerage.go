package adapter

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/quantbridge/tda/internal/contracts"
	"github.com/quantbridge/tda/internal/tda"
	"github.com/quantbridge/tda/pkg/logger"
)

// MarketUSA is the market tag stamped on symbols decoded from this broker.
const MarketUSA = "usa"

// OrderEventFunc receives order lifecycle events.
type OrderEventFunc func(contracts.OrderEvent)

// Brokerage is the TD Ameritrade adapter: order gateway, data streamer and
// history provider in one type. It satisfies contracts.OrderGateway,
// contracts.DataStreamer and contracts.HistoryProvider.
type Brokerage struct {
	client     *tda.Client
	streamer   *tda.Streamer
	subs       *SubscriptionManager
	translator *OrderTranslator
	symbols    *SymbolMapper
	history    *HistoryAdapter
	logger     *logger.Logger

	connected int32

	onOrderEvent OrderEventFunc
	onMessage    tda.MessageFunc
}

// NewBrokerage wires the adapter together. The aggregator receives all
// streamed ticks.
func NewBrokerage(client *tda.Client, streamer *tda.Streamer, aggregator contracts.DataAggregator, log *logger.Logger) *Brokerage {
	symbols := NewSymbolMapper()

	b := &Brokerage{
		client:     client,
		streamer:   streamer,
		subs:       NewSubscriptionManager(streamer, symbols, aggregator, log),
		translator: NewOrderTranslator(symbols),
		symbols:    symbols,
		history:    NewHistoryAdapter(client, symbols, log),
		logger:     log,
	}

	client.OnMessage(b.handleMessage)
	streamer.OnQuote(b.subs.HandleQuote)
	streamer.OnConnected(b.handleStreamConnected)
	streamer.OnDisconnect(b.handleStreamDisconnect)
	streamer.OnError(func(err error) {
		b.logger.WithError(err).Warn("Stream error")
	})

	return b
}

// OnOrderEvent registers the order event callback.
func (b *Brokerage) OnOrderEvent(fn OrderEventFunc) {
	b.onOrderEvent = fn
}

// OnMessage registers the brokerage message callback.
func (b *Brokerage) OnMessage(fn tda.MessageFunc) {
	b.onMessage = fn
}

// Connect brings up the streaming connection. REST calls work without it.
func (b *Brokerage) Connect(ctx context.Context) error {
	if err := b.streamer.Connect(ctx); err != nil {
		return fmt.Errorf("brokerage connect: %w", err)
	}
	atomic.StoreInt32(&b.connected, 1)
	return nil
}

// Disconnect tears down the streaming connection.
func (b *Brokerage) Disconnect() error {
	atomic.StoreInt32(&b.connected, 0)
	return b.streamer.Disconnect()
}

// IsConnected reports whether the adapter considers itself connected.
func (b *Brokerage) IsConnected() bool {
	return atomic.LoadInt32(&b.connected) == 1 && b.streamer.IsConnected()
}

func (b *Brokerage) handleStreamConnected() {
	if err := b.subs.Resubscribe(context.Background()); err != nil {
		b.logger.WithError(err).Error("Resubscription after connect failed")
	}
}

func (b *Brokerage) handleStreamDisconnect() {
	if atomic.LoadInt32(&b.connected) == 0 {
		return
	}
	// Unplanned drop; reconnect in the background with backoff.
	go func() {
		if err := b.streamer.Reconnect(context.Background()); err != nil {
			b.logger.WithError(err).Error("Streamer reconnection exhausted")
			atomic.StoreInt32(&b.connected, 0)
		}
	}()
}

func (b *Brokerage) handleMessage(msg contracts.BrokerageMessage) {
	if b.onMessage != nil {
		b.onMessage(msg)
	}
}

func (b *Brokerage) emitOrderEvent(event contracts.OrderEvent) {
	if b.onOrderEvent != nil {
		b.onOrderEvent(event)
	}
}

// holdingQuantity returns the signed net position for a symbol, zero when
// the account holds none or positions are unavailable.
func (b *Brokerage) holdingQuantity(ctx context.Context, symbol contracts.Symbol) (float64, error) {
	ticker, err := b.symbols.ToBrokerTicker(symbol)
	if err != nil {
		return 0, err
	}

	account, err := b.client.GetAccount(ctx, b.client.AccountID(), true)
	if err != nil {
		return 0, err
	}
	if account == nil {
		return 0, nil
	}

	for _, pos := range account.Positions {
		if pos.Instrument.Symbol == ticker {
			return pos.NetQuantity(), nil
		}
	}
	return 0, nil
}

// PlaceOrder submits an order. A broker rejection marks the order Invalid
// and emits an event; only transport failures return an error.
func (b *Brokerage) PlaceOrder(ctx context.Context, order *contracts.Order) error {
	holding, err := b.holdingQuantity(ctx, order.Symbol)
	if err != nil {
		return fmt.Errorf("place order: %w", err)
	}

	strategy, err := b.translator.ToBrokerOrder(order, holding)
	if err != nil {
		return fmt.Errorf("place order: %w", err)
	}

	brokerID, err := b.client.PlaceOrder(ctx, b.client.AccountID(), strategy)
	if err != nil {
		return fmt.Errorf("place order: %w", err)
	}

	if brokerID == "" {
		order.Status = contracts.StatusInvalid
		b.emitOrderEvent(contracts.OrderEvent{
			OrderID: order.ID,
			Status:  contracts.StatusInvalid,
			Message: "order rejected by broker",
			Time:    time.Now(),
		})
		return nil
	}

	order.BrokerIDs = append(order.BrokerIDs, brokerID)
	order.Status = contracts.StatusSubmitted

	b.logger.WithFields(map[string]interface{}{
		"order_id":  order.ID,
		"broker_id": brokerID,
		"ticker":    order.Symbol.Ticker,
	}).Info("Order placed")

	b.emitOrderEvent(contracts.OrderEvent{
		OrderID:  order.ID,
		BrokerID: brokerID,
		Status:   contracts.StatusSubmitted,
		Time:     time.Now(),
	})
	return nil
}

// UpdateOrder replaces a working order. The broker cancels the original and
// issues a fresh id, appended to the order's broker id history.
func (b *Brokerage) UpdateOrder(ctx context.Context, order *contracts.Order) error {
	brokerID := order.LastBrokerID()
	if brokerID == "" {
		return fmt.Errorf("update order %s: no broker id", order.ID)
	}

	holding, err := b.holdingQuantity(ctx, order.Symbol)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	strategy, err := b.translator.ToBrokerOrder(order, holding)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	newID, err := b.client.ReplaceOrder(ctx, b.client.AccountID(), brokerID, strategy)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	if newID == "" {
		b.emitOrderEvent(contracts.OrderEvent{
			OrderID:  order.ID,
			BrokerID: brokerID,
			Status:   order.Status,
			Message:  "order replace rejected by broker",
			Time:     time.Now(),
		})
		return nil
	}

	order.BrokerIDs = append(order.BrokerIDs, newID)
	order.Status = contracts.StatusUpdateSubmitted

	b.logger.WithFields(map[string]interface{}{
		"order_id":  order.ID,
		"broker_id": newID,
	}).Info("Order replaced")

	b.emitOrderEvent(contracts.OrderEvent{
		OrderID:  order.ID,
		BrokerID: newID,
		Status:   contracts.StatusUpdateSubmitted,
		Time:     time.Now(),
	})
	return nil
}

// CancelOrder cancels a working order.
func (b *Brokerage) CancelOrder(ctx context.Context, order *contracts.Order) error {
	brokerID := order.LastBrokerID()
	if brokerID == "" {
		return fmt.Errorf("cancel order %s: no broker id", order.ID)
	}

	ok, err := b.client.CancelOrder(ctx, b.client.AccountID(), brokerID)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if !ok {
		return nil
	}

	order.Status = contracts.StatusCanceled

	b.emitOrderEvent(contracts.OrderEvent{
		OrderID:  order.ID,
		BrokerID: brokerID,
		Status:   contracts.StatusCanceled,
		Time:     time.Now(),
	})
	return nil
}

// GetOpenOrders returns every order still working at the broker.
func (b *Brokerage) GetOpenOrders(ctx context.Context) ([]contracts.Order, error) {
	strategies, err := b.client.GetOrders(ctx, b.client.AccountID())
	if err != nil {
		return nil, fmt.Errorf("get open orders: %w", err)
	}

	var orders []contracts.Order
	for i := range strategies {
		if !strategies[i].Status.IsOpen() {
			continue
		}
		order, err := b.translator.FromBrokerOrder(&strategies[i], MarketUSA)
		if err != nil {
			return nil, fmt.Errorf("get open orders: %w", err)
		}
		orders = append(orders, *order)
	}
	return orders, nil
}

// GetAccountHoldings returns the account's positions as engine holdings.
func (b *Brokerage) GetAccountHoldings(ctx context.Context) ([]contracts.Holding, error) {
	account, err := b.client.GetAccount(ctx, b.client.AccountID(), true)
	if err != nil {
		return nil, fmt.Errorf("get holdings: %w", err)
	}
	if account == nil {
		return nil, nil
	}

	holdings := make([]contracts.Holding, 0, len(account.Positions))
	for _, pos := range account.Positions {
		symbol, err := b.symbols.FromBrokerTicker(pos.Instrument.Symbol, MarketUSA)
		if err != nil {
			b.logger.WithError(err).WithField("ticker", pos.Instrument.Symbol).Warn("Skipping undecodable position")
			continue
		}
		holdings = append(holdings, contracts.Holding{
			Symbol:       symbol,
			Quantity:     int64(pos.NetQuantity()),
			AveragePrice: pos.AveragePrice,
			MarketValue:  pos.MarketValue,
		})
	}
	return holdings, nil
}

// GetCashBalance returns the account's available cash in dollars.
func (b *Brokerage) GetCashBalance(ctx context.Context) (float64, error) {
	account, err := b.client.GetAccount(ctx, b.client.AccountID(), false)
	if err != nil {
		return 0, fmt.Errorf("get cash balance: %w", err)
	}
	if account == nil {
		return 0, nil
	}
	return account.CurrentBalances.CashBalance, nil
}

// Subscribe starts streaming quotes for the symbols.
func (b *Brokerage) Subscribe(ctx context.Context, symbols []contracts.Symbol) error {
	return b.subs.Subscribe(ctx, symbols)
}

// Unsubscribe stops streaming quotes for the symbols and their derivatives.
func (b *Brokerage) Unsubscribe(ctx context.Context, symbols []contracts.Symbol) error {
	return b.subs.Unsubscribe(ctx, symbols)
}

// GetHistory returns historical bars.
func (b *Brokerage) GetHistory(ctx context.Context, req contracts.HistoryRequest) ([]contracts.TradeBar, error) {
	return b.history.GetHistory(ctx, req)
}

// MarketQuote exposes the merged streaming quote state for a symbol.
func (b *Brokerage) MarketQuote(symbol contracts.Symbol) (QuoteState, bool) {
	return b.subs.MarketQuote(symbol)
}

// PollOrder fetches the current broker state of an order and emits an event
// when its status advanced. Used by the daemon's order poller.
func (b *Brokerage) PollOrder(ctx context.Context, order *contracts.Order) error {
	brokerID := order.LastBrokerID()
	if brokerID == "" {
		return fmt.Errorf("poll order %s: no broker id", order.ID)
	}

	strategy, err := b.client.GetOrder(ctx, b.client.AccountID(), brokerID)
	if err != nil {
		return fmt.Errorf("poll order: %w", err)
	}
	if strategy == nil {
		return nil
	}

	status, err := MapOrderStatus(strategy.Status)
	if err != nil {
		return fmt.Errorf("poll order %s: %w", order.ID, err)
	}
	if status == order.Status {
		return nil
	}

	order.Status = status
	b.emitOrderEvent(contracts.OrderEvent{
		OrderID:      order.ID,
		BrokerID:     strconv.FormatInt(strategy.OrderID, 10),
		Status:       status,
		FillQuantity: int64(strategy.FilledQuantity),
		Time:         time.Now(),
	})
	return nil
}
