package contracts

import (
	"context"
	"time"
)

// The brokerage surface is split into narrow capability interfaces rather
// than one base type full of unimplemented stubs; the adapter composes them.

// OrderGateway places, replaces and cancels orders and reports account state.
type OrderGateway interface {
	PlaceOrder(ctx context.Context, order *Order) error
	UpdateOrder(ctx context.Context, order *Order) error
	CancelOrder(ctx context.Context, order *Order) error
	GetOpenOrders(ctx context.Context) ([]Order, error)
	GetAccountHoldings(ctx context.Context) ([]Holding, error)
	GetCashBalance(ctx context.Context) (float64, error)
}

// DataStreamer manages live market data subscriptions.
type DataStreamer interface {
	Subscribe(ctx context.Context, symbols []Symbol) error
	Unsubscribe(ctx context.Context, symbols []Symbol) error
}

// HistoryProvider serves historical bars.
type HistoryProvider interface {
	GetHistory(ctx context.Context, req HistoryRequest) ([]TradeBar, error)
}

// DataAggregator is the host engine's sink for streamed data.
type DataAggregator interface {
	Add(tick *Tick)
	Update(bar *TradeBar)
	Remove(symbol Symbol)
}

// MessageType classifies brokerage messages.
type MessageType string

const (
	MessageTypeInfo  MessageType = "INFO"
	MessageTypeWarn  MessageType = "WARN"
	MessageTypeError MessageType = "ERROR"
)

// BrokerageMessage is a non-fatal notification surfaced to the host engine.
type BrokerageMessage struct {
	Type    MessageType `json:"type"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Time    time.Time   `json:"time"`
}
