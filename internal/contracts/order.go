package contracts

import "time"

// OrderDirection represents buy or sell.
type OrderDirection string

const (
	DirectionBuy  OrderDirection = "BUY"
	DirectionSell OrderDirection = "SELL"
)

// OrderType represents the host engine's order types.
type OrderType string

const (
	OrderTypeMarket         OrderType = "MARKET"
	OrderTypeLimit          OrderType = "LIMIT"
	OrderTypeStopMarket     OrderType = "STOP_MARKET"
	OrderTypeStopLimit      OrderType = "STOP_LIMIT"
	OrderTypeMarketOnClose  OrderType = "MARKET_ON_CLOSE"
	OrderTypeOptionExercise OrderType = "OPTION_EXERCISE"
)

// TimeInForce represents how long an order stays working.
type TimeInForce string

const (
	TimeInForceDay           TimeInForce = "DAY"
	TimeInForceGoodTilCancel TimeInForce = "GOOD_TIL_CANCELED"
)

// OrderStatus represents the host engine's order lifecycle states.
type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusSubmitted       OrderStatus = "SUBMITTED"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceled        OrderStatus = "CANCELED"
	StatusUpdateSubmitted OrderStatus = "UPDATE_SUBMITTED"
	StatusInvalid         OrderStatus = "INVALID"
)

// IsOpen reports whether an order in this status is still working.
func (s OrderStatus) IsOpen() bool {
	switch s {
	case StatusNew, StatusSubmitted, StatusPartiallyFilled, StatusUpdateSubmitted:
		return true
	}
	return false
}

// Order is the host engine's order entity. The adapter only mutates Status
// and appends broker ids; everything else is owned by the engine.
type Order struct {
	ID          string         `json:"id"`
	Symbol      Symbol         `json:"symbol"`
	Type        OrderType      `json:"type"`
	Direction   OrderDirection `json:"direction"`
	Quantity    int64          `json:"quantity"` // always positive
	LimitPrice  float64        `json:"limit_price,omitempty"`
	StopPrice   float64        `json:"stop_price,omitempty"`
	TimeInForce TimeInForce    `json:"time_in_force"`
	Status      OrderStatus    `json:"status"`
	BrokerIDs   []string       `json:"broker_ids,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// LastBrokerID returns the most recent broker-side order id, empty if none.
func (o *Order) LastBrokerID() string {
	if len(o.BrokerIDs) == 0 {
		return ""
	}
	return o.BrokerIDs[len(o.BrokerIDs)-1]
}

// OrderEvent notifies the host engine of a broker-side order state change.
type OrderEvent struct {
	OrderID      string      `json:"order_id"`
	BrokerID     string      `json:"broker_id"`
	Status       OrderStatus `json:"status"`
	FillQuantity int64       `json:"fill_quantity,omitempty"`
	FillPrice    float64     `json:"fill_price,omitempty"`
	Message      string      `json:"message,omitempty"`
	Time         time.Time   `json:"time"`
}

// Holding is a position reported by the broker.
type Holding struct {
	Symbol       Symbol  `json:"symbol"`
	Quantity     int64   `json:"quantity"` // negative when short
	AveragePrice float64 `json:"average_price"`
	MarketValue  float64 `json:"market_value"`
}
