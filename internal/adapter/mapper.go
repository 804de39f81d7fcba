package adapter

import (
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/quantbridge/tda/internal/contracts"
	"github.com/quantbridge/tda/internal/tda"
)

// OrderTranslator converts between the engine's order model and the broker's
// order strategy wire format.
type OrderTranslator struct {
	symbols *SymbolMapper
}

// NewOrderTranslator creates an order translator.
func NewOrderTranslator(symbols *SymbolMapper) *OrderTranslator {
	return &OrderTranslator{symbols: symbols}
}

// instructionFor picks the broker leg instruction from the direction, the
// asset class and the sign of the current holding. Options distinguish
// opening and closing legs; equities distinguish shorting and covering.
func instructionFor(securityType contracts.SecurityType, direction contracts.OrderDirection, holding float64) tda.Instruction {
	if securityType == contracts.SecurityTypeOption {
		if direction == contracts.DirectionBuy {
			if holding < 0 {
				return tda.InstructionBuyToClose
			}
			return tda.InstructionBuyToOpen
		}
		if holding > 0 {
			return tda.InstructionSellToClose
		}
		return tda.InstructionSellToOpen
	}

	if direction == contracts.DirectionBuy {
		if holding < 0 {
			return tda.InstructionBuyToCover
		}
		return tda.InstructionBuy
	}
	if holding <= 0 {
		return tda.InstructionSellShort
	}
	return tda.InstructionSell
}

// orderTypeTable maps engine order types to broker order types.
var orderTypeTable = map[contracts.OrderType]tda.OrderType{
	contracts.OrderTypeMarket:         tda.OrderTypeMarket,
	contracts.OrderTypeLimit:          tda.OrderTypeLimit,
	contracts.OrderTypeStopMarket:     tda.OrderTypeStop,
	contracts.OrderTypeStopLimit:      tda.OrderTypeStopLimit,
	contracts.OrderTypeMarketOnClose:  tda.OrderTypeMarketOnClose,
	contracts.OrderTypeOptionExercise: tda.OrderTypeExercise,
}

// reverseOrderTypeTable is the inverse mapping for reading orders back.
var reverseOrderTypeTable = func() map[tda.OrderType]contracts.OrderType {
	m := make(map[tda.OrderType]contracts.OrderType, len(orderTypeTable))
	for k, v := range orderTypeTable {
		m[v] = k
	}
	return m
}()

// statusTable maps broker order statuses onto the engine's lifecycle states.
// Statuses not listed here map to StatusNew when documented; undocumented
// wire values are an error.
var statusTable = map[tda.OrderStatus]contracts.OrderStatus{
	tda.StatusQueued:   contracts.StatusSubmitted,
	tda.StatusWorking:  contracts.StatusPartiallyFilled,
	tda.StatusFilled:   contracts.StatusFilled,
	tda.StatusCanceled: contracts.StatusCanceled,
	tda.StatusExpired:  contracts.StatusCanceled,
	tda.StatusRejected: contracts.StatusInvalid,
	tda.StatusReplaced: contracts.StatusUpdateSubmitted,
}

// MapOrderStatus converts a broker status to the engine status, failing on
// wire values outside the documented set.
func MapOrderStatus(status tda.OrderStatus) (contracts.OrderStatus, error) {
	if mapped, ok := statusTable[status]; ok {
		return mapped, nil
	}
	if tda.IsKnownOrderStatus(status) {
		return contracts.StatusNew, nil
	}
	return "", fmt.Errorf("unknown broker order status %q", status)
}

// ToBrokerOrder builds the broker order strategy for an engine order.
// holding is the signed net quantity currently held in the order's symbol.
func (t *OrderTranslator) ToBrokerOrder(order *contracts.Order, holding float64) (*tda.OrderStrategy, error) {
	brokerType, ok := orderTypeTable[order.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported order type %s", order.Type)
	}

	ticker, err := t.symbols.ToBrokerTicker(order.Symbol)
	if err != nil {
		return nil, err
	}

	assetType := tda.AssetTypeEquity
	switch order.Symbol.SecurityType {
	case contracts.SecurityTypeOption:
		assetType = tda.AssetTypeOption
	case contracts.SecurityTypeIndex:
		assetType = tda.AssetTypeIndex
	}

	duration := tda.DurationGoodTillCancel
	if order.TimeInForce == contracts.TimeInForceDay {
		duration = tda.DurationDay
	}

	// A stop limit with both trigger and limit prices is expressed as a
	// one-cancels-other pair on this broker.
	strategyType := tda.StrategySingle
	if order.Type == contracts.OrderTypeStopLimit && order.LimitPrice != 0 && order.StopPrice != 0 {
		strategyType = tda.StrategyOCO
	}

	strategy := &tda.OrderStrategy{
		Session:                  tda.SessionNormal,
		Duration:                 duration,
		OrderType:                brokerType,
		OrderStrategyType:        strategyType,
		ComplexOrderStrategyType: tda.ComplexStrategyNone,
		OrderLegCollection: []tda.OrderLeg{
			{
				Instruction: instructionFor(order.Symbol.SecurityType, order.Direction, holding),
				Quantity:    float64(order.Quantity),
				Instrument: tda.Instrument{
					Symbol:    ticker,
					AssetType: assetType,
				},
			},
		},
	}

	if order.LimitPrice != 0 {
		strategy.Price = RoundAmountToExchangeFormat(order.LimitPrice)
	}
	if order.StopPrice != 0 {
		strategy.StopPrice = RoundAmountToExchangeFormat(order.StopPrice)
	}

	return strategy, nil
}

// FromBrokerOrder converts a broker order strategy back into an engine
// order. Fails when the wire status or order type is outside the documented
// set.
func (t *OrderTranslator) FromBrokerOrder(strategy *tda.OrderStrategy, market string) (*contracts.Order, error) {
	status, err := MapOrderStatus(strategy.Status)
	if err != nil {
		return nil, err
	}

	orderType, ok := reverseOrderTypeTable[strategy.OrderType]
	if !ok {
		return nil, fmt.Errorf("unsupported broker order type %q", strategy.OrderType)
	}

	if len(strategy.OrderLegCollection) == 0 {
		return nil, fmt.Errorf("broker order %d has no legs", strategy.OrderID)
	}
	leg := strategy.OrderLegCollection[0]

	symbol, err := t.symbols.FromBrokerTicker(leg.Instrument.Symbol, market)
	if err != nil {
		return nil, err
	}

	direction := contracts.DirectionBuy
	switch leg.Instruction {
	case tda.InstructionSell, tda.InstructionSellShort,
		tda.InstructionSellToOpen, tda.InstructionSellToClose:
		direction = contracts.DirectionSell
	}

	timeInForce := contracts.TimeInForceGoodTilCancel
	if strategy.Duration == tda.DurationDay {
		timeInForce = contracts.TimeInForceDay
	}

	return &contracts.Order{
		Symbol:      symbol,
		Type:        orderType,
		Direction:   direction,
		Quantity:    int64(leg.Quantity),
		LimitPrice:  strategy.Price,
		StopPrice:   strategy.StopPrice,
		TimeInForce: timeInForce,
		Status:      status,
		BrokerIDs:   []string{strconv.FormatInt(strategy.OrderID, 10)},
	}, nil
}

// RoundAmountToExchangeFormat rounds a price the way the broker accepts it:
// prices under a dollar keep four significant digits, everything else rounds
// to whole cents.
func RoundAmountToExchangeFormat(amount float64) float64 {
	if amount == 0 {
		return 0
	}

	d := decimal.NewFromFloat(amount)
	abs := math.Abs(amount)
	if abs < 1 {
		places := int32(4 - 1 - int(math.Floor(math.Log10(abs))))
		f, _ := d.Round(places).Float64()
		return f
	}

	f, _ := d.Round(2).Float64()
	return f
}
