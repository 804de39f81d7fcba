package adapter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantbridge/tda/internal/contracts"
	"github.com/quantbridge/tda/internal/tda"
)

func TestInstructionFor(t *testing.T) {
	tests := []struct {
		name         string
		securityType contracts.SecurityType
		direction    contracts.OrderDirection
		holding      float64
		want         tda.Instruction
	}{
		{"equity buy flat", contracts.SecurityTypeEquity, contracts.DirectionBuy, 0, tda.InstructionBuy},
		{"equity buy long", contracts.SecurityTypeEquity, contracts.DirectionBuy, 100, tda.InstructionBuy},
		{"equity buy short covers", contracts.SecurityTypeEquity, contracts.DirectionBuy, -100, tda.InstructionBuyToCover},
		{"equity sell long", contracts.SecurityTypeEquity, contracts.DirectionSell, 100, tda.InstructionSell},
		{"equity sell flat shorts", contracts.SecurityTypeEquity, contracts.DirectionSell, 0, tda.InstructionSellShort},
		{"equity sell short adds", contracts.SecurityTypeEquity, contracts.DirectionSell, -100, tda.InstructionSellShort},
		{"option buy flat opens", contracts.SecurityTypeOption, contracts.DirectionBuy, 0, tda.InstructionBuyToOpen},
		{"option buy long opens", contracts.SecurityTypeOption, contracts.DirectionBuy, 5, tda.InstructionBuyToOpen},
		{"option buy short closes", contracts.SecurityTypeOption, contracts.DirectionBuy, -5, tda.InstructionBuyToClose},
		{"option sell long closes", contracts.SecurityTypeOption, contracts.DirectionSell, 5, tda.InstructionSellToClose},
		{"option sell flat opens", contracts.SecurityTypeOption, contracts.DirectionSell, 0, tda.InstructionSellToOpen},
		{"option sell short opens", contracts.SecurityTypeOption, contracts.DirectionSell, -5, tda.InstructionSellToOpen},
		{"index buy flat", contracts.SecurityTypeIndex, contracts.DirectionBuy, 0, tda.InstructionBuy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := instructionFor(tt.securityType, tt.direction, tt.holding)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMapOrderStatus(t *testing.T) {
	tests := []struct {
		status tda.OrderStatus
		want   contracts.OrderStatus
	}{
		{tda.StatusQueued, contracts.StatusSubmitted},
		{tda.StatusWorking, contracts.StatusPartiallyFilled},
		{tda.StatusFilled, contracts.StatusFilled},
		{tda.StatusCanceled, contracts.StatusCanceled},
		{tda.StatusExpired, contracts.StatusCanceled},
		{tda.StatusRejected, contracts.StatusInvalid},
		{tda.StatusReplaced, contracts.StatusUpdateSubmitted},
		{tda.StatusAccepted, contracts.StatusNew},
		{tda.StatusPendingActivation, contracts.StatusNew},
		{tda.StatusAwaitingManualReview, contracts.StatusNew},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			got, err := MapOrderStatus(tt.status)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMapOrderStatusUnknown(t *testing.T) {
	_, err := MapOrderStatus("SOMETHING_NEW")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SOMETHING_NEW")
}

func TestRoundAmountToExchangeFormat(t *testing.T) {
	tests := []struct {
		amount float64
		want   float64
	}{
		{0, 0},
		{0.5, 0.5},
		{0.012345, 0.01235},
		{0.99999, 1},
		{1, 1},
		{150.456, 150.46},
		{150.454, 150.45},
		{2999.999, 3000},
		{-0.012345, -0.01235},
		{-150.456, -150.46},
	}

	for _, tt := range tests {
		got := RoundAmountToExchangeFormat(tt.amount)
		assert.InDelta(t, tt.want, got, 1e-9, "amount %v", tt.amount)
	}
}

func TestToBrokerOrderLimit(t *testing.T) {
	translator := NewOrderTranslator(NewSymbolMapper())

	order := &contracts.Order{
		ID:          "o-1",
		Symbol:      contracts.NewEquity("AAPL", MarketUSA),
		Type:        contracts.OrderTypeLimit,
		Direction:   contracts.DirectionBuy,
		Quantity:    100,
		LimitPrice:  150.456,
		TimeInForce: contracts.TimeInForceDay,
	}

	strategy, err := translator.ToBrokerOrder(order, 0)
	require.NoError(t, err)

	assert.Equal(t, tda.OrderTypeLimit, strategy.OrderType)
	assert.Equal(t, tda.DurationDay, strategy.Duration)
	assert.Equal(t, tda.StrategySingle, strategy.OrderStrategyType)
	assert.Equal(t, tda.ComplexStrategyNone, strategy.ComplexOrderStrategyType)
	assert.InDelta(t, 150.46, strategy.Price, 1e-9)

	require.Len(t, strategy.OrderLegCollection, 1)
	leg := strategy.OrderLegCollection[0]
	assert.Equal(t, tda.InstructionBuy, leg.Instruction)
	assert.Equal(t, float64(100), leg.Quantity)
	assert.Equal(t, "AAPL", leg.Instrument.Symbol)
	assert.Equal(t, tda.AssetTypeEquity, leg.Instrument.AssetType)
}

func TestToBrokerOrderStopLimitIsOCO(t *testing.T) {
	translator := NewOrderTranslator(NewSymbolMapper())

	order := &contracts.Order{
		Symbol:      contracts.NewEquity("MSFT", MarketUSA),
		Type:        contracts.OrderTypeStopLimit,
		Direction:   contracts.DirectionSell,
		Quantity:    50,
		LimitPrice:  300,
		StopPrice:   295,
		TimeInForce: contracts.TimeInForceGoodTilCancel,
	}

	strategy, err := translator.ToBrokerOrder(order, 50)
	require.NoError(t, err)

	assert.Equal(t, tda.StrategyOCO, strategy.OrderStrategyType)
	assert.Equal(t, tda.DurationGoodTillCancel, strategy.Duration)
	assert.Equal(t, tda.InstructionSell, strategy.OrderLegCollection[0].Instruction)
}

func TestToBrokerOrderOption(t *testing.T) {
	translator := NewOrderTranslator(NewSymbolMapper())

	expiry := time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC)
	order := &contracts.Order{
		Symbol:      contracts.NewOption("AAPL", MarketUSA, contracts.OptionRightCall, 200, expiry),
		Type:        contracts.OrderTypeLimit,
		Direction:   contracts.DirectionBuy,
		Quantity:    2,
		LimitPrice:  3.5,
		TimeInForce: contracts.TimeInForceDay,
	}

	strategy, err := translator.ToBrokerOrder(order, 0)
	require.NoError(t, err)

	leg := strategy.OrderLegCollection[0]
	assert.Equal(t, tda.InstructionBuyToOpen, leg.Instruction)
	assert.Equal(t, "AAPL_091826C200", leg.Instrument.Symbol)
	assert.Equal(t, tda.AssetTypeOption, leg.Instrument.AssetType)
}

func TestToBrokerOrderUnsupportedType(t *testing.T) {
	translator := NewOrderTranslator(NewSymbolMapper())

	order := &contracts.Order{
		Symbol:    contracts.NewEquity("AAPL", MarketUSA),
		Type:      "TRAILING_STOP",
		Direction: contracts.DirectionBuy,
		Quantity:  1,
	}

	_, err := translator.ToBrokerOrder(order, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported order type")
}

func TestFromBrokerOrderRoundTrip(t *testing.T) {
	translator := NewOrderTranslator(NewSymbolMapper())

	strategy := &tda.OrderStrategy{
		Session:           tda.SessionNormal,
		Duration:          tda.DurationDay,
		OrderType:         tda.OrderTypeLimit,
		OrderStrategyType: tda.StrategySingle,
		Price:             150.46,
		OrderID:           12345,
		Status:            tda.StatusWorking,
		OrderLegCollection: []tda.OrderLeg{
			{
				Instruction: tda.InstructionBuy,
				Quantity:    100,
				Instrument:  tda.Instrument{Symbol: "AAPL", AssetType: tda.AssetTypeEquity},
			},
		},
	}

	order, err := translator.FromBrokerOrder(strategy, MarketUSA)
	require.NoError(t, err)

	assert.Equal(t, "AAPL", order.Symbol.Ticker)
	assert.Equal(t, contracts.OrderTypeLimit, order.Type)
	assert.Equal(t, contracts.DirectionBuy, order.Direction)
	assert.Equal(t, int64(100), order.Quantity)
	assert.Equal(t, contracts.StatusPartiallyFilled, order.Status)
	assert.Equal(t, contracts.TimeInForceDay, order.TimeInForce)
	assert.Equal(t, "12345", order.LastBrokerID())
}

func TestFromBrokerOrderUnknownStatusFails(t *testing.T) {
	translator := NewOrderTranslator(NewSymbolMapper())

	strategy := &tda.OrderStrategy{
		OrderType: tda.OrderTypeMarket,
		Status:    "HALTED_WEIRDLY",
		OrderLegCollection: []tda.OrderLeg{
			{Instruction: tda.InstructionBuy, Quantity: 1,
				Instrument: tda.Instrument{Symbol: "AAPL", AssetType: tda.AssetTypeEquity}},
		},
	}

	_, err := translator.FromBrokerOrder(strategy, MarketUSA)
	require.Error(t, err)
}
