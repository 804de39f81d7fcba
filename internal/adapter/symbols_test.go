package adapter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantbridge/tda/internal/contracts"
)

func TestToBrokerTicker(t *testing.T) {
	mapper := NewSymbolMapper()
	expiry := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		symbol  contracts.Symbol
		want    string
		wantErr bool
	}{
		{"equity", contracts.NewEquity("aapl", MarketUSA), "AAPL", false},
		{"call", contracts.NewOption("SPY", MarketUSA, contracts.OptionRightCall, 480, expiry), "SPY_011526C480", false},
		{"put", contracts.NewOption("SPY", MarketUSA, contracts.OptionRightPut, 472.5, expiry), "SPY_011526P472.5", false},
		{"canonical option", contracts.NewOption("SPY", MarketUSA, contracts.OptionRightCall, 0, expiry), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mapper.ToBrokerTicker(tt.symbol)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromBrokerTicker(t *testing.T) {
	mapper := NewSymbolMapper()

	t.Run("equity", func(t *testing.T) {
		symbol, err := mapper.FromBrokerTicker("AAPL", MarketUSA)
		require.NoError(t, err)
		assert.Equal(t, contracts.SecurityTypeEquity, symbol.SecurityType)
		assert.Equal(t, "AAPL", symbol.Ticker)
	})

	t.Run("option round trip", func(t *testing.T) {
		symbol, err := mapper.FromBrokerTicker("SPY_011526P472.5", MarketUSA)
		require.NoError(t, err)
		assert.Equal(t, contracts.SecurityTypeOption, symbol.SecurityType)
		assert.Equal(t, "SPY", symbol.Underlying)
		assert.Equal(t, contracts.OptionRightPut, symbol.Right)
		assert.Equal(t, 472.5, symbol.Strike)
		assert.Equal(t, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), symbol.Expiry)

		ticker, err := mapper.ToBrokerTicker(symbol)
		require.NoError(t, err)
		assert.Equal(t, "SPY_011526P472.5", ticker)
	})

	t.Run("malformed option", func(t *testing.T) {
		_, err := mapper.FromBrokerTicker("SPY_0115", MarketUSA)
		require.Error(t, err)

		_, err = mapper.FromBrokerTicker("SPY_011526X480", MarketUSA)
		require.Error(t, err)

		_, err = mapper.FromBrokerTicker("SPY_011526Cxx", MarketUSA)
		require.Error(t, err)
	})
}
