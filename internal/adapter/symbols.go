package adapter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/quantbridge/tda/internal/contracts"
)

// SymbolMapper translates between the engine's symbols and the broker's
// ticker format. Equities and indices pass through; options use the broker's
// UNDERLYING_MMDDYY{C|P}STRIKE contract notation.
type SymbolMapper struct{}

// NewSymbolMapper creates a symbol mapper.
func NewSymbolMapper() *SymbolMapper {
	return &SymbolMapper{}
}

const optionExpiryLayout = "010206"

// ToBrokerTicker encodes a symbol as the broker's ticker string.
func (m *SymbolMapper) ToBrokerTicker(symbol contracts.Symbol) (string, error) {
	switch symbol.SecurityType {
	case contracts.SecurityTypeEquity, contracts.SecurityTypeIndex:
		return symbol.Ticker, nil
	case contracts.SecurityTypeOption:
		if symbol.IsCanonical() {
			return "", fmt.Errorf("option symbol %s is canonical, not a tradable contract", symbol.Ticker)
		}
		right := "C"
		if symbol.Right == contracts.OptionRightPut {
			right = "P"
		}
		strike := strconv.FormatFloat(symbol.Strike, 'f', -1, 64)
		return symbol.Underlying + "_" + symbol.Expiry.Format(optionExpiryLayout) + right + strike, nil
	}
	return "", fmt.Errorf("unsupported security type %s", symbol.SecurityType)
}

// FromBrokerTicker decodes a broker ticker back into a symbol. Tickers
// without the option separator are treated as equities on the given market.
func (m *SymbolMapper) FromBrokerTicker(ticker, market string) (contracts.Symbol, error) {
	underscore := strings.Index(ticker, "_")
	if underscore < 0 {
		return contracts.NewEquity(ticker, market), nil
	}

	underlying := ticker[:underscore]
	rest := ticker[underscore+1:]
	if len(rest) < 8 {
		return contracts.Symbol{}, fmt.Errorf("malformed option ticker %q", ticker)
	}

	expiry, err := time.Parse(optionExpiryLayout, rest[:6])
	if err != nil {
		return contracts.Symbol{}, fmt.Errorf("malformed option expiry in %q: %w", ticker, err)
	}

	var right contracts.OptionRight
	switch rest[6] {
	case 'C':
		right = contracts.OptionRightCall
	case 'P':
		right = contracts.OptionRightPut
	default:
		return contracts.Symbol{}, fmt.Errorf("malformed option right in %q", ticker)
	}

	strike, err := strconv.ParseFloat(rest[7:], 64)
	if err != nil {
		return contracts.Symbol{}, fmt.Errorf("malformed option strike in %q: %w", ticker, err)
	}

	return contracts.NewOption(underlying, market, right, strike, expiry), nil
}
