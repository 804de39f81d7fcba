package contracts

import (
	"strings"
	"time"
)

// SecurityType identifies the asset class of a symbol.
type SecurityType string

const (
	SecurityTypeEquity SecurityType = "EQUITY"
	SecurityTypeOption SecurityType = "OPTION"
	SecurityTypeIndex  SecurityType = "INDEX"
)

// OptionRight distinguishes calls from puts.
type OptionRight string

const (
	OptionRightCall OptionRight = "CALL"
	OptionRightPut  OptionRight = "PUT"
)

// Symbol is the host engine's security identifier.
type Symbol struct {
	Ticker       string       `json:"ticker"`
	SecurityType SecurityType `json:"security_type"`
	Market       string       `json:"market"`

	// Option fields, zero for non-options
	Underlying string      `json:"underlying,omitempty"`
	Right      OptionRight `json:"right,omitempty"`
	Strike     float64     `json:"strike,omitempty"`
	Expiry     time.Time   `json:"expiry,omitempty"`
}

// NewEquity creates an equity symbol.
func NewEquity(ticker, market string) Symbol {
	return Symbol{
		Ticker:       strings.ToUpper(ticker),
		SecurityType: SecurityTypeEquity,
		Market:       market,
	}
}

// NewOption creates an option contract symbol.
func NewOption(underlying, market string, right OptionRight, strike float64, expiry time.Time) Symbol {
	return Symbol{
		Ticker:       strings.ToUpper(underlying),
		SecurityType: SecurityTypeOption,
		Market:       market,
		Underlying:   strings.ToUpper(underlying),
		Right:        right,
		Strike:       strike,
		Expiry:       expiry,
	}
}

// IsOption checks if the symbol is an option contract.
func (s Symbol) IsOption() bool {
	return s.SecurityType == SecurityTypeOption
}

// IsCanonical reports whether the symbol stands for a whole derivative chain
// rather than a tradable contract (an option with no strike or expiry).
func (s Symbol) IsCanonical() bool {
	return s.SecurityType == SecurityTypeOption && (s.Strike == 0 || s.Expiry.IsZero())
}

// IsUniverse reports whether the symbol is a selection-universe pseudo-symbol
// injected by the host engine. Those never stream.
func (s Symbol) IsUniverse() bool {
	return strings.Contains(strings.ToUpper(s.Ticker), "UNIVERSE")
}
