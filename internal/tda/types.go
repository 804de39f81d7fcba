package tda

// ============================================================
// Order Strategy Types
// ============================================================

// Instruction is the broker's per-leg open/close/cover intent.
type Instruction string

const (
	InstructionBuy         Instruction = "BUY"
	InstructionSell        Instruction = "SELL"
	InstructionBuyToCover  Instruction = "BUY_TO_COVER"
	InstructionSellShort   Instruction = "SELL_SHORT"
	InstructionBuyToOpen   Instruction = "BUY_TO_OPEN"
	InstructionBuyToClose  Instruction = "BUY_TO_CLOSE"
	InstructionSellToOpen  Instruction = "SELL_TO_OPEN"
	InstructionSellToClose Instruction = "SELL_TO_CLOSE"
	InstructionExercise    Instruction = "EXERCISE"
)

// OrderType is the broker's order type wire value.
type OrderType string

const (
	OrderTypeMarket        OrderType = "MARKET"
	OrderTypeLimit         OrderType = "LIMIT"
	OrderTypeStop          OrderType = "STOP"
	OrderTypeStopLimit     OrderType = "STOP_LIMIT"
	OrderTypeMarketOnClose OrderType = "MARKET_ON_CLOSE"
	OrderTypeExercise      OrderType = "EXERCISE"
)

// Session is the trading session an order participates in.
type Session string

const (
	SessionNormal   Session = "NORMAL"
	SessionAM       Session = "AM"
	SessionPM       Session = "PM"
	SessionSeamless Session = "SEAMLESS"
)

// Duration is the broker's time-in-force wire value.
type Duration string

const (
	DurationDay            Duration = "DAY"
	DurationGoodTillCancel Duration = "GOOD_TILL_CANCEL"
	DurationFillOrKill     Duration = "FILL_OR_KILL"
)

// StrategyType is the order-level strategy classification.
type StrategyType string

const (
	StrategySingle  StrategyType = "SINGLE"
	StrategyOCO     StrategyType = "OCO"
	StrategyTrigger StrategyType = "TRIGGER"
)

// ComplexStrategyType classifies multi-leg option structures. NONE for
// simple single-leg orders.
type ComplexStrategyType string

const (
	ComplexStrategyNone ComplexStrategyType = "NONE"
)

// AssetType is the broker's instrument asset class.
type AssetType string

const (
	AssetTypeEquity AssetType = "EQUITY"
	AssetTypeOption AssetType = "OPTION"
	AssetTypeIndex  AssetType = "INDEX"
)

// OrderStatus is the broker's order status wire value. The full set of
// accepted values is enumerated in knownOrderStatuses; anything else on the
// wire is a mapping error.
type OrderStatus string

const (
	StatusAwaitingParentOrder  OrderStatus = "AWAITING_PARENT_ORDER"
	StatusAwaitingCondition    OrderStatus = "AWAITING_CONDITION"
	StatusAwaitingManualReview OrderStatus = "AWAITING_MANUAL_REVIEW"
	StatusAccepted             OrderStatus = "ACCEPTED"
	StatusAwaitingUrOut        OrderStatus = "AWAITING_UR_OUT"
	StatusPendingActivation    OrderStatus = "PENDING_ACTIVATION"
	StatusQueued               OrderStatus = "QUEUED"
	StatusWorking              OrderStatus = "WORKING"
	StatusRejected             OrderStatus = "REJECTED"
	StatusPendingCancel        OrderStatus = "PENDING_CANCEL"
	StatusCanceled             OrderStatus = "CANCELED"
	StatusPendingReplace       OrderStatus = "PENDING_REPLACE"
	StatusReplaced             OrderStatus = "REPLACED"
	StatusFilled               OrderStatus = "FILLED"
	StatusExpired              OrderStatus = "EXPIRED"
)

// knownOrderStatuses lists every order status the broker documents. An
// explicit table instead of reflection so that gaps are visible here.
var knownOrderStatuses = map[OrderStatus]struct{}{
	StatusAwaitingParentOrder:  {},
	StatusAwaitingCondition:    {},
	StatusAwaitingManualReview: {},
	StatusAccepted:             {},
	StatusAwaitingUrOut:        {},
	StatusPendingActivation:    {},
	StatusQueued:               {},
	StatusWorking:              {},
	StatusRejected:             {},
	StatusPendingCancel:        {},
	StatusCanceled:             {},
	StatusPendingReplace:       {},
	StatusReplaced:             {},
	StatusFilled:               {},
	StatusExpired:              {},
}

// IsKnownOrderStatus reports whether the wire value is a documented status.
func IsKnownOrderStatus(s OrderStatus) bool {
	_, ok := knownOrderStatuses[s]
	return ok
}

// IsOpen reports whether an order in this status is still working at the
// broker.
func (s OrderStatus) IsOpen() bool {
	switch s {
	case StatusAccepted, StatusPendingActivation, StatusQueued, StatusWorking,
		StatusAwaitingParentOrder, StatusAwaitingCondition, StatusAwaitingManualReview,
		StatusAwaitingUrOut, StatusPendingReplace:
		return true
	}
	return false
}

// Instrument identifies the security an order leg trades.
type Instrument struct {
	Symbol    string    `json:"symbol"`
	AssetType AssetType `json:"assetType"`
	CUSIP     string    `json:"cusip,omitempty"`
}

// OrderLeg is one leg of an order strategy.
type OrderLeg struct {
	Instruction Instruction `json:"instruction"`
	Quantity    float64     `json:"quantity"`
	Instrument  Instrument  `json:"instrument"`
}

// OrderStrategy is the broker's order envelope: order-level attributes plus
// one or more legs. Simple orders carry exactly one leg.
type OrderStrategy struct {
	Session                  Session             `json:"session"`
	Duration                 Duration            `json:"duration"`
	OrderType                OrderType           `json:"orderType"`
	OrderStrategyType        StrategyType        `json:"orderStrategyType"`
	ComplexOrderStrategyType ComplexStrategyType `json:"complexOrderStrategyType,omitempty"`
	Price                    float64             `json:"price,omitempty"`
	StopPrice                float64             `json:"stopPrice,omitempty"`
	OrderLegCollection       []OrderLeg          `json:"orderLegCollection"`

	// Response-only fields
	OrderID           int64       `json:"orderId,omitempty"`
	Status            OrderStatus `json:"status,omitempty"`
	Quantity          float64     `json:"quantity,omitempty"`
	FilledQuantity    float64     `json:"filledQuantity,omitempty"`
	RemainingQuantity float64     `json:"remainingQuantity,omitempty"`
	EnteredTime       string      `json:"enteredTime,omitempty"`
	CloseTime         string      `json:"closeTime,omitempty"`
	AccountID         int64       `json:"accountId,omitempty"`
}

// ============================================================
// Account Types
// ============================================================

// Position is a broker-reported holding.
type Position struct {
	ShortQuantity  float64    `json:"shortQuantity"`
	LongQuantity   float64    `json:"longQuantity"`
	AveragePrice   float64    `json:"averagePrice"`
	MarketValue    float64    `json:"marketValue"`
	Instrument     Instrument `json:"instrument"`
	SettledLongQty float64    `json:"settledLongQuantity,omitempty"`
}

// NetQuantity returns the signed position size.
func (p Position) NetQuantity() float64 {
	return p.LongQuantity - p.ShortQuantity
}

// Balances holds the account cash figures used by the adapter.
type Balances struct {
	CashBalance        float64 `json:"cashBalance"`
	AvailableFunds     float64 `json:"availableFunds"`
	BuyingPower        float64 `json:"buyingPower"`
	LiquidationValue   float64 `json:"liquidationValue"`
	CashAvailableTrade float64 `json:"cashAvailableForTrading"`
}

// SecuritiesAccount is the payload under the "securitiesAccount" root.
type SecuritiesAccount struct {
	AccountID       string     `json:"accountId"`
	Type            string     `json:"type"`
	IsDayTrader     bool       `json:"isDayTrader"`
	Positions       []Position `json:"positions"`
	CurrentBalances Balances   `json:"currentBalances"`
}

// ============================================================
// Market Data Types
// ============================================================

// Candle is one OHLCV bar from the price history endpoint.
type Candle struct {
	Datetime int64   `json:"datetime"` // epoch millis
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   int64   `json:"volume"`
}

// PriceHistory is the price history response envelope.
type PriceHistory struct {
	Symbol  string   `json:"symbol"`
	Empty   bool     `json:"empty"`
	Candles []Candle `json:"candles"`
}

// Quote is a level-one quote snapshot from the REST quote endpoints.
type Quote struct {
	Symbol      string  `json:"symbol"`
	BidPrice    float64 `json:"bidPrice"`
	AskPrice    float64 `json:"askPrice"`
	LastPrice   float64 `json:"lastPrice"`
	BidSize     int64   `json:"bidSize"`
	AskSize     int64   `json:"askSize"`
	LastSize    int64   `json:"lastSize"`
	TotalVolume int64   `json:"totalVolume"`
	QuoteTime   int64   `json:"quoteTimeInLong"`
	TradeTime   int64   `json:"tradeTimeInLong"`
}

// InstrumentInfo is the instruments endpoint payload.
type InstrumentInfo struct {
	CUSIP       string    `json:"cusip"`
	Symbol      string    `json:"symbol"`
	Description string    `json:"description"`
	Exchange    string    `json:"exchange"`
	AssetType   AssetType `json:"assetType"`
}

// ============================================================
// User Principals Types
// ============================================================

// StreamerInfo carries the credentials for the streaming socket.
type StreamerInfo struct {
	StreamerSocketURL string `json:"streamerSocketUrl"`
	Token             string `json:"token"`
	TokenTimestamp    string `json:"tokenTimestamp"`
	UserGroup         string `json:"userGroup"`
	AccessLevel       string `json:"accessLevel"`
	ACL               string `json:"acl"`
	AppID             string `json:"appId"`
}

// PrincipalAccount is one account entry in the user principals payload.
type PrincipalAccount struct {
	AccountID         string `json:"accountId"`
	DisplayName       string `json:"displayName"`
	Company           string `json:"company"`
	Segment           string `json:"segment"`
	AccountCdDomainID string `json:"accountCdDomainId"`
}

// UserPrincipal is the userprincipals response.
type UserPrincipal struct {
	UserID           string             `json:"userId"`
	PrimaryAccountID string             `json:"primaryAccountId"`
	StreamerInfo     StreamerInfo       `json:"streamerInfo"`
	Accounts         []PrincipalAccount `json:"accounts"`
}

// ============================================================
// Error Types
// ============================================================

// ErrorResponse is the structured body the broker returns on API-level
// rejections.
type ErrorResponse struct {
	Error string `json:"error"`
}
