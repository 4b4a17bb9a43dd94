package binance

// REST endpoints. The testnet serves the same API surface with separate
// keys and balances.
const (
	MainnetURL = "https://api.binance.com"
	TestnetURL = "https://testnet.binance.vision"

	MainnetWSBase = "wss://stream.binance.com:9443/stream"
	TestnetWSBase = "wss://stream.testnet.binance.vision/stream"
)

// combinedStreamMsg is one frame from the multiplexed /stream endpoint.
type combinedStreamMsg struct {
	Stream string     `json:"stream"`
	Data   tickerData `json:"data"`
}

// tickerData is the subset of the 24h mini-ticker payload we consume.
// "c" is the current close (last) price; "p" is the absolute price change
// and only used as a fallback by very old stream variants.
type tickerData struct {
	Symbol    string `json:"s"`
	LastPrice string `json:"c"`
	AltPrice  string `json:"p"`
}

// orderResponse is the ACK payload from POST /api/v3/order.
type orderResponse struct {
	OrderID       int64  `json:"orderId"`
	Symbol        string `json:"symbol"`
	Status        string `json:"status"`
	TransactTime  int64  `json:"transactTime"`
	ClientOrderID string `json:"clientOrderId"`
}

// apiError is the error payload returned on non-2xx responses.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}
