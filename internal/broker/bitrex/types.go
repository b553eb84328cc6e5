package bitrex

import "encoding/json"

// Bitrex V1 REST endpoints.
const (
	pathTime        = "/api/v1/public/time"
	pathPlaceOrder  = "/api/v1/trade/order"
	pathCancelOrder = "/api/v1/trade/cancel"
	pathOrderDetail = "/api/v1/trade/order-detail"
	pathPositions   = "/api/v1/account/positions"
	pathBalance     = "/api/v1/account/balance"
)

// Venue response codes.
const (
	codeOK            = "0"
	codeOrderNotFound = "30605"
)

// apiResponse is the common Bitrex envelope.
type apiResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type placeOrderRequest struct {
	ClientOid string `json:"clientOid"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`    // "buy" / "sell"
	OrdType   string `json:"ordType"` // "market" / "limit" / "stop"
	Price     string `json:"price,omitempty"`
	Qty       string `json:"qty"`
}

type placeOrderData struct {
	OrderID   string `json:"orderId"`
	ClientOid string `json:"clientOid"`
}

type cancelOrderRequest struct {
	OrderID string `json:"orderId"`
}

// orderSnapshot is the venue's view of one order, used by the fill poller.
// All numeric fields are strings per the venue's wire format.
type orderSnapshot struct {
	OrderID   string `json:"orderId"`
	ClientOid string `json:"clientOid"`
	Symbol    string `json:"symbol"`
	Status    string `json:"status"` // "new" / "partially_filled" / "filled" / "canceled" / "rejected"
	FilledQty string `json:"fillQty"`
	AvgPrice  string `json:"avgPx"`
	LastPrice string `json:"lastPx"`
	FeeTotal  string `json:"fee"`
	FeeCcy    string `json:"feeCcy"`
}

type positionData struct {
	Symbol   string `json:"symbol"`
	Qty      string `json:"qty"` // signed
	AvgPrice string `json:"avgPx"`
	RealPnL  string `json:"realizedPnl"`
}

type balanceData struct {
	Currency  string `json:"ccy"`
	Available string `json:"available"`
}
