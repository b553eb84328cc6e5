package okanax

import "encoding/json"

// Okanax V2 REST endpoints.
const (
	pathTime        = "/api/v2/public/time"
	pathPlaceOrder  = "/api/v2/trade/order"
	pathCancelOrder = "/api/v2/trade/cancel-order"
	pathOrderDetail = "/api/v2/trade/order"
	pathPositions   = "/api/v2/account/positions"
	pathBalance     = "/api/v2/account/balance"
)

// Venue response codes.
const (
	codeOK            = "0"
	codeOrderNotFound = "51603"
)

// Private WebSocket channel carrying execution reports.
const fillsChannel = "fills"

type apiResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type placeOrderRequest struct {
	ClOrdID string `json:"clOrdId"`
	InstID  string `json:"instId"`
	Side    string `json:"side"`
	OrdType string `json:"ordType"`
	Px      string `json:"px,omitempty"`
	Sz      string `json:"sz"`
}

type placeOrderData struct {
	OrdID   string `json:"ordId"`
	ClOrdID string `json:"clOrdId"`
}

type orderRef struct {
	OrdID string `json:"ordId"`
}

type orderDetailData struct {
	OrdID   string `json:"ordId"`
	State   string `json:"state"` // "live" / "partially_filled" / "filled" / "canceled" / "rejected"
	AccFill string `json:"accFillSz"`
}

type positionData struct {
	InstID  string `json:"instId"`
	Pos     string `json:"pos"` // signed
	AvgPx   string `json:"avgPx"`
	RealPnL string `json:"realizedPnl"`
}

type balanceData struct {
	Ccy      string `json:"ccy"`
	AvailBal string `json:"availBal"`
}

// wsRequest is the client-to-venue frame: login and channel subscriptions.
type wsRequest struct {
	Op   string `json:"op"` // "login" / "subscribe"
	Args []any  `json:"args"`
}

type wsLoginArg struct {
	APIKey     string `json:"apiKey"`
	Passphrase string `json:"passphrase"`
	Timestamp  string `json:"timestamp"`
	Sign       string `json:"sign"`
}

type wsSubscribeArg struct {
	Channel string `json:"channel"`
}

// wsEvent is the venue-to-client frame. Control frames carry Event;
// data frames carry Arg.Channel and Data.
type wsEvent struct {
	Event string `json:"event"` // "login" / "subscribe" / "error"
	Code  string `json:"code"`
	Msg   string `json:"msg"`
	Arg   struct {
		Channel string `json:"channel"`
	} `json:"arg"`
	Data json.RawMessage `json:"data"`
}

// fillEvent is one execution report on the fills channel.
type fillEvent struct {
	TradeID  string `json:"tradeId"`
	OrdID    string `json:"ordId"`
	InstID   string `json:"instId"`
	FillSz   string `json:"fillSz"`
	FillPx   string `json:"fillPx"`
	Fee      string `json:"fee"` // negative = charged
	FeeCcy   string `json:"feeCcy"`
	ExecType string `json:"execType"` // "M" maker / "T" taker
	Ts       string `json:"ts"`       // ms
}
