package domain

import (
	"autotrader/pkg/quant"
)

// Liquidity flag reported by the venue.
type Liquidity string

const (
	LiquidityMaker Liquidity = "MAKER"
	LiquidityTaker Liquidity = "TAKER"
)

// Fill represents a partial or full execution against an Order.
type Fill struct {
	ID          string // venue-assigned fill identifier, unique per venue
	OrderID     string // engine order ID of the parent order
	QtySats     quant.QtySats
	PriceMicros quant.PriceMicros
	FeeMicros   int64
	FeeCurrency string
	Liquidity   Liquidity
	TsUnixM     int64
}

// FillNotification is the outbound record delivered to the strategy
// callback, once per fill.
type FillNotification struct {
	OrderID     string
	Symbol      string
	QtySats     quant.QtySats
	PriceMicros quant.PriceMicros
	FeeMicros   int64
	TsUnixM     int64
}

// FillHandler consumes fill events pushed by an adapter.
type FillHandler func(Fill)
