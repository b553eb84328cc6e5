package domain

import (
	"autotrader/pkg/quant"
)

// Side of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeStop   OrderType = "STOP"
)

// OrderStatus models the order lifecycle:
// PENDING_SUBMIT -> SUBMITTED -> [PARTIALLY_FILLED]* -> FILLED,
// or -> CANCELED (from PENDING_SUBMIT, SUBMITTED or PARTIALLY_FILLED),
// or -> REJECTED (from PENDING_SUBMIT only).
// Terminal states are permanent.
type OrderStatus string

const (
	StatusPendingSubmit   OrderStatus = "PENDING_SUBMIT"
	StatusSubmitted       OrderStatus = "SUBMITTED"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceled        OrderStatus = "CANCELED"
	StatusRejected        OrderStatus = "REJECTED"
)

// IsTerminal reports whether the status accepts no further transitions.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusFilled || s == StatusCanceled || s == StatusRejected
}

// CanTransitionTo validates a lifecycle transition.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case StatusPendingSubmit:
		return next == StatusSubmitted || next == StatusCanceled || next == StatusRejected
	case StatusSubmitted:
		return next == StatusPartiallyFilled || next == StatusFilled || next == StatusCanceled
	case StatusPartiallyFilled:
		return next == StatusPartiallyFilled || next == StatusFilled || next == StatusCanceled
	default:
		return false
	}
}

// Order represents an intent to trade.
// All monetary values are strictly int64.
type Order struct {
	ID            string // engine-assigned, stable across retries
	VenueOrderID  string // empty only while PENDING_SUBMIT
	Venue         string // adapter name the order routes to
	Symbol        string
	Side          Side
	Type          OrderType
	PriceMicros   quant.PriceMicros // limit price, 0 for market orders
	QtySats       quant.QtySats
	FilledQtySats quant.QtySats
	Status        OrderStatus
	Stale         bool // set by the stale-order sweep, never auto-acted upon
	DecisionID    string

	CreatedUnixM   int64
	SubmittedUnixM int64
	FirstFillUnixM int64
}

// IsOpen checks if the order is still active.
func (o *Order) IsOpen() bool {
	return !o.Status.IsTerminal()
}

// RemainingQtySats returns the unfilled quantity.
func (o *Order) RemainingQtySats() quant.QtySats {
	return o.QtySats - o.FilledQtySats
}
