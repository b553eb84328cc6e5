// Package broker defines the capability contract every venue adapter
// implements. Venue quirks (push vs. poll vs. synchronous fills, signing
// schemes, framing) stay inside the implementations; no venue-specific
// method leaks into callers.
package broker

import (
	"context"

	"autotrader/internal/domain"
)

// Adapter is the fixed capability set for one venue.
//
// Connect and Disconnect are idempotent: connecting an already-connected
// adapter is a no-op, not an error. CancelOrder of an order the venue
// reports as already terminal returns domain.ErrOrderNotFound, which
// callers treat as a no-op success. SubscribeFills must deliver each venue
// fill identifier exactly once; the adapter de-duplicates retransmitted
// push events itself.
type Adapter interface {
	Name() string

	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool

	// SubmitOrder sends the order to the venue and returns it updated
	// with the venue-assigned identifier and StatusSubmitted. Fails with
	// domain.ErrVenueRejected (not retryable) or
	// domain.ErrVenueUnavailable (retryable).
	SubmitOrder(ctx context.Context, order domain.Order) (domain.Order, error)

	CancelOrder(ctx context.Context, venueOrderID string) error

	OrderStatus(ctx context.Context, venueOrderID string) (domain.OrderStatus, error)

	Positions(ctx context.Context) ([]domain.Position, error)

	// Balance returns the available balance for a currency, fixed-point:
	// micros for quote currencies, sats for base assets.
	Balance(ctx context.Context, currency string) (int64, error)

	// SubscribeFills registers the fill callback. Must be called before
	// Connect. Only one subscriber is supported.
	SubscribeFills(h domain.FillHandler)
}
