// Package oms owns the authoritative execution state: orders, fills and
// positions. All mutation funnels through it; adapters and the engine hold
// no order state of their own.
package oms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"autotrader/internal/broker"
	"autotrader/internal/domain"
	"autotrader/internal/resiliency"
	"autotrader/pkg/quant"
	"autotrader/pkg/safe"
)

// FillCallback receives one notification per accepted fill, after state
// has been updated.
type FillCallback func(domain.FillNotification)

// OMS is the order management system. The mutex is never held across an
// adapter call: venue round-trips happen between state transitions, and
// fills arriving for an order still in flight are stashed until the
// submit ack lands.
type OMS struct {
	res *resiliency.Manager

	mu           sync.RWMutex
	adapters     map[string]broker.Adapter
	orders       map[string]*domain.Order
	fills        map[string][]domain.Fill // engine order id -> fills
	positions    map[string]*domain.Position
	pendingFills map[string][]domain.Fill // fills seen before the submit ack
	fees         map[string]int64         // currency -> cumulative fee micros/sats

	fillCb FillCallback
	nextID atomic.Int64
}

// New creates an OMS backed by the given resiliency manager.
func New(res *resiliency.Manager) *OMS {
	return &OMS{
		res:          res,
		adapters:     make(map[string]broker.Adapter),
		orders:       make(map[string]*domain.Order),
		fills:        make(map[string][]domain.Fill),
		positions:    make(map[string]*domain.Position),
		pendingFills: make(map[string][]domain.Fill),
		fees:         make(map[string]int64),
	}
}

// RegisterAdapter wires an adapter's fill stream into the OMS. Must be
// called before the adapter connects.
func (o *OMS) RegisterAdapter(a broker.Adapter) {
	o.mu.Lock()
	o.adapters[a.Name()] = a
	o.mu.Unlock()

	a.SubscribeFills(func(f domain.Fill) {
		if err := o.ApplyFill(f); err != nil {
			slog.Error("Fill application failed",
				slog.String("venue", a.Name()),
				slog.String("fill_id", f.ID),
				slog.String("order_id", f.OrderID),
				slog.Any("error", err))
		}
	})
}

// SetFillCallback registers the strategy-facing fill notification sink.
func (o *OMS) SetFillCallback(cb FillCallback) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fillCb = cb
}

// SubmitOrder records the order, routes it to the venue through the
// resiliency layer and advances it to SUBMITTED on acknowledgement.
// Any submission failure leaves the order REJECTED.
func (o *OMS) SubmitOrder(ctx context.Context, venue string, order domain.Order) (domain.Order, error) {
	o.mu.Lock()
	adapter, ok := o.adapters[venue]
	if !ok {
		o.mu.Unlock()
		return order, fmt.Errorf("oms: no adapter registered for venue %q", venue)
	}

	if order.ID == "" {
		order.ID = fmt.Sprintf("ORD-%d", o.nextID.Add(1))
	}
	order.Venue = venue
	order.Status = domain.StatusPendingSubmit
	order.CreatedUnixM = time.Now().UnixMicro()

	stored := order
	o.orders[order.ID] = &stored
	o.mu.Unlock()

	var acked domain.Order
	err := o.res.Execute(ctx, venue, "submit_order", order, func(ctx context.Context) error {
		var submitErr error
		acked, submitErr = adapter.SubmitOrder(ctx, order)
		return submitErr
	})

	o.mu.Lock()
	live := o.orders[order.ID]
	if err != nil {
		// Rejected, circuit open or dead-lettered: terminal either way.
		// The order may already be terminal if a cancel landed during the
		// round-trip; terminal states are never overwritten.
		if live.Status.CanTransitionTo(domain.StatusRejected) {
			live.Status = domain.StatusRejected
		}
		discarded := o.pendingFills[order.ID]
		delete(o.pendingFills, order.ID)
		result := *live
		o.mu.Unlock()
		o.logDiscardedFills(order.ID, discarded, "submission failed")
		slog.Warn("Order submission failed",
			slog.String("order_id", order.ID),
			slog.String("venue", venue),
			slog.Any("error", err))
		return result, err
	}

	live.VenueOrderID = acked.VenueOrderID
	if !live.Status.CanTransitionTo(domain.StatusSubmitted) {
		// A cancel won the race while the submit was in flight: the local
		// record is terminal but the venue now holds a live order. Unwind
		// it with a best-effort venue cancel; the local state stands.
		discarded := o.pendingFills[order.ID]
		delete(o.pendingFills, order.ID)
		result := *live
		o.mu.Unlock()
		o.logDiscardedFills(order.ID, discarded, "order terminal before ack")
		slog.Warn("Submit acked after order went terminal, canceling at venue",
			slog.String("order_id", order.ID),
			slog.String("venue_order_id", acked.VenueOrderID),
			slog.String("status", string(result.Status)))
		if cerr := adapter.CancelOrder(ctx, acked.VenueOrderID); cerr != nil && !errors.Is(cerr, domain.ErrOrderNotFound) {
			slog.Error("Venue cancel of terminal order failed",
				slog.String("order_id", order.ID),
				slog.String("venue_order_id", acked.VenueOrderID),
				slog.Any("error", cerr))
		}
		return result, nil
	}
	live.Status = domain.StatusSubmitted
	live.SubmittedUnixM = time.Now().UnixMicro()
	stashed := o.pendingFills[order.ID]
	delete(o.pendingFills, order.ID)
	o.mu.Unlock()

	slog.Info("Order submitted",
		slog.String("order_id", order.ID),
		slog.String("venue_order_id", acked.VenueOrderID),
		slog.String("venue", venue),
		slog.String("symbol", order.Symbol),
		slog.String("side", string(order.Side)),
		slog.Int64("qty", int64(order.QtySats)))

	// Synchronous venues deliver fills before the submit call returns;
	// those were stashed and are replayed now that the order is live.
	for _, f := range stashed {
		if ferr := o.ApplyFill(f); ferr != nil {
			slog.Error("Stashed fill application failed",
				slog.String("order_id", order.ID),
				slog.String("fill_id", f.ID),
				slog.Any("error", ferr))
		}
	}

	o.mu.RLock()
	result := *o.orders[order.ID]
	o.mu.RUnlock()
	return result, nil
}

// logDiscardedFills records every stashed fill dropped alongside a dead
// submission. Discarding execution evidence is an integrity anomaly and is
// never silent.
func (o *OMS) logDiscardedFills(orderID string, fills []domain.Fill, reason string) {
	for _, f := range fills {
		slog.Error("Discarding stashed fill",
			slog.String("order_id", orderID),
			slog.String("fill_id", f.ID),
			slog.Int64("qty", int64(f.QtySats)),
			slog.Int64("price", int64(f.PriceMicros)),
			slog.String("reason", reason))
	}
}

// ApplyFill folds one execution into order, position and fee state and
// notifies the fill callback. Fills referencing unknown orders or
// exceeding the order quantity are rejected as anomalies; state is left
// untouched.
func (o *OMS) ApplyFill(f domain.Fill) error {
	o.mu.Lock()

	order, ok := o.orders[f.OrderID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("oms: fill %s: %w", f.ID, domain.ErrUnknownOrder)
	}

	// The submit round-trip is still in flight; hold the fill until the
	// ack transitions the order to SUBMITTED.
	if order.Status == domain.StatusPendingSubmit {
		o.pendingFills[f.OrderID] = append(o.pendingFills[f.OrderID], f)
		o.mu.Unlock()
		return nil
	}

	if order.Status.IsTerminal() && order.Status != domain.StatusFilled {
		o.mu.Unlock()
		return fmt.Errorf("oms: fill %s for %s order: %w", f.ID, order.Status, domain.ErrUnknownOrder)
	}

	newFilled := safe.SafeAdd(int64(order.FilledQtySats), int64(f.QtySats))
	if newFilled > int64(order.QtySats) {
		o.mu.Unlock()
		return fmt.Errorf("oms: fill %s: %d + %d > %d: %w",
			f.ID, order.FilledQtySats, f.QtySats, order.QtySats, domain.ErrOverFill)
	}

	order.FilledQtySats = quant.QtySats(newFilled)
	if order.FirstFillUnixM == 0 {
		order.FirstFillUnixM = f.TsUnixM
		if order.FirstFillUnixM == 0 {
			order.FirstFillUnixM = time.Now().UnixMicro()
		}
	}
	next := domain.StatusPartiallyFilled
	if order.FilledQtySats == order.QtySats {
		next = domain.StatusFilled
	}
	if order.Status.CanTransitionTo(next) {
		order.Status = next
	}

	o.fills[f.OrderID] = append(o.fills[f.OrderID], f)
	o.fees[f.FeeCurrency] = safe.SafeAdd(o.fees[f.FeeCurrency], f.FeeMicros)

	pos, ok := o.positions[order.Symbol]
	if !ok {
		pos = &domain.Position{Symbol: order.Symbol}
		o.positions[order.Symbol] = pos
	}
	pos.ApplyFill(order.Side, f.QtySats, f.PriceMicros)

	cb := o.fillCb
	notification := domain.FillNotification{
		OrderID:     order.ID,
		Symbol:      order.Symbol,
		QtySats:     f.QtySats,
		PriceMicros: f.PriceMicros,
		FeeMicros:   f.FeeMicros,
		TsUnixM:     f.TsUnixM,
	}
	o.mu.Unlock()

	slog.Info("Fill applied",
		slog.String("order_id", notification.OrderID),
		slog.String("fill_id", f.ID),
		slog.Int64("qty", int64(f.QtySats)),
		slog.Int64("price", int64(f.PriceMicros)))

	if cb != nil {
		cb(notification)
	}
	return nil
}

// CancelOrder cancels by engine order id. Canceling a terminal order is a
// no-op success, as is a venue-side "order not found" (the order finished
// before the cancel arrived).
func (o *OMS) CancelOrder(ctx context.Context, orderID string) error {
	o.mu.Lock()
	order, ok := o.orders[orderID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("oms: cancel %s: %w", orderID, domain.ErrUnknownOrder)
	}
	if order.Status.IsTerminal() {
		o.mu.Unlock()
		return nil
	}
	if order.Status == domain.StatusPendingSubmit {
		// Never reached the venue; cancel locally.
		order.Status = domain.StatusCanceled
		o.mu.Unlock()
		return nil
	}
	adapter := o.adapters[order.Venue]
	venueID := order.VenueOrderID
	venue := order.Venue
	o.mu.Unlock()

	err := o.res.Execute(ctx, venue, "cancel_order", orderID, func(ctx context.Context) error {
		cancelErr := adapter.CancelOrder(ctx, venueID)
		if errors.Is(cancelErr, domain.ErrOrderNotFound) {
			// Already terminal at the venue.
			return nil
		}
		return cancelErr
	})
	if err != nil {
		return err
	}

	o.mu.Lock()
	if order.Status.CanTransitionTo(domain.StatusCanceled) {
		order.Status = domain.StatusCanceled
	}
	o.mu.Unlock()

	slog.Info("Order canceled", slog.String("order_id", orderID), slog.String("venue", venue))
	return nil
}

// CancelAllOpen best-effort cancels every open order. Used by the kill
// switch; failures are logged and do not stop the pass.
func (o *OMS) CancelAllOpen(ctx context.Context) int {
	o.mu.RLock()
	ids := make([]string, 0)
	for id, ord := range o.orders {
		if ord.IsOpen() {
			ids = append(ids, id)
		}
	}
	o.mu.RUnlock()

	canceled := 0
	for _, id := range ids {
		if err := o.CancelOrder(ctx, id); err != nil {
			slog.Warn("Cancel-all: order cancel failed",
				slog.String("order_id", id), slog.Any("error", err))
			continue
		}
		canceled++
	}
	return canceled
}

// Balance passes through to the venue adapter.
func (o *OMS) Balance(ctx context.Context, venue, currency string) (int64, error) {
	o.mu.RLock()
	adapter, ok := o.adapters[venue]
	o.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("oms: no adapter registered for venue %q", venue)
	}
	return adapter.Balance(ctx, currency)
}

// Order returns a copy of one order.
func (o *OMS) Order(orderID string) (domain.Order, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	order, ok := o.orders[orderID]
	if !ok {
		return domain.Order{}, fmt.Errorf("oms: %s: %w", orderID, domain.ErrUnknownOrder)
	}
	return *order, nil
}

// OpenOrders returns copies of all non-terminal orders.
func (o *OMS) OpenOrders() []domain.Order {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]domain.Order, 0)
	for _, ord := range o.orders {
		if ord.IsOpen() {
			out = append(out, *ord)
		}
	}
	return out
}

// Fills returns the fills recorded for one order.
func (o *OMS) Fills(orderID string) []domain.Fill {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]domain.Fill(nil), o.fills[orderID]...)
}

// Position returns the net position for a symbol, zero-valued if flat
// and never touched.
func (o *OMS) Position(symbol string) domain.Position {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if p, ok := o.positions[symbol]; ok {
		return *p
	}
	return domain.Position{Symbol: symbol}
}

// Positions returns copies of all touched positions.
func (o *OMS) Positions() []domain.Position {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]domain.Position, 0, len(o.positions))
	for _, p := range o.positions {
		out = append(out, *p)
	}
	return out
}

// SweepStale flags open orders older than maxAge. Flagged orders are
// reported, never auto-canceled; acting on them is an operator decision.
func (o *OMS) SweepStale(maxAge time.Duration) []string {
	cutoff := time.Now().Add(-maxAge).UnixMicro()

	o.mu.Lock()
	defer o.mu.Unlock()

	var flagged []string
	for id, ord := range o.orders {
		if ord.IsOpen() && !ord.Stale && ord.CreatedUnixM > 0 && ord.CreatedUnixM < cutoff {
			ord.Stale = true
			flagged = append(flagged, id)
			slog.Warn("Stale order flagged",
				slog.String("order_id", id),
				slog.String("status", string(ord.Status)),
				slog.Int64("age_sec", (time.Now().UnixMicro()-ord.CreatedUnixM)/1_000_000))
		}
	}
	return flagged
}
