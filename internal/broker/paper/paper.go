// Package paper implements a synchronous simulator venue: the submit call
// itself produces the fill, which is synthesized inline before SubmitOrder
// returns. Used for pre-production validation and as the reference for
// synchronous-venue semantics.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"autotrader/internal/domain"
	"autotrader/pkg/quant"
	"autotrader/pkg/safe"
)

const venueName = "paper"

// Adapter simulates order execution against virtual balances.
type Adapter struct {
	mu        sync.Mutex
	connected bool

	orders   map[string]*domain.Order // venue order id -> order copy
	balances map[string]int64         // currency -> fixed-point available
	marks    map[string]quant.PriceMicros

	handler domain.FillHandler
	nextID  int64

	// FillRatioBps controls partial fills for tests: 10000 = full fill.
	FillRatioBps int64
	// FeeBps is charged on notional, taker, in quote micros.
	FeeBps int64
}

// New creates a paper adapter with an initial quote balance (micros).
func New(initialQuoteMicros int64, marks map[string]quant.PriceMicros) *Adapter {
	m := make(map[string]quant.PriceMicros, len(marks))
	for k, v := range marks {
		m[k] = v
	}
	return &Adapter{
		orders:       make(map[string]*domain.Order),
		balances:     map[string]int64{"USDT": initialQuoteMicros},
		marks:        m,
		FillRatioBps: 10000,
		FeeBps:       10,
	}
}

func (a *Adapter) Name() string { return venueName }

// Connect is idempotent: connecting twice yields one active session.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.connected {
		return nil
	}
	a.connected = true
	slog.Info("Paper venue connected")
	return nil
}

func (a *Adapter) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = false
	return nil
}

func (a *Adapter) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

// SubscribeFills registers the fill callback. Must be set before submitting.
func (a *Adapter) SubscribeFills(h domain.FillHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = h
}

// UpdateMark sets the current mark price used for market orders.
func (a *Adapter) UpdateMark(symbol string, price quant.PriceMicros) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.marks[symbol] = price
}

// SubmitOrder executes immediately against the virtual balance and emits
// the fill inline before returning.
func (a *Adapter) SubmitOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	a.mu.Lock()

	if !a.connected {
		a.mu.Unlock()
		return order, fmt.Errorf("paper: %w", domain.ErrNotConnected)
	}

	var execPrice quant.PriceMicros
	if order.Type == domain.OrderTypeMarket {
		price, ok := a.marks[order.Symbol]
		if !ok {
			a.mu.Unlock()
			return order, fmt.Errorf("paper: no mark price for %s: %w", order.Symbol, domain.ErrVenueRejected)
		}
		execPrice = price
	} else {
		if order.PriceMicros <= 0 {
			a.mu.Unlock()
			return order, fmt.Errorf("paper: limit order without price: %w", domain.ErrVenueRejected)
		}
		execPrice = order.PriceMicros
	}

	if order.QtySats <= 0 {
		a.mu.Unlock()
		return order, fmt.Errorf("paper: non-positive quantity: %w", domain.ErrVenueRejected)
	}

	a.nextID++
	venueID := fmt.Sprintf("PAPER-%d", a.nextID)

	fillQty := quant.QtySats(safe.MulDiv(int64(order.QtySats), a.FillRatioBps, 10000))
	notional := safe.MulDiv(int64(execPrice), int64(fillQty), quant.QtyScale)
	fee := safe.MulDiv(notional, a.FeeBps, 10000)

	if order.Side == domain.SideBuy {
		required := safe.SafeAdd(notional, fee)
		if a.balances["USDT"] < required {
			a.mu.Unlock()
			return order, fmt.Errorf("paper: insufficient USDT: need %d, have %d: %w",
				required, a.balances["USDT"], domain.ErrVenueRejected)
		}
		a.balances["USDT"] = safe.SafeSub(a.balances["USDT"], required)
	} else {
		a.balances["USDT"] = safe.SafeAdd(a.balances["USDT"], safe.SafeSub(notional, fee))
	}

	submitted := order
	submitted.VenueOrderID = venueID
	submitted.Status = domain.StatusSubmitted

	stored := submitted
	if fillQty >= stored.QtySats {
		stored.Status = domain.StatusFilled
	} else if fillQty > 0 {
		stored.Status = domain.StatusPartiallyFilled
	}
	stored.FilledQtySats = fillQty
	a.orders[venueID] = &stored

	handler := a.handler
	a.mu.Unlock()

	// Synchronous venue: the fill event is delivered before submit returns.
	if handler != nil && fillQty > 0 {
		handler(domain.Fill{
			ID:          venueID + "-1",
			OrderID:     order.ID,
			QtySats:     fillQty,
			PriceMicros: execPrice,
			FeeMicros:   fee,
			FeeCurrency: "USDT",
			Liquidity:   domain.LiquidityTaker,
			TsUnixM:     time.Now().UnixMicro(),
		})
	}

	slog.Info("Paper order executed",
		slog.String("id", order.ID),
		slog.String("symbol", order.Symbol),
		slog.String("side", string(order.Side)),
		slog.Int64("price", int64(execPrice)),
		slog.Int64("qty", int64(fillQty)))

	return submitted, nil
}

// CancelOrder cancels an unfilled order. Cancelling a terminal order
// reports ErrOrderNotFound, which callers treat as a no-op success.
func (a *Adapter) CancelOrder(ctx context.Context, venueOrderID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.connected {
		return fmt.Errorf("paper: %w", domain.ErrNotConnected)
	}

	order, ok := a.orders[venueOrderID]
	if !ok {
		return fmt.Errorf("paper: %s: %w", venueOrderID, domain.ErrOrderNotFound)
	}
	if order.Status.IsTerminal() {
		return fmt.Errorf("paper: %s already %s: %w", venueOrderID, order.Status, domain.ErrOrderNotFound)
	}

	order.Status = domain.StatusCanceled
	slog.Info("Paper order canceled", slog.String("venue_order_id", venueOrderID))
	return nil
}

func (a *Adapter) OrderStatus(ctx context.Context, venueOrderID string) (domain.OrderStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	order, ok := a.orders[venueOrderID]
	if !ok {
		return "", fmt.Errorf("paper: %s: %w", venueOrderID, domain.ErrOrderNotFound)
	}
	return order.Status, nil
}

// Positions derives net exposure from executed orders.
func (a *Adapter) Positions(ctx context.Context) ([]domain.Position, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	net := make(map[string]*domain.Position)
	for _, o := range a.orders {
		if o.FilledQtySats == 0 {
			continue
		}
		p, ok := net[o.Symbol]
		if !ok {
			p = &domain.Position{Symbol: o.Symbol}
			net[o.Symbol] = p
		}
		price := o.PriceMicros
		if price == 0 {
			price = a.marks[o.Symbol]
		}
		p.ApplyFill(o.Side, o.FilledQtySats, price)
	}

	out := make([]domain.Position, 0, len(net))
	for _, p := range net {
		out = append(out, *p)
	}
	return out, nil
}

func (a *Adapter) Balance(ctx context.Context, currency string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balances[currency], nil
}
