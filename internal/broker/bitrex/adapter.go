// Package bitrex implements the Bitrex venue over its V1 REST API.
// Bitrex has no push channel for executions, so fills are derived by
// polling order detail and diffing the cumulative filled quantity.
package bitrex

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"autotrader/internal/broker"
	"autotrader/internal/domain"
	"autotrader/pkg/quant"
)

const venueName = "bitrex"

// trackedOrder is the poller's per-order cursor.
type trackedOrder struct {
	engineOrderID string
	prevFilled    quant.QtySats
	prevFee       int64
}

// Adapter implements broker.Adapter for Bitrex.
type Adapter struct {
	client       *Client
	pollInterval time.Duration

	mu        sync.Mutex
	connected bool
	handler   domain.FillHandler
	tracked   map[string]*trackedOrder // venue order id -> cursor

	cancel context.CancelFunc
	donech chan struct{}
}

var _ broker.Adapter = (*Adapter)(nil)

// NewAdapter creates a Bitrex adapter. pollInterval bounds fill latency.
func NewAdapter(restURL, accessKey, secretKey string, pollInterval time.Duration) *Adapter {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Adapter{
		client:       NewClient(restURL, accessKey, secretKey),
		pollInterval: pollInterval,
		tracked:      make(map[string]*trackedOrder),
	}
}

func (a *Adapter) Name() string { return venueName }

// Connect verifies connectivity and starts the fill poller. Idempotent.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	if a.connected {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	if err := a.client.Ping(ctx); err != nil {
		return fmt.Errorf("bitrex connect: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.connected {
		return nil
	}
	pollCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.donech = make(chan struct{})
	a.connected = true
	go a.pollLoop(pollCtx)

	slog.Info("Bitrex connected", slog.Duration("poll_interval", a.pollInterval))
	return nil
}

func (a *Adapter) Disconnect() error {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return nil
	}
	a.connected = false
	cancel, done := a.cancel, a.donech
	a.mu.Unlock()

	cancel()
	<-done
	a.client.Close()
	slog.Info("Bitrex disconnected")
	return nil
}

func (a *Adapter) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

func (a *Adapter) SubscribeFills(h domain.FillHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = h
}

// SubmitOrder places the order and registers it with the fill poller.
func (a *Adapter) SubmitOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	if !a.IsConnected() {
		return order, fmt.Errorf("bitrex: %w", domain.ErrNotConnected)
	}

	venueID, err := a.client.PlaceOrder(ctx, order)
	if err != nil {
		return order, err
	}

	a.mu.Lock()
	a.tracked[venueID] = &trackedOrder{engineOrderID: order.ID}
	a.mu.Unlock()

	order.VenueOrderID = venueID
	order.Status = domain.StatusSubmitted
	return order, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, venueOrderID string) error {
	if !a.IsConnected() {
		return fmt.Errorf("bitrex: %w", domain.ErrNotConnected)
	}
	return a.client.CancelOrder(ctx, venueOrderID)
}

func (a *Adapter) OrderStatus(ctx context.Context, venueOrderID string) (domain.OrderStatus, error) {
	snap, err := a.client.GetOrder(ctx, venueOrderID)
	if err != nil {
		return "", err
	}
	return mapStatus(snap.Status), nil
}

func (a *Adapter) Positions(ctx context.Context) ([]domain.Position, error) {
	return a.client.GetPositions(ctx)
}

func (a *Adapter) Balance(ctx context.Context, currency string) (int64, error) {
	return a.client.GetBalance(ctx, currency)
}

func (a *Adapter) pollLoop(ctx context.Context) {
	defer close(a.donech)

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.pollOnce(ctx)
		}
	}
}

// pollOnce polls every live tracked order and synthesizes fill events from
// the change in cumulative filled quantity since the previous poll.
func (a *Adapter) pollOnce(ctx context.Context) {
	a.mu.Lock()
	ids := make([]string, 0, len(a.tracked))
	for id := range a.tracked {
		ids = append(ids, id)
	}
	handler := a.handler
	a.mu.Unlock()

	for _, venueID := range ids {
		snap, err := a.client.GetOrder(ctx, venueID)
		if err != nil {
			slog.Warn("Bitrex order poll failed",
				slog.String("venue_order_id", venueID),
				slog.Any("error", err))
			continue
		}
		a.applySnapshot(venueID, snap, handler)
	}
}

// applySnapshot diffs one venue snapshot against the tracked cursor and
// emits at most one fill for the delta. Cumulative quantities make the
// diff idempotent: re-reading the same snapshot produces no event.
func (a *Adapter) applySnapshot(venueID string, snap orderSnapshot, handler domain.FillHandler) {
	a.mu.Lock()
	t, ok := a.tracked[venueID]
	if !ok {
		a.mu.Unlock()
		return
	}

	cumFilled := quant.ToQtySatsStr(snap.FilledQty)
	cumFee := int64(quant.ToPriceMicrosStr(snap.FeeTotal))
	deltaQty := cumFilled - t.prevFilled
	deltaFee := cumFee - t.prevFee

	status := mapStatus(snap.Status)
	if status == domain.StatusFilled || status == domain.StatusCanceled || status == domain.StatusRejected {
		// Terminal: no further executions can arrive. Drop the cursor so
		// the tracked map does not grow for the life of the process.
		delete(a.tracked, venueID)
	}

	if deltaQty <= 0 {
		a.mu.Unlock()
		return
	}
	t.prevFilled = cumFilled
	t.prevFee = cumFee
	engineID := t.engineOrderID
	a.mu.Unlock()

	price := quant.ToPriceMicrosStr(snap.LastPrice)
	if price == 0 {
		price = quant.ToPriceMicrosStr(snap.AvgPrice)
	}
	if deltaFee < 0 {
		deltaFee = 0
	}

	if handler != nil {
		handler(domain.Fill{
			// Cumulative quantity keys the fill id so replayed snapshots
			// cannot mint a second id for the same execution.
			ID:          fmt.Sprintf("%s-f%d", venueID, int64(cumFilled)),
			OrderID:     engineID,
			QtySats:     deltaQty,
			PriceMicros: price,
			FeeMicros:   deltaFee,
			FeeCurrency: snap.FeeCcy,
			Liquidity:   domain.LiquidityTaker,
			TsUnixM:     time.Now().UnixMicro(),
		})
	}

	slog.Debug("Bitrex fill detected",
		slog.String("venue_order_id", venueID),
		slog.Int64("delta_qty", int64(deltaQty)),
		slog.Int64("price", int64(price)))
}
