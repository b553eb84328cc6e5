// Package okanax implements the Okanax venue: orders over the V2 REST API
// with execution reports pushed on a private WebSocket channel.
package okanax

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"autotrader/internal/broker"
	"autotrader/internal/domain"
	"autotrader/internal/infra"
)

const venueName = "okanax"

// Adapter implements broker.Adapter for Okanax.
type Adapter struct {
	client *Client
	signer *Signer
	wsURL  string

	mu        sync.Mutex
	connected bool
	handler   domain.FillHandler
	orderIDs  map[string]string // venue order id -> engine order id

	worker *wsWorker
	ws     *infra.BaseWSWorker
}

var _ broker.Adapter = (*Adapter)(nil)

func NewAdapter(restURL, wsURL, apiKey, secretKey, passphrase string) *Adapter {
	signer := NewSigner(apiKey, secretKey, passphrase)
	return &Adapter{
		client:   NewClient(restURL, signer),
		signer:   signer,
		wsURL:    wsURL,
		orderIDs: make(map[string]string),
	}
}

func (a *Adapter) Name() string { return venueName }

// Connect verifies REST connectivity and starts the fill stream. Idempotent.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	if a.connected {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	if err := a.client.Ping(ctx); err != nil {
		return fmt.Errorf("okanax connect: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.connected {
		return nil
	}

	a.worker = newWSWorker(a.wsURL, a.signer, a.resolveOrder, a.emitFill)
	a.ws = infra.NewBaseWSWorker(a.worker)
	a.worker.write = a.ws.Write
	a.ws.Start(context.Background())

	a.connected = true
	slog.Info("Okanax connected", slog.String("ws_url", a.wsURL))
	return nil
}

func (a *Adapter) Disconnect() error {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return nil
	}
	a.connected = false
	worker := a.ws
	a.mu.Unlock()

	if worker != nil {
		worker.Stop()
	}
	a.signer.Wipe()
	slog.Info("Okanax disconnected")
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

// SubmitOrder places the order and registers the venue id so push fills
// can be attributed before the submit response is processed upstream.
func (a *Adapter) SubmitOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	if !a.IsConnected() {
		return order, fmt.Errorf("okanax: %w", domain.ErrNotConnected)
	}

	venueID, err := a.client.PlaceOrder(ctx, order)
	if err != nil {
		return order, err
	}

	a.mu.Lock()
	a.orderIDs[venueID] = order.ID
	a.mu.Unlock()

	order.VenueOrderID = venueID
	order.Status = domain.StatusSubmitted
	return order, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, venueOrderID string) error {
	if !a.IsConnected() {
		return fmt.Errorf("okanax: %w", domain.ErrNotConnected)
	}
	return a.client.CancelOrder(ctx, venueOrderID)
}

func (a *Adapter) OrderStatus(ctx context.Context, venueOrderID string) (domain.OrderStatus, error) {
	detail, err := a.client.GetOrder(ctx, venueOrderID)
	if err != nil {
		return "", err
	}
	return mapState(detail.State), nil
}

func (a *Adapter) Positions(ctx context.Context) ([]domain.Position, error) {
	return a.client.GetPositions(ctx)
}

func (a *Adapter) Balance(ctx context.Context, currency string) (int64, error) {
	return a.client.GetBalance(ctx, currency)
}

func (a *Adapter) resolveOrder(venueOrderID string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := a.orderIDs[venueOrderID]
	return id, ok
}

func (a *Adapter) emitFill(f domain.Fill) {
	a.mu.Lock()
	handler := a.handler
	a.mu.Unlock()
	if handler != nil {
		handler(f)
	}
}
