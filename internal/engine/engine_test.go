package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"autotrader/internal/broker"
	"autotrader/internal/domain"
	"autotrader/internal/oms"
	"autotrader/internal/resiliency"
	"autotrader/pkg/quant"
)

type stubSource struct {
	mu        sync.Mutex
	decisions []domain.ExecutionDecision
	polls     atomic.Int64
}

func (s *stubSource) Poll(ctx context.Context) []domain.ExecutionDecision {
	s.polls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.decisions
	s.decisions = nil
	return out
}

type stubPrices map[string]quant.PriceMicros

func (p stubPrices) Mark(symbol string) (quant.PriceMicros, bool) {
	v, ok := p[symbol]
	return v, ok
}

type stubAdapter struct {
	mu           sync.Mutex
	connected    bool
	handler      domain.FillHandler
	submitted    []domain.Order
	disconnects  int
	nextVenueSeq int
}

func (s *stubAdapter) Name() string { return "stub" }
func (s *stubAdapter) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}
func (s *stubAdapter) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.disconnects++
	return nil
}
func (s *stubAdapter) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}
func (s *stubAdapter) SubscribeFills(h domain.FillHandler) { s.handler = h }

func (s *stubAdapter) SubmitOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextVenueSeq++
	order.VenueOrderID = fmt.Sprintf("S-%d", s.nextVenueSeq)
	order.Status = domain.StatusSubmitted
	s.submitted = append(s.submitted, order)
	return order, nil
}

func (s *stubAdapter) CancelOrder(ctx context.Context, venueOrderID string) error { return nil }
func (s *stubAdapter) OrderStatus(ctx context.Context, venueOrderID string) (domain.OrderStatus, error) {
	return domain.StatusSubmitted, nil
}
func (s *stubAdapter) Positions(ctx context.Context) ([]domain.Position, error) { return nil, nil }
func (s *stubAdapter) Balance(ctx context.Context, currency string) (int64, error) {
	return 0, nil
}

func (s *stubAdapter) submittedOrders() []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Order(nil), s.submitted...)
}

func newTestEngine(t *testing.T, source DecisionSource, prices PriceSource) (*Engine, *stubAdapter, *oms.OMS) {
	t.Helper()

	adapter := &stubAdapter{}
	res := resiliency.NewManager(resiliency.ManagerConfig{
		MaxRetries:       1,
		InitialBackoff:   time.Millisecond,
		MaxBackoff:       time.Millisecond,
		FailureThreshold: 100,
		FailureWindow:    time.Minute,
		CircuitTimeout:   time.Second,
	}, nil)
	o := oms.New(res)
	o.RegisterAdapter(adapter)
	adapter.Connect(context.Background())

	e := New(Config{
		TickInterval:  10 * time.Millisecond,
		SweepInterval: time.Hour,
		StaleOrderAge: time.Hour,
		Venue:         "stub",
	}, o, res, source, prices, []broker.Adapter{adapter})
	return e, adapter, o
}

func TestMapDecision(t *testing.T) {
	e, _, _ := newTestEngine(t, &stubSource{}, stubPrices{"BTCUSDT": quant.ToPriceMicros(50000)})

	long := domain.Position{Symbol: "BTCUSDT", QtySats: 2 * quant.QtyScale}
	short := domain.Position{Symbol: "BTCUSDT", QtySats: -3 * quant.QtyScale}
	flat := domain.Position{Symbol: "BTCUSDT"}

	tests := []struct {
		name     string
		decision domain.ExecutionDecision
		pos      domain.Position
		wantOK   bool
		wantSide domain.Side
		wantQty  quant.QtySats
	}{
		{"close flat is a no-trade", domain.ExecutionDecision{Action: domain.ActionClose, Symbol: "BTCUSDT"}, flat, false, "", 0},
		{"close long sells", domain.ExecutionDecision{Action: domain.ActionClose, Symbol: "BTCUSDT"}, long, true, domain.SideSell, 2 * quant.QtyScale},
		{"close short buys", domain.ExecutionDecision{Action: domain.ActionClose, Symbol: "BTCUSDT"}, short, true, domain.SideBuy, 3 * quant.QtyScale},
		{"open long by qty", domain.ExecutionDecision{Action: domain.ActionOpen, Symbol: "BTCUSDT", TargetQtySats: quant.QtyScale}, flat, true, domain.SideBuy, quant.QtyScale},
		{"open short by qty", domain.ExecutionDecision{Action: domain.ActionOpen, Symbol: "BTCUSDT", TargetQtySats: -quant.QtyScale}, flat, true, domain.SideSell, quant.QtyScale},
		// 100k USDT at a 50k mark buys 2.
		{"open by notional", domain.ExecutionDecision{Action: domain.ActionOpen, Symbol: "BTCUSDT", TargetNotionalMicros: 100_000 * quant.PriceScale}, flat, true, domain.SideBuy, 2 * quant.QtyScale},
		{"adjust up", domain.ExecutionDecision{Action: domain.ActionAdjust, Symbol: "BTCUSDT", TargetQtySats: 5 * quant.QtyScale}, long, true, domain.SideBuy, 3 * quant.QtyScale},
		{"adjust down", domain.ExecutionDecision{Action: domain.ActionAdjust, Symbol: "BTCUSDT", TargetQtySats: quant.QtyScale}, long, true, domain.SideSell, quant.QtyScale},
		{"adjust to target already held", domain.ExecutionDecision{Action: domain.ActionAdjust, Symbol: "BTCUSDT", TargetQtySats: 2 * quant.QtyScale}, long, false, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, ok, err := e.mapDecision(tt.decision, tt.pos)
			if err != nil {
				t.Fatalf("mapDecision failed: %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if order.Side != tt.wantSide || order.QtySats != tt.wantQty {
				t.Errorf("order = %s %d, want %s %d", order.Side, order.QtySats, tt.wantSide, tt.wantQty)
			}
			if order.Type != domain.OrderTypeMarket {
				t.Errorf("order type = %s, want MARKET", order.Type)
			}
		})
	}
}

func TestMapDecision_NotionalWithoutMark(t *testing.T) {
	e, _, _ := newTestEngine(t, &stubSource{}, stubPrices{})

	_, _, err := e.mapDecision(domain.ExecutionDecision{
		Action: domain.ActionOpen, Symbol: "ETHUSDT", TargetNotionalMicros: 1000,
	}, domain.Position{})
	if err == nil {
		t.Fatal("notional sizing without a mark price must fail")
	}
}

func TestTick_DecisionErrorIsIsolated(t *testing.T) {
	source := &stubSource{decisions: []domain.ExecutionDecision{
		{ID: "d-1", Action: domain.ActionOpen, Symbol: "NOMARK", TargetNotionalMicros: 1000},
		{ID: "d-2", Action: domain.ActionOpen, Symbol: "BTCUSDT", TargetQtySats: quant.QtyScale},
	}}
	e, adapter, _ := newTestEngine(t, source, stubPrices{"BTCUSDT": quant.ToPriceMicros(50000)})

	e.tick(context.Background())

	submitted := adapter.submittedOrders()
	if len(submitted) != 1 {
		t.Fatalf("expected the healthy decision to execute, got %d orders", len(submitted))
	}
	if submitted[0].DecisionID != "d-2" {
		t.Errorf("executed decision = %s, want d-2", submitted[0].DecisionID)
	}
}

func TestRun_TicksAtCadence(t *testing.T) {
	source := &stubSource{}
	e, _, _ := newTestEngine(t, source, stubPrices{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	time.Sleep(55 * time.Millisecond)
	cancel()
	<-done

	// 10ms interval over ~55ms: at least 3 polls even under scheduler noise.
	if polls := source.polls.Load(); polls < 3 {
		t.Errorf("polls = %d, want >= 3", polls)
	}
}

func TestKillSwitch(t *testing.T) {
	source := &stubSource{decisions: []domain.ExecutionDecision{
		{ID: "d-1", Action: domain.ActionOpen, Symbol: "BTCUSDT", TargetQtySats: quant.QtyScale},
	}}
	e, adapter, o := newTestEngine(t, source, stubPrices{"BTCUSDT": quant.ToPriceMicros(50000)})

	e.tick(context.Background())
	if len(o.OpenOrders()) != 1 {
		t.Fatalf("expected 1 open order before kill")
	}

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()
	time.Sleep(20 * time.Millisecond)

	e.Kill(context.Background())
	<-done

	if !e.Killed() {
		t.Error("engine must report killed")
	}
	if len(o.OpenOrders()) != 0 {
		t.Errorf("open orders after kill: %d", len(o.OpenOrders()))
	}
	if adapter.IsConnected() {
		t.Error("adapter must be disconnected")
	}

	// Idempotent: a second activation changes nothing.
	e.Kill(context.Background())
	if adapter.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", adapter.disconnects)
	}
}

func TestStatus(t *testing.T) {
	e, _, _ := newTestEngine(t, &stubSource{}, stubPrices{})

	s := e.Status()
	if s.Running {
		t.Error("engine not started yet")
	}
	if len(s.Venues) != 1 || s.Venues[0].Name != "stub" || !s.Venues[0].Connected {
		t.Errorf("venues = %+v", s.Venues)
	}
	if s.DLQSize != 0 {
		t.Errorf("dlq size = %d", s.DLQSize)
	}
}
