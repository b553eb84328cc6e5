package oms

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"autotrader/internal/domain"
	"autotrader/internal/resiliency"
	"autotrader/pkg/quant"
)

// fakeAdapter is a scriptable venue for OMS tests.
type fakeAdapter struct {
	name       string
	handler    domain.FillHandler
	submitErr  error
	cancelErr  error
	submitCnt  int
	cancelCnt  int
	inlineFill *domain.Fill // delivered during SubmitOrder, before it returns

	errAfterFill  error         // returned after the inline fill was emitted
	submitEntered chan struct{} // signaled when SubmitOrder begins
	blockSubmit   chan struct{} // SubmitOrder waits here until closed
}

func (f *fakeAdapter) Name() string                      { return f.name }
func (f *fakeAdapter) Connect(ctx context.Context) error { return nil }
func (f *fakeAdapter) Disconnect() error                 { return nil }
func (f *fakeAdapter) IsConnected() bool                 { return true }

func (f *fakeAdapter) SubscribeFills(h domain.FillHandler) { f.handler = h }

func (f *fakeAdapter) SubmitOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	f.submitCnt++
	if f.submitEntered != nil {
		f.submitEntered <- struct{}{}
	}
	if f.blockSubmit != nil {
		<-f.blockSubmit
	}
	if f.submitErr != nil {
		return order, f.submitErr
	}
	order.VenueOrderID = fmt.Sprintf("V-%d", f.submitCnt)
	order.Status = domain.StatusSubmitted

	if f.inlineFill != nil {
		fill := *f.inlineFill
		fill.OrderID = order.ID
		f.handler(fill)
	}
	if f.errAfterFill != nil {
		return order, f.errAfterFill
	}
	return order, nil
}

func (f *fakeAdapter) CancelOrder(ctx context.Context, venueOrderID string) error {
	f.cancelCnt++
	return f.cancelErr
}

func (f *fakeAdapter) OrderStatus(ctx context.Context, venueOrderID string) (domain.OrderStatus, error) {
	return domain.StatusSubmitted, nil
}

func (f *fakeAdapter) Positions(ctx context.Context) ([]domain.Position, error) { return nil, nil }
func (f *fakeAdapter) Balance(ctx context.Context, currency string) (int64, error) {
	return 0, nil
}

func fastManager() *resiliency.Manager {
	return resiliency.NewManager(resiliency.ManagerConfig{
		MaxRetries:       2,
		InitialBackoff:   time.Millisecond,
		MaxBackoff:       2 * time.Millisecond,
		FailureThreshold: 100,
		FailureWindow:    time.Minute,
		CircuitTimeout:   time.Second,
	}, nil)
}

func newTestOMS(adapter *fakeAdapter) *OMS {
	o := New(fastManager())
	o.RegisterAdapter(adapter)
	return o
}

func testOrder() domain.Order {
	return domain.Order{
		Symbol:      "BTCUSDT",
		Side:        domain.SideBuy,
		Type:        domain.OrderTypeLimit,
		QtySats:     10 * quant.QtyScale,
		PriceMicros: quant.ToPriceMicros(50000),
	}
}

func TestSubmitOrder_Success(t *testing.T) {
	adapter := &fakeAdapter{name: "test"}
	o := newTestOMS(adapter)

	result, err := o.SubmitOrder(context.Background(), "test", testOrder())
	if err != nil {
		t.Fatalf("SubmitOrder failed: %v", err)
	}
	if result.Status != domain.StatusSubmitted {
		t.Errorf("status = %s, want SUBMITTED", result.Status)
	}
	if result.VenueOrderID != "V-1" {
		t.Errorf("venue order id = %s", result.VenueOrderID)
	}
	if result.ID == "" {
		t.Error("engine id must be assigned")
	}
	if result.SubmittedUnixM == 0 {
		t.Error("submit timestamp must be set")
	}
}

func TestSubmitOrder_VenueRejectedNotRetried(t *testing.T) {
	adapter := &fakeAdapter{name: "test", submitErr: fmt.Errorf("bad px: %w", domain.ErrVenueRejected)}
	o := newTestOMS(adapter)

	result, err := o.SubmitOrder(context.Background(), "test", testOrder())
	if !errors.Is(err, domain.ErrVenueRejected) {
		t.Fatalf("error = %v, want ErrVenueRejected", err)
	}
	if adapter.submitCnt != 1 {
		t.Errorf("rejection must not be retried, got %d attempts", adapter.submitCnt)
	}
	if result.Status != domain.StatusRejected {
		t.Errorf("status = %s, want REJECTED", result.Status)
	}
}

func TestSubmitOrder_ExhaustionDeadLettersAndRejects(t *testing.T) {
	adapter := &fakeAdapter{name: "test", submitErr: fmt.Errorf("down: %w", domain.ErrVenueUnavailable)}
	o := newTestOMS(adapter)

	result, err := o.SubmitOrder(context.Background(), "test", testOrder())
	if !errors.Is(err, domain.ErrRetriesExhausted) {
		t.Fatalf("error = %v, want ErrRetriesExhausted", err)
	}
	if adapter.submitCnt != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", adapter.submitCnt)
	}
	if result.Status != domain.StatusRejected {
		t.Errorf("status = %s, want REJECTED", result.Status)
	}

	got, _ := o.Order(result.ID)
	if got.Status != domain.StatusRejected {
		t.Errorf("stored status = %s", got.Status)
	}
}

func TestSubmitOrder_InlineFillStashedAndReplayed(t *testing.T) {
	adapter := &fakeAdapter{name: "test", inlineFill: &domain.Fill{
		ID:          "V-1-1",
		QtySats:     10 * quant.QtyScale,
		PriceMicros: quant.ToPriceMicros(50000),
		FeeMicros:   5_000_000,
		FeeCurrency: "USDT",
		TsUnixM:     time.Now().UnixMicro(),
	}}
	o := newTestOMS(adapter)

	var notified []domain.FillNotification
	o.SetFillCallback(func(n domain.FillNotification) { notified = append(notified, n) })

	result, err := o.SubmitOrder(context.Background(), "test", testOrder())
	if err != nil {
		t.Fatalf("SubmitOrder failed: %v", err)
	}

	// The synchronous fill arrived before the submit ack; the OMS must
	// stash it and replay it, never dropping it or deadlocking.
	if result.Status != domain.StatusFilled {
		t.Errorf("status = %s, want FILLED", result.Status)
	}
	if result.FilledQtySats != result.QtySats {
		t.Errorf("filled = %d, want %d", result.FilledQtySats, result.QtySats)
	}
	if len(notified) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notified))
	}

	pos := o.Position("BTCUSDT")
	if pos.QtySats != 10*quant.QtyScale {
		t.Errorf("position = %d, want 10", pos.QtySats)
	}
}

func TestSubmitOrder_CancelDuringFlightStaysCanceled(t *testing.T) {
	adapter := &fakeAdapter{
		name:          "test",
		submitEntered: make(chan struct{}),
		blockSubmit:   make(chan struct{}),
	}
	o := newTestOMS(adapter)

	var result domain.Order
	done := make(chan struct{})
	go func() {
		result, _ = o.SubmitOrder(context.Background(), "test", testOrder())
		close(done)
	}()

	// The submit round-trip is in flight; the order is still PENDING_SUBMIT.
	<-adapter.submitEntered
	open := o.OpenOrders()
	if len(open) != 1 || open[0].Status != domain.StatusPendingSubmit {
		t.Fatalf("expected one pending order, got %+v", open)
	}

	if err := o.CancelOrder(context.Background(), open[0].ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	// Release the venue ack. CANCELED is terminal: the ack must not
	// resurrect the order.
	close(adapter.blockSubmit)
	<-done

	if result.Status != domain.StatusCanceled {
		t.Errorf("returned status = %s, want CANCELED", result.Status)
	}
	got, _ := o.Order(open[0].ID)
	if got.Status != domain.StatusCanceled {
		t.Errorf("stored status = %s, want CANCELED", got.Status)
	}

	// The venue holds a live order for a locally-terminal record; it must
	// be unwound with a cancel.
	if adapter.cancelCnt != 1 {
		t.Errorf("venue cancels = %d, want 1", adapter.cancelCnt)
	}
}

func TestSubmitOrder_InlineFillDiscardedOnFailure(t *testing.T) {
	adapter := &fakeAdapter{
		name: "test",
		inlineFill: &domain.Fill{
			ID: "V-1-1", QtySats: 10 * quant.QtyScale,
			PriceMicros: quant.ToPriceMicros(50000), FeeCurrency: "USDT",
		},
		errAfterFill: fmt.Errorf("ack lost: %w", domain.ErrVenueRejected),
	}
	o := newTestOMS(adapter)

	result, err := o.SubmitOrder(context.Background(), "test", testOrder())
	if !errors.Is(err, domain.ErrVenueRejected) {
		t.Fatalf("error = %v, want ErrVenueRejected", err)
	}
	if result.Status != domain.StatusRejected {
		t.Errorf("status = %s, want REJECTED", result.Status)
	}

	// The stashed fill dies with the submission: no fill record, no
	// position movement.
	if fills := o.Fills(result.ID); len(fills) != 0 {
		t.Errorf("fills recorded for failed submission: %d", len(fills))
	}
	if pos := o.Position("BTCUSDT"); !pos.IsFlat() {
		t.Errorf("position mutated by discarded fill: %+v", pos)
	}
}

func TestApplyFill_UnknownOrder(t *testing.T) {
	o := newTestOMS(&fakeAdapter{name: "test"})

	err := o.ApplyFill(domain.Fill{ID: "f-1", OrderID: "ghost", QtySats: 1})
	if !errors.Is(err, domain.ErrUnknownOrder) {
		t.Errorf("error = %v, want ErrUnknownOrder", err)
	}
}

func TestApplyFill_OverFillRejected(t *testing.T) {
	adapter := &fakeAdapter{name: "test"}
	o := newTestOMS(adapter)

	result, err := o.SubmitOrder(context.Background(), "test", testOrder())
	if err != nil {
		t.Fatalf("SubmitOrder failed: %v", err)
	}

	err = o.ApplyFill(domain.Fill{
		ID: "f-1", OrderID: result.ID,
		QtySats: 11 * quant.QtyScale, PriceMicros: quant.ToPriceMicros(50000),
	})
	if !errors.Is(err, domain.ErrOverFill) {
		t.Fatalf("error = %v, want ErrOverFill", err)
	}

	// State untouched by the rejected fill.
	got, _ := o.Order(result.ID)
	if got.FilledQtySats != 0 || got.Status != domain.StatusSubmitted {
		t.Errorf("order mutated by rejected fill: %+v", got)
	}
	if pos := o.Position("BTCUSDT"); !pos.IsFlat() {
		t.Errorf("position mutated by rejected fill: %+v", pos)
	}
}

func TestApplyFill_PartialThenFull(t *testing.T) {
	adapter := &fakeAdapter{name: "test"}
	o := newTestOMS(adapter)

	result, _ := o.SubmitOrder(context.Background(), "test", testOrder())

	fill := func(id string, qty quant.QtySats) error {
		return o.ApplyFill(domain.Fill{
			ID: id, OrderID: result.ID, QtySats: qty,
			PriceMicros: quant.ToPriceMicros(50000), TsUnixM: time.Now().UnixMicro(),
		})
	}

	if err := fill("f-1", 4*quant.QtyScale); err != nil {
		t.Fatalf("first fill: %v", err)
	}
	got, _ := o.Order(result.ID)
	if got.Status != domain.StatusPartiallyFilled {
		t.Errorf("status = %s, want PARTIALLY_FILLED", got.Status)
	}
	if got.FirstFillUnixM == 0 {
		t.Error("first fill timestamp must be set")
	}

	if err := fill("f-2", 6*quant.QtyScale); err != nil {
		t.Fatalf("second fill: %v", err)
	}
	got, _ = o.Order(result.ID)
	if got.Status != domain.StatusFilled {
		t.Errorf("status = %s, want FILLED", got.Status)
	}
	if len(o.Fills(result.ID)) != 2 {
		t.Errorf("fill count = %d, want 2", len(o.Fills(result.ID)))
	}
}

func TestCancelOrder(t *testing.T) {
	t.Run("terminal is no-op", func(t *testing.T) {
		adapter := &fakeAdapter{name: "test", inlineFill: &domain.Fill{
			ID: "V-1-1", QtySats: 10 * quant.QtyScale, PriceMicros: quant.ToPriceMicros(50000),
		}}
		o := newTestOMS(adapter)
		result, _ := o.SubmitOrder(context.Background(), "test", testOrder())

		if err := o.CancelOrder(context.Background(), result.ID); err != nil {
			t.Errorf("cancel of filled order must be a no-op, got %v", err)
		}
		if adapter.cancelCnt != 0 {
			t.Error("terminal cancel must not reach the venue")
		}
	})

	t.Run("venue not-found is success", func(t *testing.T) {
		adapter := &fakeAdapter{name: "test",
			cancelErr: fmt.Errorf("gone: %w", domain.ErrOrderNotFound)}
		o := newTestOMS(adapter)
		result, _ := o.SubmitOrder(context.Background(), "test", testOrder())

		if err := o.CancelOrder(context.Background(), result.ID); err != nil {
			t.Errorf("not-found cancel must succeed, got %v", err)
		}
		if adapter.cancelCnt != 1 {
			t.Errorf("cancel attempts = %d, want 1 (no retry)", adapter.cancelCnt)
		}
		got, _ := o.Order(result.ID)
		if got.Status != domain.StatusCanceled {
			t.Errorf("status = %s, want CANCELED", got.Status)
		}
	})

	t.Run("unknown order", func(t *testing.T) {
		o := newTestOMS(&fakeAdapter{name: "test"})
		if err := o.CancelOrder(context.Background(), "ghost"); !errors.Is(err, domain.ErrUnknownOrder) {
			t.Errorf("error = %v, want ErrUnknownOrder", err)
		}
	})
}

func TestCancelAllOpen(t *testing.T) {
	adapter := &fakeAdapter{name: "test"}
	o := newTestOMS(adapter)

	for i := 0; i < 3; i++ {
		if _, err := o.SubmitOrder(context.Background(), "test", testOrder()); err != nil {
			t.Fatalf("SubmitOrder failed: %v", err)
		}
	}

	if n := o.CancelAllOpen(context.Background()); n != 3 {
		t.Errorf("canceled = %d, want 3", n)
	}
	if len(o.OpenOrders()) != 0 {
		t.Errorf("open orders remain: %d", len(o.OpenOrders()))
	}
}

func TestSweepStale(t *testing.T) {
	adapter := &fakeAdapter{name: "test"}
	o := newTestOMS(adapter)

	result, _ := o.SubmitOrder(context.Background(), "test", testOrder())

	// Nothing is old enough yet.
	if flagged := o.SweepStale(time.Hour); len(flagged) != 0 {
		t.Errorf("flagged young order: %v", flagged)
	}

	// Everything qualifies at zero age.
	flagged := o.SweepStale(-time.Second)
	if len(flagged) != 1 || flagged[0] != result.ID {
		t.Fatalf("flagged = %v, want [%s]", flagged, result.ID)
	}

	got, _ := o.Order(result.ID)
	if !got.Stale {
		t.Error("order must carry the stale flag")
	}
	if got.Status != domain.StatusSubmitted {
		t.Errorf("stale flagging must not change status, got %s", got.Status)
	}

	// Idempotent: already-flagged orders are not re-reported.
	if again := o.SweepStale(-time.Second); len(again) != 0 {
		t.Errorf("re-flagged: %v", again)
	}
}

func TestMetrics(t *testing.T) {
	adapter := &fakeAdapter{name: "test", inlineFill: &domain.Fill{
		ID: "V-1-1", QtySats: 10 * quant.QtyScale,
		PriceMicros: quant.ToPriceMicros(50000),
		FeeMicros:   5_000_000, FeeCurrency: "USDT",
		TsUnixM: time.Now().UnixMicro(),
	}}
	o := newTestOMS(adapter)

	if _, err := o.SubmitOrder(context.Background(), "test", testOrder()); err != nil {
		t.Fatalf("SubmitOrder failed: %v", err)
	}

	// One rejected and one still-open order alongside the filled one.
	adapter.inlineFill = nil
	adapter.submitErr = fmt.Errorf("no: %w", domain.ErrVenueRejected)
	o.SubmitOrder(context.Background(), "test", testOrder())
	adapter.submitErr = nil
	if _, err := o.SubmitOrder(context.Background(), "test", testOrder()); err != nil {
		t.Fatalf("SubmitOrder failed: %v", err)
	}

	m := o.Metrics()
	if m.TotalOrders != 3 || m.FilledOrders != 1 || m.RejectedOrders != 1 || m.OpenOrders != 1 {
		t.Errorf("counts = %+v", m)
	}
	// Rate is over all orders, open ones included: 1 of 3.
	if m.FillRateBps != 3333 {
		t.Errorf("fill rate = %d bps, want 3333", m.FillRateBps)
	}
	// 10 BTC at 50k = 500k quote, in micros.
	if m.FilledNotionalMicros != 500_000*quant.PriceScale {
		t.Errorf("notional = %d", m.FilledNotionalMicros)
	}
	if m.FeesByCurrency["USDT"] != 5_000_000 {
		t.Errorf("fees = %v", m.FeesByCurrency)
	}
}
