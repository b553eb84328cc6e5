package bitrex

import (
	"context"
	"testing"
	"time"

	"autotrader/internal/domain"
	"autotrader/pkg/quant"
)

func newPollerAdapter() *Adapter {
	a := NewAdapter("https://api.bitrex.test", "ak", "sk", 100*time.Millisecond)
	a.tracked["BX-1"] = &trackedOrder{engineOrderID: "ord-1"}
	return a
}

func TestAdapter_FillDiffing(t *testing.T) {
	a := newPollerAdapter()

	var fills []domain.Fill
	handler := func(f domain.Fill) { fills = append(fills, f) }

	// First poll: 0.4 filled cumulative.
	a.applySnapshot("BX-1", orderSnapshot{
		OrderID: "BX-1", Status: "partially_filled",
		FilledQty: "0.4", LastPrice: "50100", FeeTotal: "10.02", FeeCcy: "USDT",
	}, handler)

	if len(fills) != 1 {
		t.Fatalf("expected 1 fill after first snapshot, got %d", len(fills))
	}
	f := fills[0]
	if f.OrderID != "ord-1" {
		t.Errorf("fill order id = %s", f.OrderID)
	}
	if f.QtySats != 4*quant.QtyScale/10 {
		t.Errorf("fill qty = %d, want 0.4", f.QtySats)
	}
	if f.PriceMicros != quant.ToPriceMicros(50100) {
		t.Errorf("fill price = %d", f.PriceMicros)
	}
	if f.FeeMicros != 10_020_000 {
		t.Errorf("fill fee = %d", f.FeeMicros)
	}

	// Second poll: cumulative 1.0, terminal. Delta is 0.6.
	a.applySnapshot("BX-1", orderSnapshot{
		OrderID: "BX-1", Status: "filled",
		FilledQty: "1", LastPrice: "50200", FeeTotal: "25.10", FeeCcy: "USDT",
	}, handler)

	if len(fills) != 2 {
		t.Fatalf("expected 2 fills after terminal snapshot, got %d", len(fills))
	}
	if fills[1].QtySats != 6*quant.QtyScale/10 {
		t.Errorf("second fill qty = %d, want 0.6", fills[1].QtySats)
	}
	if fills[1].FeeMicros != 15_080_000 {
		t.Errorf("second fill fee delta = %d", fills[1].FeeMicros)
	}
	if fills[0].ID == fills[1].ID {
		t.Error("fill ids must be distinct per execution")
	}
}

func TestAdapter_ReplayedSnapshotEmitsNothing(t *testing.T) {
	a := newPollerAdapter()

	var fills []domain.Fill
	handler := func(f domain.Fill) { fills = append(fills, f) }

	snap := orderSnapshot{
		OrderID: "BX-1", Status: "partially_filled",
		FilledQty: "0.4", LastPrice: "50100", FeeTotal: "10.02", FeeCcy: "USDT",
	}
	a.applySnapshot("BX-1", snap, handler)
	a.applySnapshot("BX-1", snap, handler)
	a.applySnapshot("BX-1", snap, handler)

	if len(fills) != 1 {
		t.Fatalf("replayed snapshot must not duplicate fills, got %d", len(fills))
	}
}

func TestAdapter_TerminalStopsTracking(t *testing.T) {
	a := newPollerAdapter()

	var fills []domain.Fill
	handler := func(f domain.Fill) { fills = append(fills, f) }

	a.applySnapshot("BX-1", orderSnapshot{
		OrderID: "BX-1", Status: "canceled", FilledQty: "0",
	}, handler)

	if len(fills) != 0 {
		t.Fatalf("canceled order with no fills emitted %d fills", len(fills))
	}
	if _, ok := a.tracked["BX-1"]; ok {
		t.Error("terminal snapshot must drop the cursor")
	}

	// Further snapshots for a dropped cursor are ignored.
	a.applySnapshot("BX-1", orderSnapshot{
		OrderID: "BX-1", Status: "filled", FilledQty: "1", LastPrice: "50000",
	}, handler)
	if len(fills) != 0 {
		t.Error("dropped cursor must not emit fills")
	}
}

func TestAdapter_AvgPriceFallback(t *testing.T) {
	a := newPollerAdapter()

	var fills []domain.Fill
	a.applySnapshot("BX-1", orderSnapshot{
		OrderID: "BX-1", Status: "filled",
		FilledQty: "1", LastPrice: "", AvgPrice: "49900", FeeCcy: "USDT",
	}, func(f domain.Fill) { fills = append(fills, f) })

	if len(fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(fills))
	}
	if fills[0].PriceMicros != quant.ToPriceMicros(49900) {
		t.Errorf("fallback price = %d, want avg price", fills[0].PriceMicros)
	}
}

func TestAdapter_SubmitWhileDisconnected(t *testing.T) {
	a := NewAdapter("https://api.bitrex.test", "ak", "sk", 0)

	_, err := a.SubmitOrder(context.Background(), domain.Order{ID: "x"})
	if err == nil {
		t.Fatal("expected error while disconnected")
	}
}
