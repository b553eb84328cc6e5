package oms

import (
	"autotrader/internal/domain"
	"autotrader/pkg/quant"
	"autotrader/pkg/safe"
)

// PerformanceMetrics is a derived execution-quality snapshot. Nothing here
// is stored; every value is computed from order and fill state on demand.
type PerformanceMetrics struct {
	TotalOrders    int
	FilledOrders   int
	RejectedOrders int
	CanceledOrders int
	OpenOrders     int
	StaleOrders    int

	// FillRateBps is filled orders per total orders, basis points.
	FillRateBps int64

	// AvgTimeToFirstFillMicros averages submit-ack to first-fill latency
	// over orders that have filled at least once.
	AvgTimeToFirstFillMicros int64

	FilledNotionalMicros int64
	FeesByCurrency       map[string]int64

	TotalRealizedPnLMicros int64
}

// Metrics computes the current snapshot.
func (o *OMS) Metrics() PerformanceMetrics {
	o.mu.RLock()
	defer o.mu.RUnlock()

	m := PerformanceMetrics{
		FeesByCurrency: make(map[string]int64, len(o.fees)),
	}
	for ccy, v := range o.fees {
		m.FeesByCurrency[ccy] = v
	}

	var latencySum, latencyN int64

	for _, ord := range o.orders {
		m.TotalOrders++
		switch ord.Status {
		case domain.StatusFilled:
			m.FilledOrders++
		case domain.StatusRejected:
			m.RejectedOrders++
		case domain.StatusCanceled:
			m.CanceledOrders++
		default:
			m.OpenOrders++
		}
		if ord.Stale {
			m.StaleOrders++
		}
		if ord.FirstFillUnixM > 0 && ord.SubmittedUnixM > 0 {
			latencySum = safe.SafeAdd(latencySum, ord.FirstFillUnixM-ord.SubmittedUnixM)
			latencyN++
		}
	}

	if m.TotalOrders > 0 {
		m.FillRateBps = safe.MulDiv(int64(m.FilledOrders), 10000, int64(m.TotalOrders))
	}
	if latencyN > 0 {
		m.AvgTimeToFirstFillMicros = latencySum / latencyN
	}

	for _, fills := range o.fills {
		for _, f := range fills {
			notional := safe.MulDiv(int64(f.PriceMicros), int64(f.QtySats), quant.QtyScale)
			m.FilledNotionalMicros = safe.SafeAdd(m.FilledNotionalMicros, notional)
		}
	}

	for _, p := range o.positions {
		m.TotalRealizedPnLMicros = safe.SafeAdd(m.TotalRealizedPnLMicros, p.RealizedPnLMicros)
	}
	return m
}
