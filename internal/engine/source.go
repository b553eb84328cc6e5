package engine

import (
	"context"
	"log/slog"
	"sync"

	"autotrader/internal/domain"
	"autotrader/pkg/quant"
)

// ChannelSource is a buffered DecisionSource for in-process strategy
// producers. Push never blocks the producer: when the buffer is full the
// decision is dropped and logged, since a stale decision executed late is
// worse than one skipped.
type ChannelSource struct {
	ch chan domain.ExecutionDecision
}

func NewChannelSource(buffer int) *ChannelSource {
	if buffer <= 0 {
		buffer = 256
	}
	return &ChannelSource{ch: make(chan domain.ExecutionDecision, buffer)}
}

// Push enqueues one decision for the next tick.
func (s *ChannelSource) Push(d domain.ExecutionDecision) {
	select {
	case s.ch <- d:
	default:
		slog.Warn("Decision dropped, buffer full",
			slog.String("decision_id", d.ID),
			slog.String("symbol", d.Symbol))
	}
}

// Poll drains everything currently buffered without blocking.
func (s *ChannelSource) Poll(ctx context.Context) []domain.ExecutionDecision {
	var out []domain.ExecutionDecision
	for {
		select {
		case d := <-s.ch:
			out = append(out, d)
		default:
			return out
		}
	}
}

// MarkTable is a concurrent-safe PriceSource fed by market data or
// configuration.
type MarkTable struct {
	mu    sync.RWMutex
	marks map[string]quant.PriceMicros
}

func NewMarkTable(initial map[string]quant.PriceMicros) *MarkTable {
	m := make(map[string]quant.PriceMicros, len(initial))
	for k, v := range initial {
		m[k] = v
	}
	return &MarkTable{marks: m}
}

// Set updates one mark price.
func (t *MarkTable) Set(symbol string, price quant.PriceMicros) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.marks[symbol] = price
}

// Mark implements PriceSource.
func (t *MarkTable) Mark(symbol string) (quant.PriceMicros, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.marks[symbol]
	return v, ok
}
