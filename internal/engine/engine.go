// Package engine drives execution: a fixed-cadence loop pulls strategy
// decisions, maps them to orders and routes them through the OMS. It also
// owns the kill switch and the stale-order sweep.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"autotrader/internal/broker"
	"autotrader/internal/domain"
	"autotrader/internal/oms"
	"autotrader/internal/resiliency"
	"autotrader/pkg/quant"
	"autotrader/pkg/safe"
)

// DecisionSource supplies strategy decisions. Poll must not block; it
// returns whatever is ready at this tick, at most one decision per
// instrument.
type DecisionSource interface {
	Poll(ctx context.Context) []domain.ExecutionDecision
}

// PriceSource supplies mark prices for notional sizing.
type PriceSource interface {
	Mark(symbol string) (quant.PriceMicros, bool)
}

// Config holds the engine cadence settings.
type Config struct {
	TickInterval  time.Duration
	SweepInterval time.Duration
	StaleOrderAge time.Duration

	// Venue routes all mapped orders. Multi-venue routing policy stays
	// with the strategy; the engine executes against one venue.
	Venue string
}

// Engine is the execution loop.
type Engine struct {
	cfg    Config
	oms    *oms.OMS
	res    *resiliency.Manager
	source DecisionSource
	prices PriceSource

	mu       sync.Mutex
	adapters []broker.Adapter

	running atomic.Bool
	killed  atomic.Bool
	kill    sync.Once
	stop    context.CancelFunc
}

// New creates an engine. Adapters must already be registered with the OMS.
func New(cfg Config, o *oms.OMS, res *resiliency.Manager, source DecisionSource, prices PriceSource, adapters []broker.Adapter) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 100 * time.Millisecond
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	if cfg.StaleOrderAge <= 0 {
		cfg.StaleOrderAge = 5 * time.Minute
	}
	return &Engine{
		cfg:      cfg,
		oms:      o,
		res:      res,
		source:   source,
		prices:   prices,
		adapters: adapters,
	}
}

// RegisterFillCallback forwards OMS fill notifications to the strategy.
func (e *Engine) RegisterFillCallback(cb oms.FillCallback) {
	e.oms.SetFillCallback(cb)
}

// Run executes the tick loop until ctx is canceled or the kill switch
// fires. Each tick measures its own duration: the loop sleeps only the
// remainder of the interval, and an overrunning tick starts the next one
// immediately rather than letting lag accumulate.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.stop = cancel
	e.mu.Unlock()
	defer cancel()

	e.running.Store(true)
	defer e.running.Store(false)

	go e.sweepLoop(ctx)

	slog.Info("Engine started", slog.Duration("tick_interval", e.cfg.TickInterval))

	for {
		start := time.Now()
		e.tick(ctx)
		elapsed := time.Since(start)

		if elapsed >= e.cfg.TickInterval {
			slog.Warn("Tick overran interval",
				slog.Duration("elapsed", elapsed),
				slog.Duration("interval", e.cfg.TickInterval))
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				continue
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.cfg.TickInterval - elapsed):
		}
	}
}

// tick processes one batch of decisions. A failing decision is logged and
// skipped; it never aborts the rest of the batch.
func (e *Engine) tick(ctx context.Context) {
	for _, d := range e.source.Poll(ctx) {
		if err := e.executeDecision(ctx, d); err != nil {
			slog.Error("Decision execution failed",
				slog.String("decision_id", d.ID),
				slog.String("symbol", d.Symbol),
				slog.String("action", string(d.Action)),
				slog.Any("error", err))
		}
	}
}

func (e *Engine) executeDecision(ctx context.Context, d domain.ExecutionDecision) error {
	pos := e.oms.Position(d.Symbol)

	order, ok, err := e.mapDecision(d, pos)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	_, err = e.oms.SubmitOrder(ctx, e.cfg.Venue, order)
	return err
}

// mapDecision translates one decision into at most one order against the
// current position. ok=false means the decision requires no trade.
func (e *Engine) mapDecision(d domain.ExecutionDecision, pos domain.Position) (domain.Order, bool, error) {
	var side domain.Side
	var qty quant.QtySats

	switch d.Action {
	case domain.ActionClose:
		if pos.IsFlat() {
			return domain.Order{}, false, nil
		}
		side = domain.SideSell
		if pos.IsShort() {
			side = domain.SideBuy
		}
		qty = pos.QtySats.Abs()

	case domain.ActionOpen:
		target, err := e.targetQty(d)
		if err != nil {
			return domain.Order{}, false, err
		}
		if target == 0 {
			return domain.Order{}, false, nil
		}
		side = domain.SideBuy
		if target < 0 {
			side = domain.SideSell
		}
		qty = target.Abs()

	case domain.ActionAdjust:
		target, err := e.targetQty(d)
		if err != nil {
			return domain.Order{}, false, err
		}
		delta := safe.SafeSub(int64(target), int64(pos.QtySats))
		if delta == 0 {
			return domain.Order{}, false, nil
		}
		side = domain.SideBuy
		if delta < 0 {
			side = domain.SideSell
		}
		qty = quant.QtySats(delta).Abs()

	default:
		return domain.Order{}, false, fmt.Errorf("engine: unknown action %q", d.Action)
	}

	return domain.Order{
		Symbol:     d.Symbol,
		Side:       side,
		Type:       domain.OrderTypeMarket,
		QtySats:    qty,
		DecisionID: d.ID,
	}, true, nil
}

// targetQty resolves the decision's sizing: an explicit quantity wins;
// otherwise notional is converted at the current mark.
func (e *Engine) targetQty(d domain.ExecutionDecision) (quant.QtySats, error) {
	if d.TargetQtySats != 0 {
		return d.TargetQtySats, nil
	}
	if d.TargetNotionalMicros == 0 {
		return 0, nil
	}

	mark, ok := e.prices.Mark(d.Symbol)
	if !ok || mark <= 0 {
		return 0, fmt.Errorf("engine: no mark price for %s, cannot size notional", d.Symbol)
	}
	return quant.QtySats(safe.MulDiv(d.TargetNotionalMicros, quant.QtyScale, int64(mark))), nil
}

func (e *Engine) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if flagged := e.oms.SweepStale(e.cfg.StaleOrderAge); len(flagged) > 0 {
				slog.Warn("Stale order sweep", slog.Int("flagged", len(flagged)))
			}
		}
	}
}

// Kill activates the kill switch: stop the loop, best-effort cancel every
// open order, disconnect all venues. Idempotent; later calls are no-ops.
func (e *Engine) Kill(ctx context.Context) {
	e.kill.Do(func() {
		e.killed.Store(true)
		slog.Warn("Kill switch activated")

		e.mu.Lock()
		stop := e.stop
		adapters := append([]broker.Adapter(nil), e.adapters...)
		e.mu.Unlock()

		if stop != nil {
			stop()
		}

		canceled := e.oms.CancelAllOpen(ctx)
		slog.Info("Kill switch: open orders canceled", slog.Int("count", canceled))

		for _, a := range adapters {
			if err := a.Disconnect(); err != nil {
				slog.Warn("Kill switch: disconnect failed",
					slog.String("venue", a.Name()), slog.Any("error", err))
			}
		}
	})
}

// Killed reports whether the kill switch has fired.
func (e *Engine) Killed() bool {
	return e.killed.Load()
}
