package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autotrader/internal/broker"
	"autotrader/internal/broker/bitrex"
	"autotrader/internal/broker/okanax"
	"autotrader/internal/broker/paper"
	"autotrader/internal/engine"
	"autotrader/internal/infra"
	"autotrader/internal/oms"
	"autotrader/internal/resiliency"
	"autotrader/internal/storage"
	"autotrader/pkg/quant"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("🕵️ Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. Configuration & Logging
	cfg, err := infra.LoadConfig(*configPath)
	if err != nil {
		slog.Error("❌ Configuration load failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.SetDefault(infra.NewLogger(cfg))

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Resiliency Layer (DLQ journal is optional)
	var journal resiliency.Journal
	if cfg.Resiliency.DLQJournalPath != "" {
		dlqJournal, err := storage.NewDLQJournal(cfg.Resiliency.DLQJournalPath)
		if err != nil {
			slog.Error("❌ DLQ journal open failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer dlqJournal.Close()
		journal = dlqJournal
	}

	res := resiliency.NewManager(resiliency.ManagerConfig{
		MaxRetries:       cfg.Resiliency.MaxRetries,
		InitialBackoff:   time.Duration(cfg.Resiliency.InitialBackoffMS) * time.Millisecond,
		MaxBackoff:       time.Duration(cfg.Resiliency.MaxBackoffMS) * time.Millisecond,
		FailureThreshold: cfg.Resiliency.CircuitThreshold,
		FailureWindow:    time.Duration(cfg.Resiliency.FailureWindowSec) * time.Second,
		CircuitTimeout:   time.Duration(cfg.Resiliency.CircuitTimeoutSec) * time.Second,
	}, journal)

	// 5. Venue Adapters & OMS
	orderManager := oms.New(res)
	marks := engine.NewMarkTable(nil)

	var adapters []broker.Adapter
	var primaryVenue string

	if cfg.Venues.Bitrex.Enabled {
		adapters = append(adapters, bitrex.NewAdapter(
			cfg.Venues.Bitrex.RestURL,
			cfg.Venues.Bitrex.AccessKey,
			cfg.Venues.Bitrex.SecretKey,
			time.Duration(cfg.Venues.Bitrex.PollIntervalMS)*time.Millisecond,
		))
	}
	if cfg.Venues.Okanax.Enabled {
		adapters = append(adapters, okanax.NewAdapter(
			cfg.Venues.Okanax.RestURL,
			cfg.Venues.Okanax.WSURL,
			cfg.Venues.Okanax.AccessKey,
			cfg.Venues.Okanax.SecretKey,
			cfg.Venues.Okanax.Passphrase,
		))
	}
	if cfg.Venues.Paper.Enabled {
		markPrices := make(map[string]quant.PriceMicros, len(cfg.Venues.Paper.MarkPrices))
		for symbol, price := range cfg.Venues.Paper.MarkPrices {
			markPrices[symbol] = quant.ToPriceMicrosStr(price)
			marks.Set(symbol, markPrices[symbol])
		}
		adapters = append(adapters, paper.New(
			int64(quant.ToPriceMicrosStr(cfg.Venues.Paper.InitialBalanceQuote)),
			markPrices,
		))
	}

	for _, a := range adapters {
		orderManager.RegisterAdapter(a)
		if err := a.Connect(ctx); err != nil {
			slog.Error("❌ Venue connect failed", slog.String("venue", a.Name()), slog.Any("error", err))
			os.Exit(1)
		}
		slog.InfoContext(ctx, "✅ Venue connected", slog.String("venue", a.Name()))
		if primaryVenue == "" {
			primaryVenue = a.Name()
		}
	}

	// 6. Execution Engine
	decisions := engine.NewChannelSource(256)
	exec := engine.New(engine.Config{
		TickInterval:  time.Duration(cfg.Engine.TickIntervalMS) * time.Millisecond,
		SweepInterval: time.Duration(cfg.Engine.SweepIntervalSec) * time.Second,
		StaleOrderAge: time.Duration(cfg.Engine.StaleOrderAgeSec) * time.Second,
		Venue:         primaryVenue,
	}, orderManager, res, decisions, marks, adapters)

	done := make(chan error, 1)
	go func() { done <- exec.Run(ctx) }()

	slog.InfoContext(ctx, "✨ Execution core fully operational. Press Ctrl+C to exit.",
		slog.String("app", cfg.App.Name),
		slog.String("primary_venue", primaryVenue))

	// Wait for shutdown signal, then fire the kill switch: cancel all open
	// orders and disconnect every venue before exiting.
	<-ctx.Done()

	slog.Info("👋 Shutting down gracefully...")
	killCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	exec.Kill(killCtx)
	<-done

	status := exec.Status()
	slog.Info("Final state",
		slog.Int("total_orders", status.Metrics.TotalOrders),
		slog.Int("filled_orders", status.Metrics.FilledOrders),
		slog.Int("dlq_size", status.DLQSize))
}
