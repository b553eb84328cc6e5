package okanax

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"autotrader/internal/domain"
	"autotrader/pkg/quant"

	"github.com/gorilla/websocket"
)

// maxSeenFills bounds the dedup set. Old entries are dropped wholesale
// once the cap is hit; a retransmit that old would also be outside the
// venue's own replay window.
const maxSeenFills = 8192

// fillResolver maps a venue order id to the engine order id. Returns
// ok=false for orders this session does not own.
type fillResolver func(venueOrderID string) (string, bool)

// wsWorker implements infra.WebSocketHandler for the private Okanax
// stream: signed login on connect, fills channel subscription after the
// login ack, execution reports deduplicated by trade id.
type wsWorker struct {
	url     string
	signer  *Signer
	resolve fillResolver
	emit    func(domain.Fill)

	// write is injected by the adapter once the BaseWSWorker exists.
	write func(msgType int, data []byte) error

	mu   sync.Mutex
	seen map[string]struct{}
}

func newWSWorker(url string, signer *Signer, resolve fillResolver, emit func(domain.Fill)) *wsWorker {
	return &wsWorker{
		url:     url,
		signer:  signer,
		resolve: resolve,
		emit:    emit,
		seen:    make(map[string]struct{}),
	}
}

func (w *wsWorker) ID() string     { return "okanax-fills" }
func (w *wsWorker) GetURL() string { return w.url }

// OnConnect sends the login frame. Subscription waits for the login ack
// in OnMessage; the venue rejects subscribes on unauthenticated sockets.
func (w *wsWorker) OnConnect(ctx context.Context, conn *websocket.Conn) error {
	frame, err := json.Marshal(wsRequest{Op: "login", Args: []any{w.signer.LoginArg()}})
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// OnPing keeps the session alive. The frame goes through the injected
// write func so it serializes with subscribe frames; gorilla permits only
// one concurrent writer per connection.
func (w *wsWorker) OnPing(ctx context.Context, conn *websocket.Conn) error {
	if w.write == nil {
		return conn.WriteMessage(websocket.TextMessage, []byte("ping"))
	}
	return w.write(websocket.TextMessage, []byte("ping"))
}

func (w *wsWorker) OnMessage(ctx context.Context, msg []byte) {
	if string(msg) == "pong" {
		return
	}

	var event wsEvent
	if err := json.Unmarshal(msg, &event); err != nil {
		slog.Warn("Okanax WS undecodable frame", slog.Any("error", err))
		return
	}

	switch event.Event {
	case "login":
		if event.Code != "" && event.Code != codeOK {
			slog.Error("Okanax WS login rejected", slog.String("code", event.Code), slog.String("msg", event.Msg))
			return
		}
		w.subscribeFills()
		return
	case "subscribe":
		slog.Info("Okanax WS subscribed", slog.String("channel", event.Arg.Channel))
		return
	case "error":
		slog.Error("Okanax WS error frame", slog.String("code", event.Code), slog.String("msg", event.Msg))
		return
	}

	if event.Arg.Channel != fillsChannel || len(event.Data) == 0 {
		return
	}

	var fills []fillEvent
	if err := json.Unmarshal(event.Data, &fills); err != nil {
		slog.Warn("Okanax WS bad fills payload", slog.Any("error", err))
		return
	}
	for _, f := range fills {
		w.handleFill(f)
	}
}

func (w *wsWorker) subscribeFills() {
	frame, err := json.Marshal(wsRequest{
		Op:   "subscribe",
		Args: []any{wsSubscribeArg{Channel: fillsChannel}},
	})
	if err != nil {
		return
	}
	if w.write == nil {
		return
	}
	if err := w.write(websocket.TextMessage, frame); err != nil {
		slog.Warn("Okanax WS subscribe failed", slog.Any("error", err))
	}
}

// handleFill translates one execution report. Each trade id is delivered
// at most once; the venue retransmits events after reconnects.
func (w *wsWorker) handleFill(f fillEvent) {
	if f.TradeID == "" || f.OrdID == "" {
		return
	}

	w.mu.Lock()
	if _, dup := w.seen[f.TradeID]; dup {
		w.mu.Unlock()
		return
	}
	if len(w.seen) >= maxSeenFills {
		w.seen = make(map[string]struct{})
	}
	w.seen[f.TradeID] = struct{}{}
	w.mu.Unlock()

	engineID, ok := w.resolve(f.OrdID)
	if !ok {
		slog.Warn("Okanax fill for unknown order", slog.String("ord_id", f.OrdID), slog.String("trade_id", f.TradeID))
		return
	}

	// Fees are reported negative when charged.
	fee := int64(quant.ToPriceMicrosStr(f.Fee))
	if fee < 0 {
		fee = -fee
	}
	liquidity := domain.LiquidityTaker
	if f.ExecType == "M" {
		liquidity = domain.LiquidityMaker
	}
	ts, err := quant.ParseTimeStamp(f.Ts)
	if err != nil {
		slog.Warn("Okanax fill with bad timestamp", slog.String("trade_id", f.TradeID), slog.String("ts", f.Ts))
	}

	w.emit(domain.Fill{
		ID:          fmt.Sprintf("%s:%s", f.OrdID, f.TradeID),
		OrderID:     engineID,
		QtySats:     quant.ToQtySatsStr(f.FillSz),
		PriceMicros: quant.ToPriceMicrosStr(f.FillPx),
		FeeMicros:   fee,
		FeeCurrency: f.FeeCcy,
		Liquidity:   liquidity,
		TsUnixM:     int64(ts),
	})
}
