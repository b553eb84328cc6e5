package okanax

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"autotrader/internal/domain"
	"autotrader/internal/infra"
	"autotrader/pkg/quant"

	"github.com/shopspring/decimal"
)

// Client handles Okanax REST API communication. Order placement and account
// reads go over REST; execution reports arrive on the private WebSocket.
type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     *Signer
	limiter    *infra.RateLimiter
}

func NewClient(baseURL string, signer *Signer) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		signer:  signer,
		limiter: infra.NewRateLimiter(10, 20),
	}
}

func (c *Client) do(ctx context.Context, method, path string, reqBody, out any) error {
	c.limiter.Wait()

	var body []byte
	if reqBody != nil {
		var err error
		body, err = json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range c.signer.Headers(method, path, string(body)) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("okanax %s %s: %v: %w", method, path, err, domain.ErrVenueUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("okanax %s %s: status %d: %w", method, path, resp.StatusCode, domain.ErrVenueUnavailable)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("okanax read body: %v: %w", err, domain.ErrVenueUnavailable)
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("okanax decode envelope: %v: %w", err, domain.ErrVenueUnavailable)
	}
	if envelope.Code != codeOK {
		if envelope.Code == codeOrderNotFound {
			return fmt.Errorf("okanax %s: %s: %w", envelope.Code, envelope.Msg, domain.ErrOrderNotFound)
		}
		return fmt.Errorf("okanax %s: %s: %w", envelope.Code, envelope.Msg, domain.ErrVenueRejected)
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("okanax decode data: %w", err)
		}
	}
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, pathTime, nil, nil)
}

// PlaceOrder submits an order. The venue wraps single-order responses in an
// array.
func (c *Client) PlaceOrder(ctx context.Context, order domain.Order) (string, error) {
	req := placeOrderRequest{
		ClOrdID: order.ID,
		InstID:  order.Symbol,
		Side:    wireSide(order.Side),
		OrdType: wireOrdType(order.Type),
		Sz:      fixedToStr(int64(order.QtySats), quant.QtyScale),
	}
	if order.Type != domain.OrderTypeMarket {
		req.Px = fixedToStr(int64(order.PriceMicros), quant.PriceScale)
	}

	var data []placeOrderData
	if err := c.do(ctx, http.MethodPost, pathPlaceOrder, req, &data); err != nil {
		return "", err
	}
	if len(data) == 0 || data[0].OrdID == "" {
		return "", fmt.Errorf("okanax: empty order id in response: %w", domain.ErrVenueRejected)
	}
	return data[0].OrdID, nil
}

func (c *Client) CancelOrder(ctx context.Context, venueOrderID string) error {
	return c.do(ctx, http.MethodPost, pathCancelOrder, orderRef{OrdID: venueOrderID}, nil)
}

func (c *Client) GetOrder(ctx context.Context, venueOrderID string) (orderDetailData, error) {
	var data []orderDetailData
	err := c.do(ctx, http.MethodPost, pathOrderDetail, orderRef{OrdID: venueOrderID}, &data)
	if err != nil {
		return orderDetailData{}, err
	}
	if len(data) == 0 {
		return orderDetailData{}, fmt.Errorf("okanax: %s: %w", venueOrderID, domain.ErrOrderNotFound)
	}
	return data[0], nil
}

func (c *Client) GetPositions(ctx context.Context) ([]domain.Position, error) {
	var data []positionData
	if err := c.do(ctx, http.MethodGet, pathPositions, nil, &data); err != nil {
		return nil, err
	}

	out := make([]domain.Position, 0, len(data))
	for _, p := range data {
		out = append(out, domain.Position{
			Symbol:              p.InstID,
			QtySats:             quant.ToQtySatsStr(p.Pos),
			AvgEntryPriceMicros: quant.ToPriceMicrosStr(p.AvgPx),
			RealizedPnLMicros:   int64(quant.ToPriceMicrosStr(p.RealPnL)),
		})
	}
	return out, nil
}

func (c *Client) GetBalance(ctx context.Context, currency string) (int64, error) {
	var data []balanceData
	if err := c.do(ctx, http.MethodGet, pathBalance, nil, &data); err != nil {
		return 0, err
	}
	for _, b := range data {
		if b.Ccy == currency {
			if currency == "USDT" || currency == "USDC" {
				return int64(quant.ToPriceMicrosStr(b.AvailBal)), nil
			}
			return int64(quant.ToQtySatsStr(b.AvailBal)), nil
		}
	}
	return 0, nil
}

func wireSide(s domain.Side) string {
	if s == domain.SideBuy {
		return "buy"
	}
	return "sell"
}

func wireOrdType(t domain.OrderType) string {
	switch t {
	case domain.OrderTypeLimit:
		return "limit"
	case domain.OrderTypeStop:
		return "conditional"
	default:
		return "market"
	}
}

func fixedToStr(v, scale int64) string {
	return decimal.NewFromInt(v).Div(decimal.NewFromInt(scale)).String()
}

func mapState(s string) domain.OrderStatus {
	switch s {
	case "live":
		return domain.StatusSubmitted
	case "partially_filled":
		return domain.StatusPartiallyFilled
	case "filled":
		return domain.StatusFilled
	case "canceled":
		return domain.StatusCanceled
	case "rejected":
		return domain.StatusRejected
	default:
		return domain.StatusSubmitted
	}
}
