package bitrex

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

// Client handles Bitrex REST API communication.
type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     *Signer
	limiter    *infra.RateLimiter
}

// NewClient creates a new Bitrex REST client.
// Bitrex allows 10 signed requests/second; burst kept conservative.
func NewClient(baseURL, accessKey, secretKey string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		signer:  NewSigner(accessKey, secretKey),
		limiter: infra.NewRateLimiter(5, 10),
	}
}

// Close wipes credentials.
func (c *Client) Close() {
	c.signer.Wipe()
}

// do performs one signed request and decodes the envelope.
// Network failures and 5xx map to ErrVenueUnavailable; venue-level error
// codes map to ErrVenueRejected (or ErrOrderNotFound for that code).
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

	for k, v := range c.signer.Headers(method, path, "", string(body)) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bitrex %s %s: %v: %w", method, path, err, domain.ErrVenueUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("bitrex %s %s: status %d: %w", method, path, resp.StatusCode, domain.ErrVenueUnavailable)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("bitrex read body: %v: %w", err, domain.ErrVenueUnavailable)
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("bitrex decode envelope: %v: %w", err, domain.ErrVenueUnavailable)
	}

	if envelope.Code != codeOK {
		if envelope.Code == codeOrderNotFound {
			return fmt.Errorf("bitrex %s: %s: %w", envelope.Code, envelope.Msg, domain.ErrOrderNotFound)
		}
		return fmt.Errorf("bitrex %s: %s: %w", envelope.Code, envelope.Msg, domain.ErrVenueRejected)
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("bitrex decode data: %w", err)
		}
	}
	return nil
}

// Ping checks connectivity against the public time endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, pathTime, nil, nil)
}

// PlaceOrder submits an order and returns the venue order id.
func (c *Client) PlaceOrder(ctx context.Context, order domain.Order) (string, error) {
	req := placeOrderRequest{
		ClientOid: order.ID,
		Symbol:    order.Symbol,
		Side:      wireSide(order.Side),
		OrdType:   wireOrdType(order.Type),
		Qty:       formatSats(order.QtySats),
	}
	if order.Type != domain.OrderTypeMarket {
		req.Price = formatMicros(order.PriceMicros)
	}

	var data placeOrderData
	if err := c.do(ctx, http.MethodPost, pathPlaceOrder, req, &data); err != nil {
		return "", err
	}
	if data.OrderID == "" {
		return "", fmt.Errorf("bitrex: empty order id in response: %w", domain.ErrVenueRejected)
	}
	return data.OrderID, nil
}

// CancelOrder cancels an order by venue id.
func (c *Client) CancelOrder(ctx context.Context, venueOrderID string) error {
	return c.do(ctx, http.MethodPost, pathCancelOrder, cancelOrderRequest{OrderID: venueOrderID}, nil)
}

// GetOrder fetches the venue's order snapshot.
func (c *Client) GetOrder(ctx context.Context, venueOrderID string) (orderSnapshot, error) {
	var snap orderSnapshot
	err := c.do(ctx, http.MethodPost, pathOrderDetail, cancelOrderRequest{OrderID: venueOrderID}, &snap)
	return snap, err
}

// GetPositions fetches current positions.
func (c *Client) GetPositions(ctx context.Context) ([]domain.Position, error) {
	var data []positionData
	if err := c.do(ctx, http.MethodGet, pathPositions, nil, &data); err != nil {
		return nil, err
	}

	out := make([]domain.Position, 0, len(data))
	for _, p := range data {
		out = append(out, domain.Position{
			Symbol:              p.Symbol,
			QtySats:             quant.ToQtySatsStr(p.Qty),
			AvgEntryPriceMicros: quant.ToPriceMicrosStr(p.AvgPrice),
			RealizedPnLMicros:   int64(quant.ToPriceMicrosStr(p.RealPnL)),
		})
	}
	return out, nil
}

// GetBalance fetches the available balance for one currency, fixed-point.
func (c *Client) GetBalance(ctx context.Context, currency string) (int64, error) {
	var data []balanceData
	if err := c.do(ctx, http.MethodGet, pathBalance, nil, &data); err != nil {
		return 0, err
	}

	for _, b := range data {
		if b.Currency == currency {
			if currency == "USDT" || currency == "USDC" {
				return int64(quant.ToPriceMicrosStr(b.Available)), nil
			}
			return int64(quant.ToQtySatsStr(b.Available)), nil
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
		return "stop"
	default:
		return "market"
	}
}

// formatSats renders a fixed-point quantity as the venue's decimal string.
func formatSats(q quant.QtySats) string {
	return decimal.NewFromInt(int64(q)).Div(decimal.NewFromInt(quant.QtyScale)).String()
}

// formatMicros renders a fixed-point price as the venue's decimal string.
func formatMicros(p quant.PriceMicros) string {
	return decimal.NewFromInt(int64(p)).Div(decimal.NewFromInt(quant.PriceScale)).String()
}

// mapStatus converts a venue status string to the domain lifecycle.
func mapStatus(s string) domain.OrderStatus {
	switch s {
	case "new":
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
