package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/coinbot/internal/domain"
)

const ordersPath = "/api/v3/brokerage/orders"

// SubmitMarketBuy spends quote (USD) on instrument at market.
func (c *Client) SubmitMarketBuy(ctx context.Context, instrument string, quote decimal.Decimal) (domain.OrderResult, error) {
	p, err := c.product(ctx, instrument)
	if err != nil {
		return domain.OrderResult{}, err
	}
	size := truncateTo(quote, p.QuoteIncrement)
	if !size.IsPositive() || (p.QuoteMinSize.IsPositive() && size.LessThan(p.QuoteMinSize)) {
		return domain.OrderResult{}, fmt.Errorf("coinbase: buy %s quote %s below minimum: %w", instrument, size, domain.ErrInvalidOrder)
	}

	res, err := c.createOrder(ctx, instrument, domain.OrderSideBuy, marketIOC{QuoteSize: size.String()})
	if err != nil {
		return domain.OrderResult{}, err
	}
	res.QuoteAmount = size
	return res, nil
}

// SubmitMarketSell sells base units of instrument at market. The size is
// truncated to the product's base increment.
func (c *Client) SubmitMarketSell(ctx context.Context, instrument string, base decimal.Decimal) (domain.OrderResult, error) {
	p, err := c.product(ctx, instrument)
	if err != nil {
		return domain.OrderResult{}, err
	}
	size := truncateTo(base, p.BaseIncrement)
	if !size.IsPositive() || (p.BaseMinSize.IsPositive() && size.LessThan(p.BaseMinSize)) {
		return domain.OrderResult{}, fmt.Errorf("coinbase: sell %s base %s below minimum: %w", instrument, size, domain.ErrInvalidOrder)
	}

	res, err := c.createOrder(ctx, instrument, domain.OrderSideSell, marketIOC{BaseSize: size.String()})
	if err != nil {
		return domain.OrderResult{}, err
	}
	res.BaseAmount = size
	return res, nil
}

func (c *Client) createOrder(ctx context.Context, instrument string, side domain.OrderSide, cfg marketIOC) (domain.OrderResult, error) {
	req := createOrderRequest{
		ClientOrderID:      uuid.NewString(),
		ProductID:          instrument,
		Side:               string(side),
		OrderConfiguration: orderConfiguration{MarketMarketIOC: cfg},
	}

	body, err := c.do(ctx, http.MethodPost, ordersPath, nil, req, true)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("coinbase: %s %s: %w", side, instrument, err)
	}
	var resp createOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderResult{}, fmt.Errorf("coinbase: decode order response: %w", err)
	}
	if !resp.Success {
		return domain.OrderResult{}, fmt.Errorf("coinbase: %s %s: %w: %s", side, instrument, domain.ErrOrderRejected, resp.failure())
	}

	return domain.OrderResult{
		OrderID:     resp.SuccessResponse.OrderID,
		Instrument:  instrument,
		Side:        side,
		Status:      domain.OrderStatusSubmitted,
		SubmittedAt: time.Now().UTC(),
	}, nil
}

// truncateTo rounds v down to a multiple of inc. A zero increment leaves v
// at eight decimal places.
func truncateTo(v, inc decimal.Decimal) decimal.Decimal {
	if !inc.IsPositive() {
		return v.Truncate(8)
	}
	return v.Div(inc).Floor().Mul(inc)
}
