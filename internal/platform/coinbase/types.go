package coinbase

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/coinbot/internal/domain"
)

// APICandle is one candle as returned by the candles endpoint. All numbers
// arrive as strings.
type APICandle struct {
	Start  string `json:"start"`
	Low    string `json:"low"`
	High   string `json:"high"`
	Open   string `json:"open"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
}

// ToDomain parses the candle.
func (c APICandle) ToDomain() (domain.Candle, error) {
	start, err := strconv.ParseInt(c.Start, 10, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parse start %q: %w", c.Start, err)
	}
	var vals [5]float64
	for i, s := range []string{c.Open, c.High, c.Low, c.Close, c.Volume} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("parse candle field %q: %w", s, err)
		}
		vals[i] = v
	}
	return domain.Candle{
		Start:  time.Unix(start, 0).UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

// Product carries the fields of a product the client needs.
type Product struct {
	ProductID       string          `json:"product_id"`
	Price           decimal.Decimal `json:"price"`
	BaseIncrement   decimal.Decimal `json:"base_increment"`
	QuoteIncrement  decimal.Decimal `json:"quote_increment"`
	BaseMinSize     decimal.Decimal `json:"base_min_size"`
	QuoteMinSize    decimal.Decimal `json:"quote_min_size"`
	TradingDisabled bool            `json:"trading_disabled"`
}

type marketIOC struct {
	QuoteSize string `json:"quote_size,omitempty"`
	BaseSize  string `json:"base_size,omitempty"`
}

type orderConfiguration struct {
	MarketMarketIOC marketIOC `json:"market_market_ioc"`
}

// createOrderRequest is the body of POST /orders.
type createOrderRequest struct {
	ClientOrderID      string             `json:"client_order_id"`
	ProductID          string             `json:"product_id"`
	Side               string             `json:"side"`
	OrderConfiguration orderConfiguration `json:"order_configuration"`
}

// createOrderResponse is the reply to POST /orders.
type createOrderResponse struct {
	Success         bool `json:"success"`
	SuccessResponse struct {
		OrderID       string `json:"order_id"`
		ProductID     string `json:"product_id"`
		Side          string `json:"side"`
		ClientOrderID string `json:"client_order_id"`
	} `json:"success_response"`
	ErrorResponse struct {
		Error                string `json:"error"`
		Message              string `json:"message"`
		ErrorDetails         string `json:"error_details"`
		PreviewFailureReason string `json:"preview_failure_reason"`
	} `json:"error_response"`
}

func (r createOrderResponse) failure() string {
	e := r.ErrorResponse
	for _, s := range []string{e.Message, e.ErrorDetails, e.PreviewFailureReason, e.Error} {
		if s != "" {
			return s
		}
	}
	return "unknown failure"
}
