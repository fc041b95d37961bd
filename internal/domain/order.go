package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderStatus tracks what the exchange reported for a submitted order.
type OrderStatus string

const (
	OrderStatusSubmitted OrderStatus = "submitted"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusSimulated OrderStatus = "simulated"
	OrderStatusFailed    OrderStatus = "failed"
)

// OrderResult wraps the exchange response after a market order submission.
type OrderResult struct {
	OrderID     string
	Instrument  string
	Side        OrderSide
	Status      OrderStatus
	QuoteAmount decimal.Decimal // set for buys
	BaseAmount  decimal.Decimal // set for sells
	SubmittedAt time.Time
}
