package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/coinbot/internal/domain"
)

// PriceService tracks the latest evaluated price per instrument in the price
// cache and announces updates on the bus.
type PriceService struct {
	cache  domain.PriceCache
	bus    domain.EventPublisher
	logger *slog.Logger
}

// NewPriceService creates a PriceService. bus may be nil.
func NewPriceService(cache domain.PriceCache, bus domain.EventPublisher, logger *slog.Logger) *PriceService {
	return &PriceService{
		cache:  cache,
		bus:    bus,
		logger: logger,
	}
}

// RecordPrice stores price for instrument and publishes a price event.
func (s *PriceService) RecordPrice(ctx context.Context, instrument string, price decimal.Decimal, ts time.Time) error {
	if err := s.cache.SetPrice(ctx, instrument, price, ts); err != nil {
		return fmt.Errorf("price_service: set price for %q: %w", instrument, err)
	}
	if s.bus == nil {
		return nil
	}

	evt, _ := json.Marshal(map[string]any{
		"event":      "price_update",
		"instrument": instrument,
		"price":      price.String(),
		"timestamp":  ts.UTC().Format(time.RFC3339Nano),
	})
	if pubErr := s.bus.Publish(ctx, "prices", evt); pubErr != nil {
		s.logger.WarnContext(ctx, "price_service: publish price event failed",
			slog.String("instrument", instrument),
			slog.String("error", pubErr.Error()),
		)
	}
	return nil
}

// GetPrice returns the latest cached price and its timestamp.
func (s *PriceService) GetPrice(ctx context.Context, instrument string) (decimal.Decimal, time.Time, error) {
	price, ts, err := s.cache.GetPrice(ctx, instrument)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("price_service: get price for %q: %w", instrument, err)
	}
	return price, ts, nil
}

// GetPrices returns the latest cached prices. Missing instruments are
// omitted.
func (s *PriceService) GetPrices(ctx context.Context, instruments []string) (map[string]decimal.Decimal, error) {
	prices, err := s.cache.GetPrices(ctx, instruments)
	if err != nil {
		return nil, fmt.Errorf("price_service: get prices: %w", err)
	}
	return prices, nil
}
