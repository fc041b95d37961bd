package app

import (
	"context"
	"errors"

	"github.com/alanyoungcy/coinbot/internal/domain"
)

// fanout publishes every event to all of its publishers and joins their
// errors.
type fanout []domain.EventPublisher

func (f fanout) Publish(ctx context.Context, channel string, payload []byte) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, channel, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
