package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/coinbot/internal/domain"
)

// ThrottleStore implements domain.ThrottleStore as a single hash mapping
// instrument to the Unix-nanosecond time of its last BUY signal.
type ThrottleStore struct {
	c *Client
}

// NewThrottleStore creates a ThrottleStore.
func NewThrottleStore(c *Client) *ThrottleStore {
	return &ThrottleStore{c: c}
}

// SaveSignal records a BUY signal for instrument at at.
func (ts *ThrottleStore) SaveSignal(ctx context.Context, instrument string, at time.Time) error {
	if err := ts.c.rdb.HSet(ctx, ts.c.Key("throttle"), instrument, strconv.FormatInt(at.UnixNano(), 10)).Err(); err != nil {
		return fmt.Errorf("redis: save throttle %s: %w", instrument, err)
	}
	return nil
}

// LoadSignals returns every recorded signal time. Malformed entries are
// skipped.
func (ts *ThrottleStore) LoadSignals(ctx context.Context) (map[string]time.Time, error) {
	vals, err := ts.c.rdb.HGetAll(ctx, ts.c.Key("throttle")).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: load throttle: %w", err)
	}
	return parseSignals(vals), nil
}

func parseSignals(vals map[string]string) map[string]time.Time {
	out := make(map[string]time.Time, len(vals))
	for inst, s := range vals {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			continue
		}
		out[inst] = time.Unix(0, n)
	}
	return out
}

var _ domain.ThrottleStore = (*ThrottleStore)(nil)
