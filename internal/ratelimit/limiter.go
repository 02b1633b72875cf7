package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Stats summarises every live counter key.
type Stats struct {
	TotalKeys     int64 `json:"totalKeys"`
	MinuteKeys    int64 `json:"minuteKeys"`
	HourKeys      int64 `json:"hourKeys"`
	DayKeys       int64 `json:"dayKeys"`
	TotalRequests int64 `json:"totalRequests"`
}

// Limiter checks and records requests against fixed window buckets.
// Check and Record are separate round trips, so concurrent callers can each pass Check before either
// records; a bucket may therefore exceed its threshold by the number of in-flight requests.
type Limiter struct {
	store Store
	now   func() time.Time
}

// NewLimiter returns a Limiter over store.
func NewLimiter(store Store) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("ratelimit: store is required")
	}
	return &Limiter{store: store, now: time.Now}, nil
}

// WithClock replaces the time source. Used by tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

func keys(identifier string, at time.Time) []string {
	out := make([]string, len(Windows))
	for i, w := range Windows {
		out[i] = w.Key(identifier, at)
	}
	return out
}

// Check returns the smallest breached window for identifier, or nil when every window is under its limit.
// It never increments.
func (l *Limiter) Check(ctx context.Context, identifier string, limits Limits) (*Violation, error) {
	at := l.now()
	counts, err := l.store.Counts(ctx, keys(identifier, at))
	if err != nil {
		return nil, err
	}
	for i, w := range Windows {
		limit := limits.For(w)
		if limit <= 0 {
			continue
		}
		if counts[i] >= limit {
			return &Violation{
				Window:         w,
				Limit:          limit,
				Current:        counts[i],
				ResetInSeconds: w.ResetIn(at),
			}, nil
		}
	}
	return nil, nil
}

// Record increments the three window counters in one transaction and returns their new values.
func (l *Limiter) Record(ctx context.Context, identifier string) (Counters, error) {
	at := l.now()
	incs := make([]Increment, len(Windows))
	for i, w := range Windows {
		incs[i] = Increment{Key: w.Key(identifier, at), TTL: w.Length()}
	}
	vals, err := l.store.Increment(ctx, incs)
	if err != nil {
		return Counters{}, err
	}
	var c Counters
	for i, w := range Windows {
		c.set(w, vals[i])
	}
	return c, nil
}

// Counters returns the current bucket counts for identifier without modifying them.
func (l *Limiter) Counters(ctx context.Context, identifier string) (Counters, error) {
	counts, err := l.store.Counts(ctx, keys(identifier, l.now()))
	if err != nil {
		return Counters{}, err
	}
	var c Counters
	for i, w := range Windows {
		c.set(w, counts[i])
	}
	return c, nil
}

// ClearAll deletes every counter key and returns how many were removed.
func (l *Limiter) ClearAll(ctx context.Context) (int64, error) {
	var removed int64
	err := l.store.Scan(ctx, KeyPrefix+"*", func(batch []string) error {
		n, err := l.store.Delete(ctx, batch)
		removed += n
		return err
	})
	return removed, err
}

// Stats counts live keys per window and sums their values.
func (l *Limiter) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := l.store.Scan(ctx, KeyPrefix+"*", func(batch []string) error {
		for _, k := range batch {
			s.TotalKeys++
			switch {
			case strings.HasPrefix(k, KeyPrefix+string(Minute)+":"):
				s.MinuteKeys++
			case strings.HasPrefix(k, KeyPrefix+string(Hour)+":"):
				s.HourKeys++
			case strings.HasPrefix(k, KeyPrefix+string(Day)+":"):
				s.DayKeys++
			}
		}
		counts, err := l.store.Counts(ctx, batch)
		if err != nil {
			return err
		}
		for _, n := range counts {
			s.TotalRequests += n
		}
		return nil
	})
	return s, err
}

// Ping checks the store.
func (l *Limiter) Ping(ctx context.Context) error {
	return l.store.Ping(ctx)
}
