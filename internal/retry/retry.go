// Package retry runs short platform calls with exponential backoff.
package retry

import (
	"context"
	"time"

	"siftgram/internal/platform"
)

// Policy shapes the backoff schedule: Attempts total tries, Initial delay
// before the second try, multiplied by Factor after each failed try.
type Policy struct {
	Attempts int
	Initial  time.Duration
	Factor   float64
}

// Default is the lookup layer's contract: three tries, one second initial
// delay, factor 1.5.
func Default() Policy {
	return Policy{Attempts: 3, Initial: time.Second, Factor: 1.5}
}

func (p Policy) normalize() Policy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Initial <= 0 {
		p.Initial = time.Second
	}
	if p.Factor < 1 {
		p.Factor = 1.5
	}
	return p
}

// Do runs op until it succeeds, attempts are exhausted, ctx is done, or the
// error is fatal per platform.Fatal (unsupported capability, unknown
// entity, rate limit). The last error comes back unwrapped so callers can
// inspect it.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	p = p.normalize()

	var zero T
	var lastErr error
	delay := p.Initial

	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if platform.Fatal(err) || attempt == p.Attempts {
			break
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, ctx.Err()
		case <-t.C:
		}
		delay = time.Duration(float64(delay) * p.Factor)
	}

	return zero, lastErr
}
